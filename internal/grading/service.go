package grading

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pitchlab/gradepipe/internal/metrics"
	"github.com/pitchlab/gradepipe/internal/monitoring"
	"github.com/pitchlab/gradepipe/internal/rubric"
	"github.com/pitchlab/gradepipe/internal/store"
	"github.com/pitchlab/gradepipe/internal/types"
)

// DefaultEnhanceTimeout bounds the external completion call so a slow
// provider cannot stall the synchronous grading pass.
const DefaultEnhanceTimeout = 20 * time.Second

// Enhancer produces an enhanced grade from an external completion service.
// Implementations are fallible; the pipeline treats any error as "no
// enhancement" and proceeds with the deterministic grade.
type Enhancer interface {
	Enhance(ctx context.Context, t types.Transcript, r *rubric.Rubric) (*EnhancedGrade, error)
}

// Result is the outcome of one synchronous grading pass.
type Result struct {
	Grade   FinalGrade
	Outcome Outcome
	Metrics metrics.BasicMetrics
}

// Service runs the synchronous grading pipeline: extract metrics, score the
// rubric, optionally enhance, merge, classify, persist.
type Service struct {
	repo           *store.Repository
	enhancer       Enhancer
	logger         *monitoring.Logger
	stats          *monitoring.Metrics
	enhanceTimeout time.Duration
}

// NewService creates a grading service. enhancer may be nil, in which case
// every grade is deterministic.
func NewService(repo *store.Repository, enhancer Enhancer, logger *monitoring.Logger, stats *monitoring.Metrics, enhanceTimeout time.Duration) *Service {
	if enhanceTimeout <= 0 {
		enhanceTimeout = DefaultEnhanceTimeout
	}
	return &Service{
		repo:           repo,
		enhancer:       enhancer,
		logger:         logger,
		stats:          stats,
		enhanceTimeout: enhanceTimeout,
	}
}

// Grade runs the full pipeline for a session and persists the final grade.
// A missing rubric is the caller's error; an enhancement failure is not.
func (s *Service) Grade(ctx context.Context, session *store.Session) (*Result, error) {
	start := time.Now()

	rub, err := rubric.Load(session.RubricID)
	if err != nil {
		return nil, err
	}

	basic := metrics.Extract(session.Transcript)
	det := rub.Score(session.Transcript)

	enhanced := s.enhance(ctx, session, rub)
	final := Merge(det, enhanced)
	outcome := Classify(final.Total, session.PersonaName, basic.DurationSeconds)

	metricsJSON, err := json.Marshal(basic)
	if err != nil {
		return nil, fmt.Errorf("marshal metrics: %w", err)
	}

	grade := &store.SessionGrade{
		SessionID:       session.ID,
		Total:           final.Total,
		Source:          final.Source,
		Axes:            final.Axes,
		Notes:           final.Notes,
		MetricsJSON:     string(metricsJSON),
		Outcome:         string(outcome),
		DurationSeconds: basic.DurationSeconds,
	}

	if err := s.repo.SaveSessionGrade(ctx, grade); err != nil {
		return nil, fmt.Errorf("save session grade: %w", err)
	}

	if s.stats != nil {
		s.stats.IncrementGradingRun()
	}
	if s.logger != nil {
		s.logger.GradingLogger(session.ID, session.RubricID, final.Source, final.Total, string(outcome), time.Since(start))
	}

	return &Result{
		Grade:   final,
		Outcome: outcome,
		Metrics: basic,
	}, nil
}

// enhance calls the external completion service under a timeout. Any failure
// downgrades to a nil grade so Merge falls back to the deterministic one.
func (s *Service) enhance(ctx context.Context, session *store.Session, rub *rubric.Rubric) *EnhancedGrade {
	if s.enhancer == nil {
		return nil
	}

	if s.stats != nil {
		s.stats.IncrementEnhancement()
	}

	ctx, cancel := context.WithTimeout(ctx, s.enhanceTimeout)
	defer cancel()

	enhanced, err := s.enhancer.Enhance(ctx, session.Transcript, rub)
	if err != nil {
		if s.stats != nil {
			s.stats.IncrementEnhancementFail()
		}
		if s.logger != nil {
			s.logger.Warn("Enhancement failed, using deterministic grade",
				"session_id", session.ID,
				"error", err.Error(),
			)
		}
		return nil
	}

	return enhanced
}
