package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pitchlab/gradepipe/internal/cache"
	"github.com/pitchlab/gradepipe/internal/dispatch"
	apperrors "github.com/pitchlab/gradepipe/internal/errors"
	"github.com/pitchlab/gradepipe/internal/grading"
	"github.com/pitchlab/gradepipe/internal/monitoring"
	"github.com/pitchlab/gradepipe/internal/provider"
	"github.com/pitchlab/gradepipe/internal/ratelimit"
	"github.com/pitchlab/gradepipe/internal/rubric"
	"github.com/pitchlab/gradepipe/internal/store"
	"github.com/pitchlab/gradepipe/internal/transcript"
	"github.com/pitchlab/gradepipe/internal/types"
)

// server wires the HTTP handlers to the grading pipeline.
type server struct {
	repo        *store.Repository
	grader      *grading.Service
	dispatcher  *dispatch.Dispatcher
	provider    *provider.Client
	convCache   *cache.Cache[*provider.Conversation]
	statusCache *cache.Cache[*types.StatusResponse]
	logger      *monitoring.Logger
	metrics     *monitoring.Metrics
	limiter     *ratelimit.RateLimiter
}

// newRouter builds the gin engine with all middleware and routes.
func newRouter(s *server, corsMiddleware gin.HandlerFunc) *gin.Engine {
	r := gin.New()

	r.Use(monitoring.RequestMiddleware(s.metrics, s.logger))
	r.Use(apperrors.ErrorHandler())
	r.Use(apperrors.RecoveryHandler())
	if corsMiddleware != nil {
		r.Use(corsMiddleware)
	}

	r.GET("/health", s.handleHealth)

	api := r.Group("/api")
	if s.limiter != nil {
		api.POST("/grade", s.limiter.GradeLimitMiddleware(), s.handleGrade)
		api.GET("/grade/:session_id/status", s.limiter.StatusLimitMiddleware(), s.handleStatus)
	} else {
		api.POST("/grade", s.handleGrade)
		api.GET("/grade/:session_id/status", s.handleStatus)
	}

	return r
}

func (s *server) handleHealth(c *gin.Context) {
	response := gin.H{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   "1.0.0",
		"rubrics":   rubric.IDs(),
		"metrics":   s.metrics.GetStats(),
	}
	if s.limiter != nil {
		response["rate_limiter"] = s.limiter.GetStats()
	}

	c.JSON(http.StatusOK, response)
}

// handleGrade runs the synchronous grading pipeline and fans line-level
// grading out over the queue. The response returns as soon as the jobs are
// enqueued; batch grading proceeds asynchronously.
func (s *server) handleGrade(c *gin.Context) {
	var req types.GradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, apperrors.NewValidationError("session_id is required"))
		return
	}

	ctx := c.Request.Context()

	session, appErr := s.loadSession(ctx, req.SessionID)
	if appErr != nil {
		s.respondError(c, appErr)
		return
	}

	if len(session.Transcript) == 0 {
		s.respondError(c, apperrors.NewValidationError("session transcript is empty"))
		return
	}

	if req.RubricID != "" {
		session.RubricID = req.RubricID
	}
	if session.RubricID == "" {
		session.RubricID = rubric.DefaultRubricID
	}

	if _, err := s.grader.Grade(ctx, session); err != nil {
		var notFound *rubric.NotFoundError
		if errors.As(err, &notFound) {
			s.respondError(c, apperrors.NewNotFoundError("unknown rubric: "+notFound.ID, err))
			return
		}
		s.respondError(c, apperrors.NewInternalError("grading failed", err))
		return
	}

	totalBatches, jobsQueued, err := s.dispatcher.Dispatch(ctx, session)
	if err != nil {
		s.respondError(c, apperrors.NewInternalError("failed to enqueue grading jobs", err))
		return
	}

	// A fresh run invalidates any cached status snapshot.
	s.statusCache.Delete(session.ID)

	c.JSON(http.StatusOK, types.GradeResponse{
		Success:      true,
		SessionID:    session.ID,
		TotalBatches: totalBatches,
		JobsQueued:   jobsQueued,
	})
}

func (s *server) handleStatus(c *gin.Context) {
	sessionID := c.Param("session_id")

	if cached, ok := s.statusCache.Get(sessionID); ok {
		c.JSON(http.StatusOK, cached)
		return
	}

	status, err := s.repo.GetStatus(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.respondError(c, apperrors.NewNotFoundError("no grading run for session: "+sessionID, err))
			return
		}
		s.respondError(c, apperrors.NewInternalError("failed to load grading status", err))
		return
	}

	response := &types.StatusResponse{
		SessionID:        status.SessionID,
		Status:           status.Status,
		TotalBatches:     status.TotalBatches,
		CompletedBatches: status.CompletedBatches,
	}
	s.statusCache.Set(sessionID, response)

	c.JSON(http.StatusOK, response)
}

// loadSession returns the stored session, or pulls the conversation from the
// transcript provider on a miss and persists it under the requested ID.
func (s *server) loadSession(ctx context.Context, sessionID string) (*store.Session, *apperrors.AppError) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.NewInternalError("failed to load session", err)
	}

	if s.provider == nil {
		return nil, apperrors.NewNotFoundError("session not found: "+sessionID, err)
	}

	conv, ok := s.convCache.Get(sessionID)
	if !ok {
		conv, err = s.provider.FetchTranscript(ctx, sessionID)
		if err != nil {
			return nil, apperrors.NewExternalAPIError("transcript provider", err)
		}
		s.convCache.Set(sessionID, conv)
	}

	normalized := transcript.Normalize(conv.Turns)
	if len(normalized) == 0 {
		return nil, apperrors.NewValidationError("conversation has no usable turns")
	}

	session = store.NewSession(conv.PersonaName, conv.RepName, rubric.DefaultRubricID, normalized)
	session.ID = sessionID
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, apperrors.NewInternalError("failed to persist session", err)
	}

	return session, nil
}

func (s *server) respondError(c *gin.Context, appErr *apperrors.AppError) {
	apperrors.LogError(c, appErr)
	c.JSON(appErr.HTTPStatus, appErr)
}
