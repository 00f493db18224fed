// Package rubric scores transcripts against named, swappable criteria sets.
// A rubric is an ordered list of axes, each with its own max score and
// detector. Detectors are deterministic and side-effect-free: scoring the
// same (transcript, rubric) pair twice yields bit-identical results, which
// the batch queue's idempotent-retry guarantee depends on.
package rubric

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pitchlab/gradepipe/internal/types"
)

// AxisResult holds one axis's score and its ordered, human-readable reasons.
// The first reason must stand alone as a coaching note.
type AxisResult struct {
	Score   int      `json:"score"`
	Reasons []string `json:"reasons"`
}

// Detector scans a transcript and produces an axis result. Implementations
// must be pure functions of the transcript.
type Detector func(t types.Transcript) AxisResult

// Axis is one scored dimension of a rubric.
type Axis struct {
	Key      string
	Label    string
	MaxScore int
	Detect   Detector
}

// Rubric is a named, ordered set of axes.
type Rubric struct {
	ID   string
	Name string
	Axes []Axis
}

// DeterministicGrade is the result of scoring a transcript against a rubric.
// Total is the plain sum of axis scores; axes are never averaged or
// normalized beyond their own declared max.
type DeterministicGrade struct {
	RubricID string                `json:"rubric_id"`
	Total    int                   `json:"total"`
	Axes     map[string]AxisResult `json:"axes"`
}

// Score evaluates every axis against the transcript, clamping each axis
// score into [0, MaxScore].
func (r *Rubric) Score(t types.Transcript) DeterministicGrade {
	grade := DeterministicGrade{
		RubricID: r.ID,
		Axes:     make(map[string]AxisResult, len(r.Axes)),
	}

	for _, axis := range r.Axes {
		result := axis.Detect(t)
		if result.Score < 0 {
			result.Score = 0
		}
		if result.Score > axis.MaxScore {
			result.Score = axis.MaxScore
		}
		grade.Axes[axis.Key] = result
		grade.Total += result.Score
	}

	return grade
}

// AxisKeys returns the rubric's axis keys in declaration order.
func (r *Rubric) AxisKeys() []string {
	keys := make([]string, 0, len(r.Axes))
	for _, axis := range r.Axes {
		keys = append(keys, axis.Key)
	}
	return keys
}

// NotFoundError reports a rubric lookup against an unknown identifier.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("rubric %q not found", e.ID)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]*Rubric)
)

// Register adds a rubric to the global registry, replacing any rubric with
// the same ID.
func Register(r *Rubric) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[r.ID] = r
}

// Load returns the rubric registered under id, or a *NotFoundError.
func Load(id string) (*Rubric, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	r, ok := registry[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	return r, nil
}

// IDs returns the registered rubric identifiers, sorted.
func IDs() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
