// Package grading merges deterministic and enhanced grades into a final
// grade, classifies the session outcome, and orchestrates the synchronous
// grading pipeline.
package grading

import (
	"sort"

	"github.com/pitchlab/gradepipe/internal/rubric"
)

// maxNotes caps the coaching notes carried on a final grade.
const maxNotes = 3

// Grade sources recorded on FinalGrade.
const (
	SourceDeterministic = "deterministic"
	SourceEnhanced      = "enhanced"
)

// EnhancedGrade is the result of the external text-completion pass. It is
// non-deterministic and fallible: Total is a pointer so a malformed payload
// (missing or non-numeric total) is distinguishable from a zero score.
type EnhancedGrade struct {
	Total *float64       `json:"total"`
	Axes  map[string]int `json:"axes"`
	Notes []string       `json:"notes"`
}

// Valid reports whether the enhanced grade can supersede the deterministic
// one. The completion service is untrusted input; only a defined numeric
// total qualifies.
func (e *EnhancedGrade) Valid() bool {
	return e != nil && e.Total != nil
}

// FinalGrade is what gets persisted on the session.
type FinalGrade struct {
	Total  float64        `json:"total"`
	Axes   map[string]int `json:"axes"`
	Notes  []string       `json:"notes"`
	Source string         `json:"source"`
}

// Merge applies the override-not-blend policy: a valid enhanced grade
// replaces the deterministic grade in its entirety, axes and notes included.
// Otherwise the final grade is built from the deterministic one, with notes
// assembled from the first reason of each axis that produced any.
func Merge(det rubric.DeterministicGrade, enh *EnhancedGrade) FinalGrade {
	if enh.Valid() {
		axes := make(map[string]int, len(enh.Axes))
		for k, v := range enh.Axes {
			axes[k] = v
		}
		notes := enh.Notes
		if len(notes) > maxNotes {
			notes = notes[:maxNotes]
		}
		return FinalGrade{
			Total:  *enh.Total,
			Axes:   axes,
			Notes:  append([]string{}, notes...),
			Source: SourceEnhanced,
		}
	}

	axes := make(map[string]int, len(det.Axes))
	for k, v := range det.Axes {
		axes[k] = v.Score
	}

	notes := make([]string, 0, maxNotes)
	for _, key := range axisOrder(det) {
		if len(notes) == maxNotes {
			break
		}
		if reasons := det.Axes[key].Reasons; len(reasons) > 0 {
			notes = append(notes, reasons[0])
		}
	}

	return FinalGrade{
		Total:  float64(det.Total),
		Axes:   axes,
		Notes:  notes,
		Source: SourceDeterministic,
	}
}

// axisOrder keeps note assembly deterministic regardless of map iteration.
func axisOrder(det rubric.DeterministicGrade) []string {
	if r, err := rubric.Load(det.RubricID); err == nil {
		return r.AxisKeys()
	}
	keys := make([]string, 0, len(det.Axes))
	for k := range det.Axes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
