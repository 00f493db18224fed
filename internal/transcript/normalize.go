// Package transcript canonicalizes raw turn records from the conversation
// provider into the Transcript shape the grading pipeline consumes.
package transcript

import (
	"strings"

	"github.com/pitchlab/gradepipe/internal/types"
)

// repLabels and customerLabels map the speaker spellings observed across
// transcript vendors onto the two canonical roles. Matching is
// case-insensitive on the trimmed label.
var (
	repLabels = map[string]bool{
		"rep":       true,
		"agent":     true,
		"assistant": true,
		"seller":    true,
		"sales_rep": true,
		"user":      true,
	}
	customerLabels = map[string]bool{
		"customer": true,
		"prospect": true,
		"caller":   true,
		"buyer":    true,
		"bot":      true,
		"persona":  true,
	}
)

// Normalize converts raw provider records into a canonical Transcript.
// Records with no usable text are dropped; unrecognized speaker labels
// default to the customer role so rep-only heuristics stay conservative.
// Normalize never fails: a nil or empty input yields an empty Transcript.
func Normalize(raw []types.RawTurn) types.Transcript {
	out := make(types.Transcript, 0, len(raw))
	for _, r := range raw {
		text := r.Text
		if text == "" {
			text = r.Message
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		label := r.Speaker
		if label == "" {
			label = r.Role
		}

		out = append(out, types.Turn{
			Speaker:   canonicalSpeaker(label),
			Text:      text,
			Timestamp: r.Timestamp,
		})
	}
	return out
}

func canonicalSpeaker(label string) types.Speaker {
	key := strings.ToLower(strings.TrimSpace(label))
	switch {
	case repLabels[key]:
		return types.SpeakerRep
	case customerLabels[key]:
		return types.SpeakerCustomer
	default:
		return types.SpeakerCustomer
	}
}
