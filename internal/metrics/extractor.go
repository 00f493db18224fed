// Package metrics derives numeric and boolean signals from a normalized
// transcript using text-pattern heuristics. No ML, no I/O: every function
// here is pure and synchronous, and extraction never fails: absent data
// defaults to zero values, a property callers rely on.
package metrics

import (
	"regexp"
	"strings"

	"github.com/pitchlab/gradepipe/internal/types"
)

// fallbackSecondsPerTurn estimates session duration when the transcript
// carries fewer than two timestamps.
const fallbackSecondsPerTurn = 4.0

// interruptionMaxLen is the text-length proxy for a cut-off customer
// utterance.
const interruptionMaxLen = 6

// rapportScoreCap bounds the rapport score.
const rapportScoreCap = 20

var fillerWords = []string{
	"um", "uh", "like", "you know", "so", "basically", "actually",
}

var valueKeywords = []string{
	"benefit", "value", "save", "protect", "safety", "warranty",
	"guarantee", "results", "solve",
}

var closingPhrases = []string{
	"schedule", "sign up", "get you started", "move forward", "next step",
	"when can we", "shall we", "ready to", "appointment", "book a",
	"lock in", "get started today",
}

var objectionPhrases = []string{
	"expensive", "too much", "price", "afford", "budget",
	"not sure", "think about it", "not right now", "call me later", "busy",
	"competitor", "already have", "someone else",
	"don't trust", "sounds like a scam", "pushy",
}

var resolutionPhrases = []string{
	"i understand", "i hear you", "that's fair", "great question",
	"good point", "a lot of our customers", "what if", "let me explain",
	"that said", "compared to",
}

var rapportPhrases = []string{
	"how are you", "how's your", "great to meet", "nice to meet",
	"thanks for taking", "appreciate you", "appreciate your",
	"good morning", "good afternoon", "hope you're",
}

// fillerPatterns is built once; each filler is matched as a whole word,
// case-insensitively, so "um" does not match "number".
var fillerPatterns = buildFillerPatterns()

func buildFillerPatterns() []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, 0, len(fillerWords))
	for _, w := range fillerWords {
		patterns = append(patterns, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(w)+`\b`))
	}
	return patterns
}

// BasicMetrics is the derived signal bundle for one transcript. It is
// computed once per transcript and never persisted independently of it.
type BasicMetrics struct {
	TotalTurns    int `json:"total_turns"`
	RepTurns      int `json:"rep_turns"`
	CustomerTurns int `json:"customer_turns"`

	DurationSeconds    float64 `json:"duration_seconds"`
	TimeToValueSeconds float64 `json:"time_to_value_seconds"`

	QuestionCount int      `json:"question_count"`
	KeyQuestions  []string `json:"key_questions"`

	FillerWordCount   int `json:"filler_word_count"`
	InterruptionCount int `json:"interruption_count"`

	ObjectionsRaised   int `json:"objections_raised"`
	ObjectionsResolved int `json:"objections_resolved"`

	RapportScore int `json:"rapport_score"`

	CloseAttempted   bool   `json:"close_attempted"`
	ClosingTechnique string `json:"closing_technique"`

	FirstCustomerUtterance string `json:"first_customer_utterance"`
	LastCustomerUtterance  string `json:"last_customer_utterance"`
}

// Extract computes BasicMetrics from a transcript. It never returns an
// error: an empty transcript produces zero-valued metrics.
func Extract(t types.Transcript) BasicMetrics {
	m := BasicMetrics{
		TotalTurns:   len(t),
		KeyQuestions: []string{},
	}

	var repText strings.Builder
	for i, turn := range t {
		switch turn.Speaker {
		case types.SpeakerRep:
			m.RepTurns++
			repText.WriteString(turn.Text)
			repText.WriteString(" ")
		case types.SpeakerCustomer:
			m.CustomerTurns++
			if m.FirstCustomerUtterance == "" {
				m.FirstCustomerUtterance = turn.Text
			}
			m.LastCustomerUtterance = turn.Text

			if strings.HasSuffix(strings.TrimRight(turn.Text, " \t\r\n"), "?") {
				m.QuestionCount++
				m.KeyQuestions = append(m.KeyQuestions, turn.Text)
			}

			// Short customer turn cut off by the rep reads as an
			// interruption.
			if i+1 < len(t) && t[i+1].Speaker == types.SpeakerRep && len(turn.Text) < interruptionMaxLen {
				m.InterruptionCount++
			}
		}
	}

	m.DurationSeconds = duration(t)
	m.FillerWordCount = countFillers(repText.String())
	m.TimeToValueSeconds = timeToValue(t, m.DurationSeconds)
	m.CloseAttempted, m.ClosingTechnique = detectClose(t)
	m.ObjectionsRaised = countTurns(t, types.SpeakerCustomer, objectionPhrases)
	// Independently counted; resolved may exceed raised.
	m.ObjectionsResolved = countTurns(t, types.SpeakerRep, resolutionPhrases)
	m.RapportScore = rapportScore(t, m.QuestionCount)

	return m
}

// duration returns last-first timestamp spacing in seconds when at least two
// turns carry timestamps, clamped to >= 0, otherwise a per-turn estimate.
func duration(t types.Transcript) float64 {
	var first, last float64
	stamped := 0
	for i := range t {
		if t[i].Timestamp == nil {
			continue
		}
		if stamped == 0 {
			first = *t[i].Timestamp
		}
		last = *t[i].Timestamp
		stamped++
	}

	if stamped >= 2 {
		d := last - first
		if d < 0 {
			d = 0
		}
		return d
	}

	return fallbackSecondsPerTurn * float64(len(t))
}

func countFillers(repText string) int {
	count := 0
	for _, p := range fillerPatterns {
		count += len(p.FindAllStringIndex(repText, -1))
	}
	return count
}

// timeToValue returns the elapsed time until the first rep turn that signals
// value. With no timestamps the elapsed time is estimated from the turn
// index; with no value turn at all it equals the full duration.
func timeToValue(t types.Transcript, fullDuration float64) float64 {
	var first *float64
	for i := range t {
		if t[i].Timestamp != nil {
			first = t[i].Timestamp
			break
		}
	}

	for i, turn := range t {
		if turn.Speaker != types.SpeakerRep {
			continue
		}
		if !containsAny(strings.ToLower(turn.Text), valueKeywords) {
			continue
		}
		if turn.Timestamp != nil && first != nil {
			elapsed := *turn.Timestamp - *first
			if elapsed < 0 {
				elapsed = 0
			}
			return elapsed
		}
		return fallbackSecondsPerTurn * float64(i)
	}

	return fullDuration
}

func detectClose(t types.Transcript) (bool, string) {
	for _, turn := range t {
		if turn.Speaker != types.SpeakerRep {
			continue
		}
		if containsAny(strings.ToLower(turn.Text), closingPhrases) {
			return true, "commitment ask"
		}
	}
	return false, ""
}

func countTurns(t types.Transcript, speaker types.Speaker, phrases []string) int {
	count := 0
	for _, turn := range t {
		if turn.Speaker != speaker {
			continue
		}
		if containsAny(strings.ToLower(turn.Text), phrases) {
			count++
		}
	}
	return count
}

func rapportScore(t types.Transcript, customerQuestions int) int {
	score := countTurns(t, types.SpeakerRep, rapportPhrases)
	if customerQuestions > 2 {
		score += 5
	}
	if score > rapportScoreCap {
		score = rapportScoreCap
	}
	return score
}

func containsAny(lower string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
