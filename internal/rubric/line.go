package rubric

import (
	"regexp"
	"strings"

	"github.com/pitchlab/gradepipe/internal/types"
)

// LineGrade is the per-utterance score produced by the batch workers.
type LineGrade struct {
	Index   int           `json:"index"`
	Speaker types.Speaker `json:"speaker"`
	Score   int           `json:"score"`
	Note    string        `json:"note"`
}

const lineMaxScore = 10

var lineFillerPattern = regexp.MustCompile(`(?i)\b(um|uh|like|basically)\b`)

var lineValueWords = []string{
	"benefit", "value", "save", "protect", "warranty", "guarantee", "results",
}

// ScoreLines grades a slice of turns individually. Indexes are relative to
// the slice; callers offset them by the batch's position. Deterministic:
// the same lines always produce the same grades.
func ScoreLines(lines []types.Turn) []LineGrade {
	grades := make([]LineGrade, 0, len(lines))
	for i, turn := range lines {
		g := ScoreLine(turn)
		g.Index = i
		grades = append(grades, g)
	}
	return grades
}

// ScoreLine grades a single utterance on a 0-10 scale. Customer turns are
// passed through ungraded; only rep delivery is coached.
func ScoreLine(turn types.Turn) LineGrade {
	grade := LineGrade{Speaker: turn.Speaker}

	if turn.Speaker != types.SpeakerRep {
		grade.Note = "customer turn, not graded"
		return grade
	}

	score := 5
	notes := []string{}

	lower := strings.ToLower(turn.Text)
	trimmed := strings.TrimSpace(turn.Text)

	if strings.HasSuffix(trimmed, "?") {
		score += 2
		notes = append(notes, "engages with a question")
	}
	for _, w := range lineValueWords {
		if strings.Contains(lower, w) {
			score += 2
			notes = append(notes, "mentions concrete value")
			break
		}
	}

	fillers := len(lineFillerPattern.FindAllString(turn.Text, -1))
	if fillers > 0 {
		score -= fillers
		notes = append(notes, "filler words weaken delivery")
	}
	if len(trimmed) < 10 {
		score--
		notes = append(notes, "too short to carry the conversation")
	}

	if score < 0 {
		score = 0
	}
	if score > lineMaxScore {
		score = lineMaxScore
	}

	grade.Score = score
	if len(notes) == 0 {
		grade.Note = "solid delivery"
	} else {
		grade.Note = strings.Join(notes, "; ")
	}
	return grade
}
