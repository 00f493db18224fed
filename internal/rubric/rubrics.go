package rubric

import (
	"fmt"
	"strings"

	"github.com/pitchlab/gradepipe/internal/types"
)

// DefaultRubricID is used when the grading trigger doesn't name a rubric.
const DefaultRubricID = "sales-core"

func init() {
	Register(salesCore())
	Register(discoveryCall())
}

// salesCore is the standard four-axis rubric for practice sales calls:
// safety, value, time, and price, 0-5 each.
func salesCore() *Rubric {
	return &Rubric{
		ID:   DefaultRubricID,
		Name: "Core sales call",
		Axes: []Axis{
			{
				Key:      "safety",
				Label:    "Safety framing",
				MaxScore: 5,
				Detect: phraseAxis(phraseAxisArgs{
					speaker:    types.SpeakerRep,
					phrases:    []string{"safety", "safe", "protect", "secure", "peace of mind"},
					foundNote:  "Framed the offer around safety and protection",
					missedNote: "Never connected the offer to the customer's safety",
				}),
			},
			{
				Key:      "value",
				Label:    "Value articulation",
				MaxScore: 5,
				Detect: phraseAxis(phraseAxisArgs{
					speaker:    types.SpeakerRep,
					phrases:    []string{"value", "benefit", "save", "worth", "pays for itself", "guarantee", "warranty"},
					foundNote:  "Articulated concrete value for the customer",
					missedNote: "Value proposition never made it into the conversation",
				}),
			},
			{
				Key:      "time",
				Label:    "Respect for time",
				MaxScore: 5,
				Detect: phraseAxis(phraseAxisArgs{
					speaker:    types.SpeakerRep,
					phrases:    []string{"quick", "won't take long", "few minutes", "brief", "your time", "at your convenience"},
					foundNote:  "Acknowledged and respected the customer's time",
					missedNote: "No acknowledgment of the customer's time",
				}),
			},
			{
				Key:      "price",
				Label:    "Price clarity",
				MaxScore: 5,
				Detect: phraseAxis(phraseAxisArgs{
					speaker:    types.SpeakerRep,
					phrases:    []string{"price", "cost", "month", "payment", "financing", "no hidden", "total"},
					foundNote:  "Discussed pricing in plain terms",
					missedNote: "Pricing was never addressed directly",
				}),
			},
		},
	}
}

// discoveryCall scores the question-heavy early-funnel call style.
func discoveryCall() *Rubric {
	return &Rubric{
		ID:   "discovery-call",
		Name: "Discovery call",
		Axes: []Axis{
			{
				Key:      "open_questions",
				Label:    "Open questions",
				MaxScore: 5,
				Detect:   openQuestionAxis,
			},
			{
				Key:      "listening",
				Label:    "Active listening",
				MaxScore: 5,
				Detect: phraseAxis(phraseAxisArgs{
					speaker:    types.SpeakerRep,
					phrases:    []string{"it sounds like", "what i'm hearing", "so you're saying", "to make sure i understand", "tell me more"},
					foundNote:  "Reflected the customer's words back to them",
					missedNote: "No listening signals detected",
				}),
			},
			{
				Key:      "need_surfacing",
				Label:    "Need surfacing",
				MaxScore: 5,
				Detect: phraseAxis(phraseAxisArgs{
					speaker:    types.SpeakerRep,
					phrases:    []string{"what matters most", "biggest concern", "what's important", "what would change", "why now"},
					foundNote:  "Dug into what actually matters to the customer",
					missedNote: "Customer needs were never explored",
				}),
			},
		},
	}
}

type phraseAxisArgs struct {
	speaker    types.Speaker
	phrases    []string
	foundNote  string
	missedNote string
}

// phraseAxis builds a detector that scores one point per matching turn from
// the given speaker, with the matched turn quoted as a supporting reason.
func phraseAxis(args phraseAxisArgs) Detector {
	return func(t types.Transcript) AxisResult {
		result := AxisResult{Reasons: []string{}}

		for _, turn := range t {
			if turn.Speaker != args.speaker {
				continue
			}
			lower := strings.ToLower(turn.Text)
			for _, p := range args.phrases {
				if strings.Contains(lower, p) {
					result.Score++
					result.Reasons = append(result.Reasons, fmt.Sprintf("%s: %q", args.foundNote, snippet(turn.Text)))
					break
				}
			}
		}

		if result.Score == 0 {
			result.Reasons = []string{args.missedNote}
		} else {
			// Keep the standalone note first for coaching display.
			result.Reasons[0] = args.foundNote
		}
		return result
	}
}

// openQuestionAxis scores rep turns that open with interrogative phrasing
// and end in a question mark.
func openQuestionAxis(t types.Transcript) AxisResult {
	openers := []string{"what", "how", "why", "tell me", "walk me", "describe"}
	result := AxisResult{Reasons: []string{}}

	for _, turn := range t {
		if turn.Speaker != types.SpeakerRep {
			continue
		}
		text := strings.TrimSpace(turn.Text)
		if !strings.HasSuffix(text, "?") {
			continue
		}
		lower := strings.ToLower(text)
		for _, opener := range openers {
			if strings.HasPrefix(lower, opener) {
				result.Score++
				result.Reasons = append(result.Reasons, fmt.Sprintf("Asked an open question: %q", snippet(text)))
				break
			}
		}
	}

	if result.Score == 0 {
		result.Reasons = []string{"No open questions asked; the call stayed one-directional"}
	} else {
		result.Reasons[0] = "Used open questions to draw the customer out"
	}
	return result
}

const snippetLen = 60

func snippet(text string) string {
	if len(text) <= snippetLen {
		return text
	}
	return text[:snippetLen] + "..."
}
