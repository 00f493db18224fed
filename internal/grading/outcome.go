package grading

import "strings"

// Outcome is the binary deal-closed classification for a session.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailure Outcome = "FAILURE"
)

// personaRule pairs a persona-name substring with its pass condition.
// Rules are evaluated in order and the first substring match wins, so later
// rules are unreachable once an earlier one matches.
type personaRule struct {
	keyword string
	passes  func(total, durationSeconds float64) bool
}

// The thresholds mix two score scales (70 vs 120) because they come from
// different rubrics applied to different persona pools. Do not unify the
// scales; downstream reporting depends on the exact values.
var personaRules = []personaRule{
	{"decisive", func(total, duration float64) bool { return total >= 70 && duration < 600 }},
	{"skeptical", func(total, _ float64) bool { return total >= 120 }},
	{"budget", func(total, _ float64) bool { return total >= 80 }},
	{"analytical", func(total, _ float64) bool { return total >= 120 }},
}

func defaultRule(total, _ float64) bool { return total >= 70 }

// Classify maps a final grade total, persona name, and session duration to
// an outcome. Persona matching is a case-insensitive substring check.
func Classify(total float64, personaName string, durationSeconds float64) Outcome {
	name := strings.ToLower(personaName)

	rule := defaultRule
	for _, pr := range personaRules {
		if strings.Contains(name, pr.keyword) {
			rule = pr.passes
			break
		}
	}

	if rule(total, durationSeconds) {
		return OutcomeSuccess
	}
	return OutcomeFailure
}
