package grading

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		total    float64
		persona  string
		duration float64
		expected Outcome
	}{
		{
			name:     "decisive persona passes under ten minutes",
			total:    75,
			persona:  "Decisive Dan",
			duration: 500,
			expected: OutcomeSuccess,
		},
		{
			name:     "decisive persona fails when the call runs long",
			total:    75,
			persona:  "Decisive Dan",
			duration: 700,
			expected: OutcomeFailure,
		},
		{
			name:     "skeptical persona just under the bar",
			total:    119,
			persona:  "Skeptical Sarah",
			duration: 300,
			expected: OutcomeFailure,
		},
		{
			name:     "skeptical persona at the bar",
			total:    120,
			persona:  "Skeptical Sarah",
			duration: 300,
			expected: OutcomeSuccess,
		},
		{
			name:     "budget persona threshold",
			total:    80,
			persona:  "Budget-conscious Bill",
			duration: 300,
			expected: OutcomeSuccess,
		},
		{
			name:     "budget persona below threshold",
			total:    79,
			persona:  "Budget-conscious Bill",
			duration: 300,
			expected: OutcomeFailure,
		},
		{
			name:     "analytical persona uses the high bar",
			total:    100,
			persona:  "Analytical Alice",
			duration: 300,
			expected: OutcomeFailure,
		},
		{
			name:     "default persona just under",
			total:    69,
			persona:  "Average Austin",
			duration: 300,
			expected: OutcomeFailure,
		},
		{
			name:     "default persona at the bar",
			total:    70,
			persona:  "Average Austin",
			duration: 300,
			expected: OutcomeSuccess,
		},
		{
			name:     "matching is case-insensitive",
			total:    75,
			persona:  "DECISIVE DANIELLE",
			duration: 100,
			expected: OutcomeSuccess,
		},
		{
			name:     "first matching rule wins",
			total:    85,
			persona:  "decisive but skeptical", // decisive rule applies, not skeptical's 120
			duration: 100,
			expected: OutcomeSuccess,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.total, tt.persona, tt.duration))
		})
	}
}
