package batch

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitchlab/gradepipe/internal/types"
)

func makeTranscript(n int) types.Transcript {
	t := make(types.Transcript, 0, n)
	for i := 0; i < n; i++ {
		speaker := types.SpeakerRep
		if i%2 == 1 {
			speaker = types.SpeakerCustomer
		}
		t = append(t, types.Turn{Speaker: speaker, Text: fmt.Sprintf("turn %d", i)})
	}
	return t
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name      string
		turns     int
		batchSize int
		expected  []int // lines per batch
	}{
		{name: "empty transcript", turns: 0, batchSize: 5, expected: []int{}},
		{name: "exact multiple", turns: 10, batchSize: 5, expected: []int{5, 5}},
		{name: "short last batch", turns: 12, batchSize: 5, expected: []int{5, 5, 2}},
		{name: "single short batch", turns: 3, batchSize: 5, expected: []int{3}},
		{name: "batch size one", turns: 3, batchSize: 1, expected: []int{1, 1, 1}},
		{name: "non-positive size uses default", turns: 7, batchSize: 0, expected: []int{5, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batches := Split(makeTranscript(tt.turns), tt.batchSize)

			require.Len(t, batches, len(tt.expected))
			for i, b := range batches {
				assert.Equal(t, i, b.BatchIndex)
				assert.Len(t, b.Lines, tt.expected[i])
			}
		})
	}
}

func TestSplitCoversTranscriptExactly(t *testing.T) {
	for _, size := range []int{1, 2, 3, 5, 7, 100} {
		t.Run(fmt.Sprintf("size %d", size), func(t *testing.T) {
			transcript := makeTranscript(23)
			batches := Split(transcript, size)

			// Concatenating all batch lines recovers the transcript exactly:
			// no duplicates, no omissions, original order.
			reassembled := types.Transcript{}
			for _, b := range batches {
				reassembled = append(reassembled, b.Lines...)
			}
			assert.Equal(t, transcript, reassembled)
		})
	}
}

func TestSplitIsDeterministic(t *testing.T) {
	transcript := makeTranscript(17)

	first := Split(transcript, 5)
	second := Split(transcript, 5)

	assert.Equal(t, first, second)
}
