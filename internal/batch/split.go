// Package batch partitions a transcript into fixed-size line batches, the
// unit of parallel grading work.
package batch

import "github.com/pitchlab/gradepipe/internal/types"

// DefaultBatchSize is used when the caller doesn't configure one.
const DefaultBatchSize = 5

// GradingBatch is a contiguous slice of a transcript's turns. Created once
// by Split, consumed exactly once by a worker, never mutated afterwards.
type GradingBatch struct {
	BatchIndex int          `json:"batch_index"`
	Lines      []types.Turn `json:"lines"`
	BatchSize  int          `json:"batch_size"`
}

// Split partitions the transcript into batches of at most batchSize turns,
// in original order, last batch possibly shorter. The partition is pure and
// deterministic: the same transcript and size always produce the same
// batches with the same indices, which the status tracker's bookkeeping
// depends on. A non-positive batchSize falls back to DefaultBatchSize.
func Split(t types.Transcript, batchSize int) []GradingBatch {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	batches := make([]GradingBatch, 0, (len(t)+batchSize-1)/batchSize)
	for start := 0; start < len(t); start += batchSize {
		end := start + batchSize
		if end > len(t) {
			end = len(t)
		}
		batches = append(batches, GradingBatch{
			BatchIndex: len(batches),
			Lines:      t[start:end],
			BatchSize:  batchSize,
		})
	}

	return batches
}
