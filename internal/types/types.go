package types

// Speaker identifies which side of the conversation produced a turn.
type Speaker string

const (
	SpeakerRep      Speaker = "rep"
	SpeakerCustomer Speaker = "customer"
)

// Turn represents a single utterance within a conversation. Timestamp is
// optional; a nil value means the transcript source did not record one.
// Turns are immutable once produced.
type Turn struct {
	Speaker   Speaker  `json:"speaker"`
	Text      string   `json:"text"`
	Timestamp *float64 `json:"timestamp,omitempty"`
}

// Transcript is the ordered sequence of turns for one session. Insertion
// order is conversational order. Grading treats it as read-only input.
type Transcript []Turn

// RawTurn is an unprocessed turn record as delivered by the transcript
// provider. Speaker labels vary by vendor and are canonicalized by the
// normalizer before grading.
type RawTurn struct {
	Speaker   string   `json:"speaker"`
	Role      string   `json:"role,omitempty"`
	Text      string   `json:"text"`
	Message   string   `json:"message,omitempty"`
	Timestamp *float64 `json:"timestamp,omitempty"`
}

// GradeRequest represents the request structure for the grading trigger
// endpoint.
type GradeRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	RubricID  string `json:"rubric_id,omitempty"`
}

// GradeResponse is returned synchronously while batch grading proceeds
// asynchronously.
type GradeResponse struct {
	Success      bool   `json:"success"`
	SessionID    string `json:"session_id"`
	TotalBatches int    `json:"total_batches"`
	JobsQueued   int    `json:"jobs_queued"`
}

// StatusResponse is the polling payload for the status endpoint.
type StatusResponse struct {
	SessionID        string `json:"session_id"`
	Status           string `json:"status"`
	TotalBatches     int    `json:"total_batches"`
	CompletedBatches int    `json:"completed_batches"`
}
