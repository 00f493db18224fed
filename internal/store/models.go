package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/pitchlab/gradepipe/internal/types"
)

// Grading status values. queued -> processing -> complete; the terminal
// transition happens exactly once, inside the counter increment.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusComplete   = "complete"
)

// Session is the parent record a grading run converges on.
type Session struct {
	ID          string           `json:"id"`
	PersonaName string           `json:"persona_name"`
	RepName     string           `json:"rep_name,omitempty"`
	RubricID    string           `json:"rubric_id"`
	Transcript  types.Transcript `json:"transcript"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// NewSession creates a session with a generated ID.
func NewSession(personaName, repName, rubricID string, transcript types.Transcript) *Session {
	now := time.Now()
	return &Session{
		ID:          uuid.New().String(),
		PersonaName: personaName,
		RepName:     repName,
		RubricID:    rubricID,
		Transcript:  transcript,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// SessionGrade is the persisted grading result for one session.
type SessionGrade struct {
	SessionID       string         `json:"session_id"`
	Total           float64        `json:"total"`
	Source          string         `json:"source"`
	Axes            map[string]int `json:"axes"`
	Notes           []string       `json:"notes"`
	MetricsJSON     string         `json:"-"`
	Outcome         string         `json:"outcome"`
	DurationSeconds float64        `json:"duration_seconds"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// GradingStatus tracks how many of a session's batches have completed.
// CompletedBatches is monotonically non-decreasing.
type GradingStatus struct {
	SessionID        string    `json:"session_id"`
	Status           string    `json:"status"`
	TotalBatches     int       `json:"total_batches"`
	CompletedBatches int       `json:"completed_batches"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// BatchResult is the write-once partial result for one batch of one session.
type BatchResult struct {
	SessionID  string    `json:"session_id"`
	BatchIndex int       `json:"batch_index"`
	LineGrades string    `json:"line_grades"` // JSON payload
	CreatedAt  time.Time `json:"created_at"`
}
