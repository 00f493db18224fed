// Package enhance calls the external text-completion service for the
// optional higher-quality grading pass. The service is untrusted and
// fallible: every failure mode here (network errors, timeouts, malformed
// JSON, a missing total) is recovered by the aggregator falling back to the
// deterministic grade, so nothing in this package is fatal to grading.
package enhance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pitchlab/gradepipe/internal/grading"
	"github.com/pitchlab/gradepipe/internal/resilience"
	"github.com/pitchlab/gradepipe/internal/rubric"
	"github.com/pitchlab/gradepipe/internal/types"
)

// DefaultTimeout bounds each completion call. A hung enhancement must not
// block the deterministic path.
const DefaultTimeout = 20 * time.Second

// Client talks to the text-completion service.
type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
}

// NewClient creates a completion client. An empty baseURL produces a client
// whose Enhance always reports the service as unconfigured; callers treat
// that like any other enhancement failure.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		timeout: timeout,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		breaker: resilience.NewCircuitBreaker(resilience.BreakerConfig{
			FailureThreshold: 5,
			RecoveryTimeout:  30 * time.Second,
		}),
	}
}

// completionRequest is the rubric-shaped prompt payload.
type completionRequest struct {
	Prompt     string   `json:"prompt"`
	Transcript string   `json:"transcript"`
	AxisKeys   []string `json:"axis_keys"`
}

// completionResponse mirrors the EnhancedGrade shape. Total stays a raw
// JSON value until validated as numeric.
type completionResponse struct {
	Total json.RawMessage `json:"total"`
	Axes  map[string]int  `json:"axes"`
	Notes []string        `json:"notes"`
}

// Enhance requests an enhanced grade for the transcript against the rubric.
// Returns an error for every non-usable outcome; it never fabricates a
// grade.
func (c *Client) Enhance(ctx context.Context, t types.Transcript, r *rubric.Rubric) (*grading.EnhancedGrade, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("completion service not configured")
	}

	var grade *grading.EnhancedGrade
	err := c.breaker.Call(func() error {
		var callErr error
		grade, callErr = c.call(ctx, t, r)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return grade, nil
}

func (c *Client) call(ctx context.Context, t types.Transcript, r *rubric.Rubric) (*grading.EnhancedGrade, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(completionRequest{
		Prompt:     buildPrompt(r),
		Transcript: renderTranscript(t),
		AxisKeys:   r.AxisKeys(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/grade", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("completion service error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var cr completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, fmt.Errorf("failed to decode completion response: %w", err)
	}

	return toEnhancedGrade(cr)
}

// toEnhancedGrade validates the untrusted payload. A missing, null, or
// non-numeric total is rejected here rather than poisoning the merge.
func toEnhancedGrade(cr completionResponse) (*grading.EnhancedGrade, error) {
	if len(cr.Total) == 0 || string(cr.Total) == "null" {
		return nil, fmt.Errorf("completion response has no total")
	}

	var total float64
	if err := json.Unmarshal(cr.Total, &total); err != nil {
		return nil, fmt.Errorf("completion response total is not numeric: %w", err)
	}

	return &grading.EnhancedGrade{
		Total: &total,
		Axes:  cr.Axes,
		Notes: cr.Notes,
	}, nil
}

func buildPrompt(r *rubric.Rubric) string {
	var b strings.Builder
	b.WriteString("Grade this sales practice call against the following axes. ")
	b.WriteString("Respond with JSON {total, axes, notes}.\n")
	for _, axis := range r.Axes {
		fmt.Fprintf(&b, "- %s (%s): 0-%d\n", axis.Key, axis.Label, axis.MaxScore)
	}
	return b.String()
}

func renderTranscript(t types.Transcript) string {
	var b strings.Builder
	for _, turn := range t {
		fmt.Fprintf(&b, "%s: %s\n", turn.Speaker, turn.Text)
	}
	return b.String()
}
