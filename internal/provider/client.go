// Package provider fetches raw conversation transcripts from the external
// transcript provider. Transient failures are retried with backoff before
// the grading trigger gives up.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pitchlab/gradepipe/internal/resilience"
	"github.com/pitchlab/gradepipe/internal/types"
)

// Conversation is the provider's record for one finished practice call.
type Conversation struct {
	ConversationID string          `json:"conversation_id"`
	PersonaName    string          `json:"persona_name"`
	RepName        string          `json:"rep_name"`
	Turns          []types.RawTurn `json:"turns"`
}

// Client talks to the conversation-transcript provider.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      resilience.RetryConfig
}

// NewClient creates a transcript provider client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		retry: resilience.DefaultRetryConfig(),
	}
}

// FetchTranscript returns the conversation record for an opaque
// conversation identifier, retrying transient failures.
func (c *Client) FetchTranscript(ctx context.Context, conversationID string) (*Conversation, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("transcript provider not configured")
	}

	var conv *Conversation
	err := resilience.Retry(ctx, c.retry, func() error {
		var callErr error
		conv, callErr = c.fetch(ctx, conversationID)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

func (c *Client) fetch(ctx context.Context, conversationID string) (*Conversation, error) {
	url := fmt.Sprintf("%s/v1/conversations/%s/transcript", c.baseURL, conversationID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build transcript request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transcript request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("transcript provider error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var conv Conversation
	if err := json.NewDecoder(resp.Body).Decode(&conv); err != nil {
		return nil, fmt.Errorf("failed to decode transcript: %w", err)
	}

	return &conv, nil
}
