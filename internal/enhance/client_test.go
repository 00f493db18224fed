package enhance

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitchlab/gradepipe/internal/rubric"
	"github.com/pitchlab/gradepipe/internal/types"
)

func testRubric(t *testing.T) *rubric.Rubric {
	t.Helper()
	r, err := rubric.Load(rubric.DefaultRubricID)
	require.NoError(t, err)
	return r
}

func testTranscript() types.Transcript {
	return types.Transcript{
		{Speaker: types.SpeakerRep, Text: "Hello"},
		{Speaker: types.SpeakerCustomer, Text: "Hi"},
	}
}

func TestEnhanceParsesGrade(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/grade", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req completionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.Transcript, "rep: Hello")
		assert.NotEmpty(t, req.AxisKeys)

		json.NewEncoder(w).Encode(map[string]any{
			"total": 85,
			"axes":  map[string]int{"safety": 5, "value": 4},
			"notes": []string{"Strong open"},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key", time.Second)
	grade, err := client.Enhance(context.Background(), testTranscript(), testRubric(t))

	require.NoError(t, err)
	require.NotNil(t, grade.Total)
	assert.Equal(t, 85.0, *grade.Total)
	assert.Equal(t, map[string]int{"safety": 5, "value": 4}, grade.Axes)
	assert.Equal(t, []string{"Strong open"}, grade.Notes)
}

func TestEnhanceRejectsMalformedTotals(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing total", body: `{"axes":{"safety":5}}`},
		{name: "null total", body: `{"total":null}`},
		{name: "string total", body: `{"total":"eighty"}`},
		{name: "not json", body: `grade: fine`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewClient(srv.URL, "", time.Second)
			grade, err := client.Enhance(context.Background(), testTranscript(), testRubric(t))

			assert.Error(t, err)
			assert.Nil(t, grade)
		})
	}
}

func TestEnhanceServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", time.Second)
	_, err := client.Enhance(context.Background(), testTranscript(), testRubric(t))

	assert.ErrorContains(t, err, "status 503")
}

func TestEnhanceUnconfigured(t *testing.T) {
	client := NewClient("", "", time.Second)
	_, err := client.Enhance(context.Background(), testTranscript(), testRubric(t))

	assert.Error(t, err)
}

func TestEnhanceTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", 20*time.Millisecond)
	start := time.Now()
	_, err := client.Enhance(context.Background(), testTranscript(), testRubric(t))

	assert.Error(t, err)
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}
