package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"biogenie-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sse(w http.ResponseWriter, parts ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, p := range parts {
		b, _ := json.Marshal(map[string]interface{}{
			"choices": []map[string]interface{}{{"delta": map[string]string{"content": p}}},
		})
		fmt.Fprintf(w, "data: %s\n\n", b)
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

func testConfig(url string) config.LLMConfig {
	return config.LLMConfig{
		APIKey:  "k",
		BaseURL: url,
		Model:   "llama-3.3-70b-versatile",
		Retry:   config.RetryConfig{Attempts: 3, Delay: time.Millisecond},
	}
}

func TestComplete_CollectsStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)
		assert.Equal(t, "llama-3.3-70b-versatile", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		sse(w, "### PCR", "\n\nPolymerase chain reaction.", " ")
	}))
	defer srv.Close()

	answer, err := NewClient(testConfig(srv.URL)).Complete(context.Background(), []Message{
		{Role: "system", Content: "rules"},
		{Role: "user", Content: "What is PCR?"},
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, "### PCR\n\nPolymerase chain reaction.", answer)
}

func TestComplete_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		sse(w, "ok")
	}))
	defer srv.Close()

	answer, err := NewClient(testConfig(srv.URL)).Complete(context.Background(), []Message{{Role: "user", Content: "q"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", answer)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestComplete_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewClient(testConfig(srv.URL)).Complete(context.Background(), []Message{{Role: "user", Content: "q"}}, nil)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.Code)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestStream_AppliesConfiguredGeneration(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req.Temperature)
		assert.Equal(t, 0.2, *req.Temperature)
		assert.Nil(t, req.TopP)
		sse(w, "a", "b")
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Generation.Temperature = 0.2
	var chunks []string
	client := NewClient(cfg).(*chatClient)
	require.NoError(t, client.stream(context.Background(), []Message{{Role: "user", Content: "q"}}, nil, func(c string) error {
		chunks = append(chunks, c)
		return nil
	}))
	assert.Equal(t, []string{"a", "b"}, chunks)
	assert.True(t, client.policy.Linear)
}
