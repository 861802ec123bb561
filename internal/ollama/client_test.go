package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images"`
}

type chatBody struct {
	Model    string          `json:"model"`
	Format   json.RawMessage `json:"format"`
	Messages []chatMessage   `json:"messages"`
}

func writeAnswer(w http.ResponseWriter, model, content string) {
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"model":      model,
		"created_at": "2026-01-02T15:04:05Z",
		"message":    map[string]string{"role": "assistant", "content": content},
		"done":       true,
	})
}

func TestGenerateSendsImagesAndReturnsResponse(t *testing.T) {
	var got chatBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeAnswer(w, got.Model, `{"blocks":[]}`)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, RateLimit: 100})
	out, err := c.Generate(context.Background(), GenerateRequest{
		Model:  "llava",
		System: "you read screens",
		Prompt: "read",
		Images: [][]byte{[]byte("hello")},
		Format: "json",
	})
	require.NoError(t, err)
	assert.Equal(t, `{"blocks":[]}`, out)

	assert.Equal(t, "llava", got.Model)
	assert.Contains(t, string(got.Format), "json")
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "you read screens", got.Messages[0].Content)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "read", got.Messages[1].Content)
	assert.Equal(t, []string{"aGVsbG8="}, got.Messages[1].Images)
}

func TestGenerateRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "loading model", http.StatusServiceUnavailable)
			return
		}
		writeAnswer(w, "m", "ok")
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, RateLimit: 100, MaxRetries: 1})
	out, err := c.Generate(context.Background(), GenerateRequest{Model: "m", Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGenerateDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model not found"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, RateLimit: 100})
	_, err := c.Generate(context.Background(), GenerateRequest{Model: "missing", Prompt: "hi"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGenerateRequiresModel(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://127.0.0.1:1", RateLimit: 100})
	_, err := c.Generate(context.Background(), GenerateRequest{Prompt: "hi"})
	assert.Error(t, err)
}

func TestHealthCheckFindsModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body chatBody
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Model != "llava" && body.Model != "phi3:mini" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"model '` + body.Model + `' not found"}`))
			return
		}
		writeAnswer(w, body.Model, "pong")
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, MaxRetries: -1})
	assert.NoError(t, c.HealthCheck(context.Background(), "llava"))
	assert.NoError(t, c.HealthCheck(context.Background(), "phi3:mini"))
	assert.Error(t, c.HealthCheck(context.Background(), "mistral"))
}

func TestRetryTransportGivesUpAfterLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := &http.Client{Transport: &retryTransport{base: http.DefaultTransport, maxRetries: 2, backoff: 0}}
	resp, err := client.Post(srv.URL, "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("Expected status %d, got %d", http.StatusBadGateway, resp.StatusCode)
	}
	if calls.Load() != 3 {
		t.Errorf("Expected 3 attempts, got %d", calls.Load())
	}
}
