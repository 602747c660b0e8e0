package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestOpenAICompleteSendsChatRequest(t *testing.T) {
	var got chatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path: want=/chat/completions got=%s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("authorization header: got=%q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAI(Config{BaseURL: srv.URL + "/", APIKey: "secret", Model: "llama-3.3-70b-versatile"})
	out, err := c.Complete(context.Background(), Request{Prompt: "hi", Temperature: 0.5, MaxTokens: 2000})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "hello" {
		t.Fatalf("content: want=%q got=%q", "hello", out)
	}
	if got.Model != "llama-3.3-70b-versatile" || got.MaxTokens != 2000 || got.Temperature != 0.5 {
		t.Fatalf("unexpected request: %+v", got)
	}
	if len(got.Messages) != 1 || got.Messages[0].Role != "user" || got.Messages[0].Content != "hi" {
		t.Fatalf("unexpected messages: %+v", got.Messages)
	}
}

func TestOpenAIRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAI(Config{BaseURL: srv.URL})
	c.backoff = time.Millisecond
	out, err := c.Complete(context.Background(), Request{Prompt: "x"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "ok" || atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("want ok after 2 calls, got %q after %d", out, calls)
	}
}

func TestOpenAIDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer srv.Close()

	c := NewOpenAI(Config{BaseURL: srv.URL})
	c.backoff = time.Millisecond
	_, err := c.Complete(context.Background(), Request{Prompt: "x"})
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("want 401 HTTPError, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("calls: want=1 got=%d", calls)
	}
}

func TestOpenAIEmbedOrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("path: got=%s", r.URL.Path)
		}
		w.Write([]byte(`{"data":[{"index":1,"embedding":[0.2,0.3]},{"index":0,"embedding":[0.1,0.4]}]}`))
	}))
	defer srv.Close()

	c := NewOpenAI(Config{BaseURL: srv.URL, EmbeddingModel: "text-embedding-3-small"})
	vecs, err := c.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 2 || vecs[0][0] != float32(0.1) || vecs[1][0] != float32(0.2) {
		t.Fatalf("unexpected vectors: %v", vecs)
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	if _, _, err := New(context.Background(), Config{Provider: "bard"}); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}
