package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kalambet/localdesk/internal/gateway"
)

func textRequest(model, prompt string) ChatRequest {
	return ChatRequest{
		Model:    model,
		Messages: []ChatMessage{{Role: "user", Content: []ContentPart{{Type: "text", Text: prompt}}}},
	}
}

func TestChat_NonStreaming(t *testing.T) {
	respJSON := `{"id":"gen-1","choices":[{"message":{"role":"assistant","content":"Hello!"}}]}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, respJSON)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("test-key", srv.URL)
	resp, err := c.Chat(context.Background(), textRequest("google/gemini-2.0-flash-001", "hi"))
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(resp.Choices) != 1 || resp.Choices[0].Message.Content != "Hello!" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestChat_AuthHeader(t *testing.T) {
	var gotAuth, gotTitle string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotTitle = r.Header.Get("X-Title")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"gen-1","choices":[]}`)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("test-key", srv.URL)
	if _, err := c.Chat(context.Background(), textRequest("test", "hi")); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if want := "Bearer test-key"; gotAuth != want {
		t.Errorf("Authorization = %q, want %q", gotAuth, want)
	}
	if gotTitle != "localdesk" {
		t.Errorf("X-Title = %q", gotTitle)
	}
}

func TestChat_RateLimit_Retry(t *testing.T) {
	var attempt atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := attempt.Add(1)
		if n == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"gen-1","choices":[]}`)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("test-key", srv.URL)
	if _, err := c.Chat(context.Background(), textRequest("test", "hi")); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got := attempt.Load(); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}
}

func TestChat_RateLimit_Exhausted(t *testing.T) {
	var attempt atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempt.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("test-key", srv.URL)
	_, err := c.Chat(context.Background(), textRequest("test", "hi"))
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("error = %q, want it to contain %q", err.Error(), "rate limited")
	}
	if got := attempt.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestChat_UnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("bad", srv.URL)
	_, err := c.Chat(context.Background(), textRequest("test", "hi"))
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestChat_ContextCancellation(t *testing.T) {
	handlerStarted := make(chan struct{})
	handlerDone := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(handlerStarted)
		<-handlerDone
	}))
	defer srv.Close()
	defer close(handlerDone)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		c := NewClientWithBaseURL("test-key", srv.URL)
		_, err := c.Chat(ctx, textRequest("test", "hi"))
		done <- err
	}()

	<-handlerStarted
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected error after context cancellation")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Chat did not return promptly after context cancellation")
	}
}

func TestBackend_ImageAsDataURL(t *testing.T) {
	var captured ChatRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		fmt.Fprint(w, `{"id":"gen-1","choices":[{"message":{"role":"assistant","content":"{\"vendor\":\"Acme\"}"}}]}`)
	}))
	defer srv.Close()

	b := NewBackend(NewClientWithBaseURL("k", srv.URL), "openai/gpt-4o-mini")
	text, err := b.Generate(context.Background(), gateway.Request{
		Prompt:     "scan",
		Attachment: &gateway.Attachment{MIMEType: "image/jpeg", Data: []byte("jpg")},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != `{"vendor":"Acme"}` {
		t.Errorf("text = %q", text)
	}

	if captured.Model != "openai/gpt-4o-mini" || len(captured.Messages) != 1 {
		t.Fatalf("unexpected request: %+v", captured)
	}
	parts := captured.Messages[0].Content
	if len(parts) != 2 || parts[1].ImageURL == nil {
		t.Fatalf("expected text and image parts, got %+v", parts)
	}
	if want := "data:image/jpeg;base64,anBn"; parts[1].ImageURL.URL != want {
		t.Errorf("image url = %q, want %q", parts[1].ImageURL.URL, want)
	}
}

func TestBackend_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"gen-1","choices":[]}`)
	}))
	defer srv.Close()

	b := NewBackend(NewClientWithBaseURL("k", srv.URL), "m")
	if _, err := b.Generate(context.Background(), gateway.Request{Prompt: "x"}); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			http.NotFound(w, r)
			return
		}
		list := ModelList{
			Object: "list",
			Data: []Model{
				{ID: "google/gemini-2.0-flash-001", Object: "model"},
				{ID: "openai/gpt-4o", Object: "model"},
			},
		}
		json.NewEncoder(w).Encode(list)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("test-key", srv.URL)
	models, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) != 2 || models[1].ID != "openai/gpt-4o" {
		t.Errorf("unexpected models: %+v", models)
	}
}

func TestListModels_Empty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ModelList{Object: "list", Data: nil})
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("test-key", srv.URL)
	models, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) != 0 {
		t.Errorf("got %d models, want 0", len(models))
	}
}
