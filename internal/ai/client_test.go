package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func geminiReply(text string) map[string]any {
	return map[string]any{
		"candidates": []any{
			map[string]any{
				"content": map[string]any{
					"parts": []any{map[string]any{"text": text}},
				},
			},
		},
	}
}

func TestGenerate(t *testing.T) {
	var gotPath string
	var gotBody generateRequest
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(geminiReply("Start with a literature review."))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key", "gemini-2.0-flash", 3)
	reply, err := client.Generate(context.Background(), "system prompt", []Turn{
		{Role: "user", Content: "What should I do first?"},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if reply != "Start with a literature review." {
		t.Errorf("unexpected reply %q", reply)
	}
	if gotPath != "/v1beta/models/gemini-2.0-flash:generateContent" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotBody.SystemInstruction == nil || gotBody.SystemInstruction.Parts[0].Text != "system prompt" {
		t.Errorf("system instruction not sent: %+v", gotBody.SystemInstruction)
	}
	if len(gotBody.Contents) != 1 || gotBody.Contents[0].Role != "user" {
		t.Errorf("unexpected contents: %+v", gotBody.Contents)
	}
	if attempts != 1 {
		t.Errorf("expected a single attempt on success, got %d", attempts)
	}
}

func TestGenerateRetriesServerErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(geminiReply("ok"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key", "gemini-2.0-flash", 3)
	reply, err := client.Generate(context.Background(), "", []Turn{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if reply != "ok" {
		t.Errorf("unexpected reply %q", reply)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestGenerateGivesUpAfterRetryLimit(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key", "gemini-2.0-flash", 2)
	_, err := client.Generate(context.Background(), "", []Turn{{Role: "user", Content: "hi"}})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("got %v, want ErrUnavailable", err)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}

func TestGenerateDoesNotRetryClientErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key", "gemini-2.0-flash", 3)
	_, err := client.Generate(context.Background(), "", []Turn{{Role: "user", Content: "hi"}})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("got %v, want ErrUnavailable", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestGenerateUnconfigured(t *testing.T) {
	client := NewClient("http://localhost:0", "", "gemini-2.0-flash", 1)
	_, err := client.Generate(context.Background(), "", []Turn{{Role: "user", Content: "hi"}})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("got %v, want ErrNotConfigured", err)
	}
}
