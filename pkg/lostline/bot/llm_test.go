package bot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestLLM(t *testing.T, handler http.HandlerFunc) *LLMClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewLLMClient(APIConfig{BaseURL: srv.URL, APIKey: "sk-test", Model: "gpt-4o-mini"}, nil)
}

func TestLLMClient_Complete(t *testing.T) {
	t.Parallel()

	var got chatRequest
	client := newTestLLM(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Error(err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": "  Hello there!  "}},
			},
		})
	})

	reply, err := client.Complete(context.Background(), CompletionRequest{
		System:      "be brief",
		History:     []HistoryEntry{{Role: RoleUser, Text: "hi"}, {Role: RoleAssistant, Text: "hello"}},
		User:        "I lost my wallet",
		MaxTokens:   300,
		Temperature: 0.7,
	})
	if err != nil {
		t.Fatal(err)
	}
	if reply != "Hello there!" {
		t.Errorf("reply = %q", reply)
	}

	if got.Model != "gpt-4o-mini" {
		t.Errorf("model = %q", got.Model)
	}
	if len(got.Messages) != 4 {
		t.Fatalf("message count = %d, want system + 2 history + user", len(got.Messages))
	}
	if got.Messages[0].Role != "system" || got.Messages[3].Role != "user" {
		t.Errorf("message roles = %s..%s", got.Messages[0].Role, got.Messages[3].Role)
	}
	if got.MaxTokens != 300 || got.Temperature != 0.7 {
		t.Errorf("sampling = %d tokens / temp %v", got.MaxTokens, got.Temperature)
	}
}

func TestLLMClient_Errors(t *testing.T) {
	t.Parallel()

	t.Run("http error status", func(t *testing.T) {
		t.Parallel()
		client := newTestLLM(t, func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
		})
		if _, err := client.Complete(context.Background(), CompletionRequest{User: "hi"}); err == nil {
			t.Error("expected an error for a 429 response")
		}
	})

	t.Run("api error body", func(t *testing.T) {
		t.Parallel()
		client := newTestLLM(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{"error":{"message":"bad model"}}`))
		})
		if _, err := client.Complete(context.Background(), CompletionRequest{User: "hi"}); err == nil {
			t.Error("expected an error for an API error payload")
		}
	})

	t.Run("empty choices", func(t *testing.T) {
		t.Parallel()
		client := newTestLLM(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{"choices":[]}`))
		})
		if _, err := client.Complete(context.Background(), CompletionRequest{User: "hi"}); err == nil {
			t.Error("expected an error for empty choices")
		}
	})

	t.Run("canceled context", func(t *testing.T) {
		t.Parallel()
		client := newTestLLM(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{}`))
		})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := client.Complete(ctx, CompletionRequest{User: "hi"}); err == nil {
			t.Error("expected an error for a canceled context")
		}
	})
}
