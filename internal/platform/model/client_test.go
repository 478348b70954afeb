package model

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/verdictd/verdictd/internal/domain"
)

func chatServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header = %q", got)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": content}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func testClient(url string) *Client {
	return NewClient(Config{Name: "test", BaseURL: url, APIKey: "test-key", Model: "test-model"})
}

func TestJudgeParsesVerdict(t *testing.T) {
	srv := chatServer(t, `{"answer": "yes", "confidence": 92, "reasoning": "sources confirm"}`)
	defer srv.Close()

	v, err := testClient(srv.URL).Judge(context.Background(), domain.ModelPrompt{
		Task:     domain.TaskResolve,
		Question: "Will X happen?",
	})
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if v.Answer != domain.AnswerYes || v.Confidence != 92 {
		t.Fatalf("verdict = %s/%v", v.Answer, v.Confidence)
	}
	if v.Provider != "test" {
		t.Fatalf("provider = %q", v.Provider)
	}
}

func TestJudgeStripsCodeFences(t *testing.T) {
	srv := chatServer(t, "```json\n{\"answer\": \"no\", \"confidence\": 0.85, \"reasoning\": \"r\"}\n```")
	defer srv.Close()

	v, err := testClient(srv.URL).Judge(context.Background(), domain.ModelPrompt{Task: domain.TaskResolve})
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if v.Answer != domain.AnswerNo {
		t.Fatalf("answer = %s, want no", v.Answer)
	}
	// [0,1] confidence is normalized to the 0-100 scale.
	if v.Confidence != 85 {
		t.Fatalf("confidence = %v, want 85", v.Confidence)
	}
}

func TestJudgeRejectsMalformedOutput(t *testing.T) {
	cases := []string{
		"I think the answer is probably yes.",
		`{"answer": "banana", "confidence": 90, "reasoning": "r"}`,
		`{"answer": "yes", "reasoning": "no confidence field"}`,
	}
	for _, content := range cases {
		srv := chatServer(t, content)
		_, err := testClient(srv.URL).Judge(context.Background(), domain.ModelPrompt{Task: domain.TaskResolve})
		srv.Close()
		if err == nil {
			t.Errorf("content %q: expected parse error", content)
		}
	}
}

func TestJudgeValidationAnswerMapping(t *testing.T) {
	srv := chatServer(t, `{"answer": "valid", "confidence": 88, "reasoning": "binary and dated"}`)
	defer srv.Close()

	v, err := testClient(srv.URL).Judge(context.Background(), domain.ModelPrompt{Task: domain.TaskValidate})
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if v.Answer != domain.AnswerYes {
		t.Fatalf("answer = %s, want yes (valid maps to yes for validation)", v.Answer)
	}

	// The same string is rejected for resolution tasks.
	if _, err := parseVerdict(domain.TaskResolve, `{"answer": "valid", "confidence": 88, "reasoning": "r"}`); err == nil {
		t.Fatal("'valid' must not parse for a resolve task")
	}
}

func TestJudgeAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error": {"message": "rate limited"}}`)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Judge(context.Background(), domain.ModelPrompt{Task: domain.TaskResolve})
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestReasoningTruncated(t *testing.T) {
	long := strings.Repeat("x", 5000)
	v, err := parseVerdict(domain.TaskResolve,
		fmt.Sprintf(`{"answer": "yes", "confidence": 70, "reasoning": %q}`, long))
	if err != nil {
		t.Fatalf("parseVerdict: %v", err)
	}
	if len(v.Reasoning) != maxReasoningLen {
		t.Fatalf("reasoning length = %d, want %d", len(v.Reasoning), maxReasoningLen)
	}
}

func TestUserMessageIncludesEvidenceAndPrior(t *testing.T) {
	prior := 0.72
	msg := userMessage(domain.ModelPrompt{
		Task:              domain.TaskResolve,
		Question:          "Will it happen?",
		MirrorProbability: &prior,
		Evidence: domain.EvidenceBundle{
			Source: &domain.SourceContent{URL: "https://a.example", Text: "it happened"},
			News:   []domain.NewsArticle{{Source: "reuters.com", Title: "It happened", Snippet: "confirmed"}},
			Social: []domain.SocialMention{{Platform: "x.com", Content: "everyone says so"}},
		},
	})
	for _, want := range []string{"Will it happen?", "72% yes", "it happened", "reuters.com", "everyone says so"} {
		if !strings.Contains(msg, want) {
			t.Errorf("user message missing %q:\n%s", want, msg)
		}
	}
}
