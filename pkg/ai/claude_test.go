package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"unifydata-backend/pkg/pipelineerr"
)

func TestCostRoundsToSixDecimals(t *testing.T) {
	tests := []struct {
		model         string
		input, output int
		want          float64
	}{
		// 1000 in at $3/1M + 500 out at $15/1M = 0.003 + 0.0075
		{"claude-3-5-sonnet-20241022", 1000, 500, 0.0105},
		// 123 in at $0.80/1M = 0.0000984, 45 out at $4/1M = 0.00018
		{"claude-3-5-haiku-20241022", 123, 45, 0.000278},
		{"claude-3-opus-20240229", 1_000_000, 1_000_000, 90.0},
		{"unknown-model", 1000, 1000, 0},
		{"claude-3-5-sonnet-20241022", 0, 0, 0},
	}
	for _, tt := range tests {
		if got := Cost(tt.model, tt.input, tt.output); got != tt.want {
			t.Errorf("Cost(%s, %d, %d) = %v, want %v", tt.model, tt.input, tt.output, got, tt.want)
		}
	}
}

func TestBuildSystemPromptIncludesContext(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	prompt := BuildSystemPrompt([]ContextDocument{
		{Title: "Q3 Pipeline", SourceType: "salesforce", Content: "Pipeline details.", URL: "https://sf/1"},
		{Title: "", SourceType: "google_drive", Content: "Drive content."},
	}, now)

	for _, want := range []string{
		"Current date: 2026-03-14",
		"### Document 1: Q3 Pipeline",
		"**Source:** Salesforce",
		"**URL:** https://sf/1",
		"### Document 2: Untitled",
		"**Source:** Google Drive",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildSystemPromptWithoutContext(t *testing.T) {
	prompt := BuildSystemPrompt(nil, time.Now())
	if strings.Contains(prompt, "Available Context") {
		t.Error("empty context should not add a context section")
	}
}

func TestAskParsesResponseAndComputesCost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		var req messagesRequest
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) != 3 {
			t.Errorf("expected 3 messages (history + question), got %d", len(req.Messages))
		}
		if req.Messages[2].Content != "What is the pipeline?" {
			t.Errorf("question not last: %+v", req.Messages)
		}
		w.Write([]byte(`{"content":[{"type":"text","text":"The pipeline is $2M."}],"usage":{"input_tokens":2000,"output_tokens":100}}`))
	}))
	defer srv.Close()

	client, err := NewClient("test-key", "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	client.baseURL = srv.URL

	history := []Message{
		{Role: "user", Content: "Hi"},
		{Role: "assistant", Content: "Hello"},
	}
	answer, err := client.Ask(context.Background(), "What is the pipeline?", nil, history)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if answer.Text != "The pipeline is $2M." {
		t.Errorf("unexpected text: %q", answer.Text)
	}
	// 2000 in at $3/1M + 100 out at $15/1M
	if answer.CostUSD != 0.0075 {
		t.Errorf("cost = %v, want 0.0075", answer.CostUSD)
	}
}

func TestAskClassifiesRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client, _ := NewClient("test-key", "")
	client.baseURL = srv.URL

	_, err := client.Ask(context.Background(), "q", nil, nil)
	if !errors.Is(err, pipelineerr.ErrTransientProvider) {
		t.Errorf("got %v, want ErrTransientProvider", err)
	}
}

func TestNewClientValidatesModel(t *testing.T) {
	if _, err := NewClient("", ""); !errors.Is(err, pipelineerr.ErrConfiguration) {
		t.Errorf("missing key: %v", err)
	}
	if _, err := NewClient("k", "gpt-4"); !errors.Is(err, pipelineerr.ErrConfiguration) {
		t.Errorf("unknown model: %v", err)
	}
}
