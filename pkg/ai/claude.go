// Package ai wraps the Anthropic Messages API for grounded question
// answering. Prompts are assembled from retrieved context only; the model is
// instructed never to answer beyond it.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"unifydata-backend/pkg/pipelineerr"
)

const (
	anthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion = "2023-06-01"
	maxOutputTokens  = 4096
)

const systemPromptTemplate = `You are an AI assistant with access to the user's connected data sources including Salesforce, Slack, Google Drive and Notion.

Your role is to help users find information across their data sources and answer questions based on the provided context.

Guidelines:
- Always base your answers on the provided context documents
- If the context doesn't contain enough information, say so clearly
- Cite specific sources when possible (mention the document title or source)
- Be concise but thorough
- If asked about something not in the context, explain that you can only answer based on available data
- Format your responses in markdown for better readability

Current date: %s
`

// ContextDocument is one retrieved snippet handed to the model.
type ContextDocument struct {
	Title      string
	SourceType string
	Content    string
	URL        string
}

// Message is one turn of conversation history. Role is "user" or "assistant".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Answer is the model's reply plus its accounting.
type Answer struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	ResponseTime time.Duration
}

type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

func NewClient(apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: anthropic api key is not set", pipelineerr.ErrConfiguration)
	}
	if model == "" {
		model = DefaultGenerationModel
	}
	if _, ok := pricing[model]; !ok {
		return nil, fmt.Errorf("%w: unknown generation model %q", pipelineerr.ErrConfiguration, model)
	}
	return &Client{
		apiKey:     apiKey,
		model:      model,
		baseURL:    anthropicBaseURL,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		now:        time.Now,
	}, nil
}

// Model reports the generation model this client is configured for.
func (c *Client) Model() string {
	return c.model
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system"`
	Messages  []Message `json:"messages"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Ask sends the question with its retrieved context and prior history, and
// returns the grounded answer with token usage and cost.
func (c *Client) Ask(ctx context.Context, question string, contextDocs []ContextDocument, history []Message) (*Answer, error) {
	started := c.now()

	messages := make([]Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, Message{Role: "user", Content: question})

	body, err := json.Marshal(messagesRequest{
		Model:     c.model,
		MaxTokens: maxOutputTokens,
		System:    BuildSystemPrompt(contextDocs, c.now()),
		Messages:  messages,
	})
	if err != nil {
		return nil, fmt.Errorf("encode messages request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build messages request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: anthropic request: %v", pipelineerr.ErrTransientProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, fmt.Errorf("%w: anthropic returned %d: %s", pipelineerr.ErrAuthentication, resp.StatusCode, payload)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return nil, fmt.Errorf("%w: anthropic returned %d: %s", pipelineerr.ErrTransientProvider, resp.StatusCode, payload)
		default:
			return nil, fmt.Errorf("anthropic returned %d: %s", resp.StatusCode, payload)
		}
	}

	var parsed messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode messages response: %w", err)
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &Answer{
		Text:         text.String(),
		Model:        c.model,
		InputTokens:  parsed.Usage.InputTokens,
		OutputTokens: parsed.Usage.OutputTokens,
		CostUSD:      Cost(c.model, parsed.Usage.InputTokens, parsed.Usage.OutputTokens),
		ResponseTime: c.now().Sub(started),
	}, nil
}

// BuildSystemPrompt renders the grounding instructions followed by the
// retrieved documents.
func BuildSystemPrompt(contextDocs []ContextDocument, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, systemPromptTemplate, now.UTC().Format("2006-01-02"))

	if len(contextDocs) == 0 {
		return b.String()
	}

	b.WriteString("\n\n## Available Context\n\n")
	b.WriteString("Here are the relevant documents from the user's data sources:\n\n")
	for i, doc := range contextDocs {
		title := doc.Title
		if title == "" {
			title = "Untitled"
		}
		fmt.Fprintf(&b, "### Document %d: %s\n", i+1, title)
		fmt.Fprintf(&b, "**Source:** %s\n", sourceLabel(doc.SourceType))
		if doc.URL != "" {
			fmt.Fprintf(&b, "**URL:** %s\n", doc.URL)
		}
		fmt.Fprintf(&b, "\n%s\n\n---\n\n", doc.Content)
	}
	return b.String()
}

func sourceLabel(sourceType string) string {
	if sourceType == "" {
		return "Unknown"
	}
	words := strings.Split(sourceType, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
