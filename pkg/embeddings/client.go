// Package embeddings is the gateway to the embedding provider. It batches
// requests, truncates oversized inputs and guarantees output order matches
// input order.
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"unifydata-backend/pkg/pipelineerr"
	"unifydata-backend/pkg/tokenizer"
)

// maxBatchSize caps a single provider request.
const maxBatchSize = 100

type Gateway struct {
	baseURL    string
	apiKey     string
	model      ModelSpec
	httpClient *http.Client
}

func NewGateway(baseURL, apiKey, modelName string) (*Gateway, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: embedding api key is not set", pipelineerr.ErrConfiguration)
	}
	model, err := LookupModel(modelName)
	if err != nil {
		return nil, err
	}
	return &Gateway{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// Model returns the spec of the model this gateway embeds with.
func (g *Gateway) Model() ModelSpec { return g.model }

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// EmbedBatch embeds texts in provider-sized batches. The i-th vector always
// corresponds to the i-th input text.
func (g *Gateway) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for offset := 0; offset < len(texts); offset += maxBatchSize {
		end := offset + maxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := g.embed(ctx, texts[offset:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// EmbedQuery embeds a single search query.
func (g *Gateway) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vectors, err := g.embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (g *Gateway) embed(ctx context.Context, texts []string) ([][]float32, error) {
	input := make([]string, len(texts))
	for i, text := range texts {
		input[i] = tokenizer.Truncate(text, g.model.MaxTokens)
	}

	body, err := json.Marshal(embeddingRequest{Model: g.model.Name, Input: input})
	if err != nil {
		return nil, fmt.Errorf("encode embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pipelineerr.ErrTransientProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, fmt.Errorf("%w: embedding provider returned %d: %s", pipelineerr.ErrAuthentication, resp.StatusCode, payload)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return nil, fmt.Errorf("%w: embedding provider returned %d: %s", pipelineerr.ErrTransientProvider, resp.StatusCode, payload)
		default:
			return nil, fmt.Errorf("embedding provider returned %d: %s", resp.StatusCode, payload)
		}
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("embedding provider returned %d vectors for %d inputs", len(parsed.Data), len(texts))
	}

	// The provider reports an index per vector; order by it rather than
	// trusting response order.
	sort.Slice(parsed.Data, func(i, j int) bool { return parsed.Data[i].Index < parsed.Data[j].Index })

	vectors := make([][]float32, len(parsed.Data))
	for i, item := range parsed.Data {
		if len(item.Embedding) != g.model.Dimensions {
			return nil, fmt.Errorf("vector %d has %d dimensions, model %s expects %d",
				i, len(item.Embedding), g.model.Name, g.model.Dimensions)
		}
		vectors[i] = item.Embedding
	}
	return vectors, nil
}
