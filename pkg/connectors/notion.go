package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"unifydata-backend/pkg/pipelineerr"
)

const notionVersion = "2022-06-28"

// Notion connects a workspace integration. Every page the integration can see
// becomes one document assembled from its block children. Notion tokens never
// expire.
type Notion struct {
	clientID     string
	clientSecret string
	redirectURI  string
	httpClient   *http.Client
	apiBase      string
}

func NewNotion(clientID, clientSecret, redirectURI string) *Notion {
	return &Notion{
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURI:  redirectURI,
		httpClient:   newHTTPClient(),
		apiBase:      "https://api.notion.com/v1",
	}
}

func (n *Notion) Type() string { return "notion" }

func (n *Notion) AuthorizationURL(state, _ string) string {
	// Notion does not implement PKCE; state is the only CSRF defense here.
	params := url.Values{
		"client_id":     {n.clientID},
		"redirect_uri":  {n.redirectURI},
		"response_type": {"code"},
		"owner":         {"user"},
		"state":         {state},
	}
	return n.apiBase + "/oauth/authorize?" + params.Encode()
}

func (n *Notion) ExchangeCode(ctx context.Context, code, _ string) (*TokenSet, error) {
	body, err := json.Marshal(map[string]string{
		"grant_type":   "authorization_code",
		"code":         code,
		"redirect_uri": n.redirectURI,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.apiBase+"/oauth/token", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(n.clientID, n.clientSecret)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: notion token exchange: %v", pipelineerr.ErrTransientProvider, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus("notion", resp.StatusCode)
	}

	var parsed struct {
		AccessToken   string `json:"access_token"`
		WorkspaceID   string `json:"workspace_id"`
		WorkspaceName string `json:"workspace_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode notion token response: %w", err)
	}

	return &TokenSet{
		AccessToken: parsed.AccessToken,
		ExpiresAt:   time.Now().Add(NonExpiringLifetime),
		WorkspaceID: parsed.WorkspaceID,
	}, nil
}

func (n *Notion) Refresh(_ context.Context, _ string) (*TokenSet, error) {
	return nil, pipelineerr.ErrRefreshNotSupported
}

func (n *Notion) UserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	var parsed struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Person struct {
			Email string `json:"email"`
		} `json:"person"`
	}
	if err := n.call(ctx, accessToken, http.MethodGet, "/users/me", nil, &parsed); err != nil {
		return nil, err
	}
	return &UserInfo{ID: parsed.ID, Email: parsed.Person.Email, Name: parsed.Name}, nil
}

func (n *Notion) call(ctx context.Context, accessToken, method, path string, body []byte, out any) error {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, n.apiBase+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Notion-Version", notionVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: notion %s: %v", pipelineerr.ErrTransientProvider, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return classifyStatus("notion", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode notion %s response: %w", path, err)
	}
	return nil
}

type notionRichText struct {
	PlainText string `json:"plain_text"`
}

type notionPage struct {
	ID             string `json:"id"`
	URL            string `json:"url"`
	LastEditedTime string `json:"last_edited_time"`
	Properties     map[string]struct {
		Type  string           `json:"type"`
		Title []notionRichText `json:"title"`
	} `json:"properties"`
}

func (n *Notion) FetchDocuments(ctx context.Context, tokens *TokenSet) ([]SourceDocument, error) {
	var docs []SourceDocument
	cursor := ""
	for {
		payload := map[string]any{
			"filter":    map[string]string{"property": "object", "value": "page"},
			"page_size": 100,
		}
		if cursor != "" {
			payload["start_cursor"] = cursor
		}
		body, _ := json.Marshal(payload)

		var parsed struct {
			Results    []notionPage `json:"results"`
			HasMore    bool         `json:"has_more"`
			NextCursor string       `json:"next_cursor"`
		}
		if err := n.call(ctx, tokens.AccessToken, http.MethodPost, "/search", body, &parsed); err != nil {
			return nil, err
		}

		for _, page := range parsed.Results {
			doc, err := n.pageDocument(ctx, tokens.AccessToken, page)
			if err != nil {
				return nil, err
			}
			docs = append(docs, *doc)
		}

		if !parsed.HasMore || parsed.NextCursor == "" {
			break
		}
		cursor = parsed.NextCursor
	}
	return docs, nil
}

func (n *Notion) pageDocument(ctx context.Context, accessToken string, page notionPage) (*SourceDocument, error) {
	text, err := n.pageText(ctx, accessToken, page.ID)
	if err != nil {
		return nil, err
	}
	modifiedAt, _ := time.Parse(time.RFC3339, page.LastEditedTime)

	return &SourceDocument{
		ExternalID: page.ID,
		Title:      pageTitle(page),
		Filename:   page.ID + ".txt",
		Content:    []byte(text),
		URL:        page.URL,
		ModifiedAt: modifiedAt,
	}, nil
}

func pageTitle(page notionPage) string {
	for _, prop := range page.Properties {
		if prop.Type != "title" {
			continue
		}
		var parts []string
		for _, rt := range prop.Title {
			parts = append(parts, rt.PlainText)
		}
		if title := strings.Join(parts, ""); title != "" {
			return title
		}
	}
	return "Untitled"
}

func (n *Notion) pageText(ctx context.Context, accessToken, pageID string) (string, error) {
	var b strings.Builder
	cursor := ""
	for {
		path := "/blocks/" + pageID + "/children?page_size=100"
		if cursor != "" {
			path += "&start_cursor=" + url.QueryEscape(cursor)
		}

		// Block payloads key their content by type, so decode generically.
		var generic struct {
			Results    []map[string]json.RawMessage `json:"results"`
			HasMore    bool                         `json:"has_more"`
			NextCursor string                       `json:"next_cursor"`
		}
		if err := n.call(ctx, accessToken, http.MethodGet, path, nil, &generic); err != nil {
			return "", err
		}

		for _, block := range generic.Results {
			var blockType string
			if raw, ok := block["type"]; ok {
				_ = json.Unmarshal(raw, &blockType)
			}
			raw, ok := block[blockType]
			if !ok {
				continue
			}
			var content struct {
				RichText []notionRichText `json:"rich_text"`
			}
			if err := json.Unmarshal(raw, &content); err != nil {
				continue
			}
			for _, rt := range content.RichText {
				b.WriteString(rt.PlainText)
			}
			if len(content.RichText) > 0 {
				b.WriteByte('\n')
			}
		}

		if !generic.HasMore || generic.NextCursor == "" {
			break
		}
		cursor = generic.NextCursor
	}
	return b.String(), nil
}
