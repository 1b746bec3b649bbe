package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"unifydata-backend/pkg/pipelineerr"
)

// Slack connects a workspace through a bot token. Each public channel becomes
// one document built from its recent history. Slack tokens never expire, so
// Refresh is a declared no-op.
type Slack struct {
	clientID     string
	clientSecret string
	redirectURI  string
	httpClient   *http.Client
	apiBase      string
}

func NewSlack(clientID, clientSecret, redirectURI string) *Slack {
	return &Slack{
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURI:  redirectURI,
		httpClient:   newHTTPClient(),
		apiBase:      "https://slack.com/api",
	}
}

func (s *Slack) Type() string { return "slack" }

func (s *Slack) AuthorizationURL(state, verifier string) string {
	params := url.Values{
		"client_id":             {s.clientID},
		"redirect_uri":          {s.redirectURI},
		"state":                 {state},
		"scope":                 {"channels:history,channels:read,users:read"},
		"user_scope":            {""},
		"code_challenge":        {oauth2.S256ChallengeFromVerifier(verifier)},
		"code_challenge_method": {"S256"},
	}
	return "https://slack.com/oauth/v2/authorize?" + params.Encode()
}

// slackEnvelope is the ok/error wrapper every Slack response carries.
type slackEnvelope struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func (s *Slack) ExchangeCode(ctx context.Context, code, verifier string) (*TokenSet, error) {
	form := url.Values{
		"client_id":     {s.clientID},
		"client_secret": {s.clientSecret},
		"code":          {code},
		"redirect_uri":  {s.redirectURI},
		"code_verifier": {verifier},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiBase+"/oauth.v2.access",
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: slack token exchange: %v", pipelineerr.ErrTransientProvider, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus("slack", resp.StatusCode)
	}

	var parsed struct {
		slackEnvelope
		AccessToken string `json:"access_token"`
		Scope       string `json:"scope"`
		Team        struct {
			ID string `json:"id"`
		} `json:"team"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode slack token response: %w", err)
	}
	if !parsed.OK {
		return nil, fmt.Errorf("%w: slack token exchange: %s", pipelineerr.ErrAuthentication, parsed.Error)
	}

	return &TokenSet{
		AccessToken: parsed.AccessToken,
		Scope:       parsed.Scope,
		ExpiresAt:   time.Now().Add(NonExpiringLifetime),
		WorkspaceID: parsed.Team.ID,
	}, nil
}

func (s *Slack) Refresh(_ context.Context, _ string) (*TokenSet, error) {
	return nil, pipelineerr.ErrRefreshNotSupported
}

func (s *Slack) UserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	var parsed struct {
		slackEnvelope
		UserID string `json:"user_id"`
		User   string `json:"user"`
		Team   string `json:"team"`
	}
	if err := s.call(ctx, accessToken, "auth.test", nil, &parsed); err != nil {
		return nil, err
	}
	if !parsed.OK {
		return nil, fmt.Errorf("%w: slack auth.test: %s", pipelineerr.ErrAuthentication, parsed.Error)
	}
	return &UserInfo{ID: parsed.UserID, Name: parsed.User}, nil
}

func (s *Slack) call(ctx context.Context, accessToken, method string, params url.Values, out any) error {
	endpoint := s.apiBase + "/" + method
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: slack %s: %v", pipelineerr.ErrTransientProvider, method, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return classifyStatus("slack", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode slack %s response: %w", method, err)
	}
	return nil
}

func (s *Slack) FetchDocuments(ctx context.Context, tokens *TokenSet) ([]SourceDocument, error) {
	var channels struct {
		slackEnvelope
		Channels []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"channels"`
	}
	params := url.Values{"types": {"public_channel"}, "limit": {"200"}, "exclude_archived": {"true"}}
	if err := s.call(ctx, tokens.AccessToken, "conversations.list", params, &channels); err != nil {
		return nil, err
	}
	if !channels.OK {
		return nil, fmt.Errorf("%w: slack conversations.list: %s", pipelineerr.ErrAuthentication, channels.Error)
	}

	var docs []SourceDocument
	for _, channel := range channels.Channels {
		doc, err := s.channelDocument(ctx, tokens, channel.ID, channel.Name)
		if err != nil {
			return nil, err
		}
		if doc != nil {
			docs = append(docs, *doc)
		}
	}
	return docs, nil
}

func (s *Slack) channelDocument(ctx context.Context, tokens *TokenSet, channelID, channelName string) (*SourceDocument, error) {
	var history struct {
		slackEnvelope
		Messages []struct {
			User string `json:"user"`
			Text string `json:"text"`
			TS   string `json:"ts"`
		} `json:"messages"`
	}
	params := url.Values{"channel": {channelID}, "limit": {"200"}}
	if err := s.call(ctx, tokens.AccessToken, "conversations.history", params, &history); err != nil {
		return nil, err
	}
	if !history.OK {
		// not_in_channel just means the bot was not invited; skip it.
		if history.Error == "not_in_channel" {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: slack conversations.history: %s", pipelineerr.ErrAuthentication, history.Error)
	}
	if len(history.Messages) == 0 {
		return nil, nil
	}

	var b strings.Builder
	var latest float64
	// History arrives newest first; reverse into reading order.
	for i := len(history.Messages) - 1; i >= 0; i-- {
		msg := history.Messages[i]
		if msg.Text == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", msg.User, msg.Text)
		if ts, err := strconv.ParseFloat(msg.TS, 64); err == nil && ts > latest {
			latest = ts
		}
	}

	return &SourceDocument{
		ExternalID: channelID,
		Title:      "#" + channelName,
		Filename:   channelName + ".txt",
		Content:    []byte(b.String()),
		URL:        fmt.Sprintf("https://app.slack.com/client/%s/%s", tokens.WorkspaceID, channelID),
		ModifiedAt: time.Unix(int64(latest), 0).UTC(),
	}, nil
}
