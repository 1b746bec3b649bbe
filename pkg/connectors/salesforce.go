package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"unifydata-backend/pkg/pipelineerr"
)

const salesforceAPIVersion = "v59.0"

// Salesforce connects a Salesforce org. Account descriptions and support
// cases form the document set; the instance URL returned at exchange is the
// API host for every later call.
type Salesforce struct {
	oauth      *oauth2.Config
	httpClient *http.Client
}

func NewSalesforce(clientID, clientSecret, redirectURI string) *Salesforce {
	return &Salesforce{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://login.salesforce.com/services/oauth2/authorize",
				TokenURL: "https://login.salesforce.com/services/oauth2/token",
			},
			Scopes: []string{"api", "refresh_token", "id"},
		},
		httpClient: newHTTPClient(),
	}
}

func (s *Salesforce) Type() string { return "salesforce" }

func (s *Salesforce) AuthorizationURL(state, verifier string) string {
	return s.oauth.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}

func (s *Salesforce) ExchangeCode(ctx context.Context, code, verifier string) (*TokenSet, error) {
	tok, err := s.oauth.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("%w: salesforce token exchange: %v", pipelineerr.ErrAuthentication, err)
	}
	return salesforceTokenSet(tok), nil
}

func (s *Salesforce) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	src := s.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: salesforce token refresh: %v", pipelineerr.ErrAuthentication, err)
	}
	set := salesforceTokenSet(tok)
	if set.RefreshToken == "" {
		set.RefreshToken = refreshToken
	}
	return set, nil
}

func salesforceTokenSet(tok *oauth2.Token) *TokenSet {
	expiresAt := tok.Expiry
	if expiresAt.IsZero() {
		// Salesforce omits expires_in; session timeout defaults to 2h.
		expiresAt = time.Now().Add(SalesforceTokenLifetime)
	}
	instanceURL, _ := tok.Extra("instance_url").(string)
	return &TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    expiresAt,
		InstanceURL:  instanceURL,
	}
}

func (s *Salesforce) UserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://login.salesforce.com/services/oauth2/userinfo", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: salesforce userinfo: %v", pipelineerr.ErrTransientProvider, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus("salesforce", resp.StatusCode)
	}

	var info struct {
		UserID string `json:"user_id"`
		Email  string `json:"email"`
		Name   string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode salesforce userinfo: %w", err)
	}
	return &UserInfo{ID: info.UserID, Email: info.Email, Name: info.Name}, nil
}

type soqlResponse struct {
	Records []map[string]any `json:"records"`
}

func (s *Salesforce) query(ctx context.Context, tokens *TokenSet, soql string) ([]map[string]any, error) {
	if tokens.InstanceURL == "" {
		return nil, fmt.Errorf("%w: salesforce connection has no instance url", pipelineerr.ErrConfiguration)
	}
	endpoint := fmt.Sprintf("%s/services/data/%s/query?q=%s",
		strings.TrimRight(tokens.InstanceURL, "/"), salesforceAPIVersion, url.QueryEscape(soql))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: salesforce query: %v", pipelineerr.ErrTransientProvider, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus("salesforce", resp.StatusCode)
	}

	var parsed soqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode salesforce query response: %w", err)
	}
	return parsed.Records, nil
}

func (s *Salesforce) FetchDocuments(ctx context.Context, tokens *TokenSet) ([]SourceDocument, error) {
	var docs []SourceDocument

	accounts, err := s.query(ctx, tokens,
		"SELECT Id, Name, Description, LastModifiedDate FROM Account WHERE Description != null ORDER BY LastModifiedDate DESC LIMIT 200")
	if err != nil {
		return nil, err
	}
	for _, rec := range accounts {
		docs = append(docs, salesforceRecordDoc(tokens.InstanceURL, rec, "Name", "Description"))
	}

	cases, err := s.query(ctx, tokens,
		"SELECT Id, Subject, Description, LastModifiedDate FROM Case WHERE Description != null ORDER BY LastModifiedDate DESC LIMIT 200")
	if err != nil {
		return nil, err
	}
	for _, rec := range cases {
		docs = append(docs, salesforceRecordDoc(tokens.InstanceURL, rec, "Subject", "Description"))
	}
	return docs, nil
}

func salesforceRecordDoc(instanceURL string, rec map[string]any, titleField, bodyField string) SourceDocument {
	id, _ := rec["Id"].(string)
	title, _ := rec[titleField].(string)
	body, _ := rec[bodyField].(string)
	modifiedRaw, _ := rec["LastModifiedDate"].(string)
	modifiedAt, _ := time.Parse("2006-01-02T15:04:05.000-0700", modifiedRaw)

	return SourceDocument{
		ExternalID: id,
		Title:      title,
		Filename:   id + ".txt",
		Content:    []byte(title + "\n\n" + body),
		URL:        strings.TrimRight(instanceURL, "/") + "/" + id,
		ModifiedAt: modifiedAt,
	}
}
