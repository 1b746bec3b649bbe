package connectors

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"unifydata-backend/pkg/pipelineerr"
)

func TestAuthorizationURLCarriesPKCEChallenge(t *testing.T) {
	verifier := oauth2.GenerateVerifier()
	wantChallenge := oauth2.S256ChallengeFromVerifier(verifier)

	tests := []struct {
		name string
		c    Connector
	}{
		{"google_drive", NewGoogleDrive("id", "secret", "http://cb")},
		{"salesforce", NewSalesforce("id", "secret", "http://cb")},
		{"slack", NewSlack("id", "secret", "http://cb")},
	}
	for _, tt := range tests {
		u, err := url.Parse(tt.c.AuthorizationURL("state-nonce", verifier))
		if err != nil {
			t.Fatalf("%s: parse url: %v", tt.name, err)
		}
		q := u.Query()
		if got := q.Get("code_challenge"); got != wantChallenge {
			t.Errorf("%s: code_challenge = %q, want %q", tt.name, got, wantChallenge)
		}
		if got := q.Get("code_challenge_method"); got != "S256" {
			t.Errorf("%s: code_challenge_method = %q", tt.name, got)
		}
		if got := q.Get("state"); got != "state-nonce" {
			t.Errorf("%s: state = %q", tt.name, got)
		}
	}
}

func TestNotionAuthorizationURLCarriesState(t *testing.T) {
	u, err := url.Parse(NewNotion("id", "secret", "http://cb").AuthorizationURL("state-nonce", "unused"))
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if got := u.Query().Get("state"); got != "state-nonce" {
		t.Errorf("state = %q", got)
	}
}

func TestSlackExchangeAppliesNonExpiringLifetime(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true,"access_token":"xoxb-1","scope":"channels:read","team":{"id":"T1"}}`))
	}))
	defer srv.Close()

	s := NewSlack("id", "secret", "http://cb")
	s.apiBase = srv.URL

	tokens, err := s.ExchangeCode(context.Background(), "code", "verifier")
	if err != nil {
		t.Fatalf("ExchangeCode: %v", err)
	}
	if tokens.AccessToken != "xoxb-1" || tokens.WorkspaceID != "T1" {
		t.Errorf("unexpected token set: %+v", tokens)
	}

	// No expires_in in the response: the ten-year default applies.
	minExpiry := time.Now().Add(NonExpiringLifetime - time.Minute)
	if tokens.ExpiresAt.Before(minExpiry) {
		t.Errorf("expiry %v earlier than non-expiring default", tokens.ExpiresAt)
	}
}

func TestSlackExchangeSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":false,"error":"invalid_code"}`))
	}))
	defer srv.Close()

	s := NewSlack("id", "secret", "http://cb")
	s.apiBase = srv.URL

	_, err := s.ExchangeCode(context.Background(), "bad", "verifier")
	if !errors.Is(err, pipelineerr.ErrAuthentication) {
		t.Errorf("got %v, want ErrAuthentication", err)
	}
}

func TestNonExpiringProvidersRejectRefresh(t *testing.T) {
	for _, c := range []Connector{
		NewSlack("id", "secret", "http://cb"),
		NewNotion("id", "secret", "http://cb"),
	} {
		_, err := c.Refresh(context.Background(), "any")
		if !errors.Is(err, pipelineerr.ErrRefreshNotSupported) {
			t.Errorf("%s: got %v, want ErrRefreshNotSupported", c.Type(), err)
		}
	}
}

func TestClassifyStatus(t *testing.T) {
	if err := classifyStatus("p", http.StatusUnauthorized); !errors.Is(err, pipelineerr.ErrAuthentication) {
		t.Errorf("401: %v", err)
	}
	if err := classifyStatus("p", http.StatusTooManyRequests); !errors.Is(err, pipelineerr.ErrTransientProvider) {
		t.Errorf("429: %v", err)
	}
	if err := classifyStatus("p", http.StatusBadGateway); !errors.Is(err, pipelineerr.ErrTransientProvider) {
		t.Errorf("502: %v", err)
	}
}
