// Package connectors implements the OAuth lifecycle and document fetching for
// each supported source provider. All flows use the authorization code grant
// with PKCE.
package connectors

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"unifydata-backend/pkg/pipelineerr"
)

// Token lifetimes applied when a provider omits expires_in. Slack and Notion
// tokens do not expire; ten years keeps them permanently inside the validity
// window without a special case in the credential manager.
const (
	GoogleTokenLifetime     = time.Hour
	SalesforceTokenLifetime = 2 * time.Hour
	NonExpiringLifetime     = 3650 * 24 * time.Hour
)

// TokenSet is a provider-issued credential, decrypted and ready to use.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Scope        string

	// InstanceURL is the per-org API host Salesforce returns at exchange.
	InstanceURL string
	// WorkspaceID identifies the Slack team or Notion workspace.
	WorkspaceID string
}

type UserInfo struct {
	ID    string
	Email string
	Name  string
}

// SourceDocument is one fetched item before normalization. Content carries the
// raw payload; Filename hints at the format for providers that serve files.
type SourceDocument struct {
	ExternalID string
	Title      string
	Filename   string
	Content    []byte
	URL        string
	ModifiedAt time.Time
}

type Connector interface {
	// Type is the source type key, e.g. "google_drive".
	Type() string

	// AuthorizationURL builds the provider consent URL carrying the state
	// nonce and the S256 challenge derived from verifier.
	AuthorizationURL(state, verifier string) string

	// ExchangeCode redeems the callback code, proving possession of the
	// PKCE verifier issued at authorization time.
	ExchangeCode(ctx context.Context, code, verifier string) (*TokenSet, error)

	// Refresh obtains a new access token. Providers whose tokens never
	// expire return pipelineerr.ErrRefreshNotSupported.
	Refresh(ctx context.Context, refreshToken string) (*TokenSet, error)

	// UserInfo identifies the connected account.
	UserInfo(ctx context.Context, accessToken string) (*UserInfo, error)

	// FetchDocuments lists the documents currently visible to the
	// credential.
	FetchDocuments(ctx context.Context, tokens *TokenSet) ([]SourceDocument, error)
}

// classifyStatus maps a provider HTTP status onto the pipeline error taxonomy.
func classifyStatus(provider string, status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %s returned %d", pipelineerr.ErrAuthentication, provider, status)
	case status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("%w: %s returned %d", pipelineerr.ErrTransientProvider, provider, status)
	default:
		return fmt.Errorf("%s returned unexpected status %d", provider, status)
	}
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}
