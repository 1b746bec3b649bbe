package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"unifydata-backend/internal/connection/domain"
	"unifydata-backend/pkg/connectors"
	"unifydata-backend/pkg/crypto"
	"unifydata-backend/pkg/oauthstate"
	"unifydata-backend/pkg/pipelineerr"
)

// fakeConnRepo is an in-memory ConnectionRepository.
type fakeConnRepo struct {
	mu    sync.Mutex
	conns map[string]*domain.Connection
	next  int
}

func newFakeConnRepo() *fakeConnRepo {
	return &fakeConnRepo{conns: make(map[string]*domain.Connection)}
}

func (r *fakeConnRepo) Create(conn *domain.Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conn.ID == "" {
		r.next++
		conn.ID = fmt.Sprintf("conn-%d", r.next)
	}
	conn.CreatedAt = time.Now()
	clone := *conn
	r.conns[conn.ID] = &clone
	return nil
}

func (r *fakeConnRepo) FindByID(id string) (*domain.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conn, ok := r.conns[id]; ok {
		clone := *conn
		return &clone, nil
	}
	return nil, nil
}

func (r *fakeConnRepo) FindByOrg(orgID string) ([]*domain.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Connection
	for _, conn := range r.conns {
		if conn.OrgID == orgID {
			clone := *conn
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *fakeConnRepo) FindByOrgAndType(orgID, sourceType string) (*domain.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, conn := range r.conns {
		if conn.OrgID == orgID && conn.SourceType == sourceType {
			clone := *conn
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *fakeConnRepo) Update(conn *domain.Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *conn
	r.conns[conn.ID] = &clone
	return nil
}

func (r *fakeConnRepo) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
	return nil
}

func (r *fakeConnRepo) FindDueForSync(time.Time) ([]*domain.Connection, error) { return nil, nil }

// fakeConnector scripts the provider side of the OAuth flow.
type fakeConnector struct {
	sourceType   string
	exchanged    *connectors.TokenSet
	refreshed    *connectors.TokenSet
	refreshErr   error
	refreshCalls int
	mu           sync.Mutex
}

func (f *fakeConnector) Type() string { return f.sourceType }
func (f *fakeConnector) AuthorizationURL(state, verifier string) string {
	return "https://provider/authorize?state=" + state
}
func (f *fakeConnector) ExchangeCode(_ context.Context, code, verifier string) (*connectors.TokenSet, error) {
	if f.exchanged == nil {
		return nil, errors.New("no exchange scripted")
	}
	return f.exchanged, nil
}
func (f *fakeConnector) Refresh(_ context.Context, refreshToken string) (*connectors.TokenSet, error) {
	f.mu.Lock()
	f.refreshCalls++
	f.mu.Unlock()
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return f.refreshed, nil
}
func (f *fakeConnector) UserInfo(_ context.Context, _ string) (*connectors.UserInfo, error) {
	return &connectors.UserInfo{ID: "u1", Email: "owner@example.com", Name: "Owner"}, nil
}
func (f *fakeConnector) FetchDocuments(_ context.Context, _ *connectors.TokenSet) ([]connectors.SourceDocument, error) {
	return nil, nil
}

type fakeResolver struct {
	connector *fakeConnector
}

func (r *fakeResolver) Get(sourceType string) (connectors.Connector, error) {
	if r.connector != nil && r.connector.sourceType == sourceType {
		return r.connector, nil
	}
	return nil, fmt.Errorf("%w: no connector for %s", pipelineerr.ErrConfiguration, sourceType)
}

func newTestUsecase(t *testing.T, connector *fakeConnector) (CredentialUsecase, *fakeConnRepo, oauthstate.Store) {
	t.Helper()
	cipher, err := crypto.NewTokenCipher("test-secret")
	if err != nil {
		t.Fatalf("NewTokenCipher: %v", err)
	}
	repo := newFakeConnRepo()
	states := oauthstate.NewMemoryStore()
	u := NewCredentialUsecase(repo, &fakeResolver{connector: connector}, states, cipher, time.Hour)
	return u, repo, states
}

func TestAuthorizationRoundtripStoresEncryptedTokens(t *testing.T) {
	ctx := context.Background()
	connector := &fakeConnector{
		sourceType: "notion",
		exchanged: &connectors.TokenSet{
			AccessToken: "secret-access",
			ExpiresAt:   time.Now().Add(connectors.NonExpiringLifetime),
			WorkspaceID: "ws-1",
		},
	}
	u, repo, _ := newTestUsecase(t, connector)

	authURL, err := u.BeginAuthorization(ctx, "org-1", "user-1", "notion")
	if err != nil {
		t.Fatalf("BeginAuthorization: %v", err)
	}
	if authURL == "" {
		t.Fatal("empty authorization url")
	}

	// Extract the state from the scripted URL.
	state := authURL[len("https://provider/authorize?state="):]
	conn, err := u.CompleteAuthorization(ctx, state, "auth-code")
	if err != nil {
		t.Fatalf("CompleteAuthorization: %v", err)
	}

	if conn.Status != domain.StatusConnected {
		t.Errorf("status = %s", conn.Status)
	}
	if conn.AccountEmail != "owner@example.com" {
		t.Errorf("account email = %q", conn.AccountEmail)
	}

	stored, _ := repo.FindByID(conn.ID)
	if stored.AccessTokenEnc == "secret-access" || stored.AccessTokenEnc == "" {
		t.Error("access token stored in plaintext or missing")
	}

	// The stored ciphertext must decrypt back through ValidToken.
	tokens, err := u.ValidToken(ctx, stored)
	if err != nil {
		t.Fatalf("ValidToken: %v", err)
	}
	if tokens.AccessToken != "secret-access" {
		t.Errorf("decrypted token = %q", tokens.AccessToken)
	}
}

func TestCompleteAuthorizationRejectsReplayedState(t *testing.T) {
	ctx := context.Background()
	connector := &fakeConnector{
		sourceType: "notion",
		exchanged:  &connectors.TokenSet{AccessToken: "a", ExpiresAt: time.Now().Add(time.Hour)},
	}
	u, _, _ := newTestUsecase(t, connector)

	authURL, _ := u.BeginAuthorization(ctx, "org-1", "user-1", "notion")
	state := authURL[len("https://provider/authorize?state="):]

	if _, err := u.CompleteAuthorization(ctx, state, "code"); err != nil {
		t.Fatalf("first callback: %v", err)
	}
	if _, err := u.CompleteAuthorization(ctx, state, "code"); !errors.Is(err, pipelineerr.ErrAuthentication) {
		t.Errorf("replayed callback: got %v, want ErrAuthentication", err)
	}
}

func TestValidTokenRefreshesInsideWindow(t *testing.T) {
	ctx := context.Background()
	connector := &fakeConnector{
		sourceType: "google_drive",
		refreshed: &connectors.TokenSet{
			AccessToken:  "new-access",
			RefreshToken: "new-refresh",
			ExpiresAt:    time.Now().Add(time.Hour),
		},
	}
	u, repo, _ := newTestUsecase(t, connector)

	conn := seedConnection(t, u.(*credentialUsecase), repo, "google_drive", time.Now().Add(time.Minute))

	tokens, err := u.ValidToken(ctx, conn)
	if err != nil {
		t.Fatalf("ValidToken: %v", err)
	}
	if tokens.AccessToken != "new-access" {
		t.Errorf("expected refreshed token, got %q", tokens.AccessToken)
	}
	if connector.refreshCalls != 1 {
		t.Errorf("refresh calls = %d, want 1", connector.refreshCalls)
	}

	// Subsequent call uses the fresh token without another refresh.
	stored, _ := repo.FindByID(conn.ID)
	if _, err := u.ValidToken(ctx, stored); err != nil {
		t.Fatalf("second ValidToken: %v", err)
	}
	if connector.refreshCalls != 1 {
		t.Errorf("refresh calls after reuse = %d, want 1", connector.refreshCalls)
	}
}

func TestValidTokenSkipsRefreshOutsideWindow(t *testing.T) {
	ctx := context.Background()
	connector := &fakeConnector{sourceType: "google_drive"}
	u, repo, _ := newTestUsecase(t, connector)

	conn := seedConnection(t, u.(*credentialUsecase), repo, "google_drive", time.Now().Add(time.Hour))

	tokens, err := u.ValidToken(ctx, conn)
	if err != nil {
		t.Fatalf("ValidToken: %v", err)
	}
	if tokens.AccessToken != "stored-access" {
		t.Errorf("token = %q", tokens.AccessToken)
	}
	if connector.refreshCalls != 0 {
		t.Errorf("unexpected refresh calls: %d", connector.refreshCalls)
	}
}

func TestValidTokenRefreshFailureMarksConnection(t *testing.T) {
	ctx := context.Background()
	connector := &fakeConnector{
		sourceType: "google_drive",
		refreshErr: fmt.Errorf("%w: invalid_grant", pipelineerr.ErrAuthentication),
	}
	u, repo, _ := newTestUsecase(t, connector)

	conn := seedConnection(t, u.(*credentialUsecase), repo, "google_drive", time.Now().Add(time.Minute))

	if _, err := u.ValidToken(ctx, conn); !errors.Is(err, pipelineerr.ErrAuthentication) {
		t.Fatalf("got %v, want ErrAuthentication", err)
	}
	stored, _ := repo.FindByID(conn.ID)
	if stored.Status != domain.StatusError {
		t.Errorf("status = %s, want error", stored.Status)
	}
}

// seedConnection persists a connected source with encrypted tokens expiring
// at the given time.
func seedConnection(t *testing.T, u *credentialUsecase, repo *fakeConnRepo, sourceType string, expiresAt time.Time) *domain.Connection {
	t.Helper()
	conn := &domain.Connection{
		OrgID:      "org-1",
		UserID:     "user-1",
		SourceType: sourceType,
		Status:     domain.StatusConnected,
	}
	if err := u.storeTokens(conn, &connectors.TokenSet{
		AccessToken:  "stored-access",
		RefreshToken: "stored-refresh",
		ExpiresAt:    expiresAt,
	}); err != nil {
		t.Fatalf("storeTokens: %v", err)
	}
	if err := repo.Create(conn); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return conn
}
