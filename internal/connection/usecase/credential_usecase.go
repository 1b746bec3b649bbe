package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"unifydata-backend/internal/connection/domain"
	"unifydata-backend/internal/connection/repository"
	"unifydata-backend/pkg/connectors"
	"unifydata-backend/pkg/crypto"
	"unifydata-backend/pkg/logger"
	"unifydata-backend/pkg/oauthstate"
	"unifydata-backend/pkg/pipelineerr"
)

// refreshWindow is how close to expiry a token is treated as stale.
const refreshWindow = 5 * time.Minute

// ConnectorResolver resolves a source type to its connector. Satisfied by
// connectors.Registry.
type ConnectorResolver interface {
	Get(sourceType string) (connectors.Connector, error)
}

// CredentialUsecase owns the OAuth credential lifecycle: authorization,
// callback exchange, encrypted storage, and proactive refresh.
type CredentialUsecase interface {
	// BeginAuthorization issues a state nonce and PKCE verifier, stores
	// them, and returns the provider consent URL.
	BeginAuthorization(ctx context.Context, orgID, userID, sourceType string) (string, error)

	// CompleteAuthorization consumes the state, exchanges the code and
	// persists the encrypted token set as a connection.
	CompleteAuthorization(ctx context.Context, state, code string) (*domain.Connection, error)

	// ValidToken returns a usable token set for the connection, refreshing
	// first when expiry falls inside the refresh window.
	ValidToken(ctx context.Context, conn *domain.Connection) (*connectors.TokenSet, error)

	// Disconnect removes a connection and reports its org and source type
	// so the caller can purge derived data.
	Disconnect(ctx context.Context, orgID, connectionID string) (*domain.Connection, error)
}

type credentialUsecase struct {
	connections repository.ConnectionRepository
	registry    ConnectorResolver
	states      oauthstate.Store
	cipher      *crypto.TokenCipher
	cadence     time.Duration
	log         *logrus.Entry

	// refreshMu serializes refresh per connection so concurrent callers
	// cannot race a single-use refresh token.
	mu        sync.Mutex
	refreshMu map[string]*sync.Mutex
}

func NewCredentialUsecase(
	connections repository.ConnectionRepository,
	registry ConnectorResolver,
	states oauthstate.Store,
	cipher *crypto.TokenCipher,
	cadence time.Duration,
) CredentialUsecase {
	return &credentialUsecase{
		connections: connections,
		registry:    registry,
		states:      states,
		cipher:      cipher,
		cadence:     cadence,
		log:         logger.For("credentials"),
		refreshMu:   make(map[string]*sync.Mutex),
	}
}

func (u *credentialUsecase) BeginAuthorization(ctx context.Context, orgID, userID, sourceType string) (string, error) {
	connector, err := u.registry.Get(sourceType)
	if err != nil {
		return "", err
	}

	state := oauth2.GenerateVerifier()
	verifier := oauth2.GenerateVerifier()
	if err := u.states.Save(ctx, state, oauthstate.Payload{
		OrgID:    orgID,
		UserID:   userID,
		Provider: sourceType,
		Verifier: verifier,
	}); err != nil {
		return "", fmt.Errorf("save authorization state: %w", err)
	}

	u.log.WithFields(logrus.Fields{"org_id": orgID, "source_type": sourceType}).
		Info("authorization started")
	return connector.AuthorizationURL(state, verifier), nil
}

func (u *credentialUsecase) CompleteAuthorization(ctx context.Context, state, code string) (*domain.Connection, error) {
	payload, err := u.states.Consume(ctx, state)
	if err != nil {
		if errors.Is(err, oauthstate.ErrStateNotFound) {
			return nil, fmt.Errorf("%w: unknown or replayed oauth state", pipelineerr.ErrAuthentication)
		}
		return nil, err
	}

	connector, err := u.registry.Get(payload.Provider)
	if err != nil {
		return nil, err
	}

	tokens, err := connector.ExchangeCode(ctx, code, payload.Verifier)
	if err != nil {
		return nil, err
	}

	info, err := connector.UserInfo(ctx, tokens.AccessToken)
	if err != nil {
		return nil, err
	}

	conn, err := u.connections.FindByOrgAndType(payload.OrgID, payload.Provider)
	if err != nil {
		return nil, fmt.Errorf("find connection: %w", err)
	}
	if conn == nil {
		conn = &domain.Connection{
			OrgID:                payload.OrgID,
			UserID:               payload.UserID,
			SourceType:           payload.Provider,
			SyncFrequencySeconds: int(u.cadence.Seconds()),
		}
	}

	if err := u.storeTokens(conn, tokens); err != nil {
		return nil, err
	}
	conn.Status = domain.StatusConnected
	conn.AccountEmail = info.Email
	conn.AccountName = info.Name
	next := time.Now()
	conn.NextSyncAt = &next

	if conn.CreatedAt.IsZero() {
		err = u.connections.Create(conn)
	} else {
		err = u.connections.Update(conn)
	}
	if err != nil {
		return nil, fmt.Errorf("persist connection: %w", err)
	}

	u.log.WithFields(logrus.Fields{
		"org_id":        conn.OrgID,
		"source_type":   conn.SourceType,
		"connection_id": conn.ID,
	}).Info("connection authorized")
	return conn, nil
}

func (u *credentialUsecase) storeTokens(conn *domain.Connection, tokens *connectors.TokenSet) error {
	accessEnc, err := u.cipher.Encrypt(tokens.AccessToken)
	if err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}
	conn.AccessTokenEnc = accessEnc

	if tokens.RefreshToken != "" {
		refreshEnc, err := u.cipher.Encrypt(tokens.RefreshToken)
		if err != nil {
			return fmt.Errorf("encrypt refresh token: %w", err)
		}
		conn.RefreshTokenEnc = refreshEnc
	}

	conn.TokenExpiresAt = tokens.ExpiresAt
	if tokens.Scope != "" {
		conn.Scope = tokens.Scope
	}
	if tokens.InstanceURL != "" {
		conn.InstanceURL = tokens.InstanceURL
	}
	if tokens.WorkspaceID != "" {
		conn.WorkspaceID = tokens.WorkspaceID
	}
	return nil
}

func (u *credentialUsecase) loadTokens(conn *domain.Connection) (*connectors.TokenSet, error) {
	access, err := u.cipher.Decrypt(conn.AccessTokenEnc)
	if err != nil {
		return nil, fmt.Errorf("decrypt access token: %w", err)
	}
	tokens := &connectors.TokenSet{
		AccessToken: access,
		ExpiresAt:   conn.TokenExpiresAt,
		Scope:       conn.Scope,
		InstanceURL: conn.InstanceURL,
		WorkspaceID: conn.WorkspaceID,
	}
	if conn.RefreshTokenEnc != "" {
		refresh, err := u.cipher.Decrypt(conn.RefreshTokenEnc)
		if err != nil {
			return nil, fmt.Errorf("decrypt refresh token: %w", err)
		}
		tokens.RefreshToken = refresh
	}
	return tokens, nil
}

func (u *credentialUsecase) lockFor(connectionID string) *sync.Mutex {
	u.mu.Lock()
	defer u.mu.Unlock()
	m, ok := u.refreshMu[connectionID]
	if !ok {
		m = &sync.Mutex{}
		u.refreshMu[connectionID] = m
	}
	return m
}

func (u *credentialUsecase) ValidToken(ctx context.Context, conn *domain.Connection) (*connectors.TokenSet, error) {
	tokens, err := u.loadTokens(conn)
	if err != nil {
		return nil, err
	}
	if time.Until(tokens.ExpiresAt) > refreshWindow {
		return tokens, nil
	}

	lock := u.lockFor(conn.ID)
	lock.Lock()
	defer lock.Unlock()

	// Another caller may have refreshed while we waited for the lock.
	fresh, err := u.connections.FindByID(conn.ID)
	if err != nil {
		return nil, fmt.Errorf("reload connection: %w", err)
	}
	if fresh == nil {
		return nil, fmt.Errorf("%w: connection %s no longer exists", pipelineerr.ErrAuthentication, conn.ID)
	}
	*conn = *fresh
	tokens, err = u.loadTokens(conn)
	if err != nil {
		return nil, err
	}
	if time.Until(tokens.ExpiresAt) > refreshWindow {
		return tokens, nil
	}

	connector, err := u.registry.Get(conn.SourceType)
	if err != nil {
		return nil, err
	}
	if tokens.RefreshToken == "" {
		return nil, fmt.Errorf("%w: token expired and no refresh token stored", pipelineerr.ErrAuthentication)
	}

	refreshed, err := connector.Refresh(ctx, tokens.RefreshToken)
	if err != nil {
		if errors.Is(err, pipelineerr.ErrRefreshNotSupported) {
			// Non-expiring providers should never land here; the stored
			// expiry is wrong, not the token.
			return tokens, nil
		}
		conn.Status = domain.StatusError
		conn.LastSyncError = "token refresh failed"
		if updateErr := u.connections.Update(conn); updateErr != nil {
			u.log.WithError(updateErr).Warn("failed to mark connection errored")
		}
		return nil, err
	}

	if refreshed.InstanceURL == "" {
		refreshed.InstanceURL = tokens.InstanceURL
	}
	if refreshed.WorkspaceID == "" {
		refreshed.WorkspaceID = tokens.WorkspaceID
	}
	if err := u.storeTokens(conn, refreshed); err != nil {
		return nil, err
	}
	if err := u.connections.Update(conn); err != nil {
		return nil, fmt.Errorf("persist refreshed tokens: %w", err)
	}

	u.log.WithFields(logrus.Fields{
		"connection_id": conn.ID,
		"source_type":   conn.SourceType,
	}).Info("access token refreshed")
	return refreshed, nil
}

func (u *credentialUsecase) Disconnect(ctx context.Context, orgID, connectionID string) (*domain.Connection, error) {
	conn, err := u.connections.FindByID(connectionID)
	if err != nil {
		return nil, fmt.Errorf("find connection: %w", err)
	}
	if conn == nil || conn.OrgID != orgID {
		return nil, fmt.Errorf("%w: connection not found", pipelineerr.ErrAuthentication)
	}
	if err := u.connections.Delete(connectionID); err != nil {
		return nil, fmt.Errorf("delete connection: %w", err)
	}

	u.mu.Lock()
	delete(u.refreshMu, connectionID)
	u.mu.Unlock()

	u.log.WithFields(logrus.Fields{
		"connection_id": connectionID,
		"source_type":   conn.SourceType,
	}).Info("connection disconnected")
	return conn, nil
}
