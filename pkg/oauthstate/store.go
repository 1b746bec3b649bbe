// Package oauthstate holds the short-lived state records issued when an OAuth
// authorization flow starts. A state is single-use: consuming it removes it,
// so a replayed callback fails.
package oauthstate

import (
	"context"
	"errors"
	"time"
)

// TTL is how long an issued state stays redeemable.
const TTL = 10 * time.Minute

var ErrStateNotFound = errors.New("oauth state not found or already used")

// Payload ties a pending authorization to the tenant and user who started it,
// plus the PKCE verifier needed at token exchange.
type Payload struct {
	OrgID    string `json:"org_id"`
	UserID   string `json:"user_id"`
	Provider string `json:"provider"`
	Verifier string `json:"verifier"`
}

type Store interface {
	// Save records a new state under the given nonce with the store's TTL.
	Save(ctx context.Context, state string, payload Payload) error

	// Consume atomically reads and deletes a state. A second Consume of the
	// same nonce, or a Consume after expiry, returns ErrStateNotFound.
	Consume(ctx context.Context, state string) (Payload, error)
}
