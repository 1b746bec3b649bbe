package oauthstate

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestConsumeIsSingleUse(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	payload := Payload{OrgID: "org-1", UserID: "user-1", Provider: "notion", Verifier: "v"}
	if err := store.Save(ctx, "nonce-1", payload); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Consume(ctx, "nonce-1")
	if err != nil {
		t.Fatalf("first Consume: %v", err)
	}
	if got != payload {
		t.Errorf("payload mismatch: %+v", got)
	}

	if _, err := store.Consume(ctx, "nonce-1"); !errors.Is(err, ErrStateNotFound) {
		t.Errorf("second Consume: got %v, want ErrStateNotFound", err)
	}
}

func TestConsumeUnknownState(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Consume(context.Background(), "never-issued"); !errors.Is(err, ErrStateNotFound) {
		t.Errorf("got %v, want ErrStateNotFound", err)
	}
}

func TestConsumeExpiredState(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	clock := time.Now()
	store.now = func() time.Time { return clock }

	store.Save(ctx, "nonce-1", Payload{OrgID: "org-1"})
	clock = clock.Add(TTL + time.Second)

	if _, err := store.Consume(ctx, "nonce-1"); !errors.Is(err, ErrStateNotFound) {
		t.Errorf("got %v, want ErrStateNotFound for expired state", err)
	}
}
