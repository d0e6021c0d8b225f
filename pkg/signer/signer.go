package signer

import (
	"context"
	"fmt"

	"github.com/nbd-wtf/go-nostr"

	"harbor/pkg/errs"
)

// Signer produces signatures for outgoing events. The engine never holds
// key material beyond what the configured signer encapsulates.
type Signer interface {
	// Sign fills in ID, PubKey, and Sig on the event.
	Sign(ctx context.Context, ev *nostr.Event) error
	// PublicKey returns the signing identity's public key.
	PublicKey(ctx context.Context) (string, error)
}

// LocalSigner signs with an in-process secret key.
type LocalSigner struct {
	sk     string
	pubkey string
}

// NewLocalSigner derives the public key up front so a bad key fails at
// construction, not first use.
func NewLocalSigner(secretKey string) (*LocalSigner, error) {
	pub, err := nostr.GetPublicKey(secretKey)
	if err != nil {
		return nil, fmt.Errorf("derive public key: %w", err)
	}
	return &LocalSigner{sk: secretKey, pubkey: pub}, nil
}

func (s *LocalSigner) Sign(_ context.Context, ev *nostr.Event) error {
	return ev.Sign(s.sk)
}

func (s *LocalSigner) PublicKey(_ context.Context) (string, error) {
	return s.pubkey, nil
}

// Unavailable is the signer used when no key material is configured. The
// engine runs read-only; publish attempts fail cleanly.
type Unavailable struct{}

func (Unavailable) Sign(context.Context, *nostr.Event) error {
	return errs.ErrSignerUnavailable
}

func (Unavailable) PublicKey(context.Context) (string, error) {
	return "", errs.ErrSignerUnavailable
}
