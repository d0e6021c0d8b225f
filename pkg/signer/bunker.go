package signer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip04"
	"go.uber.org/zap"

	"harbor/pkg/errs"
	"harbor/pkg/logger"
)

// kindNostrConnect carries remote-signing requests and responses.
const kindNostrConnect = 24133

const signTimeout = 10 * time.Second

// Publisher is the slice of the relay pool the bunker signer publishes
// through.
type Publisher interface {
	Publish(ev *nostr.Event) []string
}

type bunkerRequest struct {
	ID     string   `json:"id"`
	Method string   `json:"method"`
	Params []string `json:"params"`
}

type bunkerResponse struct {
	ID     string `json:"id"`
	Result string `json:"result"`
	Error  string `json:"error"`
}

// BunkerSigner forwards signing requests to a remote signer over the
// relay network, speaking nip04-encrypted kind-24133 events. It holds
// only an ephemeral client key; the user's key never leaves the bunker.
type BunkerSigner struct {
	remotePubkey string
	secret       string
	clientSK     string
	clientPub    string
	shared       []byte

	pub Publisher

	mu      sync.Mutex
	pending map[string]chan bunkerResponse

	userPubkey string
}

// ParseBunkerURI splits a bunker://<pubkey>?relay=...&secret=... URI.
func ParseBunkerURI(raw string) (pubkey string, relays []string, secret string, err error) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "bunker" {
		return "", nil, "", fmt.Errorf("invalid bunker uri: %q", raw)
	}
	pubkey = u.Host
	if len(pubkey) != 64 {
		return "", nil, "", fmt.Errorf("invalid bunker pubkey in %q", raw)
	}
	q := u.Query()
	relays = q["relay"]
	secret = q.Get("secret")
	return pubkey, relays, secret, nil
}

// NewBunkerSigner creates a signer for the given bunker URI, generating a
// fresh client keypair for the session.
func NewBunkerSigner(uri string, pub Publisher) (*BunkerSigner, error) {
	remote, _, secret, err := ParseBunkerURI(uri)
	if err != nil {
		return nil, err
	}
	sk := nostr.GeneratePrivateKey()
	clientPub, err := nostr.GetPublicKey(sk)
	if err != nil {
		return nil, fmt.Errorf("derive client key: %w", err)
	}
	shared, err := nip04.ComputeSharedSecret(remote, sk)
	if err != nil {
		return nil, fmt.Errorf("compute shared secret: %w", err)
	}
	return &BunkerSigner{
		remotePubkey: remote,
		secret:       secret,
		clientSK:     sk,
		clientPub:    clientPub,
		shared:       shared,
		pub:          pub,
		pending:      make(map[string]chan bunkerResponse),
	}, nil
}

// ClientPubkey returns the ephemeral session identity; responses from the
// bunker are addressed to it.
func (s *BunkerSigner) ClientPubkey() string { return s.clientPub }

// Connect performs the initial handshake. Call once after the relay pool
// is up.
func (s *BunkerSigner) Connect(ctx context.Context) error {
	params := []string{s.remotePubkey}
	if s.secret != "" {
		params = append(params, s.secret)
	}
	_, err := s.roundTrip(ctx, "connect", params)
	return err
}

// Sign asks the bunker to sign the event and copies the result back.
func (s *BunkerSigner) Sign(ctx context.Context, ev *nostr.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	result, err := s.roundTrip(ctx, "sign_event", []string{string(payload)})
	if err != nil {
		return err
	}
	var signed nostr.Event
	if err := json.Unmarshal([]byte(result), &signed); err != nil {
		return fmt.Errorf("parse signed event: %w", err)
	}
	ev.ID = signed.ID
	ev.PubKey = signed.PubKey
	ev.CreatedAt = signed.CreatedAt
	ev.Sig = signed.Sig
	return nil
}

// PublicKey fetches the user's public key from the bunker, caching it for
// the session.
func (s *BunkerSigner) PublicKey(ctx context.Context) (string, error) {
	s.mu.Lock()
	cached := s.userPubkey
	s.mu.Unlock()
	if cached != "" {
		return cached, nil
	}
	result, err := s.roundTrip(ctx, "get_public_key", nil)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.userPubkey = result
	s.mu.Unlock()
	return result, nil
}

// HandleResponse feeds an inbound kind-24133 event to whatever request is
// waiting on it. Events for other kinds or unknown requests are ignored.
func (s *BunkerSigner) HandleResponse(ev *nostr.Event) {
	if ev.Kind != kindNostrConnect || ev.PubKey != s.remotePubkey {
		return
	}
	plain, err := nip04.Decrypt(ev.Content, s.shared)
	if err != nil {
		logger.Log.Debug("bunker_decrypt_failed", zap.Error(err))
		return
	}
	var resp bunkerResponse
	if err := json.Unmarshal([]byte(plain), &resp); err != nil {
		logger.Log.Debug("bunker_bad_response", zap.Error(err))
		return
	}
	s.mu.Lock()
	ch, ok := s.pending[resp.ID]
	if ok {
		delete(s.pending, resp.ID)
	}
	s.mu.Unlock()
	if ok {
		ch <- resp
	}
}

func (s *BunkerSigner) roundTrip(ctx context.Context, method string, params []string) (string, error) {
	req := bunkerRequest{ID: uuid.NewString(), Method: method, Params: params}
	payload, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	cipher, err := nip04.Encrypt(string(payload), s.shared)
	if err != nil {
		return "", fmt.Errorf("encrypt request: %w", err)
	}

	ev := nostr.Event{
		Kind:      kindNostrConnect,
		CreatedAt: nostr.Now(),
		Content:   cipher,
		Tags:      nostr.Tags{{"p", s.remotePubkey}},
	}
	if err := ev.Sign(s.clientSK); err != nil {
		return "", fmt.Errorf("sign request: %w", err)
	}

	ch := make(chan bunkerResponse, 1)
	s.mu.Lock()
	s.pending[req.ID] = ch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, req.ID)
		s.mu.Unlock()
	}()

	if sent := s.pub.Publish(&ev); len(sent) == 0 {
		return "", errs.ErrSignerUnavailable
	}

	timer := time.NewTimer(signTimeout)
	defer timer.Stop()
	select {
	case resp := <-ch:
		if resp.Error != "" {
			return "", fmt.Errorf("bunker: %s", resp.Error)
		}
		return resp.Result, nil
	case <-timer.C:
		return "", errs.ErrSignerUnavailable
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
