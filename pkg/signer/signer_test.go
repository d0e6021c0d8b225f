package signer

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip04"
	"github.com/stretchr/testify/require"

	"harbor/pkg/errs"
)

func TestParseBunkerURI(t *testing.T) {
	pk := nostr.GeneratePrivateKey()
	pub, err := nostr.GetPublicKey(pk)
	require.NoError(t, err)

	pubkey, relays, secret, err := ParseBunkerURI(
		"bunker://" + pub + "?relay=wss://r1.example&relay=wss://r2.example&secret=s3cret")
	require.NoError(t, err)
	require.Equal(t, pub, pubkey)
	require.Equal(t, []string{"wss://r1.example", "wss://r2.example"}, relays)
	require.Equal(t, "s3cret", secret)
}

func TestParseBunkerURIRejections(t *testing.T) {
	for _, raw := range []string{
		"",
		"wss://relay.example",
		"bunker://tooshort",
		"bunker://?relay=wss://r.example",
	} {
		_, _, _, err := ParseBunkerURI(raw)
		require.Error(t, err, raw)
	}
}

func TestLocalSignerSignsAndVerifies(t *testing.T) {
	sk := nostr.GeneratePrivateKey()
	s, err := NewLocalSigner(sk)
	require.NoError(t, err)

	pub, err := s.PublicKey(context.Background())
	require.NoError(t, err)
	require.Len(t, pub, 64)

	ev := &nostr.Event{Kind: 1, Content: "hello", CreatedAt: nostr.Now(), Tags: nostr.Tags{}}
	require.NoError(t, s.Sign(context.Background(), ev))
	require.Equal(t, pub, ev.PubKey)
	ok, err := ev.CheckSignature()
	require.NoError(t, err)
	require.True(t, ok)
}

func TestUnavailableSigner(t *testing.T) {
	var s Unavailable
	ev := &nostr.Event{Kind: 1}
	require.ErrorIs(t, s.Sign(context.Background(), ev), errs.ErrSignerUnavailable)
	_, err := s.PublicKey(context.Background())
	require.ErrorIs(t, err, errs.ErrSignerUnavailable)
}

// fakeBunker plays the remote side: it decrypts each published request and
// feeds an encrypted response back through HandleResponse.
type fakeBunker struct {
	t        *testing.T
	remoteSK string
	userSK   string
	signer   *BunkerSigner
}

func (f *fakeBunker) Publish(ev *nostr.Event) []string {
	shared, err := nip04.ComputeSharedSecret(ev.PubKey, f.remoteSK)
	require.NoError(f.t, err)
	plain, err := nip04.Decrypt(ev.Content, shared)
	require.NoError(f.t, err)

	var req bunkerRequest
	require.NoError(f.t, json.Unmarshal([]byte(plain), &req))

	resp := bunkerResponse{ID: req.ID}
	switch req.Method {
	case "connect":
		resp.Result = "ack"
	case "get_public_key":
		pub, err := nostr.GetPublicKey(f.userSK)
		require.NoError(f.t, err)
		resp.Result = pub
	case "sign_event":
		var toSign nostr.Event
		require.NoError(f.t, json.Unmarshal([]byte(req.Params[0]), &toSign))
		require.NoError(f.t, toSign.Sign(f.userSK))
		signed, err := json.Marshal(toSign)
		require.NoError(f.t, err)
		resp.Result = string(signed)
	default:
		resp.Error = "unknown method " + req.Method
	}

	body, err := json.Marshal(resp)
	require.NoError(f.t, err)
	cipher, err := nip04.Encrypt(string(body), shared)
	require.NoError(f.t, err)

	reply := nostr.Event{
		Kind:      kindNostrConnect,
		CreatedAt: nostr.Now(),
		Content:   cipher,
		Tags:      nostr.Tags{{"p", ev.PubKey}},
	}
	require.NoError(f.t, reply.Sign(f.remoteSK))
	go f.signer.HandleResponse(&reply)
	return []string{"wss://bunker-relay.example"}
}

func newBunkerPair(t *testing.T) (*BunkerSigner, *fakeBunker, string) {
	remoteSK := nostr.GeneratePrivateKey()
	remotePub, err := nostr.GetPublicKey(remoteSK)
	require.NoError(t, err)
	userSK := nostr.GeneratePrivateKey()
	userPub, err := nostr.GetPublicKey(userSK)
	require.NoError(t, err)

	fb := &fakeBunker{t: t, remoteSK: remoteSK, userSK: userSK}
	s, err := NewBunkerSigner("bunker://"+remotePub+"?relay=wss://r.example&secret=tok", fb)
	require.NoError(t, err)
	fb.signer = s
	return s, fb, userPub
}

func TestBunkerSignerRoundTrip(t *testing.T) {
	s, _, userPub := newBunkerPair(t)
	ctx := context.Background()

	require.NoError(t, s.Connect(ctx))

	pub, err := s.PublicKey(ctx)
	require.NoError(t, err)
	require.Equal(t, userPub, pub)

	ev := &nostr.Event{Kind: 1, Content: "remote signed", CreatedAt: nostr.Now(), Tags: nostr.Tags{}}
	require.NoError(t, s.Sign(ctx, ev))
	require.Equal(t, userPub, ev.PubKey)
	ok, err := ev.CheckSignature()
	require.NoError(t, err)
	require.True(t, ok)
}

func TestBunkerSignerIgnoresForeignResponses(t *testing.T) {
	s, _, _ := newBunkerPair(t)

	// Wrong kind and wrong author are both dropped without panicking.
	s.HandleResponse(&nostr.Event{Kind: 1, PubKey: s.remotePubkey})
	s.HandleResponse(&nostr.Event{Kind: kindNostrConnect, PubKey: "someone-else"})
}

func TestBunkerSignerPublishFailure(t *testing.T) {
	remoteSK := nostr.GeneratePrivateKey()
	remotePub, err := nostr.GetPublicKey(remoteSK)
	require.NoError(t, err)

	s, err := NewBunkerSigner("bunker://"+remotePub, noRelays{})
	require.NoError(t, err)
	_, err = s.PublicKey(context.Background())
	require.ErrorIs(t, err, errs.ErrSignerUnavailable)
}

type noRelays struct{}

func (noRelays) Publish(*nostr.Event) []string { return nil }
