package sync

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/casper-network/highway/internal/crypto"
	"github.com/casper-network/highway/internal/eventloop"
	"github.com/casper-network/highway/internal/highway/model"
	"github.com/casper-network/highway/internal/storage"
)

// --- test helpers ---

type fakeKnownChecker struct {
	known map[model.VoteHash]bool
}

func (f *fakeKnownChecker) HasVote(h model.VoteHash) bool {
	return f.known[h]
}

type fakeVoteProvider struct {
	votes map[model.VoteHash]model.SignedWireVote
	head  model.Panorama
	fail  map[model.VoteHash]bool
}

func newFakeVoteProvider() *fakeVoteProvider {
	return &fakeVoteProvider{
		votes: make(map[model.VoteHash]model.SignedWireVote),
		fail:  make(map[model.VoteHash]bool),
	}
}

func (p *fakeVoteProvider) FetchVote(ctx context.Context, h model.VoteHash) (model.SignedWireVote, error) {
	if p.fail[h] {
		return model.SignedWireVote{}, errors.New("fake: peer refused")
	}
	sv, ok := p.votes[h]
	if !ok {
		return model.SignedWireVote{}, errors.New("fake: vote not found")
	}
	return sv, nil
}

func (p *fakeVoteProvider) FetchHeadPanorama(ctx context.Context) (model.Panorama, error) {
	return p.head, nil
}

// chain builds a 3-vote causal chain from a single validator: v0 <- v1 <- v2.
type chain struct {
	pub   ed25519.PublicKey
	votes []model.SignedWireVote
	hash  []model.VoteHash
	hasher eventloop.Hasher
}

func buildChain(t *testing.T) chain {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	hasher := crypto.NewSigner(priv)

	sign := func(panorama model.Panorama, seq uint64) (model.SignedWireVote, model.VoteHash) {
		wv := model.WireVote{
			Panorama:  panorama,
			Creator:   0,
			Value:     nil,
			SeqNumber: seq,
			Timestamp: model.Timestamp(seq),
		}
		sv := model.SignedWireVote{Vote: wv, Signature: ed25519.Sign(priv, wv.SigningPayload())}
		return sv, hasher.Hash(sv)
	}

	v0, h0 := sign(model.Panorama{}, 0)
	v1, h1 := sign(model.Panorama{0: model.CorrectObservation(h0)}, 1)
	v2, h2 := sign(model.Panorama{0: model.CorrectObservation(h1)}, 2)

	return chain{
		pub:    pub,
		votes:  []model.SignedWireVote{v0, v1, v2},
		hash:   []model.VoteHash{h0, h1, h2},
		hasher: hasher,
	}
}

// --- Fetcher tests ---

func TestFetcherWalksFullChainWhenNothingKnown(t *testing.T) {
	c := buildChain(t)
	provider := newFakeVoteProvider()
	for i, h := range c.hash {
		provider.votes[h] = c.votes[i]
	}
	provider.head = model.Panorama{0: model.CorrectObservation(c.hash[2])}

	fetcher := NewFetcher(provider, &fakeKnownChecker{known: map[model.VoteHash]bool{}})
	target, err := fetcher.FetchHeadPanorama(context.Background())
	if err != nil {
		t.Fatalf("fetch head panorama: %v", err)
	}

	missing, err := fetcher.FetchMissing(context.Background(), target)
	if err != nil {
		t.Fatalf("fetch missing: %v", err)
	}
	if len(missing) != 3 {
		t.Fatalf("expected 3 missing votes, got %d", len(missing))
	}
	// Ancestors must come before descendants.
	for i, f := range missing {
		if f.hash != c.hash[i] {
			t.Fatalf("missing[%d] = %s, want %s (wrong topological order)", i, f.hash, c.hash[i])
		}
	}
}

func TestFetcherStopsAtKnownVotes(t *testing.T) {
	c := buildChain(t)
	provider := newFakeVoteProvider()
	for i, h := range c.hash {
		provider.votes[h] = c.votes[i]
	}
	provider.head = model.Panorama{0: model.CorrectObservation(c.hash[2])}

	known := &fakeKnownChecker{known: map[model.VoteHash]bool{c.hash[0]: true}}
	fetcher := NewFetcher(provider, known)

	missing, err := fetcher.FetchMissing(context.Background(), provider.head)
	if err != nil {
		t.Fatalf("fetch missing: %v", err)
	}
	if len(missing) != 2 {
		t.Fatalf("expected 2 missing votes (v0 already known), got %d", len(missing))
	}
	if missing[0].hash != c.hash[1] || missing[1].hash != c.hash[2] {
		t.Fatal("expected v1 then v2")
	}
}

func TestFetcherReturnsNothingWhenFullyCaughtUp(t *testing.T) {
	c := buildChain(t)
	provider := newFakeVoteProvider()
	provider.head = model.Panorama{0: model.CorrectObservation(c.hash[2])}

	known := &fakeKnownChecker{known: map[model.VoteHash]bool{c.hash[2]: true}}
	fetcher := NewFetcher(provider, known)

	missing, err := fetcher.FetchMissing(context.Background(), provider.head)
	if err != nil {
		t.Fatalf("fetch missing: %v", err)
	}
	if len(missing) != 0 {
		t.Fatalf("expected no missing votes, got %d", len(missing))
	}
}

func TestFetcherPropagatesPeerError(t *testing.T) {
	c := buildChain(t)
	provider := newFakeVoteProvider()
	provider.votes[c.hash[2]] = c.votes[2]
	provider.fail[c.hash[1]] = true
	provider.head = model.Panorama{0: model.CorrectObservation(c.hash[2])}

	fetcher := NewFetcher(provider, &fakeKnownChecker{known: map[model.VoteHash]bool{}})
	_, err := fetcher.FetchMissing(context.Background(), provider.head)
	if err == nil {
		t.Fatal("expected error when a peer refuses a vote request")
	}
}

func TestFetchHeadPanoramaNoProvider(t *testing.T) {
	fetcher := NewFetcher(nil, &fakeKnownChecker{known: map[model.VoteHash]bool{}})
	if _, err := fetcher.FetchHeadPanorama(context.Background()); err == nil {
		t.Fatal("expected error with no provider configured")
	}
}

// --- Verifier tests ---

func TestVerifierAcceptsValidVote(t *testing.T) {
	c := buildChain(t)
	v := NewVerifier([]ed25519.PublicKey{c.pub}, c.hasher)
	if err := v.VerifyVote(c.votes[0], c.hash[0]); err != nil {
		t.Fatalf("expected valid vote: %v", err)
	}
}

func TestVerifierRejectsUnknownValidator(t *testing.T) {
	c := buildChain(t)
	v := NewVerifier([]ed25519.PublicKey{}, c.hasher) // empty pubKeys table
	if err := v.VerifyVote(c.votes[0], c.hash[0]); err == nil {
		t.Fatal("expected error for unknown validator index")
	}
}

func TestVerifierRejectsBadSignature(t *testing.T) {
	c := buildChain(t)
	tampered := c.votes[0]
	tampered.Signature = append([]byte(nil), tampered.Signature...)
	tampered.Signature[0] ^= 0xFF

	v := NewVerifier([]ed25519.PublicKey{c.pub}, c.hasher)
	if err := v.VerifyVote(tampered, c.hash[0]); err == nil {
		t.Fatal("expected error for tampered signature")
	}
}

func TestVerifierRejectsHashMismatch(t *testing.T) {
	c := buildChain(t)
	v := NewVerifier([]ed25519.PublicKey{c.pub}, c.hasher)
	if err := v.VerifyVote(c.votes[0], c.hash[1]); err == nil {
		t.Fatal("expected error when claimed hash does not match content")
	}
}

// --- Catchup tests ---

func TestCatchupFetchesAndSubmitsFullChain(t *testing.T) {
	c := buildChain(t)
	provider := newFakeVoteProvider()
	for i, h := range c.hash {
		provider.votes[h] = c.votes[i]
	}
	provider.head = model.Panorama{0: model.CorrectObservation(c.hash[2])}

	fetcher := NewFetcher(provider, &fakeKnownChecker{known: map[model.VoteHash]bool{}})
	verifier := NewVerifier([]ed25519.PublicKey{c.pub}, c.hasher)
	loop := eventloop.New(nil, nil, nil, c.hasher, nil, nil, nil, nil)

	catchup := NewCatchup(fetcher, verifier, loop, nil)
	if catchup.Status() != StatusIdle {
		t.Fatalf("expected initial status Idle, got %s", catchup.Status())
	}

	if err := catchup.Run(context.Background()); err != nil {
		t.Fatalf("catch-up run: %v", err)
	}

	if catchup.Status() != StatusCaughtUp {
		t.Fatalf("expected CaughtUp status, got %s", catchup.Status())
	}
	if catchup.VotesFetched() != 3 {
		t.Fatalf("expected 3 votes fetched, got %d", catchup.VotesFetched())
	}
}

func TestCatchupFailsOnInvalidSignature(t *testing.T) {
	c := buildChain(t)
	tampered := c.votes[0]
	tampered.Signature = append([]byte(nil), tampered.Signature...)
	tampered.Signature[0] ^= 0xFF

	provider := newFakeVoteProvider()
	provider.votes[c.hash[0]] = tampered
	provider.head = model.Panorama{0: model.CorrectObservation(c.hash[0])}

	fetcher := NewFetcher(provider, &fakeKnownChecker{known: map[model.VoteHash]bool{}})
	verifier := NewVerifier([]ed25519.PublicKey{c.pub}, c.hasher)
	loop := eventloop.New(nil, nil, nil, c.hasher, nil, nil, nil, nil)

	catchup := NewCatchup(fetcher, verifier, loop, nil)
	if err := catchup.Run(context.Background()); err == nil {
		t.Fatal("expected catch-up to fail on a vote with an invalid signature")
	}
}

func TestSyncStatusString(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusIdle, "Idle"},
		{StatusFetchingVotes, "FetchingVotes"},
		{StatusCaughtUp, "CaughtUp"},
		{Status(99), "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", tt.status, got, tt.want)
		}
	}
}

// --- Snapshot tests ---

type fakeSnapshotProvider struct {
	root model.ConsensusValue
	data map[string][]byte
	err  error
}

func (p *fakeSnapshotProvider) FetchStateSnapshot(ctx context.Context) (model.ConsensusValue, map[string][]byte, error) {
	return p.root, p.data, p.err
}

func TestVerifySnapshotRootMatch(t *testing.T) {
	root := model.ConsensusValue{0xAA, 0xBB}
	if err := VerifySnapshotRoot(root, root); err != nil {
		t.Fatalf("expected matching roots to verify: %v", err)
	}
}

func TestVerifySnapshotRootMismatch(t *testing.T) {
	want := model.ConsensusValue{0x01}
	got := model.ConsensusValue{0x02}
	if err := VerifySnapshotRoot(want, got); err == nil {
		t.Fatal("expected mismatch error")
	}
}

func TestVerifySnapshotRootRejectsZeroTrustedRoot(t *testing.T) {
	if err := VerifySnapshotRoot(model.ConsensusValue{}, model.ConsensusValue{0x01}); err == nil {
		t.Fatal("expected error when no trusted root is configured")
	}
}

func TestSnapshotSyncerAppliesMatchingSnapshot(t *testing.T) {
	root := model.ConsensusValue{0xAA}
	data := map[string][]byte{"a": []byte("1"), "b": []byte("2")}
	provider := &fakeSnapshotProvider{root: root, data: data}
	store := storage.NewMemStore()

	ss := NewSnapshotSyncer(provider, store, nil)
	if err := ss.Sync(context.Background(), root); err != nil {
		t.Fatalf("snapshot sync: %v", err)
	}

	val, err := store.Get([]byte("a"))
	if err != nil || string(val) != "1" {
		t.Fatalf("expected a=1, got %q err=%v", val, err)
	}
}

func TestSnapshotSyncerRejectsMismatchedRoot(t *testing.T) {
	provider := &fakeSnapshotProvider{root: model.ConsensusValue{0x02}, data: map[string][]byte{"a": []byte("1")}}
	store := storage.NewMemStore()

	ss := NewSnapshotSyncer(provider, store, nil)
	err := ss.Sync(context.Background(), model.ConsensusValue{0x01})
	if err == nil {
		t.Fatal("expected error for mismatched snapshot root")
	}

	if val, err := store.Get([]byte("a")); err != nil || val != nil {
		t.Fatalf("expected snapshot data not to be applied when root verification fails, got %q", val)
	}
}
