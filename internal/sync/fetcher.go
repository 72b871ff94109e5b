package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/casper-network/highway/internal/highway/model"
)

// VoteProvider abstracts vote retrieval from a peer. This lets catch-up
// work against both a real p2p request/response channel and a mock
// provider in tests.
type VoteProvider interface {
	// FetchVote requests the vote with the given hash from a peer.
	FetchVote(ctx context.Context, h model.VoteHash) (model.SignedWireVote, error)

	// FetchHeadPanorama asks a peer for its current panorama — the
	// target state a catching-up node walks backward from.
	FetchHeadPanorama(ctx context.Context) (model.Panorama, error)
}

// KnownChecker reports whether a vote hash has already been admitted
// locally. state.State satisfies this via its HasVote method.
type KnownChecker interface {
	HasVote(h model.VoteHash) bool
}

// Fetcher walks the causal history of a target panorama back to votes
// already known locally, downloading every vote in between exactly once.
// It returns them in topological order (ancestors first) so a caller can
// admit each one in turn without ever seeing an unknown panorama
// reference.
type Fetcher struct {
	provider VoteProvider
	known    KnownChecker
}

// NewFetcher creates a vote fetcher.
func NewFetcher(provider VoteProvider, known KnownChecker) *Fetcher {
	return &Fetcher{provider: provider, known: known}
}

// fetched pairs a downloaded vote with the hash it was requested under,
// since SignedWireVote itself carries no hash (the scheduler's Hasher
// computes that from content, not the wire form).
type fetched struct {
	hash model.VoteHash
	vote model.SignedWireVote
}

// FetchMissing downloads every vote reachable from target that isn't
// already known, in topological (ancestors-first) order. A vote that
// turns out to reference an already-faulty-marked validator slot
// (Kind != ObservationCorrect) has nothing to fetch for that slot.
func (f *Fetcher) FetchMissing(ctx context.Context, target model.Panorama) ([]fetched, error) {
	visited := make(map[model.VoteHash]bool)
	var order []fetched

	var walk func(h model.VoteHash) error
	walk = func(h model.VoteHash) error {
		if f.known.HasVote(h) || visited[h] {
			return nil
		}
		visited[h] = true

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		sv, err := f.provider.FetchVote(ctx, h)
		if err != nil {
			return fmt.Errorf("sync: fetch vote %s: %w", h, err)
		}

		for _, obs := range sv.Vote.Panorama {
			ph, ok := obs.Correct()
			if !ok {
				continue
			}
			if err := walk(ph); err != nil {
				return err
			}
		}

		order = append(order, fetched{hash: h, vote: sv})
		return nil
	}

	for _, obs := range target {
		h, ok := obs.Correct()
		if !ok {
			continue
		}
		if err := walk(h); err != nil {
			return nil, err
		}
	}

	return order, nil
}

// FetchHeadPanorama queries the provider for the target panorama to
// catch up to.
func (f *Fetcher) FetchHeadPanorama(ctx context.Context) (model.Panorama, error) {
	if f.provider == nil {
		return nil, errors.New("sync: no vote provider")
	}
	return f.provider.FetchHeadPanorama(ctx)
}
