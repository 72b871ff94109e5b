// Package sync lets a node that has fallen behind — freshly joined, or
// reconnected after a network partition — catch up to the rest of the
// validator set. Unlike a height-indexed blockchain, Highway's only
// durable state is the vote DAG and its panorama, so catching up means
// walking a peer's head panorama backward to the votes already known
// locally, downloading the gap, and admitting it through the same
// single-writer path eventloop.Loop uses for any other remote vote.
package sync

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/casper-network/highway/internal/eventloop"
	"go.uber.org/zap"
)

// Status represents the current phase of a Catchup run.
type Status int32

const (
	StatusIdle          Status = iota // not syncing
	StatusFetchingVotes               // downloading and verifying missing votes
	StatusCaughtUp                    // no missing ancestors remain
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "Idle"
	case StatusFetchingVotes:
		return "FetchingVotes"
	case StatusCaughtUp:
		return "CaughtUp"
	default:
		return "Unknown"
	}
}

// Catchup drives one round of vote catch-up against a peer's head
// panorama.
type Catchup struct {
	fetcher  *Fetcher
	verifier *Verifier
	loop     *eventloop.Loop
	logger   *zap.Logger

	status  atomic.Int32
	fetched atomic.Uint64
}

// NewCatchup creates a Catchup coordinator. loop is the same Loop the
// node's own scheduler runs on — submitting fetched votes to it keeps
// admission single-writer instead of mutating state out of band.
func NewCatchup(fetcher *Fetcher, verifier *Verifier, loop *eventloop.Loop, logger *zap.Logger) *Catchup {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catchup{fetcher: fetcher, verifier: verifier, loop: loop, logger: logger}
}

// Run fetches the peer's current head panorama, downloads every vote
// missing from local state along the causal path to it, verifies each
// one, and submits them to loop in topological order. It returns once
// the gap has been closed or ctx is cancelled.
func (c *Catchup) Run(ctx context.Context) error {
	c.setStatus(StatusFetchingVotes)
	c.fetched.Store(0)
	c.logger.Info("catch-up starting")

	target, err := c.fetcher.FetchHeadPanorama(ctx)
	if err != nil {
		return fmt.Errorf("sync: fetch head panorama: %w", err)
	}

	missing, err := c.fetcher.FetchMissing(ctx, target)
	if err != nil {
		return fmt.Errorf("sync: fetch missing votes: %w", err)
	}

	for _, fv := range missing {
		if err := c.verifier.VerifyVote(fv.vote, fv.hash); err != nil {
			return fmt.Errorf("sync: verify vote %s: %w", fv.hash, err)
		}
		c.loop.SubmitRemoteVote(fv.vote, fv.hash)
		c.fetched.Add(1)
	}

	c.setStatus(StatusCaughtUp)
	c.logger.Info("catch-up complete",
		zap.Uint64("votes_fetched", c.fetched.Load()),
	)
	return nil
}

// Status returns the current catch-up phase.
func (c *Catchup) Status() Status {
	return Status(c.status.Load())
}

// VotesFetched returns the number of votes downloaded and submitted so
// far by the most recent Run.
func (c *Catchup) VotesFetched() uint64 {
	return c.fetched.Load()
}

func (c *Catchup) setStatus(s Status) {
	c.status.Store(int32(s))
}
