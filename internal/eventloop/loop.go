// Package eventloop is the outer serializing loop spec.md §5 requires:
// it owns a real clock, feeds timer/vote/propose events into exactly one
// ActiveValidator at a time, and applies the Effects each entry point
// returns — gossiping vertices, re-admitting them to state before any
// further call, arming the next timer, and dispatching RequestNewBlock to
// a ValueProvider.
//
// Grounded on this codebase's consensus/reactor.go event loop (select
// over channels, single mutation goroutine) and consensus/timeout.go's
// TimeoutScheduler (time.Timer-based wakeup), generalized from
// exponential round-timeout backoff to the schedule_timer semantics
// spec.md §4.1 defines.
package eventloop

import (
	"context"
	"time"

	"github.com/casper-network/highway/internal/highway"
	"github.com/casper-network/highway/internal/highway/finality"
	"github.com/casper-network/highway/internal/highway/model"
	"github.com/casper-network/highway/internal/highway/state"
	"go.uber.org/zap"
)

// Emitter consumes the scheduler's NewVertex effects by gossiping the signed
// vote. RequestNewBlock effects go to the Loop's ValueProvider, not here.
type Emitter interface {
	EmitVertex(ctx context.Context, v model.SignedWireVote) error
}

// ValueProvider asynchronously returns a consensus value for a requested
// block context, eventually calling back into Loop.Propose.
type ValueProvider interface {
	RequestValue(ctx context.Context, blockCtx model.BlockContext, onValue func(model.ConsensusValue))
}

// Hasher computes the content hash of a freshly signed vote, used to admit
// it to state and to notify OnNewVote for locally-produced votes just as
// for remotely received ones.
type Hasher interface {
	Hash(model.SignedWireVote) model.VoteHash
}

// Clock supplies timestamps to the loop; production uses wallClock, tests
// use a fake.
type Clock interface {
	Now() model.Timestamp
	After(d time.Duration) <-chan time.Time
}

// wallClock is the real-time Clock backing production nodes.
type wallClock struct{ epoch time.Time }

// NewWallClock builds a Clock whose Timestamp ticks are milliseconds
// since epoch.
func NewWallClock(epoch time.Time) Clock {
	return wallClock{epoch: epoch}
}

func (c wallClock) Now() model.Timestamp {
	return model.Timestamp(time.Since(c.epoch).Milliseconds())
}

func (c wallClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// Loop serializes every entry point of a single ActiveValidator onto one
// goroutine, per spec.md §5's concurrency model.
type Loop struct {
	av       *highway.ActiveValidator
	view     *state.State
	detector *finality.Detector
	hasher   Hasher
	emitter  Emitter
	values   ValueProvider
	clock    Clock
	logger   *zap.Logger

	timerCh   chan model.Timestamp
	voteCh    chan remoteVote
	proposeCh chan proposeMsg

	pendingProposals map[model.VoteHash]bool
}

type remoteVote struct {
	vote model.SignedWireVote
	hash model.VoteHash
}

type proposeMsg struct {
	value model.ConsensusValue
	ctx   model.BlockContext
}

// New builds a Loop around an already-constructed ActiveValidator.
func New(av *highway.ActiveValidator, view *state.State, detector *finality.Detector, hasher Hasher, emitter Emitter, values ValueProvider, clock Clock, logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		av:        av,
		view:      view,
		detector:  detector,
		hasher:    hasher,
		emitter:   emitter,
		values:    values,
		clock:     clock,
		logger:    logger,
		timerCh:          make(chan model.Timestamp, 1),
		voteCh:           make(chan remoteVote, 64),
		proposeCh:        make(chan proposeMsg, 1),
		pendingProposals: make(map[model.VoteHash]bool),
	}
}

// Seed applies the Effects returned by the scheduler's own construction
// (highway.New's return value), which are produced before a Loop exists
// to receive them. Call once, before Run.
func (l *Loop) Seed(ctx context.Context, effects []model.Effect) {
	l.applyEffects(ctx, effects)
}

// SubmitRemoteVote queues a vote observed from the network for processing
// on the loop's goroutine. Per spec.md §5's ordering guarantee, the vote
// must already be admitted to state before OnNewVote runs.
func (l *Loop) SubmitRemoteVote(v model.SignedWireVote, h model.VoteHash) {
	select {
	case l.voteCh <- remoteVote{vote: v, hash: h}:
	default:
		l.logger.Warn("vote channel full, dropping")
	}
}

// Run drives the loop until ctx is cancelled. Armed timers use a
// time.Timer sourced from clock.After so tests can substitute a fake
// clock without sleeping real time.
func (l *Loop) Run(ctx context.Context) {
	var timer <-chan time.Time
	armTimer := func(t model.Timestamp) {
		now := l.clock.Now()
		d := time.Duration(0)
		if t > now {
			d = time.Duration(t-now) * time.Millisecond
		}
		timer = l.clock.After(d)
	}

	for {
		select {
		case <-ctx.Done():
			return

		case t := <-l.timerCh:
			armTimer(t)

		case <-timer:
			l.handleTimer(ctx, l.clock.Now())

		case rv := <-l.voteCh:
			l.admitVote(rv.vote, rv.hash)
			l.applyEffects(ctx, l.av.OnNewVote(rv.hash, l.clock.Now(), l.view))
			l.checkPendingFinality()

		case pm := <-l.proposeCh:
			l.applyEffects(ctx, l.av.Propose(pm.value, pm.ctx, l.view))
			l.checkPendingFinality()
		}
	}
}

func (l *Loop) handleTimer(ctx context.Context, t model.Timestamp) {
	l.applyEffects(ctx, l.av.HandleTimer(t, l.view))
}

// applyEffects applies each Effect in order, per spec.md §5: a NewVertex
// must be admitted to state before any subsequent scheduler call runs,
// which this single-goroutine loop guarantees by construction.
func (l *Loop) applyEffects(ctx context.Context, effects []model.Effect) {
	for _, e := range effects {
		switch e.Kind {
		case model.EffectNewVertex:
			h := l.hasher.Hash(e.Vote)
			l.admitVote(e.Vote, h)
			if err := l.emitter.EmitVertex(ctx, e.Vote); err != nil {
				l.logger.Warn("failed to emit vertex", zap.Error(err))
			}
			l.checkPendingFinality()

		case model.EffectScheduleTimer:
			select {
			case l.timerCh <- e.Timer:
			default:
			}

		case model.EffectRequestNewBlock:
			ctxCopy := e.Ctx
			l.values.RequestValue(ctx, ctxCopy, func(v model.ConsensusValue) {
				select {
				case l.proposeCh <- proposeMsg{value: v, ctx: ctxCopy}:
				default:
					l.logger.Warn("propose channel full, dropping value")
				}
			})
		}
	}
}

// admitVote records a vote in state and, if it is a proposal, tracks it
// for future finality checks as further witnesses arrive.
func (l *Loop) admitVote(v model.SignedWireVote, h model.VoteHash) {
	l.view.AddVote(v, h)
	if v.Vote.Value != nil {
		l.pendingProposals[h] = true
	}
}

// checkPendingFinality re-evaluates every tracked proposal against the
// current state, dropping any that have now latched.
func (l *Loop) checkPendingFinality() {
	if l.detector == nil {
		return
	}
	for h := range l.pendingProposals {
		outcome := l.detector.Check(h, l.view)
		if outcome.Finalized {
			l.logger.Info("round finalized",
				zap.Uint64("timestamp", outcome.Timestamp.Uint64()),
			)
			delete(l.pendingProposals, h)
		}
	}
}
