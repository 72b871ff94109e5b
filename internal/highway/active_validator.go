// Package highway implements the active-validator scheduler of a
// Highway-style BFT consensus participant: the decision logic by which a
// single honest node, given a local view of consensus state, decides when
// and with what content to emit new consensus messages.
//
// The scheduler is single-threaded cooperative: every entry point is a
// pure, synchronous function from (input, state) to a list of Effects. It
// performs no I/O, no suspension, and no retries; package
// internal/eventloop is the outer loop responsible for serializing calls
// into it and applying the Effects it returns.
package highway

import (
	"fmt"

	"github.com/casper-network/highway/internal/highway/model"
	"github.com/casper-network/highway/internal/highway/state"
	"go.uber.org/zap"
)

// Signer signs a WireVote on behalf of the validator that owns the secret
// key. It is the only capability through which the scheduler's secret is
// ever used.
type Signer interface {
	Sign(v model.WireVote) model.SignedWireVote
	// Hash computes the content hash a SignedWireVote will be identified
	// by once admitted to state.
	Hash(v model.SignedWireVote) model.VoteHash
}

// ActiveValidator is the scheduler's persistent state. Constructed once
// per node and never replaced; the only field that mutates after
// construction is nextTimer.
type ActiveValidator struct {
	vidx     model.ValidatorIndex
	secret   Signer
	roundExp model.RoundExponent

	nextTimer model.Timestamp

	logger *zap.Logger
}

// New constructs the scheduler and immediately arms its first timer. The
// returned effect list always contains exactly one ScheduleTimer effect,
// pointing at the earliest future landmark the validator must wake for.
//
// Panics if roundExp implies a round length below 3 ticks: the witness
// offset (2L/3) and proposal tick (0) would then collide or the round
// schedule would be meaningless, a contract violation per spec §7.
func New(vidx model.ValidatorIndex, secret Signer, roundExp model.RoundExponent, now model.Timestamp, view state.StateView, logger *zap.Logger) (*ActiveValidator, []model.Effect) {
	if roundExp.RoundLength() < 3 {
		panic(fmt.Sprintf("highway: round_exp %d implies round length < 3 ticks", roundExp))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	av := &ActiveValidator{
		vidx:      vidx,
		secret:    secret,
		roundExp:  roundExp,
		nextTimer: 0,
		logger:    logger,
	}
	effects := av.scheduleTimer(now, view)
	return av, effects
}

// scheduleTimer chooses the next wakeup instant strictly after t and
// returns exactly one ScheduleTimer effect for it, unless a timer already
// armed for a later instant makes this call a no-op.
func (av *ActiveValidator) scheduleTimer(t model.Timestamp, view state.StateView) []model.Effect {
	if av.nextTimer > t {
		return nil
	}

	L := av.roundExp.RoundLength()
	witnessOffset := av.roundExp.WitnessOffset()
	roundID := av.roundExp.RoundID(t)
	offset := av.roundExp.RoundOffset(t)

	var next model.Timestamp
	switch {
	case offset < witnessOffset:
		next = roundID.Add(witnessOffset)
	case view.Leader(roundID.Add(L)) == av.vidx:
		next = roundID.Add(L)
	default:
		next = roundID.Add(L).Add(witnessOffset)
	}

	av.nextTimer = next
	return []model.Effect{model.ScheduleTimer(next)}
}

// HandleTimer is the timer entry point.
func (av *ActiveValidator) HandleTimer(t model.Timestamp, view state.StateView) []model.Effect {
	effects := av.scheduleTimer(t, view)

	if av.earliestVoteTime(view) > t {
		av.logger.Warn("skipping stale timer",
			zap.Uint64("timestamp", t.Uint64()),
			zap.Uint32("validator", uint32(av.vidx)),
		)
		return effects
	}

	offset := av.roundExp.RoundOffset(t)
	roundID := av.roundExp.RoundID(t)

	switch {
	case offset == 0 && view.Leader(roundID) == av.vidx:
		effects = append(effects, model.RequestNewBlock(model.BlockContext{Timestamp: t}))
	case offset == av.roundExp.WitnessOffset():
		panorama := view.PanoramaCutoff(view.Panorama(), t)
		if !panorama.Empty() {
			vote := av.newVote(panorama, t, nil, view)
			effects = append(effects, model.NewVertex(vote))
		}
	}

	return effects
}

// Propose is invoked by the value provider in response to a prior
// RequestNewBlock effect. The scheduler trusts that the caller only
// invokes it when self was the leader of round_id(ctx.timestamp); it does
// not re-verify leadership, nor does it assert ctx.timestamp is itself a
// proposal tick (spec §9 Open Question, resolved as "trust the caller" —
// internal/eventloop is the only caller and always derives ctx from its
// own RequestNewBlock effect).
func (av *ActiveValidator) Propose(value model.ConsensusValue, ctx model.BlockContext, view state.StateView) []model.Effect {
	t := ctx.Timestamp
	if av.earliestVoteTime(view) > t {
		av.logger.Warn("skipping stale propose",
			zap.Uint64("timestamp", t.Uint64()),
			zap.Uint32("validator", uint32(av.vidx)),
		)
		return nil
	}

	panorama := view.PanoramaCutoff(view.Panorama(), t)
	vote := av.newVote(panorama, t, &value, view)
	return []model.Effect{model.NewVertex(vote)}
}

// OnNewVote decides whether vhash is a leader's proposal this validator
// must confirm, emitting at most one NewVertex carrying a confirmation.
func (av *ActiveValidator) OnNewVote(vhash model.VoteHash, t model.Timestamp, view state.StateView) []model.Effect {
	if av.earliestVoteTime(view) > t {
		av.logger.Warn("skipping stale new-vote notification",
			zap.Uint64("timestamp", t.Uint64()),
			zap.Uint32("validator", uint32(av.vidx)),
		)
		return nil
	}

	if !av.shouldSendConfirmation(vhash, t, view) {
		return nil
	}

	panorama := av.confirmationPanorama(vhash, view)
	if panorama.Empty() {
		return nil
	}

	vote := av.newVote(panorama, t, nil, view)
	return []model.Effect{model.NewVertex(vote)}
}

// shouldSendConfirmation implements the six confirmation predicates of
// spec §4.1.
func (av *ActiveValidator) shouldSendConfirmation(vhash model.VoteHash, t model.Timestamp, view state.StateView) bool {
	vote := view.Vote(vhash)

	if vote.Timestamp > t {
		av.logger.Warn("added a vote with a future timestamp",
			zap.Uint64("vote_timestamp", vote.Timestamp.Uint64()),
			zap.Uint64("now", t.Uint64()),
		)
		return false
	}

	L := av.roundExp.RoundLength()
	if int64(vote.Timestamp)/int64(L) != int64(t)/int64(L) {
		return false
	}

	if view.Leader(vote.Timestamp) != vote.Creator {
		return false
	}

	if vote.Creator == av.vidx {
		return false
	}

	if view.HasEvidence(vote.Creator) {
		return false
	}

	if own, ok := view.Panorama().Get(av.vidx).Correct(); ok {
		if view.SeesCorrect(view.Vote(own).Panorama, vhash) {
			return false
		}
	}

	return true
}

// confirmationPanorama builds the panorama for a confirmation vote per
// spec §4.1: start from the proposal's own panorama, merge in our own
// previous panorama (if any), then overlay self, the leader, and every
// currently-faulty validator.
func (av *ActiveValidator) confirmationPanorama(vhash model.VoteHash, view state.StateView) model.Panorama {
	proposal := view.Vote(vhash)

	var merged model.Panorama
	ownObs := view.Panorama().Get(av.vidx)
	if ownHash, ok := ownObs.Correct(); ok {
		own := view.Vote(ownHash)
		merged = view.MergePanoramas(proposal.Panorama, own.Panorama)
		merged[av.vidx] = model.CorrectObservation(ownHash)
	} else {
		merged = proposal.Panorama.Clone()
	}

	merged[proposal.Creator] = model.CorrectObservation(vhash)
	for _, f := range view.FaultyValidators() {
		merged[f] = model.FaultyObservation
	}

	return merged
}

// newVote computes the next sequence number, assembles the WireVote, and
// signs it. The scheduler trusts the panorama argument: callers must have
// already applied invariants 3 and 4 (self-reference, faulty freezing).
func (av *ActiveValidator) newVote(panorama model.Panorama, t model.Timestamp, value *model.ConsensusValue, view state.StateView) model.SignedWireVote {
	seq := uint64(0)
	if h, ok := panorama.Get(av.vidx).Correct(); ok {
		seq = view.Vote(h).SeqNumber + 1
	}

	wv := model.WireVote{
		Panorama:  panorama,
		Creator:   av.vidx,
		Value:     value,
		SeqNumber: seq,
		Timestamp: t,
	}
	return av.secret.Sign(wv)
}

// earliestVoteTime is the equivocation floor: the timestamp of this
// validator's most recent previously emitted vote, or zero if none.
func (av *ActiveValidator) earliestVoteTime(view state.StateView) model.Timestamp {
	h, ok := view.Panorama().Get(av.vidx).Correct()
	if !ok {
		return 0
	}
	return view.Vote(h).Timestamp
}
