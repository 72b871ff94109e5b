// Package finality implements summit-level finality detection: the
// external collaborator spec.md puts out of scope for the scheduler
// itself (§1) but whose behavior is exercised by the scheduler's own
// worked scenario (§8). It observes the panorama the scheduler's votes
// build up and reports when a proposal has accumulated enough witness
// weight to be finalized.
//
// Grounded on the two-chain CheckCommitRule/onQuorumReached weight
// accumulation style found in this codebase's consensus engine, adapted
// from "2f+1 of current round votes" to "accumulated summit weight over a
// configured fault-tolerance threshold," latched once per proposal.
package finality

import (
	"github.com/casper-network/highway/internal/highway/model"
	"github.com/casper-network/highway/internal/highway/state"
)

// WeightedView is the subset of state access finality detection needs
// beyond the scheduler's own StateView: per-validator weight.
type WeightedView interface {
	state.StateView
	Weight(v model.ValidatorIndex) state.Weight
	TotalWeight() state.Weight
}

// Outcome is the result of a finality check.
type Outcome struct {
	Finalized   bool
	Value       model.ConsensusValue
	Equivocators []model.ValidatorIndex
	Timestamp   model.Timestamp
}

// None is the non-finalized Outcome.
var None = Outcome{}

// Detector accumulates, per proposal, the weight of validators whose
// *current* witness vote for the proposal's own round cites that
// proposal, and latches a Finalized outcome once that weight reaches
// totalWeight - faultToleranceThreshold. Each proposal latches at most
// once (a one-shot tracker, same shape as this domain's
// accumulatedWeightTracker).
//
// This is a single-level simplification of Highway's nested summit
// construction (the upstream algorithm computes a sequence of summit
// levels from the fault-tolerance assumption; the full construction lives
// outside the retrieved source for this exercise). It reproduces the
// spec's worked scenario exactly: a round is finalized once every
// non-faulty validator's current observation is a witness vote of that
// round citing the proposal.
type Detector struct {
	roundExp  model.RoundExponent
	threshold state.Weight
	done      map[model.VoteHash]bool
}

// NewDetector builds a Detector for a chain with the given round exponent
// and fault-tolerance threshold (the maximum adversarial weight the
// caller is willing to tolerate).
func NewDetector(roundExp model.RoundExponent, faultToleranceThreshold state.Weight) *Detector {
	return &Detector{
		roundExp:  roundExp,
		threshold: faultToleranceThreshold,
		done:      make(map[model.VoteHash]bool),
	}
}

// Check evaluates whether proposalHash has now accumulated enough summit
// weight to be finalized, given the current state view. It is safe to
// call repeatedly as new votes arrive; once a proposal has latched, every
// subsequent call for that hash returns None.
func (d *Detector) Check(proposalHash model.VoteHash, view WeightedView) Outcome {
	if d.done[proposalHash] {
		return None
	}

	proposal := view.Vote(proposalHash)
	if proposal.Value == nil {
		return None
	}

	witnessTick := d.roundExp.RoundID(proposal.Timestamp).Add(d.roundExp.WitnessOffset())

	var summitWeight state.Weight
	for v, obs := range view.Panorama() {
		h, ok := obs.Correct()
		if !ok {
			continue
		}
		vote := view.Vote(h)
		if vote.Timestamp != witnessTick {
			continue
		}
		if h == proposalHash || view.SeesCorrect(vote.Panorama, proposalHash) {
			summitWeight += view.Weight(v)
		}
	}

	required := state.Weight(0)
	if total := view.TotalWeight(); total > d.threshold {
		required = total - d.threshold
	}
	if summitWeight < required {
		return None
	}

	d.done[proposalHash] = true
	var equivocators []model.ValidatorIndex
	for _, f := range view.FaultyValidators() {
		equivocators = append(equivocators, f)
	}
	return Outcome{
		Finalized:    true,
		Value:        *proposal.Value,
		Equivocators: equivocators,
		Timestamp:    proposal.Timestamp,
	}
}
