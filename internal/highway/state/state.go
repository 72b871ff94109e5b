// Package state provides the read-only StateView collaborator the
// scheduler in package highway consults, and an in-memory reference
// implementation backing it: the vote store, panorama, weighted
// validator set, and leader function.
package state

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/casper-network/highway/internal/highway/model"
)

// Vote is a stored, previously-admitted vote together with its hash.
type Vote struct {
	Hash model.VoteHash
	model.WireVote
}

// Weight is a validator's voting power, used by the leader lottery and by
// finality detection; the scheduler itself never reasons about weights directly.
type Weight uint64

// StateView is the read-only collaborator the scheduler consults. All
// methods must be safe to call concurrently with each other (but never
// concurrently with a mutation — see internal/eventloop for the
// single-writer discipline that guarantees this).
type StateView interface {
	// Panorama returns the current panorama.
	Panorama() model.Panorama
	// Vote looks up a previously admitted vote by hash. Precondition:
	// h must be a hash the caller has reason to believe is known;
	// violating this is a fatal programmer error, not a recoverable one.
	Vote(h model.VoteHash) Vote
	// Leader returns the validator assigned to lead the round containing t.
	Leader(t model.Timestamp) model.ValidatorIndex
	// HasEvidence reports whether v has been proven faulty.
	HasEvidence(v model.ValidatorIndex) bool
	// FaultyValidators returns every validator currently marked faulty.
	FaultyValidators() []model.ValidatorIndex
	// PanoramaCutoff returns a panorama obtained by walking each slot of
	// p backwards until reaching a vote with timestamp <= cutoff (or None).
	PanoramaCutoff(p model.Panorama, cutoff model.Timestamp) model.Panorama
	// MergePanoramas merges a and b pointwise: Faulty dominates;
	// otherwise the later-seq-number Correct wins; None is the identity.
	MergePanoramas(a, b model.Panorama) model.Panorama
	// SeesCorrect reports whether vhash is in the causal past of p.
	SeesCorrect(p model.Panorama, vhash model.VoteHash) bool
}

// State is the in-memory reference StateView: a weighted validator set, an
// append-only vote store keyed by hash, the current panorama, and a set of
// validators proven faulty.
type State struct {
	weights  []Weight
	total    Weight
	seed     uint64
	roundExp model.RoundExponent

	votes       map[model.VoteHash]Vote
	panorama    model.Panorama
	faulty      map[model.ValidatorIndex]struct{}
}

// New builds a State for the given per-validator weights (indexed by
// ValidatorIndex position), a chain seed for the leader lottery, and the
// chain's round exponent (needed only to know round boundaries when
// resolving the leader of a round, not by the scheduler itself).
func New(weights []Weight, seed uint64, roundExp model.RoundExponent) *State {
	var total Weight
	for _, w := range weights {
		total += w
	}
	return &State{
		weights:  append([]Weight(nil), weights...),
		total:    total,
		seed:     seed,
		roundExp: roundExp,
		votes:    make(map[model.VoteHash]Vote),
		panorama: make(model.Panorama),
		faulty:   make(map[model.ValidatorIndex]struct{}),
	}
}

// Panorama implements StateView.
func (s *State) Panorama() model.Panorama {
	return s.panorama.Clone()
}

// Vote implements StateView. Looking up an unknown hash is a contract
// violation (spec §6): it panics rather than returning an error, mirroring
// how the scheduler treats it as a fatal programmer error.
func (s *State) Vote(h model.VoteHash) Vote {
	v, ok := s.votes[h]
	if !ok {
		panic(fmt.Sprintf("state: unknown vote hash %s", h))
	}
	return v
}

// HasVote reports whether h has already been admitted, letting callers
// (notably internal/sync's catch-up fetcher) probe for a vote without
// risking Vote's unknown-hash panic.
func (s *State) HasVote(h model.VoteHash) bool {
	_, ok := s.votes[h]
	return ok
}

// HasEvidence implements StateView.
func (s *State) HasEvidence(v model.ValidatorIndex) bool {
	_, ok := s.faulty[v]
	return ok
}

// FaultyValidators implements StateView.
func (s *State) FaultyValidators() []model.ValidatorIndex {
	out := make([]model.ValidatorIndex, 0, len(s.faulty))
	for v := range s.faulty {
		out = append(out, v)
	}
	return out
}

// MarkFaulty permanently marks v as faulty and freezes its panorama slot.
// Evidence detection itself lives outside the scheduler (spec §1); this is
// the entry point an evidence pool calls once it has proven equivocation.
func (s *State) MarkFaulty(v model.ValidatorIndex) {
	s.faulty[v] = struct{}{}
	s.panorama[v] = model.FaultyObservation
}

// AddVote admits a vote into the store and advances the panorama slot for
// its creator, unless that creator is already marked faulty (invariant 4:
// faulty freezing must never be undone by a later vote).
func (s *State) AddVote(sv model.SignedWireVote, h model.VoteHash) {
	s.votes[h] = Vote{Hash: h, WireVote: sv.Vote}
	if s.HasEvidence(sv.Vote.Creator) {
		return
	}
	s.panorama[sv.Vote.Creator] = model.CorrectObservation(h)
}

// Leader implements StateView as a deterministic, seeded weighted
// lottery: SHA-256(roundID || seed) reduced mod total weight, then walked
// against cumulative per-validator weight until the ticket is covered.
func (s *State) Leader(t model.Timestamp) model.ValidatorIndex {
	if s.total == 0 {
		panic("state: leader lottery over a zero-weight validator set")
	}
	roundID := s.roundExp.RoundID(t)

	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(roundID))
	binary.LittleEndian.PutUint64(buf[8:], s.seed)
	digest := sha256.Sum256(buf[:])
	ticket := Weight(binary.BigEndian.Uint64(digest[:8]) % uint64(s.total))

	var acc Weight
	for idx, w := range s.weights {
		acc += w
		if ticket < acc {
			return model.ValidatorIndex(idx)
		}
	}
	// Unreachable unless weights/total are inconsistent.
	return model.ValidatorIndex(len(s.weights) - 1)
}

// PanoramaCutoff implements StateView: for each slot, walk its Correct
// chain backwards (via the vote store's WireVote.Panorama self-links)
// until reaching a vote with timestamp <= cutoff, or None if no such
// vote exists in that slot's history.
func (s *State) PanoramaCutoff(p model.Panorama, cutoff model.Timestamp) model.Panorama {
	out := make(model.Panorama, len(p))
	for v, obs := range p {
		out[v] = s.cutoffObservation(v, obs, cutoff)
	}
	return out
}

func (s *State) cutoffObservation(v model.ValidatorIndex, obs model.Observation, cutoff model.Timestamp) model.Observation {
	if obs.Faulty() {
		return obs
	}
	h, ok := obs.Correct()
	if !ok {
		return model.NoneObservation
	}
	for {
		vote := s.Vote(h)
		if vote.Timestamp <= cutoff {
			return model.CorrectObservation(h)
		}
		prevObs := vote.Panorama.Get(v)
		prevH, ok := prevObs.Correct()
		if !ok {
			return model.NoneObservation
		}
		h = prevH
	}
}

// MergePanoramas implements StateView: pointwise merge where Faulty
// dominates, the later-sequence-number Correct wins, and None is the
// identity element.
func (s *State) MergePanoramas(a, b model.Panorama) model.Panorama {
	out := make(model.Panorama, len(a)+len(b))
	validators := make(map[model.ValidatorIndex]struct{}, len(a)+len(b))
	for v := range a {
		validators[v] = struct{}{}
	}
	for v := range b {
		validators[v] = struct{}{}
	}
	for v := range validators {
		out[v] = s.mergeObservation(a.Get(v), b.Get(v))
	}
	return out
}

func (s *State) mergeObservation(a, b model.Observation) model.Observation {
	if a.Faulty() || b.Faulty() {
		return model.FaultyObservation
	}
	ah, aok := a.Correct()
	bh, bok := b.Correct()
	switch {
	case aok && bok:
		if s.Vote(ah).SeqNumber >= s.Vote(bh).SeqNumber {
			return a
		}
		return b
	case aok:
		return a
	case bok:
		return b
	default:
		return model.NoneObservation
	}
}

// SeesCorrect implements StateView: true iff vhash is in the causal past
// of p, i.e. reachable by following some slot's Correct chain.
func (s *State) SeesCorrect(p model.Panorama, vhash model.VoteHash) bool {
	for v, obs := range p {
		h, ok := obs.Correct()
		if !ok {
			continue
		}
		for {
			if h == vhash {
				return true
			}
			vote := s.Vote(h)
			prevObs := vote.Panorama.Get(v)
			prevH, ok := prevObs.Correct()
			if !ok {
				break
			}
			h = prevH
		}
	}
	return false
}

// Weight returns the configured voting weight of v. Finality detection
// (package internal/highway/finality) needs this; the scheduler itself
// never does, so it is not part of StateView.
func (s *State) Weight(v model.ValidatorIndex) Weight {
	if int(v) >= len(s.weights) {
		return 0
	}
	return s.weights[v]
}

// TotalWeight returns the sum of every validator's configured weight.
func (s *State) TotalWeight() Weight {
	return s.total
}

var _ StateView = (*State)(nil)
