package model

// ObservationKind tags which variant an Observation holds.
type ObservationKind uint8

const (
	// ObservationNone means nothing has been seen from a validator.
	ObservationNone ObservationKind = iota
	// ObservationCorrect carries the hash of a validator's latest
	// message as seen by us.
	ObservationCorrect
	// ObservationFaulty marks a validator as having equivocated. Once
	// set, an Observation must never transition back to None or Correct.
	ObservationFaulty
)

// Observation is one validator's entry in a Panorama: either nothing seen
// (None), the hash of their latest known message (Correct), or a
// permanent fault mark (Faulty).
type Observation struct {
	Kind ObservationKind
	Hash VoteHash
}

// None reports whether this Observation is the None variant.
func (o Observation) None() bool { return o.Kind == ObservationNone }

// Correct reports whether this Observation is Correct, returning its hash.
func (o Observation) Correct() (VoteHash, bool) {
	if o.Kind == ObservationCorrect {
		return o.Hash, true
	}
	return ZeroHash, false
}

// Faulty reports whether this Observation is the Faulty variant.
func (o Observation) Faulty() bool { return o.Kind == ObservationFaulty }

// NoneObservation is the None Observation value.
var NoneObservation = Observation{Kind: ObservationNone}

// FaultyObservation is the Faulty Observation value.
var FaultyObservation = Observation{Kind: ObservationFaulty}

// CorrectObservation builds a Correct Observation citing h.
func CorrectObservation(h VoteHash) Observation {
	return Observation{Kind: ObservationCorrect, Hash: h}
}

// Panorama is a per-validator snapshot of the latest-known Observation,
// indexed by dense ValidatorIndex. A Panorama is empty iff every entry is
// None.
type Panorama map[ValidatorIndex]Observation

// Get returns the Observation for v, defaulting to None if v has no entry.
func (p Panorama) Get(v ValidatorIndex) Observation {
	if obs, ok := p[v]; ok {
		return obs
	}
	return NoneObservation
}

// Empty reports whether every entry of p is None (including the case
// where p has no entries at all).
func (p Panorama) Empty() bool {
	for _, obs := range p {
		if !obs.None() {
			return false
		}
	}
	return true
}

// Clone returns a shallow, independently-mutable copy of p.
func (p Panorama) Clone() Panorama {
	out := make(Panorama, len(p))
	for v, obs := range p {
		out[v] = obs
	}
	return out
}
