// Package model defines the wire-level data types of the active-validator
// scheduler: timestamps, validator indices, panoramas, votes, and the
// effect algebra the scheduler emits.
package model

import "fmt"

// Timestamp is an absolute instant measured in ticks (milliseconds) of a
// fixed base unit. Totally ordered.
type Timestamp uint64

// TimeDiff is the signed difference between two Timestamps, also in ticks.
type TimeDiff int64

// Sub returns t - u as a TimeDiff.
func (t Timestamp) Sub(u Timestamp) TimeDiff {
	return TimeDiff(int64(t) - int64(u))
}

// Add returns t shifted forward by d ticks. d may be negative.
func (t Timestamp) Add(d TimeDiff) Timestamp {
	return Timestamp(int64(t) + int64(d))
}

// Mod returns t modulo the positive TimeDiff d, as a TimeDiff.
func (t Timestamp) Mod(d TimeDiff) TimeDiff {
	if d <= 0 {
		panic(fmt.Sprintf("model: modulus must be positive, got %d", d))
	}
	return TimeDiff(int64(t) % int64(d))
}

// Before reports whether t occurs strictly before u.
func (t Timestamp) Before(u Timestamp) bool { return t < u }

// After reports whether t occurs strictly after u.
func (t Timestamp) After(u Timestamp) bool { return t > u }

// Uint64 exposes the raw tick count, mainly for structured log fields.
func (t Timestamp) Uint64() uint64 { return uint64(t) }

// RoundExponent is a small non-negative integer e; the round length in
// ticks is 1<<e. Subjective per validator, constant for the lifetime of a
// scheduler instance.
type RoundExponent uint8

// RoundLength returns L = 1 << e, the round length in ticks.
func (e RoundExponent) RoundLength() TimeDiff {
	return TimeDiff(1) << uint(e)
}

// WitnessOffset returns 2L/3 (integer division), the intra-round tick at
// which every validator emits a witness vote.
func (e RoundExponent) WitnessOffset() TimeDiff {
	return e.RoundLength() * 2 / 3
}

// RoundID returns t - (t mod L), the timestamp of the round's proposal tick.
func (e RoundExponent) RoundID(t Timestamp) Timestamp {
	return t.Add(-TimeDiff(t.Mod(e.RoundLength())))
}

// RoundOffset returns t mod L, the tick's position within its round.
func (e RoundExponent) RoundOffset(t Timestamp) TimeDiff {
	return t.Mod(e.RoundLength())
}
