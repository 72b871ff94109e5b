package model

import (
	"encoding/binary"
)

// WireVote is the payload of a consensus message: the panorama it cites,
// its creator, an optional proposed value (present only on proposals), a
// per-creator sequence number, and the tick it was created at.
type WireVote struct {
	Panorama  Panorama
	Creator   ValidatorIndex
	Value     *ConsensusValue
	SeqNumber uint64
	Timestamp Timestamp
}

// SignedWireVote wraps a WireVote with a signature over its SigningPayload,
// produced by the creator's secret key.
type SignedWireVote struct {
	Vote      WireVote
	Signature []byte
}

// SigningPayload is the canonical byte encoding a Signer signs and a
// verifier re-derives. It deliberately excludes the panorama's iteration
// order by sorting validator indices, so two equal panoramas always yield
// identical bytes.
func (v WireVote) SigningPayload() []byte {
	indices := make([]ValidatorIndex, 0, len(v.Panorama))
	for idx := range v.Panorama {
		indices = append(indices, idx)
	}
	sortIndices(indices)

	buf := make([]byte, 0, 32+len(indices)*41)
	var tmp [8]byte

	binary.LittleEndian.PutUint32(tmp[:4], uint32(v.Creator))
	buf = append(buf, tmp[:4]...)

	binary.LittleEndian.PutUint64(tmp[:], v.SeqNumber)
	buf = append(buf, tmp[:]...)

	binary.LittleEndian.PutUint64(tmp[:], uint64(v.Timestamp))
	buf = append(buf, tmp[:]...)

	if v.Value != nil {
		buf = append(buf, 1)
		buf = append(buf, v.Value[:]...)
	} else {
		buf = append(buf, 0)
	}

	for _, idx := range indices {
		obs := v.Panorama[idx]
		binary.LittleEndian.PutUint32(tmp[:4], uint32(idx))
		buf = append(buf, tmp[:4]...)
		buf = append(buf, byte(obs.Kind))
		buf = append(buf, obs.Hash[:]...)
	}

	return buf
}

func sortIndices(s []ValidatorIndex) {
	// Small-n insertion sort: panoramas are sized to the validator set,
	// not worth pulling in sort.Slice's reflection overhead.
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// BlockContext is the minimum context an external value provider needs to
// build a block: at least the proposed block's timestamp.
type BlockContext struct {
	Timestamp Timestamp
}
