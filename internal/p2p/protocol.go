package p2p

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/casper-network/highway/internal/highway/model"
)

// MessageType identifies the type of gossiped message on the wire.
type MessageType byte

const (
	// MsgVote carries a SignedWireVote: a vote, witness, or proposal —
	// the scheduler's single vertex kind.
	MsgVote MessageType = 0x01
)

// MaxMessageSize is the maximum allowed message size (4 MB).
const MaxMessageSize = 4 * 1024 * 1024

func (mt MessageType) String() string {
	switch mt {
	case MsgVote:
		return "vote"
	default:
		return fmt.Sprintf("unknown(0x%02x)", byte(mt))
	}
}

// Envelope wraps a typed message for wire encoding.
type Envelope struct {
	Type    MessageType
	Payload []byte
}

// Encode serializes the envelope as [type_byte | payload].
func (e *Envelope) Encode() []byte {
	buf := make([]byte, 1+len(e.Payload))
	buf[0] = byte(e.Type)
	copy(buf[1:], e.Payload)
	return buf
}

// DecodeEnvelope parses a wire-format message into an Envelope.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	if len(data) == 0 {
		return nil, errors.New("p2p: empty message")
	}
	if len(data) > MaxMessageSize {
		return nil, fmt.Errorf("p2p: message too large: %d > %d", len(data), MaxMessageSize)
	}
	return &Envelope{
		Type:    MessageType(data[0]),
		Payload: data[1:],
	}, nil
}

// EncodeVote serializes a SignedWireVote into wire format. The encoding is
// hand-rolled rather than a generated schema, matching the same
// deterministic, explicit-field style WireVote.SigningPayload already
// uses for the part of the vote that gets signed.
//
// Layout: creator(4) seq(8) ts(8) has_value(1) [value(32)]
//
//	panorama_len(4) [idx(4) kind(1) hash(32)]... sig_len(2) sig
func EncodeVote(sv model.SignedWireVote) ([]byte, error) {
	v := sv.Vote
	indices := make([]model.ValidatorIndex, 0, len(v.Panorama))
	for idx := range v.Panorama {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	buf := make([]byte, 0, 64+len(indices)*37+len(sv.Signature))
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

	binary.LittleEndian.PutUint32(tmp[:4], uint32(len(indices)))
	buf = append(buf, tmp[:4]...)
	for _, idx := range indices {
		obs := v.Panorama[idx]
		binary.LittleEndian.PutUint32(tmp[:4], uint32(idx))
		buf = append(buf, tmp[:4]...)
		buf = append(buf, byte(obs.Kind))
		buf = append(buf, obs.Hash[:]...)
	}

	if len(sv.Signature) > 0xffff {
		return nil, fmt.Errorf("p2p: signature too large: %d bytes", len(sv.Signature))
	}
	binary.LittleEndian.PutUint16(tmp[:2], uint16(len(sv.Signature)))
	buf = append(buf, tmp[:2]...)
	buf = append(buf, sv.Signature...)

	env := &Envelope{Type: MsgVote, Payload: buf}
	return env.Encode(), nil
}

// DecodeVote deserializes a SignedWireVote from an EncodeVote payload.
func DecodeVote(payload []byte) (model.SignedWireVote, error) {
	var sv model.SignedWireVote

	const headerSize = 4 + 8 + 8 + 1
	if len(payload) < headerSize {
		return sv, errors.New("p2p: vote payload too small")
	}

	off := 0
	creator := binary.LittleEndian.Uint32(payload[off : off+4])
	off += 4
	seq := binary.LittleEndian.Uint64(payload[off : off+8])
	off += 8
	ts := binary.LittleEndian.Uint64(payload[off : off+8])
	off += 8
	hasValue := payload[off]
	off++

	var value *model.ConsensusValue
	if hasValue == 1 {
		if len(payload) < off+32 {
			return sv, errors.New("p2p: vote payload truncated (value)")
		}
		var v model.ConsensusValue
		copy(v[:], payload[off:off+32])
		value = &v
		off += 32
	}

	if len(payload) < off+4 {
		return sv, errors.New("p2p: vote payload truncated (panorama length)")
	}
	panoramaLen := int(binary.LittleEndian.Uint32(payload[off : off+4]))
	off += 4

	panorama := make(model.Panorama, panoramaLen)
	for range panoramaLen {
		if len(payload) < off+4+1+32 {
			return sv, errors.New("p2p: vote payload truncated (panorama entry)")
		}
		idx := model.ValidatorIndex(binary.LittleEndian.Uint32(payload[off : off+4]))
		off += 4
		kind := model.ObservationKind(payload[off])
		off++
		var h model.VoteHash
		copy(h[:], payload[off:off+32])
		off += 32
		panorama[idx] = model.Observation{Kind: kind, Hash: h}
	}

	if len(payload) < off+2 {
		return sv, errors.New("p2p: vote payload truncated (signature length)")
	}
	sigLen := int(binary.LittleEndian.Uint16(payload[off : off+2]))
	off += 2
	if len(payload) < off+sigLen {
		return sv, errors.New("p2p: vote payload truncated (signature)")
	}
	sig := make([]byte, sigLen)
	copy(sig, payload[off:off+sigLen])

	sv.Vote = model.WireVote{
		Panorama:  panorama,
		Creator:   model.ValidatorIndex(creator),
		Value:     value,
		SeqNumber: seq,
		Timestamp: model.Timestamp(ts),
	}
	sv.Signature = sig
	return sv, nil
}

// DecodeMessage decodes a wire-format message into its type and vote.
func DecodeMessage(data []byte) (MessageType, model.SignedWireVote, error) {
	env, err := DecodeEnvelope(data)
	if err != nil {
		return 0, model.SignedWireVote{}, err
	}

	switch env.Type {
	case MsgVote:
		v, err := DecodeVote(env.Payload)
		return MsgVote, v, err
	default:
		return env.Type, model.SignedWireVote{}, fmt.Errorf("p2p: unknown message type: 0x%02x", byte(env.Type))
	}
}
