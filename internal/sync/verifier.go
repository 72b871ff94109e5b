package sync

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/casper-network/highway/internal/eventloop"
	"github.com/casper-network/highway/internal/highway/model"
)

// Verifier validates votes downloaded during catch-up before they are
// admitted to local state.
type Verifier struct {
	pubKeys []ed25519.PublicKey // indexed by model.ValidatorIndex
	hasher  eventloop.Hasher
}

// NewVerifier creates a vote verifier. pubKeys must use the same dense
// ValidatorIndex ordering as the local state.State.
func NewVerifier(pubKeys []ed25519.PublicKey, hasher eventloop.Hasher) *Verifier {
	return &Verifier{pubKeys: pubKeys, hasher: hasher}
}

// VerifyVote checks that a downloaded vote is well-formed, signed by the
// validator it claims to be from, and actually hashes to the hash it was
// requested under — the last check stops a lying peer from substituting
// different content for a hash another vote's panorama already committed
// to.
func (v *Verifier) VerifyVote(sv model.SignedWireVote, wantHash model.VoteHash) error {
	creator := int(sv.Vote.Creator)
	if creator < 0 || creator >= len(v.pubKeys) {
		return fmt.Errorf("sync: vote from unknown validator index %d", sv.Vote.Creator)
	}

	if !ed25519.Verify(v.pubKeys[creator], sv.Vote.SigningPayload(), sv.Signature) {
		return fmt.Errorf("sync: invalid signature on vote from validator %d", sv.Vote.Creator)
	}

	if v.hasher == nil {
		return errors.New("sync: no hasher configured")
	}
	if got := v.hasher.Hash(sv); got != wantHash {
		return fmt.Errorf("sync: vote hash mismatch: got %s, want %s", got, wantHash)
	}

	return nil
}
