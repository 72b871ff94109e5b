// Package crypto provides the cryptographic capability the scheduler
// treats as abstract (spec.md §1, §6): signing and hashing of wire votes.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/casper-network/highway/internal/highway/model"
)

// PrivateKey is an Ed25519 private key (64 bytes).
type PrivateKey = ed25519.PrivateKey

// PublicKey is an Ed25519 public key (32 bytes).
type PublicKey = ed25519.PublicKey

// GenerateKeypair creates a new Ed25519 key pair.
func GenerateKeypair() (PublicKey, PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generate keypair: %w", err)
	}
	return pub, priv, nil
}

// Sign signs a message with an Ed25519 private key.
func Sign(privKey PrivateKey, message []byte) []byte {
	return ed25519.Sign(privKey, message)
}

// Verify checks an Ed25519 signature against a public key and message.
func Verify(pubKey PublicKey, message, signature []byte) bool {
	if len(pubKey) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pubKey, message, signature)
}

// Signer is the ed25519-backed implementation of highway.Signer: it owns
// one validator's secret key exclusively and is the only component
// permitted to sign on that validator's behalf (spec.md §5 "shared
// resources").
type Signer struct {
	priv PrivateKey
}

// NewSigner scopes a Signer to a single private key.
func NewSigner(priv PrivateKey) *Signer {
	return &Signer{priv: priv}
}

// Sign implements highway.Signer.
func (s *Signer) Sign(v model.WireVote) model.SignedWireVote {
	sig := Sign(s.priv, v.SigningPayload())
	return model.SignedWireVote{Vote: v, Signature: sig}
}

// Hash implements highway.Signer: the content hash a SignedWireVote is
// identified by once admitted to state is the SHA-256 of its signing
// payload plus its signature, so that two votes with identical content
// but different signers never collide.
func (s *Signer) Hash(sv model.SignedWireVote) model.VoteHash {
	payload := sv.Vote.SigningPayload()
	buf := make([]byte, 0, len(payload)+len(sv.Signature))
	buf = append(buf, payload...)
	buf = append(buf, sv.Signature...)
	return sha256.Sum256(buf)
}

// AddressFromPubKey derives a content-addressed identifier from a public
// key using SHA-256. This is purely an operator-facing display identifier
// (node IDs printed by the CLI and logged on startup) — it plays no part
// in the protocol itself, where a validator is identified by its dense
// model.ValidatorIndex position in the genesis validator list, not by
// any hash of its key.
func AddressFromPubKey(pubKey PublicKey) [32]byte {
	return sha256.Sum256(pubKey)
}

// PubKeyTo32 converts a PublicKey to a [32]byte array.
func PubKeyTo32(pubKey PublicKey) [32]byte {
	var out [32]byte
	copy(out[:], pubKey)
	return out
}

// SigTo64 converts an Ed25519 signature slice to a [64]byte array.
func SigTo64(sig []byte) [64]byte {
	var out [64]byte
	copy(out[:], sig)
	return out
}
