package crypto_test

import (
	"bytes"
	"testing"

	"github.com/casper-network/highway/internal/crypto"
	"github.com/casper-network/highway/internal/highway/model"
)

func TestGenerateKeypairAndSignVerify(t *testing.T) {
	pub, priv, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}

	msg := []byte("hello highway")
	sig := crypto.Sign(priv, msg)

	if !crypto.Verify(pub, msg, sig) {
		t.Fatal("Verify failed for valid signature")
	}
}

func TestVerifyRejectsInvalidSignature(t *testing.T) {
	pub, priv, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}

	msg := []byte("hello highway")
	sig := crypto.Sign(priv, msg)

	badSig := make([]byte, len(sig))
	copy(badSig, sig)
	badSig[0] ^= 0xff

	if crypto.Verify(pub, msg, badSig) {
		t.Fatal("Verify should reject corrupted signature")
	}

	if crypto.Verify(pub, []byte("wrong message"), sig) {
		t.Fatal("Verify should reject wrong message")
	}

	pub2, _, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	if crypto.Verify(pub2, msg, sig) {
		t.Fatal("Verify should reject wrong public key")
	}
}

func TestVerifyRejectsInvalidInputs(t *testing.T) {
	if crypto.Verify(nil, []byte("msg"), make([]byte, 64)) {
		t.Fatal("should reject nil public key")
	}
	if crypto.Verify(make([]byte, 32), []byte("msg"), nil) {
		t.Fatal("should reject nil signature")
	}
	if crypto.Verify(make([]byte, 32), []byte("msg"), make([]byte, 63)) {
		t.Fatal("should reject short signature")
	}
}

func TestAddressFromPubKeyDeterministic(t *testing.T) {
	pub, _, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}

	addr := crypto.AddressFromPubKey(pub)
	addr2 := crypto.AddressFromPubKey(pub)
	if addr != addr2 {
		t.Fatal("same public key should produce same address")
	}
}

func TestHashSHA256Deterministic(t *testing.T) {
	data := []byte("deterministic hashing test")
	h1 := crypto.HashSHA256(data)
	h2 := crypto.HashSHA256(data)
	if h1 != h2 {
		t.Fatal("SHA-256 should be deterministic")
	}
}

func TestComputeDeployRootEmpty(t *testing.T) {
	root := crypto.ComputeDeployRoot(nil)
	if root != ([32]byte{}) {
		t.Fatal("deploy root of empty list should be zero hash")
	}
}

func TestComputeDeployRootSingle(t *testing.T) {
	root := crypto.ComputeDeployRoot([][]byte{[]byte("dep1")})
	expected := crypto.HashSHA256([]byte("dep1"))
	if root != expected {
		t.Fatalf("single deploy root mismatch: got %x, want %x", root, expected)
	}
}

func TestComputeDeployRootDeterministicAndOrderSensitive(t *testing.T) {
	deploys := [][]byte{[]byte("d1"), []byte("d2"), []byte("d3")}
	r1 := crypto.ComputeDeployRoot(deploys)
	r2 := crypto.ComputeDeployRoot(deploys)
	if r1 != r2 {
		t.Fatal("deploy root should be deterministic")
	}

	swapped := [][]byte{deploys[1], deploys[0], deploys[2]}
	r3 := crypto.ComputeDeployRoot(swapped)
	if r1 == r3 {
		t.Fatal("reordering deploys should change the root")
	}
}

func TestPubKeyTo32AndSigTo64(t *testing.T) {
	pub, priv, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}

	pk32 := crypto.PubKeyTo32(pub)
	if !bytes.Equal(pk32[:], pub) {
		t.Fatal("PubKeyTo32 mismatch")
	}

	sig := crypto.Sign(priv, []byte("test"))
	sig64 := crypto.SigTo64(sig)
	if !bytes.Equal(sig64[:], sig) {
		t.Fatal("SigTo64 mismatch")
	}
}

func TestSignerSignAndHash(t *testing.T) {
	_, priv, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	signer := crypto.NewSigner(priv)

	v := model.WireVote{
		Panorama:  model.Panorama{},
		Creator:   1,
		SeqNumber: 0,
		Timestamp: 416,
	}
	sv := signer.Sign(v)
	if len(sv.Signature) == 0 {
		t.Fatal("expected non-empty signature")
	}

	h1 := signer.Hash(sv)
	h2 := signer.Hash(sv)
	if h1 != h2 {
		t.Fatal("Hash should be deterministic for the same signed vote")
	}

	sv2 := signer.Sign(v)
	if signer.Hash(sv2) != h1 {
		t.Fatal("two signatures over the same payload by the same key should hash identically (ed25519 signing is deterministic)")
	}
}
