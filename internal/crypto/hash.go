package crypto

import "crypto/sha256"

// HashSHA256 computes the SHA-256 hash of data.
func HashSHA256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// ComputeDeployRoot computes the Merkle root of a batch of deploys,
// grounding the execution adapter's ConsensusValue digest.
func ComputeDeployRoot(deploys [][]byte) [32]byte {
	if len(deploys) == 0 {
		return [32]byte{}
	}
	hashes := make([][32]byte, len(deploys))
	for i, d := range deploys {
		hashes[i] = HashSHA256(d)
	}
	return computeMerkleRoot(hashes)
}

// computeMerkleRoot computes a binary Merkle tree root from a list of
// hashes. Uses a simple iterative pairing approach; if the number of
// hashes at any level is odd, the last hash is duplicated.
func computeMerkleRoot(hashes [][32]byte) [32]byte {
	if len(hashes) == 1 {
		return hashes[0]
	}

	for len(hashes) > 1 {
		if len(hashes)%2 != 0 {
			hashes = append(hashes, hashes[len(hashes)-1])
		}
		next := make([][32]byte, 0, len(hashes)/2)
		for i := 0; i < len(hashes); i += 2 {
			var combined [64]byte
			copy(combined[:32], hashes[i][:])
			copy(combined[32:], hashes[i+1][:])
			next = append(next, HashSHA256(combined[:]))
		}
		hashes = next
	}
	return hashes[0]
}
