package execution

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/casper-network/highway/internal/config"
	"github.com/casper-network/highway/internal/highway/model"
	"github.com/casper-network/highway/internal/storage"
)

// stateRootKey is the key under which the sandbox persists its most recent
// state root, so a restarted node can resume the chain rather than
// re-deriving genesis.
const stateRootKey = "exec/state_root"

// ExecutionResult is the outcome of executing one batch of deploys.
type ExecutionResult struct {
	StateRoot model.ConsensusValue
	GasUsed   uint64
}

// Sandbox wraps deploy execution. Deploys run on a deterministic Go-native
// executor that derives a state root from the deploy set directly. No WASM
// runtime is wired in: when a WASM artifact has been loaded, Execute
// returns an error instead of running the deploys.
type Sandbox struct {
	cfg      config.ExecutionConfig
	wasmCode []byte // loaded WASM bytes, nil if no artifact available
}

// NewSandbox creates a new execution sandbox.
// If the WASM artifact exists, its bytes are loaded and Execute routes to
// executeWASM, which fails. If not, it operates in native mode using a
// deterministic Go executor.
func NewSandbox(cfg config.ExecutionConfig) (*Sandbox, error) {
	s := &Sandbox{cfg: cfg}

	if cfg.WASMPath != "" {
		data, err := os.ReadFile(cfg.WASMPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("execution: read wasm: %w", err)
			}
			// WASM file not found — will use native executor.
		} else {
			s.wasmCode = data
		}
	}

	return s, nil
}

// Execute runs deploy execution in the sandbox: the deterministic native
// executor when no artifact was loaded, executeWASM (an error) otherwise.
func (s *Sandbox) Execute(deploys [][]byte, prevRoot model.ConsensusValue, stateStore storage.StateStore) (*ExecutionResult, error) {
	if s.wasmCode != nil {
		return s.executeWASM(deploys, prevRoot, stateStore)
	}
	return s.executeNative(deploys, prevRoot, stateStore)
}

// executeWASM always returns an error: no wasmtime instance, host-function
// ABI (state_get/state_set), fuel metering or memory limits are wired in.
// A sandbox with a loaded artifact does not fall back to the native
// executor; the native executor runs only when no artifact was loaded.
func (s *Sandbox) executeWASM(deploys [][]byte, prevRoot model.ConsensusValue, stateStore storage.StateStore) (*ExecutionResult, error) {
	return nil, errors.New("execution: wasm execution not yet implemented — use native executor or provide a mock")
}

// executeNative is a deterministic Go-native executor. It applies each
// deploy to state (key = sha256(deploy), value = deploy) and derives a new
// state root from the ordered deploy hashes. Same (prevRoot, deploys) always
// produces the same result.
func (s *Sandbox) executeNative(deploys [][]byte, prevRoot model.ConsensusValue, stateStore storage.StateStore) (*ExecutionResult, error) {
	var gasUsed uint64
	writes := make(map[string][]byte)

	for _, d := range deploys {
		// Per-deploy gas: 1000 base + 1 per byte.
		gas := uint64(1000) + uint64(len(d))
		gasUsed += gas

		if s.cfg.GasLimit > 0 && gasUsed > s.cfg.GasLimit {
			return nil, fmt.Errorf("execution: gas limit exceeded: %d > %d", gasUsed, s.cfg.GasLimit)
		}

		key := sha256.Sum256(d)
		writes[string(key[:])] = d
	}

	if stateStore != nil && len(writes) > 0 {
		if err := stateStore.ApplyWriteSet(writes); err != nil {
			return nil, fmt.Errorf("execution: apply writes: %w", err)
		}
	}

	newRoot := computeStateRoot(prevRoot, deploys)

	if stateStore != nil {
		if err := stateStore.Set([]byte(stateRootKey), newRoot[:]); err != nil {
			return nil, fmt.Errorf("execution: persist state root: %w", err)
		}
	}

	return &ExecutionResult{StateRoot: newRoot, GasUsed: gasUsed}, nil
}

// computeStateRoot derives a deterministic digest from the previous root
// and the deploy set: prevRoot(32) || count(8) || sorted(sha256(deploy))...
// Sorting the deploy hashes makes the root independent of gossip order.
func computeStateRoot(prevRoot model.ConsensusValue, deploys [][]byte) model.ConsensusValue {
	if len(deploys) == 0 {
		return prevRoot
	}

	hashes := make([][32]byte, len(deploys))
	for i, d := range deploys {
		hashes[i] = sha256.Sum256(d)
	}
	sort.Slice(hashes, func(i, j int) bool {
		for k := range 32 {
			if hashes[i][k] != hashes[j][k] {
				return hashes[i][k] < hashes[j][k]
			}
		}
		return false
	})

	buf := make([]byte, 32+8+32*len(hashes))
	copy(buf[0:32], prevRoot[:])
	binary.BigEndian.PutUint64(buf[32:40], uint64(len(hashes)))
	for i, h := range hashes {
		copy(buf[40+32*i:40+32*(i+1)], h[:])
	}

	return sha256.Sum256(buf)
}

// Close releases sandbox resources.
func (s *Sandbox) Close() error {
	s.wasmCode = nil
	return nil
}
