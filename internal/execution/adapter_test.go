package execution

import (
	"testing"

	"github.com/casper-network/highway/internal/config"
	"github.com/casper-network/highway/internal/highway/model"
	"github.com/casper-network/highway/internal/storage"
)

// --- MockExecutor tests ---

func TestMockExecutorImplementsInterface(t *testing.T) {
	var _ Executor = (*MockExecutor)(nil)
}

func TestMockExecutorSuccess(t *testing.T) {
	mock := NewMockExecutor()
	mock.NextValue = model.ConsensusValue{0xaa}
	mock.NextGas = 5000

	result, err := mock.Execute([][]byte{[]byte("d1")}, model.ConsensusValue{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.StateRoot != mock.NextValue {
		t.Fatal("state root mismatch")
	}
	if result.GasUsed != 5000 {
		t.Fatalf("gas used = %d, want 5000", result.GasUsed)
	}
	if mock.CallCount != 1 {
		t.Fatalf("call count = %d, want 1", mock.CallCount)
	}
}

func TestMockExecutorFailure(t *testing.T) {
	mock := NewMockExecutor()
	mock.ShouldFail = true

	_, err := mock.Execute(nil, model.ConsensusValue{})
	if err == nil {
		t.Fatal("expected error from failed mock")
	}
}

// --- WASMAdapter tests ---

func TestNewWASMAdapterNoWASMFile(t *testing.T) {
	cfg := config.ExecutionConfig{
		WASMPath:    "/nonexistent/path.wasm",
		GasLimit:    100_000_000,
		FuelLimit:   100_000_000,
		MaxMemoryMB: 256,
	}

	adapter, err := NewWASMAdapter(cfg, storage.NewMemStore(), nil)
	if err != nil {
		t.Fatalf("expected adapter to be created (native mode): %v", err)
	}
	defer adapter.Close()
}

func TestWASMAdapterExecute(t *testing.T) {
	cfg := config.ExecutionConfig{
		WASMPath: "/nonexistent.wasm", // triggers native executor
		GasLimit: 100_000_000,
	}
	store := storage.NewMemStore()
	adapter, err := NewWASMAdapter(cfg, store, nil)
	if err != nil {
		t.Fatalf("create adapter: %v", err)
	}
	defer adapter.Close()

	result, err := adapter.Execute([][]byte{[]byte("d1"), []byte("d2")}, model.ConsensusValue{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.StateRoot == (model.ConsensusValue{}) {
		t.Fatal("expected non-zero state root")
	}
	if result.GasUsed == 0 {
		t.Fatal("expected non-zero gas used")
	}
}

// --- Sandbox (native executor) tests ---

func TestNativeExecutorDeterministic(t *testing.T) {
	cfg := config.ExecutionConfig{GasLimit: 100_000_000}
	s1, _ := NewSandbox(cfg)
	s2, _ := NewSandbox(cfg)

	deploys := [][]byte{[]byte("d-a"), []byte("d-b"), []byte("d-c")}
	store1 := storage.NewMemStore()
	store2 := storage.NewMemStore()

	r1, err := s1.Execute(deploys, model.ConsensusValue{}, store1)
	if err != nil {
		t.Fatalf("execute 1: %v", err)
	}
	r2, err := s2.Execute(deploys, model.ConsensusValue{}, store2)
	if err != nil {
		t.Fatalf("execute 2: %v", err)
	}

	if r1.StateRoot != r2.StateRoot {
		t.Fatal("state roots differ — execution is not deterministic")
	}
	if r1.GasUsed != r2.GasUsed {
		t.Fatal("gas used differs")
	}
}

func TestNativeExecutorDifferentDeploys(t *testing.T) {
	cfg := config.ExecutionConfig{GasLimit: 100_000_000}
	s, _ := NewSandbox(cfg)

	r1, _ := s.Execute([][]byte{[]byte("d-a")}, model.ConsensusValue{}, nil)
	r2, _ := s.Execute([][]byte{[]byte("d-b")}, model.ConsensusValue{}, nil)

	if r1.StateRoot == r2.StateRoot {
		t.Fatal("different deploy sets should produce different state roots")
	}
}

func TestNativeExecutorEmptyBatch(t *testing.T) {
	cfg := config.ExecutionConfig{GasLimit: 100_000_000}
	s, _ := NewSandbox(cfg)

	prevRoot := model.ConsensusValue{0x01, 0x02}
	result, err := s.Execute(nil, prevRoot, nil)
	if err != nil {
		t.Fatalf("execute empty batch: %v", err)
	}

	// An empty batch preserves the previous state root.
	if result.StateRoot != prevRoot {
		t.Fatal("empty batch should preserve previous state root")
	}
	if result.GasUsed != 0 {
		t.Fatalf("empty batch gas = %d, want 0", result.GasUsed)
	}
}

func TestNativeExecutorGasLimit(t *testing.T) {
	cfg := config.ExecutionConfig{GasLimit: 500} // very low

	s, _ := NewSandbox(cfg)
	_, err := s.Execute([][]byte{[]byte("d-a")}, model.ConsensusValue{}, nil)
	if err == nil {
		t.Fatal("expected gas limit exceeded error")
	}
}

func TestNativeExecutorPersistsState(t *testing.T) {
	cfg := config.ExecutionConfig{GasLimit: 100_000_000}
	s, _ := NewSandbox(cfg)
	store := storage.NewMemStore()

	result, err := s.Execute([][]byte{[]byte("d-data")}, model.ConsensusValue{}, store)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	saved, err := store.Get([]byte(stateRootKey))
	if err != nil {
		t.Fatalf("get state root: %v", err)
	}
	var got model.ConsensusValue
	copy(got[:], saved)
	if got != result.StateRoot {
		t.Fatal("persisted state root doesn't match execution result")
	}
}

func TestNativeExecutorChainedBatches(t *testing.T) {
	cfg := config.ExecutionConfig{GasLimit: 100_000_000}
	s, _ := NewSandbox(cfg)
	store := storage.NewMemStore()

	r1, err := s.Execute([][]byte{[]byte("d1")}, model.ConsensusValue{}, store)
	if err != nil {
		t.Fatalf("execute batch 1: %v", err)
	}

	r2, err := s.Execute([][]byte{[]byte("d2")}, r1.StateRoot, store)
	if err != nil {
		t.Fatalf("execute batch 2: %v", err)
	}

	if r1.StateRoot == r2.StateRoot {
		t.Fatal("chained batches should produce different state roots")
	}
}

func TestComputeStateRootDeterministic(t *testing.T) {
	prevRoot := model.ConsensusValue{0xff}
	deploys := [][]byte{[]byte("b"), []byte("a"), []byte("c")}

	root1 := computeStateRoot(prevRoot, deploys)
	root2 := computeStateRoot(prevRoot, deploys)
	if root1 != root2 {
		t.Fatal("computeStateRoot should be deterministic")
	}

	// Different gossip order should give the same result.
	reversed := [][]byte{[]byte("c"), []byte("a"), []byte("b")}
	root3 := computeStateRoot(prevRoot, reversed)
	if root1 != root3 {
		t.Fatal("computeStateRoot should be order-independent")
	}
}
