package execution

import (
	"fmt"

	"github.com/casper-network/highway/internal/config"
	"github.com/casper-network/highway/internal/highway/model"
	"github.com/casper-network/highway/internal/storage"
	"go.uber.org/zap"
)

// Executor runs a batch of deploys against a previous state root and
// returns the new one. WASMAdapter and MockExecutor both implement it.
type Executor interface {
	Execute(deploys [][]byte, prevRoot model.ConsensusValue) (*ExecutionResult, error)
}

var _ Executor = (*WASMAdapter)(nil)

// WASMAdapter executes deploys through a Sandbox. The Sandbox runs them on
// its deterministic Go-native executor; no wasmtime instance is created,
// and when a WASM artifact is configured and found, execution returns an
// error.
type WASMAdapter struct {
	sandbox    *Sandbox
	cfg        config.ExecutionConfig
	stateStore storage.StateStore
	logger     *zap.Logger
}

// NewWASMAdapter creates a new WASM execution adapter, loading the WASM
// module from the configured path if present.
func NewWASMAdapter(cfg config.ExecutionConfig, stateStore storage.StateStore, logger *zap.Logger) (*WASMAdapter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	sandbox, err := NewSandbox(cfg)
	if err != nil {
		return nil, fmt.Errorf("execution: create sandbox: %w", err)
	}

	return &WASMAdapter{
		sandbox:    sandbox,
		cfg:        cfg,
		stateStore: stateStore,
		logger:     logger,
	}, nil
}

// Execute runs a deploy batch in the sandbox and returns the resulting
// state root. This is a pure function of (prevRoot, deploys).
func (w *WASMAdapter) Execute(deploys [][]byte, prevRoot model.ConsensusValue) (*ExecutionResult, error) {
	w.logger.Debug("executing deploy batch", zap.Int("deploy_count", len(deploys)))

	result, err := w.sandbox.Execute(deploys, prevRoot, w.stateStore)
	if err != nil {
		return nil, fmt.Errorf("execution: %w", err)
	}

	w.logger.Debug("deploy batch executed",
		zap.Uint64("gas_used", result.GasUsed),
		zap.String("state_root", fmtHash(result.StateRoot)),
	)

	return result, nil
}

// Close releases the WASM engine and module.
func (w *WASMAdapter) Close() error {
	if w.sandbox != nil {
		return w.sandbox.Close()
	}
	return nil
}

func fmtHash(v model.ConsensusValue) string {
	return fmt.Sprintf("%x", v[:4])
}
