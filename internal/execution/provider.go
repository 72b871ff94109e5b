package execution

import (
	"context"
	"sync"

	"github.com/casper-network/highway/internal/highway/model"
	"github.com/casper-network/highway/internal/mempool"
	"go.uber.org/zap"
)

// Provider implements internal/eventloop.ValueProvider: on RequestValue it
// reaps pending deploys from the mempool buffer, executes them through an
// Executor, and hands the resulting ConsensusValue back through the
// callback. This generalizes the teacher's CreateProposal →
// ExecutionAdapter.ExecuteBlock pipeline from "build one block" to
// "produce one opaque value," which is all ActiveValidator.propose needs.
type Provider struct {
	executor Executor
	buffer   *mempool.Buffer
	maxBytes int
	logger   *zap.Logger

	mu       sync.Mutex
	prevRoot model.ConsensusValue
}

// NewProvider wires an Executor and a deploy buffer into a ValueProvider.
func NewProvider(executor Executor, buffer *mempool.Buffer, maxBytes int, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		executor: executor,
		buffer:   buffer,
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// RequestValue reaps deploys, executes them, and invokes onValue with the
// resulting state root. Execution runs on its own goroutine so the caller
// (the scheduler's single event loop) is never blocked.
func (p *Provider) RequestValue(ctx context.Context, blockCtx model.BlockContext, onValue func(model.ConsensusValue)) {
	go func() {
		deploys := p.buffer.Reap(p.maxBytes)

		p.mu.Lock()
		prev := p.prevRoot
		p.mu.Unlock()

		result, err := p.executor.Execute(deploys, prev)
		if err != nil {
			p.logger.Warn("value provider: execution failed, skipping this proposal",
				zap.Uint64("timestamp", uint64(blockCtx.Timestamp)),
				zap.Error(err),
			)
			return
		}

		p.mu.Lock()
		p.prevRoot = result.StateRoot
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		default:
			onValue(result.StateRoot)
		}
	}()
}
