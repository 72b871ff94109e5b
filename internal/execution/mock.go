package execution

import (
	"errors"

	"github.com/casper-network/highway/internal/highway/model"
)

var _ Executor = (*MockExecutor)(nil)

// MockExecutor implements Executor for testing. It returns configurable
// results without actual WASM execution.
type MockExecutor struct {
	NextValue  model.ConsensusValue
	NextGas    uint64
	ShouldFail bool
	FailError  error

	CallCount    int
	LastDeploys  [][]byte
	LastPrevRoot model.ConsensusValue
}

// NewMockExecutor creates a MockExecutor with default settings.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{}
}

// Execute implements Executor.
func (m *MockExecutor) Execute(deploys [][]byte, prevRoot model.ConsensusValue) (*ExecutionResult, error) {
	m.CallCount++
	m.LastDeploys = deploys
	m.LastPrevRoot = prevRoot

	if m.ShouldFail {
		if m.FailError != nil {
			return nil, m.FailError
		}
		return nil, errors.New("mock: execution failed")
	}

	return &ExecutionResult{StateRoot: m.NextValue, GasUsed: m.NextGas}, nil
}
