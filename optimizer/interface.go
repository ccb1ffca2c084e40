// Package optimizer implements the gradient descent optimizers the trainer
// steps after each backward pass. Optimizers mutate parameter tensors in
// place; stateful ones can snapshot their internal buffers into a checkpoint
// and restore them later, so training resumes exactly where it left off.
package optimizer

import (
	"fmt"

	"github.com/tsawler/wastenet/checkpoints"
)

// Optimizer defines the common interface for all optimizers
type Optimizer interface {
	Step() error      // Updates model parameters based on gradients
	ZeroGrad()        // Resets gradients to zero for all parameters
	GetLR() float64   // Gets current learning rate
	SetLR(lr float64) // Sets learning rate
}

// StatefulOptimizer is implemented by optimizers whose internal buffers
// (momentum, moment estimates) can be captured in a checkpoint and restored
type StatefulOptimizer interface {
	Optimizer
	State() (*checkpoints.OptimizerState, error)
	LoadState(state *checkpoints.OptimizerState) error
}

// extractBufferIndex extracts the parameter index from state tensor names
// like "momentum_0" or "variance_12". Returns -1 when no index is present.
func extractBufferIndex(name string) int {
	lastUnderscore := -1
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '_' {
			lastUnderscore = i
			break
		}
	}
	if lastUnderscore < 0 || lastUnderscore == len(name)-1 {
		return -1
	}

	idx := 0
	for _, c := range name[lastUnderscore+1:] {
		if c < '0' || c > '9' {
			return -1
		}
		idx = idx*10 + int(c-'0')
	}
	return idx
}

// validateStateType ensures the state type matches the optimizer
func validateStateType(optimizerType string, state *checkpoints.OptimizerState) error {
	if state == nil {
		return fmt.Errorf("optimizer state is nil")
	}
	if state.Type != optimizerType {
		return fmt.Errorf("state type mismatch: expected %s, got %s", optimizerType, state.Type)
	}
	return nil
}
