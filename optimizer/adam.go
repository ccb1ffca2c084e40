package optimizer

import (
	"fmt"
	"math"
	"sync"

	"github.com/tsawler/wastenet/checkpoints"
	"github.com/tsawler/wastenet/tensor"
)

// Adam implements the Adam optimizer with bias-corrected first and second
// moment estimates, fused into one pass per parameter buffer
type Adam struct {
	parameters  []*tensor.Tensor
	lr          float64
	beta1       float64
	beta2       float64
	eps         float64
	weightDecay float64
	step        int64
	m           map[*tensor.Tensor][]float32 // First moment estimates
	v           map[*tensor.Tensor][]float32 // Second moment estimates
	mutex       sync.RWMutex
}

// NewAdam creates a new Adam optimizer
func NewAdam(parameters []*tensor.Tensor, lr, beta1, beta2, eps, weightDecay float64) *Adam {
	adam := &Adam{
		parameters:  parameters,
		lr:          lr,
		beta1:       beta1,
		beta2:       beta2,
		eps:         eps,
		weightDecay: weightDecay,
		step:        0,
		m:           make(map[*tensor.Tensor][]float32),
		v:           make(map[*tensor.Tensor][]float32),
	}

	// Initialize moment estimates
	for _, param := range parameters {
		if param.RequiresGrad() {
			adam.m[param] = make([]float32, param.NumElems)
			adam.v[param] = make([]float32, param.NumElems)
		}
	}

	return adam
}

// Step performs a single optimization step
func (adam *Adam) Step() error {
	adam.mutex.Lock()
	defer adam.mutex.Unlock()

	adam.step++

	// Bias correction factors
	bias1 := 1.0 - math.Pow(adam.beta1, float64(adam.step))
	bias2 := 1.0 - math.Pow(adam.beta2, float64(adam.step))

	for _, param := range adam.parameters {
		if !param.RequiresGrad() || param.Grad() == nil {
			continue
		}

		paramData, err := param.Float32Data()
		if err != nil {
			return fmt.Errorf("parameter data access failed: %v", err)
		}
		gradData, err := param.Grad().Float32Data()
		if err != nil {
			return fmt.Errorf("gradient data access failed: %v", err)
		}
		if len(gradData) != len(paramData) {
			return fmt.Errorf("gradient size %d doesn't match parameter size %d", len(gradData), len(paramData))
		}

		m := adam.m[param]
		v := adam.v[param]
		if m == nil || v == nil {
			m = make([]float32, len(paramData))
			v = make([]float32, len(paramData))
			adam.m[param] = m
			adam.v[param] = v
		}

		for i := range paramData {
			g := float64(gradData[i])
			if adam.weightDecay > 0 {
				g += adam.weightDecay * float64(paramData[i])
			}

			// m = beta1 * m + (1 - beta1) * grad
			// v = beta2 * v + (1 - beta2) * grad^2
			mi := adam.beta1*float64(m[i]) + (1.0-adam.beta1)*g
			vi := adam.beta2*float64(v[i]) + (1.0-adam.beta2)*g*g
			m[i] = float32(mi)
			v[i] = float32(vi)

			// Bias-corrected update: lr * m_hat / (sqrt(v_hat) + eps)
			mHat := mi / bias1
			vHat := vi / bias2
			paramData[i] -= float32(adam.lr * mHat / (math.Sqrt(vHat) + adam.eps))
		}
	}

	return nil
}

// ZeroGrad resets gradients to zero for all parameters
func (adam *Adam) ZeroGrad() {
	tensor.ZeroGrad(adam.parameters)
}

// GetLR returns the current learning rate
func (adam *Adam) GetLR() float64 {
	adam.mutex.RLock()
	defer adam.mutex.RUnlock()
	return adam.lr
}

// SetLR sets the learning rate
func (adam *Adam) SetLR(lr float64) {
	adam.mutex.Lock()
	defer adam.mutex.Unlock()
	adam.lr = lr
}

// State extracts optimizer state for checkpointing
func (adam *Adam) State() (*checkpoints.OptimizerState, error) {
	adam.mutex.RLock()
	defer adam.mutex.RUnlock()

	stateData := make([]checkpoints.OptimizerTensor, 0, 2*len(adam.parameters))

	for i, param := range adam.parameters {
		if m := adam.m[param]; m != nil {
			stateData = append(stateData, checkpoints.OptimizerTensor{
				Name:      fmt.Sprintf("momentum_%d", i),
				Shape:     append([]int(nil), param.Shape...),
				Data:      append([]float32(nil), m...),
				StateType: "momentum",
			})
		}
		if v := adam.v[param]; v != nil {
			stateData = append(stateData, checkpoints.OptimizerTensor{
				Name:      fmt.Sprintf("variance_%d", i),
				Shape:     append([]int(nil), param.Shape...),
				Data:      append([]float32(nil), v...),
				StateType: "variance",
			})
		}
	}

	return &checkpoints.OptimizerState{
		Type: "Adam",
		Parameters: map[string]interface{}{
			"learning_rate": adam.lr,
			"beta1":         adam.beta1,
			"beta2":         adam.beta2,
			"epsilon":       adam.eps,
			"weight_decay":  adam.weightDecay,
			"step_count":    adam.step,
		},
		StateData: stateData,
	}, nil
}

// LoadState restores optimizer state from checkpoint
func (adam *Adam) LoadState(state *checkpoints.OptimizerState) error {
	if err := validateStateType("Adam", state); err != nil {
		return err
	}

	adam.mutex.Lock()
	defer adam.mutex.Unlock()

	adam.lr = extractFloat64Param(state.Parameters, "learning_rate", adam.lr)
	adam.beta1 = extractFloat64Param(state.Parameters, "beta1", adam.beta1)
	adam.beta2 = extractFloat64Param(state.Parameters, "beta2", adam.beta2)
	adam.eps = extractFloat64Param(state.Parameters, "epsilon", adam.eps)
	adam.weightDecay = extractFloat64Param(state.Parameters, "weight_decay", adam.weightDecay)
	adam.step = extractInt64Param(state.Parameters, "step_count", adam.step)

	for _, stateTensor := range state.StateData {
		idx := extractBufferIndex(stateTensor.Name)
		if idx < 0 || idx >= len(adam.parameters) {
			return fmt.Errorf("invalid buffer index in state tensor name: %s", stateTensor.Name)
		}
		param := adam.parameters[idx]
		if len(stateTensor.Data) != param.NumElems {
			return fmt.Errorf("state tensor %s size %d doesn't match parameter size %d",
				stateTensor.Name, len(stateTensor.Data), param.NumElems)
		}

		buffer := make([]float32, param.NumElems)
		copy(buffer, stateTensor.Data)

		switch stateTensor.StateType {
		case "momentum":
			adam.m[param] = buffer
		case "variance":
			adam.v[param] = buffer
		default:
			return fmt.Errorf("unknown state tensor type: %s", stateTensor.StateType)
		}
	}

	return nil
}
