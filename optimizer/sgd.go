package optimizer

import (
	"fmt"
	"sync"

	"github.com/tsawler/wastenet/checkpoints"
	"github.com/tsawler/wastenet/tensor"
)

// SGD implements Stochastic Gradient Descent. The update for each parameter
// runs as a single fused pass over its float32 buffer; velocity buffers are
// plain slices keyed by parameter.
type SGD struct {
	parameters   []*tensor.Tensor
	learningRate float64
	momentum     float64
	weightDecay  float64
	dampening    float64
	nesterov     bool
	stepCount    int64
	velocities   map[*tensor.Tensor][]float32
	mutex        sync.RWMutex
}

// NewSGD creates a new SGD optimizer
func NewSGD(parameters []*tensor.Tensor, lr float64, momentum float64, weightDecay float64, dampening float64, nesterov bool) *SGD {
	sgd := &SGD{
		parameters:   parameters,
		learningRate: lr,
		momentum:     momentum,
		weightDecay:  weightDecay,
		dampening:    dampening,
		nesterov:     nesterov,
		velocities:   make(map[*tensor.Tensor][]float32),
	}

	// Initialize velocity buffers for momentum
	if momentum > 0 {
		for _, param := range parameters {
			if param.RequiresGrad() {
				sgd.velocities[param] = make([]float32, param.NumElems)
			}
		}
	}

	return sgd
}

// Step performs a single optimization step
func (sgd *SGD) Step() error {
	sgd.mutex.Lock()
	defer sgd.mutex.Unlock()

	sgd.stepCount++

	lr := float32(sgd.learningRate)
	momentum := float32(sgd.momentum)
	weightDecay := float32(sgd.weightDecay)
	dampening := float32(sgd.dampening)

	for _, param := range sgd.parameters {
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

		velocity := sgd.velocities[param]
		if momentum > 0 && velocity == nil {
			velocity = make([]float32, len(paramData))
			sgd.velocities[param] = velocity
		}

		for i := range paramData {
			g := gradData[i]
			if weightDecay > 0 {
				g += weightDecay * paramData[i]
			}
			if momentum > 0 {
				// velocity = momentum * velocity + (1 - dampening) * grad
				velocity[i] = momentum*velocity[i] + (1.0-dampening)*g
				if sgd.nesterov {
					g += momentum * velocity[i]
				} else {
					g = velocity[i]
				}
			}
			paramData[i] -= lr * g
		}
	}

	return nil
}

// ZeroGrad resets gradients to zero for all parameters
func (sgd *SGD) ZeroGrad() {
	tensor.ZeroGrad(sgd.parameters)
}

// GetLR returns the current learning rate
func (sgd *SGD) GetLR() float64 {
	sgd.mutex.RLock()
	defer sgd.mutex.RUnlock()
	return sgd.learningRate
}

// SetLR sets the learning rate
func (sgd *SGD) SetLR(lr float64) {
	sgd.mutex.Lock()
	defer sgd.mutex.Unlock()
	sgd.learningRate = lr
}

// State extracts optimizer state for checkpointing
func (sgd *SGD) State() (*checkpoints.OptimizerState, error) {
	sgd.mutex.RLock()
	defer sgd.mutex.RUnlock()

	stateData := make([]checkpoints.OptimizerTensor, 0)

	// Velocity buffers are named by parameter index so LoadState can map
	// them back onto the same parameter list
	if sgd.momentum > 0 {
		for i, param := range sgd.parameters {
			velocity := sgd.velocities[param]
			if velocity == nil {
				continue
			}
			stateData = append(stateData, checkpoints.OptimizerTensor{
				Name:      fmt.Sprintf("momentum_%d", i),
				Shape:     append([]int(nil), param.Shape...),
				Data:      append([]float32(nil), velocity...),
				StateType: "momentum",
			})
		}
	}

	return &checkpoints.OptimizerState{
		Type: "SGD",
		Parameters: map[string]interface{}{
			"learning_rate": sgd.learningRate,
			"momentum":      sgd.momentum,
			"weight_decay":  sgd.weightDecay,
			"dampening":     sgd.dampening,
			"nesterov":      sgd.nesterov,
			"step_count":    sgd.stepCount,
		},
		StateData: stateData,
	}, nil
}

// LoadState restores optimizer state from checkpoint
func (sgd *SGD) LoadState(state *checkpoints.OptimizerState) error {
	if err := validateStateType("SGD", state); err != nil {
		return err
	}

	sgd.mutex.Lock()
	defer sgd.mutex.Unlock()

	sgd.learningRate = extractFloat64Param(state.Parameters, "learning_rate", sgd.learningRate)
	sgd.momentum = extractFloat64Param(state.Parameters, "momentum", sgd.momentum)
	sgd.weightDecay = extractFloat64Param(state.Parameters, "weight_decay", sgd.weightDecay)
	sgd.dampening = extractFloat64Param(state.Parameters, "dampening", sgd.dampening)
	sgd.nesterov = extractBoolParam(state.Parameters, "nesterov", sgd.nesterov)
	sgd.stepCount = extractInt64Param(state.Parameters, "step_count", sgd.stepCount)

	for _, stateTensor := range state.StateData {
		if stateTensor.StateType != "momentum" {
			continue
		}
		idx := extractBufferIndex(stateTensor.Name)
		if idx < 0 || idx >= len(sgd.parameters) {
			return fmt.Errorf("invalid buffer index in state tensor name: %s", stateTensor.Name)
		}
		param := sgd.parameters[idx]
		if len(stateTensor.Data) != param.NumElems {
			return fmt.Errorf("state tensor %s size %d doesn't match parameter size %d",
				stateTensor.Name, len(stateTensor.Data), param.NumElems)
		}
		velocity := make([]float32, param.NumElems)
		copy(velocity, stateTensor.Data)
		sgd.velocities[param] = velocity
	}

	return nil
}
