package training

import (
	"math"
)

// LRScheduler interface for learning rate scheduling
type LRScheduler interface {
	// GetLR returns the learning rate for the given epoch/step
	GetLR(epoch int, step int, baseLR float64) float64

	// GetName returns the scheduler name for logging
	GetName() string
}

// StepLRScheduler reduces learning rate by gamma every stepSize epochs
type StepLRScheduler struct {
	StepSize int     // Epochs between reductions
	Gamma    float64 // Multiplicative factor
}

// NewStepLRScheduler creates a step decay scheduler
func NewStepLRScheduler(stepSize int, gamma float64) *StepLRScheduler {
	if stepSize <= 0 {
		stepSize = 30
	}
	if gamma <= 0 || gamma >= 1 {
		gamma = 0.1
	}
	return &StepLRScheduler{
		StepSize: stepSize,
		Gamma:    gamma,
	}
}

// GetLR calculates the decayed learning rate
func (s *StepLRScheduler) GetLR(epoch int, step int, baseLR float64) float64 {
	reductions := epoch / s.StepSize
	return baseLR * math.Pow(s.Gamma, float64(reductions))
}

// GetName returns the scheduler name
func (s *StepLRScheduler) GetName() string {
	return "StepLR"
}

// ExponentialLRScheduler reduces learning rate exponentially each epoch
type ExponentialLRScheduler struct {
	Gamma float64 // Decay rate per epoch
}

// NewExponentialLRScheduler creates an exponential decay scheduler
func NewExponentialLRScheduler(gamma float64) *ExponentialLRScheduler {
	if gamma <= 0 || gamma >= 1 {
		gamma = 0.95
	}
	return &ExponentialLRScheduler{Gamma: gamma}
}

// GetLR calculates the exponentially decayed learning rate
func (s *ExponentialLRScheduler) GetLR(epoch int, step int, baseLR float64) float64 {
	return baseLR * math.Pow(s.Gamma, float64(epoch))
}

// GetName returns the scheduler name
func (s *ExponentialLRScheduler) GetName() string {
	return "ExponentialLR"
}

// CosineAnnealingLRScheduler implements cosine annealing schedule
type CosineAnnealingLRScheduler struct {
	TMax   int     // Maximum number of epochs
	EtaMin float64 // Minimum learning rate
}

// NewCosineAnnealingLRScheduler creates a cosine annealing scheduler
func NewCosineAnnealingLRScheduler(tMax int, etaMin float64) *CosineAnnealingLRScheduler {
	if tMax <= 0 {
		tMax = 100
	}
	if etaMin < 0 {
		etaMin = 0
	}
	return &CosineAnnealingLRScheduler{
		TMax:   tMax,
		EtaMin: etaMin,
	}
}

// GetLR calculates learning rate using cosine annealing
func (s *CosineAnnealingLRScheduler) GetLR(epoch int, step int, baseLR float64) float64 {
	if epoch >= s.TMax {
		return s.EtaMin
	}
	cosine := math.Cos(math.Pi * float64(epoch) / float64(s.TMax))
	return s.EtaMin + (baseLR-s.EtaMin)*(1+cosine)/2
}

// GetName returns the scheduler name
func (s *CosineAnnealingLRScheduler) GetName() string {
	return "CosineAnnealingLR"
}

// ReduceLROnPlateauScheduler reduces learning rate when a monitored metric
// stops improving. Unlike the epoch-driven schedulers this one is stateful:
// call Step with the metric after each validation pass.
type ReduceLROnPlateauScheduler struct {
	Factor    float64 // Factor to reduce LR by
	Patience  int     // Epochs to wait before reducing
	Threshold float64 // Minimum change to qualify as improvement
	Mode      string  // "min" or "max"

	bestMetric  float64
	badEpochs   int
	currentLR   float64
	initialized bool
}

// NewReduceLROnPlateauScheduler creates a plateau-based scheduler
func NewReduceLROnPlateauScheduler(factor float64, patience int) *ReduceLROnPlateauScheduler {
	if factor <= 0 || factor >= 1 {
		factor = 0.1
	}
	if patience < 0 {
		patience = 10
	}
	return &ReduceLROnPlateauScheduler{
		Factor:    factor,
		Patience:  patience,
		Threshold: 1e-4,
		Mode:      "min",
	}
}

// Step updates the scheduler with the latest metric value and returns the
// learning rate to use
func (s *ReduceLROnPlateauScheduler) Step(metric float64, currentLR float64) float64 {
	if !s.initialized {
		s.bestMetric = metric
		s.currentLR = currentLR
		s.initialized = true
		return currentLR
	}

	improved := false
	if s.Mode == "min" {
		improved = metric < s.bestMetric-s.Threshold
	} else {
		improved = metric > s.bestMetric+s.Threshold
	}

	if improved {
		s.bestMetric = metric
		s.badEpochs = 0
	} else {
		s.badEpochs++
		if s.badEpochs > s.Patience {
			s.currentLR = currentLR * s.Factor
			s.badEpochs = 0
		}
	}

	return s.currentLR
}

// GetLR returns the current learning rate (for LRScheduler interface)
func (s *ReduceLROnPlateauScheduler) GetLR(epoch int, step int, baseLR float64) float64 {
	if !s.initialized {
		return baseLR
	}
	return s.currentLR
}

// GetName returns the scheduler name
func (s *ReduceLROnPlateauScheduler) GetName() string {
	return "ReduceLROnPlateau"
}

// NoOpScheduler keeps the learning rate constant
type NoOpScheduler struct{}

// GetLR returns the base learning rate unchanged
func (s *NoOpScheduler) GetLR(epoch int, step int, baseLR float64) float64 {
	return baseLR
}

// GetName returns the scheduler name
func (s *NoOpScheduler) GetName() string {
	return "ConstantLR"
}
