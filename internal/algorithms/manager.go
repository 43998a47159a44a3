package algorithms

import (
	"context"
	"fmt"
	"sync"

	"watershed-segmenter/internal/opencv/safe"
)

type Manager struct {
	algorithms       map[string]Algorithm
	currentAlgorithm string
	parameters       map[string]map[string]interface{}
	mu               sync.RWMutex
}

// NewManager registers the given algorithms; the first one becomes current.
func NewManager(algs ...Algorithm) *Manager {
	manager := &Manager{
		algorithms: make(map[string]Algorithm),
		parameters: make(map[string]map[string]interface{}),
	}

	for _, alg := range algs {
		manager.algorithms[alg.GetName()] = alg
		manager.parameters[alg.GetName()] = alg.GetDefaultParameters()
		if manager.currentAlgorithm == "" {
			manager.currentAlgorithm = alg.GetName()
		}
	}

	return manager
}

func (m *Manager) GetCurrentAlgorithm() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentAlgorithm
}

// GetParameters returns a copy of the stored parameters.
func (m *Manager) GetParameters(algorithm string) map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]interface{})
	for k, v := range m.parameters[algorithm] {
		result[k] = v
	}
	return result
}

// SetParameter stores value only if the resulting parameter set still validates.
func (m *Manager) SetParameter(algorithm, name string, value interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	alg, exists := m.algorithms[algorithm]
	if !exists {
		return fmt.Errorf("unknown algorithm: %s", algorithm)
	}

	candidate := make(map[string]interface{}, len(m.parameters[algorithm])+1)
	for k, v := range m.parameters[algorithm] {
		candidate[k] = v
	}
	candidate[name] = value

	if err := alg.ValidateParameters(candidate); err != nil {
		return fmt.Errorf("parameter %s rejected: %w", name, err)
	}

	m.parameters[algorithm] = candidate
	return nil
}

// ResetParameters restores the algorithm defaults.
func (m *Manager) ResetParameters(algorithm string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	alg, exists := m.algorithms[algorithm]
	if !exists {
		return fmt.Errorf("unknown algorithm: %s", algorithm)
	}

	m.parameters[algorithm] = alg.GetDefaultParameters()
	return nil
}

func (m *Manager) GetAlgorithm(name string) (Algorithm, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if algorithm, exists := m.algorithms[name]; exists {
		return algorithm, nil
	}

	return nil, fmt.Errorf("unknown algorithm: %s", name)
}

// ProcessCurrent runs the current algorithm with its stored parameters.
func (m *Manager) ProcessCurrent(ctx context.Context, input *safe.Mat) (*safe.Mat, error) {
	name := m.GetCurrentAlgorithm()
	alg, err := m.GetAlgorithm(name)
	if err != nil {
		return nil, err
	}

	return alg.Process(ctx, input, m.GetParameters(name))
}
