package store

import (
	"context"
	"sync"

	"github.com/GenerationSoftware/ERC5164/protocol"
)

// Memory is an in-process FlagStore. Suitable for tests and single-process
// deployments; state does not survive a restart.
type Memory struct {
	mu    sync.Mutex
	flags map[protocol.Bytes32]struct{}
}

var _ FlagStore = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{flags: make(map[protocol.Bytes32]struct{})}
}

func (m *Memory) Put(_ context.Context, key protocol.Bytes32) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.flags[key]; ok {
		return true, nil
	}
	m.flags[key] = struct{}{}
	return false, nil
}

func (m *Memory) Has(_ context.Context, key protocol.Bytes32) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.flags[key]
	return ok, nil
}

// Len returns the number of marked keys.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.flags)
}
