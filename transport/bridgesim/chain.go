// Package bridgesim provides in-process stand-ins for the bridge
// primitives: a destination chain with atomic call sessions, a
// retryable-ticket inbox with sender aliasing, a cross-domain messenger
// singleton, and a state-sync tunnel relayer. They model only the narrow
// authentication and submission contracts the core depends on.
package bridgesim

import (
	"context"
	"fmt"
	"sync"

	"github.com/GenerationSoftware/ERC5164/protocol"
	"github.com/GenerationSoftware/ERC5164/transport"
)

// Contract is a destination-side callee registered on the simulated chain.
// Snapshot and Restore give the chain transaction semantics without the
// contract knowing about sessions.
type Contract interface {
	Call(data []byte) ([]byte, error)
	Snapshot() any
	Restore(snapshot any)
}

// Chain is a simulated destination chain. Sessions are serialized: a
// session holds the chain until it commits or rolls back, mirroring the
// one-transaction-at-a-time execution environment of a real ledger.
type Chain struct {
	mu        sync.Mutex
	contracts map[string]Contract
}

var _ transport.CallBackend = (*Chain)(nil)

func NewChain() *Chain {
	return &Chain{contracts: make(map[string]Contract)}
}

// Register deploys a contract at the given address.
func (c *Chain) Register(addr protocol.UnknownAddress, contract Contract) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contracts[addr.String()] = contract
}

// NewSession opens an atomic call session. The session owns the chain until
// Commit or Rollback.
func (c *Chain) NewSession(_ context.Context) (transport.CallSession, error) {
	c.mu.Lock()

	snapshots := make(map[string]any, len(c.contracts))
	for addr, contract := range c.contracts {
		snapshots[addr] = contract.Snapshot()
	}
	return &session{chain: c, snapshots: snapshots}, nil
}

type session struct {
	chain     *Chain
	snapshots map[string]any
	done      bool
}

func (s *session) Call(_ context.Context, to protocol.UnknownAddress, data []byte) ([]byte, error) {
	if s.done {
		return nil, fmt.Errorf("session already closed")
	}
	contract, ok := s.chain.contracts[to.String()]
	if !ok {
		return nil, fmt.Errorf("no contract at address %s", to.String())
	}
	return contract.Call(data)
}

func (s *session) Commit() error {
	if s.done {
		return fmt.Errorf("session already closed")
	}
	s.done = true
	s.chain.mu.Unlock()
	return nil
}

func (s *session) Rollback() {
	if s.done {
		return
	}
	s.done = true
	for addr, snap := range s.snapshots {
		s.chain.contracts[addr].Restore(snap)
	}
	s.chain.mu.Unlock()
}
