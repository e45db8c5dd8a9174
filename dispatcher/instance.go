// Package dispatcher implements the origin-chain side of the relay: nonce
// based identifier derivation, the dispatch ledger, and the single-phase
// and two-phase dispatch surfaces.
package dispatcher

import (
	"fmt"
	"sync"

	"github.com/smartcontractkit/chainlink-common/pkg/logger"

	"github.com/GenerationSoftware/ERC5164/protocol"
)

const eventBufferSize = 100

// MessageDispatched is the dispatched-notification emitted for every
// accepted dispatch. Exactly one of Message and Messages is set.
type MessageDispatched struct {
	ID          protocol.Bytes32
	Sender      protocol.UnknownAddress
	DestChainID protocol.ChainID
	Message     *protocol.Message
	Messages    protocol.MessageBatch
}

// instance holds the state every dispatcher variant shares: its identity,
// its single configured destination, the monotonic nonce, and the set-once
// executor link. All entry points serialize on mu; the nonce, ledger, and
// link are mutated by no one else.
type instance struct {
	lggr        logger.Logger
	id          protocol.UnknownAddress
	originChain protocol.ChainID
	destChain   protocol.ChainID

	mu       sync.Mutex
	nonce    protocol.Nonce
	executor protocol.UnknownAddress

	events chan MessageDispatched
}

func newInstance(lggr logger.Logger, id protocol.UnknownAddress, originChain, destChain protocol.ChainID) (*instance, error) {
	if lggr == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if len(id) == 0 {
		return nil, fmt.Errorf("dispatcher address is required")
	}
	if originChain == destChain {
		return nil, fmt.Errorf("origin and destination chain ids must differ")
	}
	return &instance{
		lggr:        lggr,
		id:          id,
		originChain: originChain,
		destChain:   destChain,
		events:      make(chan MessageDispatched, eventBufferSize),
	}, nil
}

// SetExecutor binds the trusted executor instance. Callable exactly once.
func (in *instance) SetExecutor(addr protocol.UnknownAddress) error {
	if len(addr) == 0 || addr.IsZero() {
		return fmt.Errorf("executor address must not be zero")
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if len(in.executor) != 0 {
		return fmt.Errorf("executor %s: %w", in.executor.String(), protocol.ErrAlreadySet)
	}
	in.executor = addr
	in.lggr.Infow("executor link set", "executor", addr.String())
	return nil
}

// Executor returns the trusted executor link, or nil if unset.
func (in *instance) Executor() protocol.UnknownAddress {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.executor
}

// Address returns this dispatcher instance's identity.
func (in *instance) Address() protocol.UnknownAddress {
	return in.id
}

// OriginChainID returns the chain this dispatcher lives on.
func (in *instance) OriginChainID() protocol.ChainID {
	return in.originChain
}

// DestinationChainID returns the single supported destination chain.
func (in *instance) DestinationChainID() protocol.ChainID {
	return in.destChain
}

// Nonce returns the current nonce, i.e. the nonce of the most recent
// dispatch, or zero if nothing was dispatched yet.
func (in *instance) Nonce() protocol.Nonce {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.nonce
}

// Events returns the dispatched-notification channel. Notifications are
// dropped if nothing drains the channel; they are observability, not
// control flow.
func (in *instance) Events() <-chan MessageDispatched {
	return in.events
}

// gate enforces the dispatch preconditions. Caller holds mu.
func (in *instance) gate(toChain protocol.ChainID) error {
	if len(in.executor) == 0 {
		return protocol.ErrExecutorNotSet
	}
	if toChain != in.destChain {
		return fmt.Errorf("chain %d not supported, dispatcher serves %d: %w", toChain, in.destChain, protocol.ErrUnsupportedChain)
	}
	return nil
}

func (in *instance) publish(ev MessageDispatched) {
	select {
	case in.events <- ev:
	default:
		in.lggr.Warnw("dropping dispatched notification, no subscriber draining", "messageID", ev.ID.String())
	}
}
