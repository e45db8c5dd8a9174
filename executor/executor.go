// Package executor implements the destination-chain side of the relay:
// provenance authentication, the exactly-once execution ledger, and the
// atomic call executor.
package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/smartcontractkit/chainlink-common/pkg/logger"

	"github.com/GenerationSoftware/ERC5164/protocol"
	"github.com/GenerationSoftware/ERC5164/store"
	"github.com/GenerationSoftware/ERC5164/transport"
)

const eventBufferSize = 100

// MessageExecuted is the terminal notification emitted after a message or
// batch fully executed.
type MessageExecuted struct {
	OriginChainID protocol.ChainID
	ID            protocol.Bytes32
}

// Executor accepts delivered envelopes and performs their calls. Each
// identifier is accepted at most once: the execution ledger flag is set the
// moment execution is attempted, before any call runs, and never cleared.
type Executor struct {
	lggr    logger.Logger
	id      protocol.UnknownAddress
	auth    SenderAuthenticator
	ledger  store.FlagStore
	backend transport.CallBackend

	mu         sync.Mutex
	dispatcher protocol.UnknownAddress

	events chan MessageExecuted
}

// New builds an executor instance with the given authentication strategy.
func New(
	lggr logger.Logger,
	id protocol.UnknownAddress,
	auth SenderAuthenticator,
	ledger store.FlagStore,
	backend transport.CallBackend,
) (*Executor, error) {
	if lggr == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if len(id) == 0 {
		return nil, fmt.Errorf("executor address is required")
	}
	if auth == nil {
		return nil, fmt.Errorf("sender authenticator is required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("execution ledger is required")
	}
	if backend == nil {
		return nil, fmt.Errorf("call backend is required")
	}
	return &Executor{
		lggr:    lggr,
		id:      id,
		auth:    auth,
		ledger:  ledger,
		backend: backend,
		events:  make(chan MessageExecuted, eventBufferSize),
	}, nil
}

// SetDispatcher binds the trusted dispatcher instance. Callable exactly once.
func (e *Executor) SetDispatcher(addr protocol.UnknownAddress) error {
	if len(addr) == 0 || addr.IsZero() {
		return fmt.Errorf("dispatcher address must not be zero")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.dispatcher) != 0 {
		return fmt.Errorf("dispatcher %s: %w", e.dispatcher.String(), protocol.ErrAlreadySet)
	}
	e.dispatcher = addr
	e.lggr.Infow("dispatcher link set", "dispatcher", addr.String())
	return nil
}

// Dispatcher returns the trusted dispatcher link, or nil if unset.
func (e *Executor) Dispatcher() protocol.UnknownAddress {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dispatcher
}

// Address returns this executor instance's identity.
func (e *Executor) Address() protocol.UnknownAddress {
	return e.id
}

// IsExecuted reports whether an identifier has been accepted for execution,
// successfully or not.
func (e *Executor) IsExecuted(ctx context.Context, id protocol.Bytes32) (bool, error) {
	return e.ledger.Has(ctx, id)
}

// Events returns the executed-notification channel.
func (e *Executor) Events() <-chan MessageExecuted {
	return e.events
}

// ExecuteMessage authenticates, records, and performs a single delivered call.
func (e *Executor) ExecuteMessage(
	ctx context.Context,
	call transport.InboundCall,
	msg protocol.Message,
	id protocol.Bytes32,
	originChain protocol.ChainID,
	originSender protocol.UnknownAddress,
) error {
	return e.execute(ctx, call, protocol.MessageBatch{msg}, id, originChain, originSender)
}

// ExecuteMessageBatch authenticates, records, and performs a delivered
// batch. The batch is atomic: if any call fails, no call is applied.
func (e *Executor) ExecuteMessageBatch(
	ctx context.Context,
	call transport.InboundCall,
	messages []protocol.Message,
	id protocol.Bytes32,
	originChain protocol.ChainID,
	originSender protocol.UnknownAddress,
) error {
	batch, err := protocol.NewMessageBatch(messages)
	if err != nil {
		return err
	}
	return e.execute(ctx, call, batch, id, originChain, originSender)
}

// ExecuteEnvelope dispatches a decoded envelope to the right execution
// surface. Transports deliver through this.
func (e *Executor) ExecuteEnvelope(ctx context.Context, call transport.InboundCall, env *protocol.Envelope) error {
	switch env.Kind {
	case protocol.KindSingle:
		if env.Message == nil {
			return fmt.Errorf("single envelope has no message")
		}
		return e.ExecuteMessage(ctx, call, *env.Message, env.MessageID, env.OriginChainID, env.OriginSender)
	case protocol.KindBatch:
		return e.ExecuteMessageBatch(ctx, call, env.Messages, env.MessageID, env.OriginChainID, env.OriginSender)
	default:
		return fmt.Errorf("unknown envelope kind: %d", env.Kind)
	}
}

func (e *Executor) execute(
	ctx context.Context,
	call transport.InboundCall,
	batch protocol.MessageBatch,
	id protocol.Bytes32,
	originChain protocol.ChainID,
	originSender protocol.UnknownAddress,
) error {
	e.mu.Lock()
	trusted := e.dispatcher
	e.mu.Unlock()
	if len(trusted) == 0 {
		return protocol.ErrDispatcherNotSet
	}

	// Authenticate before anything is recorded or executed.
	if err := e.auth.Authenticate(ctx, call, trusted); err != nil {
		e.lggr.Warnw("rejected inbound execution request",
			"messageID", id.String(),
			"caller", call.Caller.String(),
			"error", err,
		)
		return err
	}

	// Mark the identifier attempted before running any call. This closes
	// the race where two concurrent deliveries both pass a read-check, and
	// it keeps a failed batch from being redelivered as fresh.
	already, err := e.ledger.Put(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to record execution attempt: %w", err)
	}
	if already {
		return fmt.Errorf("id %s: %w", id.String(), protocol.ErrAlreadyExecuted)
	}

	session, err := e.backend.NewSession(ctx)
	if err != nil {
		return fmt.Errorf("failed to open call session: %w", err)
	}

	for i := range batch {
		data, err := protocol.AppendProvenance(batch[i].Data, id, originChain, originSender)
		if err != nil {
			session.Rollback()
			return fmt.Errorf("failed to augment call %d: %w", i, err)
		}
		ret, err := session.Call(ctx, batch[i].To, data)
		if err != nil {
			session.Rollback()
			e.lggr.Warnw("aborting batch on failed call",
				"messageID", id.String(),
				"index", i,
				"error", err,
			)
			return &protocol.CallFailedError{Index: i, ReturnData: ret, Err: err}
		}
	}

	if err := session.Commit(); err != nil {
		return fmt.Errorf("failed to commit call session: %w", err)
	}

	e.lggr.Infow("executed message",
		"messageID", id.String(),
		"originChain", originChain,
		"originSender", originSender.String(),
		"calls", len(batch),
	)
	e.publish(MessageExecuted{OriginChainID: originChain, ID: id})
	return nil
}

func (e *Executor) publish(ev MessageExecuted) {
	select {
	case e.events <- ev:
	default:
		e.lggr.Warnw("dropping executed notification, no subscriber draining", "messageID", ev.ID.String())
	}
}
