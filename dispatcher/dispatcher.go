package dispatcher

import (
	"context"
	"fmt"

	"github.com/smartcontractkit/chainlink-common/pkg/logger"

	"github.com/GenerationSoftware/ERC5164/protocol"
	"github.com/GenerationSoftware/ERC5164/store"
	"github.com/GenerationSoftware/ERC5164/transport"
)

// Dispatcher is the single-phase dispatcher: recording the dispatch and
// handing the envelope to the transport happen in one operation. Used with
// transports that accept the envelope directly (messenger, tunnel).
type Dispatcher struct {
	*instance
	ledger store.FlagStore
	sender transport.DirectSender
}

// New builds a single-phase dispatcher instance.
func New(
	lggr logger.Logger,
	id protocol.UnknownAddress,
	originChain, destChain protocol.ChainID,
	ledger store.FlagStore,
	sender transport.DirectSender,
) (*Dispatcher, error) {
	in, err := newInstance(lggr, id, originChain, destChain)
	if err != nil {
		return nil, err
	}
	if ledger == nil {
		return nil, fmt.Errorf("dispatch ledger is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("transport sender is required")
	}
	return &Dispatcher{instance: in, ledger: ledger, sender: sender}, nil
}

// DispatchMessage dispatches a single call to the destination chain and
// returns its identifier. sender is the origin-chain caller on whose
// behalf the dispatch is made.
func (d *Dispatcher) DispatchMessage(
	ctx context.Context,
	sender protocol.UnknownAddress,
	toChain protocol.ChainID,
	to protocol.UnknownAddress,
	data []byte,
) (protocol.Bytes32, error) {
	msg, err := protocol.NewMessage(to, data)
	if err != nil {
		return protocol.Bytes32{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.gate(toChain); err != nil {
		return protocol.Bytes32{}, err
	}

	nonce := d.nonce + 1
	id, err := protocol.ComputeMessageID(nonce, sender, msg)
	if err != nil {
		return protocol.Bytes32{}, err
	}
	fingerprint, err := protocol.ComputeMessageFingerprint(d.id, id, sender, msg)
	if err != nil {
		return protocol.Bytes32{}, err
	}

	env, err := protocol.NewSingleEnvelope(id, d.originChain, sender, msg)
	if err != nil {
		return protocol.Bytes32{}, err
	}
	if err := d.sender.SendEnvelope(ctx, d.id, env); err != nil {
		// Nothing committed: the nonce and ledger roll back with the failure.
		return protocol.Bytes32{}, fmt.Errorf("transport rejected envelope: %w", err)
	}

	d.nonce = nonce
	if _, err := d.ledger.Put(ctx, fingerprint); err != nil {
		return protocol.Bytes32{}, fmt.Errorf("failed to record dispatch: %w", err)
	}

	d.lggr.Infow("dispatched message",
		"messageID", id.String(),
		"sender", sender.String(),
		"toChain", toChain,
		"nonce", nonce,
	)
	d.publish(MessageDispatched{ID: id, Sender: sender, DestChainID: toChain, Message: &msg})
	return id, nil
}

// DispatchMessageBatch dispatches an ordered batch of calls to the
// destination chain and returns the batch identifier.
func (d *Dispatcher) DispatchMessageBatch(
	ctx context.Context,
	sender protocol.UnknownAddress,
	toChain protocol.ChainID,
	messages []protocol.Message,
) (protocol.Bytes32, error) {
	batch, err := protocol.NewMessageBatch(messages)
	if err != nil {
		return protocol.Bytes32{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.gate(toChain); err != nil {
		return protocol.Bytes32{}, err
	}

	nonce := d.nonce + 1
	id, err := protocol.ComputeBatchID(nonce, sender, batch)
	if err != nil {
		return protocol.Bytes32{}, err
	}
	fingerprint, err := protocol.ComputeBatchFingerprint(d.id, id, sender, batch)
	if err != nil {
		return protocol.Bytes32{}, err
	}

	env, err := protocol.NewBatchEnvelope(id, d.originChain, sender, batch)
	if err != nil {
		return protocol.Bytes32{}, err
	}
	if err := d.sender.SendEnvelope(ctx, d.id, env); err != nil {
		return protocol.Bytes32{}, fmt.Errorf("transport rejected envelope: %w", err)
	}

	d.nonce = nonce
	if _, err := d.ledger.Put(ctx, fingerprint); err != nil {
		return protocol.Bytes32{}, fmt.Errorf("failed to record dispatch: %w", err)
	}

	d.lggr.Infow("dispatched message batch",
		"messageID", id.String(),
		"sender", sender.String(),
		"toChain", toChain,
		"nonce", nonce,
		"messages", len(batch),
	)
	d.publish(MessageDispatched{ID: id, Sender: sender, DestChainID: toChain, Messages: batch})
	return id, nil
}

// NextMessageID computes the identifier DispatchMessage would assign to the
// given payload if it were the next dispatch. Read-only, for off-chain
// precomputation; it does not consume the nonce.
func (d *Dispatcher) NextMessageID(sender protocol.UnknownAddress, to protocol.UnknownAddress, data []byte) (protocol.Bytes32, error) {
	msg, err := protocol.NewMessage(to, data)
	if err != nil {
		return protocol.Bytes32{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return protocol.ComputeMessageID(d.nonce+1, sender, msg)
}
