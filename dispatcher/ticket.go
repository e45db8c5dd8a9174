package dispatcher

import (
	"context"
	"fmt"

	"github.com/smartcontractkit/chainlink-common/pkg/logger"

	"github.com/GenerationSoftware/ERC5164/protocol"
	"github.com/GenerationSoftware/ERC5164/store"
	"github.com/GenerationSoftware/ERC5164/transport"
)

// TicketDispatcher is the two-phase dispatcher for fingerprint-then-submit
// transports. Dispatch only derives the identifier and stores a dispatch
// record; a later Submit call, by any party, hands the payload to the
// ticket inbox. Submit may be repeated for the same identifier, e.g. with
// different gas parameters; only the dispatch itself is one-time.
type TicketDispatcher struct {
	*instance
	records store.FlagStore
	inbox   transport.TicketInbox
}

// NewTicket builds a two-phase dispatcher instance.
func NewTicket(
	lggr logger.Logger,
	id protocol.UnknownAddress,
	originChain, destChain protocol.ChainID,
	records store.FlagStore,
	inbox transport.TicketInbox,
) (*TicketDispatcher, error) {
	in, err := newInstance(lggr, id, originChain, destChain)
	if err != nil {
		return nil, err
	}
	if records == nil {
		return nil, fmt.Errorf("dispatch record store is required")
	}
	if inbox == nil {
		return nil, fmt.Errorf("ticket inbox is required")
	}
	return &TicketDispatcher{instance: in, records: records, inbox: inbox}, nil
}

// DispatchMessage derives and records the identifier for a single call.
// The transport is not touched; a later SubmitMessage completes delivery.
func (d *TicketDispatcher) DispatchMessage(
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
	if _, err := d.records.Put(ctx, fingerprint); err != nil {
		return protocol.Bytes32{}, fmt.Errorf("failed to record dispatch: %w", err)
	}
	d.nonce = nonce

	d.lggr.Infow("dispatched message, awaiting submission",
		"messageID", id.String(),
		"sender", sender.String(),
		"toChain", toChain,
		"nonce", nonce,
	)
	d.publish(MessageDispatched{ID: id, Sender: sender, DestChainID: toChain, Message: &msg})
	return id, nil
}

// DispatchMessageBatch is the batch analogue of DispatchMessage.
func (d *TicketDispatcher) DispatchMessageBatch(
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
	if _, err := d.records.Put(ctx, fingerprint); err != nil {
		return protocol.Bytes32{}, fmt.Errorf("failed to record dispatch: %w", err)
	}
	d.nonce = nonce

	d.lggr.Infow("dispatched message batch, awaiting submission",
		"messageID", id.String(),
		"sender", sender.String(),
		"toChain", toChain,
		"nonce", nonce,
		"messages", len(batch),
	)
	d.publish(MessageDispatched{ID: id, Sender: sender, DestChainID: toChain, Messages: batch})
	return id, nil
}

// SubmitMessage hands a previously dispatched single message to the ticket
// inbox. Callable by any party; the dispatch record check is what prevents
// a submitter from inventing a payload that was never dispatched.
func (d *TicketDispatcher) SubmitMessage(
	ctx context.Context,
	id protocol.Bytes32,
	sender protocol.UnknownAddress,
	to protocol.UnknownAddress,
	data []byte,
	params transport.SubmitParams,
) (transport.TicketReceipt, error) {
	msg, err := protocol.NewMessage(to, data)
	if err != nil {
		return "", err
	}
	fingerprint, err := protocol.ComputeMessageFingerprint(d.id, id, sender, msg)
	if err != nil {
		return "", err
	}

	env, err := protocol.NewSingleEnvelope(id, d.originChain, sender, msg)
	if err != nil {
		return "", err
	}
	return d.submit(ctx, id, fingerprint, env, params)
}

// SubmitMessageBatch is the batch analogue of SubmitMessage.
func (d *TicketDispatcher) SubmitMessageBatch(
	ctx context.Context,
	id protocol.Bytes32,
	sender protocol.UnknownAddress,
	messages []protocol.Message,
	params transport.SubmitParams,
) (transport.TicketReceipt, error) {
	batch, err := protocol.NewMessageBatch(messages)
	if err != nil {
		return "", err
	}
	fingerprint, err := protocol.ComputeBatchFingerprint(d.id, id, sender, batch)
	if err != nil {
		return "", err
	}

	env, err := protocol.NewBatchEnvelope(id, d.originChain, sender, batch)
	if err != nil {
		return "", err
	}
	return d.submit(ctx, id, fingerprint, env, params)
}

func (d *TicketDispatcher) submit(
	ctx context.Context,
	id protocol.Bytes32,
	fingerprint protocol.Bytes32,
	env *protocol.Envelope,
	params transport.SubmitParams,
) (transport.TicketReceipt, error) {
	dispatched, err := d.records.Has(ctx, fingerprint)
	if err != nil {
		return "", fmt.Errorf("failed to check dispatch record: %w", err)
	}
	if !dispatched {
		return "", fmt.Errorf("no dispatch record for id %s with these parameters: %w", id.String(), protocol.ErrNotDispatched)
	}

	d.mu.Lock()
	executorSet := len(d.executor) != 0
	d.mu.Unlock()
	if !executorSet {
		return "", protocol.ErrExecutorNotSet
	}

	if len(params.RefundTarget) == 0 || params.RefundTarget.IsZero() {
		return "", protocol.ErrInvalidRefundTarget
	}

	receipt, err := d.inbox.CreateTicket(ctx, d.id, env, params)
	if err != nil {
		return "", fmt.Errorf("inbox rejected ticket: %w", err)
	}

	d.lggr.Infow("submitted message to inbox",
		"messageID", id.String(),
		"receipt", string(receipt),
		"gasLimit", params.GasLimit,
	)
	return receipt, nil
}

// DispatchAndSubmitMessage composes dispatch and submission transactionally
// for the case where the same party controls both origin-chain calls.
func (d *TicketDispatcher) DispatchAndSubmitMessage(
	ctx context.Context,
	sender protocol.UnknownAddress,
	toChain protocol.ChainID,
	to protocol.UnknownAddress,
	data []byte,
	params transport.SubmitParams,
) (protocol.Bytes32, transport.TicketReceipt, error) {
	id, err := d.DispatchMessage(ctx, sender, toChain, to, data)
	if err != nil {
		return protocol.Bytes32{}, "", err
	}
	receipt, err := d.SubmitMessage(ctx, id, sender, to, data, params)
	if err != nil {
		return protocol.Bytes32{}, "", err
	}
	return id, receipt, nil
}

// DispatchAndSubmitMessageBatch is the batch analogue of DispatchAndSubmitMessage.
func (d *TicketDispatcher) DispatchAndSubmitMessageBatch(
	ctx context.Context,
	sender protocol.UnknownAddress,
	toChain protocol.ChainID,
	messages []protocol.Message,
	params transport.SubmitParams,
) (protocol.Bytes32, transport.TicketReceipt, error) {
	id, err := d.DispatchMessageBatch(ctx, sender, toChain, messages)
	if err != nil {
		return protocol.Bytes32{}, "", err
	}
	receipt, err := d.SubmitMessageBatch(ctx, id, sender, messages, params)
	if err != nil {
		return protocol.Bytes32{}, "", err
	}
	return id, receipt, nil
}
