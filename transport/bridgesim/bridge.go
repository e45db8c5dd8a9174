package bridgesim

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/GenerationSoftware/ERC5164/protocol"
	"github.com/GenerationSoftware/ERC5164/transport"
)

const queueBufferSize = 256

// Target is the destination-side recipient of deliveries. Satisfied by
// executor.Executor.
type Target interface {
	ExecuteEnvelope(ctx context.Context, call transport.InboundCall, env *protocol.Envelope) error
}

// Delivery is one queued envelope crossing a simulated bridge. Env travels
// as canonical bytes so the wire codec is exercised end to end.
type Delivery struct {
	Call          transport.InboundCall
	Raw           []byte
	Receipt       transport.TicketReceipt
	relayedSender protocol.UnknownAddress
}

// Bridge is the relayer-facing surface of a simulated bridge: a queue of
// pending deliveries and the delivery operation itself.
type Bridge interface {
	Deliveries() <-chan Delivery
	Deliver(ctx context.Context, target Target, d Delivery) error
}

// AliasBridge simulates a two-phase ticket transport. Tickets created in
// the inbox are delivered with the alias of the creating dispatcher as the
// effective caller; no messenger sits in between.
type AliasBridge struct {
	queue chan Delivery
}

var (
	_ transport.TicketInbox = (*AliasBridge)(nil)
	_ Bridge                = (*AliasBridge)(nil)
)

func NewAliasBridge() *AliasBridge {
	return &AliasBridge{queue: make(chan Delivery, queueBufferSize)}
}

func (b *AliasBridge) CreateTicket(_ context.Context, from protocol.UnknownAddress, env *protocol.Envelope, params transport.SubmitParams) (transport.TicketReceipt, error) {
	if len(params.RefundTarget) == 0 {
		return "", fmt.Errorf("inbox requires a refund target")
	}

	alias, err := transport.AliasAddress(from)
	if err != nil {
		return "", fmt.Errorf("cannot alias ticket creator: %w", err)
	}
	raw, err := env.Encode()
	if err != nil {
		return "", fmt.Errorf("failed to encode envelope: %w", err)
	}

	receipt := transport.TicketReceipt(uuid.NewString())
	select {
	case b.queue <- Delivery{Call: transport.InboundCall{Caller: alias}, Raw: raw, Receipt: receipt}:
	default:
		return "", fmt.Errorf("inbox queue full")
	}
	return receipt, nil
}

func (b *AliasBridge) Deliveries() <-chan Delivery {
	return b.queue
}

func (b *AliasBridge) Deliver(ctx context.Context, target Target, d Delivery) error {
	env, err := protocol.DecodeEnvelope(d.Raw)
	if err != nil {
		return fmt.Errorf("failed to decode envelope: %w", err)
	}
	return target.ExecuteEnvelope(ctx, d.Call, env)
}

// MessengerBridge simulates a cross-domain messenger singleton: the
// effective caller of every delivery is the messenger itself, and the
// origin account it relays for is exposed through RelayedSender for the
// duration of the relayed call.
type MessengerBridge struct {
	addr  protocol.UnknownAddress
	queue chan Delivery

	mu      sync.Mutex
	current protocol.UnknownAddress
}

var (
	_ transport.DirectSender        = (*MessengerBridge)(nil)
	_ transport.RelayedSenderLookup = (*MessengerBridge)(nil)
	_ Bridge                        = (*MessengerBridge)(nil)
)

func NewMessengerBridge(addr protocol.UnknownAddress) *MessengerBridge {
	return &MessengerBridge{addr: addr, queue: make(chan Delivery, queueBufferSize)}
}

// Address returns the messenger singleton's destination-side address.
func (b *MessengerBridge) Address() protocol.UnknownAddress {
	return b.addr
}

func (b *MessengerBridge) SendEnvelope(_ context.Context, from protocol.UnknownAddress, env *protocol.Envelope) error {
	raw, err := env.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}
	select {
	case b.queue <- Delivery{Call: transport.InboundCall{Caller: b.addr}, Raw: raw, relayedSender: from}:
		return nil
	default:
		return fmt.Errorf("messenger queue full")
	}
}

// RelayedSender returns the origin account the messenger is currently
// relaying for. Zero outside a relayed call.
func (b *MessengerBridge) RelayedSender() protocol.UnknownAddress {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

func (b *MessengerBridge) Deliver(ctx context.Context, target Target, d Delivery) error {
	env, err := protocol.DecodeEnvelope(d.Raw)
	if err != nil {
		return fmt.Errorf("failed to decode envelope: %w", err)
	}

	b.mu.Lock()
	b.current = d.relayedSender
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.current = nil
		b.mu.Unlock()
	}()

	return target.ExecuteEnvelope(ctx, d.Call, env)
}

func (b *MessengerBridge) Deliveries() <-chan Delivery {
	return b.queue
}

// TunnelBridge simulates a state-sync tunnel: the relayer invokes the
// executor directly and passes the claimed origin sender as an explicit
// argument, since it is not recoverable from the call context.
type TunnelBridge struct {
	relayerAddr protocol.UnknownAddress
	queue       chan Delivery
}

var (
	_ transport.DirectSender = (*TunnelBridge)(nil)
	_ Bridge                 = (*TunnelBridge)(nil)
)

func NewTunnelBridge(relayerAddr protocol.UnknownAddress) *TunnelBridge {
	return &TunnelBridge{relayerAddr: relayerAddr, queue: make(chan Delivery, queueBufferSize)}
}

// RelayerAddress returns the tunnel relayer's destination-side address.
func (b *TunnelBridge) RelayerAddress() protocol.UnknownAddress {
	return b.relayerAddr
}

func (b *TunnelBridge) SendEnvelope(_ context.Context, from protocol.UnknownAddress, env *protocol.Envelope) error {
	raw, err := env.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}
	select {
	case b.queue <- Delivery{Call: transport.InboundCall{Caller: b.relayerAddr, ClaimedSender: from}, Raw: raw}:
		return nil
	default:
		return fmt.Errorf("tunnel queue full")
	}
}

func (b *TunnelBridge) Deliver(ctx context.Context, target Target, d Delivery) error {
	env, err := protocol.DecodeEnvelope(d.Raw)
	if err != nil {
		return fmt.Errorf("failed to decode envelope: %w", err)
	}
	return target.ExecuteEnvelope(ctx, d.Call, env)
}

func (b *TunnelBridge) Deliveries() <-chan Delivery {
	return b.queue
}
