// Package transport defines the narrow contracts this core needs from the
// underlying bridge primitives. The primitives themselves (cross-domain
// messengers, retryable-ticket inboxes, state-sync tunnels) are external
// collaborators; the core only depends on their sender-authentication and
// message-submission surfaces.
package transport

import (
	"context"
	"math/big"

	"github.com/GenerationSoftware/ERC5164/protocol"
)

// TicketReceipt is a transport-assigned receipt for a two-phase submission,
// e.g. a retry-ticket id. It belongs to the transport's own retry
// semantics, not to this core.
type TicketReceipt string

// SubmitParams carries the transport-specific parameters of a two-phase
// submission. RefundTarget must be set where the transport demands one.
type SubmitParams struct {
	RefundTarget protocol.UnknownAddress
	GasLimit     uint64
	// MaxSubmissionFee and GasPriceBid feed the transport's fee market.
	// The core never interprets them.
	MaxSubmissionFee *big.Int
	GasPriceBid      *big.Int
}

// DirectSender hands an envelope to a bridge primitive that carries it to
// the destination chain in the same operation. from is the dispatcher
// instance making the call; the primitive derives the destination-side
// effective caller from it.
type DirectSender interface {
	SendEnvelope(ctx context.Context, from protocol.UnknownAddress, env *protocol.Envelope) error
}

// TicketInbox is the submission surface of a two-phase transport. The
// ticket is created in a separate, later step than the dispatch, possibly
// by a different party.
type TicketInbox interface {
	CreateTicket(ctx context.Context, from protocol.UnknownAddress, env *protocol.Envelope, params SubmitParams) (TicketReceipt, error)
}

// RelayedSenderLookup exposes a messenger singleton's record of which
// origin-chain account it is currently relaying for. Only meaningful while
// the messenger's relayed call is on the stack.
type RelayedSenderLookup interface {
	RelayedSender() protocol.UnknownAddress
}

// InboundCall is the call context of an inbound execution request, as seen
// by the destination-side executor.
type InboundCall struct {
	// Caller is the effective caller of the executor entry point.
	Caller protocol.UnknownAddress
	// ClaimedSender is the origin sender asserted by a tunnel relayer.
	// Empty for transports where the sender is recoverable from Caller.
	ClaimedSender protocol.UnknownAddress
}

// CallBackend opens atomic call sessions against the destination chain.
type CallBackend interface {
	NewSession(ctx context.Context) (CallSession, error)
}

// CallSession applies a sequence of calls atomically: either Commit makes
// all of them visible or Rollback discards all of them, including calls
// that already returned successfully.
type CallSession interface {
	Call(ctx context.Context, to protocol.UnknownAddress, data []byte) ([]byte, error)
	Commit() error
	Rollback()
}
