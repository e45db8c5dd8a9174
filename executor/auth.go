package executor

import (
	"context"
	"fmt"

	"github.com/GenerationSoftware/ERC5164/protocol"
	"github.com/GenerationSoftware/ERC5164/transport"
)

// SenderAuthenticator answers one question: is this inbound call genuinely
// from the paired dispatcher instance, forwarded by the chain's own bridge
// primitive, uncorrupted? One implementation per transport, selected at
// construction. Every implementation rejects with ErrSenderUnauthorized so
// downstream logic stays transport-agnostic.
type SenderAuthenticator interface {
	Authenticate(ctx context.Context, call transport.InboundCall, trustedDispatcher protocol.UnknownAddress) error
}

// AliasAuthenticator handles transports whose bridge primitive re-executes
// the call with the transport-computed alias of the origin caller as the
// effective caller. No secondary lookup is required or possible.
type AliasAuthenticator struct{}

var _ SenderAuthenticator = AliasAuthenticator{}

func (AliasAuthenticator) Authenticate(_ context.Context, call transport.InboundCall, trustedDispatcher protocol.UnknownAddress) error {
	alias, err := transport.AliasAddress(trustedDispatcher)
	if err != nil {
		return fmt.Errorf("cannot alias trusted dispatcher: %w", err)
	}
	if !call.Caller.Equal(alias) {
		return fmt.Errorf("caller %s is not the dispatcher alias %s: %w", call.Caller.String(), alias.String(), protocol.ErrSenderUnauthorized)
	}
	return nil
}

// MessengerAuthenticator handles transports where the effective caller is
// the bridge's messenger singleton. The messenger relays for arbitrarily
// many dispatchers, so both checks are required: the caller must be the
// known messenger, and the messenger's relayed-sender lookup must name the
// paired dispatcher.
type MessengerAuthenticator struct {
	messengerAddr protocol.UnknownAddress
	messenger     transport.RelayedSenderLookup
}

var _ SenderAuthenticator = (*MessengerAuthenticator)(nil)

func NewMessengerAuthenticator(messengerAddr protocol.UnknownAddress, messenger transport.RelayedSenderLookup) (*MessengerAuthenticator, error) {
	if len(messengerAddr) == 0 {
		return nil, fmt.Errorf("messenger address is required")
	}
	if messenger == nil {
		return nil, fmt.Errorf("messenger lookup is required")
	}
	return &MessengerAuthenticator{messengerAddr: messengerAddr, messenger: messenger}, nil
}

func (a *MessengerAuthenticator) Authenticate(_ context.Context, call transport.InboundCall, trustedDispatcher protocol.UnknownAddress) error {
	if !call.Caller.Equal(a.messengerAddr) {
		return fmt.Errorf("caller %s is not the messenger %s: %w", call.Caller.String(), a.messengerAddr.String(), protocol.ErrSenderUnauthorized)
	}
	relayed := a.messenger.RelayedSender()
	if !relayed.Equal(trustedDispatcher) {
		return fmt.Errorf("messenger relayed sender %s is not the trusted dispatcher: %w", relayed.String(), protocol.ErrSenderUnauthorized)
	}
	return nil
}

// TunnelAuthenticator handles transports whose state-sync relayer invokes a
// reserved entry point directly, passing the claimed origin sender as an
// explicit argument. Both checks run before the payload is decoded.
type TunnelAuthenticator struct {
	relayerAddr protocol.UnknownAddress
}

var _ SenderAuthenticator = (*TunnelAuthenticator)(nil)

func NewTunnelAuthenticator(relayerAddr protocol.UnknownAddress) (*TunnelAuthenticator, error) {
	if len(relayerAddr) == 0 {
		return nil, fmt.Errorf("tunnel relayer address is required")
	}
	return &TunnelAuthenticator{relayerAddr: relayerAddr}, nil
}

func (a *TunnelAuthenticator) Authenticate(_ context.Context, call transport.InboundCall, trustedDispatcher protocol.UnknownAddress) error {
	if !call.Caller.Equal(a.relayerAddr) {
		return fmt.Errorf("caller %s is not the tunnel relayer %s: %w", call.Caller.String(), a.relayerAddr.String(), protocol.ErrSenderUnauthorized)
	}
	if !call.ClaimedSender.Equal(trustedDispatcher) {
		return fmt.Errorf("claimed sender %s is not the trusted dispatcher: %w", call.ClaimedSender.String(), protocol.ErrSenderUnauthorized)
	}
	return nil
}
