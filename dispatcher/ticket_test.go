package dispatcher

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/smartcontractkit/chainlink-common/pkg/logger"

	"github.com/GenerationSoftware/ERC5164/protocol"
	"github.com/GenerationSoftware/ERC5164/store"
	"github.com/GenerationSoftware/ERC5164/transport"
)

// captureInbox records created tickets.
type captureInbox struct {
	envelopes []*protocol.Envelope
	params    []transport.SubmitParams
	err       error
}

func (c *captureInbox) CreateTicket(_ context.Context, _ protocol.UnknownAddress, env *protocol.Envelope, params transport.SubmitParams) (transport.TicketReceipt, error) {
	if c.err != nil {
		return "", c.err
	}
	c.envelopes = append(c.envelopes, env)
	c.params = append(c.params, params)
	return transport.TicketReceipt(fmt.Sprintf("ticket-%d", len(c.envelopes))), nil
}

func newTestTicketDispatcher(t *testing.T) (*TicketDispatcher, *captureInbox) {
	t.Helper()
	inbox := &captureInbox{}
	d, err := NewTicket(logger.Test(t), randomAddress(t), testOriginChain, testDestChain, store.NewMemory(), inbox)
	require.NoError(t, err)
	require.NoError(t, d.SetExecutor(randomAddress(t)))
	return d, inbox
}

func submitParams(t *testing.T) transport.SubmitParams {
	t.Helper()
	return transport.SubmitParams{
		RefundTarget:     randomAddress(t),
		GasLimit:         200_000,
		MaxSubmissionFee: big.NewInt(1e15),
		GasPriceBid:      big.NewInt(2e9),
	}
}

func TestTicketDispatchDoesNotTouchTransport(t *testing.T) {
	ctx := context.Background()
	d, inbox := newTestTicketDispatcher(t)

	id, err := d.DispatchMessage(ctx, randomAddress(t), testDestChain, randomAddress(t), []byte("later"))
	require.NoError(t, err)
	require.NotEqual(t, protocol.Bytes32{}, id)
	require.Equal(t, protocol.Nonce(1), d.Nonce())
	require.Empty(t, inbox.envelopes)
}

func TestSubmitDeliversRecordedDispatch(t *testing.T) {
	ctx := context.Background()
	d, inbox := newTestTicketDispatcher(t)
	sender := randomAddress(t)
	to := randomAddress(t)
	data := []byte("payload")

	id, err := d.DispatchMessage(ctx, sender, testDestChain, to, data)
	require.NoError(t, err)

	receipt, err := d.SubmitMessage(ctx, id, sender, to, data, submitParams(t))
	require.NoError(t, err)
	require.NotEmpty(t, receipt)

	require.Len(t, inbox.envelopes, 1)
	env := inbox.envelopes[0]
	require.Equal(t, id, env.MessageID)
	require.Equal(t, sender, env.OriginSender)
	require.Equal(t, to, env.Message.To)
}

func TestSubmitIsRepeatable(t *testing.T) {
	ctx := context.Background()
	d, inbox := newTestTicketDispatcher(t)
	sender := randomAddress(t)
	to := randomAddress(t)
	data := []byte("retry me")

	id, err := d.DispatchMessage(ctx, sender, testDestChain, to, data)
	require.NoError(t, err)

	first := submitParams(t)
	r1, err := d.SubmitMessage(ctx, id, sender, to, data, first)
	require.NoError(t, err)

	// Resubmission with a higher gas bid is allowed; only dispatch is one-time.
	second := first
	second.GasPriceBid = big.NewInt(4e9)
	r2, err := d.SubmitMessage(ctx, id, sender, to, data, second)
	require.NoError(t, err)

	require.NotEqual(t, r1, r2)
	require.Len(t, inbox.envelopes, 2)
	require.Equal(t, second.GasPriceBid, inbox.params[1].GasPriceBid)
}

func TestSubmitRejectsForgedParameters(t *testing.T) {
	ctx := context.Background()
	d, _ := newTestTicketDispatcher(t)
	sender := randomAddress(t)
	to := randomAddress(t)
	data := []byte("genuine")

	id, err := d.DispatchMessage(ctx, sender, testDestChain, to, data)
	require.NoError(t, err)

	tests := []struct {
		name   string
		id     protocol.Bytes32
		sender protocol.UnknownAddress
		to     protocol.UnknownAddress
		data   []byte
	}{
		{"wrong id", protocol.Bytes32{0xde, 0xad}, sender, to, data},
		{"wrong sender", id, randomAddress(t), to, data},
		{"wrong target", id, sender, randomAddress(t), data},
		{"wrong data", id, sender, to, []byte("forged")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := d.SubmitMessage(ctx, tc.id, tc.sender, tc.to, tc.data, submitParams(t))
			require.ErrorIs(t, err, protocol.ErrNotDispatched)
		})
	}
}

func TestSubmitRejectsZeroRefundTarget(t *testing.T) {
	ctx := context.Background()
	d, _ := newTestTicketDispatcher(t)
	sender := randomAddress(t)
	to := randomAddress(t)
	data := []byte("x")

	id, err := d.DispatchMessage(ctx, sender, testDestChain, to, data)
	require.NoError(t, err)

	params := submitParams(t)
	params.RefundTarget = make(protocol.UnknownAddress, 20)
	_, err = d.SubmitMessage(ctx, id, sender, to, data, params)
	require.ErrorIs(t, err, protocol.ErrInvalidRefundTarget)

	params.RefundTarget = nil
	_, err = d.SubmitMessage(ctx, id, sender, to, data, params)
	require.ErrorIs(t, err, protocol.ErrInvalidRefundTarget)
}

func TestTicketDispatchRequiresExecutorLink(t *testing.T) {
	ctx := context.Background()
	d, err := NewTicket(logger.Test(t), randomAddress(t), testOriginChain, testDestChain, store.NewMemory(), &captureInbox{})
	require.NoError(t, err)

	_, err = d.DispatchMessage(ctx, randomAddress(t), testDestChain, randomAddress(t), []byte("x"))
	require.ErrorIs(t, err, protocol.ErrExecutorNotSet)
}

func TestDispatchAndSubmitMessage(t *testing.T) {
	ctx := context.Background()
	d, inbox := newTestTicketDispatcher(t)
	sender := randomAddress(t)

	id, receipt, err := d.DispatchAndSubmitMessage(ctx, sender, testDestChain, randomAddress(t), []byte("one shot"), submitParams(t))
	require.NoError(t, err)
	require.NotEmpty(t, receipt)
	require.Len(t, inbox.envelopes, 1)
	require.Equal(t, id, inbox.envelopes[0].MessageID)
}

func TestDispatchAndSubmitMessageBatch(t *testing.T) {
	ctx := context.Background()
	d, inbox := newTestTicketDispatcher(t)
	sender := randomAddress(t)

	msg1, err := protocol.NewMessage(randomAddress(t), []byte("a"))
	require.NoError(t, err)
	msg2, err := protocol.NewMessage(randomAddress(t), []byte("b"))
	require.NoError(t, err)

	id, receipt, err := d.DispatchAndSubmitMessageBatch(ctx, sender, testDestChain, []protocol.Message{msg1, msg2}, submitParams(t))
	require.NoError(t, err)
	require.NotEmpty(t, receipt)
	require.Len(t, inbox.envelopes, 1)
	require.Equal(t, protocol.KindBatch, inbox.envelopes[0].Kind)
	require.Equal(t, id, inbox.envelopes[0].MessageID)
}

func TestSubmitPropagatesInboxFailure(t *testing.T) {
	ctx := context.Background()
	inbox := &captureInbox{err: fmt.Errorf("inbox full")}
	d, err := NewTicket(logger.Test(t), randomAddress(t), testOriginChain, testDestChain, store.NewMemory(), inbox)
	require.NoError(t, err)
	require.NoError(t, d.SetExecutor(randomAddress(t)))

	sender := randomAddress(t)
	to := randomAddress(t)
	data := []byte("x")
	id, err := d.DispatchMessage(ctx, sender, testDestChain, to, data)
	require.NoError(t, err)

	_, err = d.SubmitMessage(ctx, id, sender, to, data, submitParams(t))
	require.Error(t, err)
}
