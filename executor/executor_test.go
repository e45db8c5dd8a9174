package executor

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/smartcontractkit/chainlink-common/pkg/logger"

	"github.com/GenerationSoftware/ERC5164/protocol"
	"github.com/GenerationSoftware/ERC5164/store"
	"github.com/GenerationSoftware/ERC5164/transport"
)

const testOriginChain = protocol.ChainID(1)

// recordingBackend is an in-memory call backend that records committed call
// payloads and can be told to fail the call at a given index.
type recordingBackend struct {
	committed []recordedCall
	failAt    int // index whose call fails; -1 for none
	sessions  int
	rollbacks int
}

type recordedCall struct {
	to   protocol.UnknownAddress
	data []byte
}

func newRecordingBackend() *recordingBackend {
	return &recordingBackend{failAt: -1}
}

func (b *recordingBackend) NewSession(context.Context) (transport.CallSession, error) {
	b.sessions++
	return &recordingSession{backend: b}, nil
}

type recordingSession struct {
	backend *recordingBackend
	pending []recordedCall
}

func (s *recordingSession) Call(_ context.Context, to protocol.UnknownAddress, data []byte) ([]byte, error) {
	if s.backend.failAt == len(s.pending) {
		return []byte("revert reason"), fmt.Errorf("call reverted")
	}
	s.pending = append(s.pending, recordedCall{to: to, data: data})
	return nil, nil
}

func (s *recordingSession) Commit() error {
	s.backend.committed = append(s.backend.committed, s.pending...)
	return nil
}

func (s *recordingSession) Rollback() {
	s.backend.rollbacks++
	s.pending = nil
}

// openAuth accepts every inbound call.
type openAuth struct{}

func (openAuth) Authenticate(context.Context, transport.InboundCall, protocol.UnknownAddress) error {
	return nil
}

func newTestExecutor(t *testing.T, backend transport.CallBackend, auth SenderAuthenticator) (*Executor, protocol.UnknownAddress) {
	t.Helper()
	e, err := New(logger.Test(t), randomAddress(t), auth, store.NewMemory(), backend)
	require.NoError(t, err)
	dispatcher := randomAddress(t)
	require.NoError(t, e.SetDispatcher(dispatcher))
	return e, dispatcher
}

func TestExecuteMessageAppendsProvenance(t *testing.T) {
	ctx := context.Background()
	backend := newRecordingBackend()
	e, _ := newTestExecutor(t, backend, openAuth{})

	originSender := randomAddress(t)
	to := randomAddress(t)
	msg, err := protocol.NewMessage(to, []byte("setGreeting"))
	require.NoError(t, err)
	id := protocol.Bytes32{0x01, 0x02}

	err = e.ExecuteMessage(ctx, transport.InboundCall{Caller: randomAddress(t)}, msg, id, testOriginChain, originSender)
	require.NoError(t, err)

	require.Len(t, backend.committed, 1)
	call := backend.committed[0]
	require.Equal(t, to, call.to)

	gotID, err := protocol.RecoverMessageID(call.data)
	require.NoError(t, err)
	require.Equal(t, id, gotID)
	gotChain, err := protocol.RecoverChainID(call.data)
	require.NoError(t, err)
	require.Equal(t, testOriginChain, gotChain)
	gotSender, err := protocol.RecoverSender(call.data)
	require.NoError(t, err)
	require.Equal(t, originSender, gotSender)

	executed, err := e.IsExecuted(ctx, id)
	require.NoError(t, err)
	require.True(t, executed)

	ev := <-e.Events()
	require.Equal(t, id, ev.ID)
	require.Equal(t, testOriginChain, ev.OriginChainID)
}

func TestExecuteMessageRejectsReplay(t *testing.T) {
	ctx := context.Background()
	backend := newRecordingBackend()
	e, _ := newTestExecutor(t, backend, openAuth{})

	msg, err := protocol.NewMessage(randomAddress(t), []byte("once"))
	require.NoError(t, err)
	id := protocol.Bytes32{0xaa}
	call := transport.InboundCall{Caller: randomAddress(t)}

	require.NoError(t, e.ExecuteMessage(ctx, call, msg, id, testOriginChain, randomAddress(t)))

	err = e.ExecuteMessage(ctx, call, msg, id, testOriginChain, randomAddress(t))
	require.ErrorIs(t, err, protocol.ErrAlreadyExecuted)
	// The replay applied nothing.
	require.Len(t, backend.committed, 1)
	require.Equal(t, 1, backend.sessions)
}

func TestExecuteBatchIsAtomic(t *testing.T) {
	ctx := context.Background()
	backend := newRecordingBackend()
	backend.failAt = 1
	e, _ := newTestExecutor(t, backend, openAuth{})

	var msgs []protocol.Message
	for i := 0; i < 3; i++ {
		m, err := protocol.NewMessage(randomAddress(t), []byte{byte(i)})
		require.NoError(t, err)
		msgs = append(msgs, m)
	}
	id := protocol.Bytes32{0xbb}

	err := e.ExecuteMessageBatch(ctx, transport.InboundCall{Caller: randomAddress(t)}, msgs, id, testOriginChain, randomAddress(t))
	require.Error(t, err)

	var callErr *protocol.CallFailedError
	require.ErrorAs(t, err, &callErr)
	require.Equal(t, 1, callErr.Index)
	require.Equal(t, []byte("revert reason"), callErr.ReturnData)

	// The first call succeeded inside the session but was rolled back.
	require.Empty(t, backend.committed)
	require.Equal(t, 1, backend.rollbacks)

	// The identifier is consumed by the attempt: redelivery is a replay, it
	// does not retry the batch.
	executed, err := e.IsExecuted(ctx, id)
	require.NoError(t, err)
	require.True(t, executed)

	err = e.ExecuteMessageBatch(ctx, transport.InboundCall{Caller: randomAddress(t)}, msgs, id, testOriginChain, randomAddress(t))
	require.ErrorIs(t, err, protocol.ErrAlreadyExecuted)
}

func TestExecuteBatchAppliesAllCalls(t *testing.T) {
	ctx := context.Background()
	backend := newRecordingBackend()
	e, _ := newTestExecutor(t, backend, openAuth{})

	var msgs []protocol.Message
	for i := 0; i < 4; i++ {
		m, err := protocol.NewMessage(randomAddress(t), []byte{byte(i)})
		require.NoError(t, err)
		msgs = append(msgs, m)
	}

	err := e.ExecuteMessageBatch(ctx, transport.InboundCall{Caller: randomAddress(t)}, msgs, protocol.Bytes32{0xcc}, testOriginChain, randomAddress(t))
	require.NoError(t, err)
	require.Len(t, backend.committed, 4)
	for i, call := range backend.committed {
		require.Equal(t, msgs[i].To, call.to)
	}
}

func TestExecuteRequiresDispatcherLink(t *testing.T) {
	ctx := context.Background()
	e, err := New(logger.Test(t), randomAddress(t), openAuth{}, store.NewMemory(), newRecordingBackend())
	require.NoError(t, err)

	msg, err := protocol.NewMessage(randomAddress(t), []byte("x"))
	require.NoError(t, err)
	err = e.ExecuteMessage(ctx, transport.InboundCall{}, msg, protocol.Bytes32{0x01}, testOriginChain, randomAddress(t))
	require.ErrorIs(t, err, protocol.ErrDispatcherNotSet)
}

func TestExecuteAuthFailureRecordsNothing(t *testing.T) {
	ctx := context.Background()
	backend := newRecordingBackend()
	relayer := randomAddress(t)
	auth, err := NewTunnelAuthenticator(relayer)
	require.NoError(t, err)
	e, dispatcher := newTestExecutor(t, backend, auth)

	msg, err := protocol.NewMessage(randomAddress(t), []byte("x"))
	require.NoError(t, err)
	id := protocol.Bytes32{0xdd}

	err = e.ExecuteMessage(ctx, transport.InboundCall{Caller: randomAddress(t), ClaimedSender: dispatcher}, msg, id, testOriginChain, randomAddress(t))
	require.ErrorIs(t, err, protocol.ErrSenderUnauthorized)

	// Rejected deliveries do not consume the identifier.
	executed, err := e.IsExecuted(ctx, id)
	require.NoError(t, err)
	require.False(t, executed)
	require.Equal(t, 0, backend.sessions)

	// The genuine delivery still goes through afterwards.
	err = e.ExecuteMessage(ctx, transport.InboundCall{Caller: relayer, ClaimedSender: dispatcher}, msg, id, testOriginChain, randomAddress(t))
	require.NoError(t, err)
}

func TestSetDispatcherExactlyOnce(t *testing.T) {
	e, err := New(logger.Test(t), randomAddress(t), openAuth{}, store.NewMemory(), newRecordingBackend())
	require.NoError(t, err)

	first := randomAddress(t)
	require.NoError(t, e.SetDispatcher(first))
	err = e.SetDispatcher(randomAddress(t))
	require.ErrorIs(t, err, protocol.ErrAlreadySet)
	require.Equal(t, first, e.Dispatcher())
}

func TestExecuteEnvelope(t *testing.T) {
	ctx := context.Background()
	backend := newRecordingBackend()
	e, _ := newTestExecutor(t, backend, openAuth{})

	msg, err := protocol.NewMessage(randomAddress(t), []byte("via envelope"))
	require.NoError(t, err)
	env, err := protocol.NewSingleEnvelope(protocol.Bytes32{0xee}, testOriginChain, randomAddress(t), msg)
	require.NoError(t, err)

	require.NoError(t, e.ExecuteEnvelope(ctx, transport.InboundCall{Caller: randomAddress(t)}, env))
	require.Len(t, backend.committed, 1)

	batch, err := protocol.NewMessageBatch([]protocol.Message{msg, msg})
	require.NoError(t, err)
	benv, err := protocol.NewBatchEnvelope(protocol.Bytes32{0xef}, testOriginChain, randomAddress(t), batch)
	require.NoError(t, err)

	require.NoError(t, e.ExecuteEnvelope(ctx, transport.InboundCall{Caller: randomAddress(t)}, benv))
	require.Len(t, backend.committed, 3)
}
