package protocol

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// Failure taxonomy shared by dispatchers and executors. All failures are
// local, synchronous, and non-retryable by this core; transports own any
// retry semantics.
var (
	// ErrUnsupportedChain is returned when a dispatch names a destination
	// chain other than the dispatcher's single configured destination.
	ErrUnsupportedChain = errors.New("unsupported destination chain")

	// ErrExecutorNotSet is returned when a dispatch or submission runs
	// before the trusted executor link has been configured.
	ErrExecutorNotSet = errors.New("executor not set")

	// ErrDispatcherNotSet is returned when an execution runs before the
	// trusted dispatcher link has been configured.
	ErrDispatcherNotSet = errors.New("dispatcher not set")

	// ErrAlreadySet is returned when a set-once link is set a second time.
	ErrAlreadySet = errors.New("link already set")

	// ErrInvalidRefundTarget is returned by two-phase submission when the
	// transport demands a refund target and none was supplied.
	ErrInvalidRefundTarget = errors.New("invalid refund target")

	// ErrNotDispatched is returned by two-phase submission when no dispatch
	// record matches the supplied parameters.
	ErrNotDispatched = errors.New("message not dispatched")

	// ErrSenderUnauthorized is returned when an inbound execution request
	// fails the configured provenance check, whichever strategy is in use.
	ErrSenderUnauthorized = errors.New("sender unauthorized")

	// ErrAlreadyExecuted is returned when an identifier has already been
	// accepted for execution.
	ErrAlreadyExecuted = errors.New("message already executed")
)

// CallFailedError reports the first failing call of a message or batch.
// The whole batch is aborted; nothing is applied.
type CallFailedError struct {
	Err        error
	ReturnData []byte
	Index      int
}

func (e *CallFailedError) Error() string {
	return fmt.Sprintf("call %d failed (return data 0x%s): %v", e.Index, hex.EncodeToString(e.ReturnData), e.Err)
}

func (e *CallFailedError) Unwrap() error {
	return e.Err
}
