package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Message identifiers are the keccak256 of a canonical preimage that binds
// the dispatcher nonce, the origin caller, and the payload. The nonce is
// what keeps identifiers unique even for byte-identical payloads, so the
// preimage must be byte-exact across implementations.

// ComputeMessageID derives the identifier for a single message dispatch.
// Preimage: nonce(8, big-endian) || senderLen(1) || sender || message.
func ComputeMessageID(nonce Nonce, sender UnknownAddress, msg Message) (Bytes32, error) {
	var buf bytes.Buffer
	if err := writeNonceAndSender(&buf, nonce, sender); err != nil {
		return Bytes32{}, err
	}
	if err := msg.encodeInto(&buf); err != nil {
		return Bytes32{}, err
	}
	return Keccak256(buf.Bytes()), nil
}

// ComputeBatchID derives the identifier for a batch dispatch.
// Preimage: nonce(8, big-endian) || senderLen(1) || sender || batch.
func ComputeBatchID(nonce Nonce, sender UnknownAddress, batch MessageBatch) (Bytes32, error) {
	if len(batch) == 0 {
		return Bytes32{}, fmt.Errorf("message batch must not be empty")
	}
	var buf bytes.Buffer
	if err := writeNonceAndSender(&buf, nonce, sender); err != nil {
		return Bytes32{}, err
	}
	if err := batch.encodeInto(&buf); err != nil {
		return Bytes32{}, err
	}
	return Keccak256(buf.Bytes()), nil
}

// ComputeMessageFingerprint derives the secondary hash keying a two-phase
// dispatch record. It binds the dispatcher instance, the identifier, the
// origin sender, and the exact payload, so a later submission can only
// replay parameters that were genuinely dispatched.
// Preimage: dispatcherLen(1) || dispatcher || messageId(32) || senderLen(1)
// || sender || message.
func ComputeMessageFingerprint(dispatcher UnknownAddress, id Bytes32, sender UnknownAddress, msg Message) (Bytes32, error) {
	var buf bytes.Buffer
	if err := writeFingerprintHeader(&buf, dispatcher, id, sender); err != nil {
		return Bytes32{}, err
	}
	if err := msg.encodeInto(&buf); err != nil {
		return Bytes32{}, err
	}
	return Keccak256(buf.Bytes()), nil
}

// ComputeBatchFingerprint is the batch analogue of ComputeMessageFingerprint.
func ComputeBatchFingerprint(dispatcher UnknownAddress, id Bytes32, sender UnknownAddress, batch MessageBatch) (Bytes32, error) {
	if len(batch) == 0 {
		return Bytes32{}, fmt.Errorf("message batch must not be empty")
	}
	var buf bytes.Buffer
	if err := writeFingerprintHeader(&buf, dispatcher, id, sender); err != nil {
		return Bytes32{}, err
	}
	if err := batch.encodeInto(&buf); err != nil {
		return Bytes32{}, err
	}
	return Keccak256(buf.Bytes()), nil
}

func writeNonceAndSender(buf *bytes.Buffer, nonce Nonce, sender UnknownAddress) error {
	if err := binary.Write(buf, binary.BigEndian, uint64(nonce)); err != nil {
		return err
	}
	return writeAddress(buf, sender)
}

func writeFingerprintHeader(buf *bytes.Buffer, dispatcher UnknownAddress, id Bytes32, sender UnknownAddress) error {
	if err := writeAddress(buf, dispatcher); err != nil {
		return fmt.Errorf("invalid dispatcher address: %w", err)
	}
	_, _ = buf.Write(id[:])
	return writeAddress(buf, sender)
}

func writeAddress(buf *bytes.Buffer, addr UnknownAddress) error {
	if len(addr) == 0 {
		return fmt.Errorf("address must not be empty")
	}
	if len(addr) > math.MaxUint8 {
		return fmt.Errorf("address length exceeds maximum value")
	}
	_ = buf.WriteByte(uint8(len(addr))) //nolint:gosec // G115: checked above
	_, _ = buf.Write(addr)
	return nil
}
