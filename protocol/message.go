package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Constants for the cross-chain relay wire format.
const (
	EnvelopeVersion = 1 // Current envelope format version

	// MinSizeEnvelope is version(1) + kind(1) + messageId(32) + originChainId(8) + senderLen(1).
	MinSizeEnvelope = 43
)

// EnvelopeKind discriminates single-message and batch envelopes.
type EnvelopeKind uint8

const (
	KindSingle EnvelopeKind = 1
	KindBatch  EnvelopeKind = 2
)

// Message represents one intended call on the destination chain.
// Immutable once constructed.
type Message struct {
	To   UnknownAddress `json:"to"`
	Data ByteSlice      `json:"data"`
}

// NewMessage creates a message, validating the wire-format bounds.
func NewMessage(to UnknownAddress, data []byte) (Message, error) {
	if len(to) == 0 {
		return Message{}, fmt.Errorf("message target must not be empty")
	}
	if len(to) > math.MaxUint8 {
		return Message{}, fmt.Errorf("target address length exceeds maximum value")
	}
	if len(data) > math.MaxUint32 {
		return Message{}, fmt.Errorf("data length exceeds maximum value")
	}
	return Message{To: to, Data: data}, nil
}

// encodeInto appends the canonical encoding of the message to buf.
// Format: toLen(1) || to || dataLen(4, big-endian) || data.
func (m *Message) encodeInto(buf *bytes.Buffer) error {
	_ = buf.WriteByte(uint8(len(m.To))) //nolint:gosec // G115: bounds validated in NewMessage
	_, _ = buf.Write(m.To)
	if err := binary.Write(buf, binary.BigEndian, uint32(len(m.Data))); err != nil { //nolint:gosec // G115: bounds validated in NewMessage
		return err
	}
	_, _ = buf.Write(m.Data)
	return nil
}

// Encode returns the canonical encoding of this message.
func (m *Message) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := m.encodeInto(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeMessage reads one canonically encoded message from the reader.
func decodeMessage(reader *bytes.Reader) (Message, error) {
	var msg Message

	toLen, err := reader.ReadByte()
	if err != nil {
		return msg, fmt.Errorf("failed to read target length: %w", err)
	}
	if toLen == 0 {
		return msg, fmt.Errorf("message target must not be empty")
	}
	msg.To = make(UnknownAddress, toLen)
	if _, err := io.ReadFull(reader, msg.To); err != nil {
		return msg, fmt.Errorf("failed to read target: %w", err)
	}

	var dataLen uint32
	if err := binary.Read(reader, binary.BigEndian, &dataLen); err != nil {
		return msg, fmt.Errorf("failed to read data length: %w", err)
	}
	if dataLen == 0 {
		msg.Data = nil
	} else {
		msg.Data = make(ByteSlice, dataLen)
		if _, err := io.ReadFull(reader, msg.Data); err != nil {
			return msg, fmt.Errorf("failed to read data: %w", err)
		}
	}

	return msg, nil
}

// MessageBatch is an ordered, non-empty sequence of messages. Order is
// meaningful: calls execute in sequence on the destination chain.
type MessageBatch []Message

// NewMessageBatch validates batch bounds. The batch must be non-empty and
// fit the wire format's uint16 count prefix.
func NewMessageBatch(messages []Message) (MessageBatch, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("message batch must not be empty")
	}
	if len(messages) > math.MaxUint16 {
		return nil, fmt.Errorf("message batch length exceeds maximum value")
	}
	return MessageBatch(messages), nil
}

// encodeInto appends the canonical encoding of the batch to buf.
// Format: count(2, big-endian) || message*.
func (b MessageBatch) encodeInto(buf *bytes.Buffer) error {
	if err := binary.Write(buf, binary.BigEndian, uint16(len(b))); err != nil { //nolint:gosec // G115: bounds validated in NewMessageBatch
		return err
	}
	for i := range b {
		if err := b[i].encodeInto(buf); err != nil {
			return err
		}
	}
	return nil
}

// Encode returns the canonical encoding of this batch.
func (b MessageBatch) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := b.encodeInto(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeBatch reads one canonically encoded batch from the reader.
func decodeBatch(reader *bytes.Reader) (MessageBatch, error) {
	var count uint16
	if err := binary.Read(reader, binary.BigEndian, &count); err != nil {
		return nil, fmt.Errorf("failed to read message count: %w", err)
	}
	if count == 0 {
		return nil, fmt.Errorf("message batch must not be empty")
	}

	batch := make(MessageBatch, 0, count)
	for i := 0; i < int(count); i++ {
		msg, err := decodeMessage(reader)
		if err != nil {
			return nil, fmt.Errorf("failed to decode message %d: %w", i, err)
		}
		batch = append(batch, msg)
	}
	return batch, nil
}

// Envelope is the wire-level payload carried across a transport: the
// message or batch plus its identifier and origin metadata. It is
// constructed by the dispatcher at the moment the transport call is made.
type Envelope struct {
	Version       uint8          `json:"version"`
	Kind          EnvelopeKind   `json:"kind"`
	MessageID     Bytes32        `json:"message_id"`
	OriginChainID ChainID        `json:"origin_chain_id"`
	OriginSender  UnknownAddress `json:"origin_sender"`
	Message       *Message       `json:"message,omitempty"`
	Messages      MessageBatch   `json:"messages,omitempty"`
}

// NewSingleEnvelope wraps one message with its identifier and origin metadata.
func NewSingleEnvelope(id Bytes32, originChain ChainID, originSender UnknownAddress, msg Message) (*Envelope, error) {
	if len(originSender) == 0 || len(originSender) > math.MaxUint8 {
		return nil, fmt.Errorf("origin sender length out of bounds: %d", len(originSender))
	}
	return &Envelope{
		Version:       EnvelopeVersion,
		Kind:          KindSingle,
		MessageID:     id,
		OriginChainID: originChain,
		OriginSender:  originSender,
		Message:       &msg,
	}, nil
}

// NewBatchEnvelope wraps a batch with its identifier and origin metadata.
func NewBatchEnvelope(id Bytes32, originChain ChainID, originSender UnknownAddress, batch MessageBatch) (*Envelope, error) {
	if len(originSender) == 0 || len(originSender) > math.MaxUint8 {
		return nil, fmt.Errorf("origin sender length out of bounds: %d", len(originSender))
	}
	if len(batch) == 0 {
		return nil, fmt.Errorf("message batch must not be empty")
	}
	return &Envelope{
		Version:       EnvelopeVersion,
		Kind:          KindBatch,
		MessageID:     id,
		OriginChainID: originChain,
		OriginSender:  originSender,
		Messages:      batch,
	}, nil
}

// Encode returns the canonical encoding of this envelope.
// Format: version(1) || kind(1) || messageId(32) || originChainId(8, big-endian)
// || senderLen(1) || sender || payload.
func (e *Envelope) Encode() ([]byte, error) {
	var buf bytes.Buffer

	_ = buf.WriteByte(e.Version)
	_ = buf.WriteByte(uint8(e.Kind))
	_, _ = buf.Write(e.MessageID[:])
	if err := binary.Write(&buf, binary.BigEndian, uint64(e.OriginChainID)); err != nil {
		return nil, err
	}
	if len(e.OriginSender) > math.MaxUint8 {
		return nil, fmt.Errorf("origin sender length exceeds maximum value")
	}
	_ = buf.WriteByte(uint8(len(e.OriginSender))) //nolint:gosec // G115: checked above
	_, _ = buf.Write(e.OriginSender)

	switch e.Kind {
	case KindSingle:
		if e.Message == nil {
			return nil, fmt.Errorf("single envelope has no message")
		}
		if err := e.Message.encodeInto(&buf); err != nil {
			return nil, err
		}
	case KindBatch:
		if len(e.Messages) == 0 {
			return nil, fmt.Errorf("batch envelope has no messages")
		}
		if err := e.Messages.encodeInto(&buf); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown envelope kind: %d", e.Kind)
	}

	return buf.Bytes(), nil
}

// DecodeEnvelope decodes an Envelope from bytes.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	if len(data) < MinSizeEnvelope {
		return nil, fmt.Errorf("data too short for envelope")
	}

	reader := bytes.NewReader(data)
	env := &Envelope{}

	version, err := reader.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("failed to read version: %w", err)
	}
	if version != EnvelopeVersion {
		return nil, fmt.Errorf("unsupported envelope version: %d", version)
	}
	env.Version = version

	kind, err := reader.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("failed to read kind: %w", err)
	}
	env.Kind = EnvelopeKind(kind)

	if _, err := io.ReadFull(reader, env.MessageID[:]); err != nil {
		return nil, fmt.Errorf("failed to read message id: %w", err)
	}

	var originChain uint64
	if err := binary.Read(reader, binary.BigEndian, &originChain); err != nil {
		return nil, fmt.Errorf("failed to read origin chain id: %w", err)
	}
	env.OriginChainID = ChainID(originChain)

	senderLen, err := reader.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("failed to read origin sender length: %w", err)
	}
	if senderLen == 0 {
		return nil, fmt.Errorf("origin sender must not be empty")
	}
	env.OriginSender = make(UnknownAddress, senderLen)
	if _, err := io.ReadFull(reader, env.OriginSender); err != nil {
		return nil, fmt.Errorf("failed to read origin sender: %w", err)
	}

	switch env.Kind {
	case KindSingle:
		msg, err := decodeMessage(reader)
		if err != nil {
			return nil, err
		}
		env.Message = &msg
	case KindBatch:
		batch, err := decodeBatch(reader)
		if err != nil {
			return nil, err
		}
		env.Messages = batch
	default:
		return nil, fmt.Errorf("unknown envelope kind: %d", env.Kind)
	}

	// Ensure all data was consumed
	if reader.Len() != 0 {
		return nil, fmt.Errorf("trailing bytes after decoding")
	}

	return env, nil
}
