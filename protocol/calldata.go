package protocol

import (
	"encoding/binary"
	"fmt"
)

// Executors append origin-authentication metadata to every call so the
// receiving contract can recover the true origin caller, distinguishing it
// from the immediate forwarding executor. The tail is fixed width so a
// receiver can strip it without a length walk:
//
//	data || messageId(32) || originChainId(32, big-endian padded) || originSender(20)
const (
	provenanceSenderSize = 20
	provenanceTailSize   = 32 + 32 + provenanceSenderSize
)

// AppendProvenance returns data with the provenance tail appended. The
// origin sender must be a 20-byte address; the destination call convention
// has no room for variable-width senders.
func AppendProvenance(data []byte, id Bytes32, originChain ChainID, originSender UnknownAddress) ([]byte, error) {
	if len(originSender) != provenanceSenderSize {
		return nil, fmt.Errorf("origin sender must be %d bytes, got %d", provenanceSenderSize, len(originSender))
	}

	out := make([]byte, 0, len(data)+provenanceTailSize)
	out = append(out, data...)
	out = append(out, id[:]...)

	var chainWord [32]byte
	binary.BigEndian.PutUint64(chainWord[24:], uint64(originChain))
	out = append(out, chainWord[:]...)

	out = append(out, originSender...)
	return out, nil
}

// RecoverProvenance splits augmented call data back into the original data
// and its provenance tail.
func RecoverProvenance(callData []byte) (data []byte, id Bytes32, originChain ChainID, originSender UnknownAddress, err error) {
	if len(callData) < provenanceTailSize {
		return nil, Bytes32{}, 0, nil, fmt.Errorf("call data too short for provenance tail")
	}

	split := len(callData) - provenanceTailSize
	data = callData[:split]
	tail := callData[split:]

	copy(id[:], tail[:32])
	originChain = ChainID(binary.BigEndian.Uint64(tail[56:64]))
	originSender = UnknownAddress(tail[64:])
	return data, id, originChain, originSender, nil
}

// RecoverMessageID recovers only the message identifier from augmented call data.
func RecoverMessageID(callData []byte) (Bytes32, error) {
	_, id, _, _, err := RecoverProvenance(callData)
	return id, err
}

// RecoverChainID recovers only the origin chain id from augmented call data.
func RecoverChainID(callData []byte) (ChainID, error) {
	_, _, chainID, _, err := RecoverProvenance(callData)
	return chainID, err
}

// RecoverSender recovers only the true origin caller from augmented call data.
func RecoverSender(callData []byte) (UnknownAddress, error) {
	_, _, _, sender, err := RecoverProvenance(callData)
	return sender, err
}
