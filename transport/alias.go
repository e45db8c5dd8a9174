package transport

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/GenerationSoftware/ERC5164/protocol"
)

// aliasOffset is the constant added (mod 2^160) to an origin-chain address
// to obtain the effective caller identity its re-executed calls carry on
// the destination chain.
var aliasOffset = common.HexToAddress("0x1111000000000000000000000000000000001111")

var addressModulus = new(big.Int).Lsh(big.NewInt(1), 160)

// AliasAddress applies the transport's deterministic alias transformation
// to a 20-byte origin-chain address.
func AliasAddress(addr protocol.UnknownAddress) (protocol.UnknownAddress, error) {
	if len(addr) != common.AddressLength {
		return nil, fmt.Errorf("alias requires a %d-byte address, got %d", common.AddressLength, len(addr))
	}

	sum := new(big.Int).Add(
		new(big.Int).SetBytes(addr),
		new(big.Int).SetBytes(aliasOffset.Bytes()),
	)
	sum.Mod(sum, addressModulus)

	out := make([]byte, common.AddressLength)
	sum.FillBytes(out)
	return protocol.UnknownAddress(out), nil
}

// UnaliasAddress inverts AliasAddress.
func UnaliasAddress(addr protocol.UnknownAddress) (protocol.UnknownAddress, error) {
	if len(addr) != common.AddressLength {
		return nil, fmt.Errorf("unalias requires a %d-byte address, got %d", common.AddressLength, len(addr))
	}

	diff := new(big.Int).Sub(
		new(big.Int).SetBytes(addr),
		new(big.Int).SetBytes(aliasOffset.Bytes()),
	)
	diff.Mod(diff, addressModulus)

	out := make([]byte, common.AddressLength)
	diff.FillBytes(out)
	return protocol.UnknownAddress(out), nil
}
