package transport

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/GenerationSoftware/ERC5164/protocol"
)

func mustHexAddress(t *testing.T, s string) protocol.UnknownAddress {
	t.Helper()
	addr, err := protocol.NewUnknownAddressFromHex(s)
	require.NoError(t, err)
	return addr
}

func TestAliasAddressKnownVectors(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		alias string
	}{
		{
			"zero address",
			"0x0000000000000000000000000000000000000000",
			"0x1111000000000000000000000000000000001111",
		},
		{
			"plain address",
			"0x2222000000000000000000000000000000002222",
			"0x3333000000000000000000000000000000003333",
		},
		{
			// The addition wraps at 2^160 rather than widening.
			"wraparound",
			"0xffffffffffffffffffffffffffffffffffffffff",
			"0x1110ffffffffffffffffffffffffffffffff1110",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := AliasAddress(mustHexAddress(t, tc.in))
			require.NoError(t, err)
			require.Equal(t, mustHexAddress(t, tc.alias), got)
		})
	}
}

func TestUnaliasInvertsAlias(t *testing.T) {
	for i := 0; i < 20; i++ {
		addr := make([]byte, 20)
		_, err := rand.Read(addr)
		require.NoError(t, err)

		alias, err := AliasAddress(protocol.UnknownAddress(addr))
		require.NoError(t, err)
		require.NotEqual(t, protocol.UnknownAddress(addr), alias)

		back, err := UnaliasAddress(alias)
		require.NoError(t, err)
		require.Equal(t, protocol.UnknownAddress(addr), back)
	}
}

func TestAliasRejectsBadWidth(t *testing.T) {
	_, err := AliasAddress(protocol.UnknownAddress{0x01})
	require.Error(t, err)
	_, err = AliasAddress(nil)
	require.Error(t, err)
	_, err = UnaliasAddress(make(protocol.UnknownAddress, 32))
	require.Error(t, err)
}
