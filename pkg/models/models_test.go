package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func polygon() NetworkDescriptor {
	return NetworkDescriptor{
		ChainID:           137,
		ChainName:         "Polygon Mainnet",
		NativeCurrency:    NativeCurrency{Name: "POL", Symbol: "POL", Decimals: 18},
		RPCURLs:           []string{"https://polygon-rpc.com"},
		BlockExplorerURLs: []string{"https://polygonscan.com"},
	}
}

func TestChainIDHex(t *testing.T) {
	tests := []struct {
		id   int64
		want string
	}{
		{137, "0x89"},
		{1, "0x1"},
		{56, "0x38"},
		{8453, "0x2105"},
	}
	for _, tt := range tests {
		n := polygon()
		n.ChainID = tt.id
		assert.Equal(t, tt.want, n.ChainIDHex())
	}
}

func TestNetworkDescriptor_Validate(t *testing.T) {
	require.NoError(t, polygon().Validate())

	tests := []struct {
		name   string
		mutate func(n *NetworkDescriptor)
	}{
		{"zero chain id", func(n *NetworkDescriptor) { n.ChainID = 0 }},
		{"blank name", func(n *NetworkDescriptor) { n.ChainName = "  " }},
		{"no rpc urls", func(n *NetworkDescriptor) { n.RPCURLs = nil }},
		{"no explorer", func(n *NetworkDescriptor) { n.BlockExplorerURLs = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := polygon()
			tt.mutate(&n)
			assert.Error(t, n.Validate())
		})
	}
}

func TestParseWalletSource(t *testing.T) {
	for in, want := range map[string]WalletSource{
		"":         SourceInjected,
		"MetaMask": SourceInjected,
		"injected": SourceInjected,
		" privy ":  SourcePrivy,
		"Web3Auth": SourceWeb3Auth,
	} {
		got, err := ParseWalletSource(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseWalletSource("ledger")
	assert.ErrorContains(t, err, "ledger")
}

func TestReasonMessage(t *testing.T) {
	assert.Equal(t, "No wallet detected.", ReasonNoProvider.Message())
	assert.Equal(t, "Market data unavailable.", ReasonMarketFetch.Message())
	assert.Empty(t, ReasonNone.Message())
	assert.Equal(t, "something_new", Reason("something_new").Message())

	for r := range reasonMessages {
		assert.NotEmpty(t, r.Message(), r)
	}
}

func TestSnapshots(t *testing.T) {
	ready := ReadySnapshot(1.5, 300)
	require.NotNil(t, ready.Price)
	require.NotNil(t, ready.MarketCap)
	assert.Equal(t, 1.5, *ready.Price)
	assert.Equal(t, StatusReady, ready.Status)

	for _, snap := range []MarketSnapshot{LoadingSnapshot(), ErrorSnapshot(ReasonMarketFetch)} {
		assert.Nil(t, snap.Price)
		assert.Nil(t, snap.MarketCap)
	}

	raw, err := json.Marshal(ErrorSnapshot(ReasonMarketParse))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"price":null`)
	assert.Contains(t, string(raw), `"reason":"market_parse_failed"`)
}

func TestWalletSession_Connected(t *testing.T) {
	assert.False(t, WalletSession{Status: "Not connected."}.Connected())
	assert.True(t, WalletSession{Address: "0xabc", Source: SourcePrivy}.Connected())
}
