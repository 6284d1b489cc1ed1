package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseProvider(t *testing.T) {
	cases := map[string]Provider{
		"chainlink": ProviderChainlink,
		"CHAINLINK": ProviderChainlink,
		"Pyth":      ProviderPyth,
		"band":      ProviderBand,
		"CUSTOM":    ProviderBand,
		"uma":       ProviderUMA,
		"API3":      ProviderAPI3,
	}
	for name, want := range cases {
		got, ok := ParseProvider(name)
		require.True(t, ok, "It should parse the provider name %q", name)
		require.Equal(t, want, got)
	}

	_, ok := ParseProvider("tellor")
	require.False(t, ok, "It should reject an unknown provider name")
}

func TestProviderContractValue(t *testing.T) {
	require.Equal(t, "CUSTOM", ProviderBand.ContractValue())
	require.Equal(t, "PYTH", ProviderPyth.ContractValue())
	require.Equal(t, "CHAINLINK", ProviderChainlink.ContractValue())
}

func TestParseDataCategory(t *testing.T) {
	cases := map[string]DataCategory{
		"price":       CategoryPrice,
		"PRICE":       CategoryPrice,
		" Sports ":    CategorySports,
		"election":    CategoryElection,
		"economic":    CategoryEconomic,
		"custom":      CategoryCustom,
		"nft":         CategoryNFT,
		"random":      CategoryRandom,
		"commodities": CategoryCommodities,
	}
	for raw, want := range cases {
		got, ok := ParseDataCategory(raw)
		require.True(t, ok, "It should parse the category %q", raw)
		require.Equal(t, want, got)
	}

	_, ok := ParseDataCategory("astrology")
	require.False(t, ok, "It should reject an unknown category")
}
