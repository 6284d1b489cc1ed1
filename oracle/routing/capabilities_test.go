package routing

import (
	"strings"
	"testing"

	"oracle-router/oracle/types"

	"github.com/stretchr/testify/require"
)

func TestCapabilityTable(t *testing.T) {
	for _, p := range types.Providers {
		caps, ok := CapabilitiesFor(p)
		require.True(t, ok, "missing capability record for %s", p)
		require.NotEmpty(t, caps.Categories)
		require.NotEmpty(t, caps.Chains)
		require.Positive(t, caps.LatencyMs)
		require.Greater(t, caps.Reliability, 0.0)
		require.LessOrEqual(t, caps.Reliability, 1.0)
		require.True(t, caps.CostUSD.IsPositive())
		require.NotEmpty(t, caps.Resolution)
		require.NotEmpty(t, caps.UpdateFreq)

		for _, chain := range caps.Chains {
			require.Equal(t, strings.ToLower(chain), chain, "%s chain %q must be lowercase", p, chain)
		}
		for category := range caps.Specialties {
			require.True(t, caps.SupportsCategory(category),
				"%s specialty %s outside its served categories", p, category)
		}
	}

	_, ok := CapabilitiesFor(types.Provider("verity"))
	require.False(t, ok)
}

func TestResolutionMethodFor(t *testing.T) {
	testCases := map[string]struct {
		provider types.Provider
		expected types.ResolutionMethod
	}{
		"chainlink": {
			provider: types.ProviderChainlink,
			expected: types.ResolutionAggregated,
		},
		"pyth": {
			provider: types.ProviderPyth,
			expected: types.ResolutionDirectPull,
		},
		"band": {
			provider: types.ProviderBand,
			expected: types.ResolutionCrossChain,
		},
		"uma": {
			provider: types.ProviderUMA,
			expected: types.ResolutionOptimisticHuman,
		},
		"api3": {
			provider: types.ProviderAPI3,
			expected: types.ResolutionFirstParty,
		},
		"unknown_provider_defaults_to_automated": {
			provider: types.Provider("verity"),
			expected: types.ResolutionAutomated,
		},
	}

	for name, tc := range testCases {
		tc := tc

		t.Run(name, func(t *testing.T) {
			require.Equal(t, tc.expected, ResolutionMethodFor(tc.provider))
		})
	}
}

func TestServesAnyChain(t *testing.T) {
	band, ok := CapabilitiesFor(types.ProviderBand)
	require.True(t, ok)

	require.True(t, band.ServesAnyChain([]string{"cosmos"}))
	require.True(t, band.ServesAnyChain([]string{"COSMOS"}), "chain matching is case-insensitive")
	require.True(t, band.ServesAnyChain([]string{"solana", "ethereum"}))
	require.False(t, band.ServesAnyChain([]string{"solana", "base"}))
	require.False(t, band.ServesAnyChain(nil))
}

func TestHasSpecialty(t *testing.T) {
	testCases := map[string]struct {
		provider types.Provider
		category types.DataCategory
		expected bool
	}{
		"uma_specializes_in_elections": {
			provider: types.ProviderUMA,
			category: types.CategoryElection,
			expected: true,
		},
		"chainlink_specializes_in_sports": {
			provider: types.ProviderChainlink,
			category: types.CategorySports,
			expected: true,
		},
		"pyth_has_no_price_specialty": {
			provider: types.ProviderPyth,
			category: types.CategoryPrice,
			expected: false,
		},
		"band_has_no_events_specialty": {
			provider: types.ProviderBand,
			category: types.CategoryEvents,
			expected: false,
		},
	}

	for name, tc := range testCases {
		tc := tc

		t.Run(name, func(t *testing.T) {
			caps, ok := CapabilitiesFor(tc.provider)
			require.True(t, ok)
			require.Equal(t, tc.expected, caps.HasSpecialty(tc.category))
		})
	}
}
