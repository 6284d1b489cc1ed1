package routing

import (
	"testing"

	"oracle-router/oracle/types"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestEngine_Route(t *testing.T) {
	engine := NewEngine(zerolog.Nop())

	t.Run("btc_price_question_routes_to_pyth", func(t *testing.T) {
		resp := engine.Route(types.RoutingRequest{
			Question:     "Will BTC exceed $100,000 by the end of 2025?",
			CategoryHint: types.CategoryPrice,
		})

		require.True(t, resp.CanResolve)
		require.Equal(t, types.ProviderPyth, resp.Selected)
		require.Equal(t, types.CategoryPrice, resp.DataType)
		require.Contains(t, resp.RequiredFeeds, "BTC")
		require.NotNil(t, resp.EstimatedLatencyMs)
		require.EqualValues(t, 100, *resp.EstimatedLatencyMs)
		require.NotNil(t, resp.EstimatedCostUSD)
		require.True(t, resp.EstimatedCostUSD.Equal(decimal.RequireFromString("0.10")))
		require.GreaterOrEqual(t, resp.Confidence, 0.85)
		require.Equal(t, []types.Provider{types.ProviderChainlink, types.ProviderAPI3}, resp.Alternatives)
		require.Equal(t, types.ResolutionDirectPull, resp.ResolutionMethod)
		require.Equal(t, types.UpdateRealtime, resp.UpdateFrequency)
		require.Contains(t, resp.Reasoning, "Pyth Network selected for BTC")
	})

	t.Run("fed_question_routes_to_uma", func(t *testing.T) {
		resp := engine.Route(types.RoutingRequest{
			Question: "Will the Federal Reserve raise interest rates at the next FOMC meeting?",
		})

		require.True(t, resp.CanResolve)
		require.Equal(t, types.ProviderUMA, resp.Selected)
		require.Equal(t, types.CategoryEconomic, resp.DataType)
		require.EqualValues(t, 7200000, *resp.EstimatedLatencyMs)
		require.Contains(t, resp.Reasoning, "Fed")
		require.Contains(t, resp.Reasoning, "FOMC")
		require.GreaterOrEqual(t, resp.Confidence, 0.7)
		require.InDelta(t, 0.75, resp.Confidence, 1e-9)
		require.Equal(t, types.ResolutionOptimisticHuman, resp.ResolutionMethod)
		require.Equal(t, types.UpdateOnDemand, resp.UpdateFrequency)
	})

	t.Run("sports_question_routes_to_chainlink", func(t *testing.T) {
		resp := engine.Route(types.RoutingRequest{
			Question:     "Will the Lakers beat the Celtics tonight?",
			CategoryHint: types.CategorySports,
		})

		require.True(t, resp.CanResolve)
		require.Equal(t, types.ProviderChainlink, resp.Selected)
		require.Equal(t, types.CategorySports, resp.DataType)
		require.GreaterOrEqual(t, resp.Confidence, 0.75)
		require.Contains(t, resp.Alternatives, types.ProviderAPI3)
		require.Contains(t, resp.Reasoning, "TheRundown")
	})

	t.Run("election_question_routes_to_uma", func(t *testing.T) {
		resp := engine.Route(types.RoutingRequest{
			Question: "Who will win the 2028 presidential election?",
		})

		require.True(t, resp.CanResolve)
		require.Equal(t, types.ProviderUMA, resp.Selected)
		require.Equal(t, types.CategoryElection, resp.DataType)
		require.Contains(t, resp.Reasoning, "human verification")
		require.InDelta(t, 0.35, resp.Confidence, 1e-9)
	})

	t.Run("weather_question_prefers_api3", func(t *testing.T) {
		resp := engine.Route(types.RoutingRequest{
			Question: "Will it rain in Seattle tomorrow?",
		})

		require.True(t, resp.CanResolve)
		require.Equal(t, types.ProviderAPI3, resp.Selected)
		require.Equal(t, types.CategoryWeather, resp.DataType)
		require.Contains(t, resp.Reasoning, "NOAA")
	})

	t.Run("corporate_event_routes_to_uma", func(t *testing.T) {
		resp := engine.Route(types.RoutingRequest{
			Question:     "Will the company announce a merger this month?",
			CategoryHint: types.CategoryEvents,
		})

		require.True(t, resp.CanResolve)
		require.Equal(t, types.ProviderUMA, resp.Selected)
		require.Contains(t, resp.Reasoning, "official announcements")
	})

	t.Run("social_media_question_routes_to_band", func(t *testing.T) {
		resp := engine.Route(types.RoutingRequest{
			Question:     "Will this tweet get 100,000 likes?",
			CategoryHint: types.CategoryCustom,
		})

		require.True(t, resp.CanResolve)
		require.Equal(t, types.ProviderBand, resp.Selected)
		require.Contains(t, resp.Reasoning, "social media")
	})

	t.Run("nft_question_routes_to_api3", func(t *testing.T) {
		resp := engine.Route(types.RoutingRequest{
			Question:     "Will the collection floor double this year?",
			CategoryHint: types.CategoryNFT,
		})

		require.True(t, resp.CanResolve)
		require.Equal(t, types.ProviderAPI3, resp.Selected)
		require.Contains(t, resp.Reasoning, "OpenSea")
	})

	t.Run("economic_without_fed_keywords_uses_ranking", func(t *testing.T) {
		resp := engine.Route(types.RoutingRequest{
			Question: "Will GDP growth stay positive this quarter?",
		})

		require.True(t, resp.CanResolve)
		require.Equal(t, types.ProviderUMA, resp.Selected)
		require.Contains(t, resp.Reasoning, "optimal choice")
		require.InDelta(t, 0.35, resp.Confidence, 1e-9)
	})

	t.Run("price_without_crypto_assets_uses_ranking", func(t *testing.T) {
		resp := engine.Route(types.RoutingRequest{
			Question:     "What will the silver spot close at tomorrow?",
			CategoryHint: types.CategoryPrice,
		})

		require.True(t, resp.CanResolve)
		require.Equal(t, types.ProviderPyth, resp.Selected)
		require.Contains(t, resp.Reasoning, "optimal choice")
		require.Contains(t, resp.Reasoning, "98% reliability")
	})

	t.Run("crypto_falls_back_to_chainlink_without_pyth", func(t *testing.T) {
		resp := engine.Route(types.RoutingRequest{
			Question:           "Will BTC exceed $100,000 by the end of 2025?",
			PreferredProviders: []types.Provider{types.ProviderChainlink, types.ProviderBand},
		})

		require.True(t, resp.CanResolve)
		require.Equal(t, types.ProviderChainlink, resp.Selected)
		require.Contains(t, resp.Reasoning, "industry-leading")
	})

	t.Run("required_chains_filter_candidates", func(t *testing.T) {
		resp := engine.Route(types.RoutingRequest{
			Question:       "Will BTC exceed $100,000 by the end of 2025?",
			RequiredChains: []string{"COSMOS"},
		})

		require.True(t, resp.CanResolve)
		require.Equal(t, types.ProviderBand, resp.Selected)
		require.Contains(t, resp.Reasoning, "optimal choice")
	})

	t.Run("max_latency_filters_candidates", func(t *testing.T) {
		resp := engine.Route(types.RoutingRequest{
			Question:     "What will the silver spot close at tomorrow?",
			CategoryHint: types.CategoryPrice,
			MaxLatencyMs: 150,
		})

		require.True(t, resp.CanResolve)
		require.Equal(t, types.ProviderPyth, resp.Selected)
		require.Empty(t, resp.Alternatives)
	})

	t.Run("unsatisfiable_cost_cannot_resolve", func(t *testing.T) {
		free := decimal.Zero
		resp := engine.Route(types.RoutingRequest{
			Question:   "Will BTC exceed $100,000 by the end of 2025?",
			MaxCostUSD: &free,
		})

		require.False(t, resp.CanResolve)
		require.Empty(t, resp.Selected)
		require.Equal(t, "No oracle supports price data with your requirements", resp.Reasoning)
		require.Equal(t, types.CategoryPrice, resp.DataType)
	})

	t.Run("unknown_preferred_provider_cannot_resolve", func(t *testing.T) {
		resp := engine.Route(types.RoutingRequest{
			Question:           "Will BTC exceed $100,000 by the end of 2025?",
			PreferredProviders: []types.Provider{types.Provider("verity")},
		})

		require.False(t, resp.CanResolve)
		require.Contains(t, resp.Reasoning, "No oracle supports")
	})

	t.Run("empty_question_cannot_resolve", func(t *testing.T) {
		resp := engine.Route(types.RoutingRequest{Question: "   "})

		require.False(t, resp.CanResolve)
		require.Equal(t, types.ErrEmptyQuestion.Message, resp.Reasoning)
	})

	t.Run("resolvable_routes_select_supported_providers", func(t *testing.T) {
		questions := []types.RoutingRequest{
			{Question: "Will BTC exceed $100,000 by the end of 2025?"},
			{Question: "Will the Federal Reserve raise interest rates at the next FOMC meeting?"},
			{Question: "Will it rain in Seattle tomorrow?"},
			{Question: "Who will win the 2028 presidential election?"},
			{Question: "Did the ceremony go as planned?"},
		}
		for _, req := range questions {
			resp := engine.Route(req)
			if !resp.CanResolve {
				continue
			}
			caps, ok := CapabilitiesFor(resp.Selected)
			require.True(t, ok)
			require.True(t, caps.SupportsCategory(resp.DataType))
			require.LessOrEqual(t, resp.Confidence, 1.0)
		}
	})

	t.Run("routing_is_deterministic", func(t *testing.T) {
		req := types.RoutingRequest{
			Question:     "Will BTC exceed $100,000 by the end of 2025?",
			CategoryHint: types.CategoryPrice,
		}
		require.Equal(t, engine.Route(req), engine.Route(req))
	})
}

func TestEngine_OracleConfig(t *testing.T) {
	engine := NewEngine(zerolog.Nop())

	t.Run("pyth_config", func(t *testing.T) {
		resp := engine.Route(types.RoutingRequest{
			Question:     "Will BTC exceed $100,000 by the end of 2025?",
			CategoryHint: types.CategoryPrice,
		})
		cfg := resp.OracleConfig

		require.Equal(t, types.ProviderPyth, cfg["provider"])
		require.Equal(t, types.CategoryPrice, cfg["category"])
		require.Equal(t, "pull_based", cfg["update_type"])
		require.Equal(t, true, cfg["confidence_interval"])
		require.Equal(t, []string{"BTC"}, cfg["feed_ids"])
	})

	t.Run("chainlink_config", func(t *testing.T) {
		resp := engine.Route(types.RoutingRequest{
			Question:           "Will BTC exceed $100,000 by the end of 2025?",
			PreferredProviders: []types.Provider{types.ProviderChainlink},
		})
		cfg := resp.OracleConfig

		require.Equal(t, "price_feed", cfg["feed_type"])
		require.Equal(t, []string{"BTC/USD"}, cfg["pairs"])
		require.Equal(t, "median", cfg["aggregation"])
		require.Equal(t, 3600, cfg["heartbeat"])
	})

	t.Run("chainlink_data_feed_outside_price", func(t *testing.T) {
		resp := engine.Route(types.RoutingRequest{
			Question:     "Will the Lakers beat the Celtics tonight?",
			CategoryHint: types.CategorySports,
		})

		require.Equal(t, "data_feed", resp.OracleConfig["feed_type"])
	})

	t.Run("uma_config", func(t *testing.T) {
		resp := engine.Route(types.RoutingRequest{
			Question: "Will the Federal Reserve raise interest rates at the next FOMC meeting?",
		})
		cfg := resp.OracleConfig

		require.Equal(t, "optimistic", cfg["oracle_type"])
		require.Equal(t, 7200, cfg["liveness_period"])
		require.Equal(t, "100", cfg["bond_amount"])
		require.Equal(t, true, cfg["dispute_mechanism"])
	})

	t.Run("band_config", func(t *testing.T) {
		resp := engine.Route(types.RoutingRequest{
			Question:     "Will this tweet get 100,000 likes?",
			CategoryHint: types.CategoryCustom,
		})
		cfg := resp.OracleConfig

		require.Equal(t, "custom", cfg["request_type"])
		require.Equal(t, "weighted_average", cfg["aggregation_method"])
	})

	t.Run("api3_config", func(t *testing.T) {
		resp := engine.Route(types.RoutingRequest{
			Question:     "Will the collection floor double this year?",
			CategoryHint: types.CategoryNFT,
		})
		cfg := resp.OracleConfig

		require.Equal(t, "first_party", cfg["api_type"])
		require.Equal(t, true, cfg["signed_data"])
	})

	t.Run("config_carries_question_and_requirements", func(t *testing.T) {
		question := "Will Tesla stock close above $300?"
		resp := engine.Route(types.RoutingRequest{Question: question})

		require.Equal(t, question, resp.OracleConfig["question"])
		reqs, ok := resp.OracleConfig["requirements"].(types.Requirements)
		require.True(t, ok)
		require.Equal(t, []string{"TSLA"}, reqs.Assets)
	})
}

func TestFindCandidates(t *testing.T) {
	testCases := map[string]struct {
		category types.DataCategory
		expected []types.Provider
	}{
		"price_ranking": {
			category: types.CategoryPrice,
			expected: []types.Provider{
				types.ProviderPyth, types.ProviderChainlink,
				types.ProviderAPI3, types.ProviderBand,
			},
		},
		"sports_ranking": {
			category: types.CategorySports,
			expected: []types.Provider{types.ProviderChainlink, types.ProviderAPI3},
		},
		"custom_ranking": {
			category: types.CategoryCustom,
			expected: []types.Provider{
				types.ProviderBand, types.ProviderAPI3, types.ProviderUMA,
			},
		},
		"economic_ranking": {
			category: types.CategoryEconomic,
			expected: []types.Provider{types.ProviderUMA},
		},
		"random_ranking": {
			category: types.CategoryRandom,
			expected: []types.Provider{types.ProviderChainlink},
		},
	}

	for name, tc := range testCases {
		tc := tc

		t.Run(name, func(t *testing.T) {
			require.Equal(t, tc.expected, findCandidates(tc.category, types.RoutingRequest{}))
		})
	}
}
