package provider

import (
	"context"
	"testing"
	"time"

	"oracle-router/oracle/transport"
	"oracle-router/oracle/types"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var (
	// vars to be used in the provider specific tests
	testBtcPriceFloat64 = float64(65000.00)
	testBtcPriceString  = "65000"
	testEthPriceFloat64 = float64(3500.00)
	testEthPriceString  = "3500"

	testBtcUsdPair = types.AssetPair{Base: "BTC", Quote: "USD"}
	testEthUsdPair = types.AssetPair{Base: "ETH", Quote: "USD"}
)

// testSession returns a session without retries so failure paths stay fast.
func testSession(t *testing.T) *transport.Session {
	t.Helper()
	return transport.NewSession(
		transport.SessionConfig{Retry: transport.RetryConfig{MaxAttempts: 1}},
		zerolog.Nop(),
	)
}

func TestAdapter_Query(t *testing.T) {
	p := NewMockAdapter(context.TODO(), zerolog.Nop(), types.ProviderChainlink, nil)

	t.Run("empty_query", func(t *testing.T) {
		_, err := p.Query(context.TODO(), types.OracleRequest{DataType: types.CategoryPrice})
		require.ErrorIs(t, err, types.ErrEmptyQuery)
	})

	t.Run("unknown_data_type", func(t *testing.T) {
		req := types.NewOracleRequest("BTC", "telepathy")
		_, err := p.Query(context.TODO(), req)
		require.Error(t, err)
		require.Equal(t, types.KindValidation, types.AsError(err).Kind)
	})

	t.Run("unsupported_category", func(t *testing.T) {
		sports := NewMockAdapter(
			context.TODO(),
			zerolog.Nop(),
			types.ProviderAPI3,
			nil,
			types.CategorySports,
		)

		_, err := sports.Query(context.TODO(), types.NewOracleRequest("BTC", types.CategoryPrice))
		require.Error(t, err)
		require.Contains(t, err.Error(), "does not support data type")
	})

	t.Run("valid_request", func(t *testing.T) {
		resp, err := p.Query(context.TODO(), types.NewOracleRequest("BTC", types.CategoryPrice))
		require.NoError(t, err)
		require.False(t, resp.Failed())
		require.Equal(t, types.ProviderChainlink, resp.Provider)
		require.NotZero(t, resp.TimestampUnixMs)

		price, ok := resp.Data.(map[string]any)["price"].(decimal.Decimal)
		require.True(t, ok)
		require.True(t, price.Equal(decimal.NewFromFloat(testBtcPriceFloat64)))
	})

	t.Run("provider_failure_is_non_throwing", func(t *testing.T) {
		failing := NewMockAdapter(context.TODO(), zerolog.Nop(), types.ProviderBand, nil)
		failing.SetFailure(types.NewError(types.KindProvider, "upstream outage"))

		resp, err := failing.Query(context.TODO(), types.NewOracleRequest("BTC", types.CategoryPrice))
		require.NoError(t, err)
		require.True(t, resp.Failed())
		require.Equal(t, types.ProviderBand, resp.Provider)
		require.Equal(t, types.KindProvider, resp.Error.Kind)
		require.Equal(t, "upstream outage", resp.Error.Message)
		require.Zero(t, resp.Confidence)
	})
}

func TestAdapter_Stats(t *testing.T) {
	p := NewMockAdapter(context.TODO(), zerolog.Nop(), types.ProviderPyth, nil)

	t.Run("fresh_adapter_ranks_perfect", func(t *testing.T) {
		stats := p.Stats()
		require.Zero(t, stats.Requests)
		require.Equal(t, float64(100), stats.SuccessRate)
	})

	t.Run("counters_accumulate", func(t *testing.T) {
		_, err := p.Query(context.TODO(), types.NewOracleRequest("ETH", types.CategoryPrice))
		require.NoError(t, err)

		p.SetFailure(types.NewError(types.KindProvider, "mock outage"))
		_, err = p.Query(context.TODO(), types.NewOracleRequest("ETH", types.CategoryPrice))
		require.NoError(t, err)
		p.SetFailure(nil)

		stats := p.Stats()
		require.Equal(t, uint64(2), stats.Requests)
		require.Equal(t, uint64(1), stats.Failures)
		require.Equal(t, float64(50), stats.SuccessRate)
		require.Contains(t, stats.LastError, "mock outage")
	})
}

func TestAdapter_Cache(t *testing.T) {
	cache, err := transport.NewMemoryCache(transport.DefaultMemoryCacheSize, transport.DefaultCacheTTL)
	require.NoError(t, err)

	req := types.NewOracleRequest("BTC", types.CategoryPrice)

	t.Run("second_query_served_from_cache", func(t *testing.T) {
		p := NewMockAdapter(context.TODO(), zerolog.Nop(), types.ProviderPyth, cache)

		first, err := p.Query(context.TODO(), req)
		require.NoError(t, err)
		require.Nil(t, first.Metadata["cached"])

		second, err := p.Query(context.TODO(), req)
		require.NoError(t, err)
		require.Equal(t, true, second.Metadata["cached"])

		// the cached hit must not count as an upstream request
		require.Equal(t, uint64(1), p.Stats().Requests)
	})

	t.Run("keys_are_provider_scoped", func(t *testing.T) {
		other := NewMockAdapter(context.TODO(), zerolog.Nop(), types.ProviderBand, cache)

		resp, err := other.Query(context.TODO(), req)
		require.NoError(t, err)
		require.Nil(t, resp.Metadata["cached"])
		require.Equal(t, uint64(1), other.Stats().Requests)
	})

	t.Run("failures_are_not_cached", func(t *testing.T) {
		p := NewMockAdapter(context.TODO(), zerolog.Nop(), types.ProviderUMA, cache)
		p.SetFailure(types.NewError(types.KindProvider, "mock outage"))

		_, err := p.Query(context.TODO(), types.NewOracleRequest("fail once", types.CategoryCustom))
		require.NoError(t, err)

		p.SetFailure(nil)
		resp, err := p.Query(context.TODO(), types.NewOracleRequest("fail once", types.CategoryCustom))
		require.NoError(t, err)
		require.False(t, resp.Failed())
		require.Nil(t, resp.Metadata["cached"])
	})
}

func TestAdapter_HealthCheck(t *testing.T) {
	p := NewMockAdapter(context.TODO(), zerolog.Nop(), types.ProviderAPI3, nil)

	t.Run("healthy", func(t *testing.T) {
		status := p.HealthCheck(context.TODO())
		require.True(t, status.IsHealthy)
		require.Zero(t, status.ErrorRate)
		require.Equal(t, float64(100), status.UptimePct)
	})

	t.Run("error_rate_follows_failures", func(t *testing.T) {
		_, err := p.Query(context.TODO(), types.NewOracleRequest("ETH", types.CategoryPrice))
		require.NoError(t, err)

		p.SetFailure(types.NewError(types.KindProvider, "mock outage"))
		_, err = p.Query(context.TODO(), types.NewOracleRequest("ETH", types.CategoryPrice))
		require.NoError(t, err)
		p.SetFailure(nil)

		status := p.HealthCheck(context.TODO())
		require.Equal(t, float64(50), status.ErrorRate)
		require.Equal(t, float64(50), status.UptimePct)
	})
}

func TestAdapter_QueryTimeout(t *testing.T) {
	p := NewMockAdapter(context.TODO(), zerolog.Nop(), types.ProviderBand, nil)
	p.SetDelay(200 * time.Millisecond)

	req := types.NewOracleRequest("BTC", types.CategoryPrice)
	req.TimeoutMs = 20

	resp, err := p.Query(context.TODO(), req)
	require.NoError(t, err)
	require.True(t, resp.Failed())
}

func TestPairFromQuery(t *testing.T) {
	testCases := map[string]struct {
		query string
		pair  string
	}{
		"bare_symbol":      {query: "BTC", pair: "BTC/USD"},
		"lowercase":        {query: "eth", pair: "ETH/USD"},
		"explicit_pair":    {query: "BTC/USD", pair: "BTC/USD"},
		"concatenated_usd": {query: "BTCUSD", pair: "BTC/USD"},
		"cross_pair":       {query: "ETH/BTC", pair: "ETH/BTC"},
		"whitespace":       {query: "  sol  ", pair: "SOL/USD"},
	}

	for name, tc := range testCases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tc.pair, pairFromQuery(tc.query).Join("/"))
		})
	}
}

func TestStrToDec(t *testing.T) {
	t.Run("valid_decimal", func(t *testing.T) {
		d, err := strToDec(" " + testEthPriceString + " ")
		require.NoError(t, err)
		require.True(t, d.Equal(decimal.NewFromFloat(testEthPriceFloat64)))
	})

	t.Run("non_number", func(t *testing.T) {
		_, err := strToDec("x")
		require.Error(t, err)
		require.Equal(t, types.KindProvider, types.AsError(err).Kind)
	})

	t.Run("empty_string", func(t *testing.T) {
		_, err := strToDec("")
		require.Error(t, err)
	})
}
