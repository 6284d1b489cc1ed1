package provider

import (
	"context"
	"testing"

	"oracle-router/oracle/types"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry(zerolog.Nop())

	pyth := NewMockAdapter(context.TODO(), zerolog.Nop(), types.ProviderPyth, nil)
	band := NewMockAdapter(context.TODO(), zerolog.Nop(), types.ProviderBand, nil)
	r.Register(pyth)
	r.Register(band)

	t.Run("list_is_alphabetical", func(t *testing.T) {
		require.Equal(t, []types.Provider{types.ProviderBand, types.ProviderPyth}, r.List())
	})

	t.Run("get_returns_registered_adapter", func(t *testing.T) {
		a, ok := r.Get(types.ProviderPyth)
		require.True(t, ok)
		require.Equal(t, types.ProviderPyth, a.Name())

		_, ok = r.Get(types.ProviderUMA)
		require.False(t, ok)
	})

	t.Run("register_replaces_same_name", func(t *testing.T) {
		replacement := NewMockAdapter(
			context.TODO(),
			zerolog.Nop(),
			types.ProviderPyth,
			nil,
			types.CategoryPrice,
		)
		r.Register(replacement)

		a, ok := r.Get(types.ProviderPyth)
		require.True(t, ok)
		require.Equal(t, []types.DataCategory{types.CategoryPrice}, a.SupportedCategories())
		require.Len(t, r.List(), 2)

		r.Register(pyth)
	})

	t.Run("unregister", func(t *testing.T) {
		r.Unregister(types.ProviderBand)
		_, ok := r.Get(types.ProviderBand)
		require.False(t, ok)

		// removing an unknown name is a no-op
		r.Unregister(types.ProviderBand)
		require.Equal(t, []types.Provider{types.ProviderPyth}, r.List())

		r.Register(band)
	})
}

func TestRegistry_AdaptersFor(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	r.Register(NewMockAdapter(context.TODO(), zerolog.Nop(), types.ProviderPyth, nil, types.CategoryPrice))
	r.Register(NewMockAdapter(context.TODO(), zerolog.Nop(), types.ProviderUMA, nil, types.CategoryElection, types.CategoryCustom))
	r.Register(NewMockAdapter(context.TODO(), zerolog.Nop(), types.ProviderChainlink, nil, types.CategoryPrice, types.CategorySports))

	t.Run("filters_by_category", func(t *testing.T) {
		adapters := r.AdaptersFor(types.CategoryPrice)
		require.Len(t, adapters, 2)
		require.Equal(t, types.ProviderChainlink, adapters[0].Name())
		require.Equal(t, types.ProviderPyth, adapters[1].Name())
	})

	t.Run("no_match", func(t *testing.T) {
		require.Empty(t, r.AdaptersFor(types.CategoryNFT))
	})
}

func TestRegistry_QueryBest(t *testing.T) {
	t.Run("validation_error", func(t *testing.T) {
		r := NewRegistry(zerolog.Nop())
		_, err := r.QueryBest(context.TODO(), types.OracleRequest{DataType: types.CategoryPrice})
		require.ErrorIs(t, err, types.ErrEmptyQuery)
	})

	t.Run("no_adapters_available", func(t *testing.T) {
		r := NewRegistry(zerolog.Nop())

		resp, err := r.QueryBest(context.TODO(), types.NewOracleRequest("BTC", types.CategoryPrice))
		require.NoError(t, err)
		require.True(t, resp.Failed())
		require.Equal(t, types.ProviderNone, resp.Provider)
		require.Equal(t, types.KindRouting, resp.Error.Kind)
		require.Equal(t, "no adapters available for data type: price", resp.Error.Message)
	})

	t.Run("failover_to_next_adapter", func(t *testing.T) {
		r := NewRegistry(zerolog.Nop())

		band := NewMockAdapter(context.TODO(), zerolog.Nop(), types.ProviderBand, nil)
		band.SetFailure(types.NewError(types.KindProvider, "band outage"))
		pyth := NewMockAdapter(context.TODO(), zerolog.Nop(), types.ProviderPyth, nil)
		r.Register(band)
		r.Register(pyth)

		resp, err := r.QueryBest(context.TODO(), types.NewOracleRequest("BTC", types.CategoryPrice))
		require.NoError(t, err)
		require.False(t, resp.Failed())
		require.Equal(t, types.ProviderPyth, resp.Provider)
	})

	t.Run("all_adapters_failed", func(t *testing.T) {
		r := NewRegistry(zerolog.Nop())

		band := NewMockAdapter(context.TODO(), zerolog.Nop(), types.ProviderBand, nil)
		band.SetFailure(types.NewError(types.KindProvider, "band outage"))
		pyth := NewMockAdapter(context.TODO(), zerolog.Nop(), types.ProviderPyth, nil)
		pyth.SetFailure(types.NewError(types.KindProvider, "pyth outage"))
		r.Register(band)
		r.Register(pyth)

		resp, err := r.QueryBest(context.TODO(), types.NewOracleRequest("BTC", types.CategoryPrice))
		require.NoError(t, err)
		require.True(t, resp.Failed())
		require.Equal(t, types.ProviderFailed, resp.Provider)
		require.Contains(t, resp.Error.Message, "all adapters failed. last error:")
		require.Contains(t, resp.Error.Message, "outage")
	})

	t.Run("ranking_prefers_higher_success_rate", func(t *testing.T) {
		r := NewRegistry(zerolog.Nop())

		band := NewMockAdapter(context.TODO(), zerolog.Nop(), types.ProviderBand, nil)
		pyth := NewMockAdapter(context.TODO(), zerolog.Nop(), types.ProviderPyth, nil)
		r.Register(band)
		r.Register(pyth)

		// with equal stats the alphabetical tie break wins
		resp, err := r.QueryBest(context.TODO(), types.NewOracleRequest("BTC", types.CategoryPrice))
		require.NoError(t, err)
		require.Equal(t, types.ProviderBand, resp.Provider)

		// damage band's success rate, pyth outranks it
		band.SetFailure(types.NewError(types.KindProvider, "band outage"))
		_, err = band.Query(context.TODO(), types.NewOracleRequest("ETH", types.CategoryPrice))
		require.NoError(t, err)
		band.SetFailure(nil)

		resp, err = r.QueryBest(context.TODO(), types.NewOracleRequest("SOL", types.CategoryPrice))
		require.NoError(t, err)
		require.Equal(t, types.ProviderPyth, resp.Provider)
	})

	t.Run("preferred_providers_filter", func(t *testing.T) {
		r := NewRegistry(zerolog.Nop())

		band := NewMockAdapter(context.TODO(), zerolog.Nop(), types.ProviderBand, nil)
		pyth := NewMockAdapter(context.TODO(), zerolog.Nop(), types.ProviderPyth, nil)
		r.Register(band)
		r.Register(pyth)

		resp, err := r.QueryBest(
			context.TODO(),
			types.NewOracleRequest("BTC", types.CategoryPrice),
			types.ProviderPyth,
		)
		require.NoError(t, err)
		require.Equal(t, types.ProviderPyth, resp.Provider)

		// an unregistered preference leaves no candidates
		resp, err = r.QueryBest(
			context.TODO(),
			types.NewOracleRequest("BTC", types.CategoryPrice),
			types.ProviderUMA,
		)
		require.NoError(t, err)
		require.Equal(t, types.ProviderNone, resp.Provider)
	})

	t.Run("cancelled_context", func(t *testing.T) {
		r := NewRegistry(zerolog.Nop())
		r.Register(NewMockAdapter(context.TODO(), zerolog.Nop(), types.ProviderPyth, nil))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := r.QueryBest(ctx, types.NewOracleRequest("BTC", types.CategoryPrice))
		require.Error(t, err)
	})
}
