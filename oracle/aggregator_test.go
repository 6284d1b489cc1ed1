package oracle

import (
	"context"
	"sync"
	"testing"
	"time"

	"oracle-router/oracle/provider"
	"oracle-router/oracle/types"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func testAggregator(method string, adapters ...provider.Adapter) *Aggregator {
	registry := provider.NewRegistry(zerolog.Nop())
	for _, a := range adapters {
		registry.Register(a)
	}
	return NewAggregator(AggregatorConfig{Method: method}, registry, zerolog.Nop())
}

func TestAggregatorMedianConsensus(t *testing.T) {
	ctx := context.Background()

	chainlink := provider.NewMockAdapter(ctx, zerolog.Nop(), types.ProviderChainlink, nil, types.CategoryPrice)
	pyth := provider.NewMockAdapter(ctx, zerolog.Nop(), types.ProviderPyth, nil, types.CategoryPrice)
	chainlink.SetPrice("BTC/USD", decimal.NewFromInt(65000))
	pyth.SetPrice("BTC/USD", decimal.NewFromInt(65100))

	agg := testAggregator("", chainlink, pyth)

	result, err := agg.Aggregate(
		ctx,
		types.NewOracleRequest("BTC/USD", types.CategoryPrice),
		types.ProviderChainlink, types.ProviderPyth,
	)
	require.NoError(t, err)
	require.Equal(t, types.AggregationMedian, result.AggregationMethod)
	require.False(t, result.DiscrepancyDetected)

	value, ok := result.AggregatedValue.(decimal.Decimal)
	require.True(t, ok)
	require.True(t, decimal.NewFromInt(65050).Equal(value), value.String())

	require.Len(t, result.IndividualValues, 2)
	individual, ok := result.IndividualValues[types.ProviderChainlink].(decimal.Decimal)
	require.True(t, ok)
	require.True(t, decimal.NewFromInt(65000).Equal(individual))

	// 0.15% spread is inside the tight band, confidence carries straight
	// through from the providers.
	require.InDelta(t, 0.99, result.Confidence, 1e-9)
	require.NotZero(t, result.TimestampUnixMs)
}

func TestAggregatorDetectsDiscrepancy(t *testing.T) {
	ctx := context.Background()

	chainlink := provider.NewMockAdapter(ctx, zerolog.Nop(), types.ProviderChainlink, nil, types.CategoryPrice)
	pyth := provider.NewMockAdapter(ctx, zerolog.Nop(), types.ProviderPyth, nil, types.CategoryPrice)
	chainlink.SetPrice("ETH/USD", decimal.NewFromInt(3000))
	pyth.SetPrice("ETH/USD", decimal.NewFromInt(3400))

	agg := testAggregator("", chainlink, pyth)

	result, err := agg.Aggregate(
		ctx,
		types.NewOracleRequest("ETH/USD", types.CategoryPrice),
		types.ProviderChainlink, types.ProviderPyth,
	)
	require.NoError(t, err)
	require.True(t, result.DiscrepancyDetected)

	value, ok := result.AggregatedValue.(decimal.Decimal)
	require.True(t, ok)
	require.True(t, decimal.NewFromInt(3200).Equal(value), value.String())

	// Conflicting answers pin the confidence below the worst provider.
	require.InDelta(t, 0.99-discrepancyPenalty, result.Confidence, 1e-9)
}

func TestAggregatorWeightedMethod(t *testing.T) {
	ctx := context.Background()

	chainlink := provider.NewMockAdapter(ctx, zerolog.Nop(), types.ProviderChainlink, nil, types.CategoryPrice)
	pyth := provider.NewMockAdapter(ctx, zerolog.Nop(), types.ProviderPyth, nil, types.CategoryPrice)
	chainlink.SetPrice("SOL/USD", decimal.NewFromInt(100))
	pyth.SetPrice("SOL/USD", decimal.NewFromInt(200))

	agg := testAggregator(types.AggregationWeighted, chainlink, pyth)

	result, err := agg.Aggregate(
		ctx,
		types.NewOracleRequest("SOL/USD", types.CategoryPrice),
		types.ProviderChainlink, types.ProviderPyth,
	)
	require.NoError(t, err)
	require.Equal(t, types.AggregationWeighted, result.AggregationMethod)

	// Equal confidences weight both answers the same, so the weighted mean
	// is the plain midpoint.
	value, ok := result.AggregatedValue.(decimal.Decimal)
	require.True(t, ok)
	require.True(t, decimal.NewFromInt(150).Equal(value), value.String())
	require.True(t, result.DiscrepancyDetected)
}

func TestAggregatorLatestForNonNumeric(t *testing.T) {
	ctx := context.Background()

	chainlink := provider.NewMockAdapter(ctx, zerolog.Nop(), types.ProviderChainlink, nil, types.CategorySports)
	uma := provider.NewMockAdapter(ctx, zerolog.Nop(), types.ProviderUMA, nil, types.CategorySports)

	agg := testAggregator("", chainlink, uma)

	result, err := agg.Aggregate(
		ctx,
		types.NewOracleRequest("Lakers vs Celtics 2026-08-20", types.CategorySports),
		types.ProviderChainlink, types.ProviderUMA,
	)
	require.NoError(t, err)
	require.Equal(t, types.AggregationLatest, result.AggregationMethod)
	require.Len(t, result.IndividualValues, 2)
	require.InDelta(t, 0.99, result.Confidence, 1e-9)

	payload, ok := result.AggregatedValue.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "final", payload["status"])
}

func TestAggregatorSurvivesPartialFailure(t *testing.T) {
	ctx := context.Background()

	chainlink := provider.NewMockAdapter(ctx, zerolog.Nop(), types.ProviderChainlink, nil, types.CategoryPrice)
	pyth := provider.NewMockAdapter(ctx, zerolog.Nop(), types.ProviderPyth, nil, types.CategoryPrice)
	chainlink.SetFailure(types.NewError(types.KindProvider, "upstream down"))
	pyth.SetPrice("BTC/USD", decimal.NewFromInt(65100))

	agg := testAggregator("", chainlink, pyth)

	result, err := agg.Aggregate(
		ctx,
		types.NewOracleRequest("BTC/USD", types.CategoryPrice),
		types.ProviderChainlink, types.ProviderPyth,
	)
	require.NoError(t, err)
	require.Len(t, result.IndividualValues, 1)

	value, ok := result.IndividualValues[types.ProviderPyth].(decimal.Decimal)
	require.True(t, ok)
	require.True(t, decimal.NewFromInt(65100).Equal(value))
	require.False(t, result.DiscrepancyDetected)
}

func TestAggregatorAllProvidersFailed(t *testing.T) {
	ctx := context.Background()

	chainlink := provider.NewMockAdapter(ctx, zerolog.Nop(), types.ProviderChainlink, nil, types.CategoryPrice)
	pyth := provider.NewMockAdapter(ctx, zerolog.Nop(), types.ProviderPyth, nil, types.CategoryPrice)
	chainlink.SetFailure(types.NewError(types.KindProvider, "upstream down"))
	pyth.SetFailure(types.NewError(types.KindTimeout, "deadline exceeded"))

	agg := testAggregator("", chainlink, pyth)

	_, err := agg.Aggregate(
		ctx,
		types.NewOracleRequest("BTC/USD", types.CategoryPrice),
		types.ProviderChainlink, types.ProviderPyth,
	)
	require.ErrorContains(t, err, "every provider failed")
}

func TestAggregatorNoAdapters(t *testing.T) {
	ctx := context.Background()

	chainlink := provider.NewMockAdapter(ctx, zerolog.Nop(), types.ProviderChainlink, nil, types.CategoryPrice)
	agg := testAggregator("", chainlink)

	// No adapter serves sports, and naming only unregistered providers leaves
	// nothing to query either.
	_, err := agg.Aggregate(ctx, types.NewOracleRequest("game", types.CategorySports))
	require.ErrorContains(t, err, "no adapters available")

	_, err = agg.Aggregate(
		ctx,
		types.NewOracleRequest("BTC/USD", types.CategoryPrice),
		types.ProviderUMA,
	)
	require.ErrorContains(t, err, "no adapters available")
}

func TestAggregatorInvalidRequest(t *testing.T) {
	agg := testAggregator("")

	_, err := agg.Aggregate(context.Background(), types.OracleRequest{})
	require.ErrorContains(t, err, "query must not be empty")
}

func TestAggregatorExpiredContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	chainlink := provider.NewMockAdapter(context.Background(), zerolog.Nop(), types.ProviderChainlink, nil, types.CategoryPrice)
	chainlink.SetDelay(5 * time.Millisecond)

	agg := testAggregator("", chainlink)

	_, err := agg.Aggregate(
		ctx,
		types.NewOracleRequest("BTC/USD", types.CategoryPrice),
		types.ProviderChainlink,
	)
	require.ErrorContains(t, err, "every provider failed")
}

func TestAggregatorNotifiesOnResponse(t *testing.T) {
	ctx := context.Background()

	chainlink := provider.NewMockAdapter(ctx, zerolog.Nop(), types.ProviderChainlink, nil, types.CategoryPrice)
	pyth := provider.NewMockAdapter(ctx, zerolog.Nop(), types.ProviderPyth, nil, types.CategoryPrice)
	chainlink.SetFailure(types.NewError(types.KindProvider, "upstream down"))

	registry := provider.NewRegistry(zerolog.Nop())
	registry.Register(chainlink)
	registry.Register(pyth)

	mtx := new(sync.Mutex)
	var seen []types.OracleResponse
	agg := NewAggregator(AggregatorConfig{
		OnResponse: func(req types.OracleRequest, resp types.OracleResponse) {
			mtx.Lock()
			defer mtx.Unlock()
			require.Equal(t, types.CategoryPrice, req.DataType)
			seen = append(seen, resp)
		},
	}, registry, zerolog.Nop())

	_, err := agg.Aggregate(
		ctx,
		types.NewOracleRequest("BTC/USD", types.CategoryPrice),
		types.ProviderChainlink, types.ProviderPyth,
	)
	require.NoError(t, err)

	// The hook sees failed responses too, so the journal records them.
	require.Len(t, seen, 2)
	failures := 0
	for _, resp := range seen {
		if resp.Failed() {
			failures++
		}
	}
	require.Equal(t, 1, failures)
}

func TestReduceConfidenceFloor(t *testing.T) {
	agg := testAggregator("")

	result, err := agg.reduce([]types.OracleResponse{
		{
			Data:            decimal.RequireFromString("100.00"),
			Provider:        types.ProviderChainlink,
			TimestampUnixMs: 1000,
			Confidence:      0.6,
		},
		{
			Data:            decimal.RequireFromString("100.05"),
			Provider:        types.ProviderPyth,
			TimestampUnixMs: 2000,
			Confidence:      0.7,
		},
	})
	require.NoError(t, err)

	// Near-identical answers are trusted even when the providers themselves
	// hedge.
	require.InDelta(t, 0.8, result.Confidence, 1e-9)
	require.False(t, result.DiscrepancyDetected)
	require.EqualValues(t, 2000, result.TimestampUnixMs)
}
