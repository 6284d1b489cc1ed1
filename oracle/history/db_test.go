package history

import (
	"testing"
	"time"

	"oracle-router/oracle/types"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var testOutcomes = []Outcome{
	{Provider: types.ProviderPyth, Category: types.CategoryPrice, Status: "ok", LatencyMs: 120, Time: time.UnixMilli(1000)},
	{Provider: types.ProviderPyth, Category: types.CategoryPrice, Status: "TIMEOUT", LatencyMs: 10000, Retries: 3, Time: time.UnixMilli(2000)},
	{Provider: types.ProviderPyth, Category: types.CategoryPrice, Status: "ok", LatencyMs: 80, Cached: true, Time: time.UnixMilli(3000)},
	{Provider: types.ProviderChainlink, Category: types.CategorySports, Status: "ok", LatencyMs: 400, Time: time.UnixMilli(3000)},
}

func TestRequestHistory_Outcomes(t *testing.T) {
	h, err := NewRequestHistory(":memory:", zerolog.Nop())
	require.NoError(t, err)
	defer h.Close()

	start := time.UnixMilli(0)
	end := time.UnixMilli(10000)

	res, err := h.GetOutcomes(types.ProviderPyth, start, end)
	require.NoError(t, err)
	require.Len(t, res, 0)

	for _, o := range testOutcomes {
		require.NoError(t, h.AddOutcome(o))
	}

	res, err = h.GetOutcomes(types.ProviderPyth, start, end)
	require.NoError(t, err)
	require.Len(t, res, 3)

	// newest first
	require.True(t, res[0].Cached)
	require.Equal(t, int64(80), res[0].LatencyMs)
	require.Equal(t, "TIMEOUT", res[1].Status)
	require.False(t, res[1].Succeeded())
	require.Equal(t, int64(3), res[1].Retries)
	require.True(t, res[2].Succeeded())
	require.Equal(t, types.CategoryPrice, res[0].Category)

	// window excludes the first row
	res, err = h.GetOutcomes(types.ProviderPyth, time.UnixMilli(1500), end)
	require.NoError(t, err)
	require.Len(t, res, 2)
}

func TestRequestHistory_Stats(t *testing.T) {
	h, err := NewRequestHistory(":memory:", zerolog.Nop())
	require.NoError(t, err)
	defer h.Close()

	for _, o := range testOutcomes {
		require.NoError(t, h.AddOutcome(o))
	}

	stats, err := h.Stats(types.ProviderPyth, time.UnixMilli(0))
	require.NoError(t, err)
	require.Equal(t, int64(3), stats.Requests)
	require.Equal(t, int64(2), stats.Succeeded)
	require.Equal(t, int64(1), stats.CacheHits)
	require.InDelta(t, 3400.0, stats.AvgLatencyMs, 0.01)

	uptime, err := h.UptimePct(types.ProviderPyth, time.UnixMilli(0))
	require.NoError(t, err)
	require.InDelta(t, 66.67, uptime, 0.01)

	// the window narrows the aggregate
	stats, err = h.Stats(types.ProviderPyth, time.UnixMilli(1500))
	require.NoError(t, err)
	require.Equal(t, int64(2), stats.Requests)
	require.Equal(t, int64(1), stats.Succeeded)

	// no journaled requests reads as fully up
	uptime, err = h.UptimePct(types.ProviderUMA, time.UnixMilli(0))
	require.NoError(t, err)
	require.Equal(t, 100.0, uptime)
}

func TestNewOutcome(t *testing.T) {
	resp := types.OracleResponse{
		Provider:   types.ProviderChainlink,
		LatencyMs:  250,
		Confidence: 0.99,
		Metadata:   map[string]any{"cached": true, "retries": float64(2)},
	}
	out := NewOutcome(types.CategoryPrice, resp)
	require.Equal(t, types.ProviderChainlink, out.Provider)
	require.True(t, out.Succeeded())
	require.True(t, out.Cached)
	require.Equal(t, int64(2), out.Retries)
	require.Equal(t, int64(250), out.LatencyMs)
	require.False(t, out.Time.IsZero())

	failed := types.NewErrorResponse(
		types.ProviderBand,
		types.NewError(types.KindTimeout, "deadline exceeded"),
		10*time.Second,
	)
	out = NewOutcome(types.CategoryCustom, failed)
	require.Equal(t, "TIMEOUT", out.Status)
	require.False(t, out.Succeeded())
	require.Equal(t, int64(10000), out.LatencyMs)
}
