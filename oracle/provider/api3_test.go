package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"oracle-router/oracle/types"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestAPI3Adapter_Query(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/dapis/ETH/USD":
			json.NewEncoder(w).Encode(API3DataFeed{
				DAPIName:        "ETH/USD",
				BeaconID:        "0xdeadbeef",
				Value:           json.RawMessage(testEthPriceString),
				Timestamp:       1700000000,
				Signature:       "0xsigned",
				ProviderAddress: "0xairnode",
			})

		case "/dapis/NYC temperature":
			json.NewEncoder(w).Encode(API3DataFeed{
				DAPIName:  "NYC temperature",
				BeaconID:  "0xfeedface",
				Value:     json.RawMessage("72.5"),
				Timestamp: 1700000000,
			})

		case "/dapis/Lakers vs Celtics":
			json.NewEncoder(w).Encode(API3DataFeed{
				DAPIName:  "Lakers vs Celtics",
				BeaconID:  "0xabc",
				Value:     json.RawMessage(`"110-105 final"`),
				Timestamp: 1700000000,
				Signature: "0xsigned",
			})

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	p, err := NewAPI3Adapter(
		context.TODO(),
		zerolog.Nop(),
		Endpoint{Rest: server.URL},
		testSession(t),
		nil,
	)
	require.NoError(t, err)

	t.Run("signed_price_feed", func(t *testing.T) {
		resp, err := p.Query(context.TODO(), types.NewOracleRequest(testEthUsdPair.Join("/"), types.CategoryPrice))
		require.NoError(t, err)
		require.False(t, resp.Failed())
		require.Equal(t, types.ProviderAPI3, resp.Provider)

		data := resp.Data.(map[string]any)
		require.True(t, data["price"].(decimal.Decimal).Equal(decimal.NewFromFloat(testEthPriceFloat64)))
		require.Equal(t, "0xdeadbeef", data["beacon_id"])

		// signed first-party data scores the full confidence
		require.Equal(t, 0.96, resp.Confidence)
		require.Equal(t, true, resp.Metadata["signed"])
		require.Equal(t, "0xairnode", resp.Metadata["airnode"])
	})

	t.Run("unsigned_feed_scores_lower", func(t *testing.T) {
		req := types.NewOracleRequest("ignored", types.CategoryWeather)
		req.Parameters["dapi_name"] = "NYC temperature"

		resp, err := p.Query(context.TODO(), req)
		require.NoError(t, err)
		require.False(t, resp.Failed())

		data := resp.Data.(map[string]any)
		require.True(t, data["value"].(decimal.Decimal).Equal(decimal.NewFromFloat(72.5)))
		require.Equal(t, 0.85, resp.Confidence)
		require.Equal(t, false, resp.Metadata["signed"])
	})

	t.Run("string_valued_feed", func(t *testing.T) {
		resp, err := p.Query(context.TODO(), types.NewOracleRequest("Lakers vs Celtics", types.CategorySports))
		require.NoError(t, err)
		require.False(t, resp.Failed())

		data := resp.Data.(map[string]any)
		require.Equal(t, "110-105 final", data["value"])
		require.Equal(t, "Lakers vs Celtics", data["query"])
	})

	t.Run("unknown_dapi", func(t *testing.T) {
		resp, err := p.Query(context.TODO(), types.NewOracleRequest("BTC", types.CategoryPrice))
		require.NoError(t, err)
		require.True(t, resp.Failed())
	})
}

func TestAPI3DAPIName(t *testing.T) {
	t.Run("price_uses_pair", func(t *testing.T) {
		req := types.NewOracleRequest("eth", types.CategoryPrice)
		require.Equal(t, "ETH/USD", api3DAPIName(req))
	})

	t.Run("parameter_override", func(t *testing.T) {
		req := types.NewOracleRequest("BTC", types.CategoryPrice)
		req.Parameters["dapi_name"] = "BTC/EUR"
		require.Equal(t, "BTC/EUR", api3DAPIName(req))
	})

	t.Run("other_categories_use_query", func(t *testing.T) {
		req := types.NewOracleRequest("BAYC floor price", types.CategoryNFT)
		require.Equal(t, "BAYC floor price", api3DAPIName(req))
	})
}
