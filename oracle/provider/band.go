package provider

import (
	"context"
	"net/url"
	"strconv"

	"oracle-router/oracle/transport"
	"oracle-router/oracle/types"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var (
	_ Adapter = (*BandAdapter)(nil)

	bandDefaultEndpoints = Endpoint{
		Name: types.ProviderBand,
		Rest: "https://laozi1.bandchain.org/api",
	}

	bandCategories = []types.DataCategory{
		types.CategoryPrice,
		types.CategoryStocks,
		types.CategoryForex,
		types.CategoryCommodities,
		types.CategoryCustom,
	}

	bandCustomCost = decimal.NewFromFloat(0.01)
)

// Laozi standard dataset request parameters.
const (
	bandAskCount = 4
	bandMinCount = 3
)

type (
	// BandAdapter queries BandChain's Laozi reference data service. Custom
	// oracle scripts are served by posting the query to the data source api
	// named in the request parameters.
	BandAdapter struct {
		adapter
	}

	BandPriceResult struct {
		Symbol      string `json:"symbol"`
		Multiplier  string `json:"multiplier"`
		Px          string `json:"px"`
		RequestID   string `json:"request_id"`
		ResolveTime string `json:"resolve_time"`
	}

	BandPriceResponse struct {
		PriceResults []BandPriceResult `json:"price_results"`
	}

	BandCustomResponse struct {
		Result     any            `json:"result"`
		Timestamp  int64          `json:"timestamp"`
		Confidence *float64       `json:"confidence,omitempty"`
		Metadata   map[string]any `json:"metadata,omitempty"`
	}
)

func NewBandAdapter(
	_ context.Context,
	logger zerolog.Logger,
	endpoints Endpoint,
	session *transport.Session,
	cache transport.Cache,
) (*BandAdapter, error) {
	if endpoints.Rest == "" {
		endpoints.Rest = bandDefaultEndpoints.Rest
	}

	p := &BandAdapter{}
	p.Init(
		types.ProviderBand,
		endpoints,
		logger,
		session,
		cache,
		bandCategories,
		p.fetchData,
		p.probeReferenceData,
	)
	return p, nil
}

func (p *BandAdapter) fetchData(ctx context.Context, req types.OracleRequest) (types.OracleResponse, error) {
	if req.DataType == types.CategoryCustom {
		return p.fetchCustomData(ctx, req)
	}
	return p.fetchReferenceData(ctx, pairFromQuery(req.Query))
}

func (p *BandAdapter) fetchReferenceData(ctx context.Context, pair types.AssetPair) (types.OracleResponse, error) {
	path := "/oracle/v1/request_prices?ask_count=" + strconv.Itoa(bandAskCount) +
		"&min_count=" + strconv.Itoa(bandMinCount) +
		"&symbols=" + url.QueryEscape(pair.Base)

	var out BandPriceResponse
	if err := p.session.GetJSON(ctx, p.restURL(path), &out); err != nil {
		return types.OracleResponse{}, err
	}
	if len(out.PriceResults) == 0 {
		return types.OracleResponse{}, types.Errorf(
			types.KindProvider,
			"no reference data for symbol %s", pair.Base,
		)
	}

	result := out.PriceResults[0]
	px, err := strToDec(result.Px)
	if err != nil {
		return types.OracleResponse{}, err
	}
	multiplier, err := strToDec(result.Multiplier)
	if err != nil {
		return types.OracleResponse{}, err
	}
	if multiplier.Sign() <= 0 {
		return types.OracleResponse{}, types.Errorf(
			types.KindProvider,
			"invalid multiplier %q for symbol %s", result.Multiplier, pair.Base,
		)
	}

	resolveTime, _ := strconv.ParseInt(result.ResolveTime, 10, 64)

	return types.OracleResponse{
		Data: map[string]any{
			"price":        px.Div(multiplier),
			"pair":         pair.Join("/"),
			"symbol":       result.Symbol,
			"request_id":   result.RequestID,
			"resolve_time": resolveTime,
		},
		Confidence: 0.95,
		CostUSD:    decimal.Zero,
		Metadata: map[string]any{
			"data_source": "band-laozi",
			"ask_count":   bandAskCount,
			"min_count":   bandMinCount,
		},
	}, nil
}

func (p *BandAdapter) fetchCustomData(ctx context.Context, req types.OracleRequest) (types.OracleResponse, error) {
	apiURL, _ := req.Parameters["api_url"].(string)
	if apiURL == "" {
		return types.OracleResponse{}, types.Errorf(
			types.KindValidation,
			"custom queries require an api_url parameter",
		)
	}

	payload := map[string]any{
		"query":      req.Query,
		"parameters": req.Parameters,
	}

	var out BandCustomResponse
	if err := p.session.PostJSON(ctx, apiURL, payload, &out); err != nil {
		return types.OracleResponse{}, err
	}

	confidence := 0.5
	if out.Result != nil {
		confidence = 0.8
	}
	if out.Confidence != nil {
		confidence = clampConfidence(*out.Confidence)
	}

	return types.OracleResponse{
		Data: map[string]any{
			"result":    out.Result,
			"query":     req.Query,
			"timestamp": out.Timestamp,
			"source":    "custom-oracle",
		},
		Confidence: confidence,
		CostUSD:    bandCustomCost,
		Metadata: map[string]any{
			"data_source": "band-custom",
			"api_url":     apiURL,
		},
	}, nil
}

func (p *BandAdapter) probeReferenceData(ctx context.Context) error {
	_, err := p.fetchReferenceData(ctx, types.NewUSDPair("BTC"))
	return err
}
