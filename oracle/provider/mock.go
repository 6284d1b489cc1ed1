package provider

import (
	"context"
	"sync"
	"time"

	"oracle-router/oracle/transport"
	"oracle-router/oracle/types"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var (
	_ Adapter = (*MockAdapter)(nil)

	// mockPrices are the deterministic values served for known pairs. Unknown
	// pairs fall back to mockDefaultPrice.
	mockPrices = map[string]decimal.Decimal{
		"ETH/USD":    decimal.RequireFromString("3500.00"),
		"BTC/USD":    decimal.RequireFromString("65000.00"),
		"LINK/USD":   decimal.RequireFromString("15.50"),
		"MATIC/USD":  decimal.RequireFromString("0.85"),
		"AVAX/USD":   decimal.RequireFromString("35.00"),
		"SOL/USD":    decimal.RequireFromString("110.00"),
		"EUR/USD":    decimal.RequireFromString("1.08"),
		"GBP/USD":    decimal.RequireFromString("1.26"),
		"JPY/USD":    decimal.RequireFromString("0.0067"),
		"GOLD/USD":   decimal.RequireFromString("2050.00"),
		"SILVER/USD": decimal.RequireFromString("23.50"),
	}

	mockDefaultPrice = decimal.RequireFromString("100.00")
)

// MockAdapter serves deterministic canned data for any category under any
// provider name. It backs the offline route subcommand and the orchestrator
// tests, where real upstreams are unavailable or unwanted.
type MockAdapter struct {
	adapter

	stateMtx sync.Mutex
	failWith *types.Error
	delay    time.Duration
	prices   map[string]decimal.Decimal
}

// NewMockAdapter builds a mock impersonating the given provider. With no
// categories given it serves all of them.
func NewMockAdapter(
	_ context.Context,
	logger zerolog.Logger,
	name types.Provider,
	cache transport.Cache,
	categories ...types.DataCategory,
) *MockAdapter {
	if len(categories) == 0 {
		categories = types.Categories
	}

	p := &MockAdapter{prices: mockPrices}
	p.Init(
		name,
		Endpoint{Name: name},
		logger,
		nil,
		cache,
		categories,
		p.serveCanned,
		func(context.Context) error { return nil },
	)
	return p
}

// SetFailure makes every subsequent query fail with err. A nil err restores
// normal operation.
func (p *MockAdapter) SetFailure(err *types.Error) {
	p.stateMtx.Lock()
	defer p.stateMtx.Unlock()
	p.failWith = err
}

// SetDelay makes every subsequent query sleep before answering.
func (p *MockAdapter) SetDelay(d time.Duration) {
	p.stateMtx.Lock()
	defer p.stateMtx.Unlock()
	p.delay = d
}

// SetPrice overrides the canned price for a pair such as "BTC/USD".
func (p *MockAdapter) SetPrice(pair string, price decimal.Decimal) {
	p.stateMtx.Lock()
	defer p.stateMtx.Unlock()

	prices := make(map[string]decimal.Decimal, len(p.prices)+1)
	for k, v := range p.prices {
		prices[k] = v
	}
	prices[pair] = price
	p.prices = prices
}

func (p *MockAdapter) serveCanned(ctx context.Context, req types.OracleRequest) (types.OracleResponse, error) {
	p.stateMtx.Lock()
	failWith, delay, prices := p.failWith, p.delay, p.prices
	p.stateMtx.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return types.OracleResponse{}, types.AsError(ctx.Err())
		case <-time.After(delay):
		}
	}
	if failWith != nil {
		return types.OracleResponse{}, failWith
	}

	var data map[string]any
	switch req.DataType {
	case types.CategoryPrice, types.CategoryStocks, types.CategoryForex, types.CategoryCommodities:
		pair := pairFromQuery(req.Query)
		price, ok := prices[pair.Join("/")]
		if !ok {
			price = mockDefaultPrice
		}
		data = map[string]any{
			"price":  price,
			"pair":   pair.Join("/"),
			"source": "mock",
		}

	case types.CategorySports:
		data = map[string]any{
			"event":      req.Query,
			"home_team":  "Team A",
			"away_team":  "Team B",
			"home_score": 110,
			"away_score": 105,
			"status":     "final",
		}

	case types.CategoryWeather:
		data = map[string]any{
			"location": req.Query,
			"value":    72.5,
			"unit":     "fahrenheit",
		}

	default:
		data = map[string]any{
			"result": "mock result for " + req.Query,
			"query":  req.Query,
		}
	}

	return types.OracleResponse{
		Data:       data,
		Confidence: 0.99,
		CostUSD:    decimal.Zero,
		Metadata:   map[string]any{"data_source": "mock"},
	}, nil
}
