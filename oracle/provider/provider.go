package provider

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"oracle-router/oracle/transport"
	"oracle-router/oracle/types"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	defaultTimeout = 10 * time.Second

	// adapterVersion is reported by every adapter until one needs its own
	// release cadence.
	adapterVersion = "1.0.0"
)

type (
	// Adapter defines an interface an oracle network adapter must implement.
	Adapter interface {
		// Name returns the stable provider id, ex. "pyth".
		Name() types.Provider

		// Version returns the adapter version.
		Version() string

		// SupportedCategories returns the data categories the adapter can
		// resolve.
		SupportedCategories() []types.DataCategory

		// Query executes one oracle request. Provider-level failures are
		// translated into a response with Error set and zero confidence;
		// a Go error is returned only for invalid requests.
		Query(ctx context.Context, req types.OracleRequest) (types.OracleResponse, error)

		// HealthCheck probes the upstream and combines the observed probe
		// latency with the accumulated error rate.
		HealthCheck(ctx context.Context) types.HealthStatus

		// Stats returns a snapshot of the adapter request counters.
		Stats() Stats
	}

	// Stats is a point-in-time snapshot of one adapter's counters. The
	// registry ranks adapters by success rate and average latency. Rates are
	// percentages.
	Stats struct {
		Requests     uint64  `json:"requests"`
		Failures     uint64  `json:"errors"`
		SuccessRate  float64 `json:"success_rate"`
		AvgLatencyMs float64 `json:"avg_latency_ms"`
		LastError    string  `json:"last_error,omitempty"`
	}

	// Endpoint defines an override setting in our config for the
	// hardcoded rest and rpc api endpoints.
	Endpoint struct {
		// Name of the provider, ex. "pyth"
		Name types.Provider `toml:"name"`

		// Rest endpoint for the provider, ex. "https://hermes.pyth.network"
		Rest string `toml:"rest"`

		// Rpc endpoint for providers read through an evm chain,
		// ex. "https://eth-mainnet.g.alchemy.com/v2/..."
		Rpc string `toml:"rpc"`

		APIKey  string        `toml:"api_key"`
		Timeout time.Duration `toml:"timeout"`
	}

	// fetchFunc resolves one validated request against the upstream.
	fetchFunc func(ctx context.Context, req types.OracleRequest) (types.OracleResponse, error)

	// probeFunc performs the cheap upstream probe behind HealthCheck.
	probeFunc func(ctx context.Context) error

	// adapter is the base every concrete adapter embeds. It owns the shared
	// transport pieces and the request counters.
	adapter struct {
		name       types.Provider
		endpoints  Endpoint
		categories []types.DataCategory
		session    *transport.Session
		breaker    *transport.Breaker
		cache      transport.Cache
		logger     zerolog.Logger
		fetch      fetchFunc
		probe      probeFunc

		mtx          sync.Mutex
		requests     uint64
		failures     uint64
		totalLatency time.Duration
		lastError    string
	}
)

// Init wires the base adapter. Concrete adapters call it from their
// constructor, passing their own fetch and probe methods.
func (p *adapter) Init(
	name types.Provider,
	endpoints Endpoint,
	logger zerolog.Logger,
	session *transport.Session,
	cache transport.Cache,
	categories []types.DataCategory,
	fetch fetchFunc,
	probe probeFunc,
) {
	if endpoints.Timeout <= 0 {
		endpoints.Timeout = defaultTimeout
	}

	p.name = name
	p.endpoints = endpoints
	p.categories = categories
	p.session = session
	p.cache = cache
	p.fetch = fetch
	p.probe = probe
	p.breaker = transport.NewBreaker(name.String(), transport.DefaultBreakerConfig(), logger)
	p.logger = logger.With().Str("provider", name.String()).Logger()
}

func (p *adapter) Name() types.Provider {
	return p.name
}

func (p *adapter) Version() string {
	return adapterVersion
}

func (p *adapter) SupportedCategories() []types.DataCategory {
	out := make([]types.DataCategory, len(p.categories))
	copy(out, p.categories)
	return out
}

// Supports reports whether the adapter serves the given category.
func (p *adapter) Supports(category types.DataCategory) bool {
	for _, c := range p.categories {
		if c == category {
			return true
		}
	}
	return false
}

// Query validates the request, enforces its timeout and translates upstream
// failures into a non-throwing response. Only invalid requests return an
// error.
func (p *adapter) Query(ctx context.Context, req types.OracleRequest) (types.OracleResponse, error) {
	if err := req.Validate(); err != nil {
		return types.OracleResponse{}, err
	}
	if !p.Supports(req.DataType) {
		return types.OracleResponse{}, types.Errorf(
			types.KindValidation,
			"%s does not support data type %s", p.name, req.DataType,
		)
	}

	ctx, cancel := context.WithTimeout(ctx, req.Timeout())
	defer cancel()

	if resp, ok := p.cachedResponse(ctx, req); ok {
		return resp, nil
	}

	start := time.Now()
	out, err := p.breaker.Execute(func() (any, error) {
		resp, err := p.fetch(ctx, req)
		if err != nil {
			return nil, err
		}
		return resp, nil
	})
	took := time.Since(start)
	p.record(took, err)

	if err != nil {
		p.logger.Err(err).Str("query", req.Query).Msg("oracle query failed")
		return types.NewErrorResponse(p.name, err, took), nil
	}

	resp := out.(types.OracleResponse)
	resp.Provider = p.name
	resp.LatencyMs = took.Milliseconds()
	if resp.TimestampUnixMs == 0 {
		resp.TimestampUnixMs = time.Now().UnixMilli()
	}

	p.storeResponse(ctx, req, resp)
	return resp, nil
}

// HealthCheck runs the adapter probe and reports it together with the
// accumulated error rate.
func (p *adapter) HealthCheck(ctx context.Context) types.HealthStatus {
	start := time.Now()
	var probeErr error
	if p.probe != nil {
		probeErr = p.probe(ctx)
	}
	took := time.Since(start)

	stats := p.Stats()
	status := types.HealthStatus{
		IsHealthy:      probeErr == nil && p.breaker.State() != "open",
		ResponseTimeMs: took.Milliseconds(),
		ErrorRate:      100 - stats.SuccessRate,
		LastError:      stats.LastError,
		UptimePct:      stats.SuccessRate,
	}
	if probeErr != nil {
		status.LastError = probeErr.Error()
	}
	return status
}

// Stats returns a snapshot of the adapter counters. With no requests yet the
// success rate is 100 so fresh adapters rank first.
func (p *adapter) Stats() Stats {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	stats := Stats{
		Requests:    p.requests,
		Failures:    p.failures,
		SuccessRate: 100,
		LastError:   p.lastError,
	}
	if p.requests > 0 {
		stats.SuccessRate = 100 * float64(p.requests-p.failures) / float64(p.requests)
		stats.AvgLatencyMs = float64(p.totalLatency.Milliseconds()) / float64(p.requests)
	}
	return stats
}

func (p *adapter) record(took time.Duration, err error) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	p.requests++
	p.totalLatency += took
	if err != nil {
		p.failures++
		p.lastError = err.Error()
	}
}

// cachedResponse serves the request from the shared response cache. Keys are
// provider scoped so adapters never serve each other's answers.
func (p *adapter) cachedResponse(ctx context.Context, req types.OracleRequest) (types.OracleResponse, bool) {
	if p.cache == nil {
		return types.OracleResponse{}, false
	}

	raw, ok := p.cache.Get(ctx, p.cacheKey(req))
	if !ok {
		return types.OracleResponse{}, false
	}

	var resp types.OracleResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return types.OracleResponse{}, false
	}
	if resp.Metadata == nil {
		resp.Metadata = map[string]any{}
	}
	resp.Metadata["cached"] = true
	return resp, true
}

func (p *adapter) storeResponse(ctx context.Context, req types.OracleRequest, resp types.OracleResponse) {
	if p.cache == nil || resp.Failed() {
		return
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := p.cache.Set(ctx, p.cacheKey(req), raw, transport.TTLForCategory(req.DataType)); err != nil {
		p.logger.Debug().Err(err).Msg("failed to cache oracle response")
	}
}

func (p *adapter) cacheKey(req types.OracleRequest) string {
	return p.name.String() + ":" + transport.CacheKey(req)
}

// restURL joins the configured rest endpoint with a path.
func (p *adapter) restURL(path string) string {
	return strings.TrimRight(p.endpoints.Rest, "/") + path
}

// pairFromQuery normalizes the asset spelling of a query into a quote pair.
// "BTC", "BTC/USD" and "BTCUSD" all map to BTC quoted in USD.
func pairFromQuery(query string) types.AssetPair {
	symbol := strings.ToUpper(strings.TrimSpace(query))

	if base, quote, found := strings.Cut(symbol, "/"); found {
		return types.AssetPair{Base: base, Quote: quote}
	}
	if len(symbol) > 3 && strings.HasSuffix(symbol, "USD") {
		return types.NewUSDPair(strings.TrimSuffix(symbol, "USD"))
	}
	return types.NewUSDPair(symbol)
}

func strToDec(str string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(str))
	if err != nil {
		return decimal.Zero, types.Errorf(types.KindProvider, "malformed decimal %q", str)
	}
	return d, nil
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
