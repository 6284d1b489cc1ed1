package oracle

import (
	"context"
	"sync"

	"oracle-router/oracle/provider"
	"oracle-router/oracle/types"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// defaultFanout bounds how many adapter queries one aggregator runs at once.
const defaultFanout = 8

// Consensus confidence rules: a relative spread above discrepancySpread marks
// the answers as conflicting and pins the confidence below the worst
// provider, a spread below tightSpread floors it at tightSpreadFloor.
var (
	discrepancySpread = decimal.RequireFromString("0.05")
	tightSpread       = decimal.RequireFromString("0.01")
)

const (
	discrepancyPenalty = 0.15
	tightSpreadFloor   = 0.8
)

type (
	// AggregatorConfig tunes the consensus fan-out.
	AggregatorConfig struct {
		// Concurrency bounds parallel adapter queries across all
		// aggregations. Defaults to 8.
		Concurrency int

		// Method selects the numeric consensus, "median" by default or
		// "weighted" for a confidence-weighted mean. Non-numeric data always
		// reduces to the most recent response.
		Method string

		// OnResponse observes every collected response, failed ones
		// included. The orchestrator uses it to journal request outcomes.
		OnResponse func(types.OracleRequest, types.OracleResponse)
	}

	// Aggregator fans one oracle request out across provider adapters and
	// reduces the responses to a consensus record.
	Aggregator struct {
		registry   *provider.Registry
		sem        *semaphore.Weighted
		method     string
		onResponse func(types.OracleRequest, types.OracleResponse)
		logger     zerolog.Logger
	}
)

func NewAggregator(cfg AggregatorConfig, registry *provider.Registry, logger zerolog.Logger) *Aggregator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultFanout
	}
	if cfg.Method == "" {
		cfg.Method = types.AggregationMedian
	}

	return &Aggregator{
		registry:   registry,
		sem:        semaphore.NewWeighted(int64(cfg.Concurrency)),
		method:     cfg.Method,
		onResponse: cfg.OnResponse,
		logger:     logger.With().Str("module", "aggregator").Logger(),
	}
}

// Aggregate queries the named providers, or every adapter serving the
// request's category when none are named, and reduces their answers to one
// consensus value. Failed responses are dropped before reduction.
func (a *Aggregator) Aggregate(
	ctx context.Context,
	req types.OracleRequest,
	providers ...types.Provider,
) (types.AggregatedOracleData, error) {
	if err := req.Validate(); err != nil {
		return types.AggregatedOracleData{}, err
	}

	adapters := a.adapters(req.DataType, providers)
	if len(adapters) == 0 {
		return types.AggregatedOracleData{}, types.Errorf(
			types.KindRouting,
			"no adapters available to aggregate %s data", req.DataType,
		)
	}

	responses, err := a.collect(ctx, req, adapters)
	if err != nil {
		return types.AggregatedOracleData{}, err
	}

	return a.reduce(responses)
}

func (a *Aggregator) adapters(category types.DataCategory, providers []types.Provider) []provider.Adapter {
	if len(providers) == 0 {
		return a.registry.AdaptersFor(category)
	}

	adapters := make([]provider.Adapter, 0, len(providers))
	for _, name := range providers {
		adapter, ok := a.registry.Get(name)
		if !ok {
			a.logger.Warn().
				Str("provider", name.String()).
				Msg("requested provider is not registered")
			continue
		}
		adapters = append(adapters, adapter)
	}
	return adapters
}

func (a *Aggregator) collect(
	ctx context.Context,
	req types.OracleRequest,
	adapters []provider.Adapter,
) ([]types.OracleResponse, error) {
	g := new(errgroup.Group)
	mtx := new(sync.Mutex)
	responses := make([]types.OracleResponse, 0, len(adapters))

	for _, adapter := range adapters {
		adapter := adapter

		g.Go(func() error {
			if err := a.sem.Acquire(ctx, 1); err != nil {
				return types.Errorf(types.KindCancelled, "aggregation cancelled: %s", err)
			}
			defer a.sem.Release(1)

			resp, err := adapter.Query(ctx, req)
			if err != nil {
				// requests an adapter cannot serve count as failed responses
				resp = types.NewErrorResponse(adapter.Name(), err, 0)
			}
			if a.onResponse != nil {
				a.onResponse(req, resp)
			}

			mtx.Lock()
			defer mtx.Unlock()
			responses = append(responses, resp)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return responses, nil
}

func (a *Aggregator) reduce(responses []types.OracleResponse) (types.AggregatedOracleData, error) {
	var usable []types.OracleResponse
	for _, resp := range responses {
		if resp.Failed() {
			a.logger.Debug().
				Str("provider", resp.Provider.String()).
				Str("error", resp.Error.Message).
				Msg("dropping failed response from aggregation")
			continue
		}
		usable = append(usable, resp)
	}

	if len(usable) == 0 {
		return types.AggregatedOracleData{}, types.Errorf(
			types.KindProvider,
			"every provider failed, nothing to aggregate",
		)
	}

	values := make([]decimal.Decimal, 0, len(usable))
	numeric := true
	for _, resp := range usable {
		v, ok := numericValue(resp.Data)
		if !ok {
			numeric = false
			break
		}
		values = append(values, v)
	}

	if !numeric {
		return a.reduceLatest(usable), nil
	}
	return a.reduceNumeric(usable, values)
}

// reduceNumeric computes the configured consensus value and scores it by the
// relative spread of the individual answers.
func (a *Aggregator) reduceNumeric(
	usable []types.OracleResponse,
	values []decimal.Decimal,
) (types.AggregatedOracleData, error) {
	confidences := make([]float64, len(usable))
	individual := make(map[types.Provider]any, len(usable))
	for i, resp := range usable {
		confidences[i] = resp.Confidence
		individual[resp.Provider] = values[i]
	}

	value, err := Median(values)
	if err != nil {
		return types.AggregatedOracleData{}, types.AsError(err)
	}

	method := types.AggregationMedian
	if a.method == types.AggregationWeighted {
		weights := make([]decimal.Decimal, len(confidences))
		for i, c := range confidences {
			weights[i] = decimal.NewFromFloat(c)
		}
		value, err = WeightedMean(values, weights)
		if err != nil {
			return types.AggregatedOracleData{}, types.AsError(err)
		}
		method = types.AggregationWeighted
	}

	spread := Spread(values)
	discrepancy := spread.GreaterThan(discrepancySpread)

	var confidence float64
	if discrepancy {
		confidence = minFloats(confidences) - discrepancyPenalty
		if confidence < 0 {
			confidence = 0
		}
		a.logger.Warn().
			Str("spread", spread.String()).
			Str("value", value.String()).
			Msg("providers disagree beyond the discrepancy bound")
	} else {
		confidence = medianFloats(confidences)
		if spread.LessThan(tightSpread) && confidence < tightSpreadFloor {
			confidence = tightSpreadFloor
		}
	}

	return types.AggregatedOracleData{
		AggregationMethod:   method,
		AggregatedValue:     value,
		IndividualValues:    individual,
		Confidence:          confidence,
		DiscrepancyDetected: discrepancy,
		TimestampUnixMs:     latestTimestamp(usable),
	}, nil
}

// reduceLatest picks the most recent response. Non-numeric answers have no
// midpoint to agree on, so recency wins.
func (a *Aggregator) reduceLatest(usable []types.OracleResponse) types.AggregatedOracleData {
	latest := usable[0]
	individual := make(map[types.Provider]any, len(usable))
	for _, resp := range usable {
		individual[resp.Provider] = resp.Data
		if resp.TimestampUnixMs > latest.TimestampUnixMs {
			latest = resp
		}
	}

	return types.AggregatedOracleData{
		AggregationMethod: types.AggregationLatest,
		AggregatedValue:   latest.Data,
		IndividualValues:  individual,
		Confidence:        latest.Confidence,
		TimestampUnixMs:   latest.TimestampUnixMs,
	}
}

func latestTimestamp(responses []types.OracleResponse) int64 {
	var max int64
	for _, resp := range responses {
		if resp.TimestampUnixMs > max {
			max = resp.TimestampUnixMs
		}
	}
	return max
}
