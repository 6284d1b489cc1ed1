// Package oracle is the resolution core of the router: it owns the provider
// registry, fans oracle requests out through the aggregator, routes market
// questions through the rule engine and LLM enhancer, and settles prediction
// markets from the collected data.
package oracle

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"oracle-router/oracle/ai"
	"oracle-router/oracle/history"
	"oracle-router/oracle/provider"
	"oracle-router/oracle/routing"
	"oracle-router/oracle/transport"
	"oracle-router/oracle/types"
	psync "oracle-router/pkg/sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// We define tickerSleep as the minimum timeout between each service loop
// iteration. The health poll interval gates the actual probing; the loop
// itself spins faster so shutdown stays responsive.
const (
	tickerSleep = 1000 * time.Millisecond

	defaultHealthInterval = 30 * time.Second
	defaultProbeTimeout   = 10 * time.Second

	// deterministicConfidenceCap bounds resolutions settled without AI
	// cross-checking.
	deterministicConfidenceCap = 0.85
)

type (
	// ServiceConfig tunes the orchestrator.
	ServiceConfig struct {
		// HealthInterval is the adapter health poll period. Defaults to 30s.
		HealthInterval time.Duration

		// ProbeTimeout bounds one adapter health probe. Defaults to 10s.
		ProbeTimeout time.Duration

		// Concurrency bounds the aggregation fan-out. Defaults to 8.
		Concurrency int

		// AggregationMethod selects the numeric consensus, "median" or
		// "weighted".
		AggregationMethod string

		// DeviationThreshold is the 𝜎 multiplier for deterministic data
		// validation. Zero uses the default of 1.
		DeviationThreshold decimal.Decimal

		// QualityThreshold is the minimum LLM validation confidence. Zero
		// uses the resolver default.
		QualityThreshold float64
	}

	// Service implements the core component responsible for routing market
	// questions to oracle providers, aggregating their data and resolving
	// prediction markets from it.
	Service struct {
		logger zerolog.Logger
		closer *psync.Closer
		cfg    ServiceConfig

		registry   *provider.Registry
		engine     *routing.Engine
		enhancer   *ai.Enhancer
		resolver   *ai.Resolver
		aggregator *Aggregator
		cache      transport.Cache
		journal    *history.RequestHistory

		mtx              sync.RWMutex
		health           map[types.Provider]types.HealthStatus
		lastHealthSyncTS time.Time
	}
)

// New wires the orchestrator. The enhancer, resolver, cache and journal may
// be nil; the corresponding paths degrade to their deterministic or
// in-memory behavior.
func New(
	logger zerolog.Logger,
	cfg ServiceConfig,
	registry *provider.Registry,
	engine *routing.Engine,
	enhancer *ai.Enhancer,
	resolver *ai.Resolver,
	cache transport.Cache,
	journal *history.RequestHistory,
) *Service {
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = defaultHealthInterval
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}

	s := &Service{
		logger:   logger.With().Str("module", "oracle").Logger(),
		closer:   psync.NewCloser(),
		cfg:      cfg,
		registry: registry,
		engine:   engine,
		enhancer: enhancer,
		resolver: resolver,
		cache:    cache,
		journal:  journal,
		health:   make(map[types.Provider]types.HealthStatus),
	}
	s.aggregator = NewAggregator(AggregatorConfig{
		Concurrency: cfg.Concurrency,
		Method:      cfg.AggregationMethod,
		OnResponse:  s.journalOutcome,
	}, registry, logger)

	return s
}

// Start runs the service health loop in a blocking fashion until the context
// is cancelled or Stop is called.
func (s *Service) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.closer.Close()
			return ctx.Err()

		case <-s.closer.Done():
			return nil

		default:
			s.logger.Debug().Msg("starting service tick")

			startTime := time.Now()
			if err := s.tick(ctx); err != nil {
				s.logger.Err(err).Msg("service tick failed")
			}
			s.logger.Debug().
				Dur("took", time.Since(startTime)).
				Msg("service tick done")

			time.Sleep(tickerSleep)
		}
	}
}

// Stop stops the service and waits for it to gracefully exit.
func (s *Service) Stop() {
	s.closer.Close()
	<-s.closer.Done()
}

func (s *Service) tick(ctx context.Context) error {
	if time.Since(s.LastHealthSyncTimestamp()) < s.cfg.HealthInterval {
		return nil
	}
	return s.RefreshHealth(ctx)
}

// RouteQuestion classifies and routes the question, then lets the LLM
// enhancer refine the decision when the enhancement gate asks for it.
func (s *Service) RouteQuestion(ctx context.Context, req types.RoutingRequest) types.RoutingResponse {
	resp := s.engine.Route(req)
	if s.enhancer != nil && s.enhancer.ShouldEnhance(req, resp) {
		resp = s.enhancer.Enhance(ctx, req, resp)
	}
	return resp
}

// GetPrice returns the consensus price for an asset. Naming exactly one
// provider queries that adapter directly; otherwise the request fans out
// across the named providers, or every price-capable adapter when none are
// named.
func (s *Service) GetPrice(
	ctx context.Context,
	asset string,
	providers ...types.Provider,
) (types.AggregatedOracleData, error) {
	if strings.TrimSpace(asset) == "" {
		return types.AggregatedOracleData{}, types.NewError(
			types.KindValidation, "asset must not be empty")
	}

	req := types.NewOracleRequest(asset, types.CategoryPrice)

	if len(providers) == 1 {
		return s.priceFromProvider(ctx, req, providers[0])
	}
	return s.aggregator.Aggregate(ctx, req, providers...)
}

// priceFromProvider serves the single-provider path without consensus
// overhead.
func (s *Service) priceFromProvider(
	ctx context.Context,
	req types.OracleRequest,
	name types.Provider,
) (types.AggregatedOracleData, error) {
	adapter, ok := s.registry.Get(name)
	if !ok {
		return types.AggregatedOracleData{}, types.Errorf(
			types.KindRouting, "provider %s is not registered", name)
	}

	resp, err := adapter.Query(ctx, req)
	if err != nil {
		return types.AggregatedOracleData{}, err
	}
	s.journalOutcome(req, resp)
	if resp.Failed() {
		return types.AggregatedOracleData{}, resp.Error
	}

	value := resp.Data
	if v, ok := numericValue(resp.Data); ok {
		value = v
	}
	return types.AggregatedOracleData{
		AggregationMethod: types.AggregationLatest,
		AggregatedValue:   value,
		IndividualValues:  map[types.Provider]any{resp.Provider: value},
		Confidence:        resp.Confidence,
		TimestampUnixMs:   resp.TimestampUnixMs,
	}, nil
}

// Resolve settles a prediction market question. Oracle data is gathered
// through the aggregator when the caller brings none, the LLM resolver
// produces the verdict when configured, and a deterministic threshold
// comparison settles the market otherwise.
func (s *Service) Resolve(
	ctx context.Context,
	question string,
	options []string,
	oracleData map[string]any,
) (types.PredictionMarketResolution, error) {
	if len(options) == 0 {
		return types.PredictionMarketResolution{}, types.NewError(
			types.KindValidation, "market resolution needs at least one outcome option")
	}

	routed := s.engine.Route(types.RoutingRequest{Question: question})

	if len(oracleData) == 0 {
		gathered, err := s.gatherResolutionData(ctx, question, routed)
		if err != nil {
			s.logger.Warn().Err(err).Msg("could not gather oracle data for resolution")
		} else {
			oracleData = gathered
		}
	}

	if s.resolver != nil {
		selected := routed.Selected
		if selected == "" {
			selected = types.ProviderNone
		}
		resolution, err := s.resolver.ResolveMarket(ctx, question, options, oracleData, selected)
		if err == nil {
			return resolution, nil
		}
		s.logger.Warn().Err(err).Msg("llm resolution unavailable, resolving deterministically")
	}

	return s.resolveDeterministic(question, options, oracleData)
}

// gatherResolutionData pulls fresh consensus data for a routed question and
// flattens it into the canonical resolution payload.
func (s *Service) gatherResolutionData(
	ctx context.Context,
	question string,
	routed types.RoutingResponse,
) (map[string]any, error) {
	if !routed.CanResolve {
		return nil, types.NewError(types.KindRouting, routed.Reasoning)
	}

	query := question
	if len(routed.RequiredFeeds) > 0 {
		query = routed.RequiredFeeds[0]
	}
	req := types.NewOracleRequest(query, routed.DataType)

	providers := append([]types.Provider{routed.Selected}, routed.Alternatives...)
	agg, err := s.aggregator.Aggregate(ctx, req, providers...)
	if err != nil {
		return nil, err
	}

	individual := make(map[string]any, len(agg.IndividualValues))
	for p, v := range agg.IndividualValues {
		individual[p.String()] = v
	}
	return map[string]any{
		"aggregation_method":   agg.AggregationMethod,
		"aggregated_value":     agg.AggregatedValue,
		"individual_values":    individual,
		"confidence":           agg.Confidence,
		"discrepancy_detected": agg.DiscrepancyDetected,
		"timestamp_unix_ms":    agg.TimestampUnixMs,
	}, nil
}

// resolveDeterministic settles the market from aggregated data alone. A
// threshold question is decided by comparing the consensus value against it;
// anything else defaults to the first option at low confidence pending
// manual review.
func (s *Service) resolveDeterministic(
	question string,
	options []string,
	data map[string]any,
) (types.PredictionMarketResolution, error) {
	now := time.Now().Unix()
	sources := dataSources(data)

	value, haveValue := numericValue(data)
	reqs := routing.ExtractRequirements(question)

	if !haveValue || reqs.Threshold == nil {
		return types.PredictionMarketResolution{
			WinningOutcome: 0,
			Confidence:     0.3,
			DataSources:    sources,
			Reasoning: fmt.Sprintf(
				"No automated verdict could be derived for %q: the available oracle data carries no numeric consensus value and threshold to compare. Defaulting to the first option pending manual review of the raw oracle data.",
				question),
			Timestamp: now,
		}, nil
	}

	verdict := compareThreshold(value, *reqs.Threshold, reqs.Comparison)
	outcome := outcomeIndex(options, verdict)
	resolutionValue := value.IntPart()

	s.logger.Info().
		Str("value", value.String()).
		Str("threshold", reqs.Threshold.String()).
		Bool("verdict", verdict).
		Int("outcome", outcome).
		Msg("resolved market deterministically")

	return types.PredictionMarketResolution{
		WinningOutcome:  uint8(outcome),
		ResolutionValue: &resolutionValue,
		Confidence:      consensusConfidence(data),
		DataSources:     sources,
		Reasoning: fmt.Sprintf(
			"Deterministic resolution without AI assistance: the aggregated oracle value %s compared against the question threshold %s (%s) makes option %d %q the winning outcome. Confidence mirrors the consensus confidence of the contributing providers.",
			value, reqs.Threshold, reqs.Comparison, outcome, options[outcome]),
		Timestamp: now,
	}, nil
}

// ValidateData cross-checks oracle responses before they are used for
// resolution, with the LLM when one is configured and deterministically
// otherwise.
func (s *Service) ValidateData(
	ctx context.Context,
	category types.DataCategory,
	responses []types.OracleResponse,
) types.OracleDataValidation {
	if s.resolver != nil {
		points := make([]map[string]any, 0, len(responses))
		for _, resp := range responses {
			if resp.Failed() {
				continue
			}
			points = append(points, map[string]any{
				"provider":          resp.Provider.String(),
				"value":             resp.Data,
				"confidence":        resp.Confidence,
				"timestamp_unix_ms": resp.TimestampUnixMs,
			})
		}

		validation, err := s.resolver.ValidateData(ctx, points, category, s.cfg.QualityThreshold)
		if err == nil {
			return validation
		}
		s.logger.Warn().Err(err).Msg("llm validation unavailable, validating deterministically")
	}

	return ValidateOracleData(s.logger, responses, s.cfg.DeviationThreshold)
}

// RefreshHealth probes every registered adapter in parallel and stores the
// snapshot served by Health.
func (s *Service) RefreshHealth(ctx context.Context) error {
	g := new(errgroup.Group)
	mtx := new(sync.Mutex)
	statuses := make(map[types.Provider]types.HealthStatus)

	for _, name := range s.registry.List() {
		name := name
		adapter, ok := s.registry.Get(name)
		if !ok {
			continue
		}

		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
			defer cancel()

			status := adapter.HealthCheck(probeCtx)
			if !status.IsHealthy {
				s.logger.Warn().
					Str("provider", name.String()).
					Str("last_error", status.LastError).
					Msg("provider unhealthy")
			}

			mtx.Lock()
			defer mtx.Unlock()
			statuses[name] = status
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	s.mtx.Lock()
	s.health = statuses
	s.lastHealthSyncTS = time.Now()
	s.mtx.Unlock()
	return nil
}

// Health returns a copy of the latest adapter health snapshot.
func (s *Service) Health() map[types.Provider]types.HealthStatus {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	statuses := make(map[types.Provider]types.HealthStatus, len(s.health))
	for name, status := range s.health {
		statuses[name] = status
	}
	return statuses
}

// LastHealthSyncTimestamp returns the latest timestamp at which adapter
// health was probed.
func (s *Service) LastHealthSyncTimestamp() time.Time {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	return s.lastHealthSyncTS
}

// Registry exposes the provider registry for callers that render adapter
// capabilities and stats.
func (s *Service) Registry() *provider.Registry {
	return s.registry
}

// Journal exposes the request outcome journal, nil when journaling is off.
func (s *Service) Journal() *history.RequestHistory {
	return s.journal
}

// ClearCache drops every cached oracle response.
func (s *Service) ClearCache(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Clear(ctx)
}

func (s *Service) journalOutcome(req types.OracleRequest, resp types.OracleResponse) {
	if s.journal == nil {
		return
	}
	if err := s.journal.AddOutcome(history.NewOutcome(req.DataType, resp)); err != nil {
		s.logger.Err(err).Msg("failed to journal request outcome")
	}
}

// compareThreshold applies the question's comparison operator. Questions
// without an explicit direction read as "above".
func compareThreshold(value, threshold decimal.Decimal, cmp types.Comparison) bool {
	switch cmp {
	case types.ComparisonLT:
		return value.LessThan(threshold)
	case types.ComparisonEQ:
		return value.Equal(threshold)
	default:
		return value.GreaterThan(threshold)
	}
}

// outcomeIndex maps a yes/no verdict onto the option list. Options spelling
// yes or no are matched by name; the positional fallback takes the first
// option as the affirmative.
func outcomeIndex(options []string, verdict bool) int {
	for i, option := range options {
		lower := strings.ToLower(strings.TrimSpace(option))
		if verdict && lower == "yes" {
			return i
		}
		if !verdict && lower == "no" {
			return i
		}
	}
	if verdict || len(options) == 1 {
		return 0
	}
	return 1
}

func dataSources(data map[string]any) []string {
	if individual, ok := data["individual_values"].(map[string]any); ok && len(individual) > 0 {
		sources := make([]string, 0, len(individual))
		for name := range individual {
			sources = append(sources, name)
		}
		sort.Strings(sources)
		return sources
	}
	if len(data) > 0 {
		return []string{"aggregated"}
	}
	return []string{"none"}
}

func consensusConfidence(data map[string]any) float64 {
	confidence := 0.6
	if c, ok := data["confidence"].(float64); ok {
		confidence = c
	}
	if confidence > deterministicConfidenceCap {
		confidence = deterministicConfidenceCap
	}
	if confidence < 0 {
		confidence = 0
	}
	return confidence
}
