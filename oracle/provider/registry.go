package provider

import (
	"context"
	"sort"
	"sync"

	"oracle-router/oracle/types"

	"github.com/rs/zerolog"
)

// Registry tracks the live adapters and routes queries to the best one.
type Registry struct {
	logger   zerolog.Logger
	mtx      sync.RWMutex
	adapters map[types.Provider]Adapter
}

func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		logger:   logger.With().Str("module", "registry").Logger(),
		adapters: map[types.Provider]Adapter{},
	}
}

// Register adds an adapter, replacing a previous one registered under the
// same name.
func (r *Registry) Register(a Adapter) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	if _, ok := r.adapters[a.Name()]; ok {
		r.logger.Warn().Str("provider", a.Name().String()).Msg("replacing registered adapter")
	}
	r.adapters[a.Name()] = a
	r.logger.Info().Str("provider", a.Name().String()).Msg("registered oracle adapter")
}

// Unregister removes the named adapter if present.
func (r *Registry) Unregister(name types.Provider) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	if _, ok := r.adapters[name]; !ok {
		return
	}
	delete(r.adapters, name)
	r.logger.Info().Str("provider", name.String()).Msg("unregistered oracle adapter")
}

// Get returns the named adapter.
func (r *Registry) Get(name types.Provider) (Adapter, bool) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	a, ok := r.adapters[name]
	return a, ok
}

// List returns the registered provider names in alphabetical order.
func (r *Registry) List() []types.Provider {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	names := make([]types.Provider, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// AdaptersFor returns every adapter that supports the category, in
// alphabetical order so callers start from a deterministic set.
func (r *Registry) AdaptersFor(category types.DataCategory) []Adapter {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	adapters := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		for _, c := range a.SupportedCategories() {
			if c == category {
				adapters = append(adapters, a)
				break
			}
		}
	}
	sort.Slice(adapters, func(i, j int) bool { return adapters[i].Name() < adapters[j].Name() })
	return adapters
}

// QueryBest resolves the request against the best available adapter, failing
// over down the ranking until one succeeds. The returned response carries the
// provider that answered, or the "none"/"failed" sentinel when no adapter
// could serve or all were exhausted.
func (r *Registry) QueryBest(
	ctx context.Context,
	req types.OracleRequest,
	preferred ...types.Provider,
) (types.OracleResponse, error) {
	if err := req.Validate(); err != nil {
		return types.OracleResponse{}, err
	}

	candidates := r.AdaptersFor(req.DataType)
	if len(preferred) > 0 {
		keep := make(map[types.Provider]struct{}, len(preferred))
		for _, name := range preferred {
			keep[name] = struct{}{}
		}
		filtered := make([]Adapter, 0, len(candidates))
		for _, a := range candidates {
			if _, ok := keep[a.Name()]; ok {
				filtered = append(filtered, a)
			}
		}
		candidates = filtered
	}

	if len(candidates) == 0 {
		err := types.Errorf(types.KindRouting, "no adapters available for data type: %s", req.DataType)
		return types.NewErrorResponse(types.ProviderNone, err, 0), nil
	}

	rankAdapters(candidates)

	var lastErr *types.Error
	for _, a := range candidates {
		if err := ctx.Err(); err != nil {
			return types.OracleResponse{}, types.AsError(err)
		}

		resp, err := a.Query(ctx, req)
		if err != nil {
			lastErr = types.AsError(err)
			continue
		}
		if !resp.Failed() {
			return resp, nil
		}

		lastErr = resp.Error
		r.logger.Debug().
			Str("provider", a.Name().String()).
			Str("error", lastErr.Message).
			Msg("adapter failed, trying next")
	}

	err := types.Errorf(types.KindProvider, "all adapters failed. last error: %s", lastErr.Message)
	return types.NewErrorResponse(types.ProviderFailed, err, 0), nil
}

// rankAdapters orders candidates for failover: success rate first, average
// latency second, name as the deterministic tie break.
func rankAdapters(adapters []Adapter) {
	stats := make(map[types.Provider]Stats, len(adapters))
	for _, a := range adapters {
		stats[a.Name()] = a.Stats()
	}

	sort.SliceStable(adapters, func(i, j int) bool {
		si, sj := stats[adapters[i].Name()], stats[adapters[j].Name()]
		if si.SuccessRate != sj.SuccessRate {
			return si.SuccessRate > sj.SuccessRate
		}
		if si.AvgLatencyMs != sj.AvgLatencyMs {
			return si.AvgLatencyMs < sj.AvgLatencyMs
		}
		return adapters[i].Name() < adapters[j].Name()
	})
}
