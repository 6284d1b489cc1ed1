// Package v1 is the HTTP façade of the router: question routing, price
// aggregation, market resolution and provider introspection over JSON, plus
// a websocket stream of aggregated prices and a prometheus scrape endpoint.
package v1

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"github.com/mitchellh/mapstructure"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"oracle-router/config"
	"oracle-router/oracle/routing"
	"oracle-router/oracle/types"
)

// APIPathPrefix is the prefix all v1 routes are mounted under.
const APIPathPrefix = "/api/v1"

// statsWindow is how far back the providers endpoint reads journaled
// outcomes when reporting per-provider statistics.
const statsWindow = 24 * time.Hour

// Router defines a router wrapper used for registering v1 API routes.
type Router struct {
	logger zerolog.Logger
	cfg    config.Config
	oracle Oracle
}

func New(logger zerolog.Logger, cfg config.Config, oracle Oracle) *Router {
	return &Router{
		logger: logger.With().Str("module", "router").Logger(),
		cfg:    cfg,
		oracle: oracle,
	}
}

// RegisterRoutes register v1 API routes on the provided sub-router.
func (r *Router) RegisterRoutes(rtr *mux.Router, prefix string) {
	v1Router := rtr.PathPrefix(prefix).Subrouter()

	corsWrapper := cors.New(cors.Options{
		AllowedOrigins: r.cfg.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-Id"},
		Debug:          r.cfg.Server.VerboseCORS,
	})

	mChain := alice.New(
		corsWrapper.Handler,
		requestIDMiddleware,
		r.recoveryMiddleware,
		r.loggingMiddleware,
	)

	v1Router.Handle(
		"/route",
		mChain.ThenFunc(r.routeHandler()),
	).Methods(http.MethodPost)

	v1Router.Handle(
		"/price/{asset}",
		mChain.ThenFunc(r.priceHandler()),
	).Methods(http.MethodGet)

	v1Router.Handle(
		"/resolve",
		mChain.ThenFunc(r.resolveHandler()),
	).Methods(http.MethodPost)

	v1Router.Handle(
		"/providers",
		mChain.ThenFunc(r.providersHandler()),
	).Methods(http.MethodGet)

	v1Router.Handle(
		"/healthz",
		mChain.ThenFunc(r.healthzHandler()),
	).Methods(http.MethodGet)

	v1Router.Handle(
		"/metrics",
		mChain.Then(promhttp.Handler()),
	).Methods(http.MethodGet)

	v1Router.Handle(
		"/prices/ws",
		mChain.ThenFunc(r.streamHandler()),
	).Methods(http.MethodGet)
}

func (r *Router) routeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var routingReq types.RoutingRequest
		if err := json.NewDecoder(req.Body).Decode(&routingReq); err != nil {
			writeErrorResponse(w, types.Errorf(
				types.KindValidation, "invalid request body: %v", err))
			return
		}

		routed := r.oracle.RouteQuestion(req.Context(), routingReq)
		writeSuccessResponse(w, http.StatusOK, routed)
	}
}

func (r *Router) priceHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		asset := mux.Vars(req)["asset"]

		providers, err := parseProvidersParam(req.URL.Query()["providers"])
		if err != nil {
			writeErrorResponse(w, types.AsError(err))
			return
		}

		data, err := r.oracle.GetPrice(req.Context(), asset, providers...)
		if err != nil {
			writeErrorResponse(w, types.AsError(err))
			return
		}

		writeSuccessResponse(w, http.StatusOK, data)
	}
}

type resolveRequest struct {
	Question   string         `json:"question"`
	Options    []any          `json:"options"`
	OracleData map[string]any `json:"oracle_data,omitempty"`
}

func (r *Router) resolveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var body resolveRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeErrorResponse(w, types.Errorf(
				types.KindValidation, "invalid request body: %v", err))
			return
		}

		options, err := normalizeOptions(body.Options)
		if err != nil {
			writeErrorResponse(w, types.AsError(err))
			return
		}

		resolution, err := r.oracle.Resolve(req.Context(), body.Question, options, body.OracleData)
		if err != nil {
			writeErrorResponse(w, types.AsError(err))
			return
		}

		writeSuccessResponse(w, http.StatusOK, resolution)
	}
}

type (
	providerStats struct {
		Requests     int64   `json:"requests"`
		Succeeded    int64   `json:"succeeded"`
		CacheHits    int64   `json:"cache_hits"`
		AvgLatencyMs float64 `json:"avg_latency_ms"`
	}

	providerDetail struct {
		Provider         types.Provider         `json:"provider"`
		Categories       []types.DataCategory   `json:"categories"`
		Chains           []string               `json:"chains"`
		UpdateFrequency  types.UpdateFrequency  `json:"update_frequency"`
		LatencyMs        int64                  `json:"latency_ms"`
		Reliability      float64                `json:"reliability"`
		CostUSD          decimal.Decimal        `json:"cost_usd"`
		ResolutionMethod types.ResolutionMethod `json:"resolution_method"`
		Health           *types.HealthStatus    `json:"health,omitempty"`
		Stats            *providerStats         `json:"stats,omitempty"`
	}

	providersResponse struct {
		Providers []providerDetail `json:"providers"`
	}
)

func (r *Router) providersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		health := r.oracle.Health()
		journal := r.oracle.Journal()

		names := r.oracle.Registry().List()
		details := make([]providerDetail, 0, len(names))
		for _, name := range names {
			detail := providerDetail{Provider: name}

			if caps, ok := routing.CapabilitiesFor(name); ok {
				detail.Categories = caps.Categories
				detail.Chains = caps.Chains
				detail.UpdateFrequency = caps.UpdateFreq
				detail.LatencyMs = caps.LatencyMs
				detail.Reliability = caps.Reliability
				detail.CostUSD = caps.CostUSD
				detail.ResolutionMethod = caps.Resolution
			}

			if status, ok := health[name]; ok {
				status := status
				detail.Health = &status
			}

			if journal != nil {
				since := time.Now().Add(-statsWindow)
				if stats, err := journal.Stats(name, since); err == nil {
					detail.Stats = &providerStats{
						Requests:     stats.Requests,
						Succeeded:    stats.Succeeded,
						CacheHits:    stats.CacheHits,
						AvgLatencyMs: stats.AvgLatencyMs,
					}
				}
			}

			details = append(details, detail)
		}

		writeSuccessResponse(w, http.StatusOK, providersResponse{Providers: details})
	}
}

type healthZResponse struct {
	Status string `json:"status"`
	Oracle struct {
		LastSync string `json:"last_sync"`
	} `json:"oracle"`
}

func (r *Router) healthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		resp := healthZResponse{Status: "available"}

		if lastSync := r.oracle.LastHealthSyncTimestamp(); !lastSync.IsZero() {
			resp.Oracle.LastSync = lastSync.Format(time.RFC3339)
		}

		writeSuccessResponse(w, http.StatusOK, resp)
	}
}

// parseProvidersParam reads the ?providers= query values, accepting both
// repeated parameters and comma-separated lists.
func parseProvidersParam(values []string) ([]types.Provider, error) {
	var providers []types.Provider
	for _, value := range values {
		for _, name := range strings.Split(value, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			p, ok := types.ParseProvider(name)
			if !ok {
				return nil, types.Errorf(types.KindValidation, "unknown provider: %s", name)
			}
			providers = append(providers, p)
		}
	}
	return providers, nil
}

// normalizeOptions flattens outcome options that arrive either as plain
// strings or as market-style objects carrying a name or label field.
func normalizeOptions(raw []any) ([]string, error) {
	options := make([]string, 0, len(raw))
	for _, entry := range raw {
		if name, ok := entry.(string); ok {
			options = append(options, name)
			continue
		}

		var opt struct {
			Name  string `mapstructure:"name"`
			Label string `mapstructure:"label"`
		}
		if err := mapstructure.Decode(entry, &opt); err != nil {
			return nil, types.Errorf(types.KindValidation, "unreadable outcome option: %v", err)
		}

		name := opt.Name
		if name == "" {
			name = opt.Label
		}
		if name == "" {
			return nil, types.NewError(types.KindValidation, "outcome option needs a name or label")
		}
		options = append(options, name)
	}
	return options, nil
}
