package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type (
	// OracleResponse is the canonical response every adapter produces.
	// Provider-level failures set Error and zero Confidence instead of
	// surfacing as Go errors, so callers can treat degraded answers as data.
	OracleResponse struct {
		Data            any             `json:"data"`
		Provider        Provider        `json:"provider"`
		TimestampUnixMs int64           `json:"timestamp_unix_ms"`
		Confidence      float64         `json:"confidence"`
		LatencyMs       int64           `json:"latency_ms"`
		CostUSD         decimal.Decimal `json:"cost_usd"`
		Metadata        map[string]any  `json:"metadata,omitempty"`
		Error           *Error          `json:"error"`
	}

	// RoutingResponse is the contract the routing core returns.
	RoutingResponse struct {
		CanResolve         bool             `json:"can_resolve"`
		Selected           Provider         `json:"selected_oracle,omitempty"`
		Reasoning          string           `json:"reasoning"`
		OracleConfig       map[string]any   `json:"oracle_config,omitempty"`
		Alternatives       []Provider       `json:"alternatives"`
		DataType           DataCategory     `json:"data_type,omitempty"`
		RequiredFeeds      []string         `json:"required_feeds"`
		EstimatedCostUSD   *decimal.Decimal `json:"estimated_cost_usd,omitempty"`
		EstimatedLatencyMs *int64           `json:"estimated_latency_ms,omitempty"`
		Confidence         float64          `json:"confidence_score"`
		ResolutionMethod   ResolutionMethod `json:"resolution_method,omitempty"`
		UpdateFrequency    UpdateFrequency  `json:"update_frequency,omitempty"`
	}

	// AggregatedOracleData is the consensus record the aggregator returns.
	AggregatedOracleData struct {
		AggregationMethod   string           `json:"aggregation_method"`
		AggregatedValue     any              `json:"aggregated_value"`
		IndividualValues    map[Provider]any `json:"individual_values"`
		Confidence          float64          `json:"confidence"`
		DiscrepancyDetected bool             `json:"discrepancy_detected"`
		TimestampUnixMs     int64            `json:"timestamp_unix_ms"`
	}

	// HealthStatus is a point-in-time health report for one adapter.
	HealthStatus struct {
		IsHealthy      bool    `json:"is_healthy"`
		ResponseTimeMs int64   `json:"response_time_ms"`
		ErrorRate      float64 `json:"error_rate"`
		LastError      string  `json:"last_error,omitempty"`
		UptimePct      float64 `json:"uptime_pct"`
	}
)

// Aggregation methods emitted in AggregatedOracleData.
const (
	AggregationMedian   = "median"
	AggregationWeighted = "weighted"
	AggregationLatest   = "latest"
)

// Sentinel provider values: ProviderFailed marks a response after every
// candidate adapter was exhausted, ProviderNone a request no adapter could
// serve at all.
const (
	ProviderFailed Provider = "failed"
	ProviderNone   Provider = "none"
)

// NewErrorResponse returns the non-throwing failure response for a provider
// level error.
func NewErrorResponse(provider Provider, err error, latency time.Duration) OracleResponse {
	return OracleResponse{
		Provider:        provider,
		TimestampUnixMs: time.Now().UnixMilli(),
		Confidence:      0,
		LatencyMs:       latency.Milliseconds(),
		CostUSD:         decimal.Zero,
		Error:           AsError(err),
	}
}

// Failed reports whether the response carries a provider failure.
func (r OracleResponse) Failed() bool {
	return r.Error != nil
}
