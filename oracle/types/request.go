package types

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Contract-compatible outputs carry costs and prices as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

type (
	// Requirements holds the structured facts extracted from a question.
	Requirements struct {
		Assets     []string         `json:"assets"`
		Threshold  *decimal.Decimal `json:"threshold,omitempty"`
		Comparison Comparison       `json:"comparison,omitempty"`
		Timeframe  time.Duration    `json:"timeframe,omitempty"`
		MarketType MarketType       `json:"market_type"`
	}

	// RoutingRequest is the immutable input to the routing engine.
	RoutingRequest struct {
		Question           string           `json:"question"`
		CategoryHint       DataCategory     `json:"category_hint,omitempty"`
		RequiredChains     []string         `json:"required_chains,omitempty"`
		MaxLatencyMs       int64            `json:"max_latency_ms,omitempty"`
		MaxCostUSD         *decimal.Decimal `json:"max_cost_usd,omitempty"`
		PreferredProviders []Provider       `json:"preferred_providers,omitempty"`
	}

	// OracleRequest is the canonical request every adapter accepts. Field
	// order matters: serialization is the stable wire shape and the input to
	// cache keys.
	OracleRequest struct {
		Query      string         `json:"query"`
		DataType   DataCategory   `json:"data_type"`
		Parameters map[string]any `json:"parameters"`
		TimeoutMs  int64          `json:"timeout_ms"`
		Format     RequestFormat  `json:"format"`
	}
)

const defaultRequestTimeout = 30 * time.Second

// NewOracleRequest returns a canonical request with the default timeout and
// JSON format.
func NewOracleRequest(query string, dataType DataCategory) OracleRequest {
	return OracleRequest{
		Query:      query,
		DataType:   dataType,
		Parameters: map[string]any{},
		TimeoutMs:  defaultRequestTimeout.Milliseconds(),
		Format:     FormatJSON,
	}
}

// Timeout returns the request deadline as a duration, falling back to the
// default when unset.
func (r OracleRequest) Timeout() time.Duration {
	if r.TimeoutMs <= 0 {
		return defaultRequestTimeout
	}
	return time.Duration(r.TimeoutMs) * time.Millisecond
}

// Validate checks the request fields an adapter depends on.
func (r OracleRequest) Validate() error {
	if r.Query == "" {
		return ErrEmptyQuery
	}
	if _, ok := ParseDataCategory(string(r.DataType)); !ok {
		return Errorf(KindValidation, "unknown data type %q", r.DataType)
	}
	return nil
}

// HasAsset reports whether the requirements name the given asset.
func (r Requirements) HasAsset(symbol string) bool {
	for _, a := range r.Assets {
		if a == symbol {
			return true
		}
	}
	return false
}
