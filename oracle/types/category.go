package types

import "strings"

// DataCategory classifies the kind of real-world data a question resolves
// against. Adapter capabilities and routing rules are keyed by category.
type DataCategory string

const (
	CategoryPrice       DataCategory = "price"
	CategorySports      DataCategory = "sports"
	CategoryWeather     DataCategory = "weather"
	CategoryElection    DataCategory = "election"
	CategoryEconomic    DataCategory = "economic"
	CategoryRandom      DataCategory = "random"
	CategoryCustom      DataCategory = "custom"
	CategoryEvents      DataCategory = "events"
	CategoryStocks      DataCategory = "stocks"
	CategoryForex       DataCategory = "forex"
	CategoryCommodities DataCategory = "commodities"
	CategoryNFT         DataCategory = "nft"
)

// Categories lists every known data category in a stable order.
var Categories = []DataCategory{
	CategoryPrice,
	CategorySports,
	CategoryWeather,
	CategoryElection,
	CategoryEconomic,
	CategoryRandom,
	CategoryCustom,
	CategoryEvents,
	CategoryStocks,
	CategoryForex,
	CategoryCommodities,
	CategoryNFT,
}

// String cast data category to string.
func (c DataCategory) String() string {
	return string(c)
}

// ParseDataCategory maps a wire value to a known category. Lowercase internal
// and uppercase contract spellings are both accepted.
func ParseDataCategory(s string) (DataCategory, bool) {
	c := DataCategory(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return known, true
		}
	}
	return "", false
}

type (
	// MarketType describes the outcome structure of a prediction market
	// question.
	MarketType string

	// Comparison is the operator a question applies to its threshold.
	Comparison string

	// ResolutionMethod describes how a provider finalizes an answer.
	ResolutionMethod string

	// UpdateFrequency describes how often a provider refreshes its data.
	UpdateFrequency string

	// RequestFormat is the encoding an adapter should request upstream.
	RequestFormat string
)

const (
	MarketBinary      MarketType = "BINARY"
	MarketCategorical MarketType = "CATEGORICAL"
	MarketScalar      MarketType = "SCALAR"

	ComparisonGT    Comparison = "GT"
	ComparisonLT    Comparison = "LT"
	ComparisonEQ    Comparison = "EQ"
	ComparisonRange Comparison = "RANGE"

	ResolutionDirect          ResolutionMethod = "direct"
	ResolutionAggregated      ResolutionMethod = "aggregated"
	ResolutionOptimistic      ResolutionMethod = "optimistic"
	ResolutionOptimisticHuman ResolutionMethod = "optimistic_human_verified"
	ResolutionDirectPull      ResolutionMethod = "direct_pull"
	ResolutionCrossChain      ResolutionMethod = "cross_chain_aggregated"
	ResolutionFirstParty      ResolutionMethod = "first_party_signed"
	ResolutionAIDetermined    ResolutionMethod = "ai_determined"
	ResolutionAutomated       ResolutionMethod = "automated"

	UpdateRealtime   UpdateFrequency = "realtime"
	UpdateHighFreq   UpdateFrequency = "high_freq"
	UpdateMediumFreq UpdateFrequency = "medium_freq"
	UpdateLowFreq    UpdateFrequency = "low_freq"
	UpdateHourly     UpdateFrequency = "hourly"
	UpdateDaily      UpdateFrequency = "daily"
	UpdateOnDemand   UpdateFrequency = "on_demand"

	FormatJSON   RequestFormat = "json"
	FormatXML    RequestFormat = "xml"
	FormatText   RequestFormat = "text"
	FormatBinary RequestFormat = "binary"
)
