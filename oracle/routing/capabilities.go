package routing

import (
	"strings"

	"oracle-router/oracle/types"

	"github.com/shopspring/decimal"
)

// Capabilities is the static capability record the routing engine scores a
// provider by. Costs and latencies are routing estimates, not billing data.
type Capabilities struct {
	Categories  []types.DataCategory
	UpdateFreq  types.UpdateFrequency
	Chains      []string
	LatencyMs   int64
	Reliability float64
	CostUSD     decimal.Decimal
	Specialties map[types.DataCategory][]string
	Resolution  types.ResolutionMethod
}

// oracleCapabilities is the routing capability table. Chains are lowercase,
// costs carry the precision they are quoted with so reasoning strings render
// stable.
var oracleCapabilities = map[types.Provider]Capabilities{
	types.ProviderChainlink: {
		Categories: []types.DataCategory{
			types.CategoryPrice, types.CategorySports, types.CategoryWeather,
			types.CategoryRandom, types.CategoryStocks, types.CategoryForex,
		},
		UpdateFreq:  types.UpdateHighFreq,
		Chains:      []string{"ethereum", "polygon", "arbitrum", "optimism", "avalanche", "bnb"},
		LatencyMs:   500,
		Reliability: 0.99,
		CostUSD:     decimal.RequireFromString("0.50"),
		Specialties: map[types.DataCategory][]string{
			types.CategorySports:  {"TheRundown", "SportsdataIO"},
			types.CategoryWeather: {"AccuWeather", "OpenWeather"},
			types.CategoryStocks:  {"Tiingo", "AlphaVantage"},
		},
		Resolution: types.ResolutionAggregated,
	},
	types.ProviderPyth: {
		Categories: []types.DataCategory{
			types.CategoryPrice, types.CategoryStocks, types.CategoryForex,
			types.CategoryCommodities,
		},
		UpdateFreq:  types.UpdateRealtime,
		Chains:      []string{"solana", "ethereum", "arbitrum", "optimism", "base"},
		LatencyMs:   100,
		Reliability: 0.98,
		CostUSD:     decimal.RequireFromString("0.10"),
		Specialties: map[types.DataCategory][]string{
			types.CategoryStocks: {"NYSE", "NASDAQ"},
			types.CategoryForex:  {"major_pairs"},
		},
		Resolution: types.ResolutionDirectPull,
	},
	types.ProviderBand: {
		Categories: []types.DataCategory{
			types.CategoryPrice, types.CategoryStocks, types.CategoryForex,
			types.CategoryCommodities, types.CategoryCustom,
		},
		UpdateFreq:  types.UpdateMediumFreq,
		Chains:      []string{"cosmos", "ethereum", "binance", "polygon"},
		LatencyMs:   1000,
		Reliability: 0.95,
		CostUSD:     decimal.RequireFromString("0.30"),
		Specialties: map[types.DataCategory][]string{
			types.CategoryCustom: {"any_api_endpoint"},
		},
		Resolution: types.ResolutionCrossChain,
	},
	types.ProviderUMA: {
		Categories: []types.DataCategory{
			types.CategoryCustom, types.CategoryEvents, types.CategoryEconomic,
			types.CategoryElection,
		},
		UpdateFreq: types.UpdateOnDemand,
		Chains:     []string{"ethereum", "polygon", "arbitrum"},
		// Full liveness window for the undisputed path.
		LatencyMs:   7200000,
		Reliability: 0.97,
		// Includes the proposal bond.
		CostUSD: decimal.RequireFromString("100.00"),
		Specialties: map[types.DataCategory][]string{
			types.CategoryElection: {"human_verified"},
			types.CategoryEvents:   {"dispute_resolution"},
			types.CategoryEconomic: {"fed_decisions"},
		},
		Resolution: types.ResolutionOptimisticHuman,
	},
	types.ProviderAPI3: {
		Categories: []types.DataCategory{
			types.CategoryPrice, types.CategoryWeather, types.CategorySports,
			types.CategoryCustom, types.CategoryNFT,
		},
		UpdateFreq:  types.UpdateMediumFreq,
		Chains:      []string{"ethereum", "polygon", "avalanche", "bnb", "arbitrum"},
		LatencyMs:   800,
		Reliability: 0.96,
		CostUSD:     decimal.RequireFromString("0.25"),
		Specialties: map[types.DataCategory][]string{
			types.CategoryWeather: {"direct_noaa"},
			types.CategoryNFT:     {"opensea_floor", "blur_floor"},
		},
		Resolution: types.ResolutionFirstParty,
	},
}

// CapabilitiesFor returns the capability record for a provider.
func CapabilitiesFor(p types.Provider) (Capabilities, bool) {
	c, ok := oracleCapabilities[p]
	return c, ok
}

// SupportsCategory reports whether the provider serves the category.
func (c Capabilities) SupportsCategory(category types.DataCategory) bool {
	for _, dc := range c.Categories {
		if dc == category {
			return true
		}
	}
	return false
}

// ServesAnyChain reports whether the provider serves at least one of the
// given chains. Chain names compare case-insensitively.
func (c Capabilities) ServesAnyChain(chains []string) bool {
	for _, want := range chains {
		want = strings.ToLower(want)
		for _, have := range c.Chains {
			if have == want {
				return true
			}
		}
	}
	return false
}

// HasSpecialty reports whether the provider has a measurable advantage for
// the category.
func (c Capabilities) HasSpecialty(category types.DataCategory) bool {
	_, ok := c.Specialties[category]
	return ok
}

// ResolutionMethodFor returns how the provider finalizes answers, falling
// back to automated resolution for providers outside the capability table.
func ResolutionMethodFor(p types.Provider) types.ResolutionMethod {
	if c, ok := oracleCapabilities[p]; ok {
		return c.Resolution
	}
	return types.ResolutionAutomated
}
