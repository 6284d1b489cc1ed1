package types

import "strings"

// Provider identifies an oracle network the router can select. The internal
// spelling is lowercase; contract-compatible outputs use the uppercase
// selector enum, where Band is carried as the custom-oracle slot.
type Provider string

const (
	ProviderChainlink Provider = "chainlink"
	ProviderPyth      Provider = "pyth"
	ProviderBand      Provider = "band"
	ProviderUMA       Provider = "uma"
	ProviderAPI3      Provider = "api3"
)

// Providers lists every known provider in a stable order.
var Providers = []Provider{
	ProviderChainlink,
	ProviderPyth,
	ProviderBand,
	ProviderUMA,
	ProviderAPI3,
}

// String cast provider to string.
func (p Provider) String() string {
	return string(p)
}

// ContractValue returns the uppercase selector enum value used in
// contract-compatible outputs. Band has no dedicated selector slot and is
// emitted as CUSTOM.
func (p Provider) ContractValue() string {
	if p == ProviderBand {
		return "CUSTOM"
	}
	return strings.ToUpper(string(p))
}

// ParseProvider maps a wire value to a known provider. Both the lowercase
// internal spelling and the uppercase contract spelling are accepted; the
// contract's CUSTOM selector maps back to Band.
func ParseProvider(s string) (Provider, bool) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "custom" {
		return ProviderBand, true
	}
	p := Provider(v)
	for _, known := range Providers {
		if p == known {
			return known, true
		}
	}
	return "", false
}

// ContractSelectors lists the valid selector enum values for LLM-facing and
// contract-facing outputs.
var ContractSelectors = []string{"CHAINLINK", "PYTH", "UMA", "API3", "CUSTOM"}
