package types

import (
	"strings"
)

// AssetPair defines an asset quote pair consisting of a base and a quote.
// We primarily utilize the base for routing decisions and use the pair when
// building provider feed symbols.
type AssetPair struct {
	Base  string
	Quote string
}

// NewUSDPair returns the asset quoted in USD, the pair every price provider
// serves.
func NewUSDPair(base string) AssetPair {
	return AssetPair{Base: strings.ToUpper(base), Quote: "USD"}
}

// String implements the Stringer interface and defines a feed symbol for
// querying provider prices.
func (p AssetPair) String() string {
	return strings.ToUpper(p.Base + p.Quote)
}

// Join returns the base- and quote symbols seperated by provided string
func (p AssetPair) Join(seperator string) string {
	return strings.ToUpper(p.Base + seperator + p.Quote)
}
