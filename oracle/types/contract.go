package types

import (
	"encoding/hex"
	"math/big"
	"regexp"

	"github.com/go-playground/validator/v10"
)

// Contract-compatible wire shapes. These are the structs LLM outputs must
// validate against and on-chain encoders consume; field names and constraints
// are stable.

var (
	contractValidate = newContractValidator()

	addressRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	bytes32Regex = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
)

type (
	// OracleData is the generic on-chain oracle payload.
	OracleData struct {
		Value      *big.Int `json:"value" validate:"required"`
		Timestamp  int64    `json:"timestamp" validate:"gte=0"`
		Confidence int64    `json:"confidence" validate:"gte=0,lte=10000"`
		DataID     string   `json:"data_id" validate:"required,hexbytes32"`
		Source     string   `json:"source" validate:"required"`
	}

	// PriceData is the on-chain price feed payload.
	PriceData struct {
		Price      *big.Int `json:"price" validate:"required"`
		Timestamp  int64    `json:"timestamp" validate:"gte=0"`
		Decimals   uint8    `json:"decimals" validate:"lte=18"`
		Confidence int64    `json:"confidence" validate:"gte=0"`
		FeedID     string   `json:"feed_id" validate:"required,hexbytes32"`
	}

	// ResolutionData is the on-chain resolution payload.
	ResolutionData struct {
		Result    *big.Int `json:"result" validate:"required"`
		Resolved  bool     `json:"resolved"`
		Timestamp int64    `json:"timestamp" validate:"gte=0"`
		Proof     string   `json:"proof,omitempty"`
		Metadata  string   `json:"metadata,omitempty"`
	}

	// RouteResult is the on-chain routing outcome.
	RouteResult struct {
		Success          bool     `json:"success"`
		SelectedProvider string   `json:"selected_provider" validate:"required,oneof=CHAINLINK PYTH UMA API3 CUSTOM"`
		OracleAddress    string   `json:"oracle_address" validate:"required,hexaddress"`
		EstimatedCost    *big.Int `json:"estimated_cost" validate:"required"`
		Reason           string   `json:"reason"`
	}

	// OracleRoutingResponse is the schema an LLM routing enhancement must
	// produce.
	OracleRoutingResponse struct {
		SelectedOracle  string   `json:"selected_oracle" validate:"required,oneof=CHAINLINK PYTH UMA API3 CUSTOM"`
		Reasoning       string   `json:"reasoning" validate:"required,min=50"`
		Confidence      float64  `json:"confidence" validate:"gte=0,lte=1"`
		ConfidenceBoost float64  `json:"confidence_boost,omitempty" validate:"gte=0,lte=0.5"`
		EstimatedCost   *float64 `json:"estimated_cost,omitempty" validate:"omitempty,gte=0"`
		EstimatedTime   *int64   `json:"estimated_time,omitempty" validate:"omitempty,gte=0"`
		FallbackOptions []string `json:"fallback_options" validate:"dive,oneof=CHAINLINK PYTH UMA API3 CUSTOM"`
	}

	// PredictionMarketResolution is the schema an LLM market resolution must
	// produce.
	PredictionMarketResolution struct {
		WinningOutcome  uint8    `json:"winning_outcome"`
		ResolutionValue *int64   `json:"resolution_value,omitempty"`
		Confidence      float64  `json:"confidence" validate:"gte=0,lte=1"`
		DataSources     []string `json:"data_sources" validate:"required,min=1,dive,required"`
		Reasoning       string   `json:"reasoning" validate:"required,min=100"`
		Timestamp       int64    `json:"timestamp" validate:"gte=0"`
		ProofHash       string   `json:"proof_hash,omitempty" validate:"omitempty,hexbytes32"`
	}

	// OracleDataValidation reports the outcome of cross-checking oracle data.
	OracleDataValidation struct {
		IsValid              bool     `json:"is_valid"`
		ConfidenceScore      float64  `json:"confidence_score" validate:"gte=0,lte=1"`
		AnomalyDetected      bool     `json:"anomaly_detected"`
		DataFreshnessSeconds int64    `json:"data_freshness_seconds" validate:"gte=0"`
		SourceReliability    float64  `json:"source_reliability" validate:"gte=0,lte=1"`
		Issues               []string `json:"issues"`
		Recommendations      []string `json:"recommendations"`
	}
)

func newContractValidator() *validator.Validate {
	v := validator.New()

	// Registrations only fail for empty tag names.
	_ = v.RegisterValidation("hexaddress", func(fl validator.FieldLevel) bool {
		return addressRegex.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("hexbytes32", func(fl validator.FieldLevel) bool {
		return bytes32Regex.MatchString(fl.Field().String())
	})

	return v
}

// IsHexAddress reports whether s is a 0x-prefixed 20-byte hex address.
func IsHexAddress(s string) bool {
	return addressRegex.MatchString(s)
}

// IsHexBytes32 reports whether s is a 0x-prefixed 32-byte hex value.
func IsHexBytes32(s string) bool {
	return bytes32Regex.MatchString(s)
}

func validateContract(schema string, v any) error {
	if err := contractValidate.Struct(v); err != nil {
		return Errorf(KindAIService, "%s failed schema validation: %v", schema, err)
	}
	return nil
}

// Validate checks the struct against its schema constraints.
func (d OracleData) Validate() error {
	if err := validateContract("OracleData", d); err != nil {
		return err
	}
	if d.Value.Sign() < 0 {
		return Errorf(KindAIService, "OracleData value must not be negative")
	}
	return nil
}

// Validate checks the struct against its schema constraints.
func (d PriceData) Validate() error {
	if err := validateContract("PriceData", d); err != nil {
		return err
	}
	if d.Price.Sign() < 0 {
		return Errorf(KindAIService, "PriceData price must not be negative")
	}
	return nil
}

// Validate checks the struct against its schema constraints.
func (d ResolutionData) Validate() error {
	if err := validateContract("ResolutionData", d); err != nil {
		return err
	}
	if d.Proof != "" && !IsHexBytes32(d.Proof) && !bytesHexRegex.MatchString(d.Proof) {
		return Errorf(KindAIService, "ResolutionData proof must be 0x-prefixed hex")
	}
	return nil
}

// Validate checks the struct against its schema constraints.
func (r RouteResult) Validate() error {
	return validateContract("RouteResult", r)
}

// Validate checks the struct against its schema constraints.
func (r OracleRoutingResponse) Validate() error {
	return validateContract("OracleRoutingResponse", r)
}

// SelectedProvider returns the internal provider tag for the selector enum.
func (r OracleRoutingResponse) SelectedProvider() (Provider, bool) {
	return ParseProvider(r.SelectedOracle)
}

// Validate checks the struct against its schema constraints.
func (r PredictionMarketResolution) Validate() error {
	return validateContract("PredictionMarketResolution", r)
}

// Validate checks the struct against its schema constraints.
func (v OracleDataValidation) Validate() error {
	return validateContract("OracleDataValidation", v)
}

var bytesHexRegex = regexp.MustCompile(`^0x[0-9a-fA-F]*$`)

// FeedIDFromSymbol derives a deterministic bytes32 data id for a feed symbol,
// zero padded the way solidity packs short strings.
func FeedIDFromSymbol(symbol string) string {
	var b [32]byte
	copy(b[:], symbol)
	return "0x" + hex.EncodeToString(b[:])
}
