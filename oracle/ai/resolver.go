package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"oracle-router/oracle/types"
)

// defaultQualityThreshold is the confidence floor oracle data must clear
// before a resolution may rely on it.
const defaultQualityThreshold = 0.8

// Resolver runs the schema-bound LLM calls that finalize markets: deciding
// the winning outcome from gathered oracle data, and cross-checking oracle
// payloads before they are trusted.
//
// Chain failures surface as errors so the caller can run its own
// deterministic resolution instead. Replies that arrive but cannot be used
// degrade to a conservative fallback record, never to an exception.
type Resolver struct {
	chain     *Chain
	preferred string
	logger    zerolog.Logger
}

// NewResolver wires the resolver over a client chain. preferred names the
// client to try first and may be empty.
func NewResolver(chain *Chain, preferred string, logger zerolog.Logger) *Resolver {
	return &Resolver{
		chain:     chain,
		preferred: preferred,
		logger:    logger.With().Str("module", "ai").Logger(),
	}
}

// ResolveMarket decides which outcome option wins given the oracle data
// gathered for the question. The winning index is clamped into the option
// range; a model picking an impossible index falls back to the first option
// with its confidence halved.
func (r *Resolver) ResolveMarket(
	ctx context.Context,
	question string,
	options []string,
	oracleData map[string]any,
	provider types.Provider,
) (types.PredictionMarketResolution, error) {
	if len(options) == 0 {
		return types.PredictionMarketResolution{}, types.NewError(
			types.KindValidation, "market resolution needs at least one outcome option",
		)
	}

	completion, err := r.chain.Generate(ctx, Request{
		System:      resolutionSystemPrompt(provider),
		User:        resolutionPrompt(question, options, oracleData),
		Temperature: 0.1,
		ForceJSON:   true,
	}, r.preferred)
	if err != nil {
		return types.PredictionMarketResolution{}, err
	}

	var resolution types.PredictionMarketResolution
	if err := json.Unmarshal([]byte(extractJSONObject(completion.Content)), &resolution); err != nil {
		r.logger.Warn().Err(err).Str("client", completion.Client).Msg("resolution reply unparseable")
		return fallbackResolution(err), nil
	}
	if err := resolution.Validate(); err != nil {
		r.logger.Warn().Err(err).Msg("resolution reply rejected")
		return fallbackResolution(err), nil
	}

	if int(resolution.WinningOutcome) >= len(options) {
		r.logger.Warn().
			Uint8("winning_outcome", resolution.WinningOutcome).
			Int("options", len(options)).
			Msg("model picked an outcome outside the option range")
		resolution.WinningOutcome = 0
		resolution.Confidence /= 2
		resolution.Reasoning += " (Corrected invalid outcome index)"
	}
	if resolution.Timestamp == 0 {
		resolution.Timestamp = time.Now().Unix()
	}

	return resolution, nil
}

// ValidateData cross-checks gathered oracle data points for plausibility,
// staleness and cross-source agreement. A threshold of 0 means the default.
// Scores under the threshold force IsValid to false regardless of what the
// model judged.
func (r *Resolver) ValidateData(
	ctx context.Context,
	points []map[string]any,
	expected types.DataCategory,
	threshold float64,
) (types.OracleDataValidation, error) {
	if len(points) == 0 {
		return types.OracleDataValidation{}, types.NewError(
			types.KindValidation, "no oracle data points to validate",
		)
	}
	if threshold <= 0 {
		threshold = defaultQualityThreshold
	}

	completion, err := r.chain.Generate(ctx, Request{
		System:    validationSystemPrompt(expected, threshold),
		User:      validationPrompt(points),
		ForceJSON: true,
	}, r.preferred)
	if err != nil {
		return types.OracleDataValidation{}, err
	}

	var validation types.OracleDataValidation
	if err := json.Unmarshal([]byte(extractJSONObject(completion.Content)), &validation); err != nil {
		r.logger.Warn().Err(err).Str("client", completion.Client).Msg("validation reply unparseable")
		return fallbackValidation(err), nil
	}
	if err := validation.Validate(); err != nil {
		r.logger.Warn().Err(err).Msg("validation reply rejected")
		return fallbackValidation(err), nil
	}

	if validation.ConfidenceScore < threshold {
		validation.IsValid = false
		validation.Issues = append(validation.Issues, fmt.Sprintf(
			"confidence score %.2f below threshold %.2f", validation.ConfidenceScore, threshold,
		))
	}

	return validation, nil
}

// fallbackResolution is the conservative answer when a model reply cannot be
// used: first option, low confidence, flagged for review.
func fallbackResolution(cause error) types.PredictionMarketResolution {
	return types.PredictionMarketResolution{
		WinningOutcome: 0,
		Confidence:     0.3,
		DataSources:    []string{"fallback"},
		Reasoning: fmt.Sprintf(
			"Could not parse resolution data properly: %v. Defaulting to the first option pending manual review of the raw oracle data.",
			cause,
		),
		Timestamp: time.Now().Unix(),
	}
}

// fallbackValidation marks the data unusable when the validation call itself
// failed, so no resolution ever trusts unchecked data.
func fallbackValidation(cause error) types.OracleDataValidation {
	return types.OracleDataValidation{
		IsValid:              false,
		ConfidenceScore:      0,
		AnomalyDetected:      true,
		DataFreshnessSeconds: 999999,
		SourceReliability:    0,
		Issues:               []string{fmt.Sprintf("validation system error: %v", cause)},
		Recommendations:      []string{"Manual review required due to validation error"},
	}
}
