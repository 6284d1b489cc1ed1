package oracle

import (
	"fmt"
	"time"

	"oracle-router/oracle/routing"
	"oracle-router/oracle/types"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// defaultDeviationThreshold defines how many 𝜎 a value can be away from the
// mean without being considered anomalous. This can be overridden in the
// config.
var defaultDeviationThreshold = decimal.RequireFromString("1.0")

const (
	// staleAfter is the freshness bound past which responses earn a refresh
	// recommendation.
	staleAfter = 15 * time.Minute

	// minValidationConfidence is the score below which the data set is
	// rejected for resolution use.
	minValidationConfidence = 0.5
)

// ValidateOracleData scores a set of oracle responses without AI assistance.
// Numeric readings outside deviationThreshold 𝜎 of the mean count as
// anomalies, freshness comes from the newest timestamp, and reliability from
// the capability table of the contributing providers.
func ValidateOracleData(
	logger zerolog.Logger,
	responses []types.OracleResponse,
	deviationThreshold decimal.Decimal,
) types.OracleDataValidation {
	if deviationThreshold.IsZero() {
		deviationThreshold = defaultDeviationThreshold
	}

	var usable []types.OracleResponse
	for _, resp := range responses {
		if !resp.Failed() {
			usable = append(usable, resp)
		}
	}

	if len(usable) == 0 {
		return types.OracleDataValidation{
			IsValid:         false,
			Issues:          []string{"no successful oracle responses to validate"},
			Recommendations: []string{"Retry the query or widen the provider set"},
		}
	}

	validation := types.OracleDataValidation{
		Issues:          []string{},
		Recommendations: []string{},
	}

	var (
		values    []decimal.Decimal
		providers []types.Provider
	)
	confidences := make([]float64, 0, len(usable))
	for _, resp := range usable {
		confidences = append(confidences, resp.Confidence)
		if v, ok := numericValue(resp.Data); ok {
			values = append(values, v)
			providers = append(providers, resp.Provider)
		}
	}

	score := meanFloats(confidences)

	// We accept any values that are within T𝜎 of the mean, or for which we
	// couldn't get 𝜎. T is the deviation threshold, either set by the config
	// or defaulted to 1.
	deviation, mean, err := StandardDeviation(values)
	if err == nil {
		margin := deviation.Mul(deviationThreshold)
		for i, v := range values {
			if isBetween(v, mean, margin) {
				continue
			}

			validation.AnomalyDetected = true
			score -= discrepancyPenalty
			validation.Issues = append(validation.Issues, fmt.Sprintf(
				"%s reports %s, outside %s of the mean %s",
				providers[i], v, margin, mean,
			))
			logger.Debug().
				Str("provider", providers[i].String()).
				Str("value", v.String()).
				Str("mean", mean.String()).
				Str("margin", margin.String()).
				Msg("deviating value")
		}
	}

	newest := latestTimestamp(usable)
	if newest == 0 {
		validation.Issues = append(validation.Issues, "responses carry no timestamps")
	} else {
		freshness := int64(time.Since(time.UnixMilli(newest)) / time.Second)
		if freshness < 0 {
			freshness = 0
		}
		validation.DataFreshnessSeconds = freshness

		if freshness > int64(staleAfter/time.Second) {
			validation.Issues = append(validation.Issues, fmt.Sprintf(
				"newest response is %ds old", freshness,
			))
			validation.Recommendations = append(validation.Recommendations,
				"Refresh the oracle data before resolution")
		}
	}

	// providers missing from the capability table are scored by their own
	// reported confidence
	var reliability float64
	for _, resp := range usable {
		if caps, ok := routing.CapabilitiesFor(resp.Provider); ok {
			reliability += caps.Reliability
		} else {
			reliability += resp.Confidence
		}
	}
	validation.SourceReliability = reliability / float64(len(usable))

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	validation.ConfidenceScore = score

	if validation.AnomalyDetected {
		validation.Recommendations = append(validation.Recommendations,
			"Exclude the deviating providers and re-aggregate")
	}
	if score < minValidationConfidence {
		validation.Issues = append(validation.Issues, fmt.Sprintf(
			"confidence score %.2f below threshold %.2f", score, minValidationConfidence,
		))
	}

	validation.IsValid = !validation.AnomalyDetected && score >= minValidationConfidence
	return validation
}

func isBetween(v, mean, margin decimal.Decimal) bool {
	return v.GreaterThanOrEqual(mean.Sub(margin)) &&
		v.LessThanOrEqual(mean.Add(margin))
}
