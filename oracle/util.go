package oracle

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

// Median returns the midpoint of values. An even count averages the two
// middle values.
func Median(values []decimal.Decimal) (decimal.Decimal, error) {
	if len(values) == 0 {
		return decimal.Decimal{}, fmt.Errorf("no values supplied")
	}

	sorted := make([]decimal.Decimal, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].LessThan(sorted[j])
	})

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return sorted[mid-1].Add(sorted[mid]).Div(decimal.NewFromInt(2)), nil
	}
	return sorted[mid], nil
}

// WeightedMean computes the weight-adjusted mean of the values.
// If all weights are 0, treat all weights as 1 and effectively return the
// plain average instead.
func WeightedMean(values, weights []decimal.Decimal) (decimal.Decimal, error) {
	if len(values) == 0 {
		return decimal.Decimal{}, fmt.Errorf("no values supplied")
	}
	if len(values) != len(weights) {
		return decimal.Decimal{}, fmt.Errorf("%d values against %d weights", len(values), len(weights))
	}

	weightSum := decimal.Zero
	for _, w := range weights {
		weightSum = weightSum.Add(w)
	}

	weightedSum := decimal.Zero
	for i, v := range values {
		weight := weights[i]
		if weightSum.IsZero() {
			weight = decimal.NewFromInt(1)
		}

		// weightedSum = Σ {V * W} for all values
		weightedSum = weightedSum.Add(v.Mul(weight))
	}

	if weightSum.IsZero() {
		weightSum = decimal.NewFromInt(int64(len(values)))
	}

	return weightedSum.Div(weightSum), nil
}

// Spread returns the relative spread (max−min)/max of values, or zero when
// the maximum is not positive.
func Spread(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}

	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v.LessThan(min) {
			min = v
		}
		if v.GreaterThan(max) {
			max = v
		}
	}

	if max.Sign() <= 0 {
		return decimal.Zero
	}
	return max.Sub(min).Div(max)
}

// StandardDeviation returns standard deviation and mean of values.
// Will skip calculating if there are less than 3 values.
func StandardDeviation(values []decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	// Skip if standard deviation would not be meaningful
	if len(values) < 3 {
		err := fmt.Errorf("not enough values to calculate deviation")
		return decimal.Decimal{}, decimal.Decimal{}, err
	}

	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
	}

	numValues := int64(len(values))
	mean := sum.Div(decimal.NewFromInt(numValues))
	varianceSum := decimal.Zero

	for _, v := range values {
		deviation := v.Sub(mean)
		varianceSum = varianceSum.Add(deviation.Mul(deviation))
	}

	variance := varianceSum.Div(decimal.NewFromInt(numValues))

	f, _ := variance.Float64()
	deviation := decimal.NewFromFloat(math.Sqrt(f))

	return deviation, mean, nil
}

// payloadValueKeys are the map keys adapter payloads carry their scalar
// under, in probe order.
var payloadValueKeys = []string{"aggregated_value", "price", "value", "rate"}

// numericValue extracts the scalar a response payload carries. Adapters wrap
// prices as {"price": ...} and generic readings as {"value": ...}; payloads
// read back from the cache decode numbers as float64.
func numericValue(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case decimal.Decimal:
		return t, true
	case *decimal.Decimal:
		if t == nil {
			return decimal.Decimal{}, false
		}
		return *t, true
	case float64:
		return decimal.NewFromFloat(t), true
	case float32:
		return decimal.NewFromFloat32(t), true
	case int:
		return decimal.NewFromInt(int64(t)), true
	case int64:
		return decimal.NewFromInt(t), true
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		return d, err == nil
	case map[string]any:
		for _, key := range payloadValueKeys {
			if inner, ok := t[key]; ok {
				if d, ok := numericValue(inner); ok {
					return d, true
				}
			}
		}
	}
	return decimal.Decimal{}, false
}

func medianFloats(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func minFloats(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	min := values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
	}
	return min
}

func meanFloats(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
