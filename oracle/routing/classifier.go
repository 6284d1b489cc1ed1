package routing

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"oracle-router/oracle/types"

	"github.com/shopspring/decimal"
)

// hintConfidenceFloor is the minimum classification confidence a caller
// supplied category hint guarantees.
const hintConfidenceFloor = 0.8

// categoryKeywords drives category scoring. Matching is substring based on
// the lowercased question; multi-word phrases weigh double per word.
var categoryKeywords = map[types.DataCategory][]string{
	types.CategoryPrice: {
		"price", "cost", "value", "worth", "usd", "dollar", "euro", "btc",
		"eth", "bitcoin", "ethereum", "crypto", "stock", "share", "market cap",
		"above", "below", "exceed", "reach", "trade", "close", "open", "hit",
	},
	types.CategorySports: {
		"game", "match", "score", "win", "lose", "champion", "playoff",
		"tournament", "team", "player", "goal", "point", "nfl", "nba", "mlb",
		"super bowl", "world series", "finals", "mvp", "draft", "trade deadline",
		"season", "touchdown", "field goal", "home run", "strikeout", "penalty",
	},
	types.CategoryWeather: {
		"weather", "temperature", "rain", "snow", "wind", "hurricane",
		"storm", "celsius", "fahrenheit", "forecast", "climate", "drought",
	},
	types.CategoryElection: {
		"election", "vote", "poll", "candidate", "president", "senate",
		"congress", "governor", "ballot", "primary", "electoral", "democrat",
		"republican", "independent", "caucus", "debate", "campaign",
	},
	types.CategoryEconomic: {
		"gdp", "inflation", "cpi", "unemployment", "interest rate", "fed",
		"economy", "recession", "growth", "jobs report", "consumer", "fomc",
	},
}

// classifierOrder fixes the scan and tie-break order for category scores.
var classifierOrder = []types.DataCategory{
	types.CategoryPrice,
	types.CategorySports,
	types.CategoryWeather,
	types.CategoryElection,
	types.CategoryEconomic,
}

var (
	binaryOutcomePatterns = []*regexp.Regexp{
		regexp.MustCompile(`will\s+\w+\s+win`),
		regexp.MustCompile(`will\s+\w+\s+be\s+elected`),
		regexp.MustCompile(`will\s+\w+\s+happen`),
		regexp.MustCompile(`will\s+there\s+be`),
		regexp.MustCompile(`will\s+\w+\s+exceed`),
		regexp.MustCompile(`will\s+\w+\s+reach`),
	}

	priceThresholdPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?:above|below|over|under)\s+\$?[\d,]+`),
		regexp.MustCompile(`exceed\s+\$?[\d,]+`),
		regexp.MustCompile(`hit\s+\$?[\d,]+`),
	}

	cryptoAssetPattern   = regexp.MustCompile(`\b(BTC|ETH|SOL|AVAX|MATIC|BNB|USDC|USDT|ADA|DOT|LINK|UNI)\b`)
	tickerContextPattern = regexp.MustCompile(`\b([A-Z]{1,5})\s+(?:stock|share|price)`)

	thresholdPattern    = regexp.MustCompile(`\$?(\d[\d,]*\.?\d*)\s*([kKmMbB]|thousand|million|billion)?\b`)
	deadlineYearPattern = regexp.MustCompile(`(?:by|before)\s+(\d{4})`)
)

// stockCompanies maps company names to tickers, scanned in order so
// extraction stays deterministic.
var stockCompanies = []struct {
	name   string
	ticker string
}{
	{"tesla", "TSLA"},
	{"apple", "AAPL"},
	{"microsoft", "MSFT"},
	{"google", "GOOGL"},
	{"amazon", "AMZN"},
	{"netflix", "NFLX"},
	{"meta", "META"},
	{"nvidia", "NVDA"},
}

var fixedTimeframes = []struct {
	re       *regexp.Regexp
	duration time.Duration
}{
	{regexp.MustCompile(`by\s+end\s+of\s+(?:the\s+)?day`), 24 * time.Hour},
	{regexp.MustCompile(`by\s+end\s+of\s+(?:the\s+)?week`), 7 * 24 * time.Hour},
	{regexp.MustCompile(`by\s+end\s+of\s+(?:the\s+)?month`), 30 * 24 * time.Hour},
	{regexp.MustCompile(`by\s+end\s+of\s+(?:the\s+)?quarter`), 90 * 24 * time.Hour},
	{regexp.MustCompile(`by\s+end\s+of\s+(?:the\s+)?year`), 365 * 24 * time.Hour},
}

var relativeTimeframes = []struct {
	re   *regexp.Regexp
	unit time.Duration
}{
	{regexp.MustCompile(`within\s+(\d+)\s+hours?`), time.Hour},
	{regexp.MustCompile(`within\s+(\d+)\s+days?`), 24 * time.Hour},
	{regexp.MustCompile(`within\s+(\d+)\s+weeks?`), 7 * 24 * time.Hour},
	{regexp.MustCompile(`within\s+(\d+)\s+months?`), 30 * 24 * time.Hour},
}

// Classify determines the data category a question resolves against and a
// confidence in that call. A non-empty hint overrides the scored category and
// floors the confidence.
func Classify(question string, hint types.DataCategory) (types.DataCategory, float64) {
	category, confidence := scoreQuestion(question)
	if hint != "" {
		return hint, math.Max(confidence, hintConfidenceFloor)
	}
	return category, confidence
}

// scoreQuestion runs keyword scoring plus pattern boosts. Binary-outcome
// patterns boost the current leader before threshold patterns add to PRICE;
// an unscored question falls back to CUSTOM at low confidence.
func scoreQuestion(question string) (types.DataCategory, float64) {
	lower := strings.ToLower(question)

	scores := map[types.DataCategory]int{}
	for _, category := range classifierOrder {
		score := 0
		for _, keyword := range categoryKeywords[category] {
			if !strings.Contains(lower, keyword) {
				continue
			}
			if words := len(strings.Fields(keyword)); words > 1 {
				score += words * 2
			} else {
				score++
			}
		}
		if score > 0 {
			scores[category] = score
		}
	}

	for _, re := range binaryOutcomePatterns {
		if !re.MatchString(lower) {
			continue
		}
		if leader, ok := leadingCategory(scores); ok {
			scores[leader] += 3
		}
	}
	for _, re := range priceThresholdPatterns {
		if re.MatchString(lower) {
			scores[types.CategoryPrice] += 5
		}
	}

	leader, ok := leadingCategory(scores)
	if !ok {
		return types.CategoryCustom, 0.3
	}
	return leader, math.Min(float64(scores[leader])/10, 1.0)
}

func leadingCategory(scores map[types.DataCategory]int) (types.DataCategory, bool) {
	var (
		best      types.DataCategory
		bestScore int
		found     bool
	)
	for _, category := range classifierOrder {
		score, ok := scores[category]
		if !ok {
			continue
		}
		if !found || score > bestScore {
			best, bestScore, found = category, score, true
		}
	}
	return best, found
}

// ExtractRequirements pulls the structured facts a routing decision depends
// on out of the question text.
func ExtractRequirements(question string) types.Requirements {
	lower := strings.ToLower(question)
	return types.Requirements{
		Assets:     extractAssets(question),
		Threshold:  extractThreshold(question),
		Comparison: extractComparison(lower),
		Timeframe:  extractTimeframe(lower),
		MarketType: extractMarketType(lower),
	}
}

// ComplexityScore estimates how hard a question is to resolve, on [0,1].
// Length, conjunctions, deadlines, thresholds and multi-asset references all
// add weight.
func ComplexityScore(question string) float64 {
	lower := strings.ToLower(question)

	complexity := math.Min(float64(len(strings.Fields(question)))/50, 0.3)
	if strings.Contains(lower, " and ") || strings.Contains(lower, " or ") {
		complexity += 0.2
	}
	if extractTimeframe(lower) != 0 {
		complexity += 0.1
	}
	if extractThreshold(question) != nil {
		complexity += 0.1
	}
	if len(extractAssets(question)) > 1 {
		complexity += 0.2
	}
	return math.Min(complexity, 1.0)
}

func extractAssets(question string) []string {
	var assets []string
	seen := map[string]bool{}
	add := func(symbol string) {
		if seen[symbol] {
			return
		}
		seen[symbol] = true
		assets = append(assets, symbol)
	}

	for _, m := range cryptoAssetPattern.FindAllStringSubmatch(strings.ToUpper(question), -1) {
		add(m[1])
	}

	lower := strings.ToLower(question)
	for _, company := range stockCompanies {
		if strings.Contains(lower, company.name) {
			add(company.ticker)
		}
	}

	// Bare tickers count only in a stock context, e.g. "COIN stock".
	for _, m := range tickerContextPattern.FindAllStringSubmatch(question, -1) {
		add(m[1])
	}
	return assets
}

func extractThreshold(question string) *decimal.Decimal {
	m := thresholdPattern.FindStringSubmatch(question)
	if m == nil {
		return nil
	}
	value, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return nil
	}
	switch strings.ToLower(m[2]) {
	case "k", "thousand":
		value = value.Shift(3)
	case "m", "million":
		value = value.Shift(6)
	case "b", "billion":
		value = value.Shift(9)
	}
	return &value
}

func extractTimeframe(lower string) time.Duration {
	for _, tf := range fixedTimeframes {
		if tf.re.MatchString(lower) {
			return tf.duration
		}
	}
	for _, tf := range relativeTimeframes {
		m := tf.re.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		return time.Duration(n) * tf.unit
	}
	if m := deadlineYearPattern.FindStringSubmatch(lower); m != nil {
		year, err := strconv.Atoi(m[1])
		if err == nil {
			return time.Duration(year-time.Now().Year()) * 365 * 24 * time.Hour
		}
	}
	return 0
}

func extractComparison(lower string) types.Comparison {
	switch {
	case containsAny(lower, "above", "exceed", "greater", "higher", "over", "hit", "reach"):
		return types.ComparisonGT
	case containsAny(lower, "below", "under", "less", "lower"):
		return types.ComparisonLT
	case containsAny(lower, "between", "range"):
		return types.ComparisonRange
	case containsAny(lower, "equal", "exactly"):
		return types.ComparisonEQ
	}
	return ""
}

func extractMarketType(lower string) types.MarketType {
	for _, prefix := range []string{"will ", "can ", "does ", "is "} {
		if strings.HasPrefix(lower, prefix) {
			return types.MarketBinary
		}
	}
	if containsAny(lower, "who will", "which ", "what will") {
		return types.MarketCategorical
	}
	if containsAny(lower, "how many", "how much", "what price") {
		return types.MarketScalar
	}
	return types.MarketBinary
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
