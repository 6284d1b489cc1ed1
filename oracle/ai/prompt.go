package ai

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"oracle-router/oracle/routing"
	"oracle-router/oracle/types"
)

// enhancementSystemPrompt frames the routing optimization task. The provider
// knowledge matches the routing capability table so the model and the
// rule-based engine reason over the same facts.
const enhancementSystemPrompt = `You are an expert in blockchain oracles and prediction markets.

Your role is to analyze prediction market questions and recommend the optimal oracle solution.
You have deep knowledge of:
- Chainlink: aggregated price feeds, sports data (TheRundown), weather (AccuWeather), verifiable randomness
- Pyth Network: sub-second pull-based crypto and stock prices
- Band Protocol: cross-chain data and custom API requests
- UMA: optimistic oracle with human verification for disputes and complex events
- API3: first-party signed data, NOAA weather, NFT floor prices

Always respond with valid JSON matching the provided schema.
Focus on accuracy, cost-effectiveness and reliability for the specific use case.`

// resolutionSystemPrompt frames the market resolution task for one provider's
// evidence model.
func resolutionSystemPrompt(provider types.Provider) string {
	return fmt.Sprintf(`You are an impartial prediction market resolution system.

Your task is to objectively resolve prediction market questions based on verifiable data.

Resolution guidelines:
1. Objectivity: base the decision solely on the provided data.
2. Accuracy: the winning outcome must match the data precisely.
3. Transparency: give clear reasoning citing specific data points.
4. Confidence: only report high confidence when the data is unambiguous.
5. Sources: list every data source used in the analysis.

Oracle provider: %s. This determines the type and reliability of the data available for resolution.`, provider.ContractValue())
}

// validationSystemPrompt frames the oracle data quality check.
func validationSystemPrompt(expected types.DataCategory, threshold float64) string {
	return fmt.Sprintf(`You are an oracle data validation expert.

Analyze the provided oracle data points for:
1. Validity: values are plausible for %s data and within expected ranges.
2. Anomalies: suspicious outliers, stale repeats or cross-source disagreement.
3. Freshness: how old the most recent data point is, in seconds.
4. Reliability: how trustworthy the reporting sources are.

A confidence score below %.2f means the data must not be used for resolution.`, expected, threshold)
}

// Contract schemas the model output must match, rendered as JSON Schema.
// These mirror the validate tags on the contract structs.
const (
	routingResponseSchema = `{
  "type": "object",
  "required": ["selected_oracle", "reasoning", "confidence"],
  "properties": {
    "selected_oracle": {"type": "string", "enum": ["CHAINLINK", "PYTH", "UMA", "API3", "CUSTOM"]},
    "reasoning": {"type": "string", "minLength": 50},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "confidence_boost": {"type": "number", "minimum": 0, "maximum": 0.5},
    "estimated_cost": {"type": "number", "minimum": 0},
    "estimated_time": {"type": "integer", "minimum": 0},
    "fallback_options": {"type": "array", "items": {"type": "string", "enum": ["CHAINLINK", "PYTH", "UMA", "API3", "CUSTOM"]}}
  }
}`

	resolutionSchema = `{
  "type": "object",
  "required": ["winning_outcome", "confidence", "data_sources", "reasoning", "timestamp"],
  "properties": {
    "winning_outcome": {"type": "integer", "minimum": 0, "maximum": 255},
    "resolution_value": {"type": "integer"},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "data_sources": {"type": "array", "items": {"type": "string"}, "minItems": 1},
    "reasoning": {"type": "string", "minLength": 100},
    "timestamp": {"type": "integer", "minimum": 0},
    "proof_hash": {"type": "string", "pattern": "^0x[0-9a-fA-F]{64}$"}
  }
}`

	validationSchema = `{
  "type": "object",
  "required": ["is_valid", "confidence_score", "anomaly_detected", "data_freshness_seconds", "source_reliability"],
  "properties": {
    "is_valid": {"type": "boolean"},
    "confidence_score": {"type": "number", "minimum": 0, "maximum": 1},
    "anomaly_detected": {"type": "boolean"},
    "data_freshness_seconds": {"type": "integer", "minimum": 0},
    "source_reliability": {"type": "number", "minimum": 0, "maximum": 1},
    "issues": {"type": "array", "items": {"type": "string"}},
    "recommendations": {"type": "array", "items": {"type": "string"}}
  }
}`
)

// Worked examples keep small models from inventing field names.
const (
	routingResponseExample = `{
  "selected_oracle": "CHAINLINK",
  "reasoning": "Chainlink is optimal for BTC price data due to its aggregation of many independent feeds with proven reliability and sub-minute updates.",
  "confidence": 0.92,
  "confidence_boost": 0.2,
  "estimated_cost": 0.25,
  "estimated_time": 30,
  "fallback_options": ["PYTH", "API3"]
}`

	resolutionExample = `{
  "winning_outcome": 0,
  "resolution_value": 105000,
  "confidence": 0.98,
  "data_sources": ["coinbase", "binance", "kraken"],
  "reasoning": "Bitcoin traded at $105,000 on December 15, exceeding the $100,000 threshold. The price was consistent across all three reporting exchanges, so the YES outcome at index 0 wins.",
  "timestamp": 1734220800
}`

	validationExample = `{
  "is_valid": true,
  "confidence_score": 0.94,
  "anomaly_detected": false,
  "data_freshness_seconds": 45,
  "source_reliability": 0.96,
  "issues": [],
  "recommendations": ["Consider adding more data sources for cross-validation"]
}`
)

// schemaPrompt frames a task and the JSON schema the reply must satisfy.
func schemaPrompt(task, schema, example string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Task: %s\n\n", task)
	b.WriteString("You must respond with valid JSON that exactly matches this schema:\n\n")
	b.WriteString(schema)
	b.WriteString("\n\nRequirements:\n")
	b.WriteString("- All required fields must be present\n")
	b.WriteString("- Follow the exact field names and types specified\n")
	b.WriteString("- Enum values must match exactly (case-sensitive)\n")
	b.WriteString("- Confidence scores must be between 0 and 1\n")
	if example != "" {
		fmt.Fprintf(&b, "\nExample of a valid response:\n%s\n", example)
	}
	b.WriteString("\nRespond with valid JSON only. Do not include any additional text or explanation.")

	return b.String()
}

// capabilitySummary renders the routing capability table for the model, one
// line per provider, so the two selection paths never disagree on the facts.
func capabilitySummary() string {
	var b strings.Builder
	b.WriteString("Available oracle capabilities:\n")

	for _, p := range types.Providers {
		caps, ok := routing.CapabilitiesFor(p)
		if !ok {
			continue
		}

		categories := make([]string, 0, len(caps.Categories))
		for _, c := range caps.Categories {
			categories = append(categories, c.String())
		}

		latency := (time.Duration(caps.LatencyMs) * time.Millisecond).String()
		fmt.Fprintf(&b, "- %s: %s | reliability %.0f%% | latency %s | cost $%s",
			p.ContractValue(), strings.Join(categories, ", "),
			caps.Reliability*100, latency, caps.CostUSD.StringFixed(2))

		if len(caps.Specialties) > 0 {
			keys := make([]string, 0, len(caps.Specialties))
			for k := range caps.Specialties {
				keys = append(keys, k.String())
			}
			sort.Strings(keys)

			parts := make([]string, 0, len(keys))
			for _, k := range keys {
				parts = append(parts, fmt.Sprintf("%s (%s)", k, strings.Join(caps.Specialties[types.DataCategory(k)], ", ")))
			}
			fmt.Fprintf(&b, " | specialties: %s", strings.Join(parts, "; "))
		}
		b.WriteString("\n")
	}

	return b.String()
}

// enhancementPrompt lays out the question, the rule-based decision and the
// capability table the model should optimize over.
func enhancementPrompt(req types.RoutingRequest, basic types.RoutingResponse) string {
	selected := "none"
	if basic.Selected != "" {
		selected = basic.Selected.ContractValue()
	}
	reasoning := basic.Reasoning
	if reasoning == "" {
		reasoning = "no reasoning recorded"
	}

	var b strings.Builder
	b.WriteString("Analyze this prediction market question and optimize the oracle selection:\n\n")
	fmt.Fprintf(&b, "Question: %q\n\n", req.Question)
	b.WriteString("Current rule-based analysis:\n")
	fmt.Fprintf(&b, "- Selected oracle: %s\n", selected)
	fmt.Fprintf(&b, "- Data type: %s\n", basic.DataType)
	fmt.Fprintf(&b, "- Confidence: %.0f%%\n", basic.Confidence*100)
	fmt.Fprintf(&b, "- Reasoning: %s\n", reasoning)

	if len(basic.Alternatives) > 0 {
		alts := make([]string, 0, len(basic.Alternatives))
		for _, alt := range basic.Alternatives {
			alts = append(alts, alt.ContractValue())
		}
		fmt.Fprintf(&b, "- Viable alternatives: %s\n", strings.Join(alts, ", "))
	}
	if req.MaxCostUSD != nil {
		fmt.Fprintf(&b, "- Cost limit: $%s\n", req.MaxCostUSD.StringFixed(2))
	}
	if req.MaxLatencyMs > 0 {
		fmt.Fprintf(&b, "- Latency limit: %dms\n", req.MaxLatencyMs)
	}

	b.WriteString("\n")
	b.WriteString(capabilitySummary())
	b.WriteString("\n")
	b.WriteString("Report how certain you are in your recommendation as confidence, and how much ")
	b.WriteString("the current analysis should be trusted beyond its own score as confidence_boost.\n\n")
	b.WriteString(schemaPrompt("Optimize the oracle selection for the prediction market question", routingResponseSchema, routingResponseExample))

	return b.String()
}

// resolutionPrompt lays out the market, its outcome options by index and the
// gathered oracle evidence.
func resolutionPrompt(question string, options []string, oracleData map[string]any) string {
	data, err := json.MarshalIndent(oracleData, "", "  ")
	if err != nil {
		data = []byte("{}")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Question: %q\n\n", question)
	b.WriteString("Outcome options:\n")
	for i, option := range options {
		fmt.Fprintf(&b, "%d: %s\n", i, option)
	}
	fmt.Fprintf(&b, "\nOracle data gathered for resolution:\n%s\n\n", data)
	b.WriteString("Determine which option index wins based on the data, with detailed reasoning citing the data sources used.\n\n")
	b.WriteString(schemaPrompt("Resolve the prediction market question from the oracle data", resolutionSchema, resolutionExample))

	return b.String()
}

// validationPrompt lays out the data points to cross-check.
func validationPrompt(points []map[string]any) string {
	data, err := json.MarshalIndent(points, "", "  ")
	if err != nil {
		data = []byte("[]")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Oracle data points to validate:\n%s\n\n", data)
	b.WriteString(schemaPrompt("Validate the oracle data points for quality, consistency and freshness", validationSchema, validationExample))

	return b.String()
}
