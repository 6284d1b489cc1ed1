package ai

import (
	"context"
	"math"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"oracle-router/oracle/routing"
	"oracle-router/oracle/types"
)

const enhanceConfidenceBelow = 0.7

// highCostUSD marks routing decisions expensive enough that a second
// opinion is worth an LLM call.
var highCostUSD = decimal.NewFromInt(50)

// conjunctionIndicators flag questions whose resolution hinges on several
// conditions at once, which the keyword classifier scores poorly.
var conjunctionIndicators = []string{
	" and ", " or ", " but ", "unless", "multiple", "conditional",
}

// Enhancer reworks routing decisions with an LLM pass when the rule-based
// engine is unsure. Every failure path returns the rule-based response
// unchanged, so a dead AI upstream degrades quality, never availability.
type Enhancer struct {
	chain     *Chain
	preferred string
	logger    zerolog.Logger
}

// NewEnhancer wires the enhancer over a client chain. preferred names the
// client to try first and may be empty.
func NewEnhancer(chain *Chain, preferred string, logger zerolog.Logger) *Enhancer {
	return &Enhancer{
		chain:     chain,
		preferred: preferred,
		logger:    logger.With().Str("module", "ai").Logger(),
	}
}

// ShouldEnhance reports whether the rule-based decision is worth an LLM
// pass: low confidence, conjunction-heavy questions, categories without a
// natural data feed, or an expensive resolution path.
func (e *Enhancer) ShouldEnhance(req types.RoutingRequest, resp types.RoutingResponse) bool {
	if e.chain.Empty() || !resp.CanResolve {
		return false
	}

	if resp.Confidence < enhanceConfidenceBelow {
		return true
	}
	if containsAny(strings.ToLower(req.Question), conjunctionIndicators...) {
		return true
	}
	if resp.DataType == types.CategoryCustom || resp.DataType == types.CategoryEvents {
		return true
	}
	if resp.EstimatedCostUSD != nil && resp.EstimatedCostUSD.GreaterThan(highCostUSD) {
		return true
	}
	return false
}

// Enhance asks the chain for a second routing opinion and merges it into the
// rule-based response. The reply must validate against the contract schema;
// anything else keeps the rule-based response.
func (e *Enhancer) Enhance(ctx context.Context, req types.RoutingRequest, basic types.RoutingResponse) types.RoutingResponse {
	var llm types.OracleRoutingResponse
	err := e.chain.GenerateJSON(ctx, Request{
		System: enhancementSystemPrompt,
		User:   enhancementPrompt(req, basic),
	}, e.preferred, &llm)
	if err != nil {
		e.logger.Warn().Err(err).Msg("routing enhancement skipped")
		return basic
	}

	if err := llm.Validate(); err != nil {
		e.logger.Warn().Err(err).Msg("llm routing reply rejected")
		return basic
	}

	enhanced := merge(basic, llm)
	e.logger.Info().
		Str("selected", enhanced.Selected.String()).
		Float64("confidence", enhanced.Confidence).
		Float64("boost", llm.ConfidenceBoost).
		Msg("routing decision enhanced")
	return enhanced
}

// merge folds a validated LLM opinion into the rule-based decision. The
// selection only moves within the candidate set the engine produced, the
// boost is additive and capped at full confidence, and the engine's cost and
// latency estimates stay untouched.
func merge(basic types.RoutingResponse, llm types.OracleRoutingResponse) types.RoutingResponse {
	enhanced := basic

	if p, ok := llm.SelectedProvider(); ok && p != basic.Selected && candidateOf(basic, p) {
		enhanced.Selected = p
		enhanced.ResolutionMethod = routing.ResolutionMethodFor(p)
		if caps, ok := routing.CapabilitiesFor(p); ok {
			enhanced.UpdateFrequency = caps.UpdateFreq
		}
		if basic.OracleConfig != nil {
			reqs, _ := basic.OracleConfig["requirements"].(types.Requirements)
			question, _ := basic.OracleConfig["question"].(string)
			enhanced.OracleConfig = routing.OracleConfigFor(p, basic.DataType, reqs, question)
		}
	}

	enhanced.Confidence = math.Min(basic.Confidence+llm.ConfidenceBoost, 1)
	enhanced.Reasoning = llm.Reasoning + " (enhanced from: " + basic.Reasoning + ")"
	return enhanced
}

// candidateOf reports whether p is the engine's selection or one of its
// alternatives.
func candidateOf(resp types.RoutingResponse, p types.Provider) bool {
	if resp.Selected == p {
		return true
	}
	for _, alt := range resp.Alternatives {
		if alt == p {
			return true
		}
	}
	return false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
