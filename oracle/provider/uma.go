package provider

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"oracle-router/oracle/transport"
	"oracle-router/oracle/types"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var (
	_ Adapter = (*UMAAdapter)(nil)

	umaDefaultEndpoints = Endpoint{
		Name:    types.ProviderUMA,
		Rest:    "http://localhost:8000",
		Timeout: 60 * time.Second,
	}

	umaCategories = []types.DataCategory{
		types.CategoryCustom,
		types.CategoryEvents,
		types.CategoryEconomic,
		types.CategoryElection,
	}

	// The proposal bond is posted in USDC and returned on the undisputed
	// path, but callers budget for it up front.
	umaRequestCost = decimal.NewFromInt(100)
)

const (
	umaDefaultBond     = "100"
	umaDefaultCurrency = "USDC"
	umaDefaultLiveness = int64(7200)
)

type (
	// UMAAdapter submits assertions to an optimistic oracle relay. Answers
	// are proposed by off-chain actors and finalize only after the liveness
	// window passes without a dispute, so responses carry the pending
	// proposal rather than settled data.
	UMAAdapter struct {
		adapter
	}

	UMAOptimisticRequest struct {
		Identifier            string `json:"identifier"`
		QuestionText          string `json:"question_text"`
		AncillaryData         string `json:"ancillary_data"`
		Currency              string `json:"currency"`
		BondAmount            string `json:"bond_amount"`
		LivenessPeriodSeconds int64  `json:"liveness_period_seconds"`
	}

	UMAProposal struct {
		RequestID      string           `json:"request_id"`
		State          string           `json:"state"`
		Proposer       string           `json:"proposer,omitempty"`
		ProposedPrice  *decimal.Decimal `json:"proposed_price,omitempty"`
		ExpirationTime int64            `json:"expiration_time"`
		Disputed       bool             `json:"disputed"`
	}

	umaAncillary struct {
		Q       string   `json:"q"`
		Options []string `json:"options,omitempty"`
	}
)

func NewUMAAdapter(
	_ context.Context,
	logger zerolog.Logger,
	endpoints Endpoint,
	session *transport.Session,
	cache transport.Cache,
) (*UMAAdapter, error) {
	if endpoints.Rest == "" {
		endpoints.Rest = umaDefaultEndpoints.Rest
	}
	if endpoints.Timeout == 0 {
		endpoints.Timeout = umaDefaultEndpoints.Timeout
	}

	p := &UMAAdapter{}
	p.Init(
		types.ProviderUMA,
		endpoints,
		logger,
		session,
		cache,
		umaCategories,
		p.submitAssertion,
		p.probeRelay,
	)
	return p, nil
}

func (p *UMAAdapter) submitAssertion(ctx context.Context, req types.OracleRequest) (types.OracleResponse, error) {
	liveness := paramInt64(req.Parameters, "liveness_period", umaDefaultLiveness)
	bond, _ := req.Parameters["bond_amount"].(string)
	if bond == "" {
		bond = umaDefaultBond
	}

	ancillary, err := json.Marshal(umaAncillary{
		Q:       req.Query,
		Options: paramStrings(req.Parameters, "options"),
	})
	if err != nil {
		return types.OracleResponse{}, types.Errorf(types.KindValidation, "encoding ancillary data: %s", err)
	}

	assertion := UMAOptimisticRequest{
		Identifier:            umaIdentifier(req),
		QuestionText:          umaQuestionText(req.Query),
		AncillaryData:         string(ancillary),
		Currency:              umaDefaultCurrency,
		BondAmount:            bond,
		LivenessPeriodSeconds: liveness,
	}

	var proposal UMAProposal
	if err := p.session.PostJSON(ctx, p.restURL("/api/oracle/uma/optimistic"), assertion, &proposal); err != nil {
		return types.OracleResponse{}, err
	}
	if proposal.RequestID == "" {
		return types.OracleResponse{}, types.Errorf(types.KindProvider, "relay accepted assertion without a request id")
	}

	data := map[string]any{
		"request_id":      proposal.RequestID,
		"state":           proposal.State,
		"identifier":      assertion.Identifier,
		"question":        assertion.QuestionText,
		"expiration_time": proposal.ExpirationTime,
		"disputed":        proposal.Disputed,
	}
	if proposal.ProposedPrice != nil {
		data["proposed_price"] = *proposal.ProposedPrice
	}

	return types.OracleResponse{
		Data:       data,
		Confidence: 0.97,
		CostUSD:    umaRequestCost,
		Metadata: map[string]any{
			"data_source":             "uma-optimistic-oracle",
			"oracle_type":             "optimistic",
			"bond_amount":             bond,
			"liveness_period_seconds": liveness,
			"dispute_window_seconds":  liveness,
			"decision_latency_ms":     int64(0),
			"finalization_latency_ms": liveness * 1000,
		},
	}, nil
}

func (p *UMAAdapter) probeRelay(ctx context.Context) error {
	_, err := p.session.Get(ctx, p.restURL("/api/oracle/uma/health"))
	return err
}

// umaIdentifier picks the optimistic oracle price identifier for a request.
// Multi-outcome questions assert MULTIPLE_CHOICE, scalar markets and economic
// data points assert NUMERICAL, everything else is a yes/no assertion.
func umaIdentifier(req types.OracleRequest) string {
	if len(paramStrings(req.Parameters, "options")) > 0 {
		return "MULTIPLE_CHOICE"
	}
	if marketType, _ := req.Parameters["market_type"].(string); strings.EqualFold(marketType, "scalar") {
		return "NUMERICAL"
	}
	if req.DataType == types.CategoryEconomic {
		return "NUMERICAL"
	}
	return "YES_OR_NO_QUERY"
}

// umaQuestionText normalizes the assertion text. Human verifiers expect an
// interrogative, so the text always ends with a question mark.
func umaQuestionText(query string) string {
	text := strings.TrimSpace(query)
	if !strings.HasSuffix(text, "?") {
		text += "?"
	}
	return text
}

func paramStrings(params map[string]any, key string) []string {
	switch vals := params[key].(type) {
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, v := range vals {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
