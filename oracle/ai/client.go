// Package ai runs the LLM-assisted paths of the routing core: reworking
// low-confidence routing decisions, resolving markets from gathered oracle
// data and cross-checking oracle payloads. Every output is validated against
// the contract schemas before it is allowed to influence a decision, and
// every failure path degrades to the rule-based answer.
package ai

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"oracle-router/oracle/transport"
	"oracle-router/oracle/types"
)

const (
	defaultOpenAIBaseURL     = "https://api.openai.com/v1"
	defaultOpenAIModel       = "gpt-4o-mini"
	defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	defaultOpenRouterModel   = "openai/gpt-4o-mini"

	// Attribution headers OpenRouter uses for app rankings.
	openRouterReferer = "https://polypoll.app"
	openRouterTitle   = "PolyPoll Oracle Router"

	defaultClientTimeout = 30 * time.Second
	defaultTemperature   = 0.2
	defaultMaxTokens     = 800
)

type (
	// Request is one completion call: a system role framing the task and a
	// user prompt carrying the data. ForceJSON asks the API for json_object
	// output mode.
	Request struct {
		System      string
		User        string
		Temperature float64
		MaxTokens   int
		ForceJSON   bool
	}

	// Completion is the answer of one client, annotated with which client
	// and model produced it.
	Completion struct {
		Content string
		Model   string
		Client  string
		Usage   TokenUsage
		Latency time.Duration
	}

	// TokenUsage mirrors the usage block of the chat completions API.
	TokenUsage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	}

	// Client is one upstream LLM API. Implementations must be safe for
	// concurrent use.
	Client interface {
		// Name returns the stable client id, ex. "openai".
		Name() string

		// Available probes the upstream with a lightweight call.
		Available(ctx context.Context) bool

		// Generate runs one completion request.
		Generate(ctx context.Context, req Request) (*Completion, error)
	}

	// ClientConfig holds the per-client settings. Zero values fall back to
	// the client's published endpoint and a small default model.
	ClientConfig struct {
		APIKey  string
		BaseURL string
		Model   string
		Timeout time.Duration
	}

	// restClient speaks the OpenAI chat completions wire format, which both
	// OpenAI and OpenRouter serve. Calls ride the shared transport session,
	// so retries, rate limits and bearer auth behave like every other
	// outbound call.
	restClient struct {
		name    string
		baseURL string
		model   string
		session *transport.Session
		logger  zerolog.Logger
	}

	chatCompletion struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage TokenUsage `json:"usage"`
	}
)

// NewOpenAIClient returns a client for the OpenAI API.
func NewOpenAIClient(cfg ClientConfig, logger zerolog.Logger) Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenAIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	return newRESTClient("openai", cfg, nil, logger)
}

// NewOpenRouterClient returns a client for the OpenRouter API. OpenRouter
// speaks the same wire format as OpenAI plus optional attribution headers.
func NewOpenRouterClient(cfg ClientConfig, logger zerolog.Logger) Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenRouterBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultOpenRouterModel
	}
	headers := map[string]string{
		"HTTP-Referer": openRouterReferer,
		"X-Title":      openRouterTitle,
	}
	return newRESTClient("openrouter", cfg, headers, logger)
}

func newRESTClient(name string, cfg ClientConfig, headers map[string]string, logger zerolog.Logger) *restClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultClientTimeout
	}

	session := transport.NewSession(transport.SessionConfig{
		Timeout: cfg.Timeout,
		APIKey:  cfg.APIKey,
		Headers: headers,
	}, logger)

	return &restClient{
		name:    name,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		session: session,
		logger:  logger.With().Str("module", "ai").Str("client", name).Logger(),
	}
}

func (c *restClient) Name() string {
	return c.name
}

// Available probes the models listing, the cheapest authenticated endpoint
// both APIs expose.
func (c *restClient) Available(ctx context.Context) bool {
	_, err := c.session.Get(ctx, c.baseURL+"/models")
	return err == nil
}

func (c *restClient) Generate(ctx context.Context, req Request) (*Completion, error) {
	temperature := req.Temperature
	if temperature <= 0 {
		temperature = defaultTemperature
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	payload := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": req.System},
			{"role": "user", "content": req.User},
		},
		"temperature": temperature,
		"max_tokens":  maxTokens,
	}
	if req.ForceJSON {
		payload["response_format"] = map[string]string{"type": "json_object"}
	}

	start := time.Now()
	var out chatCompletion
	if err := c.session.PostJSON(ctx, c.baseURL+"/chat/completions", payload, &out); err != nil {
		return nil, err
	}
	if len(out.Choices) == 0 {
		return nil, types.Errorf(types.KindAIService, "%s returned no choices", c.name)
	}

	completion := &Completion{
		Content: out.Choices[0].Message.Content,
		Model:   out.Model,
		Client:  c.name,
		Usage:   out.Usage,
		Latency: time.Since(start),
	}

	c.logger.Debug().
		Str("model", completion.Model).
		Int("total_tokens", completion.Usage.TotalTokens).
		Dur("latency", completion.Latency).
		Msg("completion finished")

	return completion, nil
}

// extractJSONObject strips markdown fences and surrounding prose from a
// model reply, keeping the outermost JSON object. Models wrap JSON in
// ```json fences or lead-in sentences often enough that decoding the raw
// content directly is not workable.
func extractJSONObject(content string) string {
	content = strings.TrimSpace(content)

	if i := strings.Index(content, "```json"); i >= 0 {
		rest := content[i+len("```json"):]
		if j := strings.Index(rest, "```"); j >= 0 {
			rest = rest[:j]
		}
		content = rest
	} else if i := strings.Index(content, "```"); i >= 0 {
		rest := content[i+len("```"):]
		if j := strings.Index(rest, "```"); j >= 0 {
			rest = rest[:j]
		}
		content = rest
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		content = content[start : end+1]
	}
	return strings.TrimSpace(content)
}
