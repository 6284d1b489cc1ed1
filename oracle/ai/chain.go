package ai

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"oracle-router/oracle/types"
)

// Chain fans a completion request over the configured clients: the preferred
// client first when named, then the remaining clients in constructor order.
// A client is only tried when its availability probe passes, so a dead
// upstream costs one cheap GET instead of a full completion timeout.
type Chain struct {
	clients []Client
	logger  zerolog.Logger
}

func NewChain(logger zerolog.Logger, clients ...Client) *Chain {
	return &Chain{
		clients: clients,
		logger:  logger.With().Str("module", "ai").Logger(),
	}
}

// Empty reports whether the chain has no clients at all. Callers use it to
// skip AI paths entirely when no API keys are configured.
func (c *Chain) Empty() bool {
	return c == nil || len(c.clients) == 0
}

// Generate runs the request against the first client that answers. The
// returned error carries the last upstream failure when every client failed.
func (c *Chain) Generate(ctx context.Context, req Request, preferred string) (*Completion, error) {
	if c.Empty() {
		return nil, types.NewError(types.KindAIService, "no llm clients configured")
	}

	if preferred != "" {
		if completion, err := c.tryPreferred(ctx, req, preferred); err == nil && completion != nil {
			return completion, nil
		}
	}

	var lastErr error
	for _, client := range c.clients {
		if !client.Available(ctx) {
			c.logger.Debug().Str("client", client.Name()).Msg("llm client unavailable")
			continue
		}

		completion, err := client.Generate(ctx, req)
		if err == nil {
			return completion, nil
		}
		lastErr = err
		c.logger.Warn().Err(err).Str("client", client.Name()).Msg("llm client failed")
	}

	if lastErr == nil {
		return nil, types.NewError(types.KindAIService, "no llm client is available")
	}
	return nil, types.Errorf(types.KindAIService, "all llm clients failed, last error: %s", lastErr)
}

// tryPreferred runs one attempt against the named client. A nil completion
// with nil error means the client is unknown or unavailable and the caller
// should fall through to the priority order.
func (c *Chain) tryPreferred(ctx context.Context, req Request, preferred string) (*Completion, error) {
	for _, client := range c.clients {
		if client.Name() != preferred {
			continue
		}
		if !client.Available(ctx) {
			return nil, nil
		}

		completion, err := client.Generate(ctx, req)
		if err != nil {
			c.logger.Warn().Err(err).Str("client", preferred).Msg("preferred llm client failed")
			return nil, err
		}
		return completion, nil
	}
	return nil, nil
}

// GenerateJSON runs Generate in JSON output mode and decodes the object the
// model returns into out. The prompt itself must carry the JSON instruction;
// this only flips the API output mode and parses.
func (c *Chain) GenerateJSON(ctx context.Context, req Request, preferred string, out any) error {
	req.ForceJSON = true

	completion, err := c.Generate(ctx, req, preferred)
	if err != nil {
		return err
	}

	raw := extractJSONObject(completion.Content)
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return types.Errorf(types.KindAIService, "malformed json from %s: %s", completion.Client, err)
	}
	return nil
}
