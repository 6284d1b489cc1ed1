package ai

import (
	"context"
	"errors"
	"testing"

	"oracle-router/oracle/types"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// stubClient scripts one client of the chain.
type stubClient struct {
	name        string
	unavailable bool
	content     string
	err         error
	calls       int
}

func (s *stubClient) Name() string { return s.name }

func (s *stubClient) Available(context.Context) bool { return !s.unavailable }

func (s *stubClient) Generate(context.Context, Request) (*Completion, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &Completion{Content: s.content, Client: s.name}, nil
}

func TestChain_PreferredFirst(t *testing.T) {
	first := &stubClient{name: "openai", content: "from openai"}
	second := &stubClient{name: "openrouter", content: "from openrouter"}
	chain := NewChain(zerolog.Nop(), first, second)

	completion, err := chain.Generate(context.TODO(), Request{User: "hi"}, "openrouter")
	require.NoError(t, err)
	require.Equal(t, "openrouter", completion.Client)
	require.Zero(t, first.calls)
}

func TestChain_FallsBackInOrder(t *testing.T) {
	first := &stubClient{name: "openai", err: errors.New("insufficient quota")}
	second := &stubClient{name: "openrouter", content: "from openrouter"}
	chain := NewChain(zerolog.Nop(), first, second)

	completion, err := chain.Generate(context.TODO(), Request{User: "hi"}, "")
	require.NoError(t, err)
	require.Equal(t, "openrouter", completion.Client)
	require.Equal(t, 1, first.calls)
}

func TestChain_PreferredFailureRetriesOrder(t *testing.T) {
	first := &stubClient{name: "openai", err: errors.New("insufficient quota")}
	second := &stubClient{name: "openrouter", content: "from openrouter"}
	chain := NewChain(zerolog.Nop(), first, second)

	completion, err := chain.Generate(context.TODO(), Request{User: "hi"}, "openai")
	require.NoError(t, err)
	require.Equal(t, "openrouter", completion.Client)

	// once as the preferred client, once in priority order
	require.Equal(t, 2, first.calls)
}

func TestChain_PreferredUnavailable(t *testing.T) {
	first := &stubClient{name: "openai", content: "from openai"}
	second := &stubClient{name: "openrouter", unavailable: true}
	chain := NewChain(zerolog.Nop(), first, second)

	completion, err := chain.Generate(context.TODO(), Request{User: "hi"}, "openrouter")
	require.NoError(t, err)
	require.Equal(t, "openai", completion.Client)
	require.Zero(t, second.calls)
}

func TestChain_AllFail(t *testing.T) {
	first := &stubClient{name: "openai", err: errors.New("insufficient quota")}
	second := &stubClient{name: "openrouter", err: errors.New("model overloaded")}
	chain := NewChain(zerolog.Nop(), first, second)

	_, err := chain.Generate(context.TODO(), Request{User: "hi"}, "")
	require.Error(t, err)
	require.Equal(t, types.KindAIService, types.AsError(err).Kind)
	require.Contains(t, err.Error(), "all llm clients failed")
	require.Contains(t, err.Error(), "model overloaded")
}

func TestChain_NoneAvailable(t *testing.T) {
	chain := NewChain(
		zerolog.Nop(),
		&stubClient{name: "openai", unavailable: true},
		&stubClient{name: "openrouter", unavailable: true},
	)

	_, err := chain.Generate(context.TODO(), Request{User: "hi"}, "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "no llm client is available")
}

func TestChain_Empty(t *testing.T) {
	chain := NewChain(zerolog.Nop())
	require.True(t, chain.Empty())

	var nilChain *Chain
	require.True(t, nilChain.Empty())

	_, err := chain.Generate(context.TODO(), Request{User: "hi"}, "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "no llm clients configured")
}

func TestChain_GenerateJSON(t *testing.T) {
	t.Run("strips_markdown_fences", func(t *testing.T) {
		chain := NewChain(zerolog.Nop(), &stubClient{
			name:    "openai",
			content: "```json\n{\"answer\": 42}\n```",
		})

		var out map[string]any
		require.NoError(t, chain.GenerateJSON(context.TODO(), Request{User: "hi"}, "", &out))
		require.EqualValues(t, 42, out["answer"])
	})

	t.Run("rejects_prose", func(t *testing.T) {
		chain := NewChain(zerolog.Nop(), &stubClient{name: "openai", content: "the answer is 42"})

		var out map[string]any
		err := chain.GenerateJSON(context.TODO(), Request{User: "hi"}, "", &out)
		require.Error(t, err)
		require.Equal(t, types.KindAIService, types.AsError(err).Kind)
		require.Contains(t, err.Error(), "malformed json from openai")
	})
}
