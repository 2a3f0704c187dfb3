package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/pdfchat-server/internal/config"
)

type call struct {
	baseURL string
	key     string
	model   string
}

// scriptedCompleter returns a canned result per credential.
type scriptedCompleter struct {
	results map[string]error
	calls   []call
}

func (s *scriptedCompleter) Complete(_ context.Context, req Request) (string, error) {
	s.calls = append(s.calls, call{baseURL: req.BaseURL, key: req.APIKey, model: req.Model})
	if err := s.results[req.APIKey]; err != nil {
		return "", err
	}
	return "reply from " + req.APIKey, nil
}

func (s *scriptedCompleter) keys() []string {
	out := make([]string, len(s.calls))
	for i, c := range s.calls {
		out[i] = c.key
	}
	return out
}

func newTestGateway(t *testing.T, completer Completer, creds ...string) *Gateway {
	t.Helper()
	g, err := NewGateway([]Provider{
		{Group: GroupLlama, BaseURL: "https://llama.test/v1", Models: []string{"llama3-70b-8192"}, Credentials: creds},
		{Group: GroupGemini, BaseURL: "https://gemini.test/", Models: []string{"gemini-2.0-flash"}, Credentials: []string{"g1"}},
	}, completer, 0, nil)
	require.NoError(t, err)
	return g
}

var history = []Message{
	{Role: RoleSystem, Content: "be brief"},
	{Role: RoleUser, Content: "hello"},
}

func TestGateway_FailsOverInDeclaredOrder(t *testing.T) {
	completer := &scriptedCompleter{results: map[string]error{
		"k1": errors.New("You exceeded your current quota"),
		"k2": errors.New("Rate limit reached for requests"),
	}}
	g := newTestGateway(t, completer, "k1", "k2", "k3")

	reply, err := g.Send(context.Background(), "llama3-70b-8192", history)
	require.NoError(t, err)
	assert.Equal(t, "reply from k3", reply)
	assert.Equal(t, []string{"k1", "k2", "k3"}, completer.keys())
	for _, c := range completer.calls {
		assert.Equal(t, "https://llama.test/v1", c.baseURL)
		assert.Equal(t, "llama3-70b-8192", c.model)
	}
}

func TestGateway_ReturnsOnFirstSuccess(t *testing.T) {
	completer := &scriptedCompleter{}
	g := newTestGateway(t, completer, "k1", "k2")

	reply, err := g.Send(context.Background(), "llama3-70b-8192", history)
	require.NoError(t, err)
	assert.Equal(t, "reply from k1", reply)
	assert.Len(t, completer.calls, 1)
}

func TestGateway_ProvidersExhausted(t *testing.T) {
	quota := errors.New("quota exceeded")
	completer := &scriptedCompleter{results: map[string]error{"k1": quota, "k2": quota, "k3": quota}}
	g := newTestGateway(t, completer, "k1", "k2", "k3")

	_, err := g.Send(context.Background(), "llama3-70b-8192", history)
	require.ErrorIs(t, err, ErrProvidersExhausted)
	assert.ErrorIs(t, err, quota)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, GroupLlama, exhausted.Group)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Equal(t, []string{"k1", "k2", "k3"}, completer.keys())
}

func TestGateway_NoCredentials(t *testing.T) {
	completer := &scriptedCompleter{}
	g := newTestGateway(t, completer)

	_, err := g.Send(context.Background(), "llama3-70b-8192", history)
	assert.ErrorIs(t, err, ErrProvidersExhausted)
	assert.Empty(t, completer.calls)
}

func TestGateway_FatalErrorStopsChain(t *testing.T) {
	fatal := errors.New("invalid request: messages must not be empty")
	completer := &scriptedCompleter{results: map[string]error{"k1": fatal}}
	g := newTestGateway(t, completer, "k1", "k2")

	_, err := g.Send(context.Background(), "llama3-70b-8192", history)
	require.ErrorIs(t, err, fatal)
	assert.NotErrorIs(t, err, ErrProvidersExhausted)
	assert.Equal(t, []string{"k1"}, completer.keys())
}

func TestGateway_UnknownModel(t *testing.T) {
	completer := &scriptedCompleter{}
	g := newTestGateway(t, completer, "k1")

	_, err := g.Send(context.Background(), "gpt-unknown", history)
	require.ErrorIs(t, err, ErrUnknownModel)

	var unknown *UnknownModelError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "gpt-unknown", unknown.Model)
	assert.Empty(t, completer.calls)
	assert.False(t, g.Supports("gpt-unknown"))
	assert.True(t, g.Supports("gemini-2.0-flash"))
}

func TestGateway_RoutesByGroup(t *testing.T) {
	completer := &scriptedCompleter{}
	g := newTestGateway(t, completer, "k1")

	reply, err := g.Send(context.Background(), "gemini-2.0-flash", history)
	require.NoError(t, err)
	assert.Equal(t, "reply from g1", reply)
	assert.Equal(t, "https://gemini.test/", completer.calls[0].baseURL)
}

func TestGateway_Models(t *testing.T) {
	g := newTestGateway(t, &scriptedCompleter{}, "k1")
	assert.Equal(t, []ModelInfo{
		{Model: "llama3-70b-8192", Group: GroupLlama},
		{Model: "gemini-2.0-flash", Group: GroupGemini},
	}, g.Models())
}

func TestNewGateway_RejectsDuplicateModel(t *testing.T) {
	_, err := NewGateway([]Provider{
		{Group: GroupLlama, Models: []string{"shared"}},
		{Group: GroupDeepSeek, Models: []string{"shared"}},
	}, &scriptedCompleter{}, 0, nil)
	assert.ErrorContains(t, err, "shared")
}

type wrapped struct{ err error }

func (w wrapped) Error() string { return "call failed" }
func (w wrapped) Unwrap() error { return w.err }

func TestIsRetriable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"status 429", &openai.Error{StatusCode: 429}, true},
		{"status 401", &openai.Error{StatusCode: 401}, true},
		{"status 403", &openai.Error{StatusCode: 403}, true},
		{"status 400", &openai.Error{StatusCode: 400, Message: "bad request"}, false},
		{"status 500 with quota message", &openai.Error{StatusCode: 500, Message: "Quota exhausted"}, true},
		{"wrapped status", wrapped{&openai.Error{StatusCode: 429}}, true},
		{"quota text", errors.New("insufficient_quota"), true},
		{"unauthorized text", errors.New("Unauthorized"), true},
		{"other", errors.New("connection reset by peer"), false},
		{"invalid parameter", errors.New("invalid temperature"), false},
		{"too many requests text", errors.New("Too Many Requests"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetriable(tt.err))
		})
	}
}

func TestProvidersFromConfig(t *testing.T) {
	t.Setenv("TEST_LLAMA_A", "first")
	t.Setenv("TEST_LLAMA_B", "")
	t.Setenv("TEST_LLAMA_C", "third")

	providers, err := ProvidersFromConfig(map[string]config.GroupConfig{
		"deepseek": {BaseURL: "https://ds.test", Models: []string{"ds"}},
		"llama": {
			BaseURL:       "https://llama.test",
			Models:        []string{"llama3-70b-8192"},
			CredentialEnv: []string{"TEST_LLAMA_A", "TEST_LLAMA_B", "TEST_LLAMA_C"},
		},
	})
	require.NoError(t, err)
	require.Len(t, providers, 2)
	assert.Equal(t, GroupLlama, providers[0].Group)
	assert.Equal(t, []string{"first", "third"}, providers[0].Credentials)
	assert.Equal(t, GroupDeepSeek, providers[1].Group)

	_, err = ProvidersFromConfig(map[string]config.GroupConfig{"mistral": {}})
	assert.Error(t, err)
}

func TestParseGroup(t *testing.T) {
	for _, g := range Groups() {
		parsed, err := ParseGroup(g.String())
		require.NoError(t, err)
		assert.Equal(t, g, parsed)
	}
	_, err := ParseGroup("openai")
	assert.Error(t, err)
}
