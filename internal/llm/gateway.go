// Package llm dispatches chat completions to provider groups, failing over
// across each group's credentials in declared order.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"golang.org/x/time/rate"

	"github.com/bull/pdfchat-server/internal/config"
)

const DefaultTimeout = 60 * time.Second

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the outgoing prompt.
type Message struct {
	Role    Role
	Content string
}

// Request is a single completion attempt with one credential.
type Request struct {
	BaseURL  string
	APIKey   string
	Model    string
	Messages []Message
}

// Completer performs one chat completion call.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Provider is one provider group's endpoint, models and ordered credentials.
type Provider struct {
	Group             ProviderGroup
	BaseURL           string
	Models            []string
	Credentials       []string
	RequestsPerSecond float64
}

// ModelInfo pairs a model name with the group serving it.
type ModelInfo struct {
	Model string        `json:"model"`
	Group ProviderGroup `json:"group"`
}

type provider struct {
	Provider
	limiter *rate.Limiter
}

// Gateway routes a model name to its provider group.
type Gateway struct {
	models    map[string]ProviderGroup
	providers map[ProviderGroup]*provider
	completer Completer
	timeout   time.Duration
	logger    *slog.Logger
}

// NewGateway builds the model table. A model may belong to one group only.
func NewGateway(providers []Provider, completer Completer, timeout time.Duration, logger *slog.Logger) (*Gateway, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	g := &Gateway{
		models:    make(map[string]ProviderGroup),
		providers: make(map[ProviderGroup]*provider),
		completer: completer,
		timeout:   timeout,
		logger:    logger,
	}
	for _, p := range providers {
		if _, ok := groupNames[p.Group]; !ok {
			return nil, fmt.Errorf("unknown provider group %d", int(p.Group))
		}
		if _, dup := g.providers[p.Group]; dup {
			return nil, fmt.Errorf("provider group %s configured twice", p.Group)
		}
		entry := &provider{Provider: p}
		if p.RequestsPerSecond > 0 {
			entry.limiter = rate.NewLimiter(rate.Limit(p.RequestsPerSecond), 1)
		}
		g.providers[p.Group] = entry

		for _, m := range p.Models {
			if other, dup := g.models[m]; dup {
				return nil, fmt.Errorf("model %q mapped to both %s and %s", m, other, p.Group)
			}
			g.models[m] = p.Group
		}
	}
	return g, nil
}

// ProvidersFromConfig resolves configured groups and their credentials.
func ProvidersFromConfig(groups map[string]config.GroupConfig) ([]Provider, error) {
	providers := make([]Provider, 0, len(groups))
	for name, gc := range groups {
		group, err := ParseGroup(name)
		if err != nil {
			return nil, err
		}
		providers = append(providers, Provider{
			Group:             group,
			BaseURL:           gc.BaseURL,
			Models:            gc.Models,
			Credentials:       gc.Credentials(),
			RequestsPerSecond: gc.RequestsPerSecond,
		})
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i].Group < providers[j].Group })
	return providers, nil
}

// Supports reports whether model is mapped to a provider group.
func (g *Gateway) Supports(model string) bool {
	_, ok := g.models[model]
	return ok
}

// Models lists the model table sorted by group, then name.
func (g *Gateway) Models() []ModelInfo {
	out := make([]ModelInfo, 0, len(g.models))
	for m, grp := range g.models {
		out = append(out, ModelInfo{Model: m, Group: grp})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Group != out[j].Group {
			return out[i].Group < out[j].Group
		}
		return out[i].Model < out[j].Model
	})
	return out
}

// Send returns the assistant reply for messages. Credentials of the model's
// group are tried in order; a retriable failure moves to the next one and
// any other failure is returned at once.
func (g *Gateway) Send(ctx context.Context, model string, messages []Message) (string, error) {
	group, ok := g.models[model]
	if !ok {
		return "", &UnknownModelError{Model: model}
	}
	p := g.providers[group]
	if len(p.Credentials) == 0 {
		return "", &ExhaustedError{Group: group}
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var last error
	for i, key := range p.Credentials {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return "", fmt.Errorf("wait for %s rate limit: %w", group, err)
			}
		}

		start := time.Now()
		reply, err := g.completer.Complete(ctx, Request{
			BaseURL:  p.BaseURL,
			APIKey:   key,
			Model:    model,
			Messages: messages,
		})
		if err == nil {
			g.logger.Debug("Completion succeeded", "group", group, "model", model, "credential", i, "duration", time.Since(start))
			return reply, nil
		}
		if !IsRetriable(err) {
			return "", fmt.Errorf("%s completion: %w", group, err)
		}

		g.logger.Warn("Credential rejected, trying next", "group", group, "model", model, "credential", i, "error", describe(err))
		last = err
	}

	return "", &ExhaustedError{Group: group, Attempts: len(p.Credentials), Last: last}
}

var retriableMarkers = []string{"quota", "limit", "unauthorized", "too many requests"}

// IsRetriable reports whether err signals quota exhaustion, rate limiting or
// an authorization failure, which should move on to the next credential.
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 401, 403, 429:
			return true
		}
		return containsMarker(apiErr.Message)
	}
	return containsMarker(err.Error())
}

func containsMarker(msg string) bool {
	msg = strings.ToLower(msg)
	for _, m := range retriableMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// describe avoids *openai.Error.Error, which dereferences the request.
func describe(err error) string {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("status %d: %s", apiErr.StatusCode, apiErr.Message)
	}
	return err.Error()
}
