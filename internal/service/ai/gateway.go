// Package ai talks to the remote model gateway and produces image replies.
package ai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"gemchat/internal/config"
)

const (
	TextTemperature  float32 = 0.7
	TextMaxTokens            = 2048
	ImageMaxTokens           = 1000
	FallbackResponse         = "I apologize, but I couldn't generate a response."
)

// ErrMissingAPIKey is matched by MissingKeyError.
var ErrMissingAPIKey = errors.New("api key not configured")

// MissingKeyError reports the environment variable that was empty.
type MissingKeyError struct {
	Env string
}

func (e *MissingKeyError) Error() string {
	return e.Env + " not configured"
}

func (e *MissingKeyError) Is(target error) bool {
	return target == ErrMissingAPIKey
}

// ModelFactory builds a chat model for a provider and credential.
type ModelFactory func(ctx context.Context, provider string, cfg config.ProviderConfig, apiKey string) (model.BaseChatModel, error)

// Gateway resolves the credential on every call and hands out one cached
// chat model per credential.
type Gateway struct {
	provider  string
	cfg       config.ProviderConfig
	factory   ModelFactory
	lookupEnv func(string) (string, bool)
	log       *zap.Logger

	mu     sync.Mutex
	models map[string]model.BaseChatModel
}

type GatewayOption func(*Gateway)

// WithModelFactory replaces the eino-backed factory.
func WithModelFactory(f ModelFactory) GatewayOption {
	return func(g *Gateway) { g.factory = f }
}

// WithEnvLookup replaces os.LookupEnv for credential lookup.
func WithEnvLookup(fn func(string) (string, bool)) GatewayOption {
	return func(g *Gateway) { g.lookupEnv = fn }
}

func WithLogger(l *zap.Logger) GatewayOption {
	return func(g *Gateway) {
		if l != nil {
			g.log = l
		}
	}
}

func NewGateway(provider string, cfg config.ProviderConfig, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		provider:  provider,
		cfg:       cfg,
		factory:   NewChatModel,
		lookupEnv: os.LookupEnv,
		log:       zap.NewNop(),
		models:    make(map[string]model.BaseChatModel),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.cfg.APIKeyEnv == "" {
		g.cfg.APIKeyEnv = strings.ToUpper(provider) + "_API_KEY"
	}
	return g
}

// Provider returns the configured provider name.
func (g *Gateway) Provider() string {
	return g.provider
}

// Model returns the chat model for the current credential.
func (g *Gateway) Model(ctx context.Context) (model.BaseChatModel, error) {
	key, _ := g.lookupEnv(g.cfg.APIKeyEnv)
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, &MissingKeyError{Env: g.cfg.APIKeyEnv}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if m, ok := g.models[key]; ok {
		return m, nil
	}
	m, err := g.factory(ctx, g.provider, g.cfg, key)
	if err != nil {
		return nil, fmt.Errorf("init %s model: %w", g.provider, err)
	}
	g.models[key] = m
	g.log.Info("gateway model initialized", zap.String("provider", g.provider), zap.String("model", g.cfg.Model))
	return m, nil
}

// Complete sends a single user prompt and returns the reply text. An empty
// reply is returned as "" so callers can pick their own fallback.
func (g *Gateway) Complete(ctx context.Context, prompt string, temperature float32, maxTokens int) (string, error) {
	m, err := g.Model(ctx)
	if err != nil {
		return "", err
	}
	out, err := m.Generate(ctx,
		[]*schema.Message{schema.UserMessage(prompt)},
		model.WithTemperature(temperature),
		model.WithMaxTokens(maxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	if out == nil {
		return "", nil
	}
	return strings.TrimSpace(out.Content), nil
}

// Chat answers a text prompt, substituting FallbackResponse for an empty reply.
func (g *Gateway) Chat(ctx context.Context, prompt string) (string, error) {
	text, err := g.Complete(ctx, prompt, TextTemperature, TextMaxTokens)
	if err != nil {
		return "", err
	}
	if text == "" {
		return FallbackResponse, nil
	}
	return text, nil
}

// NewChatModel builds the eino chat model for the named provider.
func NewChatModel(ctx context.Context, provider string, cfg config.ProviderConfig, apiKey string) (model.BaseChatModel, error) {
	switch provider {
	case "gemini":
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("new genai client: %w", err)
		}
		return gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  cfg.Model,
		})
	case "openai":
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			APIKey:  apiKey,
		})
	case "claude":
		var baseURL *string
		if cfg.BaseURL != "" {
			baseURL = &cfg.BaseURL
		}
		return claude.NewChatModel(ctx, &claude.Config{
			APIKey:    apiKey,
			Model:     cfg.Model,
			BaseURL:   baseURL,
			MaxTokens: TextMaxTokens,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
}

// Ready reports whether a credential is present without building a model.
func (g *Gateway) Ready() error {
	key, _ := g.lookupEnv(g.cfg.APIKeyEnv)
	if strings.TrimSpace(key) == "" {
		return &MissingKeyError{Env: g.cfg.APIKeyEnv}
	}
	return nil
}
