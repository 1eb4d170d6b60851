// Package engine picks and probes the generative backend the gateway talks to.
package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/kalambet/localdesk/internal/gateway"
	"github.com/kalambet/localdesk/internal/gemini"
	"github.com/kalambet/localdesk/internal/ollama"
	"github.com/kalambet/localdesk/internal/proxy"
)

const (
	ProviderAuto       = "auto"
	ProviderGemini     = "gemini"
	ProviderOllama     = "ollama"
	ProviderOpenRouter = "openrouter"
)

const (
	defaultOllamaModel     = "llava"
	defaultOpenRouterModel = "google/gemini-2.0-flash-001"
)

// Config holds everything needed to construct any supported backend.
type Config struct {
	Provider         string
	Model            string
	GeminiAPIKey     string
	OllamaBaseURL    string
	OpenRouterAPIKey string
	// GeminiBaseURL and OpenRouterBaseURL override endpoints in tests.
	GeminiBaseURL     string
	OpenRouterBaseURL string
}

// Selected is the chosen backend with its provider and model names.
type Selected struct {
	Backend  gateway.Backend
	Provider string
	Model    string
}

// ResolveProvider maps "auto" to the first provider with credentials,
// falling back to a local Ollama.
func ResolveProvider(cfg Config) string {
	p := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if p != "" && p != ProviderAuto {
		return p
	}
	switch {
	case cfg.GeminiAPIKey != "":
		return ProviderGemini
	case cfg.OpenRouterAPIKey != "":
		return ProviderOpenRouter
	default:
		return ProviderOllama
	}
}

// Detect constructs the backend named by cfg.Provider.
func Detect(ctx context.Context, cfg Config) (Selected, error) {
	provider := ResolveProvider(cfg)
	switch provider {
	case ProviderGemini:
		b, err := gemini.New(ctx, gemini.Config{APIKey: cfg.GeminiAPIKey, Model: cfg.Model, BaseURL: cfg.GeminiBaseURL})
		if err != nil {
			return Selected{}, err
		}
		return Selected{Backend: b, Provider: provider, Model: b.Model()}, nil

	case ProviderOllama:
		model := cfg.Model
		if model == "" {
			model = defaultOllamaModel
		}
		b := ollama.NewBackend(ollama.New(cfg.OllamaBaseURL), model)
		return Selected{Backend: b, Provider: provider, Model: model}, nil

	case ProviderOpenRouter:
		if cfg.OpenRouterAPIKey == "" {
			return Selected{}, fmt.Errorf("openrouter: API key is not set")
		}
		model := cfg.Model
		if model == "" {
			model = defaultOpenRouterModel
		}
		client := proxy.NewClient(cfg.OpenRouterAPIKey)
		if cfg.OpenRouterBaseURL != "" {
			client = proxy.NewClientWithBaseURL(cfg.OpenRouterAPIKey, cfg.OpenRouterBaseURL)
		}
		return Selected{Backend: proxy.NewBackend(client, model), Provider: provider, Model: model}, nil

	default:
		return Selected{}, fmt.Errorf("unknown ai provider %q (want gemini, ollama or openrouter)", cfg.Provider)
	}
}
