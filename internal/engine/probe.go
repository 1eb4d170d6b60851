package engine

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/kalambet/localdesk/internal/ollama"
	"github.com/kalambet/localdesk/internal/proxy"
)

// Check is one line of a backend health report.
type Check struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail"`
}

// Probe reports whether the configured backend is usable. It never
// returns an error; failures are recorded as checks.
func Probe(ctx context.Context, cfg Config) []Check {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	provider := ResolveProvider(cfg)
	checks := []Check{{Name: "provider", OK: true, Detail: provider}}

	switch provider {
	case ProviderGemini:
		checks = append(checks, keyCheck("gemini.api_key", cfg.GeminiAPIKey))

	case ProviderOllama:
		c := ollama.New(cfg.OllamaBaseURL)
		running := c.IsRunning(ctx)
		checks = append(checks, Check{Name: "ollama", OK: running, Detail: cfg.OllamaBaseURL})
		if running {
			model := cfg.Model
			if model == "" {
				model = defaultOllamaModel
			}
			checks = append(checks, Check{Name: "model " + model, OK: c.HasModel(ctx, model), Detail: "run `localdesk doctor --pull` to download"})
		}

	case ProviderOpenRouter:
		kc := keyCheck("proxy.openrouter_api_key", cfg.OpenRouterAPIKey)
		checks = append(checks, kc)
		if kc.OK {
			client := proxy.NewClient(cfg.OpenRouterAPIKey)
			if cfg.OpenRouterBaseURL != "" {
				client = proxy.NewClientWithBaseURL(cfg.OpenRouterAPIKey, cfg.OpenRouterBaseURL)
			}
			models, err := client.ListModels(ctx)
			if err != nil {
				checks = append(checks, Check{Name: "openrouter", Detail: err.Error()})
			} else {
				checks = append(checks, Check{Name: "openrouter", OK: true, Detail: fmt.Sprintf("%d models available", len(models))})
			}
		}

	default:
		checks[0] = Check{Name: "provider", Detail: fmt.Sprintf("unknown provider %q", cfg.Provider)}
	}
	return checks
}

// PrepareOllama pulls and warms the configured Ollama model.
func PrepareOllama(ctx context.Context, cfg Config, w io.Writer) error {
	model := cfg.Model
	if model == "" {
		model = defaultOllamaModel
	}
	return ollama.EnsureReady(ctx, ollama.New(cfg.OllamaBaseURL), model, w)
}

func keyCheck(name, value string) Check {
	if value == "" {
		return Check{Name: name, Detail: "not set"}
	}
	return Check{Name: name, OK: true, Detail: "set"}
}
