package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Log     LogConfig
	AI      AIConfig
	Ollama  OllamaConfig
	Gemini  GeminiConfig
	Proxy   ProxyConfig
	App     AppConfig
}

type ServerConfig struct {
	Port int
	// AllowedOrigins is a comma-separated CORS allow list for the browser UI.
	AllowedOrigins string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

type AIConfig struct {
	Provider           string
	Model              string
	Timeout            time.Duration
	MaxAttachmentBytes int
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type GeminiConfig struct {
	APIKey string
}

type ProxyConfig struct {
	OpenRouterAPIKey string
	DefaultModel     string
}

type AppConfig struct {
	Currency string
}

// Origins splits Server.AllowedOrigins into a list.
func (c ServerConfig) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// ModelFor returns the model to use with provider: ai.model when set,
// otherwise the provider-specific default.
func (c Config) ModelFor(provider string) string {
	if c.AI.Model != "" {
		return c.AI.Model
	}
	switch provider {
	case "ollama":
		return c.Ollama.Model
	case "openrouter":
		return c.Proxy.DefaultModel
	}
	return ""
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:           4100,
			AllowedOrigins: "http://localhost:5173",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
		AI: AIConfig{
			Provider:           "auto",
			Timeout:            60 * time.Second,
			MaxAttachmentBytes: 10 << 20,
		},
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434",
			Model:   "llava",
		},
		Proxy: ProxyConfig{
			DefaultModel: "google/gemini-2.0-flash-001",
		},
		App: AppConfig{
			Currency: "USD",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.localdesk.app) and
// secrets fall back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/localdesk/config.json
// and secrets fall back to $XDG_DATA_HOME/localdesk/secrets.json.
//
// Environment variables (LOCALDESK_*) override backend values on all platforms.
// No key is required: without API keys the gateway uses a local Ollama.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts Keychain access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

// Keychain reads and writes secrets in the platform secret store.
type Keychain interface {
	keychain
	Set(service, account, value string) error
}

// NewKeychain returns the platform secret store.
func NewKeychain() Keychain {
	return keychainReader{}
}

const keychainService = "localdesk"

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// Secrets not given through the environment come from the keychain.
	for _, s := range specs {
		if !s.secret || s.extract(cfg) != "" {
			continue
		}
		if v, err := kc.Get(keychainService, s.account); err == nil && v != "" {
			s.apply(&cfg, v)
		}
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return Config{}, fmt.Errorf("invalid server.port %d", cfg.Server.Port)
	}
	if cfg.AI.Timeout <= 0 {
		return Config{}, fmt.Errorf("invalid ai.timeout %s: must be positive", cfg.AI.Timeout)
	}
	cfg.App.Currency = strings.ToUpper(cfg.App.Currency)

	return cfg, nil
}

// GetAPIToken returns the bearer token guarding the local HTTP API,
// generating and storing one on first use.
func GetAPIToken(kc Keychain) (string, error) {
	if tok, err := kc.Get(keychainService, "api_token"); err == nil && tok != "" {
		return tok, nil
	}
	tok := uuid.NewString()
	if err := kc.Set(keychainService, "api_token", tok); err != nil {
		return "", fmt.Errorf("storing API token: %w", err)
	}
	return tok, nil
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (keychainReader) Set(service, account, value string) error {
	return keychainSet(service, account, value)
}
