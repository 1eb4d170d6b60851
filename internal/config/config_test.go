package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// memBackend is an in-memory ConfigBackend.
type memBackend struct {
	data map[string]any
}

func newMemBackend() *memBackend { return &memBackend{data: map[string]any{}} }

func (m *memBackend) GetString(key string) (string, bool, error) {
	v, ok := m.data[key]
	if !ok {
		return "", false, nil
	}
	s, _ := v.(string)
	return s, true, nil
}

func (m *memBackend) GetInt(key string) (int, bool, error) {
	v, ok := m.data[key]
	if !ok {
		return 0, false, nil
	}
	i, ok := v.(int)
	if !ok {
		return 0, true, errors.New("not an int")
	}
	return i, true, nil
}

func (m *memBackend) SetString(key, val string) error { m.data[key] = val; return nil }
func (m *memBackend) SetInt(key string, val int) error { m.data[key] = val; return nil }
func (m *memBackend) Delete(key string) error { delete(m.data, key); return nil }

// mockKeychain is a test double for the Keychain interface.
type mockKeychain struct {
	secrets map[string]string
	err     error
}

func newMockKeychain() *mockKeychain { return &mockKeychain{secrets: map[string]string{}} }

func (m *mockKeychain) Get(service, account string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	v, ok := m.secrets[service+"/"+account]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func (m *mockKeychain) Set(service, account, value string) error {
	if m.err != nil {
		return m.err
	}
	m.secrets[service+"/"+account] = value
	return nil
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(newMemBackend(), newMockKeychain())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want 4100", cfg.Server.Port)
	}
	if cfg.AI.Provider != "auto" {
		t.Errorf("AI.Provider = %q, want auto", cfg.AI.Provider)
	}
	if cfg.AI.Timeout != 60*time.Second {
		t.Errorf("AI.Timeout = %s, want 1m0s", cfg.AI.Timeout)
	}
	if cfg.AI.MaxAttachmentBytes != 10<<20 {
		t.Errorf("AI.MaxAttachmentBytes = %d", cfg.AI.MaxAttachmentBytes)
	}
	if cfg.Ollama.BaseURL != "http://localhost:11434" {
		t.Errorf("Ollama.BaseURL = %q", cfg.Ollama.BaseURL)
	}
	if cfg.App.Currency != "USD" {
		t.Errorf("App.Currency = %q, want USD", cfg.App.Currency)
	}
	if cfg.Storage.DataDir == "" {
		t.Error("Storage.DataDir should have a default")
	}
	if cfg.Gemini.APIKey != "" || cfg.Proxy.OpenRouterAPIKey != "" {
		t.Error("no API keys expected by default")
	}
}

func TestBackendValues(t *testing.T) {
	clearEnv(t)
	b := newMemBackend()
	b.data["server.port"] = 9000
	b.data["ai.provider"] = "ollama"
	b.data["ai.timeout"] = "15s"
	b.data["app.currency"] = "eur"
	b.data["storage.data_dir"] = "/tmp/localdesk-test"

	cfg, err := loadWith(b, newMockKeychain())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.AI.Provider != "ollama" {
		t.Errorf("AI.Provider = %q", cfg.AI.Provider)
	}
	if cfg.AI.Timeout != 15*time.Second {
		t.Errorf("AI.Timeout = %s, want 15s", cfg.AI.Timeout)
	}
	if cfg.App.Currency != "EUR" {
		t.Errorf("App.Currency = %q, want EUR", cfg.App.Currency)
	}
	if cfg.Storage.DataDir != "/tmp/localdesk-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
}

func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	b := newMemBackend()
	b.data["server.port"] = 9000
	t.Setenv("LOCALDESK_SERVER_PORT", "9999")
	t.Setenv("LOCALDESK_AI_TIMEOUT", "2m")
	t.Setenv("LOCALDESK_GEMINI_API_KEY", "env-key")

	cfg, err := loadWith(b, newMockKeychain())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.AI.Timeout != 2*time.Minute {
		t.Errorf("AI.Timeout = %s, want 2m", cfg.AI.Timeout)
	}
	if cfg.Gemini.APIKey != "env-key" {
		t.Errorf("Gemini.APIKey = %q, want env-key", cfg.Gemini.APIKey)
	}
}

func TestEnvOverride_BadValueKeepsDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOCALDESK_SERVER_PORT", "not-a-number")
	t.Setenv("LOCALDESK_AI_TIMEOUT", "soon")

	cfg, err := loadWith(newMemBackend(), newMockKeychain())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 4100 || cfg.AI.Timeout != 60*time.Second {
		t.Errorf("bad env values should keep defaults, got port=%d timeout=%s", cfg.Server.Port, cfg.AI.Timeout)
	}
}

func TestInvalidValues(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name string
		key  string
		val  any
		want string
	}{
		{"port out of range", "server.port", 70000, "server.port"},
		{"negative timeout", "ai.timeout", "-5s", "ai.timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newMemBackend()
			b.data[tt.key] = tt.val
			_, err := loadWith(b, newMockKeychain())
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestKeychainFallback(t *testing.T) {
	clearEnv(t)
	kc := newMockKeychain()
	kc.secrets["localdesk/openrouter_api_key"] = "kc-router"
	kc.secrets["localdesk/gemini_api_key"] = "kc-gemini"
	t.Setenv("LOCALDESK_GEMINI_API_KEY", "env-gemini")

	cfg, err := loadWith(newMemBackend(), kc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Proxy.OpenRouterAPIKey != "kc-router" {
		t.Errorf("OpenRouterAPIKey = %q, want keychain value", cfg.Proxy.OpenRouterAPIKey)
	}
	if cfg.Gemini.APIKey != "env-gemini" {
		t.Errorf("Gemini.APIKey = %q, env should win over keychain", cfg.Gemini.APIKey)
	}
}

func TestSecretsNeverReadFromBackend(t *testing.T) {
	clearEnv(t)
	b := newMemBackend()
	b.data["gemini.api_key"] = "plain-text"

	cfg, err := loadWith(b, newMockKeychain())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Gemini.APIKey != "" {
		t.Errorf("Gemini.APIKey = %q, secrets must not come from the config backend", cfg.Gemini.APIKey)
	}
}

func TestGetAPIToken(t *testing.T) {
	kc := newMockKeychain()

	first, err := GetAPIToken(kc)
	if err != nil {
		t.Fatalf("GetAPIToken: %v", err)
	}
	if first == "" {
		t.Fatal("expected a generated token")
	}
	second, err := GetAPIToken(kc)
	if err != nil {
		t.Fatalf("GetAPIToken: %v", err)
	}
	if first != second {
		t.Errorf("token changed between calls: %q vs %q", first, second)
	}

	kc.err = errors.New("locked")
	if _, err := GetAPIToken(kc); err == nil {
		t.Error("expected error when the keychain cannot store the token")
	}
}

func TestSetKey(t *testing.T) {
	b := newMemBackend()
	kc := newMockKeychain()

	if err := setKeyWith(b, kc, "server.port", "5000"); err != nil {
		t.Fatalf("set port: %v", err)
	}
	if b.data["server.port"] != 5000 {
		t.Errorf("server.port stored as %v", b.data["server.port"])
	}
	if err := setKeyWith(b, kc, "ai.timeout", "30s"); err != nil {
		t.Fatalf("set timeout: %v", err)
	}
	if err := setKeyWith(b, kc, "gemini.api_key", "secret"); err != nil {
		t.Fatalf("set secret: %v", err)
	}
	if _, ok := b.data["gemini.api_key"]; ok {
		t.Error("secret written to the plain config backend")
	}
	if kc.secrets["localdesk/gemini_api_key"] != "secret" {
		t.Error("secret not stored in keychain")
	}

	for _, bad := range [][2]string{
		{"server.port", "abc"},
		{"ai.timeout", "later"},
		{"no.such.key", "x"},
	} {
		if err := setKeyWith(b, kc, bad[0], bad[1]); err == nil {
			t.Errorf("setKeyWith(%s=%s) should fail", bad[0], bad[1])
		}
	}
}

func TestShowAll_MasksSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Gemini.APIKey = "super-secret"

	infos := ShowAll(cfg)
	if len(infos) != len(ValidKeys()) {
		t.Fatalf("ShowAll returned %d keys, want %d", len(infos), len(ValidKeys()))
	}
	for _, ki := range infos {
		if strings.Contains(ki.Value, "super-secret") {
			t.Errorf("%s leaks secret value", ki.Key)
		}
		if ki.Key == "gemini.api_key" && ki.Value != "(set)" {
			t.Errorf("gemini.api_key = %q, want (set)", ki.Value)
		}
		if ki.Key == "proxy.openrouter_api_key" && ki.Value != "(unset)" {
			t.Errorf("proxy.openrouter_api_key = %q, want (unset)", ki.Value)
		}
	}
}

func TestOriginsAndModelFor(t *testing.T) {
	cfg := defaults()
	cfg.Server.AllowedOrigins = " http://a.test , ,http://b.test"
	got := cfg.Server.Origins()
	if len(got) != 2 || got[0] != "http://a.test" || got[1] != "http://b.test" {
		t.Errorf("Origins() = %v", got)
	}

	if m := cfg.ModelFor("ollama"); m != "llava" {
		t.Errorf("ModelFor(ollama) = %q, want llava", m)
	}
	if m := cfg.ModelFor("gemini"); m != "" {
		t.Errorf("ModelFor(gemini) = %q, want empty (backend default)", m)
	}
	cfg.AI.Model = "custom"
	if m := cfg.ModelFor("openrouter"); m != "custom" {
		t.Errorf("ModelFor with ai.model = %q, want custom", m)
	}
}
