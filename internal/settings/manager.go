// Package settings manages the flat app settings object (current user,
// currency, UI preferences) kept in the store's settings table.
package settings

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Rhymond/go-money"
)

const (
	KeyUserName = "user.name"
	KeyCurrency = "app.currency"

	// Keys under this prefix are stored verbatim for the UI.
	uiPrefix = "ui."
)

var (
	ErrUnknownKey   = errors.New("unknown settings key")
	ErrInvalidValue = errors.New("invalid settings value")
)

// Store defines the storage operations the Manager needs.
// Implemented by storage.Store and storage.MemoryStore.
type Store interface {
	SetSetting(key, value string) error
	GetAllSettings() (map[string]string, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Settings is the resolved view: stored values over defaults.
type Settings struct {
	UserName string
	Currency string
	values   map[string]string
}

// Flat returns every setting as a key/value map.
func (s Settings) Flat() map[string]string {
	return maps.Clone(s.values)
}

// Manager provides cached access to settings.
type Manager struct {
	store    Store
	clock    Clock
	ttl      time.Duration
	defaults map[string]string

	mu       sync.RWMutex
	cached   *Settings
	cachedAt time.Time
}

// NewManager creates a Manager with a 60-second cache TTL. currency is the
// default for app.currency until the user sets one.
func NewManager(store Store, currency string) *Manager {
	return NewManagerWithClock(store, currency, realClock{}, 60*time.Second)
}

// NewManagerWithClock creates a Manager with a custom clock (for testing).
func NewManagerWithClock(store Store, currency string, clock Clock, ttl time.Duration) *Manager {
	if currency == "" {
		currency = "USD"
	}
	return &Manager{
		store: store,
		clock: clock,
		ttl:   ttl,
		defaults: map[string]string{
			KeyUserName: "",
			KeyCurrency: strings.ToUpper(currency),
		},
	}
}

// Get reads all settings from storage (or cache).
func (m *Manager) Get() (Settings, error) {
	m.mu.RLock()
	if m.cached != nil && m.clock.Now().Before(m.cachedAt.Add(m.ttl)) {
		s := copySettings(m.cached)
		m.mu.RUnlock()
		return s, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cached != nil && m.clock.Now().Before(m.cachedAt.Add(m.ttl)) {
		return copySettings(m.cached), nil
	}

	stored, err := m.store.GetAllSettings()
	if err != nil {
		return Settings{}, fmt.Errorf("loading settings: %w", err)
	}

	values := maps.Clone(m.defaults)
	for k, v := range stored {
		if err := validate(k, v); err != nil {
			slog.Warn("ignoring stored setting", "key", k, "error", err)
			continue
		}
		values[k] = v
	}
	s := Settings{UserName: values[KeyUserName], Currency: values[KeyCurrency], values: values}
	m.cached = &s
	m.cachedAt = m.clock.Now()
	return copySettings(&s), nil
}

// Set validates and persists one key, then invalidates the cache.
func (m *Manager) Set(key, value string) error {
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if key == KeyCurrency {
		value = strings.ToUpper(value)
	}
	if err := validate(key, value); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.SetSetting(key, value); err != nil {
		return fmt.Errorf("setting %q: %w", key, err)
	}
	m.cached = nil
	return nil
}

// SetMany applies every key in order, stopping at the first error.
func (m *Manager) SetMany(values map[string]string) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := m.Set(k, values[k]); err != nil {
			return err
		}
	}
	return nil
}

// PromptContext returns a short line describing the user for model prompts,
// or "" when nothing is configured.
func (m *Manager) PromptContext() string {
	s, err := m.Get()
	if err != nil {
		return ""
	}
	var parts []string
	if s.UserName != "" {
		parts = append(parts, fmt.Sprintf("The user is %s.", s.UserName))
	}
	if s.Currency != "" {
		parts = append(parts, fmt.Sprintf("Amounts are in %s unless stated otherwise.", s.Currency))
	}
	return strings.Join(parts, " ")
}

func validate(key, value string) error {
	switch {
	case key == KeyUserName:
		if len(value) > 200 {
			return fmt.Errorf("%w: %s is too long", ErrInvalidValue, key)
		}
		return nil
	case key == KeyCurrency:
		if money.GetCurrency(value) == nil {
			return fmt.Errorf("%w: %q is not an ISO 4217 currency code", ErrInvalidValue, value)
		}
		return nil
	case strings.HasPrefix(key, uiPrefix) && len(key) > len(uiPrefix):
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
}

func copySettings(s *Settings) Settings {
	if s == nil {
		return Settings{}
	}
	cp := *s
	cp.values = maps.Clone(s.values)
	return cp
}
