// Package assist connects the AI gateway and the result interpreter to the
// entity collections: it turns a prompt or attachment into a form patch.
package assist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kalambet/localdesk/internal/domain"
	"github.com/kalambet/localdesk/internal/entity"
	"github.com/kalambet/localdesk/internal/gateway"
	"github.com/kalambet/localdesk/internal/interpret"
)

// DefaultRetention is how many outcomes are remembered.
const DefaultRetention = 100

var (
	ErrNoInput        = errors.New("nothing to interpret: give text or an attachment")
	ErrUnknownRequest = errors.New("unknown assist request")
)

// Status is the lifecycle stage of one request.
type Status string

const (
	StatusLoading Status = "loading"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Request asks for a form of one collection to be filled.
type Request struct {
	Collection string
	// EntityID, when set, interprets the response against that record.
	EntityID string
	Input    string
	// Current overrides the values the response is interpreted against.
	Current    entity.Patch
	Attachment *gateway.Attachment
}

// Outcome is what callers poll for.
type Outcome struct {
	ID         string            `json:"id"`
	Collection string            `json:"collection"`
	EntityID   string            `json:"entityId,omitempty"`
	Status     Status            `json:"status"`
	Result     *interpret.Result `json:"result,omitempty"`
	Error      string            `json:"error,omitempty"`
	Superseded bool              `json:"superseded"`
	StartedAt  time.Time         `json:"startedAt"`
}

// PromptContexter supplies a line about the user for prompts.
type PromptContexter interface {
	PromptContext() string
}

type entry struct {
	call    *gateway.Call
	status  Status
	raw     string
	err     error
	started time.Time

	// Filled by Submit once Send returns; callbacks may run before that.
	ready    bool
	coll     string
	entityID string
	form     interpret.Form
	current  entity.Patch
	result   *interpret.Result
}

// Service submits assist requests and keeps their outcomes by id.
type Service struct {
	reg     *domain.Registry
	gw      *gateway.Gateway
	gwOpts  []gateway.Option
	ctxLine PromptContexter
	base    context.Context
	logger  *slog.Logger
	retain  int

	mu      sync.Mutex
	entries map[string]*entry
	order   []string
}

// Option configures a Service.
type Option func(*Service)

// WithGatewayOptions passes options through to the gateway.
func WithGatewayOptions(opts ...gateway.Option) Option {
	return func(s *Service) { s.gwOpts = append(s.gwOpts, opts...) }
}

func WithPromptContext(p PromptContexter) Option {
	return func(s *Service) { s.ctxLine = p }
}

// WithBaseContext bounds every backend call by ctx instead of the caller's
// context, so requests outlive the HTTP handler that submitted them.
func WithBaseContext(ctx context.Context) Option {
	return func(s *Service) { s.base = ctx }
}

func WithRetention(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.retain = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New builds a Service whose gateway talks to backend.
func New(backend gateway.Backend, reg *domain.Registry, opts ...Option) *Service {
	s := &Service{
		reg:     reg,
		logger:  slog.Default(),
		retain:  DefaultRetention,
		entries: make(map[string]*entry),
	}
	for _, o := range opts {
		o(s)
	}
	gwOpts := append([]gateway.Option{gateway.WithLogger(s.logger)}, s.gwOpts...)
	s.gw = gateway.New(backend, gateway.Callbacks{
		OnLoading: s.onLoading,
		OnResult:  s.onResult,
		OnError:   s.onError,
	}, gwOpts...)
	return s
}

// Gateway exposes the underlying gateway, e.g. for its State.
func (s *Service) Gateway() *gateway.Gateway { return s.gw }

// Submit validates req and sends it. It returns the request id at once; the
// outcome is available through Outcome or Wait.
func (s *Service) Submit(ctx context.Context, req Request) (string, error) {
	coll, err := s.reg.Get(req.Collection)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(req.Input) == "" && req.Attachment == nil {
		return "", ErrNoInput
	}

	current := req.Current
	if current == nil && req.EntityID != "" {
		cur, ok := coll.Current(req.EntityID)
		if !ok {
			return "", fmt.Errorf("%s %q: %w", coll.Name(), req.EntityID, domain.ErrNotFound)
		}
		current = cur
	}

	form := coll.Form()
	prompt := interpret.BuildPrompt(form, req.Input)
	if s.ctxLine != nil {
		if line := s.ctxLine.PromptContext(); line != "" {
			prompt = line + "\n\n" + prompt
		}
	}

	if s.base != nil {
		ctx = s.base
	}
	call := s.gw.Send(ctx, prompt, req.Attachment)

	s.mu.Lock()
	e := s.ensureLocked(call.ID())
	e.call = call
	e.ready = true
	e.coll = coll.Name()
	e.entityID = req.EntityID
	e.form = form
	e.current = current
	s.mu.Unlock()

	s.logger.Info("assist submitted", "request_id", call.ID(), "collection", coll.Name(), "attachment", req.Attachment != nil)
	return call.ID(), nil
}

// Outcome returns the current outcome of request id.
func (s *Service) Outcome(id string) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok || !e.ready {
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownRequest, id)
	}
	return s.outcomeLocked(id, e), nil
}

// Wait blocks until request id settles or ctx ends, then returns its outcome.
func (s *Service) Wait(ctx context.Context, id string) (Outcome, error) {
	s.mu.Lock()
	e, ok := s.entries[id]
	var call *gateway.Call
	if ok {
		call = e.call
	}
	s.mu.Unlock()
	if call == nil {
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownRequest, id)
	}

	select {
	case <-call.Done():
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
	return s.Outcome(id)
}

func (s *Service) outcomeLocked(id string, e *entry) Outcome {
	out := Outcome{
		ID:         id,
		Collection: e.coll,
		EntityID:   e.entityID,
		Status:     e.status,
		StartedAt:  e.started,
	}
	if e.call != nil {
		out.Superseded = e.call.Superseded()
	}
	switch e.status {
	case StatusDone:
		if e.result == nil {
			r := interpret.Interpret(e.raw, e.form, e.current)
			e.result = &r
		}
		r := *e.result
		out.Result = &r
	case StatusError:
		out.Error = e.err.Error()
	}
	return out
}

// --- gateway callbacks ---

func (s *Service) onLoading(id string, loading bool) {
	s.mu.Lock()
	e := s.ensureLocked(id)
	if loading {
		e.status = StatusLoading
	}
	s.mu.Unlock()
	s.logger.Debug("assist loading", "request_id", id, "loading", loading)
}

func (s *Service) onResult(id, text string) {
	s.mu.Lock()
	e := s.ensureLocked(id)
	e.status = StatusDone
	e.raw = text
	s.mu.Unlock()
	s.logger.Info("assist result", "request_id", id, "chars", len(text))
}

func (s *Service) onError(id string, err error) {
	s.mu.Lock()
	e := s.ensureLocked(id)
	e.status = StatusError
	e.err = err
	s.mu.Unlock()
	s.logger.Warn("assist failed", "request_id", id, "error", err)
}

// ensureLocked returns the entry for id, creating it and evicting the
// oldest settled entries beyond the retention limit.
func (s *Service) ensureLocked(id string) *entry {
	if e, ok := s.entries[id]; ok {
		return e
	}
	e := &entry{status: StatusLoading, started: time.Now()}
	s.entries[id] = e
	s.order = append(s.order, id)

	for i := 0; len(s.entries) > s.retain && i < len(s.order); {
		old := s.entries[s.order[i]]
		if old != nil && old.status == StatusLoading {
			i++
			continue
		}
		delete(s.entries, s.order[i])
		s.order = append(s.order[:i], s.order[i+1:]...)
	}
	return e
}
