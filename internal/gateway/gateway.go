// Package gateway issues prompts to a generative backend. Every request
// settles exactly once with a result or an error, and the visible state
// follows whichever request settled last.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEmptyPrompt           = errors.New("prompt is empty")
	ErrAttachmentTooLarge    = errors.New("attachment exceeds size limit")
	ErrUnsupportedAttachment = errors.New("unsupported attachment")
)

const (
	DefaultTimeout            = 60 * time.Second
	DefaultMaxAttachmentBytes = 10 << 20
)

// Backend generates text for a single prompt. Implementations must honour
// ctx cancellation.
type Backend interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// MediaAccepter is implemented by backends that take some attachment types
// natively. Backends without it receive images only.
type MediaAccepter interface {
	Accepts(mimeType string) bool
}

// Request is what a backend receives after attachment normalisation.
type Request struct {
	ID         string
	Prompt     string
	Attachment *Attachment
}

// Callbacks receive request lifecycle events. Each may be nil. Calls are
// serialised and arrive in settle order. A callback may call Send but must
// not block on another Call's Wait.
type Callbacks struct {
	OnLoading func(id string, loading bool)
	OnResult  func(id string, text string)
	OnError   func(id string, err error)
}

// State is the observable gateway state.
type State struct {
	Loading bool
	Pending int
	// RequestID identifies the request that produced Result or Err.
	RequestID string
	Result    string
	Err       error
}

type Option func(*Gateway)

func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func WithMaxAttachmentBytes(n int64) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.maxAttachment = n
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// Gateway sends prompts to a Backend without any queue: concurrent requests
// run in parallel and settle independently.
type Gateway struct {
	backend       Backend
	cb            Callbacks
	timeout       time.Duration
	maxAttachment int64
	metrics       *Metrics
	logger        *slog.Logger

	mu     sync.Mutex
	seq    uint64
	issued uint64
	state  State

	evMu     sync.Mutex
	queue    []event
	draining bool
}

func New(backend Backend, cb Callbacks, opts ...Option) *Gateway {
	g := &Gateway{
		backend:       backend,
		cb:            cb,
		timeout:       DefaultTimeout,
		maxAttachment: DefaultMaxAttachmentBytes,
		logger:        slog.Default(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Call is the handle for one in-flight request.
type Call struct {
	id   string
	seq  uint64
	g    *Gateway
	done chan struct{}
	text string
	err  error
}

func (c *Call) ID() string { return c.id }

// Done is closed after the call's settle callbacks have been delivered.
func (c *Call) Done() <-chan struct{} { return c.done }

// Wait blocks until the call settles or ctx ends.
func (c *Call) Wait(ctx context.Context) (string, error) {
	select {
	case <-c.done:
		return c.text, c.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Superseded reports whether a newer request has been issued since this one.
func (c *Call) Superseded() bool {
	c.g.mu.Lock()
	defer c.g.mu.Unlock()
	return c.g.issued > c.seq
}

// Send issues prompt with an optional attachment. OnLoading(id, true) is
// delivered before Send returns unless another goroutine is mid-delivery,
// in which case it follows that delivery.
func (g *Gateway) Send(ctx context.Context, prompt string, att *Attachment) *Call {
	c := &Call{id: newRequestID(), g: g, done: make(chan struct{})}

	g.mu.Lock()
	g.seq++
	g.issued = g.seq
	c.seq = g.seq
	g.state.Pending++
	g.state.Loading = true
	g.mu.Unlock()

	g.metrics.started()
	g.emit(event{kind: evLoading, call: c})

	go g.run(ctx, c, prompt, att)
	return c
}

// State returns a snapshot of the current state.
func (g *Gateway) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Timeout reports the per-request deadline.
func (g *Gateway) Timeout() time.Duration { return g.timeout }

func (g *Gateway) run(ctx context.Context, c *Call, prompt string, att *Attachment) {
	start := time.Now()
	text, err := g.do(ctx, c.id, prompt, att)
	g.metrics.finished(time.Since(start), err)

	if err != nil {
		g.logger.Warn("ai request failed", "request_id", c.id, "error", err, "elapsed", time.Since(start))
	} else {
		g.logger.Debug("ai request completed", "request_id", c.id, "chars", len(text), "elapsed", time.Since(start))
	}

	c.text, c.err = text, err
	g.emit(event{kind: evSettled, call: c})
}

func (g *Gateway) do(ctx context.Context, id, prompt string, att *Attachment) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("backend panic: %v", r)
		}
	}()

	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}
	req, err := g.prepare(id, prompt, att)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	text, err = g.backend.Generate(ctx, req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
		return "", err
	}
	return text, nil
}

func newRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// --- event delivery ---

type eventKind int

const (
	evLoading eventKind = iota
	evSettled
)

type event struct {
	kind eventKind
	call *Call
}

// emit enqueues ev and, if no goroutine is currently delivering, delivers
// the queue on the calling goroutine. Callbacks therefore never overlap and
// a callback that calls Send only enqueues.
func (g *Gateway) emit(ev event) {
	g.evMu.Lock()
	g.queue = append(g.queue, ev)
	if g.draining {
		g.evMu.Unlock()
		return
	}
	g.draining = true
	g.evMu.Unlock()

	for {
		g.evMu.Lock()
		if len(g.queue) == 0 {
			g.draining = false
			g.evMu.Unlock()
			return
		}
		next := g.queue[0]
		g.queue = g.queue[1:]
		g.evMu.Unlock()

		g.deliver(next)
	}
}

func (g *Gateway) deliver(ev event) {
	c := ev.call
	switch ev.kind {
	case evLoading:
		g.callLoading(c.id, true)
	case evSettled:
		g.mu.Lock()
		g.state.Pending--
		g.state.Loading = g.state.Pending > 0
		g.state.RequestID = c.id
		if c.err != nil {
			g.state.Result = ""
			g.state.Err = c.err
		} else {
			g.state.Result = c.text
			g.state.Err = nil
		}
		g.mu.Unlock()

		g.callLoading(c.id, false)
		if c.err != nil {
			g.safely(func() {
				if g.cb.OnError != nil {
					g.cb.OnError(c.id, c.err)
				}
			})
		} else {
			g.safely(func() {
				if g.cb.OnResult != nil {
					g.cb.OnResult(c.id, c.text)
				}
			})
		}
		close(c.done)
	}
}

func (g *Gateway) callLoading(id string, loading bool) {
	g.safely(func() {
		if g.cb.OnLoading != nil {
			g.cb.OnLoading(id, loading)
		}
	})
}

// safely runs a callback and logs any panic it raises.
func (g *Gateway) safely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("gateway callback panicked", "panic", r)
		}
	}()
	fn()
}
