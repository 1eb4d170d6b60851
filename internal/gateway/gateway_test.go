package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// --- mocks ---

type mockBackend struct {
	mu     sync.Mutex
	reqs   []Request
	gates  map[string]chan string
	accept func(string) bool
	fn     func(ctx context.Context, req Request) (string, error)
}

func newMockBackend() *mockBackend {
	return &mockBackend{gates: make(map[string]chan string)}
}

// gate makes the backend block on prompt until release is called.
func (m *mockBackend) gate(prompt string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gates[prompt] = make(chan string, 1)
}

func (m *mockBackend) release(prompt, reply string) {
	m.mu.Lock()
	ch := m.gates[prompt]
	m.mu.Unlock()
	ch <- reply
}

func (m *mockBackend) Generate(ctx context.Context, req Request) (string, error) {
	m.mu.Lock()
	m.reqs = append(m.reqs, req)
	ch := m.gates[req.Prompt]
	fn := m.fn
	m.mu.Unlock()

	if ch != nil {
		select {
		case reply := <-ch:
			return reply, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if fn != nil {
		return fn(ctx, req)
	}
	return "echo: " + req.Prompt, nil
}

func (m *mockBackend) lastRequest() Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reqs[len(m.reqs)-1]
}

type acceptingBackend struct {
	*mockBackend
}

func (a acceptingBackend) Accepts(mimeType string) bool {
	return mimeType == "application/pdf" || strings.HasPrefix(mimeType, "image/")
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnLoading: func(id string, loading bool) { r.add(fmt.Sprintf("loading:%s:%t", id, loading)) },
		OnResult:  func(id, text string) { r.add(fmt.Sprintf("result:%s:%s", id, text)) },
		OnError:   func(id string, err error) { r.add(fmt.Sprintf("error:%s", id)) },
	}
}

func waitCall(t *testing.T, c *Call) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	text, err := c.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
		t.Fatalf("call %s did not settle", c.ID())
	}
	return text, err
}

// --- tests ---

func TestSend_Success(t *testing.T) {
	rec := &recorder{}
	g := New(newMockBackend(), rec.callbacks())

	c := g.Send(context.Background(), "hello", nil)
	text, err := waitCall(t, c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "echo: hello" {
		t.Errorf("text = %q", text)
	}

	want := []string{
		"loading:" + c.ID() + ":true",
		"loading:" + c.ID() + ":false",
		"result:" + c.ID() + ":echo: hello",
	}
	got := rec.snapshot()
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("events = %v, want %v", got, want)
	}

	st := g.State()
	if st.Loading || st.Result != "echo: hello" || st.Err != nil || st.RequestID != c.ID() {
		t.Errorf("unexpected state: %+v", st)
	}
}

func TestSend_LoadingDeliveredBeforeReturn(t *testing.T) {
	rec := &recorder{}
	b := newMockBackend()
	b.gate("slow")
	g := New(b, rec.callbacks())

	c := g.Send(context.Background(), "slow", nil)
	if got := rec.snapshot(); len(got) != 1 || got[0] != "loading:"+c.ID()+":true" {
		t.Fatalf("expected loading event before Send returned, got %v", got)
	}
	if !g.State().Loading {
		t.Error("expected Loading while pending")
	}

	b.release("slow", "done")
	waitCall(t, c)
}

func TestSend_EmptyPromptRejected(t *testing.T) {
	rec := &recorder{}
	b := newMockBackend()
	g := New(b, rec.callbacks())

	c := g.Send(context.Background(), "   ", nil)
	_, err := waitCall(t, c)
	if !errors.Is(err, ErrEmptyPrompt) {
		t.Fatalf("expected ErrEmptyPrompt, got %v", err)
	}
	if len(b.reqs) != 0 {
		t.Error("backend must not be called for an empty prompt")
	}

	var errorsSeen int
	for _, e := range rec.snapshot() {
		if strings.HasPrefix(e, "error:") {
			errorsSeen++
		}
		if strings.HasPrefix(e, "result:") {
			t.Errorf("unexpected result event %q", e)
		}
	}
	if errorsSeen != 1 {
		t.Errorf("expected exactly one error event, got %d", errorsSeen)
	}
}

func TestSend_LastSettledWins(t *testing.T) {
	rec := &recorder{}
	b := newMockBackend()
	b.gate("first")
	b.gate("second")
	g := New(b, rec.callbacks())

	first := g.Send(context.Background(), "first", nil)
	second := g.Send(context.Background(), "second", nil)

	if !first.Superseded() || second.Superseded() {
		t.Fatal("expected only the first call to be superseded")
	}

	b.release("second", "from second")
	waitCall(t, second)

	st := g.State()
	if !st.Loading || st.Pending != 1 {
		t.Errorf("expected loading with one pending, got %+v", st)
	}
	if st.Result != "from second" {
		t.Errorf("expected second result visible, got %q", st.Result)
	}

	b.release("first", "from first")
	waitCall(t, first)

	st = g.State()
	if st.Loading {
		t.Error("expected loading false after both settle")
	}
	if st.Result != "from first" || st.RequestID != first.ID() {
		t.Errorf("expected the later-settling first call to win, got %+v", st)
	}

	var results int
	for _, e := range rec.snapshot() {
		if strings.HasPrefix(e, "result:") {
			results++
		}
	}
	if results != 2 {
		t.Errorf("expected one result per call, got %d", results)
	}
}

func TestSend_ErrorClearsResult(t *testing.T) {
	b := newMockBackend()
	g := New(b, Callbacks{})

	waitCall(t, g.Send(context.Background(), "ok", nil))

	b.fn = func(context.Context, Request) (string, error) { return "", errors.New("boom") }
	c := g.Send(context.Background(), "fail", nil)
	if _, err := waitCall(t, c); err == nil {
		t.Fatal("expected error")
	}
	st := g.State()
	if st.Err == nil || st.Result != "" {
		t.Errorf("expected error state with empty result, got %+v", st)
	}
}

func TestSend_Timeout(t *testing.T) {
	b := newMockBackend()
	b.fn = func(ctx context.Context, _ Request) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}
	g := New(b, Callbacks{}, WithTimeout(20*time.Millisecond))

	_, err := waitCall(t, g.Send(context.Background(), "slow", nil))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestSend_BackendPanicBecomesError(t *testing.T) {
	b := newMockBackend()
	b.fn = func(context.Context, Request) (string, error) { panic("kaboom") }
	rec := &recorder{}
	g := New(b, rec.callbacks())

	c := g.Send(context.Background(), "x", nil)
	if _, err := waitCall(t, c); err == nil || !strings.Contains(err.Error(), "kaboom") {
		t.Fatalf("expected panic to surface as error, got %v", err)
	}
}

func TestSend_CallbackMaySend(t *testing.T) {
	b := newMockBackend()
	var g *Gateway
	follow := make(chan *Call, 1)
	var once sync.Once
	g = New(b, Callbacks{
		OnResult: func(id, text string) {
			once.Do(func() { follow <- g.Send(context.Background(), "follow-up", nil) })
		},
	})

	waitCall(t, g.Send(context.Background(), "start", nil))

	select {
	case c := <-follow:
		if text, err := waitCall(t, c); err != nil || text != "echo: follow-up" {
			t.Fatalf("follow-up = %q, %v", text, err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("follow-up send from callback did not happen")
	}
}

func TestSend_ConcurrentCallsSettleOnce(t *testing.T) {
	var mu sync.Mutex
	settled := map[string]int{}
	g := New(newMockBackend(), Callbacks{
		OnResult: func(id, _ string) {
			mu.Lock()
			settled[id]++
			mu.Unlock()
		},
	})

	var calls []*Call
	for i := 0; i < 25; i++ {
		calls = append(calls, g.Send(context.Background(), fmt.Sprintf("p%d", i), nil))
	}
	for _, c := range calls {
		waitCall(t, c)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(settled) != 25 {
		t.Fatalf("expected 25 settled ids, got %d", len(settled))
	}
	for id, n := range settled {
		if n != 1 {
			t.Errorf("call %s settled %d times", id, n)
		}
	}
	if g.State().Loading {
		t.Error("expected idle gateway")
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	b := newMockBackend()
	g := New(b, Callbacks{}, WithMetrics(m))

	waitCall(t, g.Send(context.Background(), "a", nil))
	waitCall(t, g.Send(context.Background(), "", nil))

	if v := testutil.ToFloat64(m.requests.WithLabelValues("ok")); v != 1 {
		t.Errorf("ok = %v", v)
	}
	if v := testutil.ToFloat64(m.requests.WithLabelValues("rejected")); v != 1 {
		t.Errorf("rejected = %v", v)
	}
	if v := testutil.ToFloat64(m.inflight); v != 0 {
		t.Errorf("inflight = %v", v)
	}
}
