package assist

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/localdesk/internal/domain"
	"github.com/kalambet/localdesk/internal/entity"
	"github.com/kalambet/localdesk/internal/gateway"
	"github.com/kalambet/localdesk/internal/interpret"
	"github.com/kalambet/localdesk/internal/storage"
	"github.com/kalambet/localdesk/internal/view"
)

// --- mocks ---

type stubBackend struct {
	mu      sync.Mutex
	prompts []string
	reply   string
	err     error
	block   chan struct{}
}

func (b *stubBackend) Generate(ctx context.Context, req gateway.Request) (string, error) {
	b.mu.Lock()
	b.prompts = append(b.prompts, req.Prompt)
	block := b.block
	b.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return b.reply, b.err
}

func (b *stubBackend) lastPrompt() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.prompts[len(b.prompts)-1]
}

type fixedContext string

func (f fixedContext) PromptContext() string { return string(f) }

func newTestService(t *testing.T, backend gateway.Backend, opts ...Option) (*Service, *domain.Registry) {
	t.Helper()
	reg := domain.NewRegistry(storage.NewMemoryStore(), nil)
	return New(backend, reg, opts...), reg
}

func waitOutcome(t *testing.T, s *Service, id string) Outcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := s.Wait(ctx, id)
	if err != nil {
		t.Fatalf("Wait(%s): %v", id, err)
	}
	return out
}

// --- tests ---

func TestSubmit_StructuredReceipt(t *testing.T) {
	backend := &stubBackend{reply: "Vendor: Acme\nTotal: 42.50"}
	s, _ := newTestService(t, backend, WithPromptContext(fixedContext("The user is Dana.")))

	id, err := s.Submit(context.Background(), Request{Collection: "transactions", Input: "lunch receipt"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	out := waitOutcome(t, s, id)
	if out.Status != StatusDone {
		t.Fatalf("Status = %s, want done", out.Status)
	}
	if out.Result == nil || out.Result.Kind != interpret.Structured {
		t.Fatalf("Result = %+v, want structured", out.Result)
	}
	if out.Result.Patch["vendor"] != "Acme" || out.Result.Patch["amount"] != 42.5 {
		t.Errorf("Patch = %v", out.Result.Patch)
	}

	prompt := backend.lastPrompt()
	if !strings.HasPrefix(prompt, "The user is Dana.") {
		t.Errorf("prompt does not start with user context: %q", prompt)
	}
	if !strings.Contains(prompt, `"vendor"`) || !strings.Contains(prompt, "lunch receipt") {
		t.Errorf("prompt missing form keys or input: %q", prompt)
	}
}

func TestSubmit_RawResult(t *testing.T) {
	s, _ := newTestService(t, &stubBackend{reply: "I can't read this, sorry."})

	id, err := s.Submit(context.Background(), Request{Collection: "tasks", Input: "?"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	out := waitOutcome(t, s, id)
	if out.Result == nil || out.Result.Kind != interpret.Raw || out.Result.Text != "I can't read this, sorry." {
		t.Errorf("Result = %+v, want raw text", out.Result)
	}
}

func TestSubmit_BackendError(t *testing.T) {
	s, _ := newTestService(t, &stubBackend{err: errors.New("quota exceeded")})

	id, err := s.Submit(context.Background(), Request{Collection: "tickets", Input: "help"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	out := waitOutcome(t, s, id)
	if out.Status != StatusError || !strings.Contains(out.Error, "quota exceeded") {
		t.Errorf("Outcome = %+v, want error status", out)
	}
	if out.Result != nil {
		t.Errorf("Result = %+v, want nil on error", out.Result)
	}
}

func TestSubmit_Validation(t *testing.T) {
	s, _ := newTestService(t, &stubBackend{})

	if _, err := s.Submit(context.Background(), Request{Collection: "tasks"}); !errors.Is(err, ErrNoInput) {
		t.Errorf("empty input error = %v, want ErrNoInput", err)
	}
	if _, err := s.Submit(context.Background(), Request{Collection: "nope", Input: "x"}); !errors.Is(err, domain.ErrUnknownCollection) {
		t.Errorf("unknown collection error = %v", err)
	}
	if _, err := s.Submit(context.Background(), Request{Collection: "tasks", EntityID: "missing", Input: "x"}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown entity error = %v, want ErrNotFound", err)
	}
	if _, err := s.Outcome("no-such-id"); !errors.Is(err, ErrUnknownRequest) {
		t.Errorf("Outcome error = %v, want ErrUnknownRequest", err)
	}
}

func TestSubmit_EditKeepsCurrentValues(t *testing.T) {
	s, _ := newTestService(t, &stubBackend{reply: `{"title":"Quarterly report v2"}`})

	id, err := s.Submit(context.Background(), Request{Collection: "tasks", EntityID: "2", Input: "rename it"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	out := waitOutcome(t, s, id)
	if out.EntityID != "2" {
		t.Errorf("EntityID = %q", out.EntityID)
	}
	p := out.Result.Patch
	if p["title"] != "Quarterly report v2" || p["category"] != "Work" || p["priority"] != "high" {
		t.Errorf("Patch = %v, want new title with stored category and priority", p)
	}
}

func TestSubmit_LoadingUntilSettled(t *testing.T) {
	backend := &stubBackend{reply: `{"title":"x"}`, block: make(chan struct{})}
	s, _ := newTestService(t, backend)

	id, err := s.Submit(context.Background(), Request{Collection: "tasks", Input: "x"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	out, err := s.Outcome(id)
	if err != nil {
		t.Fatalf("Outcome: %v", err)
	}
	if out.Status != StatusLoading || out.Result != nil {
		t.Errorf("Outcome = %+v, want loading", out)
	}
	if !s.Gateway().State().Loading {
		t.Error("gateway should report loading")
	}

	close(backend.block)
	if out := waitOutcome(t, s, id); out.Status != StatusDone {
		t.Errorf("Status = %s after release, want done", out.Status)
	}
}

func TestSubmit_BaseContextOutlivesCaller(t *testing.T) {
	backend := &stubBackend{reply: `{"title":"x"}`, block: make(chan struct{})}
	s, _ := newTestService(t, backend, WithBaseContext(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	id, err := s.Submit(ctx, Request{Collection: "tasks", Input: "x"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	cancel()
	close(backend.block)

	if out := waitOutcome(t, s, id); out.Status != StatusDone {
		t.Errorf("Outcome = %+v, want done despite cancelled caller", out)
	}
}

func TestSubmit_SupersededFlag(t *testing.T) {
	s, _ := newTestService(t, &stubBackend{reply: `{"title":"x"}`})

	first, _ := s.Submit(context.Background(), Request{Collection: "tasks", Input: "one"})
	second, _ := s.Submit(context.Background(), Request{Collection: "tasks", Input: "two"})

	if out := waitOutcome(t, s, first); !out.Superseded {
		t.Error("first request should be superseded")
	}
	if out := waitOutcome(t, s, second); out.Superseded {
		t.Error("latest request should not be superseded")
	}
}

func TestRetention(t *testing.T) {
	s, _ := newTestService(t, &stubBackend{reply: `{"title":"x"}`}, WithRetention(2))

	var ids []string
	for range 4 {
		id, err := s.Submit(context.Background(), Request{Collection: "tasks", Input: "x"})
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		waitOutcome(t, s, id)
		ids = append(ids, id)
	}

	if _, err := s.Outcome(ids[0]); !errors.Is(err, ErrUnknownRequest) {
		t.Errorf("oldest outcome should be evicted, err = %v", err)
	}
	if _, err := s.Outcome(ids[3]); err != nil {
		t.Errorf("newest outcome evicted: %v", err)
	}
}

func TestDraft_ApplyAndCommit(t *testing.T) {
	s, reg := newTestService(t, &stubBackend{reply: "Vendor: Corner Cafe\nTotal: 7.25"})
	ledger, _ := reg.Get("transactions")

	draft, err := NewDraft(ledger, "")
	if err != nil {
		t.Fatalf("NewDraft: %v", err)
	}
	if draft.Fields["type"] != "expense" {
		t.Errorf("draft defaults = %v", draft.Fields)
	}

	id, _ := s.Submit(context.Background(), Request{Collection: "transactions", Input: "coffee", Current: draft.Fields})
	out := waitOutcome(t, s, id)
	if !draft.Apply(*out.Result) {
		t.Fatalf("Apply returned false for %+v", out.Result)
	}

	saved, err := draft.Commit(ledger)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	tx := saved.(domain.Transaction)
	if tx.Vendor != "Corner Cafe" || tx.Amount.String() != "7.25" || tx.Type != "expense" {
		t.Errorf("saved = %+v", tx)
	}
	if ledger.Len() != 4 {
		t.Errorf("Len() = %d, want 4", ledger.Len())
	}
}

func TestDraft_RawLeavesFieldsAndEditUpdates(t *testing.T) {
	reg := domain.NewRegistry(storage.NewMemoryStore(), nil)
	tasks, _ := reg.Get("tasks")

	draft, err := NewDraft(tasks, "1")
	if err != nil {
		t.Fatalf("NewDraft: %v", err)
	}
	before := draft.Fields["title"]
	if draft.Apply(interpret.Result{Kind: interpret.Raw, Text: "nope"}) {
		t.Error("Apply(raw) should report false")
	}
	if draft.Fields["title"] != before {
		t.Error("raw result changed the draft")
	}

	draft.Apply(interpret.Result{Kind: interpret.Structured, Patch: entity.Patch{"status": "done"}})
	if _, err := draft.Commit(tasks); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	rows := tasks.View(view.Criteria{Equals: map[string]string{"status": "done"}})
	found := false
	for _, r := range rows {
		if r.(domain.Task).ID == "1" {
			found = true
		}
	}
	if !found || tasks.Len() != 3 {
		t.Errorf("edit did not update task 1 in place: rows=%v len=%d", rows, tasks.Len())
	}

	if _, err := NewDraft(tasks, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("NewDraft(missing) error = %v", err)
	}
}
