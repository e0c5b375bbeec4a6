package submit

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/aaronfeingold/invoice-track/internal/domain"
	"github.com/aaronfeingold/invoice-track/internal/registry"
	"github.com/aaronfeingold/invoice-track/internal/transport"
)

type fakeBackend struct {
	jobIDs []string
	err    error
	calls  int
}

func (f *fakeBackend) CreateBatch(_ context.Context, items []domain.BatchItem, _ domain.SubmitOptions) ([]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.jobIDs != nil {
		return f.jobIDs, nil
	}
	ids := make([]string, len(items))
	for i := range items {
		ids[i] = items[i].DisplayName + "-id"
	}
	return ids, nil
}

func newFixture(t *testing.T, backend *fakeBackend) (*Orchestrator, *registry.Registry, *transport.LocalSession) {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	reg := registry.New()
	session := transport.NewLocalSession("invoice", "u1", logger)
	_ = session.Acquire(context.Background())
	t.Cleanup(session.Release)
	return NewOrchestrator(backend, reg, session, logger), reg, session
}

func twoItems() []domain.BatchItem {
	return []domain.BatchItem{
		{SourceRef: "s3://bucket/a.pdf", DisplayName: "a.pdf"},
		{SourceRef: "s3://bucket/b.pdf", DisplayName: "b.pdf"},
	}
}

func TestSubmitSeedsAndSubscribesInOrder(t *testing.T) {
	backend := &fakeBackend{jobIDs: []string{"j1", "j2"}}
	orchestrator, reg, session := newFixture(t, backend)

	result, err := orchestrator.Submit(context.Background(), twoItems(), domain.SubmitOptions{ConfidenceThreshold: 0.9})
	if err != nil {
		t.Fatal(err)
	}
	if backend.calls != 1 {
		t.Fatalf("backend calls = %d, want 1", backend.calls)
	}
	if len(result.JobIDs) != 2 || result.JobIDs[0] != "j1" || result.JobIDs[1] != "j2" {
		t.Fatalf("job ids = %v", result.JobIDs)
	}

	snapshot := reg.Snapshot()
	if len(snapshot) != 2 {
		t.Fatalf("registry has %d jobs", len(snapshot))
	}
	if snapshot[0].ID != "j1" || snapshot[0].DisplayName != "a.pdf" {
		t.Fatalf("first record = %+v", snapshot[0])
	}
	if snapshot[0].Status != domain.JobStatusPending || snapshot[0].Progress != 0 {
		t.Fatalf("seeded record not pending: %+v", snapshot[0])
	}

	signals := session.Signals()
	if len(signals) != 2 || signals[0].JobID != "j1" || signals[1].JobID != "j2" {
		t.Fatalf("signals = %+v", signals)
	}
}

func TestSubmitFailsFastWhenDisconnected(t *testing.T) {
	backend := &fakeBackend{}
	orchestrator, reg, session := newFixture(t, backend)
	session.SetConnected(false)

	_, err := orchestrator.Submit(context.Background(), twoItems(), domain.SubmitOptions{})
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if backend.calls != 0 {
		t.Fatalf("backend called while disconnected")
	}
	if reg.Len() != 0 {
		t.Fatalf("registry seeded while disconnected")
	}
}

func TestSubmitIsAtomicOnBackendFailure(t *testing.T) {
	backend := &fakeBackend{err: errors.New("boom")}
	orchestrator, reg, session := newFixture(t, backend)

	_, err := orchestrator.Submit(context.Background(), twoItems(), domain.SubmitOptions{})
	if err == nil {
		t.Fatal("expected error")
	}
	if reg.Len() != 0 {
		t.Fatalf("registry not empty after failed submission")
	}
	if len(session.Signals()) != 0 {
		t.Fatalf("subscriptions issued after failed submission")
	}
}

func TestSubmitValidatesInput(t *testing.T) {
	backend := &fakeBackend{}
	orchestrator, _, _ := newFixture(t, backend)

	if _, err := orchestrator.Submit(context.Background(), nil, domain.SubmitOptions{}); err == nil {
		t.Fatal("expected error for empty items")
	}
	if _, err := orchestrator.Submit(context.Background(), twoItems(), domain.SubmitOptions{ConfidenceThreshold: 1.5}); err == nil {
		t.Fatal("expected error for out-of-range threshold")
	}
	if _, err := orchestrator.Submit(context.Background(), twoItems(), domain.SubmitOptions{ModelProvider: "mystery"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
	if backend.calls != 0 {
		t.Fatalf("backend called for invalid input")
	}
}
