package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/aaronfeingold/invoice-track/internal/domain"
	"github.com/aaronfeingold/invoice-track/internal/registry"
)

type fakeUnreadBackend struct {
	count     int
	countErr  error
	markErr   error
	markCalls []string
}

func (f *fakeUnreadBackend) UnreadCount(_ context.Context) (int, error) {
	return f.count, f.countErr
}

func (f *fakeUnreadBackend) MarkRead(_ context.Context, jobID string) error {
	f.markCalls = append(f.markCalls, jobID)
	return f.markErr
}

func TestCounterIncrementsOncePerTerminalTransition(t *testing.T) {
	notifier := New(&fakeUnreadBackend{}, nil)

	changes := []registry.Change{
		{JobID: "j1", PrevStatus: domain.JobStatusPending, Status: domain.JobStatusPending},
		{JobID: "j1", PrevStatus: domain.JobStatusPending, Status: domain.JobStatusProcessing},
		{JobID: "j1", PrevStatus: domain.JobStatusProcessing, Status: domain.JobStatusCompleted},
		// Late duplicate: already terminal, no transition.
		{JobID: "j1", PrevStatus: domain.JobStatusCompleted, Status: domain.JobStatusCompleted},
		{JobID: "j2", PrevStatus: domain.JobStatusProcessing, Status: domain.JobStatusFailed},
	}
	for _, change := range changes {
		notifier.HandleChange(change)
	}

	if notifier.Unread() != 2 {
		t.Fatalf("unread = %d, want 2", notifier.Unread())
	}
}

func TestMarkAllReadIsOptimistic(t *testing.T) {
	backend := &fakeUnreadBackend{markErr: errors.New("backend down")}
	notifier := New(backend, nil)
	notifier.HandleChange(registry.Change{PrevStatus: domain.JobStatusProcessing, Status: domain.JobStatusCompleted})

	err := notifier.MarkAllRead(context.Background())
	if err == nil {
		t.Fatal("expected confirmation error to surface")
	}
	// The local zero stands regardless of the confirmation outcome.
	if notifier.Unread() != 0 {
		t.Fatalf("unread = %d, want 0", notifier.Unread())
	}
	if len(backend.markCalls) != 1 || backend.markCalls[0] != "" {
		t.Fatalf("mark calls = %v", backend.markCalls)
	}
}

func TestRefreshLetsBackendWin(t *testing.T) {
	backend := &fakeUnreadBackend{count: 5}
	notifier := New(backend, nil)
	_ = notifier.MarkAllRead(context.Background())

	if err := notifier.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if notifier.Unread() != 5 {
		t.Fatalf("unread = %d, want backend value 5", notifier.Unread())
	}
}

func TestMarkJobReadDecrementsAndConfirms(t *testing.T) {
	backend := &fakeUnreadBackend{}
	notifier := New(backend, nil)
	notifier.HandleChange(registry.Change{PrevStatus: domain.JobStatusProcessing, Status: domain.JobStatusCompleted})

	if err := notifier.MarkJobRead(context.Background(), "j1"); err != nil {
		t.Fatal(err)
	}
	if notifier.Unread() != 0 {
		t.Fatalf("unread = %d", notifier.Unread())
	}
	// Must not go negative on a second mark.
	_ = notifier.MarkJobRead(context.Background(), "j1")
	if notifier.Unread() != 0 {
		t.Fatalf("unread went negative: %d", notifier.Unread())
	}
	if len(backend.markCalls) != 2 || backend.markCalls[0] != "j1" {
		t.Fatalf("mark calls = %v", backend.markCalls)
	}
}

func TestRecentNotificationsNewestFirst(t *testing.T) {
	notifier := New(nil, nil)
	notifier.HandleUserNotification(domain.UserNotification{Type: domain.NotificationJobCompleted, JobID: "j1", Filename: "a.pdf"})
	notifier.HandleUserNotification(domain.UserNotification{Type: domain.NotificationJobFailed, JobID: "j2", Filename: "b.pdf", Error: "ocr failed"})

	recent := notifier.Recent()
	if len(recent) != 2 {
		t.Fatalf("recent = %d entries", len(recent))
	}
	if recent[0].JobID != "j2" || recent[1].JobID != "j1" {
		t.Fatalf("order = %v, %v", recent[0].JobID, recent[1].JobID)
	}
}
