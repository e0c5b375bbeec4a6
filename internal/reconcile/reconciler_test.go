package reconcile

import (
	"context"
	"io"
	"log"
	"testing"

	"github.com/aaronfeingold/invoice-track/internal/domain"
	"github.com/aaronfeingold/invoice-track/internal/registry"
	"github.com/aaronfeingold/invoice-track/internal/transport"
)

func newTestReconciler(t *testing.T) (*Reconciler, *registry.Registry, *transport.LocalSession) {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	reg := registry.New()
	session := transport.NewLocalSession("invoice", "u1", logger)
	_ = session.Acquire(context.Background())
	t.Cleanup(session.Release)

	reconciler := New(reg, session, transport.UserChannel("invoice", "u1"), logger)
	session.OnEvent(reconciler.Handle)
	return reconciler, reg, session
}

func TestHandleAppliesJobEvent(t *testing.T) {
	_, reg, session := newTestReconciler(t)
	_ = reg.Create("j1", "a.pdf")
	_ = session.Subscribe(context.Background(), "j1")

	session.PublishJob("j1", []byte(`{"job_id":"j1","kind":"progress","progress":42,"stage":"fetch","timestamp":1700000000}`))

	job, err := reg.Get("j1")
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != domain.JobStatusProcessing || job.Progress != 42 || job.Stage != "fetch" {
		t.Fatalf("job = %+v", job)
	}
	if len(job.Updates) != 1 {
		t.Fatalf("updates = %d, want 1", len(job.Updates))
	}
}

func TestHandleDropsMalformedAndUnknown(t *testing.T) {
	reconciler, reg, _ := newTestReconciler(t)
	_ = reg.Create("j1", "a.pdf")

	cases := []struct {
		name    string
		payload string
	}{
		{"not json", `{{{`},
		{"missing job_id", `{"kind":"progress","progress":10}`},
		{"unknown kind", `{"job_id":"j1","kind":"teleport"}`},
		{"untracked job", `{"job_id":"ghost","kind":"progress","progress":10}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reconciler.Handle(transport.JobChannel("invoice", "j1"), []byte(tc.payload))
		})
	}

	job, _ := reg.Get("j1")
	if job.Status != domain.JobStatusPending || len(job.Updates) != 0 {
		t.Fatalf("defensive drops mutated state: %+v", job)
	}
}

func TestTerminalEventTriggersUnsubscribe(t *testing.T) {
	reconciler, reg, session := newTestReconciler(t)
	_ = reg.Create("j1", "a.pdf")
	_ = session.Subscribe(context.Background(), "j1")

	reconciler.Handle(transport.JobChannel("invoice", "j1"), []byte(`{"job_id":"j1","kind":"complete","result":{"ok":true}}`))

	if session.SubscriptionCount() != 0 {
		t.Fatalf("terminal job still subscribed")
	}

	// A duplicate completion must not unsubscribe (or anything) again.
	reconciler.Handle(transport.JobChannel("invoice", "j1"), []byte(`{"job_id":"j1","kind":"complete"}`))
	job, _ := reg.Get("j1")
	if job.Status != domain.JobStatusCompleted || job.Progress != 100 {
		t.Fatalf("job = %+v", job)
	}
}

func TestUserChannelForwardsNotifications(t *testing.T) {
	reconciler, _, session := newTestReconciler(t)

	var received []domain.UserNotification
	reconciler.OnUserNotification(func(notification domain.UserNotification) {
		received = append(received, notification)
	})

	session.PublishUser([]byte(`{"type":"job_completed","job_id":"j9","filename":"b.pdf"}`))
	session.PublishUser([]byte(`{"type":"unknown_type","job_id":"j9"}`))
	session.PublishUser([]byte(`not json`))

	if len(received) != 1 {
		t.Fatalf("forwarded %d notifications, want 1", len(received))
	}
	if received[0].JobID != "j9" || received[0].Type != domain.NotificationJobCompleted {
		t.Fatalf("notification = %+v", received[0])
	}
}
