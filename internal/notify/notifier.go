package notify

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/aaronfeingold/invoice-track/internal/domain"
	"github.com/aaronfeingold/invoice-track/internal/registry"
)

// UnreadBackend is the server-tracked side of the notification counter.
type UnreadBackend interface {
	UnreadCount(ctx context.Context) (int, error)
	MarkRead(ctx context.Context, jobID string) error
}

const recentLimit = 50

// Notifier maintains the unread-completion counter and the recent
// user-level notification feed. The counter increments exactly once per
// job when it first reaches a terminal status, observed through registry
// changes rather than polling. MarkAllRead zeroes optimistically and
// confirms with the backend; on any disagreement the backend's count
// wins at the next Refresh.
type Notifier struct {
	backend UnreadBackend
	logger  *log.Logger

	mu     sync.Mutex
	unread int
	recent []domain.UserNotification
}

func New(backend UnreadBackend, logger *log.Logger) *Notifier {
	return &Notifier{backend: backend, logger: logger}
}

// HandleChange implements the registry change listener.
func (n *Notifier) HandleChange(change registry.Change) {
	if !change.BecameTerminal() {
		return
	}
	n.mu.Lock()
	n.unread++
	n.mu.Unlock()
}

// HandleUserNotification records a cross-view notification event.
func (n *Notifier) HandleUserNotification(notification domain.UserNotification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.recent = append(n.recent, notification)
	if len(n.recent) > recentLimit {
		n.recent = n.recent[len(n.recent)-recentLimit:]
	}
}

func (n *Notifier) Unread() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.unread
}

// Recent returns the newest notifications first.
func (n *Notifier) Recent() []domain.UserNotification {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]domain.UserNotification, len(n.recent))
	for i, notification := range n.recent {
		out[len(n.recent)-1-i] = notification
	}
	return out
}

// MarkAllRead zeroes the local counter immediately, then confirms with
// the backend. The local zero stands even when the confirmation fails;
// Refresh reconciles later.
func (n *Notifier) MarkAllRead(ctx context.Context) error {
	n.mu.Lock()
	n.unread = 0
	n.mu.Unlock()

	if n.backend == nil {
		return nil
	}
	if err := n.backend.MarkRead(ctx, ""); err != nil {
		if n.logger != nil {
			n.logger.Printf("notify: mark-all-read confirmation failed: %v", err)
		}
		return fmt.Errorf("confirm mark-all-read: %w", err)
	}
	return nil
}

// MarkJobRead marks a single job's notification read.
func (n *Notifier) MarkJobRead(ctx context.Context, jobID string) error {
	n.mu.Lock()
	if n.unread > 0 {
		n.unread--
	}
	n.mu.Unlock()

	if n.backend == nil {
		return nil
	}
	if err := n.backend.MarkRead(ctx, jobID); err != nil {
		return fmt.Errorf("confirm mark-read: %w", err)
	}
	return nil
}

// Refresh replaces the local counter with the backend's authoritative value.
func (n *Notifier) Refresh(ctx context.Context) error {
	if n.backend == nil {
		return nil
	}
	count, err := n.backend.UnreadCount(ctx)
	if err != nil {
		return fmt.Errorf("fetch unread count: %w", err)
	}

	n.mu.Lock()
	n.unread = count
	n.mu.Unlock()
	return nil
}
