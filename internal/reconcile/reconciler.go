package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"

	"github.com/aaronfeingold/invoice-track/internal/domain"
	"github.com/aaronfeingold/invoice-track/internal/registry"
	"github.com/aaronfeingold/invoice-track/internal/transport"
)

// Reconciler is the single consumer of the transport session. It turns
// raw inbound payloads into registry mutations and forwards user-level
// notifications. The transport gives no ordering or delivery guarantees,
// so everything here is defensive: malformed payloads, unknown kinds and
// unknown job IDs are logged and dropped, never raised.
type Reconciler struct {
	registry    *registry.Registry
	session     transport.Session
	userChannel string
	logger      *log.Logger
	onUser      func(domain.UserNotification)
}

func New(reg *registry.Registry, session transport.Session, userChannel string, logger *log.Logger) *Reconciler {
	return &Reconciler{
		registry:    reg,
		session:     session,
		userChannel: userChannel,
		logger:      logger,
	}
}

// OnUserNotification registers the consumer of user-level events.
func (r *Reconciler) OnUserNotification(handler func(domain.UserNotification)) {
	r.onUser = handler
}

// Handle implements transport.EventHandler.
func (r *Reconciler) Handle(channel string, payload []byte) {
	if channel == r.userChannel {
		r.handleUser(payload)
		return
	}
	r.handleJob(payload)
}

func (r *Reconciler) handleJob(payload []byte) {
	var event domain.JobEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		r.logf("dropped malformed event: %v", err)
		return
	}
	if strings.TrimSpace(event.JobID) == "" {
		r.logf("dropped event without job_id")
		return
	}
	if !event.Kind.Known() {
		r.logf("dropped event with unknown kind job_id=%s kind=%q", event.JobID, event.Kind)
		return
	}

	change, err := r.registry.ApplyEvent(event)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			// Dismissed locally or a stale session's job.
			r.logf("ignored event for untracked job_id=%s", event.JobID)
			return
		}
		r.logf("apply event job_id=%s err=%v", event.JobID, err)
		return
	}

	// Terminal jobs no longer need their channel; leaving is a pure
	// optimization and a stray late event stays harmless.
	if change.BecameTerminal() && r.session != nil {
		_ = r.session.Unsubscribe(context.Background(), event.JobID)
	}
}

func (r *Reconciler) handleUser(payload []byte) {
	var notification domain.UserNotification
	if err := json.Unmarshal(payload, &notification); err != nil {
		r.logf("dropped malformed user notification: %v", err)
		return
	}
	if notification.Type != domain.NotificationJobCompleted && notification.Type != domain.NotificationJobFailed {
		r.logf("dropped user notification with unknown type %q", notification.Type)
		return
	}
	if r.onUser != nil {
		r.onUser(notification)
	}
}

func (r *Reconciler) logf(format string, args ...any) {
	if r.logger != nil {
		r.logger.Printf("reconcile: "+format, args...)
	}
}
