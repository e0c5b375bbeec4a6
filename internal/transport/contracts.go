package transport

import "context"

// EventHandler consumes every raw inbound event. The session does not
// interpret payloads; the reconciler is the single registered consumer.
type EventHandler func(channel string, payload []byte)

// Session is one logical connection to the backend event service,
// shared by every surface in the process. Acquire/Release reference
// counting keeps at most one underlying transport open no matter how
// many consumers attach.
//
// Subscribe and Unsubscribe are best-effort join/leave signals for a
// job channel. Calling Subscribe while disconnected is not an error:
// the job ID is queued and the join is issued once the session is
// (re)connected. Missing events never corrupt state; the reconciler
// drops events for jobs it does not know.
type Session interface {
	Acquire(ctx context.Context) error
	Release()
	Connected() bool
	Subscribe(ctx context.Context, jobID string) error
	Unsubscribe(ctx context.Context, jobID string) error
	SubscriptionCount() int
	OnEvent(handler EventHandler)
}

// JobChannel names the per-job event channel.
func JobChannel(prefix, jobID string) string {
	return prefix + ":jobs:" + jobID
}

// UserChannel names the per-identity notification channel used for
// cross-view notification without per-job subscriptions.
func UserChannel(prefix, userID string) string {
	return prefix + ":user:" + userID
}

// ControlChannel names the channel join/leave signals are published to.
func ControlChannel(prefix string) string {
	return prefix + ":control"
}
