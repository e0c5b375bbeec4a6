package transport

import (
	"context"
	"testing"
)

func TestAcquireReleaseReferenceCounting(t *testing.T) {
	session := NewLocalSession("invoice", "u1", nil)

	// Two mounted surfaces share one connection.
	if err := session.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := session.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !session.Connected() {
		t.Fatal("expected connected after acquire")
	}

	session.Release()
	if !session.Connected() {
		t.Fatal("connection dropped while a reference remains")
	}
	session.Release()
	if session.Connected() {
		t.Fatal("expected disconnected after last release")
	}

	// Over-release must not panic or underflow.
	session.Release()
	if err := session.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !session.Connected() {
		t.Fatal("expected connected after re-acquire")
	}
}

func TestSubscribeEmitsJoinSignal(t *testing.T) {
	session := NewLocalSession("invoice", "u1", nil)
	_ = session.Acquire(context.Background())
	defer session.Release()

	_ = session.Subscribe(context.Background(), "j1")
	_ = session.Unsubscribe(context.Background(), "j1")

	signals := session.Signals()
	if len(signals) != 2 {
		t.Fatalf("expected 2 signals, got %d", len(signals))
	}
	if signals[0] != (ControlSignal{Action: "join", JobID: "j1"}) {
		t.Fatalf("first signal = %+v", signals[0])
	}
	if signals[1] != (ControlSignal{Action: "leave", JobID: "j1"}) {
		t.Fatalf("second signal = %+v", signals[1])
	}
}

func TestSubscribeWhileDisconnectedIsQueuedNotDropped(t *testing.T) {
	session := NewLocalSession("invoice", "u1", nil)

	if err := session.Subscribe(context.Background(), "j1"); err != nil {
		t.Fatalf("subscribe before connect must not error: %v", err)
	}
	if session.SubscriptionCount() != 1 {
		t.Fatalf("subscription not queued")
	}
}

func TestPublishRoutesOnlySubscribedJobs(t *testing.T) {
	session := NewLocalSession("invoice", "u1", nil)
	_ = session.Acquire(context.Background())
	defer session.Release()

	var channels []string
	session.OnEvent(func(channel string, _ []byte) {
		channels = append(channels, channel)
	})

	_ = session.Subscribe(context.Background(), "j1")
	session.PublishJob("j1", []byte(`{}`))
	session.PublishJob("ghost", []byte(`{}`))
	session.PublishUser([]byte(`{}`))

	want := []string{
		JobChannel("invoice", "j1"),
		UserChannel("invoice", "u1"),
	}
	if len(channels) != len(want) {
		t.Fatalf("delivered %v, want %v", channels, want)
	}
	for i := range want {
		if channels[i] != want[i] {
			t.Fatalf("delivered %v, want %v", channels, want)
		}
	}
}
