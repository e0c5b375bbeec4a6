package transport

import (
	"context"
	"log"
	"sync"
)

// ControlSignal records one outbound join/leave emitted by the local session.
type ControlSignal struct {
	Action string
	JobID  string
}

// LocalSession is an in-process Session used when Redis is not
// configured and in tests. Publishing on a subscribed channel delivers
// straight to the registered handler on the caller's goroutine.
type LocalSession struct {
	prefix string
	userID string
	logger *log.Logger

	mu        sync.Mutex
	refs      int
	connected bool
	desired   map[string]struct{}
	handler   EventHandler
	signals   []ControlSignal
}

func NewLocalSession(prefix, userID string, logger *log.Logger) *LocalSession {
	if prefix == "" {
		prefix = "invoice"
	}
	return &LocalSession{
		prefix:  prefix,
		userID:  userID,
		logger:  logger,
		desired: make(map[string]struct{}),
	}
}

func (s *LocalSession) OnEvent(handler EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

func (s *LocalSession) Acquire(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs++
	s.connected = true
	return nil
}

func (s *LocalSession) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refs == 0 {
		return
	}
	s.refs--
	if s.refs == 0 {
		s.connected = false
	}
}

func (s *LocalSession) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// SetConnected simulates connection loss and recovery.
func (s *LocalSession) SetConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = connected
}

func (s *LocalSession) SubscriptionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.desired)
}

func (s *LocalSession) Subscribe(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.desired[jobID] = struct{}{}
	if s.connected {
		s.signals = append(s.signals, ControlSignal{Action: "join", JobID: jobID})
	}
	return nil
}

func (s *LocalSession) Unsubscribe(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.desired, jobID)
	if s.connected {
		s.signals = append(s.signals, ControlSignal{Action: "leave", JobID: jobID})
	}
	return nil
}

// Signals returns every join/leave emitted so far, oldest first.
func (s *LocalSession) Signals() []ControlSignal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ControlSignal(nil), s.signals...)
}

// PublishJob delivers a raw job event as if it arrived on the job's channel.
// Events for unsubscribed jobs are dropped, as a real broker would.
func (s *LocalSession) PublishJob(jobID string, payload []byte) {
	s.mu.Lock()
	handler := s.handler
	_, subscribed := s.desired[jobID]
	connected := s.connected
	s.mu.Unlock()

	if !connected || !subscribed || handler == nil {
		if s.logger != nil {
			s.logger.Printf("transport: dropped local event job_id=%s", jobID)
		}
		return
	}
	handler(JobChannel(s.prefix, jobID), payload)
}

// PublishUser delivers a user-level notification event.
func (s *LocalSession) PublishUser(payload []byte) {
	s.mu.Lock()
	handler := s.handler
	connected := s.connected
	s.mu.Unlock()

	if !connected || handler == nil {
		return
	}
	handler(UserChannel(s.prefix, s.userID), payload)
}
