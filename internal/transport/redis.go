package transport

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	ChannelPrefix string
	UserID        string
	MinBackoff    time.Duration
	MaxBackoff    time.Duration
}

// RedisSession is a Session backed by one Redis Pub/Sub connection.
// Job updates arrive on per-job channels, user-level notifications on
// the identity channel, and join/leave signals go out on the control
// channel so the backend knows which jobs are being watched.
//
// The run loop owns reconnection: on any receive error the pubsub is
// torn down, the connected flag flips false, and a capped exponential
// backoff delays the next attempt. Subscriptions do not survive a
// disconnect implicitly; after every successful connect the desired set
// is replayed explicitly.
type RedisSession struct {
	client  *redis.Client
	cfg     RedisConfig
	logger  *log.Logger
	handler EventHandler

	mu        sync.Mutex
	refs      int
	connected bool
	desired   map[string]struct{}
	ps        *redis.PubSub
	runCancel context.CancelFunc
}

func NewRedisSession(cfg RedisConfig, logger *log.Logger) (*RedisSession, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	if cfg.ChannelPrefix == "" {
		cfg.ChannelPrefix = "invoice"
	}
	if cfg.UserID == "" {
		return nil, errors.New("user id is required")
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = 30 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &RedisSession{
		client:  client,
		cfg:     cfg,
		logger:  logger,
		desired: make(map[string]struct{}),
	}, nil
}

// OnEvent must be called before Acquire; there is a single consumer.
func (s *RedisSession) OnEvent(handler EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

// Acquire is idempotent: the first caller starts the connection loop,
// later callers only bump the reference count.
func (s *RedisSession) Acquire(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refs++
	if s.refs > 1 {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.runCancel = cancel
	go s.run(runCtx)
	return nil
}

// Release drops one reference. When the last reference goes, the
// connection is closed and subscriptions are dropped; registry state
// elsewhere is untouched. Release never panics on over-release.
func (s *RedisSession) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refs == 0 {
		return
	}
	s.refs--
	if s.refs > 0 {
		return
	}
	if s.runCancel != nil {
		s.runCancel()
		s.runCancel = nil
	}
	s.connected = false
}

func (s *RedisSession) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *RedisSession) SubscriptionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.desired)
}

// Subscribe records the job in the desired set and, when connected,
// joins its channel immediately. While disconnected it is queued and
// replayed on the next connect.
func (s *RedisSession) Subscribe(ctx context.Context, jobID string) error {
	s.mu.Lock()
	s.desired[jobID] = struct{}{}
	ps := s.ps
	connected := s.connected
	s.mu.Unlock()

	if !connected || ps == nil {
		return nil
	}
	s.join(ctx, ps, jobID)
	return nil
}

// Unsubscribe is a best-effort optimization; it does not cancel backend
// work and a stray late event for the job is harmless.
func (s *RedisSession) Unsubscribe(ctx context.Context, jobID string) error {
	s.mu.Lock()
	delete(s.desired, jobID)
	ps := s.ps
	connected := s.connected
	s.mu.Unlock()

	if !connected || ps == nil {
		return nil
	}
	if err := ps.Unsubscribe(ctx, JobChannel(s.cfg.ChannelPrefix, jobID)); err != nil {
		s.logf("unsubscribe job_id=%s err=%v", jobID, err)
	}
	s.signal(ctx, "leave", jobID)
	return nil
}

func (s *RedisSession) run(ctx context.Context) {
	backoff := s.cfg.MinBackoff
	for {
		err := s.runOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		s.logf("event connection lost, retrying in %s: %v", backoff, err)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		backoff *= 2
		if backoff > s.cfg.MaxBackoff {
			backoff = s.cfg.MaxBackoff
		}
	}
}

func (s *RedisSession) runOnce(ctx context.Context) error {
	ps := s.client.Subscribe(ctx, UserChannel(s.cfg.ChannelPrefix, s.cfg.UserID))
	defer func() {
		s.mu.Lock()
		s.connected = false
		s.ps = nil
		s.mu.Unlock()
		_ = ps.Close()
	}()

	// Confirm the subscription before reporting connected.
	if _, err := ps.Receive(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.ps = ps
	s.connected = true
	pending := make([]string, 0, len(s.desired))
	for jobID := range s.desired {
		pending = append(pending, jobID)
	}
	s.mu.Unlock()

	s.logf("event connection established, replaying %d subscriptions", len(pending))
	for _, jobID := range pending {
		s.join(ctx, ps, jobID)
	}

	for {
		received, err := ps.Receive(ctx)
		if err != nil {
			return err
		}
		if message, ok := received.(*redis.Message); ok {
			s.dispatch(message.Channel, []byte(message.Payload))
		}
	}
}

func (s *RedisSession) join(ctx context.Context, ps *redis.PubSub, jobID string) {
	if err := ps.Subscribe(ctx, JobChannel(s.cfg.ChannelPrefix, jobID)); err != nil {
		// The run loop rebuilds everything on the next connect.
		s.logf("subscribe job_id=%s err=%v", jobID, err)
		return
	}
	s.signal(ctx, "join", jobID)
}

func (s *RedisSession) signal(ctx context.Context, action, jobID string) {
	payload, err := json.Marshal(map[string]string{
		"action": action,
		"job_id": jobID,
	})
	if err != nil {
		return
	}
	if err := s.client.Publish(ctx, ControlChannel(s.cfg.ChannelPrefix), payload).Err(); err != nil {
		s.logf("signal action=%s job_id=%s err=%v", action, jobID, err)
	}
}

func (s *RedisSession) dispatch(channel string, payload []byte) {
	s.mu.Lock()
	handler := s.handler
	s.mu.Unlock()
	if handler != nil {
		handler(channel, payload)
	}
}

func (s *RedisSession) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf("transport: "+format, args...)
	}
}

// Close releases the underlying client. Callers should Release first.
func (s *RedisSession) Close() error {
	return s.client.Close()
}
