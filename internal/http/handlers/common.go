package handlers

import (
	"encoding/json"
	"errors"
	"hash/fnv"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/aaronfeingold/invoice-track/internal/http/middleware"
	"github.com/aaronfeingold/invoice-track/internal/notify"
	"github.com/aaronfeingold/invoice-track/internal/registry"
	"github.com/aaronfeingold/invoice-track/internal/submit"
	"github.com/aaronfeingold/invoice-track/internal/transport"
)

var errInvalidPayload = errors.New("invalid payload")

// API exposes the tracking core to UI surfaces. Every endpoint reads
// registry snapshots or derived views; the only writes are batch
// submission, mark-as-read and local clear.
type API struct {
	registry     *registry.Registry
	orchestrator *submit.Orchestrator
	notifier     *notify.Notifier
	session      transport.Session
	logger       *log.Logger
	idempotency  *idempotencyStore
}

type Dependencies struct {
	Registry     *registry.Registry
	Orchestrator *submit.Orchestrator
	Notifier     *notify.Notifier
	Session      transport.Session
	Logger       *log.Logger
}

func NewAPI(deps Dependencies) *API {
	return &API{
		registry:     deps.Registry,
		orchestrator: deps.Orchestrator,
		notifier:     deps.Notifier,
		session:      deps.Session,
		logger:       deps.Logger,
		idempotency:  newIdempotencyStore(),
	}
}

type errorPayload struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func writeJSON(w http.ResponseWriter, statusCode int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	payload := errorPayload{RequestID: middleware.GetRequestID(r.Context())}
	payload.Error.Code = code
	payload.Error.Message = message
	writeJSON(w, statusCode, payload)
}

func decodeJSON(r *http.Request, value any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(value); err != nil {
		return errInvalidPayload
	}
	return nil
}

type idempotencyEntry struct {
	PayloadHash uint64
	JobIDs      []string
	CreatedAt   time.Time
}

// idempotencyStore lets a retried POST /v1/batches replay the original
// job IDs instead of creating a second batch.
type idempotencyStore struct {
	mu      sync.Mutex
	entries map[string]idempotencyEntry
}

func newIdempotencyStore() *idempotencyStore {
	return &idempotencyStore{
		entries: make(map[string]idempotencyEntry),
	}
}

func (s *idempotencyStore) Get(key string) (idempotencyEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	return entry, ok
}

func (s *idempotencyStore) Put(key string, payloadHash uint64, jobIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = idempotencyEntry{
		PayloadHash: payloadHash,
		JobIDs:      append([]string(nil), jobIDs...),
		CreatedAt:   time.Now().UTC(),
	}
}

func hashPayload(value any) uint64 {
	payload, _ := json.Marshal(value)
	hasher := fnv.New64a()
	_, _ = hasher.Write(payload)
	return hasher.Sum64()
}
