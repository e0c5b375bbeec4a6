package submit

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/aaronfeingold/invoice-track/internal/domain"
	"github.com/aaronfeingold/invoice-track/internal/registry"
	"github.com/aaronfeingold/invoice-track/internal/transport"
)

// ErrNotConnected is returned when a submission arrives while the event
// session is down. Creating jobs without a live subscription would leave
// their progress unobservable, so submissions fail fast instead of queuing.
var ErrNotConnected = errors.New("event session not connected")

// BatchCreator is the one backend call the orchestrator needs.
type BatchCreator interface {
	CreateBatch(ctx context.Context, items []domain.BatchItem, options domain.SubmitOptions) ([]string, error)
}

// Orchestrator turns "process these N items" into N tracked jobs:
// one backend round-trip, registry seeding in item order, then a
// per-job subscription on the shared session.
type Orchestrator struct {
	backend  BatchCreator
	registry *registry.Registry
	session  transport.Session
	logger   *log.Logger
}

func NewOrchestrator(backend BatchCreator, reg *registry.Registry, session transport.Session, logger *log.Logger) *Orchestrator {
	return &Orchestrator{
		backend:  backend,
		registry: reg,
		session:  session,
		logger:   logger,
	}
}

// Submit is all-or-nothing: if the backend call fails, the registry is
// left untouched. Returned job IDs are in item order so the caller can
// group "upload #3" with its job.
func (o *Orchestrator) Submit(ctx context.Context, items []domain.BatchItem, options domain.SubmitOptions) (domain.BatchResult, error) {
	if err := domain.ValidateItems(items); err != nil {
		return domain.BatchResult{}, err
	}
	if err := options.Validate(); err != nil {
		return domain.BatchResult{}, err
	}
	if !o.session.Connected() {
		return domain.BatchResult{}, ErrNotConnected
	}

	jobIDs, err := o.backend.CreateBatch(ctx, items, options)
	if err != nil {
		return domain.BatchResult{}, fmt.Errorf("create batch: %w", err)
	}

	for i, jobID := range jobIDs {
		if err := o.registry.Create(jobID, items[i].DisplayName); err != nil {
			// Server-generated IDs colliding is a logic error; the jobs
			// exist upstream regardless, so keep going.
			if o.logger != nil {
				o.logger.Printf("submit: seed job_id=%s err=%v", jobID, err)
			}
			continue
		}
		if err := o.session.Subscribe(ctx, jobID); err != nil && o.logger != nil {
			o.logger.Printf("submit: subscribe job_id=%s err=%v", jobID, err)
		}
	}

	return domain.BatchResult{JobIDs: jobIDs}, nil
}
