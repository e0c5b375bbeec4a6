package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status permits no further transition.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

type EventKind string

const (
	EventKindStageStart EventKind = "stage_start"
	EventKindProgress   EventKind = "progress"
	EventKindComplete   EventKind = "complete"
	EventKindError      EventKind = "error"
)

func (k EventKind) Known() bool {
	switch k {
	case EventKindStageStart, EventKindProgress, EventKindComplete, EventKindError:
		return true
	}
	return false
}

// JobEvent is one raw update pushed by the backend over a job channel.
type JobEvent struct {
	JobID     string          `json:"job_id"`
	Kind      EventKind       `json:"kind"`
	Stage     string          `json:"stage,omitempty"`
	Progress  *int            `json:"progress,omitempty"`
	Message   string          `json:"message,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp float64         `json:"timestamp"`
}

// JobRecord is the canonical per-job state held by the registry.
type JobRecord struct {
	ID          string
	DisplayName string
	Status      JobStatus
	Progress    int
	Stage       string
	Result      json.RawMessage
	Error       string
	Updates     []JobEvent
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// BatchItem references one already-uploaded document to process.
type BatchItem struct {
	SourceRef   string `json:"source_ref"`
	DisplayName string `json:"display_name"`
}

// BatchResult correlates one submission call with the jobs it created.
// Job IDs are in the same order as the submitted items.
type BatchResult struct {
	JobIDs []string `json:"job_ids"`
}

type ModelProvider string

const (
	ModelProviderOpenAI    ModelProvider = "openai"
	ModelProviderAnthropic ModelProvider = "anthropic"
	ModelProviderGemini    ModelProvider = "gemini"
)

var validProviders = map[ModelProvider]bool{
	ModelProviderOpenAI:    true,
	ModelProviderAnthropic: true,
	ModelProviderGemini:    true,
}

// SubmitOptions is the processing configuration shared by every item in
// a batch. HumanInLoop forces manual review even when AutoSave and the
// confidence threshold would allow a direct save.
type SubmitOptions struct {
	AutoSave            bool          `json:"auto_save"`
	ConfidenceThreshold float64       `json:"confidence_threshold"`
	ModelProvider       ModelProvider `json:"model_provider"`
	HumanInLoop         bool          `json:"human_in_loop"`
}

var ErrInvalidOptions = errors.New("invalid submit options")

func (o SubmitOptions) Validate() error {
	if o.ConfidenceThreshold < 0 || o.ConfidenceThreshold > 1 {
		return ErrInvalidOptions
	}
	if o.ModelProvider != "" && !validProviders[o.ModelProvider] {
		return ErrInvalidOptions
	}
	return nil
}

func ValidateItems(items []BatchItem) error {
	if len(items) == 0 {
		return errors.New("at least one item is required")
	}
	for _, item := range items {
		if strings.TrimSpace(item.SourceRef) == "" {
			return errors.New("item source_ref is required")
		}
		if strings.TrimSpace(item.DisplayName) == "" {
			return errors.New("item display_name is required")
		}
	}
	return nil
}

type NotificationType string

const (
	NotificationJobCompleted NotificationType = "job_completed"
	NotificationJobFailed    NotificationType = "job_failed"
)

// UserNotification is pushed on the user-level channel so views that are
// not subscribed to a specific job channel still learn about terminal jobs.
type UserNotification struct {
	Type     NotificationType `json:"type"`
	JobID    string           `json:"job_id"`
	Filename string           `json:"filename"`
	Error    string           `json:"error,omitempty"`
}
