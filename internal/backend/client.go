package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aaronfeingold/invoice-track/internal/domain"
	"github.com/google/uuid"
)

var ErrBackendUnavailable = errors.New("processing backend unavailable")

type ClientConfig struct {
	BaseURL    string
	AuthToken  string
	Timeout    time.Duration
	MaxRetries int
	HTTPClient *http.Client
}

// Client talks to the external processing service's REST surface:
// batch creation and the server-tracked unread-notification counter.
type Client struct {
	baseURL    string
	authToken  string
	timeout    time.Duration
	maxRetries int
	httpClient *http.Client
}

func NewClient(config ClientConfig) *Client {
	if strings.TrimSpace(config.BaseURL) == "" {
		config.BaseURL = "http://localhost:5000"
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}

	return &Client{
		baseURL:    strings.TrimSuffix(config.BaseURL, "/"),
		authToken:  strings.TrimSpace(config.AuthToken),
		timeout:    config.Timeout,
		maxRetries: config.MaxRetries,
		httpClient: config.HTTPClient,
	}
}

type createBatchRequest struct {
	Items   []domain.BatchItem   `json:"items"`
	Options domain.SubmitOptions `json:"options"`
}

type createBatchResponse struct {
	JobIDs []string `json:"job_ids"`
}

// CreateBatch submits all items in one round-trip. The backend returns
// job IDs in item order; a count mismatch is treated as a failed call
// so the caller seeds nothing.
func (c *Client) CreateBatch(ctx context.Context, items []domain.BatchItem, options domain.SubmitOptions) ([]string, error) {
	payload, err := json.Marshal(createBatchRequest{Items: items, Options: options})
	if err != nil {
		return nil, fmt.Errorf("marshal batch request: %w", err)
	}

	var response createBatchResponse
	if err := c.call(ctx, http.MethodPost, "/v1/batches", payload, &response); err != nil {
		return nil, err
	}
	if len(response.JobIDs) != len(items) {
		return nil, fmt.Errorf("backend returned %d job ids for %d items", len(response.JobIDs), len(items))
	}
	return response.JobIDs, nil
}

type unreadResponse struct {
	UnreadCount int `json:"unread_count"`
}

func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var response unreadResponse
	if err := c.call(ctx, http.MethodGet, "/v1/notifications/unread", nil, &response); err != nil {
		return 0, err
	}
	return response.UnreadCount, nil
}

// MarkRead marks one job's notification read, or every notification
// when jobID is empty.
func (c *Client) MarkRead(ctx context.Context, jobID string) error {
	body := []byte(`{}`)
	if jobID != "" {
		payload, err := json.Marshal(map[string]string{"job_id": jobID})
		if err != nil {
			return fmt.Errorf("marshal mark-read request: %w", err)
		}
		body = payload
	}
	return c.call(ctx, http.MethodPost, "/v1/notifications/mark-as-read", body, nil)
}

func (c *Client) call(ctx context.Context, method, path string, body []byte, out any) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		callErr := c.callOnce(ctx, method, path, body, out)
		if callErr == nil {
			return nil
		}
		lastErr = callErr

		if !isRetryable(callErr) || attempt == c.maxRetries {
			break
		}
		backoff := time.Duration(300*(attempt+1)) * time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return lastErr
}

func (c *Client) callOnce(ctx context.Context, method, path string, body []byte, out any) error {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	request, err := http.NewRequestWithContext(callCtx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if c.authToken != "" {
		request.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	request.Header.Set("X-Request-Id", uuid.NewString())

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer response.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if response.StatusCode == http.StatusTooManyRequests || response.StatusCode >= 500 {
		return &statusError{code: response.StatusCode, body: truncate(raw)}
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return fmt.Errorf("backend rejected request (%d): %s", response.StatusCode, truncate(raw))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("backend transient error (%d): %s", e.code, e.body)
}

func isRetryable(err error) bool {
	var transient *statusError
	if errors.As(err, &transient) {
		return true
	}
	return errors.Is(err, ErrBackendUnavailable)
}

func truncate(raw []byte) string {
	const limit = 256
	text := strings.TrimSpace(string(raw))
	if len(text) > limit {
		return text[:limit] + "..."
	}
	return text
}
