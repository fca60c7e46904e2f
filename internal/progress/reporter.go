// Package progress posts best-effort status callbacks to the caller's
// session endpoint. Delivery failures never affect document processing;
// they are logged and dropped.
package progress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Event statuses.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// Event is one progress callback body.
type Event struct {
	SessionID string         `json:"sessionId"`
	ImageID   int64          `json:"imageId"`
	Status    string         `json:"status"`
	Progress  int            `json:"progress"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Reporter delivers progress events over HTTP. A Reporter with an empty
// base URL is valid and silently discards events.
type Reporter struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
	now     func() time.Time
}

// New builds a Reporter posting to baseURL. The short client timeout keeps
// a dead callback endpoint from eating into the processing deadline.
func New(baseURL string, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Second},
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Enabled reports whether events will actually be sent.
func (r *Reporter) Enabled() bool {
	return r != nil && r.baseURL != ""
}

// Report sends one processing-stage event. Progress is clamped to [0, 100].
func (r *Reporter) Report(ctx context.Context, sessionID string, imageID int64, progress int, message string) {
	r.send(ctx, Event{
		SessionID: sessionID,
		ImageID:   imageID,
		Status:    StatusProcessing,
		Progress:  clamp(progress),
		Message:   message,
	})
}

// Completed sends the terminal success event with the operation result.
func (r *Reporter) Completed(ctx context.Context, sessionID string, imageID int64, data map[string]any) {
	r.send(ctx, Event{
		SessionID: sessionID,
		ImageID:   imageID,
		Status:    StatusCompleted,
		Progress:  100,
		Message:   "completed",
		Data:      data,
	})
}

// Failed sends the terminal error event.
func (r *Reporter) Failed(ctx context.Context, sessionID string, imageID int64, errMsg string) {
	r.send(ctx, Event{
		SessionID: sessionID,
		ImageID:   imageID,
		Status:    StatusError,
		Progress:  0,
		Message:   errMsg,
	})
}

func (r *Reporter) send(ctx context.Context, ev Event) {
	if !r.Enabled() {
		return
	}
	ev.Timestamp = r.now()

	body, err := json.Marshal(ev)
	if err != nil {
		r.logger.Warn("failed to encode progress event", "error", err)
		return
	}

	url := fmt.Sprintf("%s/%s", r.baseURL, ev.SessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		r.logger.Warn("failed to build progress request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Warn("progress callback failed",
			"session_id", ev.SessionID, "progress", ev.Progress, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		r.logger.Warn("progress callback rejected",
			"session_id", ev.SessionID, "status_code", resp.StatusCode)
		return
	}
	r.logger.Debug("progress reported",
		"session_id", ev.SessionID, "progress", ev.Progress, "message", ev.Message)
}

func clamp(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
