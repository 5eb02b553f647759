package hermes

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

const (
	SubjectExportCommitted = "rosa.export.committed"
	SubjectSessionReset    = "rosa.session.reset"
	SubjectIngestCompleted = "rosa.ingest.completed"
	SubjectIngestRequested = "rosa.ingest.requested"
)

// ExportCommitted is emitted once a downloaded page has been recorded.
type ExportCommitted struct {
	SessionID string    `json:"session_id"`
	ExportID  string    `json:"export_id"`
	Statuses  []string  `json:"statuses"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionReset is emitted when an operator clears their download tracking.
type SessionReset struct {
	SessionID string    `json:"session_id"`
	Policy    string    `json:"policy"`
	Timestamp time.Time `json:"timestamp"`
}

// IngestCompleted is emitted after the merged table has been rebuilt.
type IngestCompleted struct {
	Dir           string    `json:"dir"`
	Files         int       `json:"files"`
	Failed        int       `json:"failed"`
	RowsRead      int       `json:"rows_read"`
	UniqueRecords int       `json:"unique_records"`
	Timestamp     time.Time `json:"timestamp"`
}

// IngestRequest asks a running service to re-merge its CSV directory.
type IngestRequest struct {
	Reason string `json:"reason,omitempty"`
}

// DecodeIngestRequest parses an ingest request payload. An empty payload is
// a request with no reason.
func DecodeIngestRequest(data []byte) (IngestRequest, error) {
	var req IngestRequest
	if len(data) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return IngestRequest{}, fmt.Errorf("decode ingest request: %w", err)
	}
	return req, nil
}

// Publisher is the subset of Client used to emit events.
type Publisher interface {
	Publish(subject string, data any) error
}

// Notify publishes data and only logs a failure; events are best-effort.
// A nil publisher means events are disabled.
func Notify(p Publisher, logger *slog.Logger, subject string, data any) {
	if p == nil {
		return
	}
	if err := p.Publish(subject, data); err != nil {
		logger.Warn("failed to publish event", "subject", subject, "error", err)
	}
}
