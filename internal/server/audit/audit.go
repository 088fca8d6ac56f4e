// Package audit emits one event per security-relevant outcome. Recording is
// fire-and-forget: a sink must never fail the operation that produced the
// event.
package audit

import (
	"context"

	"github.com/vkarpenko/filevault/internal/logging"
)

// Actions recorded by the vault.
const (
	ActionRegister         = "register"
	ActionUpload           = "upload"
	ActionUploadFailed     = "upload_failed"
	ActionDownload         = "download"
	ActionDownloadDenied   = "download_denied"
	ActionIntegrityFailure = "integrity_failure"
	ActionShare            = "share"
	ActionSharePartial     = "share_partial"
	ActionDelete           = "delete"
)

// Event is a single audit record.
type Event struct {
	Action      string
	PrincipalID string
	FileID      string
	Details     map[string]any
}

// Sink accepts audit events.
type Sink interface {
	Record(ctx context.Context, e Event)
}

// LogSink writes events to the structured log. It never errors.
type LogSink struct {
	log logging.Logger
}

func NewLogSink(log logging.Logger) *LogSink {
	return &LogSink{log: log.With("component", "audit")}
}

func (s *LogSink) Record(ctx context.Context, e Event) {
	args := []any{"action", e.Action, "principal_id", e.PrincipalID}
	if e.FileID != "" {
		args = append(args, "file_id", e.FileID)
	}
	for k, v := range e.Details {
		args = append(args, k, v)
	}
	s.log.Info(ctx, "audit event", args...)
}
