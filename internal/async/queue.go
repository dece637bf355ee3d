// Package async runs document processing on a bounded worker pool so uploads
// return immediately.
package async

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Job is one processing request for a registered document.
type Job struct {
	DocumentID  uuid.UUID
	SubmittedAt time.Time
	TraceID     string
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}
