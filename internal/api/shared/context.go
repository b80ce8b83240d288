package shared

import (
	"context"
	"encoding/hex"

	"github.com/google/uuid"

	"github.com/phrazzld/opcore/internal/platform/logger"
)

// TraceIDHeader carries the trace ID back to the client.
const TraceIDHeader = "X-Trace-ID"

// SetTraceID adds a freshly generated trace ID to the context.
// This is useful for correlating logs and error responses.
func SetTraceID(ctx context.Context) context.Context {
	return logger.WithTraceID(ctx, generateTraceID())
}

// GetTraceID retrieves the trace ID from the context.
// If no trace ID exists, it returns an empty string.
func GetTraceID(ctx context.Context) string {
	return logger.TraceID(ctx)
}

// generateTraceID returns a random 32 character hex string
func generateTraceID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}
