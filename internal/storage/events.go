package storage

import "time"

// EventWriter is the interface for writing invocation audit events.
// Write() must NEVER block the caller.
type EventWriter interface {
	Write(event *InvocationEvent)
	Close()
}

// InvocationEvent records one dispatcher invocation for the audit trail.
// Secret values never appear here; Outcome carries the fault kind string
// ("ok" for success).
type InvocationEvent struct {
	RequestID      string
	Timestamp      time.Time
	ToolID         string
	UserID         string
	SessionToken   string
	Transport      string // "grpc", "mcp", "internal"
	Outcome        string
	Detail         string
	CredentialType string
	LatencyMs      float32
}
