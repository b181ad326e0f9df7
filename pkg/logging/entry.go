package logging

// LogEntry represents a structured log record with fields particularly
// relevant to orchestrator steps and learning-pipeline updates.
type LogEntry struct {
	// Standard fields
	Time     int64
	Severity Severity
	Message  string
	File     string
	Line     int
	Function string

	// Orchestration-specific fields
	TaskID        string // Task the entry belongs to, if any
	ObservationID string // Observation being recorded or learned from
	Latency       int64  // Operation duration in milliseconds

	// General structured data
	Fields map[string]interface{}
}
