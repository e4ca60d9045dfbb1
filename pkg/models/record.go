package models

import "time"

// QueryRecord captures one completed query attempt. Records are immutable
// once created; the metrics recorder drops the oldest ones when its history
// fills up, and the persistent query log keeps them until retention expiry.
type QueryRecord struct {
	RequestID    string    `json:"request_id,omitempty"`
	Query        string    `json:"query"` // truncated for display
	FullQuery    string    `json:"full_query"`
	ResponseTime float64   `json:"response_time"` // seconds
	Cached       bool      `json:"cached"`
	SourceCount  int       `json:"sources_count"`
	AnswerLength int       `json:"answer_length"`
	Success      bool      `json:"success"`
	Error        string    `json:"error,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// CacheOp records a single cache get or set for the operations log.
type CacheOp struct {
	Operation string    `json:"operation"` // "get" or "set"
	Query     string    `json:"query"`     // truncated
	Hit       bool      `json:"cache_hit"`
	CreatedAt time.Time `json:"timestamp"`
}

// ErrorRecord is a categorized error log entry with optional context.
type ErrorRecord struct {
	Category  string            `json:"category"`
	Message   string            `json:"message"`
	Context   map[string]string `json:"context,omitempty"`
	CreatedAt time.Time         `json:"timestamp"`
}

// QueryLogOpts filters reads from the persistent query log.
type QueryLogOpts struct {
	Cached  *bool
	Success *bool
	Since   time.Time
	Limit   int
}
