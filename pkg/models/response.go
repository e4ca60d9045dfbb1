package models

// Outcome classifies how a response was produced. Exactly one applies to
// every response.
type Outcome string

const (
	// OutcomeHit means the answer was served from the response cache.
	OutcomeHit Outcome = "hit"
	// OutcomeFresh means the answer was computed by the answer pipeline.
	OutcomeFresh Outcome = "fresh"
	// OutcomeFailed means the pipeline failed and the response carries an
	// error message instead of an answer.
	OutcomeFailed Outcome = "failed"
)

// Answer is the payload produced by the external answer pipeline.
type Answer struct {
	Text    string   `json:"answer"`
	Sources []string `json:"sources"`
}

// Response is what the orchestrator returns for every question, including
// failures. CacheLatencyMs is set only for OutcomeHit, RetrievalTime only
// for OutcomeFresh, and Err only for OutcomeFailed.
type Response struct {
	Answer         string   `json:"answer"`
	Sources        []string `json:"sources"`
	Outcome        Outcome  `json:"outcome"`
	Cached         bool     `json:"cached"`
	ResponseTime   float64  `json:"response_time"`              // seconds, ms precision
	CacheLatencyMs float64  `json:"cache_latency_ms,omitempty"` // cache lookup round trip
	RetrievalTime  float64  `json:"retrieval_time,omitempty"`   // seconds spent in the pipeline
	Err            string   `json:"error,omitempty"`
}
