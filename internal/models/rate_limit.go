package models

import "time"

// RateLimitEventKind is the kind stored for provider 429 responses.
const RateLimitEventKind = "rate_limit"

// RateLimitEvent is one append-only ledger entry recorded when the remote
// service throttles a request.
type RateLimitEvent struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind" badgerhold:"index"`
	SessionKey    string    `json:"session_key"` // ticker or session id
	StatusCode    int       `json:"status_code"`
	Detail        string    `json:"detail"`
	Timestamp     time.Time `json:"timestamp"`
	TimestampNano int64     `json:"timestamp_nano" badgerhold:"index"` // Timestamp as unix nanoseconds, used for range queries
}
