package models

import (
	"net/url"
	"time"
)

// LogRecord is the unit of ingestion and retrieval
type LogRecord struct {
	Level      string   `json:"level"`
	Message    string   `json:"message"`
	ResourceID string   `json:"resourceId"`
	Timestamp  string   `json:"timestamp"`
	TraceID    string   `json:"traceId"`
	SpanID     string   `json:"spanId"`
	Commit     string   `json:"commit"`
	Metadata   Metadata `json:"metadata"`
}

// Metadata holds the nested part of a log record
type Metadata struct {
	ParentResourceID string `json:"parentResourceId"`
}

// QueryFilter is the request-scoped set of optional filters for a search.
// Values holds the equality and full-text filters keyed by query parameter
// name; From and To bound the timestamp range.
type QueryFilter struct {
	Values map[string]string
	From   string
	To     string
}

// Query parameter names for the timestamp window
const (
	ParamTimestampFrom = "timestamp_from"
	ParamTimestampTo   = "timestamp_to"
)

var rangeAliases = map[string]string{
	ParamTimestampFrom: "timestampFrom",
	ParamTimestampTo:   "timestampTo",
}

// NewQueryFilter extracts the filter parameters listed in names from a
// query string. Empty values count as absent.
func NewQueryFilter(q url.Values, names []string) QueryFilter {
	f := QueryFilter{Values: make(map[string]string)}
	for _, name := range names {
		if v := q.Get(name); v != "" {
			f.Values[name] = v
		}
	}
	f.From = firstNonEmpty(q.Get(ParamTimestampFrom), q.Get(rangeAliases[ParamTimestampFrom]))
	f.To = firstNonEmpty(q.Get(ParamTimestampTo), q.Get(rangeAliases[ParamTimestampTo]))
	return f
}

// IsEmpty reports whether no filter is set
func (f QueryFilter) IsEmpty() bool {
	return len(f.Values) == 0 && f.From == "" && f.To == ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// SubmissionStatus is the lifecycle state of a background bulk submission
type SubmissionStatus string

const (
	SubmissionQueued    SubmissionStatus = "queued"
	SubmissionRunning   SubmissionStatus = "running"
	SubmissionSucceeded SubmissionStatus = "succeeded"
	SubmissionPartial   SubmissionStatus = "partial"
	SubmissionFailed    SubmissionStatus = "failed"
)

// Terminal reports whether the submission will not change anymore
func (s SubmissionStatus) Terminal() bool {
	return s == SubmissionSucceeded || s == SubmissionPartial || s == SubmissionFailed
}

// Submission tracks one accepted ingestion batch through bulk indexing
type Submission struct {
	ID          string           `json:"id"`
	Status      SubmissionStatus `json:"status"`
	Records     int              `json:"records"`
	Indexed     int              `json:"indexed"`
	Failed      int              `json:"failed"`
	Attempts    int              `json:"attempts"`
	Error       string           `json:"error,omitempty"`
	AcceptedAt  time.Time        `json:"accepted_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

type StreamFilter struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

type StreamMessage struct {
	Type    string         `json:"type"`
	Data    interface{}    `json:"data,omitempty"`
	Filters []StreamFilter `json:"filters,omitempty"`
}
