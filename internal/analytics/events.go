// Package analytics records what the search service is asked and how it
// answers. Events are published to Kafka by a Collector and folded into
// running statistics by an Aggregator.
package analytics

import "time"

type EventType string

const (
	EventSearch     EventType = "search"
	EventZeroResult EventType = "zero_result"
	EventFailed     EventType = "search_failed"
	EventIndexFlush EventType = "index_flush"
)

// SearchEvent describes one answered (or rejected) search request.
type SearchEvent struct {
	Type           EventType `json:"type"`
	Query          string    `json:"query"`
	Limit          int       `json:"limit"`
	Count          uint64    `json:"count"`
	Returned       int       `json:"returned"`
	FacetFields    []string  `json:"facet_fields,omitempty"`
	DegradedFields []string  `json:"degraded_fields,omitempty"`
	Generation     uint64    `json:"generation"`
	LatencyMs      int64     `json:"latency_ms"`
	CacheHit       bool      `json:"cache_hit"`
	Error          string    `json:"error,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	RequestID      string    `json:"request_id,omitempty"`
}

// IndexEvent is emitted by the builder each time a segment is flushed.
type IndexEvent struct {
	Type       EventType `json:"type"`
	Segment    string    `json:"segment"`
	Docs       int       `json:"docs"`
	Generation uint64    `json:"generation"`
	LatencyMs  int64     `json:"latency_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// eventKey picks the Kafka partition key for an event.
func eventKey(event any) string {
	switch e := event.(type) {
	case SearchEvent:
		return string(e.Type)
	case *SearchEvent:
		return string(e.Type)
	case IndexEvent:
		return e.Segment
	case *IndexEvent:
		return e.Segment
	default:
		return "analytics"
	}
}
