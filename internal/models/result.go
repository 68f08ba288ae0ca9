package models

import "errors"

// ErrInvalidRequest marks request validation failures, distinct from
// execution errors.
var ErrInvalidRequest = errors.New("invalid search request")

// HitRelation tags the accuracy of a total hit count.
type HitRelation int

const (
	// HitsExact means the count equals the true number of matches.
	HitsExact HitRelation = iota
	// HitsLowerBound means counting was intentionally truncated; the true
	// count is at least this value.
	HitsLowerBound
)

// TotalHits is a hit count with its accuracy tag.
type TotalHits struct {
	Value    int64       `json:"value"`
	Relation HitRelation `json:"relation"`
}

// Hit is one ranked document.
type Hit struct {
	Doc   uint64  `json:"doc"`
	Score float64 `json:"score"`
	// SortKey is set instead of a meaningful score when the request sorted
	// by field. Zero is a legitimate key, so it is always serialized.
	SortKey int64 `json:"sort_key"`
}

// TopDocs is the ranked portion of a result.
type TopDocs struct {
	Hits      []Hit     `json:"hits"`
	TotalHits TotalHits `json:"total_hits"`
	MaxScore  float64   `json:"max_score"`
}

// Result is the outcome of one execution over one shard.
type Result struct {
	TopDocs TopDocs `json:"top_docs"`

	// TerminatedEarly is nil when no termination mechanism was active,
	// otherwise reports whether one actually triggered. Tests distinguish
	// "never evaluated" from "evaluated, did not trigger", so the tri-state
	// must not collapse into a bool.
	TerminatedEarly *bool `json:"terminated_early,omitempty"`

	// ShouldRescore tells the surrounding phase runner whether a rescoring
	// stage was declared. Pass-through, not computed here.
	ShouldRescore bool `json:"should_rescore"`
}
