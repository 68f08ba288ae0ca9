package models

import (
	"fmt"
	"math"
)

// CollectorKind keys auxiliary collectors attached to a request.
type CollectorKind string

// CollectorKindTotalHits is an auxiliary collector that counts every admitted
// document, independently of the primary chain's own accounting.
const CollectorKindTotalHits CollectorKind = "total_hits"

// SearchRequest carries the per-request execution parameters for one shard.
// It is immutable for the duration of one execution; the executor borrows it.
type SearchRequest struct {
	Query      Query
	PostFilter Query

	// MinScore excludes documents scoring below it. NaN means unset.
	MinScore float64

	// Size is the number of top documents to return. 0 means counting only.
	Size int

	Sort *SortSpec

	// TerminateAfter is a hard cap on documents admitted by the pipeline
	// across the whole execution. 0 means unbounded.
	TerminateAfter int

	// TrackTotalHits controls whether the total hit count must stay exact
	// when early termination curtails visitation.
	TrackTotalHits bool

	// Rescorers declares secondary rescoring stages run after this phase.
	// The executor only reports whether any exist.
	Rescorers []string

	Scroll *ScrollState
}

// NewSearchRequest returns a request matching all documents with the usual
// defaults: size 10, exact total hits, no minimum score.
func NewSearchRequest(q Query) *SearchRequest {
	return &SearchRequest{
		Query:          q,
		MinScore:       math.NaN(),
		Size:           10,
		TrackTotalHits: true,
	}
}

// HasMinScore reports whether a minimum score is set.
func (r *SearchRequest) HasMinScore() bool {
	return !math.IsNaN(r.MinScore)
}

// Validate rejects malformed requests before any pipeline is built.
func (r *SearchRequest) Validate() error {
	if r.Query == nil {
		return fmt.Errorf("%w: query is required", ErrInvalidRequest)
	}
	if r.Size < 0 {
		return fmt.Errorf("%w: size %d is negative", ErrInvalidRequest, r.Size)
	}
	if r.TerminateAfter < 0 {
		return fmt.Errorf("%w: terminate_after %d is negative", ErrInvalidRequest, r.TerminateAfter)
	}
	// Hits carry a single sort key, so ranking honors exactly one sort field.
	// Multi-field specs remain valid as segment-intrinsic orderings.
	if r.Sort != nil && len(r.Sort.Fields) > 1 {
		return fmt.Errorf("%w: sorting by more than one field is not supported", ErrInvalidRequest)
	}
	return nil
}

// ScrollState is the per-session paging state. It is mutated by the executor
// at most once per execution and outlives any single call; the engine above
// serializes executions of the same session.
type ScrollState struct {
	// LastEmittedDoc is the highest global doc id returned so far.
	// HasLastEmitted is false on the first call of a session.
	LastEmittedDoc uint64
	HasLastEmitted bool

	// LastMaxScore is the max score of the last page, NaN until set.
	LastMaxScore float64

	// TotalHits caches the session's total hit count after the first call,
	// -1 until set. TotalRelation carries the cached count's accuracy tag:
	// the first page itself may report a lower bound.
	TotalHits     int64
	TotalRelation HitRelation
}

// NewScrollState returns the state for a fresh scroll session.
func NewScrollState() *ScrollState {
	return &ScrollState{LastMaxScore: math.NaN(), TotalHits: -1}
}
