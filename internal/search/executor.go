// Package search implements the query-execution core of one shard: the
// decision engine that takes a compiled query plus per-request parameters
// and produces a bounded, possibly early-terminated result, choosing among
// mutually exclusive fast paths before falling back to full collection.
package search

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/hyperjump/shiboru/internal/collect"
	"github.com/hyperjump/shiboru/internal/index"
	"github.com/hyperjump/shiboru/internal/models"
	"github.com/hyperjump/shiboru/internal/scroll"
	"github.com/hyperjump/shiboru/internal/shape"
)

// Source enumerates the leaf segments of one shard in visitation order.
// *index.Reader implements it; tests wrap segments to observe visitation.
type Source interface {
	Segments() []index.Segment
}

// Context carries one shard request through an execution: the request
// parameters, caller-supplied auxiliary collectors keyed by kind, and the
// result slot the executor fills.
type Context struct {
	Request    *models.SearchRequest
	Collectors map[models.CollectorKind]collect.Collector
	Result     *models.Result
}

// Executor runs shard requests against a segment source.
type Executor struct {
	logger *zap.Logger
}

// NewExecutor returns an executor logging through logger. A nil logger
// disables logging.
func NewExecutor(logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{logger: logger}
}

// Execute runs one shard request to completion and stores the result on sc.
// Segment access failures and auxiliary collector failures abort the whole
// execution; no partial result is synthesized.
func (e *Executor) Execute(ctx context.Context, sc *Context, source Source) (*models.Result, error) {
	req := sc.Request
	if err := req.Validate(); err != nil {
		return nil, err
	}

	query := req.Query
	terminateAfter := req.TerminateAfter
	if req.Scroll != nil {
		query = scroll.Prepare(query, req.Scroll)
		// Pages after the first arrive in ascending doc id order when no
		// sort was requested, so a full page is a complete page: force the
		// admission cap to the page size.
		if req.Scroll.HasLastEmitted && req.Sort == nil && req.Size > 0 && terminateAfter == 0 {
			terminateAfter = req.Size
		}
	}

	segments := source.Segments()

	if result, ok := e.tryCountFastPath(req, query, terminateAfter, sc, segments); ok {
		e.finish(sc, req, result)
		return result, nil
	}

	pipeline, err := collect.Build(collect.Options{
		Size:           req.Size,
		Sort:           req.Sort,
		PostFilter:     req.PostFilter,
		MinScore:       req.MinScore,
		TerminateAfter: terminateAfter,
		TrackTotalHits: req.TrackTotalHits,
		SortEligible:   sortEligible(req.Sort, segments),
		Aux:            sc.Collectors,
	})
	if err != nil {
		return nil, err
	}

	control := pipeline.Control()
	for _, seg := range segments {
		if control.Stopped() {
			break
		}
		leaf, err := pipeline.Leaf(seg)
		if err != nil {
			return nil, err
		}
		if err := seg.Search(ctx, query, leaf); err != nil {
			return nil, err
		}
	}

	result := &models.Result{
		TopDocs:         pipeline.TopDocs(),
		TerminatedEarly: pipeline.TerminatedEarly(),
	}
	e.logger.Debug("executed query",
		zap.Int64("total_hits", result.TopDocs.TotalHits.Value),
		zap.Int("returned", len(result.TopDocs.Hits)),
		zap.Int64("admitted", control.Admitted()))
	e.finish(sc, req, result)
	return result, nil
}

// tryCountFastPath answers counting-only requests from index metadata
// without visiting documents. Any parameter that requires observing each
// match disqualifies it regardless of query shape.
func (e *Executor) tryCountFastPath(req *models.SearchRequest, query models.Query, terminateAfter int, sc *Context, segments []index.Segment) (*models.Result, bool) {
	if req.Size != 0 || req.PostFilter != nil || req.HasMinScore() ||
		terminateAfter != 0 || len(sc.Collectors) != 0 {
		return nil, false
	}
	var total int64
	for _, seg := range segments {
		count, ok := shape.Count(query, seg)
		if !ok {
			return nil, false
		}
		total += int64(count)
	}
	e.logger.Debug("count fast path", zap.Int64("total_hits", total))
	return &models.Result{
		TopDocs: models.TopDocs{
			TotalHits: models.TotalHits{Value: total, Relation: models.HitsExact},
			MaxScore:  math.NaN(),
		},
	}, true
}

func (e *Executor) finish(sc *Context, req *models.SearchRequest, result *models.Result) {
	result.ShouldRescore = len(req.Rescorers) > 0
	if req.Scroll != nil {
		scroll.Update(req.Scroll, result)
	}
	sc.Result = result
}

// sortEligible reports whether index-sort early termination applies: the
// requested sort must be a same-direction prefix of every visited segment's
// intrinsic ordering.
func sortEligible(sort *models.SortSpec, segments []index.Segment) bool {
	if sort == nil || len(sort.Fields) == 0 || len(segments) == 0 {
		return false
	}
	for _, seg := range segments {
		if !sort.PrefixOf(seg.Sort()) {
			return false
		}
	}
	return true
}
