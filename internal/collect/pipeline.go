package collect

import (
	"fmt"
	"math"
	"sort"

	"github.com/RoaringBitmap/roaring"

	"github.com/hyperjump/shiboru/internal/index"
	"github.com/hyperjump/shiboru/internal/models"
)

// Options is the declarative description of one execution's pipeline.
type Options struct {
	// Size is the number of top documents to rank. 0 builds a bare counter.
	Size int
	// Sort ranks by sort key instead of score when set and Size > 0.
	Sort *models.SortSpec
	// PostFilter drops documents not matching it before any collector sees
	// them.
	PostFilter models.Query
	// MinScore drops documents scoring below it. NaN means unset.
	MinScore float64
	// TerminateAfter caps admitted documents across the execution. 0 means
	// unbounded.
	TerminateAfter int
	// TrackTotalHits keeps the reported total exact under index-sort early
	// termination.
	TrackTotalHits bool
	// SortEligible enables index-sort early termination: the requested sort
	// is a same-direction prefix of every visited segment's intrinsic
	// order.
	SortEligible bool
	// Aux are caller-supplied sibling collectors observing the identical
	// admitted stream.
	Aux map[models.CollectorKind]Collector
}

// Pipeline is the collector composition for one execution. Exactly one
// primary chain and any auxiliary siblings observe every document passing
// query, post-filter and minimum score, in segment visitation order.
type Pipeline struct {
	opts     Options
	control  *Control
	base     *topDocsCollector
	children []Collector

	// capReached is set when the terminate-after cap triggered,
	// sortCurtailed when index-sort termination skipped ranking or
	// visitation in some segment.
	capReached    bool
	sortCurtailed bool
}

// Build assembles the pipeline, innermost collector first. A size-0 request
// with a sort degenerates to a bare counter; that is legal.
func Build(opts Options) (*Pipeline, error) {
	if opts.Size < 0 {
		return nil, fmt.Errorf("pipeline size %d is negative", opts.Size)
	}
	if opts.Sort != nil && len(opts.Sort.Fields) == 0 {
		opts.Sort = nil
	}
	p := &Pipeline{
		opts:    opts,
		control: NewControl(opts.TerminateAfter),
	}
	if opts.Sort != nil && opts.Size > 0 {
		first := opts.Sort.Fields[0]
		p.base = newTopSortCollector(opts.Size, first.Field, first.Direction == models.SortDesc)
	} else {
		p.base = newTopDocsCollector(opts.Size)
	}

	primary := Collector(p.base)
	if opts.TerminateAfter > 0 {
		primary = &terminateAfterCollector{next: primary, p: p}
	}
	if opts.SortEligible && opts.Size > 0 {
		primary = &sortTerminatingCollector{next: primary, p: p}
	}
	p.children = append(p.children, primary)
	for _, kind := range sortedKinds(opts.Aux) {
		p.children = append(p.children, opts.Aux[kind])
	}
	return p, nil
}

func sortedKinds(aux map[models.CollectorKind]Collector) []models.CollectorKind {
	kinds := make([]models.CollectorKind, 0, len(aux))
	for k := range aux {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Control exposes the shared early-termination signal so the executor can
// poll it between documents and segments.
func (p *Pipeline) Control() *Control { return p.control }

// Leaf builds the admission callback for one segment: minimum-score and
// post-filter gates first, then fan-out to the primary chain and auxiliary
// siblings. A child signalling stop is dropped for the rest of the segment;
// visitation of the segment ends when no child remains or the controller is
// signalled.
func (p *Pipeline) Leaf(seg index.Segment) (LeafFunc, error) {
	leaves := make([]LeafFunc, len(p.children))
	for i, c := range p.children {
		lf, err := c.Leaf(seg)
		if err != nil {
			return nil, fmt.Errorf("collector %d: %w", i, err)
		}
		leaves[i] = lf
	}
	var filter *roaring.Bitmap
	if p.opts.PostFilter != nil {
		var err error
		filter, err = seg.Matches(p.opts.PostFilter)
		if err != nil {
			return nil, fmt.Errorf("post filter: %w", err)
		}
	}
	hasMinScore := !math.IsNaN(p.opts.MinScore)

	return func(local uint32, score float64) (bool, error) {
		if p.control.Stopped() {
			return false, nil
		}
		if hasMinScore && score < p.opts.MinScore {
			return true, nil
		}
		if filter != nil && !filter.Contains(local) {
			return true, nil
		}
		active := false
		for i, lf := range leaves {
			if lf == nil {
				continue
			}
			more, err := lf(local, score)
			if err != nil {
				return false, err
			}
			if more {
				active = true
			} else {
				leaves[i] = nil
			}
		}
		if p.control.Stopped() {
			return false, nil
		}
		return active, nil
	}, nil
}

// TopDocs assembles the primary chain's result.
func (p *Pipeline) TopDocs() models.TopDocs {
	td := p.base.topDocs()
	if p.capReached || (p.sortCurtailed && !p.opts.TrackTotalHits) {
		td.TotalHits.Relation = models.HitsLowerBound
	}
	return td
}

// TerminatedEarly reports the tri-state termination outcome: nil when no
// termination mechanism was active, otherwise whether one triggered.
func (p *Pipeline) TerminatedEarly() *bool {
	if p.opts.TerminateAfter <= 0 && !(p.opts.SortEligible && p.opts.Size > 0) {
		return nil
	}
	v := p.capReached || p.sortCurtailed
	return &v
}

// terminateAfterCollector enforces the hard admission cap. The document at
// the cap is still admitted; the shared controller is signalled afterwards so
// every sibling stops on the same document.
type terminateAfterCollector struct {
	next Collector
	p    *Pipeline
}

func (c *terminateAfterCollector) Leaf(seg index.Segment) (LeafFunc, error) {
	inner, err := c.next.Leaf(seg)
	if err != nil {
		return nil, err
	}
	return func(local uint32, score float64) (bool, error) {
		more, err := inner(local, score)
		if err != nil {
			return false, err
		}
		if c.p.control.Admit() {
			c.p.capReached = true
			return false, nil
		}
		return more, nil
	}, nil
}

// sortTerminatingCollector curtails ranking once the base holds Size
// documents for the current segment. Documents arrive in the requested order
// within a segment, so later ones cannot displace the collected ones. With
// total-hit tracking the remainder of the segment is still counted; without
// it the primary abandons the segment and the reported total becomes a lower
// bound of documents actually observed.
type sortTerminatingCollector struct {
	next Collector
	p    *Pipeline
}

func (c *sortTerminatingCollector) Leaf(seg index.Segment) (LeafFunc, error) {
	inner, err := c.next.Leaf(seg)
	if err != nil {
		return nil, err
	}
	collected := 0
	return func(local uint32, score float64) (bool, error) {
		if collected < c.p.opts.Size {
			collected++
			return inner(local, score)
		}
		c.p.sortCurtailed = true
		if c.p.opts.TrackTotalHits {
			c.p.base.countOnly()
			return true, nil
		}
		return false, nil
	}, nil
}
