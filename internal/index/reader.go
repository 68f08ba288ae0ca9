package index

// Reader composes segments into one shard view. Global doc ids are assigned
// by segment order: each segment's base is the sum of the MaxDoc of the
// segments before it.
type Reader struct {
	segments []Segment
}

// NewReader builds a reader over memory segments, assigning bases in order.
func NewReader(segs ...*MemorySegment) *Reader {
	r := &Reader{}
	var base uint64
	for _, s := range segs {
		s.base = base
		base += uint64(s.maxDoc)
		r.segments = append(r.segments, s)
	}
	return r
}

// Segments returns the segments in visitation order.
func (r *Reader) Segments() []Segment { return r.segments }

// LiveDocCount sums live documents across segments.
func (r *Reader) LiveDocCount() int {
	var n int
	for _, s := range r.segments {
		n += s.LiveDocCount()
	}
	return n
}
