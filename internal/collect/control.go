// Package collect implements the collector pipeline the query executor
// drives over segments: base collectors (counting, top-k by score, top-k by
// sort key), filtering and early-terminating decorators, and fan-out to
// auxiliary collectors.
package collect

import "sync/atomic"

// Control is the cooperative early-termination signal shared by every
// collector of one execution. It is the only state mutated concurrently when
// segment visitation is parallelized, and the core's sole cancellation
// primitive. When a cap is set, concurrent visitors may overshoot it by at
// most the number of in-flight visitors at signal time.
type Control struct {
	cap      int64
	admitted atomic.Int64
	stopped  atomic.Bool
}

// NewControl returns a controller with the given admission cap. cap <= 0
// means unbounded; Stop can still be signalled explicitly.
func NewControl(cap int) *Control {
	return &Control{cap: int64(cap)}
}

// Admit records one admitted document and reports whether the cap is now
// reached. Reaching the cap signals Stop exactly once.
func (c *Control) Admit() bool {
	n := c.admitted.Add(1)
	if c.cap > 0 && n >= c.cap {
		c.stopped.Store(true)
		return true
	}
	return false
}

// Admitted returns the number of documents admitted so far.
func (c *Control) Admitted() int64 { return c.admitted.Load() }

// Stop signals termination to all visitors.
func (c *Control) Stop() { c.stopped.Store(true) }

// Stopped reports whether termination has been signalled.
func (c *Control) Stopped() bool { return c.stopped.Load() }
