// Package blocking serves LL-HLS client reload requests that carry
// _HLS_msn/_HLS_part query parameters, parking them until a producer
// announces matching content or a timeout/stream-end fires.
package blocking

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aminofox/hlspack/pkg/errors"
	"github.com/aminofox/hlspack/pkg/model"
)

// Request describes a parsed _HLS_msn/_HLS_part/_HLS_skip reload request.
type Request struct {
	MediaSequence uint64
	PartIndex     *int
	Skip          model.SkipMode
}

// satisfiedKey packs (mediaSequence, partIndex) into a single uint64 so the
// "latest announced" marker can be read and compared with a single atomic
// load, matching the design note's AtomicU64 (msn<<32|part) recipe.
func satisfiedKey(mediaSequence uint64, partIndex int) uint64 {
	return mediaSequence<<32 | uint64(uint32(partIndex))
}

// segmentCompletePart stands in for "any part index": completing segment S
// announces (S, max-part), which satisfies every pending part of S without
// claiming anything about segment S+1.
const segmentCompletePart = int(^uint32(0) >> 1)

// RenderFunc produces the playlist text a coordinator hands back once a
// request is satisfied.
type RenderFunc func(Request) string

// Coordinator tracks the most recently announced (segment, partial) pair
// and parks requests that arrive before their target is available.
type Coordinator struct {
	latest    atomic.Uint64
	announced atomic.Bool
	ended     atomic.Bool
	timeout   time.Duration
	render    RenderFunc

	mu      sync.Mutex
	waiters map[*waiter]struct{}
}

type waiter struct {
	req  Request
	wake chan struct{}
}

// New creates a Coordinator. render is invoked (without the internal lock
// held) whenever a request becomes satisfied, to build its response body.
// timeout bounds how long await_playlist parks before failing.
func New(render RenderFunc, timeout time.Duration) *Coordinator {
	return &Coordinator{render: render, timeout: timeout, waiters: make(map[*waiter]struct{})}
}

// Notify records that (segmentIndex, partialIndex) has just been announced
// and wakes any waiter it satisfies. segmentComplete means the segment
// itself finished, which satisfies any pending request for that segment
// regardless of requested part index.
func (c *Coordinator) Notify(segmentIndex uint64, partialIndex int, segmentComplete bool) {
	key := satisfiedKey(segmentIndex, partialIndex)
	if segmentComplete {
		key = satisfiedKey(segmentIndex, segmentCompletePart)
	}
	c.announced.Store(true)
	for {
		cur := c.latest.Load()
		if cur >= key {
			break
		}
		if c.latest.CompareAndSwap(cur, key) {
			break
		}
	}

	c.mu.Lock()
	var woken []*waiter
	for w := range c.waiters {
		if c.isSatisfiedLocked(w.req) {
			woken = append(woken, w)
			delete(c.waiters, w)
		}
	}
	c.mu.Unlock()

	for _, w := range woken {
		close(w.wake)
	}
}

// NotifyStreamEnded fails every parked request with StreamAlreadyEnded and
// causes subsequent AwaitPlaylist calls to fail immediately.
func (c *Coordinator) NotifyStreamEnded() {
	c.ended.Store(true)

	c.mu.Lock()
	waiters := c.waiters
	c.waiters = make(map[*waiter]struct{})
	c.mu.Unlock()

	for w := range waiters {
		close(w.wake)
	}
}

// IsRequestSatisfied reports whether the highest announced (segment,
// partial) pair is lexicographically >= the request's target, treating a
// nil PartIndex as 0.
func (c *Coordinator) IsRequestSatisfied(req Request) bool {
	return c.isSatisfiedLocked(req)
}

func (c *Coordinator) isSatisfiedLocked(req Request) bool {
	if !c.announced.Load() {
		return false
	}
	part := 0
	if req.PartIndex != nil {
		part = *req.PartIndex
	}
	return c.latest.Load() >= satisfiedKey(req.MediaSequence, part)
}

// AwaitPlaylist renders immediately if req is already satisfied; otherwise
// parks until Notify satisfies it, the timeout elapses, or the stream ends.
func (c *Coordinator) AwaitPlaylist(ctx context.Context, req Request) (string, error) {
	if c.ended.Load() {
		return "", errors.NewStreamAlreadyEndedError()
	}
	if c.isSatisfiedLocked(req) {
		return c.render(req), nil
	}

	w := &waiter{req: req, wake: make(chan struct{})}
	c.mu.Lock()
	// Double-check under the lock: Notify may have satisfied req between the
	// unlocked check above and taking the lock.
	if c.isSatisfiedLocked(req) {
		c.mu.Unlock()
		return c.render(req), nil
	}
	if c.ended.Load() {
		c.mu.Unlock()
		return "", errors.NewStreamAlreadyEndedError()
	}
	c.waiters[w] = struct{}{}
	c.mu.Unlock()

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case <-w.wake:
		if c.ended.Load() && !c.isSatisfiedLocked(req) {
			return "", errors.NewStreamAlreadyEndedError()
		}
		return c.render(req), nil
	case <-timer.C:
		c.mu.Lock()
		delete(c.waiters, w)
		c.mu.Unlock()
		return "", errors.NewRequestTimeoutError(req.MediaSequence, req.PartIndex, c.timeout)
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.waiters, w)
		c.mu.Unlock()
		return "", ctx.Err()
	}
}

// PendingRequestCount reports how many requests are currently parked.
func (c *Coordinator) PendingRequestCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}
