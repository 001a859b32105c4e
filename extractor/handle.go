package extractor

import (
	"context"
	"sync"
	"sync/atomic"

	"product-aggregator/internal/types"
)

// RequestHandle owns the cancellation scope and every resource acquired for one query.
// Teardown cancels the scope and releases resources in reverse acquisition order, once.
type RequestHandle struct {
	ID      string
	Drivers types.Drivers

	ctx    context.Context
	cancel context.CancelCauseFunc
	logger types.Logger

	mu        sync.Mutex
	resources []*resource
	torn      bool

	once sync.Once
	done chan struct{}

	abandoned atomic.Bool
}

type resource struct {
	name    string
	release func()
}

// NewRequestHandle creates a handle whose scope ends when parent ends or the handle is cancelled.
// The handle owns drivers and closes them on teardown.
func NewRequestHandle(parent context.Context, id string, drivers types.Drivers, logger types.Logger) *RequestHandle {
	ctx, cancel := context.WithCancelCause(parent)
	h := &RequestHandle{
		ID:      id,
		Drivers: drivers,
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
		done:    make(chan struct{}),
	}
	if drivers != nil {
		h.resources = append(h.resources, &resource{name: "drivers", release: drivers.Close})
	}
	return h
}

// Context returns the request's cancellation scope
func (h *RequestHandle) Context() context.Context {
	return h.ctx
}

// Cancel fires the cancellation token. The first cause wins.
func (h *RequestHandle) Cancel(cause error) {
	h.cancel(cause)
}

// Own registers release to run at teardown. The returned function releases the
// resource early and removes it from the handle; calling it more than once is a no-op.
// If the handle is already torn down, Own returns ErrAborted and the caller keeps ownership.
func (h *RequestHandle) Own(name string, release func()) (func(), error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.torn {
		return nil, types.Aborted(h.ctx)
	}
	r := &resource{name: name, release: release}
	h.resources = append(h.resources, r)

	var once sync.Once
	return func() {
		once.Do(func() {
			if h.detach(r) {
				r.release()
			}
		})
	}, nil
}

// detach removes r and reports whether the caller must release it
func (h *RequestHandle) detach(r *resource) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, owned := range h.resources {
		if owned == r {
			h.resources = append(h.resources[:i], h.resources[i+1:]...)
			return true
		}
	}
	return false
}

// Teardown cancels the request and releases everything it owns. It is idempotent;
// concurrent callers block until the first teardown finishes.
func (h *RequestHandle) Teardown() {
	h.once.Do(func() {
		defer close(h.done)

		h.cancel(types.ErrAborted)

		h.mu.Lock()
		h.torn = true
		owned := h.resources
		h.resources = nil
		h.mu.Unlock()

		for i := len(owned) - 1; i >= 0; i-- {
			h.release(owned[i])
		}
		h.logger.Debugf("Request %s torn down (%d resources)", h.ID, len(owned))
	})
}

// release runs one release func, containing panics so the rest still get released
func (h *RequestHandle) release(r *resource) {
	defer func() {
		if p := recover(); p != nil {
			h.logger.Warnf("Releasing %s for request %s panicked: %v", r.name, h.ID, p)
		}
	}()
	r.release()
}

// Done is closed once teardown has finished
func (h *RequestHandle) Done() <-chan struct{} {
	return h.done
}

// Abandon records that waiting for teardown was given up. It reports true only for the first caller.
func (h *RequestHandle) Abandon() bool {
	return h.abandoned.CompareAndSwap(false, true)
}

// Abandoned reports whether a teardown wait already timed out
func (h *RequestHandle) Abandoned() bool {
	return h.abandoned.Load()
}

// Owned returns the number of resources currently held
func (h *RequestHandle) Owned() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.resources)
}
