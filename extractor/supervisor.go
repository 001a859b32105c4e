package extractor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"product-aggregator/internal/types"
	"product-aggregator/utils"
)

// DriverSource creates the page drivers for a new request session
type DriverSource interface {
	New(session string) types.Drivers
}

// Supervisor owns the single current-request slot. Admitting a query first
// cancels and tears down whatever request currently holds the slot.
type Supervisor struct {
	pool      *Pool
	assembler *Assembler
	drivers   DriverSource
	config    *types.Config
	logger    types.Logger
	reap      func(requestID string)

	mu      sync.Mutex
	current *RequestHandle
	closed  bool
}

// NewSupervisor creates a supervisor. Browser processes that outlive a bounded
// teardown are force killed by their session marker.
func NewSupervisor(pool *Pool, assembler *Assembler, drivers DriverSource, config *types.Config, logger types.Logger) *Supervisor {
	s := &Supervisor{
		pool:      pool,
		assembler: assembler,
		drivers:   drivers,
		config:    config,
		logger:    logger,
	}
	s.reap = func(requestID string) {
		utils.KillBrowsers(context.Background(), utils.SessionMarker(requestID), logger)
	}
	return s
}

// SetReaper replaces the last-resort cleanup run when a teardown times out
func (s *Supervisor) SetReaper(fn func(requestID string)) {
	s.reap = fn
}

// Submit runs q as the current request. It returns an ErrAborted-flavored error
// when the request was superseded, its client went away or the server is shutting down.
func (s *Supervisor) Submit(ctx context.Context, q types.Query) ([]types.ProductRecord, error) {
	h, err := s.admit(ctx)
	if err != nil {
		return nil, err
	}

	logger := s.logger.WithField("request_id", h.ID)
	logger.Infof("Query %q admitted for sites %v (page %d, limit %d)", q.Text, q.Sites, q.Params.Page, q.Params.Limit)
	start := time.Now()

	outcomes := s.pool.RunAll(h.Context(), q, h)

	// Read before our own teardown cancels the scope
	aborted := h.Context().Err() != nil
	cause := types.Aborted(h.Context())

	s.finish(h)

	if aborted {
		logger.Infof("Query aborted after %v: %v", time.Since(start), cause)
		return nil, cause
	}

	results := s.assembler.Merge(outcomes)
	failed := 0
	for _, o := range outcomes {
		if o.Error != nil {
			failed++
		}
	}
	logger.Infof("Query completed in %v: %d items, %d/%d sites failed", time.Since(start), len(results), failed, len(outcomes))
	return results, nil
}

// admit supersedes the current request and installs a new handle
func (s *Supervisor) admit(ctx context.Context) (*RequestHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, types.ErrShutdown
	}

	if prev := s.current; prev != nil {
		s.current = nil
		s.logger.Infof("Superseding request %s", prev.ID)
		prev.Cancel(types.ErrSuperseded)
		s.awaitTeardown(prev)
	}

	id := uuid.NewString()
	h := NewRequestHandle(ctx, id, s.drivers.New(id), s.logger.WithField("request_id", id))
	s.current = h
	return h, nil
}

// finish tears down h and clears the slot if h still holds it
func (s *Supervisor) finish(h *RequestHandle) {
	s.awaitTeardown(h)

	s.mu.Lock()
	if s.current == h {
		s.current = nil
	}
	s.mu.Unlock()
}

// awaitTeardown waits a bounded time for h's teardown. When it does not finish in time
// the wait is abandoned and lingering browser processes are force killed, once per handle.
func (s *Supervisor) awaitTeardown(h *RequestHandle) {
	go h.Teardown()
	if h.Abandoned() {
		return
	}

	timeout := s.config.TeardownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-h.Done():
	case <-timer.C:
		if !h.Abandon() {
			return
		}
		s.logger.Warnf("Teardown of request %s did not finish within %v, force killing its browsers", h.ID, timeout)
		if s.reap != nil {
			go s.reap(h.ID)
		}
	}
}

// Shutdown tears down the current request and rejects every later Submit
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if prev := s.current; prev != nil {
		s.current = nil
		s.logger.Infof("Shutting down request %s", prev.ID)
		prev.Cancel(types.ErrShutdown)
		s.awaitTeardown(prev)
	}
}

// Current returns the id of the request holding the slot, or ""
func (s *Supervisor) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ""
	}
	return s.current.ID
}
