// Package poller watches a prospect's persisted intelligence status until the
// run reaches a terminal state.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/model"
)

// DefaultInterval is the fixed poll interval.
const DefaultInterval = 2 * time.Second

// ErrStopped is returned by Wait when the session was stopped before the run
// reached a terminal status.
var ErrStopped = errors.New("poller: stopped before run finished")

// Fetcher reads the persisted record for a website.
type Fetcher interface {
	FetchProspect(ctx context.Context, website string) (*model.Prospect, error)
}

// Update is delivered after the optimistic start and after every tick.
type Update struct {
	Status   model.IntelligenceStatus
	Prospect *model.Prospect
	Err      error
}

// Poller creates watch sessions sharing a fetcher and interval.
type Poller struct {
	fetcher  Fetcher
	interval time.Duration
}

// New creates a Poller. A non-positive interval uses DefaultInterval.
func New(fetcher Fetcher, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{fetcher: fetcher, interval: interval}
}

// Session watches one run. Create it before triggering the run so the local
// status flips to researching without waiting on the server.
type Session struct {
	website  string
	fetcher  Fetcher
	interval time.Duration
	onUpdate func(Update)

	mu       sync.Mutex
	status   model.IntelligenceStatus
	latest   *model.Prospect
	finished bool
	started  bool
	stopped  bool
	cancel   context.CancelFunc

	done     chan struct{}
	doneOnce sync.Once
}

// NewSession sets the local status to researching and reports it through
// onUpdate, which may be nil. Polling begins with Start.
func (p *Poller) NewSession(website string, onUpdate func(Update)) *Session {
	s := &Session{
		website:  website,
		fetcher:  p.fetcher,
		interval: p.interval,
		onUpdate: onUpdate,
		status:   model.StatusResearching,
		cancel:   func() {},
		done:     make(chan struct{}),
	}
	s.emit(Update{Status: model.StatusResearching})
	return s
}

// Start begins polling on the fixed interval. When runID is set, a terminal
// status only ends the session once the record belongs to that run, so a
// previous run's result is never mistaken for this one. Calls after the
// first, or after Stop, do nothing.
func (s *Session) Start(ctx context.Context, runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.started = true
	go s.loop(ctx, runID)
}

// Stop cancels polling and waits for the loop to exit. It is safe to call
// more than once and before Start.
func (s *Session) Stop() {
	s.mu.Lock()
	s.stopped = true
	cancel, started := s.cancel, s.started
	s.mu.Unlock()

	cancel()
	if started {
		<-s.done
		return
	}
	s.closeDone()
}

func (s *Session) closeDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

// Done is closed when the session ends for any reason.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Status returns the latest known status.
func (s *Session) Status() model.IntelligenceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Prospect returns the latest fetched record, or nil before the first tick.
func (s *Session) Prospect() *model.Prospect {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// Wait blocks until the session ends and returns the final record. It
// returns ErrStopped if the session ended without a terminal status, or the
// context error if ctx ends first.
func (s *Session) Wait(ctx context.Context) (*model.Prospect, error) {
	select {
	case <-ctx.Done():
		return s.Prospect(), ctx.Err()
	case <-s.done:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.finished {
		return s.latest, ErrStopped
	}
	return s.latest, nil
}

func (s *Session) loop(ctx context.Context, runID string) {
	defer s.closeDone()

	log := zap.L().With(zap.String("component", "poller"), zap.String("website", s.website))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("poller: stopped")
			return
		case <-ticker.C:
			if s.tick(ctx, log, runID) {
				return
			}
		}
	}
}

// tick fetches once and reports whether the run is finished.
func (s *Session) tick(ctx context.Context, log *zap.Logger, runID string) bool {
	p, err := s.fetcher.FetchProspect(ctx, s.website)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		log.Warn("poller: fetch failed", zap.Error(err))
		s.emit(Update{Status: s.Status(), Prospect: s.Prospect(), Err: err})
		return false
	}

	s.mu.Lock()
	s.latest = p
	s.status = p.Status
	finished := p.Status.Terminal() && (runID == "" || p.RunID == runID)
	if p.Status.Terminal() && !finished {
		// Still the previous run's record; keep showing in-progress.
		s.status = model.StatusResearching
	}
	s.finished = finished
	status := s.status
	s.mu.Unlock()

	s.emit(Update{Status: status, Prospect: p})
	return finished
}

func (s *Session) emit(u Update) {
	if s.onUpdate != nil {
		s.onUpdate(u)
	}
}
