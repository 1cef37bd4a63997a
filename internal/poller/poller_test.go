package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospector/internal/model"
)

// fakeFetcher replays a fixed sequence of records, repeating the last one.
type fakeFetcher struct {
	mu    sync.Mutex
	seq   []fetchResult
	calls int
}

type fetchResult struct {
	p   *model.Prospect
	err error
}

func (f *fakeFetcher) FetchProspect(_ context.Context, website string) (*model.Prospect, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	if i >= len(f.seq) {
		i = len(f.seq) - 1
	}
	f.calls++
	r := f.seq[i]
	if r.p != nil {
		cp := *r.p
		cp.Website = website
		return &cp, r.err
	}
	return nil, r.err
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func record(status model.IntelligenceStatus, runID string) fetchResult {
	return fetchResult{p: &model.Prospect{Status: status, RunID: runID}}
}

type recorder struct {
	mu      sync.Mutex
	updates []Update
}

func (r *recorder) record(u Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *recorder) statuses() []model.IntelligenceStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.IntelligenceStatus, len(r.updates))
	for i, u := range r.updates {
		out[i] = u.Status
	}
	return out
}

func TestSession_OptimisticResearching(t *testing.T) {
	rec := &recorder{}
	s := New(&fakeFetcher{seq: []fetchResult{record(model.StatusIdle, "")}}, time.Hour).NewSession("acmemusic.com", rec.record)

	assert.Equal(t, model.StatusResearching, s.Status())
	assert.Equal(t, []model.IntelligenceStatus{model.StatusResearching}, rec.statuses())
	assert.Nil(t, s.Prospect())
	s.Stop()
}

func TestSession_StopsAtTerminal(t *testing.T) {
	tests := []struct {
		name  string
		final model.IntelligenceStatus
	}{
		{"complete", model.StatusComplete},
		{"error", model.StatusError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeFetcher{seq: []fetchResult{
				record(model.StatusResearching, "run-1"),
				record(model.StatusGenerating, "run-1"),
				record(tt.final, "run-1"),
			}}
			rec := &recorder{}
			s := New(f, 5*time.Millisecond).NewSession("acmemusic.com", rec.record)
			s.Start(context.Background(), "run-1")

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			p, err := s.Wait(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.final, p.Status)
			assert.Equal(t, tt.final, s.Status())

			assert.Equal(t, []model.IntelligenceStatus{
				model.StatusResearching,
				model.StatusResearching,
				model.StatusGenerating,
				tt.final,
			}, rec.statuses())

			// No further fetches once terminal.
			calls := f.Calls()
			time.Sleep(30 * time.Millisecond)
			assert.Equal(t, calls, f.Calls())
		})
	}
}

func TestSession_IgnoresPreviousRunTerminal(t *testing.T) {
	f := &fakeFetcher{seq: []fetchResult{
		record(model.StatusComplete, "run-old"),
		record(model.StatusComplete, "run-new"),
	}}
	rec := &recorder{}
	s := New(f, 5*time.Millisecond).NewSession("acmemusic.com", rec.record)
	s.Start(context.Background(), "run-new")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	p, err := s.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-new", p.RunID)
	assert.Equal(t, []model.IntelligenceStatus{
		model.StatusResearching,
		model.StatusResearching,
		model.StatusComplete,
	}, rec.statuses())
}

func TestSession_AnyRunWithoutRunID(t *testing.T) {
	f := &fakeFetcher{seq: []fetchResult{record(model.StatusComplete, "run-old")}}
	s := New(f, 5*time.Millisecond).NewSession("acmemusic.com", nil)
	s.Start(context.Background(), "")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	p, err := s.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.StatusComplete, p.Status)
}

func TestSession_FetchErrorsKeepPolling(t *testing.T) {
	f := &fakeFetcher{seq: []fetchResult{
		{err: errors.New("connection refused")},
		record(model.StatusComplete, "run-1"),
	}}
	rec := &recorder{}
	s := New(f, 5*time.Millisecond).NewSession("acmemusic.com", rec.record)
	s.Start(context.Background(), "run-1")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := s.Wait(ctx)
	require.NoError(t, err)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.updates, 3)
	assert.EqualError(t, rec.updates[1].Err, "connection refused")
	assert.Equal(t, model.StatusResearching, rec.updates[1].Status)
}

func TestSession_StopCancelsPolling(t *testing.T) {
	f := &fakeFetcher{seq: []fetchResult{record(model.StatusGenerating, "run-1")}}
	s := New(f, 5*time.Millisecond).NewSession("acmemusic.com", nil)
	s.Start(context.Background(), "run-1")

	time.Sleep(20 * time.Millisecond)
	s.Stop()
	s.Stop()

	select {
	case <-s.Done():
	default:
		t.Fatal("done not closed after Stop")
	}
	calls := f.Calls()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, f.Calls(), "no ticks after Stop")

	p, err := s.Wait(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
	require.NotNil(t, p)
	assert.Equal(t, model.StatusGenerating, p.Status)
}

func TestSession_ContextCancelEndsSession(t *testing.T) {
	f := &fakeFetcher{seq: []fetchResult{record(model.StatusResearching, "run-1")}}
	s := New(f, 5*time.Millisecond).NewSession("acmemusic.com", nil)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx, "run-1")
	cancel()

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("session did not end on context cancel")
	}
}

func TestSession_StopBeforeStart(t *testing.T) {
	f := &fakeFetcher{seq: []fetchResult{record(model.StatusComplete, "")}}
	s := New(f, 5*time.Millisecond).NewSession("acmemusic.com", nil)
	s.Stop()
	s.Start(context.Background(), "")

	_, err := s.Wait(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
	assert.Equal(t, 0, f.Calls())
}

func TestSession_WaitContextExpires(t *testing.T) {
	f := &fakeFetcher{seq: []fetchResult{record(model.StatusResearching, "run-1")}}
	s := New(f, time.Hour).NewSession("acmemusic.com", nil)
	s.Start(context.Background(), "run-1")
	defer s.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := s.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNew_DefaultInterval(t *testing.T) {
	p := New(&fakeFetcher{}, 0)
	assert.Equal(t, DefaultInterval, p.interval)
}
