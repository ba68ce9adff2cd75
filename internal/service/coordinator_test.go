package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"fireplus/internal/models"
	"fireplus/internal/panel"
)

type fetchResult struct {
	rec models.StatusRecord
	err error
}

// fakeFetcher replays results in order; the last one repeats.
type fakeFetcher struct {
	host string

	mu      sync.Mutex
	results []fetchResult
	calls   int

	inflight    atomic.Int32
	maxInflight atomic.Int32
	delay       time.Duration
}

func (f *fakeFetcher) Host() string { return f.host }

func (f *fakeFetcher) Fetch(ctx context.Context) (models.StatusRecord, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		m := f.maxInflight.Load()
		if n <= m || f.maxInflight.CompareAndSwap(m, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	f.calls++
	if len(f.results) == 0 {
		return sampleRecord(), nil
	}
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	r := f.results[idx]
	return r.rec, r.err
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeFetcher) setResults(rs ...fetchResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = rs
	f.calls = 0
}

func sampleRecord() models.StatusRecord {
	var rec models.StatusRecord
	values := []string{"1", "Eco", "70", "40", "412", "55", "12", "Regelbetrieb", "0", "1", "Abbrand", "30"}
	copy(rec[:], values)
	return rec
}

func okResult() fetchResult { return fetchResult{rec: sampleRecord()} }

func commErr() fetchResult {
	return fetchResult{err: &panel.Error{Kind: panel.KindCommunication, Host: "stove", Err: errors.New("connection refused")}}
}

func authErr() fetchResult {
	return fetchResult{err: &panel.Error{Kind: panel.KindAuthentication, Host: "stove", Err: errors.New("status 401")}}
}

func malformedErr() fetchResult {
	return fetchResult{err: &panel.Error{Kind: panel.KindClient, Host: "stove", Err: panel.ErrMalformedResponse}}
}

func newTestCoordinator(f *fakeFetcher, events *fakeEventRepo) *Coordinator {
	return NewCoordinator("dev-1", f, 10*time.Millisecond, events, nil)
}

func TestCoordinator_FirstRefresh_Success(t *testing.T) {
	f := &fakeFetcher{host: "stove"}
	events := &fakeEventRepo{}
	c := newTestCoordinator(f, events)

	if got := c.Snapshot(); got.State != StateIdle || got.HasRecord {
		t.Fatalf("initial snapshot = %+v, want idle without record", got)
	}

	var notified []Snapshot
	c.Subscribe(func(s Snapshot) { notified = append(notified, s) })

	if err := c.FirstRefresh(context.Background()); err != nil {
		t.Fatalf("FirstRefresh() error = %v", err)
	}

	snap := c.Snapshot()
	if snap.State != StateReady || !snap.Available() {
		t.Fatalf("snapshot = %+v, want ready and available", snap)
	}
	if snap.Record.Get(models.FieldOperatingMode) != "Eco" {
		t.Errorf("operating_mode = %q", snap.Record.Get(models.FieldOperatingMode))
	}
	if snap.LastUpdated.IsZero() || snap.LastUpdated.Location() != time.UTC {
		t.Errorf("LastUpdated = %v, want UTC timestamp", snap.LastUpdated)
	}
	if len(notified) != 1 {
		t.Fatalf("listener called %d times, want 1", len(notified))
	}
	if len(events.types()) != 0 {
		t.Fatalf("unexpected events %v", events.types())
	}
}

func TestCoordinator_FirstRefresh_FailureRecordsNothing(t *testing.T) {
	f := &fakeFetcher{host: "stove", results: []fetchResult{commErr()}}
	events := &fakeEventRepo{}
	c := newTestCoordinator(f, events)

	err := c.FirstRefresh(context.Background())
	if !errors.Is(err, ErrUpdateFailed) || !panel.IsCommunication(err) {
		t.Fatalf("FirstRefresh() error = %v, want update failed wrapping communication", err)
	}
	if c.Snapshot().HasRecord {
		t.Fatal("failed refresh produced a record")
	}
	if len(events.types()) != 0 {
		t.Fatalf("setup failure recorded events %v", events.types())
	}
}

func TestCoordinator_UpdateFailedKeepsLastGoodRecord(t *testing.T) {
	f := &fakeFetcher{host: "stove"}
	events := &fakeEventRepo{}
	c := newTestCoordinator(f, events)
	ctx := context.Background()

	if err := c.FirstRefresh(ctx); err != nil {
		t.Fatalf("FirstRefresh() error = %v", err)
	}
	good := c.Snapshot()

	f.setResults(commErr(), malformedErr(), okResult())

	for i, want := range []int{1, 2} {
		err := c.Refresh(ctx)
		if !errors.Is(err, ErrUpdateFailed) {
			t.Fatalf("refresh %d: err = %v, want ErrUpdateFailed", i, err)
		}
		if errors.Is(err, ErrReauthRequired) {
			t.Fatalf("refresh %d: escalated to reauth", i)
		}
		snap := c.Snapshot()
		if snap.Record != good.Record || !snap.HasRecord {
			t.Fatalf("refresh %d: last good record lost", i)
		}
		if snap.Available() {
			t.Fatalf("refresh %d: still available after failure", i)
		}
		if snap.State != StateFailed || snap.ConsecutiveFailures != want {
			t.Fatalf("refresh %d: snapshot = %+v", i, snap)
		}
		if !snap.LastUpdated.Equal(good.LastUpdated) {
			t.Fatalf("refresh %d: LastUpdated moved on failure", i)
		}
	}
	if n := events.count(models.EventUpdateFailed); n != 1 {
		t.Fatalf("UPDATE_FAILED recorded %d times, want once per outage", n)
	}

	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("recovery refresh error = %v", err)
	}
	snap := c.Snapshot()
	if !snap.Available() || snap.ConsecutiveFailures != 0 || snap.LastError != "" {
		t.Fatalf("after recovery snapshot = %+v", snap)
	}
	if n := events.count(models.EventRecovered); n != 1 {
		t.Fatalf("RECOVERED recorded %d times, want 1", n)
	}
}

func TestCoordinator_AuthenticationRequiresReauth(t *testing.T) {
	f := &fakeFetcher{host: "stove"}
	events := &fakeEventRepo{}
	c := newTestCoordinator(f, events)
	ctx := context.Background()

	if err := c.FirstRefresh(ctx); err != nil {
		t.Fatalf("FirstRefresh() error = %v", err)
	}
	f.setResults(authErr())

	err := c.Refresh(ctx)
	if !errors.Is(err, ErrReauthRequired) {
		t.Fatalf("err = %v, want ErrReauthRequired", err)
	}
	if errors.Is(err, ErrUpdateFailed) {
		t.Fatal("auth failure must not be reported as update failed")
	}
	snap := c.Snapshot()
	if !snap.ReauthRequired || snap.Available() || !snap.HasRecord {
		t.Fatalf("snapshot = %+v", snap)
	}
	if events.count(models.EventReauthRequired) != 1 {
		t.Fatalf("events = %v, want REAUTH_REQUIRED", events.types())
	}

	// a flagged coordinator does not start polling again
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	select {
	case err := <-done:
		if !errors.Is(err, ErrReauthRequired) {
			t.Fatalf("Run() = %v, want ErrReauthRequired", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() kept polling after reauth")
	}
	if f.callCount() != 1 {
		t.Fatalf("fetch called %d times after reauth, want 1", f.callCount())
	}
}

func TestCoordinator_RunStopsOnAuthentication(t *testing.T) {
	f := &fakeFetcher{host: "stove", results: []fetchResult{okResult(), commErr(), okResult(), authErr()}}
	c := newTestCoordinator(f, &fakeEventRepo{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := c.Run(ctx)
	if !errors.Is(err, ErrReauthRequired) {
		t.Fatalf("Run() = %v, want ErrReauthRequired", err)
	}
	if f.callCount() != 4 {
		t.Fatalf("fetch called %d times, want 4", f.callCount())
	}
}

func TestCoordinator_RunExitsOnCancel(t *testing.T) {
	f := &fakeFetcher{host: "stove"}
	c := newTestCoordinator(f, &fakeEventRepo{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	time.Sleep(35 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() = %v, want nil on cancel", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not exit on cancel")
	}
	if f.callCount() == 0 {
		t.Fatal("Run() never refreshed")
	}
}

func TestCoordinator_RefreshesNeverOverlap(t *testing.T) {
	f := &fakeFetcher{host: "stove", delay: 5 * time.Millisecond}
	c := newTestCoordinator(f, &fakeEventRepo{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Refresh(context.Background())
		}()
	}
	wg.Wait()

	if got := f.maxInflight.Load(); got != 1 {
		t.Fatalf("max concurrent fetches = %d, want 1", got)
	}
	if f.callCount() != 8 {
		t.Fatalf("fetch called %d times, want 8", f.callCount())
	}
}

func TestCoordinator_CancelledRefreshIsNotAFailure(t *testing.T) {
	f := &fakeFetcher{host: "stove"}
	c := newTestCoordinator(f, &fakeEventRepo{})
	if err := c.FirstRefresh(context.Background()); err != nil {
		t.Fatalf("FirstRefresh() error = %v", err)
	}

	f.setResults(fetchResult{err: &panel.Error{Kind: panel.KindCommunication, Err: context.Canceled}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.Refresh(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Refresh() = %v, want context.Canceled", err)
	}
	snap := c.Snapshot()
	if !snap.Available() || snap.ConsecutiveFailures != 0 || snap.State != StateReady {
		t.Fatalf("snapshot = %+v, want unchanged ready state", snap)
	}
}

func TestCoordinator_Unsubscribe(t *testing.T) {
	c := newTestCoordinator(&fakeFetcher{host: "stove"}, &fakeEventRepo{})

	calls := 0
	unsubscribe := c.Subscribe(func(Snapshot) { calls++ })
	_ = c.Refresh(context.Background())
	unsubscribe()
	_ = c.Refresh(context.Background())

	if calls != 1 {
		t.Fatalf("listener called %d times, want 1", calls)
	}
}

func TestPollState_String(t *testing.T) {
	tests := map[PollState]string{
		StateIdle:     "idle",
		StatePolling:  "polling",
		StateReady:    "ready",
		StateFailed:   "failed",
		PollState(42): "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(s), got, want)
		}
	}
}
