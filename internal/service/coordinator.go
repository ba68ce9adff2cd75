package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"fireplus/internal/logger"
	"fireplus/internal/models"
	"fireplus/internal/panel"
	"fireplus/internal/repository"
)

// Coordinator errors. Both wrap the fetch error that caused them.
var (
	ErrReauthRequired = errors.New("reauthentication required")
	ErrUpdateFailed   = errors.New("update failed")
)

// Fetcher reads one status record from a panel.
type Fetcher interface {
	Fetch(ctx context.Context) (models.StatusRecord, error)
	Host() string
}

// PollState is the coordinator lifecycle state.
type PollState int

const (
	StateIdle PollState = iota
	StatePolling
	StateReady
	StateFailed
)

func (s PollState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Snapshot is an immutable view of a coordinator's cache.
type Snapshot struct {
	DeviceID            string
	State               PollState
	Record              models.StatusRecord
	HasRecord           bool
	LastUpdated         time.Time // last successful refresh
	LastAttempt         time.Time
	LastError           string
	ReauthRequired      bool
	ConsecutiveFailures int
}

// Available reports whether the cached record reflects the latest cycle.
func (s Snapshot) Available() bool {
	return s.HasRecord && s.ConsecutiveFailures == 0 && !s.ReauthRequired
}

// Coordinator polls one panel at a fixed interval and caches the last good record.
type Coordinator struct {
	deviceID string
	fetcher  Fetcher
	interval time.Duration
	events   repository.EventRepo
	log      *logger.Logger
	now      func() time.Time

	// refreshMu keeps refreshes sequential.
	refreshMu sync.Mutex
	snap      atomic.Pointer[Snapshot]

	listenersMu sync.RWMutex
	listeners   map[int]func(Snapshot)
	nextID      int
}

func NewCoordinator(deviceID string, fetcher Fetcher, interval time.Duration, events repository.EventRepo, log *logger.Logger) *Coordinator {
	if log == nil {
		log = logger.NewNop()
	}
	c := &Coordinator{
		deviceID:  deviceID,
		fetcher:   fetcher,
		interval:  interval,
		events:    events,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
		listeners: make(map[int]func(Snapshot)),
	}
	c.snap.Store(&Snapshot{DeviceID: deviceID, State: StateIdle})
	return c
}

// Snapshot returns a copy of the current cache.
func (c *Coordinator) Snapshot() Snapshot {
	return *c.snap.Load()
}

// Subscribe registers fn to be called after every refresh cycle.
// The returned func removes the subscription.
func (c *Coordinator) Subscribe(fn func(Snapshot)) func() {
	c.listenersMu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.listenersMu.Unlock()

	return func() {
		c.listenersMu.Lock()
		delete(c.listeners, id)
		c.listenersMu.Unlock()
	}
}

// FirstRefresh performs the eager refresh done at setup. A failure aborts
// setup; the caller reports it, so no event is recorded here.
func (c *Coordinator) FirstRefresh(ctx context.Context) error {
	return c.refresh(ctx, true)
}

// Run refreshes on every tick until ctx is done or the panel rejects the
// request, in which case it returns ErrReauthRequired.
func (c *Coordinator) Run(ctx context.Context) error {
	if c.Snapshot().ReauthRequired {
		return ErrReauthRequired
	}

	t := time.NewTicker(c.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			err := c.Refresh(ctx)
			if errors.Is(err, ErrReauthRequired) {
				return err
			}
		}
	}
}

// Refresh fetches once and updates the cache. On failure the previous record
// is kept.
func (c *Coordinator) Refresh(ctx context.Context) error {
	return c.refresh(ctx, false)
}

func (c *Coordinator) refresh(ctx context.Context, setup bool) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	prev := c.Snapshot()
	polling := prev
	polling.State = StatePolling
	c.snap.Store(&polling)

	rec, err := c.fetcher.Fetch(ctx)
	if err != nil && ctx.Err() != nil {
		// cancelled by unload or shutdown, not a panel failure
		c.snap.Store(&prev)
		return ctx.Err()
	}
	now := c.now()

	next := prev
	next.LastAttempt = now
	if err == nil {
		next.State = StateReady
		next.Record = rec
		next.HasRecord = true
		next.LastUpdated = now
		next.LastError = ""
		next.ReauthRequired = false
		next.ConsecutiveFailures = 0
		c.snap.Store(&next)

		if prev.ConsecutiveFailures > 0 && !setup {
			c.log.Infow("poll_recovered", "device", c.deviceID, "host", c.fetcher.Host(), "failures", prev.ConsecutiveFailures)
			c.record(ctx, models.EventRecovered, "panel reachable again", map[string]any{"failures": prev.ConsecutiveFailures})
		}
		c.notify(next)
		return nil
	}

	next.State = StateFailed
	next.LastError = err.Error()
	next.ConsecutiveFailures = prev.ConsecutiveFailures + 1

	var out error
	switch {
	case panel.IsAuthentication(err):
		next.ReauthRequired = true
		out = fmt.Errorf("%w: %w", ErrReauthRequired, err)
		if !setup {
			c.log.Errorw("poll_reauth_required", "device", c.deviceID, "host", c.fetcher.Host(), "err", err)
			c.record(ctx, models.EventReauthRequired, err.Error(), nil)
		}
	case setup:
		out = fmt.Errorf("%w: %w", ErrUpdateFailed, err)
	default:
		out = fmt.Errorf("%w: %w", ErrUpdateFailed, err)
		// only the first failure of an outage is logged
		if prev.ConsecutiveFailures == 0 {
			c.log.Warnw("poll_failed", "device", c.deviceID, "host", c.fetcher.Host(), "err", err)
			c.record(ctx, models.EventUpdateFailed, err.Error(), map[string]any{"kind": panel.KindOf(err).String()})
		} else {
			c.log.Debugw("poll_failed", "device", c.deviceID, "failures", next.ConsecutiveFailures, "err", err)
		}
	}
	c.snap.Store(&next)
	c.notify(next)
	return out
}

func (c *Coordinator) notify(s Snapshot) {
	c.listenersMu.RLock()
	fns := make([]func(Snapshot), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.listenersMu.RUnlock()

	for _, fn := range fns {
		fn(s)
	}
}

func (c *Coordinator) record(ctx context.Context, typ, msg string, meta any) {
	if c.events == nil {
		return
	}
	err := c.events.Append(context.WithoutCancel(ctx), models.DeviceEvent{
		DeviceID:    c.deviceID,
		OccurredAt:  c.now(),
		Type:        typ,
		Description: msg,
		Metadata:    meta,
	})
	if err != nil {
		c.log.Errorw("event_append_failed", "device", c.deviceID, "type", typ, "err", err)
	}
}
