package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"fireplus/internal/logger"
	"fireplus/internal/models"
	"fireplus/internal/panel"
	"fireplus/internal/repository"

	"github.com/google/uuid"
)

// Setup flow errors. ErrCannotConnect and ErrUnknown carry the error codes
// shown to the operator.
var (
	ErrDeviceNotFound    = errors.New("device not found")
	ErrAlreadyConfigured = errors.New("already_configured")
	ErrCannotConnect     = errors.New("connection")
	ErrUnknown           = errors.New("unknown")
	ErrInvalidHost       = errors.New("invalid host")
	ErrInvalidInterval   = errors.New("interval must be a positive number of seconds")
)

const (
	setupRetryBase = 5 * time.Second
	maxSetupRetry  = 5 * time.Minute
)

// ClientFactory builds the panel client for a host.
type ClientFactory func(host string) (Fetcher, error)

// DeviceSnapshot pairs a configured device with its cache.
type DeviceSnapshot struct {
	Device   models.Device
	Snapshot Snapshot
}

// DeviceService owns the configured panels and their poll loops.
type DeviceService struct {
	repo            repository.DeviceRepo
	events          repository.EventRepo
	newClient       ClientFactory
	defaultInterval time.Duration
	retryBase       time.Duration
	log             *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// opMu serialises add, update, remove and reload.
	opMu     sync.Mutex
	mu       sync.Mutex
	runtimes map[string]*deviceRuntime

	hooksMu     sync.RWMutex
	nextHookID  int
	updateHooks map[int]func(DeviceSnapshot)
	removeHooks map[int]func(models.Device)
}

type deviceRuntime struct {
	device models.Device
	coord  *Coordinator
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	state     string
	lastError string
}

func (rt *deviceRuntime) set(state string, err error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.state = state
	rt.lastError = ""
	if err != nil {
		rt.lastError = err.Error()
	}
}

func (rt *deviceRuntime) get() (string, string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.state, rt.lastError
}

func NewDeviceService(repo repository.DeviceRepo, events repository.EventRepo, newClient ClientFactory, defaultInterval time.Duration, log *logger.Logger) *DeviceService {
	if log == nil {
		log = logger.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &DeviceService{
		repo:            repo,
		events:          events,
		newClient:       newClient,
		defaultInterval: defaultInterval,
		retryBase:       setupRetryBase,
		log:             log,
		ctx:             ctx,
		cancel:          cancel,
		runtimes:        make(map[string]*deviceRuntime),
		updateHooks:     make(map[int]func(DeviceSnapshot)),
		removeHooks:     make(map[int]func(models.Device)),
	}
}

// Start persists unknown seed devices and sets up every configured device.
// Devices whose first refresh fails are retried in the background.
func (s *DeviceService) Start(ctx context.Context, seeds []DeviceParams) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	for _, seed := range seeds {
		dev, err := s.newDevice(seed)
		if err != nil {
			return fmt.Errorf("seed device %q: %w", seed.Host, err)
		}
		existing, err := s.repo.GetByUniqueID(ctx, dev.UniqueID)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		if err := s.repo.Create(ctx, dev); err != nil {
			return err
		}
		s.log.Infow("device_seeded", "device", dev.ID, "host", dev.Host)
	}

	devs, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("load devices: %w", err)
	}
	for _, dev := range devs {
		if err := s.load(dev, nil); err != nil {
			s.log.Errorw("device_load_failed", "device", dev.ID, "host", dev.Host, "err", err)
		}
	}
	return nil
}

// Close stops all poll loops and waits for them to exit.
func (s *DeviceService) Close() {
	s.cancel()
	s.wg.Wait()
}

// AddDevice runs the setup flow: validate, reject duplicates, fetch once,
// persist and start polling.
func (s *DeviceService) AddDevice(ctx context.Context, p DeviceParams) (models.DeviceStatus, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	dev, err := s.newDevice(p)
	if err != nil {
		return models.DeviceStatus{}, err
	}

	existing, err := s.repo.GetByUniqueID(ctx, dev.UniqueID)
	if err != nil {
		return models.DeviceStatus{}, err
	}
	if existing != nil {
		return models.DeviceStatus{}, ErrAlreadyConfigured
	}

	client, err := s.newClient(dev.Host)
	if err != nil {
		return models.DeviceStatus{}, fmt.Errorf("%w: %w", ErrInvalidHost, err)
	}
	coord := NewCoordinator(dev.ID, client, dev.Interval(), s.events, s.log)
	if err := coord.FirstRefresh(ctx); err != nil {
		if panel.IsCommunication(err) {
			s.log.Errorw("device_setup_failed", "host", dev.Host, "err", err)
			return models.DeviceStatus{}, fmt.Errorf("%w: %w", ErrCannotConnect, err)
		}
		s.log.Errorw("device_setup_failed", "host", dev.Host, "err", err)
		return models.DeviceStatus{}, fmt.Errorf("%w: %w", ErrUnknown, err)
	}

	if err := s.repo.Create(ctx, dev); err != nil {
		return models.DeviceStatus{}, err
	}
	if err := s.load(dev, coord); err != nil {
		return models.DeviceStatus{}, err
	}
	return s.status(dev), nil
}

// UpdateDevice stores new options and reloads the device.
func (s *DeviceService) UpdateDevice(ctx context.Context, id string, u DeviceUpdate) (models.DeviceStatus, error) {
	if u.IntervalSec <= 0 {
		return models.DeviceStatus{}, ErrInvalidInterval
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	dev, err := s.getDevice(ctx, id)
	if err != nil {
		return models.DeviceStatus{}, err
	}
	dev.IntervalSec = u.IntervalSec
	dev.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, dev); err != nil {
		return models.DeviceStatus{}, translateRepoErr(err)
	}

	s.unload(dev.ID)
	if err := s.load(dev, nil); err != nil {
		return models.DeviceStatus{}, err
	}
	s.record(ctx, dev.ID, models.EventReloaded, "options updated", map[string]any{"interval_sec": dev.IntervalSec})
	return s.status(dev), nil
}

// RemoveDevice stops polling and deletes the device.
func (s *DeviceService) RemoveDevice(ctx context.Context, id string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	dev, err := s.getDevice(ctx, id)
	if err != nil {
		return err
	}
	s.unload(dev.ID)
	if err := s.repo.Delete(ctx, dev.ID); err != nil {
		return translateRepoErr(err)
	}
	s.log.Infow("device_removed", "device", dev.ID, "host", dev.Host)
	s.record(ctx, dev.ID, models.EventRemoved, "device removed", map[string]any{"host": dev.Host})

	s.hooksMu.RLock()
	hooks := make([]func(models.Device), 0, len(s.removeHooks))
	for _, fn := range s.removeHooks {
		hooks = append(hooks, fn)
	}
	s.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(dev)
	}
	return nil
}

// ReloadDevice tears the device down and sets it up again. It clears a
// pending reauthentication.
func (s *DeviceService) ReloadDevice(ctx context.Context, id string) (models.DeviceStatus, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	dev, err := s.getDevice(ctx, id)
	if err != nil {
		return models.DeviceStatus{}, err
	}
	s.unload(dev.ID)
	if err := s.load(dev, nil); err != nil {
		return models.DeviceStatus{}, err
	}
	s.log.Infow("device_reloaded", "device", dev.ID)
	s.record(ctx, dev.ID, models.EventReloaded, "device reloaded", nil)
	return s.status(dev), nil
}

// ListDevices returns every configured device with its runtime state.
func (s *DeviceService) ListDevices(ctx context.Context) ([]models.DeviceStatus, error) {
	devs, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.DeviceStatus, 0, len(devs))
	for _, d := range devs {
		out = append(out, s.status(d))
	}
	return out, nil
}

// GetDevice returns one configured device with its runtime state.
func (s *DeviceService) GetDevice(ctx context.Context, id string) (models.DeviceStatus, error) {
	dev, err := s.getDevice(ctx, id)
	if err != nil {
		return models.DeviceStatus{}, err
	}
	return s.status(dev), nil
}

// Snapshot returns the cache of a loaded device.
func (s *DeviceService) Snapshot(id string) (DeviceSnapshot, bool) {
	rt := s.runtime(id)
	if rt == nil {
		return DeviceSnapshot{}, false
	}
	return DeviceSnapshot{Device: rt.device, Snapshot: rt.coord.Snapshot()}, true
}

// Snapshots returns the caches of all loaded devices.
func (s *DeviceService) Snapshots() []DeviceSnapshot {
	s.mu.Lock()
	rts := make([]*deviceRuntime, 0, len(s.runtimes))
	for _, rt := range s.runtimes {
		rts = append(rts, rt)
	}
	s.mu.Unlock()

	out := make([]DeviceSnapshot, 0, len(rts))
	for _, rt := range rts {
		out = append(out, DeviceSnapshot{Device: rt.device, Snapshot: rt.coord.Snapshot()})
	}
	return out
}

// OnUpdate registers fn to receive every refresh result of every device.
// Hooks run on the poll goroutine and must not block.
func (s *DeviceService) OnUpdate(fn func(DeviceSnapshot)) func() {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	id := s.nextHookID
	s.nextHookID++
	s.updateHooks[id] = fn
	return func() {
		s.hooksMu.Lock()
		delete(s.updateHooks, id)
		s.hooksMu.Unlock()
	}
}

// OnRemove registers fn to be called after a device was deleted.
func (s *DeviceService) OnRemove(fn func(models.Device)) func() {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	id := s.nextHookID
	s.nextHookID++
	s.removeHooks[id] = fn
	return func() {
		s.hooksMu.Lock()
		delete(s.removeHooks, id)
		s.hooksMu.Unlock()
	}
}

func (s *DeviceService) newDevice(p DeviceParams) (models.Device, error) {
	host := strings.TrimSpace(p.Host)
	uniqueID := slugify(host)
	if uniqueID == "" {
		return models.Device{}, ErrInvalidHost
	}

	interval := p.IntervalSec
	switch {
	case interval < 0:
		return models.Device{}, ErrInvalidInterval
	case interval == 0:
		interval = int(s.defaultInterval / time.Second)
	}

	now := time.Now().UTC()
	return models.Device{
		ID:          uuid.NewString(),
		UniqueID:    uniqueID,
		Title:       host,
		Host:        host,
		IntervalSec: interval,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (s *DeviceService) getDevice(ctx context.Context, id string) (models.Device, error) {
	dev, err := s.repo.Get(ctx, id)
	if err != nil {
		return models.Device{}, err
	}
	if dev == nil {
		return models.Device{}, ErrDeviceNotFound
	}
	return *dev, nil
}

func translateRepoErr(err error) error {
	if errors.Is(err, repository.ErrDeviceNotFound) {
		return ErrDeviceNotFound
	}
	return err
}

func (s *DeviceService) runtime(id string) *deviceRuntime {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runtimes[id]
}

func (s *DeviceService) status(dev models.Device) models.DeviceStatus {
	st := models.DeviceStatus{Device: dev, State: models.DeviceNotLoaded}
	rt := s.runtime(dev.ID)
	if rt == nil {
		return st
	}

	state, lastErr := rt.get()
	snap := rt.coord.Snapshot()
	if snap.ReauthRequired {
		state = models.DeviceReauthRequired
	}
	st.State = state
	st.Available = snap.Available()
	st.LastUpdated = snap.LastUpdated
	st.ConsecutiveFailures = snap.ConsecutiveFailures
	st.LastError = snap.LastError
	if st.LastError == "" {
		st.LastError = lastErr
	}
	return st
}

// load starts the runtime of dev. A non-nil primed coordinator has already
// completed its first refresh.
func (s *DeviceService) load(dev models.Device, primed *Coordinator) error {
	coord := primed
	if coord == nil {
		client, err := s.newClient(dev.Host)
		if err != nil {
			s.record(s.ctx, dev.ID, models.EventSetupFailed, err.Error(), nil)
			return fmt.Errorf("%w: %w", ErrInvalidHost, err)
		}
		coord = NewCoordinator(dev.ID, client, dev.Interval(), s.events, s.log)
	}

	state := models.DeviceSetupRetry
	if primed != nil {
		state = models.DeviceLoaded
	}
	ctx, cancel := context.WithCancel(s.ctx)
	rt := &deviceRuntime{
		device: dev,
		coord:  coord,
		cancel: cancel,
		done:   make(chan struct{}),
		state:  state,
	}
	coord.Subscribe(func(snap Snapshot) {
		s.fireUpdate(DeviceSnapshot{Device: dev, Snapshot: snap})
	})

	s.mu.Lock()
	s.runtimes[dev.ID] = rt
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx, rt, primed != nil)
	return nil
}

func (s *DeviceService) unload(id string) {
	s.mu.Lock()
	rt := s.runtimes[id]
	delete(s.runtimes, id)
	s.mu.Unlock()

	if rt == nil {
		return
	}
	rt.cancel()
	<-rt.done
}

func (s *DeviceService) run(ctx context.Context, rt *deviceRuntime, primed bool) {
	defer s.wg.Done()
	defer close(rt.done)

	dev := rt.device
	if primed {
		// the setup flow refreshed before any listener was attached
		s.fireUpdate(DeviceSnapshot{Device: dev, Snapshot: rt.coord.Snapshot()})
	} else if !s.setUp(ctx, rt) {
		return
	}

	rt.set(models.DeviceLoaded, nil)
	s.log.Infow("device_loaded", "device", dev.ID, "host", dev.Host, "interval", dev.Interval().String())
	s.record(ctx, dev.ID, models.EventSetup, "device set up", map[string]any{"host": dev.Host, "interval_sec": dev.IntervalSec})

	if err := rt.coord.Run(ctx); errors.Is(err, ErrReauthRequired) {
		rt.set(models.DeviceReauthRequired, err)
		s.log.Warnw("device_polling_stopped", "device", dev.ID, "reason", "reauth_required")
	}
}

// setUp retries the first refresh with a doubling delay until it succeeds,
// the panel rejects the request, or ctx is done.
func (s *DeviceService) setUp(ctx context.Context, rt *deviceRuntime) bool {
	dev := rt.device
	for attempt := 0; ; attempt++ {
		err := rt.coord.FirstRefresh(ctx)
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}

		if errors.Is(err, ErrReauthRequired) {
			rt.set(models.DeviceReauthRequired, err)
			s.log.Errorw("device_setup_failed", "device", dev.ID, "host", dev.Host, "err", err)
			s.record(ctx, dev.ID, models.EventSetupFailed, err.Error(), map[string]any{"state": models.DeviceReauthRequired})
			return false
		}

		rt.set(models.DeviceSetupRetry, err)
		wait := calculateBackoff(attempt, s.retryBase)
		if attempt == 0 {
			s.log.Warnw("device_setup_retry", "device", dev.ID, "host", dev.Host, "retry_in", wait.String(), "err", err)
			s.record(ctx, dev.ID, models.EventSetupFailed, err.Error(), map[string]any{"state": models.DeviceSetupRetry})
		} else {
			s.log.Debugw("device_setup_retry", "device", dev.ID, "attempt", attempt+1, "retry_in", wait.String())
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}
}

func (s *DeviceService) fireUpdate(ds DeviceSnapshot) {
	s.hooksMu.RLock()
	hooks := make([]func(DeviceSnapshot), 0, len(s.updateHooks))
	for _, fn := range s.updateHooks {
		hooks = append(hooks, fn)
	}
	s.hooksMu.RUnlock()

	for _, fn := range hooks {
		fn(ds)
	}
}

func (s *DeviceService) record(ctx context.Context, deviceID, typ, msg string, meta any) {
	if s.events == nil {
		return
	}
	err := s.events.Append(context.WithoutCancel(ctx), models.DeviceEvent{
		DeviceID:    deviceID,
		Type:        typ,
		Description: msg,
		Metadata:    meta,
	})
	if err != nil {
		s.log.Errorw("event_append_failed", "device", deviceID, "type", typ, "err", err)
	}
}

// calculateBackoff doubles base per failed attempt, capped at maxSetupRetry.
func calculateBackoff(failures int, base time.Duration) time.Duration {
	if failures <= 0 {
		return base
	}
	d := base
	for i := 0; i < failures; i++ {
		d *= 2
		if d >= maxSetupRetry {
			return maxSetupRetry
		}
	}
	return d
}

// slugify lowercases s and joins its alphanumeric runs with dashes.
func slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if b.Len() > 0 && !dash {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
