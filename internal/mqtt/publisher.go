package mqtt

import (
	"encoding/json"
	"sync"

	"fireplus/internal/logger"
	"fireplus/internal/models"
	"fireplus/internal/service"
)

// Source delivers refresh results and removals.
type Source interface {
	OnUpdate(fn func(service.DeviceSnapshot)) func()
	OnRemove(fn func(models.Device)) func()
}

// Options are the topic roots used by the publisher.
type Options struct {
	DiscoveryPrefix string
	TopicPrefix     string
}

// Publisher mirrors device snapshots to MQTT topics.
//
// The source hooks only queue work. A single worker owns the broker round
// trips, so a slow broker delays MQTT output but never the poll loop. Each
// device has one pending slot and a newer snapshot replaces an unsent one.
type Publisher struct {
	client          Client
	discoveryPrefix string
	topicPrefix     string
	log             *logger.Logger

	mu      sync.Mutex
	pending map[string]*pendingWork
	order   []string
	busy    bool
	closed  bool
	idle    *sync.Cond
	detach  []func()

	wake      chan struct{}
	stop      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once

	// owned by the worker
	announced map[string]models.Device
	available map[string]bool
}

type pendingWork struct {
	remove *models.Device
	update *service.DeviceSnapshot
}

// NewPublisher starts the publish worker. Close stops it.
func NewPublisher(client Client, opts Options, log *logger.Logger) *Publisher {
	if log == nil {
		log = logger.NewNop()
	}
	if opts.DiscoveryPrefix == "" {
		opts.DiscoveryPrefix = "homeassistant"
	}
	if opts.TopicPrefix == "" {
		opts.TopicPrefix = "fireplus"
	}
	p := &Publisher{
		client:          client,
		discoveryPrefix: opts.DiscoveryPrefix,
		topicPrefix:     opts.TopicPrefix,
		log:             log,
		pending:         make(map[string]*pendingWork),
		wake:            make(chan struct{}, 1),
		stop:            make(chan struct{}),
		stopped:         make(chan struct{}),
		announced:       make(map[string]models.Device),
		available:       make(map[string]bool),
	}
	p.idle = sync.NewCond(&p.mu)
	go p.run()
	return p
}

// Attach subscribes the publisher to src.
func (p *Publisher) Attach(src Source) {
	offUpdate := src.OnUpdate(p.HandleUpdate)
	offRemove := src.OnRemove(p.HandleRemove)

	p.mu.Lock()
	p.detach = append(p.detach, offUpdate, offRemove)
	p.mu.Unlock()
}

// HandleUpdate queues ds for publishing and returns at once.
func (p *Publisher) HandleUpdate(ds service.DeviceSnapshot) {
	p.enqueue(ds.Device.ID, func(w *pendingWork) {
		if w.update != nil {
			p.log.Debugw("mqtt_update_coalesced", "device", ds.Device.ID)
		}
		w.update = &ds
	})
}

// HandleRemove queues the removal of dev's retained topics. An unsent
// snapshot of dev is dropped.
func (p *Publisher) HandleRemove(dev models.Device) {
	p.enqueue(dev.ID, func(w *pendingWork) {
		w.remove = &dev
		w.update = nil
	})
}

func (p *Publisher) enqueue(id string, fill func(*pendingWork)) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	w, ok := p.pending[id]
	if !ok {
		w = &pendingWork{}
		p.pending[id] = w
		p.order = append(p.order, id)
	}
	fill(w)
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// next pops the oldest pending device. It marks the worker idle when
// nothing is left.
func (p *Publisher) next() (*pendingWork, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.order) == 0 {
		p.busy = false
		p.idle.Broadcast()
		return nil, false
	}
	id := p.order[0]
	p.order = p.order[1:]
	w := p.pending[id]
	delete(p.pending, id)
	p.busy = true
	return w, true
}

func (p *Publisher) run() {
	defer func() {
		p.mu.Lock()
		p.pending = make(map[string]*pendingWork)
		p.order = nil
		p.busy = false
		p.idle.Broadcast()
		p.mu.Unlock()
		close(p.stopped)
	}()

	for {
		select {
		case <-p.stop:
			return
		case <-p.wake:
		}
		for {
			select {
			case <-p.stop:
				return
			default:
			}
			w, ok := p.next()
			if !ok {
				break
			}
			if w.remove != nil {
				p.clear(*w.remove)
			}
			if w.update != nil {
				p.publish(*w.update)
			}
		}
	}
}

// flush blocks until every queued item has been handled.
func (p *Publisher) flush() {
	p.mu.Lock()
	for len(p.order) > 0 || p.busy {
		p.idle.Wait()
	}
	p.mu.Unlock()
}

// publish announces the device on first sight, then its availability and,
// when the cache is current, every sensor state.
func (p *Publisher) publish(ds service.DeviceSnapshot) {
	dev := ds.Device
	if _, ok := p.announced[dev.ID]; !ok {
		if err := p.announce(dev); err != nil {
			p.log.Errorw("mqtt_discovery_failed", "device", dev.ID, "err", err)
			return
		}
		p.announced[dev.ID] = dev
	}

	avail := ds.Snapshot.Available()
	if prev, seen := p.available[dev.ID]; !seen || prev != avail {
		payload := payloadOffline
		if avail {
			payload = payloadOnline
		}
		if err := p.client.Publish(p.availabilityTopic(dev), true, []byte(payload)); err != nil {
			p.log.Warnw("mqtt_publish_failed", "device", dev.ID, "topic", "availability", "err", err)
		} else {
			p.available[dev.ID] = avail
		}
	}

	if !avail {
		return
	}
	for _, desc := range models.Sensors {
		value := ds.Snapshot.Record.Get(desc.Field)
		if err := p.client.Publish(p.stateTopic(dev, desc.Key()), true, []byte(value)); err != nil {
			p.log.Warnw("mqtt_publish_failed", "device", dev.ID, "topic", desc.Key(), "err", err)
			return
		}
	}
}

// clear removes the retained discovery and availability of dev.
func (p *Publisher) clear(dev models.Device) {
	if known, ok := p.announced[dev.ID]; ok {
		dev = known
	}
	for _, desc := range models.Sensors {
		if err := p.client.Publish(p.configTopic(dev, desc.Key()), true, nil); err != nil {
			p.log.Warnw("mqtt_clear_failed", "device", dev.ID, "topic", desc.Key(), "err", err)
		}
	}
	if err := p.client.Publish(p.availabilityTopic(dev), true, nil); err != nil {
		p.log.Warnw("mqtt_clear_failed", "device", dev.ID, "topic", "availability", "err", err)
	}
	delete(p.announced, dev.ID)
	delete(p.available, dev.ID)
	p.log.Infow("mqtt_device_cleared", "device", dev.ID)
}

// Close detaches from the source, stops the worker, marks every announced
// device offline and disconnects. Queued snapshots are dropped. Close may
// be called more than once.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		detach := p.detach
		p.detach = nil
		p.closed = true
		p.mu.Unlock()
		for _, fn := range detach {
			fn()
		}

		close(p.stop)
		<-p.stopped

		for id, dev := range p.announced {
			if err := p.client.Publish(p.availabilityTopic(dev), true, []byte(payloadOffline)); err != nil {
				p.log.Warnw("mqtt_publish_failed", "device", id, "topic", "availability", "err", err)
			}
		}
		p.client.Close()
	})
}

func (p *Publisher) announce(dev models.Device) error {
	for _, desc := range models.Sensors {
		body, err := json.Marshal(p.sensorConfig(dev, desc))
		if err != nil {
			return err
		}
		if err := p.client.Publish(p.configTopic(dev, desc.Key()), true, body); err != nil {
			return err
		}
	}
	p.log.Infow("mqtt_device_announced", "device", dev.ID, "unique_id", dev.UniqueID)
	return nil
}
