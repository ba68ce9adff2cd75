package mqtt

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"fireplus/internal/models"
	"fireplus/internal/service"
)

type message struct {
	topic    string
	retained bool
	payload  string
}

type fakeClient struct {
	mu     sync.Mutex
	msgs   []message
	failOn string
	closed bool
	// gate, when set, holds every Publish until it is closed
	gate chan struct{}
}

func (f *fakeClient) Publish(topic string, retained bool, payload []byte) error {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn != "" && strings.Contains(topic, f.failOn) {
		return errors.New("broker unavailable")
	}
	f.msgs = append(f.msgs, message{topic: topic, retained: retained, payload: string(payload)})
	return nil
}

func (f *fakeClient) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeClient) withPrefix(prefix string) []message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []message
	for _, m := range f.msgs {
		if strings.HasPrefix(m.topic, prefix) {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeClient) last(topic string) (message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.msgs) - 1; i >= 0; i-- {
		if f.msgs[i].topic == topic {
			return f.msgs[i], true
		}
	}
	return message{}, false
}

func (f *fakeClient) reset() {
	f.mu.Lock()
	f.msgs = nil
	f.mu.Unlock()
}

type fakeSource struct {
	update func(service.DeviceSnapshot)
	remove func(models.Device)
}

func (s *fakeSource) OnUpdate(fn func(service.DeviceSnapshot)) func() {
	s.update = fn
	return func() { s.update = nil }
}

func (s *fakeSource) OnRemove(fn func(models.Device)) func() {
	s.remove = fn
	return func() { s.remove = nil }
}

func sampleRecord() models.StatusRecord {
	var rec models.StatusRecord
	values := []string{"1", "Eco", "70", "40", "412", "55", "12", "Regelbetrieb", "0", "1", "Abbrand", "30"}
	copy(rec[:], values)
	return rec
}

func snapshot(failures int) service.DeviceSnapshot {
	return service.DeviceSnapshot{
		Device: models.Device{ID: "dev-1", UniqueID: "192-168-1-20", Title: "192.168.1.20", Host: "192.168.1.20"},
		Snapshot: service.Snapshot{
			DeviceID:            "dev-1",
			State:               service.StateReady,
			Record:              sampleRecord(),
			HasRecord:           true,
			LastUpdated:         time.Now().UTC(),
			ConsecutiveFailures: failures,
		},
	}
}

func newTestPublisher(t *testing.T) (*Publisher, *fakeClient) {
	t.Helper()
	client := &fakeClient{}
	p := NewPublisher(client, Options{DiscoveryPrefix: "homeassistant", TopicPrefix: "fireplus"}, nil)
	t.Cleanup(p.Close)
	return p, client
}

// update hands ds to the publisher and waits for the worker to finish it.
func update(p *Publisher, ds service.DeviceSnapshot) {
	p.HandleUpdate(ds)
	p.flush()
}

func TestPublisher_AnnouncesOnce(t *testing.T) {
	t.Parallel()

	p, client := newTestPublisher(t)
	update(p, snapshot(0))
	update(p, snapshot(0))

	configs := client.withPrefix("homeassistant/")
	if len(configs) != models.FieldCount {
		t.Fatalf("got %d discovery messages, want %d", len(configs), models.FieldCount)
	}

	msg, ok := client.last("homeassistant/sensor/192-168-1-20/temperature/config")
	if !ok || !msg.retained {
		t.Fatalf("temperature discovery missing or not retained: %+v", msg)
	}
	var cfg sensorConfig
	if err := json.Unmarshal([]byte(msg.payload), &cfg); err != nil {
		t.Fatalf("decode discovery: %v", err)
	}
	if cfg.UniqueID != "192-168-1-20_temperature" || cfg.UnitOfMeasurement != "°C" || cfg.StateClass != "measurement" {
		t.Errorf("discovery payload = %+v", cfg)
	}
	if cfg.StateTopic != "fireplus/192-168-1-20/temperature" || cfg.AvailabilityTopic != "fireplus/192-168-1-20/availability" {
		t.Errorf("topics = %q / %q", cfg.StateTopic, cfg.AvailabilityTopic)
	}
	if cfg.Device.Manufacturer != "Drooff" || cfg.Device.Name != "192.168.1.20" {
		t.Errorf("device block = %+v", cfg.Device)
	}
}

func TestPublisher_StatesAndAvailability(t *testing.T) {
	t.Parallel()

	p, client := newTestPublisher(t)
	update(p, snapshot(0))

	if msg, _ := client.last("fireplus/192-168-1-20/availability"); msg.payload != "online" {
		t.Fatalf("availability = %q, want online", msg.payload)
	}
	if msg, _ := client.last("fireplus/192-168-1-20/status"); msg.payload != "Regelbetrieb" || !msg.retained {
		t.Fatalf("status state = %+v", msg)
	}

	client.reset()
	update(p, snapshot(1))

	if msg, _ := client.last("fireplus/192-168-1-20/availability"); msg.payload != "offline" {
		t.Fatalf("availability after failure = %q, want offline", msg.payload)
	}
	if got := client.withPrefix("fireplus/192-168-1-20/temperature"); len(got) != 0 {
		t.Fatalf("state published while unavailable: %+v", got)
	}

	client.reset()
	update(p, snapshot(1))
	if got := client.withPrefix("fireplus/192-168-1-20/availability"); len(got) != 0 {
		t.Fatalf("unchanged availability republished: %+v", got)
	}
}

func TestPublisher_DiscoveryFailureRetried(t *testing.T) {
	t.Parallel()

	p, client := newTestPublisher(t)
	client.failOn = "/config"
	update(p, snapshot(0))
	if got := client.withPrefix("fireplus/"); len(got) != 0 {
		t.Fatalf("states published before discovery: %+v", got)
	}

	client.failOn = ""
	update(p, snapshot(0))
	if got := client.withPrefix("homeassistant/"); len(got) != models.FieldCount {
		t.Fatalf("discovery not retried: %d messages", len(got))
	}
}

func TestPublisher_AttachAndRemove(t *testing.T) {
	t.Parallel()

	p, client := newTestPublisher(t)
	src := &fakeSource{}
	p.Attach(src)

	src.update(snapshot(0))
	p.flush()
	client.reset()
	src.remove(snapshot(0).Device)
	p.flush()

	cleared := client.withPrefix("homeassistant/")
	if len(cleared) != models.FieldCount {
		t.Fatalf("cleared %d discovery topics, want %d", len(cleared), models.FieldCount)
	}
	for _, m := range cleared {
		if m.payload != "" || !m.retained {
			t.Fatalf("discovery not cleared: %+v", m)
		}
	}

	// announced again after a re-add
	client.reset()
	src.update(snapshot(0))
	p.flush()
	if got := client.withPrefix("homeassistant/"); len(got) != models.FieldCount {
		t.Fatalf("device not re-announced: %d", len(got))
	}
}

func TestPublisher_Close(t *testing.T) {
	t.Parallel()

	p, client := newTestPublisher(t)
	src := &fakeSource{}
	p.Attach(src)
	src.update(snapshot(0))
	p.flush()

	p.Close()

	if msg, _ := client.last("fireplus/192-168-1-20/availability"); msg.payload != "offline" {
		t.Errorf("availability on close = %q, want offline", msg.payload)
	}
	if !client.closed {
		t.Error("client not closed")
	}
	if src.update != nil || src.remove != nil {
		t.Error("hooks not detached")
	}
}

func withTemperature(ds service.DeviceSnapshot, v string) service.DeviceSnapshot {
	ds.Snapshot.Record = ds.Snapshot.Record.With(models.FieldTemperature, v)
	return ds
}

func TestPublisher_StalledBrokerDoesNotBlockUpdates(t *testing.T) {
	t.Parallel()

	p, client := newTestPublisher(t)
	gate := make(chan struct{})
	client.mu.Lock()
	client.gate = gate
	client.mu.Unlock()

	returned := make(chan struct{})
	go func() {
		for _, v := range []string{"400", "410", "420", "430"} {
			p.HandleUpdate(withTemperature(snapshot(0), v))
		}
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		close(gate)
		t.Fatal("HandleUpdate blocked on a stalled broker")
	}

	close(gate)
	p.flush()

	temps := client.withPrefix("fireplus/192-168-1-20/temperature")
	if len(temps) == 0 || len(temps) > 2 {
		t.Fatalf("published %d temperature states, want the in-flight one and the latest", len(temps))
	}
	if got := temps[len(temps)-1].payload; got != "430" {
		t.Fatalf("last temperature = %q, want 430", got)
	}
}

func TestPublisher_RemoveDropsQueuedUpdate(t *testing.T) {
	t.Parallel()

	p, client := newTestPublisher(t)
	update(p, snapshot(0))

	gate := make(chan struct{})
	client.mu.Lock()
	client.gate = gate
	client.mu.Unlock()

	// second device keeps the worker busy while dev-1 gets queued work
	other := snapshot(0)
	other.Device = models.Device{ID: "dev-2", UniqueID: "192-168-1-21", Host: "192.168.1.21"}
	p.HandleUpdate(other)
	p.HandleUpdate(withTemperature(snapshot(0), "999"))
	p.HandleRemove(snapshot(0).Device)
	close(gate)
	p.flush()

	for _, m := range client.withPrefix("fireplus/192-168-1-20/temperature") {
		if m.payload == "999" {
			t.Fatalf("update queued before removal was published: %+v", m)
		}
	}
	if msg, ok := client.last("fireplus/192-168-1-20/availability"); !ok || msg.payload != "" {
		t.Fatalf("availability not cleared: %+v", msg)
	}
}

func TestPublisher_IgnoresWorkAfterClose(t *testing.T) {
	t.Parallel()

	p, client := newTestPublisher(t)
	p.Close()
	p.Close()

	p.HandleUpdate(snapshot(0))
	p.flush()
	if got := client.withPrefix("homeassistant/"); len(got) != 0 {
		t.Fatalf("published after close: %+v", got)
	}
}
