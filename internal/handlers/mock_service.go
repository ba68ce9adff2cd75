package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"fireplus/internal/models"
	"fireplus/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(ctx context.Context, username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(ctx context.Context, username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

type mockDevices struct {
	status  models.DeviceStatus
	list    []models.DeviceStatus
	addErr  error
	getErr  error
	updErr  error
	delErr  error
	loadErr error
	listErr error

	lastAdd    service.DeviceParams
	lastUpdate service.DeviceUpdate
	lastID     string
	removed    int
	reloaded   int
}

func (m *mockDevices) AddDevice(ctx context.Context, p service.DeviceParams) (models.DeviceStatus, error) {
	m.lastAdd = p
	return m.status, m.addErr
}
func (m *mockDevices) UpdateDevice(ctx context.Context, id string, u service.DeviceUpdate) (models.DeviceStatus, error) {
	m.lastID = id
	m.lastUpdate = u
	return m.status, m.updErr
}
func (m *mockDevices) RemoveDevice(ctx context.Context, id string) error {
	m.lastID = id
	m.removed++
	return m.delErr
}
func (m *mockDevices) ReloadDevice(ctx context.Context, id string) (models.DeviceStatus, error) {
	m.lastID = id
	m.reloaded++
	return m.status, m.loadErr
}
func (m *mockDevices) ListDevices(ctx context.Context) ([]models.DeviceStatus, error) {
	return m.list, m.listErr
}
func (m *mockDevices) GetDevice(ctx context.Context, id string) (models.DeviceStatus, error) {
	m.lastID = id
	return m.status, m.getErr
}

type mockMonitoring struct {
	sensors []models.Sensor
	err     error

	mu          sync.Mutex
	subscribers map[string]func([]models.Sensor)
	lastKey     string
}

func (m *mockMonitoring) Sensors(ctx context.Context, deviceID string) ([]models.Sensor, error) {
	return m.sensors, m.err
}

func (m *mockMonitoring) Sensor(ctx context.Context, deviceID, key string) (models.Sensor, error) {
	m.mu.Lock()
	m.lastKey = key
	m.mu.Unlock()
	if m.err != nil {
		return models.Sensor{}, m.err
	}
	for _, s := range m.sensors {
		if s.Key == key {
			return s, nil
		}
	}
	return models.Sensor{}, service.ErrSensorNotFound
}

func (m *mockMonitoring) Subscribe(deviceID string, fn func([]models.Sensor)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribers == nil {
		m.subscribers = make(map[string]func([]models.Sensor))
	}
	m.subscribers[deviceID] = fn
	return func() {
		m.mu.Lock()
		delete(m.subscribers, deviceID)
		m.mu.Unlock()
	}
}

// push delivers s to the subscriber of deviceID and reports whether one exists.
func (m *mockMonitoring) push(deviceID string, s []models.Sensor) bool {
	m.mu.Lock()
	fn := m.subscribers[deviceID]
	m.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(s)
	return true
}

func (m *mockMonitoring) subscribed(deviceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.subscribers[deviceID]
	return ok
}

type mockEventLog struct {
	resp       []models.DeviceEvent
	err        error
	lastFrom   time.Time
	lastTo     time.Time
	lastType   string
	lastDevice string
	calls      int
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]models.DeviceEvent, error) {
	m.calls++
	m.lastFrom = f.From
	m.lastTo = f.To
	m.lastType = f.Type
	m.lastDevice = f.DeviceID
	return m.resp, m.err
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
