package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/diwise/monitoring-gasdetector/domain"
	"github.com/diwise/monitoring-gasdetector/internal/pkg/application/events"
	"github.com/diwise/monitoring-gasdetector/internal/pkg/infrastructure/metrics"
)

type ManagerConfig struct {
	Quantity     string
	Capacity     int
	PollInterval time.Duration
	Matches      events.KeyMatcherFunc
	Thresholds   ThresholdSource
	Status       StatusSource
	Listener     Listener
	Log          zerolog.Logger
}

// Manager owns at most one monitoring session per device and routes
// push stream events to the session they belong to. Events for devices
// nobody is watching are dropped.
type Manager struct {
	mu       sync.Mutex
	ctx      context.Context
	cfg      ManagerConfig
	sessions map[string]*Session
}

func NewManager(ctx context.Context, cfg ManagerConfig) *Manager {
	return &Manager{
		ctx:      ctx,
		cfg:      cfg,
		sessions: map[string]*Session{},
	}
}

// Open starts a monitoring session for the given device, returning the
// existing one if it is already being watched.
func (m *Manager) Open(serialNumber string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[serialNumber]; ok {
		return s
	}

	s := New(Config{
		SerialNumber: serialNumber,
		Quantity:     m.cfg.Quantity,
		Capacity:     m.cfg.Capacity,
		PollInterval: m.cfg.PollInterval,
		Matches:      m.cfg.Matches,
		Thresholds:   m.cfg.Thresholds,
		Status:       m.cfg.Status,
		Listener:     m.cfg.Listener,
		Log:          m.cfg.Log,
	})

	s.Start(m.ctx)

	m.sessions[serialNumber] = s
	metrics.SessionsOpen.Set(float64(len(m.sessions)))

	return s
}

func (m *Manager) Get(serialNumber string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[serialNumber]

	return s, ok
}

// Close ends the session for the given device, tearing down its timers
// and discarding all of its state.
func (m *Manager) Close(serialNumber string) bool {
	m.mu.Lock()
	s, ok := m.sessions[serialNumber]
	if ok {
		delete(m.sessions, serialNumber)
		metrics.SessionsOpen.Set(float64(len(m.sessions)))
	}
	m.mu.Unlock()

	if ok {
		s.Close()
	}

	return ok
}

func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = map[string]*Session{}
	metrics.SessionsOpen.Set(0)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

// HandleEnvelope routes a telemetry envelope to the session watching
// the device it was published for.
func (m *Manager) HandleEnvelope(serialNumber string, payload []byte) {
	if s, ok := m.Get(serialNumber); ok {
		s.HandleEnvelope(payload)
	}
}

func (m *Manager) HandleStatus(ev domain.StatusEvent) {
	if s, ok := m.Get(ev.SerialNumber); ok {
		s.HandleStatus(ev)
	}
}

func (m *Manager) HandleThreshold(ev domain.ThresholdEvent) {
	if s, ok := m.Get(ev.SerialNumber); ok {
		s.HandleThresholdPush(ev)
	}
}

// HandleDisconnect marks every open session offline. Called when the
// push stream has exhausted its reconnect attempts, so that stale
// readings are not presented as live.
func (m *Manager) HandleDisconnect() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.HandleStatus(domain.StatusEvent{SerialNumber: s.SerialNumber(), Status: "offline"})
	}
}
