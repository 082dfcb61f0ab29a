package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/diwise/monitoring-gasdetector/domain"
	"github.com/diwise/monitoring-gasdetector/internal/pkg/application/events"
	"github.com/diwise/monitoring-gasdetector/internal/pkg/application/guard"
	"github.com/diwise/monitoring-gasdetector/internal/pkg/application/history"
	"github.com/diwise/monitoring-gasdetector/internal/pkg/infrastructure/metrics"
)

const DefaultPollInterval = 15 * time.Second

// ThresholdSource resolves the configured alarm threshold for one
// device and one indicator.
type ThresholdSource interface {
	GetThreshold(ctx context.Context, serialNumber, indicator string) (*float64, error)
}

// StatusSource answers whether a device is currently reachable.
type StatusSource interface {
	Ping(ctx context.Context, serialNumber string) (bool, error)
}

// Listener receives state changes for fan-out to live consumers.
// Implementations must not call back into the session.
type Listener interface {
	ReadingAccepted(serialNumber string, r domain.Reading)
	IndicatorChanged(serialNumber string, ind domain.Indicator)
}

type Config struct {
	SerialNumber string
	Quantity     string
	Capacity     int
	PollInterval time.Duration
	Matches      events.KeyMatcherFunc
	Thresholds   ThresholdSource
	Status       StatusSource
	Listener     Listener
	Log          zerolog.Logger
}

// Session owns all monitoring state for one device: reading history,
// threshold, connectivity and the derived indicator. Every mutation is
// funneled through one mutex so accepted readings keep their arrival
// order, and every asynchronous callback checks the session is still
// live before touching state.
type Session struct {
	mu sync.Mutex

	serialNumber string
	quantity     string

	normalizer *events.Normalizer
	matches    events.KeyMatcherFunc
	guard      *guard.Guard
	store      *history.Store

	thresholds ThresholdSource
	status     StatusSource
	listener   Listener

	threshold *float64
	online    bool
	lastValue *float64
	lastRaw   string

	active bool
	closed bool

	pollInterval time.Duration
	cancel       context.CancelFunc
	done         chan struct{}

	log zerolog.Logger
}

func New(cfg Config) *Session {
	if cfg.Quantity == "" {
		cfg.Quantity = "ppm"
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	if cfg.Matches == nil {
		cfg.Matches = events.PPMKeys
	}

	return &Session{
		serialNumber: cfg.SerialNumber,
		quantity:     cfg.Quantity,
		normalizer:   events.NewNormalizer(cfg.SerialNumber, cfg.Matches),
		matches:      cfg.Matches,
		guard:        guard.New(),
		store:        history.New(cfg.Capacity),
		thresholds:   cfg.Thresholds,
		status:       cfg.Status,
		listener:     cfg.Listener,
		active:       true,
		pollInterval: cfg.PollInterval,
		done:         make(chan struct{}),
		log:          cfg.Log.With().Str("serial_number", cfg.SerialNumber).Logger(),
	}
}

// Start launches the connectivity poll loop and the initial threshold
// fetch. Close tears both down.
func (s *Session) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	go s.run(ctx)
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	s.pollOnce(ctx)
	s.RefreshThreshold(ctx)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollOnce(ctx)
		}
	}
}

func (s *Session) pollOnce(ctx context.Context) {
	online, err := s.status.Ping(ctx, s.serialNumber)
	if err != nil {
		s.log.Warn().Err(err).Msg("status poll failed, treating device as offline")
		online = false
	}

	s.mu.Lock()

	if s.closed || !s.active {
		s.mu.Unlock()
		return
	}

	changed := s.setOnline(online)
	ind := s.indicator()

	s.mu.Unlock()

	if changed {
		s.notifyIndicator(ind)
	}
}

// Close ends the monitoring session. All timers and the poll loop are
// torn down and later callbacks become no-ops.
func (s *Session) Close() {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return
	}

	s.closed = true
	s.active = false
	cancel := s.cancel

	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-s.done
	}

	metrics.IndicatorState.DeleteLabelValues(s.serialNumber)
}

func (s *Session) SerialNumber() string {
	return s.serialNumber
}

func (s *Session) Quantity() string {
	return s.quantity
}

// HandleEnvelope ingests one raw push envelope. Ingestion is gated on
// the focus flag and proceeds independently of any in-flight
// configuration fetch.
func (s *Session) HandleEnvelope(raw []byte) {
	s.mu.Lock()

	if s.closed || !s.active {
		s.mu.Unlock()
		return
	}

	accepted := []domain.Reading{}

	for _, o := range s.normalizer.Normalize(raw) {
		fp := guard.Fingerprint(o.SerialNumber, o.Key, o.RawValue, o.Timestamp)

		if decision := s.guard.Accept(fp); decision != guard.Accepted {
			metrics.ReadingsDiscarded.WithLabelValues(s.serialNumber, decision.String()).Inc()
			continue
		}

		if s.guard.ConsumeSkip() {
			metrics.ReadingsDiscarded.WithLabelValues(s.serialNumber, "skipped").Inc()
			continue
		}

		r := domain.Reading{
			ID:           uuid.NewString(),
			Timestamp:    o.Timestamp,
			IndicatorKey: o.Key,
			Value:        o.Value,
			RawValue:     o.RawValue,
			Fingerprint:  fp,
		}

		s.store.Append(r)
		s.lastValue = o.Value
		s.lastRaw = o.RawValue

		metrics.ReadingsAccepted.WithLabelValues(s.serialNumber).Inc()
		accepted = append(accepted, r)
	}

	ind := s.indicator()

	s.mu.Unlock()

	if len(accepted) > 0 {
		for _, r := range accepted {
			s.notifyReading(r)
		}
		s.notifyIndicator(ind)
	}
}

// HandleStatus applies a push-delivered status event. Events for other
// devices are discarded silently.
func (s *Session) HandleStatus(ev domain.StatusEvent) {
	s.mu.Lock()

	if s.closed || ev.SerialNumber != s.serialNumber {
		s.mu.Unlock()
		return
	}

	changed := s.setOnline(coerceOnline(ev.Status))
	ind := s.indicator()

	s.mu.Unlock()

	if changed {
		s.notifyIndicator(ind)
	}
}

// HandleThresholdPush applies a push-delivered threshold change when
// it is scoped to this device and this quantity.
func (s *Session) HandleThresholdPush(ev domain.ThresholdEvent) {
	s.mu.Lock()

	if s.closed || ev.SerialNumber != s.serialNumber || !s.matches(ev.Indicator) {
		s.mu.Unlock()
		return
	}

	v := ev.Threshold
	changed := s.setThreshold(&v)
	ind := s.indicator()

	s.mu.Unlock()

	if changed {
		s.notifyIndicator(ind)
	}
}

// RefreshThreshold fetches the threshold from the configuration api.
// A failed fetch resolves to an unconfigured threshold, never a stale
// one, and is never fatal to the session.
func (s *Session) RefreshThreshold(ctx context.Context) {
	value, err := s.thresholds.GetThreshold(ctx, s.serialNumber, s.quantity)
	if err != nil {
		s.log.Warn().Err(err).Msg("threshold fetch failed, threshold is now unconfigured")
		metrics.ThresholdRefreshFailures.Inc()
		value = nil
	}

	s.SetThreshold(value)
}

func (s *Session) SetThreshold(value *float64) {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return
	}

	changed := s.setThreshold(value)
	ind := s.indicator()

	s.mu.Unlock()

	if changed {
		s.notifyIndicator(ind)
	}
}

// setThreshold clears history on any change: historical alarm
// classification is always evaluated against the current threshold.
// The last known value is retained outside history so the indicator
// recomputes against the new threshold immediately.
func (s *Session) setThreshold(value *float64) bool {
	if equalThreshold(s.threshold, value) {
		return false
	}

	if value == nil {
		s.threshold = nil
	} else {
		v := *value
		s.threshold = &v
	}

	s.store.Clear()

	return true
}

func (s *Session) setOnline(online bool) bool {
	if online == s.online {
		return false
	}

	s.online = online

	if !online {
		s.store.Clear()
		s.lastValue = nil
		s.lastRaw = ""
	}

	return true
}

// Clear drops the visible history. The fingerprints of everything
// visible are captured first so a retained copy replayed by the
// transport is not immediately redisplayed, and the one-shot skip flag
// is armed against brief replay storms.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	snap := s.store.Snapshot()
	visible := make([]string, 0, len(snap))
	for _, r := range snap {
		visible = append(visible, r.Fingerprint)
	}

	s.guard.Clear(visible)
	s.guard.ArmSkip()
	s.store.Clear()
}

// Focus resumes ingestion after the screen regains focus: the seen set
// is reset, connectivity is re-polled and the threshold is refreshed.
func (s *Session) Focus(ctx context.Context) {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return
	}

	s.active = true
	s.guard.ResetSeen()

	s.mu.Unlock()

	s.pollOnce(ctx)
	s.RefreshThreshold(ctx)
}

// Blur suspends ingestion while the screen is out of focus.
func (s *Session) Blur() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = false
}

func (s *Session) Indicator() domain.Indicator {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.indicator()
}

func (s *Session) indicator() domain.Indicator {
	ind := domain.Indicator{
		Value:    s.lastValue,
		RawValue: s.lastRaw,
		Online:   s.online,
	}

	switch {
	case !s.online:
		ind.State = domain.StateOffline
	case s.lastValue != nil && s.threshold != nil && *s.lastValue > *s.threshold:
		ind.State = domain.StateAlarm
	default:
		ind.State = domain.StateOk
	}

	ind.Color = ind.State.Color()

	return ind
}

// Readings returns the newest-first table feed.
func (s *Session) Readings() []domain.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.store.Snapshot()
}

// GraphReadings returns the oldest-first graph feed.
func (s *Session) GraphReadings() []domain.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.store.SnapshotOldestFirst()
}

// Alarms projects the subsequence of history strictly above the
// threshold. The second return value is false when no threshold is
// configured, which the presentation layer must render as a
// configuration prompt, not as an empty list.
func (s *Session) Alarms() ([]domain.Reading, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.threshold == nil {
		return nil, false
	}

	out := []domain.Reading{}

	for _, r := range s.store.Snapshot() {
		if r.Value != nil && *r.Value > *s.threshold {
			out = append(out, r)
		}
	}

	return out, true
}

func (s *Session) Threshold() *float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.threshold == nil {
		return nil
	}

	v := *s.threshold

	return &v
}

func (s *Session) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.online
}

func (s *Session) notifyReading(r domain.Reading) {
	if s.listener != nil {
		s.listener.ReadingAccepted(s.serialNumber, r)
	}
}

func (s *Session) notifyIndicator(ind domain.Indicator) {
	metrics.IndicatorState.WithLabelValues(s.serialNumber).Set(float64(ind.State))

	if s.listener != nil {
		s.listener.IndicatorChanged(s.serialNumber, ind)
	}
}

func equalThreshold(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}

	return *a == *b
}

// coerceOnline maps the heterogeneous truthy representations brokers
// deliver onto a single bool. Everything unknown means offline.
func coerceOnline(status any) bool {
	switch v := status.(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.Trim(strings.TrimSpace(v), `"`)) {
		case "online", "true", "1":
			return true
		}
		return false
	case float64:
		return v == 1
	case int:
		return v == 1
	default:
		return false
	}
}
