package lcdielectrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.viam.com/rdk/logging"
)

const temperatureHistorySize = 1000

// DeviceHealth is the connection flag shown for each instrument.
type DeviceHealth int

const (
	HealthUnknown DeviceHealth = iota
	HealthConnected
	HealthNotConnected
)

func (h DeviceHealth) String() string {
	switch h {
	case HealthConnected:
		return "connected"
	case HealthNotConnected:
		return "not connected"
	default:
		return "unknown"
	}
}

// TemperatureMonitor polls the hotstage on its own schedule and publishes the
// latest valid reading. The sequencer and any display only read its snapshot.
type TemperatureMonitor struct {
	logger   logging.Logger
	device   TemperatureController
	interval time.Duration
	now      func() time.Time

	mu         sync.Mutex
	latest     TemperatureReading
	hasReading bool
	health     DeviceHealth
	lastErr    error
	malformed  int // consecutive malformed replies
	history    []TemperatureReading
}

func NewTemperatureMonitor(device TemperatureController, interval time.Duration, logger logging.Logger) *TemperatureMonitor {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &TemperatureMonitor{
		logger:   logger,
		device:   device,
		interval: interval,
		now:      time.Now,
		history:  make([]TemperatureReading, 0, temperatureHistorySize),
	}
}

// Run polls until ctx is cancelled.
func (m *TemperatureMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Poll(ctx); err != nil && !errors.Is(err, context.Canceled) {
				m.logger.Debugf("temperature poll: %v", err)
			}
		}
	}
}

// Poll reads the hotstage once. Malformed replies leave the snapshot untouched;
// transport failures also mark the hotstage as not connected. A reading is
// stamped with the time the request went out, so it never looks newer than a
// setpoint sent while the reply was in flight.
func (m *TemperatureMonitor) Poll(ctx context.Context) error {
	requested := m.now()
	reading, err := m.device.CurrentTemperature(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		m.lastErr = err
		if isMalformed(err) {
			m.malformed++
			if m.malformed == 1 || m.malformed%50 == 0 {
				m.logger.Warnf("ignoring malformed hotstage reply (%d in a row): %v", m.malformed, err)
			}
		} else if ctx.Err() == nil {
			if m.health != HealthNotConnected {
				m.logger.Errorf("hotstage not responding: %v", err)
			}
			m.health = HealthNotConnected
		}
		return err
	}

	reading.At = requested
	m.latest = reading
	m.hasReading = true
	m.health = HealthConnected
	m.lastErr = nil
	m.malformed = 0

	if len(m.history) >= temperatureHistorySize {
		m.history = m.history[1:]
	}
	m.history = append(m.history, reading)
	return nil
}

// Latest returns the most recent valid reading.
func (m *TemperatureMonitor) Latest() (TemperatureReading, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest, m.hasReading
}

func (m *TemperatureMonitor) Health() (DeviceHealth, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.health, m.lastErr
}

// History returns up to the last 1000 valid readings, oldest first.
func (m *TemperatureMonitor) History() []TemperatureReading {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TemperatureReading, len(m.history))
	copy(out, m.history)
	return out
}
