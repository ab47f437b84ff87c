package lcdielectrics

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.viam.com/rdk/logging"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeHotstage holds at the last commanded target unless a reading or error
// is forced.
type fakeHotstage struct {
	mu      sync.Mutex
	forced  *TemperatureReading
	readErr error
	setErr  error
	targets []float64
	stops   int
}

func (f *fakeHotstage) SetTemperature(ctx context.Context, target, rate float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.targets = append(f.targets, target)
	return nil
}

func (f *fakeHotstage) CurrentTemperature(ctx context.Context) (TemperatureReading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return TemperatureReading{}, f.readErr
	}
	if f.forced != nil {
		return *f.forced, nil
	}
	if len(f.targets) == 0 {
		return TemperatureReading{Temperature: 22, Action: ActionStopped}, nil
	}
	return TemperatureReading{Temperature: f.targets[len(f.targets)-1], Action: ActionHolding}, nil
}

func (f *fakeHotstage) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeHotstage) force(temp float64, action HotstageAction) {
	f.mu.Lock()
	f.forced = &TemperatureReading{Temperature: temp, Action: action}
	f.mu.Unlock()
}

func (f *fakeHotstage) release() {
	f.mu.Lock()
	f.forced = nil
	f.readErr = nil
	f.mu.Unlock()
}

func (f *fakeHotstage) failReads(err error) {
	f.mu.Lock()
	f.readErr = err
	f.mu.Unlock()
}

func (f *fakeHotstage) snapshot() (targets []float64, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]float64(nil), f.targets...), f.stops
}

type fakeAnalyzer struct {
	mu         sync.Mutex
	calls      []string
	voltages   []float64
	resets     int
	measures   int
	measureErr error
	block      bool          // Measure waits for cancellation
	stuck      chan struct{} // Measure ignores cancellation until closed
}

func (f *fakeAnalyzer) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeAnalyzer) SetFrequency(ctx context.Context, hz float64) error {
	f.record("set_frequency")
	return nil
}

func (f *fakeAnalyzer) SetVoltage(ctx context.Context, volts float64) error {
	f.mu.Lock()
	f.voltages = append(f.voltages, volts)
	f.mu.Unlock()
	f.record("set_voltage")
	return nil
}

func (f *fakeAnalyzer) SetApertureMode(ctx context.Context, mode ApertureMode, averaging int) error {
	f.record("set_aperture")
	return nil
}

func (f *fakeAnalyzer) SetDCBias(ctx context.Context, volts float64) error {
	f.record("set_dc_bias")
	return nil
}

func (f *fakeAnalyzer) Measure(ctx context.Context, fn MeasurementFunction) ([]float64, error) {
	f.record("measure_" + string(fn))
	f.mu.Lock()
	f.measures++
	block, stuck, err := f.block, f.stuck, f.measureErr
	f.mu.Unlock()

	if stuck != nil {
		<-stuck
		return nil, ctx.Err()
	}
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	if fn == FunctionCpD {
		return []float64{1.2e-11, 0.02, 0}, nil
	}
	return []float64{1.5e-9, 7.5e-8, 0}, nil
}

func (f *fakeAnalyzer) ResetAndClear(ctx context.Context) error {
	f.mu.Lock()
	f.resets++
	f.mu.Unlock()
	f.record("reset")
	return nil
}

func (f *fakeAnalyzer) counts() (resets, measures int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resets, f.measures
}

type recordingExporter struct {
	mu      sync.Mutex
	records []SweepRecord
	err     error
}

func (e *recordingExporter) Export(ctx context.Context, rec SweepRecord) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records = append(e.records, rec)
	return e.err
}

func (e *recordingExporter) all() []SweepRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]SweepRecord(nil), e.records...)
}

// sweepHarness drives a sequencer by hand: every poll advances the fake clock
// so each reading is fresh.
type sweepHarness struct {
	seq   *Sequencer
	mon   *TemperatureMonitor
	hot   *fakeHotstage
	ana   *fakeAnalyzer
	exp   *recordingExporter
	clock *fakeClock
}

func newSweepHarness(t *testing.T, cfg SequencerConfig) *sweepHarness {
	logger := logging.NewTestLogger(t)
	clock := newFakeClock()
	hot := &fakeHotstage{}
	ana := &fakeAnalyzer{}
	exp := &recordingExporter{}

	mon := NewTemperatureMonitor(hot, time.Millisecond, logger)
	mon.now = clock.Now
	seq := NewSequencer(cfg, hot, ana, mon, logger, exp)
	seq.now = clock.Now

	return &sweepHarness{seq: seq, mon: mon, hot: hot, ana: ana, exp: exp, clock: clock}
}

func (h *sweepHarness) poll() error {
	h.clock.Advance(100 * time.Millisecond)
	return h.mon.Poll(context.Background())
}

func (h *sweepHarness) tick(t *testing.T) error {
	t.Helper()
	return h.seq.Tick(context.Background())
}

func (h *sweepHarness) phase() Phase {
	return h.seq.Status().Phase
}

// waitForAcquisition ticks until the in-flight acquisition has been consumed.
func (h *sweepHarness) waitForAcquisition(t *testing.T) error {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if err := h.tick(t); err != nil {
			return err
		}
		if h.phase() != PhaseCollectingData {
			return nil
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("acquisition did not finish")
	return nil
}

// drive polls and ticks until the sweep returns to Idle.
func (h *sweepHarness) drive(t *testing.T) error {
	t.Helper()
	for i := 0; i < 10000; i++ {
		h.poll()
		if err := h.tick(t); err != nil {
			return err
		}
		switch h.phase() {
		case PhaseIdle:
			return nil
		case PhaseCollectingData:
			time.Sleep(time.Millisecond)
		}
	}
	t.Fatal("sweep did not finish")
	return nil
}

// gatedHotstage answers from the state at the moment a read starts. When
// armed, the next read signals entered and waits for release before returning.
type gatedHotstage struct {
	*fakeHotstage

	gateMu    sync.Mutex
	startedCh chan struct{}
	resumeCh  chan struct{}
}

func (g *gatedHotstage) arm() (entered, release chan struct{}) {
	g.gateMu.Lock()
	defer g.gateMu.Unlock()
	g.startedCh = make(chan struct{})
	g.resumeCh = make(chan struct{})
	return g.startedCh, g.resumeCh
}

func (g *gatedHotstage) CurrentTemperature(ctx context.Context) (TemperatureReading, error) {
	r, err := g.fakeHotstage.CurrentTemperature(ctx)

	g.gateMu.Lock()
	entered, release := g.startedCh, g.resumeCh
	g.startedCh, g.resumeCh = nil, nil
	g.gateMu.Unlock()

	if entered != nil {
		close(entered)
		<-release
	}
	return r, err
}
