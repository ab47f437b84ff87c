package lcdielectrics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/xid"
	"go.uber.org/multierr"
	"go.viam.com/rdk/logging"
)

// Phase is the sequencer's lifecycle state. Numeric payload such as the
// target temperature lives in Status, never in the phase identity.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSettingTemperature
	PhaseGoingToTemperature
	PhaseStabilisingTemperature
	PhaseTemperatureStabilised
	PhaseCollectingData
	PhaseFinished
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSettingTemperature:
		return "setting_temperature"
	case PhaseGoingToTemperature:
		return "going_to_temperature"
	case PhaseStabilisingTemperature:
		return "stabilising_temperature"
	case PhaseTemperatureStabilised:
		return "temperature_stabilised"
	case PhaseCollectingData:
		return "collecting_data"
	case PhaseFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// SequencerConfig holds the per-sweep instrument settings.
type SequencerConfig struct {
	Rate              float64 // °C/min
	StabilisationTime time.Duration
	SettleDelay       time.Duration
	MeasureGap        time.Duration
	Aperture          ApertureMode
	Averaging         int
	DCBias            float64
	// HoldTolerance > 0 also accepts |T - target| <= tolerance as arrival.
	HoldTolerance float64
	// WaitTimeout > 0 halts a sweep stuck going to temperature.
	WaitTimeout      time.Duration
	Layout           ResultLayout
	ExportEachSample bool
}

// PlanRequest carries the three value lists for one sweep.
type PlanRequest struct {
	Temperatures []float64 `json:"temperatures" yaml:"temperatures"`
	Frequencies  []float64 `json:"frequencies" yaml:"frequencies"`
	Voltages     []float64 `json:"voltages" yaml:"voltages"`
}

// Status is the snapshot shown to operators each tick.
type Status struct {
	Phase                 Phase
	SweepID               string
	Target                float64
	Coordinate            Coordinate
	Step                  int
	TotalSteps            int
	StabilisationElapsed  time.Duration
	StabilisationRequired time.Duration
	Hotstage              DeviceHealth
	Analyzer              DeviceHealth
	Reading               TemperatureReading
	HasReading            bool
	Halted                bool
	LastError             string
}

func (s Status) String() string {
	var msg string
	switch s.Phase {
	case PhaseIdle:
		msg = "Idle"
		if s.Halted {
			msg = fmt.Sprintf("Halted at T: %.2f, f: %g Hz, V: %g (step %d/%d): %s",
				s.Coordinate.Temperature, s.Coordinate.Frequency, s.Coordinate.Voltage, s.Step, s.TotalSteps, s.LastError)
		}
	case PhaseSettingTemperature:
		msg = fmt.Sprintf("Setting temperature to %.2f", s.Target)
	case PhaseGoingToTemperature:
		msg = fmt.Sprintf("Going to T: %.2f", s.Target)
	case PhaseStabilisingTemperature:
		msg = fmt.Sprintf("Stabilising temperature for %gs (%.0fs elapsed)",
			s.StabilisationRequired.Seconds(), s.StabilisationElapsed.Seconds())
	case PhaseTemperatureStabilised:
		msg = "Temperature stabilised"
	case PhaseCollectingData:
		msg = fmt.Sprintf("Collecting data at f: %g Hz, V: %g (step %d/%d)",
			s.Coordinate.Frequency, s.Coordinate.Voltage, s.Step, s.TotalSteps)
	case PhaseFinished:
		msg = "Finished"
	default:
		msg = s.Phase.String()
	}
	return msg
}

const defaultAbortTimeout = 5 * time.Second

// Sequencer walks a SweepPlan across the hotstage and analyzer. All methods
// are safe to call from different goroutines; Tick is meant to be driven by a
// periodic loop owned by the caller.
type Sequencer struct {
	logger    logging.Logger
	cfg       SequencerConfig
	hotstage  TemperatureController
	analyzer  ImpedanceAnalyzer
	monitor   *TemperatureMonitor
	exporters []Exporter
	now       func() time.Time

	// abortTimeout bounds how long Stop and halts wait for an acquisition
	// that ignores cancellation.
	abortTimeout time.Duration

	mu             sync.Mutex
	phase          Phase
	sweepID        string
	startedAt      time.Time
	plan           *SweepPlan
	store          *ResultStore
	target         float64
	setpointAt     time.Time
	phaseEnteredAt time.Time
	stabiliseStart time.Time
	lastReadingAt  time.Time
	acq            *acquisition
	analyzerHealth DeviceHealth
	halted         bool
	lastErr        error
}

func NewSequencer(
	cfg SequencerConfig,
	hotstage TemperatureController,
	analyzer ImpedanceAnalyzer,
	monitor *TemperatureMonitor,
	logger logging.Logger,
	exporters ...Exporter,
) *Sequencer {
	if cfg.Layout.Stride == 0 {
		cfg.Layout = SinglePointLayout
	}
	if cfg.Aperture == "" {
		cfg.Aperture = ApertureMedium
	}
	if cfg.Averaging <= 0 {
		cfg.Averaging = 1
	}
	if cfg.Rate <= 0 {
		cfg.Rate = 20
	}
	return &Sequencer{
		logger:    logger,
		cfg:       cfg,
		hotstage:  hotstage,
		analyzer:  analyzer,
		monitor:   monitor,
		exporters: exporters,
		now:       time.Now,
		store:     NewResultStore(),

		abortTimeout: defaultAbortTimeout,
	}
}

// Start validates the plan, configures the analyzer and begins a sweep.
func (s *Sequencer) Start(ctx context.Context, req PlanRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseIdle {
		return "", ErrSweepActive
	}

	plan, err := BuildPlan(req.Temperatures, req.Frequencies, req.Voltages)
	if err != nil {
		return "", err
	}
	// Results are keyed by temperature, so a second visit would mix two runs in one bucket.
	if dups := plan.DuplicateTemperatures(); len(dups) > 0 {
		return "", &InvalidPlanError{Reason: fmt.Sprintf("temperatures %v appear more than once", dups)}
	}

	if err := s.analyzer.SetApertureMode(ctx, s.cfg.Aperture, s.cfg.Averaging); err != nil {
		s.markAnalyzer(err)
		return "", fmt.Errorf("configuring aperture: %w", err)
	}
	if s.cfg.DCBias != 0 {
		if err := s.analyzer.SetDCBias(ctx, s.cfg.DCBias); err != nil {
			s.markAnalyzer(err)
			return "", fmt.Errorf("configuring dc bias: %w", err)
		}
	}
	s.analyzerHealth = HealthConnected

	first := plan.Current()
	s.plan = plan
	s.store = NewResultStore()
	s.store.EnsureBucket(first.Temperature, first.Frequency)
	s.sweepID = xid.New().String()
	s.startedAt = s.now()
	s.target = first.Temperature
	s.halted = false
	s.lastErr = nil
	s.enter(PhaseSettingTemperature)

	s.logger.Infof("sweep %s started: %d temperatures x %d frequencies x %d voltages",
		s.sweepID, len(req.Temperatures), len(req.Frequencies), len(req.Voltages))
	return s.sweepID, nil
}

// Tick advances the state machine by at most one transition. A returned
// error means the sweep was halted.
func (s *Sequencer) Tick(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseIdle && s.phase != PhaseFinished {
		if health, err := s.monitor.Health(); health == HealthNotConnected {
			return s.halt(ctx, fmt.Errorf("hotstage lost: %w", err))
		}
	}

	switch s.phase {
	case PhaseIdle:
		return nil

	case PhaseSettingTemperature:
		r, ok := s.freshReading()
		if !ok || (r.Action != ActionStopped && r.Action != ActionHolding) {
			return nil
		}
		target := s.plan.Current().Temperature
		if err := s.hotstage.SetTemperature(ctx, target, s.cfg.Rate); err != nil {
			return s.halt(ctx, err)
		}
		s.target = target
		s.setpointAt = s.now()
		s.enter(PhaseGoingToTemperature)

	case PhaseGoingToTemperature:
		if s.cfg.WaitTimeout > 0 && s.now().Sub(s.phaseEnteredAt) > s.cfg.WaitTimeout {
			return s.halt(ctx, fmt.Errorf("%w: %.2f not reached within %v", ErrWaitTimeout, s.target, s.cfg.WaitTimeout))
		}
		r, ok := s.freshReading()
		if !ok || !r.At.After(s.setpointAt) || !s.arrived(r) {
			return nil
		}
		s.stabiliseStart = s.now()
		s.enter(PhaseStabilisingTemperature)

	case PhaseStabilisingTemperature:
		if s.now().Sub(s.stabiliseStart) >= s.cfg.StabilisationTime {
			s.enter(PhaseTemperatureStabilised)
		}

	case PhaseTemperatureStabilised:
		s.acq = startAcquisition(s.analyzer, s.plan.Current(), acquisitionSettings{
			layout:      s.cfg.Layout,
			settleDelay: s.cfg.SettleDelay,
			measureGap:  s.cfg.MeasureGap,
		}, s.logger)
		s.enter(PhaseCollectingData)

	case PhaseCollectingData:
		var res acquisitionResult
		select {
		case res = <-s.acq.result:
		default:
			return nil
		}
		s.acq = nil
		if res.err != nil {
			s.markAnalyzer(res.err)
			return s.halt(ctx, res.err)
		}
		return s.record(ctx, res)

	case PhaseFinished:
		err := s.safeState(ctx)
		s.enter(PhaseIdle)
		if err != nil {
			s.lastErr = err
			s.logger.Errorf("returning instruments to safe state: %v", err)
			return err
		}
	}
	return nil
}

// record stores one acquisition and moves the plan on. Called with mu held.
func (s *Sequencer) record(ctx context.Context, res acquisitionResult) error {
	s.analyzerHealth = HealthConnected
	coord := s.plan.Current()
	if res.coord != coord {
		return s.halt(ctx, fmt.Errorf("acquisition for %+v delivered while plan is at %+v", res.coord, coord))
	}
	if err := s.store.AppendSample(coord.Temperature, coord.Frequency, res.sample); err != nil {
		return s.halt(ctx, err)
	}
	if s.cfg.ExportEachSample {
		s.export(ctx, false)
	}

	tag := s.plan.Advance()
	switch tag {
	case PlanComplete:
		s.logger.Infof("sweep %s complete: %d samples", s.sweepID, s.store.Samples())
		s.export(ctx, true)
		s.enter(PhaseFinished)
	case NewTemperature:
		next := s.plan.Current()
		s.store.EnsureBucket(next.Temperature, next.Frequency)
		if err := s.analyzer.SetVoltage(ctx, 0); err != nil {
			s.markAnalyzer(err)
			return s.halt(ctx, err)
		}
		s.target = next.Temperature
		s.enter(PhaseSettingTemperature)
	case NewFrequencyBucket:
		next := s.plan.Current()
		s.store.EnsureBucket(next.Temperature, next.Frequency)
		s.enter(PhaseTemperatureStabilised)
	case MoreSteps:
		s.enter(PhaseTemperatureStabilised)
	}
	return nil
}

// Stop aborts whatever is running, discards any in-flight acquisition and
// puts both instruments in a safe state.
func (s *Sequencer) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.abortAcquisition(ctx)
	err := s.safeState(ctx)
	if s.phase != PhaseIdle {
		s.logger.Infof("sweep %s stopped in %s", s.sweepID, s.phase)
	}
	s.enter(PhaseIdle)
	if err != nil {
		s.lastErr = err
	}
	return err
}

// GoToTemperature commands a manual setpoint while no sweep is running.
func (s *Sequencer) GoToTemperature(ctx context.Context, target, rate float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseIdle {
		return ErrSweepActive
	}
	if rate <= 0 {
		rate = s.cfg.Rate
	}
	return s.hotstage.SetTemperature(ctx, RoundTemperature(target), rate)
}

func (s *Sequencer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Phase:                 s.phase,
		SweepID:               s.sweepID,
		Target:                s.target,
		StabilisationRequired: s.cfg.StabilisationTime,
		Analyzer:              s.analyzerHealth,
		Halted:                s.halted,
	}
	st.Hotstage, _ = s.monitor.Health()
	st.Reading, st.HasReading = s.monitor.Latest()
	if s.plan != nil {
		st.Coordinate = s.plan.Current()
		st.Step = s.plan.Index() + 1
		st.TotalSteps = s.plan.Len()
	}
	if s.phase == PhaseStabilisingTemperature {
		st.StabilisationElapsed = s.now().Sub(s.stabiliseStart)
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// Results returns a copy of the current sweep's results.
func (s *Sequencer) Results() *ResultStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Clone()
}

func (s *Sequencer) enter(p Phase) {
	if p != s.phase {
		s.logger.Debugf("sweep %s: %s -> %s", s.sweepID, s.phase, p)
	}
	s.phase = p
	s.phaseEnteredAt = s.now()
}

// freshReading returns the monitor's reading if it arrived after the last one
// this sequencer consumed.
func (s *Sequencer) freshReading() (TemperatureReading, bool) {
	r, ok := s.monitor.Latest()
	if !ok || !r.At.After(s.lastReadingAt) {
		return TemperatureReading{}, false
	}
	s.lastReadingAt = r.At
	return r, true
}

func (s *Sequencer) arrived(r TemperatureReading) bool {
	if r.Action == ActionHolding {
		return true
	}
	return s.cfg.HoldTolerance > 0 && math.Abs(r.Temperature-s.target) <= s.cfg.HoldTolerance
}

// halt aborts the sweep after a failure. Called with mu held.
func (s *Sequencer) halt(ctx context.Context, cause error) error {
	s.logger.Errorf("sweep %s halted in %s: %v", s.sweepID, s.phase, cause)
	s.abortAcquisition(ctx)
	if err := s.safeState(ctx); err != nil {
		s.logger.Warnf("could not return instruments to safe state: %v", err)
	}
	s.halted = true
	s.lastErr = cause
	s.enter(PhaseIdle)
	return cause
}

// abortAcquisition discards the in-flight acquisition. Called with mu held.
func (s *Sequencer) abortAcquisition(ctx context.Context) {
	if s.acq == nil {
		return
	}
	if !s.acq.abort(ctx, s.abortTimeout) {
		s.logger.Warnf("acquisition at %+v still running after %v; analyzer may be busy", s.acq.coord, s.abortTimeout)
	}
	s.acq = nil
}

func (s *Sequencer) safeState(ctx context.Context) error {
	hotErr := s.hotstage.Stop(ctx)
	anaErr := s.analyzer.ResetAndClear(ctx)
	s.markAnalyzer(anaErr)
	return multierr.Combine(hotErr, anaErr)
}

// markAnalyzer flags the analyzer as not connected after a transport failure.
func (s *Sequencer) markAnalyzer(err error) {
	var ioErr *DeviceIOError
	if errors.As(err, &ioErr) {
		s.analyzerHealth = HealthNotConnected
	}
}

// export hands a snapshot to every exporter. Failures are logged and kept as
// the last error; they do not halt the sweep. Called with mu held.
func (s *Sequencer) export(ctx context.Context, complete bool) {
	if len(s.exporters) == 0 {
		return
	}
	rec := SweepRecord{
		ID:           s.sweepID,
		StartedAt:    s.startedAt,
		Complete:     complete,
		Temperatures: s.plan.Temperatures(),
		Frequencies:  s.plan.Frequencies(),
		Voltages:     s.plan.Voltages(),
		Results:      s.store.Clone(),
	}
	if complete {
		rec.FinishedAt = s.now()
	}

	var errs error
	for _, e := range s.exporters {
		errs = multierr.Append(errs, e.Export(ctx, rec))
	}
	if errs != nil {
		s.lastErr = errs
		s.logger.Errorf("exporting sweep %s: %v", s.sweepID, errs)
	}
}
