package lcdielectrics

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.viam.com/rdk/logging"
)

func testSequencerConfig() SequencerConfig {
	return SequencerConfig{
		Rate:              10,
		StabilisationTime: 5 * time.Second,
		Aperture:          ApertureMedium,
		Averaging:         4,
	}
}

func TestSequencer_Start(t *testing.T) {
	t.Run("enters SettingTemperature with first bucket ready", func(t *testing.T) {
		h := newSweepHarness(t, testSequencerConfig())

		id, err := h.seq.Start(context.Background(), PlanRequest{
			Temperatures: []float64{25}, Frequencies: []float64{1000}, Voltages: []float64{1},
		})
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		if id == "" {
			t.Error("expected a sweep id")
		}

		st := h.seq.Status()
		if st.Phase != PhaseSettingTemperature {
			t.Errorf("expected setting_temperature, got %v", st.Phase)
		}
		if st.Target != 25 || st.TotalSteps != 1 || st.Step != 1 {
			t.Errorf("unexpected status %+v", st)
		}
		if h.seq.Results().Bucket(25, 1000) == nil {
			t.Error("first bucket not created")
		}
		if len(h.ana.calls) == 0 || h.ana.calls[0] != "set_aperture" {
			t.Errorf("expected aperture configured first, got %v", h.ana.calls)
		}
	})

	t.Run("invalid plan touches no device", func(t *testing.T) {
		h := newSweepHarness(t, testSequencerConfig())

		_, err := h.seq.Start(context.Background(), PlanRequest{Temperatures: []float64{25}, Frequencies: []float64{1000}})
		var planErr *InvalidPlanError
		if !errors.As(err, &planErr) {
			t.Fatalf("expected InvalidPlanError, got %v", err)
		}
		if len(h.ana.calls) != 0 {
			t.Errorf("analyzer was touched: %v", h.ana.calls)
		}
		if h.phase() != PhaseIdle {
			t.Errorf("expected idle, got %v", h.phase())
		}
	})

	t.Run("rejects a second start while active", func(t *testing.T) {
		h := newSweepHarness(t, testSequencerConfig())
		req := PlanRequest{Temperatures: []float64{25}, Frequencies: []float64{1000}, Voltages: []float64{1}}

		if _, err := h.seq.Start(context.Background(), req); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		if _, err := h.seq.Start(context.Background(), req); !errors.Is(err, ErrSweepActive) {
			t.Errorf("expected ErrSweepActive, got %v", err)
		}
	})

	t.Run("sets dc bias only when configured", func(t *testing.T) {
		cfg := testSequencerConfig()
		cfg.DCBias = 1.5
		h := newSweepHarness(t, cfg)
		h.seq.Start(context.Background(), PlanRequest{Temperatures: []float64{25}, Frequencies: []float64{1000}, Voltages: []float64{1}})

		found := false
		for _, c := range h.ana.calls {
			if c == "set_dc_bias" {
				found = true
			}
		}
		if !found {
			t.Error("expected set_dc_bias")
		}
	})
}

func TestSequencer_Scenario(t *testing.T) {
	// T=[25,30], F=[100,1000], V=[1] walked one transition at a time.
	h := newSweepHarness(t, testSequencerConfig())
	ctx := context.Background()

	if _, err := h.seq.Start(ctx, PlanRequest{
		Temperatures: []float64{25, 30}, Frequencies: []float64{100, 1000}, Voltages: []float64{1},
	}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	expectPhase := func(want Phase) {
		t.Helper()
		if got := h.phase(); got != want {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}

	reachTemperature := func(target float64) {
		t.Helper()
		expectPhase(PhaseSettingTemperature)

		// nothing new from the hotstage yet
		h.tick(t)
		expectPhase(PhaseSettingTemperature)

		h.poll()
		h.tick(t)
		expectPhase(PhaseGoingToTemperature)
		targets, _ := h.hot.snapshot()
		if targets[len(targets)-1] != target {
			t.Fatalf("expected setpoint %v, got %v", target, targets)
		}

		// still travelling
		h.hot.force(target-3, ActionHeating)
		h.poll()
		h.tick(t)
		expectPhase(PhaseGoingToTemperature)

		h.hot.release()
		h.poll()
		h.tick(t)
		expectPhase(PhaseStabilisingTemperature)

		h.tick(t)
		expectPhase(PhaseStabilisingTemperature)
		h.clock.Advance(5 * time.Second)
		h.tick(t)
		expectPhase(PhaseTemperatureStabilised)
	}

	collect := func(next Phase) {
		t.Helper()
		h.tick(t)
		expectPhase(PhaseCollectingData)
		if err := h.waitForAcquisition(t); err != nil {
			t.Fatalf("acquisition failed: %v", err)
		}
		expectPhase(next)
	}

	reachTemperature(25)
	collect(PhaseTemperatureStabilised)
	if h.seq.Results().Bucket(25, 1000) == nil {
		t.Error("bucket for the next frequency not created")
	}
	collect(PhaseSettingTemperature)

	if v := h.ana.voltages; len(v) == 0 || v[len(v)-1] != 0 {
		t.Errorf("expected voltage zeroed on temperature change, got %v", v)
	}

	reachTemperature(30)
	collect(PhaseTemperatureStabilised)
	collect(PhaseFinished)

	h.tick(t)
	expectPhase(PhaseIdle)

	targets, stops := h.hot.snapshot()
	if len(targets) != 2 || targets[0] != 25 || targets[1] != 30 {
		t.Errorf("expected setpoints [25 30], got %v", targets)
	}
	if stops != 1 {
		t.Errorf("expected hotstage stopped once, got %d", stops)
	}

	results := h.seq.Results()
	if results.Samples() != 4 {
		t.Errorf("expected 4 samples, got %d", results.Samples())
	}
	for _, tk := range []float64{25, 30} {
		for _, fk := range []float64{100, 1000} {
			b := results.Bucket(tk, fk)
			if b == nil || b.Len() != 1 {
				t.Errorf("T=%v f=%v: expected one sample, got %+v", tk, fk, b)
				continue
			}
			if b.Volt[0] != 1 || b.Cp[0] != 1.2e-11 || b.G[0] != 1.5e-9 {
				t.Errorf("T=%v f=%v: unexpected values %+v", tk, fk, b)
			}
		}
	}

	records := h.exp.all()
	if len(records) != 1 || !records[0].Complete {
		t.Fatalf("expected one complete export, got %+v", records)
	}
	if records[0].Results.Samples() != 4 || records[0].FinishedAt.IsZero() {
		t.Errorf("unexpected export %+v", records[0])
	}
	if h.seq.Status().Halted {
		t.Error("completed sweep reported as halted")
	}
}

func TestSequencer_CompletedSweepInvariants(t *testing.T) {
	cfg := testSequencerConfig()
	cfg.StabilisationTime = 0
	h := newSweepHarness(t, cfg)

	temps := []float64{20, 40, 60}
	freqs := []float64{100, 1000, 10000}
	volts := []float64{0.5, 1, 2}
	if _, err := h.seq.Start(context.Background(), PlanRequest{Temperatures: temps, Frequencies: freqs, Voltages: volts}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := h.drive(t); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	results := h.seq.Results()
	if results.Samples() != len(temps)*len(freqs)*len(volts) {
		t.Errorf("expected %d samples, got %d", len(temps)*len(freqs)*len(volts), results.Samples())
	}
	for _, temp := range temps {
		for _, f := range freqs {
			b := results.Bucket(temp, f)
			if b == nil || b.Len() != len(volts) {
				t.Fatalf("T=%v f=%v: expected %d samples, got %+v", temp, f, len(volts), b)
			}
			for i, v := range volts {
				if b.Volt[i] != v {
					t.Errorf("T=%v f=%v: volt[%d] = %v, want %v", temp, f, i, b.Volt[i], v)
				}
			}
		}
	}
	if !results.Consistent() {
		t.Error("unequal bucket lengths")
	}
	_, measures := h.ana.counts()
	if measures != 2*results.Samples() {
		t.Errorf("expected CPD and GB per sample, got %d measures", measures)
	}
}

func TestSequencer_DuplicateTemperatures(t *testing.T) {
	h := newSweepHarness(t, testSequencerConfig())

	_, err := h.seq.Start(context.Background(), PlanRequest{
		Temperatures: []float64{25, 30, 25.004}, Frequencies: []float64{1000}, Voltages: []float64{1},
	})
	var planErr *InvalidPlanError
	if !errors.As(err, &planErr) {
		t.Fatalf("expected InvalidPlanError, got %v", err)
	}
	if !strings.Contains(planErr.Reason, "25") {
		t.Errorf("reason should name the repeated temperature: %q", planErr.Reason)
	}
	if targets, stops := h.hot.snapshot(); len(h.ana.calls) != 0 || len(targets) != 0 || stops != 0 {
		t.Errorf("devices were touched: analyzer %v, hotstage targets %v", h.ana.calls, targets)
	}
	if h.phase() != PhaseIdle {
		t.Errorf("expected idle, got %v", h.phase())
	}
}

func TestSequencer_IgnoresHoldingReadRequestedBeforeSetpoint(t *testing.T) {
	logger := logging.NewTestLogger(t)
	clock := newFakeClock()
	hot := &gatedHotstage{fakeHotstage: &fakeHotstage{}}
	mon := NewTemperatureMonitor(hot, time.Millisecond, logger)
	mon.now = clock.Now
	seq := NewSequencer(testSequencerConfig(), hot, &fakeAnalyzer{}, mon, logger)
	seq.now = clock.Now
	ctx := context.Background()

	hot.force(25, ActionHolding)
	if _, err := seq.Start(ctx, PlanRequest{Temperatures: []float64{30}, Frequencies: []float64{1000}, Voltages: []float64{1}}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	clock.Advance(100 * time.Millisecond)
	mon.Poll(ctx)

	// a poll goes out while the stage still holds at 25
	entered, release := hot.arm()
	clock.Advance(100 * time.Millisecond)
	polled := make(chan error, 1)
	go func() { polled <- mon.Poll(ctx) }()
	<-entered

	clock.Advance(100 * time.Millisecond)
	seq.Tick(ctx)
	if got := seq.Status().Phase; got != PhaseGoingToTemperature {
		t.Fatalf("expected going_to_temperature, got %v", got)
	}
	hot.release()

	// the stale reply lands after the setpoint was sent
	clock.Advance(100 * time.Millisecond)
	close(release)
	if err := <-polled; err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	seq.Tick(ctx)
	if st := seq.Status(); st.Phase != PhaseGoingToTemperature {
		t.Fatalf("Holding at %.2f accepted as arrival at %.2f: phase %v", st.Reading.Temperature, st.Target, st.Phase)
	}

	clock.Advance(100 * time.Millisecond)
	mon.Poll(ctx)
	seq.Tick(ctx)
	if st := seq.Status(); st.Phase != PhaseStabilisingTemperature || st.Reading.Temperature != 30 {
		t.Errorf("expected to stabilise at 30, got %v at %.2f", st.Phase, st.Reading.Temperature)
	}
}

func TestSequencer_MalformedReadingsWhileSettingTemperature(t *testing.T) {
	h := newSweepHarness(t, testSequencerConfig())
	ctx := context.Background()

	h.seq.Start(ctx, PlanRequest{Temperatures: []float64{25}, Frequencies: []float64{1000}, Voltages: []float64{1}})
	h.hot.failReads(&MalformedResponseError{Device: "hotstage", Field: "action", Value: "\x00"})
	for i := 0; i < 3; i++ {
		if err := h.poll(); err == nil {
			t.Fatal("expected malformed poll error")
		}
		if err := h.tick(t); err != nil {
			t.Fatalf("malformed reading halted the sweep: %v", err)
		}
		if h.phase() != PhaseSettingTemperature {
			t.Fatalf("tick %d: phase changed to %v", i, h.phase())
		}
		if targets, _ := h.hot.snapshot(); len(targets) != 0 {
			t.Fatalf("tick %d: setpoint sent without a valid reading: %v", i, targets)
		}
	}

	h.hot.release()
	h.poll()
	h.tick(t)
	if h.phase() != PhaseGoingToTemperature {
		t.Errorf("expected going_to_temperature, got %v", h.phase())
	}
	if targets, _ := h.hot.snapshot(); len(targets) != 1 || targets[0] != 25 {
		t.Errorf("expected a single setpoint of 25, got %v", targets)
	}
}

func TestSequencer_MalformedReadings(t *testing.T) {
	h := newSweepHarness(t, testSequencerConfig())
	ctx := context.Background()

	h.seq.Start(ctx, PlanRequest{Temperatures: []float64{25}, Frequencies: []float64{1000}, Voltages: []float64{1}})
	h.poll()
	h.tick(t)
	if h.phase() != PhaseGoingToTemperature {
		t.Fatalf("expected going_to_temperature, got %v", h.phase())
	}

	h.hot.failReads(&MalformedResponseError{Device: "hotstage", Field: "temperature", Value: "garbage"})
	for i := 0; i < 3; i++ {
		if err := h.poll(); err == nil {
			t.Fatal("expected malformed poll error")
		}
		if err := h.tick(t); err != nil {
			t.Fatalf("malformed reading halted the sweep: %v", err)
		}
		if h.phase() != PhaseGoingToTemperature {
			t.Fatalf("tick %d: phase changed to %v", i, h.phase())
		}
	}
	if st := h.seq.Status(); st.Halted || st.Hotstage != HealthConnected {
		t.Errorf("unexpected status after malformed reads: %+v", st)
	}

	h.hot.release()
	h.poll()
	h.tick(t)
	if h.phase() != PhaseStabilisingTemperature {
		t.Errorf("expected sweep to resume, got %v", h.phase())
	}
}

func TestSequencer_Stop(t *testing.T) {
	t.Run("does not hang on an analyzer that ignores cancellation", func(t *testing.T) {
		cfg := testSequencerConfig()
		cfg.StabilisationTime = 0
		h := newSweepHarness(t, cfg)
		h.seq.abortTimeout = 20 * time.Millisecond
		stuck := make(chan struct{})
		defer close(stuck)
		h.ana.stuck = stuck
		ctx := context.Background()

		h.seq.Start(ctx, PlanRequest{Temperatures: []float64{25}, Frequencies: []float64{1000}, Voltages: []float64{1}})
		for i := 0; i < 10 && h.phase() != PhaseCollectingData; i++ {
			h.poll()
			h.tick(t)
		}
		if h.phase() != PhaseCollectingData {
			t.Fatalf("expected collecting_data, got %v", h.phase())
		}

		stopped := make(chan error, 1)
		go func() { stopped <- h.seq.Stop(context.Background()) }()
		select {
		case <-stopped:
		case <-time.After(2 * time.Second):
			t.Fatal("Stop blocked on the acquisition")
		}
		if h.phase() != PhaseIdle {
			t.Errorf("expected idle after stop, got %v", h.phase())
		}
	})

	t.Run("during acquisition discards the sample", func(t *testing.T) {
		cfg := testSequencerConfig()
		cfg.StabilisationTime = 0
		h := newSweepHarness(t, cfg)
		h.ana.block = true
		ctx := context.Background()

		h.seq.Start(ctx, PlanRequest{Temperatures: []float64{25}, Frequencies: []float64{1000}, Voltages: []float64{1}})
		for i := 0; i < 10 && h.phase() != PhaseCollectingData; i++ {
			h.poll()
			h.tick(t)
		}
		if h.phase() != PhaseCollectingData {
			t.Fatalf("expected collecting_data, got %v", h.phase())
		}

		if err := h.seq.Stop(ctx); err != nil {
			t.Fatalf("Stop failed: %v", err)
		}

		if h.phase() != PhaseIdle {
			t.Errorf("expected idle, got %v", h.phase())
		}
		_, stops := h.hot.snapshot()
		resets, _ := h.ana.counts()
		if stops != 1 || resets != 1 {
			t.Errorf("expected one stop and one reset, got %d and %d", stops, resets)
		}
		if n := h.seq.Results().Samples(); n != 0 {
			t.Errorf("in-flight sample was recorded: %d samples", n)
		}

		// a late tick must not resurrect the acquisition
		h.tick(t)
		if h.seq.Results().Samples() != 0 || h.phase() != PhaseIdle {
			t.Error("tick after stop changed state")
		}
	})

	t.Run("from idle is allowed", func(t *testing.T) {
		h := newSweepHarness(t, testSequencerConfig())
		if err := h.seq.Stop(context.Background()); err != nil {
			t.Errorf("Stop from idle failed: %v", err)
		}
		if h.seq.Status().Halted {
			t.Error("stop is not a halt")
		}
	})

	t.Run("allows a new sweep afterwards", func(t *testing.T) {
		h := newSweepHarness(t, testSequencerConfig())
		req := PlanRequest{Temperatures: []float64{25}, Frequencies: []float64{1000}, Voltages: []float64{1}}
		h.seq.Start(context.Background(), req)
		h.seq.Stop(context.Background())
		if _, err := h.seq.Start(context.Background(), req); err != nil {
			t.Errorf("restart failed: %v", err)
		}
	})
}

func TestSequencer_Halts(t *testing.T) {
	t.Run("analyzer failure", func(t *testing.T) {
		cfg := testSequencerConfig()
		cfg.StabilisationTime = 0
		h := newSweepHarness(t, cfg)
		h.ana.measureErr = &DeviceIOError{Device: "analyzer", Op: "measure", Err: errors.New("gpib timeout")}

		h.seq.Start(context.Background(), PlanRequest{Temperatures: []float64{25}, Frequencies: []float64{1000}, Voltages: []float64{1}})
		err := h.drive(t)
		var ioErr *DeviceIOError
		if !errors.As(err, &ioErr) {
			t.Fatalf("expected DeviceIOError, got %v", err)
		}

		st := h.seq.Status()
		if st.Phase != PhaseIdle || !st.Halted {
			t.Errorf("expected halted idle, got %+v", st)
		}
		if st.Analyzer != HealthNotConnected {
			t.Errorf("expected analyzer not connected, got %v", st.Analyzer)
		}
		if !strings.Contains(st.LastError, "gpib timeout") {
			t.Errorf("last error not kept: %q", st.LastError)
		}
		if !strings.HasPrefix(st.String(), "Halted at T: 25.00") {
			t.Errorf("unexpected status line %q", st.String())
		}
		_, stops := h.hot.snapshot()
		if stops != 1 {
			t.Errorf("expected hotstage stopped once, got %d", stops)
		}
		if h.seq.Results().Samples() != 0 {
			t.Error("failed acquisition was recorded")
		}
	})

	t.Run("malformed analyzer reply", func(t *testing.T) {
		cfg := testSequencerConfig()
		cfg.StabilisationTime = 0
		cfg.Layout = ListSweepLayout // fake answers with 3 values
		h := newSweepHarness(t, cfg)

		h.seq.Start(context.Background(), PlanRequest{Temperatures: []float64{25}, Frequencies: []float64{1000}, Voltages: []float64{1}})
		err := h.drive(t)
		var malformed *MalformedResponseError
		if !errors.As(err, &malformed) {
			t.Fatalf("expected MalformedResponseError, got %v", err)
		}
		if !h.seq.Status().Halted {
			t.Error("expected halt")
		}
	})

	t.Run("hotstage lost", func(t *testing.T) {
		h := newSweepHarness(t, testSequencerConfig())
		h.seq.Start(context.Background(), PlanRequest{Temperatures: []float64{25}, Frequencies: []float64{1000}, Voltages: []float64{1}})
		h.poll()
		h.tick(t)

		h.hot.failReads(&DeviceIOError{Device: "hotstage", Op: "read temperature", Err: errors.New("port closed")})
		h.poll()
		if err := h.tick(t); err == nil {
			t.Fatal("expected halt when the hotstage stops answering")
		}
		st := h.seq.Status()
		if !st.Halted || st.Hotstage != HealthNotConnected {
			t.Errorf("unexpected status %+v", st)
		}
	})

	t.Run("setpoint rejected", func(t *testing.T) {
		h := newSweepHarness(t, testSequencerConfig())
		h.hot.setErr = &DeviceIOError{Device: "hotstage", Op: "set temperature", Err: errors.New("nak")}
		h.seq.Start(context.Background(), PlanRequest{Temperatures: []float64{25}, Frequencies: []float64{1000}, Voltages: []float64{1}})
		h.poll()
		if err := h.tick(t); err == nil {
			t.Fatal("expected halt")
		}
		if h.phase() != PhaseIdle {
			t.Errorf("expected idle, got %v", h.phase())
		}
	})

	t.Run("wait timeout", func(t *testing.T) {
		cfg := testSequencerConfig()
		cfg.WaitTimeout = 10 * time.Second
		h := newSweepHarness(t, cfg)
		h.seq.Start(context.Background(), PlanRequest{Temperatures: []float64{80}, Frequencies: []float64{1000}, Voltages: []float64{1}})
		h.poll()
		h.tick(t)
		h.hot.force(30, ActionHeating)

		h.clock.Advance(5 * time.Second)
		h.poll()
		if err := h.tick(t); err != nil {
			t.Fatalf("halted early: %v", err)
		}

		h.clock.Advance(6 * time.Second)
		h.poll()
		if err := h.tick(t); !errors.Is(err, ErrWaitTimeout) {
			t.Errorf("expected ErrWaitTimeout, got %v", err)
		}
	})
}

func TestSequencer_HoldTolerance(t *testing.T) {
	cfg := testSequencerConfig()
	cfg.HoldTolerance = 0.5
	h := newSweepHarness(t, cfg)
	h.seq.Start(context.Background(), PlanRequest{Temperatures: []float64{40}, Frequencies: []float64{1000}, Voltages: []float64{1}})
	h.poll()
	h.tick(t)

	h.hot.force(39.2, ActionHeating)
	h.poll()
	h.tick(t)
	if h.phase() != PhaseGoingToTemperature {
		t.Fatalf("arrived outside tolerance: %v", h.phase())
	}

	h.hot.force(39.7, ActionHeating)
	h.poll()
	h.tick(t)
	if h.phase() != PhaseStabilisingTemperature {
		t.Errorf("expected arrival within tolerance, got %v", h.phase())
	}
}

func TestSequencer_ExportEachSample(t *testing.T) {
	cfg := testSequencerConfig()
	cfg.StabilisationTime = 0
	cfg.ExportEachSample = true
	h := newSweepHarness(t, cfg)

	h.seq.Start(context.Background(), PlanRequest{Temperatures: []float64{25}, Frequencies: []float64{100, 1000}, Voltages: []float64{1}})
	if err := h.drive(t); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	records := h.exp.all()
	if len(records) != 3 {
		t.Fatalf("expected 2 incremental and 1 final export, got %d", len(records))
	}
	if records[0].Complete || records[0].Results.Samples() != 1 {
		t.Errorf("first export: %+v", records[0])
	}
	if !records[2].Complete {
		t.Error("last export should be complete")
	}
}

func TestSequencer_ExportFailureDoesNotHalt(t *testing.T) {
	cfg := testSequencerConfig()
	cfg.StabilisationTime = 0
	h := newSweepHarness(t, cfg)
	h.exp.err = errors.New("disk full")

	h.seq.Start(context.Background(), PlanRequest{Temperatures: []float64{25}, Frequencies: []float64{1000}, Voltages: []float64{1}})
	if err := h.drive(t); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	st := h.seq.Status()
	if st.Halted {
		t.Error("export failure halted the sweep")
	}
	if !strings.Contains(st.LastError, "disk full") {
		t.Errorf("export failure not reported: %q", st.LastError)
	}
}

func TestSequencer_GoToTemperature(t *testing.T) {
	h := newSweepHarness(t, testSequencerConfig())
	ctx := context.Background()

	if err := h.seq.GoToTemperature(ctx, 42.346, 0); err != nil {
		t.Fatalf("GoToTemperature failed: %v", err)
	}
	targets, _ := h.hot.snapshot()
	if len(targets) != 1 || targets[0] != 42.35 {
		t.Errorf("expected setpoint 42.35, got %v", targets)
	}

	h.seq.Start(ctx, PlanRequest{Temperatures: []float64{25}, Frequencies: []float64{1000}, Voltages: []float64{1}})
	if err := h.seq.GoToTemperature(ctx, 50, 5); !errors.Is(err, ErrSweepActive) {
		t.Errorf("expected ErrSweepActive during a sweep, got %v", err)
	}
}

func TestStatusString(t *testing.T) {
	cases := []struct {
		st   Status
		want string
	}{
		{Status{Phase: PhaseIdle}, "Idle"},
		{Status{Phase: PhaseSettingTemperature, Target: 25}, "Setting temperature to 25.00"},
		{Status{Phase: PhaseGoingToTemperature, Target: 30.5}, "Going to T: 30.50"},
		{Status{Phase: PhaseTemperatureStabilised}, "Temperature stabilised"},
		{Status{Phase: PhaseFinished}, "Finished"},
	}
	for _, c := range cases {
		if got := c.st.String(); got != c.want {
			t.Errorf("%v: got %q, want %q", c.st.Phase, got, c.want)
		}
	}

	st := Status{
		Phase:      PhaseCollectingData,
		Coordinate: Coordinate{Temperature: 25, Frequency: 1000, Voltage: 2},
		Step:       3,
		TotalSteps: 8,
	}
	if got := st.String(); got != "Collecting data at f: 1000 Hz, V: 2 (step 3/8)" {
		t.Errorf("unexpected collecting line %q", got)
	}
}
