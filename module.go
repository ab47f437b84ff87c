package lcdielectrics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/multierr"
	genericcomponent "go.viam.com/rdk/components/generic"
	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	generic "go.viam.com/rdk/services/generic"
	goutils "go.viam.com/utils"
)

var Controller = resource.NewModel("lcdlab", "lcdielectrics", "controller")

func init() {
	resource.RegisterService(generic.API, Controller,
		resource.Registration[resource.Resource, *Config]{
			Constructor: newSweepControllerService,
		},
	)
}

type Config struct {
	Hotstage string `json:"hotstage" yaml:"hotstage"` // REQUIRED: hotstage sensor
	Analyzer string `json:"analyzer" yaml:"analyzer"` // REQUIRED: analyzer generic component

	TickIntervalMs   int     `json:"tick_interval_ms,omitempty" yaml:"tick_interval_ms"`   // default: 150
	PollIntervalMs   int     `json:"poll_interval_ms,omitempty" yaml:"poll_interval_ms"`   // default: 100
	RateCPerMin      float64 `json:"rate_c_per_min,omitempty" yaml:"rate_c_per_min"`       // default: 20
	StabilisationSec float64 `json:"stabilisation_sec,omitempty" yaml:"stabilisation_sec"` // 0 measures on arrival
	SettleDelaySec   float64 `json:"settle_delay_sec,omitempty" yaml:"settle_delay_sec"`   // default: 1
	MeasureGapMs     int     `json:"measure_gap_ms,omitempty" yaml:"measure_gap_ms"`       // default: 500
	Aperture         string  `json:"aperture,omitempty" yaml:"aperture"`                   // SHORT, MED or LONG (default: MED)
	Averaging        int     `json:"averaging,omitempty" yaml:"averaging"`                 // 1..256 (default: 1)
	DCBias           float64 `json:"dc_bias,omitempty" yaml:"dc_bias"`                     // 0, 1.5 or 2 V
	HoldToleranceC   float64 `json:"hold_tolerance_c,omitempty" yaml:"hold_tolerance_c"`
	WaitTimeoutSec   float64 `json:"wait_timeout_sec,omitempty" yaml:"wait_timeout_sec"` // 0 waits forever
	ResultStride     int     `json:"result_stride,omitempty" yaml:"result_stride"`       // 3 or 4 (default: 3)

	OutputPath       string `json:"output_path,omitempty" yaml:"output_path"` // results json; workbook goes next to it
	ArchivePath      string `json:"archive_path,omitempty" yaml:"archive_path"`
	ExportEachSample bool   `json:"export_each_sample,omitempty" yaml:"export_each_sample"`
}

func (cfg *Config) Validate(path string) ([]string, []string, error) {
	if cfg.Hotstage == "" {
		return nil, nil, fmt.Errorf("%s: hotstage is required", path)
	}
	if cfg.Analyzer == "" {
		return nil, nil, fmt.Errorf("%s: analyzer is required", path)
	}
	if err := cfg.validateSettings(); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return []string{cfg.Hotstage, cfg.Analyzer}, nil, nil
}

// validateSettings checks everything except the dependency names, which the
// offline runner does not use.
func (cfg *Config) validateSettings() error {
	if cfg.TickIntervalMs < 0 || cfg.PollIntervalMs < 0 || cfg.MeasureGapMs < 0 {
		return fmt.Errorf("intervals must not be negative")
	}
	if cfg.RateCPerMin < 0 {
		return fmt.Errorf("rate_c_per_min must not be negative")
	}
	if cfg.StabilisationSec < 0 || cfg.SettleDelaySec < 0 || cfg.WaitTimeoutSec < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	if cfg.HoldToleranceC < 0 {
		return fmt.Errorf("hold_tolerance_c must not be negative")
	}
	if _, err := ParseApertureMode(cfg.Aperture); err != nil {
		return err
	}
	if cfg.Averaging < 0 || cfg.Averaging > 256 {
		return fmt.Errorf("averaging must be between 1 and 256, got %d", cfg.Averaging)
	}
	switch cfg.DCBias {
	case 0, 1.5, 2:
	default:
		return fmt.Errorf("dc_bias must be 0, 1.5 or 2, got %v", cfg.DCBias)
	}
	if _, err := LayoutForStride(cfg.ResultStride); err != nil {
		return err
	}
	return nil
}

// SequencerConfig applies defaults and converts the attributes.
func (cfg *Config) SequencerConfig() (SequencerConfig, error) {
	if err := cfg.validateSettings(); err != nil {
		return SequencerConfig{}, err
	}
	aperture, _ := ParseApertureMode(cfg.Aperture)
	layout, _ := LayoutForStride(cfg.ResultStride)

	rate := cfg.RateCPerMin
	if rate <= 0 {
		rate = 20
	}
	settle := cfg.SettleDelaySec
	if settle <= 0 {
		settle = 1
	}
	gap := cfg.MeasureGapMs
	if gap <= 0 {
		gap = 500
	}
	averaging := cfg.Averaging
	if averaging <= 0 {
		averaging = 1
	}

	return SequencerConfig{
		Rate:              rate,
		StabilisationTime: seconds(cfg.StabilisationSec),
		SettleDelay:       seconds(settle),
		MeasureGap:        time.Duration(gap) * time.Millisecond,
		Aperture:          aperture,
		Averaging:         averaging,
		DCBias:            cfg.DCBias,
		HoldTolerance:     cfg.HoldToleranceC,
		WaitTimeout:       seconds(cfg.WaitTimeoutSec),
		Layout:            layout,
		ExportEachSample:  cfg.ExportEachSample,
	}, nil
}

// Intervals returns the sequencer tick and hotstage poll periods.
func (cfg *Config) Intervals() (tick, poll time.Duration) {
	tick, poll = 150*time.Millisecond, 100*time.Millisecond
	if cfg.TickIntervalMs > 0 {
		tick = time.Duration(cfg.TickIntervalMs) * time.Millisecond
	}
	if cfg.PollIntervalMs > 0 {
		poll = time.Duration(cfg.PollIntervalMs) * time.Millisecond
	}
	return tick, poll
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// BuildExporters opens the configured outputs. The returned archive, if any,
// must be closed by the caller.
func BuildExporters(outputPath, archivePath string) ([]Exporter, *Archive, error) {
	var exporters []Exporter
	if outputPath != "" {
		exporters = append(exporters,
			&JSONExporter{Path: outputPath},
			&WorkbookExporter{Path: WorkbookPath(outputPath)},
		)
	}
	var archive *Archive
	if archivePath != "" {
		a, err := OpenArchive(archivePath)
		if err != nil {
			return nil, nil, err
		}
		archive = a
		exporters = append(exporters, archive)
	}
	return exporters, archive, nil
}

type sweepController struct {
	resource.AlwaysRebuild

	name   resource.Name
	logger logging.Logger
	cfg    *Config

	sequencer    *Sequencer
	monitor      *TemperatureMonitor
	archive      *Archive
	tickInterval time.Duration

	workers *goutils.StoppableWorkers
}

func newSweepControllerService(ctx context.Context, deps resource.Dependencies, rawConf resource.Config, logger logging.Logger) (resource.Resource, error) {
	conf, err := resource.NativeConfig[*Config](rawConf)
	if err != nil {
		return nil, err
	}

	return NewController(ctx, deps, rawConf.ResourceName(), conf, logger)
}

func NewController(ctx context.Context, deps resource.Dependencies, name resource.Name, conf *Config, logger logging.Logger) (resource.Resource, error) {
	hs, err := sensor.FromDependencies(deps, conf.Hotstage)
	if err != nil {
		return nil, fmt.Errorf("getting hotstage: %w", err)
	}

	an, err := genericcomponent.FromDependencies(deps, conf.Analyzer)
	if err != nil {
		return nil, fmt.Errorf("getting analyzer: %w", err)
	}

	c, err := newSweepController(name, conf, newSensorHotstage(hs), newComponentAnalyzer(an), logger)
	if err != nil {
		return nil, err
	}
	c.startWorkers()
	return c, nil
}

// newSweepController wires the sweep pieces without starting any goroutines.
func newSweepController(name resource.Name, conf *Config, hotstage TemperatureController, analyzer ImpedanceAnalyzer, logger logging.Logger) (*sweepController, error) {
	seqCfg, err := conf.SequencerConfig()
	if err != nil {
		return nil, err
	}
	tick, poll := conf.Intervals()

	exporters, archive, err := BuildExporters(conf.OutputPath, conf.ArchivePath)
	if err != nil {
		return nil, err
	}

	monitor := NewTemperatureMonitor(hotstage, poll, logger)
	return &sweepController{
		name:         name,
		logger:       logger,
		cfg:          conf,
		sequencer:    NewSequencer(seqCfg, hotstage, analyzer, monitor, logger, exporters...),
		monitor:      monitor,
		archive:      archive,
		tickInterval: tick,
	}, nil
}

func (c *sweepController) startWorkers() {
	c.workers = goutils.NewBackgroundStoppableWorkers(c.monitor.Run, c.tickLoop)
}

func (c *sweepController) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(c.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// halts are logged by the sequencer
			_ = c.sequencer.Tick(ctx)
		}
	}
}

func (c *sweepController) Name() resource.Name {
	return c.name
}

// GetState is the snapshot republished by the status sensor.
func (c *sweepController) GetState() map[string]interface{} {
	st := c.sequencer.Status()

	state := map[string]interface{}{
		"phase":       st.Phase.String(),
		"status":      st.String(),
		"sweep_id":    st.SweepID,
		"target":      st.Target,
		"step":        st.Step,
		"total_steps": st.TotalSteps,
		"frequency":   st.Coordinate.Frequency,
		"voltage":     st.Coordinate.Voltage,
		"hotstage":    st.Hotstage.String(),
		"analyzer":    st.Analyzer.String(),
		"halted":      st.Halted,
		"last_error":  st.LastError,
		"should_sync": st.Phase != PhaseIdle,
	}
	if st.HasReading {
		state["temperature"] = st.Reading.Temperature
		state["action"] = st.Reading.Action.String()
	}
	if st.Phase == PhaseStabilisingTemperature {
		state["stabilisation_elapsed_sec"] = st.StabilisationElapsed.Seconds()
		state["stabilisation_required_sec"] = st.StabilisationRequired.Seconds()
	}
	return state
}

func (c *sweepController) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	command, ok := cmd["command"].(string)
	if !ok {
		return nil, fmt.Errorf("missing or invalid 'command' field")
	}

	switch command {
	case "start":
		return c.handleStart(ctx, cmd)
	case "stop":
		return c.handleStop(ctx)
	case "status":
		return c.GetState(), nil
	case "results":
		return c.handleResults()
	case "go_to_temperature":
		return c.handleGoToTemperature(ctx, cmd)
	case "temperature_log":
		return c.handleTemperatureLog(cmd)
	default:
		return nil, fmt.Errorf("unknown command: %s", command)
	}
}

func (c *sweepController) handleStart(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	var req PlanRequest
	for key, dst := range map[string]*[]float64{
		"temperatures": &req.Temperatures,
		"frequencies":  &req.Frequencies,
		"voltages":     &req.Voltages,
	} {
		values, ok := toFloatSlice(cmd[key])
		if !ok {
			return nil, fmt.Errorf("start requires a numeric list '%s'", key)
		}
		*dst = values
	}

	id, err := c.sequencer.Start(ctx, req)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"status": "started", "sweep_id": id}, nil
}

func (c *sweepController) handleStop(ctx context.Context) (map[string]interface{}, error) {
	if err := c.sequencer.Stop(ctx); err != nil {
		return nil, fmt.Errorf("stopping sweep: %w", err)
	}
	return map[string]interface{}{"status": "stopped"}, nil
}

func (c *sweepController) handleResults() (map[string]interface{}, error) {
	id := c.sequencer.Status().SweepID
	if id == "" {
		return nil, ErrNoSweep
	}
	store := c.sequencer.Results()

	// round trip so the reply holds only plain maps and lists
	data, err := json.Marshal(store)
	if err != nil {
		return nil, err
	}
	var results map[string]interface{}
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"sweep_id": id,
		"samples":  store.Samples(),
		"results":  results,
	}, nil
}

func (c *sweepController) handleGoToTemperature(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	target, ok := toFloat(cmd["target"])
	if !ok {
		return nil, fmt.Errorf("go_to_temperature requires numeric 'target'")
	}
	rate, _ := toFloat(cmd["rate"])
	if err := c.sequencer.GoToTemperature(ctx, target, rate); err != nil {
		return nil, err
	}
	return map[string]interface{}{"status": "going", "target": RoundTemperature(target)}, nil
}

func (c *sweepController) handleTemperatureLog(cmd map[string]interface{}) (map[string]interface{}, error) {
	history := c.monitor.History()
	if limit, ok := toFloat(cmd["limit"]); ok && limit > 0 && int(limit) < len(history) {
		history = history[len(history)-int(limit):]
	}

	points := make([]interface{}, len(history))
	for i, r := range history {
		points[i] = map[string]interface{}{
			"time":        r.At.Format(time.RFC3339Nano),
			"temperature": r.Temperature,
			"action":      r.Action.String(),
		}
	}
	return map[string]interface{}{"readings": points, "count": len(points)}, nil
}

func (c *sweepController) Close(ctx context.Context) error {
	if c.workers != nil {
		c.workers.Stop()
	}
	err := c.sequencer.Stop(ctx)
	if c.archive != nil {
		err = multierr.Append(err, c.archive.Close())
	}
	return err
}
