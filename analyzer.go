package lcdielectrics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	genericcomponent "go.viam.com/rdk/components/generic"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	goutils "go.viam.com/utils"
)

var SimulatedAnalyzer = resource.NewModel("lcdlab", "lcdielectrics", "simulated-analyzer")

func init() {
	resource.RegisterComponent(genericcomponent.API, SimulatedAnalyzer,
		resource.Registration[resource.Resource, *SimulatedAnalyzerConfig]{
			Constructor: newSimulatedAnalyzerComponent,
		},
	)
}

// Analyzer resources accept these DoCommand verbs. measure answers with
// {"values": [...]} laid out as described by ResultLayout.
const (
	analyzerCmdSetFrequency = "set_frequency"
	analyzerCmdSetVoltage   = "set_voltage"
	analyzerCmdSetAperture  = "set_aperture"
	analyzerCmdSetDCBias    = "set_dc_bias"
	analyzerCmdMeasure      = "measure"
	analyzerCmdReset        = "reset"
)

// componentAnalyzer drives an LCR meter exposed as any Viam resource.
type componentAnalyzer struct {
	name string
	res  resource.Resource
}

func newComponentAnalyzer(res resource.Resource) *componentAnalyzer {
	return &componentAnalyzer{name: res.Name().ShortName(), res: res}
}

func (a *componentAnalyzer) do(ctx context.Context, op string, cmd map[string]interface{}) (map[string]interface{}, error) {
	resp, err := a.res.DoCommand(ctx, cmd)
	if err != nil {
		return nil, &DeviceIOError{Device: a.name, Op: op, Err: err}
	}
	return resp, nil
}

func (a *componentAnalyzer) SetFrequency(ctx context.Context, hz float64) error {
	_, err := a.do(ctx, "set frequency", map[string]interface{}{"command": analyzerCmdSetFrequency, "hz": hz})
	return err
}

func (a *componentAnalyzer) SetVoltage(ctx context.Context, volts float64) error {
	_, err := a.do(ctx, "set voltage", map[string]interface{}{"command": analyzerCmdSetVoltage, "volts": volts})
	return err
}

func (a *componentAnalyzer) SetApertureMode(ctx context.Context, mode ApertureMode, averaging int) error {
	_, err := a.do(ctx, "set aperture", map[string]interface{}{
		"command":   analyzerCmdSetAperture,
		"mode":      string(mode),
		"averaging": averaging,
	})
	return err
}

func (a *componentAnalyzer) SetDCBias(ctx context.Context, volts float64) error {
	_, err := a.do(ctx, "set dc bias", map[string]interface{}{"command": analyzerCmdSetDCBias, "volts": volts})
	return err
}

func (a *componentAnalyzer) Measure(ctx context.Context, fn MeasurementFunction) ([]float64, error) {
	resp, err := a.do(ctx, "measure "+string(fn), map[string]interface{}{
		"command":  analyzerCmdMeasure,
		"function": string(fn),
	})
	if err != nil {
		return nil, err
	}
	values, ok := toFloatSlice(resp["values"])
	if !ok {
		return nil, &MalformedResponseError{Device: a.name, Field: "values", Value: resp["values"]}
	}
	return values, nil
}

func (a *componentAnalyzer) ResetAndClear(ctx context.Context) error {
	_, err := a.do(ctx, "reset", map[string]interface{}{"command": analyzerCmdReset})
	return err
}

type SimulatedAnalyzerConfig struct {
	CellCapacitancePF float64 `json:"cell_capacitance_pf,omitempty" yaml:"cell_capacitance_pf"` // empty cell capacitance (default: 10)
	EpsilonPerp       float64 `json:"epsilon_perp,omitempty" yaml:"epsilon_perp"`               // default: 5
	EpsilonPara       float64 `json:"epsilon_para,omitempty" yaml:"epsilon_para"`               // default: 18
	RelaxationHz      float64 `json:"relaxation_hz,omitempty" yaml:"relaxation_hz"`             // default: 1e5
	ThresholdVolts    float64 `json:"threshold_volts,omitempty" yaml:"threshold_volts"`         // Freedericksz threshold (default: 1)
	ResultStride      int     `json:"result_stride,omitempty" yaml:"result_stride"`             // 3 or 4 (default: 3)
	MeasureDelayMs    int     `json:"measure_delay_ms,omitempty" yaml:"measure_delay_ms"`
}

func (cfg *SimulatedAnalyzerConfig) Validate(path string) ([]string, []string, error) {
	if _, err := LayoutForStride(cfg.ResultStride); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	if cfg.MeasureDelayMs < 0 {
		return nil, nil, fmt.Errorf("%s: measure_delay_ms must not be negative", path)
	}
	return nil, nil, nil
}

var errCommandOverlap = errors.New("command issued while another is in progress")

// simulatedAnalyzer models a nematic cell with a single Debye relaxation of
// the dielectric anisotropy. It rejects overlapping commands the way a real
// GPIB instrument would garble them.
type simulatedAnalyzer struct {
	resource.AlwaysRebuild

	name   resource.Name
	logger logging.Logger

	c0        float64
	epsPerp   float64
	epsPara   float64
	relaxHz   float64
	threshold float64
	stride    int
	delay     time.Duration

	busy sync.Mutex

	mu        sync.Mutex
	frequency float64
	voltage   float64
	bias      float64
	aperture  ApertureMode
	averaging int
}

func newSimulatedAnalyzerComponent(ctx context.Context, deps resource.Dependencies, rawConf resource.Config, logger logging.Logger) (resource.Resource, error) {
	conf, err := resource.NativeConfig[*SimulatedAnalyzerConfig](rawConf)
	if err != nil {
		return nil, err
	}
	return newSimulatedAnalyzer(rawConf.ResourceName(), conf, logger), nil
}

// NewSimulatedAnalyzer returns an in-process analyzer for offline runs.
func NewSimulatedAnalyzer(name string, conf *SimulatedAnalyzerConfig, logger logging.Logger) ImpedanceAnalyzer {
	return newSimulatedAnalyzer(resource.NewName(genericcomponent.API, name), conf, logger)
}

func newSimulatedAnalyzer(name resource.Name, conf *SimulatedAnalyzerConfig, logger logging.Logger) *simulatedAnalyzer {
	a := &simulatedAnalyzer{
		name:      name,
		logger:    logger,
		c0:        orDefault(conf.CellCapacitancePF, 10) * 1e-12,
		epsPerp:   orDefault(conf.EpsilonPerp, 5),
		epsPara:   orDefault(conf.EpsilonPara, 18),
		relaxHz:   orDefault(conf.RelaxationHz, 1e5),
		threshold: orDefault(conf.ThresholdVolts, 1),
		stride:    conf.ResultStride,
		delay:     time.Duration(conf.MeasureDelayMs) * time.Millisecond,
		frequency: 1000,
		aperture:  ApertureMedium,
		averaging: 1,
	}
	if a.stride == 0 {
		a.stride = 3
	}
	return a
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func (a *simulatedAnalyzer) Name() resource.Name {
	return a.name
}

func (a *simulatedAnalyzer) exclusive(op string, fn func() error) error {
	if !a.busy.TryLock() {
		return &DeviceIOError{Device: a.name.ShortName(), Op: op, Err: errCommandOverlap}
	}
	defer a.busy.Unlock()
	return fn()
}

func (a *simulatedAnalyzer) SetFrequency(ctx context.Context, hz float64) error {
	return a.exclusive("set frequency", func() error {
		if hz <= 0 {
			return fmt.Errorf("frequency must be positive, got %v", hz)
		}
		a.mu.Lock()
		a.frequency = hz
		a.mu.Unlock()
		return nil
	})
}

func (a *simulatedAnalyzer) SetVoltage(ctx context.Context, volts float64) error {
	return a.exclusive("set voltage", func() error {
		a.mu.Lock()
		a.voltage = volts
		a.mu.Unlock()
		return nil
	})
}

func (a *simulatedAnalyzer) SetApertureMode(ctx context.Context, mode ApertureMode, averaging int) error {
	return a.exclusive("set aperture", func() error {
		if averaging < 1 || averaging > 256 {
			return fmt.Errorf("averaging must be 1..256, got %d", averaging)
		}
		a.mu.Lock()
		a.aperture = mode
		a.averaging = averaging
		a.mu.Unlock()
		return nil
	})
}

func (a *simulatedAnalyzer) SetDCBias(ctx context.Context, volts float64) error {
	return a.exclusive("set dc bias", func() error {
		a.mu.Lock()
		a.bias = volts
		a.mu.Unlock()
		return nil
	})
}

func (a *simulatedAnalyzer) ResetAndClear(ctx context.Context) error {
	return a.exclusive("reset", func() error {
		a.mu.Lock()
		a.voltage = 0
		a.bias = 0
		a.mu.Unlock()
		return nil
	})
}

func (a *simulatedAnalyzer) Measure(ctx context.Context, fn MeasurementFunction) ([]float64, error) {
	var out []float64
	err := a.exclusive("measure", func() error {
		if a.delay > 0 && !goutils.SelectContextOrWait(ctx, a.delay) {
			return ctx.Err()
		}
		a.mu.Lock()
		f, v := a.frequency, math.Abs(a.voltage+a.bias)
		a.mu.Unlock()

		cp, d, g, b := a.response(f, v)
		switch fn {
		case FunctionCpD:
			out = []float64{cp, d, 0}
		case FunctionGB:
			out = []float64{g, b, 0}
		default:
			return fmt.Errorf("unsupported function %q", fn)
		}
		if a.stride == 4 {
			out = append(out, 0)
		}
		return nil
	})
	return out, err
}

// response returns Cp, D, G, B for an RMS drive of v volts at f Hz.
func (a *simulatedAnalyzer) response(f, v float64) (cp, d, g, b float64) {
	// Director tilt above threshold raises the static permittivity toward eps_para.
	tilt := 0.0
	if v > a.threshold {
		tilt = 1 - a.threshold/v
	}
	epsStatic := a.epsPerp + (a.epsPara-a.epsPerp)*tilt
	const epsInf = 3.0

	x := f / a.relaxHz
	epsReal := epsInf + (epsStatic-epsInf)/(1+x*x)
	epsImag := (epsStatic - epsInf) * x / (1 + x*x)

	omega := 2 * math.Pi * f
	cp = a.c0 * epsReal
	d = epsImag / epsReal
	g = omega * a.c0 * epsImag
	b = omega * a.c0 * epsReal
	return cp, d, g, b
}

func (a *simulatedAnalyzer) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	command, ok := cmd["command"].(string)
	if !ok {
		return nil, fmt.Errorf("missing or invalid 'command' field")
	}

	var err error
	switch command {
	case analyzerCmdSetFrequency:
		hz, ok := toFloat(cmd["hz"])
		if !ok {
			return nil, fmt.Errorf("set_frequency requires numeric 'hz'")
		}
		err = a.SetFrequency(ctx, hz)
	case analyzerCmdSetVoltage:
		v, ok := toFloat(cmd["volts"])
		if !ok {
			return nil, fmt.Errorf("set_voltage requires numeric 'volts'")
		}
		err = a.SetVoltage(ctx, v)
	case analyzerCmdSetAperture:
		modeStr, _ := cmd["mode"].(string)
		mode, perr := ParseApertureMode(modeStr)
		if perr != nil {
			return nil, perr
		}
		avg, ok := toFloat(cmd["averaging"])
		if !ok {
			avg = 1
		}
		err = a.SetApertureMode(ctx, mode, int(avg))
	case analyzerCmdSetDCBias:
		v, ok := toFloat(cmd["volts"])
		if !ok {
			return nil, fmt.Errorf("set_dc_bias requires numeric 'volts'")
		}
		err = a.SetDCBias(ctx, v)
	case analyzerCmdMeasure:
		fn, _ := cmd["function"].(string)
		values, merr := a.Measure(ctx, MeasurementFunction(fn))
		if merr != nil {
			return nil, merr
		}
		iv := make([]interface{}, len(values))
		for i, v := range values {
			iv[i] = v
		}
		return map[string]interface{}{"values": iv}, nil
	case analyzerCmdReset:
		err = a.ResetAndClear(ctx)
	default:
		return nil, fmt.Errorf("unknown command: %s", command)
	}
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"status": "ok"}, nil
}

func (a *simulatedAnalyzer) Close(context.Context) error {
	return nil
}
