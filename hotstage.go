package lcdielectrics

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
)

var SimulatedHotstage = resource.NewModel("lcdlab", "lcdielectrics", "simulated-hotstage")

func init() {
	resource.RegisterComponent(sensor.API, SimulatedHotstage,
		resource.Registration[sensor.Sensor, *SimulatedHotstageConfig]{
			Constructor: newSimulatedHotstageSensor,
		},
	)
}

// Hotstage sensors speak this protocol: Readings carries "temperature" (°C)
// and "action" (name or Linkam status byte); DoCommand accepts
// set_temperature{target, rate} and stop.
const (
	hotstageCmdSetTemperature = "set_temperature"
	hotstageCmdStop           = "stop"
)

// sensorHotstage drives a hotstage exposed as a Viam sensor.
type sensorHotstage struct {
	name   string
	sensor sensor.Sensor
}

func newSensorHotstage(s sensor.Sensor) *sensorHotstage {
	return &sensorHotstage{name: s.Name().ShortName(), sensor: s}
}

func (h *sensorHotstage) SetTemperature(ctx context.Context, target, rate float64) error {
	_, err := h.sensor.DoCommand(ctx, map[string]interface{}{
		"command": hotstageCmdSetTemperature,
		"target":  target,
		"rate":    rate,
	})
	if err != nil {
		return &DeviceIOError{Device: h.name, Op: "set temperature", Err: err}
	}
	return nil
}

func (h *sensorHotstage) CurrentTemperature(ctx context.Context) (TemperatureReading, error) {
	readings, err := h.sensor.Readings(ctx, nil)
	if err != nil {
		return TemperatureReading{}, &DeviceIOError{Device: h.name, Op: "read temperature", Err: err}
	}

	temp, ok := toFloat(readings["temperature"])
	if !ok || math.IsNaN(temp) {
		return TemperatureReading{}, &MalformedResponseError{Device: h.name, Field: "temperature", Value: readings["temperature"]}
	}
	action, ok := ParseHotstageAction(readings["action"])
	if !ok {
		return TemperatureReading{}, &MalformedResponseError{Device: h.name, Field: "action", Value: readings["action"]}
	}

	return TemperatureReading{Temperature: temp, Action: action, At: time.Now()}, nil
}

func (h *sensorHotstage) Stop(ctx context.Context) error {
	if _, err := h.sensor.DoCommand(ctx, map[string]interface{}{"command": hotstageCmdStop}); err != nil {
		return &DeviceIOError{Device: h.name, Op: "stop", Err: err}
	}
	return nil
}

func toFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}

func toFloatSlice(v interface{}) ([]float64, bool) {
	switch x := v.(type) {
	case []float64:
		return append([]float64(nil), x...), true
	case []interface{}:
		out := make([]float64, 0, len(x))
		for _, item := range x {
			f, ok := toFloat(item)
			if !ok {
				return nil, false
			}
			out = append(out, f)
		}
		return out, true
	default:
		return nil, false
	}
}

type SimulatedHotstageConfig struct {
	StartTemperature *float64 `json:"start_temperature,omitempty" yaml:"start_temperature"` // default: 25
	TimeScale        float64  `json:"time_scale,omitempty" yaml:"time_scale"`               // ramp speed-up factor (default: 1)
}

func (cfg *SimulatedHotstageConfig) Validate(path string) ([]string, []string, error) {
	if cfg.TimeScale < 0 {
		return nil, nil, fmt.Errorf("%s: time_scale must not be negative", path)
	}
	return nil, nil, nil
}

// simulatedHotstage ramps toward its setpoint at the commanded rate and holds
// once it arrives. It is both a TemperatureController and a Viam sensor.
type simulatedHotstage struct {
	resource.AlwaysRebuild

	name   resource.Name
	logger logging.Logger
	now    func() time.Time

	mu          sync.Mutex
	temperature float64
	target      float64
	rate        float64 // °C/min
	running     bool
	timeScale   float64
	lastUpdate  time.Time
}

func newSimulatedHotstageSensor(ctx context.Context, deps resource.Dependencies, rawConf resource.Config, logger logging.Logger) (sensor.Sensor, error) {
	conf, err := resource.NativeConfig[*SimulatedHotstageConfig](rawConf)
	if err != nil {
		return nil, err
	}
	return newSimulatedHotstage(rawConf.ResourceName(), conf, logger), nil
}

// NewSimulatedHotstage returns an in-process hotstage for offline runs.
func NewSimulatedHotstage(name string, conf *SimulatedHotstageConfig, logger logging.Logger) TemperatureController {
	return newSimulatedHotstage(resource.NewName(sensor.API, name), conf, logger)
}

func newSimulatedHotstage(name resource.Name, conf *SimulatedHotstageConfig, logger logging.Logger) *simulatedHotstage {
	start := 25.0
	if conf.StartTemperature != nil {
		start = *conf.StartTemperature
	}
	scale := conf.TimeScale
	if scale <= 0 {
		scale = 1
	}
	h := &simulatedHotstage{
		name:        name,
		logger:      logger,
		now:         time.Now,
		temperature: start,
		target:      start,
		timeScale:   scale,
	}
	h.lastUpdate = h.now()
	return h
}

func (h *simulatedHotstage) Name() resource.Name {
	return h.name
}

// advance must be called with mu held.
func (h *simulatedHotstage) advance() {
	now := h.now()
	dt := now.Sub(h.lastUpdate).Minutes() * h.timeScale
	h.lastUpdate = now
	if !h.running || dt <= 0 {
		return
	}
	step := h.rate * dt
	diff := h.target - h.temperature
	if math.Abs(diff) <= step {
		h.temperature = h.target
		return
	}
	h.temperature += math.Copysign(step, diff)
}

// action must be called with mu held.
func (h *simulatedHotstage) action() HotstageAction {
	switch {
	case !h.running:
		return ActionStopped
	case h.temperature < h.target:
		return ActionHeating
	case h.temperature > h.target:
		return ActionCooling
	default:
		return ActionHolding
	}
}

func (h *simulatedHotstage) SetTemperature(ctx context.Context, target, rate float64) error {
	if rate <= 0 {
		return &DeviceIOError{Device: h.name.ShortName(), Op: "set temperature", Err: fmt.Errorf("rate must be positive, got %v", rate)}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.advance()
	h.target = RoundTemperature(target)
	h.rate = rate
	h.running = true
	h.logger.Debugf("hotstage setpoint %.2f at %.2f C/min", h.target, rate)
	return nil
}

func (h *simulatedHotstage) CurrentTemperature(ctx context.Context) (TemperatureReading, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.advance()
	return TemperatureReading{
		Temperature: math.Round(h.temperature*10) / 10,
		Action:      h.action(),
		At:          h.lastUpdate,
	}, nil
}

func (h *simulatedHotstage) Stop(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.advance()
	h.running = false
	return nil
}

func (h *simulatedHotstage) Readings(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error) {
	r, err := h.CurrentTemperature(ctx)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	target, rate := h.target, h.rate
	h.mu.Unlock()
	return map[string]interface{}{
		"temperature": r.Temperature,
		"action":      r.Action.String(),
		"target":      target,
		"rate":        rate,
	}, nil
}

func (h *simulatedHotstage) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	command, ok := cmd["command"].(string)
	if !ok {
		return nil, fmt.Errorf("missing or invalid 'command' field")
	}

	switch command {
	case hotstageCmdSetTemperature:
		target, ok := toFloat(cmd["target"])
		if !ok {
			return nil, fmt.Errorf("set_temperature requires numeric 'target'")
		}
		rate, ok := toFloat(cmd["rate"])
		if !ok {
			return nil, fmt.Errorf("set_temperature requires numeric 'rate'")
		}
		if err := h.SetTemperature(ctx, target, rate); err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "ok"}, nil
	case hotstageCmdStop:
		if err := h.Stop(ctx); err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "ok"}, nil
	default:
		return nil, fmt.Errorf("unknown command: %s", command)
	}
}

func (h *simulatedHotstage) Close(context.Context) error {
	return nil
}
