package lcdielectrics

import (
	"context"
	"fmt"

	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/data"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
)

var StatusSensor = resource.NewModel("lcdlab", "lcdielectrics", "status-sensor")

func init() {
	resource.RegisterComponent(sensor.API, StatusSensor,
		resource.Registration[sensor.Sensor, *StatusSensorConfig]{
			Constructor: newStatusSensor,
		},
	)
}

// StatusSensorConfig points the sensor at a sweep controller. Fields limits
// the readings to the named state keys; empty means everything. Idle
// snapshots are only captured when CaptureIdle is set.
type StatusSensorConfig struct {
	Controller  string   `json:"controller"`
	Fields      []string `json:"fields,omitempty"`
	CaptureIdle bool     `json:"capture_idle,omitempty"`
}

func (cfg *StatusSensorConfig) Validate(path string) ([]string, []string, error) {
	if cfg.Controller == "" {
		return nil, nil, fmt.Errorf("%s: controller is required", path)
	}
	for i, f := range cfg.Fields {
		if f == "" {
			return nil, nil, fmt.Errorf("%s: fields[%d] is empty", path, i)
		}
	}
	return []string{controllerResourceName(cfg.Controller).String()}, nil, nil
}

func controllerResourceName(name string) resource.Name {
	return resource.NewName(resource.APINamespaceRDK.WithServiceType("generic"), name)
}

type stateProvider interface {
	GetState() map[string]interface{}
}

// statusSensor publishes sweep progress for data capture. Capture requests
// made while no sweep is running are dropped, so synced data only covers
// sweeps and every row carries a sweep id.
type statusSensor struct {
	resource.AlwaysRebuild

	name        resource.Name
	logger      logging.Logger
	controller  stateProvider
	fields      []string
	captureIdle bool
}

func newStatusSensor(ctx context.Context, deps resource.Dependencies, rawConf resource.Config, logger logging.Logger) (sensor.Sensor, error) {
	conf, err := resource.NativeConfig[*StatusSensorConfig](rawConf)
	if err != nil {
		return nil, err
	}

	ctrl, ok := deps[controllerResourceName(conf.Controller)]
	if !ok {
		return nil, fmt.Errorf("controller %q not found in dependencies", conf.Controller)
	}
	provider, ok := ctrl.(stateProvider)
	if !ok {
		return nil, fmt.Errorf("controller %q does not implement GetState", conf.Controller)
	}

	return &statusSensor{
		name:        rawConf.ResourceName(),
		logger:      logger,
		controller:  provider,
		fields:      conf.Fields,
		captureIdle: conf.CaptureIdle,
	}, nil
}

func (s *statusSensor) Name() resource.Name {
	return s.name
}

// Readings returns the controller state. extra["fields"] overrides the
// configured field list for a single call.
func (s *statusSensor) Readings(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error) {
	state := s.controller.GetState()

	if fromDM, _ := extra[data.FromDMString].(bool); fromDM && !s.captureIdle {
		if sync, _ := state["should_sync"].(bool); !sync {
			return nil, data.ErrNoCaptureToStore
		}
	}

	fields := s.fields
	if raw, ok := extra["fields"]; ok {
		requested, err := stringList(raw)
		if err != nil {
			return nil, fmt.Errorf("fields: %w", err)
		}
		fields = requested
	}
	if len(fields) == 0 {
		return state, nil
	}

	// sweep_id always travels with a subset so captured rows stay attributable.
	out := map[string]interface{}{"sweep_id": state["sweep_id"]}
	for _, f := range fields {
		if v, ok := state[f]; ok {
			out[f] = v
		}
	}
	return out, nil
}

func stringList(raw interface{}) ([]string, error) {
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected string, got %T", item)
			}
			out = append(out, str)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a list of strings, got %T", raw)
	}
}

func (s *statusSensor) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	return nil, fmt.Errorf("DoCommand not supported on status-sensor")
}

func (s *statusSensor) Close(context.Context) error {
	return nil
}
