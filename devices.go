package lcdielectrics

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// HotstageAction is the coarse state a hotstage reports alongside its temperature.
type HotstageAction int

const (
	ActionUnknown HotstageAction = iota
	ActionStopped
	ActionHeating
	ActionCooling
	ActionHolding
)

func (a HotstageAction) String() string {
	switch a {
	case ActionStopped:
		return "Stopped"
	case ActionHeating:
		return "Heating"
	case ActionCooling:
		return "Cooling"
	case ActionHolding:
		return "Holding"
	default:
		return "Unknown"
	}
}

// ParseHotstageAction accepts an action name or a Linkam T-command status byte.
func ParseHotstageAction(v interface{}) (HotstageAction, bool) {
	switch x := v.(type) {
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "stopped":
			return ActionStopped, true
		case "heating":
			return ActionHeating, true
		case "cooling":
			return ActionCooling, true
		case "holding":
			return ActionHolding, true
		case "unknown":
			return ActionUnknown, true
		}
		return ActionUnknown, false
	case float64:
		if x != float64(int(x)) {
			return ActionUnknown, false
		}
		return actionFromStatusByte(int(x)), true
	case int:
		return actionFromStatusByte(x), true
	case int64:
		return actionFromStatusByte(int(x)), true
	default:
		return ActionUnknown, false
	}
}

func actionFromStatusByte(b int) HotstageAction {
	switch b {
	case 1:
		return ActionStopped
	case 16, 17:
		return ActionHeating
	case 32, 33:
		return ActionCooling
	case 48, 49:
		return ActionHolding
	default:
		return ActionUnknown
	}
}

// TemperatureReading is one hotstage poll.
type TemperatureReading struct {
	Temperature float64
	Action      HotstageAction
	At          time.Time
}

// TemperatureController drives a hotstage.
type TemperatureController interface {
	// SetTemperature commands a setpoint and ramp rate in °C/min.
	SetTemperature(ctx context.Context, target, rate float64) error
	CurrentTemperature(ctx context.Context) (TemperatureReading, error)
	Stop(ctx context.Context) error
}

type ApertureMode string

const (
	ApertureShort  ApertureMode = "SHORT"
	ApertureMedium ApertureMode = "MED"
	ApertureLong   ApertureMode = "LONG"
)

func ParseApertureMode(s string) (ApertureMode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "MED", "MEDIUM":
		return ApertureMedium, nil
	case "SHORT":
		return ApertureShort, nil
	case "LONG":
		return ApertureLong, nil
	default:
		return "", fmt.Errorf("unknown aperture mode %q", s)
	}
}

// MeasurementFunction selects the analyzer's impedance parameter pair.
type MeasurementFunction string

const (
	// FunctionCpD returns parallel capacitance and dissipation factor.
	FunctionCpD MeasurementFunction = "CPD"
	// FunctionGB returns conductance and susceptance.
	FunctionGB MeasurementFunction = "GB"
)

// ImpedanceAnalyzer drives an LCR meter. Only one command may be outstanding at a time.
type ImpedanceAnalyzer interface {
	SetFrequency(ctx context.Context, hz float64) error
	SetVoltage(ctx context.Context, volts float64) error
	SetApertureMode(ctx context.Context, mode ApertureMode, averaging int) error
	SetDCBias(ctx context.Context, volts float64) error
	// Measure triggers one acquisition and returns the flat result array.
	Measure(ctx context.Context, fn MeasurementFunction) ([]float64, error)
	ResetAndClear(ctx context.Context) error
}

// PointReading is one measurement point out of a flat analyzer response.
type PointReading struct {
	Primary   float64
	Secondary float64
	Status    float64
}

// ResultLayout names the positions of each value in the analyzer's flat
// response. Every point occupies Stride values.
type ResultLayout struct {
	Stride    int
	Primary   int
	Secondary int
	Status    int
}

// SinglePointLayout is the FETC? reply for one point: [primary, secondary, status].
var SinglePointLayout = ResultLayout{Stride: 3, Primary: 0, Secondary: 1, Status: 2}

// ListSweepLayout is the list-mode reply: [primary, secondary, status, bin] per point.
var ListSweepLayout = ResultLayout{Stride: 4, Primary: 0, Secondary: 1, Status: 2}

// LayoutForStride picks the layout for a configured stride.
func LayoutForStride(stride int) (ResultLayout, error) {
	switch stride {
	case 0, 3:
		return SinglePointLayout, nil
	case 4:
		return ListSweepLayout, nil
	default:
		return ResultLayout{}, fmt.Errorf("unsupported result stride %d", stride)
	}
}

// Decode splits a flat response into points.
func (l ResultLayout) Decode(raw []float64) ([]PointReading, error) {
	if l.Stride <= 0 || len(raw) == 0 || len(raw)%l.Stride != 0 {
		return nil, &MalformedResponseError{Device: "analyzer", Field: "values", Value: raw}
	}
	points := make([]PointReading, 0, len(raw)/l.Stride)
	for off := 0; off < len(raw); off += l.Stride {
		points = append(points, PointReading{
			Primary:   raw[off+l.Primary],
			Secondary: raw[off+l.Secondary],
			Status:    raw[off+l.Status],
		})
	}
	return points, nil
}
