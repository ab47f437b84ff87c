package lcdielectrics

import (
	"math"
	"strconv"
)

// Coordinate is one point of the sweep.
type Coordinate struct {
	Temperature float64 `json:"temperature"`
	Frequency   float64 `json:"frequency"`
	Voltage     float64 `json:"voltage"`
}

// StepTag tells the sequencer which side effects an advance requires.
type StepTag int

const (
	MoreSteps StepTag = iota
	NewFrequencyBucket
	NewTemperature
	PlanComplete
)

func (t StepTag) String() string {
	switch t {
	case MoreSteps:
		return "more_steps"
	case NewFrequencyBucket:
		return "new_frequency_bucket"
	case NewTemperature:
		return "new_temperature"
	case PlanComplete:
		return "plan_complete"
	default:
		return "unknown"
	}
}

// SweepPlan walks temperature (slowest), frequency, then voltage (fastest).
// The value lists are fixed once built.
type SweepPlan struct {
	temperatures []float64
	frequencies  []float64
	voltages     []float64

	tStep    int
	freqStep int
	voltStep int
}

// RoundTemperature rounds to the two decimals used for result keys.
func RoundTemperature(t float64) float64 {
	return math.Round(t*100) / 100
}

// TemperatureKey is the string form of a temperature in results and exports.
func TemperatureKey(t float64) string {
	return strconv.FormatFloat(RoundTemperature(t), 'f', -1, 64)
}

// FrequencyKey is the string form of a frequency in results and exports.
func FrequencyKey(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// BuildPlan validates the three lists and returns a plan positioned at the first coordinate.
// Temperatures that collide after rounding are kept as separate steps; Sequencer.Start refuses such plans.
func BuildPlan(temperatures, frequencies, voltages []float64) (*SweepPlan, error) {
	switch {
	case len(temperatures) == 0:
		return nil, &InvalidPlanError{Reason: "temperature list is empty"}
	case len(frequencies) == 0:
		return nil, &InvalidPlanError{Reason: "frequency list is empty"}
	case len(voltages) == 0:
		return nil, &InvalidPlanError{Reason: "voltage list is empty"}
	}

	for _, list := range [][]float64{temperatures, frequencies, voltages} {
		for _, v := range list {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, &InvalidPlanError{Reason: "non-finite value in plan"}
			}
		}
	}
	for _, f := range frequencies {
		if f <= 0 {
			return nil, &InvalidPlanError{Reason: "frequencies must be positive"}
		}
	}

	temps := make([]float64, len(temperatures))
	for i, t := range temperatures {
		temps[i] = RoundTemperature(t)
	}

	return &SweepPlan{
		temperatures: temps,
		frequencies:  append([]float64(nil), frequencies...),
		voltages:     append([]float64(nil), voltages...),
	}, nil
}

func (p *SweepPlan) Current() Coordinate {
	return Coordinate{
		Temperature: p.temperatures[p.tStep],
		Frequency:   p.frequencies[p.freqStep],
		Voltage:     p.voltages[p.voltStep],
	}
}

// Advance moves to the next coordinate. At the final coordinate it returns
// PlanComplete and the cursors stay where they are.
func (p *SweepPlan) Advance() StepTag {
	if p.AtFinalStep() {
		return PlanComplete
	}

	p.voltStep++
	if p.voltStep < len(p.voltages) {
		return MoreSteps
	}
	p.voltStep = 0

	p.freqStep++
	if p.freqStep < len(p.frequencies) {
		return NewFrequencyBucket
	}
	p.freqStep = 0

	p.tStep++
	return NewTemperature
}

func (p *SweepPlan) Cursors() (tStep, freqStep, voltStep int) {
	return p.tStep, p.freqStep, p.voltStep
}

// Index is the zero-based linear position of the current coordinate.
func (p *SweepPlan) Index() int {
	return (p.tStep*len(p.frequencies)+p.freqStep)*len(p.voltages) + p.voltStep
}

func (p *SweepPlan) Len() int {
	return len(p.temperatures) * len(p.frequencies) * len(p.voltages)
}

func (p *SweepPlan) IsLastVoltage() bool     { return p.voltStep == len(p.voltages)-1 }
func (p *SweepPlan) IsLastFrequency() bool   { return p.freqStep == len(p.frequencies)-1 }
func (p *SweepPlan) IsLastTemperature() bool { return p.tStep == len(p.temperatures)-1 }

func (p *SweepPlan) AtFinalStep() bool {
	return p.IsLastTemperature() && p.IsLastFrequency() && p.IsLastVoltage()
}

func (p *SweepPlan) Temperatures() []float64 { return append([]float64(nil), p.temperatures...) }
func (p *SweepPlan) Frequencies() []float64  { return append([]float64(nil), p.frequencies...) }
func (p *SweepPlan) Voltages() []float64     { return append([]float64(nil), p.voltages...) }

// DuplicateTemperatures lists temperatures that appear more than once after rounding.
func (p *SweepPlan) DuplicateTemperatures() []float64 {
	seen := make(map[float64]int, len(p.temperatures))
	var dups []float64
	for _, t := range p.temperatures {
		seen[t]++
		if seen[t] == 2 {
			dups = append(dups, t)
		}
	}
	return dups
}
