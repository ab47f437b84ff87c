package lcdielectrics

import (
	"context"
	"time"

	"go.viam.com/rdk/logging"
	goutils "go.viam.com/utils"
)

type acquisitionResult struct {
	coord  Coordinate
	sample Sample
	err    error
}

// acquisition is one in-flight measurement. The worker owns the analyzer
// until done is closed and hands its single result back over result.
type acquisition struct {
	coord  Coordinate
	cancel context.CancelFunc
	result chan acquisitionResult
	done   chan struct{}
}

type acquisitionSettings struct {
	layout      ResultLayout
	settleDelay time.Duration
	measureGap  time.Duration
}

func startAcquisition(analyzer ImpedanceAnalyzer, coord Coordinate, settings acquisitionSettings, logger logging.Logger) *acquisition {
	ctx, cancel := context.WithCancel(context.Background())
	acq := &acquisition{
		coord:  coord,
		cancel: cancel,
		result: make(chan acquisitionResult, 1),
		done:   make(chan struct{}),
	}

	go func() {
		defer close(acq.done)
		sample, err := measureCoordinate(ctx, analyzer, coord, settings, logger)
		acq.result <- acquisitionResult{coord: coord, sample: sample, err: err}
	}()
	return acq
}

// abort cancels the worker and waits up to timeout for it to let go of the
// analyzer. It reports whether the worker finished.
func (a *acquisition) abort(ctx context.Context, timeout time.Duration) bool {
	a.cancel()
	wait := time.NewTimer(timeout)
	defer wait.Stop()
	select {
	case <-a.done:
		return true
	case <-ctx.Done():
	case <-wait.C:
	}
	return false
}

func measureCoordinate(ctx context.Context, analyzer ImpedanceAnalyzer, coord Coordinate, settings acquisitionSettings, logger logging.Logger) (Sample, error) {
	if err := analyzer.SetFrequency(ctx, coord.Frequency); err != nil {
		return Sample{}, err
	}
	if err := analyzer.SetVoltage(ctx, coord.Voltage); err != nil {
		return Sample{}, err
	}
	if !goutils.SelectContextOrWait(ctx, settings.settleDelay) {
		return Sample{}, ctx.Err()
	}

	cpd, err := measurePoint(ctx, analyzer, FunctionCpD, settings.layout)
	if err != nil {
		return Sample{}, err
	}
	if !goutils.SelectContextOrWait(ctx, settings.measureGap) {
		return Sample{}, ctx.Err()
	}
	gb, err := measurePoint(ctx, analyzer, FunctionGB, settings.layout)
	if err != nil {
		return Sample{}, err
	}

	if cpd.Status != 0 || gb.Status != 0 {
		logger.Warnf("analyzer status at T=%.2f f=%g V=%g: CPD=%v GB=%v",
			coord.Temperature, coord.Frequency, coord.Voltage, cpd.Status, gb.Status)
	}

	return Sample{
		Voltage: coord.Voltage,
		Cp:      cpd.Primary,
		D:       cpd.Secondary,
		G:       gb.Primary,
		B:       gb.Secondary,
	}, nil
}

func measurePoint(ctx context.Context, analyzer ImpedanceAnalyzer, fn MeasurementFunction, layout ResultLayout) (PointReading, error) {
	raw, err := analyzer.Measure(ctx, fn)
	if err != nil {
		return PointReading{}, err
	}
	points, err := layout.Decode(raw)
	if err != nil {
		return PointReading{}, err
	}
	if len(points) != 1 {
		return PointReading{}, &MalformedResponseError{Device: "analyzer", Field: string(fn), Value: raw}
	}
	return points[0], nil
}
