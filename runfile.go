package lcdielectrics

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/multierr"
	goutils "go.viam.com/utils"
	"gopkg.in/yaml.v3"
)

// SimulationConfig configures the in-process instruments of an offline run.
type SimulationConfig struct {
	Hotstage SimulatedHotstageConfig `yaml:"hotstage"`
	Analyzer SimulatedAnalyzerConfig `yaml:"analyzer"`
}

// RunFile is the YAML document read by the sweep CLI.
type RunFile struct {
	Settings   Config           `yaml:"settings"`
	Plan       PlanRequest      `yaml:"plan"`
	Simulation SimulationConfig `yaml:"simulation"`
}

func LoadRunFile(path string) (*RunFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read run file: %w", err)
	}
	var rf RunFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse run file: %w", err)
	}
	if err := rf.Settings.validateSettings(); err != nil {
		return nil, fmt.Errorf("run file settings: %w", err)
	}
	if _, err := BuildPlan(rf.Plan.Temperatures, rf.Plan.Frequencies, rf.Plan.Voltages); err != nil {
		return nil, fmt.Errorf("run file plan: %w", err)
	}
	return &rf, nil
}

// RunToCompletion polls the hotstage and ticks seq until the started sweep
// finishes or halts. Cancelling ctx stops the sweep and returns ctx.Err().
func RunToCompletion(ctx context.Context, seq *Sequencer, monitor *TemperatureMonitor, tick time.Duration, progress func(Status)) error {
	workers := goutils.NewBackgroundStoppableWorkers(monitor.Run)
	defer workers.Stop()

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return multierr.Combine(ctx.Err(), seq.Stop(context.Background()))
		case <-ticker.C:
		}

		if err := seq.Tick(ctx); err != nil {
			return err
		}
		st := seq.Status()
		if progress != nil {
			progress(st)
		}
		if st.Phase == PhaseIdle {
			return nil
		}
	}
}
