package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"lcdielectrics"
)

var (
	planPath    string
	outputPath  string
	archivePath string
	timeScale   float64
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sweep described by a plan file on simulated instruments",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer cancel()
		return runSweep(ctx)
	},
}

func init() {
	runCmd.Flags().StringVarP(&planPath, "plan", "p", "plan.yaml", "run file with settings, plan and simulation sections")
	runCmd.Flags().StringVarP(&outputPath, "output", "o", "", "results json path (overrides settings.output_path)")
	runCmd.Flags().StringVar(&archivePath, "archive", "", "sweep archive path (overrides settings.archive_path)")
	runCmd.Flags().Float64Var(&timeScale, "time-scale", 0, "hotstage ramp speed-up (overrides simulation.hotstage.time_scale)")
}

func runSweep(ctx context.Context) (err error) {
	logger := newLogger()

	rf, err := lcdielectrics.LoadRunFile(planPath)
	if err != nil {
		return err
	}
	if outputPath != "" {
		rf.Settings.OutputPath = outputPath
	}
	if archivePath != "" {
		rf.Settings.ArchivePath = archivePath
	}
	if timeScale > 0 {
		rf.Simulation.Hotstage.TimeScale = timeScale
	}

	seqCfg, err := rf.Settings.SequencerConfig()
	if err != nil {
		return err
	}
	tick, poll := rf.Settings.Intervals()

	exporters, archive, err := lcdielectrics.BuildExporters(rf.Settings.OutputPath, rf.Settings.ArchivePath)
	if err != nil {
		return err
	}
	if archive != nil {
		defer func() { err = multierr.Append(err, archive.Close()) }()
	}

	hotstage := lcdielectrics.NewSimulatedHotstage("hotstage", &rf.Simulation.Hotstage, logger)
	analyzer := lcdielectrics.NewSimulatedAnalyzer("analyzer", &rf.Simulation.Analyzer, logger)
	monitor := lcdielectrics.NewTemperatureMonitor(hotstage, poll, logger)
	seq := lcdielectrics.NewSequencer(seqCfg, hotstage, analyzer, monitor, logger, exporters...)

	id, err := seq.Start(ctx, rf.Plan)
	if err != nil {
		return err
	}
	logger.Infof("running sweep %s from %s", id, planPath)

	last := ""
	err = lcdielectrics.RunToCompletion(ctx, seq, monitor, tick, func(st lcdielectrics.Status) {
		line := st.String()
		if st.HasReading {
			line = fmt.Sprintf("%-60s T=%.1f (%s)", line, st.Reading.Temperature, st.Reading.Action)
		}
		if st.Phase != lcdielectrics.PhaseStabilisingTemperature && line == last {
			return
		}
		last = line
		fmt.Println(line)
	})
	if err != nil {
		return fmt.Errorf("sweep %s: %w", id, err)
	}

	fmt.Printf("sweep %s finished with %d samples\n", id, seq.Results().Samples())
	return nil
}
