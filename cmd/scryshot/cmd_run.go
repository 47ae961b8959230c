package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/copyleftdev/scryshot/internal/browser"
	"github.com/copyleftdev/scryshot/internal/report"
	"github.com/copyleftdev/scryshot/internal/runner"
	"github.com/copyleftdev/scryshot/internal/scenario"
)

var errScenariosFailed = errors.New("one or more scenarios failed")

var (
	runBaseURL     string
	runBackend     string
	runArtifactDir string
	runDevice      string
	runShared      bool
	runHeadful     bool
	runTimeout     time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run [scenario-file]",
	Short: "Run a scenario file and write results to the artifact directory",
	Long: `Run every scenario in the file in order. Exit status is 0 when all
scenarios pass or are skipped, 1 when any scenario fails and 2 when the run
itself could not start (invalid scenarios, browser launch failure).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScenarios,
}

func init() {
	runCmd.Flags().StringVar(&runBaseURL, "base-url", "", "Base URL scenarios navigate relative to")
	runCmd.Flags().StringVarP(&runBackend, "backend", "b", "", "Browser backend: "+fmt.Sprint(browser.Names()))
	runCmd.Flags().StringVarP(&runArtifactDir, "artifacts", "o", "", "Directory screenshots and reports are written to")
	runCmd.Flags().StringVarP(&runDevice, "device", "d", "", "Default device profile (list with scryshot devices)")
	runCmd.Flags().BoolVar(&runShared, "shared-context", false, "Run every scenario in one browsing context")
	runCmd.Flags().BoolVar(&runHeadful, "headful", false, "Show the browser window")
	runCmd.Flags().DurationVarP(&runTimeout, "timeout", "t", 0, "Default per-step timeout")
}

func runScenarios(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return &exitError{code: 2, err: err}
	}
	defer logger.Sync()

	path := cfg.Runner.ScenarioFile
	if len(args) == 1 {
		path = args[0]
	}
	file, err := scenario.LoadFile(path)
	if err != nil {
		return &exitError{code: 2, err: err}
	}

	opts := cfg.RunnerOptions()
	baseURL := firstNonEmpty(runBaseURL, file.BaseURL, cfg.Runner.BaseURL)
	opts.DeviceProfile = firstNonEmpty(runDevice, file.Device, opts.DeviceProfile)
	opts.ArtifactDir = firstNonEmpty(runArtifactDir, opts.ArtifactDir)
	if cmd.Flags().Changed("shared-context") {
		opts.SharedContext = runShared
	}
	if runHeadful {
		opts.Headful = true
	}
	if runTimeout > 0 {
		opts.DefaultTimeout = runTimeout
	}
	out := cmd.OutOrStdout()
	opts.OnResult = func(res scenario.RunResult) { printResult(out, res) }

	backendName := firstNonEmpty(runBackend, cfg.Browser.Backend)
	b, err := browser.New(backendName, logger)
	if err != nil {
		return &exitError{code: 2, err: err}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.Runner.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Runner.RunTimeout)
		defer cancel()
	}

	logger.Info("starting run",
		zap.String("file", path),
		zap.String("base_url", baseURL),
		zap.String("backend", backendName),
		zap.Int("scenarios", len(file.Scenarios)),
	)
	results, runErr := runner.New(b, logger).Run(ctx, file.Scenarios, baseURL, opts)

	rep := report.New(uuid.NewString(), baseURL, backendName, results, runErr)
	if reportPath, err := report.Write(opts.ArtifactDir, rep); err != nil {
		logger.Warn("writing report", zap.Error(err))
	} else {
		logger.Info("report written", zap.String("path", reportPath))
	}

	s := rep.Summary
	fmt.Fprintf(out, "\n%d scenarios: %d passed, %d failed, %d skipped\n", s.Total, s.Passed, s.Failed, s.Skipped)

	if runErr != nil {
		return &exitError{code: 2, err: runErr}
	}
	if scenario.AnyFailed(results) {
		return &exitError{code: 1, err: errScenariosFailed}
	}
	return nil
}

func printResult(w io.Writer, res scenario.RunResult) {
	switch res.Status {
	case scenario.StatusPassed:
		fmt.Fprintf(w, "PASS  %s (%s, %d artifacts)\n", res.Scenario, res.Duration().Round(time.Millisecond), len(res.Artifacts))
	case scenario.StatusSkipped:
		fmt.Fprintf(w, "SKIP  %s\n", res.Scenario)
	default:
		fmt.Fprintf(w, "FAIL  %s\n", res.Scenario)
		if res.Failure != nil {
			fmt.Fprintf(w, "      step %d %s [%s]: %s\n", res.Failure.StepIndex, res.Failure.Step, res.Failure.Kind, res.Failure.Reason)
			if res.Failure.Snapshot != "" {
				fmt.Fprintf(w, "      snapshot: %s\n", res.Failure.Snapshot)
			}
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
