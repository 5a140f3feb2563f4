package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/reqx/packages/core/config"
	"github.com/abdul-hamid-achik/reqx/packages/core/runner"
)

var healthCmd = &cobra.Command{
	Use:   "health <file>",
	Short: "Poll a request until its assertions pass",
	Long: `Send the request in a .reqx file repeatedly until all of its assertions
pass or the timeout elapses. Useful for waiting on a service in CI before
running the real suite.

Exits 0 once the target is ready and 2 if it never became ready.

Examples:
  reqx health health.reqx --env dev
  reqx health health.reqx --timeout 60s --interval 2s`,
	Args: cobra.ExactArgs(1),
	RunE: healthCommand,
}

var (
	healthIntervalFlag       time.Duration
	healthTimeoutFlag        time.Duration
	healthAttemptTimeoutFlag time.Duration
)

func init() {
	addEnvironmentFlags(healthCmd)
	addTransportFlags(healthCmd)
	healthCmd.Flags().DurationVar(&healthIntervalFlag, "interval", runner.DefaultHealthInterval, "Pause between attempts")
	healthCmd.Flags().DurationVar(&healthTimeoutFlag, "timeout", runner.DefaultHealthTimeout, "Give up after this long")
	healthCmd.Flags().DurationVar(&healthAttemptTimeoutFlag, "attempt-timeout", 0, "Timeout for each attempt (default: the request's own timeout)")
}

func healthCommand(cmd *cobra.Command, args []string) error {
	logger := loggerFromCmd(cmd)
	if healthIntervalFlag <= 0 || healthTimeoutFlag <= 0 || healthAttemptTimeoutFlag < 0 {
		return config.Errorf("", "--interval and --timeout must be positive")
	}

	s, err := newSession(logger)
	if err != nil {
		return err
	}

	docs := runner.LoadDocuments(args)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := runner.New(s.transport, runner.WithLogger(logger), runner.WithProcessEnv(s.process))
	outcome := r.HealthCheck(ctx, docs[0], s.environment, runner.HealthOptions{
		Interval:       healthIntervalFlag,
		Timeout:        healthTimeoutFlag,
		AttemptTimeout: healthAttemptTimeoutFlag,
	})

	out := cmd.OutOrStdout()
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	switch outcome.Classification {
	case runner.Pass:
		fmt.Fprintf(out, "%s %s ready after %d attempt(s) in %dms\n", green("✓"), outcome.Name, outcome.Attempts, outcome.Duration.Milliseconds())
		return nil
	case runner.ParseError:
		fmt.Fprintf(out, "%s %s\n", red("!"), outcome.ErrorMessage())
		return exitWith(ExitParseError)
	case runner.Skipped:
		fmt.Fprintf(out, "%s %s health check canceled\n", red("x"), outcome.Name)
		return exitWith(ExitExecutionError)
	default:
		fmt.Fprintf(out, "%s %s not ready: %s\n", red("x"), outcome.Name, outcome.ErrorMessage())
		for _, a := range outcome.FailedAssertions() {
			fmt.Fprintf(out, "    → %s: %s\n", a.Path, a.Message)
		}
		return exitWith(ExitExecutionError)
	}
}
