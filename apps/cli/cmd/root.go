package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"pkt.systems/pslog"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "reqx",
	Short: "Declarative API tests for CI",
	Long: `reqx runs HTTP requests described in .reqx files, checks the
responses against declarative assertions and exits with a code CI can act on:

  0  all requests passed
  1  an assertion failed
  2  a request could not be executed
  3  a request file could not be parsed
  4  the configuration is invalid`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger, err := loggerFromFlags(cmd, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		cmd.SetContext(pslog.ContextWithLogger(cmd.Context(), logger))
		return nil
	},
}

func Execute(v, bt string) {
	version = v
	buildTime = bt
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	err := rootCmd.Execute()
	if err != nil {
		var exitErr *ExitError
		if !errors.As(err, &exitErr) || exitErr.Err != nil {
			fmt.Fprintln(stderr, "Error:", err)
		}
	}
	return exitCode(err)
}

func init() {
	addLoggingFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
}

func addLoggingFlags(flags *pflag.FlagSet) {
	flags.String("log-level", getEnvString("REQX_LOG_LEVEL", "warn"), "Log level (trace|debug|info|warn|error) (env: REQX_LOG_LEVEL)")
	flags.Bool("structured", getEnvBool("REQX_STRUCTURED_LOGS", false), "Emit structured JSON logs (env: REQX_STRUCTURED_LOGS)")
	flags.Bool("log-caller", false, "Include caller function name on each log line")
}

// loggerFromFlags builds the logger from the persistent logging flags. An
// explicit --log-level wins over LOG_LEVEL, which wins over the default.
func loggerFromFlags(cmd *cobra.Command, w io.Writer) (pslog.Logger, error) {
	structured, _ := cmd.Flags().GetBool("structured")
	level, _ := cmd.Flags().GetString("log-level")
	caller, _ := cmd.Flags().GetBool("log-caller")
	levelSet := cmd.Flags().Changed("log-level")

	opts := pslog.Options{CallerKeyval: caller}
	if structured {
		opts.Mode = pslog.ModeStructured
	}
	logger := pslog.NewWithOptions(w, opts)

	if levelSet {
		lvl, ok := pslog.ParseLevel(level)
		if !ok {
			return nil, fmt.Errorf("unknown log level %q", level)
		}
		return logger.LogLevel(lvl), nil
	}
	if lvl, ok := pslog.LevelFromEnv("LOG_LEVEL"); ok {
		return logger.LogLevel(lvl), nil
	}
	if lvl, ok := pslog.ParseLevel(level); ok {
		return logger.LogLevel(lvl), nil
	}
	return logger.LogLevel(pslog.InfoLevel), nil
}

// loggerFromCmd returns the logger stored by PersistentPreRunE.
func loggerFromCmd(cmd *cobra.Command) pslog.Logger {
	if logger := pslog.LoggerFromContext(cmd.Context()); logger != nil {
		return logger
	}
	logger, err := loggerFromFlags(cmd, cmd.ErrOrStderr())
	if err != nil {
		return pslog.NewWithOptions(cmd.ErrOrStderr(), pslog.Options{MinLevel: pslog.InfoLevel})
	}
	return logger
}
