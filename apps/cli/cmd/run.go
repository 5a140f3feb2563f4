package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"pkt.systems/pslog"

	"github.com/abdul-hamid-achik/reqx/packages/core/config"
	"github.com/abdul-hamid-achik/reqx/packages/core/parser"
	"github.com/abdul-hamid-achik/reqx/packages/core/runner"
	"github.com/abdul-hamid-achik/reqx/packages/history"
	"github.com/abdul-hamid-achik/reqx/packages/output"
)

// FileExtension is the extension of request documents.
const FileExtension = ".reqx"

var runCmd = &cobra.Command{
	Use:   "run <file|directory>...",
	Short: "Run the requests in .reqx files",
	Long: `Run the requests defined in .reqx files, in declaration order.

Files given on the command line run in the order given; directories are
walked in lexical order. Variables captured by one request are available to
every later request in the same run.

Examples:
  reqx run health.reqx
  reqx run ./api --env staging
  reqx run ./api --output junit --output-file report.xml
  reqx run ./api --parallel 4 --bail
  reqx run login.reqx me.reqx --var user=alice`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCommand,
}

var (
	outputFlag         string
	outputFileFlag     string
	noColorFlag        bool
	verboseFlag        bool
	bailFlag           bool
	parallelFlag       int
	rateFlag           float64
	strictCapturesFlag bool
	dryRunFlag         bool
	filterFlag         string
	historyFlag        string
)

// DefaultHistoryPath is used when --history is given without a value.
var DefaultHistoryPath = filepath.Join(config.DirName, "history.db")

func init() {
	addRunFlags(runCmd)
}

func addRunFlags(cmd *cobra.Command) {
	addEnvironmentFlags(cmd)
	addTransportFlags(cmd)
	cmd.Flags().StringVar(&timeoutFlag, "timeout", getEnvString("REQX_TIMEOUT", ""), "Request timeout for requests that set none, e.g. 30s (env: REQX_TIMEOUT)")

	// Output flags
	cmd.Flags().StringVarP(&outputFlag, "output", "o", getEnvString("REQX_OUTPUT", ""), "Output format: console, json, junit, tap (env: REQX_OUTPUT)")
	cmd.Flags().StringVar(&outputFileFlag, "output-file", getEnvString("REQX_OUTPUT_FILE", ""), "Write the report to a file instead of stdout (env: REQX_OUTPUT_FILE)")
	cmd.Flags().BoolVar(&noColorFlag, "no-color", getEnvBool("REQX_NO_COLOR", false), "Disable colored output (env: REQX_NO_COLOR)")
	cmd.Flags().BoolVarP(&verboseFlag, "verbose", "v", false, "Show request lines, status codes, captures and latency")

	// Execution flags
	cmd.Flags().BoolVar(&bailFlag, "bail", getEnvBool("REQX_BAIL", false), "Skip the remaining requests after the first failure (env: REQX_BAIL)")
	cmd.Flags().IntVarP(&parallelFlag, "parallel", "p", getEnvInt("REQX_PARALLEL", 0), "Run up to N independent requests at once (env: REQX_PARALLEL)")
	cmd.Flags().Float64Var(&rateFlag, "rate", getEnvFloat("REQX_RATE", 0), "Send at most N requests per second (env: REQX_RATE)")
	cmd.Flags().BoolVar(&strictCapturesFlag, "strict-captures", getEnvBool("REQX_STRICT_CAPTURES", false), "Treat a failed capture as an execution error (env: REQX_STRICT_CAPTURES)")
	cmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "Parse and show what would run without sending anything")
	cmd.Flags().StringVarP(&filterFlag, "filter", "n", "", "Run only requests whose name matches the pattern (* wildcards)")
	cmd.Flags().StringVar(&historyFlag, "history", getEnvString("REQX_HISTORY", ""), "Record the run in a SQLite history database (env: REQX_HISTORY)")
	cmd.Flags().Lookup("history").NoOptDefVal = DefaultHistoryPath
}

func runCommand(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code, err := executeRun(ctx, cmd, args, loggerFromCmd(cmd))
	if err != nil {
		return err
	}
	return exitWith(code)
}

// executeRun performs one complete run and returns its exit code. A
// returned error means the run could not be configured; nothing was sent.
func executeRun(ctx context.Context, cmd *cobra.Command, args []string, logger pslog.Logger) (int, error) {
	files, err := collectFiles(args)
	if err != nil {
		return ExitConfigError, err
	}
	if len(files) == 0 {
		return ExitConfigError, config.Errorf("", "no %s files found in %s", FileExtension, strings.Join(args, ", "))
	}

	s, err := newSession(logger)
	if err != nil {
		return ExitConfigError, err
	}

	docs := runner.LoadDocuments(files)
	if dryRunFlag {
		return dryRun(cmd.OutOrStdout(), s, docs), nil
	}

	format := outputFlag
	if format == "" {
		format = s.cfg.Output.DefaultFormat
	}
	w, closeOutput, err := openOutput(cmd.OutOrStdout())
	if err != nil {
		return ExitConfigError, err
	}
	defer closeOutput()
	formatter, err := output.New(format, w, verboseFlag, noColorFlag || !s.cfg.GetColors() || outputFileFlag != "")
	if err != nil {
		return ExitConfigError, config.Errorf("", "%v", err)
	}

	parallel := s.cfg.Execution.Parallel
	if parallelFlag > 0 {
		parallel = parallelFlag
	}
	if rateFlag < 0 {
		return ExitConfigError, config.Errorf("", "--rate must not be negative")
	}

	r := runner.New(s.transport,
		runner.WithLogger(logger),
		runner.WithParallel(parallel),
		runner.WithBail(bailFlag || s.cfg.Execution.Bail),
		runner.WithStrictCaptures(strictCapturesFlag || s.cfg.Execution.StrictCaptures),
		runner.WithNameFilter(filterFlag),
		runner.WithRate(rateFlag),
		runner.WithProcessEnv(s.process),
	)

	report := r.Run(ctx, docs, s.environment)
	code := output.ExitCode(report)

	if err := formatter.Format(report); err != nil {
		logger.Error("writing report failed", "error", err)
	}

	if historyFlag != "" {
		recordHistory(ctx, historyFlag, report, history.Meta{ExitCode: code, Files: files}, logger)
	}
	return code, nil
}

// openOutput returns the report destination. The returned close function is
// always safe to call.
func openOutput(stdout io.Writer) (io.Writer, func(), error) {
	if outputFileFlag == "" {
		return stdout, func() {}, nil
	}
	if dir := filepath.Dir(outputFileFlag); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, config.Errorf(outputFileFlag, "cannot create output directory: %v", err)
		}
	}
	f, err := os.Create(outputFileFlag)
	if err != nil {
		return nil, nil, config.Errorf(outputFileFlag, "cannot create output file: %v", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// dryRun prints what would be sent and reports parse errors.
func dryRun(w io.Writer, s *session, docs []runner.Document) int {
	fmt.Fprintf(w, "Dry run: %s\n\n", describeSession(s))
	for _, d := range docs {
		if d.Err != nil {
			fmt.Fprintf(w, "Parse error: %v\n", d.Err)
			continue
		}
		if !runner.MatchesName(d.Name(), filterFlag) {
			continue
		}
		fmt.Fprintf(w, "Would run: %s (%s %s)\n", d.Name(), d.Definition.Method, d.Definition.URL)
		if verboseFlag {
			for _, line := range strings.Split(strings.TrimRight(parser.Format(d.Definition), "\n"), "\n") {
				fmt.Fprintf(w, "    %s\n", line)
			}
		}
	}
	if runner.HasParseErrors(docs) {
		return ExitParseError
	}
	return ExitSuccess
}

func recordHistory(ctx context.Context, path string, report *runner.RunReport, meta history.Meta, logger pslog.Base) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Warn("history not recorded", "path", path, "error", err)
			return
		}
	}
	store, err := history.Open(path)
	if err != nil {
		logger.Warn("history not recorded", "path", path, "error", err)
		return
	}
	defer store.Close()

	// A cancelled run is still worth recording.
	id, err := store.Record(context.WithoutCancel(ctx), report, meta)
	if err != nil {
		logger.Warn("history not recorded", "path", path, "error", err)
		return
	}
	logger.Debug("run recorded", "path", path, "run_id", id)
}

// collectFiles expands args into request files. Files are kept in the order
// given; directories are walked in lexical order.
func collectFiles(args []string) ([]string, error) {
	var files []string
	seen := make(map[string]bool)

	add := func(path string) {
		if !seen[path] {
			seen[path] = true
			files = append(files, path)
		}
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, config.Errorf("", "cannot access %s: %v", arg, err)
		}

		if info.IsDir() {
			err := filepath.Walk(arg, func(path string, info os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if info.IsDir() && path != arg && strings.HasPrefix(info.Name(), ".") {
					return filepath.SkipDir
				}
				if !info.IsDir() && isRequestFile(path) {
					add(path)
				}
				return nil
			})
			if err != nil {
				return nil, config.Errorf("", "cannot walk %s: %v", arg, err)
			}
		} else if isRequestFile(arg) {
			add(arg)
		}
	}

	return files, nil
}

func isRequestFile(path string) bool {
	return filepath.Ext(path) == FileExtension
}
