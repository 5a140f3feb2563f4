package output

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/abdul-hamid-achik/reqx/packages/core/runner"
)

type ConsoleFormatter struct {
	writer  io.Writer
	verbose bool
	noColor bool
}

type ConsoleOption func(*ConsoleFormatter)

func NewConsoleFormatter(opts ...ConsoleOption) *ConsoleFormatter {
	f := &ConsoleFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.noColor {
		color.NoColor = true
	}
	return f
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.writer = w
	}
}

func WithVerbose(v bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.verbose = v
	}
}

func WithNoColor(nc bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.noColor = nc
	}
}

func (f *ConsoleFormatter) Format(report *runner.RunReport) error {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	magenta := color.New(color.FgMagenta).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	header := "Running"
	if report.Environment != "" {
		header += " (" + report.Environment + ")"
	}
	fmt.Fprintf(f.writer, "\n%s\n\n", bold(header))

	currentFile := ""
	for _, o := range report.Outcomes {
		if o.File != currentFile {
			currentFile = o.File
			fmt.Fprintf(f.writer, "%s\n", bold(o.File))
		}

		switch o.Classification {
		case runner.Skipped:
			fmt.Fprintf(f.writer, "  %s %s", yellow("-"), o.Name)
			if o.SkipReason != "" && o.SkipReason != "filtered out" {
				fmt.Fprintf(f.writer, " (%s)", o.SkipReason)
			}
			fmt.Fprintf(f.writer, "\n")
			continue
		case runner.ParseError:
			fmt.Fprintf(f.writer, "  %s %s %s\n", magenta("!"), o.Name, magenta(o.ErrorMessage()))
			continue
		case runner.ExecutionError:
			fmt.Fprintf(f.writer, "  %s %s %s\n", red("x"), o.Name, red(fmt.Sprintf("(%s: %s)", o.Phase, o.ErrorMessage())))
		case runner.AssertionFailure:
			fmt.Fprintf(f.writer, "  %s %s %s\n", red("✗"), o.Name, cyan(fmt.Sprintf("(%dms)", o.Duration.Milliseconds())))
		default:
			fmt.Fprintf(f.writer, "  %s %s %s\n", green("✓"), o.Name, cyan(fmt.Sprintf("(%dms)", o.Duration.Milliseconds())))
		}

		if f.verbose {
			fmt.Fprintf(f.writer, "    %s %s\n", o.Method, o.URL)
			if o.HasStatus {
				fmt.Fprintf(f.writer, "    Status: %d\n", o.StatusCode)
			}
			if o.Attempts > 1 {
				fmt.Fprintf(f.writer, "    Attempts: %d\n", o.Attempts)
			}
		}

		for _, a := range o.FailedAssertions() {
			fmt.Fprintf(f.writer, "    %s %s (line %d)\n", red("→"), a.Path, a.Line)
			fmt.Fprintf(f.writer, "      Expected: %s\n", a.Expected.String())
			if a.Found {
				fmt.Fprintf(f.writer, "      Actual:   %s\n", formatValue(a.Actual, 100))
			}
			if a.Message != "" {
				fmt.Fprintf(f.writer, "      %s\n", a.Message)
			}
		}

		for _, c := range o.FailedCaptures() {
			fmt.Fprintf(f.writer, "    %s %s\n", yellow("warning:"), c.Err.Error())
		}

		if f.verbose {
			for _, c := range o.Captures {
				if c.OK() {
					fmt.Fprintf(f.writer, "    %s = %s\n", c.Name, formatValue(c.Value, 100))
				}
			}
		}
	}

	c := report.Counts
	fmt.Fprintf(f.writer, "\n")
	fmt.Fprintf(f.writer, "Requests: ")
	if c.Passed > 0 {
		fmt.Fprintf(f.writer, "%s, ", green(fmt.Sprintf("%d passed", c.Passed)))
	}
	if c.AssertionFailures > 0 {
		fmt.Fprintf(f.writer, "%s, ", red(fmt.Sprintf("%d failed", c.AssertionFailures)))
	}
	if c.ExecutionErrors > 0 {
		fmt.Fprintf(f.writer, "%s, ", red(fmt.Sprintf("%d errored", c.ExecutionErrors)))
	}
	if c.ParseErrors > 0 {
		fmt.Fprintf(f.writer, "%s, ", magenta(fmt.Sprintf("%d unparsable", c.ParseErrors)))
	}
	if c.Skipped > 0 {
		fmt.Fprintf(f.writer, "%s, ", yellow(fmt.Sprintf("%d skipped", c.Skipped)))
	}
	fmt.Fprintf(f.writer, "%d total\n", c.Total)
	fmt.Fprintf(f.writer, "Time:     %dms\n", report.Duration.Milliseconds())
	if l := Latency(report); l != nil && f.verbose {
		fmt.Fprintf(f.writer, "Latency:  p50 %.1fms, p95 %.1fms, p99 %.1fms\n", l.P50Ms, l.P95Ms, l.P99Ms)
	}
	if report.Canceled {
		fmt.Fprintf(f.writer, "%s\n", yellow("Run canceled"))
	}
	fmt.Fprintf(f.writer, "\n")
	return nil
}

// FormatError prints an error that prevented a run from starting.
func (f *ConsoleFormatter) FormatError(err error) {
	red := color.New(color.FgRed).SprintFunc()
	fmt.Fprintf(f.writer, "%s %v\n", red("Error:"), err)
}

func (f *ConsoleFormatter) FormatHeader(version string) {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(f.writer, "%s %s\n", bold("reqx"), version)
}
