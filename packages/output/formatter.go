package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/abdul-hamid-achik/reqx/packages/assertions"
	"github.com/abdul-hamid-achik/reqx/packages/core/parser"
	"github.com/abdul-hamid-achik/reqx/packages/core/runner"
)

// Exit codes. ExitConfigError is never derived from a report; the CLI
// returns it when a run could not be configured.
const (
	ExitPass             = 0
	ExitAssertionFailure = 1
	ExitExecutionError   = 2
	ExitParseError       = 3
	ExitConfigError      = 4
)

// Formats accepted by New.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
	FormatJUnit   = "junit"
	FormatTAP     = "tap"
)

// Formatter renders a complete run report.
type Formatter interface {
	Format(report *runner.RunReport) error
}

// Formats lists the accepted format names.
func Formats() []string {
	return []string{FormatConsole, FormatJSON, FormatJUnit, FormatTAP}
}

// New returns the formatter for the named format writing to w.
func New(format string, w io.Writer, verbose, noColor bool) (Formatter, error) {
	switch strings.ToLower(format) {
	case FormatConsole, "":
		return NewConsoleFormatter(WithWriter(w), WithVerbose(verbose), WithNoColor(noColor)), nil
	case FormatJSON:
		return NewJSONFormatter(JSONWithWriter(w)), nil
	case FormatJUnit:
		return NewJUnitFormatter(JUnitWithWriter(w)), nil
	case FormatTAP:
		return NewTAPFormatter(TAPWithWriter(w)), nil
	default:
		return nil, fmt.Errorf("unknown output format %q (want one of %s)", format, strings.Join(Formats(), ", "))
	}
}

// ExitCode returns the process exit code for a finished run: parse errors
// outrank execution errors, which outrank assertion failures. Skipped
// requests do not count.
func ExitCode(report *runner.RunReport) int {
	if report == nil {
		return ExitPass
	}
	switch report.Classification {
	case runner.ParseError:
		return ExitParseError
	case runner.ExecutionError:
		return ExitExecutionError
	case runner.AssertionFailure:
		return ExitAssertionFailure
	default:
		return ExitPass
	}
}

// formatValue renders a value for display, summarizing large ones.
func formatValue(v any, maxLen int) string {
	switch val := v.(type) {
	case []any:
		return fmt.Sprintf("[array with %d items]", len(val))
	case map[string]any:
		return fmt.Sprintf("{object with %d keys}", len(val))
	case map[string]string:
		return fmt.Sprintf("{headers with %d entries}", len(val))
	}
	str := parser.FormatValue(v)
	if len(str) > maxLen {
		return str[:maxLen] + "..."
	}
	return str
}

// describeFailure is the one-line text for a failed assertion.
func describeFailure(a *assertions.Result) string {
	if a.Message != "" {
		return fmt.Sprintf("%s: %s", a.Path, a.Message)
	}
	return fmt.Sprintf("%s: expected %s, got %s", a.Path, a.Expected.String(), formatValue(a.Actual, 100))
}
