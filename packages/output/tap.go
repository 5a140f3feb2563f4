package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/abdul-hamid-achik/reqx/packages/core/runner"
)

// TAPFormatter formats run reports as TAP version 13. Each assertion gets
// its own test line; requests that never reached assertions get one line
// for the request itself.
type TAPFormatter struct {
	writer io.Writer
}

type tapLine struct {
	ok         bool
	desc       string
	directive  string
	diagnostic map[string]any
}

type TAPOption func(*TAPFormatter)

func NewTAPFormatter(opts ...TAPOption) *TAPFormatter {
	f := &TAPFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func TAPWithWriter(w io.Writer) TAPOption {
	return func(f *TAPFormatter) {
		f.writer = w
	}
}

func (f *TAPFormatter) Format(report *runner.RunReport) error {
	lines := tapLines(report)

	var b strings.Builder
	b.WriteString("TAP version 13\n")
	fmt.Fprintf(&b, "1..%d\n", len(lines))

	for i, l := range lines {
		status := "ok"
		if !l.ok {
			status = "not ok"
		}
		fmt.Fprintf(&b, "%s %d - %s", status, i+1, l.desc)
		if l.directive != "" {
			fmt.Fprintf(&b, " # %s", l.directive)
		}
		b.WriteString("\n")

		if l.diagnostic != nil {
			block, err := yaml.Marshal(l.diagnostic)
			if err != nil {
				return fmt.Errorf("encoding diagnostic for %q: %w", l.desc, err)
			}
			b.WriteString("  ---\n")
			for _, line := range strings.Split(strings.TrimRight(string(block), "\n"), "\n") {
				b.WriteString("  " + line + "\n")
			}
			b.WriteString("  ...\n")
		}
	}

	_, err := io.WriteString(f.writer, b.String())
	return err
}

func tapLines(report *runner.RunReport) []tapLine {
	var lines []tapLine
	for _, o := range report.Outcomes {
		switch o.Classification {
		case runner.Skipped:
			reason := o.SkipReason
			if reason == "" {
				reason = "skipped"
			}
			lines = append(lines, tapLine{ok: true, desc: o.Name, directive: "SKIP " + reason})
			continue
		case runner.ParseError, runner.ExecutionError:
			lines = append(lines, tapLine{
				desc: o.Name,
				diagnostic: map[string]any{
					"message":  o.ErrorMessage(),
					"severity": o.Classification.String(),
					"phase":    o.Phase.String(),
					"file":     o.File,
				},
			})
			continue
		}

		if len(o.Assertions) == 0 {
			lines = append(lines, tapLine{ok: true, desc: o.Name})
		}
		for _, a := range o.Assertions {
			l := tapLine{ok: a.Passed, desc: o.Name + ": " + a.Path}
			if !a.Passed {
				d := map[string]any{
					"message":  a.Message,
					"severity": "fail",
					"expected": a.Expected.String(),
					"line":     a.Line,
				}
				if a.Found {
					d["actual"] = a.Actual
				}
				l.diagnostic = d
			}
			lines = append(lines, l)
		}
		for _, c := range o.FailedCaptures() {
			lines = append(lines, tapLine{
				desc:      o.Name + ": capture " + c.Name,
				directive: "TODO " + c.Err.Reason,
			})
		}
	}
	return lines
}
