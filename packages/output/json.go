package output

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/abdul-hamid-achik/reqx/packages/core/runner"
)

// JSONOutput is the serialized form of a run report.
type JSONOutput struct {
	Environment    string          `json:"environment,omitempty"`
	Classification string          `json:"classification"`
	ExitCode       int             `json:"exitCode"`
	Summary        JSONSummary     `json:"summary"`
	Requests       []JSONRequest   `json:"requests"`
	Latency        *LatencySummary `json:"latency,omitempty"`
	Duration       float64         `json:"duration"`
	StartedAt      string          `json:"startedAt"`
	Canceled       bool            `json:"canceled,omitempty"`
}

type JSONSummary struct {
	Total             int `json:"total"`
	Passed            int `json:"passed"`
	AssertionFailures int `json:"assertionFailures"`
	ExecutionErrors   int `json:"executionErrors"`
	ParseErrors       int `json:"parseErrors"`
	Skipped           int `json:"skipped"`
}

// JSONRequest is one request outcome.
type JSONRequest struct {
	Name           string          `json:"name"`
	File           string          `json:"file"`
	Method         string          `json:"method,omitempty"`
	URL            string          `json:"url,omitempty"`
	Classification string          `json:"classification"`
	Phase          string          `json:"phase"`
	StatusCode     *int            `json:"statusCode,omitempty"`
	Duration       float64         `json:"duration"`
	Attempts       int             `json:"attempts,omitempty"`
	Error          string          `json:"error,omitempty"`
	SkipReason     string          `json:"skipReason,omitempty"`
	Assertions     []JSONAssertion `json:"assertions,omitempty"`
	Captures       []JSONCapture   `json:"captures,omitempty"`
}

type JSONAssertion struct {
	Path     string `json:"path"`
	Kind     string `json:"kind"`
	Expected string `json:"expected"`
	Actual   any    `json:"actual,omitempty"`
	Found    bool   `json:"found"`
	Passed   bool   `json:"passed"`
	Message  string `json:"message,omitempty"`
	Line     int    `json:"line,omitempty"`
}

type JSONCapture struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
	Error string `json:"error,omitempty"`
}

// JSONFormatter formats run reports as indented JSON.
type JSONFormatter struct {
	writer io.Writer
}

type JSONOption func(*JSONFormatter)

func NewJSONFormatter(opts ...JSONOption) *JSONFormatter {
	f := &JSONFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JSONWithWriter(w io.Writer) JSONOption {
	return func(f *JSONFormatter) {
		f.writer = w
	}
}

func (f *JSONFormatter) Format(report *runner.RunReport) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(BuildJSON(report))
}

// BuildJSON converts a report into its serialized shape.
func BuildJSON(report *runner.RunReport) JSONOutput {
	out := JSONOutput{
		Environment:    report.Environment,
		Classification: report.Classification.String(),
		ExitCode:       ExitCode(report),
		Summary: JSONSummary{
			Total:             report.Counts.Total,
			Passed:            report.Counts.Passed,
			AssertionFailures: report.Counts.AssertionFailures,
			ExecutionErrors:   report.Counts.ExecutionErrors,
			ParseErrors:       report.Counts.ParseErrors,
			Skipped:           report.Counts.Skipped,
		},
		Requests:  make([]JSONRequest, 0, len(report.Outcomes)),
		Latency:   Latency(report),
		Duration:  float64(report.Duration.Milliseconds()),
		StartedAt: report.StartedAt.Format(time.RFC3339),
		Canceled:  report.Canceled,
	}

	for _, o := range report.Outcomes {
		r := JSONRequest{
			Name:           o.Name,
			File:           o.File,
			Method:         o.Method,
			URL:            o.URL,
			Classification: o.Classification.String(),
			Phase:          o.Phase.String(),
			Duration:       float64(o.Duration.Milliseconds()),
			Attempts:       o.Attempts,
			Error:          o.ErrorMessage(),
		}
		if o.SkipReason != "" && o.SkipReason != "filtered out" {
			r.SkipReason = o.SkipReason
		}
		if o.HasStatus {
			status := o.StatusCode
			r.StatusCode = &status
		}

		for _, a := range o.Assertions {
			r.Assertions = append(r.Assertions, JSONAssertion{
				Path:     a.Path,
				Kind:     a.Expected.Kind.String(),
				Expected: a.Expected.String(),
				Actual:   a.Actual,
				Found:    a.Found,
				Passed:   a.Passed,
				Message:  a.Message,
				Line:     a.Line,
			})
		}

		for _, c := range o.Captures {
			jc := JSONCapture{Name: c.Name, Path: c.Path, Value: c.Value}
			if c.Err != nil {
				jc.Error = c.Err.Reason
			}
			r.Captures = append(r.Captures, jc)
		}

		out.Requests = append(out.Requests, r)
	}
	return out
}
