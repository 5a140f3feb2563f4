package output

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/reqx/packages/core/runner"
)

// JUnitTestSuites is the root element
type JUnitTestSuites struct {
	XMLName    xml.Name         `xml:"testsuites"`
	Name       string           `xml:"name,attr,omitempty"`
	Tests      int              `xml:"tests,attr"`
	Failures   int              `xml:"failures,attr"`
	Errors     int              `xml:"errors,attr"`
	Skipped    int              `xml:"skipped,attr"`
	Time       float64          `xml:"time,attr"`
	Timestamp  string           `xml:"timestamp,attr,omitempty"`
	TestSuites []JUnitTestSuite `xml:"testsuite"`
}

// JUnitTestSuite groups the requests of one file.
type JUnitTestSuite struct {
	XMLName   xml.Name        `xml:"testsuite"`
	Name      string          `xml:"name,attr"`
	Tests     int             `xml:"tests,attr"`
	Failures  int             `xml:"failures,attr"`
	Errors    int             `xml:"errors,attr"`
	Skipped   int             `xml:"skipped,attr"`
	Time      float64         `xml:"time,attr"`
	Timestamp string          `xml:"timestamp,attr,omitempty"`
	TestCases []JUnitTestCase `xml:"testcase"`
}

// JUnitTestCase is one request.
type JUnitTestCase struct {
	XMLName   xml.Name       `xml:"testcase"`
	Name      string         `xml:"name,attr"`
	ClassName string         `xml:"classname,attr"`
	Time      float64        `xml:"time,attr"`
	Failures  []JUnitFailure `xml:"failure,omitempty"`
	Error     *JUnitError    `xml:"error,omitempty"`
	Skipped   *JUnitSkipped  `xml:"skipped,omitempty"`
	SystemErr string         `xml:"system-err,omitempty"`
}

// JUnitFailure is one failed assertion.
type JUnitFailure struct {
	Message string `xml:"message,attr,omitempty"`
	Type    string `xml:"type,attr,omitempty"`
	Content string `xml:",chardata"`
}

type JUnitError struct {
	Message string `xml:"message,attr,omitempty"`
	Type    string `xml:"type,attr,omitempty"`
	Content string `xml:",chardata"`
}

type JUnitSkipped struct {
	Message string `xml:"message,attr,omitempty"`
}

// JUnitFormatter formats run reports as JUnit XML
type JUnitFormatter struct {
	writer io.Writer
}

type JUnitOption func(*JUnitFormatter)

func NewJUnitFormatter(opts ...JUnitOption) *JUnitFormatter {
	f := &JUnitFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JUnitWithWriter(w io.Writer) JUnitOption {
	return func(f *JUnitFormatter) {
		f.writer = w
	}
}

func (f *JUnitFormatter) Format(report *runner.RunReport) error {
	suites := BuildJUnit(report)
	if _, err := fmt.Fprintf(f.writer, "%s", xml.Header); err != nil {
		return err
	}
	encoder := xml.NewEncoder(f.writer)
	encoder.Indent("", "  ")
	if err := encoder.Encode(suites); err != nil {
		return err
	}
	_, err := fmt.Fprintln(f.writer)
	return err
}

// BuildJUnit groups outcomes into one suite per file, in first-seen order.
func BuildJUnit(report *runner.RunReport) JUnitTestSuites {
	timestamp := report.StartedAt.Format(time.RFC3339)
	index := make(map[string]int)
	var suites []JUnitTestSuite

	for _, o := range report.Outcomes {
		i, ok := index[o.File]
		if !ok {
			i = len(suites)
			index[o.File] = i
			suites = append(suites, JUnitTestSuite{Name: o.File, Timestamp: timestamp})
		}
		suite := &suites[i]

		tc := JUnitTestCase{
			Name:      o.Name,
			ClassName: o.File,
			Time:      o.Duration.Seconds(),
		}

		switch o.Classification {
		case runner.Skipped:
			suite.Skipped++
			tc.Skipped = &JUnitSkipped{Message: o.SkipReason}
		case runner.ParseError, runner.ExecutionError:
			suite.Errors++
			tc.Error = &JUnitError{
				Message: o.ErrorMessage(),
				Type:    o.Classification.String(),
				Content: fmt.Sprintf("%s %s (%s)", o.Method, o.URL, o.Phase),
			}
		case runner.AssertionFailure:
			suite.Failures++
			for _, a := range o.FailedAssertions() {
				tc.Failures = append(tc.Failures, JUnitFailure{
					Message: describeFailure(a),
					Type:    "AssertionError",
					Content: fmt.Sprintf("path: %s\nexpected: %s\nactual: %s\nline: %d\n",
						a.Path, a.Expected.String(), formatValue(a.Actual, 200), a.Line),
				})
			}
		}

		if failed := o.FailedCaptures(); len(failed) > 0 {
			var b strings.Builder
			for _, c := range failed {
				fmt.Fprintf(&b, "warning: %s\n", c.Err.Error())
			}
			tc.SystemErr = b.String()
		}

		suite.Tests++
		suite.Time += o.Duration.Seconds()
		suite.TestCases = append(suite.TestCases, tc)
	}

	root := JUnitTestSuites{
		Name:       "reqx",
		Time:       report.Duration.Seconds(),
		Timestamp:  timestamp,
		TestSuites: suites,
	}
	for _, s := range suites {
		root.Tests += s.Tests
		root.Failures += s.Failures
		root.Errors += s.Errors
		root.Skipped += s.Skipped
	}
	return root
}
