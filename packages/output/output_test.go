package output

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/reqx/packages/assertions"
	"github.com/abdul-hamid-achik/reqx/packages/capture"
	"github.com/abdul-hamid-achik/reqx/packages/core/parser"
	"github.com/abdul-hamid-achik/reqx/packages/core/runner"
)

func sampleReport() *runner.RunReport {
	report := &runner.RunReport{
		Environment: "dev",
		StartedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Duration:    150 * time.Millisecond,
		Outcomes: []*runner.RequestOutcome{
			{
				Name: "health", File: "health.reqx", Method: "GET", URL: "http://api.test/health",
				Classification: runner.Pass, Phase: runner.PhaseCompleted,
				StatusCode: 200, HasStatus: true, Duration: 20 * time.Millisecond, Attempts: 1,
				Assertions: []*assertions.Result{
					{Path: "status", Expected: parser.Literal(int64(200)), Actual: 200, Found: true, Passed: true, Line: 6},
				},
			},
			{
				Name: "users", File: "users.reqx", Method: "GET", URL: "http://api.test/users",
				Classification: runner.AssertionFailure, Phase: runner.PhaseCompleted,
				StatusCode: 200, HasStatus: true, Duration: 40 * time.Millisecond, Attempts: 1,
				Assertions: []*assertions.Result{
					{Path: "status", Expected: parser.Literal(int64(200)), Actual: 200, Found: true, Passed: true, Line: 6},
					{Path: "body[0].id", Expected: parser.PredicateOf(parser.PredExists), Found: false, Passed: false, Message: "path not found", Line: 7},
				},
				Captures: []*capture.Result{
					{Name: "first_id", Path: "body[0].id", Err: &capture.Error{Name: "first_id", Path: "body[0].id", Reason: "path not found"}},
				},
			},
			{
				Name: "me", File: "users.reqx", Method: "GET",
				Classification: runner.ExecutionError, Phase: runner.PhaseTemplating,
				Err: errors.New("unresolved variable access_token in header Authorization"),
			},
			{
				Name: "later", File: "users.reqx",
				Classification: runner.Skipped, SkipReason: "bail: an earlier request failed",
			},
		},
	}
	report.Tally()
	return report
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name     string
		outcomes []runner.Classification
		expected int
	}{
		{"empty", nil, ExitPass},
		{"all pass", []runner.Classification{runner.Pass, runner.Pass}, ExitPass},
		{"skipped only", []runner.Classification{runner.Skipped}, ExitPass},
		{"assertion failure", []runner.Classification{runner.Pass, runner.AssertionFailure}, ExitAssertionFailure},
		{"execution error outranks assertion", []runner.Classification{runner.AssertionFailure, runner.ExecutionError}, ExitExecutionError},
		{"parse error outranks everything", []runner.Classification{runner.ParseError, runner.ExecutionError, runner.AssertionFailure}, ExitParseError},
		{"parse error with passes", []runner.Classification{runner.Pass, runner.ParseError, runner.Pass}, ExitParseError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := &runner.RunReport{}
			for _, c := range tt.outcomes {
				report.Outcomes = append(report.Outcomes, &runner.RequestOutcome{Classification: c})
			}
			report.Tally()
			assert.Equal(t, tt.expected, ExitCode(report))
		})
	}

	assert.Equal(t, ExitPass, ExitCode(nil))
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	for _, name := range Formats() {
		f, err := New(name, &buf, false, true)
		require.NoError(t, err, name)
		assert.NotNil(t, f)
	}

	_, err := New("html", &buf, false, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewJSONFormatter(JSONWithWriter(&buf)).Format(sampleReport()))

	var out JSONOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))

	assert.Equal(t, "dev", out.Environment)
	assert.Equal(t, "execution-error", out.Classification)
	assert.Equal(t, ExitExecutionError, out.ExitCode)
	assert.Equal(t, JSONSummary{Total: 4, Passed: 1, AssertionFailures: 1, ExecutionErrors: 1, Skipped: 1}, out.Summary)
	require.Len(t, out.Requests, 4)

	users := out.Requests[1]
	assert.Equal(t, "assertion-failure", users.Classification)
	require.NotNil(t, users.StatusCode)
	assert.Equal(t, 200, *users.StatusCode)
	require.Len(t, users.Assertions, 2)
	assert.Equal(t, "body[0].id", users.Assertions[1].Path)
	assert.Equal(t, "predicate", users.Assertions[1].Kind)
	assert.Equal(t, "exists", users.Assertions[1].Expected)
	assert.Equal(t, "path not found", users.Assertions[1].Message)
	require.Len(t, users.Captures, 1)
	assert.Equal(t, "path not found", users.Captures[0].Error)

	me := out.Requests[2]
	assert.Nil(t, me.StatusCode)
	assert.Equal(t, "templating", me.Phase)
	assert.Contains(t, me.Error, "access_token")

	require.NotNil(t, out.Latency)
	assert.Equal(t, int64(2), out.Latency.Count)
}

func TestJUnitFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewJUnitFormatter(JUnitWithWriter(&buf)).Format(sampleReport()))
	assert.True(t, strings.HasPrefix(buf.String(), "<?xml"))

	var suites JUnitTestSuites
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &suites))

	assert.Equal(t, 4, suites.Tests)
	assert.Equal(t, 1, suites.Failures)
	assert.Equal(t, 1, suites.Errors)
	assert.Equal(t, 1, suites.Skipped)
	require.Len(t, suites.TestSuites, 2)
	assert.Equal(t, "health.reqx", suites.TestSuites[0].Name)
	assert.Equal(t, 1, suites.TestSuites[0].Tests)

	users := suites.TestSuites[1]
	require.Len(t, users.TestCases, 3)
	require.Len(t, users.TestCases[0].Failures, 1)
	assert.Contains(t, users.TestCases[0].Failures[0].Message, "body[0].id")
	assert.Contains(t, users.TestCases[0].SystemErr, "capture first_id")
	require.NotNil(t, users.TestCases[1].Error)
	assert.Equal(t, "execution-error", users.TestCases[1].Error.Type)
	require.NotNil(t, users.TestCases[2].Skipped)
}

func TestTAPFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewTAPFormatter(TAPWithWriter(&buf)).Format(sampleReport()))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "TAP version 13\n1..6\n"))
	assert.Contains(t, out, "ok 1 - health: status\n")
	assert.Contains(t, out, "ok 2 - users: status\n")
	assert.Contains(t, out, "not ok 3 - users: body[0].id\n")
	assert.Contains(t, out, "  message: path not found\n")
	assert.Contains(t, out, "not ok 4 - users: capture first_id # TODO path not found\n")
	assert.Contains(t, out, "not ok 5 - me\n")
	assert.Contains(t, out, "  severity: execution-error\n")
	assert.Contains(t, out, "ok 6 - later # SKIP bail: an earlier request failed\n")
}

func TestConsoleFormatter(t *testing.T) {
	var buf bytes.Buffer
	f := NewConsoleFormatter(WithWriter(&buf), WithNoColor(true), WithVerbose(true))
	require.NoError(t, f.Format(sampleReport()))
	out := buf.String()

	assert.Contains(t, out, "Running (dev)")
	assert.Contains(t, out, "✓ health")
	assert.Contains(t, out, "✗ users")
	assert.Contains(t, out, "Expected: exists")
	assert.Contains(t, out, "path not found")
	assert.Contains(t, out, "warning: capture first_id")
	assert.Contains(t, out, "x me (templating:")
	assert.Contains(t, out, "- later (bail: an earlier request failed)")
	assert.Contains(t, out, "1 passed, 1 failed, 1 errored, 1 skipped, 4 total")
	assert.Contains(t, out, "Latency:")
}

func TestLatency(t *testing.T) {
	report := &runner.RunReport{}
	assert.Nil(t, Latency(report))

	for _, ms := range []int{10, 20, 30, 40, 1000} {
		report.Outcomes = append(report.Outcomes, &runner.RequestOutcome{
			HasStatus: true,
			Duration:  time.Duration(ms) * time.Millisecond,
		})
	}
	report.Outcomes = append(report.Outcomes, &runner.RequestOutcome{Duration: time.Hour})

	l := Latency(report)
	require.NotNil(t, l)
	assert.Equal(t, int64(5), l.Count)
	assert.InDelta(t, 10, l.MinMs, 0.1)
	assert.InDelta(t, 1000, l.MaxMs, 1)
	assert.InDelta(t, 30, l.P50Ms, 0.1)
}
