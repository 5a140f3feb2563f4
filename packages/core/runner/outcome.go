package runner

import (
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/reqx/packages/assertions"
	"github.com/abdul-hamid-achik/reqx/packages/capture"
)

// Classification is the overall result of one request, or of a whole run.
// Higher values take precedence when a run is summarized, except Skipped,
// which never outranks anything.
type Classification int

const (
	Pass Classification = iota
	AssertionFailure
	ExecutionError
	ParseError
	Skipped
)

func (c Classification) String() string {
	switch c {
	case Pass:
		return "pass"
	case AssertionFailure:
		return "assertion-failure"
	case ExecutionError:
		return "execution-error"
	case ParseError:
		return "parse-error"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

func (c Classification) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c Classification) severity() int {
	switch c {
	case ParseError:
		return 3
	case ExecutionError:
		return 2
	case AssertionFailure:
		return 1
	default:
		return 0
	}
}

// Phase tracks how far a request got.
type Phase int

const (
	PhasePending Phase = iota
	PhaseTemplating
	PhaseDispatching
	PhaseAsserting
	PhaseCapturing
	PhaseCompleted
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseTemplating:
		return "templating"
	case PhaseDispatching:
		return "dispatching"
	case PhaseAsserting:
		return "asserting"
	case PhaseCapturing:
		return "capturing"
	case PhaseCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// State is the run-level state machine position.
type State int

const (
	StateLoading State = iota
	StateRunning
	StateReporting
	StateDone
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateRunning:
		return "running"
	case StateReporting:
		return "reporting"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// RequestOutcome is the record of one request in a run. It holds no
// references back into the runner.
type RequestOutcome struct {
	Name           string
	File           string
	Method         string
	URL            string
	Classification Classification
	// Phase is the last phase entered. A failed request stops in the phase
	// that failed.
	Phase      Phase
	StatusCode int
	HasStatus  bool
	Duration   time.Duration
	Attempts   int
	Assertions []*assertions.Result
	Captures   []*capture.Result
	Err        error
	SkipReason string
}

// ErrorMessage returns the execution or parse error text, if any.
func (o *RequestOutcome) ErrorMessage() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// FailedAssertions returns the assertion results that did not pass.
func (o *RequestOutcome) FailedAssertions() []*assertions.Result {
	var failed []*assertions.Result
	for _, a := range o.Assertions {
		if !a.Passed {
			failed = append(failed, a)
		}
	}
	return failed
}

// FailedCaptures returns the capture results that could not be extracted.
func (o *RequestOutcome) FailedCaptures() []*capture.Result {
	var failed []*capture.Result
	for _, c := range o.Captures {
		if !c.OK() {
			failed = append(failed, c)
		}
	}
	return failed
}

type Counts struct {
	Total             int
	Passed            int
	AssertionFailures int
	ExecutionErrors   int
	ParseErrors       int
	Skipped           int
}

// RunReport is the result of one run. It is built fresh for every run.
type RunReport struct {
	Environment    string
	Outcomes       []*RequestOutcome
	Counts         Counts
	Classification Classification
	StartedAt      time.Time
	Duration       time.Duration
	Canceled       bool
}

// Tally recomputes Counts and Classification from Outcomes.
func (r *RunReport) Tally() {
	r.Counts = Counts{Total: len(r.Outcomes)}
	r.Classification = Pass
	for _, o := range r.Outcomes {
		switch o.Classification {
		case Pass:
			r.Counts.Passed++
		case AssertionFailure:
			r.Counts.AssertionFailures++
		case ExecutionError:
			r.Counts.ExecutionErrors++
		case ParseError:
			r.Counts.ParseErrors++
		case Skipped:
			r.Counts.Skipped++
		}
		if o.Classification.severity() > r.Classification.severity() {
			r.Classification = o.Classification
		}
	}
}

// NotReadyError is returned by health checks when the target never passed
// its assertions before the deadline.
type NotReadyError struct {
	Timeout  time.Duration
	Attempts int
	Last     string
}

func (e *NotReadyError) Error() string {
	msg := fmt.Sprintf("target not ready after %s (%d attempts)", e.Timeout, e.Attempts)
	if e.Last != "" {
		msg += ": " + e.Last
	}
	return msg
}
