package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
	"pkt.systems/pslog"

	"github.com/abdul-hamid-achik/reqx/packages/assertions"
	"github.com/abdul-hamid-achik/reqx/packages/builtin"
	"github.com/abdul-hamid-achik/reqx/packages/capture"
	"github.com/abdul-hamid-achik/reqx/packages/core/env"
	"github.com/abdul-hamid-achik/reqx/packages/core/parser"
	"github.com/abdul-hamid-achik/reqx/packages/core/templating"
	"github.com/abdul-hamid-achik/reqx/packages/http"
)

const (
	// DefaultConcurrency is the number of workers used when parallel mode is
	// requested without a bound.
	DefaultConcurrency = 5
)

type Runner struct {
	transport      http.Transport
	logger         pslog.Base
	concurrency    int
	bail           bool
	strictCaptures bool
	nameFilter     string
	limiter        *rate.Limiter
	process        map[string]any
	builtins       *builtin.Registry
	schemas        *assertions.SchemaCache
	onState        func(State)
}

type Option func(*Runner)

func WithLogger(logger pslog.Base) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithParallel runs independent requests on up to n workers. n <= 1 keeps
// the strictly sequential default.
func WithParallel(n int) Option {
	return func(r *Runner) {
		r.concurrency = n
	}
}

// WithBail skips every request that has not started once one request does
// not pass.
func WithBail(bail bool) Option {
	return func(r *Runner) {
		r.bail = bail
	}
}

// WithStrictCaptures turns a failed capture into an execution error for the
// request that declared it.
func WithStrictCaptures(strict bool) Option {
	return func(r *Runner) {
		r.strictCaptures = strict
	}
}

// WithNameFilter skips requests whose name does not match pattern. A
// leading or trailing * matches any suffix or prefix.
func WithNameFilter(pattern string) Option {
	return func(r *Runner) {
		r.nameFilter = pattern
	}
}

// WithRate caps dispatches to perSecond requests per second across all
// workers. Zero disables the cap.
func WithRate(perSecond float64) Option {
	return func(r *Runner) {
		if perSecond > 0 {
			r.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithProcessEnv sets the process-environment layer of every run's scope.
func WithProcessEnv(process map[string]any) Option {
	return func(r *Runner) {
		r.process = process
	}
}

func WithBuiltins(reg *builtin.Registry) Option {
	return func(r *Runner) {
		r.builtins = reg
	}
}

// WithStateListener is called on every run-state transition.
func WithStateListener(fn func(State)) Option {
	return func(r *Runner) {
		r.onState = fn
	}
}

func New(transport http.Transport, opts ...Option) *Runner {
	r := &Runner{
		transport: transport,
		schemas:   assertions.NewSchemaCache(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = pslog.New(io.Discard)
	}
	if r.builtins == nil {
		r.builtins = builtin.NewRegistry()
	}
	return r
}

func (r *Runner) setState(s State) {
	r.logger.Debug("run state", "state", s.String())
	if r.onState != nil {
		r.onState(s)
	}
}

// newScope creates the variable scope for one run. Captures never outlive it.
func (r *Runner) newScope(environment *env.Environment) *env.Scope {
	return env.NewScope(environment, r.process, env.WithBuiltins(r.builtins))
}

// Run executes docs in declaration order and returns the report. Parse
// failures become parse-error outcomes; every other document is attempted.
// When ctx is cancelled, requests that have not completed are reported as
// skipped.
func (r *Runner) Run(ctx context.Context, docs []Document, environment *env.Environment) *RunReport {
	report := &RunReport{StartedAt: time.Now()}
	if environment != nil {
		report.Environment = environment.Name
	}

	r.setState(StateLoading)
	outcomes := make([]*RequestOutcome, len(docs))
	for i, doc := range docs {
		if doc.Err != nil {
			outcomes[i] = &RequestOutcome{
				Name:           doc.Name(),
				File:           doc.Path,
				Classification: ParseError,
				Phase:          PhasePending,
				Err:            doc.Err,
			}
			r.logger.Warn("parse error", "file", doc.Path, "error", doc.Err)
			continue
		}
		if !matchesPattern(doc.Name(), r.nameFilter) {
			outcomes[i] = skippedOutcome(doc, "filtered out")
		}
	}

	scope := r.newScope(environment)

	r.setState(StateRunning)
	if r.concurrency > 1 {
		r.runParallel(ctx, docs, outcomes, scope)
	} else {
		r.runSequential(ctx, docs, outcomes, scope)
	}

	r.setState(StateReporting)
	report.Outcomes = outcomes
	report.Canceled = ctx.Err() != nil
	report.Duration = time.Since(report.StartedAt)
	report.Tally()
	r.logger.Info("run finished",
		"total", report.Counts.Total,
		"passed", report.Counts.Passed,
		"failed", report.Counts.AssertionFailures,
		"errors", report.Counts.ExecutionErrors+report.Counts.ParseErrors,
		"skipped", report.Counts.Skipped,
		"duration", report.Duration,
	)
	r.setState(StateDone)
	return report
}

func (r *Runner) runSequential(ctx context.Context, docs []Document, outcomes []*RequestOutcome, scope *env.Scope) {
	bailed := false
	for i, doc := range docs {
		if outcomes[i] != nil {
			continue
		}
		switch {
		case ctx.Err() != nil:
			outcomes[i] = skippedOutcome(doc, "run canceled")
			continue
		case bailed:
			outcomes[i] = skippedOutcome(doc, "bail: an earlier request failed")
			continue
		}

		outcomes[i] = r.execute(ctx, doc, scope)
		if r.bail && outcomes[i].Classification != Pass && outcomes[i].Classification != Skipped {
			bailed = true
		}
	}
}

// runParallel dispatches documents on a bounded worker pool. A document
// starts only after every document it depends on has completed.
func (r *Runner) runParallel(ctx context.Context, docs []Document, outcomes []*RequestOutcome, scope *env.Scope) {
	deps := dependencies(docs)
	done := make([]chan struct{}, len(docs))
	for i := range done {
		done[i] = make(chan struct{})
	}

	var wg sync.WaitGroup
	var bailed atomic.Bool
	sem := make(chan struct{}, r.concurrency)

	for i := range docs {
		if outcomes[i] != nil {
			close(done[i])
			continue
		}

		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			defer close(done[idx])
			doc := docs[idx]

			for _, dep := range deps[idx] {
				select {
				case <-done[dep]:
				case <-ctx.Done():
					outcomes[idx] = skippedOutcome(doc, "run canceled")
					return
				}
			}

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				outcomes[idx] = skippedOutcome(doc, "run canceled")
				return
			}
			defer func() { <-sem }()

			if ctx.Err() != nil {
				outcomes[idx] = skippedOutcome(doc, "run canceled")
				return
			}
			if bailed.Load() {
				outcomes[idx] = skippedOutcome(doc, "bail: an earlier request failed")
				return
			}

			outcome := r.execute(ctx, doc, scope)
			outcomes[idx] = outcome
			if r.bail && outcome.Classification != Pass && outcome.Classification != Skipped {
				bailed.Store(true)
			}
		}(i)
	}

	wg.Wait()
}

// execute drives one request through its phases.
func (r *Runner) execute(ctx context.Context, doc Document, scope *env.Scope) *RequestOutcome {
	def := doc.Definition
	outcome := &RequestOutcome{
		Name:   doc.Name(),
		File:   doc.Path,
		Method: def.Method,
		URL:    def.URL,
		Phase:  PhasePending,
	}
	start := time.Now()
	defer func() {
		outcome.Duration = time.Since(start)
		r.logger.Info("request completed",
			"request", outcome.Name,
			"classification", outcome.Classification.String(),
			"status", outcome.StatusCode,
			"duration", outcome.Duration,
		)
	}()

	r.enter(outcome, PhaseTemplating)
	engine := templating.NewEngine(scope, templating.WithLogger(r.logger))
	req, err := http.BuildRequest(def, engine)
	if err != nil {
		return r.fail(outcome, err)
	}
	outcome.URL = req.URL
	rules, err := resolveRules(def.Assertions, engine)
	if err != nil {
		return r.fail(outcome, err)
	}

	r.enter(outcome, PhaseDispatching)
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			outcome.Classification = Skipped
			outcome.SkipReason = "run canceled"
			return outcome
		}
	}
	resp, err := r.transport.Do(ctx, req)
	if err != nil {
		var te *http.TransportError
		if errors.As(err, &te) {
			outcome.Attempts = te.Attempts
		}
		if te != nil && te.Canceled {
			outcome.Classification = Skipped
			outcome.SkipReason = "run canceled"
			outcome.Err = err
			return outcome
		}
		return r.fail(outcome, err)
	}
	outcome.StatusCode = resp.StatusCode
	outcome.HasStatus = true
	outcome.Attempts = resp.Attempts

	r.enter(outcome, PhaseAsserting)
	outcome.Assertions = assertions.EvaluateAll(resp, rules,
		assertions.WithBaseDir(doc.Dir()),
		assertions.WithSchemaCache(r.schemas),
	)
	outcome.Classification = Pass
	if !assertions.AllPassed(outcome.Assertions) {
		outcome.Classification = AssertionFailure
	}

	// Captures run even when assertions failed.
	r.enter(outcome, PhaseCapturing)
	outcome.Captures = capture.ExtractAll(resp, def.Captures)
	for _, c := range outcome.Captures {
		if c.OK() {
			scope.SetCapture(c.Name, c.Value)
			continue
		}
		r.logger.Warn("capture failed", "request", outcome.Name, "capture", c.Name, "error", c.Err.Error())
		if r.strictCaptures {
			outcome.Classification = ExecutionError
			if outcome.Err == nil {
				outcome.Err = c.Err
			}
		}
	}

	r.enter(outcome, PhaseCompleted)
	return outcome
}

func (r *Runner) enter(outcome *RequestOutcome, phase Phase) {
	outcome.Phase = phase
	r.logger.Debug("request phase", "request", outcome.Name, "phase", phase.String())
}

func (r *Runner) fail(outcome *RequestOutcome, err error) *RequestOutcome {
	outcome.Classification = ExecutionError
	outcome.Err = err
	r.logger.Debug("request failed", "request", outcome.Name, "phase", outcome.Phase.String(), "error", err)
	return outcome
}

// resolveRules materializes templated expectations. The definition's own
// rules are never modified.
func resolveRules(rules []*parser.AssertionRule, engine *templating.Engine) ([]*parser.AssertionRule, error) {
	out := make([]*parser.AssertionRule, len(rules))
	for i, rule := range rules {
		if rule.Expected.Kind != parser.ExpectTemplate {
			out[i] = rule
			continue
		}
		field := fmt.Sprintf("assert %s", rule.Path)
		expected, err := rule.Expected.Resolve(func(tmpl string) (any, error) {
			return engine.ResolveValue(field, tmpl)
		})
		if err != nil {
			return nil, err
		}
		resolved := *rule
		resolved.Expected = expected
		out[i] = &resolved
	}
	return out, nil
}

func skippedOutcome(doc Document, reason string) *RequestOutcome {
	o := &RequestOutcome{
		Name:           doc.Name(),
		File:           doc.Path,
		Classification: Skipped,
		Phase:          PhasePending,
		SkipReason:     reason,
	}
	if doc.Definition != nil {
		o.Method = doc.Definition.Method
		o.URL = doc.Definition.URL
	}
	return o
}

// MatchesName reports whether a request name passes a name filter. The
// pattern may start or end with * to match a suffix, prefix or substring.
func MatchesName(name, pattern string) bool {
	return matchesPattern(name, pattern)
}

func matchesPattern(name, pattern string) bool {
	if pattern == "" {
		return true
	}

	if len(pattern) > 1 && pattern[0] == '*' && pattern[len(pattern)-1] == '*' {
		return containsString(name, pattern[1:len(pattern)-1])
	}

	if pattern[0] == '*' {
		suffix := pattern[1:]
		return len(name) >= len(suffix) && name[len(name)-len(suffix):] == suffix
	}

	if pattern[len(pattern)-1] == '*' {
		prefix := pattern[:len(pattern)-1]
		return len(name) >= len(prefix) && name[:len(prefix)] == prefix
	}

	return name == pattern
}

func containsString(name, substr string) bool {
	for i := 0; i <= len(name)-len(substr); i++ {
		if name[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
