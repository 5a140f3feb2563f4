package assertions

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"net/mail"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"

	"github.com/abdul-hamid-achik/reqx/packages/core/parser"
	"github.com/abdul-hamid-achik/reqx/packages/core/templating"
	"github.com/abdul-hamid-achik/reqx/packages/http"
)

// ReasonPathNotFound is the failure message for value comparisons whose path
// is absent from the response.
const ReasonPathNotFound = "path not found"

// Subject is what rules are evaluated against. *http.Response implements it.
type Subject interface {
	Lookup(p *parser.Path) (any, bool)
}

var _ Subject = (*http.Response)(nil)

type Result struct {
	Path     string
	Expected parser.Expected
	Actual   any
	Found    bool
	Passed   bool
	Message  string
	Line     int
}

type Evaluator struct {
	subject Subject
	baseDir string
	schemas *SchemaCache
}

// EvaluatorOption is a functional option for configuring an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithBaseDir sets the directory schema: paths are resolved against,
// normally the directory of the request document.
func WithBaseDir(dir string) EvaluatorOption {
	return func(e *Evaluator) {
		e.baseDir = dir
	}
}

// WithSchemaCache shares compiled schemas between evaluators.
func WithSchemaCache(c *SchemaCache) EvaluatorOption {
	return func(e *Evaluator) {
		e.schemas = c
	}
}

func NewEvaluator(subject Subject, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{subject: subject}
	for _, opt := range opts {
		opt(e)
	}
	if e.schemas == nil {
		e.schemas = NewSchemaCache()
	}
	return e
}

func (e *Evaluator) Evaluate(rule *parser.AssertionRule) *Result {
	result := &Result{
		Path:     rule.Path.String(),
		Expected: rule.Expected,
		Line:     rule.Line,
	}

	actual, found := e.subject.Lookup(rule.Path)
	result.Actual = actual
	result.Found = found

	passed, msg := e.match(rule.Expected, actual, found)
	result.Passed = passed
	result.Message = msg
	return result
}

func (e *Evaluator) match(expected parser.Expected, actual any, found bool) (bool, string) {
	switch expected.Kind {
	case parser.ExpectLiteral:
		if !found {
			return false, ReasonPathNotFound
		}
		if expected.Loose {
			return looseEquals(actual, expected.Value)
		}
		return strictEquals(actual, expected.Value)
	case parser.ExpectTemplate:
		if !expected.Resolved() {
			return false, fmt.Sprintf("template %s was not resolved", expected.Template)
		}
		if !found {
			return false, ReasonPathNotFound
		}
		if expected.Loose {
			return looseEquals(actual, expected.Value)
		}
		return strictEquals(actual, expected.Value)
	case parser.ExpectPredicate:
		return checkPredicate(expected.Predicate, actual, found)
	case parser.ExpectSchema:
		if !found {
			return false, ReasonPathNotFound
		}
		return e.schema(actual, expected.Schema)
	default:
		return false, fmt.Sprintf("unknown expectation kind: %v", expected.Kind)
	}
}

func strictEquals(actual, expected any) (bool, string) {
	if valuesEqual(actual, expected) {
		return true, ""
	}
	at, et := TypeName(actual), TypeName(expected)
	if at != et {
		return false, fmt.Sprintf("expected %s %s, got %s %s", et, parser.FormatValue(expected), at, parser.FormatValue(actual))
	}
	return false, fmt.Sprintf("expected %s, got %s", parser.FormatValue(expected), parser.FormatValue(actual))
}

func looseEquals(actual, expected any) (bool, string) {
	a := templating.Stringify(actual)
	x := templating.Stringify(expected)
	if a == x {
		return true, ""
	}
	return false, fmt.Sprintf("expected %q, got %q", x, a)
}

// valuesEqual compares without coercion between kinds. Numbers compare by
// value regardless of their Go type, so an int status equals an int64
// literal or a float64 decoded from JSON.
func valuesEqual(actual, expected any) bool {
	if isBigNumber(actual) || isBigNumber(expected) {
		a, aok := integerText(actual)
		x, xok := integerText(expected)
		return aok && xok && a == x
	}
	if an, ok := toFloat64(actual); ok {
		en, ok := toFloat64(expected)
		return ok && an == en
	}

	switch a := actual.(type) {
	case []any:
		x, ok := expected.([]any)
		if !ok || len(a) != len(x) {
			return false
		}
		for i := range a {
			if !valuesEqual(a[i], x[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		x, ok := expected.(map[string]any)
		if !ok || len(a) != len(x) {
			return false
		}
		for k, v := range a {
			xv, ok := x[k]
			if !ok || !valuesEqual(v, xv) {
				return false
			}
		}
		return true
	}

	return reflect.DeepEqual(actual, expected)
}

func checkPredicate(p parser.Predicate, actual any, found bool) (bool, string) {
	switch p {
	case parser.PredExists:
		if !found {
			return false, ReasonPathNotFound
		}
		return true, ""
	case parser.PredNotExists:
		if found {
			return false, fmt.Sprintf("expected not to exist, got %s", parser.FormatValue(actual))
		}
		return true, ""
	}

	if !found {
		return false, fmt.Sprintf("expected %s, %s", p, ReasonPathNotFound)
	}

	var ok bool
	switch p {
	case parser.PredIsArray:
		ok = TypeName(actual) == "array"
	case parser.PredIsObject:
		ok = TypeName(actual) == "object"
	case parser.PredIsNumber:
		ok = TypeName(actual) == "number"
	case parser.PredIsString:
		ok = TypeName(actual) == "string"
	case parser.PredIsNull:
		ok = actual == nil
	case parser.PredIsBool:
		ok = TypeName(actual) == "boolean"
	case parser.PredIsUUID:
		ok = isUUID(actual)
	case parser.PredIsISO8601:
		ok = isISO8601(actual)
	case parser.PredIsEmail:
		ok = isEmail(actual)
	default:
		return false, fmt.Sprintf("unknown predicate: %v", p)
	}

	if ok {
		return true, ""
	}
	return false, fmt.Sprintf("expected %s, got %s %s", p, TypeName(actual), parser.FormatValue(actual))
}

func isUUID(v any) bool {
	s, ok := v.(string)
	if !ok || len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

var iso8601Layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

func isISO8601(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	for _, layout := range iso8601Layouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

func isEmail(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

// TypeName reports the JSON type of a decoded value.
func TypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	if _, ok := toFloat64(v); ok {
		return "number"
	}
	return reflect.TypeOf(v).String()
}

func isBigNumber(v any) bool {
	_, ok := v.(json.Number)
	return ok
}

// integerText renders an integral number in canonical decimal form so that
// integers beyond float64 precision compare exactly.
func integerText(v any) (string, bool) {
	switch n := v.(type) {
	case json.Number:
		if b, ok := new(big.Int).SetString(string(n), 10); ok {
			return b.String(), true
		}
	case int:
		return strconv.Itoa(n), true
	case int64:
		return strconv.FormatInt(n, 10), true
	case int32:
		return strconv.FormatInt(int64(n), 10), true
	case uint64:
		return strconv.FormatUint(n, 10), true
	case float64:
		if n == math.Trunc(n) && math.Abs(n) <= 1<<53 {
			return strconv.FormatInt(int64(n), 10), true
		}
	}
	return "", false
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// SchemaCache holds compiled JSON schemas keyed by absolute path.
type SchemaCache struct {
	mu      sync.Mutex
	schemas map[string]*gojsonschema.Schema
}

func NewSchemaCache() *SchemaCache {
	return &SchemaCache{schemas: make(map[string]*gojsonschema.Schema)}
}

func (c *SchemaCache) load(path string) (*gojsonschema.Schema, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.schemas[path]; ok {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("invalid schema %s: %w", filepath.Base(path), err)
	}
	c.schemas[path] = s
	return s, nil
}

// validatePathWithinBase checks that the resolved path stays within the base directory
// to prevent path traversal attacks
func validatePathWithinBase(path, baseDir string) error {
	if baseDir == "" {
		return nil
	}

	cleanBase, err := filepath.Abs(baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base directory: %v", err)
	}

	cleanPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %v", err)
	}

	if !strings.HasPrefix(cleanPath, cleanBase+string(filepath.Separator)) && cleanPath != cleanBase {
		return fmt.Errorf("path traversal detected: %s is outside allowed directory %s", path, baseDir)
	}

	return nil
}

func (e *Evaluator) schema(actual any, schemaPath string) (bool, string) {
	if !filepath.IsAbs(schemaPath) && e.baseDir != "" {
		schemaPath = filepath.Join(e.baseDir, schemaPath)
	}

	if err := validatePathWithinBase(schemaPath, e.baseDir); err != nil {
		return false, err.Error()
	}

	abs, err := filepath.Abs(schemaPath)
	if err != nil {
		return false, err.Error()
	}
	s, err := e.schemas.load(abs)
	if err != nil {
		return false, err.Error()
	}

	result, err := s.Validate(gojsonschema.NewGoLoader(actual))
	if err != nil {
		return false, fmt.Sprintf("schema validation error: %v", err)
	}

	if result.Valid() {
		return true, ""
	}

	var errs []string
	for _, desc := range result.Errors() {
		errs = append(errs, desc.String())
	}
	return false, fmt.Sprintf("schema validation failed: %s", strings.Join(errs, "; "))
}

// EvaluateAll evaluates every rule in declaration order. A failing rule
// never stops the ones after it.
func EvaluateAll(subject Subject, rules []*parser.AssertionRule, opts ...EvaluatorOption) []*Result {
	evaluator := NewEvaluator(subject, opts...)
	results := make([]*Result, len(rules))
	for i, rule := range rules {
		results[i] = evaluator.Evaluate(rule)
	}
	return results
}

// AllPassed reports whether every result passed. An empty set passes.
func AllPassed(results []*Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}
