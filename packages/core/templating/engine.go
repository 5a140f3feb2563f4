package templating

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"pkt.systems/pslog"
)

var placeholderPattern = regexp.MustCompile(`\{\{([^{}]*)\}\}`)

var identifierPattern = regexp.MustCompile(`^\$?[A-Za-z0-9_]+(\.[A-Za-z0-9_]+)*$`)

// Lookup resolves a variable identifier to its value. *env.Scope implements
// it.
type Lookup interface {
	Resolve(name string) (any, bool)
}

// SourceLookup is implemented by lookups that can name the layer that
// answered, for debug logging.
type SourceLookup interface {
	ResolveFrom(name string) (any, string, bool)
}

// LookupFunc adapts a function to Lookup.
type LookupFunc func(name string) (any, bool)

func (f LookupFunc) Resolve(name string) (any, bool) { return f(name) }

// UnresolvedVariableError names a placeholder that could not be substituted
// and the templated field that contained it.
type UnresolvedVariableError struct {
	Identifier string
	Field      string
	Invalid    bool
}

func (e *UnresolvedVariableError) Error() string {
	if e.Invalid {
		return fmt.Sprintf("invalid variable reference {{%s}} in %s", e.Identifier, e.Field)
	}
	return fmt.Sprintf("unresolved variable {{%s}} in %s", e.Identifier, e.Field)
}

type Engine struct {
	lookup Lookup
	logger pslog.Base
}

type Option func(*Engine)

func WithLogger(logger pslog.Base) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func NewEngine(lookup Lookup, opts ...Option) *Engine {
	e := &Engine{lookup: lookup}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = pslog.New(io.Discard)
	}
	return e
}

// HasPlaceholders reports whether s contains a {{...}} occurrence.
func HasPlaceholders(s string) bool {
	return placeholderPattern.MatchString(s)
}

// Substitute replaces every {{identifier}} in s. The first identifier that is
// malformed or unresolved aborts the whole substitution.
func (e *Engine) Substitute(field, s string) (string, error) {
	if !strings.Contains(s, "{{") {
		return s, nil
	}

	var firstErr error
	result := placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}
		v, err := e.resolve(field, match[2:len(match)-2])
		if err != nil {
			firstErr = err
			return match
		}
		return Stringify(v)
	})
	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// ResolveValue is like Substitute, except that a string consisting of exactly
// one placeholder yields the variable's native value (number, bool, map...)
// instead of its string form.
func (e *Engine) ResolveValue(field, s string) (any, error) {
	if m := placeholderPattern.FindStringSubmatchIndex(s); m != nil && m[0] == 0 && m[1] == len(s) {
		return e.resolve(field, s[m[2]:m[3]])
	}
	return e.Substitute(field, s)
}

// SubstituteValue walks a structured value and substitutes every string leaf.
// Map keys are left untouched. field names the root for error messages;
// nested leaves are reported as field.key[index].
func (e *Engine) SubstituteValue(field string, v any) (any, error) {
	switch val := v.(type) {
	case string:
		return e.Substitute(field, val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for _, k := range sortedKeys(val) {
			sub, err := e.SubstituteValue(field+"."+k, val[k])
			if err != nil {
				return nil, err
			}
			out[k] = sub
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			sub, err := e.SubstituteValue(fmt.Sprintf("%s[%d]", field, i), item)
			if err != nil {
				return nil, err
			}
			out[i] = sub
		}
		return out, nil
	default:
		return v, nil
	}
}

func (e *Engine) resolve(field, raw string) (any, error) {
	ident := strings.TrimSpace(raw)
	if !identifierPattern.MatchString(ident) {
		return nil, &UnresolvedVariableError{Identifier: ident, Field: field, Invalid: true}
	}
	var (
		v      any
		ok     bool
		source string
	)
	if sl, isSource := e.lookup.(SourceLookup); isSource {
		v, source, ok = sl.ResolveFrom(ident)
	} else {
		v, ok = e.lookup.Resolve(ident)
	}
	if !ok {
		return nil, &UnresolvedVariableError{Identifier: ident, Field: field}
	}
	e.logger.Debug("substitute", "var", ident, "field", field, "source", source)
	return v, nil
}

// References returns the sorted, de-duplicated identifiers referenced by any
// string leaf of v. Dynamic ($-prefixed) identifiers are included.
func References(v any) []string {
	seen := make(map[string]bool)
	collectReferences(v, seen)
	refs := make([]string, 0, len(seen))
	for ref := range seen {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}

func collectReferences(v any, seen map[string]bool) {
	switch val := v.(type) {
	case string:
		for _, m := range placeholderPattern.FindAllStringSubmatch(val, -1) {
			seen[strings.TrimSpace(m[1])] = true
		}
	case map[string]any:
		for _, item := range val {
			collectReferences(item, seen)
		}
	case []any:
		for _, item := range val {
			collectReferences(item, seen)
		}
	case []string:
		for _, item := range val {
			collectReferences(item, seen)
		}
	}
}

// Stringify renders a resolved value into template text: strings as-is,
// numbers and booleans as their literal text, null as "null" and structured
// values as compact JSON.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float32:
		return formatFloat(float64(val))
	case float64:
		return formatFloat(val)
	case json.Number:
		return val.String()
	case fmt.Stringer:
		return val.String()
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	}
}

func formatFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
