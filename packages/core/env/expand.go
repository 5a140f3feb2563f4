package env

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
)

var processRefPattern = regexp.MustCompile(`\$\{([^}]*)\}`)

var processNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// LookupFunc reads a process environment variable.
type LookupFunc func(name string) (string, bool)

// ProcessLookup returns a LookupFunc over a snapshot of the process
// environment, supplemented by extra (typically a dotenv file). Process
// values win over extra ones.
func ProcessLookup(extra map[string]string) LookupFunc {
	snapshot := ProcessSnapshot(extra)
	return func(name string) (string, bool) {
		v, ok := snapshot[name]
		if !ok {
			return "", false
		}
		s, _ := v.(string)
		return s, true
	}
}

// ProcessSnapshot copies the current process environment, layered over extra.
// The copy is taken once so later changes to the process do not leak into a
// run that has already started.
func ProcessSnapshot(extra map[string]string) map[string]any {
	result := make(map[string]any, len(extra))
	for k, v := range extra {
		result[k] = v
	}
	for _, e := range os.Environ() {
		key, value, ok := strings.Cut(e, "=")
		if !ok || key == "" {
			continue
		}
		result[key] = value
	}
	return result
}

// UndefinedVariableError is returned when a ${VAR} reference names a variable
// the process environment does not define and no default is given.
type UndefinedVariableError struct {
	Name string
}

func (e *UndefinedVariableError) Error() string {
	return fmt.Sprintf("environment variable ${%s} is not set", e.Name)
}

// ExpandProcessRefs replaces ${VAR} and ${VAR:-default} references in every
// string leaf of v. Substituted text is not scanned again.
func ExpandProcessRefs(v any, lookup LookupFunc) (any, error) {
	switch val := v.(type) {
	case string:
		return expandString(val, lookup)
	case map[string]any:
		out := make(map[string]any, len(val))
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			expanded, err := ExpandProcessRefs(val[k], lookup)
			if err != nil {
				return nil, err
			}
			out[k] = expanded
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			expanded, err := ExpandProcessRefs(item, lookup)
			if err != nil {
				return nil, err
			}
			out[i] = expanded
		}
		return out, nil
	default:
		return v, nil
	}
}

func expandString(s string, lookup LookupFunc) (string, error) {
	var firstErr error
	result := processRefPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}
		inner := match[2 : len(match)-1]
		name, def, hasDefault := strings.Cut(inner, ":-")
		name = strings.TrimSpace(name)

		if !processNamePattern.MatchString(name) {
			firstErr = fmt.Errorf("invalid environment variable reference %q", match)
			return match
		}
		if value, ok := lookup(name); ok && (value != "" || !hasDefault) {
			return value
		}
		if hasDefault {
			return def
		}
		firstErr = &UndefinedVariableError{Name: name}
		return match
	})
	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}
