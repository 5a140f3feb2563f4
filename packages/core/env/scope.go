package env

import (
	"strconv"
	"strings"
	"sync"

	"github.com/abdul-hamid-achik/reqx/packages/builtin"
)

// Source is one layer of variable bindings.
type Source interface {
	Name() string
	Lookup(name string) (any, bool)
}

// MapSource is a read-only layer backed by a map.
type MapSource struct {
	name string
	vars map[string]any
}

func NewMapSource(name string, vars map[string]any) *MapSource {
	if vars == nil {
		vars = map[string]any{}
	}
	return &MapSource{name: name, vars: vars}
}

func (s *MapSource) Name() string { return s.name }

func (s *MapSource) Lookup(name string) (any, bool) {
	v, ok := s.vars[name]
	return v, ok
}

// CaptureSource holds values captured from responses during a run. Writes
// are serialized; reads may happen concurrently.
type CaptureSource struct {
	mu     sync.RWMutex
	values map[string]any
}

func NewCaptureSource() *CaptureSource {
	return &CaptureSource{values: make(map[string]any)}
}

func (s *CaptureSource) Name() string { return "captures" }

func (s *CaptureSource) Lookup(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return v, ok
}

func (s *CaptureSource) Set(name string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = value
}

// Snapshot returns a copy of the captured values.
func (s *CaptureSource) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Scope resolves variable names against an ordered list of sources:
// captures, then the environment, then the process environment snapshot.
// Names starting with $ are dynamic values from the builtin registry, falling
// back to the process environment ({{$HOME}}).
type Scope struct {
	captures *CaptureSource
	sources  []Source
	process  Source
	funcs    *builtin.Registry
}

type ScopeOption func(*Scope)

func WithBuiltins(reg *builtin.Registry) ScopeOption {
	return func(s *Scope) {
		s.funcs = reg
	}
}

// NewScope creates a fresh scope for one run. process is usually
// ProcessSnapshot(dotenv); it may be nil.
func NewScope(environment *Environment, process map[string]any, opts ...ScopeOption) *Scope {
	var envVars map[string]any
	envName := "environment"
	if environment != nil {
		envVars = environment.Variables
		if environment.Name != "" {
			envName = "environment:" + environment.Name
		}
	}

	s := &Scope{
		captures: NewCaptureSource(),
		process:  NewMapSource("process", process),
	}
	s.sources = []Source{
		s.captures,
		NewMapSource(envName, envVars),
		s.process,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.funcs == nil {
		s.funcs = builtin.NewRegistry()
	}
	return s
}

// Sources returns the lookup layers in the order they are consulted.
func (s *Scope) Sources() []Source {
	out := make([]Source, len(s.sources))
	copy(out, s.sources)
	return out
}

// Resolve looks name up. Dotted names address nested structured values
// (user.email), and numeric segments index arrays (items.0.id).
func (s *Scope) Resolve(name string) (any, bool) {
	if strings.HasPrefix(name, "$") {
		dyn := name[1:]
		if v, ok := s.funcs.Lookup(dyn); ok {
			return v, true
		}
		return lookupPath(s.process, dyn)
	}

	for _, src := range s.sources {
		if v, ok := lookupPath(src, name); ok {
			return v, true
		}
	}
	return nil, false
}

// ResolveFrom is like Resolve but also reports which source answered.
func (s *Scope) ResolveFrom(name string) (any, string, bool) {
	if strings.HasPrefix(name, "$") {
		dyn := name[1:]
		if v, ok := s.funcs.Lookup(dyn); ok {
			return v, "builtin", true
		}
		v, ok := lookupPath(s.process, dyn)
		return v, s.process.Name(), ok
	}
	for _, src := range s.sources {
		if v, ok := lookupPath(src, name); ok {
			return v, src.Name(), true
		}
	}
	return nil, "", false
}

// SetCapture records a captured value. Safe for concurrent use.
func (s *Scope) SetCapture(name string, value any) {
	s.captures.Set(name, value)
}

func (s *Scope) Captures() map[string]any {
	return s.captures.Snapshot()
}

func lookupPath(src Source, name string) (any, bool) {
	if v, ok := src.Lookup(name); ok {
		return v, true
	}
	parts := strings.Split(name, ".")
	for k := len(parts) - 1; k >= 1; k-- {
		root, ok := src.Lookup(strings.Join(parts[:k], "."))
		if !ok {
			continue
		}
		if v, ok := navigate(root, parts[k:]); ok {
			return v, true
		}
	}
	return nil, false
}

func navigate(v any, parts []string) (any, bool) {
	cur := v
	for _, part := range parts {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[part]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}
