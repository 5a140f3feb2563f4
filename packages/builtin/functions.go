package builtin

import (
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Func produces a fresh value each time a dynamic variable is referenced.
type Func func() any

type Registry struct {
	mu    sync.Mutex
	funcs map[string]Func
	now   func() time.Time
	rng   *rand.Rand
}

type Option func(*Registry)

// WithClock replaces the time source used by the date and timestamp values.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// WithSeed makes $random and friends deterministic.
func WithSeed(seed int64) Option {
	return func(r *Registry) {
		r.rng = rand.New(rand.NewSource(seed))
	}
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		funcs: make(map[string]Func),
		now:   time.Now,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.registerDefaults()
	return r
}

func (r *Registry) registerDefaults() {
	r.funcs["uuid"] = func() any { return uuid.New().String() }
	r.funcs["timestamp"] = func() any { return r.now().Unix() }
	r.funcs["timestampMs"] = func() any { return r.now().UnixMilli() }
	r.funcs["date"] = func() any { return r.now().UTC().Format("2006-01-02") }
	r.funcs["datetime"] = func() any { return r.now().UTC().Format(time.RFC3339) }
	r.funcs["random"] = func() any { return r.intn(1000) }
	r.funcs["randomString"] = func() any {
		return r.randomString(16, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")
	}
	r.funcs["randomEmail"] = func() any {
		const lower = "abcdefghijklmnopqrstuvwxyz"
		return r.randomString(8, lower) + "@" + r.randomString(6, lower) + ".com"
	}
}

func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// Lookup evaluates the dynamic variable name (without its leading $).
func (r *Registry) Lookup(name string) (any, bool) {
	r.mu.Lock()
	fn, ok := r.funcs[name]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	return fn(), true
}

// Names returns the registered dynamic variable names.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	return names
}

func (r *Registry) intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Intn(n)
}

func (r *Registry) randomString(length int, charset string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]byte, length)
	for i := 0; i < length; i++ {
		result[i] = charset[r.rng.Intn(len(charset))]
	}
	return string(result)
}
