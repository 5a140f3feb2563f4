package templating

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapLookup(vars map[string]any) Lookup {
	return LookupFunc(func(name string) (any, bool) {
		v, ok := vars[name]
		return v, ok
	})
}

func newTestEngine() *Engine {
	return NewEngine(mapLookup(map[string]any{
		"base_url":   "http://localhost:8080",
		"user_id":    int64(42),
		"ratio":      0.25,
		"whole":      float64(7),
		"enabled":    true,
		"nothing":    nil,
		"user":       map[string]any{"name": "Ada", "id": 1},
		"tags":       []any{"a", "b"},
		"user.email": "ada@example.com",
		"$uuid":      "0b6f9c3e-1111-4222-8333-444455556666",
	}))
}

func TestSubstitute(t *testing.T) {
	e := newTestEngine()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"no placeholders", "http://example.com/a?b=c", "http://example.com/a?b=c"},
		{"single", "{{base_url}}/users", "http://localhost:8080/users"},
		{"integer", "/users/{{user_id}}", "/users/42"},
		{"float", "r={{ratio}}", "r=0.25"},
		{"integral float", "n={{whole}}", "n=7"},
		{"bool", "on={{enabled}}", "on=true"},
		{"null", "v={{nothing}}", "v=null"},
		{"object", "{{user}}", `{"id":1,"name":"Ada"}`},
		{"array", "{{tags}}", `["a","b"]`},
		{"dotted", "mail {{user.email}}", "mail ada@example.com"},
		{"whitespace inside braces", "{{ user_id }}", "42"},
		{"dynamic", "id={{$uuid}}", "id=0b6f9c3e-1111-4222-8333-444455556666"},
		{"repeated", "{{user_id}}-{{user_id}}", "42-42"},
		{"single braces untouched", "{not} {a template}", "{not} {a template}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Substitute("url", tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSubstitute_IdempotentWithoutPlaceholders(t *testing.T) {
	e := NewEngine(mapLookup(nil))
	inputs := []string{"", "plain", "{single}", "{{", "}}", "a}}b{{", `{"json": {"nested": true}}`}
	for _, in := range inputs {
		got, err := e.Substitute("body", in)
		require.NoError(t, err, in)
		assert.Equal(t, in, got)
	}
}

func TestSubstitute_Unresolved(t *testing.T) {
	e := newTestEngine()

	_, err := e.Substitute("header Authorization", "Bearer {{access_token}}")
	require.Error(t, err)

	var uerr *UnresolvedVariableError
	require.True(t, errors.As(err, &uerr))
	assert.Equal(t, "access_token", uerr.Identifier)
	assert.Equal(t, "header Authorization", uerr.Field)
	assert.False(t, uerr.Invalid)
	assert.Equal(t, "unresolved variable {{access_token}} in header Authorization", err.Error())

	_, err = e.Substitute("url", "{{base_url}}/{{user-name}}")
	require.True(t, errors.As(err, &uerr))
	assert.True(t, uerr.Invalid)
	assert.Equal(t, "user-name", uerr.Identifier)

	_, err = e.Substitute("url", "{{}}")
	require.True(t, errors.As(err, &uerr))
	assert.True(t, uerr.Invalid)
}

type layeredLookup struct {
	vars    map[string]any
	sources []string
}

func (l *layeredLookup) Resolve(name string) (any, bool) {
	v, ok := l.vars[name]
	return v, ok
}

func (l *layeredLookup) ResolveFrom(name string) (any, string, bool) {
	v, ok := l.vars[name]
	l.sources = append(l.sources, name)
	return v, "environment", ok
}

func TestSubstitute_PrefersSourceLookup(t *testing.T) {
	lookup := &layeredLookup{vars: map[string]any{"host": "api.local"}}
	e := NewEngine(lookup)

	got, err := e.Substitute("url", "http://{{host}}/")
	require.NoError(t, err)
	assert.Equal(t, "http://api.local/", got)
	assert.Equal(t, []string{"host"}, lookup.sources)

	_, err = e.Substitute("url", "{{missing}}")
	var unresolved *UnresolvedVariableError
	require.True(t, errors.As(err, &unresolved))
	assert.Equal(t, "missing", unresolved.Identifier)
}

func TestResolveValue_KeepsNativeShape(t *testing.T) {
	e := newTestEngine()

	v, err := e.ResolveValue("assert", "{{user_id}}")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	v, err = e.ResolveValue("assert", "{{user}}")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Ada", "id": 1}, v)

	v, err = e.ResolveValue("assert", "id-{{user_id}}")
	require.NoError(t, err)
	assert.Equal(t, "id-42", v)

	_, err = e.ResolveValue("assert", "{{missing}}")
	assert.Error(t, err)
}

func TestSubstituteValue(t *testing.T) {
	e := newTestEngine()

	body := map[string]any{
		"owner":  "{{user_id}}",
		"count":  int64(3),
		"labels": []any{"{{base_url}}", false},
		"nested": map[string]any{"flag": "{{enabled}}"},
	}
	got, err := e.SubstituteValue("body", body)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"owner":  "42",
		"count":  int64(3),
		"labels": []any{"http://localhost:8080", false},
		"nested": map[string]any{"flag": "true"},
	}, got)

	// input is not modified
	assert.Equal(t, "{{user_id}}", body["owner"])

	_, err = e.SubstituteValue("body", map[string]any{"list": []any{map[string]any{"x": "{{nope}}"}}})
	var uerr *UnresolvedVariableError
	require.True(t, errors.As(err, &uerr))
	assert.Equal(t, "body.list[0].x", uerr.Field)
}

func TestReferences(t *testing.T) {
	refs := References(map[string]any{
		"a": "{{token}} and {{ base_url }}",
		"b": []any{"{{token}}", "{{$uuid}}", int64(1)},
		"c": map[string]any{"d": "{{user.id}}"},
	})
	assert.Equal(t, []string{"$uuid", "base_url", "token", "user.id"}, refs)

	assert.Empty(t, References("nothing here"))
	assert.Equal(t, []string{"x"}, References([]string{"{{x}}", "{{x}}"}))
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "1.5", Stringify(1.5))
	assert.Equal(t, "100", Stringify(float64(100)))
	assert.Equal(t, "-3", Stringify(-3))
	assert.Equal(t, "false", Stringify(false))
	assert.Equal(t, "null", Stringify(nil))
	assert.Equal(t, `{"a":[1,2]}`, Stringify(map[string]any{"a": []any{1, 2}}))
}
