package http

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/reqx/packages/core/parser"
)

func lookup(t *testing.T, resp *Response, expr string) (any, bool) {
	t.Helper()
	p, err := parser.ParsePath(expr)
	require.NoError(t, err)
	return resp.Lookup(p)
}

func TestResponse_Lookup(t *testing.T) {
	resp := &Response{
		StatusCode: 201,
		Headers:    map[string]string{"Content-Type": "application/json", "X-Request-Id": "r-1"},
		Body: []byte(`{
			"id": 7,
			"name": "Ada",
			"tags": ["a", "b"],
			"owner": {"email": "ada@example.com"},
			"deleted_at": null,
			"items": [{"id": 1}, {"id": 2}],
			"a.b": "dotted",
			"weird*key": true
		}`),
	}

	tests := []struct {
		expr    string
		want    any
		present bool
	}{
		{"status", 201, true},
		{"res.status", 201, true},
		{"headers.content-type", "application/json", true},
		{"headers.X-REQUEST-ID", "r-1", true},
		{"headers.missing", nil, false},
		{"body.id", float64(7), true},
		{"body.name", "Ada", true},
		{"body.tags", []any{"a", "b"}, true},
		{"body.tags[1]", "b", true},
		{"body.tags[5]", nil, false},
		{"body.owner.email", "ada@example.com", true},
		{"body.deleted_at", nil, true},
		{"body.items[1].id", float64(2), true},
		{"body.items[0].missing.deeper", nil, false},
		{`body["a.b"]`, "dotted", true},
		{`body["weird*key"]`, true, true},
		{"body.nope", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, ok := lookup(t, resp, tt.expr)
			assert.Equal(t, tt.present, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResponse_LookupArrayBody(t *testing.T) {
	empty := &Response{StatusCode: 200, Body: []byte(`[]`)}
	_, ok := lookup(t, empty, "body[0].id")
	assert.False(t, ok)

	v, ok := lookup(t, empty, "body")
	assert.True(t, ok)
	assert.Len(t, v, 0)

	list := &Response{StatusCode: 200, Body: []byte(`[{"id": "x"}]`)}
	v, ok = lookup(t, list, "body[0].id")
	assert.True(t, ok)
	assert.Equal(t, "x", v)
}

func TestResponse_LookupNonJSONBody(t *testing.T) {
	resp := &Response{StatusCode: 200, Body: []byte("plain text")}

	v, ok := lookup(t, resp, "body")
	assert.True(t, ok)
	assert.Equal(t, "plain text", v)

	_, ok = lookup(t, resp, "body.field")
	assert.False(t, ok)

	empty := &Response{StatusCode: 204}
	_, ok = lookup(t, empty, "body")
	assert.False(t, ok)
}

func TestResponse_LookupKeepsLargeIntegers(t *testing.T) {
	resp := &Response{
		StatusCode: 200,
		Body:       []byte(`{"id": 9007199254740993, "small": 42, "ratio": 1.5, "items": [{"id": 12345678901234567890}]}`),
	}

	v, ok := lookup(t, resp, "body.id")
	require.True(t, ok)
	assert.Equal(t, json.Number("9007199254740993"), v)

	v, _ = lookup(t, resp, "body.small")
	assert.Equal(t, float64(42), v)

	v, _ = lookup(t, resp, "body.ratio")
	assert.Equal(t, 1.5, v)

	v, _ = lookup(t, resp, "body.items[0].id")
	assert.Equal(t, json.Number("12345678901234567890"), v)

	body, isJSON := resp.ParsedBody()
	require.True(t, isJSON)
	assert.Equal(t, json.Number("9007199254740993"), body.(map[string]any)["id"])
	assert.Equal(t, []any{map[string]any{"id": json.Number("12345678901234567890")}}, body.(map[string]any)["items"])
}
