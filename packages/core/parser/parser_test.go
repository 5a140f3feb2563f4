package parser

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_SimpleGET(t *testing.T) {
	input := `
[request]
method = "get"
url = "{{base_url}}/health"

[assert]
status = 200
`
	def, err := Parse("health.reqx", []byte(input))
	require.NoError(t, err)

	assert.Equal(t, "health", def.Name)
	assert.Equal(t, "GET", def.Method)
	assert.Equal(t, "{{base_url}}/health", def.URL)
	assert.Nil(t, def.Body)
	require.Len(t, def.Assertions, 1)
	assert.Equal(t, RootStatus, def.Assertions[0].Path.Root)
	assert.Equal(t, ExpectLiteral, def.Assertions[0].Expected.Kind)
	assert.Equal(t, int64(200), def.Assertions[0].Expected.Value)
}

func TestParse_FullDocument(t *testing.T) {
	input := `
[request]
name = "Create user"
method = "POST"
url = "{{base_url}}/users"
timeout = "5s"

[headers]
Content-Type = "application/json"
Authorization = "Bearer {{token}}"
X-Attempt = 3

[query]
verbose = true
page = "1"

[body]
name = "Ada"
roles = ["admin", "dev"]

[body.address]
city = "London"

[assert]
status = 201
body.id = "exists"
"body.roles[0]" = "admin"
"headers.content-type" = "~application/json"
body.name = "{{expected_name}}"

[post-response]
user_id = "res.body.id"
role_count = "res.body.roles | length"
`
	def, err := Parse("users/create.reqx", []byte(input))
	require.NoError(t, err)

	assert.Equal(t, "Create user", def.Name)
	assert.Equal(t, "POST", def.Method)
	assert.Equal(t, 5*time.Second, def.Timeout)

	require.Len(t, def.Headers, 3)
	assert.Equal(t, "Content-Type", def.Headers[0].Key)
	assert.Equal(t, "Authorization", def.Headers[1].Key)
	assert.Equal(t, "Bearer {{token}}", def.Headers[1].Value)
	assert.Equal(t, "X-Attempt", def.Headers[2].Key)
	assert.Equal(t, "3", def.Headers[2].Value)

	require.Len(t, def.QueryParams, 2)
	assert.Equal(t, "verbose", def.QueryParams[0].Key)
	assert.Equal(t, "true", def.QueryParams[0].Value)

	require.NotNil(t, def.Body)
	assert.Equal(t, BodyJSON, def.Body.Type)
	body := def.Body.Value.(map[string]any)
	assert.Equal(t, "Ada", body["name"])
	assert.Equal(t, []any{"admin", "dev"}, body["roles"])
	assert.Equal(t, map[string]any{"city": "London"}, body["address"])

	require.Len(t, def.Assertions, 5)
	assert.Equal(t, "status", def.Assertions[0].Path.String())
	assert.Equal(t, "body.id", def.Assertions[1].Path.String())
	assert.Equal(t, PredicateOf(PredExists), def.Assertions[1].Expected)
	assert.Equal(t, "body.roles[0]", def.Assertions[2].Path.String())
	assert.Equal(t, Literal("admin"), def.Assertions[2].Expected)
	assert.Equal(t, LooseLiteral("application/json"), def.Assertions[3].Expected)
	assert.Equal(t, ExpectTemplate, def.Assertions[4].Expected.Kind)
	assert.False(t, def.Assertions[4].Expected.Resolved())

	require.Len(t, def.Captures, 2)
	assert.Equal(t, "user_id", def.Captures[0].Name)
	assert.Equal(t, "body.id", def.Captures[0].Path.String())
	assert.Equal(t, CaptureFuncNone, def.Captures[0].Func)
	assert.Equal(t, CaptureFuncLength, def.Captures[1].Func)
}

func TestParse_LooseMarkerBeforeTemplate(t *testing.T) {
	input := `
[request]
method = "GET"
url = "http://localhost/items/{{id}}"

[assert]
body.id = "~{{id}}"
body.name = "{{name}}"
body.label = "~item-{{id}}"
`
	def, err := Parse("items.reqx", []byte(input))
	require.NoError(t, err)
	require.Len(t, def.Assertions, 3)

	assert.Equal(t, LooseTemplated("{{id}}"), def.Assertions[0].Expected)
	assert.Equal(t, Templated("{{name}}"), def.Assertions[1].Expected)
	assert.Equal(t, LooseTemplated("item-{{id}}"), def.Assertions[2].Expected)
	assert.Equal(t, "~{{id}}", def.Assertions[0].Expected.String())
}

func TestParse_RawAndArrayBodies(t *testing.T) {
	raw := `body = "plain text"

[request]
method = "POST"
url = "http://localhost/echo"
`
	def, err := Parse("raw.reqx", []byte(raw))
	require.NoError(t, err)
	require.NotNil(t, def.Body)
	assert.Equal(t, BodyRaw, def.Body.Type)
	assert.Equal(t, "plain text", def.Body.Value)

	arr := `
[request]
method = "POST"
url = "http://localhost/batch"

[[body]]
id = 1

[[body]]
id = 2
`
	def, err = Parse("batch.reqx", []byte(arr))
	require.NoError(t, err)
	require.NotNil(t, def.Body)
	assert.Equal(t, BodyJSON, def.Body.Type)
	assert.Equal(t, []any{map[string]any{"id": int64(1)}, map[string]any{"id": int64(2)}}, def.Body.Value)
}

func TestParse_Predicates(t *testing.T) {
	input := `
[request]
method = "GET"
url = "http://localhost/items"

[assert]
"body[0].id" = "exists"
body.deleted = "!exists"
body.items = "is_array"
body.meta = "is_object"
body.count = "is_number"
body.name = "is_string"
body.parent = "is_null"
body.active = "is_bool"
body.uuid = "is_uuid"
body.created = "is_iso8601"
body.email = "is_email"
`
	def, err := Parse("items.reqx", []byte(input))
	require.NoError(t, err)
	require.Len(t, def.Assertions, 11)

	want := []Predicate{PredExists, PredNotExists, PredIsArray, PredIsObject, PredIsNumber,
		PredIsString, PredIsNull, PredIsBool, PredIsUUID, PredIsISO8601, PredIsEmail}
	for i, p := range want {
		assert.Equal(t, ExpectPredicate, def.Assertions[i].Expected.Kind, def.Assertions[i].Path.Raw)
		assert.Equal(t, p, def.Assertions[i].Expected.Predicate)
	}

	schemaDoc := "[request]\nmethod = \"GET\"\nurl = \"/\"\n\n[assert]\nbody = \"schema:schemas/items.json\"\n"
	def, err = Parse("items.reqx", []byte(schemaDoc))
	require.NoError(t, err)
	require.Len(t, def.Assertions, 1)
	assert.Equal(t, SchemaOf(filepath.Join("schemas", "items.json")), def.Assertions[0].Expected)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		message string
		line    int
	}{
		{
			name:    "malformed toml",
			input:   "[request]\nmethod = \"GET\"\nurl = \n",
			message: "invalid TOML",
		},
		{
			name:    "missing request",
			input:   "[headers]\nAccept = \"*/*\"\n",
			message: "missing [request] section",
		},
		{
			name:    "missing url",
			input:   "[request]\nmethod = \"GET\"\n",
			message: "missing required key request.url",
			line:    1,
		},
		{
			name:    "unknown section",
			input:   "[request]\nmethod = \"GET\"\nurl = \"/\"\n\n[asserts]\nstatus = 200\n",
			message: "unknown section [asserts]",
			line:    5,
		},
		{
			name:    "unknown request key",
			input:   "[request]\nmethod = \"GET\"\nurl = \"/\"\nverb = \"x\"\n",
			message: "unknown key \"verb\" in [request]",
			line:    4,
		},
		{
			name:    "bad assert root",
			input:   "[request]\nmethod = \"GET\"\nurl = \"/\"\n\n[assert]\nresponse.code = 200\n",
			message: "unknown root \"response\"",
			line:    6,
		},
		{
			name:    "capture without res prefix",
			input:   "[request]\nmethod = \"GET\"\nurl = \"/\"\n\n[post-response]\nid = \"body.id\"\n",
			message: "must start with \"res.\"",
			line:    6,
		},
		{
			name:    "unknown capture pipe",
			input:   "[request]\nmethod = \"GET\"\nurl = \"/\"\n\n[post-response]\nid = \"res.body | sum\"\n",
			message: "unknown pipe function \"sum\"",
		},
		{
			name:    "schema escapes directory",
			input:   "[request]\nmethod = \"GET\"\nurl = \"/\"\n\n[assert]\nbody = \"schema:../../etc/schema.json\"\n",
			message: "must stay inside the document directory",
		},
		{
			name:    "bad timeout",
			input:   "[request]\nmethod = \"GET\"\nurl = \"/\"\ntimeout = \"soon\"\n",
			message: "request.timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("bad.reqx", []byte(tt.input))
			require.Error(t, err)

			var perr *ParseError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, "bad.reqx", perr.File)
			assert.Contains(t, perr.Message, tt.message)
			if tt.line > 0 {
				assert.Equal(t, tt.line, perr.Line)
			}
		})
	}
}

func TestParseError_Error(t *testing.T) {
	err := &ParseError{File: "a.reqx", Line: 3, Column: 7, Message: "boom"}
	assert.Equal(t, "a.reqx:3:7: boom", err.Error())

	err = &ParseError{File: "a.reqx", Message: "boom"}
	assert.Equal(t, "a.reqx: boom", err.Error())
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ping.reqx")
	require.NoError(t, os.WriteFile(path, []byte("[request]\nmethod = \"GET\"\nurl = \"http://localhost/ping\"\n"), 0644))

	def, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, def.Path)
	assert.Equal(t, "ping", def.Name)

	_, err = ParseFile(filepath.Join(dir, "missing.reqx"))
	assert.Error(t, err)
}

func TestFormat_RoundTrip(t *testing.T) {
	inputs := map[string]string{
		"structured": `
[request]
method = "PATCH"
url = "{{base_url}}/users/{{user_id}}"
timeout = 1500

[headers]
Content-Type = "application/json"
X-Quote = "say \"hi\"\n"

[query]
fields = "id,name"

[body]
name = "Ada"
age = 36
score = 9.5
tags = ["a", "b"]

[body.nested]
ok = true

[assert]
status = 200
"body.items[0].id" = "exists"
body.name = "~Ada"
body.owner = "~{{user_id}}"

[post-response]
first = "res.body.items | first"
`,
		"raw": `body = "line one\nline two"

[request]
method = "PUT"
url = "http://localhost/raw"
`,
		"array": `body = [1, "two", 3.5]

[request]
method = "POST"
url = "http://localhost/array"
`,
	}

	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			original, err := Parse("doc.reqx", []byte(input))
			require.NoError(t, err)

			formatted := Format(original)
			reparsed, err := Parse("doc.reqx", []byte(formatted))
			require.NoError(t, err, formatted)

			assert.Equal(t, original.Method, reparsed.Method)
			assert.Equal(t, original.URL, reparsed.URL)
			assert.Equal(t, original.Timeout, reparsed.Timeout)
			assert.Equal(t, original.Headers, reparsed.Headers)
			assert.Equal(t, original.QueryParams, reparsed.QueryParams)
			assert.Equal(t, original.Body, reparsed.Body)
			require.Len(t, reparsed.Assertions, len(original.Assertions))
			for i := range original.Assertions {
				assert.Equal(t, original.Assertions[i].Path.String(), reparsed.Assertions[i].Path.String())
				assert.Equal(t, original.Assertions[i].Expected, reparsed.Assertions[i].Expected)
			}
			require.Len(t, reparsed.Captures, len(original.Captures))
		})
	}
}
