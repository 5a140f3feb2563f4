package http

import (
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/abdul-hamid-achik/reqx/packages/core/parser"
)

type Response struct {
	StatusCode int
	Status     string
	Headers    map[string]string
	Body       []byte
	Duration   time.Duration
	Attempts   int

	parseOnce sync.Once
	parsed    any
	isJSON    bool
}

// ParsedBody returns the decoded JSON body, or the body as a string when it
// is not JSON. The second result reports whether the body was JSON.
func (r *Response) ParsedBody() (any, bool) {
	r.parseOnce.Do(func() {
		if len(r.Body) == 0 {
			return
		}
		if gjson.ValidBytes(r.Body) {
			r.parsed = jsonValue(gjson.ParseBytes(r.Body))
			r.isJSON = true
			return
		}
		r.parsed = string(r.Body)
	})
	return r.parsed, r.isJSON
}

// LookupHeader finds a header by case-insensitive name.
func (r *Response) LookupHeader(key string) (string, bool) {
	for k, v := range r.Headers {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

// Lookup evaluates a path expression against the response. A missing
// segment anywhere along the path reports absent rather than failing; a
// present JSON null is reported as (nil, true).
func (r *Response) Lookup(p *parser.Path) (any, bool) {
	switch p.Root {
	case parser.RootStatus:
		return r.StatusCode, true
	case parser.RootHeaders:
		if len(p.Segments) == 0 {
			headers := make(map[string]any, len(r.Headers))
			for k, v := range r.Headers {
				headers[k] = v
			}
			return headers, true
		}
		v, ok := r.LookupHeader(p.Segments[0].Name)
		if !ok {
			return nil, false
		}
		return v, true
	default:
		return r.lookupBody(p.Segments)
	}
}

func (r *Response) lookupBody(segments []parser.Segment) (any, bool) {
	body, isJSON := r.ParsedBody()
	if len(segments) == 0 {
		if len(r.Body) == 0 {
			return nil, false
		}
		return body, true
	}
	if !isJSON {
		return nil, false
	}

	path, ok := GJSONPath(segments)
	if !ok {
		return nil, false
	}
	result := gjson.GetBytes(r.Body, path)
	if !result.Exists() {
		return nil, false
	}
	return jsonValue(result), true
}

// maxExactInteger is the largest integer a float64 holds without rounding.
const maxExactInteger = 1 << 53

// jsonValue is gjson's Result.Value, except that integers too large for a
// float64 are kept verbatim as json.Number.
func jsonValue(res gjson.Result) any {
	switch res.Type {
	case gjson.Number:
		if isIntegerLiteral(res.Raw) {
			n, err := strconv.ParseInt(res.Raw, 10, 64)
			if err != nil || n > maxExactInteger || n < -maxExactInteger {
				return json.Number(res.Raw)
			}
		}
		return res.Num
	case gjson.JSON:
		if res.IsArray() {
			items := make([]any, 0)
			res.ForEach(func(_, value gjson.Result) bool {
				items = append(items, jsonValue(value))
				return true
			})
			return items
		}
		obj := make(map[string]any)
		res.ForEach(func(key, value gjson.Result) bool {
			obj[key.Str] = jsonValue(value)
			return true
		})
		return obj
	default:
		return res.Value()
	}
}

func isIntegerLiteral(raw string) bool {
	raw = strings.TrimPrefix(raw, "-")
	if raw == "" {
		return false
	}
	for i := 0; i < len(raw); i++ {
		if raw[i] < '0' || raw[i] > '9' {
			return false
		}
	}
	return true
}

// GJSONPath converts parsed path segments into a gjson path, escaping the
// characters gjson treats as syntax.
func GJSONPath(segments []parser.Segment) (string, bool) {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		switch seg.Kind {
		case parser.SegmentIndex:
			parts = append(parts, strconv.Itoa(seg.Index))
		default:
			if seg.Name == "" {
				return "", false
			}
			parts = append(parts, escapeGJSON(seg.Name))
		}
	}
	return strings.Join(parts, "."), true
}

func escapeGJSON(name string) string {
	var b strings.Builder
	for i := 0; i < len(name); i++ {
		switch name[i] {
		case '.', '*', '?', '|', '#', '@', '\\', '!', '=', '<', '>', '%':
			b.WriteByte('\\')
		}
		b.WriteByte(name[i])
	}
	return b.String()
}
