package parser

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Format renders a RequestDefinition back into .reqx text. It is used for
// diagnostics; parsing the output yields an equivalent definition.
func Format(def *RequestDefinition) string {
	var b strings.Builder

	// Top-level keys must precede every table header.
	var bodyTable string
	if def.Body != nil {
		switch v := def.Body.Value.(type) {
		case string:
			fmt.Fprintf(&b, "body = %s\n\n", quoteTOML(v))
		case []any:
			fmt.Fprintf(&b, "body = %s\n\n", formatTOMLValue(v))
		case map[string]any:
			table, err := encodeTable(sectionBody, v)
			if err != nil {
				fmt.Fprintf(&b, "body = %s\n\n", formatTOMLValue(v))
			} else {
				bodyTable = table
			}
		}
	}

	b.WriteString("[request]\n")
	if def.Name != "" {
		fmt.Fprintf(&b, "name = %s\n", quoteTOML(def.Name))
	}
	fmt.Fprintf(&b, "method = %s\n", quoteTOML(def.Method))
	fmt.Fprintf(&b, "url = %s\n", quoteTOML(def.URL))
	if def.Timeout > 0 {
		fmt.Fprintf(&b, "timeout = %s\n", quoteTOML(def.Timeout.String()))
	}

	if len(def.Headers) > 0 {
		b.WriteString("\n[headers]\n")
		for _, h := range def.Headers {
			fmt.Fprintf(&b, "%s = %s\n", quoteTOML(h.Key), quoteTOML(h.Value))
		}
	}

	if len(def.QueryParams) > 0 {
		b.WriteString("\n[query]\n")
		for _, q := range def.QueryParams {
			fmt.Fprintf(&b, "%s = %s\n", quoteTOML(q.Key), quoteTOML(q.Value))
		}
	}

	if bodyTable != "" {
		b.WriteString("\n")
		b.WriteString(bodyTable)
	}

	if len(def.Assertions) > 0 {
		b.WriteString("\n[assert]\n")
		for _, rule := range def.Assertions {
			fmt.Fprintf(&b, "%s = %s\n", quoteTOML(rule.Path.String()), formatExpected(rule.Expected))
		}
	}

	if len(def.Captures) > 0 {
		b.WriteString("\n[post-response]\n")
		for _, c := range def.Captures {
			expr := "res." + c.Path.String()
			if c.Func != CaptureFuncNone {
				expr += " | " + c.Func.String()
			}
			fmt.Fprintf(&b, "%s = %s\n", c.Name, quoteTOML(expr))
		}
	}

	return b.String()
}

func encodeTable(name string, m map[string]any) (string, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.Indent = ""
	if err := enc.Encode(map[string]any{name: m}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func formatExpected(e Expected) string {
	switch e.Kind {
	case ExpectLiteral:
		if e.Loose {
			return quoteTOML("~" + stringifyScalar(e.Value))
		}
		return formatTOMLValue(e.Value)
	case ExpectTemplate:
		if e.Loose {
			return quoteTOML("~" + e.Template)
		}
		return quoteTOML(e.Template)
	case ExpectPredicate:
		return quoteTOML(e.Predicate.String())
	case ExpectSchema:
		return quoteTOML("schema:" + e.Schema)
	default:
		return quoteTOML(e.String())
	}
}

func formatTOMLValue(v any) string {
	switch val := v.(type) {
	case nil:
		return quoteTOML("null")
	case string:
		return quoteTOML(val)
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return formatTOMLFloat(val)
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = formatTOMLValue(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = quoteTOML(k) + " = " + formatTOMLValue(val[k])
		}
		return "{ " + strings.Join(parts, ", ") + " }"
	default:
		return quoteTOML(fmt.Sprintf("%v", val))
	}
}

func formatTOMLFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// quoteTOML writes s as a TOML basic string.
func quoteTOML(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 || r == 0x7f {
				fmt.Fprintf(&b, `\u%04X`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
	return b.String()
}
