package parser

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RequestDefinition is the parsed form of one .reqx document. It is never
// mutated after Parse returns.
type RequestDefinition struct {
	Path        string
	Name        string
	Method      string
	URL         string
	Timeout     time.Duration
	Headers     []*Header
	QueryParams []*QueryParam
	Body        *Body
	Assertions  []*AssertionRule
	Captures    []*Capture
}

type Header struct {
	Key   string
	Value string
}

type QueryParam struct {
	Key   string
	Value string
}

type BodyType int

const (
	BodyNone BodyType = iota
	BodyJSON
	BodyRaw
)

func (t BodyType) String() string {
	switch t {
	case BodyJSON:
		return "json"
	case BodyRaw:
		return "raw"
	default:
		return "none"
	}
}

// Body holds either a structured value (maps, slices and scalars as decoded
// from the document) or a raw string.
type Body struct {
	Type  BodyType
	Value any
}

type AssertionRule struct {
	Path     *Path
	Expected Expected
	Line     int
}

// ExpectKind tags the variant held by an Expected value. The set is closed:
// every switch over it in this module handles each kind.
type ExpectKind int

const (
	ExpectLiteral ExpectKind = iota
	ExpectTemplate
	ExpectPredicate
	ExpectSchema
)

func (k ExpectKind) String() string {
	switch k {
	case ExpectLiteral:
		return "literal"
	case ExpectTemplate:
		return "template"
	case ExpectPredicate:
		return "predicate"
	case ExpectSchema:
		return "schema"
	default:
		return "unknown"
	}
}

type Predicate int

const (
	PredExists Predicate = iota
	PredNotExists
	PredIsArray
	PredIsObject
	PredIsNumber
	PredIsString
	PredIsNull
	PredIsBool
	PredIsUUID
	PredIsISO8601
	PredIsEmail
)

var predicateNames = map[string]Predicate{
	"exists":     PredExists,
	"!exists":    PredNotExists,
	"is_array":   PredIsArray,
	"is_object":  PredIsObject,
	"is_number":  PredIsNumber,
	"is_string":  PredIsString,
	"is_null":    PredIsNull,
	"is_bool":    PredIsBool,
	"is_uuid":    PredIsUUID,
	"is_iso8601": PredIsISO8601,
	"is_email":   PredIsEmail,
}

func LookupPredicate(name string) (Predicate, bool) {
	p, ok := predicateNames[name]
	return p, ok
}

func (p Predicate) String() string {
	for name, v := range predicateNames {
		if v == p {
			return name
		}
	}
	return "unknown"
}

// Expected is the expected-value specifier of an assertion rule.
//
// For ExpectLiteral, Value holds the literal. For ExpectTemplate, Template
// holds the raw text and Value is populated by Resolve. Loose requests a
// stringified comparison for either. ExpectPredicate uses Predicate and
// ExpectSchema uses Schema (a file path).
type Expected struct {
	Kind      ExpectKind
	Value     any
	Loose     bool
	Template  string
	Predicate Predicate
	Schema    string

	resolved bool
}

func Literal(v any) Expected {
	return Expected{Kind: ExpectLiteral, Value: v}
}

func LooseLiteral(s string) Expected {
	return Expected{Kind: ExpectLiteral, Value: s, Loose: true}
}

func Templated(tmpl string) Expected {
	return Expected{Kind: ExpectTemplate, Template: tmpl}
}

// LooseTemplated is a template whose resolved value is compared as text.
func LooseTemplated(tmpl string) Expected {
	return Expected{Kind: ExpectTemplate, Template: tmpl, Loose: true}
}

func PredicateOf(p Predicate) Expected {
	return Expected{Kind: ExpectPredicate, Predicate: p}
}

func SchemaOf(path string) Expected {
	return Expected{Kind: ExpectSchema, Schema: path}
}

// Resolve returns a copy of a templated specifier with its value filled in by
// fn. Other kinds are returned unchanged.
func (e Expected) Resolve(fn func(tmpl string) (any, error)) (Expected, error) {
	if e.Kind != ExpectTemplate {
		return e, nil
	}
	v, err := fn(e.Template)
	if err != nil {
		return e, err
	}
	e.Value = v
	e.resolved = true
	return e, nil
}

// Resolved reports whether a templated specifier has been materialized.
func (e Expected) Resolved() bool {
	return e.Kind != ExpectTemplate || e.resolved
}

func (e Expected) String() string {
	switch e.Kind {
	case ExpectLiteral:
		if e.Loose {
			return "~" + fmt.Sprintf("%v", e.Value)
		}
		return FormatValue(e.Value)
	case ExpectTemplate:
		if e.resolved {
			if e.Loose {
				return "~" + fmt.Sprintf("%v", e.Value)
			}
			return FormatValue(e.Value)
		}
		if e.Loose {
			return "~" + e.Template
		}
		return e.Template
	case ExpectPredicate:
		return e.Predicate.String()
	case ExpectSchema:
		return "schema:" + e.Schema
	default:
		return "unknown"
	}
}

// FormatValue renders a value for diagnostics: strings are quoted, other
// scalars use their literal text.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}

type CaptureFunc int

const (
	CaptureFuncNone CaptureFunc = iota
	CaptureFuncLength
	CaptureFuncFirst
	CaptureFuncLast
)

func (f CaptureFunc) String() string {
	switch f {
	case CaptureFuncLength:
		return "length"
	case CaptureFuncFirst:
		return "first"
	case CaptureFuncLast:
		return "last"
	default:
		return ""
	}
}

// Capture binds a response value to a variable for later requests.
type Capture struct {
	Name     string
	Path     *Path
	Func     CaptureFunc
	Line     int
	Original string
}

type ParseError struct {
	File    string
	Line    int
	Column  int
	Message string
}

func (e *ParseError) Error() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		b.WriteString(":")
	}
	if e.Line > 0 {
		b.WriteString(strconv.Itoa(e.Line))
		b.WriteString(":")
		if e.Column > 0 {
			b.WriteString(strconv.Itoa(e.Column))
			b.WriteString(":")
		}
	}
	if b.Len() > 0 {
		b.WriteString(" ")
	}
	b.WriteString(e.Message)
	return b.String()
}
