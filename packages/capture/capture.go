package capture

import (
	"fmt"
	"unicode/utf8"

	"github.com/abdul-hamid-achik/reqx/packages/core/parser"
	"github.com/abdul-hamid-achik/reqx/packages/http"
)

// Source is what captures read from. *http.Response implements it.
type Source interface {
	Lookup(p *parser.Path) (any, bool)
}

var _ Source = (*http.Response)(nil)

// Error reports a capture whose value could not be extracted.
type Error struct {
	Name   string
	Path   string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("capture %s from res.%s: %s", e.Name, e.Path, e.Reason)
}

type Result struct {
	Name  string
	Path  string
	Value any
	Line  int
	Err   *Error
}

func (r *Result) OK() bool {
	return r.Err == nil
}

type Extractor struct {
	source Source
}

func NewExtractor(source Source) *Extractor {
	return &Extractor{source: source}
}

func (e *Extractor) Extract(c *parser.Capture) (any, error) {
	value, ok := e.source.Lookup(c.Path)
	if !ok {
		return nil, e.fail(c, "path not found")
	}

	switch c.Func {
	case parser.CaptureFuncNone:
		return value, nil
	case parser.CaptureFuncLength:
		switch v := value.(type) {
		case []any:
			return len(v), nil
		case map[string]any:
			return len(v), nil
		case string:
			return utf8.RuneCountInString(v), nil
		}
		return nil, e.fail(c, fmt.Sprintf("length of %T is undefined", value))
	case parser.CaptureFuncFirst, parser.CaptureFuncLast:
		arr, ok := value.([]any)
		if !ok {
			return nil, e.fail(c, fmt.Sprintf("%s requires an array, got %T", c.Func, value))
		}
		if len(arr) == 0 {
			return nil, e.fail(c, fmt.Sprintf("%s of an empty array", c.Func))
		}
		if c.Func == parser.CaptureFuncFirst {
			return arr[0], nil
		}
		return arr[len(arr)-1], nil
	default:
		return nil, e.fail(c, fmt.Sprintf("unknown pipe function %v", c.Func))
	}
}

func (e *Extractor) fail(c *parser.Capture, reason string) *Error {
	return &Error{Name: c.Name, Path: c.Path.String(), Reason: reason}
}

// ExtractAll evaluates every capture in declaration order. A failed capture
// is recorded and does not stop the others.
func ExtractAll(source Source, captures []*parser.Capture) []*Result {
	extractor := NewExtractor(source)
	results := make([]*Result, 0, len(captures))

	for _, c := range captures {
		r := &Result{Name: c.Name, Path: c.Path.String(), Line: c.Line}
		value, err := extractor.Extract(c)
		if err != nil {
			r.Err = err.(*Error)
		} else {
			r.Value = value
		}
		results = append(results, r)
	}

	return results
}
