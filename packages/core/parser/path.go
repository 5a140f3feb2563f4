package parser

import (
	"fmt"
	"strconv"
	"strings"
)

type Root int

const (
	RootStatus Root = iota
	RootHeaders
	RootBody
)

func (r Root) String() string {
	switch r {
	case RootStatus:
		return "status"
	case RootHeaders:
		return "headers"
	default:
		return "body"
	}
}

type SegmentKind int

const (
	SegmentField SegmentKind = iota
	SegmentIndex
)

type Segment struct {
	Kind  SegmentKind
	Name  string
	Index int
}

// Path is a parsed path expression addressing part of a response.
type Path struct {
	Raw      string
	Root     Root
	Segments []Segment
}

// String returns the canonical form of the path, without any res. prefix.
func (p *Path) String() string {
	var b strings.Builder
	b.WriteString(p.Root.String())
	for _, seg := range p.Segments {
		switch seg.Kind {
		case SegmentIndex:
			b.WriteString("[")
			b.WriteString(strconv.Itoa(seg.Index))
			b.WriteString("]")
		default:
			if isPlainName(seg.Name) {
				b.WriteString(".")
				b.WriteString(seg.Name)
			} else {
				b.WriteString("[")
				b.WriteString(strconv.Quote(seg.Name))
				b.WriteString("]")
			}
		}
	}
	return b.String()
}

func isPlainName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		if !isIdentChar(name[i]) {
			return false
		}
	}
	return true
}

// ParsePath parses a path expression. The grammar is
//
//	root ( '.' ident | '[' index ']' | '[' quoted-key ']' )*
//
// where root is status, headers or body, optionally written with a leading
// "res." prefix.
func ParsePath(expr string) (*Path, error) {
	raw := strings.TrimSpace(expr)
	if raw == "" {
		return nil, fmt.Errorf("empty path expression")
	}

	src := raw
	if strings.HasPrefix(src, "res.") {
		src = src[len("res."):]
	}

	l := NewLexer(src)
	tok := l.NextToken()
	if tok.Type != TokenIdent {
		return nil, fmt.Errorf("invalid path %q: expected status, headers or body", raw)
	}

	path := &Path{Raw: raw}
	switch tok.Value {
	case "status":
		path.Root = RootStatus
	case "headers":
		path.Root = RootHeaders
	case "body":
		path.Root = RootBody
	default:
		return nil, fmt.Errorf("invalid path %q: unknown root %q, expected status, headers or body", raw, tok.Value)
	}

	for {
		tok = l.NextToken()
		switch tok.Type {
		case TokenEOF:
			return path, path.validate()
		case TokenDot:
			name := l.NextToken()
			if name.Type != TokenIdent {
				return nil, fmt.Errorf("invalid path %q: expected field name at column %d, got %s", raw, name.Column, name.Type)
			}
			path.Segments = append(path.Segments, Segment{Kind: SegmentField, Name: name.Value})
		case TokenLeftBracket:
			seg, err := parseBracket(l, raw)
			if err != nil {
				return nil, err
			}
			path.Segments = append(path.Segments, seg)
		default:
			return nil, fmt.Errorf("invalid path %q: unexpected %s at column %d", raw, tok.Type, tok.Column)
		}
	}
}

func parseBracket(l *Lexer, raw string) (Segment, error) {
	inner := l.NextToken()
	var seg Segment
	switch inner.Type {
	case TokenString:
		seg = Segment{Kind: SegmentField, Name: inner.Value}
	case TokenIdent:
		n, err := strconv.Atoi(inner.Value)
		if err != nil || n < 0 {
			return seg, fmt.Errorf("invalid path %q: array index must be a non-negative integer, got %q", raw, inner.Value)
		}
		seg = Segment{Kind: SegmentIndex, Index: n}
	default:
		return seg, fmt.Errorf("invalid path %q: expected index or quoted key at column %d", raw, inner.Column)
	}

	closing := l.NextToken()
	if closing.Type != TokenRightBracket {
		return seg, fmt.Errorf("invalid path %q: expected ']' at column %d", raw, closing.Column)
	}
	return seg, nil
}

func (p *Path) validate() error {
	switch p.Root {
	case RootStatus:
		if len(p.Segments) > 0 {
			return fmt.Errorf("invalid path %q: status has no sub-fields", p.Raw)
		}
	case RootHeaders:
		if len(p.Segments) > 1 {
			return fmt.Errorf("invalid path %q: headers accepts a single header name", p.Raw)
		}
		if len(p.Segments) == 1 && p.Segments[0].Kind != SegmentField {
			return fmt.Errorf("invalid path %q: header names cannot be indexed", p.Raw)
		}
	}
	return nil
}
