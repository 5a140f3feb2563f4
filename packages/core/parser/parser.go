package parser

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	sectionRequest      = "request"
	sectionHeaders      = "headers"
	sectionQuery        = "query"
	sectionBody         = "body"
	sectionAssert       = "assert"
	sectionPostResponse = "post-response"
)

var knownSections = []string{
	sectionRequest,
	sectionHeaders,
	sectionQuery,
	sectionBody,
	sectionAssert,
	sectionPostResponse,
}

var captureNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func ParseFile(path string) (*RequestDefinition, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(path, content)
}

// Parse turns the content of a .reqx document into a RequestDefinition.
// Every failure is reported as a *ParseError naming the file.
func Parse(path string, content []byte) (*RequestDefinition, error) {
	var raw map[string]any
	md, err := toml.Decode(string(content), &raw)
	if err != nil {
		return nil, fromTOMLError(path, err)
	}

	p := &Parser{
		path: path,
		md:   md,
		raw:  raw,
		loc:  newLocator(string(content)),
	}
	return p.parse()
}

// Parser holds the decoded TOML tree for a single document while it is
// converted into a RequestDefinition.
type Parser struct {
	path string
	md   toml.MetaData
	raw  map[string]any
	loc  *locator
}

func (p *Parser) errorf(line int, format string, args ...any) *ParseError {
	return &ParseError{
		File:    p.path,
		Line:    line,
		Message: fmt.Sprintf(format, args...),
	}
}

func (p *Parser) parse() (*RequestDefinition, error) {
	for _, key := range sortedKeys(p.raw) {
		if !isKnownSection(key) {
			return nil, p.errorf(p.loc.section(key), "unknown section [%s] (expected one of %s)", key, strings.Join(knownSections, ", "))
		}
	}

	def := &RequestDefinition{Path: p.path}
	if err := p.parseRequest(def); err != nil {
		return nil, err
	}

	var err error
	if def.Headers, err = p.parseHeaders(); err != nil {
		return nil, err
	}
	if def.QueryParams, err = p.parseQuery(); err != nil {
		return nil, err
	}
	if def.Body, err = p.parseBody(); err != nil {
		return nil, err
	}
	if def.Assertions, err = p.parseAssertions(); err != nil {
		return nil, err
	}
	if def.Captures, err = p.parseCaptures(); err != nil {
		return nil, err
	}
	return def, nil
}

func (p *Parser) parseRequest(def *RequestDefinition) error {
	v, ok := p.raw[sectionRequest]
	if !ok {
		return p.errorf(0, "missing [request] section")
	}
	table, ok := v.(map[string]any)
	if !ok {
		return p.errorf(p.loc.key("", sectionRequest), "request must be a table")
	}

	for _, key := range sortedKeys(table) {
		line := p.loc.key(sectionRequest, key)
		switch key {
		case "method":
			s, ok := table[key].(string)
			if !ok || strings.TrimSpace(s) == "" {
				return p.errorf(line, "request.method must be a non-empty string")
			}
			def.Method = strings.ToUpper(strings.TrimSpace(s))
		case "url":
			s, ok := table[key].(string)
			if !ok || strings.TrimSpace(s) == "" {
				return p.errorf(line, "request.url must be a non-empty string")
			}
			def.URL = strings.TrimSpace(s)
		case "name":
			s, ok := table[key].(string)
			if !ok {
				return p.errorf(line, "request.name must be a string")
			}
			def.Name = s
		case "timeout":
			d, err := parseTimeout(table[key])
			if err != nil {
				return p.errorf(line, "request.timeout: %v", err)
			}
			def.Timeout = d
		default:
			return p.errorf(line, "unknown key %q in [request]", key)
		}
	}

	if def.Method == "" {
		return p.errorf(p.loc.section(sectionRequest), "missing required key request.method")
	}
	if def.URL == "" {
		return p.errorf(p.loc.section(sectionRequest), "missing required key request.url")
	}
	if def.Name == "" {
		def.Name = strings.TrimSuffix(filepath.Base(p.path), filepath.Ext(p.path))
	}
	return nil
}

func parseTimeout(v any) (time.Duration, error) {
	switch val := v.(type) {
	case int64:
		if val <= 0 {
			return 0, fmt.Errorf("must be positive")
		}
		return time.Duration(val) * time.Millisecond, nil
	case string:
		d, err := time.ParseDuration(val)
		if err != nil {
			return 0, err
		}
		if d <= 0 {
			return 0, fmt.Errorf("must be positive")
		}
		return d, nil
	default:
		return 0, fmt.Errorf("expected a duration string or milliseconds, got %T", v)
	}
}

func (p *Parser) parseHeaders() ([]*Header, error) {
	leaves, err := p.leaves(sectionHeaders)
	if err != nil {
		return nil, err
	}
	headers := make([]*Header, 0, len(leaves))
	for _, lf := range leaves {
		headers = append(headers, &Header{Key: lf.name, Value: stringifyScalar(lf.value)})
	}
	return headers, nil
}

func (p *Parser) parseQuery() ([]*QueryParam, error) {
	leaves, err := p.leaves(sectionQuery)
	if err != nil {
		return nil, err
	}
	params := make([]*QueryParam, 0, len(leaves))
	for _, lf := range leaves {
		params = append(params, &QueryParam{Key: lf.name, Value: stringifyScalar(lf.value)})
	}
	return params, nil
}

func (p *Parser) parseBody() (*Body, error) {
	v, ok := p.raw[sectionBody]
	if !ok {
		return nil, nil
	}
	switch val := normalize(v).(type) {
	case map[string]any:
		return &Body{Type: BodyJSON, Value: val}, nil
	case []any:
		return &Body{Type: BodyJSON, Value: val}, nil
	case string:
		return &Body{Type: BodyRaw, Value: val}, nil
	default:
		return nil, p.errorf(p.loc.key("", sectionBody), "body must be a table, an array or a string, got %T", v)
	}
}

func (p *Parser) parseAssertions() ([]*AssertionRule, error) {
	leaves, err := p.leaves(sectionAssert)
	if err != nil {
		return nil, err
	}
	rules := make([]*AssertionRule, 0, len(leaves))
	for _, lf := range leaves {
		path, err := ParsePath(lf.name)
		if err != nil {
			return nil, p.errorf(lf.line, "assert: %v", err)
		}
		expected, err := classifyExpected(lf.value)
		if err != nil {
			return nil, p.errorf(lf.line, "assert %q: %v", lf.name, err)
		}
		rules = append(rules, &AssertionRule{Path: path, Expected: expected, Line: lf.line})
	}
	return rules, nil
}

// classifyExpected maps a TOML value onto an expected-value specifier.
func classifyExpected(v any) (Expected, error) {
	s, ok := v.(string)
	if !ok {
		return Literal(normalize(v)), nil
	}

	if pred, ok := LookupPredicate(s); ok {
		return PredicateOf(pred), nil
	}
	if strings.HasPrefix(s, "schema:") {
		file := strings.TrimSpace(strings.TrimPrefix(s, "schema:"))
		if file == "" {
			return Expected{}, fmt.Errorf("schema requires a file path")
		}
		clean := filepath.Clean(file)
		if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
			return Expected{}, fmt.Errorf("schema file %q must stay inside the document directory", file)
		}
		return SchemaOf(clean), nil
	}
	if strings.HasPrefix(s, "~") {
		if isTemplate(s[1:]) {
			return LooseTemplated(s[1:]), nil
		}
		return LooseLiteral(s[1:]), nil
	}
	if isTemplate(s) {
		return Templated(s), nil
	}
	return Literal(s), nil
}

func isTemplate(s string) bool {
	return strings.Contains(s, "{{") && strings.Contains(s, "}}")
}

func (p *Parser) parseCaptures() ([]*Capture, error) {
	leaves, err := p.leaves(sectionPostResponse)
	if err != nil {
		return nil, err
	}
	captures := make([]*Capture, 0, len(leaves))
	for _, lf := range leaves {
		if !captureNamePattern.MatchString(lf.name) {
			return nil, p.errorf(lf.line, "post-response: invalid variable name %q", lf.name)
		}
		s, ok := lf.value.(string)
		if !ok {
			return nil, p.errorf(lf.line, "post-response %q: expected a string like \"res.body.id\", got %T", lf.name, lf.value)
		}
		c, err := parseCapture(lf.name, s)
		if err != nil {
			return nil, p.errorf(lf.line, "post-response %q: %v", lf.name, err)
		}
		c.Line = lf.line
		captures = append(captures, c)
	}
	return captures, nil
}

func parseCapture(name, expr string) (*Capture, error) {
	source := strings.TrimSpace(expr)
	fn := CaptureFuncNone

	if idx := strings.Index(source, "|"); idx >= 0 {
		pipe := strings.TrimSpace(source[idx+1:])
		source = strings.TrimSpace(source[:idx])
		switch pipe {
		case "length":
			fn = CaptureFuncLength
		case "first":
			fn = CaptureFuncFirst
		case "last":
			fn = CaptureFuncLast
		default:
			return nil, fmt.Errorf("unknown pipe function %q (expected length, first or last)", pipe)
		}
	}

	if !strings.HasPrefix(source, "res.") {
		return nil, fmt.Errorf("extraction path must start with \"res.\", got %q", source)
	}
	path, err := ParsePath(source)
	if err != nil {
		return nil, err
	}
	return &Capture{Name: name, Path: path, Func: fn, Original: strings.TrimSpace(expr)}, nil
}

type leaf struct {
	name  string
	value any
	line  int
}

// leaves flattens a section into its scalar leaves in declaration order.
// Nested tables produced by dotted keys are joined back with ".".
func (p *Parser) leaves(section string) ([]leaf, error) {
	v, ok := p.raw[section]
	if !ok {
		return nil, nil
	}
	table, ok := v.(map[string]any)
	if !ok {
		return nil, p.errorf(p.loc.key("", section), "%s must be a table", section)
	}

	var out []leaf
	seen := make(map[string]bool)
	for _, key := range p.md.Keys() {
		if len(key) < 2 || key[0] != section {
			continue
		}
		val, ok := lookupKey(table, key[1:])
		if !ok {
			continue
		}
		if _, isTable := val.(map[string]any); isTable {
			continue
		}
		name := strings.Join(key[1:], ".")
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, leaf{name: name, value: val, line: p.loc.key(section, key[1])})
	}

	// Keys the metadata did not report (inline tables on some decoders) are
	// appended in sorted order.
	walkLeaves(table, nil, func(parts []string, val any) {
		name := strings.Join(parts, ".")
		if seen[name] {
			return
		}
		seen[name] = true
		out = append(out, leaf{name: name, value: val, line: p.loc.key(section, parts[0])})
	})
	return out, nil
}

func lookupKey(table map[string]any, parts []string) (any, bool) {
	var cur any = table
	for _, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func walkLeaves(table map[string]any, prefix []string, fn func([]string, any)) {
	for _, key := range sortedKeys(table) {
		parts := append(append([]string(nil), prefix...), key)
		if nested, ok := table[key].(map[string]any); ok {
			walkLeaves(nested, parts, fn)
			continue
		}
		fn(parts, table[key])
	}
}

// normalize converts decoded TOML values into the JSON-compatible shapes used
// everywhere else: arrays of tables become []any and datetimes become strings.
func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalize(item)
		}
		return out
	case []map[string]any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	case time.Time:
		return formatDatetime(val)
	default:
		return v
	}
}

func formatDatetime(t time.Time) string {
	switch t.Location().String() {
	case "date-local":
		return t.Format("2006-01-02")
	case "time-local":
		return t.Format("15:04:05.999999999")
	case "datetime-local":
		return t.Format("2006-01-02T15:04:05.999999999")
	default:
		return t.Format(time.RFC3339Nano)
	}
}

func stringifyScalar(v any) string {
	switch val := normalize(v).(type) {
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func isKnownSection(name string) bool {
	for _, s := range knownSections {
		if s == name {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func fromTOMLError(path string, err error) error {
	var perr toml.ParseError
	if errors.As(err, &perr) {
		return &ParseError{
			File:    path,
			Line:    perr.Position.Line,
			Message: "invalid TOML: " + perr.Message,
		}
	}
	return &ParseError{File: path, Message: "invalid TOML: " + err.Error()}
}

// locator finds approximate source lines for sections and keys. BurntSushi
// metadata carries key order but not positions.
type locator struct {
	lines []string
}

func newLocator(content string) *locator {
	return &locator{lines: strings.Split(content, "\n")}
}

func (l *locator) section(name string) int {
	for i, line := range l.lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "["+name+"]" || trimmed == "[\""+name+"\"]" || strings.HasPrefix(trimmed, "["+name+".") {
			return i + 1
		}
		if strings.HasPrefix(trimmed, name) && strings.HasPrefix(strings.TrimSpace(trimmed[len(name):]), "=") {
			return i + 1
		}
	}
	return 0
}

// key returns the line of key inside section, or 0 when unknown. An empty
// section searches the whole document.
func (l *locator) key(section, key string) int {
	start := 0
	if section != "" {
		start = l.section(section)
		if start == 0 {
			return 0
		}
	}
	for i := start; i < len(l.lines); i++ {
		trimmed := strings.TrimSpace(l.lines[i])
		if section != "" && i > start && strings.HasPrefix(trimmed, "[") && !strings.HasPrefix(trimmed, "["+section) {
			break
		}
		for _, candidate := range []string{key, strconv.Quote(key), "'" + key + "'"} {
			if !strings.HasPrefix(trimmed, candidate) {
				continue
			}
			rest := strings.TrimSpace(trimmed[len(candidate):])
			if strings.HasPrefix(rest, "=") || strings.HasPrefix(rest, ".") {
				return i + 1
			}
		}
	}
	return 0
}
