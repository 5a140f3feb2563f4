package http

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/reqx/packages/core/parser"
	"github.com/abdul-hamid-achik/reqx/packages/core/templating"
)

type Header struct {
	Key   string
	Value string
}

type QueryParam struct {
	Key   string
	Value string
}

// Request is a fully materialized HTTP call: no placeholders remain.
type Request struct {
	Method      string
	URL         string
	Headers     []Header
	QueryParams []QueryParam
	Body        []byte
	Timeout     time.Duration
}

func NewRequest(method, requestURL string) *Request {
	return &Request{
		Method: method,
		URL:    requestURL,
	}
}

// SetHeader replaces any header with the same name (case-insensitive) or
// appends a new one, keeping declaration order.
func (r *Request) SetHeader(key, value string) *Request {
	for i, h := range r.Headers {
		if strings.EqualFold(h.Key, key) {
			r.Headers[i].Value = value
			return r
		}
	}
	r.Headers = append(r.Headers, Header{Key: key, Value: value})
	return r
}

func (r *Request) Header(key string) (string, bool) {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Key, key) {
			return h.Value, true
		}
	}
	return "", false
}

func (r *Request) SetBody(body []byte) *Request {
	r.Body = body
	return r
}

func (r *Request) SetTimeout(d time.Duration) *Request {
	r.Timeout = d
	return r
}

func (r *Request) AddQueryParam(key, value string) *Request {
	r.QueryParams = append(r.QueryParams, QueryParam{Key: key, Value: value})
	return r
}

// BuildURL appends the query parameters to URL in declaration order,
// after any query already present in it.
func (r *Request) BuildURL() (string, error) {
	if len(r.QueryParams) == 0 {
		return r.URL, nil
	}

	u, err := url.Parse(r.URL)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}

	parts := make([]string, 0, len(r.QueryParams)+1)
	if u.RawQuery != "" {
		parts = append(parts, u.RawQuery)
	}
	for _, q := range r.QueryParams {
		parts = append(parts, url.QueryEscape(q.Key)+"="+url.QueryEscape(q.Value))
	}
	u.RawQuery = strings.Join(parts, "&")
	return u.String(), nil
}

// BuildRequest materializes a request definition: every templated field is
// substituted through engine and query parameters are folded into the URL.
// A structured body is encoded as JSON and gets a JSON Content-Type unless
// the document sets one.
func BuildRequest(def *parser.RequestDefinition, engine *templating.Engine) (*Request, error) {
	rawURL, err := engine.Substitute("url", def.URL)
	if err != nil {
		return nil, err
	}
	r := NewRequest(def.Method, rawURL)
	r.SetTimeout(def.Timeout)

	for _, h := range def.Headers {
		value, err := engine.Substitute("header "+h.Key, h.Value)
		if err != nil {
			return nil, err
		}
		r.SetHeader(h.Key, value)
	}

	for _, q := range def.QueryParams {
		value, err := engine.Substitute("query "+q.Key, q.Value)
		if err != nil {
			return nil, err
		}
		r.AddQueryParam(q.Key, value)
	}

	if def.Body != nil {
		switch def.Body.Type {
		case parser.BodyJSON:
			value, err := engine.SubstituteValue("body", def.Body.Value)
			if err != nil {
				return nil, err
			}
			data, err := json.Marshal(value)
			if err != nil {
				return nil, fmt.Errorf("encode body: %w", err)
			}
			r.SetBody(data)
			if _, ok := r.Header("Content-Type"); !ok {
				r.SetHeader("Content-Type", "application/json")
			}
		case parser.BodyRaw:
			raw, _ := def.Body.Value.(string)
			value, err := engine.Substitute("body", raw)
			if err != nil {
				return nil, err
			}
			r.SetBody([]byte(value))
		}
	}

	built, err := r.BuildURL()
	if err != nil {
		return nil, err
	}
	r.URL = built
	r.QueryParams = nil
	return r, nil
}
