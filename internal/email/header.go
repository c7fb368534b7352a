package email

import (
	"errors"
	"strings"
)

var (
	// ErrReservedHeader is returned when a custom header name contains a
	// reserved token.
	ErrReservedHeader = errors.New("header name is reserved")
	// ErrHeaderExists is returned when a header is already set and override
	// was not requested.
	ErrHeaderExists = errors.New("header already set")
)

// reservedTokens may not appear anywhere in a custom header name, in any case.
var reservedTokens = []string{"engine", "package"}

// HeaderPrefix is prepended to every custom header name when rendered.
const HeaderPrefix = "X-"

// HeaderParam is a single name=value parameter appended to a header value.
type HeaderParam struct {
	Name  string
	Value string
}

// Header is a custom header. Name is stored without the X- prefix.
type Header struct {
	Name   string
	Value  string
	Params []HeaderParam
}

// Field returns the rendered header field name.
func (h Header) Field() string {
	return HeaderPrefix + h.Name
}

// Rendered returns the value with its parameters, e.g. `v; a=1; b="x y"`.
func (h Header) Rendered() string {
	if len(h.Params) == 0 {
		return h.Value
	}
	var b strings.Builder
	b.WriteString(h.Value)
	for _, p := range h.Params {
		b.WriteString("; ")
		b.WriteString(p.Name)
		b.WriteByte('=')
		b.WriteString(quoteParam(p.Value))
	}
	return b.String()
}

// HeaderRegistry stores custom headers in registration order keyed by
// normalized name.
type HeaderRegistry struct {
	headers []Header
}

// NormalizeHeaderName replaces spaces with hyphens.
func NormalizeHeaderName(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(name), " ", "-")
}

// IsReservedHeader reports whether name contains a reserved token.
func IsReservedHeader(name string) bool {
	lower := strings.ToLower(name)
	for _, token := range reservedTokens {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}

// Set stores a header. With override false an existing header of the same
// name is left untouched and ErrHeaderExists is returned.
func (r *HeaderRegistry) Set(name, value string, params []HeaderParam, override bool) error {
	name = NormalizeHeaderName(name)
	if name == "" || IsReservedHeader(name) {
		return ErrReservedHeader
	}

	h := Header{Name: name, Value: value, Params: append([]HeaderParam(nil), params...)}
	if i := r.index(name); i >= 0 {
		if !override {
			return ErrHeaderExists
		}
		r.headers[i] = h
		return nil
	}
	r.headers = append(r.headers, h)
	return nil
}

// Get returns the header stored under name.
func (r *HeaderRegistry) Get(name string) (Header, bool) {
	if i := r.index(NormalizeHeaderName(name)); i >= 0 {
		return r.headers[i], true
	}
	return Header{}, false
}

// Headers returns a copy of all headers in registration order.
func (r *HeaderRegistry) Headers() []Header {
	out := make([]Header, len(r.headers))
	for i, h := range r.headers {
		h.Params = append([]HeaderParam(nil), h.Params...)
		out[i] = h
	}
	return out
}

// Len returns the number of registered headers.
func (r *HeaderRegistry) Len() int {
	return len(r.headers)
}

// Reset removes every custom header.
func (r *HeaderRegistry) Reset() {
	r.headers = nil
}

func (r *HeaderRegistry) index(name string) int {
	for i, h := range r.headers {
		if strings.EqualFold(h.Name, name) {
			return i
		}
	}
	return -1
}

// quoteParam quotes a parameter value when it holds MIME tspecials or spaces.
func quoteParam(v string) string {
	if v != "" && !strings.ContainsAny(v, " \t()<>@,;:\\\"/[]?=") {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return `"` + v + `"`
}
