// Package did parses Decentralized Identifiers and DID URLs and allocates new
// did:plc identifiers for the document registry.
package did

import (
	"regexp"
	"strings"
)

// Grammar:
//
//	"did:" method ":" id [ "/" path ] [ "?" query ] [ "#" fragment ]
//
// The id capture runs up to the first unescaped '/', '?' or '#', so ids may
// contain ':' themselves (did:web:example.com:users:alice). Path, query and
// fragment are limited to RFC 3986 pchar plus '/' (and '?' after the path).
const pchar = `(?:[a-zA-Z0-9._~!$&'()*+,;=:@-]|%[0-9a-fA-F]{2})`

var didURLPattern = regexp.MustCompile(
	`^did:([a-z0-9]+):` +
		`((?:(?:[a-zA-Z0-9._-]|%[0-9a-fA-F]{2})*:)*(?:[a-zA-Z0-9._-]|%[0-9a-fA-F]{2})+)` +
		`(/(?:` + pchar + `|/)*)?` +
		`(?:\?((?:` + pchar + `|[/?])*))?` +
		`(?:#((?:` + pchar + `|[/?])*))?$`)

// URL is a parsed DID or DID URL.
type URL struct {
	// URI is the canonical bare DID: "did:" + Method + ":" + ID.
	URI      string
	Method   string
	ID       string
	Path     string // includes the leading '/', empty when absent
	Query    string // without the leading '?'
	Fragment string // without the leading '#'
	Params   map[string]string
	// Raw is the input string the URL was parsed from.
	Raw string
}

// Parse decomposes s into its DID URL components. It never panics; malformed
// input yields ok == false.
func Parse(s string) (URL, bool) {
	if s == "" {
		return URL{}, false
	}
	m := didURLPattern.FindStringSubmatchIndex(s)
	if m == nil {
		return URL{}, false
	}
	group := func(i int) (string, bool) {
		if m[2*i] < 0 {
			return "", false
		}
		return s[m[2*i]:m[2*i+1]], true
	}

	method, _ := group(1)
	id, _ := group(2)
	u := URL{
		URI:    "did:" + method + ":" + id,
		Method: method,
		ID:     id,
		Raw:    s,
	}
	u.Path, _ = group(3)
	if query, ok := group(4); ok {
		u.Query = query
		u.Params = parseParams(query)
	}
	u.Fragment, _ = group(5)
	return u, true
}

// HasQuery reports whether the URL carried a '?' component.
func (u URL) HasQuery() bool { return u.Params != nil }

// HasFragment reports whether the URL carried a non-empty fragment.
func (u URL) HasFragment() bool { return u.Fragment != "" }

// IsBareDID reports whether the URL is a plain DID without path, query or
// fragment.
func (u URL) IsBareDID() bool { return u.Path == "" && !u.HasQuery() && u.Fragment == "" }

func (u URL) String() string {
	if u.Raw != "" {
		return u.Raw
	}
	return u.URI
}

// parseParams folds "a=1&b=2" into a map; duplicate keys keep the last value.
func parseParams(query string) map[string]string {
	params := make(map[string]string)
	if query == "" {
		return params
	}
	for _, pair := range strings.Split(query, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		params[key] = value
	}
	return params
}
