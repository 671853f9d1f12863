// Package http parses HTTP/1.x request and response lines and headers over
// a pkg/cursor view, per spec.md 4.D. Only an allow-listed subset of
// header names is retained (see headers.go), resolving spec.md 9's open
// question in favor of the allow-list-with-perfect-hash variant — Go's
// native map is the idiomatic stand-in for a generated perfect hash.
package http

import "github.com/andrewchi/mercury/pkg/cursor"

// Header is one allow-listed header as it appeared on the wire.
type Header struct {
	Name  string
	Value string
}

// Request is the decoded subset of an HTTP request line + headers.
type Request struct {
	Method   string
	URI      string
	Version  string
	Headers  []Header
	Complete bool // saw the terminating blank line
}

// IsNotEmpty reports whether the minimum required fields were present.
func (r Request) IsNotEmpty() bool {
	return r.Method != "" && r.URI != ""
}

// Response is the decoded subset of an HTTP response line + headers.
type Response struct {
	Version    string
	StatusCode int
	Reason     string
	Headers    []Header
	Complete   bool
}

// IsNotEmpty reports whether the minimum required fields were present.
func (r Response) IsNotEmpty() bool {
	return r.Version != "" && r.StatusCode != 0
}

// ParseRequest parses "METHOD URI VERSION\r\n" followed by headers and a
// terminating blank line. LF-only line endings are tolerated. A request
// line whose VERSION does not start with "HTTP/" yields an empty Request.
func ParseRequest(c cursor.Cursor) Request {
	line, ok := readLine(&c)
	if !ok {
		return Request{}
	}
	method, rest, ok := cutSpace(line)
	if !ok {
		return Request{}
	}
	uri, version, ok := cutSpace(rest)
	if !ok {
		return Request{}
	}
	if len(version) < 5 || version[:5] != "HTTP/" {
		return Request{}
	}
	req := Request{Method: method, URI: uri, Version: version}
	req.Headers, req.Complete = parseHeaders(&c)
	return req
}

// ParseResponse parses "VERSION STATUS REASON\r\n" followed by headers and
// a terminating blank line.
func ParseResponse(c cursor.Cursor) Response {
	line, ok := readLine(&c)
	if !ok {
		return Response{}
	}
	version, rest, ok := cutSpace(line)
	if !ok {
		return Response{}
	}
	statusStr, reason, ok := cutSpace(rest)
	if !ok {
		// Some servers omit the reason phrase entirely.
		statusStr = rest
		reason = ""
	}
	code := 0
	for _, d := range []byte(statusStr) {
		if d < '0' || d > '9' {
			code = 0
			break
		}
		code = code*10 + int(d-'0')
	}
	resp := Response{Version: version, StatusCode: code, Reason: reason}
	resp.Headers, resp.Complete = parseHeaders(&c)
	return resp
}

func parseHeaders(c *cursor.Cursor) ([]Header, bool) {
	var out []Header
	for {
		line, ok := readLine(c)
		if !ok {
			return out, false
		}
		if len(line) == 0 {
			return out, true
		}
		name, value, ok := cutColon(line)
		if !ok {
			continue
		}
		policy, allowed := headerAllowList[lower(name)]
		if !allowed {
			continue
		}
		h := Header{Name: lower(name)}
		if policy.IncludeValue {
			h.Value = trimSpace(value)
		}
		out = append(out, h)
	}
}

// readLine consumes bytes up to and including a line terminator (CRLF or
// bare LF) and returns the line without the terminator.
func readLine(c *cursor.Cursor) (string, bool) {
	raw := c.SkipUntil('\n')
	if raw == nil {
		return "", false
	}
	if n := len(raw); n > 0 && raw[n-1] == '\r' {
		raw = raw[:n-1]
	}
	return string(raw), true
}

func cutSpace(s string) (before, after string, ok bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == ' ' {
			return s[:i], trimLeadingSpace(s[i+1:]), true
		}
	}
	return s, "", false
}

func cutColon(s string) (before, after string, ok bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}

func trimLeadingSpace(s string) string {
	i := 0
	for i < len(s) && s[i] == ' ' {
		i++
	}
	return s[i:]
}

func trimSpace(s string) string {
	i, j := 0, len(s)
	for i < j && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	for j > i && (s[j-1] == ' ' || s[j-1] == '\t') {
		j--
	}
	return s[i:j]
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
