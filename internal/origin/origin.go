// Package origin decides which browser origins may use the relay.
package origin

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Wildcard allows every origin.
const Wildcard = "*"

// Policy is an origin allowlist. The zero value allows same-host origins only.
type Policy struct {
	allowed  map[string]struct{}
	wildcard bool
}

// NewPolicy normalizes the allowlist entries. An empty list selects the
// same-host default.
func NewPolicy(allowedOrigins []string) (*Policy, error) {
	p := &Policy{}
	for _, raw := range allowedOrigins {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if raw == Wildcard {
			p.wildcard = true
			continue
		}
		normalized, _, ok := Normalize(raw)
		if !ok {
			return nil, fmt.Errorf("invalid allowed origin %q", raw)
		}
		if p.allowed == nil {
			p.allowed = make(map[string]struct{})
		}
		p.allowed[normalized] = struct{}{}
	}
	return p, nil
}

// AllowsAny reports whether the policy contains the wildcard.
func (p *Policy) AllowsAny() bool { return p != nil && p.wildcard }

// SameHostOnly reports whether no explicit allowlist was configured.
func (p *Policy) SameHostOnly() bool { return p == nil || (!p.wildcard && len(p.allowed) == 0) }

// Check validates an Origin header against the policy for a request addressed
// to requestHost. It returns the normalized origin for use in CORS headers.
func (p *Policy) Check(originHeader, requestHost string) (string, bool) {
	normalized, host, ok := Normalize(originHeader)
	if !ok {
		return "", false
	}
	if p.AllowsAny() {
		return normalized, true
	}
	if !p.SameHostOnly() {
		_, ok := p.allowed[normalized]
		return normalized, ok
	}

	// Same host:port. Scheme is not compared since a TLS-terminating proxy
	// makes https origins arrive as plain http requests.
	scheme, _, found := strings.Cut(normalized, "://")
	if !found {
		// "null" never matches a host.
		return normalized, false
	}
	reqHost, ok := normalizeAuthority(strings.TrimSpace(requestHost), scheme)
	if !ok {
		return normalized, false
	}
	return normalized, reqHost == host
}

// Normalize validates a browser Origin header and returns scheme://host[:port]
// plus the host[:port] part. Default ports are dropped and the literal "null"
// is passed through with an empty host.
func Normalize(originHeader string) (normalized, host string, ok bool) {
	trimmed := strings.TrimSpace(originHeader)
	switch trimmed {
	case "":
		return "", "", false
	case "null":
		return "null", "", true
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" || u.Opaque != "" {
		return "", "", false
	}
	if u.User != nil || u.RawQuery != "" || u.ForceQuery || u.Fragment != "" {
		return "", "", false
	}
	if u.Path != "" && u.Path != "/" {
		return "", "", false
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", "", false
	}
	host, ok = normalizeAuthority(u.Host, scheme)
	if !ok {
		return "", "", false
	}
	return scheme + "://" + host, host, true
}

// normalizeAuthority lowercases host[:port], brackets IPv6 literals and drops
// the scheme's default port.
func normalizeAuthority(authority, scheme string) (string, bool) {
	hostname, rawPort, ok := splitHostPort(strings.ToLower(authority))
	if !ok || hostname == "" {
		return "", false
	}

	var port uint64
	if rawPort != "" {
		n, err := strconv.ParseUint(rawPort, 10, 16)
		if err != nil || n == 0 {
			return "", false
		}
		port = n
	}
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		port = 0
	}

	host := hostname
	if strings.Contains(hostname, ":") {
		host = "[" + hostname + "]"
	}
	if port != 0 {
		host += ":" + strconv.FormatUint(port, 10)
	}
	return host, true
}

// splitHostPort splits host[:port]. IPv6 literals must be bracketed; the
// brackets are stripped from the returned hostname.
func splitHostPort(authority string) (hostname, port string, ok bool) {
	if authority == "" {
		return "", "", false
	}

	if strings.HasPrefix(authority, "[") {
		end := strings.IndexByte(authority, ']')
		if end < 0 {
			return "", "", false
		}
		hostname, rest := authority[1:end], authority[end+1:]
		if rest == "" {
			return hostname, "", true
		}
		port, found := strings.CutPrefix(rest, ":")
		if !found || port == "" {
			return "", "", false
		}
		return hostname, port, true
	}

	hostname, port, found := strings.Cut(authority, ":")
	if !found {
		return authority, "", true
	}
	if hostname == "" || port == "" || strings.Contains(port, ":") {
		return "", "", false
	}
	return hostname, port, true
}
