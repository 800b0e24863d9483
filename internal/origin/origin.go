// Package origin implements the browser Origin checks shared by the HTTP API
// (CORS) and the signaling WebSocket upgrade.
package origin

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Wildcard allows every origin when present in an allow list.
const Wildcard = "*"

// NormalizeHeader validates and normalizes a browser Origin header.
//
// It returns the normalized origin (scheme://host[:port], default ports
// dropped) and the host[:port] portion for same-host comparisons. The special
// value "null" is accepted and returned as-is with an empty host.
func NormalizeHeader(originHeader string) (normalizedOrigin string, host string, ok bool) {
	trimmed := strings.TrimSpace(originHeader)
	switch trimmed {
	case "":
		return "", "", false
	case "null":
		return "null", "", true
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
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

// Policy decides which browser origins may call the relay.
//
// An empty policy is same-host only. A policy containing Wildcard allows every
// origin, including "null".
type Policy struct {
	allowed []string
	any     bool
}

// NewPolicy builds a policy from origins already normalized by NormalizeHeader
// (or Wildcard).
func NewPolicy(allowedOrigins []string) Policy {
	p := Policy{allowed: append([]string(nil), allowedOrigins...)}
	for _, o := range allowedOrigins {
		if o == Wildcard {
			p.any = true
		}
	}
	return p
}

// AllowsAny reports whether the policy is the wildcard policy.
func (p Policy) AllowsAny() bool { return p.any }

// Check evaluates the Origin header of r. Requests without an Origin header
// (curl, server-to-server) are allowed and return an empty origin.
func (p Policy) Check(r *http.Request) (normalizedOrigin string, ok bool) {
	raw := r.Header.Get("Origin")
	if raw == "" {
		return "", true
	}
	normalized, host, valid := NormalizeHeader(raw)
	if !valid {
		return "", false
	}
	return normalized, p.Allows(normalized, host, r.Host)
}

// Allows reports whether a normalized origin may access requestHost.
//
// With an explicit allow list the origin must be listed. Otherwise the
// origin's host[:port] must equal the request Host (default ports are
// equivalent). Schemes are not compared: the relay commonly sits behind a
// TLS-terminating proxy and sees plain HTTP.
func (p Policy) Allows(normalizedOrigin, originHost, requestHost string) bool {
	if p.any {
		return true
	}
	if len(p.allowed) > 0 {
		for _, allowed := range p.allowed {
			if allowed == normalizedOrigin {
				return true
			}
		}
		return false
	}

	var scheme string
	switch {
	case strings.HasPrefix(normalizedOrigin, "http://"):
		scheme = "http"
	case strings.HasPrefix(normalizedOrigin, "https://"):
		scheme = "https"
	default:
		// "null" never matches a host.
		return false
	}

	reqHost, ok := normalizeAuthority(strings.ToLower(strings.TrimSpace(requestHost)), scheme)
	if !ok {
		return false
	}
	return originHost == reqHost
}

// normalizeAuthority lowercases host[:port], brackets IPv6 literals and drops
// the scheme's default port.
func normalizeAuthority(authority, scheme string) (string, bool) {
	rawHostname, rawPort, ok := splitHostPort(authority)
	if !ok {
		return "", false
	}

	hostname := strings.ToLower(rawHostname)
	if hostname == "" {
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

// splitHostPort splits host[:port]. IPv6 hostnames are returned without
// brackets; the port is returned unvalidated.
func splitHostPort(rawHost string) (hostname, port string, ok bool) {
	if rawHost == "" {
		return "", "", false
	}

	if strings.HasPrefix(rawHost, "[") {
		end := strings.IndexByte(rawHost, ']')
		if end < 0 {
			return "", "", false
		}
		hostname = rawHost[1:end]
		rest := rawHost[end+1:]
		if rest == "" {
			return hostname, "", true
		}
		if !strings.HasPrefix(rest, ":") || len(rest) == 1 {
			return "", "", false
		}
		return hostname, rest[1:], true
	}

	switch strings.Count(rawHost, ":") {
	case 0:
		return rawHost, "", true
	case 1:
		hostname, port, _ = strings.Cut(rawHost, ":")
		if hostname == "" || port == "" {
			return "", "", false
		}
		return hostname, port, true
	default:
		// Unbracketed IPv6 is not a valid authority.
		return "", "", false
	}
}
