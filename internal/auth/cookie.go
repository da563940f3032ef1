// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sistema POS Contributors

package auth

import (
	"net"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// SessionCookieName is the cookie carrying the session id.
const SessionCookieName = "sid"

// SameSite values emitted on the session cookie.
const (
	SameSiteLax  = "Lax"
	SameSiteNone = "None"
)

// CookiePolicy holds the request-dependent attributes of the session cookie.
// An empty Domain means the attribute is omitted.
type CookiePolicy struct {
	Secure   bool
	SameSite string
	Domain   string
}

// ResolveCookiePolicy derives cookie attributes from the request Origin
// header, the request host and the request protocol ("http" or "https").
// It is a pure function.
func ResolveCookiePolicy(origin, host, protocol string) CookiePolicy {
	hostname := normalizeHost(host)
	isIP := isIPHost(hostname)
	// An IP host over TLS is not local: it still gets Secure, only Domain
	// is dropped below.
	isLocal := !strings.EqualFold(strings.TrimSuffix(protocol, ":"), "https") ||
		hostname == "localhost"

	policy := CookiePolicy{
		SameSite: SameSiteLax,
		Secure:   !isLocal,
	}

	if originHost, ok := originHostname(origin); ok && originHost != hostname {
		policy.SameSite = SameSiteNone
	}
	// Browsers reject SameSite=None without Secure.
	if policy.SameSite == SameSiteNone {
		policy.Secure = true
	}

	// Domain is invalid on IP hosts even when they are served over TLS.
	if !isLocal && !isIP {
		policy.Domain = hostname
	}
	return policy
}

// normalizeHost strips any port and IPv6 brackets and lower-cases the host.
func normalizeHost(host string) string {
	host = strings.TrimSpace(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimPrefix(strings.TrimSuffix(host, "]"), "[")
	return strings.ToLower(host)
}

// isIPHost reports whether hostname is an IP literal. IPv6 zones, raw or
// percent-encoded ("fe80::1%eth0", "fe80::1%25eth0"), are ignored.
func isIPHost(hostname string) bool {
	if i := strings.IndexByte(hostname, '%'); i >= 0 {
		hostname = hostname[:i]
	}
	_, err := netip.ParseAddr(hostname)
	return err == nil
}

// originHostname extracts the hostname of an Origin header value. Opaque or
// malformed origins ("null", missing scheme) report ok=false.
func originHostname(origin string) (string, bool) {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return "", false
	}
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	return strings.ToLower(u.Hostname()), true
}

// CookieDirective describes a Set-Cookie header for the session cookie.
type CookieDirective struct {
	Name     string
	Value    string
	HTTPOnly bool
	Path     string
	SameSite string
	Secure   bool
	Domain   string
	MaxAge   int
}

// NewSessionCookie builds the cookie that carries a freshly issued session.
func NewSessionCookie(sessionID string, policy CookiePolicy, ttl time.Duration) CookieDirective {
	return CookieDirective{
		Name:     SessionCookieName,
		Value:    sessionID,
		HTTPOnly: true,
		Path:     "/",
		SameSite: policy.SameSite,
		Secure:   policy.Secure,
		Domain:   policy.Domain,
		MaxAge:   int(ttl / time.Second),
	}
}

// ExpiredSessionCookie builds a cookie that clears the session cookie. It
// must be given the same policy used at login or browsers keep the original.
func ExpiredSessionCookie(policy CookiePolicy) CookieDirective {
	return CookieDirective{
		Name:     SessionCookieName,
		Value:    "",
		HTTPOnly: true,
		Path:     "/",
		SameSite: policy.SameSite,
		Secure:   policy.Secure,
		Domain:   policy.Domain,
		MaxAge:   0,
	}
}

// String renders the directive as a Set-Cookie header value:
// name=value; HttpOnly; Path=/; SameSite=X; [Secure; ][Domain=d; ]Max-Age=n
func (c CookieDirective) String() string {
	var b strings.Builder
	b.WriteString(c.Name)
	b.WriteByte('=')
	b.WriteString(c.Value)
	if c.HTTPOnly {
		b.WriteString("; HttpOnly")
	}
	if c.Path != "" {
		b.WriteString("; Path=")
		b.WriteString(c.Path)
	}
	if c.SameSite != "" {
		b.WriteString("; SameSite=")
		b.WriteString(c.SameSite)
	}
	if c.Secure {
		b.WriteString("; Secure")
	}
	if c.Domain != "" {
		b.WriteString("; Domain=")
		b.WriteString(c.Domain)
	}
	maxAge := c.MaxAge
	if maxAge < 0 {
		maxAge = 0
	}
	b.WriteString("; Max-Age=")
	b.WriteString(strconv.Itoa(maxAge))
	return b.String()
}
