package main

import (
	"net/http"
	"strings"
)

// unknownClient is the identity used when no proxy header names one.
const unknownClient = "unknown"

// proxyHeaders is the fixed priority order for client identification.
// The first header present wins.
var proxyHeaders = []string{"X-Forwarded-For", "X-Real-IP", "CF-Connecting-IP"}

// clientIdentity extracts the originating client address from proxy
// headers. Multi-hop values are comma separated with the client first;
// the Forwarded header carries a structured for= attribute instead.
func clientIdentity(r *http.Request) string {
	for _, header := range proxyHeaders {
		if value := r.Header.Get(header); value != "" {
			return firstToken(value)
		}
	}
	if value := r.Header.Get("Forwarded"); value != "" {
		if ip := forwardedFor(value); ip != "" {
			return ip
		}
	}
	return unknownClient
}

func firstToken(value string) string {
	if idx := strings.Index(value, ","); idx >= 0 {
		value = value[:idx]
	}
	return strings.TrimSpace(value)
}

// forwardedFor pulls the for= attribute out of an RFC 7239 Forwarded
// header, e.g. `for=9.9.9.9;proto=https` or `for="[2001:db8::1]"`.
func forwardedFor(value string) string {
	value = firstToken(value)
	for _, part := range strings.Split(value, ";") {
		part = strings.TrimSpace(part)
		if len(part) >= 4 && strings.EqualFold(part[:4], "for=") {
			return strings.Trim(part[4:], `"`)
		}
	}
	return ""
}
