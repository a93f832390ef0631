package middleware

import (
	"net"
	"net/http"
	"strings"
)

// clientIP keys anonymous rate limits. Only RemoteAddr is used: proxy headers
// are client controlled and the service is reached directly.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
