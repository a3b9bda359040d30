package middleware

import (
	"net"
	"net/http"
)

// ClientIP returns the host part of r.RemoteAddr. Behind a proxy, chi's
// RealIP middleware must run first so RemoteAddr holds the forwarded address.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
