// Package httputil holds small helpers shared by the HTTP middleware.
package httputil

import (
	"net"
	"net/http"
	"strings"
)

// forwarding headers, in the order deployments in front of the bridge
// populate them
var clientIPHeaders = []string{"X-Forwarded-For", "X-Real-IP"}

// ClientIP returns the originating client address for a request. The
// bridge normally runs behind the platform's load balancer, so the
// forwarding headers win over the socket peer; X-Forwarded-For keeps
// the original client first in its chain.
func ClientIP(r *http.Request) string {
	for _, header := range clientIPHeaders {
		value := r.Header.Get(header)
		if value == "" {
			continue
		}
		first, _, _ := strings.Cut(value, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr without a port, e.g. from a unix socket listener
		return r.RemoteAddr
	}
	return host
}
