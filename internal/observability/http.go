package observability

import (
	"net"
	"net/http"
	"strings"
)

// ConnMeta is the gateway-forwarded metadata attached to one websocket
// connection, captured at upgrade time for lifecycle events and logs.
type ConnMeta struct {
	UserID    string
	DeviceID  string
	RequestID string
	IP        string
}

// ConnMetaFromRequest reads the gateway headers off the upgrade request. The
// user id here is a hint for pre-join lifecycle events only; the session
// identity is bound by the join event.
func ConnMetaFromRequest(r *http.Request) ConnMeta {
	return ConnMeta{
		UserID:    r.Header.Get("X-User-ID"),
		DeviceID:  r.Header.Get("X-Device-Id"),
		RequestID: r.Header.Get("X-Request-Id"),
		IP:        clientIP(r),
	}
}

// clientIP prefers the first hop of X-Forwarded-For, falling back to the
// socket peer address.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
