package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
)

// Identity headers set by the upstream gateway
const (
	HeaderUserID    = "X-User-ID"
	HeaderSessionID = "X-Session-ID"
)

const maxIdentityLength = 128

// IdentityMiddleware attaches the caller identity to the request context
func IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := entities.Identity{
			UserID:    headerValue(r, HeaderUserID),
			SessionID: headerValue(r, HeaderSessionID),
			ClientIP:  clientIP(r),
		}
		next.ServeHTTP(w, r.WithContext(entities.ContextWithIdentity(r.Context(), id)))
	})
}

func headerValue(r *http.Request, name string) string {
	v := strings.TrimSpace(r.Header.Get(name))
	if len(v) > maxIdentityLength {
		v = v[:maxIdentityLength]
	}
	return v
}

// clientIP prefers the first X-Forwarded-For hop
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
