package interceptors

import (
	"context"
	"net"
	"net/http"
	"strings"

	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
)

// ClientIP returns the client IP set by WithClientIP, else from gRPC metadata (x-forwarded-for,
// x-real-ip) or peer, or "unknown".
func ClientIP(ctx context.Context) string {
	if v, ok := ctx.Value(clientIPKey).(string); ok && v != "" {
		return v
	}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ip := firstForwarded(md.Get("x-forwarded-for")); ip != "" {
			return ip
		}
		if vals := md.Get("x-real-ip"); len(vals) > 0 {
			if s := strings.TrimSpace(vals[0]); s != "" {
				return s
			}
		}
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return hostOnly(p.Addr.String())
	}
	return "unknown"
}

// RequestClientIP returns the client IP of an HTTP request using the same header precedence as ClientIP.
func RequestClientIP(r *http.Request) string {
	if ip := firstForwarded(r.Header.Values("X-Forwarded-For")); ip != "" {
		return ip
	}
	if s := strings.TrimSpace(r.Header.Get("X-Real-Ip")); s != "" {
		return s
	}
	if r.RemoteAddr != "" {
		return hostOnly(r.RemoteAddr)
	}
	return "unknown"
}

func firstForwarded(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	s := strings.TrimSpace(vals[0])
	if i := strings.Index(s, ","); i > 0 {
		s = strings.TrimSpace(s[:i])
	}
	return s
}

func hostOnly(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
