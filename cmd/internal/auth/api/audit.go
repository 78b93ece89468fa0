package authapi

import (
	"net"
	"net/http"
	"strings"
)

// audit emits a security event through the handler logger. Event names are prefixed "audit.auth.".
func (h *Handler) audit(r *http.Request, event string, attrs ...any) {
	args := append([]any{
		"ip", ipString(ClientIP(r, h.cfg.TrustProxy)),
		"user_agent", truncate(strings.TrimSpace(r.UserAgent()), 256),
	}, attrs...)
	h.log.InfoContext(r.Context(), "audit.auth."+event, args...)
}

func ipString(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
