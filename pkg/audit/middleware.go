package audit

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/contextkeys"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/middleware"
)

// maxUserAgentLength bounds what is stored per entry
const maxUserAgentLength = 512

// Middleware captures the client address, user agent and request id so that
// entries recorded further down the chain carry them
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meta := RequestMeta{
			IPAddress: middleware.ClientIP(r),
			UserAgent: truncate(r.UserAgent(), maxUserAgentLength),
			RequestID: contextkeys.GetRequestID(r.Context()),
		}
		if meta.RequestID == "" {
			meta.RequestID = r.Header.Get("X-Request-ID")
		}
		next.ServeHTTP(w, r.WithContext(WithRequestMeta(r.Context(), meta)))
	})
}

// truncate returns valid UTF-8 of at most n bytes, cut on a rune boundary
func truncate(s string, n int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
