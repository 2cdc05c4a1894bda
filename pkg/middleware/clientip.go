package middleware

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/contextkeys"
)

// ClientIPResolver determines the originating client address. Forwarding
// headers are only believed when the connection comes from a trusted proxy,
// and every address it returns has been parsed, so a client cannot inject
// arbitrary text into logs or activity records.
type ClientIPResolver struct {
	trusted []netip.Prefix
}

// NewClientIPResolver trusts the given proxies, each an IP or a CIDR range.
// With none, only the connection's remote address is used.
func NewClientIPResolver(proxies []string) (*ClientIPResolver, error) {
	res := &ClientIPResolver{}
	for _, raw := range proxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			prefix, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", raw, err)
			}
			res.trusted = append(res.trusted, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", raw, err)
		}
		addr = addr.Unmap().WithZone("")
		res.trusted = append(res.trusted, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return res, nil
}

func (c *ClientIPResolver) isTrusted(addr netip.Addr) bool {
	for _, p := range c.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Resolve returns the client address for r, or "" when none can be parsed.
// X-Forwarded-For is walked from the nearest hop back, skipping trusted
// proxies; the first untrusted hop is the client.
func (c *ClientIPResolver) Resolve(r *http.Request) string {
	remote, ok := remoteAddr(r)
	if !ok {
		return ""
	}
	if !c.isTrusted(remote) {
		return remote.String()
	}

	if forwarded := r.Header.Values("X-Forwarded-For"); len(forwarded) > 0 {
		hops := strings.Split(strings.Join(forwarded, ","), ",")
		client := remote
		for i := len(hops) - 1; i >= 0; i-- {
			addr, ok := parseAddr(hops[i])
			if !ok {
				break
			}
			client = addr
			if !c.isTrusted(addr) {
				break
			}
		}
		return client.String()
	}
	if addr, ok := parseAddr(r.Header.Get("X-Real-IP")); ok {
		return addr.String()
	}
	return remote.String()
}

// Middleware stores the resolved address on the request context
func (c *ClientIPResolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := contextkeys.WithClientIP(r.Context(), c.Resolve(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIP returns the address resolved by ClientIPResolver.Middleware, or
// the connection's remote address when that middleware did not run
func ClientIP(r *http.Request) string {
	if ip, ok := contextkeys.GetClientIP(r.Context()); ok {
		return ip
	}
	if addr, ok := remoteAddr(r); ok {
		return addr.String()
	}
	return ""
}

func remoteAddr(r *http.Request) (netip.Addr, bool) {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		host = h
	}
	return parseAddr(host)
}

func parseAddr(s string) (netip.Addr, bool) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap().WithZone(""), true
}
