package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/labstack/echo/v4"
)

// TrustedProxies makes c.RealIP() resolve the client behind reverse proxies
// in the given CIDRs. The upload rate limit is keyed by that IP, so
// forwarding headers from anyone else are ignored; otherwise a client could
// pick a fresh X-Forwarded-For value per request.
//
// Invalid CIDRs are logged and skipped.
func TrustedProxies(e *echo.Echo, trustedCIDRs []string) {
	var trusted []netip.Prefix
	for _, cidr := range trustedCIDRs {
		prefix, err := netip.ParsePrefix(cidr)
		if err != nil {
			slog.Warn("ignoring invalid trusted proxy CIDR",
				slog.String("cidr", cidr),
				slog.Any("error", err),
			)
			continue
		}
		trusted = append(trusted, prefix.Masked())
	}
	e.IPExtractor = clientIPExtractor(trusted)
}

// clientIPExtractor walks X-Forwarded-For from the right, skipping trusted
// hops, and returns the first address a trusted proxy vouched for.
// X-Real-IP is used when the header chain is absent.
func clientIPExtractor(trusted []netip.Prefix) echo.IPExtractor {
	isTrusted := func(addr netip.Addr) bool {
		for _, p := range trusted {
			if p.Contains(addr.Unmap()) {
				return true
			}
		}
		return false
	}

	return func(req *http.Request) string {
		peer := peerAddr(req.RemoteAddr)
		addr, err := netip.ParseAddr(peer)
		if err != nil || !isTrusted(addr) {
			return peer
		}

		if xff := req.Header.Get(echo.HeaderXForwardedFor); xff != "" {
			hops := strings.Split(xff, ",")
			for i := len(hops) - 1; i >= 0; i-- {
				hop := strings.TrimSpace(hops[i])
				hopAddr, err := netip.ParseAddr(hop)
				if err != nil {
					break
				}
				if !isTrusted(hopAddr) {
					return hop
				}
			}
		}

		if realIP := strings.TrimSpace(req.Header.Get(echo.HeaderXRealIP)); realIP != "" {
			if _, err := netip.ParseAddr(realIP); err == nil {
				return realIP
			}
		}
		return peer
	}
}

// peerAddr strips the port from a RemoteAddr.
func peerAddr(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
