package handler

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// TrustedProxies replaces RemoteAddr with the client address reported in
// X-Forwarded-For, but only when the direct peer is one of trusted. The list
// is read right to left and the first hop outside trusted wins, so entries a
// client prepends itself are never used. Requests from any other peer keep
// their socket address.
func TrustedProxies(trusted []netip.Prefix) func(http.Handler) http.Handler {
	isTrusted := func(addr netip.Addr) bool {
		for _, p := range trusted {
			if p.Contains(addr) {
				return true
			}
		}
		return false
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			peer, ok := parseHost(r.RemoteAddr)
			xff := r.Header.Values("X-Forwarded-For")
			if !ok || len(xff) == 0 || !isTrusted(peer) {
				next.ServeHTTP(w, r)
				return
			}

			hops := strings.Split(strings.Join(xff, ","), ",")
			client := peer
			for i := len(hops) - 1; i >= 0; i-- {
				hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
				if err != nil {
					break
				}
				client = hop.Unmap()
				if !isTrusted(client) {
					break
				}
			}
			r.RemoteAddr = net.JoinHostPort(client.String(), "0")
			next.ServeHTTP(w, r)
		})
	}
}

func parseHost(remoteAddr string) (netip.Addr, bool) {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}
