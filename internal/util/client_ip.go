package util

import (
	"fmt"
	"net/http"
	"net/netip"
	"strings"
)

// TrustedProxies is the set of peers whose forwarded headers are believed.
// The pack download limiter keys on the resolved client address, so a forged
// X-Forwarded-For from an untrusted peer must never reach it.
type TrustedProxies struct {
	prefixes []netip.Prefix
}

// NewTrustedProxies parses CIDR or single-address entries. An empty list
// returns nil: no proxy is trusted and forwarded headers are ignored.
func NewTrustedProxies(entries []string) (*TrustedProxies, error) {
	prefixes := make([]netip.Prefix, 0, len(entries))
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", entry, err)
			}
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", entry, err)
		}
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	if len(prefixes) == 0 {
		return nil, nil
	}
	return &TrustedProxies{prefixes: prefixes}, nil
}

// Contains reports whether addr belongs to a trusted proxy range.
func (t *TrustedProxies) Contains(addr netip.Addr) bool {
	if t == nil || !addr.IsValid() {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range t.prefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP resolves the address download throttling keys on. Forwarded
// headers count only when the direct peer is a trusted proxy, and the
// X-Forwarded-For chain is walked right to left until the first hop outside
// the trusted ranges.
func ClientIP(r *http.Request, trusted *TrustedProxies) string {
	peer := parseAddr(r.RemoteAddr)
	if !peer.IsValid() {
		return strings.TrimSpace(r.RemoteAddr)
	}
	if !trusted.Contains(peer) {
		return peer.String()
	}

	if chain := forwardedChain(r.Header.Get("X-Forwarded-For")); len(chain) > 0 {
		for i := len(chain) - 1; i >= 0; i-- {
			if !trusted.Contains(chain[i]) {
				return chain[i].String()
			}
		}
		return chain[0].String()
	}
	if addr := parseAddr(r.Header.Get("X-Real-IP")); addr.IsValid() {
		return addr.String()
	}
	return peer.String()
}

func forwardedChain(header string) []netip.Addr {
	parts := strings.Split(header, ",")
	chain := make([]netip.Addr, 0, len(parts))
	for _, part := range parts {
		if addr := parseAddr(part); addr.IsValid() {
			chain = append(chain, addr)
		}
	}
	return chain
}

func parseAddr(raw string) netip.Addr {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return netip.Addr{}
	}
	if ap, err := netip.ParseAddrPort(raw); err == nil {
		return ap.Addr().Unmap()
	}
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return netip.Addr{}
	}
	return addr.Unmap()
}
