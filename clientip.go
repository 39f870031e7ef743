package authkit

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the address of the connected peer. Forwarding headers are
// ignored because any client can set them; use TrustedProxies behind a
// reverse proxy.
func ClientIP(r *http.Request) string {
	return remoteHost(r.RemoteAddr)
}

// TrustedProxies resolves the client address through X-Forwarded-For and
// X-Real-IP, but only for requests whose peer is one of the listed proxies.
// A nil *TrustedProxies behaves like ClientIP.
type TrustedProxies struct {
	nets []*net.IPNet
}

// ParseTrustedProxies accepts CIDRs ("10.0.0.0/8") and bare addresses
// ("127.0.0.1"). No entries returns nil.
func ParseTrustedProxies(entries []string) (*TrustedProxies, error) {
	p := &TrustedProxies{}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if !strings.Contains(e, "/") {
			ip := net.ParseIP(e)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", e)
			}
			bits := 128
			if ip.To4() != nil {
				ip, bits = ip.To4(), 32
			}
			p.nets = append(p.nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(e)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", e, err)
		}
		p.nets = append(p.nets, n)
	}
	if len(p.nets) == 0 {
		return nil, nil
	}
	return p, nil
}

// Trusts reports whether ip belongs to a trusted proxy.
func (p *TrustedProxies) Trusts(ip string) bool {
	if p == nil {
		return false
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, n := range p.nets {
		if n.Contains(parsed) {
			return true
		}
	}
	return false
}

// ClientIP walks X-Forwarded-For from the right, skipping trusted hops, and
// returns the first address no trusted proxy vouches for. Headers from an
// untrusted peer are never read.
func (p *TrustedProxies) ClientIP(r *http.Request) string {
	peer := remoteHost(r.RemoteAddr)
	if !p.Trusts(peer) {
		return peer
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if net.ParseIP(hop) == nil {
				// Anything left of a malformed entry is client controlled.
				return peer
			}
			if !p.Trusts(hop) || i == 0 {
				return hop
			}
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}
	return peer
}

func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
