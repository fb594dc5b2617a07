// Package network provides network-related utilities.
package network

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP returns the address a request originated from.
//
// With trustProxy set, the last X-Forwarded-For hop wins, then X-Real-IP.
// Proxies append the peer they saw, so only the rightmost entry was written
// by the proxy in front of us; everything left of it is client supplied.
// Header values that do not parse as an IP address are ignored. Without
// trustProxy, or when no usable header is present, the host part of
// RemoteAddr is used. The result is the canonical text form of the address
// so that counters keyed by it do not split on formatting.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			last := xff
			if idx := strings.LastIndex(xff, ","); idx != -1 {
				last = xff[idx+1:]
			}
			if ip, ok := parse(last); ok {
				return ip
			}
		}
		if ip, ok := parse(r.Header.Get("X-Real-IP")); ok {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip, ok := parse(host); ok {
		return ip
	}
	return host
}

func parse(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return "", false
	}
	return addr.Unmap().String(), true
}
