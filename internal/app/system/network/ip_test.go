package network

import (
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		realIP     string
		trustProxy bool
		want       string
	}{
		{"remote addr only", "192.0.2.1:1234", "", "", true, "192.0.2.1"},
		{"ipv6 remote addr", "[2001:db8::1]:443", "", "", true, "2001:db8::1"},
		{"xff single", "10.0.0.1:1", "203.0.113.5", "", true, "203.0.113.5"},
		{"xff chain takes last", "10.0.0.1:1", "203.0.113.5, 198.51.100.20", "", true, "198.51.100.20"},
		{"forged left hops ignored", "10.0.0.1:1", "1.2.3.4, 5.6.7.8, 203.0.113.5", "", true, "203.0.113.5"},
		{"garbage last hop falls through", "10.0.0.1:1", "203.0.113.5, junk", "198.51.100.7", true, "198.51.100.7"},
		{"x-real-ip", "10.0.0.1:1", "", "198.51.100.7", true, "198.51.100.7"},
		{"xff beats x-real-ip", "10.0.0.1:1", "203.0.113.5", "198.51.100.7", true, "203.0.113.5"},
		{"garbage xff falls through", "10.0.0.1:1", "not-an-ip", "198.51.100.7", true, "198.51.100.7"},
		{"headers ignored without trust", "10.0.0.1:1", "203.0.113.5", "198.51.100.7", false, "10.0.0.1"},
		{"mapped ipv4 unmapped", "[::ffff:192.0.2.9]:80", "", "", false, "192.0.2.9"},
		{"uppercase ipv6 canonical", "10.0.0.1:1", "2001:DB8::A", "", true, "2001:db8::a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				r.Header.Set("X-Real-IP", tt.realIP)
			}
			if got := ClientIP(r, tt.trustProxy); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
