package util

import (
	"net/http/httptest"
	"testing"
)

func TestClientIPKeysDownloadsOnRealClient(t *testing.T) {
	trusted, err := NewTrustedProxies([]string{"10.0.0.0/8", "192.168.1.10"})
	if err != nil {
		t.Fatalf("new trusted proxies: %v", err)
	}

	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xrip       string
		trusted    *TrustedProxies
		want       string
	}{
		{
			name:       "direct client cannot spoof another downloader",
			remoteAddr: "198.51.100.10:52811",
			xff:        "203.0.113.5",
			xrip:       "203.0.113.6",
			want:       "198.51.100.10",
		},
		{
			name:       "forwarded client behind trusted proxy",
			remoteAddr: "10.0.0.20:52811",
			xff:        "203.0.113.5",
			trusted:    trusted,
			want:       "203.0.113.5",
		},
		{
			name:       "chain walked right to left past trusted hops",
			remoteAddr: "10.0.0.20:52811",
			xff:        "203.0.113.5, 10.0.0.10",
			trusted:    trusted,
			want:       "203.0.113.5",
		},
		{
			name:       "x-real-ip fallback when the chain is garbage",
			remoteAddr: "10.0.0.20:52811",
			xff:        "not-an-address",
			xrip:       "203.0.113.7",
			trusted:    trusted,
			want:       "203.0.113.7",
		},
		{
			name:       "fully trusted chain keeps the leftmost hop",
			remoteAddr: "10.0.0.20:52811",
			xff:        "10.0.0.5, 10.0.0.10",
			trusted:    trusted,
			want:       "10.0.0.5",
		},
		{
			name:       "ipv6 peer",
			remoteAddr: "[2001:db8::7]:52811",
			want:       "2001:db8::7",
		},
		{
			name:       "mapped ipv4 peer matches an ipv4 proxy range",
			remoteAddr: "[::ffff:10.0.0.20]:52811",
			xff:        "203.0.113.5",
			trusted:    trusted,
			want:       "203.0.113.5",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "http://content.local/books/ko.epub", nil)
			req.RemoteAddr = tc.remoteAddr
			if tc.xff != "" {
				req.Header.Set("X-Forwarded-For", tc.xff)
			}
			if tc.xrip != "" {
				req.Header.Set("X-Real-IP", tc.xrip)
			}
			if got := ClientIP(req, tc.trusted); got != tc.want {
				t.Fatalf("client ip = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNewTrustedProxies(t *testing.T) {
	if tp, err := NewTrustedProxies(nil); err != nil || tp != nil {
		t.Fatalf("empty list should trust nobody, got %v err=%v", tp, err)
	}
	if _, err := NewTrustedProxies([]string{"10.0.0.0/8", "192.168.1.1", "2001:db8::/32"}); err != nil {
		t.Fatalf("expected valid entries, got err: %v", err)
	}
	if _, err := NewTrustedProxies([]string{"bad-cidr"}); err == nil {
		t.Fatalf("expected parse error for invalid entry")
	}
}
