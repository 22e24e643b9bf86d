package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHeadersMiddleware(t *testing.T) {
	h := NewHeadersMiddleware(DefaultHeadersConfig()).Middleware(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	cases := []struct {
		name    string
		path    string
		tls     bool
		noStore bool
		hsts    bool
	}{
		{"api", "/api/ledger", false, true, false},
		{"ledger page over tls", "/ledger", true, true, true},
		{"health", "/healthz", false, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.tls {
				req.TLS = &tls.ConnectionState{}
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
				t.Errorf("X-Content-Type-Options = %q", got)
			}
			if rec.Header().Get("Content-Security-Policy") == "" {
				t.Error("missing CSP")
			}
			if got := rec.Header().Get("Cache-Control") == "no-store"; got != tc.noStore {
				t.Errorf("no-store = %v, want %v", got, tc.noStore)
			}
			if got := rec.Header().Get("Strict-Transport-Security") != ""; got != tc.hsts {
				t.Errorf("hsts = %v, want %v", got, tc.hsts)
			}
		})
	}
}

func TestClientIPExtract(t *testing.T) {
	c, err := NewClientIP("203.0.113.0/24")
	if err != nil {
		t.Fatalf("NewClientIP: %v", err)
	}

	cases := []struct {
		name   string
		remote string
		xff    string
		xri    string
		want   string
	}{
		{"direct public peer ignores headers", "198.51.100.7:443", "1.1.1.1", "", "198.51.100.7"},
		{"trusted proxy uses first forwarded", "10.0.0.2:8080", "1.1.1.1, 10.0.0.9", "", "1.1.1.1"},
		{"extra trusted network", "203.0.113.5:80", "8.8.8.8", "", "8.8.8.8"},
		{"falls back to x-real-ip", "127.0.0.1:9999", "garbage", "9.9.9.9", "9.9.9.9"},
		{"invalid headers keep peer", "192.168.1.1:1", "nope", "", "192.168.1.1"},
		{"no port", "198.51.100.8", "", "", "198.51.100.8"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			if tc.xff != "" {
				req.Header.Set("X-Forwarded-For", tc.xff)
			}
			if tc.xri != "" {
				req.Header.Set("X-Real-IP", tc.xri)
			}
			if got := c.Extract(req); got != tc.want {
				t.Errorf("Extract = %q, want %q", got, tc.want)
			}
		})
	}

	if _, err := NewClientIP("not-a-cidr"); err == nil {
		t.Error("expected error for invalid CIDR")
	}
}
