package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		realIP     string
		forwarded  string
		trustProxy bool
		want       string
	}{
		{
			name:       "remote addr only",
			remoteAddr: "192.0.2.10:5555",
			want:       "192.0.2.10",
		},
		{
			name:       "headers ignored without trust",
			remoteAddr: "192.0.2.10:5555",
			realIP:     "198.51.100.1",
			want:       "192.0.2.10",
		},
		{
			name:       "x-real-ip preferred with trust",
			remoteAddr: "192.0.2.10:5555",
			realIP:     "198.51.100.1",
			forwarded:  "203.0.113.9",
			trustProxy: true,
			want:       "198.51.100.1",
		},
		{
			name:       "x-forwarded-for first entry",
			remoteAddr: "192.0.2.10:5555",
			forwarded:  "203.0.113.9, 198.51.100.1",
			trustProxy: true,
			want:       "203.0.113.9",
		},
		{
			name:       "invalid header falls through",
			remoteAddr: "192.0.2.10:5555",
			realIP:     "not-an-ip",
			forwarded:  "also-not-an-ip",
			trustProxy: true,
			want:       "192.0.2.10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			assert.Equal(t, tt.want, clientIP(req, tt.trustProxy))
		})
	}
}

func TestRateLimiterAllow(t *testing.T) {
	rl := newRateLimiter(0.001, 2)

	assert.True(t, rl.allow("10.0.0.1"))
	assert.True(t, rl.allow("10.0.0.1"))
	assert.False(t, rl.allow("10.0.0.1"))

	// An unrelated IP has its own bucket.
	assert.True(t, rl.allow("10.0.0.2"))
}
