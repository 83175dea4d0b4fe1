package identity

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/user/conversion-relay/internal/domain"
)

func TestResolveClientIP(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	resolver := NewResolver(logger)

	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{
			name:       "XFF single entry",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.7"},
			remoteAddr: "10.0.0.1:443",
			want:       "203.0.113.7",
		},
		{
			name:       "XFF multi hop takes first entry",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.7, 198.51.100.2, 10.0.0.1"},
			remoteAddr: "10.0.0.1:443",
			want:       "203.0.113.7",
		},
		{
			name:       "XFF first entry private range is still accepted",
			headers:    map[string]string{"X-Forwarded-For": "192.168.1.50, 203.0.113.7"},
			remoteAddr: "10.0.0.1:443",
			want:       "192.168.1.50",
		},
		{
			name:       "spoofed XFF falls through to CDN header",
			headers:    map[string]string{"X-Forwarded-For": "not-an-ip", "CF-Connecting-IP": "203.0.113.9"},
			remoteAddr: "10.0.0.1:443",
			want:       "203.0.113.9",
		},
		{
			name:       "CDN header wins over generic real-ip header",
			headers:    map[string]string{"CF-Connecting-IP": "203.0.113.9", "X-Real-IP": "198.51.100.2"},
			remoteAddr: "10.0.0.1:443",
			want:       "203.0.113.9",
		},
		{
			name:       "true-client-ip before x-real-ip",
			headers:    map[string]string{"True-Client-IP": "198.51.100.4", "X-Real-IP": "198.51.100.2"},
			remoteAddr: "10.0.0.1:443",
			want:       "198.51.100.4",
		},
		{
			name:       "ipv6 forwarded entry",
			headers:    map[string]string{"X-Forwarded-For": "2001:db8::1, 203.0.113.7"},
			remoteAddr: "10.0.0.1:443",
			want:       "2001:db8::1",
		},
		{
			name:       "invalid headers everywhere fall back to peer",
			headers:    map[string]string{"X-Forwarded-For": "banana", "X-Real-IP": "also-not-an-ip"},
			remoteAddr: "198.51.100.77:52882",
			want:       "198.51.100.77",
		},
		{
			name:       "no headers fall back to peer",
			headers:    nil,
			remoteAddr: "203.0.113.200:1234",
			want:       "203.0.113.200",
		},
		{
			name:       "peer without port returned verbatim",
			headers:    nil,
			remoteAddr: "203.0.113.200",
			want:       "203.0.113.200",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/events/send", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			got := resolver.ResolveClientIP(req)
			if got != tt.want {
				t.Errorf("ResolveClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalizePersonalData(t *testing.T) {
	tests := []struct {
		name string
		in   domain.PersonalData
		want domain.PersonalData
	}{
		{
			name: "lowercase and trim",
			in:   domain.PersonalData{FirstName: "  Maria ", LastName: "SILVA", Email: " Maria@Example.COM "},
			want: domain.PersonalData{FirstName: "maria", LastName: "silva", Email: "maria@example.com"},
		},
		{
			name: "phone strips formatting",
			in:   domain.PersonalData{Phone: "+55 (11) 91234-5678"},
			want: domain.PersonalData{Phone: "5511912345678"},
		},
		{
			name: "malformed email dropped",
			in:   domain.PersonalData{Email: "not-an-email"},
			want: domain.PersonalData{},
		},
		{
			name: "too-short phone dropped",
			in:   domain.PersonalData{Phone: "123"},
			want: domain.PersonalData{},
		},
		{
			name: "empty input stays empty",
			in:   domain.PersonalData{},
			want: domain.PersonalData{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizePersonalData(tt.in)
			if got != tt.want {
				t.Errorf("NormalizePersonalData() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
