package sanitize

import (
	"strings"
	"testing"
)

func TestLocalEndpoint(t *testing.T) {
	tests := []struct {
		name  string
		url   string
		valid bool
	}{
		{"loopback ip", "http://127.0.0.1:8000/v1", true},
		{"localhost", "http://localhost:11434", true},
		{"private 10 range", "http://10.0.0.5:8080", true},
		{"private 192.168 range", "https://192.168.1.20", true},
		{"docker host alias", "http://host.docker.internal:8000", true},
		{"public ip", "http://203.0.113.9", false},
		{"public hostname", "https://api.example.com", false},
		{"bad scheme", "ftp://127.0.0.1", false},
		{"no host", "http://", false},
		{"garbage", "://not a url", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := LocalEndpoint(tt.url)
			if res.Valid != tt.valid {
				t.Errorf("LocalEndpoint(%q).Valid = %v, want %v (err: %s)", tt.url, res.Valid, tt.valid, res.Err)
			}
		})
	}
}

func TestWebhookURL(t *testing.T) {
	tests := []struct {
		name  string
		url   string
		valid bool
	}{
		{"https public", "https://hooks.example.com/alerts", true},
		{"http rejected", "http://hooks.example.com/alerts", false},
		{"loopback rejected", "https://127.0.0.1/hook", false},
		{"localhost rejected", "https://localhost/hook", false},
		{"too long", "https://example.com/" + strings.Repeat("a", MaxURLLength), false},
		{"no host", "https://", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := WebhookURL(tt.url)
			if res.Valid != tt.valid {
				t.Errorf("WebhookURL(%q).Valid = %v, want %v (err: %s)", tt.url, res.Valid, tt.valid, res.Err)
			}
		})
	}
}
