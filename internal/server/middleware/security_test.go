package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSecurityHeaders tests that security headers are properly set
func TestSecurityHeaders(t *testing.T) {
	tests := []struct {
		name        string
		config      SecurityHeadersConfig
		hasTLS      bool
		wantHSTS    bool
		wantIsolate bool
	}{
		{
			name:     "HSTS enabled without TLS",
			config:   SecurityHeadersConfig{EnableHSTS: true},
			wantHSTS: true,
		},
		{
			name:     "HSTS disabled with TLS",
			hasTLS:   true,
			wantHSTS: true,
		},
		{
			name:     "HSTS disabled without TLS",
			wantHSTS: false,
		},
		{
			name:        "cross origin isolation",
			config:      SecurityHeadersConfig{EnableCrossOriginIsolation: true},
			wantIsolate: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/api/v1/resources", nil)
			if tt.hasTLS {
				req.TLS = &tls.ConnectionState{}
			}
			rec := httptest.NewRecorder()

			SecurityHeaders(tt.config)(handler).ServeHTTP(rec, req)

			assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
			assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
			assert.Equal(t, "strict-origin-when-cross-origin", rec.Header().Get("Referrer-Policy"))
			assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "default-src 'none'")
			assert.Contains(t, rec.Header().Get("Permissions-Policy"), "geolocation=()")

			if tt.wantHSTS {
				assert.Contains(t, rec.Header().Get("Strict-Transport-Security"), "max-age=31536000")
			} else {
				assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
			}

			if tt.wantIsolate {
				assert.Equal(t, "same-origin", rec.Header().Get("Cross-Origin-Opener-Policy"))
				assert.Equal(t, "require-corp", rec.Header().Get("Cross-Origin-Embedder-Policy"))
				assert.Equal(t, "same-origin", rec.Header().Get("Cross-Origin-Resource-Policy"))
			} else {
				assert.Empty(t, rec.Header().Get("Cross-Origin-Opener-Policy"))
			}
		})
	}
}

// TestCORS tests CORS header handling
func TestCORS(t *testing.T) {
	tests := []struct {
		name           string
		allowedOrigins []string
		requestOrigin  string
		method         string
		wantCORS       bool
		wantStatus     int
	}{
		{
			name:           "allowed origin",
			allowedOrigins: []string{"https://dashboard.example.com"},
			requestOrigin:  "https://dashboard.example.com",
			method:         http.MethodGet,
			wantCORS:       true,
			wantStatus:     http.StatusOK,
		},
		{
			name:           "disallowed origin",
			allowedOrigins: []string{"https://dashboard.example.com"},
			requestOrigin:  "https://evil.com",
			method:         http.MethodGet,
			wantStatus:     http.StatusOK,
		},
		{
			name:           "no origin header",
			allowedOrigins: []string{"https://dashboard.example.com"},
			method:         http.MethodGet,
			wantStatus:     http.StatusOK,
		},
		{
			name:          "no allowed origins",
			requestOrigin: "https://dashboard.example.com",
			method:        http.MethodDelete,
			wantStatus:    http.StatusOK,
		},
		{
			name:           "OPTIONS preflight request",
			allowedOrigins: []string{"https://dashboard.example.com"},
			requestOrigin:  "https://dashboard.example.com",
			method:         http.MethodOptions,
			wantCORS:       true,
			wantStatus:     http.StatusNoContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(tt.method, "/api/v1/resources", nil)
			if tt.requestOrigin != "" {
				req.Header.Set("Origin", tt.requestOrigin)
			}
			rec := httptest.NewRecorder()

			CORS(tt.allowedOrigins)(handler).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "GET, POST, PATCH, DELETE, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
			assert.Equal(t, "Content-Type, Last-Event-ID", rec.Header().Get("Access-Control-Allow-Headers"))

			if tt.wantCORS {
				assert.Equal(t, tt.requestOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
				assert.Equal(t, "Origin", rec.Header().Get("Vary"))
			} else {
				assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
			}
		})
	}
}

func TestParseAllowedOrigins(t *testing.T) {
	tests := []struct {
		name      string
		input     []string
		want      []string
		wantError bool
	}{
		{
			name:  "empty",
			input: nil,
			want:  nil,
		},
		{
			name:  "valid origins",
			input: []string{"https://example.com", "http://localhost:3000"},
			want:  []string{"https://example.com", "http://localhost:3000"},
		},
		{
			name:  "trailing slash and whitespace normalized",
			input: []string{" https://example.com/ ", ""},
			want:  []string{"https://example.com"},
		},
		{
			name:      "missing scheme",
			input:     []string{"example.com"},
			wantError: true,
		},
		{
			name:      "invalid scheme",
			input:     []string{"ftp://example.com"},
			wantError: true,
		},
		{
			name:      "path not allowed",
			input:     []string{"https://example.com/dashboard"},
			wantError: true,
		},
		{
			name:      "query not allowed",
			input:     []string{"https://example.com?x=1"},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAllowedOrigins(tt.input)
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
