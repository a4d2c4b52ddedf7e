package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORSConfig(t *testing.T) {
	tests := []struct {
		name           string
		cfg            *corsConfig
		origin         string
		expectedOrigin string
	}{
		{
			name:           "permissive allows any origin",
			cfg:            &corsConfig{permissive: true},
			origin:         "http://overlay.local",
			expectedOrigin: "*",
		},
		{
			name:           "restricted allows listed origin",
			cfg:            &corsConfig{allowedOrigins: []string{"http://localhost:3000"}},
			origin:         "http://localhost:3000",
			expectedOrigin: "http://localhost:3000",
		},
		{
			name:           "restricted rejects unlisted origin",
			cfg:            &corsConfig{allowedOrigins: []string{"http://localhost:3000"}},
			origin:         "https://evil.example",
			expectedOrigin: "",
		},
		{
			name:           "wildcard subdomain",
			cfg:            &corsConfig{allowedOrigins: []string{"*.example.com"}},
			origin:         "https://overlay.example.com",
			expectedOrigin: "https://overlay.example.com",
		},
		{
			name:           "wildcard matches bare domain",
			cfg:            &corsConfig{allowedOrigins: []string{"*.example.com"}},
			origin:         "https://example.com",
			expectedOrigin: "https://example.com",
		},
		{
			name:           "wildcard rejects lookalike domain",
			cfg:            &corsConfig{allowedOrigins: []string{"*.example.com"}},
			origin:         "https://badexample.com",
			expectedOrigin: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := withCORSConfig(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}), tt.cfg)

			req := httptest.NewRequest(http.MethodGet, "/status", nil)
			req.Header.Set("Origin", tt.origin)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if got := rr.Header().Get("Access-Control-Allow-Origin"); got != tt.expectedOrigin {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.expectedOrigin)
			}
		})
	}
}

func TestCORSPreflightRequest(t *testing.T) {
	handler := withCORSConfig(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called for OPTIONS request")
		w.WriteHeader(http.StatusOK)
	}), &corsConfig{permissive: true})

	req := httptest.NewRequest(http.MethodOptions, "/status", nil)
	req.Header.Set("Origin", "http://overlay.local")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Errorf("expected 204 for preflight, got %d", rr.Code)
	}
}
