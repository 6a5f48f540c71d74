package chi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestBearerAuth(t *testing.T) {
	tests := []struct {
		name   string
		keys   []string
		path   string
		header string
		want   int
	}{
		{name: "no keys disables auth", keys: nil, path: "/collections", want: http.StatusOK},
		{name: "blank keys disable auth", keys: []string{"", ""}, path: "/collections", want: http.StatusOK},
		{name: "missing header", keys: []string{"secret"}, path: "/collections", want: http.StatusUnauthorized},
		{
			name: "basic scheme", keys: []string{"secret"}, path: "/collections",
			header: "Basic dXNlcjpwYXNz", want: http.StatusUnauthorized,
		},
		{
			name: "wrong token", keys: []string{"secret"}, path: "/collections/demo/search",
			header: "Bearer wrong-key", want: http.StatusUnauthorized,
		},
		{name: "valid token", keys: []string{"secret"}, path: "/collections", header: "Bearer secret", want: http.StatusOK},
		{name: "second key", keys: []string{"k1", "k2"}, path: "/usage", header: "Bearer k2", want: http.StatusOK},
		{name: "scheme is case-insensitive", keys: []string{"secret"}, path: "/usage", header: "bearer secret", want: http.StatusOK},
		{name: "empty token", keys: []string{"secret"}, path: "/usage", header: "Bearer ", want: http.StatusUnauthorized},
		{name: "health exempt", keys: []string{"secret"}, path: "/health", want: http.StatusOK},
		{name: "metrics exempt", keys: []string{"secret"}, path: "/metrics", want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := BearerAuthMiddleware(tt.keys)(okHandler())
			req := httptest.NewRequest(http.MethodGet, tt.path, http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.want {
				t.Fatalf("status = %d, want %d", rr.Code, tt.want)
			}
			if tt.want != http.StatusUnauthorized {
				return
			}
			var errResp ErrorResponse
			if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
				t.Fatalf("decode error response: %v", err)
			}
			if errResp.Code != CodeUnauthorized {
				t.Errorf("code = %s, want %s", errResp.Code, CodeUnauthorized)
			}
			if rr.Header().Get("WWW-Authenticate") == "" {
				t.Error("expected WWW-Authenticate challenge")
			}
		})
	}
}
