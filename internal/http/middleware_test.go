package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Clark-Hu/movie-recommendation/internal/auth"
	"github.com/Clark-Hu/movie-recommendation/internal/config"
)

func requestFrom(remoteAddr, target string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = remoteAddr
	return req
}

func TestRateLimitMiddleware(t *testing.T) {
	cfg := testConfig()
	cfg.APIRatePerSec = 1
	cfg.APIRateBurst = 2
	srv := New(cfg, nil, nil, nil, zap.NewNop())

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, requestFrom("192.0.2.1:4000", "/healthz"))
		if rec.Code == http.StatusTooManyRequests {
			t.Fatalf("request %d limited inside burst", i)
		}
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, requestFrom("192.0.2.1:4001", "/healthz"))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After header")
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, requestFrom("198.51.100.7:4000", "/healthz"))
	if rec.Code == http.StatusTooManyRequests {
		t.Fatalf("other clients must not share the limit")
	}
}

func TestRateLimitDisabled(t *testing.T) {
	srv := New(testConfig(), nil, nil, nil, nil)
	if srv.limiter != nil {
		t.Fatalf("limiter should be off when APIRatePerSec is 0")
	}
	for i := 0; i < 50; i++ {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, requestFrom("192.0.2.1:4000", "/healthz"))
		if rec.Code == http.StatusTooManyRequests {
			t.Fatalf("request %d limited with limiter disabled", i)
		}
	}
}

func TestRequestLoggerFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	srv := New(testConfig(), nil, nil, nil, zap.New(core))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, requestFrom("192.0.2.1:4000", "/healthz"))

	entries := logs.FilterMessage("request").All()
	if len(entries) != 1 {
		t.Fatalf("expected one request log, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["path"] != "/healthz" || fields["method"] != http.MethodGet {
		t.Fatalf("unexpected fields %v", fields)
	}
	if fields["status"] != int64(http.StatusServiceUnavailable) {
		t.Fatalf("status not captured: %v", fields["status"])
	}
	if id, _ := fields["request_id"].(string); id == "" {
		t.Fatalf("request id missing")
	}
}

func TestRequireUser(t *testing.T) {
	srv := &Server{verifier: auth.NewVerifier(testJWTSecret), logger: zap.NewNop()}
	var seen string
	handler := srv.requireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = auth.UserIDFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		header string
		status int
		user   string
	}{
		{"valid", "Bearer " + userToken(t, "carol"), http.StatusNoContent, "carol"},
		{"lowercase scheme", "bearer " + userToken(t, "dave"), http.StatusNoContent, "dave"},
		{"missing", "", http.StatusUnauthorized, ""},
		{"not bearer", "Basic abc", http.StatusUnauthorized, ""},
		{"garbage", "Bearer nope", http.StatusUnauthorized, ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if c.header != "" {
				req.Header.Set("Authorization", c.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != c.status || seen != c.user {
				t.Fatalf("got status %d user %q, want %d %q", rec.Code, seen, c.status, c.user)
			}
		})
	}
}

func TestVerifyBearer(t *testing.T) {
	srv := &Server{cfg: config.Config{AuthToken: "secret"}}
	cases := []struct {
		header  string
		allowed bool
	}{
		{"Bearer secret", true},
		{"Bearer secret ", true},
		{"Bearer other", false},
		{"secret", false},
		{"", false},
	}
	for _, c := range cases {
		if srv.verifyBearer(c.header) != c.allowed {
			t.Fatalf("verifyBearer(%q) expected %v", c.header, c.allowed)
		}
	}

	empty := &Server{}
	if empty.verifyBearer("Bearer ") {
		t.Fatalf("an unset admin token must never match")
	}
}
