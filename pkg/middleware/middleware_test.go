package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"hud-backend/pkg/config"
	"hud-backend/pkg/utils"
)

type fakeSessions struct {
	revoked map[string]bool
	err     error
}

func (f fakeSessions) IsRevoked(_ context.Context, sid string) (bool, error) {
	return f.revoked[sid], f.err
}

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := RequireUser(r.Context())
		if err != nil {
			utils.WriteUnauthorizedResponse(w, err.Error())
			return
		}
		utils.WriteSuccessResponse(w, user)
	})
}

func TestAuthMiddleware(t *testing.T) {
	jwtService := utils.NewJWTService("secret")
	pair, err := jwtService.GenerateTokenPair("u1", "a@example.com")
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name     string
		header   string
		sessions SessionChecker
		want     int
	}{
		{"missing header", "", nil, http.StatusUnauthorized},
		{"not bearer", "Token " + pair.AccessToken, nil, http.StatusUnauthorized},
		{"garbage", "Bearer nope", nil, http.StatusUnauthorized},
		{"refresh token", "Bearer " + pair.RefreshToken, nil, http.StatusUnauthorized},
		{"valid", "Bearer " + pair.AccessToken, nil, http.StatusOK},
		{"valid live session", "Bearer " + pair.AccessToken, fakeSessions{}, http.StatusOK},
		{"revoked session", "Bearer " + pair.AccessToken, fakeSessions{revoked: map[string]bool{pair.SessionID: true}}, http.StatusUnauthorized},
		{"session check fails", "Bearer " + pair.AccessToken, fakeSessions{err: errors.New("down")}, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/tabs", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			AuthMiddleware(jwtService, tc.sessions)(echoUser()).ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

func TestRequireUserWithoutClaims(t *testing.T) {
	if _, err := RequireUser(context.Background()); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestRequestLoggerRecordsUserAndStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	jwtService := utils.NewJWTService("secret")
	pair, _ := jwtService.GenerateTokenPair("u1", "a@example.com")

	h := middleware.RequestID(RequestLogger(logger)(AuthMiddleware(jwtService, nil)(echoUser())))
	req := httptest.NewRequest(http.MethodGet, "/api/tabs", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	h.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log %q: %v", buf.String(), err)
	}
	if entry["user"] != "a@example.com" || entry["status"] != float64(200) || entry["path"] != "/api/tabs" {
		t.Errorf("unexpected log entry %v", entry)
	}
	if id, _ := entry["request_id"].(string); id == "" {
		t.Error("missing request id")
	}
}

func TestRecoveryWritesEnvelope(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})
	panicky := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })

	for _, verbose := range []bool{false, true} {
		rec := httptest.NewRecorder()
		Recovery(logger, verbose)(panicky).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d", rec.Code)
		}
		if got := strings.Contains(rec.Body.String(), "boom"); got != verbose {
			t.Errorf("verbose=%v body=%s", verbose, rec.Body.String())
		}
	}
}

func TestContentTypeJSON(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	cases := []struct {
		method, ct, body string
		want             int
	}{
		{http.MethodGet, "", "", http.StatusNoContent},
		{http.MethodPost, "", "", http.StatusNoContent},
		{http.MethodPost, "", `{}`, http.StatusBadRequest},
		{http.MethodPost, "text/plain", `{}`, http.StatusBadRequest},
		{http.MethodPatch, "application/json; charset=utf-8", `{}`, http.StatusNoContent},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, "/", strings.NewReader(tc.body))
		if tc.ct != "" {
			req.Header.Set("Content-Type", tc.ct)
		}
		rec := httptest.NewRecorder()
		ContentTypeJSON(ok).ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Errorf("%s %q %q: status = %d, want %d", tc.method, tc.ct, tc.body, rec.Code, tc.want)
		}
	}
}

func TestNormalizeTrimsPath(t *testing.T) {
	var got string
	h := Normalize()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { got = r.URL.Path }))
	req := httptest.NewRequest(http.MethodGet, "/api/tabs%20", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "/api/tabs" {
		t.Fatalf("path = %q", got)
	}
}

func TestCORSWildcard(t *testing.T) {
	cfg := &config.Config{Environment: "development", AllowedOrigins: []string{"*"}}
	h := CORS(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodOptions, "/api/tabs", nil)
	req.Header.Set("Origin", "https://hud.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow origin = %q", got)
	}
}
