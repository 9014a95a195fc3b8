package auth_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-apotek/internal/auth"
	"github.com/noah-isme/backend-apotek/internal/common"
	"github.com/noah-isme/backend-apotek/internal/obs"
)

func login(t *testing.T, h *auth.Handler) string {
	t.Helper()
	rr := httptest.NewRecorder()
	h.Login(rr, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"operatorId":"cashier-1","password":"s3cret-pass"}`)))
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Data auth.LoginResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.NotEmpty(t, body.Data.AccessToken)
	return body.Data.AccessToken
}

func TestLoginHandler(t *testing.T) {
	h := &auth.Handler{Service: newAuthService(t)}
	login(t, h)

	rr := httptest.NewRecorder()
	h.Login(rr, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"operatorId":"cashier-1","password":"nope"}`)))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Contains(t, rr.Body.String(), `"INVALID_CREDENTIALS"`)

	rr = httptest.NewRecorder()
	h.Login(rr, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"operatorId":"cashier-1"}`)))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Contains(t, rr.Body.String(), `"password":"required"`)
}

func TestRequireAuthAndMe(t *testing.T) {
	svc := newAuthService(t)
	h := &auth.Handler{Service: svc}
	token := login(t, h)

	var seenSession, seenCashier string
	protected := auth.Middleware{Service: svc}.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenSession, _ = common.SessionID(r.Context())
		seenCashier, _ = common.UserID(r.Context())
		h.Me(w, r)
	}))
	var logs bytes.Buffer
	handler := obs.RequestLogger{Logger: zerolog.New(&logs)}.Middleware(protected)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "cashier-1", seenCashier)
	require.NotEmpty(t, seenSession)
	require.Contains(t, rr.Body.String(), `"name":"Ayu"`)
	require.Contains(t, logs.String(), `"cashier_id":"cashier-1"`)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}
