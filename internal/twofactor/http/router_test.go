package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/homevault/twofactor/internal/twofactor/domain"
	"github.com/homevault/twofactor/internal/twofactor/service"
	"github.com/homevault/twofactor/internal/twofactor/store"
	"github.com/homevault/twofactor/internal/twofactor/store/drivers/sqlite"
	"github.com/homevault/twofactor/pkg/otpx"
)

var (
	testSecret = []byte("router-test-secret")
	testIssuer = "HomeVault"
)

type testServer struct {
	router *Router
	store  store.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := NewRouter(testSecret, testIssuer, "test", st, logger)
	router.EnrollmentService = service.NewEnrollmentService(st, nil, nil, service.EnrollmentConfig{Issuer: testIssuer})
	router.FactorService = service.NewFactorService(st, nil, service.FactorConfig{Issuer: testIssuer})
	router.DeviceService = service.NewDeviceService(st, 0)
	router.ApplyRoutes()

	return &testServer{router: router, store: st}
}

func (s *testServer) token(t *testing.T, accountID string) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss":   testIssuer,
		"sub":   accountID,
		"exp":   time.Now().Add(time.Hour).Unix(),
		"scope": "2fa:read 2fa:write 2fa:verify",
	})
	signed, err := token.SignedString(testSecret)
	require.NoError(t, err)
	return signed
}

func (s *testServer) do(t *testing.T, accountID, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if accountID != "" {
		req.Header.Set("Authorization", "Bearer "+s.token(t, accountID))
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestRouterAuthentication(t *testing.T) {
	srv := newTestServer(t)

	t.Run("unauthenticated requests are rejected", func(t *testing.T) {
		rec := srv.do(t, "", http.MethodGet, "/v1/2fa/enroll", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("health probes need no token", func(t *testing.T) {
		rec := srv.do(t, "", http.MethodGet, "/livez", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = srv.do(t, "", http.MethodGet, "/readyz", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestEnrollmentFlowOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	const acct = "acct-http"

	rec := srv.do(t, acct, http.MethodGet, "/v1/2fa/enroll", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "not_started", decode[stateResponse](t, rec).State)

	rec = srv.do(t, acct, http.MethodGet, "/v1/2fa/methods", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"authenticator"}, decode[methodsResponse](t, rec).Methods)

	rec = srv.do(t, acct, http.MethodPost, "/v1/2fa/enroll/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "selecting_method", decode[stateResponse](t, rec).State)

	// Out-of-order verify is a conflict.
	rec = srv.do(t, acct, http.MethodPost, "/v1/2fa/enroll/verify", codeRequest{Code: "123456"})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = srv.do(t, acct, http.MethodPost, "/v1/2fa/enroll/method", selectMethodRequest{Method: "authenticator"})
	require.Equal(t, http.StatusOK, rec.Code)
	setup := decode[setupResponse](t, rec)
	require.NotEmpty(t, setup.Secret)
	require.NotEmpty(t, setup.ProvisioningURI)
	require.NotEmpty(t, setup.QRCodePNG)

	rec = srv.do(t, acct, http.MethodPost, "/v1/2fa/enroll/confirm", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "verifying", decode[stateResponse](t, rec).State)

	// A malformed code is a bad request; a wrong code is forbidden.
	rec = srv.do(t, acct, http.MethodPost, "/v1/2fa/enroll/verify", codeRequest{Code: "12ab"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	secret, err := otpx.DecodeSecret(setup.Secret)
	require.NoError(t, err)
	code, err := otpx.Generate(secret, time.Now(), otpx.Options{})
	require.NoError(t, err)

	rec = srv.do(t, acct, http.MethodPost, "/v1/2fa/enroll/verify", codeRequest{Code: code})
	require.Equal(t, http.StatusOK, rec.Code)
	issued := decode[backupCodesResponse](t, rec)
	require.Len(t, issued.Codes, 10)

	rec = srv.do(t, acct, http.MethodPost, "/v1/2fa/enroll/ack", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "completed", decode[stateResponse](t, rec).State)

	t.Run("interactive verification works after enrollment", func(t *testing.T) {
		code, err := otpx.Generate(secret, time.Now(), otpx.Options{})
		require.NoError(t, err)

		rec := srv.do(t, acct, http.MethodPost, "/v1/2fa/verify", codeRequest{Code: code})
		require.Equal(t, http.StatusOK, rec.Code)
		require.True(t, decode[verifyResponse](t, rec).Verified)
	})

	t.Run("recovery consumes a backup code once", func(t *testing.T) {
		rec := srv.do(t, acct, http.MethodPost, "/v1/2fa/recover", codeRequest{Code: issued.Codes[0]})
		require.Equal(t, http.StatusOK, rec.Code)
		require.True(t, decode[verifyResponse](t, rec).Verified)

		rec = srv.do(t, acct, http.MethodPost, "/v1/2fa/recover", codeRequest{Code: issued.Codes[0]})
		require.Equal(t, http.StatusOK, rec.Code)
		require.False(t, decode[verifyResponse](t, rec).Verified)
	})

	t.Run("backup code status and export", func(t *testing.T) {
		rec := srv.do(t, acct, http.MethodGet, "/v1/2fa/backup-codes", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, 9, decode[backupCodesStatusResponse](t, rec).Remaining)

		rec = srv.do(t, acct, http.MethodGet, "/v1/2fa/backup-codes/export", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
		require.Contains(t, rec.Header().Get("Content-Disposition"), "backup-codes.txt")
		require.Contains(t, rec.Body.String(), issued.Codes[1])
		require.NotContains(t, rec.Body.String(), issued.Codes[0]) // consumed above
	})

	t.Run("device trust and bypass", func(t *testing.T) {
		rec := srv.do(t, acct, http.MethodPost, "/v1/2fa/devices", trustDeviceRequest{
			DeviceID:   "dev-1",
			DeviceName: "Alice's iPhone",
			DeviceType: "iphone",
		})
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "dev-1", decode[deviceResponse](t, rec).DeviceID)

		rec = srv.do(t, acct, http.MethodGet, "/v1/2fa/devices", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, decode[devicesResponse](t, rec).Devices, 1)

		rec = srv.do(t, acct, http.MethodPost, "/v1/2fa/devices/dev-1/bypass", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.True(t, decode[bypassResponse](t, rec).Trusted)

		rec = srv.do(t, acct, http.MethodDelete, "/v1/2fa/devices/dev-1", nil)
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = srv.do(t, acct, http.MethodPost, "/v1/2fa/devices/dev-1/bypass", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.False(t, decode[bypassResponse](t, rec).Trusted)
	})

	t.Run("disable requires step-up and destroys material", func(t *testing.T) {
		rec := srv.do(t, acct, http.MethodPut, "/v1/2fa/passcode", passcodeRequest{Passcode: "hunter2hunter2"})
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = srv.do(t, acct, http.MethodDelete, "/v1/2fa", disableRequest{Passcode: "wrong"})
		require.Equal(t, http.StatusForbidden, rec.Code)

		rec = srv.do(t, acct, http.MethodDelete, "/v1/2fa", disableRequest{Passcode: "hunter2hunter2"})
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = srv.do(t, acct, http.MethodGet, "/v1/2fa/backup-codes", nil)
		require.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestSelectMethodValidation(t *testing.T) {
	srv := newTestServer(t)
	const acct = "acct-val"

	rec := srv.do(t, acct, http.MethodPost, "/v1/2fa/enroll/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	t.Run("unknown method is a bad request", func(t *testing.T) {
		rec := srv.do(t, acct, http.MethodPost, "/v1/2fa/enroll/method", selectMethodRequest{Method: "carrier-pigeon"})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unavailable method is unprocessable", func(t *testing.T) {
		rec := srv.do(t, acct, http.MethodPost, "/v1/2fa/enroll/method", selectMethodRequest{
			Method:      "sms",
			Destination: "+15550100",
		})
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		require.Equal(t, "method_not_available", decode[struct {
			Error string `json:"error"`
		}](t, rec).Error)
	})

	t.Run("abandon resets to not_started", func(t *testing.T) {
		rec := srv.do(t, acct, http.MethodDelete, "/v1/2fa/enroll", nil)
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = srv.do(t, acct, http.MethodGet, "/v1/2fa/enroll", nil)
		require.Equal(t, domain.StateNotStarted.String(), decode[stateResponse](t, rec).State)
	})
}
