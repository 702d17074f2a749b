package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/homevault/twofactor/internal/twofactor/service"
	"github.com/homevault/twofactor/internal/twofactor/store"
	"github.com/homevault/twofactor/pkg/httpx"
	"github.com/homevault/twofactor/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	jwtSecret    []byte
	issuer       string
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store             store.Store
	EnrollmentService *service.EnrollmentService
	FactorService     *service.FactorService
	DeviceService     *service.DeviceService
}

func NewRouter(jwtSecret []byte, issuer, buildVersion string, st store.Store, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		jwtSecret:    jwtSecret,
		issuer:       issuer,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerEnrollment()
	r.registerVerification()
	r.registerBackupCodes()
	r.registerDevices()
	r.registerDisable()
	r.registerSystem()
}

// ServeHTTP implements http.Handler and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// authn builds the common authenticated chain: JWT verification, scope
// enforcement, then per-account rate limiting.
func (r *Router) authn(h http.Handler, scope string, limit httpx.RateLimitConfig) http.Handler {
	return httpx.Chain(h,
		httpx.AuthnMiddleware(r.jwtSecret, r.issuer),
		httpx.RequireAnyScope(scope),
		httpx.RateLimitByAccount(limit),
	)
}

func (r *Router) registerEnrollment() {
	h := &EnrollHandler{Enrollment: r.EnrollmentService}

	// Reads are cheap; rate them leniently.
	r.Mux.Handle("GET /v1/2fa/enroll",
		r.authn(http.HandlerFunc(h.HandleState), "2fa:read", httpx.LenientLimit))
	r.Mux.Handle("GET /v1/2fa/methods",
		r.authn(http.HandlerFunc(h.HandleMethods), "2fa:read", httpx.LenientLimit))

	r.Mux.Handle("POST /v1/2fa/enroll/start",
		r.authn(http.HandlerFunc(h.HandleStart), "2fa:write", httpx.ModerateLimit))
	r.Mux.Handle("POST /v1/2fa/enroll/method",
		r.authn(http.HandlerFunc(h.HandleSelectMethod), "2fa:write", httpx.ModerateLimit))
	r.Mux.Handle("POST /v1/2fa/enroll/confirm",
		r.authn(http.HandlerFunc(h.HandleConfirm), "2fa:write", httpx.ModerateLimit))

	// Verification attempts get the strict limit on top of the service's
	// own lockout counter.
	r.Mux.Handle("POST /v1/2fa/enroll/verify",
		r.authn(http.HandlerFunc(h.HandleVerify), "2fa:write", httpx.StrictLimit))

	r.Mux.Handle("POST /v1/2fa/enroll/ack",
		r.authn(http.HandlerFunc(h.HandleAcknowledge), "2fa:write", httpx.ModerateLimit))
	r.Mux.Handle("DELETE /v1/2fa/enroll",
		r.authn(http.HandlerFunc(h.HandleAbandon), "2fa:write", httpx.ModerateLimit))
}

func (r *Router) registerVerification() {
	h := &VerifyHandler{Factor: r.FactorService}

	r.Mux.Handle("POST /v1/2fa/verify",
		r.authn(http.HandlerFunc(h.HandleVerify), "2fa:verify", httpx.StrictLimit))
	r.Mux.Handle("POST /v1/2fa/recover",
		r.authn(http.HandlerFunc(h.HandleRecover), "2fa:verify", httpx.StrictLimit))
}

func (r *Router) registerBackupCodes() {
	h := &BackupCodesHandler{Factor: r.FactorService, Issuer: r.issuer}

	r.Mux.Handle("GET /v1/2fa/backup-codes",
		r.authn(http.HandlerFunc(h.HandleStatus), "2fa:read", httpx.LenientLimit))
	r.Mux.Handle("POST /v1/2fa/backup-codes",
		r.authn(http.HandlerFunc(h.HandleRegenerate), "2fa:write", httpx.StrictLimit))
	r.Mux.Handle("GET /v1/2fa/backup-codes/export",
		r.authn(http.HandlerFunc(h.HandleExport), "2fa:read", httpx.ModerateLimit))
}

func (r *Router) registerDevices() {
	h := &DevicesHandler{Devices: r.DeviceService}

	r.Mux.Handle("GET /v1/2fa/devices",
		r.authn(http.HandlerFunc(h.HandleList), "2fa:read", httpx.LenientLimit))
	r.Mux.Handle("POST /v1/2fa/devices",
		r.authn(http.HandlerFunc(h.HandleTrust), "2fa:write", httpx.ModerateLimit))
	r.Mux.Handle("DELETE /v1/2fa/devices/{device_id}",
		r.authn(http.HandlerFunc(h.HandleRevoke), "2fa:write", httpx.ModerateLimit))
	r.Mux.Handle("POST /v1/2fa/devices/{device_id}/bypass",
		r.authn(http.HandlerFunc(h.HandleBypass), "2fa:verify", httpx.ModerateLimit))
}

func (r *Router) registerDisable() {
	h := &DisableHandler{Factor: r.FactorService}

	r.Mux.Handle("DELETE /v1/2fa",
		r.authn(http.HandlerFunc(h.HandleDisable), "2fa:write", httpx.StrictLimit))
	r.Mux.Handle("PUT /v1/2fa/passcode",
		r.authn(http.HandlerFunc(h.HandleSetPasscode), "2fa:write", httpx.ModerateLimit))
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}
