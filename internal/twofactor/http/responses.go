package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/homevault/twofactor/internal/twofactor/domain"
	"github.com/homevault/twofactor/pkg/httpx"
	"github.com/homevault/twofactor/pkg/otpx"
)

// Wire types for the 2FA API. Kept in-package; nothing outside the HTTP
// layer speaks these shapes.

type stateResponse struct {
	State string `json:"state"`
}

type methodsResponse struct {
	Methods []string `json:"methods"`
}

type selectMethodRequest struct {
	Method      string `json:"method"`
	Destination string `json:"destination,omitempty"` // sms / email only
}

type setupResponse struct {
	State           string `json:"state"`
	Method          string `json:"method"`
	Secret          string `json:"secret,omitempty"`
	ProvisioningURI string `json:"provisioning_uri,omitempty"`
	ManualEntryCode string `json:"manual_entry_code,omitempty"`
	QRCodePNG       []byte `json:"qr_code_png,omitempty"` // base64 in JSON
}

type codeRequest struct {
	Code string `json:"code"`
}

type backupCodesResponse struct {
	State string   `json:"state,omitempty"`
	Codes []string `json:"codes"`
}

type backupCodesStatusResponse struct {
	Remaining int `json:"remaining"`
}

type verifyResponse struct {
	Verified bool `json:"verified"`
}

type trustDeviceRequest struct {
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
	DeviceType string `json:"device_type"`
}

type deviceResponse struct {
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
	DeviceType string `json:"device_type"`
	TrustedAt  string `json:"trusted_at"`
	LastUsedAt string `json:"last_used_at"`
}

type devicesResponse struct {
	Devices []deviceResponse `json:"devices"`
}

type bypassResponse struct {
	Trusted bool `json:"trusted"`
}

type disableRequest struct {
	Passcode string `json:"passcode,omitempty"` // empty selects the biometric path
}

type passcodeRequest struct {
	Passcode string `json:"passcode"`
}

// writeDomainError maps the service error taxonomy onto HTTP statuses.
// Unrecognised errors are logged and reported as an opaque 500.
func writeDomainError(w http.ResponseWriter, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, otpx.ErrInvalidCode):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_code",
			"Code must be exactly 6 digits")
	case errors.Is(err, domain.ErrInvalidState):
		httpx.WriteError(w, http.StatusConflict, "invalid_state",
			"Operation not valid in the current enrollment state")
	case errors.Is(err, domain.ErrVerificationFailed):
		httpx.WriteError(w, http.StatusForbidden, "verification_failed",
			"Verification failed")
	case errors.Is(err, domain.ErrTooManyAttempts):
		httpx.WriteError(w, http.StatusTooManyRequests, "too_many_attempts",
			"Too many failed attempts, try again later")
	case errors.Is(err, domain.ErrMethodNotAvailable):
		httpx.WriteError(w, http.StatusUnprocessableEntity, "method_not_available",
			"The selected method is not available")
	case errors.Is(err, domain.ErrAuthenticationFailed):
		httpx.WriteError(w, http.StatusForbidden, "authentication_failed",
			"Authentication failed")
	case errors.Is(err, domain.ErrNotEnabled):
		httpx.WriteError(w, http.StatusConflict, "not_enabled",
			"Two-factor authentication is not enabled")
	case errors.Is(err, domain.ErrAlreadyEnabled):
		httpx.WriteError(w, http.StatusConflict, "already_enabled",
			"Two-factor authentication is already enabled")
	default:
		log.Error("unexpected service error", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error",
			"Internal server error")
	}
}

// requireAccount extracts the authenticated account from the request context
// or writes a 401. The authn middleware normally guarantees presence; this
// is the backstop for misconfigured routes.
func requireAccount(w http.ResponseWriter, r *http.Request) (string, bool) {
	accountID := httpx.AccountIDFromContext(r.Context())
	if accountID == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token",
			"Authentication required")
		return "", false
	}
	return accountID, true
}
