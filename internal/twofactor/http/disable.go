package http

import (
	"encoding/json"
	"net/http"

	"github.com/homevault/twofactor/internal/twofactor/service"
	"github.com/homevault/twofactor/pkg/httpx"
	"github.com/homevault/twofactor/pkg/slogx"
)

// DisableHandler turns the second factor off and manages the step-up
// passcode that gates it.
type DisableHandler struct {
	Factor *service.FactorService
}

// HandleDisable handles DELETE /v1/2fa. The body carries the step-up proof:
// a passcode, or nothing to use the biometric prompt.
func (h *DisableHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}

	var req disableRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
			return
		}
	}

	if err := h.Factor.Disable(ctx, accountID, service.StepUp{Passcode: req.Passcode}); err != nil {
		writeDomainError(w, log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSetPasscode handles PUT /v1/2fa/passcode - provisions the fallback
// step-up passcode for devices without biometrics.
func (h *DisableHandler) HandleSetPasscode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}

	var req passcodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	if err := h.Factor.SetPasscode(ctx, accountID, req.Passcode); err != nil {
		writeDomainError(w, log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
