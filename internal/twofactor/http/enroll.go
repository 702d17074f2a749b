package http

import (
	"encoding/json"
	"net/http"

	"github.com/homevault/twofactor/internal/twofactor/domain"
	"github.com/homevault/twofactor/internal/twofactor/service"
	"github.com/homevault/twofactor/pkg/httpx"
	"github.com/homevault/twofactor/pkg/slogx"
)

// EnrollHandler drives the enrollment state machine over HTTP. Each endpoint
// maps to exactly one state transition; calling them out of order yields
// 409 invalid_state.
type EnrollHandler struct {
	Enrollment *service.EnrollmentService
}

// HandleState handles GET /v1/2fa/enroll - reports the current state.
func (h *EnrollHandler) HandleState(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, stateResponse{
		State: h.Enrollment.State(accountID).String(),
	})
}

// HandleMethods handles GET /v1/2fa/methods - lists usable methods.
func (h *EnrollHandler) HandleMethods(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAccount(w, r); !ok {
		return
	}
	methods := h.Enrollment.AvailableMethods(r.Context())
	names := make([]string, len(methods))
	for i, m := range methods {
		names[i] = m.String()
	}
	httpx.WriteJSON(w, http.StatusOK, methodsResponse{Methods: names})
}

// HandleStart handles POST /v1/2fa/enroll/start.
func (h *EnrollHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}

	state, err := h.Enrollment.Start(ctx, accountID)
	if err != nil {
		writeDomainError(w, log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, stateResponse{State: state.String()})
}

// HandleSelectMethod handles POST /v1/2fa/enroll/method. For the
// authenticator method the response carries the uncommitted secret material;
// it is never cached and never stored server side outside the session.
func (h *EnrollHandler) HandleSelectMethod(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}

	var req selectMethodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	method, err := domain.ParseMethod(req.Method)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	setup, err := h.Enrollment.SelectMethod(ctx, accountID, method, req.Destination)
	if err != nil {
		writeDomainError(w, log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, setupResponse{
		State:           domain.StateConfiguringMethod.String(),
		Method:          setup.Method.String(),
		Secret:          setup.Secret,
		ProvisioningURI: setup.ProvisioningURI,
		ManualEntryCode: setup.ManualEntryCode,
		QRCodePNG:       setup.QRCodePNG,
	})
}

// HandleConfirm handles POST /v1/2fa/enroll/confirm - the user finished
// configuring the method and is ready to verify.
func (h *EnrollHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}

	state, err := h.Enrollment.Confirm(ctx, accountID)
	if err != nil {
		writeDomainError(w, log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, stateResponse{State: state.String()})
}

// HandleVerify handles POST /v1/2fa/enroll/verify. An empty code selects the
// biometric path for sessions that chose that method. Success returns the
// freshly issued backup codes - the only time they appear in a response
// until the user explicitly exports them.
func (h *EnrollHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}

	var req codeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	var (
		codes []string
		err   error
	)
	if req.Code == "" {
		codes, err = h.Enrollment.VerifyBiometric(ctx, accountID)
	} else {
		codes, err = h.Enrollment.VerifyCode(ctx, accountID, req.Code)
	}
	if err != nil {
		writeDomainError(w, log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, backupCodesResponse{
		State: domain.StateIssuingBackupCodes.String(),
		Codes: codes,
	})
}

// HandleAcknowledge handles POST /v1/2fa/enroll/ack - the user confirmed
// saving their backup codes; the factor becomes active.
func (h *EnrollHandler) HandleAcknowledge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}

	if err := h.Enrollment.Acknowledge(ctx, accountID); err != nil {
		writeDomainError(w, log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, stateResponse{State: domain.StateCompleted.String()})
}

// HandleAbandon handles DELETE /v1/2fa/enroll - discards the session and any
// uncommitted secret from any state short of completed.
func (h *EnrollHandler) HandleAbandon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}

	if err := h.Enrollment.Abandon(ctx, accountID); err != nil {
		writeDomainError(w, log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
