package http

import (
	"encoding/json"
	"net/http"

	"github.com/homevault/twofactor/internal/twofactor/service"
	"github.com/homevault/twofactor/pkg/httpx"
	"github.com/homevault/twofactor/pkg/slogx"
)

// VerifyHandler covers post-enrollment verification: interactive TOTP codes
// and backup-code recovery.
type VerifyHandler struct {
	Factor *service.FactorService
}

// HandleVerify handles POST /v1/2fa/verify.
func (h *VerifyHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
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

	if err := h.Factor.VerifyTOTP(ctx, accountID, req.Code); err != nil {
		writeDomainError(w, log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, verifyResponse{Verified: true})
}

// HandleRecover handles POST /v1/2fa/recover. A code absent from the active
// set is not an error; the response simply reports verified=false so the
// client can prompt for a different method.
func (h *VerifyHandler) HandleRecover(w http.ResponseWriter, r *http.Request) {
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

	used, err := h.Factor.Recover(ctx, accountID, req.Code)
	if err != nil {
		writeDomainError(w, log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, verifyResponse{Verified: used})
}
