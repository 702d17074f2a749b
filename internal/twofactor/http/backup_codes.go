package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/homevault/twofactor/internal/twofactor/service"
	"github.com/homevault/twofactor/pkg/httpx"
	"github.com/homevault/twofactor/pkg/slogx"
)

// BackupCodesHandler manages the recovery code set after enrollment.
type BackupCodesHandler struct {
	Factor *service.FactorService
	Issuer string
}

// HandleStatus handles GET /v1/2fa/backup-codes - remaining code count. The
// codes themselves are only returned by regeneration or export.
func (h *BackupCodesHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}

	remaining, err := h.Factor.RemainingBackupCodes(ctx, accountID)
	if err != nil {
		writeDomainError(w, log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, backupCodesStatusResponse{Remaining: remaining})
}

// HandleRegenerate handles POST /v1/2fa/backup-codes. Requires a current
// TOTP code; every previously issued code stops working.
func (h *BackupCodesHandler) HandleRegenerate(w http.ResponseWriter, r *http.Request) {
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

	codes, err := h.Factor.RegenerateBackupCodes(ctx, accountID, req.Code)
	if err != nil {
		writeDomainError(w, log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, backupCodesResponse{Codes: codes})
}

// HandleExport handles GET /v1/2fa/backup-codes/export - the active set as a
// downloadable plain-text document.
func (h *BackupCodesHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}

	codes, err := h.Factor.ExportBackupCodes(ctx, accountID)
	if err != nil {
		writeDomainError(w, log, err)
		return
	}

	doc := service.RenderBackupCodesText(h.Issuer, codes, time.Now())
	httpx.NoCache(w)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="backup-codes.txt"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc))
}
