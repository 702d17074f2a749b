package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/homevault/twofactor/internal/twofactor/domain"
	"github.com/homevault/twofactor/internal/twofactor/service"
	"github.com/homevault/twofactor/pkg/httpx"
	"github.com/homevault/twofactor/pkg/slogx"
)

// DevicesHandler manages the trusted-device registry.
type DevicesHandler struct {
	Devices *service.DeviceService
}

// HandleList handles GET /v1/2fa/devices.
func (h *DevicesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}

	devices, err := h.Devices.List(ctx, accountID)
	if err != nil {
		writeDomainError(w, log, err)
		return
	}

	out := make([]deviceResponse, len(devices))
	for i, d := range devices {
		out[i] = toDeviceResponse(d)
	}
	httpx.WriteJSON(w, http.StatusOK, devicesResponse{Devices: out})
}

// HandleTrust handles POST /v1/2fa/devices. Trusting an already-trusted
// device refreshes it rather than duplicating it.
func (h *DevicesHandler) HandleTrust(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}

	var req trustDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	if req.DeviceID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "device_id is required")
		return
	}
	deviceType, err := domain.ParseDeviceType(req.DeviceType)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	d, err := h.Devices.Trust(ctx, accountID, req.DeviceID, req.DeviceName, deviceType)
	if err != nil {
		writeDomainError(w, log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toDeviceResponse(d))
}

// HandleRevoke handles DELETE /v1/2fa/devices/{device_id}. Revoking an
// unknown device succeeds; the end state is the same either way.
func (h *DevicesHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}

	if err := h.Devices.Revoke(ctx, accountID, r.PathValue("device_id")); err != nil {
		writeDomainError(w, log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleBypass handles POST /v1/2fa/devices/{device_id}/bypass - asks
// whether the device may skip interactive verification, refreshing its
// trust when it may.
func (h *DevicesHandler) HandleBypass(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}

	trusted, err := h.Devices.Bypass(ctx, accountID, r.PathValue("device_id"))
	if err != nil {
		writeDomainError(w, log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, bypassResponse{Trusted: trusted})
}

func toDeviceResponse(d domain.TrustedDevice) deviceResponse {
	return deviceResponse{
		DeviceID:   d.DeviceID,
		DeviceName: d.DeviceName,
		DeviceType: d.DeviceType.String(),
		TrustedAt:  d.TrustedAt.UTC().Format(time.RFC3339),
		LastUsedAt: d.LastUsedAt.UTC().Format(time.RFC3339),
	}
}
