package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/brinsoko/LoRa-CP/internal/repository"
)

// DeviceHandler exposes the ops view: device fleet with telemetry and the
// raw uplink audit log.
type DeviceHandler struct {
	devices  repository.DevicesRepo
	messages repository.MessagesRepo
	logger   *zap.Logger
}

func NewDeviceHandler(devices repository.DevicesRepo, messages repository.MessagesRepo, logger *zap.Logger) *DeviceHandler {
	return &DeviceHandler{devices: devices, messages: messages, logger: logger}
}

func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	competitionID := parseInt64(r.URL.Query().Get("competition_id"), 0)
	if competitionID <= 0 {
		writeJSON(w, http.StatusBadRequest, Fail("competition_id is required"))
		return
	}

	devices, err := h.devices.List(r.Context(), competitionID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"items": devices,
		"total": len(devices),
	}))
}

func (h *DeviceHandler) Messages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := repository.MessageFilter{
		CompetitionID: parseInt64(q.Get("competition_id"), 0),
		DevNum:        parseInt(q.Get("dev_num"), 0),
		Limit:         parseInt(q.Get("limit"), defaultListLimit),
		Offset:        parseInt(q.Get("offset"), 0),
	}
	if f.CompetitionID <= 0 {
		writeJSON(w, http.StatusBadRequest, Fail("competition_id is required"))
		return
	}
	if f.Limit < 1 || f.Limit > maxListLimit {
		f.Limit = defaultListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	messages, err := h.messages.List(r.Context(), f)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"items": messages,
		"total": len(messages),
	}))
}
