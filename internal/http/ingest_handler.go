package httpapi

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/brinsoko/LoRa-CP/internal/ingest"
)

// IngestHandler receives uplinks forwarded by LoRa gateways over HTTP.
type IngestHandler struct {
	pipeline *ingest.Pipeline
	logger   *zap.Logger
}

func NewIngestHandler(pipeline *ingest.Pipeline, logger *zap.Logger) *IngestHandler {
	return &IngestHandler{pipeline: pipeline, logger: logger}
}

type ingestRequest struct {
	DevNum        int      `json:"dev_num"`
	Payload       string   `json:"payload"`
	CompetitionID int64    `json:"competition_id"`
	RSSI          *float64 `json:"rssi"`
	SNR           *float64 `json:"snr"`
	Battery       *int     `json:"battery"`
	Timestamp     int64    `json:"timestamp"` // unix seconds, 0 = server time
	WantDigest    bool     `json:"want_digest"`
}

func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	if req.DevNum <= 0 {
		writeJSON(w, http.StatusBadRequest, Fail("dev_num is required"))
		return
	}

	msg := ingest.DeviceMessage{
		DevNum:        req.DevNum,
		Payload:       req.Payload,
		CompetitionID: req.CompetitionID,
		RSSI:          req.RSSI,
		SNR:           req.SNR,
		Battery:       req.Battery,
		WantDigest:    req.WantDigest,
	}
	if req.Timestamp > 0 {
		msg.ReceivedAt = time.Unix(req.Timestamp, 0)
	}

	res, err := h.pipeline.Ingest(r.Context(), msg)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(res))
}
