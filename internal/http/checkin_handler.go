package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/brinsoko/LoRa-CP/internal/export"
	"github.com/brinsoko/LoRa-CP/internal/ingest"
	"github.com/brinsoko/LoRa-CP/internal/repository"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// CheckInHandler serves the judge console: manual check-ins, listings and
// result-desk exports.
type CheckInHandler struct {
	pipeline *ingest.Pipeline
	checkins repository.CheckInsRepo
	logger   *zap.Logger
}

func NewCheckInHandler(pipeline *ingest.Pipeline, checkins repository.CheckInsRepo, logger *zap.Logger) *CheckInHandler {
	return &CheckInHandler{pipeline: pipeline, checkins: checkins, logger: logger}
}

type manualCheckInRequest struct {
	CompetitionID int64 `json:"competition_id"`
	TeamID        int64 `json:"team_id"`
	CheckpointID  int64 `json:"checkpoint_id"`
	Timestamp     int64 `json:"timestamp"` // unix seconds, 0 = server time
	WantDigest    bool  `json:"want_digest"`
}

func (h *CheckInHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req manualCheckInRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	if req.CompetitionID <= 0 || req.TeamID <= 0 || req.CheckpointID <= 0 {
		writeJSON(w, http.StatusBadRequest, Fail("competition_id, team_id and checkpoint_id are required"))
		return
	}

	manual := ingest.ManualCheckIn{
		CompetitionID: req.CompetitionID,
		TeamID:        req.TeamID,
		CheckpointID:  req.CheckpointID,
		WantDigest:    req.WantDigest,
	}
	if req.Timestamp > 0 {
		manual.At = time.Unix(req.Timestamp, 0)
	}

	res, err := h.pipeline.Manual(r.Context(), manual)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(res))
}

func listFilter(r *http.Request) repository.CheckInFilter {
	q := r.URL.Query()
	f := repository.CheckInFilter{
		CompetitionID: parseInt64(q.Get("competition_id"), 0),
		TeamID:        parseInt64(q.Get("team_id"), 0),
		CheckpointID:  parseInt64(q.Get("checkpoint_id"), 0),
		Sort:          q.Get("sort"),
		Limit:         parseInt(q.Get("limit"), defaultListLimit),
		Offset:        parseInt(q.Get("offset"), 0),
	}
	if f.Limit < 1 || f.Limit > maxListLimit {
		f.Limit = defaultListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if from := parseInt64(q.Get("from"), 0); from > 0 {
		t := time.Unix(from, 0).UTC()
		f.From = &t
	}
	if to := parseInt64(q.Get("to"), 0); to > 0 {
		t := time.Unix(to, 0).UTC()
		f.To = &t
	}
	return f
}

func (h *CheckInHandler) List(w http.ResponseWriter, r *http.Request) {
	f := listFilter(r)
	if f.CompetitionID <= 0 {
		writeJSON(w, http.StatusBadRequest, Fail("competition_id is required"))
		return
	}

	records, err := h.checkins.List(r.Context(), f)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"items": records,
		"total": len(records),
	}))
}

func (h *CheckInHandler) Export(w http.ResponseWriter, r *http.Request) {
	f := listFilter(r)
	if f.CompetitionID <= 0 {
		writeJSON(w, http.StatusBadRequest, Fail("competition_id is required"))
		return
	}
	f.Limit = maxListLimit
	f.Offset = 0

	records, err := h.checkins.List(r.Context(), f)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}
	stamp := time.Now().UTC().Format("20060102_150405")

	switch format {
	case "csv":
		out, err := export.CSV(records)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=checkins_%s.csv", stamp))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(out)
	case "xlsx":
		out, err := export.XLSX(records)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=checkins_%s.xlsx", stamp))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(out)
	default:
		writeJSON(w, http.StatusBadRequest, Fail("format must be csv or xlsx"))
	}
}
