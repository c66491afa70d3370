package httpapi

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/brinsoko/LoRa-CP/internal/progress"
)

// ProgressHandler serves team progress and the competition scoreboard.
type ProgressHandler struct {
	projector *progress.Projector
	logger    *zap.Logger
}

func NewProgressHandler(projector *progress.Projector, logger *zap.Logger) *ProgressHandler {
	return &ProgressHandler{projector: projector, logger: logger}
}

func (h *ProgressHandler) TeamProgress(w http.ResponseWriter, r *http.Request, teamID string) {
	id, err := strconv.ParseInt(teamID, 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, Fail("invalid team id"))
		return
	}
	q := r.URL.Query()
	competitionID := parseInt64(q.Get("competition_id"), 0)
	if competitionID <= 0 {
		writeJSON(w, http.StatusBadRequest, Fail("competition_id is required"))
		return
	}
	groupID := parseInt64(q.Get("group_id"), 0)

	tp, err := h.projector.Project(r.Context(), competitionID, id, groupID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(tp))
}

func (h *ProgressHandler) Scoreboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	competitionID := parseInt64(q.Get("competition_id"), 0)
	if competitionID <= 0 {
		writeJSON(w, http.StatusBadRequest, Fail("competition_id is required"))
		return
	}
	groupID := parseInt64(q.Get("group_id"), 0)

	all, err := h.projector.ProjectAll(r.Context(), competitionID, groupID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"items": all,
		"total": len(all),
	}))
}
