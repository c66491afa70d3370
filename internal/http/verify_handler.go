package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/brinsoko/LoRa-CP/internal/verify"
)

// VerifyHandler reconciles returned tags at the finish line.
type VerifyHandler struct {
	reconciler *verify.Reconciler
	logger     *zap.Logger
}

func NewVerifyHandler(reconciler *verify.Reconciler, logger *zap.Logger) *VerifyHandler {
	return &VerifyHandler{reconciler: reconciler, logger: logger}
}

type verifyRequest struct {
	CompetitionID int64    `json:"competition_id"`
	UID           string   `json:"uid"`
	Digests       []string `json:"digests"`
	DevNums       []int    `json:"dev_nums"`
}

func (h *VerifyHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	if req.CompetitionID <= 0 || req.UID == "" {
		writeJSON(w, http.StatusBadRequest, Fail("competition_id and uid are required"))
		return
	}

	report, err := h.reconciler.Verify(r.Context(), verify.Input{
		CompetitionID: req.CompetitionID,
		UID:           req.UID,
		Digests:       req.Digests,
		DevNums:       req.DevNums,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(report))
}
