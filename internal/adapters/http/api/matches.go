package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/okian/battle/internal/domain/fault"
	"github.com/okian/battle/internal/domain/model"
	"github.com/okian/battle/internal/domain/types"
)

type createMatchRequest struct {
	Opponent types.OpponentSpec `json:"opponent"`
	Mode     string             `json:"mode"`
}

type matchIDResponse struct {
	MatchID string `json:"match_id"`
}

type answerRequest struct {
	SelectedIndex *int   `json:"selected_index"`
	FirstCommitMs *int64 `json:"first_commit_ms"`
}

type finalizeRequest struct {
	ResultOverride *model.Result `json:"result_override"`
}

// MatchHandler serves /matches.
type MatchHandler struct {
	deps MatchDependencies
}

// NewMatchHandler creates a new match handler.
func NewMatchHandler(deps MatchDependencies) *MatchHandler {
	return &MatchHandler{deps: deps}
}

// HandleCreate handles POST /matches.
func (h *MatchHandler) HandleCreate(c *gin.Context) {
	var req createMatchRequest
	if err := bindJSON(c, "api.create_match", &req); err != nil {
		writeError(c, err)
		return
	}
	id, err := h.deps.CreateMatch(c.Request.Context(), userID(c), req.Opponent, req.Mode)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, matchIDResponse{MatchID: id})
}

// HandleActive handles GET /matches/active.
func (h *MatchHandler) HandleActive(c *gin.Context) {
	id, err := h.deps.ActiveMatch(c.Request.Context(), userID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, matchIDResponse{MatchID: id})
}

// HandleView handles GET /matches/:id.
func (h *MatchHandler) HandleView(c *gin.Context) {
	view, err := h.deps.MatchView(c.Request.Context(), c.Param("id"), userID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// HandleAnswer handles POST /matches/:id/rounds/:round_id/answer.
func (h *MatchHandler) HandleAnswer(c *gin.Context) {
	const op = "api.submit_answer"
	var req answerRequest
	if err := bindJSON(c, op, &req); err != nil {
		writeError(c, err)
		return
	}
	if req.SelectedIndex == nil {
		writeError(c, fault.NewKindf(op, fault.ErrBadRequest, "selected_index is required"))
		return
	}
	res, err := h.deps.SubmitAnswer(c.Request.Context(), c.Param("id"), c.Param("round_id"), userID(c), *req.SelectedIndex, req.FirstCommitMs)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// HandleTimeout handles POST /matches/:id/timeout.
func (h *MatchHandler) HandleTimeout(c *gin.Context) {
	res, err := h.deps.FinalizeRound(c.Request.Context(), c.Param("id"), userID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// HandleFinalize handles POST /matches/:id/finalize. The body is optional.
func (h *MatchHandler) HandleFinalize(c *gin.Context) {
	var req finalizeRequest
	if err := bindOptionalJSON(c, "api.finalize_match", &req); err != nil {
		writeError(c, err)
		return
	}
	out, err := h.deps.FinalizeMatch(c.Request.Context(), c.Param("id"), userID(c), req.ResultOverride)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// HandleSummary handles GET /matches/:id/summary.
func (h *MatchHandler) HandleSummary(c *gin.Context) {
	sum, err := h.deps.Summary(c.Request.Context(), c.Param("id"), userID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}
