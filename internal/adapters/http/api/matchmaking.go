package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type pollRequest struct {
	QueueStartedAtMs int64 `json:"queue_started_at_ms"`
}

// MatchmakingHandler serves /matchmaking.
type MatchmakingHandler struct {
	deps MatchmakingDependencies
}

// NewMatchmakingHandler creates a new matchmaking handler.
func NewMatchmakingHandler(deps MatchmakingDependencies) *MatchmakingHandler {
	return &MatchmakingHandler{deps: deps}
}

// HandlePoll handles POST /matchmaking/poll.
func (h *MatchmakingHandler) HandlePoll(c *gin.Context) {
	var req pollRequest
	if err := bindJSON(c, "api.poll", &req); err != nil {
		writeError(c, err)
		return
	}
	res, err := h.deps.Poll(c.Request.Context(), userID(c), req.QueueStartedAtMs)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// HandleLeave handles DELETE /matchmaking.
func (h *MatchmakingHandler) HandleLeave(c *gin.Context) {
	if err := h.deps.LeaveQueue(c.Request.Context(), userID(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
