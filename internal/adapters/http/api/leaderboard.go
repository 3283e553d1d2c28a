package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/okian/battle/internal/domain/fault"
	"github.com/okian/battle/internal/domain/types"
)

const defaultLeaderboardLimit = 10

// LeaderboardDependencies defines the interface for leaderboard operations.
type LeaderboardDependencies interface {
	Leaderboard(ctx context.Context, seasonID, cohort string, limit int) (*types.Leaderboard, error)
}

// LeaderboardHandler handles leaderboard requests.
type LeaderboardHandler struct {
	deps LeaderboardDependencies
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(deps LeaderboardDependencies) *LeaderboardHandler {
	return &LeaderboardHandler{deps: deps}
}

// HandleGetLeaderboard handles GET /leaderboard?season_id=&cohort=&limit=N.
// The limit range is enforced by the leaderboard service.
func (h *LeaderboardHandler) HandleGetLeaderboard(c *gin.Context) {
	const op = "api.get_leaderboard"
	limit := defaultLeaderboardLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(c, fault.NewKindf(op, fault.ErrBadRequest, "limit must be an integer"))
			return
		}
		limit = n
	}
	board, err := h.deps.Leaderboard(c.Request.Context(), c.Query("season_id"), c.Query("cohort"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, board)
}
