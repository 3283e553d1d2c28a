// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/okian/battle/internal/adapters/http/swagger"
	"github.com/okian/battle/internal/domain/model"
	"github.com/okian/battle/internal/domain/types"
	"github.com/okian/battle/pkg/logger"
	"github.com/okian/battle/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// UserHeader carries the caller's opaque client id.
const UserHeader = "X-User-ID"

// IdentityDependencies covers the identity routes.
type IdentityDependencies interface {
	Register(ctx context.Context, userID, displayName, cohort string) (*types.Identity, error)
	Identity(ctx context.Context, userID string) (*types.Identity, error)
	Rename(ctx context.Context, userID, displayName string) (*types.Identity, error)
}

// MatchmakingDependencies covers the queue routes.
type MatchmakingDependencies interface {
	Poll(ctx context.Context, userID string, queueStartedAtMs int64) (*types.PollResult, error)
	LeaveQueue(ctx context.Context, userID string) error
}

// MatchDependencies covers the match lifecycle routes.
type MatchDependencies interface {
	CreateMatch(ctx context.Context, userID string, opp types.OpponentSpec, mode string) (string, error)
	ActiveMatch(ctx context.Context, userID string) (string, error)
	MatchView(ctx context.Context, matchID, userID string) (*types.MatchView, error)
	SubmitAnswer(ctx context.Context, matchID, roundID, userID string, selected int, firstCommitMs *int64) (*types.SubmitResult, error)
	FinalizeRound(ctx context.Context, matchID, userID string) (*types.TimeoutResult, error)
	FinalizeMatch(ctx context.Context, matchID, userID string, override *model.Result) (*types.MatchOutcome, error)
	Summary(ctx context.Context, matchID, userID string) (*types.MatchSummary, error)
}

// Dependencies bundles what every route group needs.
type Dependencies interface {
	IdentityDependencies
	MatchmakingDependencies
	MatchDependencies
	LeaderboardDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	identityHandler    *IdentityHandler
	matchmakingHandler *MatchmakingHandler
	matchHandler       *MatchHandler
	leaderboardHandler *LeaderboardHandler

	pprof  bool
	logger logger.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithPprof mounts /debug/pprof when enabled.
func WithPprof(enabled bool) Option {
	return func(s *Server) { s.pprof = enabled }
}

// WithLogger overrides the request logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		identityHandler:    NewIdentityHandler(deps),
		matchmakingHandler: NewMatchmakingHandler(deps),
		matchHandler:       NewMatchHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps),
		logger:             logger.Get().Named("api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the gin engine with every route attached.
func (s *Server) Handler() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), MetricsMiddleware(), RequestLogger(s.logger))
	s.Register(r)
	return r
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(r *gin.Engine) {
	r.GET("/healthz", s.healthHandler.HandleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})))
	r.GET("/stats", s.statsHandler.HandleStats)
	swagger.Register(r)
	if s.pprof {
		pprof.Register(r)
	}

	authed := r.Group("/", RequireUser())

	authed.POST("/identity", s.identityHandler.HandleRegister)
	authed.GET("/identity", s.identityHandler.HandleGet)
	authed.PUT("/identity/name", s.identityHandler.HandleRename)

	authed.POST("/matchmaking/poll", s.matchmakingHandler.HandlePoll)
	authed.DELETE("/matchmaking", s.matchmakingHandler.HandleLeave)

	authed.POST("/matches", s.matchHandler.HandleCreate)
	authed.GET("/matches/active", s.matchHandler.HandleActive)
	authed.GET("/matches/:id", s.matchHandler.HandleView)
	authed.POST("/matches/:id/rounds/:round_id/answer", s.matchHandler.HandleAnswer)
	authed.POST("/matches/:id/timeout", s.matchHandler.HandleTimeout)
	authed.POST("/matches/:id/finalize", s.matchHandler.HandleFinalize)
	authed.GET("/matches/:id/summary", s.matchHandler.HandleSummary)

	authed.GET("/leaderboard", s.leaderboardHandler.HandleGetLeaderboard)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorResponse{Code: "NOT_FOUND", Message: "route not found"})
	})
}
