package http

import (
	"net/http"

	"github.com/aseptimu/matchup-votes/internal/app/config"
	"github.com/aseptimu/matchup-votes/internal/app/handlers/http/dbhandlers"
	"github.com/aseptimu/matchup-votes/internal/app/handlers/http/votehandlers"
	"github.com/aseptimu/matchup-votes/internal/app/middleware"
	"github.com/aseptimu/matchup-votes/internal/app/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handlers interface {
	RegisterRoutes(r *gin.Engine)
}

type handlersImpl struct {
	cfg     *config.ConfigType
	voteSvc service.VoteCounter
	pinger  dbhandlers.Pinger
	metrics http.Handler
	logger  *zap.SugaredLogger
}

// New собирает маршруты сервиса. metrics может быть nil, тогда /metrics не регистрируется.
func New(
	cfg *config.ConfigType,
	voteSvc service.VoteCounter,
	pinger dbhandlers.Pinger,
	metrics http.Handler,
	logger *zap.SugaredLogger,
) Handlers {
	return &handlersImpl{
		cfg:     cfg,
		voteSvc: voteSvc,
		pinger:  pinger,
		metrics: metrics,
		logger:  logger,
	}
}

func (h *handlersImpl) RegisterRoutes(r *gin.Engine) {
	votes := votehandlers.NewVoteHandler(h.voteSvc, h.logger)
	limiter := middleware.NewRateLimiter(h.cfg.RateLimitRPS, h.cfg.RateLimitBurst)

	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "Hello, backend is working!")
	})
	r.GET("/votes", votes.GetVotes)
	r.POST("/votes", limiter.Middleware(), votes.PostVote)
	r.GET("/api/results", votes.Results)
	r.GET("/ping", dbhandlers.NewPingHandler(h.pinger, h.logger).Ping)

	if h.cfg.DumpSecret != "" {
		r.GET("/dump-votes", middleware.DumpAuth(h.cfg.DumpSecret, h.logger), votes.Dump)
	} else {
		h.logger.Infow("DUMP_SECRET is not set, /dump-votes is disabled")
	}

	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics))
	}
}
