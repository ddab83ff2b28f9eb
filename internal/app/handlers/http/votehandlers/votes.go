// Package votehandlers содержит HTTP-хендлеры чтения и записи голосов.
package votehandlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aseptimu/matchup-votes/internal/app/service"
	"github.com/aseptimu/matchup-votes/internal/app/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type VoteHandler struct {
	Service service.VoteCounter
	logger  *zap.SugaredLogger
}

func NewVoteHandler(svc service.VoteCounter, logger *zap.SugaredLogger) *VoteHandler {
	return &VoteHandler{Service: svc, logger: logger}
}

// MaxVoteBodyBytes ограничивает тело POST /votes (после распаковки gzip).
const MaxVoteBodyBytes = 4 << 10

// VoteRequest - тело POST /votes.
type VoteRequest struct {
	Matchup string `json:"matchup"`
	Vote    string `json:"vote"`
}

// VoteResponse - ответ на успешный POST /votes.
type VoteResponse struct {
	Success bool          `json:"success"`
	Votes   service.Tally `json:"votes"`
}

// GetVotes обрабатывает GET /votes.
// С непустым ?matchup= отдаёт голоса одного матчапа (возможно {}),
// без него - {"votes": {...}} по всем матчапам с нормализованными ключами.
func (h *VoteHandler) GetVotes(c *gin.Context) {
	utils.LogRequest(c, h.logger)

	if raw := c.Query("matchup"); raw != "" {
		tally, err := h.Service.GetOne(c.Request.Context(), raw)
		if err != nil {
			h.abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, tally)
		return
	}

	votes, err := h.Service.GetAll(c.Request.Context())
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"votes": votes})
}

// PostVote обрабатывает POST /votes с телом {"matchup": "...", "vote": "..."}.
func (h *VoteHandler) PostVote(c *gin.Context) {
	utils.LogRequest(c, h.logger)

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxVoteBodyBytes)

	var req VoteRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body too large"})
			return
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format"})
		return
	}

	tally, err := h.Service.Vote(c.Request.Context(), req.Matchup, req.Vote)
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, VoteResponse{Success: true, Votes: tally})
}

// Results обрабатывает GET /api/results: все матчапы без обёртки votes.
func (h *VoteHandler) Results(c *gin.Context) {
	utils.LogRequest(c, h.logger)

	votes, err := h.Service.GetAll(c.Request.Context())
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, votes)
}

// Dump обрабатывает GET /dump-votes: содержимое хранилища без нормализации.
func (h *VoteHandler) Dump(c *gin.Context) {
	utils.LogRequest(c, h.logger)

	votes, err := h.Service.Raw(c.Request.Context())
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, votes)
}

func (h *VoteHandler) abortWithError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrStoreUnavailable):
		h.logger.Errorw("Vote store unavailable", "path", c.FullPath(), "err", err)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Vote store unavailable"})
	default:
		h.logger.Errorw("Unexpected error", "path", c.FullPath(), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
