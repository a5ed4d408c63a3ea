package controller

import (
	"strconv"

	"ctfoj/internal/event"
	"ctfoj/internal/scoreboard"
	"ctfoj/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

const defaultTop = 10

// ScoreboardController serves standings and the live solve feed.
type ScoreboardController struct {
	board *scoreboard.Board
	feed  *event.Feed
	hub   *event.Hub
}

// NewScoreboardController creates a new ScoreboardController. feed and hub
// are optional.
func NewScoreboardController(board *scoreboard.Board, feed *event.Feed, hub *event.Hub) *ScoreboardController {
	return &ScoreboardController{board: board, feed: feed, hub: hub}
}

// Top returns the leading teams.
func (h *ScoreboardController) Top(c *gin.Context) {
	n := defaultTop
	if raw := c.Query("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 1000 {
			response.BadRequest(c, "Invalid n")
			return
		}
		n = parsed
	}
	standings, err := h.board.Top(c.Request.Context(), n)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, TopResponse{Standings: standings})
}

// Recent returns the latest solves, newest first.
func (h *ScoreboardController) Recent(c *gin.Context) {
	if h.feed == nil {
		response.Success(c, RecentResponse{Solves: []event.Solved{}})
		return
	}
	solves, err := h.feed.Recent(c.Request.Context(), 0)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, RecentResponse{Solves: solves})
}

// Live upgrades to a websocket that receives every new solve.
func (h *ScoreboardController) Live(c *gin.Context) {
	if h.hub == nil {
		response.NotFound(c, "Live feed disabled")
		return
	}
	h.hub.ServeHTTP(c.Writer, c.Request)
}

// TopResponse defines the standings payload.
type TopResponse struct {
	Standings []scoreboard.Standing `json:"standings"`
}

// RecentResponse defines the recent solves payload.
type RecentResponse struct {
	Solves []event.Solved `json:"solves"`
}
