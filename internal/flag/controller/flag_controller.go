package controller

import (
	"strings"

	commonmw "ctfoj/internal/common/http/middleware"
	"ctfoj/internal/flag/service"
	"ctfoj/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// TitleSource looks up challenge titles.
type TitleSource interface {
	Title(cid string) string
}

// FlagController handles flag submission.
type FlagController struct {
	flagService *service.FlagService
	titles      TitleSource
}

// NewFlagController creates a new FlagController.
func NewFlagController(flagService *service.FlagService, titles TitleSource) *FlagController {
	return &FlagController{flagService: flagService, titles: titles}
}

// Submit redeems a flag for the current user.
func (h *FlagController) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Flag) == "" {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	cid, err := h.flagService.Redeem(c.Request.Context(), req.Flag, commonmw.CurrentUser(c), c.ClientIP(), false)
	if err != nil {
		response.Error(c, err)
		return
	}

	resp := SubmitResponse{CID: cid}
	if h.titles != nil {
		resp.Title = h.titles.Title(cid)
	}
	response.Success(c, resp)
}

// SubmitRequest defines flag submission payload.
type SubmitRequest struct {
	Flag string `json:"flag" binding:"required"`
}

// SubmitResponse names the solved challenge.
type SubmitResponse struct {
	CID   string `json:"cid"`
	Title string `json:"title"`
}
