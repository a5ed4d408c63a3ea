package controller

import (
	"context"
	"io"
	"net/http"

	"ctfoj/internal/challenge"
	"ctfoj/internal/event"
	commonmw "ctfoj/internal/common/http/middleware"
	"ctfoj/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

const maxRequestBody = 1 << 20

// EventLogger records audit events.
type EventLogger interface {
	Log(ctx context.Context, ip, typ, data, cid, uid string) int64
}

// ChallengeController serves the challenge list and proxies requests to
// challenge instances.
type ChallengeController struct {
	catalog *challenge.Catalog
	manager *challenge.Manager
	events  EventLogger
}

// NewChallengeController creates a new ChallengeController.
func NewChallengeController(catalog *challenge.Catalog, manager *challenge.Manager, events EventLogger) *ChallengeController {
	return &ChallengeController{catalog: catalog, manager: manager, events: events}
}

// List returns the challenges visible to the current user.
func (h *ChallengeController) List(c *gin.Context) {
	ctx := c.Request.Context()
	uid := commonmw.CurrentUser(c)
	if h.events != nil {
		h.events.Log(ctx, c.ClientIP(), event.TypeGetChallenges, "", "", uid)
	}

	list, err := h.catalog.List(ctx, uid)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, ListResponse{Challenges: list})
}

// Handle forwards GET and POST requests to the challenge named by :cid.
func (h *ChallengeController) Handle(c *gin.Context) {
	cid := c.Param("cid")
	path := c.Param("path")
	if path == "/" {
		path = ""
	}

	var body []byte
	if c.Request.Body != nil {
		data, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBody))
		if err != nil {
			response.BadRequest(c, "Request body too large")
			return
		}
		body = data
	}

	resp, err := h.manager.Handle(c.Request.Context(), cid, commonmw.CurrentUser(c), &challenge.Request{
		Method:   c.Request.Method,
		Path:     path,
		Query:    c.Request.URL.Query(),
		Header:   c.Request.Header.Clone(),
		Body:     body,
		RemoteIP: c.ClientIP(),
	})
	if err != nil {
		_ = c.Error(err)
		response.Error(c, err)
		return
	}
	c.Data(resp.Status, resp.ContentType, resp.Body)
}

// EventMiddleware records every proxied request as a handle-request event.
func (h *ChallengeController) EventMiddleware() gin.HandlerFunc {
	var events commonmw.EventLogger
	if h.events != nil {
		events = h.events
	}
	return commonmw.RequestEventMiddleware(events, func(c *gin.Context) string {
		return c.Param("cid")
	})
}

// ListResponse defines the challenge list payload.
type ListResponse struct {
	Challenges []challenge.Summary `json:"challenges"`
}
