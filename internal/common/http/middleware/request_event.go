package middleware

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"ctfoj/internal/event"

	"github.com/gin-gonic/gin"
)

const maxLoggedBody = event.MaxDataLength

// EventLogger writes audit events.
type EventLogger interface {
	Log(ctx context.Context, ip, typ, data, cid, uid string) int64
}

type eventAmender interface {
	Amend(ctx context.Context, id int64, data string)
}

// RequestEventMiddleware records a handle-request event before the handler
// runs and amends it with the request body and the response status once it
// returns. cid picks the challenge a request belongs to; requests for which
// it returns "" are not recorded.
func RequestEventMiddleware(events EventLogger, cid func(c *gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if events == nil {
			c.Next()
			return
		}
		target := cid(c)
		if target == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		request := c.Request.Method + " " + c.Request.URL.RequestURI()
		id := events.Log(ctx, c.ClientIP(), event.TypeHandleRequest, request, target, CurrentUser(c))

		body := peekBody(c.Request)
		c.Next()

		amender, ok := events.(eventAmender)
		if !ok {
			return
		}
		if body != "" {
			request += " " + body
		}
		status := c.Writer.Status()
		outcome := fmt.Sprintf("%d %s", status, http.StatusText(status))
		if len(c.Errors) > 0 {
			outcome = c.Errors.Last().Error()
		}
		amender.Amend(ctx, id, strings.TrimRight(request, " ")+" -> "+outcome)
	}
}

// peekBody returns the start of the request body and leaves the body
// readable for the handler.
func peekBody(req *http.Request) string {
	if req.Body == nil || req.Body == http.NoBody {
		return ""
	}
	head := make([]byte, maxLoggedBody)
	n, _ := io.ReadFull(req.Body, head)
	head = head[:n]
	req.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(head), req.Body), req.Body}
	return string(head)
}
