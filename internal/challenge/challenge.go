package challenge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"
)

// InactiveFlag is handed out instead of a real flag while a challenge is
// outside its activity window.
const InactiveFlag = "__flag__{challenge inactive}"

// StaticFlagMaxSubmissions is the quota of flags created at instantiation.
const StaticFlagMaxSubmissions = 999999

// Definition is implemented by every challenge class. Embedding Base
// provides defaults for everything except Title.
type Definition interface {
	ID() string
	Title() string
	// Description returns HTML shown to user.
	Description(ctx context.Context, user string, solved bool) (string, error)
	Visible(ctx context.Context, user string) (bool, error)

	// Start is called once at server start regardless of the activity window.
	Start(ctx context.Context) error
	// Stop is called once at shutdown. Flags stop working at the end of the
	// window, the instance itself keeps running until Stop.
	Stop(ctx context.Context) error

	HandleGet(ctx context.Context, user string, req *Request) (*Response, error)
	HandlePost(ctx context.Context, user string, req *Request) (*Response, error)
}

// StaticFlag is a flag with a fixed token registered at instantiation.
type StaticFlag struct {
	CID   string
	Token string
}

// StaticFlagger is implemented by definitions that ship fixed flags.
type StaticFlagger interface {
	StaticFlags() []StaticFlag
}

// FixedPoints is implemented by definitions with hardcoded points.
type FixedPoints interface {
	FixedPoints() (points int, ok bool)
}

// Tagger is implemented by definitions that carry category tags.
type Tagger interface {
	Tags() []string
}

// FlagIssuer creates redeemable flags.
type FlagIssuer interface {
	// Issue upserts a flag without writing an event. An empty token gets a
	// random one.
	Issue(ctx context.Context, cid string, maxSubmissions int, token string) (string, error)
	// IssueAndLog issues a flag and records its creation.
	IssueAndLog(ctx context.Context, ip, uid, cid string, maxSubmissions int, token string) (string, error)
}

// EventLogger records audit events on behalf of a challenge.
type EventLogger interface {
	Log(ctx context.Context, ip, typ, data, cid, uid string) int64
}

// DataStore is opaque per-challenge key/value persistence.
type DataStore interface {
	// GetData decodes the value stored under key into out and reports
	// whether it existed.
	GetData(ctx context.Context, cid, key string, out interface{}) (bool, error)
	SetData(ctx context.Context, cid, key string, value interface{}) error
}

// Runtime carries the services injected into every instance.
type Runtime struct {
	Flags   FlagIssuer
	Events  EventLogger
	Data    DataStore
	Windows WindowSource
	Now     func() time.Time
}

func (rt Runtime) now() time.Time {
	if rt.Now != nil {
		return rt.Now()
	}
	return time.Now()
}

// Request is the framework-neutral view of an inbound challenge request.
type Request struct {
	Method string
	// Path is the part of the URL after the challenge id, "" or "/...".
	Path     string
	Query    url.Values
	Header   http.Header
	Body     []byte
	RemoteIP string
}

// BindJSON decodes the request body into v.
func (r *Request) BindJSON(v interface{}) error {
	return json.Unmarshal(r.Body, v)
}

// Response is returned by challenge handlers.
type Response struct {
	Status      int
	ContentType string
	Body        []byte
}

// Message builds a JSON {"message": msg} response.
func Message(status int, msg string) *Response {
	return JSON(status, map[string]string{"message": msg})
}

// JSON builds a JSON response. Values that cannot be encoded yield a 500.
func JSON(status int, v interface{}) *Response {
	body, err := json.Marshal(v)
	if err != nil {
		return &Response{Status: http.StatusInternalServerError, ContentType: "text/plain; charset=utf-8", Body: []byte(err.Error())}
	}
	return &Response{Status: status, ContentType: "application/json; charset=utf-8", Body: body}
}

// Text builds a plain text response.
func Text(status int, body string) *Response {
	return &Response{Status: status, ContentType: "text/plain; charset=utf-8", Body: []byte(body)}
}

// NotFound is the default handler response.
func NotFound() *Response {
	return Text(http.StatusNotFound, http.StatusText(http.StatusNotFound))
}
