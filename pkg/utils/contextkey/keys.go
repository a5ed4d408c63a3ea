package contextkey

// key is a private type to avoid context key collisions across packages.
type key string

const (
	TraceID   key = "trace_id"
	RequestID key = "request_id"
	UserID    key = "user_id"
	ClientIP  key = "client_ip"

	// ChallengeID tags log lines emitted while serving one challenge instance.
	ChallengeID key = "cid"
)
