package event

import "time"

// Audit event types.
const (
	TypeFlagCreate      = "flag-create"
	TypeFlagInactive    = "flag-inactive"
	TypeFlagErrUnknown  = "flag-err-unknown"
	TypeFlagErrNoUser   = "flag-err-unknown-user"
	TypeFlagErrInactive = "flag-err-inactive"
	TypeFlagErrSolved   = "flag-err-solved"
	TypeFlagErrUsed     = "flag-err-used"
	TypeFlagSubmit      = "flag-submit"
	TypeHandleRequest   = "handle-request"
	TypeGetChallenges   = "get-challenges"
	TypeChallengeFail   = "challenge-fail"
	TypeSandboxRun      = "sandbox-run"
	TypeLoginSuccess    = "login-success"
	TypeLoginFail       = "login-fail"
)

// MaxDataLength bounds the stored event payload, in characters.
const MaxDataLength = 1024

// Event is one row of the audit log. Empty CID and UID are stored as NULL.
type Event struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	IP        string    `json:"ip"`
	Type      string    `json:"type"`
	Data      string    `json:"data,omitempty"`
	CID       string    `json:"cid,omitempty"`
	UID       string    `json:"uid,omitempty"`
}

// Truncate cuts data to MaxDataLength characters without splitting a rune.
func Truncate(data string) string {
	n := 0
	for i := range data {
		if n == MaxDataLength {
			return data[:i]
		}
		n++
	}
	return data
}
