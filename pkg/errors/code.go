package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 11000-11999: Identity & Auth errors
// 12000-12999: Challenge registry & lifecycle errors
// 13000-13999: Flag redemption errors
// 14000-14999: Sandbox errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Unauthorized        ErrorCode = 10004
	Forbidden           ErrorCode = 10005
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Database errors (10100-10199)
	DatabaseError       ErrorCode = 10100
	RecordNotFound      ErrorCode = 10101
	RecordAlreadyExists ErrorCode = 10102
	TransactionFailed   ErrorCode = 10103

	// Cache errors (10200-10299)
	CacheError ErrorCode = 10200

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	RequiredFieldEmpty ErrorCode = 10303

	// ========== Identity & Auth Errors (11000-11999) ==========

	InvalidCredentials    ErrorCode = 11000
	UserNotFound          ErrorCode = 11001
	TokenExpired          ErrorCode = 11003
	TokenInvalid          ErrorCode = 11004
	TokenGenerationFailed ErrorCode = 11005
	UserAlreadyExists     ErrorCode = 11100

	// ========== Challenge Errors (12000-12999) ==========

	// Configuration (12000-12099), fatal at load time
	DuplicateChallenge          ErrorCode = 12000
	ChallengeDefinitionNotFound ErrorCode = 12001
	InvalidChallengeID          ErrorCode = 12002

	// Lifecycle (12100-12199), isolated per instance
	ChallengeStartFailed ErrorCode = 12100
	ChallengeStopFailed  ErrorCode = 12101
	ChallengeNotFound    ErrorCode = 12102

	// ========== Redemption Errors (13000-13999) ==========

	UnknownIdentity   ErrorCode = 13000
	UnknownFlag       ErrorCode = 13001
	InactiveChallenge ErrorCode = 13002
	AlreadySolved     ErrorCode = 13003
	QuotaExceeded     ErrorCode = 13004
	FlagInUse         ErrorCode = 13100

	// ========== Sandbox Errors (14000-14999) ==========

	SandboxNotReady   ErrorCode = 14000
	SandboxTimeout    ErrorCode = 14001
	SandboxExecution  ErrorCode = 14002
	AdmissionRejected ErrorCode = 14003
)

// errorMessages maps error codes to default messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	Unauthorized:        "Unauthorized",
	Forbidden:           "Forbidden",
	TooManyRequests:     "Too many requests",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	// Database
	DatabaseError:       "Database operation failed",
	RecordNotFound:      "Record not found",
	RecordAlreadyExists: "Record already exists",
	TransactionFailed:   "Transaction failed",

	CacheError: "Cache operation failed",

	// Validation
	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	RequiredFieldEmpty: "Required field is empty",

	// Identity
	InvalidCredentials:    "Invalid username or password",
	UserNotFound:          "User not found",
	TokenExpired:          "Token has expired",
	TokenInvalid:          "Invalid token",
	TokenGenerationFailed: "Failed to generate token",
	UserAlreadyExists:     "User already exists",

	// Challenge
	DuplicateChallenge:          "Challenge definition already registered",
	ChallengeDefinitionNotFound: "Challenge definition not found",
	InvalidChallengeID:          "Invalid challenge id",
	ChallengeStartFailed:        "Challenge failed to start",
	ChallengeStopFailed:         "Challenge failed to stop",
	ChallengeNotFound:           "Challenge not found",

	// Redemption
	UnknownIdentity:   "Unknown user.",
	UnknownFlag:       "Unknown Flag ¯\\_(ツ)_/¯",
	InactiveChallenge: "Challenge is not active.",
	AlreadySolved:     "Challenge already solved.",
	QuotaExceeded:     "Flag already used too often.",
	FlagInUse:         "Flag has submissions and cannot be deleted",

	// Sandbox
	SandboxNotReady:   "Docker service not started.",
	SandboxTimeout:    "Process timed out.",
	SandboxExecution:  "Execution error",
	AdmissionRejected: "Please wait for your previous request to complete.",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// IsRedemption reports whether the code belongs to the redemption rejection set.
func (c ErrorCode) IsRedemption() bool {
	return c >= 13000 && c < 13100
}

// IsSandbox reports whether the code belongs to the sandbox range.
func (c ErrorCode) IsSandbox() bool {
	return c >= 14000 && c < 15000
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == InvalidCredentials, c == Unauthorized, c == TokenExpired, c == TokenInvalid:
		return 401
	case c == Forbidden, c == UnknownIdentity:
		return 403
	case c == NotFound, c == UserNotFound, c == ChallengeNotFound, c == UnknownFlag, c == RecordNotFound:
		return 404
	case c == AlreadySolved, c == UserAlreadyExists, c == RecordAlreadyExists, c == FlagInUse:
		return 409
	case c == InactiveChallenge:
		return 403
	case c == QuotaExceeded, c == TooManyRequests, c == AdmissionRejected:
		return 429
	case c == ServiceUnavailable, c == SandboxNotReady:
		return 503
	case c == SandboxTimeout, c == Timeout:
		return 504
	case c >= 10300 && c < 10400:
		return 400
	case c == InvalidParams:
		return 400
	default:
		return 500
	}
}
