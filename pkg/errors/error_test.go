package errors_test

import (
	"errors"
	"fmt"
	"testing"

	. "ctfoj/pkg/errors"
)

func TestErrorCode_Message(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want string
	}{
		{Success, "Success"},
		{UnknownIdentity, "Unknown user."},
		{InactiveChallenge, "Challenge is not active."},
		{AlreadySolved, "Challenge already solved."},
		{QuotaExceeded, "Flag already used too often."},
		{SandboxTimeout, "Process timed out."},
		{ErrorCode(99999), "Unknown error"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.code.Message(); got != tt.want {
				t.Errorf("Message() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code       ErrorCode
		wantStatus int
	}{
		{Success, 200},
		{ValidationFailed, 400},
		{TokenInvalid, 401},
		{UnknownIdentity, 403},
		{InactiveChallenge, 403},
		{UnknownFlag, 404},
		{AlreadySolved, 409},
		{FlagInUse, 409},
		{QuotaExceeded, 429},
		{AdmissionRejected, 429},
		{SandboxNotReady, 503},
		{SandboxTimeout, 504},
		{SandboxExecution, 500},
	}

	for _, tt := range tests {
		t.Run(tt.code.Message(), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.wantStatus {
				t.Errorf("HTTPStatus() = %v, want %v", got, tt.wantStatus)
			}
		})
	}
}

func TestErrorCode_Ranges(t *testing.T) {
	for _, code := range []ErrorCode{UnknownIdentity, UnknownFlag, InactiveChallenge, AlreadySolved, QuotaExceeded} {
		if !code.IsRedemption() || code.IsSandbox() {
			t.Errorf("%v should be a redemption rejection", code)
		}
	}
	if FlagInUse.IsRedemption() {
		t.Error("FlagInUse is an administrative error, not a redemption rejection")
	}
	for _, code := range []ErrorCode{SandboxNotReady, SandboxTimeout, SandboxExecution, AdmissionRejected} {
		if !code.IsSandbox() || code.IsRedemption() {
			t.Errorf("%v should be a sandbox error", code)
		}
	}
}

func TestNew(t *testing.T) {
	err := New(UnknownFlag)

	if err.Code != UnknownFlag {
		t.Errorf("Code = %v, want %v", err.Code, UnknownFlag)
	}
	if err.Error() != UnknownFlag.Message() {
		t.Errorf("Error() = %v, want %v", err.Error(), UnknownFlag.Message())
	}
	if err.Stack == "" {
		t.Error("Stack should be captured")
	}
}

func TestNewf(t *testing.T) {
	err := Newf(ChallengeDefinitionNotFound, "Challenge definition not found: %s", "Missing")

	want := "Challenge definition not found: Missing"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}
}

func TestWrap(t *testing.T) {
	originalErr := errors.New("connection refused")
	wrappedErr := Wrap(originalErr, DatabaseError)

	if wrappedErr.Code != DatabaseError {
		t.Errorf("Code = %v, want %v", wrappedErr.Code, DatabaseError)
	}
	if wrappedErr.Unwrap() != originalErr {
		t.Error("Unwrap() should return original error")
	}
	if Wrap(nil, DatabaseError) != nil {
		t.Error("Wrap(nil) should be nil")
	}

	coded := Newf(QuotaExceeded, "custom")
	rewrapped := Wrap(coded, TransactionFailed)
	if rewrapped != coded || rewrapped.Code != TransactionFailed || rewrapped.Error() != "custom" {
		t.Error("Wrap should recode a coded error in place")
	}
}

func TestWrapf(t *testing.T) {
	originalErr := errors.New("deadlock")
	err := Wrapf(originalErr, TransactionFailed, "redeem %s failed", "flag{x}")

	if err.Error() != "redeem flag{x} failed" {
		t.Errorf("Error() = %v", err.Error())
	}
	if !errors.Is(err, originalErr) {
		t.Error("errors.Is should reach the wrapped error")
	}
}

func TestError_WithDetail(t *testing.T) {
	err := New(SandboxExecution).
		WithDetail("exit_code", 2).
		WithDetail("stderr", "boom")

	if err.Details["exit_code"] != 2 {
		t.Error("exit_code detail not set correctly")
	}
	if err.DetailString("stderr") != "boom" {
		t.Error("stderr detail not set correctly")
	}
	if err.DetailString("exit_code") != "" || err.DetailString("absent") != "" {
		t.Error("DetailString should ignore non-string and absent details")
	}
}

func TestError_WithMessage(t *testing.T) {
	customMsg := "custom error message"
	err := New(InternalServerError).WithMessage(customMsg)

	if err.Error() != customMsg {
		t.Errorf("Error() = %v, want %v", err.Error(), customMsg)
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{
			name: "nil error",
			err:  nil,
			want: Success,
		},
		{
			name: "custom error",
			err:  New(AlreadySolved),
			want: AlreadySolved,
		},
		{
			name: "wrapped custom error",
			err:  fmt.Errorf("redeem: %w", New(QuotaExceeded)),
			want: QuotaExceeded,
		},
		{
			name: "standard error",
			err:  errors.New("standard error"),
			want: InternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.want {
				t.Errorf("GetCode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIs(t *testing.T) {
	err := New(UnknownIdentity)

	if !Is(err, UnknownIdentity) {
		t.Error("Is() should return true for matching code")
	}
	if Is(err, UnknownFlag) {
		t.Error("Is() should return false for non-matching code")
	}
	if Is(nil, UnknownIdentity) {
		t.Error("Is() should return false for nil error")
	}
	if !IsRedemptionError(err) || IsSandboxError(err) {
		t.Error("UnknownIdentity should classify as a redemption error")
	}
	if !IsSandboxError(fmt.Errorf("run: %w", New(SandboxTimeout))) {
		t.Error("wrapped sandbox errors should classify as sandbox errors")
	}
}

func TestGetError(t *testing.T) {
	if GetError(nil) != nil {
		t.Error("GetError(nil) should be nil")
	}
	foreign := errors.New("boom")
	if got := GetError(foreign); got.Code != InternalServerError || got.Unwrap() != foreign {
		t.Error("foreign errors should be wrapped as internal errors")
	}
}

func TestCommonErrorConstructors(t *testing.T) {
	t.Run("BadRequest", func(t *testing.T) {
		err := BadRequest("invalid input")
		if err.Code != InvalidParams {
			t.Error("BadRequest should use InvalidParams code")
		}
	})

	t.Run("NotFoundError", func(t *testing.T) {
		err := NotFoundError("flag")
		if err.Code != NotFound || err.Error() != "flag not found" {
			t.Error("NotFoundError should use NotFound code")
		}
	})

	t.Run("InternalError", func(t *testing.T) {
		originalErr := errors.New("db error")
		err := InternalError(originalErr)
		if err.Code != InternalServerError {
			t.Error("InternalError should use InternalServerError code")
		}
		if InternalError(nil).Code != InternalServerError {
			t.Error("InternalError(nil) should still carry a code")
		}
	})

	t.Run("ValidationError", func(t *testing.T) {
		err := ValidationError("uid", "invalid")
		if err.Code != ValidationFailed {
			t.Error("ValidationError should use ValidationFailed code")
		}
		if err.Details["field"] != "uid" {
			t.Error("Field detail not set")
		}
	})
}
