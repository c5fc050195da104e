package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestAppError_Message(t *testing.T) {
	err := NewInvalidInputError("stream id must be an integer")
	want := "INVALID_INPUT: stream id must be an integer"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestWrapError_KeepsCauseInChain(t *testing.T) {
	cause := errors.New("redis: connection refused")
	err := WrapError(cause, ErrCodeInternal, "presence mirror unavailable", http.StatusInternalServerError)

	if !errors.Is(err, cause) {
		t.Fatal("errors.Is should match the wrapped cause")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("Error() should mention the cause, got %q", err.Error())
	}
}

func TestWithContext(t *testing.T) {
	err := NewNotFoundError("stream").WithContext("stream_id", int64(42))
	if err.Context["stream_id"] != int64(42) {
		t.Fatalf("Context[stream_id] = %v, want 42", err.Context["stream_id"])
	}
}

func TestConstructors_StatusCodes(t *testing.T) {
	cases := []struct {
		err    *AppError
		code   ErrorCode
		status int
	}{
		{NewInvalidInputError("bad"), ErrCodeInvalidInput, http.StatusBadRequest},
		{NewNotFoundError("stream"), ErrCodeNotFound, http.StatusNotFound},
		{NewUnauthorizedError("no token"), ErrCodeUnauthorized, http.StatusUnauthorized},
		{NewInternalError("boom"), ErrCodeInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if tc.err.Code != tc.code {
			t.Fatalf("Code = %v, want %v", tc.err.Code, tc.code)
		}
		if tc.err.HTTPStatus != tc.status {
			t.Fatalf("HTTPStatus = %d, want %d", tc.err.HTTPStatus, tc.status)
		}
	}
}

func TestGetAppError(t *testing.T) {
	appErr := NewNotFoundError("stream")

	if got := GetAppError(appErr); got != appErr {
		t.Fatalf("GetAppError() = %v, want the error itself", got)
	}

	wrapped := fmt.Errorf("handling request: %w", appErr)
	if got := GetAppError(wrapped); got != appErr {
		t.Fatal("GetAppError() should unwrap fmt-wrapped errors")
	}

	if got := GetAppError(errors.New("plain")); got != nil {
		t.Fatalf("GetAppError() = %v for a plain error, want nil", got)
	}
}
