package resilience

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
)

func TestIsTransient_StatusCodes(t *testing.T) {
	tests := []struct {
		code int
		want bool
	}{
		{429, true},
		{500, true},
		{503, true},
		{529, true},
		{400, false},
		{401, false},
		{404, false},
	}
	for _, tt := range tests {
		err := NewStatusError("anthropic", tt.code, errors.New("boom"))
		if got := IsTransient(err); got != tt.want {
			t.Errorf("status %d: IsTransient = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestIsTransient_WrappedStatusError(t *testing.T) {
	inner := NewStatusError("openai", 503, errors.New("unavailable"))
	wrapped := fmt.Errorf("invoke: %w", inner)
	if !IsTransient(wrapped) {
		t.Error("expected wrapped StatusError to be transient")
	}
	if StatusCode(wrapped) != 503 {
		t.Errorf("expected status 503, got %d", StatusCode(wrapped))
	}
}

func TestIsTransient_Nil(t *testing.T) {
	if IsTransient(nil) {
		t.Error("nil error should not be transient")
	}
}

func TestIsTransient_DeadlineIsNotTransient(t *testing.T) {
	err := fmt.Errorf("call: %w", context.DeadlineExceeded)
	if IsTransient(err) {
		t.Error("deadline expiry must not be retried")
	}
}

func TestIsTransient_ConnectionReset(t *testing.T) {
	err := fmt.Errorf("write tcp: %w", syscall.ECONNRESET)
	if !IsTransient(err) {
		t.Error("ECONNRESET should be transient")
	}
}

func TestIsTransient_MessagePattern(t *testing.T) {
	if !IsTransient(errors.New("Overloaded: try again later")) {
		t.Error("overloaded message should be transient")
	}
	if IsTransient(errors.New("invalid request: missing prompt")) {
		t.Error("plain error should not be transient")
	}
}

func TestStatusCode_Absent(t *testing.T) {
	if StatusCode(errors.New("x")) != 0 {
		t.Error("expected 0 for error without status")
	}
}
