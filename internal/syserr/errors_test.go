package syserr

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
)

func TestError_Format(t *testing.T) {
	err := IO("nvs.commit", "failed to commit namespace wifi_records", io.ErrShortWrite)

	msg := err.Error()
	if !strings.HasPrefix(msg, "nvs.commit: IO Error: failed to commit") {
		t.Errorf("Error() = %q, want op and type prefix", msg)
	}
	if !strings.Contains(msg, "caused by: short write") {
		t.Errorf("Error() = %q, want underlying cause", msg)
	}

	if !errors.Is(err, io.ErrShortWrite) {
		t.Error("Expected errors.Is to find the wrapped cause")
	}
}

func TestError_NoOp(t *testing.T) {
	err := New(ErrTypeTimeout, "", "connect timed out")
	if err.Error() != "Timeout: connect timed out" {
		t.Errorf("Error() = %q, want %q", err.Error(), "Timeout: connect timed out")
	}
}

func TestPredicates_ThroughWrapping(t *testing.T) {
	base := NotFound("wifi.delete", "ssid %q not found", "home")
	wrapped := fmt.Errorf("cli: %w", base)

	if !IsNotFound(wrapped) {
		t.Error("Expected IsNotFound to see through fmt.Errorf wrapping")
	}
	if IsTimeout(wrapped) {
		t.Error("Did not expect IsTimeout to match a NotFound error")
	}

	got, ok := TypeOf(wrapped)
	if !ok || got != ErrTypeNotFound {
		t.Errorf("TypeOf() = %v, %v, want %v, true", got, ok, ErrTypeNotFound)
	}

	if _, ok := TypeOf(errors.New("plain")); ok {
		t.Error("TypeOf() on a plain error should report false")
	}
}

func TestShortMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "OK"},
		{"plain", errors.New("boom"), "FAIL"},
		{"invalid argument", InvalidArgument("op", "bad"), "INVALID_ARG"},
		{"invalid state", InvalidState("op", "not started"), "INVALID_STATE"},
		{"not found", NotFound("op", "gone"), "NOT_FOUND"},
		{"no memory", NoMemory("op", "full"), "NO_MEM"},
		{"timeout", Timeout("op", "slow"), "TIMEOUT"},
		{"io", IO("op", "disk", nil), "IO_ERROR"},
		{"scan in progress", New(ErrTypeScanInProgress, "op", "busy"), "SCAN_IN_PROGRESS"},
		{"invalid size", New(ErrTypeInvalidSize, "op", "short"), "INVALID_SIZE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShortMessage(tt.err); got != tt.want {
				t.Errorf("ShortMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorType_String(t *testing.T) {
	if got := ErrorType(99).String(); got != "ErrorType(99)" {
		t.Errorf("String() = %q, want %q", got, "ErrorType(99)")
	}
	if got := ErrTypeInvalidSize.String(); got != "Invalid Size" {
		t.Errorf("String() = %q, want %q", got, "Invalid Size")
	}
}
