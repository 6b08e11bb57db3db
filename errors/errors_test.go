package errors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"testing"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(999), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			result := test.class.String()
			if result != test.expected {
				t.Errorf("expected %s, got %s", test.expected, result)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection timeout", ErrConnectionTimeout, true},
		{"connection lost", ErrConnectionLost, true},
		{"eof", io.EOF, true},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"context deadline exceeded", context.DeadlineExceeded, true},
		{"context canceled", context.Canceled, true},
		{"dial error", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("boom")}, true},
		{"refused in message", fmt.Errorf("connect: connection refused"), true},
		{"invalid data", ErrInvalidData, false},
		{"invalid config", ErrInvalidConfig, false},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: fmt.Errorf("test")}, true},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("test")}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := IsTransient(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"missing config", ErrMissingConfig, true},
		{"config not found", ErrConfigNotFound, true},
		{"connection timeout", ErrConnectionTimeout, false},
		{"invalid data", ErrInvalidData, false},
		{"panic in message", fmt.Errorf("panic: runtime error"), true},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("test")}, true},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: fmt.Errorf("test")}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := IsFatal(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestIsInvalid(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"invalid data", ErrInvalidData, true},
		{"parsing failed", ErrParsingFailed, true},
		{"invalid config", ErrInvalidConfig, true},
		{"connection timeout", ErrConnectionTimeout, false},
		{"classified invalid", &ClassifiedError{Class: ErrorInvalid, Err: fmt.Errorf("test")}, true},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: fmt.Errorf("test")}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := IsInvalid(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorClass
	}{
		{"nil error", nil, ErrorTransient},
		{"connection timeout", ErrConnectionTimeout, ErrorTransient},
		{"missing config", ErrMissingConfig, ErrorFatal},
		{"invalid config", ErrInvalidConfig, ErrorInvalid},
		{"invalid data", ErrInvalidData, ErrorInvalid},
		{"unknown error", fmt.Errorf("unknown error"), ErrorTransient},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("test")}, ErrorFatal},
		{"classified invalid wins over message", WrapInvalid(fmt.Errorf("connection string malformed"), "c", "m", "a"), ErrorInvalid},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := Classify(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "Session", "connect", "dial") != nil {
		t.Fatal("expected nil for nil error")
	}

	err := Wrap(ErrConnectionLost, "Session", "read", "read line")
	want := "Session.read: read line failed: connection lost"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
	if !errors.Is(err, ErrConnectionLost) {
		t.Error("expected wrapped error to match sentinel")
	}
}

func TestWrapClassified(t *testing.T) {
	tests := []struct {
		name  string
		wrap  func(error, string, string, string) error
		class ErrorClass
	}{
		{"transient", WrapTransient, ErrorTransient},
		{"invalid", WrapInvalid, ErrorInvalid},
		{"fatal", WrapFatal, ErrorFatal},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if test.wrap(nil, "c", "m", "a") != nil {
				t.Fatal("expected nil for nil error")
			}

			err := test.wrap(ErrInvalidData, "Forwarder", "Send", "encode payload")

			var ce *ClassifiedError
			if !errors.As(err, &ce) {
				t.Fatalf("expected ClassifiedError, got %T", err)
			}
			if ce.Class != test.class {
				t.Errorf("expected class %v, got %v", test.class, ce.Class)
			}
			if ce.Component != "Forwarder" || ce.Operation != "Send" {
				t.Errorf("unexpected component/operation: %s/%s", ce.Component, ce.Operation)
			}
			if !strings.HasPrefix(err.Error(), "Forwarder.Send: encode payload failed") {
				t.Errorf("unexpected message: %s", err.Error())
			}
			if !errors.Is(err, ErrInvalidData) {
				t.Error("expected classified error to unwrap to sentinel")
			}
		})
	}
}

func TestClassificationSurvivesWrap(t *testing.T) {
	inner := WrapFatal(errors.New("boom"), "Supervisor", "Run", "session")
	outer := Wrap(inner, "main", "run", "supervise")

	if !IsFatal(outer) {
		t.Error("expected fatal classification to survive fmt wrapping")
	}
	if IsTransient(outer) {
		t.Error("fatal error must not be reported as transient")
	}
}
