package client

import (
	"errors"
	"testing"
)

func TestUpstreamError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *UpstreamError
		expected string
	}{
		{
			name: "error with wrapped error",
			err: &UpstreamError{
				StatusCode: 0,
				ErrorClass: ErrorClassNetwork,
				Message:    "request failed",
				Err:        errors.New("connection refused"),
			},
			expected: "upstream network error (status 0): request failed: connection refused",
		},
		{
			name: "error without wrapped error",
			err: &UpstreamError{
				StatusCode: 404,
				ErrorClass: ErrorClassClient,
				Message:    "404 Not Found",
			},
			expected: "upstream client error (status 404): 404 Not Found",
		},
		{
			name: "server error",
			err: &UpstreamError{
				StatusCode: 503,
				ErrorClass: ErrorClassServer,
				Message:    "503 Service Unavailable",
			},
			expected: "upstream server error (status 503): 503 Service Unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestUpstreamError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &UpstreamError{
		StatusCode: 200,
		ErrorClass: ErrorClassDecode,
		Message:    "decode response body",
		Err:        cause,
	}

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}

	var target *UpstreamError
	if !errors.As(error(err), &target) {
		t.Fatal("errors.As should match *UpstreamError")
	}
	if target.ErrorClass != ErrorClassDecode {
		t.Errorf("ErrorClass = %q, want %q", target.ErrorClass, ErrorClassDecode)
	}
}

func TestUpstreamError_IsNotFound(t *testing.T) {
	if !(&UpstreamError{StatusCode: 404}).IsNotFound() {
		t.Error("404 should be reported as not found")
	}
	if (&UpstreamError{StatusCode: 500}).IsNotFound() {
		t.Error("500 should not be reported as not found")
	}
}
