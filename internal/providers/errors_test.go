package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestStatusError_Transient(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusNotFound, false},
		{http.StatusRequestTimeout, true},
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusServiceUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := &StatusError{Provider: "test", StatusCode: tt.status}
			if got := err.Transient(); got != tt.want {
				t.Errorf("Transient() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatusError_TruncatesBody(t *testing.T) {
	long := make([]byte, 2000)
	for i := range long {
		long[i] = 'x'
	}
	err := &StatusError{Provider: "test", StatusCode: 500, Body: string(long)}
	if got := len(err.Error()); got > 600 {
		t.Errorf("Error() length = %d, want truncated", got)
	}
}

func TestTransportError(t *testing.T) {
	err := &TransportError{Provider: "test", Err: fmt.Errorf("dial: %w", context.DeadlineExceeded)}
	if !err.Timeout() {
		t.Error("Timeout() = false for deadline exceeded")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("errors.Is should see wrapped deadline")
	}

	refused := &TransportError{Provider: "test", Err: errors.New("connection refused")}
	if refused.Timeout() {
		t.Error("Timeout() = true for refused connection")
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := parseRetryAfter("3"); got != 3*time.Second {
		t.Errorf("parseRetryAfter(3) = %v", got)
	}
	if got := parseRetryAfter(""); got != 0 {
		t.Errorf("parseRetryAfter(empty) = %v", got)
	}
	if got := parseRetryAfter("soon"); got != 0 {
		t.Errorf("parseRetryAfter(soon) = %v", got)
	}
	future := time.Now().Add(time.Minute).UTC().Format(http.TimeFormat)
	if got := parseRetryAfter(future); got <= 0 || got > time.Minute {
		t.Errorf("parseRetryAfter(date) = %v", got)
	}
}
