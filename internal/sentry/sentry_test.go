package sentry

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type timeoutErr struct{}

func (timeoutErr) Error() string { return "i/o timeout" }
func (timeoutErr) Timeout() bool { return true }

func TestShouldIgnore(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, true},
		{"canceled", fmt.Errorf("poll: %w", context.Canceled), true},
		{"deadline", context.DeadlineExceeded, true},
		{"timeout", timeoutErr{}, true},
		{"refused", errors.New("dial tcp 127.0.0.1:7890: connect: connection refused"), true},
		{"eof", errors.New("unexpected EOF"), true},
		{"real", errors.New("refresh failed: 500 Internal Server Error"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shouldIgnore(tt.err); got != tt.want {
				t.Errorf("shouldIgnore(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestInit_EmptyDSN(t *testing.T) {
	if err := Init("", "dev", "development"); err != nil {
		t.Errorf("Init() with empty DSN error = %v", err)
	}
}
