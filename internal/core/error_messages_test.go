package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{
			name:     "nil error returns empty",
			err:      nil,
			wantCode: "",
		},
		{
			name:     "feed status error",
			err:      &FetchError{URL: "http://feed", StatusCode: 503, Err: errors.New("service unavailable")},
			wantCode: "FEED001",
		},
		{
			name:     "feed transport error",
			err:      &FetchError{URL: "http://feed", Err: errors.New("dial tcp: no such host")},
			wantCode: "FEED002",
		},
		{
			name:     "feed decode error",
			err:      &FetchError{URL: "http://feed", StatusCode: 200, Err: fmt.Errorf("%w: unexpected EOF", ErrMalformedFeed)},
			wantCode: "FEED003",
		},
		{
			name:     "mapping error",
			err:      &MappingError{Table: "CVE", Column: "cve_id", Err: ErrMissingValue},
			wantCode: "MAP001",
		},
		{
			name:     "connection refused inside persistence error",
			err:      &PersistenceError{Backend: "postgres", Op: "connect", Err: errors.New("dial tcp 127.0.0.1:5432: connection refused")},
			wantCode: "DB001",
		},
		{
			name:     "generic persistence error",
			err:      &PersistenceError{Backend: "sqlite", Op: "upsert", Key: "CVE-1", Err: errors.New("disk I/O error")},
			wantCode: "DB005",
		},
		{
			name:     "not found",
			err:      fmt.Errorf("get CVE-1: %w", ErrNotFound),
			wantCode: "DB006",
		},
		{
			name:     "too many syncs",
			err:      ErrTooManySyncs,
			wantCode: "SYNC001",
		},
		{
			name:     "cancelled fetch maps to sync cancelled",
			err:      &FetchError{URL: "http://feed", Err: context.Canceled},
			wantCode: "SYNC002",
		},
		{
			name:     "deadline",
			err:      fmt.Errorf("sync: %w", context.DeadlineExceeded),
			wantCode: "SYNC003",
		},
		{
			name:     "persistence disabled",
			err:      ErrPersistenceDisabled,
			wantCode: "SYNC004",
		},
		{
			name:     "unknown table",
			err:      fmt.Errorf("%w: nope", ErrUnknownTable),
			wantCode: "TBL001",
		},
		{
			name:     "rate limit",
			err:      errors.New("Rate Limit exceeded"),
			wantCode: "RATE001",
		},
		{
			name:     "unknown error returns default",
			err:      errors.New("some random internal error"),
			wantCode: "ERR000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	result := FormatUserError(ErrTooManySyncs)

	expected := "Other syncs are already running (Code: SYNC001). Please wait a moment and try again"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error is not user facing", nil, false},
		{"known error is user facing", ErrNotFound, true},
		{"unknown error is not user facing", errors.New("random internal error xyz"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUserFacing(tt.err); got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewUserError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		if got := NewUserError(nil); got != nil {
			t.Errorf("NewUserError(nil) = %v, want nil", got)
		}
	})

	t.Run("wraps technical error with user message", func(t *testing.T) {
		techErr := &MappingError{Table: "CVE", Column: "cve_id", Err: ErrMissingValue}
		userErr := NewUserError(techErr)

		if userErr.Error() != "A feed record is missing a required value" {
			t.Errorf("Error() = %q, want user message", userErr.Error())
		}
		if !errors.Is(userErr, ErrMissingValue) {
			t.Error("Unwrap() should reach the original error")
		}
	})
}
