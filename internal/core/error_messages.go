package core

// error_messages.go maps pipeline errors to user-facing messages with codes
// for support reference.
//
// # Error Codes Reference
//
// Feed errors (FEED001-FEED099):
//
//	FEED001 - Feed returned an error status
//	FEED002 - Feed unreachable (transport failure)
//	FEED003 - Feed response could not be decoded
//
// Mapping errors (MAP001-MAP099):
//
//	MAP001 - A feed record is missing a required value
//
// Cache errors (DB001-DB099):
//
//	DB001 - Connection refused
//	DB002 - Connection reset
//	DB003 - Timeout
//	DB004 - Deadlock
//	DB005 - Cache write or read failed
//	DB006 - Entry not found
//
// Sync errors (SYNC001-SYNC099):
//
//	SYNC001 - Too many syncs running
//	SYNC002 - Sync cancelled
//	SYNC003 - Sync timed out
//	SYNC004 - Persistence requested but no cache is configured
//
// Other:
//
//	TBL001  - Unknown table
//	RATE001 - Rate limited
//	ERR000  - Unknown error (check logs for the technical error)
//
// Rules are checked in order and the first match wins. Typed errors are
// matched with errors.Is / errors.As; driver errors with no Go type we can
// depend on are matched case-insensitively on their text.

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorRule matches an error and names its user message.
type errorRule struct {
	match func(err error, lower string) bool
	msg   UserMessage
}

func is(target error) func(error, string) bool {
	return func(err error, _ string) bool { return errors.Is(err, target) }
}

func contains(pattern string) func(error, string) bool {
	return func(_ error, lower string) bool { return strings.Contains(lower, pattern) }
}

func fetchStatus(err error, _ string) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.StatusCode != 0
}

var errorRules = []errorRule{
	// Sync lifecycle. Checked first: a cancelled run usually also surfaces
	// as a transport or driver error further down the chain.
	{is(context.Canceled), UserMessage{
		Message: "Sync was cancelled",
		Action:  "Start a new sync when ready",
		Code:    "SYNC002",
	}},
	{is(context.DeadlineExceeded), UserMessage{
		Message: "Sync timed out",
		Action:  "Try again later or narrow the table selection",
		Code:    "SYNC003",
	}},
	{is(ErrTooManySyncs), UserMessage{
		Message: "Other syncs are already running",
		Action:  "Please wait a moment and try again",
		Code:    "SYNC001",
	}},
	{is(ErrPersistenceDisabled), UserMessage{
		Message: "No cache is configured",
		Action:  "Set CACHE_BACKEND or run the sync without persistence",
		Code:    "SYNC004",
	}},
	{is(ErrUnknownTable), UserMessage{
		Message: "Unknown table",
		Action:  "List the available tables and check the name",
		Code:    "TBL001",
	}},
	{is(ErrNotFound), UserMessage{
		Message: "Entry not found in the cache",
		Action:  "Run a sync with persistence first",
		Code:    "DB006",
	}},

	// Feed
	{is(ErrMalformedFeed), UserMessage{
		Message: "The vulnerability feed response could not be read",
		Action:  "Check NVD_API_URL points at a CVE API endpoint",
		Code:    "FEED003",
	}},
	{fetchStatus, UserMessage{
		Message: "The vulnerability feed returned an error",
		Action:  "Check the API key and try again later",
		Code:    "FEED001",
	}},
	{func(err error, _ string) bool { return IsFetchError(err) }, UserMessage{
		Message: "Unable to reach the vulnerability feed",
		Action:  "Check network access to the feed and try again",
		Code:    "FEED002",
	}},

	// Mapping
	{func(err error, _ string) bool { return IsMappingError(err) }, UserMessage{
		Message: "A feed record is missing a required value",
		Action:  "The feed data is incomplete; try again later",
		Code:    "MAP001",
	}},

	// Cache connectivity
	{contains("connection refused"), UserMessage{
		Message: "Unable to connect to the cache database",
		Action:  "Please try again in a few moments",
		Code:    "DB001",
	}},
	{contains("connection reset"), UserMessage{
		Message: "Cache connection was interrupted",
		Action:  "Please try again",
		Code:    "DB002",
	}},
	{contains("timeout"), UserMessage{
		Message: "Operation timed out",
		Action:  "Please try again later",
		Code:    "DB003",
	}},
	{contains("deadlock"), UserMessage{
		Message: "Cache was busy with conflicting operations",
		Action:  "Please try again",
		Code:    "DB004",
	}},
	{func(err error, _ string) bool { return IsPersistenceError(err) }, UserMessage{
		Message: "Cache operation failed",
		Action:  "Check the cache database and try again",
		Code:    "DB005",
	}},

	{contains("rate limit"), UserMessage{
		Message: "Too many requests",
		Action:  "Please wait a moment before trying again",
		Code:    "RATE001",
	}},
}

// defaultMessage is returned when no rule matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// If no rule matches, a generic fallback with code ERR000 is returned.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	lower := strings.ToLower(err.Error())
	for _, r := range errorRules {
		if r.match(err, lower) {
			return r.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known rule rather than the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user message.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
