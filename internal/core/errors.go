package core

// errors.go defines the error taxonomy shared by the feed, the streamer and
// the cache backends.
//
// Three typed errors cover the pipeline stages:
//
//   - FetchError: transport failure, non-2xx status, or an undecodable body
//   - MappingError: a record could not be turned into a row
//   - PersistenceError: the store was unreachable or rejected a write
//
// All of them unwrap to their cause so callers can use errors.Is / errors.As
// without string matching.

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by cache lookups when no entry exists for the key.
	ErrNotFound = errors.New("entry not found")

	// ErrMissingValue marks a NotNull column that resolved to null.
	ErrMissingValue = errors.New("required column value is missing")

	// ErrUnknownTable is returned when a table name does not match any registered table.
	ErrUnknownTable = errors.New("unknown table")

	// ErrNoResolver is returned when a table has nothing to stream from.
	ErrNoResolver = errors.New("table has no resolver")

	// ErrMalformedFeed marks a feed response body that could not be decoded.
	ErrMalformedFeed = errors.New("malformed feed response")

	// ErrPersistenceDisabled is returned when a sync asks to persist but no cache is configured.
	ErrPersistenceDisabled = errors.New("persistence is not configured")
)

// FetchError reports a failed request against the vulnerability feed.
type FetchError struct {
	URL        string
	StatusCode int // 0 when the request never produced a response
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// MappingError reports a record that could not be resolved into a row.
type MappingError struct {
	Table  string
	Column string
	Index  int // position of the record in the feed order
	Err    error
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("map %s record %d column %q: %v", e.Table, e.Index, e.Column, e.Err)
}

func (e *MappingError) Unwrap() error { return e.Err }

// PersistenceError reports a failed store operation.
type PersistenceError struct {
	Backend string // "postgres", "mysql", "sqlite"
	Op      string // "connect", "migrate", "upsert", "get", "list"
	Key     string // primary key of the record being written, if any
	Err     error
}

func (e *PersistenceError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s %s %s: %v", e.Backend, e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsFetchError reports whether err carries a FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

// IsMappingError reports whether err carries a MappingError.
func IsMappingError(err error) bool {
	var me *MappingError
	return errors.As(err, &me)
}

// IsPersistenceError reports whether err carries a PersistenceError.
func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
