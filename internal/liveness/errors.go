package liveness

import "errors"

var (
	// ErrSessionNotFound is returned when the session id is unknown or archived.
	ErrSessionNotFound = errors.New("liveness session not found")

	// ErrSessionExpired is returned when a response arrives past the TTL
	// window. The session transitions to EXPIRED regardless of whether the
	// submitted code was correct.
	ErrSessionExpired = errors.New("liveness session expired")

	// ErrDuplicateResponse is returned when a session that already consumed
	// its single response receives another one.
	ErrDuplicateResponse = errors.New("liveness session already responded")

	// ErrStaleSession is returned by Store.Update when the stored session
	// changed since the caller read it. The caller must re-read before
	// deciding anything.
	ErrStaleSession = errors.New("liveness session changed concurrently")
)
