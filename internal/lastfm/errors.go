package lastfm

import (
	"errors"
	"fmt"
)

// Authentication errors.
var (
	ErrInvalidURL       = errors.New("lastfm: invalid URL")
	ErrUserCancelled    = errors.New("lastfm: authentication was cancelled")
	ErrNoToken          = errors.New("lastfm: no authentication token received")
	ErrAuthFailed       = errors.New("lastfm: authentication failed")
	ErrNotAuthenticated = errors.New("lastfm: not authenticated")
	ErrAuthInProgress   = errors.New("lastfm: authentication already in progress")
)

// TransportError reports a request that did not produce a usable response:
// the request could not be sent, the status was not 200, or the body could
// not be decoded.
type TransportError struct {
	Op         string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: HTTP %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// APIError is a call rejected by Last.fm itself ({"error": N, "message": ...}).
// It is distinct from per-track ignored codes.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("lastfm error %d", e.Code)
	}
	return fmt.Sprintf("lastfm error %d: %s", e.Code, e.Message)
}

// Error codes returned by the Last.fm API that callers act on.
const (
	CodeInvalidSession = 9
	CodeRateLimited    = 29
)

// IsSessionInvalid reports whether err means the stored session key was
// revoked and the user has to sign in again.
func IsSessionInvalid(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == CodeInvalidSession
}
