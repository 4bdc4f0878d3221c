// Package errmsg provides consistent error formatting for user-facing messages.
package errmsg

import "fmt"

// Op represents an operation that can fail.
type Op string

// Operation constants - grouped by domain.
const (
	// Sync cycle
	OpSync        Op = "sync scrobbles"
	OpSyncFetch   Op = "fetch recently played tracks"
	OpSyncSubmit  Op = "submit scrobbles"
	OpSyncPersist Op = "save sync state"
	OpSyncPurge   Op = "purge submitted history"
	OpRetry       Op = "retry scrobble"
	OpRetryAll    Op = "retry failed scrobbles"

	// Last.fm account
	OpLastfmLogin  Op = "sign in to Last.fm"
	OpLastfmLogout Op = "sign out of Last.fm"
	OpLastfmVerify Op = "verify Last.fm session"

	// History provider
	OpProviderAuthorize Op = "authorize music history access"
	OpProviderOpen      Op = "open music history provider"

	// Local state
	OpStateOpen  Op = "open local database"
	OpStateLoad  Op = "load scrobble history"
	OpStateReset Op = "reset local data"

	// Configuration
	OpConfigLoad Op = "load configuration"

	// Daemon
	OpServerStart Op = "start status server"
)

// Format creates a user-friendly error message.
func Format(op Op, err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("Failed to %s: %v", op, err)
}

// FormatWith creates an error message with additional context.
func FormatWith(op Op, context string, err error) string {
	if err == nil {
		return ""
	}
	if context == "" {
		return Format(op, err)
	}
	return fmt.Sprintf("Failed to %s '%s': %v", op, context, err)
}
