package updater

import (
	"errors"
	"fmt"
)

// ErrStopped is returned for work requested after Stop.
var ErrStopped = errors.New("updater stopped")

const (
	FieldPlaylistURL = "playlistUrl"
	FieldScheduleURL = "scheduleUrl"
)

// ConfigurationError reports settings that cannot produce a usable cache.
// Field names the offending setting.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// FetchError reports a feed that could not be downloaded.
type FetchError struct {
	Field string
	URL   string
	Err   error
}

const fetchFailedMessage = "Failed to fetch URL"

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Field, fetchFailedMessage, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// FieldMessages maps a ConfigurationError or FetchError to the
// user-facing message for its field. It returns nil for any other error.
func FieldMessages(err error) map[string]string {
	var cfgErr *ConfigurationError
	if errors.As(err, &cfgErr) {
		return map[string]string{cfgErr.Field: cfgErr.Message}
	}

	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return map[string]string{fetchErr.Field: fetchFailedMessage}
	}

	return nil
}
