package cmn

import "github.com/pkg/errors"

// ErrScriptMissing is returned by the Backend Client Facade when the backend
// reports NOSCRIPT for a given SHA; the Script Registry reloads and retries
// on this specific sentinel.
var ErrScriptMissing = errors.New("script missing (NOSCRIPT)")

// Wrap adds stack context to err for logging, the way ais/ wraps backend and
// codec failures before they are returned to the caller.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, msg)
}
