package types

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dylanmazurek/resolvarr/internal/request"
)

// Error kinds raised by the provider and service layers. Anything not wrapped
// in one of these is an unexpected failure.
var (
	// ErrBadToken means the remote rejected the credential (401/403).
	ErrBadToken = errors.New("bad token")

	// ErrAccessDenied means the account's plan does not allow the operation (402).
	ErrAccessDenied = errors.New("access denied")

	// ErrNotFound marks a failed logical lookup: an unregistered torrent with
	// no list match, a file index past the video file count, or a link
	// response with no usable URL.
	ErrNotFound = errors.New("not found")
)

// ClassifyStatus maps authentication and entitlement HTTP statuses onto the
// error kinds above and returns every other error unchanged. It is applied at
// every remote call site so the kinds mean the same thing regardless of which
// endpoint produced them.
func ClassifyStatus(err error) error {
	if err == nil {
		return nil
	}

	var statusErr *request.StatusError
	if !errors.As(err, &statusErr) {
		return err
	}

	switch statusErr.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %w", ErrBadToken, err)
	case http.StatusPaymentRequired:
		return fmt.Errorf("%w: %w", ErrAccessDenied, err)
	default:
		return err
	}
}
