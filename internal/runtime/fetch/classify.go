package fetch

import (
	"errors"
	"fmt"
	"net/http"

	qerrors "github.com/drblury/quoteflow/internal/runtime/errors"
)

// classifyStatus maps a non-2xx provider status onto a remote error class.
// Server errors are retried; everything else a provider answers is final.
func classifyStatus(status int, body []byte) error {
	cause := fmt.Errorf("provider answered %d %s", status, http.StatusText(status))
	if len(body) > 0 {
		cause = fmt.Errorf("%w: %s", cause, truncate(body, 256))
	}
	if status >= http.StatusInternalServerError {
		return qerrors.Transient(status, cause)
	}
	return qerrors.Fatal(status, cause)
}

// classifyTransport wraps failures that happen before a status line arrives:
// dial errors, resets and per-attempt timeouts. All are retried.
func classifyTransport(err error) error {
	return qerrors.Transient(0, err)
}

// classifyPayload wraps a 2xx body that does not have the expected shape.
func classifyPayload(status int, err error) error {
	return qerrors.Fatal(status, fmt.Errorf("unexpected payload: %w", err))
}

func isTransient(err error) bool {
	return errors.Is(err, qerrors.ErrRemoteTransient)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
