// internal/browser/errors.go
package browser

import "errors"

// The error taxonomy for one send. Connection failures are fatal to the whole
// request; selector-contract failures are fatal to the single send that hit
// them. Extraction never raises: it degrades to ResponseUnavailable so the
// caller always receives a response object.
var (
	// ErrBrowserUnreachable means the remote debugging endpoint could not be
	// reached or the CDP handshake failed.
	ErrBrowserUnreachable = errors.New("remote browser unreachable")

	// ErrInputNotFound means no known input selector variant resolved within
	// the aggregate readiness timeout.
	ErrInputNotFound = errors.New("no input element variant found")

	// ErrInputInjection means the input element vanished between readiness
	// and send time.
	ErrInputInjection = errors.New("input element missing at send time")

	// ErrSendTriggerExhausted means the button click, the synthetic Enter and
	// the raw keyboard Enter all failed.
	ErrSendTriggerExhausted = errors.New("all send triggers failed")

	// ErrGenerationTimeout is returned for a timed-out response wait only
	// when lenient timeouts are disabled.
	ErrGenerationTimeout = errors.New("response generation exceeded polling ceiling")
)

// ResponseUnavailable is the in-band sentinel returned when every extraction
// strategy came up empty. Callers must treat it as a content-level failure,
// not a protocol error.
const ResponseUnavailable = "[no response extracted]"
