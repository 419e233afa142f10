package tutor

import (
	"fmt"
	"net/url"

	"github.com/brightclass/tutorlive/pkg/core"
)

// SDK-level error type that wraps core errors
type Error = core.Error

// Error types
const (
	ErrInvalidRequest = core.ErrInvalidRequest
	ErrProvisioning   = core.ErrProvisioning
	ErrStream         = core.ErrStream
	ErrVoice          = core.ErrVoice
	ErrAPI            = core.ErrAPI
)

// Error constructors
var (
	NewInvalidRequestError = core.NewInvalidRequestError
	NewProvisioningError   = core.NewProvisioningError
	NewStreamError         = core.NewStreamError
	NewVoiceError          = core.NewVoiceError
	NewAPIError            = core.NewAPIError
)

// TransportError represents transport-level failures (DNS, timeouts,
// connection reset, TLS handshake, websocket dial) while talking to the
// backend.
//
// Use errors.As(err, &TransportError{}) to distinguish transport failures
// from canonical engine errors (*core.Error).
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Op != "" && e.URL != "":
		return fmt.Sprintf("transport error during %s %s: %v", e.Op, redactURLUserInfo(e.URL), e.Err)
	case e.Op != "":
		return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("transport error: %v", e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func redactURLUserInfo(raw string) string {
	if raw == "" {
		return raw
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed == nil {
		return raw
	}
	parsed.User = nil
	return parsed.String()
}
