// Package envelope converts outcomes to and from the typed broker envelope
// {"type":"SUCCESS"|"ERROR","message":"..."}.
package envelope

import (
	"errors"
	"fmt"
	"strings"

	"github.com/drblury/quoteflow/internal/runtime/domain"
	qerrors "github.com/drblury/quoteflow/internal/runtime/errors"
	"github.com/drblury/quoteflow/internal/runtime/jsoncodec"
)

// Type declares how Message must be decoded.
type Type string

const (
	TypeSuccess Type = "SUCCESS"
	TypeError   Type = "ERROR"
)

// Envelope is the broker message value.
type Envelope struct {
	Type    Type   `json:"type"`
	Message string `json:"message"`
}

// Encode maps a successful outcome to a SUCCESS envelope carrying the quote
// as JSON and anything else to an ERROR envelope carrying the failure.
func Encode(o domain.Outcome) Envelope {
	if o.IsSuccess() {
		msg, err := jsoncodec.MarshalToString(o.Quote)
		if err == nil {
			return Envelope{Type: TypeSuccess, Message: msg}
		}
		return encodeFailure(domain.FailureFromError(fmt.Errorf("encode quote: %w", err), o.Attempts))
	}
	if o.Failure != nil {
		return encodeFailure(*o.Failure)
	}
	return encodeFailure(domain.Failure{Kind: domain.FailureUnknown, Detail: "empty outcome", Attempts: o.Attempts})
}

func encodeFailure(f domain.Failure) Envelope {
	msg, err := jsoncodec.MarshalToString(f)
	if err != nil {
		msg = f.Detail
	}
	return Envelope{Type: TypeError, Message: msg}
}

// Decode is the inverse of Encode for SUCCESS and ERROR envelopes. Any other
// type fails with *errors.UnrecognizedEnvelopeTypeError; a SUCCESS message
// that is not a valid quote fails with *errors.MalformedPayloadError.
//
// ERROR messages that are not a JSON failure are kept verbatim as the detail
// of an "unknown" failure so plain text descriptions still reach the error
// hook.
func Decode(e Envelope) (domain.Outcome, error) {
	switch e.Type {
	case TypeSuccess:
		var q domain.Quote
		if err := jsoncodec.UnmarshalFromString(e.Message, &q); err != nil {
			return domain.Outcome{}, &qerrors.MalformedPayloadError{Type: string(e.Type), Cause: err}
		}
		if err := q.Validate(); err != nil {
			return domain.Outcome{}, &qerrors.MalformedPayloadError{Type: string(e.Type), Cause: err}
		}
		return domain.Outcome{Quote: &q}, nil
	case TypeError:
		f := decodeFailure(e.Message)
		return domain.Outcome{Failure: &f, Attempts: f.Attempts}, nil
	default:
		return domain.Outcome{}, &qerrors.UnrecognizedEnvelopeTypeError{Type: string(e.Type)}
	}
}

func decodeFailure(msg string) domain.Failure {
	trimmed := strings.TrimSpace(msg)
	if strings.HasPrefix(trimmed, "{") {
		var f domain.Failure
		if err := jsoncodec.UnmarshalFromString(trimmed, &f); err == nil && f.Kind != "" {
			return f
		}
	}
	return domain.Failure{Kind: domain.FailureUnknown, Detail: msg}
}

// Marshal renders the wire form.
func Marshal(e Envelope) ([]byte, error) {
	return jsoncodec.Marshal(e)
}

// ErrNotEnvelope reports a broker value that is not a JSON object.
var ErrNotEnvelope = errors.New("quoteflow: broker value is not an envelope")

// Unmarshal parses the wire form. A JSON object without a type yields an
// envelope with an empty Type, which Decode rejects as unrecognized.
func Unmarshal(data []byte) (Envelope, error) {
	var e Envelope
	if err := jsoncodec.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrNotEnvelope, err)
	}
	return e, nil
}
