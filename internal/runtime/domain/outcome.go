package domain

import (
	"errors"
	"fmt"

	qerrors "github.com/drblury/quoteflow/internal/runtime/errors"
)

// CurrencyQuote is a successful conversion. Amounts are exact decimal strings.
type CurrencyQuote struct {
	BaseCurrency    string `json:"base_currency"`
	ConvertCurrency string `json:"convert_currency"`
	BaseAmount      string `json:"base_amount"`
	Rate            string `json:"rate"`
	ConvertedAmount string `json:"converted_amount"`
}

// WeatherQuote is a successful forecast for a point.
type WeatherQuote struct {
	Point       Point    `json:"point"`
	Temperature float64  `json:"temperature"`
	FeelsLike   *float64 `json:"feels_like,omitempty"`
	Humidity    float64  `json:"humidity"`
	Pressure    *float64 `json:"pressure,omitempty"`
	WindSpeed   float64  `json:"wind_speed"`
	Description string   `json:"description"`
}

// Quote is the decoded success payload. Exactly one of Currency and Weather
// is set, matching Kind.
type Quote struct {
	Kind     Kind           `json:"kind"`
	Currency *CurrencyQuote `json:"currency,omitempty"`
	Weather  *WeatherQuote  `json:"weather,omitempty"`
}

// Validate reports a quote whose body does not match its kind.
func (q Quote) Validate() error {
	switch q.Kind {
	case KindCurrency:
		if q.Currency == nil || q.Weather != nil {
			return errors.New("currency quote must carry only a currency body")
		}
	case KindWeather:
		if q.Weather == nil || q.Currency != nil {
			return errors.New("weather quote must carry only a weather body")
		}
	default:
		return fmt.Errorf("unknown quote kind %q", q.Kind)
	}
	return nil
}

// Failure kinds carried on the wire.
const (
	FailureUnknownSource    = "unknown_source"
	FailureRemoteTransient  = "remote_transient"
	FailureRemoteFatal      = "remote_fatal"
	FailureUnrecognizedType = "unrecognized_envelope_type"
	FailureMalformedPayload = "malformed_payload"
	FailureUnknown          = "unknown"
)

// Failure is the error description carried by an ERROR envelope.
type Failure struct {
	Kind     string `json:"kind"`
	Detail   string `json:"detail"`
	Attempts int    `json:"attempts,omitempty"`
}

// FailureFromError classifies err into a Failure.
func FailureFromError(err error, attempts int) Failure {
	f := Failure{Kind: FailureUnknown, Attempts: attempts}
	if err == nil {
		return f
	}
	f.Detail = err.Error()

	switch {
	case errors.Is(err, qerrors.ErrUnknownSource):
		f.Kind = FailureUnknownSource
	case errors.Is(err, qerrors.ErrRemoteTransient):
		f.Kind = FailureRemoteTransient
	case errors.Is(err, qerrors.ErrRemoteFatal):
		f.Kind = FailureRemoteFatal
	case errors.Is(err, qerrors.ErrUnrecognizedEnvelopeType):
		f.Kind = FailureUnrecognizedType
	case errors.Is(err, qerrors.ErrMalformedPayload):
		f.Kind = FailureMalformedPayload
	}
	return f
}

// Err rebuilds a typed error so receivers can match it with errors.Is.
func (f Failure) Err() error {
	cause := errors.New(f.Detail)
	switch f.Kind {
	case FailureUnknownSource:
		return &qerrors.UnknownSourceError{Detail: f.Detail}
	case FailureRemoteTransient:
		e := qerrors.Transient(0, cause)
		e.Attempts = f.Attempts
		return e
	case FailureRemoteFatal:
		e := qerrors.Fatal(0, cause)
		e.Attempts = f.Attempts
		return e
	case FailureUnrecognizedType:
		return &qerrors.UnrecognizedEnvelopeTypeError{Type: f.Detail}
	case FailureMalformedPayload:
		return &qerrors.MalformedPayloadError{Cause: cause}
	default:
		return fmt.Errorf("quoteflow: %s failure: %s", f.Kind, f.Detail)
	}
}

// Outcome is the result of one logical remote call: exactly one of Quote and
// Failure is non-nil. Attempts is local bookkeeping and is not encoded.
type Outcome struct {
	Quote    *Quote
	Failure  *Failure
	Attempts int
}

// Succeeded wraps a quote.
func Succeeded(q Quote, attempts int) Outcome {
	return Outcome{Quote: &q, Attempts: attempts}
}

// Failed wraps an error as a failure outcome.
func Failed(err error, attempts int) Outcome {
	f := FailureFromError(err, attempts)
	return Outcome{Failure: &f, Attempts: attempts}
}

func (o Outcome) IsSuccess() bool {
	return o.Quote != nil && o.Failure == nil
}
