// Package domain holds the request and outcome types that travel through the
// quote pipeline.
package domain

import (
	"fmt"
	"math/big"
	"strings"

	qerrors "github.com/drblury/quoteflow/internal/runtime/errors"
)

// Kind names the family of derived value a request asks for.
type Kind string

const (
	KindCurrency Kind = "currency"
	KindWeather  Kind = "weather"
)

// ParseKind maps a configuration or wire value onto a Kind.
func ParseKind(s string) (Kind, bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindCurrency:
		return KindCurrency, true
	case KindWeather:
		return KindWeather, true
	default:
		return "", false
	}
}

// Point is a geographic coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Request is a validated intake payload. Build one through NewCurrencyRequest
// or NewWeatherRequest; the zero value is not valid.
type Request struct {
	kind            Kind
	baseCurrency    string
	convertCurrency string
	amount          *big.Rat
	point           Point
	source          string
}

func (r Request) Kind() Kind              { return r.kind }
func (r Request) Source() string          { return r.source }
func (r Request) BaseCurrency() string    { return r.baseCurrency }
func (r Request) ConvertCurrency() string { return r.convertCurrency }
func (r Request) Point() Point            { return r.point }

// Amount returns a copy of the magnitude, or nil for kinds without one.
func (r Request) Amount() *big.Rat {
	if r.amount == nil {
		return nil
	}
	return new(big.Rat).Set(r.amount)
}

// NewCurrencyRequest validates a currency conversion request. amount is a
// plain decimal string such as "10000" or "12.50" with at most QuotePlaces
// fractional digits.
func NewCurrencyRequest(base, convert, amount, source string) (Request, error) {
	base = strings.ToUpper(strings.TrimSpace(base))
	convert = strings.ToUpper(strings.TrimSpace(convert))
	source = strings.TrimSpace(source)

	if base == "" {
		return Request{}, qerrors.NewValidationError("base_currency", "is required")
	}
	if _, ok := LookupCurrency(base); !ok {
		return Request{}, qerrors.NewValidationError("base_currency", fmt.Sprintf("%q is not a known currency", base))
	}
	if convert == "" {
		return Request{}, qerrors.NewValidationError("convert_currency", "is required")
	}
	if _, ok := LookupCurrency(convert); !ok {
		return Request{}, qerrors.NewValidationError("convert_currency", fmt.Sprintf("%q is not a known currency", convert))
	}
	if strings.TrimSpace(amount) == "" {
		return Request{}, qerrors.NewValidationError("base_amount", "is required")
	}
	value, err := ParseDecimal(amount)
	if err != nil {
		return Request{}, qerrors.NewValidationError("base_amount", err.Error())
	}
	if value.Sign() <= 0 {
		return Request{}, qerrors.NewValidationError("base_amount", "must be positive")
	}
	if !FitsPlaces(value, QuotePlaces) {
		return Request{}, qerrors.NewValidationError("base_amount", fmt.Sprintf("must have at most %d decimal places", QuotePlaces))
	}
	if source == "" {
		return Request{}, qerrors.NewValidationError("source", "is required")
	}

	return Request{
		kind:            KindCurrency,
		baseCurrency:    base,
		convertCurrency: convert,
		amount:          value,
		source:          source,
	}, nil
}

// NewWeatherRequest validates a forecast request for a point.
func NewWeatherRequest(point *Point, source string) (Request, error) {
	source = strings.TrimSpace(source)

	if point == nil {
		return Request{}, qerrors.NewValidationError("point", "is required")
	}
	if point.Lat < -90 || point.Lat > 90 {
		return Request{}, qerrors.NewValidationError("point.lat", "must be within [-90, 90]")
	}
	if point.Lon < -180 || point.Lon > 180 {
		return Request{}, qerrors.NewValidationError("point.lon", "must be within [-180, 180]")
	}
	if source == "" {
		return Request{}, qerrors.NewValidationError("source", "is required")
	}

	return Request{kind: KindWeather, point: *point, source: source}, nil
}

// Valid reports whether r was produced by one of the constructors.
func (r Request) Valid() bool {
	return r.kind != "" && r.source != ""
}

func (r Request) String() string {
	switch r.kind {
	case KindCurrency:
		return fmt.Sprintf("currency %s->%s %s via %s", r.baseCurrency, r.convertCurrency, r.amount.FloatString(4), r.source)
	case KindWeather:
		return fmt.Sprintf("weather (%.4f,%.4f) via %s", r.point.Lat, r.point.Lon, r.source)
	default:
		return "invalid request"
	}
}
