package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/drblury/quoteflow/internal/runtime/domain"
	"github.com/drblury/quoteflow/internal/runtime/endpoints"
	"github.com/drblury/quoteflow/internal/runtime/jsoncodec"
)

const maxBodyBytes = 1 << 20

// Provider performs a single attempt against a remote endpoint. Errors must
// be classified *errors.RemoteError values.
type Provider interface {
	Call(ctx context.Context, req domain.Request, ep endpoints.Endpoint) (domain.Quote, error)
}

// HTTPProvider talks to currency and weather providers with a GET carrying
// the lookup fields as query parameters and the API key as a header.
type HTTPProvider struct {
	client *http.Client
}

// NewHTTPProvider returns a provider using client, or a default client when
// nil. Per-attempt deadlines come from the context, not the client.
func NewHTTPProvider(client *http.Client) *HTTPProvider {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPProvider{client: client}
}

func (p *HTTPProvider) Call(ctx context.Context, req domain.Request, ep endpoints.Endpoint) (domain.Quote, error) {
	target := *ep.URL
	query := target.Query()
	switch req.Kind() {
	case domain.KindCurrency:
		query.Set("from", req.BaseCurrency())
		query.Set("to", req.ConvertCurrency())
		query.Set("amount", req.Amount().FloatString(domain.QuotePlaces))
	case domain.KindWeather:
		pt := req.Point()
		query.Set("lat", strconv.FormatFloat(pt.Lat, 'f', -1, 64))
		query.Set("lon", strconv.FormatFloat(pt.Lon, 'f', -1, 64))
	default:
		return domain.Quote{}, classifyPayload(0, fmt.Errorf("unsupported request kind %q", req.Kind()))
	}
	target.RawQuery = query.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return domain.Quote{}, classifyPayload(0, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if ep.APIKey != "" {
		httpReq.Header.Set(ep.APIKeyHeader, ep.APIKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return domain.Quote{}, classifyTransport(unwrapURLError(err))
	}
	defer resp.Body.Close()

	// A non-2xx status decides the class on its own; a short read only
	// trims the detail.
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.Quote{}, classifyStatus(resp.StatusCode, body)
	}
	if readErr != nil {
		return domain.Quote{}, classifyTransport(readErr)
	}

	var quote domain.Quote
	switch req.Kind() {
	case domain.KindCurrency:
		quote, err = decodeCurrency(req, body)
	case domain.KindWeather:
		quote, err = decodeWeather(req, body)
	}
	if err != nil {
		return domain.Quote{}, classifyPayload(resp.StatusCode, err)
	}
	return quote, nil
}

func unwrapURLError(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return fmt.Errorf("%s: %w", uerr.Op, uerr.Err)
	}
	return err
}

type currencyResponse struct {
	Rate   json.Number `json:"rate"`
	Result json.Number `json:"result"`
}

// decodeCurrency prefers the provider's own converted result when it sends
// one and multiplies amount by rate otherwise. Both are truncated to
// QuotePlaces.
func decodeCurrency(req domain.Request, body []byte) (domain.Quote, error) {
	var resp currencyResponse
	if err := jsoncodec.Unmarshal(body, &resp); err != nil {
		return domain.Quote{}, err
	}
	if resp.Rate == "" {
		return domain.Quote{}, errors.New("rate is missing")
	}
	rate, err := domain.ParseDecimal(string(resp.Rate))
	if err != nil {
		return domain.Quote{}, fmt.Errorf("rate: %w", err)
	}
	if rate.Sign() <= 0 {
		return domain.Quote{}, errors.New("rate must be positive")
	}

	amount := req.Amount()
	converted := domain.Convert(amount, rate)
	if resp.Result != "" {
		converted, err = domain.ParseDecimal(string(resp.Result))
		if err != nil {
			return domain.Quote{}, fmt.Errorf("result: %w", err)
		}
	}

	return domain.Quote{
		Kind: domain.KindCurrency,
		Currency: &domain.CurrencyQuote{
			BaseCurrency:    req.BaseCurrency(),
			ConvertCurrency: req.ConvertCurrency(),
			BaseAmount:      amount.FloatString(domain.QuotePlaces),
			Rate:            string(resp.Rate),
			ConvertedAmount: domain.TruncateDecimal(converted, domain.QuotePlaces),
		},
	}, nil
}

type weatherResponse struct {
	Temperature *float64 `json:"temperature"`
	FeelsLike   *float64 `json:"feels_like"`
	Humidity    *float64 `json:"humidity"`
	Pressure    *float64 `json:"pressure"`
	WindSpeed   *float64 `json:"wind_speed"`
	Description string   `json:"description"`
}

func decodeWeather(req domain.Request, body []byte) (domain.Quote, error) {
	var resp weatherResponse
	if err := jsoncodec.Unmarshal(body, &resp); err != nil {
		return domain.Quote{}, err
	}
	switch {
	case resp.Temperature == nil:
		return domain.Quote{}, errors.New("temperature is missing")
	case resp.Humidity == nil:
		return domain.Quote{}, errors.New("humidity is missing")
	case resp.WindSpeed == nil:
		return domain.Quote{}, errors.New("wind_speed is missing")
	}

	return domain.Quote{
		Kind: domain.KindWeather,
		Weather: &domain.WeatherQuote{
			Point:       req.Point(),
			Temperature: *resp.Temperature,
			FeelsLike:   resp.FeelsLike,
			Humidity:    *resp.Humidity,
			Pressure:    resp.Pressure,
			WindSpeed:   *resp.WindSpeed,
			Description: resp.Description,
		},
	}, nil
}
