package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/drblury/quoteflow/internal/runtime/domain"
	qerrors "github.com/drblury/quoteflow/internal/runtime/errors"
	"github.com/drblury/quoteflow/internal/runtime/jsoncodec"
	"github.com/drblury/quoteflow/internal/runtime/logging"
)

// Registrar accepts validated requests. *runtime.Registrar implements it.
type Registrar interface {
	Register(ctx context.Context, req domain.Request) (string, error)
}

// amount accepts a JSON number or a decimal string and keeps its literal
// text so no precision is lost before validation.
type amount string

func (a *amount) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*a = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := jsoncodec.Unmarshal(data, &str); err != nil {
			return err
		}
		*a = amount(str)
		return nil
	}
	*a = amount(s)
	return nil
}

type currencyBody struct {
	BaseCurrency    string `json:"base_currency"`
	ConvertCurrency string `json:"convert_currency"`
	BaseAmount      amount `json:"base_amount"`
	Source          string `json:"source"`
}

type weatherBody struct {
	Point  *domain.Point `json:"point"`
	Source string        `json:"source"`
}

type intake struct {
	registrar Registrar
	logger    logging.ServiceLogger
}

// NewIntakeRouter serves POST /v1/currency, POST /v1/weather and GET /healthz.
// Accepted requests answer 200 with the correlation key as a plain text body;
// invalid ones answer 400 before any key is minted.
func NewIntakeRouter(registrar Registrar, logger logging.ServiceLogger) http.Handler {
	in := &intake{registrar: registrar, logger: logger}
	r := newRouter(logger)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/currency", in.currency)
		r.Post("/weather", in.weather)
	})
	return r
}

func (in *intake) currency(w http.ResponseWriter, r *http.Request) {
	var body currencyBody
	if !in.decode(w, r, &body) {
		return
	}
	req, err := domain.NewCurrencyRequest(body.BaseCurrency, body.ConvertCurrency, string(body.BaseAmount), body.Source)
	in.register(w, r, req, err)
}

func (in *intake) weather(w http.ResponseWriter, r *http.Request) {
	var body weatherBody
	if !in.decode(w, r, &body) {
		return
	}
	req, err := domain.NewWeatherRequest(body.Point, body.Source)
	in.register(w, r, req, err)
}

func (in *intake) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		reject(w, http.StatusBadRequest, "request body could not be read")
		return false
	}
	if err := jsoncodec.Unmarshal(raw, v); err != nil {
		reject(w, http.StatusBadRequest, "request body is not valid JSON")
		return false
	}
	return true
}

func (in *intake) register(w http.ResponseWriter, r *http.Request, req domain.Request, validationErr error) {
	if validationErr != nil {
		reject(w, http.StatusBadRequest, validationErr.Error())
		return
	}

	key, err := in.registrar.Register(r.Context(), req)
	switch {
	case err == nil:
	case errors.Is(err, qerrors.ErrValidation):
		reject(w, http.StatusBadRequest, err.Error())
		return
	default:
		in.logger.Error("Registration failed", err, logging.LogFields{"request": req.String()})
		reject(w, http.StatusServiceUnavailable, "request could not be accepted")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(key))
}
