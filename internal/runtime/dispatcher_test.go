package runtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/quoteflow/internal/runtime/domain"
	"github.com/drblury/quoteflow/internal/runtime/envelope"
	qerrors "github.com/drblury/quoteflow/internal/runtime/errors"
	"github.com/drblury/quoteflow/internal/runtime/ids"
	"github.com/drblury/quoteflow/internal/runtime/jsoncodec"
	"github.com/drblury/quoteflow/internal/runtime/logging"
	"github.com/drblury/quoteflow/internal/runtime/store"
)

// hookRecorder captures the order and arguments of hook invocations.
type hookRecorder struct {
	mu        sync.Mutex
	calls     []string
	quotes    []domain.Quote
	errs      []error
	observed  []envelope.Envelope
	contexts  []HookContext
	failWith  map[string]error
	panicWith map[string]any
}

func newHookRecorder() *hookRecorder {
	return &hookRecorder{failWith: map[string]error{}, panicWith: map[string]any{}}
}

func (r *hookRecorder) enter(name string, hc HookContext) error {
	r.mu.Lock()
	r.calls = append(r.calls, name)
	r.contexts = append(r.contexts, hc)
	err := r.failWith[name]
	p := r.panicWith[name]
	r.mu.Unlock()
	if p != nil {
		panic(p)
	}
	return err
}

func (r *hookRecorder) chain() HookChain {
	return HookChain{
		Observer: HookFunc[envelope.Envelope](func(hc HookContext, env envelope.Envelope) error {
			r.mu.Lock()
			r.observed = append(r.observed, env)
			r.mu.Unlock()
			return r.enter("observer", hc)
		}),
		OnSuccess: HookFunc[domain.Quote](func(hc HookContext, q domain.Quote) error {
			r.mu.Lock()
			r.quotes = append(r.quotes, q)
			r.mu.Unlock()
			return r.enter("success", hc)
		}),
		OnError: HookFunc[error](func(hc HookContext, err error) error {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
			return r.enter("error", hc)
		}),
	}
}

func (r *hookRecorder) callNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type failingUpsertStore struct {
	*store.Memory
	err error
}

func (s failingUpsertStore) Upsert(context.Context, store.Outcome) error {
	return s.err
}

func currencyQuote() domain.Quote {
	return domain.Quote{
		Kind: domain.KindCurrency,
		Currency: &domain.CurrencyQuote{
			BaseCurrency:    "USD",
			ConvertCurrency: "EUR",
			BaseAmount:      "100.0000",
			Rate:            "1.558060",
			ConvertedAmount: "155.8060",
		},
	}
}

func newTestDispatcher(t *testing.T, hooks HookChain, st store.Store) *Dispatcher {
	t.Helper()
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	d, err := NewDispatcher(hooks, st, logging.NewNopServiceLogger(), withDispatcherClock(func() time.Time { return fixed }))
	require.NoError(t, err)
	return d
}

func TestNewDispatcherValidatesDependencies(t *testing.T) {
	_, err := NewDispatcher(HookChain{}, nil, logging.NewNopServiceLogger())
	assert.ErrorIs(t, err, qerrors.ErrStoreRequired)

	_, err = NewDispatcher(HookChain{}, store.NewMemory(), nil)
	assert.ErrorIs(t, err, qerrors.ErrLoggerRequired)
}

func TestDispatchSuccessEnvelope(t *testing.T) {
	rec := newHookRecorder()
	st := store.NewMemory()
	d := newTestDispatcher(t, rec.chain(), st)
	key := ids.NewCorrelationKey()
	env := envelope.Encode(domain.Succeeded(currencyQuote(), 1))

	err := d.Dispatch(context.Background(), Inbound{
		Key:      key,
		Envelope: env,
		Delivery: Delivery{Topic: "quote-outcomes", Partition: 3, Offset: 42},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"observer", "success"}, rec.callNames())
	require.Len(t, rec.quotes, 1)
	assert.Equal(t, "155.8060", rec.quotes[0].Currency.ConvertedAmount)
	assert.Equal(t, key, rec.contexts[0].Key)
	assert.Equal(t, int32(3), rec.contexts[0].Delivery.Partition)

	got, err := st.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, store.StatusSuccess, got.Status)
	assert.Equal(t, "SUCCESS", got.EnvelopeType)
	assert.Equal(t, "currency", got.Kind)
	assert.Equal(t, env.Message, got.Payload)
	assert.Equal(t, int64(42), got.Offset)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), got.UpdatedAt)
}

func TestDispatchErrorEnvelope(t *testing.T) {
	rec := newHookRecorder()
	st := store.NewMemory()
	d := newTestDispatcher(t, rec.chain(), st)
	key := ids.NewCorrelationKey()
	failure := qerrors.Fatal(404, errors.New("no such currency pair"))
	failure.Attempts = 1

	err := d.Dispatch(context.Background(), Inbound{Key: key, Envelope: envelope.Encode(domain.Failed(failure, 1))})
	require.NoError(t, err)

	assert.Equal(t, []string{"observer", "error"}, rec.callNames())
	require.Len(t, rec.errs, 1)
	assert.ErrorIs(t, rec.errs[0], qerrors.ErrRemoteFatal)
	assert.Empty(t, rec.quotes)

	got, err := st.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, store.StatusError, got.Status)

	var stored domain.Failure
	require.NoError(t, jsoncodec.UnmarshalFromString(got.Payload, &stored))
	assert.Equal(t, domain.FailureRemoteFatal, stored.Kind)
	assert.Equal(t, 1, stored.Attempts)
}

func TestDispatchPlainTextErrorMessage(t *testing.T) {
	rec := newHookRecorder()
	d := newTestDispatcher(t, rec.chain(), store.NewMemory())

	err := d.Dispatch(context.Background(), Inbound{
		Key:      ids.NewCorrelationKey(),
		Envelope: envelope.Envelope{Type: envelope.TypeError, Message: "provider exploded"},
	})
	require.NoError(t, err)

	require.Len(t, rec.errs, 1)
	assert.Contains(t, rec.errs[0].Error(), "provider exploded")
}

func TestDispatchProtocolErrors(t *testing.T) {
	tests := []struct {
		name     string
		envelope envelope.Envelope
		sentinel error
	}{
		{"unrecognized type", envelope.Envelope{Type: "PARTIAL", Message: "{}"}, qerrors.ErrUnrecognizedEnvelopeType},
		{"empty type", envelope.Envelope{Message: "not json at all"}, qerrors.ErrUnrecognizedEnvelopeType},
		{"success without quote", envelope.Envelope{Type: envelope.TypeSuccess, Message: "oops"}, qerrors.ErrMalformedPayload},
		{"success with wrong body", envelope.Envelope{Type: envelope.TypeSuccess, Message: `{"kind":"weather"}`}, qerrors.ErrMalformedPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newHookRecorder()
			st := store.NewMemory()
			d := newTestDispatcher(t, rec.chain(), st)
			key := ids.NewCorrelationKey()

			err := d.Dispatch(context.Background(), Inbound{Key: key, Envelope: tt.envelope})
			require.NoError(t, err)

			assert.Equal(t, []string{"observer", "error"}, rec.callNames())
			require.Len(t, rec.errs, 1)
			assert.ErrorIs(t, rec.errs[0], tt.sentinel)
			assert.True(t, qerrors.IsProtocolError(rec.errs[0]))

			got, err := st.Get(context.Background(), key)
			require.NoError(t, err)
			assert.Equal(t, store.StatusProtocolError, got.Status)
		})
	}
}

func TestDispatchWithoutKeyIsUnprocessable(t *testing.T) {
	rec := newHookRecorder()
	st := store.NewMemory()
	d := newTestDispatcher(t, rec.chain(), st)

	err := d.Dispatch(context.Background(), Inbound{Envelope: envelope.Envelope{Type: envelope.TypeError, Message: "x"}})

	var unprocessable *UnprocessableEventError
	require.ErrorAs(t, err, &unprocessable)
	assert.ErrorIs(t, err, ErrMissingCorrelationKey)
	assert.Empty(t, rec.callNames())
	assert.Zero(t, st.Len())
}

func TestDispatchObserverFailureIsIgnored(t *testing.T) {
	rec := newHookRecorder()
	rec.failWith["observer"] = errors.New("audit sink down")
	st := store.NewMemory()
	d := newTestDispatcher(t, rec.chain(), st)

	err := d.Dispatch(context.Background(), Inbound{
		Key:      ids.NewCorrelationKey(),
		Envelope: envelope.Encode(domain.Succeeded(currencyQuote(), 1)),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"observer", "success"}, rec.callNames())
	assert.Equal(t, 1, st.Len())
}

func TestDispatchHookFailureSkipsPersistence(t *testing.T) {
	tests := []struct {
		name     string
		hook     string
		envelope envelope.Envelope
		panics   bool
	}{
		{"success hook error", "success", envelope.Encode(domain.Succeeded(currencyQuote(), 1)), false},
		{"error hook error", "error", envelope.Encode(domain.Failed(qerrors.Transient(503, nil), 3)), false},
		{"success hook panic", "success", envelope.Encode(domain.Succeeded(currencyQuote(), 1)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newHookRecorder()
			if tt.panics {
				rec.panicWith[tt.hook] = "kaboom"
			} else {
				rec.failWith[tt.hook] = errors.New("hook refused")
			}
			st := store.NewMemory()
			d := newTestDispatcher(t, rec.chain(), st)

			err := d.Dispatch(context.Background(), Inbound{Key: ids.NewCorrelationKey(), Envelope: tt.envelope})

			var hookErr *qerrors.HookError
			require.ErrorAs(t, err, &hookErr)
			assert.Equal(t, tt.hook, hookErr.Hook)
			assert.Zero(t, st.Len())
		})
	}
}

func TestDispatchObserverPanicIsIgnored(t *testing.T) {
	rec := newHookRecorder()
	rec.panicWith["observer"] = "observer blew up"
	st := store.NewMemory()
	d := newTestDispatcher(t, rec.chain(), st)

	err := d.Dispatch(context.Background(), Inbound{
		Key:      ids.NewCorrelationKey(),
		Envelope: envelope.Encode(domain.Succeeded(currencyQuote(), 1)),
	})

	require.NoError(t, err)
	assert.Equal(t, 1, st.Len())
}

func TestDispatchRedeliveryKeepsOneRecord(t *testing.T) {
	rec := newHookRecorder()
	st := store.NewMemory()
	d := newTestDispatcher(t, rec.chain(), st)
	key := ids.NewCorrelationKey()
	in := Inbound{Key: key, Envelope: envelope.Encode(domain.Succeeded(currencyQuote(), 1))}

	require.NoError(t, d.Dispatch(context.Background(), in))
	require.NoError(t, d.Dispatch(context.Background(), in))

	assert.Equal(t, 1, st.Len())
	assert.Equal(t, 2, st.Upserts())
}

func TestDispatchStoreFailure(t *testing.T) {
	cause := errors.New("disk full")
	d := newTestDispatcher(t, HookChain{}, failingUpsertStore{Memory: store.NewMemory(), err: cause})

	err := d.Dispatch(context.Background(), Inbound{
		Key:      ids.NewCorrelationKey(),
		Envelope: envelope.Encode(domain.Succeeded(currencyQuote(), 1)),
	})

	assert.ErrorIs(t, err, qerrors.ErrPersistence)
	assert.ErrorIs(t, err, cause)
}

func TestDispatchWithoutHooks(t *testing.T) {
	st := store.NewMemory()
	d := newTestDispatcher(t, HookChain{}, st)

	err := d.Dispatch(context.Background(), Inbound{
		Key:      ids.NewCorrelationKey(),
		Envelope: envelope.Envelope{Type: "BOGUS"},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, st.Len())
}
