package quoteflow

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigHelpers(t *testing.T) {
	conf := DefaultConfig()
	conf.FetchMaxAttempts = 4
	conf.FetchBaseDelay = 50 * time.Millisecond
	conf.FetchMaxDelay = time.Second

	assert.Equal(t, FetchPolicy{MaxAttempts: 4, BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second}, FetchPolicyFromConfig(&conf))

	rc := RegistrarConfigFromConfig(&conf)
	assert.Equal(t, conf.OutcomeTopic, rc.Topic)
	assert.Equal(t, conf.FetchTimeout, rc.AttemptTimeout)
	assert.Equal(t, conf.WorkerConcurrency, rc.WorkerConcurrency)
}

func TestNewHookFunc(t *testing.T) {
	var got Quote
	hook := NewHookFunc(func(hc HookContext, q Quote) error {
		got = q
		return nil
	})

	q := Quote{Kind: KindCurrency}
	require.NoError(t, hook.Handle(HookContext{Context: context.Background()}, q))
	assert.Equal(t, KindCurrency, got.Kind)
}

func TestDispatcherExportsPropagateErrors(t *testing.T) {
	err := RegisterDispatcher(nil, DispatcherRegistration{})
	assert.ErrorIs(t, err, ErrServiceRequired)

	_, err = NewDispatcher(HookChain{}, nil, NewNopServiceLogger())
	assert.ErrorIs(t, err, ErrStoreRequired)
}

func TestCorrelationKeyExports(t *testing.T) {
	key := NewCorrelationKey()
	assert.True(t, IsCorrelationKey(key))
	assert.False(t, IsCorrelationKey("not-a-key"))
}

func TestErrorExports(t *testing.T) {
	assert.True(t, IsProtocolError(&UnrecognizedEnvelopeTypeError{Type: "FOO"}))
	assert.True(t, errors.Is(&HookError{Hook: "success", Cause: errors.New("x")}, ErrHook))
}

func TestEncodingExportAliases(t *testing.T) {
	payload := map[string]string{"hello": "world"}
	raw, err := Marshal(payload)
	require.NoError(t, err)

	var out map[string]string
	require.NoError(t, Unmarshal(raw, &out))
	assert.Equal(t, payload, out)
}

func TestMetadataExport(t *testing.T) {
	md := NewMetadata(MetadataKeyCorrelationKey, "k")
	assert.Equal(t, "k", md[MetadataKeyCorrelationKey])
}

func TestOutcomeRouterExport(t *testing.T) {
	r := NewOutcomeRouter(NewMemoryStore(), NewNopServiceLogger())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/outcomes/"+NewCorrelationKey(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
