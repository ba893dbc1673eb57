// Package endpoints resolves request sources to remote provider descriptors.
package endpoints

import (
	"fmt"
	"net/url"
	"sort"

	"github.com/drblury/quoteflow/internal/runtime/config"
	"github.com/drblury/quoteflow/internal/runtime/domain"
	qerrors "github.com/drblury/quoteflow/internal/runtime/errors"
)

// DefaultAPIKeyHeader is used when an endpoint does not name its own header.
const DefaultAPIKeyHeader = "X-Api-Key"

// Endpoint is a resolved remote provider.
type Endpoint struct {
	ID           string
	Kind         domain.Kind
	URL          *url.URL
	APIKey       string
	APIKeyHeader string
}

// Registry is an immutable source to endpoint table. It is safe for
// concurrent lookups without locking because nothing mutates it after New.
type Registry struct {
	byID map[string]Endpoint
}

// New builds a registry from configuration, rejecting duplicate ids, unknown
// kinds and unparsable URLs.
func New(entries []config.Endpoint) (*Registry, error) {
	byID := make(map[string]Endpoint, len(entries))
	for _, e := range entries {
		if e.ID == "" {
			return nil, fmt.Errorf("endpoint id is required")
		}
		if _, dup := byID[e.ID]; dup {
			return nil, fmt.Errorf("duplicate endpoint id %q", e.ID)
		}
		kind, ok := domain.ParseKind(e.Kind)
		if !ok {
			return nil, fmt.Errorf("endpoint %q: unsupported kind %q", e.ID, e.Kind)
		}
		u, err := url.Parse(e.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("endpoint %q: invalid url %q", e.ID, e.URL)
		}
		header := e.APIKeyHeader
		if header == "" {
			header = DefaultAPIKeyHeader
		}
		byID[e.ID] = Endpoint{
			ID:           e.ID,
			Kind:         kind,
			URL:          u,
			APIKey:       e.APIKey,
			APIKeyHeader: header,
		}
	}
	return &Registry{byID: byID}, nil
}

// Resolve returns the endpoint configured for sourceID.
func (r *Registry) Resolve(sourceID string) (Endpoint, error) {
	ep, ok := r.byID[sourceID]
	if !ok {
		return Endpoint{}, &qerrors.UnknownSourceError{Source: sourceID}
	}
	return ep, nil
}

// ResolveFor resolves the request's source and checks it serves the
// request's kind.
func (r *Registry) ResolveFor(req domain.Request) (Endpoint, error) {
	ep, err := r.Resolve(req.Source())
	if err != nil {
		return Endpoint{}, err
	}
	if ep.Kind != req.Kind() {
		return Endpoint{}, &qerrors.UnknownSourceError{
			Source: req.Source(),
			Detail: fmt.Sprintf("serves %s, not %s", ep.Kind, req.Kind()),
		}
	}
	return ep, nil
}

// Sources lists configured source ids in sorted order.
func (r *Registry) Sources() []string {
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
