// Package kv is an example fetchr service that stores JSON values by id.
package kv

import (
	"context"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"

	"github.com/mdrohmann/fluxible-plugin-fetchr/fetchr"
	"github.com/mdrohmann/fluxible-plugin-fetchr/servicedef"
)

// DefaultName is the resource name used when none is given to New.
const DefaultName = "kv"

const idParam = "id"

// Service exposes a Store through the four fetchr verbs. Items are addressed by the "id"
// param; Create generates one when it is absent.
type Service struct {
	name  string
	store Store
}

var _ fetchr.Service = (*Service)(nil)

func New(name string, store Store) *Service {
	if name == "" {
		name = DefaultName
	}
	return &Service{name: name, store: store}
}

func (s *Service) Name() string { return s.name }

func (s *Service) Create(ctx context.Context, req fetchr.Request) (fetchr.Result, error) {
	if req.Body.IsNull() {
		return fetchr.Result{}, fetchr.NewStatusError(http.StatusBadRequest, "create requires a body")
	}
	id := idOf(req)
	if id == "" {
		id = uuid.New().String()
	}
	if err := s.store.Put(ctx, id, req.Body); err != nil {
		return fetchr.Result{}, err
	}
	return fetchr.Result{
		Data: item(id, req.Body),
		Meta: servicedef.ResponseMeta{StatusCode: http.StatusCreated},
	}, nil
}

func (s *Service) Read(ctx context.Context, req fetchr.Request) (fetchr.Result, error) {
	id, err := requireID(req)
	if err != nil {
		return fetchr.Result{}, err
	}
	v, err := s.store.Get(ctx, id)
	if err != nil {
		return fetchr.Result{}, notFoundStatus(id, err)
	}
	return fetchr.Result{
		Data: item(id, v),
		Meta: servicedef.ResponseMeta{Headers: map[string]string{"Cache-Control": "private"}},
	}, nil
}

func (s *Service) Update(ctx context.Context, req fetchr.Request) (fetchr.Result, error) {
	id, err := requireID(req)
	if err != nil {
		return fetchr.Result{}, err
	}
	if req.Body.IsNull() {
		return fetchr.Result{}, fetchr.NewStatusError(http.StatusBadRequest, "update requires a body")
	}
	if _, err := s.store.Get(ctx, id); err != nil {
		return fetchr.Result{}, notFoundStatus(id, err)
	}
	if err := s.store.Put(ctx, id, req.Body); err != nil {
		return fetchr.Result{}, err
	}
	return fetchr.Result{Data: item(id, req.Body)}, nil
}

func (s *Service) Delete(ctx context.Context, req fetchr.Request) (fetchr.Result, error) {
	id, err := requireID(req)
	if err != nil {
		return fetchr.Result{}, err
	}
	deleted, err := s.store.Delete(ctx, id)
	if err != nil {
		return fetchr.Result{}, err
	}
	return fetchr.Result{
		Data: ldvalue.ObjectBuild().Set("id", ldvalue.String(id)).Set("deleted", ldvalue.Bool(deleted)).Build(),
	}, nil
}

func idOf(req fetchr.Request) string {
	v := req.Params.GetByKey(idParam)
	if v.IsString() {
		return v.StringValue()
	}
	if v.IsNull() {
		return ""
	}
	return v.JSONString()
}

func requireID(req fetchr.Request) (string, error) {
	id := idOf(req)
	if id == "" {
		return "", fetchr.NewStatusError(http.StatusBadRequest, "%q param is required", idParam)
	}
	return id, nil
}

func notFoundStatus(id string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return fetchr.NewStatusError(http.StatusNotFound, "item %q not found", id)
	}
	return err
}

func item(id string, value ldvalue.Value) ldvalue.Value {
	return ldvalue.ObjectBuild().Set("id", ldvalue.String(id)).Set("value", value).Build()
}
