package fetchr

import (
	"context"
	"net/http"

	"github.com/cockroachdb/errors"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"

	"github.com/mdrohmann/fluxible-plugin-fetchr/servicedef"
)

// Request is everything a service receives for one call.
type Request struct {
	Resource  string
	Operation servicedef.Operation
	Params    ldvalue.Value
	Body      ldvalue.Value // only set for create and update
	Config    ldvalue.Value
	// DeviceContext is the caller's opaque context object, e.g. {"device":"tablet"}.
	DeviceContext ldvalue.Value
	// HTTPRequest is the originating request when the call arrived through the middleware
	// or was made on behalf of one; it may be nil.
	HTTPRequest *http.Request
}

// Result is what a service returns on success.
type Result struct {
	Data ldvalue.Value
	Meta servicedef.ResponseMeta
}

// Service is a named CRUD data endpoint.
type Service interface {
	Name() string
	Create(ctx context.Context, req Request) (Result, error)
	Read(ctx context.Context, req Request) (Result, error)
	Update(ctx context.Context, req Request) (Result, error)
	Delete(ctx context.Context, req Request) (Result, error)
}

// Validator is implemented by services that can check their own shape before registration.
type Validator interface {
	Validate() error
}

// HandlerFunc is the signature of one verb handler in ServiceFuncs.
type HandlerFunc func(ctx context.Context, req Request) (Result, error)

// ServiceFuncs builds a Service out of plain functions. All four functions are required;
// Registry.Register rejects a ServiceFuncs with any of them missing.
type ServiceFuncs struct {
	ServiceName string
	CreateFunc  HandlerFunc
	ReadFunc    HandlerFunc
	UpdateFunc  HandlerFunc
	DeleteFunc  HandlerFunc
}

func (s ServiceFuncs) Name() string { return s.ServiceName }

func (s ServiceFuncs) Create(ctx context.Context, req Request) (Result, error) {
	return s.CreateFunc(ctx, req)
}

func (s ServiceFuncs) Read(ctx context.Context, req Request) (Result, error) {
	return s.ReadFunc(ctx, req)
}

func (s ServiceFuncs) Update(ctx context.Context, req Request) (Result, error) {
	return s.UpdateFunc(ctx, req)
}

func (s ServiceFuncs) Delete(ctx context.Context, req Request) (Result, error) {
	return s.DeleteFunc(ctx, req)
}

func (s ServiceFuncs) Validate() error {
	var missing []string
	if s.CreateFunc == nil {
		missing = append(missing, "create")
	}
	if s.ReadFunc == nil {
		missing = append(missing, "read")
	}
	if s.UpdateFunc == nil {
		missing = append(missing, "update")
	}
	if s.DeleteFunc == nil {
		missing = append(missing, "delete")
	}
	if len(missing) > 0 {
		return errors.Newf("service %q has no handler for %v", s.ServiceName, missing)
	}
	return nil
}

// Invoke calls the verb of s that matches req.Operation.
func Invoke(ctx context.Context, s Service, req Request) (Result, error) {
	switch req.Operation {
	case servicedef.OperationCreate:
		return s.Create(ctx, req)
	case servicedef.OperationRead:
		return s.Read(ctx, req)
	case servicedef.OperationUpdate:
		return s.Update(ctx, req)
	case servicedef.OperationDelete:
		return s.Delete(ctx, req)
	default:
		return Result{}, NewStatusError(http.StatusBadRequest, "unsupported operation %q", req.Operation)
	}
}
