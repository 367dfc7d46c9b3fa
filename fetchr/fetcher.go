package fetchr

import (
	"context"
	"net/http"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"

	"github.com/mdrohmann/fluxible-plugin-fetchr/servicedef"
)

// Call is one service invocation as seen by a Fetcher.
type Call struct {
	Operation servicedef.Operation
	Resource  string
	Params    ldvalue.Value
	Body      ldvalue.Value
	Config    ldvalue.Value
}

// Fetcher dispatches calls to services, either in process or over HTTP.
type Fetcher interface {
	Fetch(ctx context.Context, call Call) (Result, error)
}

// LocalFetcher dispatches calls directly to the services in a Registry. Errors returned by
// services are passed through unchanged. Params default to an empty object and must be an
// object if given; Config is passed through as it is.
type LocalFetcher struct {
	Registry      *Registry
	DeviceContext ldvalue.Value
	HTTPRequest   *http.Request
}

func (f LocalFetcher) Fetch(ctx context.Context, call Call) (Result, error) {
	s, err := f.Registry.Lookup(call.Resource)
	if err != nil {
		return Result{}, err
	}
	params := call.Params
	if params.IsNull() {
		params = ldvalue.ObjectBuild().Build()
	} else if params.Type() != ldvalue.ObjectType {
		return Result{}, NewStatusError(http.StatusBadRequest, "params for %q must be a JSON object", call.Resource)
	}
	req := Request{
		Resource:      call.Resource,
		Operation:     call.Operation,
		Params:        params,
		Config:        call.Config,
		DeviceContext: objectOrEmpty(f.DeviceContext),
		HTTPRequest:   f.HTTPRequest,
	}
	if call.Operation.HasBody() {
		req.Body = call.Body
	}
	return Invoke(ctx, s, req)
}

func objectOrEmpty(v ldvalue.Value) ldvalue.Value {
	if v.Type() == ldvalue.ObjectType {
		return v
	}
	return ldvalue.ObjectBuild().Build()
}
