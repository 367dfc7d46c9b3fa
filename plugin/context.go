package plugin

import (
	"context"
	"net/http"
	"sync"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"

	"github.com/mdrohmann/fluxible-plugin-fetchr/app"
	"github.com/mdrohmann/fluxible-plugin-fetchr/client"
	"github.com/mdrohmann/fluxible-plugin-fetchr/fetchr"
	"github.com/mdrohmann/fluxible-plugin-fetchr/servicedef"
)

// ServiceKey is the action context key under which the ActionService is installed.
const ServiceKey = "service"

// ContextPlugin is the per-context part of the plugin. It holds the caller's device context
// and the metadata of every successful call made through its ActionService.
//
// Calls may be made from several goroutines at once. Metadata entries are appended as calls
// complete, so concurrent calls are recorded in completion order, not in the order they were
// issued.
type ContextPlugin struct {
	plugin        *Plugin
	request       *http.Request
	deviceContext ldvalue.Value
	meta          []servicedef.ResponseMeta
	lock          sync.Mutex
}

// PlugActionContext installs an ActionService on the action context.
func (c *ContextPlugin) PlugActionContext(ac *app.ActionContext) {
	ac.Set(ServiceKey, &ActionService{owner: c})
}

// ServiceMeta returns the metadata recorded so far, oldest first. It is never nil.
func (c *ContextPlugin) ServiceMeta() []servicedef.ResponseMeta {
	c.lock.Lock()
	defer c.lock.Unlock()
	ret := make([]servicedef.ResponseMeta, 0, len(c.meta))
	for _, m := range c.meta {
		ret = append(ret, m.Copy())
	}
	return ret
}

func (c *ContextPlugin) Dehydrate() servicedef.ContextState {
	c.lock.Lock()
	defer c.lock.Unlock()
	return servicedef.ContextState{DeviceContext: c.deviceContext}
}

// DehydrateState is Dehydrate in the form the host stores.
func (c *ContextPlugin) DehydrateState() ldvalue.Value {
	return c.Dehydrate().AsValue()
}

// Rehydrate restores the device context from a value produced by Dehydrate. If the value is not
// usable, it returns a *fetchr.ConfigError and the device context is unchanged.
func (c *ContextPlugin) Rehydrate(state ldvalue.Value) error {
	const field = servicedef.ContextStateDeviceContextKey
	if state.Type() != ldvalue.ObjectType {
		return &fetchr.ConfigError{Field: "context state", Reason: "must be a JSON object"}
	}
	v := state.GetByKey(field)
	if v.IsNull() {
		return &fetchr.ConfigError{Field: field, Reason: "is missing"}
	}
	if v.Type() != ldvalue.ObjectType {
		return &fetchr.ConfigError{Field: field, Reason: "must be a JSON object"}
	}
	c.lock.Lock()
	c.deviceContext = v
	c.lock.Unlock()
	return nil
}

func (c *ContextPlugin) fetcher() fetchr.Fetcher {
	c.lock.Lock()
	deviceContext := c.deviceContext
	c.lock.Unlock()

	p := c.plugin
	if p.opts.RemoteBaseURL != "" {
		return client.NewRemoteFetcher(client.Options{
			BaseURL:       p.opts.RemoteBaseURL,
			BasePath:      p.BasePath(),
			DeviceContext: deviceContext,
			HTTPClient:    p.opts.HTTPClient,
			Logger:        p.logger,
		})
	}
	return fetchr.LocalFetcher{
		Registry:      p.registry,
		DeviceContext: deviceContext,
		HTTPRequest:   c.request,
	}
}

func (c *ContextPlugin) fetch(ctx context.Context, call fetchr.Call) (ldvalue.Value, error) {
	result, err := c.fetcher().Fetch(ctx, call)
	if err != nil {
		return ldvalue.Null(), err
	}
	if !result.Meta.IsEmpty() {
		c.lock.Lock()
		c.meta = append(c.meta, result.Meta.Copy())
		c.lock.Unlock()
	}
	return result.Data, nil
}

// ActionService is the interface application actions use to call services. Every method
// returns the service's data, or the service's error unchanged; an unknown resource name
// yields a *fetchr.ServiceNotFoundError.
type ActionService struct {
	owner *ContextPlugin
}

// ServiceOf returns the ActionService installed on an action context.
func ServiceOf(ac *app.ActionContext) (*ActionService, error) {
	v, ok := ac.Get(ServiceKey)
	if !ok {
		return nil, ErrNotPlugged
	}
	s, ok := v.(*ActionService)
	if !ok {
		return nil, ErrNotPlugged
	}
	return s, nil
}

func (s *ActionService) Create(ctx context.Context, resource string, params, body ldvalue.Value) (ldvalue.Value, error) {
	return s.owner.fetch(ctx, fetchr.Call{
		Operation: servicedef.OperationCreate,
		Resource:  resource,
		Params:    params,
		Body:      body,
	})
}

func (s *ActionService) Read(ctx context.Context, resource string, params, config ldvalue.Value) (ldvalue.Value, error) {
	return s.owner.fetch(ctx, fetchr.Call{
		Operation: servicedef.OperationRead,
		Resource:  resource,
		Params:    params,
		Config:    config,
	})
}

func (s *ActionService) Update(ctx context.Context, resource string, params, body ldvalue.Value) (ldvalue.Value, error) {
	return s.owner.fetch(ctx, fetchr.Call{
		Operation: servicedef.OperationUpdate,
		Resource:  resource,
		Params:    params,
		Body:      body,
	})
}

func (s *ActionService) Delete(ctx context.Context, resource string, params ldvalue.Value) (ldvalue.Value, error) {
	return s.owner.fetch(ctx, fetchr.Call{
		Operation: servicedef.OperationDelete,
		Resource:  resource,
		Params:    params,
	})
}

// Meta returns the metadata recorded by the owning ContextPlugin.
func (s *ActionService) Meta() []servicedef.ResponseMeta {
	return s.owner.ServiceMeta()
}
