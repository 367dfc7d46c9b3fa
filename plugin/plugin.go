// Package plugin connects the fetchr data-fetching layer to an application host (see package
// app). A Plugin owns the service registry and the base path at which the fetchr middleware is
// mounted; each application Context gets a ContextPlugin, which installs an ActionService on the
// action context and records the response metadata of every call made through it.
//
// On the server, calls are dispatched to the registry in process. A plugin created with a
// RemoteBaseURL dispatches over HTTP instead, which is how a client that rehydrated the server's
// state reaches the same services.
package plugin

import (
	"net/http"
	"sync"

	"github.com/cockroachdb/errors"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"

	"github.com/mdrohmann/fluxible-plugin-fetchr/app"
	"github.com/mdrohmann/fluxible-plugin-fetchr/fetchr"
	"github.com/mdrohmann/fluxible-plugin-fetchr/logging"
	"github.com/mdrohmann/fluxible-plugin-fetchr/servicedef"
)

// Name is the name the plugin registers itself under in the host.
const Name = "FetchrPlugin"

// Options configures New. The zero value is a server-side plugin mounted at "/api".
type Options struct {
	BasePath string
	// RemoteBaseURL switches the plugin to client mode: services are reached over HTTP at
	// RemoteBaseURL followed by the base path.
	RemoteBaseURL string
	HTTPClient    *http.Client
	// Expose restricts which services the middleware serves; nil serves all of them.
	Expose fetchr.ServiceFilter
	Logger logging.Logger
}

type Plugin struct {
	registry *fetchr.Registry
	opts     Options
	basePath string
	logger   logging.Logger
	lock     sync.RWMutex
}

func New(opts Options) *Plugin {
	p := &Plugin{
		registry: fetchr.NewRegistry(),
		opts:     opts,
		basePath: opts.BasePath,
		logger:   opts.Logger,
	}
	if p.basePath == "" {
		p.basePath = fetchr.DefaultBasePath
	}
	if p.logger == nil {
		p.logger = logging.NullLogger()
	}
	return p
}

func (p *Plugin) Name() string {
	return Name
}

// RegisterService adds a service to the plugin's registry. Registering a second service under
// a name that is already taken fails with fetchr.ErrDuplicateService.
func (p *Plugin) RegisterService(s fetchr.Service) error {
	if err := p.registry.Register(s); err != nil {
		return err
	}
	p.logger.Printf("Registered service %q", s.Name())
	return nil
}

func (p *Plugin) Registry() *fetchr.Registry {
	return p.registry
}

// BasePath returns the configured base path exactly as it was given.
func (p *Plugin) BasePath() string {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.basePath
}

// Middleware returns the fetchr HTTP middleware for this plugin's services. It is mounted at
// the plugin's base path as of each request, so a later Rehydrate moves it.
func (p *Plugin) Middleware() func(http.Handler) http.Handler {
	return fetchr.NewMiddleware(p.registry, fetchr.MiddlewareOptions{
		BasePathFunc: p.BasePath,
		Expose:       p.opts.Expose,
		Logger:       p.logger,
	})
}

func (p *Plugin) Dehydrate() servicedef.PluginState {
	return servicedef.PluginState{BasePath: p.BasePath()}
}

// DehydrateState is Dehydrate in the form the host stores.
func (p *Plugin) DehydrateState() ldvalue.Value {
	return p.Dehydrate().AsValue()
}

// Rehydrate restores the configuration from a value produced by Dehydrate. If the value is not
// usable, it returns a *fetchr.ConfigError and the configuration is unchanged.
func (p *Plugin) Rehydrate(state ldvalue.Value) error {
	basePath, err := parsePluginState(state)
	if err != nil {
		return err
	}
	p.lock.Lock()
	p.basePath = basePath
	p.lock.Unlock()
	return nil
}

func parsePluginState(state ldvalue.Value) (string, error) {
	const field = servicedef.PluginStateBasePathKey
	if state.Type() != ldvalue.ObjectType {
		return "", &fetchr.ConfigError{Field: "plugin state", Reason: "must be a JSON object"}
	}
	v := state.GetByKey(field)
	switch {
	case v.IsNull():
		return "", &fetchr.ConfigError{Field: field, Reason: "is missing"}
	case !v.IsString():
		return "", &fetchr.ConfigError{Field: field, Reason: "must be a string"}
	case v.StringValue() == "":
		return "", &fetchr.ConfigError{Field: field, Reason: "must not be empty"}
	}
	return v.StringValue(), nil
}

// PlugContext creates the ContextPlugin for one application context.
func (p *Plugin) PlugContext(opts app.ContextOptions) app.ContextPlugin {
	return p.NewContextPlugin(opts)
}

// NewContextPlugin is PlugContext with a concrete return type.
func (p *Plugin) NewContextPlugin(opts app.ContextOptions) *ContextPlugin {
	deviceContext := opts.DeviceContext
	if deviceContext.Type() != ldvalue.ObjectType {
		if !deviceContext.IsNull() {
			p.logger.Printf("Ignoring device context that is not a JSON object: %s", deviceContext.JSONString())
		}
		deviceContext = ldvalue.ObjectBuild().Build()
	}
	return &ContextPlugin{
		plugin:        p,
		request:       opts.Request,
		deviceContext: deviceContext,
		meta:          []servicedef.ResponseMeta{},
	}
}

// ContextOf returns the plugin's ContextPlugin within an application context, or nil if the
// plugin was not plugged into that context's App.
func ContextOf(c *app.Context) *ContextPlugin {
	cp, _ := c.Plugin(Name).(*ContextPlugin)
	return cp
}

// ErrNotPlugged is returned when an action context has no fetchr service installed.
var ErrNotPlugged = errors.New("fetchr plugin is not plugged into this action context")
