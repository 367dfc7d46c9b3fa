// Package app is a minimal host for plugins. It reproduces the lifecycle a unidirectional-flow
// application framework offers its plugins: plugins are attached to an App once, a Context is
// created per request or interaction, each plugin contributes a ContextPlugin to that Context,
// and every ContextPlugin may install things on the Context's ActionContext. Plugin and context
// state can be dehydrated on the server and rehydrated on the client.
package app

import (
	"net/http"
	"sync"

	"github.com/cockroachdb/errors"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

// ErrDuplicatePlugin is returned by Plug when a plugin with the same name is already attached.
var ErrDuplicatePlugin = errors.New("plugin already plugged")

// Plugin is an application-level extension.
type Plugin interface {
	Name() string
	PlugContext(opts ContextOptions) ContextPlugin
}

// ContextPlugin is a plugin's per-context part.
type ContextPlugin interface {
	PlugActionContext(ac *ActionContext)
}

// Dehydrator is implemented by plugins and context plugins that have state worth handing
// from the server to the client.
type Dehydrator interface {
	DehydrateState() ldvalue.Value
	Rehydrate(state ldvalue.Value) error
}

// ContextOptions describes the interaction a Context is created for.
type ContextOptions struct {
	Request       *http.Request
	DeviceContext ldvalue.Value
}

type App struct {
	plugins []Plugin
	lock    sync.Mutex
}

func New() *App {
	return &App{}
}

// Plug attaches a plugin. Plugins are consulted in the order they were plugged.
func (a *App) Plug(p Plugin) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	for _, existing := range a.plugins {
		if existing.Name() == p.Name() {
			return errors.Wrapf(ErrDuplicatePlugin, "plugin %q", p.Name())
		}
	}
	a.plugins = append(a.plugins, p)
	return nil
}

// Plugin returns the plugin with the given name, or nil.
func (a *App) Plugin(name string) Plugin {
	for _, p := range a.pluginList() {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// CreateContext creates a Context and asks every plugin for its ContextPlugin.
func (a *App) CreateContext(opts ContextOptions) *Context {
	c := &Context{}
	for _, p := range a.pluginList() {
		c.plugins = append(c.plugins, namedContextPlugin{name: p.Name(), plugin: p.PlugContext(opts)})
	}
	return c
}

// Dehydrate collects the state of every plugin that has any, keyed by plugin name.
func (a *App) Dehydrate() ldvalue.Value {
	b := ldvalue.ObjectBuild()
	for _, p := range a.pluginList() {
		if d, ok := p.(Dehydrator); ok {
			b.Set(p.Name(), d.DehydrateState())
		}
	}
	return b.Build()
}

// Rehydrate hands each plugin its part of a state produced by Dehydrate. Plugins with no entry
// are left alone.
func (a *App) Rehydrate(state ldvalue.Value) error {
	for _, p := range a.pluginList() {
		if err := rehydrateOne(p.Name(), p, state); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) pluginList() []Plugin {
	a.lock.Lock()
	defer a.lock.Unlock()
	return append([]Plugin(nil), a.plugins...)
}

type namedContextPlugin struct {
	name   string
	plugin ContextPlugin
}

// Context is the scope of one request or interaction.
type Context struct {
	plugins       []namedContextPlugin
	actionContext *ActionContext
	actionOnce    sync.Once
}

// ActionContext returns the Context's action context, creating it and letting every context
// plugin install itself the first time it is called.
func (c *Context) ActionContext() *ActionContext {
	c.actionOnce.Do(func() {
		ac := NewActionContext()
		for _, p := range c.plugins {
			p.plugin.PlugActionContext(ac)
		}
		c.actionContext = ac
	})
	return c.actionContext
}

// Plugin returns the context plugin contributed by the named plugin, or nil.
func (c *Context) Plugin(name string) ContextPlugin {
	for _, p := range c.plugins {
		if p.name == name {
			return p.plugin
		}
	}
	return nil
}

func (c *Context) Dehydrate() ldvalue.Value {
	b := ldvalue.ObjectBuild()
	for _, p := range c.plugins {
		if d, ok := p.plugin.(Dehydrator); ok {
			b.Set(p.name, d.DehydrateState())
		}
	}
	return b.Build()
}

func (c *Context) Rehydrate(state ldvalue.Value) error {
	for _, p := range c.plugins {
		if err := rehydrateOne(p.name, p.plugin, state); err != nil {
			return err
		}
	}
	return nil
}

func rehydrateOne(name string, target interface{}, state ldvalue.Value) error {
	d, ok := target.(Dehydrator)
	if !ok {
		return nil
	}
	sub := state.GetByKey(name)
	if sub.IsNull() {
		return nil
	}
	return errors.Wrapf(d.Rehydrate(sub), "rehydrating plugin %q", name)
}

// ActionContext is where context plugins install the interfaces that application actions use.
// It is safe for concurrent use.
type ActionContext struct {
	values map[string]interface{}
	lock   sync.RWMutex
}

// NewActionContext creates an empty action context. Contexts create their own; this is for
// callers that drive context plugins directly.
func NewActionContext() *ActionContext {
	return &ActionContext{values: make(map[string]interface{})}
}

func (ac *ActionContext) Set(key string, value interface{}) {
	ac.lock.Lock()
	ac.values[key] = value
	ac.lock.Unlock()
}

func (ac *ActionContext) Get(key string) (interface{}, bool) {
	ac.lock.RLock()
	v, ok := ac.values[key]
	ac.lock.RUnlock()
	return v, ok
}
