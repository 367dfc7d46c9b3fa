package servicedef

import "gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"

const (
	PluginStateBasePathKey       = "basePath"
	ContextStateDeviceContextKey = "deviceContext"
)

// PluginState is the dehydrated form of a plugin instance's configuration.
type PluginState struct {
	BasePath string `json:"basePath"`
}

// ContextState is the dehydrated form of one context plugin's configuration. DeviceContext is
// an opaque JSON object describing the caller, e.g. {"device":"tablet"}.
type ContextState struct {
	DeviceContext ldvalue.Value `json:"deviceContext"`
}

// AsValue converts the state to a JSON value, the form that Rehydrate accepts.
func (s PluginState) AsValue() ldvalue.Value {
	return ldvalue.ObjectBuild().Set(PluginStateBasePathKey, ldvalue.String(s.BasePath)).Build()
}

// AsValue converts the state to a JSON value, the form that Rehydrate accepts.
func (s ContextState) AsValue() ldvalue.Value {
	return ldvalue.ObjectBuild().Set(ContextStateDeviceContextKey, s.DeviceContext).Build()
}
