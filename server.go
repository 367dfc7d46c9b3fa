package main

import (
	"net/http"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"

	"github.com/mdrohmann/fluxible-plugin-fetchr/app"
	"github.com/mdrohmann/fluxible-plugin-fetchr/config"
	"github.com/mdrohmann/fluxible-plugin-fetchr/logging"
	"github.com/mdrohmann/fluxible-plugin-fetchr/plugin"
	"github.com/mdrohmann/fluxible-plugin-fetchr/servicedef"
	"github.com/mdrohmann/fluxible-plugin-fetchr/services/kv"
)

// statePath serves the dehydrated application and context state that a client needs to
// reach this server's services.
const statePath = "/state"

type demoServer struct {
	host    *app.App
	fetchr  *plugin.Plugin
	handler http.Handler
}

func newDemoServer(cfg *config.Config, store kv.Store, logger logging.Logger) (*demoServer, error) {
	filters, err := cfg.Fetchr.Filters()
	if err != nil {
		return nil, err
	}
	fp := plugin.New(plugin.Options{
		BasePath: cfg.Fetchr.Path,
		Expose:   filters.AsFilter,
		Logger:   logger,
	})
	if err := fp.RegisterService(kv.New(kv.DefaultName, store)); err != nil {
		return nil, err
	}

	host := app.New()
	if err := host.Plug(fp); err != nil {
		return nil, err
	}

	s := &demoServer{host: host, fetchr: fp}
	mux := http.NewServeMux()
	mux.HandleFunc(statePath, s.serveState)
	s.handler = fp.Middleware()(mux)
	return s, nil
}

func (s *demoServer) serveState(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	deviceContext := ldvalue.Null()
	if raw := req.URL.Query().Get(servicedef.ContextQueryParam); raw != "" {
		deviceContext = ldvalue.Parse([]byte(raw))
	}
	c := s.host.CreateContext(app.ContextOptions{Request: req, DeviceContext: deviceContext})
	state := ldvalue.ObjectBuild().
		Set("app", s.host.Dehydrate()).
		Set("context", c.Dehydrate()).
		Build()
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(state.JSONString()))
}
