package plugin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-test-helpers/v2/httphelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"

	"github.com/mdrohmann/fluxible-plugin-fetchr/app"
	"github.com/mdrohmann/fluxible-plugin-fetchr/fetchr"
	"github.com/mdrohmann/fluxible-plugin-fetchr/fetchr/fetchrtest"
	"github.com/mdrohmann/fluxible-plugin-fetchr/servicedef"
)

var (
	emptyObject   = ldvalue.ObjectBuild().Build()
	tabletContext = ldvalue.ObjectBuild().Set("device", ldvalue.String("tablet")).Build()
)

type pluginFixture struct {
	plugin  *Plugin
	app     *app.App
	context *app.Context
	service *ActionService
	echo    *fetchrtest.EchoService
}

func newPluginFixture(t *testing.T) pluginFixture {
	p := New(Options{BasePath: "custom/api"})
	echo := fetchrtest.NewEchoService("test")
	require.NoError(t, p.RegisterService(echo))
	a := app.New()
	require.NoError(t, a.Plug(p))
	c := a.CreateContext(app.ContextOptions{
		Request:       httptest.NewRequest("GET", "/", nil),
		DeviceContext: tabletContext,
	})
	svc, err := ServiceOf(c.ActionContext())
	require.NoError(t, err)
	return pluginFixture{plugin: p, app: a, context: c, service: svc, echo: echo}
}

func (f pluginFixture) meta() []servicedef.ResponseMeta {
	return ContextOf(f.context).ServiceMeta()
}

func TestFactoryUsesDefaultBasePath(t *testing.T) {
	assert.Equal(t, "/api", New(Options{}).BasePath())
}

func TestFactoryUsesConfiguredBasePath(t *testing.T) {
	assert.Equal(t, "custom/api", New(Options{BasePath: "custom/api"}).BasePath())
}

func TestActionContextHasServiceInterface(t *testing.T) {
	f := newPluginFixture(t)
	assert.NotNil(t, f.service)
	assert.Same(t, f.service, mustServiceOf(t, f.context.ActionContext()), "action context is created once")
}

func mustServiceOf(t *testing.T, ac *app.ActionContext) *ActionService {
	s, err := ServiceOf(ac)
	require.NoError(t, err)
	return s
}

func TestServiceOfUnpluggedActionContext(t *testing.T) {
	_, err := ServiceOf(app.NewActionContext())
	assert.Equal(t, ErrNotPlugged, err)
}

func TestReadCallsServiceAndRecordsMeta(t *testing.T) {
	f := newPluginFixture(t)
	result, err := f.service.Read(context.Background(), "test", emptyObject, emptyObject)
	require.NoError(t, err)
	assert.Equal(t, ldvalue.String("read"), result)
	assert.Equal(t, []servicedef.ResponseMeta{
		{Headers: map[string]string{"Cache-Control": "private"}},
	}, f.meta())
	assert.Equal(t, f.meta(), f.service.Meta())
}

func TestCreateCallsServiceWithoutMeta(t *testing.T) {
	f := newPluginFixture(t)
	result, err := f.service.Create(context.Background(), "test", emptyObject, emptyObject)
	require.NoError(t, err)
	assert.Equal(t, ldvalue.String("create"), result)
	assert.Empty(t, f.meta())
	assert.NotNil(t, f.meta())
}

func TestUpdateCallsServiceWithoutMeta(t *testing.T) {
	f := newPluginFixture(t)
	result, err := f.service.Update(context.Background(), "test", emptyObject, emptyObject)
	require.NoError(t, err)
	assert.Equal(t, ldvalue.String("update"), result)
	assert.Empty(t, f.meta())
}

func TestDeleteCallsServiceWithoutMeta(t *testing.T) {
	f := newPluginFixture(t)
	result, err := f.service.Delete(context.Background(), "test", emptyObject)
	require.NoError(t, err)
	assert.Equal(t, ldvalue.String("delete"), result)
	assert.Empty(t, f.meta())
}

func TestServicesReceiveContextAndRequest(t *testing.T) {
	f := newPluginFixture(t)
	body := ldvalue.String("payload")
	_, err := f.service.Create(context.Background(), "test", emptyObject, body)
	require.NoError(t, err)

	reqs := f.echo.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, tabletContext, reqs[0].DeviceContext)
	assert.Equal(t, body, reqs[0].Body)
	require.NotNil(t, reqs[0].HTTPRequest)
	assert.Equal(t, "/", reqs[0].HTTPRequest.URL.Path)
}

func TestMetaAccumulatesInOrder(t *testing.T) {
	p := New(Options{})
	n := 0
	counting := fetchr.ServiceFuncs{
		ServiceName: "counting",
		CreateFunc: func(context.Context, fetchr.Request) (fetchr.Result, error) {
			n++
			return fetchr.Result{Meta: servicedef.ResponseMeta{StatusCode: 200 + n}}, nil
		},
		ReadFunc: func(context.Context, fetchr.Request) (fetchr.Result, error) {
			return fetchr.Result{Data: ldvalue.Bool(true)}, nil
		},
		UpdateFunc: func(context.Context, fetchr.Request) (fetchr.Result, error) { return fetchr.Result{}, nil },
		DeleteFunc: func(context.Context, fetchr.Request) (fetchr.Result, error) { return fetchr.Result{}, nil },
	}
	require.NoError(t, p.RegisterService(counting))
	cp := p.NewContextPlugin(app.ContextOptions{})
	ac := app.NewActionContext()
	cp.PlugActionContext(ac)
	svc := mustServiceOf(t, ac)

	for i := 0; i < 2; i++ {
		_, err := svc.Create(context.Background(), "counting", emptyObject, emptyObject)
		require.NoError(t, err)
		_, err = svc.Read(context.Background(), "counting", emptyObject, emptyObject)
		require.NoError(t, err)
	}
	assert.Equal(t, []servicedef.ResponseMeta{{StatusCode: 201}, {StatusCode: 202}}, cp.ServiceMeta())
}

func TestServiceMetaReturnsACopy(t *testing.T) {
	f := newPluginFixture(t)
	_, err := f.service.Read(context.Background(), "test", emptyObject, emptyObject)
	require.NoError(t, err)

	m := f.meta()
	m[0].Headers["Cache-Control"] = "public"
	assert.Equal(t, "private", f.meta()[0].Headers["Cache-Control"])
}

func TestUnknownServiceIsReturnedAsError(t *testing.T) {
	f := newPluginFixture(t)
	ctx := context.Background()
	calls := map[string]func() (ldvalue.Value, error){
		"create": func() (ldvalue.Value, error) { return f.service.Create(ctx, "nope", emptyObject, emptyObject) },
		"read":   func() (ldvalue.Value, error) { return f.service.Read(ctx, "nope", emptyObject, emptyObject) },
		"update": func() (ldvalue.Value, error) { return f.service.Update(ctx, "nope", emptyObject, emptyObject) },
		"delete": func() (ldvalue.Value, error) { return f.service.Delete(ctx, "nope", emptyObject) },
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			var err error
			require.NotPanics(t, func() { _, err = call() })
			var nf *fetchr.ServiceNotFoundError
			require.True(t, errors.As(err, &nf))
			assert.Equal(t, "nope", nf.Name)
		})
	}
	assert.Empty(t, f.meta())
}

func TestHandlerErrorIsPassedThroughWithoutMeta(t *testing.T) {
	myErr := errors.New("nope")
	p := New(Options{})
	failing := fetchr.ServiceFuncs{
		ServiceName: "failing",
		CreateFunc:  failWithMeta(myErr),
		ReadFunc:    failWithMeta(myErr),
		UpdateFunc:  failWithMeta(myErr),
		DeleteFunc:  failWithMeta(myErr),
	}
	require.NoError(t, p.RegisterService(failing))
	cp := p.NewContextPlugin(app.ContextOptions{})
	ac := app.NewActionContext()
	cp.PlugActionContext(ac)

	result, err := mustServiceOf(t, ac).Read(context.Background(), "failing", emptyObject, emptyObject)
	assert.Equal(t, myErr, err)
	assert.True(t, result.IsNull())
	assert.Empty(t, cp.ServiceMeta())
}

func failWithMeta(err error) fetchr.HandlerFunc {
	return func(context.Context, fetchr.Request) (fetchr.Result, error) {
		return fetchr.Result{Meta: fetchrtest.CacheControlPrivate}, err
	}
}

func TestRegisterServiceTwiceFails(t *testing.T) {
	p := New(Options{})
	require.NoError(t, p.RegisterService(fetchrtest.NewEchoService("test")))
	err := p.RegisterService(fetchrtest.NewEchoService("test"))
	assert.True(t, errors.Is(err, fetchr.ErrDuplicateService))
}

func TestConcurrentCallsRecordEveryMeta(t *testing.T) {
	f := newPluginFixture(t)
	const calls = 50
	var wg sync.WaitGroup
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.Read(context.Background(), "test", emptyObject, emptyObject)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Len(t, f.meta(), calls)
}

func TestGetMiddlewareServesRegisteredServices(t *testing.T) {
	f := newPluginFixture(t)
	mw := f.plugin.Middleware()
	require.NotNil(t, mw)

	w := httptest.NewRecorder()
	mw(nil).ServeHTTP(w, httptest.NewRequest("GET", "/custom/api/resource/test", nil))
	assert.Equal(t, 200, w.Code)
	assert.Equal(t, "private", w.Header().Get("Cache-Control"))
}

func TestMiddlewareFollowsRehydratedBasePath(t *testing.T) {
	f := newPluginFixture(t)
	handler := f.plugin.Middleware()(nil)
	require.NoError(t, f.plugin.Rehydrate(ldvalue.ObjectBuild().Set("basePath", ldvalue.String("/v2")).Build()))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/v2/resource/test", nil))
	assert.Equal(t, 200, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/custom/api/resource/test", nil))
	assert.Equal(t, 404, w.Code)
}

func TestExposeOptionHidesServicesFromMiddleware(t *testing.T) {
	p := New(Options{Expose: func(name string) bool { return false }})
	require.NoError(t, p.RegisterService(fetchrtest.NewEchoService("test")))

	w := httptest.NewRecorder()
	p.Middleware()(nil).ServeHTTP(w, httptest.NewRequest("GET", "/api/resource/test", nil))
	assert.Equal(t, 404, w.Code)
}

func TestDehydrate(t *testing.T) {
	f := newPluginFixture(t)
	assert.Equal(t, servicedef.PluginState{BasePath: "custom/api"}, f.plugin.Dehydrate())

	data, err := json.Marshal(f.plugin.Dehydrate())
	require.NoError(t, err)
	assert.JSONEq(t, `{"basePath":"custom/api"}`, string(data))
}

func TestRehydrate(t *testing.T) {
	f := newPluginFixture(t)
	require.NoError(t, f.plugin.Rehydrate(servicedef.PluginState{BasePath: "custom2/api"}.AsValue()))
	assert.Equal(t, servicedef.PluginState{BasePath: "custom2/api"}, f.plugin.Dehydrate())
	assert.Equal(t, "custom2/api", f.plugin.BasePath())
}

func TestPluginStateRoundTrip(t *testing.T) {
	for _, basePath := range []string{"/api", "custom/api", "/v2/data/"} {
		state := ldvalue.Parse([]byte(`{"basePath":` + ldvalue.String(basePath).JSONString() + `}`))
		p := New(Options{})
		require.NoError(t, p.Rehydrate(state))
		assert.JSONEq(t, state.JSONString(), p.DehydrateState().JSONString())
	}
}

func TestRehydrateRejectsMalformedStateAtomically(t *testing.T) {
	for name, raw := range map[string]string{
		"not an object": `"custom/api"`,
		"missing":       `{}`,
		"null":          `{"basePath":null}`,
		"wrong type":    `{"basePath":3}`,
		"empty":         `{"basePath":""}`,
	} {
		t.Run(name, func(t *testing.T) {
			p := New(Options{BasePath: "custom/api"})
			err := p.Rehydrate(ldvalue.Parse([]byte(raw)))
			var ce *fetchr.ConfigError
			require.True(t, errors.As(err, &ce), "expected ConfigError, got %v", err)
			assert.Equal(t, "custom/api", p.BasePath())
		})
	}
}

func TestContextDehydrateRehydrate(t *testing.T) {
	f := newPluginFixture(t)
	contextPlug := f.plugin.NewContextPlugin(app.ContextOptions{DeviceContext: tabletContext})
	contextPlug.PlugActionContext(f.context.ActionContext())

	require.NoError(t, contextPlug.Rehydrate(servicedef.ContextState{DeviceContext: tabletContext}.AsValue()))
	assert.Equal(t, servicedef.ContextState{DeviceContext: tabletContext}, contextPlug.Dehydrate())

	data, err := json.Marshal(contextPlug.Dehydrate())
	require.NoError(t, err)
	assert.JSONEq(t, `{"deviceContext":{"device":"tablet"}}`, string(data))
}

func TestContextRehydrateReplacesDeviceContext(t *testing.T) {
	p := New(Options{})
	echo := fetchrtest.NewEchoService("test")
	require.NoError(t, p.RegisterService(echo))
	cp := p.NewContextPlugin(app.ContextOptions{DeviceContext: tabletContext})
	phone := ldvalue.ObjectBuild().Set("device", ldvalue.String("phone")).Build()

	require.NoError(t, cp.Rehydrate(ldvalue.ObjectBuild().Set("deviceContext", phone).Build()))
	ac := app.NewActionContext()
	cp.PlugActionContext(ac)
	_, err := mustServiceOf(t, ac).Delete(context.Background(), "test", emptyObject)
	require.NoError(t, err)
	assert.Equal(t, phone, echo.Requests()[0].DeviceContext)
}

func TestContextRehydrateRejectsMalformedStateAtomically(t *testing.T) {
	for name, raw := range map[string]string{
		"not an object": `[]`,
		"missing":       `{}`,
		"wrong type":    `{"deviceContext":"tablet"}`,
	} {
		t.Run(name, func(t *testing.T) {
			cp := New(Options{}).NewContextPlugin(app.ContextOptions{DeviceContext: tabletContext})
			err := cp.Rehydrate(ldvalue.Parse([]byte(raw)))
			var ce *fetchr.ConfigError
			require.True(t, errors.As(err, &ce), "expected ConfigError, got %v", err)
			assert.Equal(t, tabletContext, cp.Dehydrate().DeviceContext)
		})
	}
}

func TestContextDefaultsToEmptyDeviceContext(t *testing.T) {
	cp := New(Options{}).NewContextPlugin(app.ContextOptions{DeviceContext: ldvalue.String("bogus")})
	assert.Equal(t, "{}", cp.Dehydrate().DeviceContext.JSONString())
}

func TestContextsAreIsolated(t *testing.T) {
	p := New(Options{})
	require.NoError(t, p.RegisterService(fetchrtest.NewEchoService("test")))
	phone := ldvalue.ObjectBuild().Set("device", ldvalue.String("phone")).Build()
	a := p.NewContextPlugin(app.ContextOptions{DeviceContext: tabletContext})
	b := p.NewContextPlugin(app.ContextOptions{DeviceContext: phone})
	acA, acB := app.NewActionContext(), app.NewActionContext()
	a.PlugActionContext(acA)
	b.PlugActionContext(acB)

	_, err := mustServiceOf(t, acA).Read(context.Background(), "test", emptyObject, emptyObject)
	require.NoError(t, err)

	assert.Len(t, a.ServiceMeta(), 1)
	assert.Empty(t, b.ServiceMeta())

	require.NoError(t, a.Rehydrate(servicedef.ContextState{DeviceContext: emptyObject}.AsValue()))
	assert.Equal(t, emptyObject, a.Dehydrate().DeviceContext)
	assert.Equal(t, phone, b.Dehydrate().DeviceContext)
}

func TestServerToClientHandoff(t *testing.T) {
	server := newPluginFixture(t)
	httphelpers.WithServer(server.plugin.Middleware()(nil), func(httpServer *httptest.Server) {
		appState, err := json.Marshal(server.app.Dehydrate())
		require.NoError(t, err)
		contextState, err := json.Marshal(server.context.Dehydrate())
		require.NoError(t, err)

		clientPlugin := New(Options{RemoteBaseURL: httpServer.URL, HTTPClient: http.DefaultClient})
		clientApp := app.New()
		require.NoError(t, clientApp.Plug(clientPlugin))
		require.NoError(t, clientApp.Rehydrate(ldvalue.Parse(appState)))
		assert.Equal(t, "custom/api", clientPlugin.BasePath())

		clientContext := clientApp.CreateContext(app.ContextOptions{})
		require.NoError(t, clientContext.Rehydrate(ldvalue.Parse(contextState)))
		svc := mustServiceOf(t, clientContext.ActionContext())

		result, err := svc.Read(context.Background(), "test", emptyObject, emptyObject)
		require.NoError(t, err)
		assert.Equal(t, ldvalue.String("read"), result)
		result, err = svc.Update(context.Background(), "test", emptyObject, ldvalue.Int(1))
		require.NoError(t, err)
		assert.Equal(t, ldvalue.String("update"), result)
		_, err = svc.Create(context.Background(), "missing", emptyObject, emptyObject)
		assert.True(t, fetchr.IsServiceNotFound(err))

		assert.Equal(t, []servicedef.ResponseMeta{fetchrtest.CacheControlPrivate}, ContextOf(clientContext).ServiceMeta())
		reqs := server.echo.Requests()
		require.Len(t, reqs, 2)
		for _, r := range reqs {
			assert.JSONEq(t, tabletContext.JSONString(), r.DeviceContext.JSONString())
		}
	})
}
