package fetchr

import (
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strings"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"

	"github.com/mdrohmann/fluxible-plugin-fetchr/logging"
	"github.com/mdrohmann/fluxible-plugin-fetchr/servicedef"
)

// DefaultBasePath is the path the middleware is mounted at unless configured otherwise.
const DefaultBasePath = "/api"

// MiddlewareOptions configures NewMiddleware.
type MiddlewareOptions struct {
	BasePath string
	// BasePathFunc, if set, is called on every request and takes precedence over BasePath,
	// so the middleware follows a base path that changes after it was created.
	BasePathFunc func() string
	// Expose restricts which services remote callers can reach; nil exposes all of them.
	Expose ServiceFilter
	Logger logging.Logger
}

type middleware struct {
	registry     *Registry
	basePath     string
	basePathFunc func() string
	expose   ServiceFilter
	logger   logging.Logger
}

// NewMiddleware returns an HTTP middleware that serves the fetchr protocol under the base
// path and passes every other request to the next handler:
//
//	GET  <basePath>/resource/<name>?<params>   read one resource
//	POST <basePath>                            run a batch of calls
//
// If next is nil, requests outside the base path get a 404.
func NewMiddleware(registry *Registry, opts MiddlewareOptions) func(http.Handler) http.Handler {
	m := &middleware{
		registry:     registry,
		basePath:     NormalizeBasePath(opts.BasePath),
		basePathFunc: opts.BasePathFunc,
		expose:       opts.Expose,
		logger:       opts.Logger,
	}
	if m.logger == nil {
		m.logger = logging.NullLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			m.serveHTTP(w, req, next)
		})
	}
}

// NormalizeBasePath gives a base path exactly one leading slash and no trailing slash.
func NormalizeBasePath(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return DefaultBasePath
	}
	return "/" + p
}

func (m *middleware) currentBasePath() string {
	if m.basePathFunc != nil {
		return NormalizeBasePath(m.basePathFunc())
	}
	return m.basePath
}

func (m *middleware) serveHTTP(w http.ResponseWriter, req *http.Request, next http.Handler) {
	path := req.URL.Path
	basePath := m.currentBasePath()
	if path != basePath && !strings.HasPrefix(path, basePath+"/") {
		if next == nil {
			m.logger.Printf("Received request for unrecognized URL path %s", path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		next.ServeHTTP(w, req)
		return
	}
	rest := strings.TrimPrefix(path, basePath)

	switch {
	case rest == "" || rest == "/":
		if req.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		m.serveBatch(w, req)
	case strings.HasPrefix(rest, servicedef.ResourcePathSegment):
		if req.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		m.serveRead(w, req, strings.TrimPrefix(rest, servicedef.ResourcePathSegment))
	default:
		m.logger.Printf("Received request for unrecognized URL path %s", path)
		w.WriteHeader(http.StatusNotFound)
	}
}

func (m *middleware) serveRead(w http.ResponseWriter, req *http.Request, name string) {
	query := req.URL.Query()

	deviceContext := ldvalue.Null()
	if raw := query.Get(servicedef.ContextQueryParam); raw != "" {
		deviceContext = ldvalue.Parse([]byte(raw))
		if deviceContext.Type() != ldvalue.ObjectType {
			m.writeError(w, NewStatusError(http.StatusBadRequest, "%s must be a JSON object", servicedef.ContextQueryParam))
			return
		}
	}

	params := ldvalue.ObjectBuild()
	for key, values := range query {
		if key == servicedef.ContextQueryParam || len(values) == 0 {
			continue
		}
		params.Set(key, ldvalue.String(values[0]))
	}

	result, err := m.fetch(req, deviceContext, Call{
		Operation: servicedef.OperationRead,
		Resource:  name,
		Params:    params.Build(),
	})
	if err != nil {
		m.writeError(w, err)
		return
	}

	resp := servicedef.ReadResponse{Data: result.Data}
	status := http.StatusOK
	if !result.Meta.IsEmpty() {
		meta := result.Meta
		resp.Meta = &meta
		meta.ApplyTo(w.Header())
		if IsValidStatusCode(meta.StatusCode) {
			status = meta.StatusCode
		} else if meta.StatusCode != 0 {
			m.logger.Printf("Ignoring invalid status code %d in metadata from service %q", meta.StatusCode, name)
		}
	}
	writeJSON(w, status, resp)
}

func (m *middleware) serveBatch(w http.ResponseWriter, req *http.Request) {
	var body []byte
	if req.Body != nil {
		data, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			m.logger.Printf("Unexpected error trying to read request body: %s", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		body = data
	}

	var batch servicedef.BatchRequest
	if err := json.Unmarshal(body, &batch); err != nil {
		m.writeError(w, NewStatusError(http.StatusBadRequest, "malformed request body: %s", err))
		return
	}
	if len(batch.Requests) == 0 {
		m.writeError(w, NewStatusError(http.StatusBadRequest, "request body contained no requests"))
		return
	}
	if !batch.Context.IsNull() && batch.Context.Type() != ldvalue.ObjectType {
		m.writeError(w, NewStatusError(http.StatusBadRequest, "context must be a JSON object"))
		return
	}

	keys := make([]string, 0, len(batch.Requests))
	for k := range batch.Requests {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	resp := make(servicedef.BatchResponse, len(keys))
	for _, key := range keys {
		item := batch.Requests[key]
		result, err := m.fetch(req, batch.Context, Call{
			Operation: item.Operation,
			Resource:  item.Resource,
			Params:    item.Params,
			Body:      item.Body,
			Config:    item.Config,
		})
		if err != nil {
			resp[key] = servicedef.ResponseItem{Error: m.errorInfo(err)}
			continue
		}
		out := servicedef.ResponseItem{Data: result.Data}
		if !result.Meta.IsEmpty() {
			meta := result.Meta
			out.Meta = &meta
		}
		resp[key] = out
	}
	writeJSON(w, http.StatusOK, resp)
}

func (m *middleware) fetch(req *http.Request, deviceContext ldvalue.Value, call Call) (Result, error) {
	if call.Resource == "" {
		return Result{}, NewStatusError(http.StatusBadRequest, "no resource was specified")
	}
	if m.expose != nil && !m.expose(call.Resource) {
		return Result{}, &ServiceNotFoundError{Name: call.Resource}
	}
	f := LocalFetcher{Registry: m.registry, DeviceContext: deviceContext, HTTPRequest: req}
	return f.Fetch(req.Context(), call)
}

func (m *middleware) errorInfo(err error) *servicedef.ErrorInfo {
	status := StatusCodeOf(err)
	if status >= http.StatusInternalServerError {
		m.logger.Printf("Service call failed: %s", err)
	}
	info := &servicedef.ErrorInfo{StatusCode: status, Message: err.Error()}
	if IsServiceNotFound(err) {
		info.Reason = servicedef.ErrorReasonServiceNotFound
	}
	return info
}

func (m *middleware) writeError(w http.ResponseWriter, err error) {
	info := m.errorInfo(err)
	writeJSON(w, info.StatusCode, info)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
