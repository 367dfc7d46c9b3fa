// Package client implements the remote side of the fetchr protocol: a Fetcher that reaches
// services over HTTP through the middleware provided by the fetchr package.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"

	"github.com/mdrohmann/fluxible-plugin-fetchr/fetchr"
	"github.com/mdrohmann/fluxible-plugin-fetchr/logging"
	"github.com/mdrohmann/fluxible-plugin-fetchr/servicedef"
)

// Options configures a RemoteFetcher.
type Options struct {
	// BaseURL is the scheme and host of the server, e.g. "http://localhost:8111".
	BaseURL string
	// BasePath is where the middleware is mounted on that server.
	BasePath string
	// DeviceContext is sent along with every request.
	DeviceContext ldvalue.Value
	HTTPClient    *http.Client
	Logger        logging.Logger
}

// RemoteFetcher implements fetchr.Fetcher by calling the fetchr middleware over HTTP. Reads
// are sent as GET requests so that they can be cached; the other operations are sent as a
// single-item POST batch.
//
// Read params travel as query parameters, so the service sees every param value as a string:
// {"id":5} arrives as {"id":"5"}. Params of the other operations keep their JSON types.
type RemoteFetcher struct {
	endpointURL   string
	deviceContext ldvalue.Value
	httpClient    *http.Client
	logger        logging.Logger
}

func NewRemoteFetcher(opts Options) *RemoteFetcher {
	f := &RemoteFetcher{
		endpointURL:   strings.TrimSuffix(opts.BaseURL, "/") + fetchr.NormalizeBasePath(opts.BasePath),
		deviceContext: opts.DeviceContext,
		httpClient:    opts.HTTPClient,
		logger:        opts.Logger,
	}
	if f.httpClient == nil {
		f.httpClient = http.DefaultClient
	}
	if f.logger == nil {
		f.logger = logging.NullLogger()
	}
	return f
}

// EndpointURL returns the URL that batches are posted to.
func (f *RemoteFetcher) EndpointURL() string {
	return f.endpointURL
}

func (f *RemoteFetcher) Fetch(ctx context.Context, call fetchr.Call) (fetchr.Result, error) {
	if call.Operation == servicedef.OperationRead {
		return f.read(ctx, call)
	}
	return f.post(ctx, call)
}

func (f *RemoteFetcher) read(ctx context.Context, call fetchr.Call) (fetchr.Result, error) {
	query := url.Values{}
	if call.Params.Type() == ldvalue.ObjectType {
		for _, key := range call.Params.Keys() {
			query.Set(key, queryValue(call.Params.GetByKey(key)))
		}
	}
	if f.deviceContext.Type() == ldvalue.ObjectType && f.deviceContext.Count() > 0 {
		query.Set(servicedef.ContextQueryParam, f.deviceContext.JSONString())
	}
	target := f.endpointURL + servicedef.ResourcePathSegment + url.PathEscape(call.Resource)
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fetchr.Result{}, err
	}
	status, data, err := f.do(req)
	if err != nil {
		return fetchr.Result{}, err
	}
	if (status < 200 || status >= 300) && !isReadResponse(data) {
		return fetchr.Result{}, errorFromResponse(call.Resource, status, data)
	}

	var resp servicedef.ReadResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return fetchr.Result{}, errors.Wrapf(err, "malformed response from %s", target)
	}
	result := fetchr.Result{Data: resp.Data}
	if resp.Meta != nil {
		result.Meta = *resp.Meta
	}
	return result, nil
}

func (f *RemoteFetcher) post(ctx context.Context, call fetchr.Call) (fetchr.Result, error) {
	batch := servicedef.BatchRequest{
		Requests: map[string]servicedef.RequestItem{
			servicedef.DefaultRequestKey: {
				Resource:  call.Resource,
				Operation: call.Operation,
				Params:    call.Params,
				Body:      call.Body,
				Config:    call.Config,
			},
		},
		Context: f.deviceContext,
	}
	body, err := json.Marshal(batch)
	if err != nil {
		return fetchr.Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpointURL, bytes.NewBuffer(body))
	if err != nil {
		return fetchr.Result{}, err
	}
	req.Header.Add("Content-Type", "application/json")
	status, data, err := f.do(req)
	if err != nil {
		return fetchr.Result{}, err
	}
	if status < 200 || status >= 300 {
		return fetchr.Result{}, errorFromResponse(call.Resource, status, data)
	}

	var resp servicedef.BatchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return fetchr.Result{}, errors.Wrapf(err, "malformed response from %s", f.endpointURL)
	}
	item, ok := resp[servicedef.DefaultRequestKey]
	if !ok {
		return fetchr.Result{}, errors.Newf("response from %s did not contain a result for %q",
			f.endpointURL, servicedef.DefaultRequestKey)
	}
	if item.Error != nil {
		return fetchr.Result{}, errorFromInfo(call.Resource, *item.Error)
	}
	result := fetchr.Result{Data: item.Data}
	if item.Meta != nil {
		result.Meta = *item.Meta
	}
	return result, nil
}

func (f *RemoteFetcher) do(req *http.Request) (int, []byte, error) {
	f.logger.Printf("Sending %s request to %s", req.Method, req.URL)
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return 0, nil, errors.Wrapf(err, "%s request to %s failed", req.Method, req.URL)
	}
	var data []byte
	if resp.Body != nil {
		data, err = io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return 0, nil, errors.Wrapf(err, "error reading response from %s", req.URL)
		}
	}
	f.logger.Printf("Received HTTP %d from %s", resp.StatusCode, req.URL)
	return resp.StatusCode, data, nil
}

// isReadResponse reports whether a GET response body carries data rather than an error. A
// service can choose any response status for a successful read through its metadata, so the
// status alone does not tell the two apart.
func isReadResponse(data []byte) bool {
	v := ldvalue.Parse(data)
	if v.Type() != ldvalue.ObjectType || !v.GetByKey("statusCode").IsNull() {
		return false
	}
	for _, key := range v.Keys() {
		if key == "data" {
			return true
		}
	}
	return false
}

func errorFromResponse(resource string, status int, data []byte) error {
	var info servicedef.ErrorInfo
	if len(data) > 0 && json.Unmarshal(data, &info) == nil && info.StatusCode != 0 {
		return errorFromInfo(resource, info)
	}
	return &fetchr.StatusError{StatusCode: status, Message: strings.TrimSpace(string(data))}
}

func errorFromInfo(resource string, info servicedef.ErrorInfo) error {
	if info.Reason == servicedef.ErrorReasonServiceNotFound {
		return &fetchr.ServiceNotFoundError{Name: resource}
	}
	return &fetchr.StatusError{StatusCode: info.StatusCode, Message: info.Message}
}

func queryValue(v ldvalue.Value) string {
	if v.IsString() {
		return v.StringValue()
	}
	return v.JSONString()
}
