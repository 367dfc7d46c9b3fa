package servicedef

import "gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"

const (
	// ResourcePathSegment precedes the resource name in GET read URLs:
	// <basePath>/resource/<name>?<params>
	ResourcePathSegment = "/resource/"

	// ContextQueryParam carries the JSON-encoded device context on GET reads.
	ContextQueryParam = "_context"

	// DefaultRequestKey is the batch key used for single requests.
	DefaultRequestKey = "g0"
)

// BatchRequest is the body of a POST to the middleware.
type BatchRequest struct {
	Requests map[string]RequestItem `json:"requests"`
	Context  ldvalue.Value          `json:"context,omitempty"`
}

// RequestItem describes one service call inside a BatchRequest.
type RequestItem struct {
	Resource  string        `json:"resource"`
	Operation Operation     `json:"operation"`
	Params    ldvalue.Value `json:"params,omitempty"`
	Body      ldvalue.Value `json:"body,omitempty"`
	Config    ldvalue.Value `json:"config,omitempty"`
}

// BatchResponse maps each request key of a BatchRequest to its outcome.
type BatchResponse map[string]ResponseItem

// ResponseItem is the outcome of one service call. Exactly one of Error or Data/Meta is
// meaningful.
type ResponseItem struct {
	Data  ldvalue.Value `json:"data"`
	Meta  *ResponseMeta `json:"meta,omitempty"`
	Error *ErrorInfo    `json:"error,omitempty"`
}

// ReadResponse is the body returned for a GET read.
type ReadResponse struct {
	Data ldvalue.Value `json:"data"`
	Meta *ResponseMeta `json:"meta,omitempty"`
}

// ErrorReasonServiceNotFound marks an ErrorInfo produced because no service with the
// requested name is exposed, as opposed to a service that itself answered 404.
const ErrorReasonServiceNotFound = "service_not_found"

// ErrorInfo describes a failed call in a response body.
type ErrorInfo struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Reason     string `json:"reason,omitempty"`
}
