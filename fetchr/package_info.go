// Package fetchr contains the service side of the data-fetching layer: the Service contract
// that application code implements, the Registry that holds services by name, the Fetcher
// abstraction through which calls are dispatched, and the HTTP middleware that lets remote
// callers reach registered services.
//
// A call flows as follows: a caller names a resource and an Operation, a Fetcher resolves the
// resource to a Service (locally through the Registry, or remotely through the middleware),
// and the Service returns a Result holding data plus optional ResponseMeta.
package fetchr
