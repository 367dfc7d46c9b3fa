// Package servicedef contains the JSON shapes that cross process boundaries: the dehydrated
// plugin and context state, the response metadata that services attach to their results, and
// the request/response envelopes spoken by the fetchr HTTP middleware.
package servicedef
