package servicedef

import "net/http"

// ResponseMeta is side-channel information a service returns along with its data, such as
// cache directives. The middleware copies Headers onto HTTP responses for GET reads.
type ResponseMeta struct {
	Headers    map[string]string `json:"headers,omitempty"`
	StatusCode int               `json:"statusCode,omitempty"`
}

// IsEmpty is true if the metadata carries nothing worth recording.
func (m ResponseMeta) IsEmpty() bool {
	return len(m.Headers) == 0 && m.StatusCode == 0
}

// Copy returns a ResponseMeta that does not share its header map with m.
func (m ResponseMeta) Copy() ResponseMeta {
	ret := ResponseMeta{StatusCode: m.StatusCode}
	if m.Headers != nil {
		ret.Headers = make(map[string]string, len(m.Headers))
		for k, v := range m.Headers {
			ret.Headers[k] = v
		}
	}
	return ret
}

// ApplyTo sets the metadata headers on an HTTP response header set.
func (m ResponseMeta) ApplyTo(h http.Header) {
	for k, v := range m.Headers {
		h.Set(k, v)
	}
}
