package observability

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewHTTPClient returns an http.Client instrumented with the otelhttp
// transport, so every Resilient Outbound Client call (§4.A) and LLM
// Gateway provider call (§4.G) produces a span without each caller having
// to remember to wrap its own transport.
func NewHTTPClient(base *http.Client) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	rt := base.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	base.Transport = otelhttp.NewTransport(rt)
	return base
}

// headerInjectingTransport sets a fixed set of headers on every outgoing
// request before handing it to next, without disturbing headers the
// caller already set.
type headerInjectingTransport struct {
	next    http.RoundTripper
	headers map[string]string
}

func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	cloned := req.Clone(req.Context())
	for k, v := range t.headers {
		if cloned.Header.Get(k) == "" {
			cloned.Header.Set(k, v)
		}
	}
	return t.next.RoundTrip(cloned)
}

// WithHeaders wraps client's transport so headers are attached to every
// request the client sends, unless the caller already set that header on
// the request. The Resilient Outbound Client uses this to stamp sibling
// calls with the internal-service token (§6) without every expert having
// to set it by hand.
func WithHeaders(client *http.Client, headers map[string]string) *http.Client {
	rt := client.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	client.Transport = &headerInjectingTransport{next: rt, headers: headers}
	return client
}
