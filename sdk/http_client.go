package tutor

import (
	"net"
	"net/http"
	"time"
)

// httpDoer wraps the HTTP client so options can swap it without exposing the
// concrete type.
type httpDoer struct {
	client *http.Client
}

func (d *httpDoer) Do(req *http.Request) (*http.Response, error) {
	return d.client.Do(req)
}

// newDefaultHTTPDoer configures sane transport-level timeouts while keeping
// the overall request lifetime controlled by context deadlines.
//
// http.Client.Timeout is deliberately unset: generation streams are
// long-lived, so per-request deadlines belong to the caller's context.
func newDefaultHTTPDoer() *httpDoer {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ForceAttemptHTTP2:     true,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	}
	return &httpDoer{client: &http.Client{Transport: transport}}
}
