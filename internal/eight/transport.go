package eight

import (
	"net"
	"net/http"
	"time"
)

const (
	DefaultBaseURL = "https://client-api.8slp.net/v1"
	DefaultTimeout = 10 * time.Second
)

// defaultHeaders mimic the vendor's mobile app; the API refuses requests
// without them.
var defaultHeaders = map[string]string{
	"api-key":         "api-key",
	"application-id":  "morphy-app-id",
	"user-agent":      "Eight%20AppStore/11 CFNetwork/808.2.16 Darwin/16.3.0",
	"accept-language": "en-gb",
	"accept":          "*/*",
	"app-version":     "1.10.0",
}

func newTransport() *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          4,
		MaxIdleConnsPerHost:   2,
		ForceAttemptHTTP2:     true,
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &headerTransport{
			base:    newTransport(),
			headers: defaultHeaders,
		},
	}
}

// headerTransport adds the vendor headers to every request that does not
// already carry them.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	return t.base.RoundTrip(req)
}
