package app

import (
	"net"
	"net/http"
	"time"
)

// newOptimizerHTTPClient returns the HTTP client used for optimizer calls.
// There is no client-wide timeout: every call carries its own deadline from
// the optimization adapter. Connections per host are capped at the optimizer
// concurrency so idle pools stay bounded.
func newOptimizerHTTPClient(concurrency int) *http.Client {
	if concurrency <= 0 {
		concurrency = DefaultOptimizerConcurrency
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConnsPerHost:   concurrency,
		MaxConnsPerHost:       concurrency,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Transport: transport}
}
