package httpclient

import (
	"net/http"
	"time"

	"genflow/internal/shared/logging"
)

// DefaultTimeout applies when the caller passes a non-positive timeout.
const DefaultTimeout = 30 * time.Second

// New returns an http.Client for calls to the knowledge and agent services.
//
// It respects HTTP(S)_PROXY/ALL_PROXY/NO_PROXY by default, but may bypass
// unreachable loopback proxies so a locally hosted service stays reachable.
func New(timeout time.Duration, logger logging.Logger) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: Transport(logger),
	}
}

// Transport returns an http.Transport clone with the proxy policy applied.
func Transport(logger logging.Logger) *http.Transport {
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return &http.Transport{Proxy: proxyFunc(logger)}
	}

	transport := base.Clone()
	transport.Proxy = proxyFunc(logger)
	return transport
}
