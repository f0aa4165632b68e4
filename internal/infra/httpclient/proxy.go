package httpclient

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"genflow/internal/shared/logging"

	"golang.org/x/net/http/httpproxy"
)

// ProxyModeEnv selects how outbound requests treat proxy environment
// variables: auto (default), strict, or direct.
const ProxyModeEnv = "GENFLOW_PROXY_MODE"

const proxyDialTimeout = 300 * time.Millisecond

// proxyFromEnvironment re-reads the proxy variables on every call, unlike
// http.ProxyFromEnvironment which caches them for the process lifetime.
func proxyFromEnvironment(req *http.Request) (*url.URL, error) {
	return httpproxy.FromEnvironment().ProxyFunc()(req.URL)
}

type proxyMode uint8

const (
	proxyModeAuto proxyMode = iota
	proxyModeStrict
	proxyModeDirect
)

var (
	resolvedProxyMode proxyMode
	proxyModeOnce     sync.Once

	// keyed by proxy URL; true means the proxy is bypassed
	loopbackProxyBypass sync.Map
	loopbackProxyWarned sync.Map
)

// proxyFunc honours the environment proxy settings except in auto mode,
// where requests to loopback hosts go direct and an unreachable loopback
// proxy is skipped after a single dial probe.
func proxyFunc(logger logging.Logger) func(*http.Request) (*url.URL, error) {
	log := logging.OrNop(logger)

	return func(req *http.Request) (*url.URL, error) {
		mode := currentProxyMode()
		if mode == proxyModeDirect || req == nil || req.URL == nil {
			return nil, nil
		}
		if mode == proxyModeStrict {
			return proxyFromEnvironment(req)
		}
		if isLoopbackHost(req.URL.Hostname()) {
			return nil, nil
		}

		proxyURL, err := proxyFromEnvironment(req)
		if proxyURL == nil || err != nil || !isLoopbackHost(proxyURL.Hostname()) {
			return proxyURL, err
		}

		hostPort, ok := proxyHostPort(proxyURL)
		if !ok {
			return proxyURL, nil
		}

		key := proxyURL.String()
		if bypass, ok := loopbackProxyBypass.Load(key); ok {
			if bypass.(bool) {
				return nil, nil
			}
			return proxyURL, nil
		}

		reachable := dialable(req.Context(), hostPort)
		loopbackProxyBypass.Store(key, !reachable)
		if reachable {
			return proxyURL, nil
		}
		if _, warned := loopbackProxyWarned.LoadOrStore(key, struct{}{}); !warned {
			log.Warn("Proxy %s is unreachable; sending requests directly (set %s=strict to disable).", proxyURL.Redacted(), ProxyModeEnv)
		}
		return nil, nil
	}
}

func currentProxyMode() proxyMode {
	proxyModeOnce.Do(func() {
		switch strings.ToLower(strings.TrimSpace(os.Getenv(ProxyModeEnv))) {
		case "strict":
			resolvedProxyMode = proxyModeStrict
		case "direct", "none", "off":
			resolvedProxyMode = proxyModeDirect
		default:
			resolvedProxyMode = proxyModeAuto
		}
	})
	return resolvedProxyMode
}

func isLoopbackHost(host string) bool {
	host = strings.TrimSpace(host)
	if host == "" {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && (ip.IsLoopback() || ip.IsUnspecified())
}

func proxyHostPort(proxyURL *url.URL) (string, bool) {
	host := strings.TrimSpace(proxyURL.Hostname())
	if host == "" {
		return "", false
	}
	port := proxyURL.Port()
	if port == "" {
		switch strings.ToLower(proxyURL.Scheme) {
		case "", "http":
			port = "80"
		case "https":
			port = "443"
		case "socks5", "socks5h":
			port = "1080"
		default:
			return "", false
		}
	}
	return net.JoinHostPort(host, port), true
}

func dialable(ctx context.Context, hostPort string) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	dialer := net.Dialer{Timeout: proxyDialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", hostPort)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
