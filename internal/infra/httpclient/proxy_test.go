package httpclient

import (
	"net"
	"net/http"
	"sync"
	"testing"
	"time"
)

func resetProxyState(t *testing.T, mode string) {
	t.Helper()
	proxyModeOnce = sync.Once{}
	resolvedProxyMode = proxyModeAuto
	loopbackProxyBypass = sync.Map{}
	loopbackProxyWarned = sync.Map{}
	t.Setenv(ProxyModeEnv, mode)
	for _, key := range []string{"HTTPS_PROXY", "https_proxy", "HTTP_PROXY", "http_proxy", "ALL_PROXY", "all_proxy", "NO_PROXY", "no_proxy"} {
		t.Setenv(key, "")
	}
}

func newRequest(t *testing.T, target string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, target, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	return req
}

func TestLoopbackTargetsGoDirect(t *testing.T) {
	resetProxyState(t, "auto")
	t.Setenv("HTTP_PROXY", "http://proxy.internal:3128")

	proxy, err := proxyFunc(nil)(newRequest(t, "http://localhost:7272/v3/health"))
	if err != nil {
		t.Fatalf("proxy func: %v", err)
	}
	if proxy != nil {
		t.Fatalf("expected direct connection to loopback knowledge service, got %v", proxy)
	}
}

func TestReachableLoopbackProxyIsUsed(t *testing.T) {
	resetProxyState(t, "auto")
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = listener.Close() }()
	t.Setenv("HTTPS_PROXY", "http://"+listener.Addr().String())

	proxy, err := proxyFunc(nil)(newRequest(t, "https://api.codegen.com"))
	if err != nil {
		t.Fatalf("proxy func: %v", err)
	}
	if proxy == nil || proxy.Host != listener.Addr().String() {
		t.Fatalf("expected proxy %s, got %v", listener.Addr(), proxy)
	}
}

func TestUnreachableLoopbackProxyIsBypassed(t *testing.T) {
	resetProxyState(t, "auto")
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := listener.Addr().String()
	_ = listener.Close()
	t.Setenv("HTTPS_PROXY", "http://"+addr)

	proxy, err := proxyFunc(nil)(newRequest(t, "https://api.codegen.com"))
	if err != nil {
		t.Fatalf("proxy func: %v", err)
	}
	if proxy != nil {
		t.Fatalf("expected bypass, got %v", proxy)
	}
}

func TestStrictModeKeepsProxy(t *testing.T) {
	resetProxyState(t, "strict")
	t.Setenv("HTTP_PROXY", "http://127.0.0.1:1")

	proxy, err := proxyFunc(nil)(newRequest(t, "http://r2r.example.com"))
	if err != nil {
		t.Fatalf("proxy func: %v", err)
	}
	if proxy == nil {
		t.Fatal("expected strict mode to return the configured proxy")
	}
}

func TestDirectModeIgnoresProxy(t *testing.T) {
	resetProxyState(t, "direct")
	t.Setenv("HTTP_PROXY", "http://proxy.internal:3128")

	proxy, err := proxyFunc(nil)(newRequest(t, "http://r2r.example.com"))
	if err != nil || proxy != nil {
		t.Fatalf("expected no proxy in direct mode, got %v (%v)", proxy, err)
	}
}

func TestNewAppliesDefaultTimeout(t *testing.T) {
	if got := New(0, nil).Timeout; got != DefaultTimeout {
		t.Fatalf("expected default timeout, got %s", got)
	}
	if got := New(5*time.Second, nil).Timeout; got != 5*time.Second {
		t.Fatalf("expected explicit timeout, got %s", got)
	}
}
