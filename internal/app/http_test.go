package app

import (
	"net/http"
	"reflect"
	"testing"
)

func TestNewOptimizerHTTPClient_Config(t *testing.T) {
	c := newOptimizerHTTPClient(3)
	if c.Timeout != 0 {
		t.Fatalf("per-call deadlines come from the context; client timeout must be zero, got %v", c.Timeout)
	}
	tr, ok := c.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("expected http.Transport")
	}
	if tr.MaxConnsPerHost != 3 || tr.MaxIdleConnsPerHost != 3 {
		t.Fatalf("expected per-host limits of 3, got conns=%d idle=%d", tr.MaxConnsPerHost, tr.MaxIdleConnsPerHost)
	}
	if reflect.ValueOf(http.DefaultTransport).Pointer() == reflect.ValueOf(tr).Pointer() {
		t.Fatalf("transport should not be default")
	}

	if got := newOptimizerHTTPClient(0).Transport.(*http.Transport).MaxConnsPerHost; got != DefaultOptimizerConcurrency {
		t.Fatalf("zero concurrency should use default, got %d", got)
	}
}
