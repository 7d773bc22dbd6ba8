package optimize

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestAdapter_ReturnsOutcomesInTaskOrder(t *testing.T) {
	a := &Adapter{Optimizer: Func(func(ctx context.Context, markup string, _ Classification, _ string) (string, error) {
		if markup == "<a>" {
			time.Sleep(20 * time.Millisecond)
		}
		return "rewritten:" + markup, nil
	})}
	out := a.Run(context.Background(), []Task{{Token: "bg-01", HTML: "<a>"}, {Token: "bg-02", HTML: "<b>"}})
	if len(out) != 2 {
		t.Fatalf("got %d outcomes", len(out))
	}
	if out[0].Token != "bg-01" || out[0].HTML != "rewritten:<a>" {
		t.Fatalf("unexpected first outcome: %+v", out[0])
	}
	if out[1].Token != "bg-02" || out[1].HTML != "rewritten:<b>" {
		t.Fatalf("unexpected second outcome: %+v", out[1])
	}
}

func TestAdapter_TimeoutFallsBackWithoutCancellingSiblings(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	a := &Adapter{
		Timeout: 50 * time.Millisecond,
		Optimizer: Func(func(ctx context.Context, markup string, _ Classification, _ string) (string, error) {
			if markup == "slow" {
				// Ignores ctx on purpose; the adapter must abandon it.
				<-block
			}
			return "ok", nil
		}),
	}
	started := time.Now()
	out := a.Run(context.Background(), []Task{{Token: "t1", HTML: "slow"}, {Token: "t2", HTML: "fast"}})
	if time.Since(started) > 2*time.Second {
		t.Fatalf("run did not respect timeout")
	}
	if !out[0].Failed() || out[0].HTML != "" {
		t.Fatalf("slow task should fall back to empty: %+v", out[0])
	}
	if !errors.Is(out[0].Err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", out[0].Err)
	}
	if out[1].Failed() || out[1].HTML != "ok" {
		t.Fatalf("sibling should succeed: %+v", out[1])
	}
}

func TestAdapter_ErrorsAndBlankResultsBecomeEmptyFallback(t *testing.T) {
	a := &Adapter{Optimizer: Func(func(ctx context.Context, markup string, _ Classification, _ string) (string, error) {
		switch markup {
		case "err":
			return "", errors.New("transport down")
		case "blank":
			return "   ", nil
		case "panic":
			panic("boom")
		}
		return markup, nil
	})}
	out := a.Run(context.Background(), []Task{{Token: "a", HTML: "err"}, {Token: "b", HTML: "blank"}, {Token: "c", HTML: "panic"}, {Token: "d", HTML: "fine"}})
	for i := 0; i < 3; i++ {
		if !out[i].Failed() || out[i].HTML != "" || out[i].Error == "" {
			t.Fatalf("task %d should have failed with empty html: %+v", i, out[i])
		}
	}
	if !errors.Is(out[1].Err, ErrEmptyRewrite) {
		t.Fatalf("blank rewrite should be ErrEmptyRewrite, got %v", out[1].Err)
	}
	if out[3].HTML != "fine" {
		t.Fatalf("healthy task should pass through: %+v", out[3])
	}
}

func TestAdapter_RespectsConcurrencyLimit(t *testing.T) {
	var inFlight, peak int32
	a := &Adapter{
		Concurrency: 2,
		Optimizer: Func(func(ctx context.Context, markup string, _ Classification, _ string) (string, error) {
			n := atomic.AddInt32(&inFlight, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			return markup, nil
		}),
	}
	tasks := make([]Task, 8)
	for i := range tasks {
		tasks[i] = Task{Token: "t", HTML: "x"}
	}
	a.Run(context.Background(), tasks)
	if got := atomic.LoadInt32(&peak); got > 2 {
		t.Fatalf("peak concurrency %d exceeds limit 2", got)
	}
}

func TestAdapter_NilOptimizerFails(t *testing.T) {
	out := (&Adapter{}).Run(context.Background(), []Task{{Token: "x", HTML: "<p>"}})
	if !out[0].Failed() {
		t.Fatalf("expected failure without optimizer")
	}
}

func TestAdapter_LimiterWaitHonoursTimeout(t *testing.T) {
	lim := rate.NewLimiter(rate.Every(time.Hour), 1)
	lim.Allow() // drain the only token
	a := &Adapter{Optimizer: Static{}, Limiter: lim, Timeout: 20 * time.Millisecond}
	out := a.Run(context.Background(), []Task{{Token: "x", HTML: "<p>"}})
	if !out[0].Failed() {
		t.Fatalf("expected rate-limited task to fail within timeout")
	}
}
