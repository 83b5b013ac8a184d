package main

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeRequester 记录调用次数和同时在途的最大请求数
type fakeRequester struct {
	delay  func(url string) time.Duration
	status func(url string) int

	inFlight    atomic.Int64
	maxInFlight atomic.Int64
	calls       atomic.Int64

	mu      sync.Mutex
	perHost map[string]int
	order   []string // 完成顺序
}

func newFakeRequester(delay func(string) time.Duration, status func(string) int) *fakeRequester {
	return &fakeRequester{delay: delay, status: status, perHost: make(map[string]int)}
}

func (f *fakeRequester) Get(ctx context.Context, url string) (Response, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	f.calls.Add(1)

	f.mu.Lock()
	f.perHost[url]++
	f.mu.Unlock()

	select {
	case <-time.After(f.delay(url)):
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}

	f.mu.Lock()
	f.order = append(f.order, url)
	f.mu.Unlock()

	code := 200
	if f.status != nil {
		code = f.status(url)
	}
	return Response{StatusCode: code, Proto: "HTTP/1.1"}, nil
}

func (f *fakeRequester) Close() error { return nil }

func constDelay(d time.Duration) func(string) time.Duration {
	return func(string) time.Duration { return d }
}

func TestBenchmarkRequestCount(t *testing.T) {
	hosts := []string{"https://a.example", "https://b.example", "https://c.example"}
	count := 7

	fake := newFakeRequester(constDelay(time.Millisecond), nil)
	outcomes, err := NewBenchmark(fake, 4, time.Second).Run(context.Background(), hosts, count)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(outcomes) != len(hosts)*count {
		t.Fatalf("expected %d outcomes, got %d", len(hosts)*count, len(outcomes))
	}
	if got := fake.calls.Load(); got != int64(len(hosts)*count) {
		t.Fatalf("expected %d requests, got %d", len(hosts)*count, got)
	}
	for _, h := range hosts {
		if fake.perHost[h] != count {
			t.Errorf("expected %d requests to %s, got %d", count, h, fake.perHost[h])
		}
	}

	// 每个 (host, seq) 恰好出现一次
	seen := make(map[string]map[int]bool)
	for _, o := range outcomes {
		if seen[o.Host] == nil {
			seen[o.Host] = make(map[int]bool)
		}
		if seen[o.Host][o.Seq] {
			t.Fatalf("duplicate outcome for %s #%d", o.Host, o.Seq)
		}
		seen[o.Host][o.Seq] = true
	}
}

func TestBenchmarkConcurrencyBound(t *testing.T) {
	hosts := []string{"https://a.example", "https://b.example"}

	for _, workers := range []int{1, 3, 10} {
		fake := newFakeRequester(constDelay(5*time.Millisecond), nil)
		outcomes, err := NewBenchmark(fake, workers, time.Second).Run(context.Background(), hosts, 15)
		if err != nil {
			t.Fatalf("workers=%d: unexpected error: %v", workers, err)
		}
		if len(outcomes) != 30 {
			t.Fatalf("workers=%d: expected 30 outcomes, got %d", workers, len(outcomes))
		}
		if peak := fake.maxInFlight.Load(); peak > int64(workers) {
			t.Fatalf("workers=%d: observed %d requests in flight", workers, peak)
		}
		if fake.inFlight.Load() != 0 {
			t.Fatalf("workers=%d: requests still in flight after Run returned", workers)
		}
	}
}

func TestBenchmarkTimeout(t *testing.T) {
	host := "https://blackhole.example"
	fake := newFakeRequester(constDelay(time.Hour), nil)

	start := time.Now()
	outcomes, err := NewBenchmark(fake, 10, 50*time.Millisecond).Run(context.Background(), []string{host}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("timeout not honoured, run took %s", elapsed)
	}

	stats := Aggregate([]string{host}, outcomes)[0]
	if stats.Total != 2 || stats.Success != 0 || stats.Errors != 2 || stats.Failed != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.Min != 0 || stats.Max != 0 || stats.Avg != 0 {
		t.Fatalf("expected zero latencies, got %+v", stats)
	}
	for _, o := range outcomes {
		if o.Elapsed != 0 || o.StatusCode != 0 || !o.IsError {
			t.Errorf("timed out request should be elapsed=0 status=0 error=true, got %+v", o)
		}
	}
}

func TestBenchmarkErrorStatus(t *testing.T) {
	hosts := []string{"https://ok.example", "https://broken.example"}
	fake := newFakeRequester(constDelay(time.Millisecond), func(url string) int {
		if url == "https://broken.example" {
			return 500
		}
		return 204
	})

	outcomes, err := NewBenchmark(fake, 2, time.Second).Run(context.Background(), hosts, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stats := Aggregate(hosts, outcomes)
	if stats[0].Success != 3 || stats[0].Errors != 0 {
		t.Errorf("unexpected stats for ok host: %+v", stats[0])
	}
	if stats[1].Success != 0 || stats[1].Errors != 3 || stats[1].StatusCodes[500] != 3 {
		t.Errorf("unexpected stats for broken host: %+v", stats[1])
	}
}

func TestBenchmarkReportOrder(t *testing.T) {
	slow, fast := "https://slow.example", "https://fast.example"
	fake := newFakeRequester(func(url string) time.Duration {
		if url == slow {
			return 60 * time.Millisecond
		}
		return time.Millisecond
	}, nil)

	hosts := []string{slow, fast}
	outcomes, err := NewBenchmark(fake, 4, time.Second).Run(context.Background(), hosts, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if fake.order[0] != fast {
		t.Fatalf("expected %s to finish first, completion order %v", fast, fake.order)
	}

	report := FormatReport(Aggregate(hosts, outcomes))
	if strings.Index(report, "Host: "+slow) > strings.Index(report, "Host: "+fast) {
		t.Fatalf("report should follow input order:\n%s", report)
	}
}

func TestBenchmarkCancel(t *testing.T) {
	fake := newFakeRequester(constDelay(time.Hour), nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	outcomes, err := NewBenchmark(fake, 2, time.Hour).Run(ctx, []string{"https://a.example"}, 100)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if outcomes != nil {
		t.Fatalf("expected no outcomes after cancel, got %d", len(outcomes))
	}
	if calls := fake.calls.Load(); calls >= 100 {
		t.Fatalf("expected submission to stop after cancel, got %d calls", calls)
	}
}

func TestNewBenchmarkDefaults(t *testing.T) {
	b := NewBenchmark(newFakeRequester(constDelay(0), nil), 0, 0)
	if b.workers != defaultWorkers {
		t.Errorf("expected %d workers, got %d", defaultWorkers, b.workers)
	}
	if b.timeout != defaultTimeout {
		t.Errorf("expected %s timeout, got %s", defaultTimeout, b.timeout)
	}
}
