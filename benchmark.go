package main

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// ===============================
// 并发调度
// ===============================

// Benchmark 每次运行创建一个，固定大小的 worker 池
type Benchmark struct {
	requester Requester
	workers   int
	timeout   time.Duration
}

// NewBenchmark 创建调度器，workers/timeout 非正数时使用默认值
func NewBenchmark(r Requester, workers int, timeout time.Duration) *Benchmark {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Benchmark{requester: r, workers: workers, timeout: timeout}
}

// Run 对每个 host 发起 count 次请求，同时在途的请求不超过 workers 个。
// 返回全部结果（顺序不确定）；ctx 被取消时返回 ctx.Err()。
func (b *Benchmark) Run(ctx context.Context, hosts []string, count int) ([]RequestOutcome, error) {
	total := len(hosts) * count
	results := make(chan RequestOutcome, total)

	var g errgroup.Group
	g.SetLimit(b.workers)

	logger.Debug("dispatching %d request(s) with %d worker(s)", total, b.workers)

submit:
	for _, host := range hosts {
		for seq := 1; seq <= count; seq++ {
			if ctx.Err() != nil {
				break submit
			}
			g.Go(func() error {
				outcome := measureRequest(ctx, b.requester, host, seq, b.timeout)
				logOutcome(outcome)
				results <- outcome
				return nil
			})
		}
	}

	// 所有请求结束后才开始汇总
	_ = g.Wait()
	close(results)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	outcomes := make([]RequestOutcome, 0, total)
	for o := range results {
		outcomes = append(outcomes, o)
	}
	return outcomes, nil
}

func logOutcome(o RequestOutcome) {
	switch {
	case o.Err != "":
		logger.Debug("[%s #%d] ❌ %s", o.Host, o.Seq, o.Err)
	case o.IsError:
		logger.Debug("[%s #%d] ❌ status %d, %.2fms", o.Host, o.Seq, o.StatusCode, o.Elapsed)
	default:
		logger.Debug("[%s #%d] ✓ status %d, %.2fms [%s]", o.Host, o.Seq, o.StatusCode, o.Elapsed, o.ActualProto)
	}
}
