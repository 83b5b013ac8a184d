package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
	"github.com/valyala/fasthttp"
	"golang.org/x/net/http2"
)

// Response 一次 GET 请求拿到的响应信息
type Response struct {
	StatusCode int
	Proto      string        // 实际使用的协议版本（如 HTTP/1.1, HTTP/2.0）
	TTFB       time.Duration // Time To First Byte（等待服务器响应时长）
	Reused     bool          // 是否复用连接
}

// Requester 发起单次 GET 请求，body 读取完毕才返回
type Requester interface {
	Get(ctx context.Context, url string) (Response, error)
	Close() error
}

// newRequester 按配置选择客户端实现
func newRequester(cfg Config) (Requester, error) {
	if cfg.Engine == EngineFastHTTP {
		return newFastHTTPRequester(cfg), nil
	}

	var (
		client *http.Client
		err    error
	)
	switch cfg.Protocol {
	case HTTP1:
		client = createHTTP1Client(cfg.Resolve, cfg.Timeout, cfg.Workers)
	case HTTP2:
		client, err = createHTTP2Client(cfg.Resolve, cfg.Timeout, cfg.Workers)
	case HTTP3:
		client = createHTTP3Client(cfg.Resolve, cfg.Timeout)
	default:
		err = fmt.Errorf("unsupported protocol: %v", cfg.Protocol)
	}
	if err != nil {
		return nil, err
	}
	// 不跟随重定向，每个 (host, seq) 只发一次 GET，3xx 按原样记录
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &httpRequester{client: client, userAgent: cfg.UserAgent}, nil
}

// ===============================
// HTTP 客户端
// ===============================

// pinnedDial 若指定了 ip，则忽略 DNS 直接连接该 ip
func pinnedDial(dialer *net.Dialer, ip string) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if ip == "" {
			return dialer.DialContext(ctx, network, addr)
		}
		_, port, err := net.SplitHostPort(addr)
		if err != nil {
			port = "443"
		}
		return dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
	}
}

// 创建 HTTP/1.1 客户端
func createHTTP1Client(ip string, timeout time.Duration, maxConns int) *http.Client {
	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext: pinnedDial(dialer, ip),
		TLSClientConfig: &tls.Config{
			// 不进行 HTTP/2 ALPN 协商
			NextProtos: []string{"http/1.1"},
		},
		ForceAttemptHTTP2:   false,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: maxConns,
		IdleConnTimeout:     90 * time.Second,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// 创建 HTTP/2 客户端（TLS 下协商 h2，明文 http 仍走 HTTP/1.1）
func createHTTP2Client(ip string, timeout time.Duration, maxConns int) (*http.Client, error) {
	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext: pinnedDial(dialer, ip),
		TLSClientConfig: &tls.Config{
			NextProtos: []string{"h2"},
		},
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: maxConns,
		IdleConnTimeout:     90 * time.Second,
	}
	if err := http2.ConfigureTransport(transport); err != nil {
		return nil, fmt.Errorf("configure http2 transport: %w", err)
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}, nil
}

// 创建 HTTP/3 客户端，只支持 https
func createHTTP3Client(ip string, timeout time.Duration) *http.Client {
	transport := &http3.Transport{
		TLSClientConfig: &tls.Config{},
	}
	if ip != "" {
		transport.Dial = func(ctx context.Context, addr string, tlsCfg *tls.Config, cfg *quic.Config) (*quic.Conn, error) {
			_, port, err := net.SplitHostPort(addr)
			if err != nil {
				port = "443"
			}
			// tlsCfg 中保留了原始域名作为 SNI
			return quic.DialAddrEarly(ctx, net.JoinHostPort(ip, port), tlsCfg, cfg)
		}
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

type httpRequester struct {
	client    *http.Client
	userAgent string
}

func (r *httpRequester) Get(ctx context.Context, url string) (Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Response{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)

	// 使用 httptrace 测量 TTFB
	var (
		start  time.Time
		ttfb   time.Duration
		reused bool
	)
	trace := &httptrace.ClientTrace{
		GotConn: func(connInfo httptrace.GotConnInfo) {
			reused = connInfo.Reused
		},
		GotFirstResponseByte: func() {
			ttfb = time.Since(start)
		},
	}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), trace))

	start = time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return Response{}, fmt.Errorf("read body: %w", err)
	}

	return Response{
		StatusCode: resp.StatusCode,
		Proto:      resp.Proto,
		TTFB:       ttfb,
		Reused:     reused,
	}, nil
}

func (r *httpRequester) Close() error {
	r.client.CloseIdleConnections()
	if c, ok := r.client.Transport.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// ===============================
// fasthttp 客户端
// ===============================

type fastHTTPRequester struct {
	client  *fasthttp.Client
	timeout time.Duration
}

func newFastHTTPRequester(cfg Config) *fastHTTPRequester {
	ip, timeout := cfg.Resolve, cfg.Timeout
	client := &fasthttp.Client{
		Name:            cfg.UserAgent,
		MaxConnsPerHost: cfg.Workers,
		ReadTimeout:     timeout,
		WriteTimeout:    timeout,
		Dial: func(addr string) (net.Conn, error) {
			if ip != "" {
				if _, port, err := net.SplitHostPort(addr); err == nil {
					addr = net.JoinHostPort(ip, port)
				}
			}
			return fasthttp.DialTimeout(addr, timeout)
		},
	}
	return &fastHTTPRequester{client: client, timeout: timeout}
}

// Get fasthttp 不接受 context，用 ctx 的截止时间作为请求 deadline
func (r *fastHTTPRequester) Get(ctx context.Context, url string) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(r.timeout)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)

	if err := r.client.DoDeadline(req, resp, deadline); err != nil {
		return Response{}, err
	}
	return Response{
		StatusCode: resp.StatusCode(),
		Proto:      "HTTP/1.1",
	}, nil
}

func (r *fastHTTPRequester) Close() error {
	r.client.CloseIdleConnections()
	return nil
}

// ===============================
// 测试逻辑
// ===============================

// isErrorStatus 4xx/5xx 记为错误
func isErrorStatus(code int) bool {
	return code >= 400 && code < 600
}

// measureRequest 执行单次请求并测量耗时
func measureRequest(ctx context.Context, r Requester, host string, seq int, timeout time.Duration) RequestOutcome {
	outcome := RequestOutcome{Host: host, Seq: seq}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	resp, err := r.Get(ctx, host)
	elapsed := time.Since(start)
	if err != nil {
		// 未完成的请求不记录耗时
		outcome.IsError = true
		outcome.Err = err.Error()
		return outcome
	}

	outcome.Elapsed = float64(elapsed.Nanoseconds()) / 1e6
	outcome.StatusCode = resp.StatusCode
	outcome.IsError = isErrorStatus(resp.StatusCode)
	outcome.TTFB = resp.TTFB
	outcome.ActualProto = resp.Proto
	outcome.Reused = resp.Reused
	return outcome
}
