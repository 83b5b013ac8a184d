package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ===============================
// 配置加载模块
// ===============================

const (
	defaultWorkers   = 10
	defaultTimeout   = 10 * time.Second
	defaultOutputDir = "./output"
	defaultUserAgent = "hostbench/1.0"
)

// Config 运行时配置
type Config struct {
	Workers   int           // 并发上限
	Timeout   time.Duration // 单次请求超时
	Protocol  Protocol      // 协议类型
	Engine    Engine        // HTTP 客户端实现
	Resolve   string        // 强制连接到指定IP（为空则正常解析）
	UserAgent string
	Verbose   bool // 打印逐请求明细和百分位表格

	// 输出配置
	OutputDir  string // 日志/报告输出目录
	EnableLog  bool   // 是否启用日志文件
	EnableJSON bool   // 是否生成 JSON 报告
	EnableHTML bool   // 是否生成 HTML 报告
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Workers:   defaultWorkers,
		Timeout:   defaultTimeout,
		Protocol:  HTTP1,
		Engine:    EngineNetHTTP,
		UserAgent: defaultUserAgent,
		OutputDir: defaultOutputDir,
	}
}

// Protocol 协议类型
type Protocol int

const (
	HTTP1 Protocol = iota
	HTTP2
	HTTP3
)

func (p Protocol) String() string {
	switch p {
	case HTTP1:
		return "HTTP/1.1"
	case HTTP2:
		return "HTTP/2"
	case HTTP3:
		return "HTTP/3"
	default:
		return "Unknown"
	}
}

// parseProtocol 解析协议字符串
func parseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "http/3", "http3", "h3":
		return HTTP3, nil
	case "http/2", "http2", "h2":
		return HTTP2, nil
	case "", "http/1.1", "http1", "h1":
		return HTTP1, nil
	default:
		return HTTP1, fmt.Errorf("unsupported protocol: %s", s)
	}
}

// Engine HTTP 客户端实现
type Engine string

const (
	EngineNetHTTP  Engine = "nethttp"
	EngineFastHTTP Engine = "fasthttp"
)

func parseEngine(s string) (Engine, error) {
	switch Engine(strings.ToLower(strings.TrimSpace(s))) {
	case "", EngineNetHTTP:
		return EngineNetHTTP, nil
	case EngineFastHTTP:
		return EngineFastHTTP, nil
	default:
		return EngineNetHTTP, fmt.Errorf("unsupported engine: %s", s)
	}
}

// Validate 检查配置的取值范围
func (c *Config) Validate() error {
	if c.Workers <= 0 {
		return invalidInput("workers must be positive, got %d", c.Workers)
	}
	if c.Timeout <= 0 {
		return invalidInput("timeout must be positive, got %s", c.Timeout)
	}
	if c.Engine == EngineFastHTTP && c.Protocol != HTTP1 {
		return invalidInput("engine %s only supports %s", EngineFastHTTP, HTTP1)
	}
	return nil
}

// ===============================
// YAML 配置结构
// ===============================

type yamlConfig struct {
	Workers   int    `yaml:"workers"`
	Timeout   string `yaml:"timeout"`
	Protocol  string `yaml:"protocol"`
	Engine    string `yaml:"engine"`
	Resolve   string `yaml:"resolve"`
	UserAgent string `yaml:"user_agent"`
	Verbose   bool   `yaml:"verbose"`
	Output    struct {
		Dir        string `yaml:"dir"`
		EnableLog  bool   `yaml:"enable_log"`
		EnableJSON bool   `yaml:"enable_json"`
		EnableHTML bool   `yaml:"enable_html"`
	} `yaml:"output"`
}

// LoadConfig 从 YAML 文件加载配置，path 为空时返回默认配置
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return &cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if yc.Workers != 0 {
		cfg.Workers = yc.Workers
	}

	// 解析超时时间，非法值保留默认
	if timeout, err := time.ParseDuration(yc.Timeout); err == nil {
		cfg.Timeout = timeout
	}

	if cfg.Protocol, err = parseProtocol(yc.Protocol); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if cfg.Engine, err = parseEngine(yc.Engine); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg.Resolve = yc.Resolve
	if yc.UserAgent != "" {
		cfg.UserAgent = yc.UserAgent
	}
	cfg.Verbose = yc.Verbose

	// 设置默认值
	if yc.Output.Dir != "" {
		cfg.OutputDir = yc.Output.Dir
	}
	cfg.EnableLog = yc.Output.EnableLog
	cfg.EnableJSON = yc.Output.EnableJSON
	cfg.EnableHTML = yc.Output.EnableHTML

	return &cfg, nil
}
