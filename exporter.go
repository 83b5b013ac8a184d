package main

import (
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"regexp"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ===============================
// 报告导出模块
// ===============================

// BenchmarkReport 完整测试报告
type BenchmarkReport struct {
	StartTime time.Time                   `json:"start_time"`
	EndTime   time.Time                   `json:"end_time"`
	Duration  time.Duration               `json:"duration"`
	Config    ReportConfig                `json:"config"`
	Hosts     []HostStats                 `json:"hosts"`   // 按输入顺序
	Results   map[string][]RequestOutcome `json:"results"` // 按 host 分组的明细
}

// ReportConfig 配置快照（用于报告）
type ReportConfig struct {
	Hosts    []string `json:"hosts"`
	Count    int      `json:"count"`
	Workers  int      `json:"workers"`
	Timeout  string   `json:"timeout"`
	Protocol string   `json:"protocol"`
	Engine   string   `json:"engine"`
	Resolve  string   `json:"resolve,omitempty"`
}

// NewBenchmarkReport 创建新的测试报告
func NewBenchmarkReport(startTime time.Time, cfg Config, hosts []string, count int) *BenchmarkReport {
	return &BenchmarkReport{
		StartTime: startTime,
		Config: ReportConfig{
			Hosts:    hosts,
			Count:    count,
			Workers:  cfg.Workers,
			Timeout:  cfg.Timeout.String(),
			Protocol: cfg.Protocol.String(),
			Engine:   string(cfg.Engine),
			Resolve:  cfg.Resolve,
		},
		Results: make(map[string][]RequestOutcome),
	}
}

// Finalize 汇总结果并记录结束时间
func (r *BenchmarkReport) Finalize(outcomes []RequestOutcome) {
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)

	order, groups := groupByHost(r.Config.Hosts, outcomes)
	r.Hosts = aggregateGroups(order, groups)
	for _, h := range order {
		r.Results[h] = groups[h]
	}
}

// Text 固定格式的文本报告
func (r *BenchmarkReport) Text() string {
	return FormatReport(r.Hosts)
}

// reportPath 生成 <outputDir>/reports/<时间戳>.<ext>
func reportPath(report *BenchmarkReport, outputDir, ext string) (string, error) {
	reportDir := filepath.Join(outputDir, "reports")
	if err := os.MkdirAll(reportDir, 0755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	timestamp := report.StartTime.Format("2006-01-02_15-04-05")
	return filepath.Join(reportDir, fmt.Sprintf("%s.%s", timestamp, ext)), nil
}

// ExportJSON 导出 JSON 格式报告
func ExportJSON(report *BenchmarkReport, outputDir string) (string, error) {
	filePath, err := reportPath(report, outputDir, "json")
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal json report: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return "", fmt.Errorf("write json report: %w", err)
	}

	return filePath, nil
}

var unsafeIDChars = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// ExportHTML 导出 HTML 格式报告
func ExportHTML(report *BenchmarkReport, outputDir string) (string, error) {
	filePath, err := reportPath(report, outputDir, "html")
	if err != nil {
		return "", err
	}

	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"formatDuration": func(d time.Duration) string {
			return d.Round(time.Millisecond).String()
		},
		"formatTime": func(t time.Time) string {
			return t.Format("2006-01-02 15:04:05")
		},
		"ttfbMs": func(o RequestOutcome) float64 {
			return float64(o.TTFB.Microseconds()) / 1000.0
		},
		// 根据延迟返回性能颜色类
		"perfClass": func(ms float64) string {
			if ms < 100 {
				return "perf-excellent"
			} else if ms < 300 {
				return "perf-good"
			} else if ms < 500 {
				return "perf-fair"
			}
			return "perf-poor"
		},
		"safeID": func(s string) string {
			return unsafeIDChars.ReplaceAllString(s, "-")
		},
	}).Parse(htmlTemplate)
	if err != nil {
		return "", fmt.Errorf("parse html template: %w", err)
	}

	file, err := os.Create(filePath)
	if err != nil {
		return "", fmt.Errorf("create html report: %w", err)
	}
	defer file.Close()

	if err := tmpl.Execute(file, report); err != nil {
		return "", fmt.Errorf("render html report: %w", err)
	}

	return filePath, nil
}

// HTML 模板
const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>HTTP Server Benchmark Results - {{formatTime .StartTime}}</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            background: linear-gradient(135deg, #0f0f1a 0%, #1a1a2e 50%, #16213e 100%);
            color: #e8e8e8;
            min-height: 100vh;
            padding: 20px;
        }
        .container { max-width: 1400px; margin: 0 auto; }
        h1 { text-align: center; font-size: 2.2em; margin-bottom: 10px; color: #00d4ff; }
        .subtitle { text-align: center; color: #888; margin-bottom: 30px; }
        .card {
            background: rgba(255, 255, 255, 0.03);
            border-radius: 16px;
            padding: 24px;
            margin-bottom: 24px;
            border: 1px solid rgba(255, 255, 255, 0.08);
        }
        .card h2 { font-size: 1.3em; margin-bottom: 16px; color: #00d4ff; }
        .config-grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(200px, 1fr));
            gap: 16px;
        }
        .config-item { padding: 12px; background: rgba(0, 0, 0, 0.3); border-radius: 8px; }
        .config-item label { display: block; font-size: 0.85em; color: #888; margin-bottom: 4px; }
        .config-item span { font-size: 1.1em; font-weight: 600; color: #fff; }
        table { width: 100%; border-collapse: collapse; font-size: 0.9em; }
        th, td { padding: 10px 12px; text-align: left; border-bottom: 1px solid rgba(255, 255, 255, 0.06); }
        th { color: #888; font-weight: 500; }
        td { font-family: 'SF Mono', 'Monaco', 'Consolas', monospace; }
        .perf-excellent { color: #34d399; }
        .perf-good { color: #4ade80; }
        .perf-fair { color: #fbbf24; }
        .perf-poor { color: #f87171; }
        .success { color: #34d399; }
        .error { color: #f87171; }
        .na { color: #555; }
        .footer { text-align: center; color: #555; margin-top: 30px; font-size: 0.85em; }
    </style>
</head>
<body>
    <div class="container">
        <h1>HTTP Server Benchmark Results</h1>
        <p class="subtitle">{{formatTime .StartTime}} · {{formatDuration .Duration}}</p>

        <div class="card">
            <h2>Configuration</h2>
            <div class="config-grid">
                <div class="config-item"><label>Requests per host</label><span>{{.Config.Count}}</span></div>
                <div class="config-item"><label>Workers</label><span>{{.Config.Workers}}</span></div>
                <div class="config-item"><label>Timeout</label><span>{{.Config.Timeout}}</span></div>
                <div class="config-item"><label>Protocol</label><span>{{.Config.Protocol}}</span></div>
                <div class="config-item"><label>Engine</label><span>{{.Config.Engine}}</span></div>
                {{if .Config.Resolve}}<div class="config-item"><label>Resolve</label><span>{{.Config.Resolve}}</span></div>{{end}}
            </div>
        </div>

        <div class="card">
            <h2>Summary</h2>
            <table>
                <thead>
                    <tr>
                        <th>Host</th><th>Success</th><th>Failed</th><th>Errors</th>
                        <th>Min (ms)</th><th>Avg (ms)</th><th>P50 (ms)</th><th>P90 (ms)</th><th>P99 (ms)</th><th>Max (ms)</th>
                    </tr>
                </thead>
                <tbody>
                    {{range .Hosts}}
                    <tr>
                        <td><a href="#{{safeID .Host}}">{{.Host}}</a></td>
                        <td class="success">{{.Success}}</td>
                        <td>{{.Failed}}</td>
                        <td>{{if gt .Errors 0}}<span class="error">{{.Errors}}</span>{{else}}0{{end}}</td>
                        {{if gt .Success 0}}
                        <td class="{{perfClass .Min}}">{{printf "%.2f" .Min}}</td>
                        <td class="{{perfClass .Avg}}">{{printf "%.2f" .Avg}}</td>
                        <td class="{{perfClass .P50}}">{{printf "%.2f" .P50}}</td>
                        <td class="{{perfClass .P90}}">{{printf "%.2f" .P90}}</td>
                        <td class="{{perfClass .P99}}">{{printf "%.2f" .P99}}</td>
                        <td class="{{perfClass .Max}}">{{printf "%.2f" .Max}}</td>
                        {{else}}
                        <td class="na">-</td><td class="na">-</td><td class="na">-</td><td class="na">-</td><td class="na">-</td><td class="na">-</td>
                        {{end}}
                    </tr>
                    {{end}}
                </tbody>
            </table>
        </div>

        {{range .Hosts}}{{$host := .Host}}{{$results := index $.Results $host}}
        <div class="card" id="{{safeID $host}}">
            <h2>{{$host}}</h2>
            <table>
                <thead>
                    <tr><th>#</th><th>Status</th><th>Proto</th><th>Conn</th><th>TTFB (ms)</th><th>Elapsed (ms)</th><th>Error</th></tr>
                </thead>
                <tbody>
                    {{range $results}}
                    <tr>
                        <td>{{.Seq}}</td>
                        <td>{{if eq .StatusCode 0}}<span class="error">-</span>{{else if .IsError}}<span class="error">{{.StatusCode}}</span>{{else}}<span class="success">{{.StatusCode}}</span>{{end}}</td>
                        <td>{{if .ActualProto}}{{.ActualProto}}{{else}}<span class="na">-</span>{{end}}</td>
                        <td>{{if .Reused}}reused{{else}}new{{end}}</td>
                        <td>{{printf "%.2f" (ttfbMs .)}}</td>
                        <td class="{{perfClass .Elapsed}}">{{printf "%.2f" .Elapsed}}</td>
                        <td>{{if .Err}}<span class="error">{{.Err}}</span>{{else}}-{{end}}</td>
                    </tr>
                    {{end}}
                </tbody>
            </table>
        </div>
        {{end}}

        <div class="footer">
            <p>Latency statistics cover successful requests only; 4xx/5xx responses and transport failures count as errors.</p>
            <p>Generated by hostbench</p>
        </div>
    </div>
</body>
</html>`
