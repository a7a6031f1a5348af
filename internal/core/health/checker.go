package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"deploy-orchestrator/internal/model"
	"deploy-orchestrator/internal/pkg/config"
	"deploy-orchestrator/internal/pkg/logger"
)

// Status 探测结论
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusTimeout   Status = "timeout"
)

// 重试退避方式
const (
	BackoffFixed       = "fixed"
	BackoffExponential = "exponential"
)

// maxBackoff 指数退避的上限
const maxBackoff = 30 * time.Second

// Options 单次探测参数
type Options struct {
	Scheme           string        `json:"scheme"`            // http / https, 默认 http
	Path             string        `json:"path"`              // 探测路径, 默认 /healthz
	Port             int           `json:"port"`              // 覆盖目标地址中的端口, 0 表示不覆盖
	ExpectStatus     int           `json:"expect_status"`     // 期望状态码, 0 表示任意 2xx
	Timeout          time.Duration `json:"timeout"`           // 单次探测超时
	Retries          int           `json:"retries"`           // 首次之外的重试次数
	Backoff          string        `json:"backoff"`           // fixed / exponential
	BackoffBase      time.Duration `json:"backoff_base"`      // 重试间隔基数
	SuccessThreshold int           `json:"success_threshold"` // 连续成功达到该次数才判定健康(防抖)
}

// Normalize 填充默认值
func (o Options) Normalize() Options {
	if o.Scheme == "" {
		o.Scheme = "http"
	}
	if o.Path == "" {
		o.Path = "/healthz"
	}
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Second
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.Backoff == "" {
		o.Backoff = BackoffFixed
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = time.Second
	}
	if o.SuccessThreshold < 1 {
		o.SuccessThreshold = 1
	}
	return o
}

// OptionsFromConfig 由全局配置生成探测参数
func OptionsFromConfig(cfg *config.HealthConfig) Options {
	return Options{
		Scheme:           cfg.Scheme,
		Path:             cfg.Path,
		Port:             cfg.Port,
		Timeout:          config.ParseDuration(cfg.Timeout, 5*time.Second),
		Retries:          cfg.Retries,
		Backoff:          cfg.Backoff,
		BackoffBase:      config.ParseDuration(cfg.BackoffBase, time.Second),
		SuccessThreshold: cfg.SuccessThreshold,
	}.Normalize()
}

// Result 探测结果, 只在单个策略步骤内使用, 不单独落库
type Result struct {
	TargetID  int64
	Status    Status
	Detail    string
	Attempts  int
	CheckedAt time.Time
}

// Healthy 是否健康
func (r Result) Healthy() bool {
	return r.Status == StatusHealthy
}

// Prober 健康探测接口
//
// 所有失败形态都折叠进 Result, 永远不向调用方抛错。
type Prober interface {
	Check(ctx context.Context, target *model.Target, opts Options) Result
}

// Checker HTTP健康探测器
type Checker struct {
	client *http.Client
	logger *zap.Logger
}

// NewChecker 创建HTTP健康探测器
func NewChecker() *Checker {
	return &Checker{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: logger.Named("health"),
	}
}

// Check 探测目标, 重试退避耗尽后给出终判
//
// 判定规则: 连续成功达到门槛为 healthy; 出现过明确的负响应(非预期状态码或
// 连接失败)为 unhealthy; 所有失败都是超时则为 timeout。
func (c *Checker) Check(ctx context.Context, target *model.Target, opts Options) Result {
	opts = opts.Normalize()
	result := Result{TargetID: target.ID, CheckedAt: time.Now()}

	probeURL := buildProbeURL(target.Address, opts)
	maxAttempts := opts.Retries + 1
	// 连续成功门槛高于尝试预算时放宽预算, 否则永远无法判定健康
	if opts.SuccessThreshold > maxAttempts {
		maxAttempts = opts.SuccessThreshold
	}

	consecutive := 0
	sawNegative := false
	lastDetail := ""

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if !sleepBackoff(ctx, opts, attempt-1) {
				result.Status = StatusTimeout
				result.Detail = fmt.Sprintf("探测被取消: %v", ctx.Err())
				return result
			}
		}

		status, detail := c.probe(ctx, probeURL, opts)
		result.Attempts = attempt
		lastDetail = detail

		c.logger.Debug("健康探测",
			zap.String("target", target.Name),
			zap.String("url", probeURL),
			zap.Int("attempt", attempt),
			zap.String("status", string(status)),
			zap.String("detail", detail))

		switch status {
		case StatusHealthy:
			consecutive++
			if consecutive >= opts.SuccessThreshold {
				result.Status = StatusHealthy
				result.Detail = detail
				return result
			}
		case StatusUnhealthy:
			consecutive = 0
			sawNegative = true
		case StatusTimeout:
			consecutive = 0
		}
	}

	if sawNegative {
		result.Status = StatusUnhealthy
	} else {
		result.Status = StatusTimeout
	}
	result.Detail = lastDetail
	return result
}

// probe 执行一次HTTP探测
func (c *Checker) probe(ctx context.Context, probeURL string, opts Options) (Status, string) {
	attemptCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, probeURL, nil)
	if err != nil {
		return StatusUnhealthy, fmt.Sprintf("构造探测请求失败: %v", err)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		if isTimeoutError(err) {
			return StatusTimeout, fmt.Sprintf("探测超时(%dms): %v", elapsed.Milliseconds(), err)
		}
		return StatusUnhealthy, fmt.Sprintf("探测失败: %v", err)
	}
	defer resp.Body.Close()
	// 读掉响应体以复用连接
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if statusMatch(resp.StatusCode, opts.ExpectStatus) {
		return StatusHealthy, fmt.Sprintf("%d OK (%dms)", resp.StatusCode, elapsed.Milliseconds())
	}
	return StatusUnhealthy, fmt.Sprintf("非预期状态码: %d (%dms)", resp.StatusCode, elapsed.Milliseconds())
}

// statusMatch 判断状态码是否符合预期
func statusMatch(code, expect int) bool {
	if expect > 0 {
		return code == expect
	}
	return code >= 200 && code < 300
}

// isTimeoutError 判断是否超时类错误
func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// sleepBackoff 重试退避, 被取消时返回false
func sleepBackoff(ctx context.Context, opts Options, failures int) bool {
	wait := opts.BackoffBase
	if opts.Backoff == BackoffExponential {
		for i := 1; i < failures; i++ {
			wait *= 2
			if wait >= maxBackoff {
				wait = maxBackoff
				break
			}
		}
	}

	select {
	case <-ctx.Done():
		return false
	case <-time.After(wait):
		return true
	}
}

// buildProbeURL 拼接探测地址, Port>0 时覆盖目标地址中的端口
func buildProbeURL(address string, opts Options) string {
	host := address
	if opts.Port > 0 {
		h, _, err := net.SplitHostPort(address)
		if err != nil {
			h = address
		}
		host = net.JoinHostPort(h, strconv.Itoa(opts.Port))
	}
	u := url.URL{
		Scheme: opts.Scheme,
		Host:   host,
		Path:   opts.Path,
	}
	return u.String()
}
