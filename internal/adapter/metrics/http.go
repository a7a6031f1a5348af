package metrics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"deploy-orchestrator/internal/pkg/config"
	"deploy-orchestrator/pkg/constants"
)

// HTTPSource 通过HTTP拉取错误率
//
// 请求: POST {endpoint}{path} {"group": "...", "targets": ["host:port", ...]}
// 响应: {"error_rate": 1.25}
type HTTPSource struct {
	endpoint string
	path     string
	token    string
	client   *http.Client
	timeout  time.Duration
	retries  int
}

// NewHTTPSource 创建HTTP错误率数据源
func NewHTTPSource(cfg *config.MetricsConfig) (*HTTPSource, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("metrics.endpoint 未配置")
	}
	path := cfg.Path
	if path == "" {
		path = "/api/error_rate"
	}
	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	}
	return &HTTPSource{
		endpoint: strings.TrimSuffix(cfg.Endpoint, "/"),
		path:     path,
		token:    cfg.Token,
		client:   &http.Client{Timeout: 10 * time.Second},
		timeout:  config.ParseDuration(cfg.Timeout, 5*time.Second),
		retries:  retries,
	}, nil
}

// ErrorRate 查询范围内目标的错误率, 失败时带重试
func (s *HTTPSource) ErrorRate(ctx context.Context, scope Scope) (float64, error) {
	addresses := make([]string, 0, len(scope.Targets))
	for _, target := range scope.Targets {
		addresses = append(addresses, target.Address)
	}
	body, err := json.Marshal(map[string]interface{}{
		"group":   scope.Group,
		"targets": addresses,
	})
	if err != nil {
		return 0, fmt.Errorf("序列化采样请求失败: %w", err)
	}

	attempts := s.retries + 1
	var lastErr error
	for i := 0; i < attempts; i++ {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, s.endpoint+s.path, bytes.NewReader(body))
		if err != nil {
			cancel()
			return 0, fmt.Errorf("构造采样请求失败: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if s.token != "" {
			req.Header.Set(constants.HeaderAuthorization, constants.HeaderBearerPrefix+s.token)
		}

		resp, err := s.client.Do(req)
		cancel()
		if err != nil {
			lastErr = err
		} else {
			rate, parseErr := decodeRate(resp)
			resp.Body.Close()
			if parseErr == nil {
				return rate, nil
			}
			lastErr = parseErr
		}
		if i < attempts-1 {
			time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
		}
	}
	return 0, fmt.Errorf("查询错误率失败: %w", lastErr)
}

// decodeRate 解析错误率响应
func decodeRate(resp *http.Response) (float64, error) {
	if resp.StatusCode >= 500 {
		return 0, fmt.Errorf("指标服务不可用: %s", resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("指标服务拒绝请求: %s", resp.Status)
	}
	var payload struct {
		ErrorRate float64 `json:"error_rate"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("解析指标响应失败: %w", err)
	}
	if payload.ErrorRate < 0 {
		return 0, fmt.Errorf("指标响应的错误率非法: %f", payload.ErrorRate)
	}
	return payload.ErrorRate, nil
}
