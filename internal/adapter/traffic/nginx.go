package traffic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"deploy-orchestrator/internal/model"
	"deploy-orchestrator/internal/pkg/config"
	"deploy-orchestrator/internal/pkg/logger"
	"deploy-orchestrator/pkg/constants"
	"deploy-orchestrator/pkg/errors"
)

// NginxController 通过 nginx 控制API操作 upstream 节点
//
// 控制API约定:
//
//	PATCH {endpoint}/http/upstreams/{upstream}/servers/{server}  {"drain": bool}
//	PUT   {endpoint}/http/upstreams/{upstream}/weights           {"weights": {server: weight}}
type NginxController struct {
	endpoint string
	upstream string
	token    string
	client   *http.Client
	logger   *zap.Logger
}

// NewNginxController 创建 nginx 流量控制器
func NewNginxController(cfg *config.TrafficConfig) *NginxController {
	return &NginxController{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		upstream: cfg.Upstream,
		token:    cfg.Token,
		client: &http.Client{
			Timeout: config.ParseDuration(cfg.Timeout, 10*time.Second),
		},
		logger: logger.Named("traffic"),
	}
}

// Drain 摘除目标流量并等待在途请求结束
func (c *NginxController) Drain(ctx context.Context, target *model.Target, grace time.Duration) error {
	if err := c.patchServer(ctx, target.Address, map[string]interface{}{"drain": true}); err != nil {
		return errors.Wrap(errors.CodeTrafficControl, fmt.Sprintf("摘除目标流量失败: %s", target.Name), err)
	}

	c.logger.Info("目标已摘流, 等待在途请求结束",
		zap.String("target", target.Name),
		zap.Duration("grace", grace))

	if grace > 0 {
		select {
		case <-time.After(grace):
		case <-ctx.Done():
			// 等待期被截断不视为失败, 摘流动作已经生效
		}
	}
	return nil
}

// Restore 恢复目标接流
func (c *NginxController) Restore(ctx context.Context, target *model.Target) error {
	if err := c.patchServer(ctx, target.Address, map[string]interface{}{"drain": false}); err != nil {
		return errors.Wrap(errors.CodeTrafficControl, fmt.Sprintf("恢复目标接流失败: %s", target.Name), err)
	}
	return nil
}

// SetWeights 整体下发权重分配
func (c *NginxController) SetWeights(ctx context.Context, weights []Weight) error {
	payload := make(map[string]int, len(weights))
	for _, w := range weights {
		payload[w.Target.Address] = w.Weight
	}

	u := fmt.Sprintf("%s/http/upstreams/%s/weights", c.endpoint, url.PathEscape(c.upstream))
	if err := c.do(ctx, http.MethodPut, u, map[string]interface{}{"weights": payload}); err != nil {
		return errors.Wrap(errors.CodeTrafficControl, "下发流量权重失败", err)
	}

	c.logger.Info("流量权重已更新", zap.Any("weights", payload))
	return nil
}

// patchServer 修改单个 upstream 节点
func (c *NginxController) patchServer(ctx context.Context, server string, body map[string]interface{}) error {
	u := fmt.Sprintf("%s/http/upstreams/%s/servers/%s",
		c.endpoint, url.PathEscape(c.upstream), url.PathEscape(server))
	return c.do(ctx, http.MethodPatch, u, body)
}

// do 执行一次控制API调用, 不做重试
func (c *NginxController) do(ctx context.Context, method, u string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("序列化请求体失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("构造请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set(constants.HeaderAuthorization, constants.HeaderBearerPrefix+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("请求路由控制面失败: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("路由控制面返回 %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return nil
}
