package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"deploy-orchestrator/internal/model"
)

// NotificationType 通知类型
type NotificationType string

const (
	NotifyRunStart       NotificationType = "run_start"        // 发布开始
	NotifyRunSucceeded   NotificationType = "run_succeeded"    // 发布成功
	NotifyRunRolledBack  NotificationType = "run_rolled_back"  // 发布已回滚
	NotifyRunFailed      NotificationType = "run_failed"       // 发布失败(回滚未成功)
	NotifyRunTimedOut    NotificationType = "run_timed_out"    // 发布超时
	NotifyTargetRollback NotificationType = "target_rollback"  // 单目标已回滚
	NotifyRollbackFailed NotificationType = "rollback_failed"  // 单目标回滚失败
)

// NotificationMessage 通知消息
type NotificationMessage struct {
	Type      NotificationType       `json:"type"`
	Title     string                 `json:"title"`
	Content   string                 `json:"content"`
	Timestamp time.Time              `json:"timestamp"`
	Extra     map[string]interface{} `json:"extra,omitempty"` // 额外信息
}

// Notifier 通知器接口
type Notifier interface {
	// Send 发送通知
	Send(ctx context.Context, msg *NotificationMessage) error

	// SendRunNotification 发送发布单级通知
	SendRunNotification(ctx context.Context, request *model.DeploymentRequest, notifyType NotificationType, message string) error

	// SendTargetNotification 发送目标级通知
	SendTargetNotification(ctx context.Context, requestID string, target *model.Target, notifyType NotificationType, message string) error
}

// ============= Lark 通知适配器 =============

// LarkNotifier Lark通知器
type LarkNotifier struct {
	webhookURL string
	enabled    bool
	logger     *zap.Logger
	client     *http.Client
}

// NewLarkNotifier 创建Lark通知器
func NewLarkNotifier(webhookURL string, enabled bool, logger *zap.Logger) *LarkNotifier {
	return &LarkNotifier{
		webhookURL: webhookURL,
		enabled:    enabled,
		logger:     logger,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Send 发送通知
func (n *LarkNotifier) Send(ctx context.Context, msg *NotificationMessage) error {
	if !n.enabled {
		n.logger.Debug("通知已禁用,跳过发送")
		return nil
	}

	if n.webhookURL == "" {
		n.logger.Warn("Lark Webhook URL未配置")
		return nil
	}

	// 构建Lark消息格式
	larkMsg := n.buildLarkMessage(msg)

	// 发送HTTP请求
	jsonData, err := json.Marshal(larkMsg)
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", n.webhookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Lark API返回错误状态码: %d", resp.StatusCode)
	}

	n.logger.Info("Lark通知发送成功",
		zap.String("type", string(msg.Type)),
		zap.String("title", msg.Title))

	return nil
}

// SendRunNotification 发送发布单级通知
func (n *LarkNotifier) SendRunNotification(ctx context.Context, request *model.DeploymentRequest, notifyType NotificationType, message string) error {
	var title, color string

	switch notifyType {
	case NotifyRunStart:
		title = "🚀 发布开始"
		color = "blue"
	case NotifyRunSucceeded:
		title = "✅ 发布成功"
		color = "green"
	case NotifyRunRolledBack:
		title = "↩️ 发布已回滚"
		color = "red"
	case NotifyRunFailed:
		title = "❌ 发布失败, 需要人工介入"
		color = "red"
	case NotifyRunTimedOut:
		title = "⏰ 发布超时"
		color = "red"
	default:
		title = "📢 发布通知"
		color = "grey"
	}

	content := fmt.Sprintf("**请求编号**: %s\n**策略**: %s\n**版本**: %s\n**发起方**: %s\n**消息**: %s",
		request.RequestID, request.Strategy, request.Version, request.Initiator, message)

	msg := &NotificationMessage{
		Type:      notifyType,
		Title:     title,
		Content:   content,
		Timestamp: time.Now(),
		Extra: map[string]interface{}{
			"request_id": request.RequestID,
			"strategy":   request.Strategy,
			"version":    request.Version,
			"color":      color,
		},
	}

	return n.Send(ctx, msg)
}

// SendTargetNotification 发送目标级通知
func (n *LarkNotifier) SendTargetNotification(ctx context.Context, requestID string, target *model.Target, notifyType NotificationType, message string) error {
	var title, color string

	switch notifyType {
	case NotifyTargetRollback:
		title = "↩️ 目标已回滚"
		color = "grey"
	case NotifyRollbackFailed:
		title = "🆘 目标回滚失败"
		color = "red"
	default:
		title = "📢 目标通知"
		color = "grey"
	}

	content := fmt.Sprintf("**目标**: %s (%s)\n**请求编号**: %s\n**消息**: %s",
		target.Name, target.Address, requestID, message)

	msg := &NotificationMessage{
		Type:      notifyType,
		Title:     title,
		Content:   content,
		Timestamp: time.Now(),
		Extra: map[string]interface{}{
			"request_id":  requestID,
			"target_id":   target.ID,
			"target_name": target.Name,
			"color":       color,
		},
	}

	return n.Send(ctx, msg)
}

// buildLarkMessage 构建Lark消息格式
func (n *LarkNotifier) buildLarkMessage(msg *NotificationMessage) map[string]interface{} {
	color := "grey"
	if c, ok := msg.Extra["color"].(string); ok {
		color = c
	}

	// Lark富文本消息格式
	return map[string]interface{}{
		"msg_type": "interactive",
		"card": map[string]interface{}{
			"header": map[string]interface{}{
				"title": map[string]interface{}{
					"tag":     "plain_text",
					"content": msg.Title,
				},
				"template": color,
			},
			"elements": []interface{}{
				map[string]interface{}{
					"tag": "div",
					"text": map[string]interface{}{
						"tag":     "lark_md",
						"content": msg.Content,
					},
				},
				map[string]interface{}{
					"tag": "div",
					"text": map[string]interface{}{
						"tag":     "plain_text",
						"content": fmt.Sprintf("时间: %s", msg.Timestamp.Format("2006-01-02 15:04:05")),
					},
				},
			},
		},
	}
}

// ============= 多通知器 =============

// MultiNotifier 多通知器(支持同时发送到多个渠道)
type MultiNotifier struct {
	notifiers []Notifier
	logger    *zap.Logger
}

// NewMultiNotifier 创建多通知器
func NewMultiNotifier(logger *zap.Logger, notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{
		notifiers: notifiers,
		logger:    logger,
	}
}

// Send 发送到所有通知器
func (m *MultiNotifier) Send(ctx context.Context, msg *NotificationMessage) error {
	var lastErr error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, msg); err != nil {
			m.logger.Error("发送通知失败", zap.Error(err))
			lastErr = err
			// 继续发送其他通知器
		}
	}
	return lastErr
}

// SendRunNotification 发送发布单级通知到所有通知器
func (m *MultiNotifier) SendRunNotification(ctx context.Context, request *model.DeploymentRequest, notifyType NotificationType, message string) error {
	var lastErr error
	for _, notifier := range m.notifiers {
		if err := notifier.SendRunNotification(ctx, request, notifyType, message); err != nil {
			m.logger.Error("发送发布通知失败", zap.Error(err))
			lastErr = err
		}
	}
	return lastErr
}

// SendTargetNotification 发送目标级通知到所有通知器
func (m *MultiNotifier) SendTargetNotification(ctx context.Context, requestID string, target *model.Target, notifyType NotificationType, message string) error {
	var lastErr error
	for _, notifier := range m.notifiers {
		if err := notifier.SendTargetNotification(ctx, requestID, target, notifyType, message); err != nil {
			m.logger.Error("发送目标通知失败", zap.Error(err))
			lastErr = err
		}
	}
	return lastErr
}

// ============= 日志通知器(仅记录日志,不发送实际通知) =============

// LogNotifier 日志通知器
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier 创建日志通知器
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{
		logger: logger,
	}
}

// Send 记录通知到日志
func (n *LogNotifier) Send(ctx context.Context, msg *NotificationMessage) error {
	n.logger.Info("📢 通知",
		zap.String("type", string(msg.Type)),
		zap.String("title", msg.Title),
		zap.String("content", msg.Content),
		zap.Any("extra", msg.Extra))
	return nil
}

// SendRunNotification 记录发布单级通知到日志
func (n *LogNotifier) SendRunNotification(ctx context.Context, request *model.DeploymentRequest, notifyType NotificationType, message string) error {
	n.logger.Info("📢 发布通知",
		zap.String("type", string(notifyType)),
		zap.String("request_id", request.RequestID),
		zap.String("strategy", request.Strategy),
		zap.String("version", request.Version),
		zap.String("message", message))
	return nil
}

// SendTargetNotification 记录目标级通知到日志
func (n *LogNotifier) SendTargetNotification(ctx context.Context, requestID string, target *model.Target, notifyType NotificationType, message string) error {
	n.logger.Info("📢 目标通知",
		zap.String("type", string(notifyType)),
		zap.String("request_id", requestID),
		zap.String("target", target.Name),
		zap.String("message", message))
	return nil
}
