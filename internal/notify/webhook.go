package notify

import (
	"context"
	"time"

	"salatiso-escalation/internal/config"
	"salatiso-escalation/internal/domain"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// webhookPayload 外部系统回调载荷（完整快照 + 触发类型）
type webhookPayload struct {
	Kind       string                  `json:"kind"` // "escalated" 或 "assigned"
	AssignedTo string                  `json:"assigned_to,omitempty"`
	Event      *domain.EscalationEvent `json:"event"`
}

// WebhookForwarder 把升级事件快照转发到配置的外部回调地址
type WebhookForwarder struct {
	httpClient *resty.Client
	url        string
	logger     *zap.Logger
}

// NewWebhookForwarder 创建 Webhook 转发器
func NewWebhookForwarder(cfg *config.WebhookConfig, logger *zap.Logger) *WebhookForwarder {
	client := resty.New().
		SetTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &WebhookForwarder{
		httpClient: client,
		url:        cfg.URL,
		logger:     logger,
	}
}

// NotifyEscalated 升级发生时转发快照
func (f *WebhookForwarder) NotifyEscalated(ctx context.Context, event *domain.EscalationEvent) {
	f.forward(ctx, webhookPayload{Kind: "escalated", Event: event})
}

// NotifyAssigned 响应人分配时转发快照
func (f *WebhookForwarder) NotifyAssigned(ctx context.Context, event *domain.EscalationEvent, userID string) {
	f.forward(ctx, webhookPayload{Kind: "assigned", AssignedTo: userID, Event: event})
}

func (f *WebhookForwarder) forward(ctx context.Context, payload webhookPayload) {
	resp, err := f.httpClient.R().
		SetContext(ctx).
		SetBody(payload).
		Post(f.url)
	if err != nil {
		// 转发失败只记录日志，不影响变更操作
		f.logger.Warn("Failed to forward escalation webhook",
			zap.String("url", f.url),
			zap.Error(err),
		)
		return
	}
	if resp.StatusCode() >= 400 {
		f.logger.Warn("Escalation webhook returned error status",
			zap.String("url", f.url),
			zap.Int("status", resp.StatusCode()),
		)
	}
}
