package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"salatiso-escalation/internal/config"
	"salatiso-escalation/internal/domain"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// EscalationNotice 推送给客户端的升级通知载荷
type EscalationNotice struct {
	EventID  string          `json:"event_id"`
	TenantID string          `json:"tenant_id"`
	Title    string          `json:"title"`
	Severity domain.Severity `json:"severity"`
	Status   domain.Status   `json:"status"`
	Level    domain.Level    `json:"level"`
	Kind     string          `json:"kind"` // "escalated" 或 "assigned"
}

// MQTTNotifier 通过 MQTT 向响应人客户端推送升级通知
// 主题格式：salatiso/escalation/<tenant_id>/<user_id>
type MQTTNotifier struct {
	client mqtt.Client
	cfg    *config.MQTTConfig
	logger *zap.Logger
}

// NewMQTTNotifier 创建 MQTT 通知器并连接 broker
func NewMQTTNotifier(cfg *config.MQTTConfig, logger *zap.Logger) (*MQTTNotifier, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &MQTTNotifier{
		client: client,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// NotifyEscalated 升级发生时通知全部参与者
func (n *MQTTNotifier) NotifyEscalated(_ context.Context, event *domain.EscalationEvent) {
	for _, userID := range event.Participants() {
		n.publish(event, userID, "escalated")
	}
}

// NotifyAssigned 通知新分配的响应人
func (n *MQTTNotifier) NotifyAssigned(_ context.Context, event *domain.EscalationEvent, userID string) {
	n.publish(event, userID, "assigned")
}

func (n *MQTTNotifier) publish(event *domain.EscalationEvent, userID, kind string) {
	notice := EscalationNotice{
		EventID:  event.EventID,
		TenantID: event.TenantID,
		Title:    event.Title,
		Severity: event.Severity,
		Status:   event.Status,
		Level:    event.CurrentLevel,
		Kind:     kind,
	}
	payload, err := json.Marshal(notice)
	if err != nil {
		return
	}

	topic := fmt.Sprintf("salatiso/escalation/%s/%s", event.TenantID, userID)
	token := n.client.Publish(topic, n.cfg.QoS, false, payload)
	token.Wait()
	if token.Error() != nil {
		// 通知失败只记录日志，不影响变更操作
		n.logger.Warn("Failed to publish MQTT notification",
			zap.String("topic", topic),
			zap.Error(token.Error()),
		)
	}
}

// Disconnect 断开连接
func (n *MQTTNotifier) Disconnect() {
	n.client.Disconnect(250)
}

// IsConnected 检查连接状态
func (n *MQTTNotifier) IsConnected() bool {
	return n.client.IsConnected()
}
