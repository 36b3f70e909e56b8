package subscriber

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"salatiso-escalation/internal/config"
	"salatiso-escalation/internal/domain"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Publisher 升级事件快照推送器
// 每次成功变更后把完整记录快照（无 diff）发布到：
// 1. 单事件通道 escalation:event:<event_id>
// 2. 每个参与者的用户通道 escalation:user:<user_id>
// 3. 全量快照流 escalation:updates（供离线消费者补数据）
type Publisher struct {
	redisClient *redis.Client
	cfg         *config.Config
	logger      *zap.Logger
}

// NewPublisher 创建快照推送器
func NewPublisher(redisClient *redis.Client, cfg *config.Config, logger *zap.Logger) *Publisher {
	return &Publisher{
		redisClient: redisClient,
		cfg:         cfg,
		logger:      logger,
	}
}

// PublishSnapshot 发布完整快照
func (p *Publisher) PublishSnapshot(ctx context.Context, event *domain.EscalationEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal escalation snapshot: %w", err)
	}

	// 单事件通道
	eventChannel := p.cfg.Escalation.EventChannelPrefix + event.EventID
	if err := p.redisClient.Publish(ctx, eventChannel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to event channel: %w", err)
	}

	// 参与者用户通道
	for _, userID := range event.Participants() {
		userChannel := p.cfg.Escalation.UserChannelPrefix + userID
		if err := p.redisClient.Publish(ctx, userChannel, payload).Err(); err != nil {
			p.logger.Warn("Failed to publish to user channel",
				zap.String("channel", userChannel),
				zap.Error(err),
			)
			// 继续推送其余通道，不中断
		}
	}

	// 全量快照流
	if err := p.redisClient.XAdd(ctx, &redis.XAddArgs{
		Stream: p.cfg.Escalation.UpdatesStream,
		Values: map[string]interface{}{
			"event_id":  event.EventID,
			"tenant_id": event.TenantID,
			"data":      string(payload),
			"timestamp": time.Now().Unix(),
		},
	}).Err(); err != nil {
		return fmt.Errorf("failed to append to updates stream: %w", err)
	}

	return nil
}
