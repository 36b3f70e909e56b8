package subscriber

import (
	"context"
	"encoding/json"

	"salatiso-escalation/internal/config"
	"salatiso-escalation/internal/domain"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Subscriber 升级事件实时订阅（推送模式）
// 每次底层变更完整重发当前状态（不做 diff），由消费方自行比较
type Subscriber struct {
	redisClient *redis.Client
	cfg         *config.Config
	logger      *zap.Logger
}

// NewSubscriber 创建订阅器
func NewSubscriber(redisClient *redis.Client, cfg *config.Config, logger *zap.Logger) *Subscriber {
	return &Subscriber{
		redisClient: redisClient,
		cfg:         cfg,
		logger:      logger,
	}
}

// SubscribeToEscalation 订阅单个升级事件的快照推送
// 返回快照通道和取消函数；取消后通道关闭
func (s *Subscriber) SubscribeToEscalation(ctx context.Context, eventID string) (<-chan *domain.EscalationEvent, func(), error) {
	channel := s.cfg.Escalation.EventChannelPrefix + eventID
	return s.subscribe(ctx, channel)
}

// SubscribeToUserEscalations 订阅某用户参与的全部升级事件的快照推送
func (s *Subscriber) SubscribeToUserEscalations(ctx context.Context, userID string) (<-chan *domain.EscalationEvent, func(), error) {
	channel := s.cfg.Escalation.UserChannelPrefix + userID
	return s.subscribe(ctx, channel)
}

func (s *Subscriber) subscribe(ctx context.Context, channel string) (<-chan *domain.EscalationEvent, func(), error) {
	pubsub := s.redisClient.Subscribe(ctx, channel)

	// 确认订阅生效，避免错过紧随其后的推送
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, err
	}

	out := make(chan *domain.EscalationEvent, 16)
	done := make(chan struct{})

	go func() {
		defer close(out)
		ch := pubsub.Channel()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event domain.EscalationEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					s.logger.Warn("Failed to decode escalation snapshot",
						zap.String("channel", channel),
						zap.Error(err),
					)
					continue
				}
				select {
				case out <- &event:
				default:
					// 消费方跟不上时丢弃本条推送（每条都是完整快照，后续推送可补齐）
					s.logger.Debug("Subscriber channel full, dropping snapshot",
						zap.String("channel", channel),
					)
				}
			}
		}
	}()

	cancel := func() {
		close(done)
		_ = pubsub.Close()
	}
	return out, cancel, nil
}
