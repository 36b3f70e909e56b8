package subscriber

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"salatiso-escalation/internal/config"
	"salatiso-escalation/internal/domain"
	"salatiso-escalation/internal/service"
	"salatiso-escalation/internal/store"

	"go.uber.org/zap"
)

// MetricsPoller 指标轮询器
// 聚合指标保持实时一致代价太高，刻意采用固定间隔轮询而不是跟随写推送：
// 单记录订阅走推送（Subscriber），跨记录聚合走轮询（这里），两者不合并
type MetricsPoller struct {
	metricsService *service.MetricsService
	kv             store.KV
	cfg            *config.Config
	logger         *zap.Logger

	mu     sync.Mutex
	subs   map[int]*metricsSubscription
	nextID int
}

type metricsSubscription struct {
	tenantID  string
	timeRange domain.TimeRange
	ch        chan *domain.IncidentMetrics
}

// NewMetricsPoller 创建指标轮询器
func NewMetricsPoller(
	metricsService *service.MetricsService,
	kv store.KV,
	cfg *config.Config,
	logger *zap.Logger,
) *MetricsPoller {
	return &MetricsPoller{
		metricsService: metricsService,
		kv:             kv,
		cfg:            cfg,
		logger:         logger,
		subs:           map[int]*metricsSubscription{},
	}
}

// Subscribe 注册一个指标订阅
// 返回指标通道和销毁函数；销毁后通道关闭、轮询不再计算该订阅
func (p *MetricsPoller) Subscribe(tenantID string, timeRange domain.TimeRange) (<-chan *domain.IncidentMetrics, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextID
	p.nextID++
	sub := &metricsSubscription{
		tenantID:  tenantID,
		timeRange: timeRange,
		ch:        make(chan *domain.IncidentMetrics, 1),
	}
	p.subs[id] = sub

	dispose := func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if s, ok := p.subs[id]; ok {
			delete(p.subs, id)
			close(s.ch)
		}
	}
	return sub.ch, dispose
}

// Start 启动轮询循环（阻塞直到 ctx 取消）
func (p *MetricsPoller) Start(ctx context.Context) error {
	interval := time.Duration(p.cfg.Escalation.MetricsPollInterval) * time.Second
	p.logger.Info("Metrics poller started",
		zap.Duration("interval", interval),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// 立即执行一次
	p.pollOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Metrics poller stopped")
			return nil
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

// pollOnce 对每个去重后的 (tenant, range) 组合计算一次指标并分发
func (p *MetricsPoller) pollOnce(ctx context.Context) {
	type target struct {
		tenantID  string
		timeRange domain.TimeRange
		ids       []int
	}

	p.mu.Lock()
	targets := make(map[string]*target)
	for id, sub := range p.subs {
		key := sub.tenantID + "|" + string(sub.timeRange)
		if targets[key] == nil {
			targets[key] = &target{tenantID: sub.tenantID, timeRange: sub.timeRange}
		}
		targets[key].ids = append(targets[key].ids, id)
	}
	p.mu.Unlock()

	for _, t := range targets {
		metrics, err := p.metricsService.GetIncidentMetrics(ctx, t.tenantID, t.timeRange)
		if err != nil {
			p.logger.Error("Failed to compute metrics",
				zap.String("tenant_id", t.tenantID),
				zap.String("range", string(t.timeRange)),
				zap.Error(err),
			)
			// 继续处理其余订阅，不中断
			continue
		}

		p.cacheSnapshot(ctx, metrics)

		// 加锁并确认订阅仍然有效后再发送，避免向已销毁的通道写入
		p.mu.Lock()
		for _, id := range t.ids {
			sub, ok := p.subs[id]
			if !ok {
				continue
			}
			select {
			case sub.ch <- metrics:
			default:
				// 订阅方尚未消费上一份快照，替换为最新的
				select {
				case <-sub.ch:
				default:
				}
				select {
				case sub.ch <- metrics:
				default:
				}
			}
		}
		p.mu.Unlock()
	}
}

// cacheSnapshot 缓存指标快照到 Redis（供 HTTP 查询直接命中，避开重复扫描）
func (p *MetricsPoller) cacheSnapshot(ctx context.Context, metrics *domain.IncidentMetrics) {
	data, err := json.Marshal(metrics)
	if err != nil {
		return
	}
	key := p.snapshotKey(metrics.TenantID, metrics.TimeRange)
	ttl := time.Duration(p.cfg.Escalation.MetricsTTL) * time.Second
	if err := p.kv.Set(ctx, key, string(data), ttl); err != nil {
		p.logger.Warn("Failed to cache metrics snapshot",
			zap.String("key", key),
			zap.Error(err),
		)
	}
}

// CachedMetrics 读取缓存的指标快照（未命中返回 store.ErrMiss）
func (p *MetricsPoller) CachedMetrics(ctx context.Context, tenantID string, timeRange domain.TimeRange) (*domain.IncidentMetrics, error) {
	val, err := p.kv.Get(ctx, p.snapshotKey(tenantID, timeRange))
	if err != nil {
		return nil, err
	}
	var metrics domain.IncidentMetrics
	if err := json.Unmarshal([]byte(val), &metrics); err != nil {
		return nil, fmt.Errorf("failed to decode cached metrics: %w", err)
	}
	return &metrics, nil
}

func (p *MetricsPoller) snapshotKey(tenantID string, timeRange domain.TimeRange) string {
	return fmt.Sprintf("%s%s:%s", p.cfg.Escalation.MetricsKeyPrefix, tenantID, timeRange)
}
