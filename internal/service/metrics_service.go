package service

import (
	"context"
	"time"

	"salatiso-escalation/internal/domain"
	"salatiso-escalation/internal/repository"

	"go.uber.org/zap"
)

// MetricsService 升级事件指标聚合
// O(n) 全量扫描 + 应用层聚合：指标是仪表盘便利功能，不做索引聚合优化
type MetricsService struct {
	repo   repository.EscalationsRepository
	logger *zap.Logger
}

// NewMetricsService 创建指标服务
func NewMetricsService(repo repository.EscalationsRepository, logger *zap.Logger) *MetricsService {
	return &MetricsService{
		repo:   repo,
		logger: logger,
	}
}

// GetIncidentMetrics 计算指定范围的升级事件指标
// 分类统计只覆盖范围内的记录；尾随 24h/7d/30d 窗口计数与请求范围无关；
// 平均解决时长只统计已解决的记录（未解决的不按 0 计入）
func (s *MetricsService) GetIncidentMetrics(ctx context.Context, tenantID string, timeRange domain.TimeRange) (*domain.IncidentMetrics, error) {
	if tenantID == "" {
		return nil, domain.NewWorkflowError(domain.CodeQueryError, "tenant_id is required")
	}
	if !timeRange.Valid() {
		return nil, domain.WorkflowErrorf(domain.CodeQueryError, "invalid time range: %s", timeRange)
	}

	now := time.Now()
	rangeSince := timeRange.Since(now)

	// 尾随 30 天窗口需要至少 30 天的数据，扫描起点取两者中更早的
	scanSince := rangeSince
	if !rangeSince.IsZero() {
		if thirtyDays := now.AddDate(0, 0, -30); thirtyDays.Before(scanSince) {
			scanSince = thirtyDays
		}
	}

	events, err := s.repo.ListCreatedSince(ctx, tenantID, scanSince)
	if err != nil {
		s.logger.Error("Failed to scan escalations for metrics",
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
		return nil, domain.WorkflowErrorf(domain.CodeQueryError, "failed to compute metrics: %v", err)
	}

	metrics := &domain.IncidentMetrics{
		TenantID:    tenantID,
		TimeRange:   timeRange,
		ByStatus:    map[domain.Status]int{},
		BySeverity:  map[domain.Severity]int{},
		ByContext:   map[domain.Context]int{},
		ByLevel:     map[domain.Level]int{},
		GeneratedAt: now,
	}

	var totalResolution time.Duration
	day := now.Add(-24 * time.Hour)
	week := now.AddDate(0, 0, -7)
	month := now.AddDate(0, 0, -30)

	for _, e := range events {
		// 尾随窗口计数（不受请求范围限制）
		if !e.CreatedAt.Before(day) {
			metrics.Last24Hours++
		}
		if !e.CreatedAt.Before(week) {
			metrics.Last7Days++
		}
		if !e.CreatedAt.Before(month) {
			metrics.Last30Days++
		}

		// 范围内统计
		if !rangeSince.IsZero() && e.CreatedAt.Before(rangeSince) {
			continue
		}
		metrics.Total++
		metrics.ByStatus[e.Status]++
		metrics.BySeverity[e.Severity]++
		metrics.ByContext[e.Context]++
		metrics.ByLevel[e.CurrentLevel]++

		if e.Status == domain.StatusResolved && e.ResolvedAt != nil {
			metrics.ResolvedCount++
			totalResolution += e.ResolvedAt.Sub(e.CreatedAt)
		}
	}

	if metrics.ResolvedCount > 0 {
		metrics.AvgResolutionMinutes = totalResolution.Minutes() / float64(metrics.ResolvedCount)
	}

	return metrics, nil
}
