package repository

import (
	"context"
	"errors"
	"time"

	"salatiso-escalation/internal/domain"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("escalation not found")

// ErrVersionConflict 乐观并发冲突（期望版本与存储版本不一致）
// 并发写入时后写方收到该错误并重试，而不是静默覆盖先写方的变更
var ErrVersionConflict = errors.New("escalation version conflict")

// EscalationFilters 升级事件过滤条件
type EscalationFilters struct {
	// 来源事件过滤
	IncidentID *string

	// 工作流状态过滤
	Status   *domain.Status
	Statuses []domain.Status // IN 查询
	OpenOnly bool            // 仅未完结状态（非 resolved/archived/cancelled）

	// 层级过滤
	Level *domain.Level

	// 参与者过滤
	CreatedBy      *string
	AssignedUserID *string // 响应人列表包含该用户（JSONB 包含查询）

	// 时间段过滤（created_at）
	StartTime *time.Time
	EndTime   *time.Time
}

// EscalationsRepository 升级事件仓库接口
// 仓库只负责持久化；工作流规则（审计追加、层级单调性）由服务层保证
type EscalationsRepository interface {
	// CreateEscalation 插入新记录（version 从 1 开始）
	CreateEscalation(ctx context.Context, tenantID string, event *domain.EscalationEvent) error

	// GetEscalation 按 event_id 读取完整记录（需验证 tenant_id）
	GetEscalation(ctx context.Context, tenantID, eventID string) (*domain.EscalationEvent, error)

	// UpdateEscalation 整记录 CAS 写入
	// 以 event.Version 作为期望版本，WHERE version = 期望值；命中 0 行返回 ErrVersionConflict。
	// 整行单条 UPDATE 保证多字段变更（层级+状态+负责人+审计）原子生效。
	// 成功后 event.Version 自增。
	UpdateEscalation(ctx context.Context, tenantID string, event *domain.EscalationEvent) error

	// ListEscalations 多条件过滤 + 分页查询
	ListEscalations(ctx context.Context, tenantID string, filters EscalationFilters, page, size int) ([]*domain.EscalationEvent, int, error)

	// ListCreatedSince 指标全量扫描（since 为零值时不限时间）
	ListCreatedSince(ctx context.Context, tenantID string, since time.Time) ([]*domain.EscalationEvent, error)
}
