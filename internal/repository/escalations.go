package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"salatiso-escalation/internal/domain"

	"go.uber.org/zap"
)

// PostgresEscalationsRepository 升级事件仓库实现
// 子集合（responders / audit_trail）以 JSONB 数组随记录整体读写，
// 整行 UPDATE + version 条件实现 CAS，避免并发读-改-写互相覆盖
type PostgresEscalationsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresEscalationsRepository 创建升级事件仓库
func NewPostgresEscalationsRepository(db *sql.DB, logger *zap.Logger) *PostgresEscalationsRepository {
	return &PostgresEscalationsRepository{
		db:     db,
		logger: logger,
	}
}

// 确保实现了接口
var _ EscalationsRepository = (*PostgresEscalationsRepository)(nil)

const escalationColumns = `
			event_id,
			tenant_id,
			incident_id,
			context,
			severity,
			status,
			current_level,
			previous_level,
			created_by,
			current_owner,
			previous_owner,
			title,
			description,
			location,
			responders,
			audit_trail,
			resolution_notes,
			resolution_approved_by,
			created_at,
			escalated_at,
			resolved_at,
			updated_at,
			version`

// CreateEscalation 创建升级事件（需验证 tenant_id）
func (r *PostgresEscalationsRepository) CreateEscalation(ctx context.Context, tenantID string, event *domain.EscalationEvent) error {
	if tenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if event == nil {
		return fmt.Errorf("event is required")
	}
	if event.TenantID != tenantID {
		return fmt.Errorf("event.tenant_id must match tenant_id parameter")
	}

	respondersJSON, auditJSON, err := marshalCollections(event)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO escalation_events (` + escalationColumns + `
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23
		)
	`

	event.Version = 1
	_, err = r.db.ExecContext(ctx, query,
		event.EventID,
		event.TenantID,
		event.IncidentID,
		string(event.Context),
		string(event.Severity),
		string(event.Status),
		string(event.CurrentLevel),
		levelPtr(event.PreviousLevel),
		event.CreatedBy,
		event.CurrentOwner,
		event.PreviousOwner,
		event.Title,
		event.Description,
		event.Location,
		respondersJSON,
		auditJSON,
		event.ResolutionNotes,
		event.ResolutionApprovedBy,
		event.CreatedAt,
		event.EscalatedAt,
		event.ResolvedAt,
		event.UpdatedAt,
		event.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to create escalation: %w", err)
	}

	return nil
}

// GetEscalation 根据 event_id 获取单个升级事件（需验证 tenant_id）
func (r *PostgresEscalationsRepository) GetEscalation(ctx context.Context, tenantID, eventID string) (*domain.EscalationEvent, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	if eventID == "" {
		return nil, fmt.Errorf("event_id is required")
	}

	query := `
		SELECT ` + escalationColumns + `
		FROM escalation_events
		WHERE event_id = $1
		  AND tenant_id = $2
	`

	event, err := scanEscalation(r.db.QueryRowContext(ctx, query, eventID, tenantID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get escalation: %w", err)
	}

	return event, nil
}

// UpdateEscalation 整记录 CAS 写入（需验证 tenant_id）
// WHERE version = 期望版本；0 行命中说明并发写入者已抢先，返回 ErrVersionConflict
func (r *PostgresEscalationsRepository) UpdateEscalation(ctx context.Context, tenantID string, event *domain.EscalationEvent) error {
	if tenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if event == nil {
		return fmt.Errorf("event is required")
	}
	if event.EventID == "" {
		return fmt.Errorf("event_id is required")
	}

	respondersJSON, auditJSON, err := marshalCollections(event)
	if err != nil {
		return err
	}

	query := `
		UPDATE escalation_events
		SET status = $1,
		    current_level = $2,
		    previous_level = $3,
		    current_owner = $4,
		    previous_owner = $5,
		    responders = $6,
		    audit_trail = $7,
		    resolution_notes = $8,
		    resolution_approved_by = $9,
		    escalated_at = $10,
		    resolved_at = $11,
		    updated_at = $12,
		    version = version + 1
		WHERE event_id = $13
		  AND tenant_id = $14
		  AND version = $15
	`

	result, err := r.db.ExecContext(ctx, query,
		string(event.Status),
		string(event.CurrentLevel),
		levelPtr(event.PreviousLevel),
		event.CurrentOwner,
		event.PreviousOwner,
		respondersJSON,
		auditJSON,
		event.ResolutionNotes,
		event.ResolutionApprovedBy,
		event.EscalatedAt,
		event.ResolvedAt,
		event.UpdatedAt,
		event.EventID,
		event.TenantID,
		event.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update escalation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// 记录不存在或版本不匹配，用一次读区分
		if _, getErr := r.GetEscalation(ctx, tenantID, event.EventID); getErr == ErrNotFound {
			return ErrNotFound
		}
		return ErrVersionConflict
	}

	event.Version++
	return nil
}

// buildWhereClause 构建 WHERE 子句（用于 ListEscalations 等查询方法）
func (r *PostgresEscalationsRepository) buildWhereClause(tenantID string, filters EscalationFilters, args *[]interface{}, argN *int) []string {
	where := []string{fmt.Sprintf("tenant_id = $%d", *argN)}
	*args = append(*args, tenantID)
	*argN++

	// 来源事件过滤
	if filters.IncidentID != nil {
		where = append(where, fmt.Sprintf("incident_id = $%d", *argN))
		*args = append(*args, *filters.IncidentID)
		*argN++
	}

	// 状态过滤
	if filters.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", *argN))
		*args = append(*args, string(*filters.Status))
		*argN++
	}
	if len(filters.Statuses) > 0 {
		placeholders := make([]string, len(filters.Statuses))
		for i := range filters.Statuses {
			placeholders[i] = fmt.Sprintf("$%d", *argN)
			*args = append(*args, string(filters.Statuses[i]))
			*argN++
		}
		where = append(where, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ", ")))
	}
	if filters.OpenOnly {
		where = append(where, "status NOT IN ('resolved', 'archived', 'cancelled')")
	}

	// 层级过滤
	if filters.Level != nil {
		where = append(where, fmt.Sprintf("current_level = $%d", *argN))
		*args = append(*args, string(*filters.Level))
		*argN++
	}

	// 参与者过滤
	if filters.CreatedBy != nil {
		where = append(where, fmt.Sprintf("created_by = $%d", *argN))
		*args = append(*args, *filters.CreatedBy)
		*argN++
	}
	if filters.AssignedUserID != nil {
		// JSONB 包含查询：响应人数组中存在该 user_id
		where = append(where, fmt.Sprintf("responders @> $%d::jsonb", *argN))
		*args = append(*args, fmt.Sprintf(`[{"user_id": %q}]`, *filters.AssignedUserID))
		*argN++
	}

	// 时间段过滤
	if filters.StartTime != nil {
		where = append(where, fmt.Sprintf("created_at >= $%d", *argN))
		*args = append(*args, *filters.StartTime)
		*argN++
	}
	if filters.EndTime != nil {
		where = append(where, fmt.Sprintf("created_at <= $%d", *argN))
		*args = append(*args, *filters.EndTime)
		*argN++
	}

	return where
}

// ListEscalations 多条件过滤 + 分页查询（需验证 tenant_id）
func (r *PostgresEscalationsRepository) ListEscalations(ctx context.Context, tenantID string, filters EscalationFilters, page, size int) ([]*domain.EscalationEvent, int, error) {
	if tenantID == "" {
		return nil, 0, fmt.Errorf("tenant_id is required")
	}
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}

	var args []interface{}
	argN := 1
	where := r.buildWhereClause(tenantID, filters, &args, &argN)
	whereClause := strings.Join(where, " AND ")

	// 先查总数
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM escalation_events WHERE %s`, whereClause)
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count escalations: %w", err)
	}

	// 再查当前页
	query := fmt.Sprintf(`
		SELECT `+escalationColumns+`
		FROM escalation_events
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, argN, argN+1)
	args = append(args, size, (page-1)*size)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list escalations: %w", err)
	}
	defer rows.Close()

	events := make([]*domain.EscalationEvent, 0)
	for rows.Next() {
		event, err := scanEscalation(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan escalation: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate escalations: %w", err)
	}

	return events, total, nil
}

// ListCreatedSince 指标全量扫描（since 为零值时不限时间）
// 刻意保持 O(n) 扫描 + 应用层聚合，指标是仪表盘便利功能，不在性能敏感路径上
func (r *PostgresEscalationsRepository) ListCreatedSince(ctx context.Context, tenantID string, since time.Time) ([]*domain.EscalationEvent, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}

	query := `
		SELECT ` + escalationColumns + `
		FROM escalation_events
		WHERE tenant_id = $1
		  AND created_at >= $2
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list escalations since: %w", err)
	}
	defer rows.Close()

	events := make([]*domain.EscalationEvent, 0)
	for rows.Next() {
		event, err := scanEscalation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan escalation: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate escalations: %w", err)
	}

	return events, nil
}

// ============================================
// 扫描和序列化辅助
// ============================================

// rowScanner 兼容 *sql.Row 和 *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanEscalation 扫描一行升级事件（处理可空字段和 JSONB 子集合）
func scanEscalation(row rowScanner) (*domain.EscalationEvent, error) {
	var event domain.EscalationEvent
	var previousLevel, previousOwner, location sql.NullString
	var resolutionNotes, resolutionApprovedBy sql.NullString
	var escalatedAt, resolvedAt sql.NullTime
	var respondersJSON, auditJSON []byte

	err := row.Scan(
		&event.EventID,
		&event.TenantID,
		&event.IncidentID,
		&event.Context,
		&event.Severity,
		&event.Status,
		&event.CurrentLevel,
		&previousLevel,
		&event.CreatedBy,
		&event.CurrentOwner,
		&previousOwner,
		&event.Title,
		&event.Description,
		&location,
		&respondersJSON,
		&auditJSON,
		&resolutionNotes,
		&resolutionApprovedBy,
		&event.CreatedAt,
		&escalatedAt,
		&resolvedAt,
		&event.UpdatedAt,
		&event.Version,
	)
	if err != nil {
		return nil, err
	}

	// 处理可空字段
	if previousLevel.Valid {
		l := domain.Level(previousLevel.String)
		event.PreviousLevel = &l
	}
	if previousOwner.Valid {
		event.PreviousOwner = &previousOwner.String
	}
	if location.Valid {
		event.Location = &location.String
	}
	if resolutionNotes.Valid {
		event.ResolutionNotes = &resolutionNotes.String
	}
	if resolutionApprovedBy.Valid {
		event.ResolutionApprovedBy = &resolutionApprovedBy.String
	}
	if escalatedAt.Valid {
		event.EscalatedAt = &escalatedAt.Time
	}
	if resolvedAt.Valid {
		event.ResolvedAt = &resolvedAt.Time
	}

	// 处理 JSONB 子集合
	event.Responders = []domain.ResponderAssignment{}
	if len(respondersJSON) > 0 {
		if err := json.Unmarshal(respondersJSON, &event.Responders); err != nil {
			return nil, fmt.Errorf("failed to unmarshal responders: %w", err)
		}
	}
	event.AuditTrail = []domain.AuditEntry{}
	if len(auditJSON) > 0 {
		if err := json.Unmarshal(auditJSON, &event.AuditTrail); err != nil {
			return nil, fmt.Errorf("failed to unmarshal audit trail: %w", err)
		}
	}

	return &event, nil
}

// marshalCollections 序列化 JSONB 子集合（nil 序列化为空数组）
func marshalCollections(event *domain.EscalationEvent) ([]byte, []byte, error) {
	responders := event.Responders
	if responders == nil {
		responders = []domain.ResponderAssignment{}
	}
	respondersJSON, err := json.Marshal(responders)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal responders: %w", err)
	}

	audit := event.AuditTrail
	if audit == nil {
		audit = []domain.AuditEntry{}
	}
	auditJSON, err := json.Marshal(audit)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal audit trail: %w", err)
	}

	return respondersJSON, auditJSON, nil
}

// levelPtr 可空层级转 SQL 参数
func levelPtr(l *domain.Level) interface{} {
	if l == nil {
		return nil
	}
	return string(*l)
}
