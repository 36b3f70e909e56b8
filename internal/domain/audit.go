package domain

import (
	"time"
)

// AuditAction 审计动作类型
type AuditAction string

const (
	AuditActionCreated   AuditAction = "created"
	AuditActionUpdated   AuditAction = "updated"
	AuditActionEscalated AuditAction = "escalated"
	AuditActionAssigned  AuditAction = "assigned"
	AuditActionResponded AuditAction = "responded"
	AuditActionResolved  AuditAction = "resolved"
	AuditActionHandoff   AuditAction = "handoff"
)

// AuditEntry 审计记录（只追加，按 Timestamp 全序）
// Changes 保持自由格式 JSON（新增动作类型无需变更 schema）
type AuditEntry struct {
	Action    AuditAction    `json:"action"`
	UserID    string         `json:"user_id"`
	Timestamp time.Time      `json:"timestamp"`
	Level     Level          `json:"level"` // 动作发生时的层级
	Changes   map[string]any `json:"changes,omitempty"`
}

// AppendAudit 追加一条审计记录
// 每个成功的变更操作必须恰好调用一次
func (e *EscalationEvent) AppendAudit(action AuditAction, userID string, at time.Time, changes map[string]any) {
	e.AuditTrail = append(e.AuditTrail, AuditEntry{
		Action:    action,
		UserID:    userID,
		Timestamp: at,
		Level:     e.CurrentLevel,
		Changes:   changes,
	})
}
