package domain

import (
	"time"
)

// ResponderStatus 响应人处理状态
type ResponderStatus string

const (
	ResponderStatusAssigned     ResponderStatus = "assigned"
	ResponderStatusAcknowledged ResponderStatus = "acknowledged"
	ResponderStatusInProgress   ResponderStatus = "in_progress"
	ResponderStatusHandoff      ResponderStatus = "handoff"
	ResponderStatusCompleted    ResponderStatus = "completed"
)

func (s ResponderStatus) Valid() bool {
	switch s {
	case ResponderStatusAssigned, ResponderStatusAcknowledged, ResponderStatusInProgress,
		ResponderStatusHandoff, ResponderStatusCompleted:
		return true
	}
	return false
}

// ResponderRole 响应人角色（与分配时所处的层级绑定）
type ResponderRole string

const (
	RoleFirstResponder        ResponderRole = "first_responder"
	RoleFamilyCoordinator     ResponderRole = "family_coordinator"
	RoleCommunityResponder    ResponderRole = "community_responder"
	RoleProfessionalResponder ResponderRole = "professional_responder"
)

// DefaultRoleForLevel 返回层级对应的默认响应人角色
func DefaultRoleForLevel(level Level) ResponderRole {
	switch level {
	case LevelFamily:
		return RoleFamilyCoordinator
	case LevelCommunity:
		return RoleCommunityResponder
	case LevelProfessional:
		return RoleProfessionalResponder
	default:
		return RoleFirstResponder
	}
}

// ResponderAssignment 响应人分配记录
// 历史记录，只追加不删除
type ResponderAssignment struct {
	UserID         string            `json:"user_id"`
	Role           ResponderRole     `json:"role"`
	AssignedAt     time.Time         `json:"assigned_at"`
	AssignedBy     string            `json:"assigned_by"`
	Acknowledged   bool              `json:"acknowledged"`
	AcknowledgedAt *time.Time        `json:"acknowledged_at,omitempty"`
	Status         ResponderStatus   `json:"status"`
	HandoffTo      *string           `json:"handoff_to,omitempty"`
	HandoffReason  *string           `json:"handoff_reason,omitempty"`
	Actions        []ResponderAction `json:"actions"`
}

// ResponderAction 响应人针对自己分配记录的处理动作（只追加）
type ResponderAction struct {
	Action    string    `json:"action"`
	Note      string    `json:"note,omitempty"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

// AppendAction 追加一条处理动作
func (a *ResponderAssignment) AppendAction(action, note, userID string, at time.Time) {
	a.Actions = append(a.Actions, ResponderAction{
		Action:    action,
		Note:      note,
		UserID:    userID,
		Timestamp: at,
	})
}
