package domain

import (
	"time"
)

// Level 升级层级（按组织权限递增：individual < family < community < professional）
type Level string

const (
	LevelIndividual   Level = "individual"
	LevelFamily       Level = "family"
	LevelCommunity    Level = "community"
	LevelProfessional Level = "professional"
)

// levelRank 层级排序（用于单调性校验和 Next 计算）
var levelRank = map[Level]int{
	LevelIndividual:   0,
	LevelFamily:       1,
	LevelCommunity:    2,
	LevelProfessional: 3,
}

func (l Level) Valid() bool {
	_, ok := levelRank[l]
	return ok
}

// Rank 返回层级序号（未知层级返回 -1）
func (l Level) Rank() int {
	if r, ok := levelRank[l]; ok {
		return r
	}
	return -1
}

// Next 返回下一层级
// professional 是终态，返回 false（不能继续升级）
func (l Level) Next() (Level, bool) {
	switch l {
	case LevelIndividual:
		return LevelFamily, true
	case LevelFamily:
		return LevelCommunity, true
	case LevelCommunity:
		return LevelProfessional, true
	default:
		return l, false
	}
}

// Severity 严重程度（low < medium < high < critical）
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return -1
}

// Context 事件所属领域
type Context string

const (
	ContextPersonal     Context = "personal"
	ContextFamily       Context = "family"
	ContextCommunity    Context = "community"
	ContextProfessional Context = "professional"
)

func (c Context) Valid() bool {
	switch c {
	case ContextPersonal, ContextFamily, ContextCommunity, ContextProfessional:
		return true
	}
	return false
}

// Status 工作流状态
// 注意：状态迁移图是开放的（任意状态可以迁移到任意状态，包括 archived -> open），
// 与原始业务约定保持一致，不做更严格的状态机限制
type Status string

const (
	StatusOpen             Status = "open"
	StatusEscalated        Status = "escalated"
	StatusInProgress       Status = "in_progress"
	StatusAwaitingResponse Status = "awaiting_response"
	StatusOnHold           Status = "on_hold"
	StatusResolved         Status = "resolved"
	StatusArchived         Status = "archived"
	StatusCancelled        Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusEscalated, StatusInProgress, StatusAwaitingResponse,
		StatusOnHold, StatusResolved, StatusArchived, StatusCancelled:
		return true
	}
	return false
}

// IsOpen 是否为"未完结"状态（用于按层级查询待处理升级）
func (s Status) IsOpen() bool {
	switch s {
	case StatusResolved, StatusArchived, StatusCancelled:
		return false
	}
	return true
}

// ShouldAutoEscalate 创建时自动升级规则
// critical 严重程度的事件在创建时立即升级一级（无论领域）
func ShouldAutoEscalate(severity Severity, _ Context) bool {
	return severity == SeverityCritical
}

// AutoEscalateReason 自动升级的审计原因
const AutoEscalateReason = "auto-escalated due to severity"

// EscalationEvent 升级事件领域模型（对应 escalation_events 表）
type EscalationEvent struct {
	// 主键
	EventID string `json:"event_id" db:"event_id"` // UUID, PRIMARY KEY

	// 租户和来源事件关联
	TenantID   string `json:"tenant_id" db:"tenant_id"`     // UUID, NOT NULL
	IncidentID string `json:"incident_id" db:"incident_id"` // 来源事件ID（由外部系统拥有）

	// 分类
	Context  Context  `json:"context" db:"context"`   // VARCHAR(20), CHECK IN ('personal', 'family', 'community', 'professional')
	Severity Severity `json:"severity" db:"severity"` // VARCHAR(20), CHECK IN ('low', 'medium', 'high', 'critical')

	// 工作流状态
	Status        Status `json:"status" db:"status"`                 // VARCHAR(30), NOT NULL
	CurrentLevel  Level  `json:"current_level" db:"current_level"`   // VARCHAR(20), NOT NULL
	PreviousLevel *Level `json:"previous_level" db:"previous_level"` // nullable，升级时记录

	// 归属
	CreatedBy     string  `json:"created_by" db:"created_by"`
	CurrentOwner  string  `json:"current_owner" db:"current_owner"`
	PreviousOwner *string `json:"previous_owner" db:"previous_owner"` // nullable，移交时记录

	// 描述信息
	Title       string  `json:"title" db:"title"`
	Description string  `json:"description" db:"description"`
	Location    *string `json:"location" db:"location"` // nullable

	// 子集合（JSONB 存储，随记录整体读写）
	Responders []ResponderAssignment `json:"responders" db:"responders"`
	AuditTrail []AuditEntry          `json:"audit_trail" db:"audit_trail"`

	// 处理结果
	ResolutionNotes      *string `json:"resolution_notes" db:"resolution_notes"`             // nullable
	ResolutionApprovedBy *string `json:"resolution_approved_by" db:"resolution_approved_by"` // nullable

	// 时间戳
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	EscalatedAt *time.Time `json:"escalated_at" db:"escalated_at"` // nullable
	ResolvedAt  *time.Time `json:"resolved_at" db:"resolved_at"`   // nullable，当且仅当 status == resolved
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`

	// 乐观并发控制版本号（每次写入 +1，CAS 写入防止并发覆盖）
	Version int64 `json:"version" db:"version"`
}

// IsParticipant 判断用户是否为该升级事件的参与者
// 参与者 = 创建人、当前负责人、或任一响应人
func (e *EscalationEvent) IsParticipant(userID string) bool {
	if userID == "" {
		return false
	}
	if e.CreatedBy == userID || e.CurrentOwner == userID {
		return true
	}
	for i := range e.Responders {
		if e.Responders[i].UserID == userID {
			return true
		}
	}
	return false
}

// FindResponder 查找用户的最新一条响应人分配（没有则返回 nil）
// 响应人分配是历史记录，同一用户可能被多次分配，取最后一条
func (e *EscalationEvent) FindResponder(userID string) *ResponderAssignment {
	for i := len(e.Responders) - 1; i >= 0; i-- {
		if e.Responders[i].UserID == userID {
			return &e.Responders[i]
		}
	}
	return nil
}

// Participants 返回去重后的全部参与者（用于订阅推送和通知分发）
func (e *EscalationEvent) Participants() []string {
	seen := make(map[string]bool)
	var users []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			users = append(users, id)
		}
	}
	add(e.CreatedBy)
	add(e.CurrentOwner)
	for i := range e.Responders {
		add(e.Responders[i].UserID)
	}
	return users
}
