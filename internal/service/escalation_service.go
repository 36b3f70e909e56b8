package service

import (
	"context"
	"time"

	"salatiso-escalation/internal/domain"
	"salatiso-escalation/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SnapshotPublisher 变更成功后推送完整快照（Redis pub/sub + stream）
type SnapshotPublisher interface {
	PublishSnapshot(ctx context.Context, event *domain.EscalationEvent) error
}

// Notifier 响应人通知（MQTT / Webhook 等）
// 通知失败只记录日志，不影响变更操作的结果
type Notifier interface {
	NotifyEscalated(ctx context.Context, event *domain.EscalationEvent)
	NotifyAssigned(ctx context.Context, event *domain.EscalationEvent, userID string)
}

// EscalationService 升级工作流服务层
// 职责：
// 1. 业务规则验证（枚举合法性、参与者权限、层级单调性）
// 2. 读-改-写编排（每个操作加载当前记录、计算下一状态、CAS 写回）
// 3. 审计保证（每次成功变更恰好追加一条审计记录）
// 4. 变更后的快照推送和通知分发
type EscalationService struct {
	repo      repository.EscalationsRepository
	publisher SnapshotPublisher
	notifiers []Notifier
	logger    *zap.Logger
}

// NewEscalationService 创建升级工作流服务
// publisher 和 notifiers 可为空（测试或未配置时）
func NewEscalationService(
	repo repository.EscalationsRepository,
	publisher SnapshotPublisher,
	notifiers []Notifier,
	logger *zap.Logger,
) *EscalationService {
	return &EscalationService{
		repo:      repo,
		publisher: publisher,
		notifiers: notifiers,
		logger:    logger,
	}
}

// ============================================
// 请求类型
// ============================================

// CreateEscalationRequest 创建升级事件请求
type CreateEscalationRequest struct {
	IncidentID  string  `json:"incident_id"`
	Context     string  `json:"context"`
	Severity    string  `json:"severity"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Location    *string `json:"location,omitempty"`

	// 可选：创建时直接分配一名初始响应人
	InitialResponderID *string `json:"initial_responder_id,omitempty"`
}

// EscalateRequest 升级到下一层级请求
type EscalateRequest struct {
	Reason         string  `json:"reason"`
	AssignToUserID *string `json:"assign_to_user_id,omitempty"`
}

// UpdateStatusRequest 更新工作流状态请求
type UpdateStatusRequest struct {
	Status string  `json:"status"`
	Notes  *string `json:"notes,omitempty"`
}

// AssignResponderRequest 分配响应人请求
type AssignResponderRequest struct {
	UserID string  `json:"user_id"`
	Role   *string `json:"role,omitempty"` // 缺省为当前层级的默认角色
}

// UpdateResponderStatusRequest 更新响应人处理状态请求
type UpdateResponderStatusRequest struct {
	Status string  `json:"status"`
	Note   *string `json:"note,omitempty"`
}

// HandoffRequest 移交请求
type HandoffRequest struct {
	ToUserID string `json:"to_user_id"`
	Reason   string `json:"reason"`
}

// ============================================
// 变更操作
// ============================================

// CreateEscalation 创建升级事件
// 初始状态 open / individual 层级 / 创建人为当前负责人，恰好一条 created 审计记录；
// critical 严重程度触发创建时自动升级一级（追加第二条 escalated 审计记录）
func (s *EscalationService) CreateEscalation(ctx context.Context, tenantID, actorID string, req CreateEscalationRequest) (*domain.EscalationEvent, error) {
	if tenantID == "" {
		return nil, domain.NewWorkflowError(domain.CodeCreateError, "tenant_id is required")
	}
	if actorID == "" {
		return nil, domain.NewWorkflowError(domain.CodeCreateError, "actor_id is required")
	}
	if req.IncidentID == "" {
		return nil, domain.NewWorkflowError(domain.CodeCreateError, "incident_id is required")
	}
	if req.Title == "" {
		return nil, domain.NewWorkflowError(domain.CodeCreateError, "title is required")
	}
	eventContext := domain.Context(req.Context)
	if !eventContext.Valid() {
		return nil, domain.WorkflowErrorf(domain.CodeCreateError, "invalid context: %s", req.Context)
	}
	severity := domain.Severity(req.Severity)
	if !severity.Valid() {
		return nil, domain.WorkflowErrorf(domain.CodeCreateError, "invalid severity: %s", req.Severity)
	}

	now := time.Now()
	event := &domain.EscalationEvent{
		EventID:      uuid.New().String(),
		TenantID:     tenantID,
		IncidentID:   req.IncidentID,
		Context:      eventContext,
		Severity:     severity,
		Status:       domain.StatusOpen,
		CurrentLevel: domain.LevelIndividual,
		CreatedBy:    actorID,
		CurrentOwner: actorID,
		Title:        req.Title,
		Description:  req.Description,
		Location:     req.Location,
		Responders:   []domain.ResponderAssignment{},
		AuditTrail:   []domain.AuditEntry{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// 可选的初始响应人（不追加额外审计记录，包含在 created 中）
	if req.InitialResponderID != nil && *req.InitialResponderID != "" {
		assignment := domain.ResponderAssignment{
			UserID:     *req.InitialResponderID,
			Role:       domain.DefaultRoleForLevel(event.CurrentLevel),
			AssignedAt: now,
			AssignedBy: actorID,
			Status:     domain.ResponderStatusAssigned,
			Actions:    []domain.ResponderAction{},
		}
		assignment.AppendAction("assigned", "", actorID, now)
		event.Responders = append(event.Responders, assignment)
	}

	event.AppendAudit(domain.AuditActionCreated, actorID, now, map[string]any{
		"incident_id": req.IncidentID,
		"context":     string(eventContext),
		"severity":    string(severity),
		"title":       req.Title,
	})

	// 自动升级规则：在插入前应用，保证创建+升级单次写入原子生效
	if domain.ShouldAutoEscalate(severity, eventContext) {
		s.applyLevelAdvance(event, actorID, now, domain.AutoEscalateReason, nil)
	}

	if err := s.repo.CreateEscalation(ctx, tenantID, event); err != nil {
		s.logger.Error("Failed to create escalation",
			zap.String("tenant_id", tenantID),
			zap.String("incident_id", req.IncidentID),
			zap.Error(err),
		)
		return nil, domain.WorkflowErrorf(domain.CodeCreateError, "failed to create escalation: %v", err)
	}

	s.logger.Info("Escalation created",
		zap.String("tenant_id", tenantID),
		zap.String("event_id", event.EventID),
		zap.String("severity", string(severity)),
		zap.String("level", string(event.CurrentLevel)),
	)

	s.afterMutation(ctx, event)
	if event.Status == domain.StatusEscalated {
		s.notifyEscalated(ctx, event)
	}
	return event, nil
}

// EscalateToNextLevel 升级到下一层级
// professional 是终态，继续升级返回 ESCALATE_ERROR 且记录保持不变；
// 层级+状态+负责人+审计在同一次 CAS 写入中原子生效
func (s *EscalationService) EscalateToNextLevel(ctx context.Context, tenantID, eventID, actorID string, req EscalateRequest) (*domain.EscalationEvent, error) {
	if actorID == "" {
		return nil, domain.NewWorkflowError(domain.CodeEscalateError, "actor_id is required")
	}

	event, werr := s.load(ctx, tenantID, eventID, domain.CodeEscalateError)
	if werr != nil {
		return nil, werr
	}

	if _, ok := event.CurrentLevel.Next(); !ok {
		return nil, domain.WorkflowErrorf(domain.CodeEscalateError,
			"escalation %s is already at %s level and cannot be escalated further", eventID, event.CurrentLevel)
	}

	now := time.Now()
	s.applyLevelAdvance(event, actorID, now, req.Reason, req.AssignToUserID)
	event.UpdatedAt = now

	if err := s.update(ctx, tenantID, event, domain.CodeEscalateError); err != nil {
		return nil, err
	}

	s.logger.Info("Escalation advanced",
		zap.String("tenant_id", tenantID),
		zap.String("event_id", eventID),
		zap.String("level", string(event.CurrentLevel)),
	)

	s.afterMutation(ctx, event)
	s.notifyEscalated(ctx, event)
	if req.AssignToUserID != nil {
		s.notifyAssigned(ctx, event, *req.AssignToUserID)
	}
	return event, nil
}

// applyLevelAdvance 在内存中应用一次层级升级
// previousLevel/currentLevel/status/escalatedAt/owner + 一条 escalated 审计记录
func (s *EscalationService) applyLevelAdvance(event *domain.EscalationEvent, actorID string, now time.Time, reason string, assignTo *string) {
	from := event.CurrentLevel
	next, ok := from.Next()
	if !ok {
		return
	}

	event.PreviousLevel = &from
	event.CurrentLevel = next
	event.Status = domain.StatusEscalated
	event.EscalatedAt = &now

	newOwner := actorID
	if assignTo != nil && *assignTo != "" {
		newOwner = *assignTo
	}
	if newOwner != event.CurrentOwner {
		prev := event.CurrentOwner
		event.PreviousOwner = &prev
		event.CurrentOwner = newOwner
	}

	if assignTo != nil && *assignTo != "" {
		assignment := domain.ResponderAssignment{
			UserID:     *assignTo,
			Role:       domain.DefaultRoleForLevel(next),
			AssignedAt: now,
			AssignedBy: actorID,
			Status:     domain.ResponderStatusAssigned,
			Actions:    []domain.ResponderAction{},
		}
		assignment.AppendAction("assigned", reason, actorID, now)
		event.Responders = append(event.Responders, assignment)
	}

	event.AppendAudit(domain.AuditActionEscalated, actorID, now, map[string]any{
		"from_level": string(from),
		"to_level":   string(next),
		"reason":     reason,
	})
}

// UpdateEscalationStatus 更新工作流状态
// 状态迁移图保持开放（任意状态 -> 任意状态），只校验状态值本身合法；
// resolved 时设置 resolvedAt / resolutionNotes / resolutionApprovedBy，
// 离开 resolved 时清除（保证 resolvedAt 当且仅当 status == resolved）
func (s *EscalationService) UpdateEscalationStatus(ctx context.Context, tenantID, eventID, actorID string, req UpdateStatusRequest) (*domain.EscalationEvent, error) {
	if actorID == "" {
		return nil, domain.NewWorkflowError(domain.CodeUpdateError, "actor_id is required")
	}
	newStatus := domain.Status(req.Status)
	if !newStatus.Valid() {
		return nil, domain.WorkflowErrorf(domain.CodeUpdateError, "invalid status: %s", req.Status)
	}

	event, werr := s.load(ctx, tenantID, eventID, domain.CodeUpdateError)
	if werr != nil {
		return nil, werr
	}

	now := time.Now()
	oldStatus := event.Status
	event.Status = newStatus
	event.UpdatedAt = now

	auditAction := domain.AuditActionUpdated
	changes := map[string]any{
		"from_status": string(oldStatus),
		"to_status":   string(newStatus),
	}
	if req.Notes != nil {
		changes["notes"] = *req.Notes
	}

	if newStatus == domain.StatusResolved {
		auditAction = domain.AuditActionResolved
		event.ResolvedAt = &now
		event.ResolutionNotes = req.Notes
		approvedBy := actorID
		event.ResolutionApprovedBy = &approvedBy
	} else if oldStatus == domain.StatusResolved {
		// 离开 resolved：resolvedAt 必须与状态保持一致
		event.ResolvedAt = nil
		event.ResolutionNotes = nil
		event.ResolutionApprovedBy = nil
	}

	event.AppendAudit(auditAction, actorID, now, changes)

	if err := s.update(ctx, tenantID, event, domain.CodeUpdateError); err != nil {
		return nil, err
	}

	s.logger.Info("Escalation status updated",
		zap.String("tenant_id", tenantID),
		zap.String("event_id", eventID),
		zap.String("from_status", string(oldStatus)),
		zap.String("to_status", string(newStatus)),
	)

	s.afterMutation(ctx, event)
	return event, nil
}

// AssignResponder 分配响应人
// 操作人必须是参与者（创建人、当前负责人或既有响应人）
func (s *EscalationService) AssignResponder(ctx context.Context, tenantID, eventID, actorID string, req AssignResponderRequest) (*domain.EscalationEvent, error) {
	if actorID == "" {
		return nil, domain.NewWorkflowError(domain.CodeAssignRoleError, "actor_id is required")
	}
	if req.UserID == "" {
		return nil, domain.NewWorkflowError(domain.CodeAssignRoleError, "user_id is required")
	}

	event, werr := s.load(ctx, tenantID, eventID, domain.CodeAssignRoleError)
	if werr != nil {
		return nil, werr
	}
	if !event.IsParticipant(actorID) {
		return nil, domain.WorkflowErrorf(domain.CodePermissionDenied,
			"user %s is not a participant of escalation %s", actorID, eventID)
	}

	role := domain.DefaultRoleForLevel(event.CurrentLevel)
	if req.Role != nil && *req.Role != "" {
		role = domain.ResponderRole(*req.Role)
	}

	now := time.Now()
	assignment := domain.ResponderAssignment{
		UserID:     req.UserID,
		Role:       role,
		AssignedAt: now,
		AssignedBy: actorID,
		Status:     domain.ResponderStatusAssigned,
		Actions:    []domain.ResponderAction{},
	}
	assignment.AppendAction("assigned", "", actorID, now)
	event.Responders = append(event.Responders, assignment)
	event.UpdatedAt = now

	event.AppendAudit(domain.AuditActionAssigned, actorID, now, map[string]any{
		"user_id": req.UserID,
		"role":    string(role),
	})

	if err := s.update(ctx, tenantID, event, domain.CodeAssignRoleError); err != nil {
		return nil, err
	}

	s.logger.Info("Responder assigned",
		zap.String("tenant_id", tenantID),
		zap.String("event_id", eventID),
		zap.String("user_id", req.UserID),
		zap.String("role", string(role)),
	)

	s.afterMutation(ctx, event)
	s.notifyAssigned(ctx, event, req.UserID)
	return event, nil
}

// AcknowledgeAssignment 响应人确认自己的分配
// assigned -> acknowledged，设置 acknowledged / acknowledgedAt
func (s *EscalationService) AcknowledgeAssignment(ctx context.Context, tenantID, eventID, actorID string) (*domain.EscalationEvent, error) {
	if actorID == "" {
		return nil, domain.NewWorkflowError(domain.CodeRespondRoleError, "actor_id is required")
	}

	event, werr := s.load(ctx, tenantID, eventID, domain.CodeRespondRoleError)
	if werr != nil {
		return nil, werr
	}

	assignment := event.FindResponder(actorID)
	if assignment == nil {
		return nil, domain.WorkflowErrorf(domain.CodePermissionDenied,
			"user %s has no responder assignment on escalation %s", actorID, eventID)
	}
	if assignment.Status != domain.ResponderStatusAssigned {
		return nil, domain.WorkflowErrorf(domain.CodeRespondRoleError,
			"assignment can only be acknowledged from assigned status, current: %s", assignment.Status)
	}

	now := time.Now()
	assignment.Acknowledged = true
	assignment.AcknowledgedAt = &now
	assignment.Status = domain.ResponderStatusAcknowledged
	assignment.AppendAction("acknowledged", "", actorID, now)
	event.UpdatedAt = now

	event.AppendAudit(domain.AuditActionResponded, actorID, now, map[string]any{
		"responder_status": string(domain.ResponderStatusAcknowledged),
	})

	if err := s.update(ctx, tenantID, event, domain.CodeRespondRoleError); err != nil {
		return nil, err
	}

	s.logger.Info("Assignment acknowledged",
		zap.String("tenant_id", tenantID),
		zap.String("event_id", eventID),
		zap.String("user_id", actorID),
	)

	s.afterMutation(ctx, event)
	return event, nil
}

// UpdateResponderStatus 响应人更新自己的处理状态
func (s *EscalationService) UpdateResponderStatus(ctx context.Context, tenantID, eventID, actorID string, req UpdateResponderStatusRequest) (*domain.EscalationEvent, error) {
	if actorID == "" {
		return nil, domain.NewWorkflowError(domain.CodeRespondRoleError, "actor_id is required")
	}
	newStatus := domain.ResponderStatus(req.Status)
	if !newStatus.Valid() {
		return nil, domain.WorkflowErrorf(domain.CodeRespondRoleError, "invalid responder status: %s", req.Status)
	}

	event, werr := s.load(ctx, tenantID, eventID, domain.CodeRespondRoleError)
	if werr != nil {
		return nil, werr
	}

	assignment := event.FindResponder(actorID)
	if assignment == nil {
		return nil, domain.WorkflowErrorf(domain.CodePermissionDenied,
			"user %s has no responder assignment on escalation %s", actorID, eventID)
	}

	now := time.Now()
	note := ""
	if req.Note != nil {
		note = *req.Note
	}
	assignment.Status = newStatus
	assignment.AppendAction("status_"+string(newStatus), note, actorID, now)
	event.UpdatedAt = now

	event.AppendAudit(domain.AuditActionResponded, actorID, now, map[string]any{
		"responder_status": string(newStatus),
		"note":             note,
	})

	if err := s.update(ctx, tenantID, event, domain.CodeRespondRoleError); err != nil {
		return nil, err
	}

	s.afterMutation(ctx, event)
	return event, nil
}

// HandoffEscalation 移交升级事件
// 移交方分配记录标记 handoff，接收方获得当前层级默认角色的新分配，
// 父记录 previousOwner/currentOwner 同步调整
func (s *EscalationService) HandoffEscalation(ctx context.Context, tenantID, eventID, actorID string, req HandoffRequest) (*domain.EscalationEvent, error) {
	if actorID == "" {
		return nil, domain.NewWorkflowError(domain.CodeRespondRoleError, "actor_id is required")
	}
	if req.ToUserID == "" {
		return nil, domain.NewWorkflowError(domain.CodeRespondRoleError, "to_user_id is required")
	}

	event, werr := s.load(ctx, tenantID, eventID, domain.CodeRespondRoleError)
	if werr != nil {
		return nil, werr
	}
	if !event.IsParticipant(actorID) {
		return nil, domain.WorkflowErrorf(domain.CodePermissionDenied,
			"user %s is not a participant of escalation %s", actorID, eventID)
	}

	now := time.Now()

	// 移交方自己的分配记录（如有）标记为 handoff
	if assignment := event.FindResponder(actorID); assignment != nil {
		assignment.Status = domain.ResponderStatusHandoff
		assignment.HandoffTo = &req.ToUserID
		assignment.HandoffReason = &req.Reason
		assignment.AppendAction("handoff", req.Reason, actorID, now)
	}

	// 接收方获得新分配
	newAssignment := domain.ResponderAssignment{
		UserID:     req.ToUserID,
		Role:       domain.DefaultRoleForLevel(event.CurrentLevel),
		AssignedAt: now,
		AssignedBy: actorID,
		Status:     domain.ResponderStatusAssigned,
		Actions:    []domain.ResponderAction{},
	}
	newAssignment.AppendAction("assigned", req.Reason, actorID, now)
	event.Responders = append(event.Responders, newAssignment)

	// 归属调整
	prev := event.CurrentOwner
	event.PreviousOwner = &prev
	event.CurrentOwner = req.ToUserID
	event.UpdatedAt = now

	event.AppendAudit(domain.AuditActionHandoff, actorID, now, map[string]any{
		"from_user": actorID,
		"to_user":   req.ToUserID,
		"reason":    req.Reason,
	})

	if err := s.update(ctx, tenantID, event, domain.CodeRespondRoleError); err != nil {
		return nil, err
	}

	s.logger.Info("Escalation handed off",
		zap.String("tenant_id", tenantID),
		zap.String("event_id", eventID),
		zap.String("from_user", actorID),
		zap.String("to_user", req.ToUserID),
	)

	s.afterMutation(ctx, event)
	s.notifyAssigned(ctx, event, req.ToUserID)
	return event, nil
}

// ============================================
// 查询操作（纯读，无副作用；未命中返回空集合而不是错误）
// ============================================

// GetEscalationByID 按 ID 查询
func (s *EscalationService) GetEscalationByID(ctx context.Context, tenantID, eventID string) (*domain.EscalationEvent, error) {
	if tenantID == "" {
		return nil, domain.NewWorkflowError(domain.CodeReadError, "tenant_id is required")
	}
	if eventID == "" {
		return nil, domain.NewWorkflowError(domain.CodeReadError, "event_id is required")
	}

	event, err := s.repo.GetEscalation(ctx, tenantID, eventID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, domain.WorkflowErrorf(domain.CodeReadError, "escalation not found: %s", eventID)
		}
		return nil, domain.WorkflowErrorf(domain.CodeReadError, "failed to get escalation: %v", err)
	}
	return event, nil
}

// GetEscalationsByIncidentID 按来源事件查询
func (s *EscalationService) GetEscalationsByIncidentID(ctx context.Context, tenantID, incidentID string) ([]*domain.EscalationEvent, error) {
	filters := repository.EscalationFilters{IncidentID: &incidentID}
	return s.query(ctx, tenantID, filters)
}

// GetOpenEscalationsByLevel 按层级查询未完结的升级事件
func (s *EscalationService) GetOpenEscalationsByLevel(ctx context.Context, tenantID string, level domain.Level) ([]*domain.EscalationEvent, error) {
	if !level.Valid() {
		return nil, domain.WorkflowErrorf(domain.CodeQueryError, "invalid level: %s", level)
	}
	filters := repository.EscalationFilters{Level: &level, OpenOnly: true}
	return s.query(ctx, tenantID, filters)
}

// GetUserAssignedEscalations 查询用户作为响应人的升级事件
func (s *EscalationService) GetUserAssignedEscalations(ctx context.Context, tenantID, userID string) ([]*domain.EscalationEvent, error) {
	filters := repository.EscalationFilters{AssignedUserID: &userID}
	return s.query(ctx, tenantID, filters)
}

// GetCreatedEscalations 查询用户创建的升级事件
func (s *EscalationService) GetCreatedEscalations(ctx context.Context, tenantID, userID string) ([]*domain.EscalationEvent, error) {
	filters := repository.EscalationFilters{CreatedBy: &userID}
	return s.query(ctx, tenantID, filters)
}

// ListEscalations 多条件过滤 + 分页查询
func (s *EscalationService) ListEscalations(ctx context.Context, tenantID string, filters repository.EscalationFilters, page, size int) ([]*domain.EscalationEvent, int, error) {
	if tenantID == "" {
		return nil, 0, domain.NewWorkflowError(domain.CodeQueryError, "tenant_id is required")
	}
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}

	events, total, err := s.repo.ListEscalations(ctx, tenantID, filters, page, size)
	if err != nil {
		s.logger.Error("Failed to list escalations",
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
		return nil, 0, domain.WorkflowErrorf(domain.CodeQueryError, "failed to list escalations: %v", err)
	}
	return events, total, nil
}

// ============================================
// 内部辅助
// ============================================

func (s *EscalationService) query(ctx context.Context, tenantID string, filters repository.EscalationFilters) ([]*domain.EscalationEvent, error) {
	if tenantID == "" {
		return nil, domain.NewWorkflowError(domain.CodeQueryError, "tenant_id is required")
	}
	events, _, err := s.repo.ListEscalations(ctx, tenantID, filters, 1, 100)
	if err != nil {
		s.logger.Error("Failed to query escalations",
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
		return nil, domain.WorkflowErrorf(domain.CodeQueryError, "failed to query escalations: %v", err)
	}
	return events, nil
}

// load 加载记录，错误映射到调用操作的错误码
func (s *EscalationService) load(ctx context.Context, tenantID, eventID string, code domain.ErrorCode) (*domain.EscalationEvent, *domain.WorkflowError) {
	if tenantID == "" {
		return nil, domain.NewWorkflowError(code, "tenant_id is required")
	}
	if eventID == "" {
		return nil, domain.NewWorkflowError(code, "event_id is required")
	}

	event, err := s.repo.GetEscalation(ctx, tenantID, eventID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, domain.WorkflowErrorf(code, "escalation not found: %s", eventID)
		}
		return nil, domain.WorkflowErrorf(code, "failed to get escalation: %v", err)
	}
	return event, nil
}

// update CAS 写回，版本冲突映射为 VERSION_CONFLICT
func (s *EscalationService) update(ctx context.Context, tenantID string, event *domain.EscalationEvent, code domain.ErrorCode) *domain.WorkflowError {
	err := s.repo.UpdateEscalation(ctx, tenantID, event)
	if err == nil {
		return nil
	}
	if err == repository.ErrVersionConflict {
		return domain.WorkflowErrorf(domain.CodeVersionConflict,
			"escalation %s was modified concurrently, reload and retry", event.EventID)
	}
	if err == repository.ErrNotFound {
		return domain.WorkflowErrorf(code, "escalation not found: %s", event.EventID)
	}
	s.logger.Error("Failed to update escalation",
		zap.String("tenant_id", tenantID),
		zap.String("event_id", event.EventID),
		zap.Error(err),
	)
	return domain.WorkflowErrorf(code, "failed to update escalation: %v", err)
}

// afterMutation 变更成功后推送完整快照
func (s *EscalationService) afterMutation(ctx context.Context, event *domain.EscalationEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishSnapshot(ctx, event); err != nil {
		s.logger.Warn("Failed to publish escalation snapshot",
			zap.String("event_id", event.EventID),
			zap.Error(err),
		)
	}
}

func (s *EscalationService) notifyEscalated(ctx context.Context, event *domain.EscalationEvent) {
	for _, n := range s.notifiers {
		n.NotifyEscalated(ctx, event)
	}
}

func (s *EscalationService) notifyAssigned(ctx context.Context, event *domain.EscalationEvent, userID string) {
	for _, n := range s.notifiers {
		n.NotifyAssigned(ctx, event, userID)
	}
}
