package httpapi

import (
	"net/http"
	"strings"
	"time"

	"salatiso-escalation/internal/domain"
	"salatiso-escalation/internal/repository"
	"salatiso-escalation/internal/service"

	"go.uber.org/zap"
)

const escalationsBasePath = "/api/v1/escalations"

// EscalationHandler 升级事件 Handler
type EscalationHandler struct {
	escalationService *service.EscalationService
	metricsService    *service.MetricsService
	logger            *zap.Logger
}

// NewEscalationHandler 创建升级事件 Handler
func NewEscalationHandler(
	escalationService *service.EscalationService,
	metricsService *service.MetricsService,
	logger *zap.Logger,
) *EscalationHandler {
	return &EscalationHandler{
		escalationService: escalationService,
		metricsService:    metricsService,
		logger:            logger,
	}
}

// ServeHTTP 实现 http.Handler 接口
func (h *EscalationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// 路由分发
	path := r.URL.Path
	switch {
	case path == escalationsBasePath && r.Method == http.MethodGet:
		h.ListEscalations(w, r)
	case path == escalationsBasePath && r.Method == http.MethodPost:
		h.CreateEscalation(w, r)
	case path == escalationsBasePath+"/metrics" && r.Method == http.MethodGet:
		h.GetMetrics(w, r)
	case path == escalationsBasePath+"/export" && r.Method == http.MethodGet:
		h.ExportEscalations(w, r)
	default:
		h.dispatchByID(w, r)
	}
}

// dispatchByID 处理 /api/v1/escalations/{id}[/...] 形式的路由
func (h *EscalationHandler) dispatchByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, escalationsBasePath+"/")
	if rest == "" || rest == r.URL.Path {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	parts := strings.Split(rest, "/")
	eventID := parts[0]
	if eventID == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.GetEscalation(w, r, eventID)
	case len(parts) == 2 && parts[1] == "escalate" && r.Method == http.MethodPost:
		h.Escalate(w, r, eventID)
	case len(parts) == 2 && parts[1] == "status" && r.Method == http.MethodPut:
		h.UpdateStatus(w, r, eventID)
	case len(parts) == 2 && parts[1] == "responders" && r.Method == http.MethodPost:
		h.AssignResponder(w, r, eventID)
	case len(parts) == 3 && parts[1] == "responders" && parts[2] == "acknowledge" && r.Method == http.MethodPut:
		h.AcknowledgeAssignment(w, r, eventID)
	case len(parts) == 3 && parts[1] == "responders" && parts[2] == "status" && r.Method == http.MethodPut:
		h.UpdateResponderStatus(w, r, eventID)
	case len(parts) == 2 && parts[1] == "handoff" && r.Method == http.MethodPost:
		h.Handoff(w, r, eventID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// ============================================
// 变更操作
// ============================================

// CreateEscalation 创建升级事件
func (h *EscalationHandler) CreateEscalation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := tenantIDFromReq(w, r)
	if !ok {
		return
	}
	actorID, ok := actorIDFromReq(w, r)
	if !ok {
		return
	}

	var req service.CreateEscalationRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid request body"))
		return
	}

	event, err := h.escalationService.CreateEscalation(ctx, tenantID, actorID, req)
	if err != nil {
		writeJSON(w, http.StatusOK, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(event))
}

// Escalate 升级到下一层级
func (h *EscalationHandler) Escalate(w http.ResponseWriter, r *http.Request, eventID string) {
	ctx := r.Context()
	tenantID, ok := tenantIDFromReq(w, r)
	if !ok {
		return
	}
	actorID, ok := actorIDFromReq(w, r)
	if !ok {
		return
	}

	var req service.EscalateRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid request body"))
		return
	}

	event, err := h.escalationService.EscalateToNextLevel(ctx, tenantID, eventID, actorID, req)
	if err != nil {
		writeJSON(w, http.StatusOK, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(event))
}

// UpdateStatus 更新工作流状态
func (h *EscalationHandler) UpdateStatus(w http.ResponseWriter, r *http.Request, eventID string) {
	ctx := r.Context()
	tenantID, ok := tenantIDFromReq(w, r)
	if !ok {
		return
	}
	actorID, ok := actorIDFromReq(w, r)
	if !ok {
		return
	}

	var req service.UpdateStatusRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid request body"))
		return
	}

	event, err := h.escalationService.UpdateEscalationStatus(ctx, tenantID, eventID, actorID, req)
	if err != nil {
		writeJSON(w, http.StatusOK, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(event))
}

// AssignResponder 分配响应人
func (h *EscalationHandler) AssignResponder(w http.ResponseWriter, r *http.Request, eventID string) {
	ctx := r.Context()
	tenantID, ok := tenantIDFromReq(w, r)
	if !ok {
		return
	}
	actorID, ok := actorIDFromReq(w, r)
	if !ok {
		return
	}

	var req service.AssignResponderRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid request body"))
		return
	}

	event, err := h.escalationService.AssignResponder(ctx, tenantID, eventID, actorID, req)
	if err != nil {
		writeJSON(w, http.StatusOK, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(event))
}

// AcknowledgeAssignment 响应人确认自己的分配
func (h *EscalationHandler) AcknowledgeAssignment(w http.ResponseWriter, r *http.Request, eventID string) {
	ctx := r.Context()
	tenantID, ok := tenantIDFromReq(w, r)
	if !ok {
		return
	}
	actorID, ok := actorIDFromReq(w, r)
	if !ok {
		return
	}

	event, err := h.escalationService.AcknowledgeAssignment(ctx, tenantID, eventID, actorID)
	if err != nil {
		writeJSON(w, http.StatusOK, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(event))
}

// UpdateResponderStatus 响应人更新处理状态
func (h *EscalationHandler) UpdateResponderStatus(w http.ResponseWriter, r *http.Request, eventID string) {
	ctx := r.Context()
	tenantID, ok := tenantIDFromReq(w, r)
	if !ok {
		return
	}
	actorID, ok := actorIDFromReq(w, r)
	if !ok {
		return
	}

	var req service.UpdateResponderStatusRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid request body"))
		return
	}

	event, err := h.escalationService.UpdateResponderStatus(ctx, tenantID, eventID, actorID, req)
	if err != nil {
		writeJSON(w, http.StatusOK, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(event))
}

// Handoff 移交升级事件
func (h *EscalationHandler) Handoff(w http.ResponseWriter, r *http.Request, eventID string) {
	ctx := r.Context()
	tenantID, ok := tenantIDFromReq(w, r)
	if !ok {
		return
	}
	actorID, ok := actorIDFromReq(w, r)
	if !ok {
		return
	}

	var req service.HandoffRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid request body"))
		return
	}

	event, err := h.escalationService.HandoffEscalation(ctx, tenantID, eventID, actorID, req)
	if err != nil {
		writeJSON(w, http.StatusOK, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(event))
}

// ============================================
// 查询操作
// ============================================

// escalationListResult 列表响应
type escalationListResult struct {
	Items []*domain.EscalationEvent `json:"items"`
	Total int                       `json:"total"`
	Page  int                       `json:"page"`
	Size  int                       `json:"size"`
}

// ListEscalations 多条件过滤 + 分页查询
func (h *EscalationHandler) ListEscalations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := tenantIDFromReq(w, r)
	if !ok {
		return
	}

	filters, page, size := parseListQuery(r)
	events, total, err := h.escalationService.ListEscalations(ctx, tenantID, filters, page, size)
	if err != nil {
		writeJSON(w, http.StatusOK, Fail(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, Ok(escalationListResult{
		Items: events,
		Total: total,
		Page:  page,
		Size:  size,
	}))
}

// GetEscalation 按 ID 查询
func (h *EscalationHandler) GetEscalation(w http.ResponseWriter, r *http.Request, eventID string) {
	ctx := r.Context()
	tenantID, ok := tenantIDFromReq(w, r)
	if !ok {
		return
	}

	event, err := h.escalationService.GetEscalationByID(ctx, tenantID, eventID)
	if err != nil {
		writeJSON(w, http.StatusOK, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(event))
}

// GetMetrics 查询指标（range=day|week|month|all，默认 all）
func (h *EscalationHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := tenantIDFromReq(w, r)
	if !ok {
		return
	}

	timeRange := domain.TimeRange(strings.TrimSpace(r.URL.Query().Get("range")))
	if timeRange == "" {
		timeRange = domain.RangeAll
	}

	metrics, err := h.metricsService.GetIncidentMetrics(ctx, tenantID, timeRange)
	if err != nil {
		writeJSON(w, http.StatusOK, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(metrics))
}

// parseListQuery 解析列表查询参数
func parseListQuery(r *http.Request) (repository.EscalationFilters, int, int) {
	q := r.URL.Query()
	filters := repository.EscalationFilters{}

	if v := strings.TrimSpace(q.Get("incident_id")); v != "" {
		filters.IncidentID = &v
	}
	if v := strings.TrimSpace(q.Get("status")); v != "" {
		s := domain.Status(v)
		filters.Status = &s
	}
	if v := strings.TrimSpace(q.Get("statuses")); v != "" {
		for _, part := range strings.Split(v, ",") {
			filters.Statuses = append(filters.Statuses, domain.Status(part))
		}
	}
	if q.Get("open_only") == "true" {
		filters.OpenOnly = true
	}
	if v := strings.TrimSpace(q.Get("level")); v != "" {
		l := domain.Level(v)
		filters.Level = &l
	}
	if v := strings.TrimSpace(q.Get("created_by")); v != "" {
		filters.CreatedBy = &v
	}
	if v := strings.TrimSpace(q.Get("assigned_to")); v != "" {
		filters.AssignedUserID = &v
	}
	if v := strings.TrimSpace(q.Get("start_time")); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filters.StartTime = &t
		}
	}
	if v := strings.TrimSpace(q.Get("end_time")); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filters.EndTime = &t
		}
	}

	page := parseInt(q.Get("page"), 1)
	size := parseInt(q.Get("page_size"), 20)
	if size > 100 {
		size = 100
	}
	return filters, page, size
}
