package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"salatiso-escalation/internal/domain"
)

// MemoryEscalationsRepository 内存版升级事件仓库
// 用于 DB 未就绪的本地开发和服务层单元测试；语义与 Postgres 实现保持一致（含 CAS）
type MemoryEscalationsRepository struct {
	mu     sync.RWMutex
	events map[string]*domain.EscalationEvent // eventID -> event
}

func NewMemoryEscalationsRepository() *MemoryEscalationsRepository {
	return &MemoryEscalationsRepository{
		events: map[string]*domain.EscalationEvent{},
	}
}

// 确保实现了接口
var _ EscalationsRepository = (*MemoryEscalationsRepository)(nil)

func (r *MemoryEscalationsRepository) CreateEscalation(_ context.Context, tenantID string, event *domain.EscalationEvent) error {
	if tenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if event == nil {
		return fmt.Errorf("event is required")
	}
	if event.TenantID != tenantID {
		return fmt.Errorf("event.tenant_id must match tenant_id parameter")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.events[event.EventID]; exists {
		return fmt.Errorf("escalation already exists: %s", event.EventID)
	}
	event.Version = 1
	r.events[event.EventID] = cloneEvent(event)
	return nil
}

func (r *MemoryEscalationsRepository) GetEscalation(_ context.Context, tenantID, eventID string) (*domain.EscalationEvent, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	if eventID == "" {
		return nil, fmt.Errorf("event_id is required")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.events[eventID]
	if !ok || stored.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return cloneEvent(stored), nil
}

func (r *MemoryEscalationsRepository) UpdateEscalation(_ context.Context, tenantID string, event *domain.EscalationEvent) error {
	if tenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if event == nil || event.EventID == "" {
		return fmt.Errorf("event is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.events[event.EventID]
	if !ok || stored.TenantID != tenantID {
		return ErrNotFound
	}
	if stored.Version != event.Version {
		return ErrVersionConflict
	}

	event.Version++
	r.events[event.EventID] = cloneEvent(event)
	return nil
}

func (r *MemoryEscalationsRepository) ListEscalations(_ context.Context, tenantID string, filters EscalationFilters, page, size int) ([]*domain.EscalationEvent, int, error) {
	if tenantID == "" {
		return nil, 0, fmt.Errorf("tenant_id is required")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*domain.EscalationEvent, 0)
	for _, e := range r.events {
		if e.TenantID != tenantID {
			continue
		}
		if matchFilters(e, filters) {
			all = append(all, cloneEvent(e))
		}
	}
	// created_at 降序，与 Postgres 实现一致
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := len(all)
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (r *MemoryEscalationsRepository) ListCreatedSince(_ context.Context, tenantID string, since time.Time) ([]*domain.EscalationEvent, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	events := make([]*domain.EscalationEvent, 0)
	for _, e := range r.events {
		if e.TenantID != tenantID {
			continue
		}
		if !e.CreatedAt.Before(since) {
			events = append(events, cloneEvent(e))
		}
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})
	return events, nil
}

func matchFilters(e *domain.EscalationEvent, filters EscalationFilters) bool {
	if filters.IncidentID != nil && e.IncidentID != *filters.IncidentID {
		return false
	}
	if filters.Status != nil && e.Status != *filters.Status {
		return false
	}
	if len(filters.Statuses) > 0 {
		found := false
		for _, s := range filters.Statuses {
			if e.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filters.OpenOnly && !e.Status.IsOpen() {
		return false
	}
	if filters.Level != nil && e.CurrentLevel != *filters.Level {
		return false
	}
	if filters.CreatedBy != nil && e.CreatedBy != *filters.CreatedBy {
		return false
	}
	if filters.AssignedUserID != nil {
		if e.FindResponder(*filters.AssignedUserID) == nil {
			return false
		}
	}
	if filters.StartTime != nil && e.CreatedAt.Before(*filters.StartTime) {
		return false
	}
	if filters.EndTime != nil && e.CreatedAt.After(*filters.EndTime) {
		return false
	}
	return true
}

// cloneEvent 深拷贝（JSON 往返，与 JSONB 存储语义一致）
func cloneEvent(e *domain.EscalationEvent) *domain.EscalationEvent {
	data, _ := json.Marshal(e)
	var clone domain.EscalationEvent
	_ = json.Unmarshal(data, &clone)
	return &clone
}
