package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"salatiso-escalation/internal/domain"
)

func setupMockEscalationsDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresEscalationsRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := zap.NewNop()
	repo := NewPostgresEscalationsRepository(db, logger)

	return db, mock, repo
}

var escalationRowColumns = []string{
	"event_id", "tenant_id", "incident_id", "context", "severity",
	"status", "current_level", "previous_level", "created_by", "current_owner",
	"previous_owner", "title", "description", "location", "responders",
	"audit_trail", "resolution_notes", "resolution_approved_by", "created_at",
	"escalated_at", "resolved_at", "updated_at", "version",
}

// ============================================
// 基础 CRUD 操作测试
// ============================================

func TestGetEscalation_Success(t *testing.T) {
	db, mock, repo := setupMockEscalationsDB(t)
	defer db.Close()

	ctx := context.Background()
	tenantID := uuid.New().String()
	eventID := uuid.New().String()
	createdAt := time.Now()
	updatedAt := time.Now()

	rows := sqlmock.NewRows(escalationRowColumns).AddRow(
		eventID, tenantID, "incident-1", "family", "high",
		"open", "individual", nil, "creator", "creator",
		nil, "Water leak", "Burst pipe in the kitchen", nil, `[{"user_id":"u1","role":"first_responder","assigned_at":"2025-01-01T00:00:00Z","assigned_by":"creator","acknowledged":false,"status":"assigned","actions":[]}]`,
		`[{"action":"created","user_id":"creator","timestamp":"2025-01-01T00:00:00Z","level":"individual"}]`, nil, nil, createdAt,
		nil, nil, updatedAt, int64(1),
	)

	mock.ExpectQuery(`SELECT`).
		WithArgs(eventID, tenantID).
		WillReturnRows(rows)

	event, err := repo.GetEscalation(ctx, tenantID, eventID)

	require.NoError(t, err)
	assert.NotNil(t, event)
	assert.Equal(t, eventID, event.EventID)
	assert.Equal(t, tenantID, event.TenantID)
	assert.Equal(t, "incident-1", event.IncidentID)
	assert.Equal(t, domain.ContextFamily, event.Context)
	assert.Equal(t, domain.SeverityHigh, event.Severity)
	assert.Equal(t, domain.StatusOpen, event.Status)
	assert.Equal(t, domain.LevelIndividual, event.CurrentLevel)
	assert.Nil(t, event.PreviousLevel)
	assert.Equal(t, int64(1), event.Version)

	require.Len(t, event.Responders, 1)
	assert.Equal(t, "u1", event.Responders[0].UserID)
	assert.Equal(t, domain.RoleFirstResponder, event.Responders[0].Role)

	require.Len(t, event.AuditTrail, 1)
	assert.Equal(t, domain.AuditActionCreated, event.AuditTrail[0].Action)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEscalation_NotFound(t *testing.T) {
	db, mock, repo := setupMockEscalationsDB(t)
	defer db.Close()

	ctx := context.Background()
	tenantID := uuid.New().String()
	eventID := uuid.New().String()

	mock.ExpectQuery(`SELECT`).
		WithArgs(eventID, tenantID).
		WillReturnError(sql.ErrNoRows)

	event, err := repo.GetEscalation(ctx, tenantID, eventID)

	assert.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, event)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEscalation_InvalidTenantID(t *testing.T) {
	db, mock, repo := setupMockEscalationsDB(t)
	defer db.Close()

	ctx := context.Background()
	eventID := uuid.New().String()

	event, err := repo.GetEscalation(ctx, "", eventID)

	assert.Error(t, err)
	assert.Nil(t, event)
	assert.Contains(t, err.Error(), "tenant_id is required")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateEscalation_Success(t *testing.T) {
	db, mock, repo := setupMockEscalationsDB(t)
	defer db.Close()

	ctx := context.Background()
	tenantID := uuid.New().String()
	now := time.Now()

	event := &domain.EscalationEvent{
		EventID:      uuid.New().String(),
		TenantID:     tenantID,
		IncidentID:   "incident-7",
		Context:      domain.ContextCommunity,
		Severity:     domain.SeverityMedium,
		Status:       domain.StatusOpen,
		CurrentLevel: domain.LevelIndividual,
		CreatedBy:    "creator",
		CurrentOwner: "creator",
		Title:        "Street light outage",
		Description:  "Lights out on Main Rd",
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	mock.ExpectExec(`INSERT INTO escalation_events`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.CreateEscalation(ctx, tenantID, event)

	require.NoError(t, err)
	assert.Equal(t, int64(1), event.Version)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateEscalation_TenantMismatch(t *testing.T) {
	db, mock, repo := setupMockEscalationsDB(t)
	defer db.Close()

	ctx := context.Background()
	event := &domain.EscalationEvent{
		EventID:  uuid.New().String(),
		TenantID: "tenant-a",
	}

	err := repo.CreateEscalation(ctx, "tenant-b", event)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "must match")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateEscalation_Success(t *testing.T) {
	db, mock, repo := setupMockEscalationsDB(t)
	defer db.Close()

	ctx := context.Background()
	tenantID := uuid.New().String()
	now := time.Now()

	event := &domain.EscalationEvent{
		EventID:      uuid.New().String(),
		TenantID:     tenantID,
		Status:       domain.StatusEscalated,
		CurrentLevel: domain.LevelFamily,
		CurrentOwner: "owner",
		UpdatedAt:    now,
		Version:      2,
	}

	mock.ExpectExec(`UPDATE escalation_events`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateEscalation(ctx, tenantID, event)

	require.NoError(t, err)
	// 成功后版本自增
	assert.Equal(t, int64(3), event.Version)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateEscalation_VersionConflict(t *testing.T) {
	db, mock, repo := setupMockEscalationsDB(t)
	defer db.Close()

	ctx := context.Background()
	tenantID := uuid.New().String()
	eventID := uuid.New().String()
	now := time.Now()

	event := &domain.EscalationEvent{
		EventID:      eventID,
		TenantID:     tenantID,
		Status:       domain.StatusEscalated,
		CurrentLevel: domain.LevelFamily,
		CurrentOwner: "owner",
		UpdatedAt:    now,
		Version:      2,
	}

	// CAS 未命中（版本不一致）
	mock.ExpectExec(`UPDATE escalation_events`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	// 冲突判定前会读一次确认记录仍存在
	rows := sqlmock.NewRows(escalationRowColumns).AddRow(
		eventID, tenantID, "incident-1", "family", "high",
		"open", "individual", nil, "creator", "creator",
		nil, "t", "d", nil, `[]`,
		`[]`, nil, nil, now,
		nil, nil, now, int64(3),
	)
	mock.ExpectQuery(`SELECT`).
		WithArgs(eventID, tenantID).
		WillReturnRows(rows)

	err := repo.UpdateEscalation(ctx, tenantID, event)

	assert.ErrorIs(t, err, ErrVersionConflict)
	// 失败时版本不变
	assert.Equal(t, int64(2), event.Version)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateEscalation_NotFound(t *testing.T) {
	db, mock, repo := setupMockEscalationsDB(t)
	defer db.Close()

	ctx := context.Background()
	tenantID := uuid.New().String()
	eventID := uuid.New().String()

	event := &domain.EscalationEvent{
		EventID:  eventID,
		TenantID: tenantID,
		Version:  1,
	}

	mock.ExpectExec(`UPDATE escalation_events`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT`).
		WithArgs(eventID, tenantID).
		WillReturnError(sql.ErrNoRows)

	err := repo.UpdateEscalation(ctx, tenantID, event)

	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

// ============================================
// 查询操作测试
// ============================================

func TestListEscalations_WithFilters(t *testing.T) {
	db, mock, repo := setupMockEscalationsDB(t)
	defer db.Close()

	ctx := context.Background()
	tenantID := uuid.New().String()
	now := time.Now()

	level := domain.LevelFamily
	filters := EscalationFilters{
		Level:    &level,
		OpenOnly: true,
	}

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM escalation_events`).
		WithArgs(tenantID, string(level)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	rows := sqlmock.NewRows(escalationRowColumns).AddRow(
		uuid.New().String(), tenantID, "incident-1", "family", "high",
		"escalated", "family", "individual", "creator", "owner",
		nil, "t", "d", nil, `[]`,
		`[]`, nil, nil, now,
		now, nil, now, int64(2),
	)
	mock.ExpectQuery(`SELECT`).
		WithArgs(tenantID, string(level), 20, 0).
		WillReturnRows(rows)

	events, total, err := repo.ListEscalations(ctx, tenantID, filters, 1, 20)

	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, events, 1)
	assert.Equal(t, domain.LevelFamily, events[0].CurrentLevel)
	require.NotNil(t, events[0].PreviousLevel)
	assert.Equal(t, domain.LevelIndividual, *events[0].PreviousLevel)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListEscalations_EmptyResult(t *testing.T) {
	db, mock, repo := setupMockEscalationsDB(t)
	defer db.Close()

	ctx := context.Background()
	tenantID := uuid.New().String()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM escalation_events`).
		WithArgs(tenantID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`SELECT`).
		WithArgs(tenantID, 20, 0).
		WillReturnRows(sqlmock.NewRows(escalationRowColumns))

	events, total, err := repo.ListEscalations(ctx, tenantID, EscalationFilters{}, 1, 20)

	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.Empty(t, events)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListCreatedSince(t *testing.T) {
	db, mock, repo := setupMockEscalationsDB(t)
	defer db.Close()

	ctx := context.Background()
	tenantID := uuid.New().String()
	since := time.Now().Add(-24 * time.Hour)
	now := time.Now()

	rows := sqlmock.NewRows(escalationRowColumns).AddRow(
		uuid.New().String(), tenantID, "incident-1", "personal", "low",
		"resolved", "individual", nil, "creator", "creator",
		nil, "t", "d", nil, `[]`,
		`[]`, nil, nil, now.Add(-2*time.Hour),
		nil, now.Add(-time.Hour), now, int64(2),
	)
	mock.ExpectQuery(`SELECT`).
		WithArgs(tenantID, since).
		WillReturnRows(rows)

	events, err := repo.ListCreatedSince(ctx, tenantID, since)

	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.StatusResolved, events[0].Status)
	assert.NotNil(t, events[0].ResolvedAt)

	require.NoError(t, mock.ExpectationsWereMet())
}
