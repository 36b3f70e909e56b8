package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"salatiso-escalation/internal/config"
	"salatiso-escalation/internal/domain"
)

func testEvent() *domain.EscalationEvent {
	now := time.Now()
	return &domain.EscalationEvent{
		EventID:      "evt-1",
		TenantID:     "tenant-1",
		IncidentID:   "incident-1",
		Context:      domain.ContextFamily,
		Severity:     domain.SeverityHigh,
		Status:       domain.StatusEscalated,
		CurrentLevel: domain.LevelFamily,
		CreatedBy:    "alice",
		CurrentOwner: "bob",
		Title:        "Water leak",
		CreatedAt:    now,
		UpdatedAt:    now,
		Version:      2,
	}
}

func TestWebhookForwarder_NotifyEscalated(t *testing.T) {
	received := make(chan webhookPayload, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload webhookPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		received <- payload
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	forwarder := NewWebhookForwarder(&config.WebhookConfig{
		URL:            srv.URL,
		TimeoutSeconds: 5,
		RetryCount:     0,
	}, zap.NewNop())

	forwarder.NotifyEscalated(context.Background(), testEvent())

	select {
	case payload := <-received:
		assert.Equal(t, "escalated", payload.Kind)
		assert.Empty(t, payload.AssignedTo)
		require.NotNil(t, payload.Event)
		assert.Equal(t, "evt-1", payload.Event.EventID)
		assert.Equal(t, domain.LevelFamily, payload.Event.CurrentLevel)
	case <-time.After(3 * time.Second):
		t.Fatal("webhook not delivered")
	}
}

func TestWebhookForwarder_NotifyAssigned(t *testing.T) {
	received := make(chan webhookPayload, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload webhookPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		received <- payload
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	forwarder := NewWebhookForwarder(&config.WebhookConfig{
		URL:            srv.URL,
		TimeoutSeconds: 5,
		RetryCount:     0,
	}, zap.NewNop())

	forwarder.NotifyAssigned(context.Background(), testEvent(), "carol")

	select {
	case payload := <-received:
		assert.Equal(t, "assigned", payload.Kind)
		assert.Equal(t, "carol", payload.AssignedTo)
	case <-time.After(3 * time.Second):
		t.Fatal("webhook not delivered")
	}
}

func TestWebhookForwarder_ServerErrorDoesNotPanic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	forwarder := NewWebhookForwarder(&config.WebhookConfig{
		URL:            srv.URL,
		TimeoutSeconds: 1,
		RetryCount:     0,
	}, zap.NewNop())

	// 转发失败只记录日志
	forwarder.NotifyEscalated(context.Background(), testEvent())
}
