package events

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nibernar/statistics-service/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNotifierDisabled(t *testing.T) {
	assert.Nil(t, NewNotifier(models.EventsConfig{}, nil))
	assert.Nil(t, NewNotifier(models.EventsConfig{Enabled: true}, nil))
	assert.Nil(t, NewNotifier(models.EventsConfig{EndpointURL: "http://consumer"}, nil))
}

func TestNilNotifierIsSafe(t *testing.T) {
	var n *Notifier

	n.StatisticsUpdated("proj-1", models.NewProjectStatistics("proj-1"))
	n.StatisticsDeleted("proj-1")
}

func TestNotifierDeliversUpdatedEvent(t *testing.T) {
	received := make(chan Event, 1)
	tokens := make(chan string, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var event Event
		require.NoError(t, json.NewDecoder(r.Body).Decode(&event))
		received <- event
		tokens <- r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier(models.EventsConfig{
		Enabled:     true,
		EndpointURL: srv.URL,
		JWTSecret:   "event-secret",
		MaxRetries:  1,
	}, nil)
	require.NotNil(t, n)

	stats := models.NewProjectStatistics("proj-1")
	stats.Costs.Total = 12
	stats.Usage.DocumentsGenerated = 3
	stats.Version = 4
	n.StatisticsUpdated("proj-1", stats)

	select {
	case event := <-received:
		assert.Equal(t, EventStatisticsUpdated, event.Type)
		assert.Equal(t, "proj-1", event.ProjectID)
		assert.NotEmpty(t, event.ID)
		assert.False(t, event.Timestamp.IsZero())

		data, ok := event.Data.(map[string]any)
		require.True(t, ok)
		assert.InDelta(t, 12.0, data["cost_total"], 1e-9)
		assert.InDelta(t, 3.0, data["documents_generated"], 1e-9)
	case <-time.After(5 * time.Second):
		t.Fatal("event was not delivered")
	}

	header := <-tokens
	require.NotEmpty(t, header)
	tokenString, found := strings.CutPrefix(header, "Bearer ")
	require.True(t, found)

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		return []byte("event-secret"), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	require.NoError(t, err)

	subject, err := token.Claims.GetSubject()
	require.NoError(t, err)
	assert.Equal(t, "statistics-service", subject)
}

func TestNotifierDeliversDeletedEvent(t *testing.T) {
	received := make(chan Event, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var event Event
		require.NoError(t, json.NewDecoder(r.Body).Decode(&event))
		received <- event
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier(models.EventsConfig{Enabled: true, EndpointURL: srv.URL}, nil)
	require.NotNil(t, n)

	n.StatisticsDeleted("proj-1")

	select {
	case event := <-received:
		assert.Equal(t, EventStatisticsDeleted, event.Type)
		assert.Equal(t, "proj-1", event.ProjectID)
		assert.Nil(t, event.Data)
	case <-time.After(5 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestNotifierSwallowsDeliveryFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewNotifier(models.EventsConfig{Enabled: true, EndpointURL: srv.URL, MaxRetries: 1}, nil)
	require.NotNil(t, n)

	// Fire-and-forget: the caller never sees the failure.
	n.StatisticsDeleted("proj-1")
	time.Sleep(100 * time.Millisecond)
}
