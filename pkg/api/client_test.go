package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/grovetools/pharmastock/errors"
	"github.com/grovetools/pharmastock/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler, token string) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Options{BaseURL: srv.URL + "/api", AccessToken: token})
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewRejectsRelativeURL(t *testing.T) {
	_, err := New(Options{BaseURL: "/api"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
}

func TestGetStats(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/dashboard/stats", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"totalMedicines":120,"totalInventoryValue":45210.75,"criticalAlerts":2,"warningAlerts":5,"activeBatches":310,"lowStockItems":7}`))
	})

	c := newTestClient(t, mux, "token-1")
	stats, err := c.GetStats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 120, stats.TotalMedicines)
	assert.Equal(t, "45210.75", stats.TotalInventoryValue.String())
	assert.Equal(t, 7, stats.LowStockItems)
}

func TestGetAlertsFillsMissingLists(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/dashboard/alerts", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"critical":[{"medicineId":3,"medicineName":"Amoxicillin","batchNumber":"B-7","expiryDate":"2026-11-01T00:00:00","daysRemaining":15,"currentQuantity":40}]}`))
	})

	c := newTestClient(t, mux, "")
	alerts, err := c.GetAlerts(context.Background())
	require.NoError(t, err)

	require.Len(t, alerts.Critical, 1)
	assert.Equal(t, "Amoxicillin", alerts.Critical[0].MedicineName)
	assert.NotNil(t, alerts.Warning)
	assert.Empty(t, alerts.Warning)
}

func TestQueryParameters(t *testing.T) {
	var gotCount, gotThreshold string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/dashboard/recent-movements", func(w http.ResponseWriter, r *http.Request) {
		gotCount = r.URL.Query().Get("count")
		writeJSON(w, http.StatusOK, []models.RecentMovement{{ID: 9, MedicineName: "Ibuprofen", MovementType: "OUT_DISPENSE"}})
	})
	mux.HandleFunc("/api/dashboard/low-stock", func(w http.ResponseWriter, r *http.Request) {
		gotThreshold = r.URL.Query().Get("threshold")
		_, _ = w.Write([]byte(`null`))
	})

	c := newTestClient(t, mux, "")

	movements, err := c.GetRecentMovements(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "5", gotCount)
	require.Len(t, movements, 1)
	assert.Equal(t, int64(9), movements[0].ID)

	low, err := c.GetLowStock(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, "50", gotThreshold)
	assert.NotNil(t, low)
	assert.Empty(t, low)
}

func TestNotificationCalls(t *testing.T) {
	var calls []string
	mux := http.NewServeMux()
	record := func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}
	mux.HandleFunc("/api/notifications/4/read", record)
	mux.HandleFunc("/api/notifications/read-all", record)
	mux.HandleFunc("/api/notifications/4", record)
	mux.HandleFunc("/api/notifications", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":4,"userId":1,"isSystemAlert":false,"title":"Low stock","message":"Paracetamol is low","isRead":false,"createdAt":"2026-10-01T08:00:00Z","type":3,"priority":1,"relatedEntityId":null,"relatedEntityType":null}]`))
	})

	c := newTestClient(t, mux, "")
	ctx := context.Background()

	notifications, err := c.GetMyNotifications(ctx)
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.Equal(t, models.NotificationStockAlert, notifications[0].Type)
	assert.Nil(t, notifications[0].RelatedEntityID)

	require.NoError(t, c.MarkAsRead(ctx, 4))
	require.NoError(t, c.MarkAllAsRead(ctx))
	require.NoError(t, c.DeleteNotification(ctx, 4))

	assert.Equal(t, []string{
		"PUT /api/notifications/4/read",
		"PUT /api/notifications/read-all",
		"DELETE /api/notifications/4",
	}, calls)
}

func TestRefreshOn401(t *testing.T) {
	var statsCalls, refreshCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "fresh", Path: "/"})
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"accessToken": "fresh-token", "refreshToken": "r", "id": 1, "username": "pharmacist", "role": "Pharmacist",
		})
	})
	mux.HandleFunc("/api/dashboard/stats", func(w http.ResponseWriter, r *http.Request) {
		statsCalls.Add(1)
		if r.Header.Get("Authorization") != "Bearer fresh-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		cookie, err := r.Cookie("session")
		if assert.NoError(t, err) {
			assert.Equal(t, "fresh", cookie.Value)
		}
		writeJSON(w, http.StatusOK, models.DashboardStats{TotalMedicines: 3})
	})

	c := newTestClient(t, mux, "stale-token")
	stats, err := c.GetStats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, stats.TotalMedicines)
	assert.Equal(t, int32(1), refreshCalls.Load())
	assert.Equal(t, int32(2), statsCalls.Load())
	assert.Equal(t, "fresh-token", c.Token())
}

func TestFailedRefreshSurfacesOriginal401(t *testing.T) {
	var statsCalls, refreshCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Refresh token expired"})
	})
	mux.HandleFunc("/api/dashboard/stats", func(w http.ResponseWriter, r *http.Request) {
		statsCalls.Add(1)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Session expired"})
	})

	c := newTestClient(t, mux, "")
	_, err := c.GetStats(context.Background())
	require.Error(t, err)

	assert.Equal(t, http.StatusUnauthorized, errors.StatusCode(err))
	assert.Equal(t, "Session expired", errors.UserMessage(err))
	assert.Equal(t, int32(1), refreshCalls.Load())
	assert.Equal(t, int32(1), statsCalls.Load())
}

func TestErrorMessageExtraction(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"message field", http.StatusBadRequest, `{"message":"Quantity must be positive","title":"Bad Request"}`, "Quantity must be positive"},
		{"problem details title", http.StatusBadRequest, `{"title":"One or more validation errors occurred.","status":400}`, "One or more validation errors occurred."},
		{"error field", http.StatusForbidden, `{"error":"forbidden"}`, "forbidden"},
		{"raw text", http.StatusConflict, `Batch already exists`, "Batch already exists"},
		{"status default", http.StatusNotFound, ``, "The requested resource was not found."},
		{"unknown status default", http.StatusTeapot, ``, "An error occurred (Status: 418)"},
		{"html page", http.StatusServiceUnavailable, `<html><body>Bad gateway</body></html>`, "Service temporarily unavailable. Please try again later."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}), "")

			_, err := c.GetValuation(context.Background())
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrCodeHTTPStatus))
			assert.Equal(t, tt.status, errors.StatusCode(err))
			assert.Equal(t, tt.want, errors.UserMessage(err))
		})
	}
}

func TestInvalidResponse(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"totalMedicines":`))
	}), "")

	_, err := c.GetStats(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidResponse))
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c, err := New(Options{BaseURL: base + "/api"})
	require.NoError(t, err)

	_, err = c.GetStats(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeNetwork))
	assert.Contains(t, errors.UserMessage(err), "Cannot reach")
}

func TestHealth(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusNotFound)
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}), "")

	assert.NoError(t, c.Health(context.Background()))

	status.Store(http.StatusBadGateway)
	err := c.Health(context.Background())
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, errors.StatusCode(err))
}
