package sessions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"academy/pkg/cache"
	"academy/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeUpdater writes the ceiling without any queue to drain
type storeUpdater struct {
	Store
}

func (u storeUpdater) SetCapacity(ctx context.Context, sessionID string, maxCapacity int) (*Capacity, error) {
	return u.SetMaxCapacity(ctx, sessionID, maxCapacity)
}

func setupCapacityRouter(store Store) *gin.Engine {
	return setupCapacityRouterWith(NewController(store, storeUpdater{store}, logger.NewNop()))
}

func setupCapacityRouterWith(controller *Controller) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.GET("/sessions/:session_id/capacity", controller.GetCapacity)
	engine.PUT("/admin/sessions/:session_id/capacity", controller.SetCapacity)
	return engine
}

func TestController_GetCapacity(t *testing.T) {
	store := NewMemoryStore()
	store.Seed("s1", 4, 1)
	engine := setupCapacityRouter(store)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/s1/capacity", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data Capacity `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Data.ConfirmedCount)
	assert.Equal(t, 4, body.Data.MaxCapacity)
}

func TestController_GetCapacityNotFound(t *testing.T) {
	engine := setupCapacityRouter(NewMemoryStore())

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/nope/capacity", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestController_SetCapacity(t *testing.T) {
	store := NewMemoryStore()
	store.Seed("s1", 4, 3)
	engine := setupCapacityRouter(store)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"valid", `{"max_capacity": 6}`, http.StatusOK},
		{"below confirmed", `{"max_capacity": 2}`, http.StatusConflict},
		{"missing field", `{}`, http.StatusBadRequest},
		{"negative", `{"max_capacity": -3}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPut, "/admin/sessions/s1/capacity", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			engine.ServeHTTP(w, req)
			assert.Equal(t, tt.code, w.Code)
		})
	}
}

func TestController_GetCapacityCached(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewMemoryStore()
	store.Seed("s1", 4, 1)
	controller := NewController(store, storeUpdater{store}, logger.NewNop()).WithCache(cache.NewService(client, logger.NewNop()), time.Minute)
	engine := setupCapacityRouterWith(controller)

	read := func() Capacity {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/s1/capacity", nil))
		require.Equal(t, http.StatusOK, w.Code)
		var body struct {
			Data Capacity `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		return body.Data
	}

	assert.Equal(t, 1, read().ConfirmedCount)

	// counter changes outside the controller show up once the entry lapses
	store.Seed("s1", 4, 2)
	assert.Equal(t, 1, read().ConfirmedCount)
	mr.FastForward(2 * time.Minute)
	assert.Equal(t, 2, read().ConfirmedCount)

	// a ceiling change through the API invalidates at once
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/admin/sessions/s1/capacity", strings.NewReader(`{"max_capacity": 6}`))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 6, read().MaxCapacity)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/missing/capacity", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
