package sessions

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"academy/internal/shared/constants"
	"academy/internal/shared/utils/response"
	"academy/pkg/cache"
	"academy/pkg/logger"

	"github.com/gin-gonic/gin"
)

type Controller struct {
	store    Store
	updater  CapacityUpdater
	cache    cache.Service
	cacheTTL time.Duration
	logger   *logger.Logger
}

// NewController serves capacity reads from store and writes through updater
func NewController(store Store, updater CapacityUpdater, log *logger.Logger) *Controller {
	if log == nil {
		log = logger.GetDefault()
	}
	return &Controller{store: store, updater: updater, logger: log}
}

// WithCache serves the capacity read endpoint through a short lived cache.
// Admission decisions never read from it.
func (c *Controller) WithCache(svc cache.Service, ttl time.Duration) *Controller {
	c.cache = svc
	c.cacheTTL = ttl
	return c
}

// GetCapacity godoc
// @Summary      Session capacity
// @Tags         sessions
// @Produce      json
// @Param        session_id  path  string  true  "Session ID"
// @Success      200  {object}  response.StandardApiResponse{data=Capacity}
// @Failure      404  {object}  response.StandardApiResponse
// @Security     BearerAuth
// @Router       /sessions/{session_id}/capacity [get]
func (c *Controller) GetCapacity(ctx *gin.Context) {
	sessionID := strings.TrimSpace(ctx.Param("session_id"))

	capacity, err := c.readCapacity(ctx, sessionID)
	if err != nil {
		c.respondError(ctx, err)
		return
	}

	response.RespondSuccess(ctx, http.StatusOK, "Session capacity", capacity)
}

// SetCapacity godoc
// @Summary      Set session capacity
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        session_id  path  string              true  "Session ID"
// @Param        body        body  SetCapacityRequest  true  "New ceiling"
// @Success      200  {object}  response.StandardApiResponse{data=Capacity}
// @Failure      409  {object}  response.StandardApiResponse
// @Security     BearerAuth
// @Router       /admin/sessions/{session_id}/capacity [put]
func (c *Controller) SetCapacity(ctx *gin.Context) {
	sessionID := strings.TrimSpace(ctx.Param("session_id"))

	var req SetCapacityRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RespondError(ctx, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	capacity, err := c.updater.SetCapacity(ctx.Request.Context(), sessionID, *req.MaxCapacity)
	if err != nil {
		c.respondError(ctx, err)
		return
	}

	if c.cache != nil {
		if err := c.cache.Delete(ctx.Request.Context(), constants.CapacityViewKey(sessionID)); err != nil {
			c.logger.WarnContext(ctx.Request.Context(), "Failed to invalidate capacity view", "error", err.Error())
		}
	}

	c.logger.InfoContext(ctx.Request.Context(), "Session capacity updated",
		"session_id", sessionID, "max_capacity", capacity.MaxCapacity)
	response.RespondSuccess(ctx, http.StatusOK, "Session capacity updated", capacity)
}

func (c *Controller) readCapacity(ctx *gin.Context, sessionID string) (*Capacity, error) {
	if c.cache == nil {
		return c.store.GetCapacity(ctx.Request.Context(), sessionID)
	}

	var capacity Capacity
	err := c.cache.GetOrSet(ctx.Request.Context(), constants.CapacityViewKey(sessionID), c.cacheTTL,
		func() (interface{}, error) {
			return c.store.GetCapacity(ctx.Request.Context(), sessionID)
		}, &capacity)
	if err != nil {
		return nil, err
	}
	return &capacity, nil
}

func (c *Controller) respondError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		response.RespondError(ctx, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, ErrInvalidCapacity):
		response.RespondError(ctx, http.StatusConflict, "max capacity cannot be below the confirmed count", nil)
	default:
		c.logger.LogHTTPError(ctx, err, http.StatusServiceUnavailable)
		response.RespondError(ctx, http.StatusServiceUnavailable, "capacity store unavailable", nil)
	}
}
