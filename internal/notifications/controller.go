package notifications

import (
	"errors"
	"net/http"
	"strconv"

	"academy/internal/shared/utils/response"
	"academy/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Controller struct {
	dispatcher  *Dispatcher
	deadLetters DeadLetterRepository
	logger      *logger.Logger
}

func NewController(dispatcher *Dispatcher, deadLetters DeadLetterRepository, log *logger.Logger) *Controller {
	if log == nil {
		log = logger.GetDefault()
	}
	return &Controller{dispatcher: dispatcher, deadLetters: deadLetters, logger: log}
}

// DeadLetterPage is one page of dead letters
type DeadLetterPage struct {
	Items  []*DeadLetter `json:"items"`
	Total  int64         `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// ListDeadLetters godoc
// @Summary      List undelivered notifications
// @Tags         admin
// @Produce      json
// @Param        include_resolved  query  bool  false  "Include replayed messages"
// @Param        limit             query  int   false  "Page size (max 100)"
// @Param        offset            query  int   false  "Offset"
// @Success      200  {object}  response.StandardApiResponse{data=DeadLetterPage}
// @Security     BearerAuth
// @Router       /admin/notifications/dead-letters [get]
func (c *Controller) ListDeadLetters(ctx *gin.Context) {
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(ctx.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	includeResolved := ctx.Query("include_resolved") == "true"

	items, total, err := c.deadLetters.List(ctx.Request.Context(), includeResolved, limit, offset)
	if err != nil {
		c.logger.LogHTTPError(ctx, err, http.StatusInternalServerError)
		response.RespondError(ctx, http.StatusInternalServerError, "Failed to list dead letters", nil)
		return
	}

	response.RespondSuccess(ctx, http.StatusOK, "Dead letters", DeadLetterPage{
		Items:  items,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// RetryDeadLetter godoc
// @Summary      Replay an undelivered notification
// @Tags         admin
// @Produce      json
// @Param        id  path  string  true  "Dead letter ID"
// @Success      200  {object}  response.StandardApiResponse{data=DeadLetter}
// @Failure      404  {object}  response.StandardApiResponse
// @Failure      502  {object}  response.StandardApiResponse
// @Security     BearerAuth
// @Router       /admin/notifications/dead-letters/{id}/retry [post]
func (c *Controller) RetryDeadLetter(ctx *gin.Context) {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		response.RespondError(ctx, http.StatusBadRequest, "Invalid dead letter ID", nil)
		return
	}

	dl, err := c.dispatcher.RetryDeadLetter(ctx.Request.Context(), id)
	switch {
	case err == nil:
		response.RespondSuccess(ctx, http.StatusOK, "Message delivered", dl)
	case errors.Is(err, ErrDeadLetterNotFound):
		response.RespondError(ctx, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, ErrAlreadyResolved):
		response.RespondError(ctx, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, ErrDeliveryFailed):
		response.RespondError(ctx, http.StatusBadGateway, "Delivery failed again", err.Error())
	default:
		c.logger.LogHTTPError(ctx, err, http.StatusInternalServerError)
		response.RespondError(ctx, http.StatusInternalServerError, "Internal server error", nil)
	}
}
