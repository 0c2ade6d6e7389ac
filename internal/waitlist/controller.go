package waitlist

import (
	"errors"
	"net/http"
	"strings"

	"academy/internal/sessions"
	"academy/internal/shared/middleware"
	"academy/internal/shared/utils/response"
	"academy/pkg/logger"

	"github.com/gin-gonic/gin"
)

type Controller struct {
	manager *Manager
	logger  *logger.Logger
}

func NewController(manager *Manager, log *logger.Logger) *Controller {
	if log == nil {
		log = logger.GetDefault()
	}
	return &Controller{manager: manager, logger: log}
}

// JoinWaitlist godoc
// @Summary      Join a session waitlist
// @Description  Confirms immediately when a slot is free and nobody is queued, otherwise appends to the queue
// @Tags         waitlist
// @Accept       json
// @Produce      json
// @Param        session_id  path  string               true  "Session ID"
// @Param        body        body  JoinWaitlistRequest  true  "Entrant and contact details"
// @Success      200  {object}  response.StandardApiResponse{data=JoinResponse}
// @Failure      400  {object}  response.StandardApiResponse
// @Failure      409  {object}  response.StandardApiResponse
// @Security     BearerAuth
// @Router       /sessions/{session_id}/waitlist [post]
func (c *Controller) JoinWaitlist(ctx *gin.Context) {
	var req JoinWaitlistRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RespondError(ctx, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	entrantID := strings.TrimSpace(req.EntrantID)
	if entrantID == "" {
		entrantID, _ = middleware.GetUserID(ctx)
	}
	if !c.authorizeEntrant(ctx, entrantID) {
		return
	}

	result, err := c.manager.JoinWaitlist(ctx.Request.Context(), ctx.Param("session_id"), entrantID, req.contact())
	if err != nil {
		c.respondError(ctx, err)
		return
	}

	message := "Added to waitlist"
	if result.Status == StatusConfirmed {
		message = "Spot confirmed"
	}
	response.RespondSuccess(ctx, http.StatusOK, message, JoinResponse{
		Status:   result.Status,
		Position: result.Position,
		Entry:    toEntryResponse(result.Entry, c.manager.Now()),
	})
}

// GetStatus godoc
// @Summary      Waitlist entry status
// @Tags         waitlist
// @Produce      json
// @Param        session_id  path  string  true  "Session ID"
// @Param        entrant_id  path  string  true  "Entrant ID"
// @Success      200  {object}  response.StandardApiResponse{data=EntryResponse}
// @Failure      404  {object}  response.StandardApiResponse
// @Security     BearerAuth
// @Router       /sessions/{session_id}/waitlist/{entrant_id} [get]
func (c *Controller) GetStatus(ctx *gin.Context) {
	entrantID := ctx.Param("entrant_id")
	if !c.authorizeEntrant(ctx, entrantID) {
		return
	}

	entry, err := c.manager.GetStatus(ctx.Request.Context(), ctx.Param("session_id"), entrantID)
	if err != nil {
		c.respondError(ctx, err)
		return
	}

	response.RespondSuccess(ctx, http.StatusOK, "Waitlist entry", toEntryResponse(entry, c.manager.Now()))
}

// LeaveWaitlist godoc
// @Summary      Leave a session waitlist
// @Description  Leaving while holding an offer declines it and passes the slot on
// @Tags         waitlist
// @Produce      json
// @Param        session_id  path  string  true  "Session ID"
// @Param        entrant_id  path  string  true  "Entrant ID"
// @Success      200  {object}  response.StandardApiResponse{data=RespondResponse}
// @Failure      404  {object}  response.StandardApiResponse
// @Security     BearerAuth
// @Router       /sessions/{session_id}/waitlist/{entrant_id} [delete]
func (c *Controller) LeaveWaitlist(ctx *gin.Context) {
	entrantID := ctx.Param("entrant_id")
	if !c.authorizeEntrant(ctx, entrantID) {
		return
	}

	result, err := c.manager.LeaveWaitlist(ctx.Request.Context(), ctx.Param("session_id"), entrantID)
	if err != nil {
		c.respondError(ctx, err)
		return
	}

	response.RespondSuccess(ctx, http.StatusOK, "Left waitlist", RespondResponse{
		Status: result.Status,
		Entry:  toEntryResponse(result.Entry, c.manager.Now()),
	})
}

// Respond godoc
// @Summary      Answer a waitlist offer
// @Tags         waitlist
// @Accept       json
// @Produce      json
// @Param        session_id  path  string          true  "Session ID"
// @Param        entrant_id  path  string          true  "Entrant ID"
// @Param        body        body  RespondRequest  true  "accept or decline"
// @Success      200  {object}  response.StandardApiResponse{data=RespondResponse}
// @Failure      404  {object}  response.StandardApiResponse
// @Failure      410  {object}  response.StandardApiResponse
// @Security     BearerAuth
// @Router       /sessions/{session_id}/waitlist/{entrant_id}/respond [post]
func (c *Controller) Respond(ctx *gin.Context) {
	entrantID := ctx.Param("entrant_id")
	if !c.authorizeEntrant(ctx, entrantID) {
		return
	}

	var req RespondRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RespondError(ctx, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	result, err := c.manager.Respond(ctx.Request.Context(), ctx.Param("session_id"), entrantID, req.Decision)
	if err != nil {
		c.respondError(ctx, err)
		return
	}

	response.RespondSuccess(ctx, http.StatusOK, "Response recorded", RespondResponse{
		Status: result.Status,
		Entry:  toEntryResponse(result.Entry, c.manager.Now()),
	})
}

// ReleaseSlot godoc
// @Summary      Release a confirmed slot
// @Description  Frees one confirmed slot and offers it to the head of the queue
// @Tags         admin
// @Produce      json
// @Param        session_id  path  string  true  "Session ID"
// @Success      200  {object}  response.StandardApiResponse{data=AdmitResponse}
// @Failure      404  {object}  response.StandardApiResponse
// @Security     BearerAuth
// @Router       /admin/sessions/{session_id}/release [post]
func (c *Controller) ReleaseSlot(ctx *gin.Context) {
	sessionID := ctx.Param("session_id")

	admitted, err := c.manager.ReleaseSlot(ctx.Request.Context(), sessionID)
	if err != nil {
		c.respondError(ctx, err)
		return
	}

	response.RespondSuccess(ctx, http.StatusOK, "Slot released", AdmitResponse{
		SessionID: sessionID,
		Notified:  toEntryResponses(admitted, c.manager.Now()),
	})
}

// AdmitNext godoc
// @Summary      Offer free slots to the queue
// @Tags         admin
// @Produce      json
// @Param        session_id  path  string  true  "Session ID"
// @Success      200  {object}  response.StandardApiResponse{data=AdmitResponse}
// @Security     BearerAuth
// @Router       /admin/sessions/{session_id}/admit [post]
func (c *Controller) AdmitNext(ctx *gin.Context) {
	sessionID := ctx.Param("session_id")

	admitted, err := c.manager.AdmitNext(ctx.Request.Context(), sessionID)
	if err != nil {
		c.respondError(ctx, err)
		return
	}

	message := "No entrant admitted"
	if len(admitted) > 0 {
		message = "Entrants notified"
	}
	response.RespondSuccess(ctx, http.StatusOK, message, AdmitResponse{
		SessionID: sessionID,
		Notified:  toEntryResponses(admitted, c.manager.Now()),
	})
}

// Snapshot godoc
// @Summary      Session queue snapshot
// @Tags         admin
// @Produce      json
// @Param        session_id  path  string  true  "Session ID"
// @Success      200  {object}  response.StandardApiResponse{data=SnapshotResponse}
// @Security     BearerAuth
// @Router       /admin/sessions/{session_id}/waitlist [get]
func (c *Controller) Snapshot(ctx *gin.Context) {
	snap, err := c.manager.Snapshot(ctx.Request.Context(), ctx.Param("session_id"))
	if err != nil {
		c.respondError(ctx, err)
		return
	}

	now := c.manager.Now()
	response.RespondSuccess(ctx, http.StatusOK, "Waitlist snapshot", SnapshotResponse{
		SessionID:      snap.SessionID,
		ConfirmedCount: snap.ConfirmedCount,
		MaxCapacity:    snap.MaxCapacity,
		FreeSlots:      snap.FreeSlots,
		Waiting:        toEntryResponses(snap.Waiting, now),
		Notified:       toEntryResponses(snap.Notified, now),
	})
}

// ExpireStale godoc
// @Summary      Run the expiry sweep
// @Tags         admin
// @Produce      json
// @Success      200  {object}  response.StandardApiResponse{data=SweepResponse}
// @Security     BearerAuth
// @Router       /waitlist/sweep [post]
func (c *Controller) ExpireStale(ctx *gin.Context) {
	now := c.manager.Now()

	expired, err := c.manager.ExpireStale(ctx.Request.Context(), now)
	if err != nil {
		// partial sweeps still report what they expired
		c.logger.ErrorWithContext(ctx.Request.Context(), "Expiry sweep finished with errors", err,
			map[string]interface{}{"expired": expired})
	}

	response.RespondSuccess(ctx, http.StatusOK, "Sweep complete", SweepResponse{Expired: expired, RanAt: now})
}

// SMSWebhook godoc
// @Summary      Inbound SMS reply
// @Description  Twilio messaging webhook, YES/NO replies answer the sender's open offer
// @Tags         webhooks
// @Accept       x-www-form-urlencoded
// @Produce      xml
// @Param        From  formData  string  true   "Sender phone number"
// @Param        Body  formData  string  false  "Message text"
// @Success      200
// @Router       /webhooks/sms [post]
func (c *Controller) SMSWebhook(ctx *gin.Context) {
	var req SMSWebhookRequest
	if err := ctx.ShouldBind(&req); err != nil {
		response.RespondError(ctx, http.StatusBadRequest, "Invalid webhook payload", err.Error())
		return
	}

	result, err := c.manager.HandleSMSReply(ctx.Request.Context(), req.From, req.Body)
	reply := twimlResponse{}
	switch {
	case err == nil:
		// the follow-up goes out through the gateway
		c.logger.InfoContext(ctx.Request.Context(), "SMS reply applied",
			"message_sid", req.MessageSid, "status", string(result.Status))
	case errors.Is(err, ErrUnrecognizedReply):
		reply.Message = "Sorry, we didn't understand that. Reply YES to accept or NO to decline."
	case errors.Is(err, ErrEntryNotFound), errors.Is(err, ErrInvalidContact):
		reply.Message = "We couldn't find an open waitlist offer for this number."
	case errors.Is(err, ErrResponseExpired):
		reply.Message = "Sorry, this offer has expired and the spot was passed on."
	case errors.Is(err, sessions.ErrSessionFull):
		reply.Message = "Sorry, the session filled up before we could confirm you. You'll keep your offer if a spot frees up."
	default:
		c.logger.LogHTTPError(ctx, err, http.StatusInternalServerError)
		reply.Message = "Something went wrong on our side. Please try again shortly."
	}

	ctx.XML(http.StatusOK, reply)
}

// authorizeEntrant lets users act for themselves; parents and staff may act for anyone
func (c *Controller) authorizeEntrant(ctx *gin.Context, entrantID string) bool {
	userID, _ := middleware.GetUserID(ctx)
	role, _ := middleware.GetUserRole(ctx)

	if strings.TrimSpace(entrantID) == userID || role.CanActForOthers() {
		return true
	}

	response.RespondError(ctx, http.StatusForbidden, "Cannot act on behalf of another entrant", nil)
	return false
}

func (c *Controller) respondError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidSessionID), errors.Is(err, ErrInvalidEntrantID),
		errors.Is(err, ErrInvalidContact), errors.Is(err, ErrInvalidDecision):
		response.RespondError(ctx, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, ErrEntryNotFound), errors.Is(err, sessions.ErrSessionNotFound):
		response.RespondError(ctx, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, ErrWaitlistFull):
		response.RespondError(ctx, http.StatusConflict, err.Error(),
			response.ErrorDetail{Code: "WAITLIST_FULL", Detail: "the waitlist for this session is full"})
	case errors.Is(err, sessions.ErrSessionFull):
		response.RespondError(ctx, http.StatusConflict, err.Error(),
			response.ErrorDetail{Code: "SESSION_FULL", Detail: "no slot is free, the offer stays open"})
	case errors.Is(err, ErrInvalidTransition):
		response.RespondError(ctx, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, ErrResponseExpired):
		response.RespondError(ctx, http.StatusGone, err.Error(),
			response.ErrorDetail{Code: "RESPONSE_EXPIRED", Detail: "the offer was passed to the next entrant"})
	case errors.Is(err, ErrSessionBusy):
		ctx.Header("Retry-After", "1")
		response.RespondError(ctx, http.StatusLocked, err.Error(), nil)
	case errors.Is(err, ErrCapacityStoreUnavailable):
		c.logger.LogHTTPError(ctx, err, http.StatusServiceUnavailable)
		response.RespondError(ctx, http.StatusServiceUnavailable, "capacity store unavailable", nil)
	default:
		c.logger.LogHTTPError(ctx, err, http.StatusInternalServerError)
		response.RespondError(ctx, http.StatusInternalServerError, "Internal server error", nil)
	}
}
