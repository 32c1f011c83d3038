package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"crmhub/internal/authz"
	"crmhub/internal/middleware"
	"crmhub/internal/models"
	"crmhub/internal/services"
)

type ContactHandler struct {
	service services.ContactService
	scoring services.ScoringService
	log     *zap.Logger
}

func NewContactHandler(service services.ContactService, scoring services.ScoringService, log *zap.Logger) *ContactHandler {
	return &ContactHandler{service: service, scoring: scoring, log: log}
}

// @Summary  Create contact
// @Tags     Contacts
// @Accept   json
// @Produce  json
// @Param    contact  body      models.Contact  true  "Contact"
// @Success  201      {object}  models.Contact
// @Failure  400      {object}  map[string]string
// @Failure  403      {object}  map[string]string
// @Router   /contacts [post]
func (h *ContactHandler) Create(c *gin.Context) {
	actor := currentActor(c)
	var contact models.Contact
	if err := decodeBody(c, authz.EntityContact, &contact); err != nil {
		writeError(c, h.log, "[contacts][create]", err)
		return
	}
	contact.ID = 0
	if contact.OwnerID == 0 {
		contact.OwnerID = actor.UserID
	}
	if !canAccess(c, authz.EntityContact, authz.ActionCreate, contact.OwnerID) {
		return
	}
	if err := h.service.Create(c.Request.Context(), &contact); err != nil {
		writeError(c, h.log, "[contacts][create]", err)
		return
	}
	h.log.Info("[contacts][create] ok", zap.Int64("contact_id", contact.ID), zap.Int64("user_id", actor.UserID))
	respond(c, h.log, http.StatusCreated, authz.EntityContact, &contact)
}

// @Summary  Get contact
// @Tags     Contacts
// @Produce  json
// @Param    id   path      int  true  "Contact ID"
// @Success  200  {object}  models.Contact
// @Failure  403  {object}  map[string]string
// @Failure  404  {object}  map[string]string
// @Router   /contacts/{id} [get]
func (h *ContactHandler) GetByID(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	contact, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.log, "[contacts][get]", err)
		return
	}
	if !canAccess(c, authz.EntityContact, authz.ActionView, contact.OwnerID) {
		return
	}
	respond(c, h.log, http.StatusOK, authz.EntityContact, contact)
}

// @Summary      List contacts
// @Description  Sales users only see their own contacts.
// @Tags         Contacts
// @Produce      json
// @Param        q           query     string  false  "Search in name and email"
// @Param        stage       query     string  false  "Lifecycle stage"
// @Param        company_id  query     int     false  "Company"
// @Param        owner_id    query     int     false  "Owner"
// @Param        page        query     int     false  "Page"
// @Param        size        query     int     false  "Page size"
// @Success      200         {array}   models.Contact
// @Router       /contacts [get]
func (h *ContactHandler) List(c *gin.Context) {
	f := models.ContactFilter{Query: strings.TrimSpace(c.Query("q"))}
	f.Limit, f.Offset = pagination(c)

	var err error
	if f.CompanyID, err = optionalID(c, "company_id"); err != nil {
		writeError(c, h.log, "[contacts][list]", err)
		return
	}
	if f.OwnerID, err = optionalID(c, "owner_id"); err != nil {
		writeError(c, h.log, "[contacts][list]", err)
		return
	}
	if v := c.Query("stage"); v != "" {
		st := models.LifecycleStage(v)
		if !st.Valid() {
			badRequest(c, "unknown stage")
			return
		}
		f.Stage = &st
	}
	if own := middleware.PolicyFrom(c).OwnerFilter(authz.EntityContact, authz.ActionView, currentActor(c).UserID); own != nil {
		f.OwnerID = own
	}

	contacts, err := h.service.List(c.Request.Context(), f)
	if err != nil {
		writeError(c, h.log, "[contacts][list]", err)
		return
	}
	if contacts == nil {
		contacts = []*models.Contact{}
	}
	respond(c, h.log, http.StatusOK, authz.EntityContact, contacts)
}

// @Summary      Update contact
// @Description  Only the fields present in the body change. Fields the role may not edit are rejected.
// @Tags         Contacts
// @Accept       json
// @Produce      json
// @Param        id       path      int             true  "Contact ID"
// @Param        contact  body      models.Contact  true  "Fields to change"
// @Success      200      {object}  models.Contact
// @Failure      403      {object}  map[string]string
// @Router       /contacts/{id} [put]
func (h *ContactHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	contact, err := h.service.GetByID(ctx, id)
	if err != nil {
		writeError(c, h.log, "[contacts][update]", err)
		return
	}
	if !canAccess(c, authz.EntityContact, authz.ActionEdit, contact.OwnerID) {
		return
	}
	score := contact.Score
	if err := decodeBody(c, authz.EntityContact, contact); err != nil {
		writeError(c, h.log, "[contacts][update]", err)
		return
	}
	contact.ID, contact.Score = id, score
	if !canAccess(c, authz.EntityContact, authz.ActionEdit, contact.OwnerID) {
		return
	}
	if err := h.service.Update(ctx, contact); err != nil {
		writeError(c, h.log, "[contacts][update]", err)
		return
	}
	respond(c, h.log, http.StatusOK, authz.EntityContact, contact)
}

// @Summary  Delete contact
// @Tags     Contacts
// @Param    id  path  int  true  "Contact ID"
// @Success  204
// @Router   /contacts/{id} [delete]
func (h *ContactHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	contact, err := h.service.GetByID(ctx, id)
	if err != nil {
		writeError(c, h.log, "[contacts][delete]", err)
		return
	}
	if !canAccess(c, authz.EntityContact, authz.ActionDelete, contact.OwnerID) {
		return
	}
	if err := h.service.Delete(ctx, id); err != nil {
		writeError(c, h.log, "[contacts][delete]", err)
		return
	}
	h.log.Info("[contacts][delete] ok", zap.Int64("contact_id", id), zap.Int64("user_id", currentActor(c).UserID))
	c.Status(http.StatusNoContent)
}

// @Summary      Convert contact into a deal
// @Description  Opens a deal in the default pipeline and promotes the contact to opportunity.
// @Tags         Contacts
// @Accept       json
// @Produce      json
// @Param        id    path      int                    true   "Contact ID"
// @Param        body  body      services.ConvertInput  false  "Deal attributes"
// @Success      201   {object}  models.Deal
// @Failure      409   {object}  map[string]string
// @Router       /contacts/{id}/convert [post]
func (h *ContactHandler) Convert(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	actor := currentActor(c)
	contact, err := h.service.GetByID(ctx, id)
	if err != nil {
		writeError(c, h.log, "[contacts][convert]", err)
		return
	}
	if !canAccess(c, authz.EntityContact, authz.ActionEdit, contact.OwnerID) {
		return
	}
	p := middleware.PolicyFrom(c)
	if !p.AllowsRecord(authz.EntityDeal, authz.ActionCreate, actor.UserID, actor.UserID) {
		forbidden(c)
		return
	}

	var in services.ConvertInput
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&in); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	deal, err := h.service.Convert(ctx, id, actor.UserID, in)
	if err != nil {
		writeError(c, h.log, "[contacts][convert]", err)
		return
	}
	respond(c, h.log, http.StatusCreated, authz.EntityDeal, deal)
}

type scoreEventRequest struct {
	EventType string `json:"event_type" binding:"required"`
}

// @Summary      Record a scoring event
// @Description  Adds the active model's points for the event and reclassifies the contact.
// @Tags         Contacts
// @Accept       json
// @Produce      json
// @Param        id    path      int                true  "Contact ID"
// @Param        body  body      scoreEventRequest  true  "Event"
// @Success      200   {object}  services.ScoreOutcome
// @Router       /contacts/{id}/events [post]
func (h *ContactHandler) RecordEvent(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req scoreEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	ctx := c.Request.Context()
	contact, err := h.service.GetByID(ctx, id)
	if err != nil {
		writeError(c, h.log, "[contacts][event]", err)
		return
	}
	if !canAccess(c, authz.EntityContact, authz.ActionEdit, contact.OwnerID) {
		return
	}
	out, err := h.scoring.RecordEvent(ctx, id, strings.TrimSpace(req.EventType))
	if err != nil {
		writeError(c, h.log, "[contacts][event]", err)
		return
	}
	redacted, err := middleware.PolicyFrom(c).Redact(authz.EntityContact, out.Contact)
	if err != nil {
		writeError(c, h.log, "[contacts][event]", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"contact":        redacted,
		"event":          out.Event,
		"previous_stage": out.PreviousStage,
		"promoted":       out.Promoted,
	})
}

// @Summary  List scoring events of a contact
// @Tags     Contacts
// @Produce  json
// @Param    id     path     int  true   "Contact ID"
// @Param    size   query    int  false  "Max events"
// @Success  200    {array}  models.ScoreEvent
// @Router   /contacts/{id}/events [get]
func (h *ContactHandler) Events(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	contact, err := h.service.GetByID(ctx, id)
	if err != nil {
		writeError(c, h.log, "[contacts][events]", err)
		return
	}
	if !canAccess(c, authz.EntityContact, authz.ActionView, contact.OwnerID) {
		return
	}
	limit, _ := pagination(c)
	events, err := h.scoring.Events(ctx, id, limit)
	if err != nil {
		writeError(c, h.log, "[contacts][events]", err)
		return
	}
	if events == nil {
		events = []models.ScoreEvent{}
	}
	c.JSON(http.StatusOK, events)
}
