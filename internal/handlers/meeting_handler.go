package handlers

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"crmhub/internal/authz"
	"crmhub/internal/middleware"
	"crmhub/internal/models"
	"crmhub/internal/services"
)

type MeetingHandler struct {
	service services.MeetingService
	log     *zap.Logger
}

func NewMeetingHandler(service services.MeetingService, log *zap.Logger) *MeetingHandler {
	return &MeetingHandler{service: service, log: log}
}

type meetingRequest struct {
	models.Meeting
	// AllowOverlap books the slot even if the organizer is busy.
	AllowOverlap bool `json:"allow_overlap"`
}

// attendees may view a meeting; only the organizer owns it
func canViewMeeting(c *gin.Context, m *models.Meeting) bool {
	p := middleware.PolicyFrom(c)
	actor := currentActor(c)
	if p.AllowsRecord(authz.EntityMeeting, authz.ActionView, actor.UserID, m.OrganizerID) {
		return true
	}
	if p.Allows(authz.EntityMeeting, authz.ActionView) && slices.Contains(m.AttendeeIDs, actor.UserID) {
		return true
	}
	forbidden(c)
	return false
}

// @Summary      Schedule meeting
// @Description  Fails with 409 when the organizer already has a meeting in the slot, unless allow_overlap is set.
// @Tags         Meetings
// @Accept       json
// @Produce      json
// @Param        meeting  body      meetingRequest  true  "Meeting"
// @Success      201      {object}  models.Meeting
// @Failure      409      {object}  map[string]string
// @Router       /meetings [post]
func (h *MeetingHandler) Create(c *gin.Context) {
	actor := currentActor(c)
	var req meetingRequest
	if err := decodeBody(c, authz.EntityMeeting, &req); err != nil {
		writeError(c, h.log, "[meetings][create]", err)
		return
	}
	m := req.Meeting
	m.ID = 0
	if m.OrganizerID == 0 {
		m.OrganizerID = actor.UserID
	}
	if !canAccess(c, authz.EntityMeeting, authz.ActionCreate, m.OrganizerID) {
		return
	}
	if err := h.service.Create(c.Request.Context(), &m, req.AllowOverlap); err != nil {
		writeError(c, h.log, "[meetings][create]", err)
		return
	}
	h.log.Info("[meetings][create] ok",
		zap.Int64("meeting_id", m.ID), zap.Int64("organizer_id", m.OrganizerID), zap.Int("attendees", len(m.AttendeeIDs)))
	respond(c, h.log, http.StatusCreated, authz.EntityMeeting, &m)
}

// @Summary  Get meeting
// @Tags     Meetings
// @Produce  json
// @Param    id   path      int  true  "Meeting ID"
// @Success  200  {object}  models.Meeting
// @Router   /meetings/{id} [get]
func (h *MeetingHandler) GetByID(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	m, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.log, "[meetings][get]", err)
		return
	}
	if !canViewMeeting(c, m) {
		return
	}
	respond(c, h.log, http.StatusOK, authz.EntityMeeting, m)
}

// @Summary      List meetings
// @Description  Meetings the user organizes or attends. user_id needs view access to all meetings.
// @Tags         Meetings
// @Produce      json
// @Param        from     query    string  false  "Start of range"
// @Param        to       query    string  false  "End of range"
// @Param        user_id  query    int     false  "Calendar owner"
// @Success      200      {array}  models.Meeting
// @Router       /meetings [get]
func (h *MeetingHandler) List(c *gin.Context) {
	actor := currentActor(c)
	user, err := optionalID(c, "user_id")
	if err != nil {
		writeError(c, h.log, "[meetings][list]", err)
		return
	}
	if user == nil || middleware.PolicyFrom(c).Scope(authz.EntityMeeting, authz.ActionView) != authz.ScopeAll {
		uid := actor.UserID
		user = &uid
	}
	f := models.MeetingFilter{UserID: user}
	if v := c.Query("from"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			badRequest(c, "invalid from")
			return
		}
		f.From = &t
	}
	if v := c.Query("to"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			badRequest(c, "invalid to")
			return
		}
		f.To = &t
	}
	meetings, err := h.service.List(c.Request.Context(), f)
	if err != nil {
		writeError(c, h.log, "[meetings][list]", err)
		return
	}
	if meetings == nil {
		meetings = []*models.Meeting{}
	}
	respond(c, h.log, http.StatusOK, authz.EntityMeeting, meetings)
}

// @Summary      Update meeting
// @Description  Newly added attendees are notified.
// @Tags         Meetings
// @Accept       json
// @Produce      json
// @Param        id       path      int             true  "Meeting ID"
// @Param        meeting  body      meetingRequest  true  "Fields to change"
// @Success      200      {object}  models.Meeting
// @Router       /meetings/{id} [put]
func (h *MeetingHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	current, err := h.service.GetByID(ctx, id)
	if err != nil {
		writeError(c, h.log, "[meetings][update]", err)
		return
	}
	if !canAccess(c, authz.EntityMeeting, authz.ActionEdit, current.OrganizerID) {
		return
	}
	req := meetingRequest{Meeting: *current}
	if err := decodeBody(c, authz.EntityMeeting, &req); err != nil {
		writeError(c, h.log, "[meetings][update]", err)
		return
	}
	m := req.Meeting
	m.ID = id
	if err := h.service.Update(ctx, &m, req.AllowOverlap); err != nil {
		writeError(c, h.log, "[meetings][update]", err)
		return
	}
	respond(c, h.log, http.StatusOK, authz.EntityMeeting, &m)
}

// @Summary  Cancel meeting
// @Tags     Meetings
// @Param    id  path  int  true  "Meeting ID"
// @Success  204
// @Router   /meetings/{id} [delete]
func (h *MeetingHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	m, err := h.service.GetByID(ctx, id)
	if err != nil {
		writeError(c, h.log, "[meetings][delete]", err)
		return
	}
	if !canAccess(c, authz.EntityMeeting, authz.ActionDelete, m.OrganizerID) {
		return
	}
	if err := h.service.Delete(ctx, id); err != nil {
		writeError(c, h.log, "[meetings][delete]", err)
		return
	}
	c.Status(http.StatusNoContent)
}
