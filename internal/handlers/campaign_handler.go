package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"crmhub/internal/authz"
	"crmhub/internal/middleware"
	"crmhub/internal/models"
	"crmhub/internal/services"
)

type CampaignHandler struct {
	service services.CampaignService
	log     *zap.Logger
}

func NewCampaignHandler(service services.CampaignService, log *zap.Logger) *CampaignHandler {
	return &CampaignHandler{service: service, log: log}
}

type campaignRequest struct {
	Name          string                 `json:"name" binding:"required"`
	TemplateID    int64                  `json:"template_id" binding:"required"`
	AudienceStage *models.LifecycleStage `json:"audience_stage"`
	ScheduledAt   *time.Time             `json:"scheduled_at"`
}

func (r campaignRequest) apply(c *models.Campaign) {
	c.Name = r.Name
	c.TemplateID = r.TemplateID
	c.AudienceStage = r.AudienceStage
	c.ScheduledAt = r.ScheduledAt
}

func (h *CampaignHandler) load(c *gin.Context, op string, a authz.Action) (*models.Campaign, bool) {
	id, ok := parseID(c, "id")
	if !ok {
		return nil, false
	}
	campaign, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.log, op, err)
		return nil, false
	}
	if !canAccess(c, authz.EntityCampaign, a, campaign.OwnerID) {
		return nil, false
	}
	return campaign, true
}

// @Summary      Create campaign
// @Description  With a future scheduled_at the campaign is scheduled and sent by the scheduler.
// @Tags         Campaigns
// @Accept       json
// @Produce      json
// @Param        campaign  body      campaignRequest  true  "Campaign"
// @Success      201       {object}  models.Campaign
// @Router       /campaigns [post]
func (h *CampaignHandler) Create(c *gin.Context) {
	var req campaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	actor := currentActor(c)
	campaign := models.Campaign{OwnerID: actor.UserID}
	req.apply(&campaign)
	if err := h.service.Create(c.Request.Context(), &campaign); err != nil {
		writeError(c, h.log, "[campaigns][create]", err)
		return
	}
	h.log.Info("[campaigns][create] ok",
		zap.Int64("campaign_id", campaign.ID), zap.String("status", string(campaign.Status)), zap.Int64("user_id", actor.UserID))
	c.JSON(http.StatusCreated, campaign)
}

// @Summary  List campaigns
// @Tags     Campaigns
// @Produce  json
// @Success  200  {array}  models.Campaign
// @Router   /campaigns [get]
func (h *CampaignHandler) List(c *gin.Context) {
	owner := middleware.PolicyFrom(c).OwnerFilter(authz.EntityCampaign, authz.ActionView, currentActor(c).UserID)
	list, err := h.service.List(c.Request.Context(), owner)
	if err != nil {
		writeError(c, h.log, "[campaigns][list]", err)
		return
	}
	if list == nil {
		list = []*models.Campaign{}
	}
	c.JSON(http.StatusOK, list)
}

// @Summary  Get campaign
// @Tags     Campaigns
// @Produce  json
// @Param    id   path      int  true  "Campaign ID"
// @Success  200  {object}  models.Campaign
// @Router   /campaigns/{id} [get]
func (h *CampaignHandler) GetByID(c *gin.Context) {
	campaign, ok := h.load(c, "[campaigns][get]", authz.ActionView)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, campaign)
}

// @Summary      Update campaign
// @Description  Only draft and scheduled campaigns can be changed.
// @Tags         Campaigns
// @Accept       json
// @Produce      json
// @Param        id        path      int              true  "Campaign ID"
// @Param        campaign  body      campaignRequest  true  "Campaign"
// @Success      200       {object}  models.Campaign
// @Failure      409       {object}  map[string]string
// @Router       /campaigns/{id} [put]
func (h *CampaignHandler) Update(c *gin.Context) {
	campaign, ok := h.load(c, "[campaigns][update]", authz.ActionEdit)
	if !ok {
		return
	}
	var req campaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	req.apply(campaign)
	if err := h.service.Update(c.Request.Context(), campaign); err != nil {
		writeError(c, h.log, "[campaigns][update]", err)
		return
	}
	c.JSON(http.StatusOK, campaign)
}

// @Summary  Delete campaign
// @Tags     Campaigns
// @Param    id  path  int  true  "Campaign ID"
// @Success  204
// @Router   /campaigns/{id} [delete]
func (h *CampaignHandler) Delete(c *gin.Context) {
	campaign, ok := h.load(c, "[campaigns][delete]", authz.ActionDelete)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), campaign.ID); err != nil {
		writeError(c, h.log, "[campaigns][delete]", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary      Send campaign now
// @Description  Mails every subscribed contact of the audience that has an email. Returns the final counts.
// @Tags         Campaigns
// @Produce      json
// @Param        id   path      int  true  "Campaign ID"
// @Success      200  {object}  models.Campaign
// @Failure      422  {object}  map[string]string
// @Router       /campaigns/{id}/send [post]
func (h *CampaignHandler) Send(c *gin.Context) {
	campaign, ok := h.load(c, "[campaigns][send]", authz.ActionEdit)
	if !ok {
		return
	}
	sent, err := h.service.Send(c.Request.Context(), campaign.ID)
	if err != nil {
		writeError(c, h.log, "[campaigns][send]", err)
		return
	}
	c.JSON(http.StatusOK, sent)
}

// @Summary  Cancel campaign
// @Tags     Campaigns
// @Param    id  path  int  true  "Campaign ID"
// @Success  204
// @Failure  422  {object}  map[string]string
// @Router   /campaigns/{id}/cancel [post]
func (h *CampaignHandler) Cancel(c *gin.Context) {
	campaign, ok := h.load(c, "[campaigns][cancel]", authz.ActionEdit)
	if !ok {
		return
	}
	if err := h.service.Cancel(c.Request.Context(), campaign.ID); err != nil {
		writeError(c, h.log, "[campaigns][cancel]", err)
		return
	}
	c.Status(http.StatusNoContent)
}
