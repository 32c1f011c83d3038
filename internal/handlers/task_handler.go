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

type TaskHandler struct {
	service services.TaskService
	log     *zap.Logger
}

func NewTaskHandler(service services.TaskService, log *zap.Logger) *TaskHandler {
	return &TaskHandler{service: service, log: log}
}

// own scope on tasks means "created by or assigned to me"
func (h *TaskHandler) allowed(c *gin.Context, a authz.Action, t *models.Task) bool {
	return canAccess(c, authz.EntityTask, a, t.CreatorID, t.AssigneeID)
}

// POST /tasks
// @Summary      Create task
// @Description  Without assignee_id the task is assigned to its creator. Own scope may only assign to self.
// @Tags         Tasks
// @Accept       json
// @Produce      json
// @Param        task  body      models.Task  true  "Task"
// @Success      201   {object}  models.Task
// @Router       /tasks [post]
func (h *TaskHandler) Create(c *gin.Context) {
	actor := currentActor(c)
	var task models.Task
	if err := decodeBody(c, authz.EntityTask, &task); err != nil {
		writeError(c, h.log, "[tasks][create]", err)
		return
	}
	task.ID = 0
	task.CreatorID = actor.UserID
	task.LastRemindedAt = nil
	if task.AssigneeID == 0 {
		task.AssigneeID = actor.UserID
	}
	p := middleware.PolicyFrom(c)
	if p.Scope(authz.EntityTask, authz.ActionCreate) == authz.ScopeOwn && task.AssigneeID != actor.UserID {
		h.log.Info("[tasks][create] deny foreign assignee",
			zap.Int64("user_id", actor.UserID), zap.Int64("assignee_id", task.AssigneeID))
		c.JSON(http.StatusForbidden, gin.H{"error": "you can only assign tasks to yourself"})
		return
	}

	created, err := h.service.Create(c.Request.Context(), &task)
	if err != nil {
		writeError(c, h.log, "[tasks][create]", err)
		return
	}
	h.log.Info("[tasks][create] ok",
		zap.Int64("task_id", created.ID), zap.Int64("assignee_id", created.AssigneeID), zap.Int64("user_id", actor.UserID))
	respond(c, h.log, http.StatusCreated, authz.EntityTask, created)
}

// GET /tasks
// @Summary      List tasks
// @Description  Own scope lists tasks the actor created or is assigned to.
// @Tags         Tasks
// @Produce      json
// @Param        assignee_id  query    int     false  "Assignee"
// @Param        creator_id   query    int     false  "Creator"
// @Param        entity_type  query    string  false  "Linked entity type"
// @Param        entity_id    query    int     false  "Linked entity"
// @Param        status       query    string  false  "new|in_progress|done|cancelled"
// @Param        page         query    int     false  "Page"
// @Param        size         query    int     false  "Page size"
// @Success      200          {array}  models.Task
// @Router       /tasks [get]
func (h *TaskHandler) GetAll(c *gin.Context) {
	var (
		f   models.TaskFilter
		err error
	)
	f.Limit, f.Offset = pagination(c)
	if f.AssigneeID, err = optionalID(c, "assignee_id"); err != nil {
		writeError(c, h.log, "[tasks][list]", err)
		return
	}
	if f.CreatorID, err = optionalID(c, "creator_id"); err != nil {
		writeError(c, h.log, "[tasks][list]", err)
		return
	}
	if f.EntityID, err = optionalID(c, "entity_id"); err != nil {
		writeError(c, h.log, "[tasks][list]", err)
		return
	}
	if v := strings.TrimSpace(c.Query("entity_type")); v != "" {
		rt := models.RecordType(v)
		if !rt.Valid() {
			badRequest(c, "unknown entity_type")
			return
		}
		f.EntityType = &rt
	}
	if v := c.Query("status"); v != "" {
		st := models.TaskStatus(v)
		f.Status = &st
	}
	if own := middleware.PolicyFrom(c).OwnerFilter(authz.EntityTask, authz.ActionView, currentActor(c).UserID); own != nil {
		f.VisibleTo = own
	}

	tasks, err := h.service.GetAll(c.Request.Context(), f)
	if err != nil {
		writeError(c, h.log, "[tasks][list]", err)
		return
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	respond(c, h.log, http.StatusOK, authz.EntityTask, tasks)
}

// GET /tasks/:id
// @Summary  Get task
// @Tags     Tasks
// @Produce  json
// @Param    id   path      int  true  "Task ID"
// @Success  200  {object}  models.Task
// @Router   /tasks/{id} [get]
func (h *TaskHandler) GetByID(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	task, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.log, "[tasks][get]", err)
		return
	}
	if !h.allowed(c, authz.ActionView, task) {
		return
	}
	respond(c, h.log, http.StatusOK, authz.EntityTask, task)
}

// PUT /tasks/:id
// @Summary      Update task
// @Description  Changing reminder_at re-arms the reminder. Status changes go through /tasks/{id}/status.
// @Tags         Tasks
// @Accept       json
// @Produce      json
// @Param        id    path      int          true  "Task ID"
// @Param        task  body      models.Task  true  "Fields to change"
// @Success      200   {object}  models.Task
// @Router       /tasks/{id} [put]
func (h *TaskHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	task, err := h.service.GetByID(ctx, id)
	if err != nil {
		writeError(c, h.log, "[tasks][update]", err)
		return
	}
	if !h.allowed(c, authz.ActionEdit, task) {
		return
	}
	creator := task.CreatorID
	if err := decodeBody(c, authz.EntityTask, task); err != nil {
		writeError(c, h.log, "[tasks][update]", err)
		return
	}
	task.CreatorID = creator
	if !h.allowed(c, authz.ActionEdit, task) {
		return
	}
	updated, err := h.service.Update(ctx, id, task)
	if err != nil {
		writeError(c, h.log, "[tasks][update]", err)
		return
	}
	respond(c, h.log, http.StatusOK, authz.EntityTask, updated)
}

// DELETE /tasks/:id
// @Summary  Delete task
// @Tags     Tasks
// @Param    id  path  int  true  "Task ID"
// @Success  204
// @Router   /tasks/{id} [delete]
func (h *TaskHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	task, err := h.service.GetByID(ctx, id)
	if err != nil {
		writeError(c, h.log, "[tasks][delete]", err)
		return
	}
	// only the creator deletes under own scope
	if !canAccess(c, authz.EntityTask, authz.ActionDelete, task.CreatorID) {
		return
	}
	if err := h.service.Delete(ctx, id); err != nil {
		writeError(c, h.log, "[tasks][delete]", err)
		return
	}
	c.Status(http.StatusNoContent)
}

type taskStatusRequest struct {
	Status models.TaskStatus `json:"status" binding:"required"`
}

// POST /tasks/:id/status
// @Summary      Change task status
// @Description  new -> in_progress|cancelled, in_progress -> done|cancelled.
// @Tags         Tasks
// @Accept       json
// @Produce      json
// @Param        id    path      int                true  "Task ID"
// @Param        body  body      taskStatusRequest  true  "Status"
// @Success      200   {object}  models.Task
// @Failure      422   {object}  map[string]string
// @Router       /tasks/{id}/status [post]
func (h *TaskHandler) ChangeStatus(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req taskStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	ctx := c.Request.Context()
	task, err := h.service.GetByID(ctx, id)
	if err != nil {
		writeError(c, h.log, "[tasks][status]", err)
		return
	}
	if !h.allowed(c, authz.ActionEdit, task) {
		return
	}
	updated, err := h.service.UpdateStatus(ctx, id, req.Status)
	if err != nil {
		writeError(c, h.log, "[tasks][status]", err)
		return
	}
	h.log.Info("[tasks][status] ok",
		zap.Int64("task_id", id), zap.String("from", string(task.Status)), zap.String("to", string(updated.Status)))
	respond(c, h.log, http.StatusOK, authz.EntityTask, updated)
}

type taskAssignRequest struct {
	AssigneeID int64 `json:"assignee_id" binding:"required"`
}

// POST /tasks/:id/assign
// @Summary  Reassign task
// @Tags     Tasks
// @Accept   json
// @Produce  json
// @Param    id    path      int                true  "Task ID"
// @Param    body  body      taskAssignRequest  true  "Assignee"
// @Success  200   {object}  models.Task
// @Router   /tasks/{id}/assign [post]
func (h *TaskHandler) Assign(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req taskAssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	actor := currentActor(c)
	p := middleware.PolicyFrom(c)
	if p.Scope(authz.EntityTask, authz.ActionEdit) == authz.ScopeOwn && req.AssigneeID != actor.UserID {
		c.JSON(http.StatusForbidden, gin.H{"error": "you can only assign tasks to yourself"})
		return
	}
	if err := p.CheckWritable(authz.EntityTask, []string{"assignee_id"}); err != nil {
		writeError(c, h.log, "[tasks][assign]", err)
		return
	}
	ctx := c.Request.Context()
	task, err := h.service.GetByID(ctx, id)
	if err != nil {
		writeError(c, h.log, "[tasks][assign]", err)
		return
	}
	if !h.allowed(c, authz.ActionEdit, task) {
		return
	}
	updated, err := h.service.UpdateAssignee(ctx, id, req.AssigneeID)
	if err != nil {
		writeError(c, h.log, "[tasks][assign]", err)
		return
	}
	respond(c, h.log, http.StatusOK, authz.EntityTask, updated)
}
