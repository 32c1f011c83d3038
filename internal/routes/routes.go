package routes

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"crmhub/internal/authz"
	"crmhub/internal/handlers"
	"crmhub/internal/middleware"
)

type Handlers struct {
	Auth          *handlers.AuthHandler
	Users         *handlers.UserHandler
	Roles         *handlers.RoleHandler
	Contacts      *handlers.ContactHandler
	Companies     *handlers.CompanyHandler
	Pipelines     *handlers.PipelineHandler
	Deals         *handlers.DealHandler
	Tasks         *handlers.TaskHandler
	Quotes        *handlers.QuoteHandler
	Webhooks      *handlers.WebhookHandler
	Meetings      *handlers.MeetingHandler
	Notifications *handlers.NotificationHandler
	Integrations  *handlers.IntegrationsHandler
	Scoring       *handlers.ScoringHandler
	Templates     *handlers.TemplateHandler
	Campaigns     *handlers.CampaignHandler
	Reports       *handlers.ReportHandler
	Admin         *handlers.AdminHandler
}

func SetupRoutes(r *gin.Engine, h Handlers, jwtSecret []byte, policies *authz.PolicyCache, log *zap.Logger) *gin.Engine {
	perm := func(e authz.Entity, a authz.Action) gin.HandlerFunc {
		return middleware.RequirePermission(policies, log, e, a)
	}

	// ---- public
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	r.GET("/healthz", h.Admin.Healthz)
	r.POST("/signup", h.Auth.Signup)
	r.POST("/login", h.Auth.Login)
	r.POST("/refresh", h.Auth.RefreshToken)
	r.POST("/password/forgot", h.Auth.ForgotPassword)
	r.POST("/password/reset", h.Auth.ResetPassword)
	r.POST("/webhooks/esign/:provider", h.Webhooks.ESign)
	r.POST("/webhooks/telegram", h.Integrations.Webhook)

	// ---- protected
	r.Use(middleware.AuthMiddleware(jwtSecret))

	r.GET("/me", h.Auth.Me)
	r.GET("/settings/business", h.Admin.BusinessSettings)
	r.POST("/integrations/telegram/request-link", h.Integrations.RequestTelegramLink)

	admin := r.Group("/admin", middleware.RequireRoles(authz.RoleAdmin))
	{
		admin.POST("/maintenance/cleanup", h.Admin.Cleanup)
	}

	users := r.Group("/users")
	{
		users.POST("", perm(authz.EntityUser, authz.ActionCreate), h.Users.CreateUser)
		users.GET("", perm(authz.EntityUser, authz.ActionView), h.Users.ListUsers)
		users.GET("/count/role/:role_id", perm(authz.EntityUser, authz.ActionView), h.Users.GetUserCountByRole)
		users.GET("/:id", perm(authz.EntityUser, authz.ActionView), h.Users.GetUserByID)
		users.PUT("/:id", perm(authz.EntityUser, authz.ActionEdit), h.Users.UpdateUser)
		users.DELETE("/:id", perm(authz.EntityUser, authz.ActionDelete), h.Users.DeleteUser)
	}

	roles := r.Group("/roles")
	{
		roles.POST("", perm(authz.EntityRole, authz.ActionCreate), h.Roles.CreateRole)
		roles.GET("", perm(authz.EntityRole, authz.ActionView), h.Roles.ListRoles)
		roles.GET("/:id", perm(authz.EntityRole, authz.ActionView), h.Roles.GetRoleByID)
		roles.PUT("/:id", perm(authz.EntityRole, authz.ActionEdit), h.Roles.UpdateRole)
		roles.DELETE("/:id", perm(authz.EntityRole, authz.ActionDelete), h.Roles.DeleteRole)
	}

	contacts := r.Group("/contacts")
	{
		contacts.POST("", perm(authz.EntityContact, authz.ActionCreate), h.Contacts.Create)
		contacts.GET("", perm(authz.EntityContact, authz.ActionView), h.Contacts.List)
		contacts.GET("/:id", perm(authz.EntityContact, authz.ActionView), h.Contacts.GetByID)
		contacts.PUT("/:id", perm(authz.EntityContact, authz.ActionEdit), h.Contacts.Update)
		contacts.DELETE("/:id", perm(authz.EntityContact, authz.ActionDelete), h.Contacts.Delete)
		contacts.POST("/:id/convert", perm(authz.EntityContact, authz.ActionEdit), h.Contacts.Convert)
		contacts.POST("/:id/events", perm(authz.EntityContact, authz.ActionEdit), h.Contacts.RecordEvent)
		contacts.GET("/:id/events", perm(authz.EntityContact, authz.ActionView), h.Contacts.Events)
	}

	companies := r.Group("/companies")
	{
		companies.POST("", perm(authz.EntityCompany, authz.ActionCreate), h.Companies.Create)
		companies.GET("", perm(authz.EntityCompany, authz.ActionView), h.Companies.List)
		companies.GET("/:id", perm(authz.EntityCompany, authz.ActionView), h.Companies.GetByID)
		companies.PUT("/:id", perm(authz.EntityCompany, authz.ActionEdit), h.Companies.Update)
		companies.DELETE("/:id", perm(authz.EntityCompany, authz.ActionDelete), h.Companies.Delete)
	}

	pipelines := r.Group("/pipelines")
	{
		pipelines.POST("", perm(authz.EntityPipeline, authz.ActionCreate), h.Pipelines.Create)
		pipelines.GET("", perm(authz.EntityPipeline, authz.ActionView), h.Pipelines.List)
		pipelines.GET("/:id", perm(authz.EntityPipeline, authz.ActionView), h.Pipelines.GetByID)
		pipelines.PUT("/:id", perm(authz.EntityPipeline, authz.ActionEdit), h.Pipelines.Update)
		pipelines.DELETE("/:id", perm(authz.EntityPipeline, authz.ActionDelete), h.Pipelines.Delete)
		pipelines.GET("/:id/board", perm(authz.EntityPipeline, authz.ActionView), h.Pipelines.Board)
	}

	deals := r.Group("/deals")
	{
		deals.POST("", perm(authz.EntityDeal, authz.ActionCreate), h.Deals.Create)
		deals.GET("", perm(authz.EntityDeal, authz.ActionView), h.Deals.List)
		deals.GET("/:id", perm(authz.EntityDeal, authz.ActionView), h.Deals.GetByID)
		deals.PUT("/:id", perm(authz.EntityDeal, authz.ActionEdit), h.Deals.Update)
		deals.DELETE("/:id", perm(authz.EntityDeal, authz.ActionDelete), h.Deals.Delete)
		deals.POST("/:id/move", perm(authz.EntityDeal, authz.ActionEdit), h.Deals.Move)
	}

	tasks := r.Group("/tasks")
	{
		tasks.POST("", perm(authz.EntityTask, authz.ActionCreate), h.Tasks.Create)
		tasks.GET("", perm(authz.EntityTask, authz.ActionView), h.Tasks.GetAll)
		tasks.GET("/:id", perm(authz.EntityTask, authz.ActionView), h.Tasks.GetByID)
		tasks.PUT("/:id", perm(authz.EntityTask, authz.ActionEdit), h.Tasks.Update)
		tasks.DELETE("/:id", perm(authz.EntityTask, authz.ActionDelete), h.Tasks.Delete)
		tasks.POST("/:id/status", perm(authz.EntityTask, authz.ActionEdit), h.Tasks.ChangeStatus)
		tasks.POST("/:id/assign", perm(authz.EntityTask, authz.ActionEdit), h.Tasks.Assign)
	}

	quotes := r.Group("/quotes")
	{
		quotes.POST("", perm(authz.EntityQuote, authz.ActionCreate), h.Quotes.Create)
		quotes.GET("", perm(authz.EntityQuote, authz.ActionView), h.Quotes.List)
		quotes.GET("/:id", perm(authz.EntityQuote, authz.ActionView), h.Quotes.GetByID)
		quotes.PUT("/:id", perm(authz.EntityQuote, authz.ActionEdit), h.Quotes.Update)
		quotes.DELETE("/:id", perm(authz.EntityQuote, authz.ActionDelete), h.Quotes.Delete)
		quotes.POST("/:id/send", perm(authz.EntityQuote, authz.ActionEdit), h.Quotes.Send)
		quotes.POST("/:id/status", perm(authz.EntityQuote, authz.ActionEdit), h.Quotes.Transition)
		quotes.GET("/:id/pdf", perm(authz.EntityQuote, authz.ActionView), h.Quotes.PDF)
	}

	meetings := r.Group("/meetings")
	{
		meetings.POST("", perm(authz.EntityMeeting, authz.ActionCreate), h.Meetings.Create)
		meetings.GET("", perm(authz.EntityMeeting, authz.ActionView), h.Meetings.List)
		meetings.GET("/:id", perm(authz.EntityMeeting, authz.ActionView), h.Meetings.GetByID)
		meetings.PUT("/:id", perm(authz.EntityMeeting, authz.ActionEdit), h.Meetings.Update)
		meetings.DELETE("/:id", perm(authz.EntityMeeting, authz.ActionDelete), h.Meetings.Delete)
	}

	notifications := r.Group("/notifications")
	{
		notifications.GET("", perm(authz.EntityNotification, authz.ActionView), h.Notifications.List)
		notifications.GET("/ws", perm(authz.EntityNotification, authz.ActionView), h.Notifications.Stream)
		notifications.POST("/read-all", perm(authz.EntityNotification, authz.ActionEdit), h.Notifications.MarkAllRead)
		notifications.POST("/:id/read", perm(authz.EntityNotification, authz.ActionEdit), h.Notifications.MarkRead)
	}

	scoring := r.Group("/scoring-models")
	{
		scoring.POST("", perm(authz.EntityScoringModel, authz.ActionCreate), h.Scoring.Create)
		scoring.GET("", perm(authz.EntityScoringModel, authz.ActionView), h.Scoring.List)
		scoring.GET("/:id", perm(authz.EntityScoringModel, authz.ActionView), h.Scoring.GetByID)
		scoring.PUT("/:id", perm(authz.EntityScoringModel, authz.ActionEdit), h.Scoring.Update)
		scoring.DELETE("/:id", perm(authz.EntityScoringModel, authz.ActionDelete), h.Scoring.Delete)
		scoring.POST("/:id/activate", perm(authz.EntityScoringModel, authz.ActionEdit), h.Scoring.Activate)
	}

	templates := r.Group("/email-templates")
	{
		templates.POST("", perm(authz.EntityEmailTemplate, authz.ActionCreate), h.Templates.Create)
		templates.GET("", perm(authz.EntityEmailTemplate, authz.ActionView), h.Templates.List)
		templates.GET("/:id", perm(authz.EntityEmailTemplate, authz.ActionView), h.Templates.GetByID)
		templates.PUT("/:id", perm(authz.EntityEmailTemplate, authz.ActionEdit), h.Templates.Update)
		templates.DELETE("/:id", perm(authz.EntityEmailTemplate, authz.ActionDelete), h.Templates.Delete)
		templates.POST("/:id/preview", perm(authz.EntityEmailTemplate, authz.ActionView), h.Templates.Preview)
	}

	campaigns := r.Group("/campaigns")
	{
		campaigns.POST("", perm(authz.EntityCampaign, authz.ActionCreate), h.Campaigns.Create)
		campaigns.GET("", perm(authz.EntityCampaign, authz.ActionView), h.Campaigns.List)
		campaigns.GET("/:id", perm(authz.EntityCampaign, authz.ActionView), h.Campaigns.GetByID)
		campaigns.PUT("/:id", perm(authz.EntityCampaign, authz.ActionEdit), h.Campaigns.Update)
		campaigns.DELETE("/:id", perm(authz.EntityCampaign, authz.ActionDelete), h.Campaigns.Delete)
		campaigns.POST("/:id/send", perm(authz.EntityCampaign, authz.ActionEdit), h.Campaigns.Send)
		campaigns.POST("/:id/cancel", perm(authz.EntityCampaign, authz.ActionEdit), h.Campaigns.Cancel)
	}

	reports := r.Group("/reports")
	{
		reports.GET("/summary", perm(authz.EntityReport, authz.ActionView), h.Reports.GetSummary)
		reports.GET("/catalog", perm(authz.EntityReport, authz.ActionView), h.Reports.Catalog)
		reports.POST("/run", perm(authz.EntityReport, authz.ActionView), h.Reports.Run)
		reports.POST("", perm(authz.EntityReport, authz.ActionCreate), h.Reports.Create)
		reports.GET("", perm(authz.EntityReport, authz.ActionView), h.Reports.List)
		reports.GET("/:id", perm(authz.EntityReport, authz.ActionView), h.Reports.GetByID)
		reports.PUT("/:id", perm(authz.EntityReport, authz.ActionEdit), h.Reports.Update)
		reports.DELETE("/:id", perm(authz.EntityReport, authz.ActionDelete), h.Reports.Delete)
		reports.POST("/:id/run", perm(authz.EntityReport, authz.ActionView), h.Reports.RunSaved)
	}

	return r
}
