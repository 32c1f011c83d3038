package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "crmhub/docs"
	"crmhub/internal/authz"
	"crmhub/internal/cache"
	"crmhub/internal/config"
	"crmhub/internal/esign"
	"crmhub/internal/handlers"
	"crmhub/internal/logger"
	"crmhub/internal/migrations"
	"crmhub/internal/pdf"
	"crmhub/internal/realtime"
	"crmhub/internal/repositories"
	"crmhub/internal/routes"
	"crmhub/internal/services"
)

const (
	policyTTL       = 5 * time.Minute
	shutdownTimeout = 15 * time.Second
)

func openDB(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// Migrate applies ("up") or rolls back one ("down") schema migration.
func Migrate(cfg *config.Config, log *zap.Logger, direction string) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	m, err := migrations.New(db, log)
	if err != nil {
		return err
	}
	switch direction {
	case "", "up":
		return m.Up()
	case "down":
		return m.Down()
	default:
		return fmt.Errorf("unknown migrate direction %q", direction)
	}
}

// Run serves the API and the background workers until ctx is cancelled,
// then drains in-flight requests.
func Run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Warn("[app] close database", zap.Error(err))
		}
	}()
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = db.PingContext(pingCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	// === Repos ===
	tenantRepo := repositories.NewTenantRepository(db)
	userRepo := repositories.NewUserRepository(db)
	roleRepo := repositories.NewRoleRepository(db)
	contactRepo := repositories.NewContactRepository(db)
	companyRepo := repositories.NewCompanyRepository(db)
	pipelineRepo := repositories.NewPipelineRepository(db)
	dealRepo := repositories.NewDealRepository(db)
	taskRepo := repositories.NewTaskRepository(db)
	quoteRepo := repositories.NewQuoteRepository(db)
	meetingRepo := repositories.NewMeetingRepository(db)
	notificationRepo := repositories.NewNotificationRepository(db)
	linkRepo := repositories.NewTelegramLinkRepository(db)
	scoringRepo := repositories.NewScoringRepository(db)
	templateRepo := repositories.NewEmailTemplateRepository(db)
	campaignRepo := repositories.NewCampaignRepository(db)
	reportRepo := repositories.NewReportRepository(db)
	resetRepo := repositories.NewPasswordResetRepository(db)

	// === Infrastructure ===
	policies := authz.NewPolicyCache(roleRepo, policyTTL)
	hub := realtime.NewHub(log)
	idem, err := cache.NewIdempotencyStore(ctx, cfg.Redis, log)
	if err != nil {
		return fmt.Errorf("idempotency store: %w", err)
	}
	defer idem.Close()

	bot, err := services.NewTelegramService(cfg.Telegram.BotToken, log)
	if err != nil {
		return err
	}
	if err := bot.SetWebhook(cfg.Telegram.WebhookURL); err != nil {
		log.Warn("[app] telegram webhook not registered", zap.Error(err))
	}
	renderer := pdf.NewQuoteRenderer(cfg.Files.RootDir, cfg.Files.FontPath)
	registry := esign.FromConfig(cfg.Webhooks)
	log.Info("[app] e-sign providers", zap.Strings("providers", registry.Names()))

	// === Services ===
	emailService := services.NewEmailService(cfg.Email, cfg.Business.CompanyName)
	authService := services.NewAuthService(tenantRepo, userRepo, emailService, cfg.JWT, log)
	userService := services.NewUserService(userRepo, roleRepo, authService, log)
	roleService := services.NewRoleService(roleRepo, userRepo, policies, log)
	resetService := services.NewPasswordResetService(userRepo, resetRepo, emailService, authService, log)
	notificationService := services.NewNotificationService(notificationRepo, userRepo, linkRepo, hub, bot, log)
	maintenanceService := services.NewMaintenanceService(notificationRepo, resetService, log)

	companyService := services.NewCompanyService(companyRepo)
	contactService := services.NewContactService(contactRepo, companyRepo, dealRepo, pipelineRepo, cfg.Business.DefaultCurrency, log)
	pipelineService := services.NewPipelineService(pipelineRepo)
	dealService := services.NewDealService(dealRepo, pipelineRepo, log)
	taskService := services.NewTaskService(taskRepo, userRepo, notificationService, log)
	quoteService := services.NewQuoteService(quoteRepo, dealService, notificationService, renderer, cfg.Business.CompanyName, log)
	signatureService := services.NewSignatureWebhookService(registry, quoteRepo, quoteService, idem, log)
	meetingService := services.NewMeetingService(meetingRepo, userRepo, notificationService, log)
	scoringService := services.NewScoringService(scoringRepo, contactRepo, notificationService, log)
	templateService := services.NewTemplateService(templateRepo, cfg.Business.CompanyName)
	campaignService := services.NewCampaignService(
		campaignRepo, templateRepo, contactRepo, companyRepo,
		emailService, notificationService,
		cfg.Business.CompanyName, cfg.Workers.CampaignConcurrency, log,
	)
	reportService := services.NewReportService(reportRepo, dealRepo, contactRepo)
	reminders := services.NewReminderWorker(taskRepo, notificationService, log)

	// === Handlers ===
	h := routes.Handlers{
		Auth:          handlers.NewAuthHandler(authService, userService, resetService, log),
		Users:         handlers.NewUserHandler(userService, log),
		Roles:         handlers.NewRoleHandler(roleService, log),
		Contacts:      handlers.NewContactHandler(contactService, scoringService, log),
		Companies:     handlers.NewCompanyHandler(companyService, log),
		Pipelines:     handlers.NewPipelineHandler(pipelineService, dealService, log),
		Deals:         handlers.NewDealHandler(dealService, cfg.Business.DefaultCurrency, log),
		Tasks:         handlers.NewTaskHandler(taskService, log),
		Quotes:        handlers.NewQuoteHandler(quoteService, dealService, log),
		Webhooks:      handlers.NewWebhookHandler(signatureService, log),
		Meetings:      handlers.NewMeetingHandler(meetingService, log),
		Notifications: handlers.NewNotificationHandler(notificationService, hub, log),
		Integrations:  handlers.NewIntegrationsHandler(notificationService, bot.BotName(), log),
		Scoring:       handlers.NewScoringHandler(scoringService, log),
		Templates:     handlers.NewTemplateHandler(templateService, log),
		Campaigns:     handlers.NewCampaignHandler(campaignService, log),
		Reports:       handlers.NewReportHandler(reportService, log),
		Admin:         handlers.NewAdminHandler(maintenanceService, cfg.Business, db, log),
	}

	// === Gin ===
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(logger.RequestID(), logger.GinMiddleware(log), logger.Recovery(log), corsMiddleware())
	routes.SetupRoutes(router, h, []byte(cfg.JWT.Secret), policies, log)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("[app] listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		services.RunEvery(gctx, cfg.Workers.ReminderInterval, "reminders", log, func(ctx context.Context) error {
			_, err := reminders.RunOnce(ctx)
			return err
		})
		return nil
	})
	g.Go(func() error {
		services.RunEvery(gctx, cfg.Workers.ReminderInterval, "campaigns", log, campaignService.RunDue)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("[app] shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
