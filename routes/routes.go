package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"funnelcrm/config"
	controller "funnelcrm/controllers"
	"funnelcrm/events"
	"funnelcrm/middleware"
	"funnelcrm/models"
	"funnelcrm/repository"
	"funnelcrm/utils"
)

// Deps are the shared services the handlers are built from.
type Deps struct {
	DB      *gorm.DB
	Config  *config.Config
	Logger  *logrus.Logger
	Tokens  *utils.TokenManager
	Store   *repository.LeadStore
	Users   *repository.UserStore
	Events  events.Publisher
	Hub     *controller.Hub
	Limiter fiber.Storage // nil keeps login counters in memory
	Cache   repository.ReportCache
}

func (d Deps) component(name string) *logrus.Entry {
	return d.Logger.WithField("component", name)
}

func SetupAuthRoutes(app *fiber.App, d Deps) {
	authController := controller.NewAuthController(d.Users, d.Tokens, d.Config, d.component("auth"))

	auth := app.Group("/api/v1/auth")

	// Public auth endpoints (no authentication required)
	auth.Post("/login", middleware.LoginRateLimiter(d.Config.LoginRateLimit, d.Limiter, d.component("ratelimit")), authController.Login)
	auth.Post("/refresh", authController.RefreshToken)

	// Google OAuth routes
	auth.Get("/google", authController.GoogleOAuth)
	auth.Get("/google/callback", authController.GoogleOAuthCallback)

	// Protected auth endpoints (require valid JWT)
	protectedAuth := auth.Group("", middleware.Protected(d.Users, d.Tokens))
	protectedAuth.Post("/logout", authController.Logout)
	protectedAuth.Post("/change-password", authController.ChangePassword)
	protectedAuth.Get("/me", authController.GetCurrentUser)

	d.component("routes").Info("Authentication routes initialized successfully")
}

func SetupAPIRoutes(app *fiber.App, d Deps) {
	loc := d.Config.Location

	userController := controller.NewUserController(d.DB, d.component("users"))
	courseController := controller.NewCourseController(d.DB, loc, d.component("courses"))
	campaignController := controller.NewCampaignController(d.DB, d.Store, loc, d.component("campaigns"))
	leadController := controller.NewLeadController(d.DB, d.Store, d.Events, loc, d.component("leads"))
	taskController := controller.NewTaskController(d.DB, d.component("tasks"))
	notificationController := controller.NewNotificationController(d.DB, d.component("notifications"))
	goalController := controller.NewGoalController(d.DB, d.Store, loc, d.component("goals"))
	analyticsController := controller.NewAnalyticsController(d.Store, d.Cache, d.Config.ReportCacheTTL, loc, d.component("analytics"))
	reconcileController := controller.NewReconcileController(d.Store, d.Events, d.Config.ImportMaxBytes, loc, d.component("reconcile"))

	adminOnly := middleware.RequireRoles(models.RoleAdmin)
	catalogEditors := middleware.RequireRoles(models.RoleAdmin, models.RoleMarketing)
	salesTeam := middleware.RequireRoles(models.RoleAdmin, models.RoleCommercial)

	// API group with versioning and protection
	api := app.Group("/api/v1", middleware.Protected(d.Users, d.Tokens))

	// User routes
	users := api.Group("/users")
	users.Get("/commercials", userController.ListCommercials)
	users.Get("/", adminOnly, userController.ListUsers)
	users.Post("/", adminOnly, userController.CreateUser)
	users.Put("/:id", adminOnly, userController.UpdateUser)
	users.Delete("/:id", adminOnly, userController.DeactivateUser)

	// Course routes
	courses := api.Group("/courses")
	courses.Get("/", courseController.ListCourses)
	courses.Get("/:id", courseController.GetCourse)
	courses.Post("/", catalogEditors, courseController.CreateCourse)
	courses.Put("/:id", catalogEditors, courseController.UpdateCourse)
	courses.Delete("/:id", catalogEditors, courseController.DeleteCourse)

	// Master campaign routes
	masters := api.Group("/master-campaigns")
	masters.Get("/", campaignController.ListMasterCampaigns)
	masters.Get("/:id", campaignController.GetMasterCampaign)
	masters.Post("/", catalogEditors, campaignController.CreateMasterCampaign)
	masters.Put("/:id", catalogEditors, campaignController.UpdateMasterCampaign)
	masters.Delete("/:id", catalogEditors, campaignController.DeleteMasterCampaign)

	// Campaign routes
	campaigns := api.Group("/campaigns")
	campaigns.Get("/", campaignController.GetCampaigns)
	campaigns.Post("/", catalogEditors, campaignController.CreateCampaign)
	campaigns.Get("/:id", campaignController.GetCampaign)
	campaigns.Put("/:id", catalogEditors, campaignController.UpdateCampaign)
	campaigns.Patch("/:id/status", catalogEditors, campaignController.UpdateCampaignStatus)
	campaigns.Delete("/:id", catalogEditors, campaignController.DeleteCampaign)
	campaigns.Get("/:id/stats", campaignController.GetCampaignStats)
	campaigns.Get("/:id/spends", campaignController.GetCampaignSpends)
	campaigns.Post("/:id/spends", catalogEditors, campaignController.AddCampaignSpend)
	campaigns.Delete("/:id/spends/:spendId", catalogEditors, campaignController.DeleteCampaignSpend)

	// Lead routes
	leads := api.Group("/leads")
	leads.Get("/", leadController.GetLeads)
	leads.Get("/export", leadController.ExportLeads)
	leads.Post("/", salesTeam, leadController.CreateLead)
	leads.Get("/:id", leadController.GetLead)
	leads.Put("/:id", salesTeam, leadController.UpdateLead)
	leads.Patch("/:id/status", salesTeam, leadController.UpdateStatus)
	leads.Post("/:id/attempts", salesTeam, leadController.RecordAttempt)
	leads.Put("/:id/assign", adminOnly, leadController.AssignLead)
	leads.Delete("/:id", adminOnly, leadController.DeleteLead)

	// Task routes
	tasks := api.Group("/tasks")
	tasks.Get("/", taskController.ListTasks)
	tasks.Post("/", taskController.CreateTask)
	tasks.Get("/:id", taskController.GetTask)
	tasks.Put("/:id", taskController.UpdateTask)
	tasks.Patch("/:id/complete", taskController.CompleteTask)
	tasks.Delete("/:id", taskController.DeleteTask)

	// Notification routes
	notifications := api.Group("/notifications")
	notifications.Get("/", notificationController.ListNotifications)
	notifications.Get("/unread-count", notificationController.UnreadCount)
	notifications.Patch("/read-all", notificationController.MarkAllRead)
	notifications.Patch("/:id/read", notificationController.MarkRead)

	// Goal routes
	goals := api.Group("/goals", salesTeam)
	goals.Get("/", goalController.ListGoals)
	goals.Put("/", adminOnly, goalController.UpsertGoal)
	goals.Delete("/:id", adminOnly, goalController.DeleteGoal)

	// Analytics and dashboards
	analytics := api.Group("/analytics")
	analytics.Get("/funnel", analyticsController.Funnel)
	analytics.Get("/profitability", analyticsController.Profitability)

	dashboard := api.Group("/dashboard")
	dashboard.Get("/admin", adminOnly, analyticsController.AdminDashboard)
	dashboard.Get("/marketing", catalogEditors, analyticsController.MarketingDashboard)
	dashboard.Get("/commercial", salesTeam, analyticsController.CommercialDashboard)

	// Enrollment reconciliation
	imports := api.Group("/reconcile", adminOnly)
	imports.Post("/preview", reconcileController.Preview)
	imports.Post("/apply", reconcileController.Apply)

	// Websocket stream of notifications
	app.Get("/ws/notifications",
		middleware.Protected(d.Users, d.Tokens),
		d.Hub.Upgrade,
		websocket.New(d.Hub.Handle, websocket.Config{HandshakeTimeout: 10 * time.Second}),
	)

	d.component("routes").Info("API routes initialized successfully")
}

// SetupSystemRoutes registers liveness and metrics endpoints.
func SetupSystemRoutes(app *fiber.App, db *gorm.DB) {
	app.Get("/health", func(c *fiber.Ctx) error {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.UserContext())
		}
		if err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable", "error": err.Error()})
		}
		return c.JSON(fiber.Map{"status": "ok", "time": time.Now().UTC()})
	})
	app.Get("/metrics", middleware.MetricsHandler())
}
