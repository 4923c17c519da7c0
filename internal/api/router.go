package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"formsevo/backend/internal/api/handlers"
	"formsevo/backend/internal/api/middleware"
	"formsevo/backend/internal/config"
	"formsevo/backend/internal/services"
)

// SetupRouter configures and returns the main Gin engine.
func SetupRouter(cfg *config.Config, db *mongo.Database, rdb *redis.Client, taskClient handlers.IAsynqClient) *gin.Engine {
	// Initialize services needed by API handlers
	evaluator := services.NewBranchEvaluator()
	validator := services.NewFieldValidator()
	questionService := services.NewQuestionService(db, cfg, rdb, evaluator)
	settingsService := services.NewSettingsService(db, cfg)
	rotationService := services.NewRotationService(db)
	queueService := services.NewQueueService(db, cfg)
	crmService := services.NewCRMService(db, cfg)
	partialService := services.NewPartialService(db)
	dispatchService := services.NewDispatchService(db, cfg, rotationService, settingsService, crmService, validator)

	r := gin.Default()

	rateLimiter := middleware.NewRateLimiterMiddleware(cfg)
	r.Use(middleware.CORSMiddleware())

	// Initialize handlers
	formHandler := handlers.NewFormHandler(questionService, settingsService)
	flowHandler := handlers.NewFlowHandler(questionService, validator, evaluator)
	submitHandler := handlers.NewSubmitHandler(questionService, evaluator, dispatchService, taskClient)
	partialHandler := handlers.NewPartialHandler(partialService, taskClient)
	adminHandler := handlers.NewAdminHandler(questionService, settingsService, queueService, rotationService, crmService)

	v1 := r.Group("/v1")
	{
		// Public routes, rate limited per client+tenant
		public := v1.Group("/")
		public.Use(rateLimiter.Limit())
		{
			public.GET("/:tenant/form", formHandler.GetForm)
			public.POST("/:tenant/validate", flowHandler.ValidateField)
			public.POST("/:tenant/next", flowHandler.NextStep)
			public.POST("/:tenant/submit", submitHandler.Submit)
		}

		// Beacon endpoint: no rate limiting, the sender never sees the response
		v1.POST("/partial", partialHandler.Record)

		v1.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})

		// Admin routes
		admin := v1.Group("/admin")
		admin.Use(middleware.AuthMiddleware(cfg.JwtSecret))
		{
			admin.GET("/:tenant/questions", adminHandler.ListQuestions)
			admin.POST("/:tenant/questions", adminHandler.CreateQuestion)
			admin.PUT("/:tenant/questions/:id", adminHandler.UpdateQuestion)
			admin.DELETE("/:tenant/questions/:id", adminHandler.DeleteQuestion)
			admin.POST("/:tenant/questions/reorder", adminHandler.ReorderQuestions)

			admin.GET("/:tenant/settings", adminHandler.GetSettings)
			admin.PUT("/:tenant/settings", adminHandler.UpdateSettings)

			admin.GET("/:tenant/queue", adminHandler.ListAgents)
			admin.POST("/:tenant/queue", adminHandler.SaveAgent)
			admin.DELETE("/:tenant/queue/:id", adminHandler.DeleteAgent)
			admin.POST("/:tenant/queue/reset", adminHandler.ResetQueueCursor)

			admin.GET("/:tenant/crm", adminHandler.GetCRMIntegration)
			admin.PUT("/:tenant/crm", adminHandler.SaveCRMIntegration)
		}
	}

	return r
}
