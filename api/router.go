package api

import (
	"context"
	"net/http"
	"time"

	"learnedge/cache"
	"learnedge/config"
	"learnedge/db"
	"learnedge/logger"
	"learnedge/models"
	"learnedge/progress"
	"learnedge/purchase"
	"learnedge/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"     // swagger embed files
	ginSwagger "github.com/swaggo/gin-swagger" // gin-swagger middleware
)

// Deps is everything the handlers need.
type Deps struct {
	Store        db.Store
	Config       *config.Config
	Log          *logger.Logger
	Entitlements cache.Entitlements
	Purchases    *purchase.Service
	Progress     *progress.Service
}

// NewRouter builds the gin engine with every route mounted.
func NewRouter(deps *Deps) *gin.Engine {
	store, cfg := deps.Store, deps.Config

	router := gin.New()
	router.RedirectTrailingSlash = false
	router.Use(RequestLogger(deps.Log))
	router.Use(Recovery(deps.Log))
	router.Use(corsMiddleware(cfg))
	router.NoRoute(utils.NoRoute)

	// --- Public Routes (No Auth Required) ---
	authGroup := router.Group("/auth")
	{
		// POST /auth/register
		authGroup.POST("/register", func(c *gin.Context) {
			RegisterHandler(c, store, cfg)
		})
		// POST /auth/login
		authGroup.POST("/login", func(c *gin.Context) {
			LoginHandler(c, store, cfg)
		})
	}

	// --- Protected Routes (Auth Required) ---
	authMiddleware := utils.AuthMiddleware(cfg)

	// GET /auth/check-auth
	router.GET("/auth/check-auth", authMiddleware, CheckAuthHandler)

	// Instructor Routes
	instructorGroup := router.Group("/instructor/course")
	instructorGroup.Use(authMiddleware, utils.RequireRole(models.RoleInstructor))
	{
		instructorGroup.POST("/add", func(c *gin.Context) {
			AddCourseHandler(c, store)
		})
		instructorGroup.GET("/get", func(c *gin.Context) {
			ListInstructorCoursesHandler(c, store)
		})
		instructorGroup.GET("/get/details/:id", func(c *gin.Context) {
			GetInstructorCourseHandler(c, store)
		})
		instructorGroup.PUT("/update/:id", func(c *gin.Context) {
			UpdateCourseHandler(c, store)
		})
		instructorGroup.DELETE("/delete/:id", func(c *gin.Context) {
			DeleteCourseHandler(c, store)
		})
	}

	studentGroup := router.Group("/student")
	{
		// Public catalog
		studentGroup.GET("/course/get", func(c *gin.Context) {
			ListCatalogHandler(c, store)
		})
		studentGroup.GET("/course/get/details/:id", func(c *gin.Context) {
			GetCatalogCourseHandler(c, store)
		})

		// Entitlements
		studentGroup.GET("/course/purchase-info/:courseId/:studentId", authMiddleware, func(c *gin.Context) {
			PurchaseInfoHandler(c, deps.Entitlements)
		})
		studentGroup.GET("/courses-bought/get/:studentId", authMiddleware, func(c *gin.Context) {
			CoursesBoughtHandler(c, store)
		})

		// Orders
		orderGroup := studentGroup.Group("/order")
		orderGroup.Use(authMiddleware)
		{
			orderGroup.POST("/create", func(c *gin.Context) {
				CreateOrderHandler(c, deps.Purchases)
			})
			orderGroup.POST("/capture", func(c *gin.Context) {
				CaptureOrderHandler(c, deps.Purchases)
			})
		}

		// Progress
		progressGroup := studentGroup.Group("/course-progress")
		progressGroup.Use(authMiddleware)
		{
			progressGroup.GET("/get/:userId/:courseId", func(c *gin.Context) {
				GetProgressHandler(c, deps.Progress)
			})
			progressGroup.POST("/mark-lecture-viewed", func(c *gin.Context) {
				MarkLectureViewedHandler(c, deps.Progress)
			})
			progressGroup.POST("/reset-progress", func(c *gin.Context) {
				ResetProgressHandler(c, deps.Progress)
			})
		}
	}

	router.GET("/healthz", func(c *gin.Context) {
		HealthHandler(c, store)
	})

	// --- Swagger Route ---
	// swag init writes swagger.json to ./docs; the UI is served under /swagger/.
	router.StaticFS("/docs", http.Dir("docs"))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/docs/swagger.json")))

	return router
}

func corsMiddleware(cfg *config.Config) gin.HandlerFunc {
	origins := cfg.CORSOrigins
	if len(origins) == 0 && cfg.ClientURL != "" {
		origins = []string{cfg.ClientURL}
	}
	corsCfg := cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	}
	return cors.New(corsCfg)
}

// HealthHandler reports whether the store is reachable.
// @Summary      Health Check
// @Description  Returns 200 when the server and its store are reachable, 503 otherwise.
// @Tags         System
// @Produce      json
// @Success      200  {object}  utils.Envelope "Healthy."
// @Failure      503  {object}  utils.Envelope "The store is unreachable."
// @Router       /healthz [get]
func HealthHandler(c *gin.Context, store db.Store) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusServiceUnavailable, utils.Envelope{Success: false, Message: "store unavailable"})
		return
	}
	utils.RespondOK(c, http.StatusOK, "ok", nil)
}
