package v1

import (
	"go-filescan-backend/config"
	"go-filescan-backend/internal/delivery/http/middleware"
	"go-filescan-backend/internal/domain"
	"go-filescan-backend/internal/usecase"
	"go-filescan-backend/pkg/security"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

type RouterDeps struct {
	ScanUC         domain.ScanUsecase
	HealthUC       usecase.HealthUsecase
	ScanLimiter    UploaderLimiter
	SecurityLogger *security.SecurityLogger
	Config         *config.Config
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	// Global Middlewares
	r.Use(middleware.CORSMiddleware(deps.Config.CORSAllowedOrigins)) // CORS must be first!
	r.Use(gin.Recovery())
	r.Use(gin.Logger()) // Use standard Gin logger
	r.Use(middleware.RequestID())
	r.Use(middleware.SecurityHeadersMiddleware(deps.Config.IsProduction()))
	r.Use(middleware.ErrorHandler())

	v1 := r.Group("/v1")

	NewHealthHandler(v1, deps.HealthUC)

	// Swagger
	v1.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	scans := v1.Group("")
	scans.Use(middleware.RateLimitMiddleware(middleware.DefaultRateLimitConfig(deps.Config.RateLimitPerMinute), deps.SecurityLogger))
	{
		NewScanHandler(scans, deps.ScanUC, deps.ScanLimiter, deps.SecurityLogger)
	}

	return r
}
