package v1

import (
	"net/http"

	"go-filescan-backend/internal/delivery/http/response"
	"go-filescan-backend/internal/usecase"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	healthUC usecase.HealthUsecase
}

func NewHealthHandler(public *gin.RouterGroup, healthUC usecase.HealthUsecase) {
	handler := &HealthHandler{healthUC: healthUC}
	public.GET("/health", handler.Check)
}

// Check godoc
// @Summary      Health check
// @Description  Reports the configured scanner tiers and the state of each dependency
// @Tags         health
// @Produce      json
// @Success      200  {object}  response.Response
// @Failure      503  {object}  response.Response
// @Router       /health [get]
func (h *HealthHandler) Check(c *gin.Context) {
	report, healthy := h.healthUC.Check(c.Request.Context())
	if !healthy {
		response.Error(c, http.StatusServiceUnavailable, "System degraded", report)
		return
	}
	response.Success(c, http.StatusOK, "System operational", report)
}
