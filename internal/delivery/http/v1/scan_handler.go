package v1

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go-filescan-backend/internal/delivery/http/response"
	"go-filescan-backend/internal/domain"
	"go-filescan-backend/pkg/apperror"
	"go-filescan-backend/pkg/logger"
	"go-filescan-backend/pkg/security"

	"github.com/gin-gonic/gin"
)

// UploaderLimiter throttles scans per uploader
type UploaderLimiter interface {
	Allow(ctx context.Context, uploaderID string) (bool, int, error)
}

// ScanFileResponse is the body of POST /scan-file for 200 and 403
type ScanFileResponse struct {
	Success   bool               `json:"success"`
	ScanID    string             `json:"scanId"`
	Status    string             `json:"status"`
	Message   string             `json:"message"`
	Details   *domain.ScanResult `json:"details,omitempty"`
	RequestID string             `json:"request_id,omitempty"`
}

type ScanHandler struct {
	scanUC  domain.ScanUsecase
	limiter UploaderLimiter
	secLog  *security.SecurityLogger
}

// NewScanHandler registers the scan routes
func NewScanHandler(public *gin.RouterGroup, scanUC domain.ScanUsecase, limiter UploaderLimiter, secLog *security.SecurityLogger) {
	if secLog == nil {
		secLog = security.NewNopSecurityLogger()
	}
	handler := &ScanHandler{
		scanUC:  scanUC,
		limiter: limiter,
		secLog:  secLog,
	}

	public.POST("/scan-file", handler.ScanFile)
	public.GET("/scans", handler.ListScans)
	public.GET("/scans/export", handler.ExportScans)
	public.GET("/scans/:id", handler.GetScan)
	public.POST("/scans/:id/recheck", handler.Recheck)
}

// ScanFile godoc
// @Summary      Scan an uploaded file
// @Description  Scans an object that is already in storage. Infected files are deleted and reported with 403.
// @Tags         scan
// @Accept       json
// @Produce      json
// @Param        request  body      domain.ScanRequest  true  "Object to scan"
// @Success      200      {object}  ScanFileResponse
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  ScanFileResponse
// @Failure      429      {object}  response.Response
// @Failure      500      {object}  response.Response
// @Router       /scan-file [post]
func (h *ScanHandler) ScanFile(c *gin.Context) {
	var req domain.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.secLog.Log(c.Request.Context(), security.SecurityEvent{
			Event:     security.EventValidationFailed,
			IP:        c.ClientIP(),
			RequestID: c.GetString("RequestID"),
			Details:   map[string]interface{}{"endpoint": c.FullPath()},
		})
		_ = c.Error(apperror.BadRequest("Missing required fields: filePath, fileSize, fileType, uploadedBy, storageBucket"))
		return
	}

	if h.limiter != nil {
		allowed, retryAfter, err := h.limiter.Allow(c.Request.Context(), req.UploadedBy)
		if err != nil && !errors.Is(err, security.ErrLimiterUnavailable) {
			logger.Log.Warn("Scan rate limiter failed open", "error", err)
		}
		if !allowed {
			h.secLog.LogRateLimitTriggered(c.Request.Context(), req.UploadedBy, c.ClientIP(), c.GetString("RequestID"), c.FullPath())
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			_ = c.Error(apperror.TooManyRequests("Too many scan requests. Please try again later."))
			return
		}
	}

	outcome, err := h.scanUC.ScanFile(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	body := ScanFileResponse{
		Success:   !outcome.Infected(),
		ScanID:    outcome.ScanID,
		Status:    outcome.Status,
		Message:   outcome.Message,
		RequestID: c.GetString("RequestID"),
	}

	if outcome.Infected() {
		body.Details = outcome.Result
		c.JSON(http.StatusForbidden, body)
		return
	}
	c.JSON(http.StatusOK, body)
}

// GetScan godoc
// @Summary      Get a scan record
// @Tags         scan
// @Produce      json
// @Param        id   path      string  true  "Scan ID"
// @Success      200  {object}  response.Response{data=domain.ScanRecord}
// @Failure      400  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /scans/{id} [get]
func (h *ScanHandler) GetScan(c *gin.Context) {
	record, err := h.scanUC.GetScan(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	response.Success(c, http.StatusOK, "Scan record retrieved", record)
}

// Recheck godoc
// @Summary      Recheck a scan with the cloud scanner
// @Description  Resumes a pending cloud analysis or looks up the file hash. The stored record is not modified.
// @Tags         scan
// @Produce      json
// @Param        id   path      string  true  "Scan ID"
// @Success      200  {object}  response.Response{data=domain.RecheckOutcome}
// @Failure      400  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Failure      503  {object}  response.Response
// @Router       /scans/{id}/recheck [post]
func (h *ScanHandler) Recheck(c *gin.Context) {
	outcome, err := h.scanUC.Recheck(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	response.Success(c, http.StatusOK, "Recheck completed", outcome)
}

// ListScans godoc
// @Summary      List scan records
// @Description  Audit trail of scans, newest first
// @Tags         scan
// @Produce      json
// @Param        status       query     string  false  "Comma-separated statuses"
// @Param        uploaded_by  query     string  false  "Uploader ID"
// @Param        bucket       query     string  false  "Storage bucket"
// @Param        quarantined  query     bool    false  "Only quarantined (true) or kept (false) files"
// @Param        from         query     string  false  "Created at or after (RFC3339 or YYYY-MM-DD)"
// @Param        to           query     string  false  "Created before (RFC3339 or YYYY-MM-DD)"
// @Param        page         query     int     false  "Page number" default(1)
// @Param        page_size    query     int     false  "Page size" default(20)
// @Success      200          {object}  response.Response{data=domain.PaginatedResult[domain.ScanRecord]}
// @Failure      400          {object}  response.Response
// @Router       /scans [get]
func (h *ScanHandler) ListScans(c *gin.Context) {
	filter, err := parseScanFilter(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))

	result, err := h.scanUC.ListScans(c.Request.Context(), filter)
	if err != nil {
		_ = c.Error(err)
		return
	}

	response.Success(c, http.StatusOK, "Scan records retrieved", result)
}

// ExportScans godoc
// @Summary      Export scan records
// @Description  Downloads matching scan records as Excel or CSV
// @Tags         scan
// @Produce      application/octet-stream
// @Param        format   query  string  false  "Export format (xlsx, csv). Default: xlsx"
// @Param        columns  query  string  false  "Comma-separated column names to include"
// @Param        status   query  string  false  "Comma-separated statuses"
// @Param        ...      query  string  false  "Same filters as ListScans"
// @Success      200      {file}    file
// @Failure      400      {object}  response.Response
// @Router       /scans/export [get]
func (h *ScanHandler) ExportScans(c *gin.Context) {
	filter, err := parseScanFilter(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	format := c.DefaultQuery("format", domain.ExportFormatXLSX)
	var columns []string
	if cols := c.Query("columns"); cols != "" {
		columns = strings.Split(cols, ",")
	}

	data, filename, err := h.scanUC.ExportScans(c.Request.Context(), domain.ScanExportRequest{
		Filter:  filter,
		Columns: columns,
		Format:  format,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	contentType := "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	if format == domain.ExportFormatCSV {
		contentType = "text/csv"
	}

	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, contentType, data)
}

func parseScanFilter(c *gin.Context) (domain.ScanFilter, error) {
	filter := domain.ScanFilter{
		UploadedBy:    c.Query("uploaded_by"),
		StorageBucket: c.Query("bucket"),
	}

	if statuses := c.Query("status"); statuses != "" {
		filter.Statuses = strings.Split(statuses, ",")
	}
	if q := c.Query("quarantined"); q != "" {
		v, err := strconv.ParseBool(q)
		if err != nil {
			return filter, apperror.BadRequest("'quarantined' must be true or false")
		}
		filter.Quarantined = &v
	}
	if from := c.Query("from"); from != "" {
		t, err := parseQueryTime(from)
		if err != nil {
			return filter, apperror.BadRequest("Invalid 'from' time")
		}
		filter.CreatedFrom = &t
	}
	if to := c.Query("to"); to != "" {
		t, err := parseQueryTime(to)
		if err != nil {
			return filter, apperror.BadRequest("Invalid 'to' time")
		}
		filter.CreatedTo = &t
	}
	return filter, nil
}

func parseQueryTime(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", value)
}
