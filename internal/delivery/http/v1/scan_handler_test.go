package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go-filescan-backend/config"
	"go-filescan-backend/internal/delivery/http/middleware"
	"go-filescan-backend/internal/domain"
	"go-filescan-backend/pkg/apperror"
	"go-filescan-backend/pkg/security/antivirus"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type MockScanUsecase struct {
	mock.Mock
}

func (m *MockScanUsecase) ScanFile(ctx context.Context, req *domain.ScanRequest) (*domain.ScanOutcome, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ScanOutcome), args.Error(1)
}

func (m *MockScanUsecase) GetScan(ctx context.Context, id string) (*domain.ScanRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ScanRecord), args.Error(1)
}

func (m *MockScanUsecase) Recheck(ctx context.Context, id string) (*domain.RecheckOutcome, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RecheckOutcome), args.Error(1)
}

func (m *MockScanUsecase) ListScans(ctx context.Context, filter domain.ScanFilter) (*domain.PaginatedResult[domain.ScanRecord], error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaginatedResult[domain.ScanRecord]), args.Error(1)
}

func (m *MockScanUsecase) ExportScans(ctx context.Context, req domain.ScanExportRequest) ([]byte, string, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, "", args.Error(2)
	}
	return args.Get(0).([]byte), args.String(1), args.Error(2)
}

type MockHealthUsecase struct {
	mock.Mock
}

func (m *MockHealthUsecase) Check(ctx context.Context) (map[string]string, bool) {
	args := m.Called(ctx)
	return args.Get(0).(map[string]string), args.Bool(1)
}

type denyLimiter struct{}

func (denyLimiter) Allow(ctx context.Context, uploaderID string) (bool, int, error) {
	return false, 60, nil
}

func newScanEngine(uc domain.ScanUsecase, limiter UploaderLimiter) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.ErrorHandler())
	NewScanHandler(r.Group("/v1"), uc, limiter, nil)
	return r
}

const validBody = `{"filePath":"users/u1/essay.docx","fileSize":2048,"fileType":"application/vnd.openxmlformats-officedocument.wordprocessingml.document","uploadedBy":"u1","storageBucket":"course-uploads"}`

func postScan(r http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/scan-file", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestScanFileHandler(t *testing.T) {
	t.Run("Should return 200 for a clean file", func(t *testing.T) {
		uc := new(MockScanUsecase)
		uc.On("ScanFile", mock.Anything, mock.MatchedBy(func(req *domain.ScanRequest) bool {
			return req.FilePath == "users/u1/essay.docx" && req.FileSize == 2048
		})).Return(&domain.ScanOutcome{
			ScanID:  "scan-1",
			Status:  domain.ScanStatusClean,
			Message: "File scanned successfully. No threats detected.",
			Result:  &domain.ScanResult{Status: domain.ScanStatusClean},
		}, nil)

		w := postScan(newScanEngine(uc, nil), validBody)
		assert.Equal(t, http.StatusOK, w.Code)

		body := decode(t, w)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, "scan-1", body["scanId"])
		assert.Equal(t, "clean", body["status"])
		assert.NotContains(t, body, "details")
	})

	t.Run("Should return 403 with details for an infected file", func(t *testing.T) {
		uc := new(MockScanUsecase)
		uc.On("ScanFile", mock.Anything, mock.Anything).Return(&domain.ScanOutcome{
			ScanID:      "scan-2",
			Status:      domain.ScanStatusInfected,
			Message:     "File exceeds the maximum allowed size of 100 MB and has been removed.",
			Quarantined: true,
			Result: &domain.ScanResult{
				Scanner: antivirus.SizePolicyName,
				Status:  domain.ScanStatusInfected,
				Reason:  antivirus.ReasonFileTooLarge,
			},
		}, nil)

		w := postScan(newScanEngine(uc, nil), validBody)
		assert.Equal(t, http.StatusForbidden, w.Code)

		body := decode(t, w)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "infected", body["status"])
		details := body["details"].(map[string]interface{})
		assert.Equal(t, "file_too_large", details["reason"])
	})

	t.Run("Should return 400 when a field is missing", func(t *testing.T) {
		uc := new(MockScanUsecase)
		w := postScan(newScanEngine(uc, nil), `{"filePath":"a.txt","fileSize":1}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		body := decode(t, w)
		assert.Equal(t, false, body["success"])
		assert.NotEmpty(t, body["error"])
		uc.AssertNotCalled(t, "ScanFile", mock.Anything, mock.Anything)
	})

	t.Run("Should return 500 with a generic error on orchestration failure", func(t *testing.T) {
		uc := new(MockScanUsecase)
		uc.On("ScanFile", mock.Anything, mock.Anything).
			Return(nil, apperror.Internal(errors.New("create scan record: connection refused")))

		w := postScan(newScanEngine(uc, nil), validBody)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		body := decode(t, w)
		assert.Equal(t, false, body["success"])
		assert.NotEmpty(t, body["error"])
		assert.NotContains(t, w.Body.String(), "connection refused")
	})

	t.Run("Should return 429 when the uploader is throttled", func(t *testing.T) {
		uc := new(MockScanUsecase)
		w := postScan(newScanEngine(uc, denyLimiter{}), validBody)

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "60", w.Header().Get("Retry-After"))
		uc.AssertNotCalled(t, "ScanFile", mock.Anything, mock.Anything)
	})
}

func TestScanRecordHandlers(t *testing.T) {
	t.Run("Should return 404 for an unknown scan", func(t *testing.T) {
		uc := new(MockScanUsecase)
		uc.On("GetScan", mock.Anything, "nope").Return(nil, apperror.NotFound("Scan not found"))

		w := httptest.NewRecorder()
		newScanEngine(uc, nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/scans/nope", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Should return the recheck outcome", func(t *testing.T) {
		uc := new(MockScanUsecase)
		uc.On("Recheck", mock.Anything, "scan-1").Return(&domain.RecheckOutcome{
			ScanID:       "scan-1",
			StoredStatus: domain.ScanStatusPending,
			Method:       domain.RecheckMethodAnalysis,
			Result:       &domain.ScanResult{Status: domain.ScanStatusClean},
		}, nil)

		w := httptest.NewRecorder()
		newScanEngine(uc, nil).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/scans/scan-1/recheck", nil))
		assert.Equal(t, http.StatusOK, w.Code)

		body := decode(t, w)
		data := body["data"].(map[string]interface{})
		assert.Equal(t, "analysis", data["method"])
	})
}

func TestScanListHandlers(t *testing.T) {
	t.Run("Should parse filters and pagination", func(t *testing.T) {
		uc := new(MockScanUsecase)
		uc.On("ListScans", mock.Anything, mock.MatchedBy(func(f domain.ScanFilter) bool {
			return len(f.Statuses) == 2 && f.Statuses[1] == "suspicious" &&
				f.UploadedBy == "u1" && f.Quarantined != nil && *f.Quarantined &&
				f.CreatedFrom != nil && f.CreatedFrom.Day() == 2 &&
				f.Page == 2 && f.PageSize == 50
		})).Return(&domain.PaginatedResult[domain.ScanRecord]{
			Data:       []domain.ScanRecord{{ID: "scan-1", Status: domain.ScanStatusInfected}},
			Total:      51,
			Page:       2,
			PageSize:   50,
			TotalPages: 2,
		}, nil)

		w := httptest.NewRecorder()
		url := "/v1/scans?status=infected,suspicious&uploaded_by=u1&quarantined=true&from=2026-03-02&page=2&page_size=50"
		newScanEngine(uc, nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, url, nil))
		require.Equal(t, http.StatusOK, w.Code)

		data := decode(t, w)["data"].(map[string]interface{})
		assert.Equal(t, float64(51), data["total"])
		assert.Equal(t, float64(2), data["totalPages"])
	})

	t.Run("Should reject a malformed time", func(t *testing.T) {
		uc := new(MockScanUsecase)

		w := httptest.NewRecorder()
		newScanEngine(uc, nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/scans?from=yesterday", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		uc.AssertNotCalled(t, "ListScans", mock.Anything, mock.Anything)
	})

	t.Run("Should stream a CSV export as an attachment", func(t *testing.T) {
		uc := new(MockScanUsecase)
		uc.On("ExportScans", mock.Anything, mock.MatchedBy(func(req domain.ScanExportRequest) bool {
			return req.Format == "csv" && len(req.Columns) == 2 && req.Columns[0] == "id"
		})).Return([]byte("SCAN ID,STATUS\nscan-1,clean\n"), "file_scans_20260301_100000.csv", nil)

		w := httptest.NewRecorder()
		newScanEngine(uc, nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/scans/export?format=csv&columns=id,status", nil))
		require.Equal(t, http.StatusOK, w.Code)

		assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
		assert.Contains(t, w.Header().Get("Content-Disposition"), "file_scans_20260301_100000.csv")
		assert.Contains(t, w.Body.String(), "scan-1,clean")
	})
}

func TestRouter(t *testing.T) {
	health := new(MockHealthUsecase)
	health.On("Check", mock.Anything).Return(map[string]string{"status": "ok", "tiers": "pattern"}, true)

	r := NewRouter(RouterDeps{
		ScanUC:   new(MockScanUsecase),
		HealthUC: health,
		Config:   &config.Config{RateLimitPerMinute: 1000},
	})

	t.Run("Should answer CORS preflight on the scan endpoint", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/v1/scan-file", nil)
		req.Header.Set("Origin", "https://learn.example.com")
		req.Header.Set("Access-Control-Request-Method", "POST")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("Should serve health", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"tiers":"pattern"`)
	})
}
