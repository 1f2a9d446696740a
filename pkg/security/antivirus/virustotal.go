package antivirus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	DefaultVirusTotalBaseURL = "https://www.virustotal.com/api/v3"

	// InfectedEngineThreshold is the number of engines that must agree
	// before a file is treated as infected. Fewer positives are suspicious.
	InfectedEngineThreshold = 3

	// MaxDetections caps the "engine: signature" strings kept on a verdict
	MaxDetections = 5

	analysisCompleted = "completed"
	categoryMalicious = "malicious"
)

var (
	ErrHashNotFound      = errors.New("file hash not known to virustotal")
	ErrMalformedResponse = errors.New("malformed virustotal response")
)

// VirusTotalConfig holds the REST client settings
type VirusTotalConfig struct {
	APIKey       string
	BaseURL      string
	PollAttempts int
	PollInterval time.Duration
	HTTPClient   *http.Client
}

// VirusTotalScanner uploads files to VirusTotal and polls the analysis
type VirusTotalScanner struct {
	apiKey       string
	baseURL      string
	pollAttempts int
	pollInterval time.Duration
	client       *http.Client
}

var _ Scanner = (*VirusTotalScanner)(nil)

func NewVirusTotalScanner(cfg VirusTotalConfig) *VirusTotalScanner {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultVirusTotalBaseURL
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = 10
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &VirusTotalScanner{
		apiKey:       cfg.APIKey,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		pollAttempts: cfg.PollAttempts,
		pollInterval: cfg.PollInterval,
		client:       cfg.HTTPClient,
	}
}

func (v *VirusTotalScanner) Name() string {
	return VirusTotalScannerName
}

// --- wire types ---

type vtEngineResult struct {
	Category   string `json:"category"`
	Result     string `json:"result"`
	EngineName string `json:"engine_name"`
}

type vtStats struct {
	Malicious        int `json:"malicious"`
	Suspicious       int `json:"suspicious"`
	Undetected       int `json:"undetected"`
	Harmless         int `json:"harmless"`
	Timeout          int `json:"timeout"`
	ConfirmedTimeout int `json:"confirmed-timeout"`
	Failure          int `json:"failure"`
	TypeUnsupported  int `json:"type-unsupported"`
}

func (s vtStats) total() int {
	return s.Malicious + s.Suspicious + s.Undetected + s.Harmless +
		s.Timeout + s.ConfirmedTimeout + s.Failure + s.TypeUnsupported
}

type vtUploadResponse struct {
	Data struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	} `json:"data"`
}

type vtAnalysisResponse struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			Status  string                    `json:"status"`
			Stats   vtStats                   `json:"stats"`
			Results map[string]vtEngineResult `json:"results"`
		} `json:"attributes"`
	} `json:"data"`
}

type vtFileResponse struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			LastAnalysisStats   vtStats                   `json:"last_analysis_stats"`
			LastAnalysisResults map[string]vtEngineResult `json:"last_analysis_results"`
		} `json:"attributes"`
	} `json:"data"`
}

// Analysis is a decoded analysis resource
type Analysis struct {
	ID      string
	Status  string
	stats   vtStats
	results map[string]vtEngineResult
}

// Completed reports whether the analysis has finished
func (a *Analysis) Completed() bool {
	return a.Status == analysisCompleted
}

// Scan submits the file and polls until the analysis completes or the
// attempt bound is exhausted, in which case a Pending verdict is returned.
func (v *VirusTotalScanner) Scan(ctx context.Context, filename string, data []byte) Verdict {
	analysisID, err := v.Submit(ctx, filename, data)
	if err != nil {
		return NewScanError(v.Name(), err)
	}

	for attempt := 1; attempt <= v.pollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return NewScanError(v.Name(), ctx.Err())
		case <-time.After(v.pollInterval):
		}

		analysis, err := v.GetAnalysis(ctx, analysisID)
		if err != nil {
			return NewScanError(v.Name(), err)
		}
		if analysis.Completed() {
			return v.aggregate(analysis.results, analysis.stats)
		}
	}

	return Pending{VerdictMeta: newMeta(v.Name()), AnalysisID: analysisID}
}

// Resume fetches a previously submitted analysis once. An analysis that
// is still running yields Pending.
func (v *VirusTotalScanner) Resume(ctx context.Context, analysisID string) Verdict {
	analysis, err := v.GetAnalysis(ctx, analysisID)
	if err != nil {
		return NewScanError(v.Name(), err)
	}
	if !analysis.Completed() {
		return Pending{VerdictMeta: newMeta(v.Name()), AnalysisID: analysisID}
	}
	return v.aggregate(analysis.results, analysis.stats)
}

// Submit uploads the file and returns the analysis id
func (v *VirusTotalScanner) Submit(ctx context.Context, filename string, data []byte) (string, error) {
	if filename == "" {
		filename = "upload"
	}

	body := new(bytes.Buffer)
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("failed to build upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("failed to build upload: %w", err)
	}

	var out vtUploadResponse
	if err := v.do(ctx, http.MethodPost, "/files", body, mw.FormDataContentType(), &out); err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}
	if out.Data.ID == "" {
		return "", fmt.Errorf("%w: missing analysis id", ErrMalformedResponse)
	}
	return out.Data.ID, nil
}

// GetAnalysis fetches an analysis resource
func (v *VirusTotalScanner) GetAnalysis(ctx context.Context, analysisID string) (*Analysis, error) {
	var out vtAnalysisResponse
	if err := v.do(ctx, http.MethodGet, "/analyses/"+url.PathEscape(analysisID), nil, "", &out); err != nil {
		return nil, fmt.Errorf("analysis poll failed: %w", err)
	}
	if out.Data.Attributes.Status == "" {
		return nil, fmt.Errorf("%w: missing analysis status", ErrMalformedResponse)
	}
	return &Analysis{
		ID:      analysisID,
		Status:  out.Data.Attributes.Status,
		stats:   out.Data.Attributes.Stats,
		results: out.Data.Attributes.Results,
	}, nil
}

// LookupHash classifies a file already known to VirusTotal by its SHA-256
// without uploading it.
func (v *VirusTotalScanner) LookupHash(ctx context.Context, sha256 string) Verdict {
	var out vtFileResponse
	if err := v.do(ctx, http.MethodGet, "/files/"+url.PathEscape(sha256), nil, "", &out); err != nil {
		return NewScanError(v.Name(), err)
	}
	attrs := out.Data.Attributes
	return v.aggregate(attrs.LastAnalysisResults, attrs.LastAnalysisStats)
}

// aggregate turns per-engine results into one verdict
func (v *VirusTotalScanner) aggregate(results map[string]vtEngineResult, stats vtStats) Verdict {
	meta := newMeta(v.Name())

	var positives, total int
	var flagged []string
	if len(results) > 0 {
		total = len(results)
		for engine, r := range results {
			if r.Category == categoryMalicious {
				positives++
				flagged = append(flagged, engine)
			}
		}
	} else {
		positives = stats.Malicious
		total = stats.total()
	}

	if total == 0 {
		return NewScanError(v.Name(), fmt.Errorf("%w: no engine results", ErrMalformedResponse))
	}

	es := EngineStats{Positives: positives, Total: total}
	switch {
	case positives == 0:
		return Clean{VerdictMeta: meta, Stats: &es}
	case positives < InfectedEngineThreshold:
		return Suspicious{VerdictMeta: meta, Stats: es}
	}

	sort.Strings(flagged)
	detections := make([]string, 0, MaxDetections)
	for _, engine := range flagged {
		if len(detections) == MaxDetections {
			break
		}
		detections = append(detections, fmt.Sprintf("%s: %s", engine, results[engine].Result))
	}

	threat := ""
	if len(flagged) > 0 {
		threat = results[flagged[0]].Result
	}

	return Infected{
		VerdictMeta: meta,
		Reason:      ReasonEngineConsensus,
		ThreatName:  threat,
		Stats:       &es,
		Detections:  detections,
	}
}

func (v *VirusTotalScanner) do(ctx context.Context, method, path string, body io.Reader, contentType string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, v.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-apikey", v.apiKey)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && strings.HasPrefix(path, "/files/") {
		return ErrHashNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}
