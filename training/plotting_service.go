package training

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"runtime"
	"time"

	"github.com/tsawler/wastenet/logging"
)

// PlottingService handles communication with the plot viewer service
type PlottingService struct {
	baseURL    string
	httpClient *http.Client
	enabled    bool
	log        *logging.Logger
}

// PlottingServiceConfig contains configuration for the plotting service
type PlottingServiceConfig struct {
	BaseURL       string        `json:"base_url"`
	Timeout       time.Duration `json:"timeout"`
	RetryAttempts int           `json:"retry_attempts"`
	RetryDelay    time.Duration `json:"retry_delay"`
}

// PlottingResponse represents the response from the plotting service
type PlottingResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	PlotURL      string `json:"plot_url,omitempty"`
	ViewURL      string `json:"view_url,omitempty"`
	PlotID       string `json:"plot_id,omitempty"`
	BatchID      string `json:"batch_id,omitempty"`
	DashboardURL string `json:"dashboard_url,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`
}

// BatchPlottingResponse represents the response from the batch plotting endpoint
type BatchPlottingResponse struct {
	Success      bool              `json:"success"`
	Message      string            `json:"message"`
	BatchID      string            `json:"batch_id,omitempty"`
	Results      []BatchPlotResult `json:"results,omitempty"`
	DashboardURL string            `json:"dashboard_url,omitempty"`
	Summary      BatchSummary      `json:"summary,omitempty"`
}

// BatchPlotResult represents a single plot result within a batch response
type BatchPlotResult struct {
	Success   bool   `json:"success"`
	PlotID    string `json:"plot_id,omitempty"`
	PlotURL   string `json:"plot_url,omitempty"`
	ViewURL   string `json:"view_url,omitempty"`
	PlotType  string `json:"plot_type,omitempty"`
	Message   string `json:"message,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
}

// BatchSummary represents the summary of a batch operation
type BatchSummary struct {
	TotalPlots int `json:"total_plots"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// DefaultPlottingServiceConfig returns default configuration for the plotting service
func DefaultPlottingServiceConfig() PlottingServiceConfig {
	return PlottingServiceConfig{
		BaseURL:       "http://localhost:8080",
		Timeout:       30 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    1 * time.Second,
	}
}

// NewPlottingService creates a new plotting service client. A nil logger
// silences the client.
func NewPlottingService(config PlottingServiceConfig, log *logging.Logger) *PlottingService {
	if log == nil {
		log = logging.Discard()
	}
	return &PlottingService{
		baseURL: config.BaseURL,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		enabled: false,
		log:     log,
	}
}

// Enable enables the plotting service
func (ps *PlottingService) Enable() {
	ps.enabled = true
}

// Disable disables the plotting service
func (ps *PlottingService) Disable() {
	ps.enabled = false
}

// IsEnabled returns whether the plotting service is enabled
func (ps *PlottingService) IsEnabled() bool {
	return ps.enabled
}

// BaseURL returns the service base URL
func (ps *PlottingService) BaseURL() string {
	return ps.baseURL
}

// SendPlotData sends a single plot to the viewer service
func (ps *PlottingService) SendPlotData(plotData PlotData) (*PlottingResponse, error) {
	if !ps.enabled {
		return &PlottingResponse{
			Success: false,
			Message: "Plotting service is disabled",
		}, nil
	}

	jsonData, err := json.Marshal(plotData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal plot data: %w", err)
	}

	url := fmt.Sprintf("%s/api/plot", ps.baseURL)
	req, err := http.NewRequest("POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "wastenet-training")

	resp, err := ps.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var plotResponse PlottingResponse
	if err := json.Unmarshal(respBody, &plotResponse); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return &plotResponse, fmt.Errorf("HTTP request failed with status %d: %s", resp.StatusCode, plotResponse.Message)
	}

	return &plotResponse, nil
}

// SendPlotDataWithRetry sends plot data with retry logic
func (ps *PlottingService) SendPlotDataWithRetry(plotData PlotData, config PlottingServiceConfig) (*PlottingResponse, error) {
	if !ps.enabled {
		return &PlottingResponse{
			Success: false,
			Message: "Plotting service is disabled",
		}, nil
	}

	var lastErr error

	for attempt := 0; attempt < config.RetryAttempts; attempt++ {
		resp, err := ps.SendPlotData(plotData)
		if err == nil {
			return resp, nil
		}

		lastErr = err
		ps.log.Debug("plot send attempt failed",
			"attempt", attempt+1,
			"of", config.RetryAttempts,
			"error", lastErr)

		if attempt < config.RetryAttempts-1 {
			time.Sleep(config.RetryDelay)
		}
	}

	return nil, fmt.Errorf("failed to send plot data after %d attempts: %w", config.RetryAttempts, lastErr)
}

// BatchSendPlots sends multiple plots in a single request. The viewer groups
// plots of the same batch onto one dashboard page, which is how the paired
// accuracy and loss panels end up side by side.
func (ps *PlottingService) BatchSendPlots(plotDataList []PlotData) (*BatchPlottingResponse, error) {
	if !ps.enabled {
		return &BatchPlottingResponse{
			Success: false,
			Message: "Plotting service is disabled",
		}, nil
	}

	batchPayload := map[string]interface{}{
		"plots": plotDataList,
		"batch": true,
	}

	jsonData, err := json.Marshal(batchPayload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal batch plot data: %w", err)
	}

	url := fmt.Sprintf("%s/api/batch-plot", ps.baseURL)
	req, err := http.NewRequest("POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create batch HTTP request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "wastenet-training")

	resp, err := ps.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send batch HTTP request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch response body: %w", err)
	}

	var batchResponse BatchPlottingResponse
	if err := json.Unmarshal(respBody, &batchResponse); err != nil {
		return nil, fmt.Errorf("failed to parse batch response JSON: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return &batchResponse, fmt.Errorf("batch HTTP request failed with status %d: %s", resp.StatusCode, batchResponse.Message)
	}

	return &batchResponse, nil
}

// PublishTrainingPlots builds the accuracy and loss panels for a fit history
// and batch-sends them so the viewer lays them out on one dashboard page
func (ps *PlottingService) PublishTrainingPlots(history *History, modelName string) (*BatchPlottingResponse, error) {
	plots, err := NewTrainingPlots(history, modelName)
	if err != nil {
		return nil, fmt.Errorf("failed to build training plots: %w", err)
	}
	return ps.BatchSendPlots(plots)
}

// CheckHealth checks if the plotting service is available
func (ps *PlottingService) CheckHealth() error {
	if !ps.enabled {
		return fmt.Errorf("plotting service is disabled")
	}

	url := fmt.Sprintf("%s/health", ps.baseURL)
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := ps.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send health check request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status %d", resp.StatusCode)
	}

	return nil
}

// WaitForService polls the health endpoint until the viewer responds or the
// context expires
func (ps *PlottingService) WaitForService(ctx context.Context) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		if err := ps.CheckHealth(); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for plotting service at %s", ps.baseURL)
		case <-ticker.C:
		}
	}
}

// OpenInBrowser opens the given URL in the default web browser
// It automatically detects the operating system and uses the appropriate command
func (ps *PlottingService) OpenInBrowser(url string) error {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "darwin": // macOS
		cmd = "open"
		args = []string{url}
	case "windows":
		cmd = "cmd"
		args = []string{"/c", "start", url}
	case "linux":
		// Try xdg-open first (most common), fallback to other options
		cmd = "xdg-open"
		args = []string{url}
	default:
		return fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	err := exec.Command(cmd, args...).Start()
	if err != nil && runtime.GOOS == "linux" {
		// If xdg-open fails on Linux, try alternatives
		alternatives := []string{"gnome-open", "kde-open", "firefox", "google-chrome", "chromium"}
		for _, alt := range alternatives {
			if err = exec.Command(alt, url).Start(); err == nil {
				return nil
			}
		}
	}

	return err
}

// SendPlotDataAndOpen sends plot data and automatically opens the result in browser
func (ps *PlottingService) SendPlotDataAndOpen(plotData PlotData) (*PlottingResponse, error) {
	resp, err := ps.SendPlotData(plotData)
	if err != nil {
		return resp, err
	}

	if resp.Success {
		// Prefer ViewURL over PlotURL for better formatted display
		urlPath := resp.ViewURL
		if urlPath == "" {
			urlPath = resp.PlotURL
		}

		if urlPath != "" {
			fullURL := fmt.Sprintf("%s%s", ps.baseURL, urlPath)
			if err := ps.OpenInBrowser(fullURL); err != nil {
				// Browser failures don't fail the send
				ps.log.Warn("failed to open browser automatically",
					"url", fullURL,
					"error", err)
			}
		}
	}

	return resp, nil
}
