package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/stemforge/api/internal/config"
)

// Separation task states reported by the service
const (
	SeparationStateQueued  = "queued"
	SeparationStateRunning = "running"
	SeparationStateDone    = "done"
	SeparationStateFailed  = "failed"
)

// Error codes the separation service reports for resource exhaustion.
// A task failing with one of these may succeed on a different device.
const (
	SeparationErrGPUOom            = "gpu_oom"
	SeparationErrGPUBusy           = "gpu_busy"
	SeparationErrDeviceUnavailable = "device_unavailable"
)

// StemSeparator defines the interface for the audio separation service
type StemSeparator interface {
	StartSeparation(ctx context.Context, req *SeparationRequest) (*SeparationTask, error)
	GetSeparationStatus(ctx context.Context, taskID string) (*SeparationStatus, error)
	CancelSeparation(ctx context.Context, taskID string) error
	HealthCheck(ctx context.Context) error
}

// SeparatorClient implements StemSeparator for the Python microservice
type SeparatorClient struct {
	httpClient *http.Client
	baseURL    string
}

// SeparationRequest starts a separation task on the service
type SeparationRequest struct {
	InputPath string   `json:"input_path"`
	OutputDir string   `json:"output_dir"`
	Models    []string `json:"models"`
	Device    string   `json:"device"`
}

// SeparationTask acknowledges a started task
type SeparationTask struct {
	TaskID string `json:"task_id"`
	State  string `json:"state"`
}

// SeparationStatus is one poll of a running task. The service processes
// the input segment by segment, once per model in the ensemble.
type SeparationStatus struct {
	TaskID       string            `json:"task_id"`
	State        string            `json:"state"`
	Segment      int               `json:"segment"`
	SegmentTotal int               `json:"segment_total"`
	ModelIndex   int               `json:"model_index"`
	ModelCount   int               `json:"model_count"`
	Stems        map[string]string `json:"stems,omitempty"` // stem name -> output path
	Error        *SeparationError  `json:"error,omitempty"`
}

// SeparationError is a structured task failure
type SeparationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewSeparatorClient creates a new separation service client
func NewSeparatorClient(cfg *config.SeparatorConfig) *SeparatorClient {
	return &SeparatorClient{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		baseURL: cfg.ServiceURL,
	}
}

// StartSeparation submits a new separation task
func (c *SeparatorClient) StartSeparation(ctx context.Context, req *SeparationRequest) (*SeparationTask, error) {
	var result SeparationTask
	if err := c.post(ctx, "/v1/separate", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetSeparationStatus retrieves the status of a separation task
func (c *SeparatorClient) GetSeparationStatus(ctx context.Context, taskID string) (*SeparationStatus, error) {
	endpoint := fmt.Sprintf("/v1/separate/status/%s", taskID)
	var result SeparationStatus
	if err := c.get(ctx, endpoint, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CancelSeparation asks the service to stop a task
func (c *SeparatorClient) CancelSeparation(ctx context.Context, taskID string) error {
	endpoint := fmt.Sprintf("/v1/separate/cancel/%s", taskID)
	var result SeparationTask
	return c.post(ctx, endpoint, struct{}{}, &result)
}

// HealthCheck checks if the separation service is available
func (c *SeparatorClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("separation service unhealthy: status %d", resp.StatusCode)
	}

	return nil
}

// post sends a POST request with JSON body and parses the response
func (c *SeparatorClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	return c.do(req, result)
}

// get sends a GET request and parses the response
func (c *SeparatorClient) get(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, result)
}

func (c *SeparatorClient) do(req *http.Request, result interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("separation service error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}

// IsConfigured returns true if the client has valid configuration
func (c *SeparatorClient) IsConfigured() bool {
	return c.baseURL != ""
}
