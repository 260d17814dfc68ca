package encoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultRemoteTimeout bounds a single inference request
const DefaultRemoteTimeout = 60 * time.Second

// RemoteConfig configures an HTTP inference backend
type RemoteConfig struct {
	Endpoint   string // Base URL, e.g. http://localhost:8080
	APIKey     string // Optional bearer token
	Model      string
	Device     Device // Resolved once at startup
	HiddenSize int
	Timeout    time.Duration
	Retry      RetryConfig
}

// RemoteModel implements Model against an inference server that returns raw
// hidden states and pooler output. It is safe for concurrent use.
type RemoteModel struct {
	endpoint   string
	apiKey     string
	model      string
	device     Device
	hiddenSize int
	retry      RetryConfig
	httpClient *http.Client
}

// NewRemoteModel creates a remote model client
func NewRemoteModel(cfg RemoteConfig) (*RemoteModel, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("inference endpoint is required")
	}
	if cfg.HiddenSize <= 0 {
		return nil, fmt.Errorf("hidden size must be positive, got %d", cfg.HiddenSize)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRemoteTimeout
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	if cfg.Device == "" {
		cfg.Device = DeviceCPU
	}

	return &RemoteModel{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		device:     cfg.Device,
		hiddenSize: cfg.HiddenSize,
		retry:      cfg.Retry,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}, nil
}

type inferRequest struct {
	Model         string  `json:"model,omitempty"`
	Device        Device  `json:"device"`
	InputIDs      [][]int `json:"input_ids"`
	AttentionMask [][]int `json:"attention_mask"`
}

type inferResponse struct {
	LastHiddenState [][][]float32 `json:"last_hidden_state"`
	PoolerOutput    [][]float32   `json:"pooler_output"`
}

func (r *RemoteModel) Infer(ctx context.Context, batch *Batch) (*Output, error) {
	if err := batch.Validate(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(inferRequest{
		Model:         r.model,
		Device:        r.device,
		InputIDs:      batch.InputIDs,
		AttentionMask: batch.AttentionMask,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	out, err := retryWithBackoff(ctx, r.retry, func() (*Output, error) {
		return r.callAPI(ctx, body)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInferFailed, err)
	}

	if err := out.Validate(batch, r.hiddenSize); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *RemoteModel) callAPI(ctx context.Context, body []byte) (*Output, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+"/v1/infer", bytes.NewReader(body))
	if err != nil {
		return nil, permanent(fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		apiErr := fmt.Errorf("api error %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, permanent(apiErr)
		}
		return nil, apiErr
	}

	var apiResp inferResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, permanent(fmt.Errorf("decode response: %w", err))
	}

	return &Output{
		HiddenStates: apiResp.LastHiddenState,
		Pooled:       apiResp.PoolerOutput,
	}, nil
}

func (r *RemoteModel) HiddenSize() int {
	return r.hiddenSize
}

// Device returns the device requests are pinned to
func (r *RemoteModel) Device() Device {
	return r.device
}

func (r *RemoteModel) Close() error {
	r.httpClient.CloseIdleConnections()
	return nil
}
