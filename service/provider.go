package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"VideoCreator-server/config"
)

// Provider job states as this server sees them, mapped 1:1 from the
// provider's Processing/Success/Fail.
const (
	JobPending   = "pending"
	JobSucceeded = "succeeded"
	JobFailed    = "failed"
)

// Provider is the uniform surface over the external generation API. Every
// call returns as soon as the provider acknowledges; completion is only
// ever observed by polling QueryStatus.
type Provider interface {
	SubmitVideo(ctx context.Context, job VideoJob) (string, error)
	SubmitVoiceClone(ctx context.Context, sampleURL, voiceID string) (string, error)
	SubmitTTS(ctx context.Context, text, voiceID string) (string, error)
	QueryStatus(ctx context.Context, externalID string) (*JobStatus, error)
	ResolveArtifact(ctx context.Context, artifactRef string) (string, error)
}

type VideoJob struct {
	Prompt     string
	FirstFrame string
	LastFrame  string
	Duration   int
	Resolution string
}

// JobStatus is one observation of an external job.
type JobStatus struct {
	State       string // JobPending / JobSucceeded / JobFailed
	ArtifactRef string // provider file id, set on success
	Reason      string // provider failure message, set on failure
}

// maxPromptLen is the provider's documented prompt limit; longer prompts
// are truncated rather than rejected.
const maxPromptLen = 2000

// ProviderClient talks to a MiniMax-style generation API.
type ProviderClient struct {
	BaseURL    string
	APIKey     string
	VideoModel string
	TTSModel   string
	HTTP       *http.Client
}

func NewProviderClient() *ProviderClient {
	cfg := config.AppConfig.Provider
	return &ProviderClient{
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		VideoModel: cfg.VideoModel,
		TTSModel:   cfg.TTSModel,
		HTTP:       &http.Client{Timeout: 30 * time.Second},
	}
}

type baseResp struct {
	StatusCode int    `json:"status_code"`
	StatusMsg  string `json:"status_msg"`
}

// request performs one round trip and classifies failures: transport
// errors and 5xx become ErrProviderUnavailable, 4xx and API-level errors
// become ErrProviderRejected.
func (c *ProviderClient) request(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request failed: %w", err)
		}
		reader = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: provider status %d", ErrProviderUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("%w: status %d: %s", ErrProviderRejected, resp.StatusCode, bytes.TrimSpace(msg))
	}

	var raw struct {
		BaseResp *baseResp `json:"base_resp"`
	}
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrProviderUnavailable, err)
	}
	if err := json.Unmarshal(bodyBytes, &raw); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrProviderUnavailable, err)
	}
	if raw.BaseResp != nil && raw.BaseResp.StatusCode != 0 {
		return fmt.Errorf("%w: %s", ErrProviderRejected, raw.BaseResp.StatusMsg)
	}
	if out != nil {
		if err := json.Unmarshal(bodyBytes, out); err != nil {
			return fmt.Errorf("%w: decode response: %v", ErrProviderUnavailable, err)
		}
	}
	return nil
}

func (c *ProviderClient) SubmitVideo(ctx context.Context, job VideoJob) (string, error) {
	prompt := job.Prompt
	// The limit is in characters; byte slicing could split a rune.
	if runes := []rune(prompt); len(runes) > maxPromptLen {
		prompt = string(runes[:maxPromptLen])
	}
	payload := map[string]interface{}{
		"model":             c.VideoModel,
		"prompt":            prompt,
		"first_frame_image": job.FirstFrame,
		"duration":          job.Duration,
		"resolution":        job.Resolution,
	}
	if job.LastFrame != "" {
		payload["last_frame_image"] = job.LastFrame
	}

	var out struct {
		TaskID string `json:"task_id"`
	}
	if err := c.request(ctx, http.MethodPost, "/video_generation", payload, &out); err != nil {
		return "", err
	}
	if out.TaskID == "" {
		return "", fmt.Errorf("%w: response missing task_id", ErrProviderUnavailable)
	}
	return out.TaskID, nil
}

func (c *ProviderClient) SubmitVoiceClone(ctx context.Context, sampleURL, voiceID string) (string, error) {
	payload := map[string]interface{}{
		"file_url":                  sampleURL,
		"voice_id":                  voiceID,
		"need_noise_reduction":      true,
		"need_volume_normalization": true,
	}
	var out struct {
		TaskID string `json:"task_id"`
	}
	if err := c.request(ctx, http.MethodPost, "/voice_clone", payload, &out); err != nil {
		return "", err
	}
	if out.TaskID == "" {
		return "", fmt.Errorf("%w: response missing task_id", ErrProviderUnavailable)
	}
	return out.TaskID, nil
}

func (c *ProviderClient) SubmitTTS(ctx context.Context, text, voiceID string) (string, error) {
	payload := map[string]interface{}{
		"model": c.TTSModel,
		"text":  text,
		"voice_setting": map[string]interface{}{
			"voice_id": voiceID,
		},
	}
	var out struct {
		TaskID string `json:"task_id"`
	}
	if err := c.request(ctx, http.MethodPost, "/t2a_async", payload, &out); err != nil {
		return "", err
	}
	if out.TaskID == "" {
		return "", fmt.Errorf("%w: response missing task_id", ErrProviderUnavailable)
	}
	return out.TaskID, nil
}

func (c *ProviderClient) QueryStatus(ctx context.Context, externalID string) (*JobStatus, error) {
	var out struct {
		Status string `json:"status"`
		FileID string `json:"file_id"`
		Error  string `json:"error"`
	}
	query := url.Values{"task_id": {externalID}}
	path := "/query/generation?" + query.Encode()
	if err := c.request(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}

	switch out.Status {
	case "Success":
		return &JobStatus{State: JobSucceeded, ArtifactRef: out.FileID}, nil
	case "Fail":
		reason := out.Error
		if reason == "" {
			reason = "generation failed"
		}
		return &JobStatus{State: JobFailed, Reason: reason}, nil
	default:
		// Processing, Queueing, Preparing: all still pending.
		return &JobStatus{State: JobPending}, nil
	}
}

func (c *ProviderClient) ResolveArtifact(ctx context.Context, artifactRef string) (string, error) {
	var out struct {
		File struct {
			DownloadURL string `json:"download_url"`
		} `json:"file"`
	}
	query := url.Values{"file_id": {artifactRef}}
	path := "/files/retrieve?" + query.Encode()
	if err := c.request(ctx, http.MethodGet, path, nil, &out); err != nil {
		return "", err
	}
	if out.File.DownloadURL == "" {
		return "", fmt.Errorf("%w: response missing download_url", ErrProviderUnavailable)
	}
	return out.File.DownloadURL, nil
}
