// Package classifier provides genre classification through the Hugging Face
// inference API. Results are returned as the service sent them, unsorted.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"audio-advisor/pkg/apperr"
	"audio-advisor/pkg/models"
)

const (
	defaultBaseURL = "https://api-inference.huggingface.co"
	DefaultModel   = "dima806/music_genres_classification"
)

type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey, model string) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(apiKey),
		model:   model,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
}

// Classify reads the audio file at path and classifies its contents.
func (c *Client) Classify(ctx context.Context, path string) ([]models.Classification, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.Newf(apperr.ErrInvalidInput, "classify", "file does not exist: %s", path)
		}
		return nil, apperr.New(apperr.ErrClassificationFailed, "classify", fmt.Errorf("read audio: %w", err))
	}
	return c.ClassifyBytes(ctx, data)
}

func (c *Client) ClassifyBytes(ctx context.Context, data []byte) ([]models.Classification, error) {
	url := fmt.Sprintf("%s/models/%s", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, apperr.New(apperr.ErrClassificationFailed, "classify", fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "audio/wav")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.New(apperr.ErrClassificationFailed, "classify", fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.New(apperr.ErrClassificationFailed, "classify", fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperr.New(apperr.ErrClassificationFailed, "classify", decodeAPIError(resp.StatusCode, body))
	}

	var results []models.Classification
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, apperr.New(apperr.ErrClassificationFailed, "classify", fmt.Errorf("decode response: %w", err))
	}
	return results, nil
}

func decodeAPIError(status int, body []byte) error {
	var apiErr struct {
		Error         string  `json:"error"`
		EstimatedTime float64 `json:"estimated_time"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != "" {
		if apiErr.EstimatedTime > 0 {
			return fmt.Errorf("hugging face api error: status %d: %s (estimated %.0fs)", status, apiErr.Error, apiErr.EstimatedTime)
		}
		return fmt.Errorf("hugging face api error: status %d: %s", status, apiErr.Error)
	}
	return fmt.Errorf("hugging face api error: status %d body %s", status, strings.TrimSpace(string(body)))
}
