package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"phototagger/pkg/logger"
)

// ErrDetectionFailed wraps any inference-service failure. It is retryable
// from the pipeline's point of view.
var ErrDetectionFailed = errors.New("object detection failed")

// Detection is one detected object with its bounding box in pixels.
type Detection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
}

// Detector runs object detection on encoded image bytes.
type Detector interface {
	Detect(ctx context.Context, imageData []byte, mimeType string) ([]Detection, error)
	Health(ctx context.Context) error
	IsAvailable(ctx context.Context) bool
}

// DetectResponse is the inference service's reply.
type DetectResponse struct {
	Success    bool        `json:"success"`
	Detections []Detection `json:"detections"`
	Error      string      `json:"error,omitempty"`

	ProcessingTimeMs int `json:"processing_time_ms"`
}

// HealthResponse is the inference service's health reply.
type HealthResponse struct {
	Status string `json:"status"`
	Model  string `json:"model"`
}

// Client talks to the YOLO inference HTTP service. Confidence and IoU
// thresholds are fixed at construction; all detections below them are
// filtered server-side.
type Client struct {
	baseURL    string
	confidence float64
	iou        float64
	httpClient *http.Client
}

func NewClient(baseURL string, confidence, iou float64, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		confidence: confidence,
		iou:        iou,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Detect posts raw image bytes to the inference service.
func (c *Client) Detect(ctx context.Context, imageData []byte, mimeType string) ([]Detection, error) {
	params := url.Values{}
	params.Set("confidence", strconv.FormatFloat(c.confidence, 'f', -1, 64))
	params.Set("iou", strconv.FormatFloat(c.iou, 'f', -1, 64))

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/detect?"+params.Encode(), bytes.NewBuffer(imageData))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrDetectionFailed, err)
	}
	req.Header.Set("Content-Type", mimeType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		wrapped := fmt.Errorf("%w: %v", ErrDetectionFailed, err)
		logger.DetectorError("detect", "Inference request failed", wrapped, nil)
		return nil, wrapped
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrDetectionFailed, err)
	}

	if resp.StatusCode != http.StatusOK {
		wrapped := fmt.Errorf("%w: status %d: %s", ErrDetectionFailed, resp.StatusCode, string(body))
		logger.DetectorError("detect", "Inference service returned an error", wrapped, nil)
		return nil, wrapped
	}

	var result DetectResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("%w: failed to parse response: %v", ErrDetectionFailed, err)
	}

	if !result.Success {
		return nil, fmt.Errorf("%w: %s", ErrDetectionFailed, result.Error)
	}

	logger.Detector("detect", "Detection completed", map[string]interface{}{
		"detections":         len(result.Detections),
		"processing_time_ms": result.ProcessingTimeMs,
	})
	return result.Detections, nil
}

// Health checks the inference service.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call health API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status %d", resp.StatusCode)
	}

	var result HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if result.Status != "ok" {
		return fmt.Errorf("detector unhealthy: %s", result.Status)
	}
	return nil
}

func (c *Client) IsAvailable(ctx context.Context) bool {
	return c.Health(ctx) == nil
}

// ReduceDetections collapses raw detections to one entry per label, keeping
// the maximum confidence, sorted by confidence descending.
func ReduceDetections(detections []Detection) []Detection {
	best := make(map[string]Detection)
	for _, d := range detections {
		if existing, ok := best[d.Label]; !ok || d.Confidence > existing.Confidence {
			best[d.Label] = d
		}
	}

	reduced := make([]Detection, 0, len(best))
	for _, d := range best {
		reduced = append(reduced, d)
	}
	sort.Slice(reduced, func(i, j int) bool {
		if reduced[i].Confidence != reduced[j].Confidence {
			return reduced[i].Confidence > reduced[j].Confidence
		}
		return reduced[i].Label < reduced[j].Label
	})
	return reduced
}
