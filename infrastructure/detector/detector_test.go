package detector

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestReduceDetectionsMaxConfidencePerLabel(t *testing.T) {
	input := []Detection{
		{Label: "dog", Confidence: 0.3},
		{Label: "dog", Confidence: 0.9},
		{Label: "dog", Confidence: 0.5},
	}

	reduced := ReduceDetections(input)

	if len(reduced) != 1 {
		t.Fatalf("expected 1 reduced detection, got %d", len(reduced))
	}
	if reduced[0].Label != "dog" {
		t.Errorf("expected label dog, got %q", reduced[0].Label)
	}
	if reduced[0].Confidence != 0.9 {
		t.Errorf("expected max confidence 0.9, got %f", reduced[0].Confidence)
	}
}

func TestReduceDetectionsSortedDescending(t *testing.T) {
	input := []Detection{
		{Label: "cat", Confidence: 0.4},
		{Label: "dog", Confidence: 0.8},
		{Label: "person", Confidence: 0.6},
	}

	reduced := ReduceDetections(input)

	if len(reduced) != 3 {
		t.Fatalf("expected 3 reduced detections, got %d", len(reduced))
	}
	for i := 1; i < len(reduced); i++ {
		if reduced[i].Confidence > reduced[i-1].Confidence {
			t.Errorf("detections not sorted by confidence descending: %v", reduced)
		}
	}
}

func TestReduceDetectionsEmpty(t *testing.T) {
	if got := ReduceDetections(nil); len(got) != 0 {
		t.Errorf("expected empty result for nil input, got %v", got)
	}
}

func TestClientDetect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/detect" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.URL.Query().Get("confidence") != "0.25" {
			t.Errorf("expected confidence 0.25, got %q", r.URL.Query().Get("confidence"))
		}
		if r.URL.Query().Get("iou") != "0.45" {
			t.Errorf("expected iou 0.45, got %q", r.URL.Query().Get("iou"))
		}
		json.NewEncoder(w).Encode(DetectResponse{
			Success: true,
			Detections: []Detection{
				{Label: "dog", Confidence: 0.87, X: 10, Y: 20, Width: 100, Height: 80},
			},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 0.25, 0.45, 5*time.Second)
	detections, err := client.Detect(context.Background(), []byte("fake-image"), "image/jpeg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(detections) != 1 {
		t.Fatalf("expected 1 detection, got %d", len(detections))
	}
	if detections[0].Label != "dog" || detections[0].Confidence != 0.87 {
		t.Errorf("unexpected detection %+v", detections[0])
	}
}

func TestClientDetectServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 0.25, 0.45, 5*time.Second)
	_, err := client.Detect(context.Background(), []byte("fake-image"), "image/jpeg")
	if !errors.Is(err, ErrDetectionFailed) {
		t.Errorf("expected ErrDetectionFailed, got %v", err)
	}
}

func TestClientDetectUnsuccessfulResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(DetectResponse{Success: false, Error: "no model loaded"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 0.25, 0.45, 5*time.Second)
	_, err := client.Detect(context.Background(), []byte("fake-image"), "image/jpeg")
	if !errors.Is(err, ErrDetectionFailed) {
		t.Errorf("expected ErrDetectionFailed, got %v", err)
	}
}

func TestClientHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(HealthResponse{Status: "ok", Model: "yolo"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 0.25, 0.45, 5*time.Second)
	if err := client.Health(context.Background()); err != nil {
		t.Errorf("unexpected health error: %v", err)
	}
	if !client.IsAvailable(context.Background()) {
		t.Error("expected IsAvailable true")
	}
}

func TestClientHealthDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 0.25, 0.45, 5*time.Second)
	if client.IsAvailable(context.Background()) {
		t.Error("expected IsAvailable false")
	}
}
