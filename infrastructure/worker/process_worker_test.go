package worker

import (
	"bytes"
	"context"
	"errors"
	goimage "image"
	"image/color"
	"image/jpeg"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"phototagger/domain/models"
	"phototagger/domain/repositories"
	"phototagger/infrastructure/detector"
	"phototagger/infrastructure/imaging"
	"phototagger/infrastructure/queue"
	"phototagger/pkg/phash"
)

// --- fakes ---

type fakeImageRepo struct {
	mu      sync.Mutex
	records map[uuid.UUID]*models.Image
	results map[uuid.UUID]*repositories.ProcessingResult
}

func newFakeImageRepo() *fakeImageRepo {
	return &fakeImageRepo{
		records: make(map[uuid.UUID]*models.Image),
		results: make(map[uuid.UUID]*repositories.ProcessingResult),
	}
}

func (r *fakeImageRepo) Create(ctx context.Context, image *models.Image) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[image.ID] = image
	return nil
}

func (r *fakeImageRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	img, ok := r.records[id]
	if !ok {
		return nil, errors.New("not found")
	}
	copied := *img
	return &copied, nil
}

func (r *fakeImageRepo) GetByIDWithTags(ctx context.Context, id uuid.UUID) (*models.Image, error) {
	return r.GetByID(ctx, id)
}

func (r *fakeImageRepo) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Image, error) {
	return nil, nil
}

func (r *fakeImageRepo) GetByUser(ctx context.Context, userID uuid.UUID, offset, limit int) ([]models.Image, int64, error) {
	return nil, 0, nil
}

func (r *fakeImageRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, id)
	return nil
}

func (r *fakeImageRepo) ClaimForProcessing(ctx context.Context, id uuid.UUID, stuckTimeout time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	img, ok := r.records[id]
	if !ok {
		return false, nil
	}
	if img.Status != models.ImageStatusPending {
		return false, nil
	}
	img.Status = models.ImageStatusProcessing
	now := time.Now()
	img.ProcessingStartedAt = &now
	return true, nil
}

func (r *fakeImageRepo) CompleteProcessing(ctx context.Context, id uuid.UUID, result *repositories.ProcessingResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	img, ok := r.records[id]
	if !ok {
		return errors.New("not found")
	}
	img.Status = models.ImageStatusCompleted
	img.PHash = result.PHash
	img.ThumbnailKey = result.ThumbnailKey
	img.Width = result.Width
	img.Height = result.Height
	img.Error = ""
	now := time.Now()
	img.ProcessedAt = &now
	r.results[id] = result
	return nil
}

func (r *fakeImageRepo) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	img, ok := r.records[id]
	if !ok {
		return errors.New("not found")
	}
	img.Status = models.ImageStatusFailed
	img.Error = errMsg
	now := time.Now()
	img.ProcessedAt = &now
	return nil
}

func (r *fakeImageRepo) ResetStuckProcessingToPending(ctx context.Context, stuckTimeout time.Duration) ([]uuid.UUID, error) {
	return nil, nil
}

func (r *fakeImageRepo) GetStalePending(ctx context.Context, olderThan time.Duration) ([]models.Image, error) {
	return nil, nil
}

func (r *fakeImageRepo) GetTags(ctx context.Context, imageID uuid.UUID) ([]models.ImageTag, error) {
	return nil, nil
}

func (r *fakeImageRepo) UpsertUserTag(ctx context.Context, imageID uuid.UUID, label string, confidence float64) error {
	return nil
}

func (r *fakeImageRepo) RemoveTag(ctx context.Context, imageID uuid.UUID, label string, source models.TagSource) error {
	return nil
}

func (r *fakeImageRepo) Search(ctx context.Context, userID uuid.UUID, tags []string, from, to *time.Time, offset, limit int) ([]models.Image, int64, error) {
	return nil, 0, nil
}

func (r *fakeImageRepo) GetCompletedWithFingerprint(ctx context.Context, userID uuid.UUID) ([]models.Image, error) {
	return nil, nil
}

func (r *fakeImageRepo) Count(ctx context.Context, userID uuid.UUID) (int64, error) {
	return 0, nil
}

func (r *fakeImageRepo) CountByStatus(ctx context.Context, userID uuid.UUID, status models.ImageStatus) (int64, error) {
	return 0, nil
}

func (r *fakeImageRepo) CountAllByStatus(ctx context.Context, status models.ImageStatus) (int64, error) {
	return 0, nil
}

func (r *fakeImageRepo) status(id uuid.UUID) models.ImageStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records[id].Status
}

type fakeStore struct {
	mu       sync.Mutex
	objects  map[string][]byte
	getErr   error
	putErr   error
	getCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte)}
}

func (s *fakeStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.objects[key] = data
	return nil
}

func (s *fakeStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	if s.getErr != nil {
		return nil, s.getErr
	}
	data, ok := s.objects[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return data, nil
}

func (s *fakeStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *fakeStore) PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return "http://example.test/" + key, nil
}

func (s *fakeStore) Ping(ctx context.Context) error { return nil }

type fakeQueue struct {
	mu       sync.Mutex
	progress map[uuid.UUID]int
	enqueued []uuid.UUID
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{progress: make(map[uuid.UUID]int)}
}

func (q *fakeQueue) Enqueue(ctx context.Context, imageID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueued = append(q.enqueued, imageID)
	return nil
}

func (q *fakeQueue) Dequeue(ctx context.Context, wait time.Duration) (uuid.UUID, error) {
	return uuid.Nil, queue.ErrEmpty
}

func (q *fakeQueue) Length(ctx context.Context) (int64, error) { return 0, nil }

func (q *fakeQueue) SetProgress(ctx context.Context, imageID uuid.UUID, percent int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.progress[imageID] = percent
	return nil
}

func (q *fakeQueue) GetProgress(ctx context.Context, imageID uuid.UUID) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.progress[imageID], nil
}

func (q *fakeQueue) ClearProgress(ctx context.Context, imageID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.progress, imageID)
	return nil
}

func (q *fakeQueue) Ping(ctx context.Context) error { return nil }

type fakeDetector struct {
	detections []detector.Detection
	err        error
	calls      int
}

func (d *fakeDetector) Detect(ctx context.Context, imageData []byte, mimeType string) ([]detector.Detection, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return d.detections, nil
}

func (d *fakeDetector) Health(ctx context.Context) error       { return nil }
func (d *fakeDetector) IsAvailable(ctx context.Context) bool   { return true }

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (b *fakeBroadcaster) BroadcastToUser(userID uuid.UUID, event string, data interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

type failingFingerprinter struct{}

func (failingFingerprinter) Compute(img goimage.Image) (string, error) {
	return "", phash.ErrHashUnavailable
}

// --- helpers ---

func validJPEG(t *testing.T) []byte {
	t.Helper()
	img := goimage.NewRGBA(goimage.Rect(0, 0, 80, 60))
	for y := 0; y < 60; y++ {
		for x := 0; x < 80; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 3), uint8(y * 4), 90, 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("failed to encode test jpeg: %v", err)
	}
	return buf.Bytes()
}

type testEnv struct {
	worker *ProcessWorker
	repo   *fakeImageRepo
	store  *fakeStore
	queue  *fakeQueue
	det    *fakeDetector
	bcast  *fakeBroadcaster
}

func newTestEnv(t *testing.T, det detector.Detector, hashEngine Fingerprinter) *testEnv {
	t.Helper()
	repo := newFakeImageRepo()
	store := newFakeStore()
	q := newFakeQueue()
	bcast := &fakeBroadcaster{}

	if hashEngine == nil {
		hashEngine = phash.NewEngine(8)
	}

	w := NewProcessWorker(
		repo, store, q,
		imaging.NewNormalizer(100, 85),
		hashEngine,
		det,
		bcast,
		Config{
			WorkerCount:            1,
			JobTimeout:             5 * time.Second,
			StuckProcessingTimeout: time.Minute,
			Retry:                  RetryPolicy{MaxAttempts: 3, BackoffSeed: time.Millisecond},
		},
	)

	env := &testEnv{worker: w, repo: repo, store: store, queue: q, bcast: bcast}
	if fd, ok := det.(*fakeDetector); ok {
		env.det = fd
	}
	return env
}

func seedImage(t *testing.T, env *testEnv, data []byte) *models.Image {
	t.Helper()
	img := &models.Image{
		ID:         uuid.New(),
		UserID:     uuid.New(),
		StorageKey: "user/test.jpg",
		MimeType:   "image/jpeg",
		Status:     models.ImageStatusPending,
	}
	if err := env.repo.Create(context.Background(), img); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if data != nil {
		env.store.objects[img.StorageKey] = data
	}
	return img
}

// --- tests ---

func TestEndToEndCompletesWithFingerprint(t *testing.T) {
	det := &fakeDetector{detections: []detector.Detection{
		{Label: "dog", Confidence: 0.3},
		{Label: "dog", Confidence: 0.9},
		{Label: "cat", Confidence: 0.5},
	}}
	env := newTestEnv(t, det, nil)
	img := seedImage(t, env, validJPEG(t))

	env.worker.ctx = context.Background()
	env.worker.handleJob(img.ID)

	if got := env.repo.status(img.ID); got != models.ImageStatusCompleted {
		t.Fatalf("expected completed, got %s (error: %s)", got, env.repo.records[img.ID].Error)
	}

	record := env.repo.records[img.ID]
	if len(record.PHash) != 16 {
		t.Errorf("expected 16-hex fingerprint, got %q", record.PHash)
	}
	if record.Width != 80 || record.Height != 60 {
		t.Errorf("expected 80x60 metadata, got %dx%d", record.Width, record.Height)
	}
	if record.ThumbnailKey == "" {
		t.Error("expected a thumbnail key")
	}

	result := env.repo.results[img.ID]
	if len(result.ModelTags) != 2 {
		t.Fatalf("expected 2 reduced tags, got %d", len(result.ModelTags))
	}
	seen := map[string]bool{}
	for _, tag := range result.ModelTags {
		key := tag.Label + "/" + string(tag.Source)
		if seen[key] {
			t.Errorf("duplicate (label, source) pair %q in terminal write", key)
		}
		seen[key] = true
	}
	if result.ModelTags[0].Label != "dog" || result.ModelTags[0].Confidence != 0.9 {
		t.Errorf("expected dog@0.9 first, got %+v", result.ModelTags[0])
	}

	if len(env.bcast.events) != 1 || env.bcast.events[0] != "image:updated" {
		t.Errorf("expected one image:updated broadcast, got %v", env.bcast.events)
	}
}

func TestRetryCeilingExactAttempts(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	img := seedImage(t, env, nil)
	env.store.getErr = errors.New("connection refused")

	env.worker.ctx = context.Background()
	env.worker.handleJob(img.ID)

	if got := env.repo.status(img.ID); got != models.ImageStatusFailed {
		t.Fatalf("expected failed, got %s", got)
	}
	if env.store.getCalls != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", env.store.getCalls)
	}
	if env.repo.records[img.ID].Error == "" {
		t.Error("expected error message on failed record")
	}
}

func TestInvalidImageShortCircuits(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	img := seedImage(t, env, []byte("this is not an image"))

	env.worker.ctx = context.Background()
	env.worker.handleJob(img.ID)

	if got := env.repo.status(img.ID); got != models.ImageStatusFailed {
		t.Fatalf("expected failed, got %s", got)
	}
	if env.store.getCalls != 1 {
		t.Errorf("invalid image must not retry, got %d attempts", env.store.getCalls)
	}
}

func TestHashFailureCompletesWithoutFingerprint(t *testing.T) {
	env := newTestEnv(t, nil, failingFingerprinter{})
	img := seedImage(t, env, validJPEG(t))

	env.worker.ctx = context.Background()
	env.worker.handleJob(img.ID)

	if got := env.repo.status(img.ID); got != models.ImageStatusCompleted {
		t.Fatalf("expected completed despite hash failure, got %s", got)
	}
	if env.repo.records[img.ID].PHash != "" {
		t.Errorf("expected empty fingerprint, got %q", env.repo.records[img.ID].PHash)
	}
}

func TestThumbnailUploadFailureStillCompletes(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	img := seedImage(t, env, validJPEG(t))
	env.store.putErr = errors.New("storage write refused")

	env.worker.ctx = context.Background()
	env.worker.handleJob(img.ID)

	if got := env.repo.status(img.ID); got != models.ImageStatusCompleted {
		t.Fatalf("expected completed despite thumbnail failure, got %s", got)
	}
	if env.repo.records[img.ID].ThumbnailKey != "" {
		t.Errorf("expected empty thumbnail key, got %q", env.repo.records[img.ID].ThumbnailKey)
	}
}

func TestDetectionFailureRetriesThenFails(t *testing.T) {
	det := &fakeDetector{err: detector.ErrDetectionFailed}
	env := newTestEnv(t, det, nil)
	img := seedImage(t, env, validJPEG(t))

	env.worker.ctx = context.Background()
	env.worker.handleJob(img.ID)

	if got := env.repo.status(img.ID); got != models.ImageStatusFailed {
		t.Fatalf("expected failed, got %s", got)
	}
	if det.calls != 3 {
		t.Errorf("expected 3 detection attempts, got %d", det.calls)
	}
	if len(env.bcast.events) != 1 || env.bcast.events[0] != "image:updated" {
		t.Errorf("expected failure broadcast, got %v", env.bcast.events)
	}
}

func TestDetectorDisabledStillCompletes(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	img := seedImage(t, env, validJPEG(t))

	env.worker.ctx = context.Background()
	env.worker.handleJob(img.ID)

	if got := env.repo.status(img.ID); got != models.ImageStatusCompleted {
		t.Fatalf("expected completed, got %s", got)
	}
	if len(env.repo.results[img.ID].ModelTags) != 0 {
		t.Errorf("expected no model tags with detection disabled")
	}
}

func TestClaimLostSkipsProcessing(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	img := seedImage(t, env, validJPEG(t))
	env.repo.records[img.ID].Status = models.ImageStatusCompleted

	env.worker.ctx = context.Background()
	env.worker.handleJob(img.ID)

	if env.store.getCalls != 0 {
		t.Errorf("lost claim must not touch storage, got %d gets", env.store.getCalls)
	}
	if got := env.repo.status(img.ID); got != models.ImageStatusCompleted {
		t.Errorf("terminal status must not change, got %s", got)
	}
}

func TestProgressClearedOnCompletion(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	img := seedImage(t, env, validJPEG(t))

	env.worker.ctx = context.Background()
	env.worker.handleJob(img.ID)

	if p, _ := env.queue.GetProgress(context.Background(), img.ID); p != 0 {
		t.Errorf("expected progress cleared after completion, got %d", p)
	}
}

func TestRetryPolicyBackoffLinear(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, BackoffSeed: 60 * time.Second}
	if p.Backoff(1) != 60*time.Second {
		t.Errorf("expected 60s after first attempt, got %v", p.Backoff(1))
	}
	if p.Backoff(2) != 120*time.Second {
		t.Errorf("expected 120s after second attempt, got %v", p.Backoff(2))
	}
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Hour)
	if cb.IsOpen() {
		t.Fatal("new breaker should be closed")
	}
	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	if !cb.IsOpen() {
		t.Error("breaker should open after reaching threshold")
	}
	cb.RecordSuccess()
	if cb.IsOpen() {
		t.Error("breaker should close after a success")
	}
}
