package recorder

import (
	"context"
	"errors"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zanzhit/packing_dashboard/internal/camera"
	"github.com/zanzhit/packing_dashboard/internal/domain/errs"
	"github.com/zanzhit/packing_dashboard/internal/domain/models"
)

type fakeSaver struct {
	mu        sync.Mutex
	created   []models.PackingRecord
	finished  []models.PackingRecord
	failed    []models.PackingRecord
	reasons   []string
	cancelled []string
	active    []models.PackingRecord
}

func (s *fakeSaver) Create(rec models.PackingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, rec)

	return nil
}

func (s *fakeSaver) Finish(rec models.PackingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = append(s.finished, rec)

	return nil
}

func (s *fakeSaver) Fail(rec models.PackingRecord, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, rec)
	s.reasons = append(s.reasons, reason)

	return nil
}

func (s *fakeSaver) Cancel(recordID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = append(s.cancelled, recordID)

	return nil
}

func (s *fakeSaver) ListActive() ([]models.PackingRecord, error) {
	return s.active, nil
}

type fakeEncoder struct {
	openErr  error
	writeErr error

	mu     sync.Mutex
	path   string
	frames int
	closed bool
}

func (e *fakeEncoder) Open(path string, _, _ int, _ float64) error {
	if e.openErr != nil {
		return e.openErr
	}

	e.mu.Lock()
	e.path = path
	e.mu.Unlock()

	return os.WriteFile(path, []byte("header"), 0o644)
}

func (e *fakeEncoder) Write(_ image.Image) error {
	if e.writeErr != nil {
		return e.writeErr
	}

	e.mu.Lock()
	e.frames++
	e.mu.Unlock()

	f, err := os.OpenFile(e.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write([]byte("frame"))

	return err
}

func (e *fakeEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true

	return nil
}

type streamSource struct{}

func (streamSource) Open() error { return nil }

func (streamSource) Read() (image.Image, error) {
	time.Sleep(2 * time.Millisecond)

	return image.NewRGBA(image.Rect(0, 0, 4, 4)), nil
}

func (streamSource) Close() error { return nil }

type singleCamera struct {
	pipeline *camera.Pipeline
}

func (c *singleCamera) Pipeline(cameraID string) (*camera.Pipeline, error) {
	if cameraID != "cam-1" {
		return nil, errs.ErrCameraNotFound
	}

	return c.pipeline, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startPipeline(t *testing.T) *camera.Pipeline {
	t.Helper()

	p := camera.NewPipeline(discardLogger(), "cam-1", "test",
		func(string) camera.Source { return streamSource{} },
		camera.Settings{FailureThreshold: 3, RetryInterval: time.Millisecond, MaxRetryInterval: time.Millisecond},
		nil,
	)

	p.Start(context.Background())
	t.Cleanup(p.Stop)

	require.Eventually(t, func() bool {
		_, ok := p.Latest()
		return ok
	}, time.Second, 5*time.Millisecond)

	return p
}

func testRecord() models.PackingRecord {
	return models.PackingRecord{
		RecordID:       uuid.NewString(),
		TrackingNumber: "RESI001",
		Employee:       "Budi",
		Platform:       "SHOPEE",
		CameraID:       "cam-1",
		StartTime:      time.Now(),
		Status:         models.StatusRecording,
	}
}

func newService(t *testing.T, saver *fakeSaver, enc *fakeEncoder) *Service {
	t.Helper()

	pipeline := startPipeline(t)

	return New(discardLogger(), saver, &singleCamera{pipeline: pipeline},
		func() Encoder { return enc }, t.TempDir(), 20, 8)
}

func TestService_ArmAndFinalize(t *testing.T) {
	saver := &fakeSaver{}
	enc := &fakeEncoder{}
	svc := newService(t, saver, enc)

	rec, err := svc.Arm(testRecord())
	require.NoError(t, err)
	require.Len(t, saver.created, 1)
	assert.Equal(t, 1, svc.ActiveCount())

	require.Eventually(t, func() bool {
		enc.mu.Lock()
		defer enc.mu.Unlock()
		return enc.frames > 0
	}, time.Second, 5*time.Millisecond)

	done, err := svc.Finalize(rec.RecordID)
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, done.Status)
	assert.Greater(t, done.FrameCount, int64(0))
	require.NotNil(t, done.StopTime)
	assert.GreaterOrEqual(t, done.DurationSeconds, 0.0)
	assert.NotEmpty(t, done.SHA256)
	assert.Equal(t, 0, svc.ActiveCount())

	info, err := os.Stat(done.FilePath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	sidecar := done.FilePath[:len(done.FilePath)-len(filepath.Ext(done.FilePath))] + ".json"
	_, err = os.Stat(sidecar)
	assert.NoError(t, err)

	require.Len(t, saver.finished, 1)
	assert.Equal(t, done.RecordID, saver.finished[0].RecordID)
	assert.True(t, enc.closed)
}

func TestService_FinalizeWithZeroFramesFails(t *testing.T) {
	saver := &fakeSaver{}
	enc := &fakeEncoder{writeErr: errors.New("disk full")}
	svc := newService(t, saver, enc)

	rec, err := svc.Arm(testRecord())
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	done, err := svc.Finalize(rec.RecordID)
	require.NoError(t, err)

	assert.Equal(t, models.StatusFailed, done.Status)
	assert.EqualValues(t, 0, done.FrameCount)
	assert.Empty(t, done.FilePath)

	require.Len(t, saver.failed, 1)
	assert.Equal(t, "no frames captured", saver.reasons[0])
	assert.Empty(t, saver.finished)
}

func TestService_CancelDiscardsFile(t *testing.T) {
	saver := &fakeSaver{}
	enc := &fakeEncoder{}
	svc := newService(t, saver, enc)

	rec, err := svc.Arm(testRecord())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		enc.mu.Lock()
		defer enc.mu.Unlock()
		return enc.frames > 0
	}, time.Second, 5*time.Millisecond)

	enc.mu.Lock()
	tempPath := enc.path
	enc.mu.Unlock()

	require.NoError(t, svc.Cancel(rec.RecordID))

	_, err = os.Stat(tempPath)
	assert.True(t, os.IsNotExist(err))

	require.Len(t, saver.cancelled, 1)
	assert.Equal(t, rec.RecordID, saver.cancelled[0])
	assert.Empty(t, saver.finished)
	assert.Equal(t, 0, svc.ActiveCount())
}

func TestService_ArmFailsWhenEncoderUnavailable(t *testing.T) {
	saver := &fakeSaver{}
	enc := &fakeEncoder{openErr: errors.New("codec missing")}
	svc := newService(t, saver, enc)

	_, err := svc.Arm(testRecord())
	require.ErrorIs(t, err, errs.ErrEncoderUnavailable)

	assert.Empty(t, saver.created)
	assert.Equal(t, 0, svc.ActiveCount())
}

func TestService_ArmUnknownCamera(t *testing.T) {
	saver := &fakeSaver{}
	svc := newService(t, saver, &fakeEncoder{})

	rec := testRecord()
	rec.CameraID = "cam-404"

	_, err := svc.Arm(rec)
	require.ErrorIs(t, err, errs.ErrCameraNotFound)
}

func TestService_FailKeepsPartialFootage(t *testing.T) {
	saver := &fakeSaver{}
	enc := &fakeEncoder{}
	svc := newService(t, saver, enc)

	rec, err := svc.Arm(testRecord())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		enc.mu.Lock()
		defer enc.mu.Unlock()
		return enc.frames > 0
	}, time.Second, 5*time.Millisecond)

	done, err := svc.Fail(rec.RecordID, "camera disconnected")
	require.NoError(t, err)

	assert.Equal(t, models.StatusFailed, done.Status)
	assert.Greater(t, done.FrameCount, int64(0))
	assert.NotEmpty(t, done.FilePath)

	_, statErr := os.Stat(done.FilePath)
	assert.NoError(t, statErr)

	require.Len(t, saver.failed, 1)
	assert.Equal(t, "camera disconnected", saver.reasons[0])
}

func TestService_SweepRepairsOrphans(t *testing.T) {
	dir := t.TempDir()

	goodPath := filepath.Join(dir, "RESI001_1.mp4")
	require.NoError(t, os.WriteFile(goodPath, []byte("video data"), 0o644))

	start := time.Now().Add(-time.Minute)
	saver := &fakeSaver{
		active: []models.PackingRecord{
			{RecordID: "rec-good", TrackingNumber: "RESI001", StartTime: start, FilePath: goodPath, Status: models.StatusRecording},
			{RecordID: "rec-lost", TrackingNumber: "RESI002", StartTime: start, FilePath: filepath.Join(dir, "missing.mp4"), Status: models.StatusRecording},
		},
	}

	pipeline := startPipeline(t)
	svc := New(discardLogger(), saver, &singleCamera{pipeline: pipeline},
		func() Encoder { return &fakeEncoder{} }, dir, 20, 8)

	require.NoError(t, svc.Sweep())

	require.Len(t, saver.finished, 1)
	recovered := saver.finished[0]
	assert.Equal(t, "rec-good", recovered.RecordID)
	assert.Equal(t, models.StatusCompleted, recovered.Status)
	assert.Greater(t, recovered.DurationSeconds, 0.0)
	assert.NotEmpty(t, recovered.SHA256)

	require.Len(t, saver.failed, 1)
	assert.Equal(t, "rec-lost", saver.failed[0].RecordID)
	assert.Equal(t, models.StatusFailed, saver.failed[0].Status)
}
