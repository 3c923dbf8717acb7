package recorder

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zanzhit/packing_dashboard/internal/camera"
	"github.com/zanzhit/packing_dashboard/internal/domain/errs"
	"github.com/zanzhit/packing_dashboard/internal/domain/models"
	"github.com/zanzhit/packing_dashboard/internal/lib/sl"
)

// Service runs one worker per active recording, consuming frames from a
// camera pipeline tap and appending them to an encoder. Jobs are owned here
// until finalize/cancel, after which only the persisted record and files
// remain.
type Service struct {
	log        *slog.Logger
	saver      RecordSaver
	pipelines  PipelineProvider
	encoders   EncoderFactory
	videosPath string
	fps        float64
	buffer     int

	mu   sync.Mutex
	jobs map[string]*job
}

type RecordSaver interface {
	Create(rec models.PackingRecord) error
	Finish(rec models.PackingRecord) error
	Fail(rec models.PackingRecord, reason string) error
	Cancel(recordID string, stopTime time.Time) error
	ListActive() ([]models.PackingRecord, error)
}

type PipelineProvider interface {
	Pipeline(cameraID string) (*camera.Pipeline, error)
}

type job struct {
	rec      models.PackingRecord
	pipeline *camera.Pipeline
	enc      Encoder
	tap      <-chan camera.Frame
	tempPath string
	frames   atomic.Int64
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func New(log *slog.Logger, saver RecordSaver, pipelines PipelineProvider, encoders EncoderFactory, videosPath string, fps float64, buffer int) *Service {
	if buffer <= 0 {
		buffer = 30
	}

	return &Service{
		log:        log,
		saver:      saver,
		pipelines:  pipelines,
		encoders:   encoders,
		videosPath: videosPath,
		fps:        fps,
		buffer:     buffer,
		jobs:       make(map[string]*job),
	}
}

// Arm opens an encoder sized to the camera's current frame and starts the
// consume loop. The returned record is already persisted as RECORDING.
// Encoder failures surface synchronously as ErrEncoderUnavailable so the
// caller never reports a recording that writes nothing.
func (s *Service) Arm(rec models.PackingRecord) (models.PackingRecord, error) {
	const op = "recorder.Arm"

	log := s.log.With(
		slog.String("op", op),
		slog.String("record_id", rec.RecordID),
		slog.String("camera_id", rec.CameraID),
	)

	pipeline, err := s.pipelines.Pipeline(rec.CameraID)
	if err != nil {
		return rec, fmt.Errorf("%s: %w", op, err)
	}

	frame, err := waitFirstFrame(pipeline, 2*time.Second)
	if err != nil {
		log.Error("no frame from camera", sl.Err(err))

		return rec, fmt.Errorf("%s: %w", op, errs.ErrCameraIsNotAvailable)
	}

	dir, err := recordingDir(s.videosPath, rec.StartTime, rec.Platform, rec.Employee)
	if err != nil {
		return rec, fmt.Errorf("%s: %w", op, err)
	}

	base := fmt.Sprintf("%s_%d", cleanPathPart(rec.TrackingNumber), rec.StartTime.Unix())
	tempPath := filepath.Join(dir, base+".avi")
	rec.FilePath = filepath.Join(dir, base+".mp4")

	bounds := frame.Image.Bounds()

	enc := s.encoders()
	if err := enc.Open(tempPath, bounds.Dx(), bounds.Dy(), s.fps); err != nil {
		log.Error("failed to open encoder", sl.Err(err))

		return rec, fmt.Errorf("%s: %w", op, errs.ErrEncoderUnavailable)
	}

	tap, err := pipeline.Attach(s.buffer)
	if err != nil {
		enc.Close()
		os.Remove(tempPath)

		return rec, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.saver.Create(rec); err != nil {
		pipeline.Detach()
		enc.Close()
		os.Remove(tempPath)

		log.Error("failed to create record", sl.Err(err))

		return rec, fmt.Errorf("%s: %w", op, errs.ErrWriteToDB)
	}

	j := &job{
		rec:      rec,
		pipeline: pipeline,
		enc:      enc,
		tap:      tap,
		tempPath: tempPath,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	s.mu.Lock()
	s.jobs[rec.RecordID] = j
	s.mu.Unlock()

	go s.consume(j)

	log.Info("recording armed", slog.String("file", rec.FilePath))

	return rec, nil
}

// consume appends tap frames to the encoder until stopped or the tap
// closes. Encoder write errors are logged and counted but never escape the
// loop; other cameras' recordings must not be affected.
func (s *Service) consume(j *job) {
	defer close(j.done)

	var writeFailures int64

	for {
		select {
		case <-j.stop:
			return
		case frame, ok := <-j.tap:
			if !ok {
				return
			}

			if err := j.enc.Write(frame.Image); err != nil {
				writeFailures++
				if writeFailures == 1 {
					s.log.Error("encoder write failed", sl.Err(err), slog.String("record_id", j.rec.RecordID))
				}
				continue
			}

			j.frames.Add(1)
		}
	}
}

// Finalize stops the consume loop, flushes the encoder and turns the job
// into an immutable historical record. A job that captured zero frames is
// marked FAILED and its partial file removed; it is never presented as a
// normal recording.
func (s *Service) Finalize(recordID string) (models.PackingRecord, error) {
	const op = "recorder.Finalize"

	log := s.log.With(
		slog.String("op", op),
		slog.String("record_id", recordID),
	)

	j, err := s.take(recordID)
	if err != nil {
		return models.PackingRecord{}, fmt.Errorf("%s: %w", op, err)
	}

	s.shutdown(j)

	stop := time.Now()
	rec := j.rec
	rec.StopTime = &stop
	rec.DurationSeconds = stop.Sub(rec.StartTime).Seconds()
	rec.FrameCount = j.frames.Load()

	if dropped := j.pipeline.DroppedFrames(); dropped > 0 {
		log.Warn("frames dropped during recording", slog.Int64("dropped", dropped))
	}

	if rec.FrameCount == 0 {
		os.Remove(j.tempPath)

		rec.Status = models.StatusFailed
		rec.FilePath = ""

		if err := s.saver.Fail(rec, "no frames captured"); err != nil {
			log.Error("failed to write fail data", sl.Err(err))
		}

		log.Warn("recording finalized with zero frames")

		return rec, nil
	}

	if err := convertToMP4(j.tempPath, rec.FilePath); err != nil {
		// keep the MJPG original rather than lose footage
		log.Warn("mp4 conversion failed, keeping avi", sl.Err(err))
		rec.FilePath = j.tempPath
	}

	if info, err := os.Stat(rec.FilePath); err == nil {
		rec.FileSizeKB = info.Size() / 1024
	}

	if hash, err := fileSHA256(rec.FilePath); err == nil {
		rec.SHA256 = hash
	} else {
		log.Warn("failed to hash video", sl.Err(err))
	}

	rec.Status = models.StatusCompleted

	if err := writeMetadata(rec); err != nil {
		log.Warn("failed to write sidecar metadata", sl.Err(err))
	}

	if err := s.saver.Finish(rec); err != nil {
		log.Error("failed to write stop data", sl.Err(err))

		return rec, errs.ErrWriteToDB
	}

	log.Info("recording finalized",
		slog.Int64("frames", rec.FrameCount),
		slog.Float64("duration_s", rec.DurationSeconds),
	)

	return rec, nil
}

// Cancel stops the job and discards its output; no historical record with
// a video remains.
func (s *Service) Cancel(recordID string) error {
	const op = "recorder.Cancel"

	j, err := s.take(recordID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.shutdown(j)

	os.Remove(j.tempPath)
	os.Remove(j.rec.FilePath)

	if err := s.saver.Cancel(recordID, time.Now()); err != nil {
		s.log.Error("failed to write cancel data", sl.Err(err), slog.String("record_id", recordID))

		return errs.ErrWriteToDB
	}

	s.log.Info("recording cancelled", slog.String("record_id", recordID))

	return nil
}

// Fail finalizes a job as FAILED after a hard camera error, keeping
// whatever footage was captured.
func (s *Service) Fail(recordID, reason string) (models.PackingRecord, error) {
	const op = "recorder.Fail"

	j, err := s.take(recordID)
	if err != nil {
		return models.PackingRecord{}, fmt.Errorf("%s: %w", op, err)
	}

	s.shutdown(j)

	stop := time.Now()
	rec := j.rec
	rec.StopTime = &stop
	rec.DurationSeconds = stop.Sub(rec.StartTime).Seconds()
	rec.FrameCount = j.frames.Load()
	rec.Status = models.StatusFailed

	if rec.FrameCount > 0 {
		// partial footage is kept and flagged, not discarded
		rec.FilePath = j.tempPath
		if info, statErr := os.Stat(j.tempPath); statErr == nil {
			rec.FileSizeKB = info.Size() / 1024
		}
	} else {
		os.Remove(j.tempPath)
		rec.FilePath = ""
	}

	if err := s.saver.Fail(rec, reason); err != nil {
		s.log.Error("failed to write fail data", sl.Err(err), slog.String("record_id", recordID))
	}

	s.log.Warn("recording failed",
		slog.String("record_id", recordID),
		slog.String("reason", reason),
		slog.Int64("frames", rec.FrameCount),
	)

	return rec, nil
}

// ActiveCount reports the number of in-flight recording workers.
func (s *Service) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.jobs)
}

func (s *Service) take(recordID string) (*job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[recordID]
	if !ok {
		return nil, errs.ErrRecordNotFound
	}
	delete(s.jobs, recordID)

	return j, nil
}

// shutdown stops the consume loop, releases the pipeline tap and flushes
// the encoder. Effective within one frame interval: the worker polls the
// stop channel on every frame.
func (s *Service) shutdown(j *job) {
	j.stopOnce.Do(func() { close(j.stop) })
	<-j.done

	j.pipeline.Detach()

	if err := j.enc.Close(); err != nil {
		s.log.Error("failed to close encoder", sl.Err(err), slog.String("record_id", j.rec.RecordID))
	}
}

func waitFirstFrame(p *camera.Pipeline, timeout time.Duration) (camera.Frame, error) {
	deadline := time.Now().Add(timeout)

	for {
		if frame, ok := p.Latest(); ok {
			return frame, nil
		}

		if time.Now().After(deadline) {
			return camera.Frame{}, fmt.Errorf("no frame within %s", timeout)
		}

		time.Sleep(50 * time.Millisecond)
	}
}

// avi path sibling of the configured mp4 target, used by the crash sweep.
func tempSibling(finalPath string) string {
	return strings.TrimSuffix(finalPath, filepath.Ext(finalPath)) + ".avi"
}
