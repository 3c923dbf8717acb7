package cameraservice

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/zanzhit/packing_dashboard/internal/camera"
	"github.com/zanzhit/packing_dashboard/internal/domain/errs"
	"github.com/zanzhit/packing_dashboard/internal/domain/models"
	"github.com/zanzhit/packing_dashboard/internal/lib/sl"
)

// CameraService exposes the camera fleet to the API layer: live state,
// reachability probes and pipeline restarts after an operator fixed a
// camera.
type CameraService struct {
	log          *slog.Logger
	manager      PipelineManager
	probeTimeout time.Duration
}

type PipelineManager interface {
	Cameras() []models.Camera
	Camera(cameraID string) (models.Camera, error)
	Start(ctx context.Context, cameraID string) error
}

func New(log *slog.Logger, manager PipelineManager, probeTimeout time.Duration) *CameraService {
	if probeTimeout <= 0 {
		probeTimeout = 3 * time.Second
	}

	return &CameraService{
		log:          log,
		manager:      manager,
		probeTimeout: probeTimeout,
	}
}

func (s *CameraService) List() []models.Camera {
	return s.manager.Cameras()
}

func (s *CameraService) Camera(cameraID string) (models.Camera, error) {
	const op = "services.cameras.Camera"

	cam, err := s.manager.Camera(cameraID)
	if err != nil {
		return models.Camera{}, fmt.Errorf("%s: %w", op, err)
	}

	return cam, nil
}

// Probe checks reachability of a camera out of band, without touching its
// running pipeline.
func (s *CameraService) Probe(cameraID string) error {
	const op = "services.cameras.Probe"

	cam, err := s.manager.Camera(cameraID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	available, err := camera.Probe(cam.URL, s.probeTimeout)
	if err != nil {
		s.log.Error("camera probe failed", slog.String("op", op), slog.String("camera_id", cameraID), sl.Err(err))

		return fmt.Errorf("%s: %w", op, err)
	}

	if !available {
		return fmt.Errorf("%s: %w", op, errs.ErrCameraIsNotAvailable)
	}

	return nil
}

// Restart resumes a pipeline that tripped its failure threshold.
func (s *CameraService) Restart(ctx context.Context, cameraID string) error {
	const op = "services.cameras.Restart"

	if err := s.manager.Start(ctx, cameraID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("camera pipeline restarted", slog.String("op", op), slog.String("camera_id", cameraID))

	return nil
}
