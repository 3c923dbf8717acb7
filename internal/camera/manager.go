package camera

import (
	"context"
	"log/slog"
	"sync"

	"github.com/zanzhit/packing_dashboard/internal/domain/errs"
	"github.com/zanzhit/packing_dashboard/internal/domain/models"
)

// Manager owns one pipeline per configured camera. Pipelines run on their
// own goroutines; a stalled camera never blocks another one or the HTTP
// layer.
type Manager struct {
	log     *slog.Logger
	factory SourceFactory
	cfg     Settings
	onState StateFunc

	mu        sync.RWMutex
	cameras   map[string]models.Camera
	pipelines map[string]*Pipeline
}

func NewManager(log *slog.Logger, factory SourceFactory, cfg Settings, onState StateFunc) *Manager {
	return &Manager{
		log:       log,
		factory:   factory,
		cfg:       cfg,
		onState:   onState,
		cameras:   make(map[string]models.Camera),
		pipelines: make(map[string]*Pipeline),
	}
}

// Add registers a camera and creates its pipeline without starting it.
func (m *Manager) Add(cam models.Camera) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.pipelines[cam.CameraID]; ok {
		return
	}

	cam.State = models.ConnDisconnected
	m.cameras[cam.CameraID] = cam
	m.pipelines[cam.CameraID] = NewPipeline(m.log, cam.CameraID, cam.URL, m.factory, m.cfg, m.onState)
}

// StartAll launches the pull loop of every enabled camera.
func (m *Manager) StartAll(ctx context.Context) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for id, p := range m.pipelines {
		if m.cameras[id].Enabled {
			p.Start(ctx)
		}
	}
}

// StopAll stops every pipeline and blocks until all pull loops exit.
func (m *Manager) StopAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.pipelines {
		p.Stop()
	}
}

// Start resumes a single camera, e.g. after it tripped the failure
// threshold and the operator fixed the network.
func (m *Manager) Start(ctx context.Context, cameraID string) error {
	m.mu.RLock()
	p, ok := m.pipelines[cameraID]
	m.mu.RUnlock()

	if !ok {
		return errs.ErrCameraNotFound
	}

	p.Start(ctx)

	return nil
}

// Pipeline returns the pipeline for a camera ID.
func (m *Manager) Pipeline(cameraID string) (*Pipeline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.pipelines[cameraID]
	if !ok {
		return nil, errs.ErrCameraNotFound
	}

	return p, nil
}

// Camera returns a single camera with its live pipeline state.
func (m *Manager) Camera(cameraID string) (models.Camera, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cam, ok := m.cameras[cameraID]
	if !ok {
		return models.Camera{}, errs.ErrCameraNotFound
	}

	p := m.pipelines[cameraID]
	cam.State, cam.Failures = p.State()

	return cam, nil
}

// Cameras returns a snapshot of all cameras with their live pipeline state.
func (m *Manager) Cameras() []models.Camera {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Camera, 0, len(m.cameras))
	for id, cam := range m.cameras {
		p := m.pipelines[id]
		cam.State, cam.Failures = p.State()
		if frame, ok := p.Latest(); ok {
			cam.LastFrameAt = frame.CapturedAt
		}
		out = append(out, cam)
	}

	return out
}
