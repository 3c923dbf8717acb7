package camerahandler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/zanzhit/packing_dashboard/internal/domain/errs"
	"github.com/zanzhit/packing_dashboard/internal/domain/models"
	"github.com/zanzhit/packing_dashboard/internal/http-server/handlers"
	"github.com/zanzhit/packing_dashboard/internal/lib/api/response"
	"github.com/zanzhit/packing_dashboard/internal/lib/sl"
)

type CameraHandler struct {
	log     *slog.Logger
	cameras CameraService
}

type CameraService interface {
	List() []models.Camera
	Camera(cameraID string) (models.Camera, error)
	Probe(cameraID string) error
	Restart(ctx context.Context, cameraID string) error
}

func New(log *slog.Logger, cameras CameraService) *CameraHandler {
	return &CameraHandler{
		log:     log,
		cameras: cameras,
	}
}

func (h *CameraHandler) List(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.cameras.List())
}

func (h *CameraHandler) Camera(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.cameras.Camera"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	cam, err := h.cameras.Camera(chi.URLParam(r, "cameraID"))
	if err != nil {
		log.Error("failed to get camera", sl.Err(err))

		h.reject(w, r, err)

		return
	}

	render.JSON(w, r, cam)
}

// Probe checks camera reachability out of band and reports the result.
func (h *CameraHandler) Probe(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.cameras.Probe"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	cameraID := chi.URLParam(r, "cameraID")

	if err := h.cameras.Probe(cameraID); err != nil {
		log.Warn("camera probe failed", sl.Err(err), slog.String("camera_id", cameraID))

		h.reject(w, r, err)

		return
	}

	render.JSON(w, r, map[string]bool{"available": true})
}

// Restart resumes a camera pipeline that tripped its failure threshold.
func (h *CameraHandler) Restart(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.cameras.Restart"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	cameraID := chi.URLParam(r, "cameraID")

	if err := h.cameras.Restart(r.Context(), cameraID); err != nil {
		log.Error("failed to restart camera", sl.Err(err), slog.String("camera_id", cameraID))

		h.reject(w, r, err)

		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h *CameraHandler) reject(w http.ResponseWriter, r *http.Request, err error) {
	reqID := middleware.GetReqID(r.Context())

	switch {
	case errors.Is(err, errs.ErrCameraNotFound):
		handlers.Error(w, r, http.StatusNotFound, response.Error(errs.ErrCameraNotFound.Error(), reqID))
	case errors.Is(err, errs.ErrCameraIsNotAvailable):
		handlers.Error(w, r, http.StatusServiceUnavailable, response.Error(errs.ErrCameraIsNotAvailable.Error(), reqID))
	default:
		handlers.Error(w, r, http.StatusInternalServerError, response.Error("internal error", reqID))
	}
}
