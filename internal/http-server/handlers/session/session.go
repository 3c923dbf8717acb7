package sessionhandler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/zanzhit/packing_dashboard/internal/domain/errs"
	"github.com/zanzhit/packing_dashboard/internal/domain/models"
	"github.com/zanzhit/packing_dashboard/internal/http-server/handlers"
	authmiddleware "github.com/zanzhit/packing_dashboard/internal/http-server/middleware/auth"
	"github.com/zanzhit/packing_dashboard/internal/lib/api/response"
	"github.com/zanzhit/packing_dashboard/internal/lib/sl"
	"github.com/zanzhit/packing_dashboard/internal/services/session"
)

type SessionHandler struct {
	log      *slog.Logger
	registry Registry
}

type Registry interface {
	CreateSession(createdBy string) (models.ShiftSession, error)
	EndSession() error
	Assign(cameraID, employee, platform string) (models.CameraSlot, error)
	Unassign(cameraID string) error
	Scan(cameraID, trackingNumber string) (session.ScanResult, error)
	EmergencyStopAll() (int, error)
	ResetSlot(cameraID string) (models.CameraSlot, error)
	Slots() []models.CameraSlot
	Session() (models.ShiftSession, bool)
}

func New(log *slog.Logger, registry Registry) *SessionHandler {
	return &SessionHandler{
		log:      log,
		registry: registry,
	}
}

type AssignRequest struct {
	CameraID string `json:"camera_id" validate:"required"`
	Employee string `json:"employee" validate:"required"`
	Platform string `json:"platform"`
}

type CameraRequest struct {
	CameraID string `json:"camera_id" validate:"required"`
}

type ScanRequest struct {
	CameraID       string `json:"camera_id" validate:"required"`
	TrackingNumber string `json:"tracking_number" validate:"required"`
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.session.Create"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	createdBy := ""
	if user, ok := r.Context().Value(authmiddleware.UserContextKey).(models.User); ok {
		createdBy = user.Email
	}

	sess, err := h.registry.CreateSession(createdBy)
	if err != nil {
		log.Error("failed to create session", sl.Err(err))

		h.reject(w, r, err)

		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, sess)
}

func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.session.End"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	if err := h.registry.EndSession(); err != nil {
		log.Error("failed to end session", sl.Err(err))

		h.reject(w, r, err)

		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h *SessionHandler) Assign(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.session.Assign"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req AssignRequest
	if !h.decode(w, r, log, &req) {
		return
	}

	slot, err := h.registry.Assign(req.CameraID, req.Employee, req.Platform)
	if err != nil {
		log.Error("failed to assign camera", sl.Err(err))

		h.reject(w, r, err)

		return
	}

	render.JSON(w, r, slot)
}

func (h *SessionHandler) Unassign(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.session.Unassign"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req CameraRequest
	if !h.decode(w, r, log, &req) {
		return
	}

	if err := h.registry.Unassign(req.CameraID); err != nil {
		log.Error("failed to unassign camera", sl.Err(err))

		h.reject(w, r, err)

		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h *SessionHandler) Scan(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.session.Scan"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req ScanRequest
	if !h.decode(w, r, log, &req) {
		return
	}

	result, err := h.registry.Scan(req.CameraID, req.TrackingNumber)
	if err != nil {
		log.Warn("scan rejected", sl.Err(err), slog.String("camera_id", req.CameraID))

		h.reject(w, r, err)

		return
	}

	render.JSON(w, r, result)
}

func (h *SessionHandler) EmergencyStop(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.session.EmergencyStop"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	cancelled, err := h.registry.EmergencyStopAll()
	if err != nil {
		log.Error("emergency stop failed", sl.Err(err))

		h.reject(w, r, err)

		return
	}

	log.Warn("emergency stop executed", slog.Int("cancelled", cancelled))

	render.JSON(w, r, map[string]int{"cancelled": cancelled})
}

func (h *SessionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.session.Reset"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req CameraRequest
	if !h.decode(w, r, log, &req) {
		return
	}

	slot, err := h.registry.ResetSlot(req.CameraID)
	if err != nil {
		log.Error("failed to reset slot", sl.Err(err))

		h.reject(w, r, err)

		return
	}

	render.JSON(w, r, slot)
}

func (h *SessionHandler) Slots(w http.ResponseWriter, r *http.Request) {
	type slotsResponse struct {
		Session *models.ShiftSession `json:"session,omitempty"`
		Slots   []models.CameraSlot  `json:"slots"`
	}

	resp := slotsResponse{Slots: h.registry.Slots()}
	if sess, ok := h.registry.Session(); ok {
		resp.Session = &sess
	}

	render.JSON(w, r, resp)
}

func (h *SessionHandler) decode(w http.ResponseWriter, r *http.Request, log *slog.Logger, req any) bool {
	err := render.DecodeJSON(r.Body, req)
	if err != nil {
		if errors.Is(err, io.EOF) {
			log.Error("request body is empty")

			handlers.Error(w, r, http.StatusBadRequest, response.Error("empty request", ""))

			return false
		}

		log.Error("failed to decode request body", sl.Err(err))

		handlers.Error(w, r, http.StatusBadRequest, response.Error("failed to decode request", middleware.GetReqID(r.Context())))

		return false
	}

	if err := validator.New().Struct(req); err != nil {
		validateErr := err.(validator.ValidationErrors)

		log.Error("invalid request", sl.Err(err))

		handlers.Error(w, r, http.StatusBadRequest, response.ValidationError(validateErr))

		return false
	}

	return true
}

func (h *SessionHandler) reject(w http.ResponseWriter, r *http.Request, err error) {
	reqID := middleware.GetReqID(r.Context())

	switch {
	case errors.Is(err, errs.ErrCameraNotFound),
		errors.Is(err, errs.ErrSlotNotAssigned),
		errors.Is(err, errs.ErrRecordNotFound):
		handlers.Error(w, r, http.StatusNotFound, response.Error(unwrapMsg(err), reqID))

	case errors.Is(err, errs.ErrSessionActive),
		errors.Is(err, errs.ErrNoActiveSession),
		errors.Is(err, errs.ErrSessionRecording),
		errors.Is(err, errs.ErrSlotAlreadyAssigned),
		errors.Is(err, errs.ErrSlotBusy),
		errors.Is(err, errs.ErrSlotRecording),
		errors.Is(err, errs.ErrRecordingStarting),
		errors.Is(err, errs.ErrRecordingAborted),
		errors.Is(err, errs.ErrDuplicateTrackingNumber),
		errors.Is(err, errs.ErrEmployeeAlreadyAssigned):
		handlers.Error(w, r, http.StatusConflict, response.Error(unwrapMsg(err), reqID))

	case errors.Is(err, errs.ErrCameraIsNotAvailable),
		errors.Is(err, errs.ErrEncoderUnavailable):
		handlers.Error(w, r, http.StatusServiceUnavailable, response.Error(unwrapMsg(err), reqID))

	default:
		handlers.Error(w, r, http.StatusInternalServerError, response.Error("internal error", reqID))
	}
}

func unwrapMsg(err error) string {
	for _, sentinel := range []error{
		errs.ErrCameraNotFound, errs.ErrSlotNotAssigned, errs.ErrRecordNotFound,
		errs.ErrSessionActive, errs.ErrNoActiveSession, errs.ErrSessionRecording,
		errs.ErrSlotAlreadyAssigned, errs.ErrSlotBusy, errs.ErrSlotRecording,
		errs.ErrRecordingStarting, errs.ErrRecordingAborted,
		errs.ErrDuplicateTrackingNumber, errs.ErrEmployeeAlreadyAssigned,
		errs.ErrCameraIsNotAvailable, errs.ErrEncoderUnavailable,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}

	return "internal error"
}
