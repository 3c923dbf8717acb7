package employeehandler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/zanzhit/packing_dashboard/internal/domain/errs"
	"github.com/zanzhit/packing_dashboard/internal/domain/models"
	"github.com/zanzhit/packing_dashboard/internal/http-server/handlers"
	"github.com/zanzhit/packing_dashboard/internal/lib/api/response"
	"github.com/zanzhit/packing_dashboard/internal/lib/sl"
)

type EmployeeHandler struct {
	log       *slog.Logger
	employees EmployeeService
}

type EmployeeService interface {
	Create(emp models.Employee) (models.Employee, error)
	Update(emp models.Employee) error
	Delete(id int) error
	Employee(id int) (models.Employee, error)
	List(activeOnly bool) ([]models.Employee, error)
}

func New(log *slog.Logger, employees EmployeeService) *EmployeeHandler {
	return &EmployeeHandler{
		log:       log,
		employees: employees,
	}
}

type Request struct {
	Name     string `json:"name" validate:"required"`
	Role     string `json:"role"`
	Phone    string `json:"phone"`
	Email    string `json:"email" validate:"omitempty,email"`
	IsActive *bool  `json:"is_active"`
}

func (h *EmployeeHandler) Create(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.employees.Create"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	req, ok := h.decode(w, r, log)
	if !ok {
		return
	}

	emp, err := h.employees.Create(models.Employee{
		Name:  req.Name,
		Role:  req.Role,
		Phone: req.Phone,
		Email: req.Email,
	})
	if err != nil {
		if errors.Is(err, errs.ErrEmployeeExists) {
			handlers.Error(w, r, http.StatusConflict, response.Error(errs.ErrEmployeeExists.Error(), middleware.GetReqID(r.Context())))

			return
		}

		log.Error("failed to create employee", sl.Err(err))

		handlers.Error(w, r, http.StatusInternalServerError, response.Error("failed to create employee", middleware.GetReqID(r.Context())))

		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, emp)
}

func (h *EmployeeHandler) Update(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.employees.Update"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	id, err := strconv.Atoi(chi.URLParam(r, "employeeID"))
	if err != nil {
		handlers.Error(w, r, http.StatusBadRequest, response.Error("invalid employee id", ""))

		return
	}

	req, ok := h.decode(w, r, log)
	if !ok {
		return
	}

	emp := models.Employee{
		ID:       id,
		Name:     req.Name,
		Role:     req.Role,
		Phone:    req.Phone,
		Email:    req.Email,
		IsActive: true,
	}
	if req.IsActive != nil {
		emp.IsActive = *req.IsActive
	}

	if err := h.employees.Update(emp); err != nil {
		if errors.Is(err, errs.ErrEmployeeNotFound) {
			handlers.Error(w, r, http.StatusNotFound, response.Error(errs.ErrEmployeeNotFound.Error(), middleware.GetReqID(r.Context())))

			return
		}
		if errors.Is(err, errs.ErrEmployeeExists) {
			handlers.Error(w, r, http.StatusConflict, response.Error(errs.ErrEmployeeExists.Error(), middleware.GetReqID(r.Context())))

			return
		}

		log.Error("failed to update employee", sl.Err(err))

		handlers.Error(w, r, http.StatusInternalServerError, response.Error("failed to update employee", middleware.GetReqID(r.Context())))

		return
	}

	render.JSON(w, r, emp)
}

func (h *EmployeeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.employees.Delete"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	id, err := strconv.Atoi(chi.URLParam(r, "employeeID"))
	if err != nil {
		handlers.Error(w, r, http.StatusBadRequest, response.Error("invalid employee id", ""))

		return
	}

	if err := h.employees.Delete(id); err != nil {
		if errors.Is(err, errs.ErrEmployeeNotFound) {
			handlers.Error(w, r, http.StatusNotFound, response.Error(errs.ErrEmployeeNotFound.Error(), middleware.GetReqID(r.Context())))

			return
		}

		log.Error("failed to delete employee", sl.Err(err))

		handlers.Error(w, r, http.StatusInternalServerError, response.Error("failed to delete employee", middleware.GetReqID(r.Context())))

		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h *EmployeeHandler) List(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.employees.List"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	activeOnly := r.URL.Query().Get("active") == "true"

	emps, err := h.employees.List(activeOnly)
	if err != nil {
		log.Error("failed to list employees", sl.Err(err))

		handlers.Error(w, r, http.StatusInternalServerError, response.Error("failed to list employees", middleware.GetReqID(r.Context())))

		return
	}

	if emps == nil {
		emps = []models.Employee{}
	}

	render.JSON(w, r, emps)
}

func (h *EmployeeHandler) decode(w http.ResponseWriter, r *http.Request, log *slog.Logger) (Request, bool) {
	var req Request

	err := render.DecodeJSON(r.Body, &req)
	if err != nil {
		if errors.Is(err, io.EOF) {
			log.Error("request body is empty")

			handlers.Error(w, r, http.StatusBadRequest, response.Error("empty request", ""))

			return req, false
		}

		log.Error("failed to decode request body", sl.Err(err))

		handlers.Error(w, r, http.StatusBadRequest, response.Error("failed to decode request", middleware.GetReqID(r.Context())))

		return req, false
	}

	if err := validator.New().Struct(req); err != nil {
		validateErr := err.(validator.ValidationErrors)

		log.Error("invalid request", sl.Err(err))

		handlers.Error(w, r, http.StatusBadRequest, response.ValidationError(validateErr))

		return req, false
	}

	return req, true
}
