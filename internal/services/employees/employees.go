package employees

import (
	"fmt"
	"log/slog"

	"github.com/zanzhit/packing_dashboard/internal/domain/models"
)

type EmployeeService struct {
	log     *slog.Logger
	storage EmployeeStorage
}

type EmployeeStorage interface {
	Create(emp models.Employee) (int, error)
	Update(emp models.Employee) error
	Delete(id int) error
	Employee(id int) (models.Employee, error)
	List(activeOnly bool) ([]models.Employee, error)
}

func New(log *slog.Logger, storage EmployeeStorage) *EmployeeService {
	return &EmployeeService{
		log:     log,
		storage: storage,
	}
}

func (s *EmployeeService) Create(emp models.Employee) (models.Employee, error) {
	const op = "services.employees.Create"

	emp.IsActive = true

	id, err := s.storage.Create(emp)
	if err != nil {
		return models.Employee{}, fmt.Errorf("%s: %w", op, err)
	}
	emp.ID = id

	s.log.Info("employee created", slog.String("op", op), slog.Int("id", id), slog.String("name", emp.Name))

	return emp, nil
}

func (s *EmployeeService) Update(emp models.Employee) error {
	const op = "services.employees.Update"

	if err := s.storage.Update(emp); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("employee updated", slog.String("op", op), slog.Int("id", emp.ID))

	return nil
}

func (s *EmployeeService) Delete(id int) error {
	const op = "services.employees.Delete"

	if err := s.storage.Delete(id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("employee deleted", slog.String("op", op), slog.Int("id", id))

	return nil
}

func (s *EmployeeService) Employee(id int) (models.Employee, error) {
	const op = "services.employees.Employee"

	emp, err := s.storage.Employee(id)
	if err != nil {
		return models.Employee{}, fmt.Errorf("%s: %w", op, err)
	}

	return emp, nil
}

func (s *EmployeeService) List(activeOnly bool) ([]models.Employee, error) {
	const op = "services.employees.List"

	emps, err := s.storage.List(activeOnly)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return emps, nil
}
