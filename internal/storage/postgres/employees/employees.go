package employeestorage

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/zanzhit/packing_dashboard/internal/domain/errs"
	"github.com/zanzhit/packing_dashboard/internal/domain/models"
	"github.com/zanzhit/packing_dashboard/internal/storage/postgres"
)

type EmployeeStorage struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *EmployeeStorage {
	return &EmployeeStorage{
		db: db,
	}
}

func (s *EmployeeStorage) Create(emp models.Employee) (int, error) {
	const op = "storage.postgres.employees.Create"

	var id int
	query := fmt.Sprintf(`INSERT INTO %s (name, role, phone, email, is_active)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`, postgres.EmployeesTable)

	row := s.db.QueryRow(query, emp.Name, emp.Role, emp.Phone, emp.Email, emp.IsActive)
	if err := row.Scan(&id); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return 0, fmt.Errorf("%s: %w", op, errs.ErrEmployeeExists)
		}

		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

func (s *EmployeeStorage) Update(emp models.Employee) error {
	const op = "storage.postgres.employees.Update"

	query := fmt.Sprintf(`UPDATE %s SET name = $1, role = $2, phone = $3, email = $4, is_active = $5
		WHERE id = $6`, postgres.EmployeesTable)

	res, err := s.db.Exec(query, emp.Name, emp.Role, emp.Phone, emp.Email, emp.IsActive, emp.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("%s: %w", op, errs.ErrEmployeeExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, errs.ErrEmployeeNotFound)
	}

	return nil
}

func (s *EmployeeStorage) Delete(id int) error {
	const op = "storage.postgres.employees.Delete"

	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, postgres.EmployeesTable)

	res, err := s.db.Exec(query, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, errs.ErrEmployeeNotFound)
	}

	return nil
}

func (s *EmployeeStorage) Employee(id int) (models.Employee, error) {
	const op = "storage.postgres.employees.Employee"

	var emp models.Employee
	query := fmt.Sprintf(`SELECT * FROM %s WHERE id = $1`, postgres.EmployeesTable)

	if err := s.db.Get(&emp, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Employee{}, fmt.Errorf("%s: %w", op, errs.ErrEmployeeNotFound)
		}

		return models.Employee{}, fmt.Errorf("%s: %w", op, err)
	}

	return emp, nil
}

func (s *EmployeeStorage) List(activeOnly bool) ([]models.Employee, error) {
	const op = "storage.postgres.employees.List"

	query := fmt.Sprintf(`SELECT * FROM %s`, postgres.EmployeesTable)
	if activeOnly {
		query += " WHERE is_active"
	}
	query += " ORDER BY name"

	var emps []models.Employee
	if err := s.db.Select(&emps, query); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return emps, nil
}
