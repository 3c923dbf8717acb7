package postgres

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/zanzhit/packing_dashboard/internal/config"
)

const (
	UsersTable     = "users"
	AdminsTable    = "admins"
	RecordsTable   = "packing_records"
	EmployeesTable = "employees"
)

func New(cfg config.DB) (*sqlx.DB, error) {
	const op = "storage.postgres.New"

	db, err := sqlx.Open("postgres", fmt.Sprintf("host=%s port=%s user=%s dbname=%s password=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.Username, cfg.DBName, cfg.Password, cfg.SSLMode),
	)

	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	err = db.Ping()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return db, nil
}
