package models

import "time"

// Employee is a packing staff member managed by admins.
type Employee struct {
	ID        int       `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Role      string    `json:"role,omitempty" db:"role"`
	Phone     string    `json:"phone,omitempty" db:"phone"`
	Email     string    `json:"email,omitempty" db:"email"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
