package repository

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/stanstork/claimflow/internal/models"
)

type EmployeeRepository interface {
	GetByID(ctx context.Context, id string) (models.Employee, error)
	ListByIDs(ctx context.Context, ids []string) ([]models.Employee, error)
}

type employeeRepository struct {
	db *sql.DB
}

func NewEmployeeRepository(db *sql.DB) EmployeeRepository {
	return &employeeRepository{db: db}
}

const employeeColumns = `
	id, full_name, email, is_active, is_supervisor, service_type, status,
	current_workload, total_interventions, created_at`

func (r *employeeRepository) GetByID(ctx context.Context, id string) (models.Employee, error) {
	row := r.db.QueryRowContext(ctx, `SELECT`+employeeColumns+` FROM employees WHERE id = $1`, id)
	emp, err := scanEmployee(row)
	if err != nil {
		return models.Employee{}, notFound(err)
	}
	return emp, nil
}

func (r *employeeRepository) ListByIDs(ctx context.Context, ids []string) ([]models.Employee, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT`+employeeColumns+` FROM employees WHERE id = ANY($1) ORDER BY full_name`, pq.Array(ids))
	if err != nil {
		return nil, errors.Wrap(err, "list employees")
	}
	defer rows.Close()

	var employees []models.Employee
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		employees = append(employees, emp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return employees, nil
}

func scanEmployee(s scanner) (models.Employee, error) {
	var e models.Employee
	err := s.Scan(
		&e.ID,
		&e.FullName,
		&e.Email,
		&e.IsActive,
		&e.IsSupervisor,
		&e.ServiceType,
		&e.Status,
		&e.CurrentWorkload,
		&e.TotalInterventions,
		&e.CreatedAt,
	)
	return e, err
}
