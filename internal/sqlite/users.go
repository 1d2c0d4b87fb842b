package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/khlayyel/alertsystem/pkg/models"
)

const selectUserBase = `SELECT id, full_name, email, phone, department_id, role, is_active, created_at
FROM users`

// CreateUser inserts a new user.
func (db *DB) CreateUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return fmt.Errorf("user payload is required")
	}
	var deptID any
	if user.DepartmentID != nil {
		deptID = int64(*user.DepartmentID)
	}
	row := db.db.QueryRowContext(ctx,
		`INSERT INTO users (full_name, email, phone, department_id, role, is_active)
VALUES (?, ?, ?, ?, ?, ?)
RETURNING id, created_at`,
		user.FullName, user.Email, user.Phone, deptID, string(user.Role), boolToInt(user.IsActive),
	)
	var id int64
	if err := row.Scan(&id, &user.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	user.ID = models.UserID(id)
	return nil
}

// GetUser retrieves a user by id.
func (db *DB) GetUser(ctx context.Context, userID models.UserID) (*models.User, error) {
	row := db.db.QueryRowContext(ctx, selectUserBase+" WHERE id = ?", int64(userID))
	return scanUser(row)
}

// ListActiveUsersByIDs fetches the active users among the given ids. Unknown
// ids are simply absent from the result.
func (db *DB) ListActiveUsersByIDs(ctx context.Context, ids []models.UserID) ([]*models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = int64(id)
	}
	query := selectUserBase + " WHERE is_active = 1 AND id IN (" + strings.Join(placeholders, ", ") + ")"
	return db.queryUsers(ctx, query, args...)
}

// ListActiveUsersByDepartment fetches active users belonging to a department.
func (db *DB) ListActiveUsersByDepartment(ctx context.Context, deptID models.DepartmentID) ([]*models.User, error) {
	return db.queryUsers(ctx, selectUserBase+" WHERE is_active = 1 AND department_id = ?", int64(deptID))
}

// ListActiveUsers fetches every active user.
func (db *DB) ListActiveUsers(ctx context.Context) ([]*models.User, error) {
	return db.queryUsers(ctx, selectUserBase+" WHERE is_active = 1")
}

// CreateDepartment inserts a department.
func (db *DB) CreateDepartment(ctx context.Context, dept *models.Department) error {
	if dept == nil {
		return fmt.Errorf("department payload is required")
	}
	var id int64
	err := db.db.QueryRowContext(ctx,
		`INSERT INTO departments (name) VALUES (?) RETURNING id`, dept.Name,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("failed to insert department: %w", err)
	}
	dept.ID = models.DepartmentID(id)
	return nil
}

func (db *DB) queryUsers(ctx context.Context, query string, args ...any) ([]*models.User, error) {
	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		user     models.User
		role     string
		isActive int
		deptID   sql.NullInt64
	)
	err := row.Scan(&user.ID, &user.FullName, &user.Email, &user.Phone, &deptID, &role, &isActive, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	user.Role = models.UserRole(role)
	user.IsActive = isActive != 0
	if deptID.Valid {
		d := models.DepartmentID(deptID.Int64)
		user.DepartmentID = &d
	}
	return &user, nil
}
