package store

import (
	"context"
	"fmt"
)

const departmentColumns = `
	id, name, letter, display_letter, class_letters, color,
	department1_id, department2_id, created_at, updated_at`

func scanDepartment(row rowScanner) (Department, error) {
	var item Department
	var classLetters []byte
	err := row.Scan(
		&item.ID,
		&item.Name,
		&item.Letter,
		&item.DisplayLetter,
		&classLetters,
		&item.Color,
		&item.Department1ID,
		&item.Department2ID,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return Department{}, err
	}
	item.ClassLetters = decodeStrings(classLetters)
	return item, nil
}

func (s *PostgresStore) GetDepartment(ctx context.Context, departmentID string) (Department, error) {
	return scanDepartment(s.db.QueryRowContext(ctx, `
		SELECT `+departmentColumns+` FROM departments WHERE id=$1
	`, departmentID))
}

func (s *PostgresStore) ListDepartments(ctx context.Context) ([]Department, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+departmentColumns+` FROM departments ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	defer rows.Close()

	items := make([]Department, 0)
	for rows.Next() {
		item, err := scanDepartment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan department: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate departments: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertDepartment(ctx context.Context, item Department) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO departments (id, name, letter, display_letter, class_letters, color, department1_id, department2_id)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8)
	`, item.ID, item.Name, item.Letter, item.DisplayLetter, encodeStrings(item.ClassLetters), item.Color, item.Department1ID, item.Department2ID)
	if err != nil {
		return fmt.Errorf("insert department: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateDepartment(ctx context.Context, item Department) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE departments SET
			name=$2, letter=$3, display_letter=$4, class_letters=$5::jsonb, color=$6,
			department1_id=$7, department2_id=$8, updated_at=NOW()
		WHERE id=$1
	`, item.ID, item.Name, item.Letter, item.DisplayLetter, encodeStrings(item.ClassLetters), item.Color, item.Department1ID, item.Department2ID)
	if err != nil {
		return fmt.Errorf("update department: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteDepartment(ctx context.Context, departmentID string) error {
	var linkedEvents int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM events_departments WHERE department_id=$1
	`, departmentID).Scan(&linkedEvents); err != nil {
		return fmt.Errorf("count department events: %w", err)
	}
	if linkedEvents > 0 {
		return fmt.Errorf("department has %d linked events", linkedEvents)
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM departments WHERE id=$1`, departmentID)
	if err != nil {
		return fmt.Errorf("delete department: %w", err)
	}
	return nil
}
