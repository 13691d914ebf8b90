package store

import (
	"context"
	"fmt"
	"time"
)

const periodColumns = `
	p.id, p.name, p.description, p.start_at, p.end_at,
	p.event_range_start, p.event_range_end, p.is_open, p.created_at, p.updated_at,
	(SELECT COALESCE(jsonb_agg(pd.department_id ORDER BY pd.department_id), '[]'::jsonb)
		FROM registration_periods_departments pd WHERE pd.period_id = p.id) AS department_ids`

func scanPeriod(row rowScanner) (RegistrationPeriod, error) {
	var item RegistrationPeriod
	var departmentIDs []byte
	err := row.Scan(
		&item.ID,
		&item.Name,
		&item.Description,
		&item.Start,
		&item.End,
		&item.EventRangeStart,
		&item.EventRangeEnd,
		&item.IsOpen,
		&item.CreatedAt,
		&item.UpdatedAt,
		&departmentIDs,
	)
	if err != nil {
		return RegistrationPeriod{}, err
	}
	item.DepartmentIDs = decodeStrings(departmentIDs)
	return item, nil
}

func (s *PostgresStore) GetRegistrationPeriod(ctx context.Context, periodID string) (RegistrationPeriod, error) {
	return scanPeriod(s.db.QueryRowContext(ctx, `
		SELECT `+periodColumns+` FROM registration_periods p WHERE p.id=$1
	`, periodID))
}

func (s *PostgresStore) ListRegistrationPeriods(ctx context.Context) ([]RegistrationPeriod, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+periodColumns+` FROM registration_periods p ORDER BY p.start_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list registration periods: %w", err)
	}
	defer rows.Close()

	items := make([]RegistrationPeriod, 0)
	for rows.Next() {
		item, err := scanPeriod(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration period: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate registration periods: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertRegistrationPeriod(ctx context.Context, item RegistrationPeriod) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert period: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO registration_periods (id, name, description, start_at, end_at, event_range_start, event_range_end, is_open)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, item.ID, item.Name, item.Description, item.Start, item.End, item.EventRangeStart, item.EventRangeEnd, item.IsOpen); err != nil {
		return fmt.Errorf("insert registration period: %w", err)
	}
	for _, departmentID := range item.DepartmentIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO registration_periods_departments (period_id, department_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, item.ID, departmentID); err != nil {
			return fmt.Errorf("link period department %s: %w", departmentID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert period: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateRegistrationPeriod(ctx context.Context, item RegistrationPeriod) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update period: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		UPDATE registration_periods SET
			name=$2, description=$3, start_at=$4, end_at=$5,
			event_range_start=$6, event_range_end=$7, is_open=$8, updated_at=NOW()
		WHERE id=$1
	`, item.ID, item.Name, item.Description, item.Start, item.End, item.EventRangeStart, item.EventRangeEnd, item.IsOpen); err != nil {
		return fmt.Errorf("update registration period: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM registration_periods_departments WHERE period_id=$1`, item.ID); err != nil {
		return fmt.Errorf("clear period departments: %w", err)
	}
	for _, departmentID := range item.DepartmentIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO registration_periods_departments (period_id, department_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, item.ID, departmentID); err != nil {
			return fmt.Errorf("link period department %s: %w", departmentID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update period: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteRegistrationPeriod(ctx context.Context, periodID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM registration_periods WHERE id=$1`, periodID)
	if err != nil {
		return fmt.Errorf("delete registration period: %w", err)
	}
	return nil
}

// HasOpenRegistrationPeriod reports whether any open period accepts a
// submission at `now` for an event starting at `eventStart` that affects one
// of the given organizational units.
func (s *PostgresStore) HasOpenRegistrationPeriod(ctx context.Context, departmentIDs []string, now, eventStart time.Time) (bool, error) {
	var open bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1
			FROM registration_periods p
			WHERE (p.is_open OR ($2 >= p.start_at AND $2 <= p.end_at))
				AND $3 >= p.event_range_start AND $3 <= p.event_range_end
				AND EXISTS(
					SELECT 1 FROM registration_periods_departments pd
					WHERE pd.period_id = p.id
						AND pd.department_id IN (SELECT jsonb_array_elements_text($1::jsonb))
				)
		)
	`, encodeStrings(departmentIDs), now, eventStart).Scan(&open)
	if err != nil {
		return false, fmt.Errorf("check open registration period: %w", err)
	}
	return open, nil
}
