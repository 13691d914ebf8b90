package store

import (
	"context"
	"fmt"
)

func (s *PostgresStore) GetEventGroup(ctx context.Context, groupID string) (EventGroup, error) {
	var item EventGroup
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, description, created_at, updated_at
		FROM event_groups WHERE id=$1
	`, groupID).Scan(&item.ID, &item.UserID, &item.Name, &item.Description, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return EventGroup{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListEventGroups(ctx context.Context, userID string) ([]EventGroup, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, description, created_at, updated_at
		FROM event_groups
		WHERE user_id=$1
		ORDER BY name ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list event groups: %w", err)
	}
	defer rows.Close()

	items := make([]EventGroup, 0)
	for rows.Next() {
		var item EventGroup
		if err := rows.Scan(&item.ID, &item.UserID, &item.Name, &item.Description, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan event group: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event groups: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertEventGroup(ctx context.Context, item EventGroup) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO event_groups (id, user_id, name, description)
		VALUES ($1, $2, $3, $4)
	`, item.ID, item.UserID, item.Name, item.Description)
	if err != nil {
		return fmt.Errorf("insert event group: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateEventGroup(ctx context.Context, item EventGroup) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE event_groups SET name=$2, description=$3, updated_at=NOW() WHERE id=$1
	`, item.ID, item.Name, item.Description)
	if err != nil {
		return fmt.Errorf("update event group: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteEventGroup(ctx context.Context, groupID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM event_groups WHERE id=$1`, groupID)
	if err != nil {
		return fmt.Errorf("delete event group: %w", err)
	}
	return nil
}

func (s *PostgresStore) LinkEventToGroup(ctx context.Context, eventID, groupID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events_event_groups (event_id, group_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, eventID, groupID)
	if err != nil {
		return fmt.Errorf("link event to group: %w", err)
	}
	return nil
}

func (s *PostgresStore) UnlinkEventFromGroup(ctx context.Context, eventID, groupID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM events_event_groups WHERE event_id=$1 AND group_id=$2
	`, eventID, groupID)
	if err != nil {
		return fmt.Errorf("unlink event from group: %w", err)
	}
	return nil
}
