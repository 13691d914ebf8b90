package store

import (
	"context"
	"database/sql"
	"fmt"
)

const eventColumns = `
	e.id, e.author_id, e.state, e.description, e.description_long, e.location,
	e.start_at, e.end_at, e.audience, e.teaching_affected,
	e.classes, e.class_groups, e.meta,
	e.parent_id, e.cloned_from_id, e.cloned, e.job_id,
	e.created_at, e.updated_at, e.deleted_at,
	(SELECT COALESCE(jsonb_agg(ed.department_id ORDER BY ed.department_id), '[]'::jsonb)
		FROM events_departments ed WHERE ed.event_id = e.id) AS department_ids,
	(SELECT COALESCE(jsonb_agg(eg.group_id ORDER BY eg.group_id), '[]'::jsonb)
		FROM events_event_groups eg WHERE eg.event_id = e.id) AS group_ids`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (Event, error) {
	var item Event
	var classes, classGroups, departmentIDs, groupIDs []byte
	err := row.Scan(
		&item.ID,
		&item.AuthorID,
		&item.State,
		&item.Description,
		&item.DescriptionLong,
		&item.Location,
		&item.Start,
		&item.End,
		&item.Audience,
		&item.TeachingAffected,
		&classes,
		&classGroups,
		&item.Meta,
		&item.ParentID,
		&item.ClonedFromID,
		&item.Cloned,
		&item.JobID,
		&item.CreatedAt,
		&item.UpdatedAt,
		&item.DeletedAt,
		&departmentIDs,
		&groupIDs,
	)
	if err != nil {
		return Event{}, err
	}
	item.Classes = decodeStrings(classes)
	item.ClassGroups = decodeStrings(classGroups)
	item.DepartmentIDs = decodeStrings(departmentIDs)
	item.GroupIDs = decodeStrings(groupIDs)
	return item, nil
}

func getEvent(ctx context.Context, q dbtx, eventID string, forUpdate bool) (Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events e WHERE e.id=$1`
	if forUpdate {
		query += ` FOR UPDATE OF e`
	}
	return scanEvent(q.QueryRowContext(ctx, query, eventID))
}

func (s *PostgresStore) GetEvent(ctx context.Context, eventID string) (Event, error) {
	return getEvent(ctx, s.db, eventID, false)
}

type EventFilter struct {
	AuthorID string
	States   []EventState
	JobID    string
	GroupID  string
}

func (s *PostgresStore) ListEvents(ctx context.Context, filter EventFilter) ([]Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events e WHERE e.deleted_at IS NULL`
	args := []any{}
	if filter.AuthorID != "" {
		args = append(args, filter.AuthorID)
		query += fmt.Sprintf(` AND e.author_id=$%d`, len(args))
	}
	if len(filter.States) > 0 {
		states := make([]string, 0, len(filter.States))
		for _, state := range filter.States {
			states = append(states, string(state))
		}
		args = append(args, encodeStrings(states))
		query += fmt.Sprintf(` AND e.state IN (SELECT jsonb_array_elements_text($%d::jsonb))`, len(args))
	}
	if filter.JobID != "" {
		args = append(args, filter.JobID)
		query += fmt.Sprintf(` AND e.job_id=$%d`, len(args))
	}
	if filter.GroupID != "" {
		args = append(args, filter.GroupID)
		query += fmt.Sprintf(` AND EXISTS(SELECT 1 FROM events_event_groups eg WHERE eg.event_id=e.id AND eg.group_id=$%d)`, len(args))
	}
	query += ` ORDER BY e.start_at ASC, e.id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	items := make([]Event, 0)
	for rows.Next() {
		item, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertEvent(ctx context.Context, item Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert event: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	meta := item.Meta
	if len(meta) == 0 {
		meta = []byte(`{}`)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO events (
			id, author_id, state, description, description_long, location,
			start_at, end_at, audience, teaching_affected,
			classes, class_groups, meta,
			parent_id, cloned_from_id, cloned, job_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb, $12::jsonb, $13::jsonb, $14, $15, $16, $17)
	`,
		item.ID, item.AuthorID, item.State, item.Description, item.DescriptionLong, item.Location,
		item.Start, item.End, item.Audience, item.TeachingAffected,
		encodeStrings(item.Classes), encodeStrings(item.ClassGroups), string(meta),
		item.ParentID, item.ClonedFromID, item.Cloned, item.JobID,
	); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	if err := replaceDepartmentLinks(ctx, tx, item.ID, item.DepartmentIDs); err != nil {
		return err
	}
	if err := replaceGroupLinks(ctx, tx, item.ID, item.GroupIDs); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert event: %w", err)
	}
	return nil
}

// UpdateDraft rewrites a draft's content and audience. State handling stays
// with the callers; this never touches state, parent or provenance.
func (s *PostgresStore) UpdateDraft(ctx context.Context, item Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update draft: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	meta := item.Meta
	if len(meta) == 0 {
		meta = []byte(`{}`)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE events SET
			description=$2, description_long=$3, location=$4,
			start_at=$5, end_at=$6, audience=$7, teaching_affected=$8,
			classes=$9::jsonb, class_groups=$10::jsonb, meta=$11::jsonb,
			updated_at=NOW()
		WHERE id=$1
	`,
		item.ID, item.Description, item.DescriptionLong, item.Location,
		item.Start, item.End, item.Audience, item.TeachingAffected,
		encodeStrings(item.Classes), encodeStrings(item.ClassGroups), string(meta),
	); err != nil {
		return fmt.Errorf("update draft: %w", err)
	}
	if err := replaceDepartmentLinks(ctx, tx, item.ID, item.DepartmentIDs); err != nil {
		return err
	}
	if err := replaceGroupLinks(ctx, tx, item.ID, item.GroupIDs); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update draft: %w", err)
	}
	return nil
}

// SaveReview persists the draft-to-review transition: the re-pointed parent,
// the normalized audience and the REVIEW state in one transaction.
func (s *PostgresStore) SaveReview(ctx context.Context, item Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save review: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		UPDATE events SET
			state=$2, parent_id=$3,
			classes=$4::jsonb, class_groups=$5::jsonb,
			updated_at=NOW()
		WHERE id=$1
	`, item.ID, item.State, item.ParentID, encodeStrings(item.Classes), encodeStrings(item.ClassGroups)); err != nil {
		return fmt.Errorf("save review: %w", err)
	}
	if err := replaceDepartmentLinks(ctx, tx, item.ID, item.DepartmentIDs); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save review: %w", err)
	}
	return nil
}

// UpdateAudience persists a normalized audience selection without touching
// anything else on the row.
func (s *PostgresStore) UpdateAudience(ctx context.Context, item Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update audience: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		UPDATE events SET classes=$2::jsonb, class_groups=$3::jsonb, updated_at=NOW()
		WHERE id=$1
	`, item.ID, encodeStrings(item.Classes), encodeStrings(item.ClassGroups)); err != nil {
		return fmt.Errorf("update audience: %w", err)
	}
	if err := replaceDepartmentLinks(ctx, tx, item.ID, item.DepartmentIDs); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update audience: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateEventState(ctx context.Context, eventID string, state EventState) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE events SET state=$2, updated_at=NOW() WHERE id=$1
	`, eventID, state)
	if err != nil {
		return fmt.Errorf("update event state: %w", err)
	}
	return nil
}

// RootAncestor walks parent_id upwards and returns the lineage root.
func (s *PostgresStore) RootAncestor(ctx context.Context, eventID string) (string, error) {
	var rootID string
	err := s.db.QueryRowContext(ctx, `
		WITH RECURSIVE ancestors AS (
			SELECT id, parent_id FROM events WHERE id = $1
			UNION ALL
			SELECT e.id, e.parent_id FROM events e JOIN ancestors a ON e.id = a.parent_id
		)
		SELECT id FROM ancestors WHERE parent_id IS NULL
	`, eventID).Scan(&rootID)
	if err != nil {
		return "", fmt.Errorf("resolve root ancestor: %w", err)
	}
	return rootID, nil
}

// Descendants returns every event in the subtree below rootID, the root
// excluded, optionally filtered by state.
func (s *PostgresStore) Descendants(ctx context.Context, rootID string, states ...EventState) ([]Event, error) {
	return descendants(ctx, s.db, rootID, states...)
}

func descendants(ctx context.Context, q dbtx, rootID string, states ...EventState) ([]Event, error) {
	query := `
		WITH RECURSIVE lineage AS (
			SELECT id FROM events WHERE id = $1
			UNION ALL
			SELECT e.id FROM events e JOIN lineage l ON e.parent_id = l.id
		)
		SELECT ` + eventColumns + `
		FROM events e
		WHERE e.id IN (SELECT id FROM lineage) AND e.id <> $1`
	args := []any{rootID}
	if len(states) > 0 {
		stateNames := make([]string, 0, len(states))
		for _, state := range states {
			stateNames = append(stateNames, string(state))
		}
		args = append(args, encodeStrings(stateNames))
		query += fmt.Sprintf(` AND e.state IN (SELECT jsonb_array_elements_text($%d::jsonb))`, len(args))
	}
	query += ` ORDER BY e.created_at ASC, e.id ASC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list descendants: %w", err)
	}
	defer rows.Close()

	items := make([]Event, 0)
	for rows.Next() {
		item, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan descendant: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate descendants: %w", err)
	}
	return items, nil
}

// PromoteEvent runs the version swap as one serializable transaction: the
// review candidate's content moves onto the published row (the stable id),
// the previous published content is relegated to the candidate's row, review
// siblings of the lineage flip to REFUSED and provenance pointers that
// referenced the candidate are re-pointed at the anchor. The two row
// rewrites are applied from snapshots taken at the start of the transaction,
// never from re-reads.
func (s *PostgresStore) PromoteEvent(ctx context.Context, publishedID, candidateID string) (PromotionResult, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return PromotionResult{}, fmt.Errorf("begin promote: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	published, err := getEvent(ctx, tx, publishedID, true)
	if err != nil {
		return PromotionResult{}, swapFailure(fmt.Errorf("load published row: %w", err))
	}
	candidate, err := getEvent(ctx, tx, candidateID, true)
	if err != nil {
		return PromotionResult{}, swapFailure(fmt.Errorf("load candidate row: %w", err))
	}

	mergedGroups := unionStrings(published.GroupIDs, candidate.GroupIDs)

	// Previous published content now lives under the candidate's id and
	// stays attached to the anchor as a historical child.
	snapshot := published
	snapshot.ID = candidateID
	snapshot.ParentID = &published.ID
	if err := writeEventSnapshot(ctx, tx, snapshot); err != nil {
		return PromotionResult{}, swapFailure(fmt.Errorf("relegate previous version: %w", err))
	}
	if err := replaceDepartmentLinks(ctx, tx, candidateID, published.DepartmentIDs); err != nil {
		return PromotionResult{}, swapFailure(err)
	}
	if err := replaceGroupLinks(ctx, tx, candidateID, published.GroupIDs); err != nil {
		return PromotionResult{}, swapFailure(err)
	}

	// Candidate content takes over the stable anchor id. Provenance keeps
	// pointing at the original origin unless it referenced the row being
	// replaced, which now means the anchor itself.
	anchor := candidate
	anchor.ID = publishedID
	anchor.State = EventStatePublished
	anchor.ParentID = nil
	anchor.CreatedAt = published.CreatedAt
	anchor.DeletedAt = nil
	if candidate.ClonedFromID != nil && *candidate.ClonedFromID == publishedID {
		anchorID := publishedID
		anchor.ClonedFromID = &anchorID
	}
	if err := writeEventSnapshot(ctx, tx, anchor); err != nil {
		return PromotionResult{}, swapFailure(fmt.Errorf("promote candidate: %w", err))
	}
	if err := replaceDepartmentLinks(ctx, tx, publishedID, candidate.DepartmentIDs); err != nil {
		return PromotionResult{}, swapFailure(err)
	}
	if err := replaceGroupLinks(ctx, tx, publishedID, mergedGroups); err != nil {
		return PromotionResult{}, swapFailure(err)
	}

	refusedRows, err := tx.QueryContext(ctx, `
		WITH RECURSIVE lineage AS (
			SELECT id FROM events WHERE id = $1
			UNION ALL
			SELECT e.id FROM events e JOIN lineage l ON e.parent_id = l.id
		)
		UPDATE events SET state='REFUSED', updated_at=NOW()
		WHERE id IN (SELECT id FROM lineage)
			AND id <> $1 AND id <> $2
			AND state = 'REVIEW'
		RETURNING id
	`, publishedID, candidateID)
	if err != nil {
		return PromotionResult{}, swapFailure(fmt.Errorf("refuse review siblings: %w", err))
	}
	refusedIDs := make([]string, 0)
	for refusedRows.Next() {
		var id string
		if err := refusedRows.Scan(&id); err != nil {
			refusedRows.Close()
			return PromotionResult{}, swapFailure(fmt.Errorf("scan refused sibling: %w", err))
		}
		refusedIDs = append(refusedIDs, id)
	}
	if err := refusedRows.Err(); err != nil {
		refusedRows.Close()
		return PromotionResult{}, swapFailure(fmt.Errorf("iterate refused siblings: %w", err))
	}
	refusedRows.Close()

	if _, err := tx.ExecContext(ctx, `
		UPDATE events SET cloned_from_id=$1 WHERE cloned_from_id=$2
	`, publishedID, candidateID); err != nil {
		return PromotionResult{}, swapFailure(fmt.Errorf("repoint provenance: %w", err))
	}

	result := PromotionResult{}
	result.Event, err = getEvent(ctx, tx, publishedID, false)
	if err != nil {
		return PromotionResult{}, swapFailure(fmt.Errorf("reload anchor: %w", err))
	}
	previous, err := getEvent(ctx, tx, candidateID, false)
	if err != nil {
		return PromotionResult{}, swapFailure(fmt.Errorf("reload previous version: %w", err))
	}
	result.PreviousVersion = &previous
	for _, id := range refusedIDs {
		sibling, err := getEvent(ctx, tx, id, false)
		if err != nil {
			return PromotionResult{}, swapFailure(fmt.Errorf("reload refused sibling: %w", err))
		}
		result.RefusedSiblings = append(result.RefusedSiblings, sibling)
	}

	if err := tx.Commit(); err != nil {
		return PromotionResult{}, swapFailure(fmt.Errorf("commit promote: %w", err))
	}
	return result, nil
}

// swapFailure maps serialization and deadlock failures to ErrConflict.
// Under serializable isolation Postgres raises SQLSTATE 40001 at the
// statement that loses the race, not only at commit, so every exit of the
// swap transaction goes through this.
func swapFailure(err error) error {
	if IsSerializationFailure(err) {
		return ErrConflict
	}
	return err
}

func writeEventSnapshot(ctx context.Context, q dbtx, item Event) error {
	meta := item.Meta
	if len(meta) == 0 {
		meta = []byte(`{}`)
	}
	_, err := q.ExecContext(ctx, `
		UPDATE events SET
			author_id=$2, state=$3, description=$4, description_long=$5, location=$6,
			start_at=$7, end_at=$8, audience=$9, teaching_affected=$10,
			classes=$11::jsonb, class_groups=$12::jsonb, meta=$13::jsonb,
			parent_id=$14, cloned_from_id=$15, cloned=$16, job_id=$17,
			created_at=$18, updated_at=NOW(), deleted_at=$19
		WHERE id=$1
	`,
		item.ID, item.AuthorID, item.State, item.Description, item.DescriptionLong, item.Location,
		item.Start, item.End, item.Audience, item.TeachingAffected,
		encodeStrings(item.Classes), encodeStrings(item.ClassGroups), string(meta),
		item.ParentID, item.ClonedFromID, item.Cloned, item.JobID,
		item.CreatedAt, item.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("write event snapshot: %w", err)
	}
	return nil
}

func (s *PostgresStore) HardDeleteEvent(ctx context.Context, eventID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id=$1`, eventID)
	if err != nil {
		return fmt.Errorf("hard delete event: %w", err)
	}
	return nil
}

func (s *PostgresStore) SoftDeleteEvent(ctx context.Context, eventID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE events SET deleted_at=NOW(), updated_at=NOW() WHERE id=$1 AND deleted_at IS NULL
	`, eventID)
	if err != nil {
		return fmt.Errorf("soft delete event: %w", err)
	}
	return nil
}

func replaceDepartmentLinks(ctx context.Context, q dbtx, eventID string, departmentIDs []string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM events_departments WHERE event_id=$1`, eventID); err != nil {
		return fmt.Errorf("clear department links: %w", err)
	}
	for _, departmentID := range departmentIDs {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO events_departments (event_id, department_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, eventID, departmentID); err != nil {
			return fmt.Errorf("link department %s: %w", departmentID, err)
		}
	}
	return nil
}

func replaceGroupLinks(ctx context.Context, q dbtx, eventID string, groupIDs []string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM events_event_groups WHERE event_id=$1`, eventID); err != nil {
		return fmt.Errorf("clear group links: %w", err)
	}
	for _, groupID := range groupIDs {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO events_event_groups (event_id, group_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, eventID, groupID); err != nil {
			return fmt.Errorf("link group %s: %w", groupID, err)
		}
	}
	return nil
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	merged := make([]string, 0, len(a)+len(b))
	for _, values := range [][]string{a, b} {
		for _, value := range values {
			if _, dup := seen[value]; dup {
				continue
			}
			seen[value] = struct{}{}
			merged = append(merged, value)
		}
	}
	return merged
}
