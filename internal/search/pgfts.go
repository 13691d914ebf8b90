package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true — if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// eventFTS must match the expression the GIN index is built over.
const eventFTS = "to_tsvector('simple', e.description || ' ' || e.description_long || ' ' || e.location)"

// Search executes a UNION ALL query across events and event_groups using
// plainto_tsquery and ts_rank, with ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('simple', $1)"
	args := []any{q.Text}
	argN := 2

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultEvent {
		eventWhere := eventFTS + " @@ " + tsQuery + " AND e.deleted_at IS NULL"
		if state := q.stateConstraint(); state != "" {
			eventWhere += fmt.Sprintf(" AND e.state = $%d", argN)
			args = append(args, state)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'event'::text AS type, e.id, e.description AS title,
				ts_headline('simple', coalesce(e.description_long, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				e.location, e.state,
				ts_rank(%s, %s) AS rank
			FROM events e
			WHERE %s`, tsQuery, eventFTS, tsQuery, eventWhere))
	}

	if q.FilterType == "" || q.FilterType == ResultGroup {
		groupWhere := fmt.Sprintf("to_tsvector('simple', g.name || ' ' || g.description) @@ %s", tsQuery)
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'group'::text AS type, g.id, g.name AS title,
				ts_headline('simple', coalesce(g.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				''::text AS location, ''::text AS state,
				ts_rank(to_tsvector('simple', g.name || ' ' || g.description), %s) AS rank
			FROM event_groups g
			WHERE %s`, tsQuery, tsQuery, groupWhere))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, location, state
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.Location, &r.State); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]EventRecord, []GroupRecord, error) {
	eventRows, err := p.db.QueryContext(ctx, `
		SELECT id, description, description_long, location, state, author_id
		FROM events
		WHERE deleted_at IS NULL
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load events: %w", err)
	}
	defer eventRows.Close()

	events := make([]EventRecord, 0)
	for eventRows.Next() {
		var rec EventRecord
		if err := eventRows.Scan(&rec.ID, &rec.Description, &rec.DescriptionLong, &rec.Location, &rec.State, &rec.AuthorID); err != nil {
			return nil, nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, rec)
	}
	if err := eventRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate events: %w", err)
	}

	groupRows, err := p.db.QueryContext(ctx, `
		SELECT id, name, description
		FROM event_groups
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load event groups: %w", err)
	}
	defer groupRows.Close()

	groups := make([]GroupRecord, 0)
	for groupRows.Next() {
		var rec GroupRecord
		if err := groupRows.Scan(&rec.ID, &rec.Name, &rec.Description); err != nil {
			return nil, nil, fmt.Errorf("scan event group: %w", err)
		}
		groups = append(groups, rec)
	}
	if err := groupRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate event groups: %w", err)
	}

	return events, groups, nil
}
