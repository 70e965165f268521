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

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across projects and bibliography_entries
// using plainto_tsquery and ts_rank, with ts_headline for snippets.
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

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text, q.OwnerID}
	argN := 3

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultProject {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'project'::text AS type, pr.id, pr.name AS title,
				ts_headline('english', coalesce(pr.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				pr.id AS project_id,
				ts_rank(pr.fts, %s) AS rank
			FROM projects pr
			WHERE pr.fts @@ %s AND pr.owner_id = $2`, tsQuery, tsQuery, tsQuery))
	}

	if q.FilterType == "" || q.FilterType == ResultReference {
		refWhere := fmt.Sprintf("b.fts @@ %s AND pr.owner_id = $2", tsQuery)
		if q.ProjectID != "" {
			refWhere += fmt.Sprintf(" AND b.project_id = $%d", argN)
			args = append(args, q.ProjectID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'reference'::text AS type, b.id, b.title,
				ts_headline('english', coalesce(b.author, '') || ' ' || coalesce(b.source, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				b.project_id,
				ts_rank(b.fts, %s) AS rank
			FROM bibliography_entries b
			JOIN projects pr ON pr.id = b.project_id
			WHERE %s`, tsQuery, tsQuery, refWhere))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, project_id
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
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.ProjectID); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]ProjectRecord, []ReferenceRecord, error) {
	projectRows, err := p.db.QueryContext(ctx, `
		SELECT id, owner_id, name, coalesce(description, ''), coalesce(institution, ''), coalesce(category, ''), status
		FROM projects
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load projects: %w", err)
	}
	defer projectRows.Close()

	projects := make([]ProjectRecord, 0)
	for projectRows.Next() {
		var r ProjectRecord
		if err := projectRows.Scan(&r.ID, &r.OwnerID, &r.Name, &r.Description, &r.Institution, &r.Category, &r.Status); err != nil {
			return nil, nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, r)
	}
	if err := projectRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate projects: %w", err)
	}

	referenceRows, err := p.db.QueryContext(ctx, `
		SELECT b.id, b.project_id, pr.owner_id, b.author, b.title, coalesce(b.source, ''), coalesce(b.doi, '')
		FROM bibliography_entries b
		JOIN projects pr ON pr.id = b.project_id
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load references: %w", err)
	}
	defer referenceRows.Close()

	references := make([]ReferenceRecord, 0)
	for referenceRows.Next() {
		var r ReferenceRecord
		if err := referenceRows.Scan(&r.ID, &r.ProjectID, &r.OwnerID, &r.Author, &r.Title, &r.Source, &r.DOI); err != nil {
			return nil, nil, fmt.Errorf("scan reference: %w", err)
		}
		references = append(references, r)
	}
	if err := referenceRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate references: %w", err)
	}

	return projects, references, nil
}
