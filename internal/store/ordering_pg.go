package store

import (
	"context"
	"database/sql"
	"fmt"

	"investiflow/api/internal/ordering"
)

// txScope adapts one phase or task sibling set inside a transaction to
// ordering.Scope. The position columns carry deferred unique constraints, so
// the single-statement shifts cannot collide mid-flight.
type txScope struct {
	tx       *sql.Tx
	table    string
	parent   string
	parentID string
}

func phaseScope(tx *sql.Tx, projectID string) *txScope {
	return &txScope{tx: tx, table: "phases", parent: "project_id", parentID: projectID}
}

func taskScope(tx *sql.Tx, phaseID string) *txScope {
	return &txScope{tx: tx, table: "tasks", parent: "phase_id", parentID: phaseID}
}

func (s *txScope) List(ctx context.Context) ([]ordering.Item, error) {
	query := fmt.Sprintf(`SELECT id, position FROM %s WHERE %s = $1 ORDER BY position`, s.table, s.parent)
	rows, err := s.tx.QueryContext(ctx, query, s.parentID)
	if err != nil {
		return nil, fmt.Errorf("list %s positions: %w", s.table, err)
	}
	defer rows.Close()

	items := make([]ordering.Item, 0)
	for rows.Next() {
		var item ordering.Item
		if err := rows.Scan(&item.ID, &item.Position); err != nil {
			return nil, fmt.Errorf("scan %s position: %w", s.table, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s positions: %w", s.table, err)
	}
	return items, nil
}

func (s *txScope) MaxPosition(ctx context.Context) (int, error) {
	query := fmt.Sprintf(`SELECT COALESCE(MAX(position), -1) FROM %s WHERE %s = $1`, s.table, s.parent)
	var max int
	if err := s.tx.QueryRowContext(ctx, query, s.parentID).Scan(&max); err != nil {
		return 0, fmt.Errorf("max %s position: %w", s.table, err)
	}
	return max, nil
}

func (s *txScope) OccupiedBy(ctx context.Context, position int) (string, bool, error) {
	query := fmt.Sprintf(`SELECT id FROM %s WHERE %s = $1 AND position = $2`, s.table, s.parent)
	var id string
	err := s.tx.QueryRowContext(ctx, query, s.parentID, position).Scan(&id)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("check %s position: %w", s.table, err)
	}
	return id, true, nil
}

func (s *txScope) ShiftFrom(ctx context.Context, from, delta int) error {
	query := fmt.Sprintf(`UPDATE %s SET position = position + $3, updated_at = NOW() WHERE %s = $1 AND position >= $2`, s.table, s.parent)
	if _, err := s.tx.ExecContext(ctx, query, s.parentID, from, delta); err != nil {
		return fmt.Errorf("shift %s from %d: %w", s.table, from, err)
	}
	return nil
}

func (s *txScope) ShiftRange(ctx context.Context, lo, hi, delta int, excludeID string) error {
	query := fmt.Sprintf(`UPDATE %s SET position = position + $4, updated_at = NOW() WHERE %s = $1 AND position BETWEEN $2 AND $3 AND id <> $5`, s.table, s.parent)
	if _, err := s.tx.ExecContext(ctx, query, s.parentID, lo, hi, delta, excludeID); err != nil {
		return fmt.Errorf("shift %s range [%d,%d]: %w", s.table, lo, hi, err)
	}
	return nil
}

func (s *txScope) SetPosition(ctx context.Context, id string, position int) error {
	query := fmt.Sprintf(`UPDATE %s SET position = $2, updated_at = NOW() WHERE id = $1`, s.table)
	if _, err := s.tx.ExecContext(ctx, query, id, position); err != nil {
		return fmt.Errorf("set %s position: %w", s.table, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Phases

const phaseColumns = `id, project_id, name, position, color, created_at, updated_at`

func scanPhase(row interface{ Scan(...any) error }) (Phase, error) {
	var p Phase
	err := row.Scan(&p.ID, &p.ProjectID, &p.Name, &p.Position, &p.Color, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *PostgresStore) ListPhases(ctx context.Context, projectID string) ([]Phase, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+phaseColumns+`
		FROM phases
		WHERE project_id = $1
		ORDER BY position
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list phases: %w", err)
	}
	defer rows.Close()

	items := make([]Phase, 0)
	for rows.Next() {
		item, err := scanPhase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan phase: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate phases: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetPhase(ctx context.Context, phaseID string) (Phase, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+phaseColumns+` FROM phases WHERE id = $1`, phaseID)
	return scanPhase(row)
}

// InsertPhase places the phase at the requested position, shifting siblings
// to make room. A nil position appends.
func (s *PostgresStore) InsertPhase(ctx context.Context, phase Phase, position *int) (Phase, error) {
	var created Phase
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		scope := phaseScope(tx, phase.ProjectID)
		slot, err := s.order.PlaceNew(ctx, scope, position)
		if err != nil {
			return err
		}
		row := tx.QueryRowContext(ctx, `
			INSERT INTO phases (id, project_id, name, position, color)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING `+phaseColumns+`
		`, phase.ID, phase.ProjectID, phase.Name, slot, phase.Color)
		created, err = scanPhase(row)
		if err != nil {
			return fmt.Errorf("insert phase: %w", err)
		}
		return nil
	})
	if err != nil {
		return Phase{}, err
	}
	return created, nil
}

// UpdatePhase applies a patch. A position change repositions the phase within
// its project, shifting the siblings in between.
func (s *PostgresStore) UpdatePhase(ctx context.Context, phaseID string, update PhaseUpdate) (Phase, error) {
	var updated Phase
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := scanPhase(tx.QueryRowContext(ctx, `SELECT `+phaseColumns+` FROM phases WHERE id = $1 FOR UPDATE`, phaseID))
		if err != nil {
			return err
		}
		if update.Position != nil {
			scope := phaseScope(tx, current.ProjectID)
			if err := s.order.Reposition(ctx, scope, phaseID, current.Position, *update.Position); err != nil {
				return err
			}
		}
		row := tx.QueryRowContext(ctx, `
			UPDATE phases
			SET name  = COALESCE($2, name),
			    color = COALESCE($3, color),
			    updated_at = NOW()
			WHERE id = $1
			RETURNING `+phaseColumns+`
		`, phaseID, update.Name, update.Color)
		updated, err = scanPhase(row)
		if err != nil {
			return fmt.Errorf("update phase: %w", err)
		}
		return nil
	})
	if err != nil {
		return Phase{}, err
	}
	return updated, nil
}

// DeletePhase removes the phase and closes the position gap it leaves. Tasks
// and attachments under it go with it via FK cascade.
func (s *PostgresStore) DeletePhase(ctx context.Context, phaseID string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var projectID string
		var position int
		err := tx.QueryRowContext(ctx, `SELECT project_id, position FROM phases WHERE id = $1 FOR UPDATE`, phaseID).Scan(&projectID, &position)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM phases WHERE id = $1`, phaseID); err != nil {
			return fmt.Errorf("delete phase: %w", err)
		}
		return s.order.CloseGap(ctx, phaseScope(tx, projectID), position)
	})
}

func (s *PostgresStore) ReorderPhases(ctx context.Context, projectID string, orders []ordering.Item) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return s.order.Reorder(ctx, phaseScope(tx, projectID), orders)
	})
}

// ---------------------------------------------------------------------------
// Tasks

const taskColumns = `id, phase_id, title, description, position, status, completed, start_date, end_date, created_at, updated_at`

func scanTask(row interface{ Scan(...any) error }) (Task, error) {
	var t Task
	err := row.Scan(&t.ID, &t.PhaseID, &t.Title, &t.Description, &t.Position, &t.Status, &t.Completed, &t.StartDate, &t.EndDate, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (s *PostgresStore) ListTasks(ctx context.Context, phaseID string) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE phase_id = $1
		ORDER BY position
	`, phaseID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	items := make([]Task, 0)
	for rows.Next() {
		item, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return items, nil
}

// ListProjectTasks returns every task across a project's phases in phase
// order. Used for the project overview the AI assistant sees.
func (s *PostgresStore) ListProjectTasks(ctx context.Context, projectID string) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.phase_id, t.title, t.description, t.position, t.status, t.completed, t.start_date, t.end_date, t.created_at, t.updated_at
		FROM tasks t
		JOIN phases p ON p.id = t.phase_id
		WHERE p.project_id = $1
		ORDER BY p.position, t.position
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list project tasks: %w", err)
	}
	defer rows.Close()

	items := make([]Task, 0)
	for rows.Next() {
		item, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetTask(ctx context.Context, taskID string) (Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, taskID)
	return scanTask(row)
}

func (s *PostgresStore) InsertTask(ctx context.Context, task Task, position *int) (Task, error) {
	var created Task
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		scope := taskScope(tx, task.PhaseID)
		slot, err := s.order.PlaceNew(ctx, scope, position)
		if err != nil {
			return err
		}
		row := tx.QueryRowContext(ctx, `
			INSERT INTO tasks (id, phase_id, title, description, position, status, completed, start_date, end_date)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING `+taskColumns+`
		`, task.ID, task.PhaseID, task.Title, task.Description, slot, task.Status, task.Completed, task.StartDate, task.EndDate)
		created, err = scanTask(row)
		if err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		return nil
	})
	if err != nil {
		return Task{}, err
	}
	return created, nil
}

// UpdateTask applies a patch. A phase change moves the task across phases,
// closing the gap it leaves and opening a slot at the destination; a bare
// position change repositions it within its phase.
func (s *PostgresStore) UpdateTask(ctx context.Context, taskID string, update TaskUpdate) (Task, error) {
	var updated Task
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := scanTask(tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1 FOR UPDATE`, taskID))
		if err != nil {
			return err
		}

		phaseID := current.PhaseID
		position := current.Position
		switch {
		case update.PhaseID != nil && *update.PhaseID != current.PhaseID:
			source := taskScope(tx, current.PhaseID)
			destination := taskScope(tx, *update.PhaseID)
			slot, err := s.order.Move(ctx, source, destination, current.Position, update.Position)
			if err != nil {
				return err
			}
			phaseID = *update.PhaseID
			position = slot
		case update.Position != nil:
			scope := taskScope(tx, current.PhaseID)
			if err := s.order.Reposition(ctx, scope, taskID, current.Position, *update.Position); err != nil {
				return err
			}
			position = *update.Position
		}

		row := tx.QueryRowContext(ctx, `
			UPDATE tasks
			SET phase_id    = $2,
			    position    = $3,
			    title       = COALESCE($4, title),
			    description = COALESCE($5, description),
			    status      = COALESCE($6, status),
			    completed   = COALESCE($7, completed),
			    start_date  = COALESCE($8, start_date),
			    end_date    = COALESCE($9, end_date),
			    updated_at  = NOW()
			WHERE id = $1
			RETURNING `+taskColumns+`
		`, taskID, phaseID, position, update.Title, update.Description, update.Status, update.Completed, update.StartDate, update.EndDate)
		updated, err = scanTask(row)
		if err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		return nil
	})
	if err != nil {
		return Task{}, err
	}
	return updated, nil
}

// DeleteTask removes the task and closes the position gap it leaves.
func (s *PostgresStore) DeleteTask(ctx context.Context, taskID string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var phaseID string
		var position int
		err := tx.QueryRowContext(ctx, `SELECT phase_id, position FROM tasks WHERE id = $1 FOR UPDATE`, taskID).Scan(&phaseID, &position)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, taskID); err != nil {
			return fmt.Errorf("delete task: %w", err)
		}
		return s.order.CloseGap(ctx, taskScope(tx, phaseID), position)
	})
}

func (s *PostgresStore) ReorderTasks(ctx context.Context, phaseID string, orders []ordering.Item) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return s.order.Reorder(ctx, taskScope(tx, phaseID), orders)
	})
}
