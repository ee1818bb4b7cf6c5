package storage

import (
	"database/sql"
	"errors"
	"fmt"
)

const actionColumns = `id, user_id, context_id, action_name, action_data, status, status_text, progress, created_at, updated_at`

// CreateAction inserts a pending action and sets a.ID. The insert only
// happens when no pending or running action exists for the same
// (context, user) pair; the check and the insert are one statement, so two
// concurrent callers cannot both succeed. When the scope is busy it returns
// an *ActiveActionError.
func (s *Store) CreateAction(a *Action) error {
	if a.DataJSON == "" {
		a.DataJSON = "{}"
	}
	ts := now()
	res, err := s.db.Exec(`
		INSERT INTO actions (user_id, context_id, action_name, action_data, status, status_text, progress, created_at, updated_at)
		SELECT ?, ?, ?, ?, ?, '', 0, ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM actions WHERE context_id = ? AND user_id = ? AND status IN (?, ?)
		)`,
		a.UserID, a.ContextID, a.Name, a.DataJSON, StatusPending, ts, ts,
		a.ContextID, a.UserID, StatusPending, StatusRunning,
	)
	if err != nil {
		return fmt.Errorf("inserting action: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// The blocking action may finish between the insert and this read.
		existing, err := s.ActiveAction(a.ContextID, a.UserID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("loading active action: %w", err)
		}
		return &ActiveActionError{ExistingID: existing.ID}
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading action id: %w", err)
	}
	a.ID = id
	a.Status = StatusPending
	a.StatusText = ""
	a.Progress = 0
	if err := parseTime(ts, &a.CreatedAt); err != nil {
		return err
	}
	a.UpdatedAt = a.CreatedAt
	return nil
}

func (s *Store) GetAction(id int64) (Action, error) {
	row := s.db.QueryRow(`SELECT `+actionColumns+` FROM actions WHERE id = ?`, id)
	a, err := scanAction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Action{}, ErrNotFound
	}
	return a, err
}

// ActiveAction returns the most recently created pending or running action
// for the scope, or ErrNotFound.
func (s *Store) ActiveAction(contextID, userID int64) (Action, error) {
	row := s.db.QueryRow(`SELECT `+actionColumns+` FROM actions
		WHERE context_id = ? AND user_id = ? AND status IN (?, ?)
		ORDER BY id DESC LIMIT 1`,
		contextID, userID, StatusPending, StatusRunning)
	a, err := scanAction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Action{}, ErrNotFound
	}
	return a, err
}

// ListActions returns the most recent actions for a context, newest first.
// A userID of 0 matches every user.
func (s *Store) ListActions(contextID, userID int64, limit int) ([]Action, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`SELECT `+actionColumns+` FROM actions
		WHERE context_id = ? AND (? = 0 OR user_id = ?)
		ORDER BY id DESC LIMIT ?`,
		contextID, userID, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SetActionStatus writes status and status text. A non-nil progress is
// written too.
func (s *Store) SetActionStatus(id int64, status Status, statusText string, progress *int) error {
	if !status.Valid() {
		return fmt.Errorf("invalid status %q", status)
	}
	res, err := s.db.Exec(`UPDATE actions
		SET status = ?, status_text = ?, progress = COALESCE(?, progress), updated_at = ?
		WHERE id = ?`,
		status, statusText, progress, now(), id)
	if err != nil {
		return fmt.Errorf("updating action %d status: %w", id, err)
	}
	return expectRow(res)
}

// StartAction moves a pending action to running with progress 0. It reports
// false, without writing, when the action is no longer pending.
func (s *Store) StartAction(id int64, statusText string) (bool, error) {
	res, err := s.db.Exec(`UPDATE actions SET status = ?, status_text = ?, progress = 0, updated_at = ?
		WHERE id = ? AND status = ?`,
		StatusRunning, statusText, now(), id, StatusPending)
	if err != nil {
		return false, fmt.Errorf("starting action %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	if _, err := s.GetAction(id); err != nil {
		return false, err
	}
	return false, nil
}

// UpdateActionProgress writes whichever of progress and statusText is non-nil.
func (s *Store) UpdateActionProgress(id int64, progress *int, statusText *string) error {
	res, err := s.db.Exec(`UPDATE actions
		SET progress = COALESCE(?, progress), status_text = COALESCE(?, status_text), updated_at = ?
		WHERE id = ?`,
		progress, statusText, now(), id)
	if err != nil {
		return fmt.Errorf("updating action %d progress: %w", id, err)
	}
	return expectRow(res)
}

// CancelAction moves a pending or running action to cancelled. It reports
// false when the action exists but was not active.
func (s *Store) CancelAction(id int64, statusText string) (bool, error) {
	res, err := s.db.Exec(`UPDATE actions SET status = ?, status_text = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		StatusCancelled, statusText, now(), id, StatusPending, StatusRunning)
	if err != nil {
		return false, fmt.Errorf("cancelling action %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	if _, err := s.GetAction(id); err != nil {
		return false, err
	}
	return false, nil
}

func scanAction(row scanner) (Action, error) {
	var a Action
	var status, createdAt, updatedAt string
	if err := row.Scan(&a.ID, &a.UserID, &a.ContextID, &a.Name, &a.DataJSON, &status,
		&a.StatusText, &a.Progress, &createdAt, &updatedAt); err != nil {
		return Action{}, err
	}
	a.Status = Status(status)
	if err := parseTime(createdAt, &a.CreatedAt); err != nil {
		return Action{}, err
	}
	if err := parseTime(updatedAt, &a.UpdatedAt); err != nil {
		return Action{}, err
	}
	return a, nil
}
