package storage

import (
	"database/sql"
	"errors"
	"fmt"
)

// CreateModule inserts m and sets m.ID.
func (s *Store) CreateModule(m *Module) error {
	if m.Type == "" || m.Name == "" {
		return fmt.Errorf("module type and name are required")
	}
	ts := now()
	res, err := s.db.Exec(`INSERT INTO modules (type, name, created_at) VALUES (?, ?, ?)`, m.Type, m.Name, ts)
	if err != nil {
		return fmt.Errorf("inserting module: %w", err)
	}
	if m.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	return parseTime(ts, &m.CreatedAt)
}

func (s *Store) GetModule(id int64) (Module, error) {
	var m Module
	var createdAt string
	err := s.db.QueryRow(`SELECT id, type, name, created_at FROM modules WHERE id = ?`, id).
		Scan(&m.ID, &m.Type, &m.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Module{}, ErrNotFound
	}
	if err != nil {
		return Module{}, err
	}
	if err := parseTime(createdAt, &m.CreatedAt); err != nil {
		return Module{}, err
	}
	return m, nil
}

func (s *Store) ListModules() ([]Module, error) {
	rows, err := s.db.Query(`SELECT id, type, name, created_at FROM modules ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Module
	for rows.Next() {
		var m Module
		var createdAt string
		if err := rows.Scan(&m.ID, &m.Type, &m.Name, &createdAt); err != nil {
			return nil, err
		}
		if err := parseTime(createdAt, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
