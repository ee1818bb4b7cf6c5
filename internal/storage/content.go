package storage

import (
	"fmt"
)

// --- Glossary entries ---

func (s *Store) CreateGlossaryEntry(e *GlossaryEntry) error {
	ts := now()
	res, err := s.db.Exec(`INSERT INTO glossary_entries (module_id, user_id, concept, definition, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ModuleID, e.UserID, e.Concept, e.Definition, ts, ts)
	if err != nil {
		return fmt.Errorf("inserting glossary entry: %w", err)
	}
	if e.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	if err := parseTime(ts, &e.CreatedAt); err != nil {
		return err
	}
	e.UpdatedAt = e.CreatedAt
	return nil
}

func (s *Store) ListGlossaryEntries(moduleID int64) ([]GlossaryEntry, error) {
	rows, err := s.db.Query(`SELECT id, module_id, user_id, concept, definition, created_at, updated_at
		FROM glossary_entries WHERE module_id = ? ORDER BY id ASC`, moduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []GlossaryEntry
	for rows.Next() {
		var e GlossaryEntry
		var createdAt, updatedAt string
		if err := rows.Scan(&e.ID, &e.ModuleID, &e.UserID, &e.Concept, &e.Definition, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if err := parseTime(createdAt, &e.CreatedAt); err != nil {
			return nil, err
		}
		if err := parseTime(updatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- Book chapters ---

// NextChapterPage returns the page number after the book's last chapter.
func (s *Store) NextChapterPage(moduleID int64) (int, error) {
	var maxPage int
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(pagenum), 0) FROM book_chapters WHERE module_id = ?`, moduleID).Scan(&maxPage); err != nil {
		return 0, fmt.Errorf("reading last page of book %d: %w", moduleID, err)
	}
	return maxPage + 1, nil
}

func (s *Store) CreateBookChapter(c *BookChapter) error {
	ts := now()
	res, err := s.db.Exec(`INSERT INTO book_chapters (module_id, pagenum, title, content, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ModuleID, c.PageNum, c.Title, c.Content, ts, ts)
	if err != nil {
		return fmt.Errorf("inserting book chapter: %w", err)
	}
	if c.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	if err := parseTime(ts, &c.CreatedAt); err != nil {
		return err
	}
	c.UpdatedAt = c.CreatedAt
	return nil
}

func (s *Store) ListBookChapters(moduleID int64) ([]BookChapter, error) {
	rows, err := s.db.Query(`SELECT id, module_id, pagenum, title, content, created_at, updated_at
		FROM book_chapters WHERE module_id = ? ORDER BY pagenum ASC, id ASC`, moduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BookChapter
	for rows.Next() {
		var c BookChapter
		var createdAt, updatedAt string
		if err := rows.Scan(&c.ID, &c.ModuleID, &c.PageNum, &c.Title, &c.Content, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if err := parseTime(createdAt, &c.CreatedAt); err != nil {
			return nil, err
		}
		if err := parseTime(updatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- Quiz questions ---

func (s *Store) CreateQuizQuestion(q *QuizQuestion) error {
	if q.AnswersJSON == "" {
		q.AnswersJSON = "[]"
	}
	ts := now()
	res, err := s.db.Exec(`INSERT INTO quiz_questions (module_id, user_id, category, name, qtype, question_text, answers_json, gift, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ModuleID, q.UserID, q.Category, q.Name, q.QType, q.QuestionText, q.AnswersJSON, q.GIFT, ts)
	if err != nil {
		return fmt.Errorf("inserting quiz question: %w", err)
	}
	if q.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	return parseTime(ts, &q.CreatedAt)
}

func (s *Store) ListQuizQuestions(moduleID int64) ([]QuizQuestion, error) {
	rows, err := s.db.Query(`SELECT id, module_id, user_id, category, name, qtype, question_text, answers_json, gift, created_at
		FROM quiz_questions WHERE module_id = ? ORDER BY id ASC`, moduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []QuizQuestion
	for rows.Next() {
		var q QuizQuestion
		var createdAt string
		if err := rows.Scan(&q.ID, &q.ModuleID, &q.UserID, &q.Category, &q.Name, &q.QType,
			&q.QuestionText, &q.AnswersJSON, &q.GIFT, &createdAt); err != nil {
			return nil, err
		}
		if err := parseTime(createdAt, &q.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}
