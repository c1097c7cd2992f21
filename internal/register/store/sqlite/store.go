// Package sqlite implements the relational store variant over SQLite,
// the zero-infrastructure fallback for local and single-node deployments.
// Shapes and semantics match the PostgreSQL store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"rollbook/internal/register/models"
	"rollbook/pkg/platform/sentinel"
)

const maxPageSize = 100

// Store persists the register in a SQLite database file.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database file and returns a migrated store.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// The driver serializes writes; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing handle; callers own migration and lifecycle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close releases the underlying handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the backing tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS registers (
			id         TEXT PRIMARY KEY,
			title      TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS students (
			id         TEXT PRIMARY KEY,
			serial     INTEGER,
			name       TEXT NOT NULL,
			phone      TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS attendance (
			id         TEXT PRIMARY KEY,
			student_id TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
			group_id   TEXT NOT NULL DEFAULT '',
			week       INTEGER NOT NULL,
			present    INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (student_id, group_id, week)
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate register schema: %w", mapError(err))
		}
	}
	return nil
}

func (s *Store) FindSchemas(ctx context.Context, label string) ([]models.SchemaRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, created_at
		FROM registers
		WHERE lower(title) = lower(?)
		ORDER BY created_at, id
	`, label)
	if err != nil {
		return nil, fmt.Errorf("find registers: %w", mapError(err))
	}
	defer rows.Close()

	var refs []models.SchemaRef
	for rows.Next() {
		var ref models.SchemaRef
		if err := rows.Scan(&ref.ID, &ref.Title, &ref.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan register: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find registers: %w", mapError(err))
	}
	return refs, nil
}

func (s *Store) CreateSchema(ctx context.Context, label string) (models.SchemaRef, error) {
	ref := models.SchemaRef{
		ID:        uuid.NewString(),
		Title:     label,
		Created:   true,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO registers (id, title, created_at) VALUES (?, ?, ?)`,
		ref.ID, ref.Title, ref.CreatedAt)
	if err != nil {
		return models.SchemaRef{}, fmt.Errorf("create register: %w", mapError(err))
	}
	return ref, nil
}

func (s *Store) ListStudents(ctx context.Context, groupID string) ([]models.Student, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, serial, name, phone, created_at
		FROM students
		ORDER BY created_at, id
		LIMIT ?
	`, maxPageSize)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", mapError(err))
	}
	defer rows.Close()

	var students []models.Student
	index := make(map[string]int)
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		index[st.ID] = len(students)
		students = append(students, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list students: %w", mapError(err))
	}
	if len(students) == 0 {
		return []models.Student{}, nil
	}

	marks, err := s.db.QueryContext(ctx, `
		SELECT student_id, week, present
		FROM attendance
		WHERE group_id = ?
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list marks: %w", mapError(err))
	}
	defer marks.Close()

	for marks.Next() {
		var studentID string
		var week int
		var present int64
		if err := marks.Scan(&studentID, &week, &present); err != nil {
			return nil, fmt.Errorf("scan mark: %w", err)
		}
		if i, ok := index[studentID]; ok && week >= 1 && week <= models.TermWeeks {
			students[i].Weeks[week-1] = present != 0
		}
	}
	if err := marks.Err(); err != nil {
		return nil, fmt.Errorf("list marks: %w", mapError(err))
	}
	return students, nil
}

func (s *Store) AddStudent(ctx context.Context, groupID string, req models.AddStudentRequest) (models.Student, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Student{}, fmt.Errorf("begin add student: %w", mapError(err))
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	st := models.Student{
		ID:        uuid.NewString(),
		Serial:    req.Serial,
		Name:      req.Name,
		Phone:     req.Phone,
		CreatedAt: time.Now().UTC(),
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO students (id, serial, name, phone, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, st.ID, nullInt(st.Serial), st.Name, st.Phone, st.CreatedAt)
	if err != nil {
		return models.Student{}, fmt.Errorf("insert student: %w", mapError(err))
	}

	for week := 1; week <= models.TermWeeks; week++ {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO attendance (id, student_id, group_id, week, present, updated_at)
			VALUES (?, ?, ?, ?, 0, ?)
		`, uuid.NewString(), st.ID, groupID, week, st.CreatedAt)
		if err != nil {
			return models.Student{}, fmt.Errorf("insert marks: %w", mapError(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return models.Student{}, fmt.Errorf("commit add student: %w", mapError(err))
	}
	return st, nil
}

func (s *Store) WriteMark(ctx context.Context, groupID, studentID string, week int, present bool) (models.Student, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attendance (id, student_id, group_id, week, present, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (student_id, group_id, week)
		DO UPDATE SET present = excluded.present, updated_at = excluded.updated_at
	`, uuid.NewString(), studentID, groupID, week, boolInt(present), time.Now().UTC())
	if err != nil {
		return models.Student{}, fmt.Errorf("write mark: %w", mapError(err))
	}
	return s.getStudent(ctx, groupID, studentID)
}

func (s *Store) FindStudentBySerial(ctx context.Context, groupID string, serial int) (models.Student, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, serial, name, phone, created_at
		FROM students
		WHERE serial = ?
		ORDER BY created_at, id
		LIMIT 1
	`, serial)
	st, err := scanStudent(row)
	if err != nil {
		return models.Student{}, err
	}
	return s.attachMarks(ctx, groupID, st)
}

func (s *Store) DeleteStudent(ctx context.Context, _, studentID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM students WHERE id = ?`, studentID)
	if err != nil {
		return fmt.Errorf("delete student: %w", mapError(err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("student %s: %w", studentID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *Store) getStudent(ctx context.Context, groupID, studentID string) (models.Student, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, serial, name, phone, created_at
		FROM students
		WHERE id = ?
	`, studentID)
	st, err := scanStudent(row)
	if err != nil {
		return models.Student{}, err
	}
	return s.attachMarks(ctx, groupID, st)
}

func (s *Store) attachMarks(ctx context.Context, groupID string, st models.Student) (models.Student, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT week, present
		FROM attendance
		WHERE student_id = ? AND group_id = ?
	`, st.ID, groupID)
	if err != nil {
		return models.Student{}, fmt.Errorf("load marks: %w", mapError(err))
	}
	defer rows.Close()

	for rows.Next() {
		var week int
		var present int64
		if err := rows.Scan(&week, &present); err != nil {
			return models.Student{}, fmt.Errorf("scan mark: %w", err)
		}
		if week >= 1 && week <= models.TermWeeks {
			st.Weeks[week-1] = present != 0
		}
	}
	if err := rows.Err(); err != nil {
		return models.Student{}, fmt.Errorf("load marks: %w", mapError(err))
	}
	return st, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStudent(row rowScanner) (models.Student, error) {
	var st models.Student
	var serial sql.NullInt64
	var phone sql.NullString
	if err := row.Scan(&st.ID, &serial, &st.Name, &phone, &st.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Student{}, fmt.Errorf("student: %w", sentinel.ErrNotFound)
		}
		return models.Student{}, fmt.Errorf("scan student: %w", mapError(err))
	}
	if serial.Valid {
		v := int(serial.Int64)
		st.Serial = &v
	}
	st.Phone = phone.String
	return st, nil
}

func nullInt(value *int) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*value), Valid: true}
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func mapError(err error) error {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		switch serr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return fmt.Errorf("%v: %w", err, sentinel.ErrNotFound)
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%v: %w", err, sentinel.ErrConflict)
		}
	}
	return fmt.Errorf("%v: %w", err, sentinel.ErrUnavailable)
}
