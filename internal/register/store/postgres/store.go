// Package postgres implements the relational store variant over
// PostgreSQL. Students and attendance marks are two tables joined by
// foreign key; mark writes are row-level upserts.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"rollbook/internal/register/models"
	"rollbook/pkg/platform/sentinel"
)

// maxPageSize bounds listings; the contract never requires pagination past
// the first page.
const maxPageSize = 100

const (
	pqForeignKeyViolation = "23503"
	pqUniqueViolation     = "23505"
)

// Store persists the register in PostgreSQL.
type Store struct {
	db *sql.DB
}

// New constructs a PostgreSQL-backed store. Call Migrate once at startup
// before serving.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the backing tables if they do not exist. It is
// idempotent and safe to run on every start.
func (s *Store) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS registers (
			id         TEXT PRIMARY KEY,
			title      TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS students (
			id         TEXT PRIMARY KEY,
			serial     INTEGER,
			name       TEXT NOT NULL,
			phone      TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS attendance (
			id         TEXT PRIMARY KEY,
			student_id TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
			group_id   TEXT NOT NULL DEFAULT '',
			week       INTEGER NOT NULL,
			present    BOOLEAN NOT NULL DEFAULT FALSE,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
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
	query := `
		SELECT id, title, created_at
		FROM registers
		WHERE lower(title) = lower($1)
		ORDER BY created_at, id
	`
	rows, err := s.db.QueryContext(ctx, query, label)
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
	query := `INSERT INTO registers (id, title, created_at) VALUES ($1, $2, $3)`
	if _, err := s.db.ExecContext(ctx, query, ref.ID, ref.Title, ref.CreatedAt); err != nil {
		return models.SchemaRef{}, fmt.Errorf("create register: %w", mapError(err))
	}
	return ref, nil
}

func (s *Store) ListStudents(ctx context.Context, groupID string) ([]models.Student, error) {
	query := `
		SELECT id, serial, name, phone, created_at
		FROM students
		ORDER BY created_at, id
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, maxPageSize)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", mapError(err))
	}
	defer rows.Close()

	var students []models.Student
	var ids []string
	index := make(map[string]int)
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		index[st.ID] = len(students)
		students = append(students, st)
		ids = append(ids, st.ID)
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
		WHERE group_id = $1 AND student_id = ANY($2)
	`, groupID, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("list marks: %w", mapError(err))
	}
	defer marks.Close()

	for marks.Next() {
		var studentID string
		var week int
		var present bool
		if err := marks.Scan(&studentID, &week, &present); err != nil {
			return nil, fmt.Errorf("scan mark: %w", err)
		}
		// Out-of-range weeks in the table parse as absent rather than failing.
		if i, ok := index[studentID]; ok && week >= 1 && week <= models.TermWeeks {
			students[i].Weeks[week-1] = present
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
		VALUES ($1, $2, $3, $4, $5)
	`, st.ID, nullInt(st.Serial), st.Name, st.Phone, st.CreatedAt)
	if err != nil {
		return models.Student{}, fmt.Errorf("insert student: %w", mapError(err))
	}

	// All term marks exist from creation, present=false.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO attendance (id, student_id, group_id, week, present, updated_at)
		SELECT gen_random_uuid()::text, $1, $2, w, FALSE, $3
		FROM generate_series(1, $4) AS w
	`, st.ID, groupID, st.CreatedAt, models.TermWeeks)
	if err != nil {
		return models.Student{}, fmt.Errorf("insert marks: %w", mapError(err))
	}

	if err := tx.Commit(); err != nil {
		return models.Student{}, fmt.Errorf("commit add student: %w", mapError(err))
	}
	return st, nil
}

func (s *Store) WriteMark(ctx context.Context, groupID, studentID string, week int, present bool) (models.Student, error) {
	// Row-level upsert on the composite key: one cell, one statement, no
	// read-modify-write over the other weeks.
	query := `
		INSERT INTO attendance (id, student_id, group_id, week, present, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (student_id, group_id, week)
		DO UPDATE SET present = EXCLUDED.present, updated_at = now()
	`
	if _, err := s.db.ExecContext(ctx, query, uuid.NewString(), studentID, groupID, week, present); err != nil {
		return models.Student{}, fmt.Errorf("write mark: %w", mapError(err))
	}
	return s.getStudent(ctx, groupID, studentID)
}

func (s *Store) FindStudentBySerial(ctx context.Context, groupID string, serial int) (models.Student, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, serial, name, phone, created_at
		FROM students
		WHERE serial = $1
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
	res, err := s.db.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, studentID)
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
		WHERE id = $1
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
		WHERE student_id = $1 AND group_id = $2
	`, st.ID, groupID)
	if err != nil {
		return models.Student{}, fmt.Errorf("load marks: %w", mapError(err))
	}
	defer rows.Close()

	for rows.Next() {
		var week int
		var present bool
		if err := rows.Scan(&week, &present); err != nil {
			return models.Student{}, fmt.Errorf("scan mark: %w", err)
		}
		if week >= 1 && week <= models.TermWeeks {
			st.Weeks[week-1] = present
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

// mapError translates driver errors into sentinels: foreign key misses
// mean the referenced student is gone, unique violations mean a
// provisioning or upsert race, anything else is backend unavailability.
func mapError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqForeignKeyViolation:
			return fmt.Errorf("%s: %w", pqErr.Message, sentinel.ErrNotFound)
		case pqUniqueViolation:
			return fmt.Errorf("%s: %w", pqErr.Message, sentinel.ErrConflict)
		}
	}
	return fmt.Errorf("%v: %w", err, sentinel.ErrUnavailable)
}
