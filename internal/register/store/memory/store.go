// Package memory provides an in-memory Store for unit tests and dev mode.
// It mirrors backend semantics closely enough to exercise the reconciler:
// registers may hold duplicate titles, serials are not unique, and writes
// touch exactly one cell.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"rollbook/internal/register/models"
	"rollbook/pkg/platform/sentinel"
)

type register struct {
	ref      models.SchemaRef
	students []*models.Student
}

// Store keeps all state behind one mutex. Copies go in and out so callers
// never share memory with the store.
type Store struct {
	mu        sync.Mutex
	registers map[string]*register
	seq       int
}

func New() *Store {
	return &Store{registers: make(map[string]*register)}
}

func (s *Store) FindSchemas(_ context.Context, label string) ([]models.SchemaRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var refs []models.SchemaRef
	for _, reg := range s.registers {
		if strings.EqualFold(reg.ref.Title, label) {
			ref := reg.ref
			ref.Created = false
			refs = append(refs, ref)
		}
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].CreatedAt.Equal(refs[j].CreatedAt) {
			return refs[i].ID < refs[j].ID
		}
		return refs[i].CreatedAt.Before(refs[j].CreatedAt)
	})
	return refs, nil
}

func (s *Store) CreateSchema(_ context.Context, label string) (models.SchemaRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	ref := models.SchemaRef{
		ID:        uuid.NewString(),
		Title:     label,
		Created:   true,
		CreatedAt: time.Now().Add(time.Duration(s.seq)), // strictly ordered
	}
	s.registers[ref.ID] = &register{ref: ref}
	return ref, nil
}

func (s *Store) ListStudents(_ context.Context, groupID string) ([]models.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.registers[groupID]
	if !ok {
		return nil, fmt.Errorf("register %s: %w", groupID, sentinel.ErrNotFound)
	}
	out := make([]models.Student, 0, len(reg.students))
	for _, st := range reg.students {
		out = append(out, *st)
	}
	return out, nil
}

func (s *Store) AddStudent(_ context.Context, groupID string, req models.AddStudentRequest) (models.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.registers[groupID]
	if !ok {
		return models.Student{}, fmt.Errorf("register %s: %w", groupID, sentinel.ErrNotFound)
	}
	st := &models.Student{
		ID:        uuid.NewString(),
		Serial:    req.Serial,
		Name:      req.Name,
		Phone:     req.Phone,
		CreatedAt: time.Now(),
	}
	reg.students = append(reg.students, st)
	return *st, nil
}

func (s *Store) WriteMark(_ context.Context, groupID, studentID string, week int, present bool) (models.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.find(groupID, studentID)
	if err != nil {
		return models.Student{}, err
	}
	st.Weeks[week-1] = present
	return *st, nil
}

func (s *Store) FindStudentBySerial(_ context.Context, groupID string, serial int) (models.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.registers[groupID]
	if !ok {
		return models.Student{}, fmt.Errorf("register %s: %w", groupID, sentinel.ErrNotFound)
	}
	for _, st := range reg.students {
		if st.Serial != nil && *st.Serial == serial {
			return *st, nil
		}
	}
	return models.Student{}, fmt.Errorf("serial %d: %w", serial, sentinel.ErrNotFound)
}

func (s *Store) DeleteStudent(_ context.Context, groupID, studentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.registers[groupID]
	if !ok {
		return fmt.Errorf("register %s: %w", groupID, sentinel.ErrNotFound)
	}
	for i, st := range reg.students {
		if st.ID == studentID {
			reg.students = append(reg.students[:i], reg.students[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("student %s: %w", studentID, sentinel.ErrNotFound)
}

func (s *Store) find(groupID, studentID string) (*models.Student, error) {
	reg, ok := s.registers[groupID]
	if !ok {
		return nil, fmt.Errorf("register %s: %w", groupID, sentinel.ErrNotFound)
	}
	for _, st := range reg.students {
		if st.ID == studentID {
			return st, nil
		}
	}
	return nil, fmt.Errorf("student %s: %w", studentID, sentinel.ErrNotFound)
}
