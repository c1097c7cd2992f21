package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"rollbook/internal/register/models"
	"rollbook/pkg/platform/sentinel"
)

type SQLiteStoreSuite struct {
	suite.Suite
	store *Store
	ctx   context.Context
	group string
}

func (s *SQLiteStoreSuite) SetupTest() {
	s.ctx = context.Background()
	store, err := Open(s.ctx, filepath.Join(s.T().TempDir(), "rollbook.db"))
	s.Require().NoError(err)
	s.store = store
	s.T().Cleanup(func() { _ = store.Close() })

	ref, err := store.CreateSchema(s.ctx, "Attendance Register")
	s.Require().NoError(err)
	s.group = ref.ID
}

func TestSQLiteStoreSuite(t *testing.T) {
	suite.Run(t, new(SQLiteStoreSuite))
}

func intPtr(v int) *int { return &v }

func (s *SQLiteStoreSuite) TestFindSchemas() {
	refs, err := s.store.FindSchemas(s.ctx, "attendance REGISTER")
	s.Require().NoError(err)
	s.Require().Len(refs, 1)
	s.Equal(s.group, refs[0].ID)

	second, err := s.store.CreateSchema(s.ctx, "Attendance Register")
	s.Require().NoError(err)

	refs, err = s.store.FindSchemas(s.ctx, "Attendance Register")
	s.Require().NoError(err)
	s.Require().Len(refs, 2)
	s.Equal(s.group, refs[0].ID, "creation order preserved")
	s.Equal(second.ID, refs[1].ID)
}

func (s *SQLiteStoreSuite) TestAddStudentSeedsBlankTerm() {
	st, err := s.store.AddStudent(s.ctx, s.group, models.AddStudentRequest{Name: "Ada", Phone: "0801", Serial: intPtr(1)})
	s.Require().NoError(err)

	students, err := s.store.ListStudents(s.ctx, s.group)
	s.Require().NoError(err)
	s.Require().Len(students, 1)
	s.Equal(st.ID, students[0].ID)
	s.Equal(0, students[0].PresentCount())
	s.Require().NotNil(students[0].Serial)
	s.Equal(1, *students[0].Serial)
}

func (s *SQLiteStoreSuite) TestWriteMarkUpsert() {
	st, err := s.store.AddStudent(s.ctx, s.group, models.AddStudentRequest{Name: "Ada"})
	s.Require().NoError(err)

	updated, err := s.store.WriteMark(s.ctx, s.group, st.ID, 3, true)
	s.Require().NoError(err)
	s.True(updated.Weeks[2])
	s.Equal(1, updated.PresentCount())

	// Re-running the same write converges on the same state.
	updated, err = s.store.WriteMark(s.ctx, s.group, st.ID, 3, true)
	s.Require().NoError(err)
	s.Equal(1, updated.PresentCount())

	updated, err = s.store.WriteMark(s.ctx, s.group, st.ID, 3, false)
	s.Require().NoError(err)
	s.Equal(0, updated.PresentCount())
}

func (s *SQLiteStoreSuite) TestWriteMarkUnknownStudent() {
	_, err := s.store.WriteMark(s.ctx, s.group, "missing", 1, true)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *SQLiteStoreSuite) TestFindStudentBySerial() {
	first, err := s.store.AddStudent(s.ctx, s.group, models.AddStudentRequest{Name: "Ada", Serial: intPtr(9)})
	s.Require().NoError(err)
	_, err = s.store.AddStudent(s.ctx, s.group, models.AddStudentRequest{Name: "Later", Serial: intPtr(9)})
	s.Require().NoError(err)

	found, err := s.store.FindStudentBySerial(s.ctx, s.group, 9)
	s.Require().NoError(err)
	s.Equal(first.ID, found.ID, "first by creation order wins")

	_, err = s.store.FindStudentBySerial(s.ctx, s.group, 404)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *SQLiteStoreSuite) TestDeleteStudentCascades() {
	st, err := s.store.AddStudent(s.ctx, s.group, models.AddStudentRequest{Name: "Ada"})
	s.Require().NoError(err)
	_, err = s.store.WriteMark(s.ctx, s.group, st.ID, 1, true)
	s.Require().NoError(err)

	s.Require().NoError(s.store.DeleteStudent(s.ctx, s.group, st.ID))

	students, err := s.store.ListStudents(s.ctx, s.group)
	s.Require().NoError(err)
	s.Empty(students)

	err = s.store.DeleteStudent(s.ctx, s.group, st.ID)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *SQLiteStoreSuite) TestMigrateIsIdempotent() {
	s.Require().NoError(s.store.Migrate(s.ctx))
}
