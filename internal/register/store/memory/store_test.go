package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"rollbook/internal/register/models"
	"rollbook/pkg/platform/sentinel"
)

type MemoryStoreSuite struct {
	suite.Suite
	store *Store
	ctx   context.Context
}

func (s *MemoryStoreSuite) SetupTest() {
	s.store = New()
	s.ctx = context.Background()
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) provision(label string) models.SchemaRef {
	ref, err := s.store.CreateSchema(s.ctx, label)
	s.Require().NoError(err)
	return ref
}

func intPtr(v int) *int { return &v }

func (s *MemoryStoreSuite) TestFindSchemas() {
	s.Run("empty store finds nothing", func() {
		refs, err := s.store.FindSchemas(s.ctx, "Register")
		s.Require().NoError(err)
		s.Empty(refs)
	})

	s.Run("matches case-insensitively in creation order", func() {
		first := s.provision("Register")
		s.provision("Other")
		second := s.provision("REGISTER")

		refs, err := s.store.FindSchemas(s.ctx, "register")
		s.Require().NoError(err)
		s.Require().Len(refs, 2)
		s.Equal(first.ID, refs[0].ID)
		s.Equal(second.ID, refs[1].ID)
		s.False(refs[0].Created)
	})
}

func (s *MemoryStoreSuite) TestAddAndListStudents() {
	ref := s.provision("Register")

	st, err := s.store.AddStudent(s.ctx, ref.ID, models.AddStudentRequest{Name: "Ada", Phone: "0801", Serial: intPtr(1)})
	s.Require().NoError(err)
	s.NotEmpty(st.ID)
	s.Equal(0, st.PresentCount())

	students, err := s.store.ListStudents(s.ctx, ref.ID)
	s.Require().NoError(err)
	s.Require().Len(students, 1)
	s.Equal("Ada", students[0].Name)

	s.Run("unknown register", func() {
		_, err := s.store.ListStudents(s.ctx, "missing")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *MemoryStoreSuite) TestWriteMarkTouchesOneCell() {
	ref := s.provision("Register")
	st, err := s.store.AddStudent(s.ctx, ref.ID, models.AddStudentRequest{Name: "Ada"})
	s.Require().NoError(err)

	updated, err := s.store.WriteMark(s.ctx, ref.ID, st.ID, 4, true)
	s.Require().NoError(err)
	s.True(updated.Weeks[3])
	s.Equal(1, updated.PresentCount())

	// Flipping back converges on absent.
	updated, err = s.store.WriteMark(s.ctx, ref.ID, st.ID, 4, false)
	s.Require().NoError(err)
	s.Equal(0, updated.PresentCount())

	s.Run("unknown student", func() {
		_, err := s.store.WriteMark(s.ctx, ref.ID, "missing", 1, true)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *MemoryStoreSuite) TestFindStudentBySerial() {
	ref := s.provision("Register")
	first, err := s.store.AddStudent(s.ctx, ref.ID, models.AddStudentRequest{Name: "Ada", Serial: intPtr(9)})
	s.Require().NoError(err)
	_, err = s.store.AddStudent(s.ctx, ref.ID, models.AddStudentRequest{Name: "Imposter", Serial: intPtr(9)})
	s.Require().NoError(err)

	// Serials are not unique; the first match wins.
	found, err := s.store.FindStudentBySerial(s.ctx, ref.ID, 9)
	s.Require().NoError(err)
	s.Equal(first.ID, found.ID)

	_, err = s.store.FindStudentBySerial(s.ctx, ref.ID, 404)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *MemoryStoreSuite) TestDeleteStudent() {
	ref := s.provision("Register")
	st, err := s.store.AddStudent(s.ctx, ref.ID, models.AddStudentRequest{Name: "Ada"})
	s.Require().NoError(err)

	s.Require().NoError(s.store.DeleteStudent(s.ctx, ref.ID, st.ID))

	students, err := s.store.ListStudents(s.ctx, ref.ID)
	s.Require().NoError(err)
	s.Empty(students)

	err = s.store.DeleteStudent(s.ctx, ref.ID, st.ID)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *MemoryStoreSuite) TestCopiesInAndOut() {
	ref := s.provision("Register")
	st, err := s.store.AddStudent(s.ctx, ref.ID, models.AddStudentRequest{Name: "Ada"})
	s.Require().NoError(err)

	students, err := s.store.ListStudents(s.ctx, ref.ID)
	s.Require().NoError(err)
	students[0].Weeks[0] = true // mutating the copy must not leak back

	fresh, err := s.store.ListStudents(s.ctx, ref.ID)
	s.Require().NoError(err)
	s.False(fresh[0].Weeks[0])
	s.Equal(st.ID, fresh[0].ID)
}
