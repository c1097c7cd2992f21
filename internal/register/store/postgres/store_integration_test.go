//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"rollbook/internal/register/models"
	"rollbook/internal/register/store/postgres"
	"rollbook/pkg/platform/sentinel"
	"rollbook/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.Store
	group    string
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = postgres.New(s.postgres.DB)
	s.Require().NoError(s.store.Migrate(context.Background()))
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.TruncateTables(ctx, "attendance", "students", "registers"))

	ref, err := s.store.CreateSchema(ctx, "Attendance Register")
	s.Require().NoError(err)
	s.group = ref.ID
}

func intPtr(v int) *int { return &v }

func (s *PostgresStoreSuite) TestFindSchemasOrdersByCreation() {
	ctx := context.Background()

	second, err := s.store.CreateSchema(ctx, "attendance register")
	s.Require().NoError(err)

	refs, err := s.store.FindSchemas(ctx, "ATTENDANCE REGISTER")
	s.Require().NoError(err)
	s.Require().Len(refs, 2)
	s.Equal(s.group, refs[0].ID)
	s.Equal(second.ID, refs[1].ID)
}

func (s *PostgresStoreSuite) TestAddStudentSeedsBlankTerm() {
	ctx := context.Background()

	st, err := s.store.AddStudent(ctx, s.group, models.AddStudentRequest{Name: "Ada", Phone: "0801", Serial: intPtr(1)})
	s.Require().NoError(err)

	students, err := s.store.ListStudents(ctx, s.group)
	s.Require().NoError(err)
	s.Require().Len(students, 1)
	s.Equal(st.ID, students[0].ID)
	s.Equal(0, students[0].PresentCount())
}

func (s *PostgresStoreSuite) TestWriteMarkUpsertConverges() {
	ctx := context.Background()

	st, err := s.store.AddStudent(ctx, s.group, models.AddStudentRequest{Name: "Ada"})
	s.Require().NoError(err)

	updated, err := s.store.WriteMark(ctx, s.group, st.ID, 3, true)
	s.Require().NoError(err)
	s.True(updated.Weeks[2])

	// Concurrent repeats of the same write never error or diverge.
	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.WriteMark(ctx, s.group, st.ID, 3, true)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.Require().NoError(err)
	}

	final, err := s.store.WriteMark(ctx, s.group, st.ID, 3, false)
	s.Require().NoError(err)
	s.Equal(0, final.PresentCount())
}

func (s *PostgresStoreSuite) TestWriteMarkUnknownStudent() {
	_, err := s.store.WriteMark(context.Background(), s.group, "missing", 1, true)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestFindStudentBySerialFirstMatch() {
	ctx := context.Background()

	first, err := s.store.AddStudent(ctx, s.group, models.AddStudentRequest{Name: "Ada", Serial: intPtr(9)})
	s.Require().NoError(err)
	_, err = s.store.AddStudent(ctx, s.group, models.AddStudentRequest{Name: "Later", Serial: intPtr(9)})
	s.Require().NoError(err)

	found, err := s.store.FindStudentBySerial(ctx, s.group, 9)
	s.Require().NoError(err)
	s.Equal(first.ID, found.ID)

	_, err = s.store.FindStudentBySerial(ctx, s.group, 404)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestDeleteStudentCascades() {
	ctx := context.Background()

	st, err := s.store.AddStudent(ctx, s.group, models.AddStudentRequest{Name: "Ada"})
	s.Require().NoError(err)
	_, err = s.store.WriteMark(ctx, s.group, st.ID, 1, true)
	s.Require().NoError(err)

	s.Require().NoError(s.store.DeleteStudent(ctx, s.group, st.ID))

	var marks int
	err = s.postgres.DB.QueryRowContext(ctx, "SELECT count(*) FROM attendance WHERE student_id = $1", st.ID).Scan(&marks)
	s.Require().NoError(err)
	s.Zero(marks, "dependent marks removed with the student")

	err = s.store.DeleteStudent(ctx, s.group, st.ID)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}
