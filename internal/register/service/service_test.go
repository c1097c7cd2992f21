package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollbook/internal/register/events"
	"rollbook/internal/register/models"
	"rollbook/internal/register/store/memory"
	dErrors "rollbook/pkg/domain-errors"
	"rollbook/pkg/requestcontext"
)

func newService(t *testing.T) (*Service, *events.Memory) {
	t.Helper()
	publisher := events.NewMemory()
	svc := New(memory.New(), "Attendance Register", WithPublisher(publisher))
	return svc, publisher
}

func intPtr(v int) *int { return &v }

func TestEnsureSchemaIdempotent(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	first, err := svc.EnsureSchema(ctx)
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.NotEmpty(t, first.ID)

	second, err := svc.EnsureSchema(ctx)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.ID, second.ID)
}

func TestAddStudentValidation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.AddStudent(ctx, models.AddStudentRequest{Name: "   "})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidArgument))
}

func TestAddStudentProvisionsOnFirstUse(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	// No explicit EnsureSchema call; the first write provisions.
	student, err := svc.AddStudent(ctx, models.AddStudentRequest{Name: "Ada"})
	require.NoError(t, err)
	assert.NotEmpty(t, student.ID)
	assert.Equal(t, 0, student.PresentCount())

	students, err := svc.ListStudents(ctx)
	require.NoError(t, err)
	require.Len(t, students, 1)
}

func TestSetAttendanceWritesSingleCell(t *testing.T) {
	svc, publisher := newService(t)
	ctx := requestcontext.WithUserID(context.Background(), "teacher-1")

	student, err := svc.AddStudent(ctx, models.AddStudentRequest{Name: "Ada"})
	require.NoError(t, err)

	rec, err := svc.SetAttendance(ctx, models.StudentRef{ID: student.ID}, 3, true)
	require.NoError(t, err)
	assert.True(t, rec.Weeks[2])
	for i, present := range rec.Weeks {
		if i != 2 {
			assert.False(t, present, "week %d should be untouched", i+1)
		}
	}
	assert.Equal(t, 8, rec.AttendancePercent) // round(100/12)
	assert.Equal(t, models.CohortCritical, rec.Cohort)

	evts := publisher.Events()
	require.Len(t, evts, 1)
	assert.Equal(t, student.ID, evts[0].StudentID)
	assert.Equal(t, 3, evts[0].Week)
	assert.True(t, evts[0].Present)
	assert.Equal(t, "teacher-1", evts[0].UpdatedBy)
}

func TestSetAttendanceIdempotent(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	student, err := svc.AddStudent(ctx, models.AddStudentRequest{Name: "Ada"})
	require.NoError(t, err)

	first, err := svc.SetAttendance(ctx, models.StudentRef{ID: student.ID}, 5, true)
	require.NoError(t, err)
	second, err := svc.SetAttendance(ctx, models.StudentRef{ID: student.ID}, 5, true)
	require.NoError(t, err)
	assert.Equal(t, first.Weeks, second.Weeks)
	assert.Equal(t, first.AttendancePercent, second.AttendancePercent)
}

func TestSetAttendanceBySerial(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.AddStudent(ctx, models.AddStudentRequest{Name: "Ada", Serial: intPtr(7)})
	require.NoError(t, err)

	rec, err := svc.SetAttendance(ctx, models.StudentRef{Serial: intPtr(7)}, 1, true)
	require.NoError(t, err)
	assert.True(t, rec.Weeks[0])
}

func TestSetAttendanceUnknownSerial(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.AddStudent(ctx, models.AddStudentRequest{Name: "Ada"})
	require.NoError(t, err)

	_, err = svc.SetAttendance(ctx, models.StudentRef{Serial: intPtr(99)}, 1, true)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestSetAttendanceWeekBounds(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	student, err := svc.AddStudent(ctx, models.AddStudentRequest{Name: "Ada"})
	require.NoError(t, err)

	for _, week := range []int{0, 13, -1} {
		_, err := svc.SetAttendance(ctx, models.StudentRef{ID: student.ID}, week, true)
		require.Error(t, err, "week %d", week)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidArgument))
	}
}

func TestSetAttendanceRequiresRef(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.SetAttendance(context.Background(), models.StudentRef{}, 1, true)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidArgument))
}

func TestDeleteStudent(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	student, err := svc.AddStudent(ctx, models.AddStudentRequest{Name: "Ada"})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteStudent(ctx, student.ID))

	students, err := svc.ListStudents(ctx)
	require.NoError(t, err)
	assert.Empty(t, students)

	err = svc.DeleteStudent(ctx, student.ID)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestRosterEnrichment(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	ada, err := svc.AddStudent(ctx, models.AddStudentRequest{Name: "Ada", Serial: intPtr(1)})
	require.NoError(t, err)
	bob, err := svc.AddStudent(ctx, models.AddStudentRequest{Name: "Bob", Serial: intPtr(2)})
	require.NoError(t, err)

	for week := 1; week <= 12; week++ {
		_, err := svc.SetAttendance(ctx, models.StudentRef{ID: ada.ID}, week, true)
		require.NoError(t, err)
	}
	for week := 1; week <= 6; week++ {
		_, err := svc.SetAttendance(ctx, models.StudentRef{ID: bob.ID}, week, true)
		require.NoError(t, err)
	}

	records, err := svc.Roster(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "Ada", records[0].Name)
	assert.Equal(t, 100, records[0].AttendancePercent)
	assert.Equal(t, 1, records[0].Rank)
	assert.Equal(t, models.CohortExcellent, records[0].Cohort)

	assert.Equal(t, "Bob", records[1].Name)
	assert.Equal(t, 50, records[1].AttendancePercent)
	assert.Equal(t, 2, records[1].Rank)
	assert.Equal(t, models.CohortAtRisk, records[1].Cohort)
}
