// Package service orchestrates roster and attendance operations over a
// backend store: resolving the register, reconciling marks, and fanning
// out to cache and change-event collaborators.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"rollbook/internal/platform/metrics"
	"rollbook/internal/register/analytics"
	"rollbook/internal/register/cache"
	"rollbook/internal/register/models"
	"rollbook/internal/register/provision"
	"rollbook/internal/register/store"
	dErrors "rollbook/pkg/domain-errors"
	"rollbook/pkg/platform/sentinel"
	"rollbook/pkg/requestcontext"
)

// EventPublisher delivers change events. Delivery failures never fail the
// write that produced them.
type EventPublisher interface {
	Publish(ctx context.Context, event models.ChangeEvent) error
}

// Service reconciles attendance state against the configured backend.
type Service struct {
	store       store.Store
	provisioner *provision.Provisioner
	label       string

	logger    *slog.Logger
	metrics   *metrics.Metrics
	publisher EventPublisher
	roster    *cache.Roster
	tracer    trace.Tracer

	mu     sync.Mutex
	schema models.SchemaRef
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithPublisher(publisher EventPublisher) Option {
	return func(s *Service) {
		s.publisher = publisher
	}
}

func WithRosterCache(roster *cache.Roster) Option {
	return func(s *Service) {
		s.roster = roster
	}
}

// New constructs a Service bound to one register label.
func New(st store.Store, label string, opts ...Option) *Service {
	s := &Service{
		store:  st,
		label:  label,
		logger: slog.Default(),
		tracer: otel.Tracer("rollbook/internal/register/service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.provisioner = provision.New(st, s.logger)
	return s
}

// EnsureSchema resolves or creates the backing register and pins it for
// subsequent operations. Safe to call repeatedly; racing callers converge
// on the same register.
func (s *Service) EnsureSchema(ctx context.Context) (models.SchemaRef, error) {
	ref, err := s.provisioner.EnsureSchema(ctx, s.label)
	if err != nil {
		return models.SchemaRef{}, err
	}
	s.mu.Lock()
	s.schema = ref
	s.mu.Unlock()
	return ref, nil
}

// ListStudents returns the roster, served from cache when a fresh snapshot
// exists.
func (s *Service) ListStudents(ctx context.Context) ([]models.Student, error) {
	groupID, err := s.group(ctx)
	if err != nil {
		return nil, err
	}

	if students, ok, err := s.roster.Get(ctx, groupID); err != nil {
		s.logger.WarnContext(ctx, "roster cache read failed", "error", err)
	} else if ok {
		return students, nil
	}

	start := time.Now()
	students, err := s.store.ListStudents(ctx, groupID)
	s.metrics.ObserveBackendLatency("list_students", time.Since(start))
	if err != nil {
		return nil, translate(err, "register not found")
	}

	if err := s.roster.Set(ctx, groupID, students); err != nil {
		s.logger.WarnContext(ctx, "roster cache write failed", "error", err)
	}
	return students, nil
}

// Roster returns the enriched view: percentage, rank, and cohort per
// student, recomputed from current marks.
func (s *Service) Roster(ctx context.Context) ([]models.EnrichedRecord, error) {
	students, err := s.ListStudents(ctx)
	if err != nil {
		return nil, err
	}
	return analytics.Enrich(students), nil
}

// AddStudent appends a student with a blank term to the register.
func (s *Service) AddStudent(ctx context.Context, req models.AddStudentRequest) (models.Student, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return models.Student{}, err
	}

	groupID, err := s.group(ctx)
	if err != nil {
		return models.Student{}, err
	}

	start := time.Now()
	student, err := s.store.AddStudent(ctx, groupID, req)
	s.metrics.ObserveBackendLatency("add_student", time.Since(start))
	if err != nil {
		return models.Student{}, translate(err, "register not found")
	}

	s.invalidateRoster(ctx, groupID)
	s.metrics.IncrementStudentsCreated()
	s.logger.InfoContext(ctx, "student added",
		"student_id", student.ID,
		"group_id", groupID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return student, nil
}

// SetAttendance writes exactly one (student, week) cell and returns the
// enriched post-write view of that student. The write is idempotent:
// repeating it converges on the same stored state.
func (s *Service) SetAttendance(ctx context.Context, ref models.StudentRef, week int, present bool) (models.EnrichedRecord, error) {
	ctx, span := s.tracer.Start(ctx, "register.set_attendance",
		trace.WithAttributes(
			attribute.Int("register.week", week),
			attribute.Bool("register.present", present),
		))
	defer span.End()

	if err := models.ValidateWeek(week); err != nil {
		return models.EnrichedRecord{}, err
	}
	if ref.IsZero() {
		return models.EnrichedRecord{}, dErrors.New(dErrors.CodeInvalidArgument, "student id or serial is required")
	}

	groupID, err := s.group(ctx)
	if err != nil {
		return models.EnrichedRecord{}, err
	}

	studentID := ref.ID
	if studentID == "" {
		start := time.Now()
		student, err := s.store.FindStudentBySerial(ctx, groupID, *ref.Serial)
		s.metrics.ObserveBackendLatency("find_by_serial", time.Since(start))
		if err != nil {
			return models.EnrichedRecord{}, translate(err, "no student with that serial")
		}
		studentID = student.ID
	}

	start := time.Now()
	student, err := s.store.WriteMark(ctx, groupID, studentID, week, present)
	s.metrics.ObserveBackendLatency("write_mark", time.Since(start))
	if err != nil {
		s.metrics.IncrementMarksWritten("error")
		return models.EnrichedRecord{}, translate(err, "student not found")
	}
	s.metrics.IncrementMarksWritten("ok")

	s.invalidateRoster(ctx, groupID)
	s.emitChange(ctx, models.ChangeEvent{
		StudentID: student.ID,
		GroupID:   groupID,
		Week:      week,
		Present:   present,
		UpdatedBy: requestcontext.UserID(ctx),
		Timestamp: time.Now().UTC(),
	})

	s.logger.InfoContext(ctx, "attendance mark written",
		"student_id", student.ID,
		"week", week,
		"present", present,
		"request_id", requestcontext.RequestID(ctx),
	)

	return analytics.Enrich([]models.Student{student})[0], nil
}

// DeleteStudent removes a student and its marks.
func (s *Service) DeleteStudent(ctx context.Context, studentID string) error {
	if studentID == "" {
		return dErrors.New(dErrors.CodeInvalidArgument, "student id is required")
	}

	groupID, err := s.group(ctx)
	if err != nil {
		return err
	}

	start := time.Now()
	err = s.store.DeleteStudent(ctx, groupID, studentID)
	s.metrics.ObserveBackendLatency("delete_student", time.Since(start))
	if err != nil {
		return translate(err, "student not found")
	}

	s.invalidateRoster(ctx, groupID)
	s.logger.InfoContext(ctx, "student deleted",
		"student_id", studentID,
		"group_id", groupID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

// group returns the pinned register id, provisioning on first use.
func (s *Service) group(ctx context.Context) (string, error) {
	s.mu.Lock()
	id := s.schema.ID
	s.mu.Unlock()
	if id != "" {
		return id, nil
	}
	ref, err := s.EnsureSchema(ctx)
	if err != nil {
		return "", err
	}
	return ref.ID, nil
}

func (s *Service) invalidateRoster(ctx context.Context, groupID string) {
	if err := s.roster.Invalidate(ctx, groupID); err != nil {
		s.logger.WarnContext(ctx, "roster cache invalidation failed", "error", err)
	}
}

// emitChange publishes fail-open: a broker outage must never fail the
// write that already landed.
func (s *Service) emitChange(ctx context.Context, event models.ChangeEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "change event publish failed",
			"student_id", event.StudentID,
			"week", event.Week,
			"error", err,
		)
	}
}

// translate maps store sentinels to coded errors at the service boundary.
func translate(err error, notFoundMsg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, notFoundMsg)
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "register state conflict")
	default:
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "attendance backend unavailable")
	}
}
