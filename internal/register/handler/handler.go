package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"rollbook/internal/platform/metrics"
	"rollbook/internal/register/analytics"
	"rollbook/internal/register/export"
	"rollbook/internal/register/models"
	dErrors "rollbook/pkg/domain-errors"
	"rollbook/pkg/platform/httputil"
	"rollbook/pkg/requestcontext"
)

// Service defines the register operations the HTTP layer needs.
type Service interface {
	EnsureSchema(ctx context.Context) (models.SchemaRef, error)
	ListStudents(ctx context.Context) ([]models.Student, error)
	Roster(ctx context.Context) ([]models.EnrichedRecord, error)
	AddStudent(ctx context.Context, req models.AddStudentRequest) (models.Student, error)
	SetAttendance(ctx context.Context, ref models.StudentRef, week int, present bool) (models.EnrichedRecord, error)
	DeleteStudent(ctx context.Context, studentID string) error
}

// Handler wires register endpoints to the register service.
type Handler struct {
	service      Service
	logger       *slog.Logger
	metrics      *metrics.Metrics
	weekEncoding export.WeekEncoding
}

// New constructs a register handler with its dependencies.
func New(service Service, logger *slog.Logger, m *metrics.Metrics, weekEncoding export.WeekEncoding) *Handler {
	return &Handler{
		service:      service,
		logger:       logger,
		metrics:      m,
		weekEncoding: weekEncoding,
	}
}

// Register mounts the read-only endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/api/health", h.HandleHealth)
	r.Get("/api/students", h.HandleListStudents)
	r.Get("/api/export", h.HandleExport)
}

// RegisterProtected mounts the mutating endpoints; callers wrap the
// router group with auth middleware.
func (h *Handler) RegisterProtected(r chi.Router) {
	r.Post("/api/register/ensure", h.HandleEnsure)
	r.Post("/api/students", h.HandleAddStudent)
	r.Delete("/api/students/{id}", h.HandleDeleteStudent)
	r.Put("/api/attendance", h.HandleSetAttendance)
}

// HandleHealth handles GET /api/health requests.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleEnsure handles POST /api/register/ensure requests. Repeated calls
// converge on the same register.
func (h *Handler) HandleEnsure(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ref, err := h.service.EnsureSchema(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "register provisioning failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	status := http.StatusOK
	if ref.Created {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, ref)
}

// HandleListStudents handles GET /api/students requests, returning the
// enriched roster.
func (h *Handler) HandleListStudents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	records, err := h.service.Roster(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"students":     records,
		"distribution": analytics.Distribution(records),
	})
}

// HandleAddStudent handles POST /api/students requests.
func (h *Handler) HandleAddStudent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.Decode[models.AddStudentRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	student, err := h.service.AddStudent(ctx, req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, student)
}

// HandleDeleteStudent handles DELETE /api/students/{id} requests.
func (h *Handler) HandleDeleteStudent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.service.DeleteStudent(ctx, chi.URLParam(r, "id")); err != nil {
		httputil.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleSetAttendance handles PUT /api/attendance requests.
func (h *Handler) HandleSetAttendance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.Decode[attendanceRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	record, err := h.service.SetAttendance(ctx, req.StudentRef(), req.Week.value, *req.Present)
	if err != nil {
		h.logger.ErrorContext(ctx, "attendance write failed",
			"request_id", requestID,
			"week", req.Week.value,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "attendance updated",
		"request_id", requestID,
		"student_id", record.ID,
		"week", req.Week.value,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	httputil.WriteJSON(w, http.StatusOK, record)
}

// HandleExport handles GET /api/export requests. format=csv (default)
// streams the register as text; format=xlsx builds the styled workbook.
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}

	switch format {
	case "csv":
		students, err := h.service.ListStudents(ctx)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="attendance.csv"`)
		_, _ = fmt.Fprint(w, export.CSV(students, h.weekEncoding))
		h.metrics.IncrementExportsServed("csv")

	case "xlsx":
		records, err := h.service.Roster(ctx)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		f, err := export.Workbook(records, h.weekEncoding)
		if err != nil {
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "workbook build failed"))
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="attendance.xlsx"`)
		if err := f.Write(w); err != nil {
			h.logger.ErrorContext(ctx, "workbook write failed",
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
			return
		}
		h.metrics.IncrementExportsServed("xlsx")

	default:
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidArgument, "format must be csv or xlsx"))
	}
}
