// Package store defines the backend adapter contract. Implementations
// translate canonical records to and from one backend's native
// representation; they are interface-driven so the reconciler and
// provisioner never see backend-specific shapes.
package store

import (
	"context"

	"rollbook/internal/register/models"
)

// Store is the capability set every backend variant implements. groupID is
// the opaque register identifier returned by provisioning: the remote
// database id for the page store, the register row id for relational
// stores.
//
// Operations are network or storage calls. None of them retries; failures
// propagate wrapped around the sentinel errors in pkg/platform/sentinel.
type Store interface {
	// FindSchemas returns every register whose title matches label
	// case-insensitively, ordered by creation so callers can pick the
	// first deterministically.
	FindSchemas(ctx context.Context, label string) ([]models.SchemaRef, error)

	// CreateSchema provisions a new register with the full week-column
	// definition.
	CreateSchema(ctx context.Context, label string) (models.SchemaRef, error)

	// ListStudents returns the roster with marks inlined. Malformed or
	// partially-initialized records parse to safe defaults rather than
	// failing the listing.
	ListStudents(ctx context.Context, groupID string) ([]models.Student, error)

	// AddStudent creates a student with all term marks present=false,
	// atomically.
	AddStudent(ctx context.Context, groupID string, req models.AddStudentRequest) (models.Student, error)

	// WriteMark patches exactly one (student, week) cell, never rewriting
	// the other weeks, and returns the full post-write view.
	WriteMark(ctx context.Context, groupID, studentID string, week int, present bool) (models.Student, error)

	// FindStudentBySerial returns the first student carrying the serial.
	// Serials are not unique in any backend; duplicates are not detected.
	FindStudentBySerial(ctx context.Context, groupID string, serial int) (models.Student, error)

	// DeleteStudent removes the student and its dependent marks.
	DeleteStudent(ctx context.Context, groupID, studentID string) error
}
