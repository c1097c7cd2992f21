// Package models holds the canonical record shapes shared by every
// backend. Backend-native property names (Notion checkbox properties,
// relational columns) never leak past the store layer; everything above it
// speaks these types.
package models

import (
	"strings"
	"time"

	dErrors "rollbook/pkg/domain-errors"
)

// TermWeeks is the fixed term length. Percentages always divide by this
// constant; missing marks count as absent, not excluded.
const TermWeeks = 12

// Student is one roster entry with its marks inlined. Weeks[i] holds the
// mark for week i+1 so a listing never needs a second round trip.
type Student struct {
	ID        string          `json:"id"`
	Serial    *int            `json:"serial,omitempty"`
	Name      string          `json:"name"`
	Phone     string          `json:"phone"`
	CreatedAt time.Time       `json:"createdAt"`
	Weeks     [TermWeeks]bool `json:"weeks"`
}

// PresentCount counts the true marks across the term.
func (s Student) PresentCount() int {
	n := 0
	for _, present := range s.Weeks {
		if present {
			n++
		}
	}
	return n
}

// AttendanceMark is a single student/week cell. At most one exists per
// (StudentID, Week) pair; the store's upsert enforces that.
type AttendanceMark struct {
	StudentID string    `json:"studentId"`
	Week      int       `json:"week"`
	Present   bool      `json:"present"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Cohort is one of four fixed attendance-percentage bands used for
// reporting. Bands are half-open on the upper bound except the top one.
type Cohort string

const (
	CohortCritical     Cohort = "critical"     // [0,50)
	CohortAtRisk       Cohort = "at-risk"      // [50,70)
	CohortSatisfactory Cohort = "satisfactory" // [70,90)
	CohortExcellent    Cohort = "excellent"    // [90,100]
)

// Cohorts lists the bands in ascending order for distribution reports.
var Cohorts = []Cohort{CohortCritical, CohortAtRisk, CohortSatisfactory, CohortExcellent}

// EnrichedRecord is a Student plus derived analytics. It is recomputed on
// every call and never persisted.
type EnrichedRecord struct {
	Student
	AttendancePercent int    `json:"attendancePercent"`
	Rank              int    `json:"rank"`
	Cohort            Cohort `json:"cohort"`
}

// ChangeEvent is emitted after every successful mark write. Delivery is a
// collaborator's job; the core only produces the payload.
type ChangeEvent struct {
	StudentID string    `json:"studentId"`
	GroupID   string    `json:"groupId,omitempty"`
	Week      int       `json:"week"`
	Present   bool      `json:"present"`
	UpdatedBy string    `json:"updatedBy"`
	Timestamp time.Time `json:"timestamp"`
}

// SchemaRef identifies the backing register (table or remote database)
// resolved or created by provisioning.
type SchemaRef struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Created bool   `json:"created"`
	// CreatedAt orders duplicates so racing callers converge on the same
	// register. Zero when the backend does not report it.
	CreatedAt time.Time `json:"-"`
}

// StudentRef addresses a student either by backend id or by serial. An id
// wins when both are set; serial lookups take the first match.
type StudentRef struct {
	ID     string
	Serial *int
}

func (r StudentRef) IsZero() bool { return r.ID == "" && r.Serial == nil }

// AddStudentRequest creates a roster entry with all marks false.
type AddStudentRequest struct {
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Serial *int   `json:"serial,omitempty"`
}

func (r *AddStudentRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Phone = strings.TrimSpace(r.Phone)
}

func (r *AddStudentRequest) Validate() error {
	if r.Name == "" {
		return dErrors.New(dErrors.CodeInvalidArgument, "name is required")
	}
	return nil
}

// ValidateWeek enforces the 1-indexed inclusive term range.
func ValidateWeek(week int) error {
	if week < 1 || week > TermWeeks {
		return dErrors.New(dErrors.CodeInvalidArgument, "week must be between 1 and 12")
	}
	return nil
}
