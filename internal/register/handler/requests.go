package handler

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"rollbook/internal/register/models"
	dErrors "rollbook/pkg/domain-errors"
)

// attendanceRequest is the PUT /api/attendance payload. Week accepts a
// number or a "week3" style string so spreadsheet-shaped clients do not
// need to strip the column prefix themselves.
type attendanceRequest struct {
	StudentID string    `json:"studentId"`
	Serial    *int      `json:"serial"`
	Week      weekField `json:"week"`
	Present   *bool     `json:"present"`
}

func (r *attendanceRequest) Validate() error {
	if !r.Week.set {
		return dErrors.New(dErrors.CodeInvalidArgument, "week is required")
	}
	if r.Present == nil {
		return dErrors.New(dErrors.CodeInvalidArgument, "present is required")
	}
	if r.StudentID == "" && r.Serial == nil {
		return dErrors.New(dErrors.CodeInvalidArgument, "student id or serial is required")
	}
	return nil
}

func (r *attendanceRequest) StudentRef() models.StudentRef {
	return models.StudentRef{ID: r.StudentID, Serial: r.Serial}
}

// weekField decodes either a JSON number or a "weekN" string.
type weekField struct {
	value int
	set   bool
}

func (w *weekField) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		w.value = n
		w.set = true
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("week must be a number or a \"weekN\" string")
	}
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.TrimSpace(strings.TrimPrefix(s, "week"))
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("week must be a number or a \"weekN\" string")
	}
	w.value = n
	w.set = true
	return nil
}
