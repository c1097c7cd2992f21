package notion

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"rollbook/internal/register/models"
	"rollbook/pkg/platform/sentinel"
)

// Property names in the remote database. These never leak past this
// package; the canonical shapes in models carry everything above it.
const (
	propName   = "Name"
	propSerial = "S/N"
	propPhone  = "Phone"
)

func weekProp(week int) string {
	return fmt.Sprintf("Week%d", week)
}

// Store adapts the page-store API to the backend contract. The groupID it
// receives is the remote database id resolved by provisioning.
type Store struct {
	client       *Client
	parentPageID string
}

// New builds a Store scoped to one parent page; only databases under that
// page are visible to schema search.
func New(client *Client, parentPageID string) *Store {
	return &Store{client: client, parentPageID: parentPageID}
}

func (s *Store) FindSchemas(ctx context.Context, label string) ([]models.SchemaRef, error) {
	dbs, err := s.client.searchDatabases(ctx)
	if err != nil {
		return nil, err
	}

	want := normalizeID(s.parentPageID)
	var refs []models.SchemaRef
	for _, db := range dbs {
		if db.Parent.Type != "page_id" || normalizeID(db.Parent.PageID) != want {
			continue
		}
		if !strings.EqualFold(joinRichText(db.Title), label) {
			continue
		}
		refs = append(refs, models.SchemaRef{
			ID:        db.ID,
			Title:     joinRichText(db.Title),
			CreatedAt: db.CreatedTime,
		})
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].CreatedAt.Equal(refs[j].CreatedAt) {
			return refs[i].ID < refs[j].ID
		}
		return refs[i].CreatedAt.Before(refs[j].CreatedAt)
	})
	return refs, nil
}

func (s *Store) CreateSchema(ctx context.Context, label string) (models.SchemaRef, error) {
	props := map[string]any{
		propName:   map[string]any{"title": map[string]any{}},
		propSerial: map[string]any{"number": map[string]any{}},
		propPhone:  map[string]any{"rich_text": map[string]any{}},
	}
	for week := 1; week <= models.TermWeeks; week++ {
		props[weekProp(week)] = map[string]any{"checkbox": map[string]any{}}
	}

	db, err := s.client.createDatabase(ctx, s.parentPageID, label, props)
	if err != nil {
		return models.SchemaRef{}, err
	}
	return models.SchemaRef{
		ID:        db.ID,
		Title:     joinRichText(db.Title),
		Created:   true,
		CreatedAt: db.CreatedTime,
	}, nil
}

func (s *Store) ListStudents(ctx context.Context, groupID string) ([]models.Student, error) {
	pages, err := s.client.queryDatabase(ctx, groupID, nil, defaultPageSize)
	if err != nil {
		return nil, err
	}
	students := make([]models.Student, 0, len(pages))
	for _, p := range pages {
		students = append(students, parseStudent(p))
	}
	return students, nil
}

func (s *Store) AddStudent(ctx context.Context, groupID string, req models.AddStudentRequest) (models.Student, error) {
	props := map[string]any{
		propName: map[string]any{
			"title": []map[string]any{
				{"text": map[string]any{"content": req.Name}},
			},
		},
		propPhone: map[string]any{
			"rich_text": []map[string]any{
				{"text": map[string]any{"content": req.Phone}},
			},
		},
	}
	if req.Serial != nil {
		props[propSerial] = map[string]any{"number": *req.Serial}
	}
	for week := 1; week <= models.TermWeeks; week++ {
		props[weekProp(week)] = map[string]any{"checkbox": false}
	}

	p, err := s.client.createPage(ctx, groupID, props)
	if err != nil {
		return models.Student{}, err
	}
	return parseStudent(p), nil
}

func (s *Store) WriteMark(ctx context.Context, _, studentID string, week int, present bool) (models.Student, error) {
	// One property only; the other eleven weeks stay untouched on the page.
	props := map[string]any{
		weekProp(week): map[string]any{"checkbox": present},
	}
	p, err := s.client.patchPage(ctx, studentID, props)
	if err != nil {
		return models.Student{}, err
	}
	return parseStudent(p), nil
}

func (s *Store) FindStudentBySerial(ctx context.Context, groupID string, serial int) (models.Student, error) {
	filter := map[string]any{
		"property": propSerial,
		"number":   map[string]any{"equals": serial},
	}
	pages, err := s.client.queryDatabase(ctx, groupID, filter, 1)
	if err != nil {
		return models.Student{}, err
	}
	if len(pages) == 0 {
		return models.Student{}, fmt.Errorf("serial %d: %w", serial, sentinel.ErrNotFound)
	}
	return parseStudent(pages[0]), nil
}

func (s *Store) DeleteStudent(ctx context.Context, _, studentID string) error {
	return s.client.archivePage(ctx, studentID)
}

// parseStudent converts a page into the canonical shape, failing closed:
// missing or null properties become zero values rather than errors so a
// partially-initialized page never breaks listing.
func parseStudent(p page) models.Student {
	props := p.Properties
	st := models.Student{
		ID:        p.ID,
		Name:      joinRichText(props[propName].Title),
		Phone:     joinRichText(props[propPhone].RichText),
		CreatedAt: p.CreatedTime,
	}
	if n := props[propSerial].Number; n != nil {
		serial := int(*n)
		st.Serial = &serial
	}
	for week := 1; week <= models.TermWeeks; week++ {
		if cb := props[weekProp(week)].Checkbox; cb != nil {
			st.Weeks[week-1] = *cb
		}
	}
	return st
}

// normalizeID strips dashes so page ids compare regardless of formatting.
func normalizeID(id string) string {
	return strings.ReplaceAll(id, "-", "")
}
