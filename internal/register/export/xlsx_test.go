package export

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollbook/internal/register/analytics"
	"rollbook/internal/register/models"
)

func enriched(name string, serial, presentWeeks int) models.Student {
	st := models.Student{ID: name, Name: name, Serial: intPtr(serial)}
	for i := 0; i < presentWeeks; i++ {
		st.Weeks[i] = true
	}
	return st
}

func TestWorkbookSheets(t *testing.T) {
	records := analytics.Enrich([]models.Student{
		enriched("Ada", 1, 12),
		enriched("Bob", 2, 6),
		enriched("Cyn", 3, 0),
	})

	f, err := Workbook(records, WeekNumeric)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{registerSheet, summarySheet}, f.GetSheetList())

	rows, err := f.GetRows(registerSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4) // header plus three students

	assert.Equal(t, "S/N", rows[0][0])
	assert.Equal(t, "Attendance %", rows[0][15])
	assert.Equal(t, "Rank", rows[0][16])

	assert.Equal(t, "Ada", rows[1][1])
	assert.Equal(t, "100%", rows[1][15])
	assert.Equal(t, "1", rows[1][16])

	assert.Equal(t, "Cyn", rows[3][1])
	assert.Equal(t, "0%", rows[3][15])
}

func TestWorkbookSummary(t *testing.T) {
	records := analytics.Enrich([]models.Student{
		enriched("Ada", 1, 12), // 100 excellent
		enriched("Bob", 2, 6),  // 50 at-risk
	})

	f, err := Workbook(records, WeekNumeric)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(summarySheet)
	require.NoError(t, err)
	require.NotEmpty(t, rows)

	assert.Equal(t, "Class Attendance Summary", rows[0][0])

	total, err := f.GetCellValue(summarySheet, "B3")
	require.NoError(t, err)
	assert.Equal(t, "2", total)

	average, err := f.GetCellValue(summarySheet, "B4")
	require.NoError(t, err)
	assert.Equal(t, "75.0%", average)

	below, err := f.GetCellValue(summarySheet, "B5")
	require.NoError(t, err)
	assert.Equal(t, "1", below)
}

func TestWorkbookEmptyRoster(t *testing.T) {
	f, err := Workbook(nil, WeekNumeric)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(registerSheet)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
