package export

import (
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollbook/internal/register/models"
)

func intPtr(v int) *int { return &v }

func TestHeader(t *testing.T) {
	header := Header()
	require.Len(t, header, 15)
	assert.Equal(t, []string{"S/N", "Name", "Phone"}, header[:3])
	assert.Equal(t, "Week1", header[3])
	assert.Equal(t, "Week12", header[14])
}

func TestRowNilSerialRendersEmpty(t *testing.T) {
	row := Row(models.Student{Name: "Ada", Phone: "0801"}, WeekNumeric)
	require.Len(t, row, 15)
	assert.Equal(t, "", row[0])
	assert.Equal(t, "Ada", row[1])
}

func TestRowWeekEncodings(t *testing.T) {
	st := models.Student{Serial: intPtr(3), Name: "Ada"}
	st.Weeks[0] = true

	numeric := Row(st, WeekNumeric)
	assert.Equal(t, "1", numeric[3])
	assert.Equal(t, "0", numeric[4])

	text := Row(st, WeekText)
	assert.Equal(t, "Present", text[3])
	assert.Equal(t, "Absent", text[4])
}

func TestCSVQuoting(t *testing.T) {
	students := []models.Student{
		{Serial: intPtr(1), Name: "Okafor, Ada", Phone: "0801"},
		{Serial: intPtr(2), Name: `The "Great"`, Phone: "0802"},
		{Serial: intPtr(3), Name: "Plain", Phone: "0803"},
	}

	out := CSV(students, WeekNumeric)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 4)

	assert.True(t, strings.HasPrefix(lines[1], `1,"Okafor, Ada",0801`), "comma field quoted: %q", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], `2,"The ""Great""",0802`), "inner quotes doubled: %q", lines[2])
	assert.True(t, strings.HasPrefix(lines[3], `3,Plain,0803`), "plain field left bare: %q", lines[3])
	assert.False(t, strings.HasSuffix(out, "\n"), "no trailing newline")
}

func TestCSVRoundTripsThroughStandardReader(t *testing.T) {
	st := models.Student{Serial: intPtr(7), Name: "Okafor, Ada", Phone: `say "hi"`}
	st.Weeks[0] = true
	st.Weeks[11] = true

	out := CSV([]models.Student{st}, WeekNumeric)

	rows, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, Header(), rows[0])
	assert.Equal(t, "7", rows[1][0])
	assert.Equal(t, "Okafor, Ada", rows[1][1])
	assert.Equal(t, `say "hi"`, rows[1][2])
	assert.Equal(t, "1", rows[1][3])
	assert.Equal(t, "0", rows[1][4])
	assert.Equal(t, "1", rows[1][14])
}

func TestCSVEmptyRoster(t *testing.T) {
	out := CSV(nil, WeekNumeric)
	assert.Equal(t, strings.Join(Header(), ","), out)
}

func TestParseWeekEncoding(t *testing.T) {
	assert.Equal(t, WeekNumeric, ParseWeekEncoding(""))
	assert.Equal(t, WeekNumeric, ParseWeekEncoding("numeric"))
	assert.Equal(t, WeekNumeric, ParseWeekEncoding("bogus"))
	assert.Equal(t, WeekText, ParseWeekEncoding("text"))
	assert.Equal(t, WeekText, ParseWeekEncoding("TEXT"))
}
