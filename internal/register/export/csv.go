// Package export serializes register snapshots into external tabular
// formats: CSV text and the row-set consumed by the spreadsheet renderer.
// It never touches backend state.
package export

import (
	"fmt"
	"strconv"
	"strings"

	"rollbook/internal/register/models"
)

// WeekEncoding selects how week columns render. Source systems disagreed
// between numeric and textual cells, so the encoding is explicit rather
// than guessed.
type WeekEncoding string

const (
	// WeekNumeric renders 1/0 and round-trips through a standard CSV
	// reader. The default.
	WeekNumeric WeekEncoding = "numeric"
	// WeekText renders Present/Absent for human-facing exports.
	WeekText WeekEncoding = "text"
)

// ParseWeekEncoding maps a config value to an encoding, defaulting to
// numeric for anything unrecognized.
func ParseWeekEncoding(value string) WeekEncoding {
	if strings.EqualFold(value, string(WeekText)) {
		return WeekText
	}
	return WeekNumeric
}

// Header is the fixed 15-column CSV header, identical for every backend.
func Header() []string {
	header := make([]string, 0, 3+models.TermWeeks)
	header = append(header, "S/N", "Name", "Phone")
	for week := 1; week <= models.TermWeeks; week++ {
		header = append(header, fmt.Sprintf("Week%d", week))
	}
	return header
}

// Row renders one student in header order. A nil serial renders as the
// empty string, never "null" or 0.
func Row(st models.Student, enc WeekEncoding) []string {
	row := make([]string, 0, 3+models.TermWeeks)
	serial := ""
	if st.Serial != nil {
		serial = strconv.Itoa(*st.Serial)
	}
	row = append(row, serial, st.Name, st.Phone)
	for _, present := range st.Weeks {
		row = append(row, encodeWeek(present, enc))
	}
	return row
}

// CSV serializes students into CSV text. Fields containing a comma,
// double quote or newline are wrapped in double quotes with inner quotes
// doubled; everything else is emitted bare. Lines are newline-joined with
// no trailing newline and no byte-order mark.
func CSV(students []models.Student, enc WeekEncoding) string {
	var b strings.Builder
	writeLine(&b, Header())
	for _, st := range students {
		b.WriteByte('\n')
		writeLine(&b, Row(st, enc))
	}
	return b.String()
}

func writeLine(b *strings.Builder, fields []string) {
	for i, field := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(escape(field))
	}
}

func escape(field string) string {
	if !strings.ContainsAny(field, ",\"\n") {
		return field
	}
	return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
}

func encodeWeek(present bool, enc WeekEncoding) string {
	if enc == WeekText {
		if present {
			return "Present"
		}
		return "Absent"
	}
	if present {
		return "1"
	}
	return "0"
}
