package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"rollbook/internal/register/analytics"
	"rollbook/internal/register/models"
)

const (
	registerSheet = "Attendance Register"
	summarySheet  = "Summary"
)

// Cohort fill colors, matching the report the register has always shipped:
// red for trouble, yellow for borderline, green for healthy.
const (
	fillRed    = "FFCDD2"
	fillYellow = "FFF9C4"
	fillGreen  = "C8E6C9"
)

// highlightSize bounds the top/bottom cohort tables on the summary sheet.
const highlightSize = 3

// Workbook renders enriched records into a two-sheet spreadsheet: the full
// register with percent and rank columns, and a summary with class
// aggregates, the cohort distribution and top/bottom highlights.
//
// The caller owns the returned file; write it out with WriteTo or SaveAs.
func Workbook(records []models.EnrichedRecord, enc WeekEncoding) (*excelize.File, error) {
	f := excelize.NewFile()
	f.SetSheetName("Sheet1", registerSheet)

	if err := writeRegisterSheet(f, records, enc); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeSummarySheet(f, records); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func writeRegisterSheet(f *excelize.File, records []models.EnrichedRecord, enc WeekEncoding) error {
	header := append(Header(), "Attendance %", "Rank")
	if err := setRow(f, registerSheet, 1, toAny(header)); err != nil {
		return err
	}

	fills, err := cohortStyles(f)
	if err != nil {
		return err
	}

	for i, rec := range records {
		rowNum := i + 2
		row := toAny(Row(rec.Student, enc))
		row = append(row, fmt.Sprintf("%d%%", rec.AttendancePercent), rec.Rank)
		if err := setRow(f, registerSheet, rowNum, row); err != nil {
			return err
		}
		if err := fillRow(f, registerSheet, rowNum, len(row), fills[rec.Cohort]); err != nil {
			return err
		}
	}
	return nil
}

func writeSummarySheet(f *excelize.File, records []models.EnrichedRecord) error {
	if _, err := f.NewSheet(summarySheet); err != nil {
		return err
	}

	dist := analytics.Distribution(records)
	highlight := analytics.TopBottom(records, highlightSize)

	rows := [][]any{
		{"Class Attendance Summary"},
		{},
		{"Total Students", len(records)},
		{"Class Average Attendance", fmt.Sprintf("%.1f%%", analytics.Average(records))},
		{"Students Below 70%", dist[models.CohortCritical] + dist[models.CohortAtRisk]},
		{"Students At 90% Or Above", dist[models.CohortExcellent]},
		{},
		{"Attendance Range", "Number of Students"},
		{"0-50%", dist[models.CohortCritical]},
		{"50-70%", dist[models.CohortAtRisk]},
		{"70-90%", dist[models.CohortSatisfactory]},
		{"90-100%", dist[models.CohortExcellent]},
		{},
		{"Top Students"},
		{"Rank", "Name", "Attendance %"},
	}
	for _, rec := range highlight.Top {
		rows = append(rows, []any{rec.Rank, rec.Name, fmt.Sprintf("%d%%", rec.AttendancePercent)})
	}
	rows = append(rows,
		[]any{},
		[]any{"Students Needing Attention"},
		[]any{"Rank", "Name", "Attendance %"},
	)
	for _, rec := range highlight.Bottom {
		rows = append(rows, []any{rec.Rank, rec.Name, fmt.Sprintf("%d%%", rec.AttendancePercent)})
	}

	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		if err := setRow(f, summarySheet, i+1, row); err != nil {
			return err
		}
	}
	return nil
}

func cohortStyles(f *excelize.File) (map[models.Cohort]int, error) {
	colors := map[models.Cohort]string{
		models.CohortCritical:     fillRed,
		models.CohortAtRisk:       fillRed,
		models.CohortSatisfactory: fillYellow,
		models.CohortExcellent:    fillGreen,
	}
	styles := make(map[models.Cohort]int, len(colors))
	for cohort, color := range colors {
		id, err := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{color}},
		})
		if err != nil {
			return nil, fmt.Errorf("build cohort style: %w", err)
		}
		styles[cohort] = id
	}
	return styles, nil
}

func setRow(f *excelize.File, sheet string, rowNum int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func fillRow(f *excelize.File, sheet string, rowNum, width, styleID int) error {
	start, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	end, err := excelize.CoordinatesToCellName(width, rowNum)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, start, end, styleID)
}

func toAny(fields []string) []any {
	out := make([]any, len(fields))
	for i, field := range fields {
		out[i] = field
	}
	return out
}
