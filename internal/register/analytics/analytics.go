// Package analytics derives reporting values from raw attendance marks.
// Everything here is a pure function over snapshots: no I/O, no mutation
// of inputs, deterministic output for a given input.
package analytics

import (
	"math"
	"sort"

	"rollbook/internal/register/models"
)

// Enrich computes attendance percentage, rank and cohort for each student.
//
// Percentages divide by the fixed term length, so a student with missing
// marks is scored as absent for those weeks. Ranking is competition style
// over the percent-descending order: tied percentages share a rank, and
// the next distinct percentage takes its 1-based position in the sorted
// sequence ([100, 80, 80, 50] ranks as [1, 2, 2, 4]).
//
// The returned slice preserves display order: serial ascending when every
// student carries one, otherwise the input order. Rank travels with the
// record either way.
func Enrich(students []models.Student) []models.EnrichedRecord {
	records := make([]models.EnrichedRecord, len(students))
	for i, st := range students {
		percent := Percent(st.PresentCount())
		records[i] = models.EnrichedRecord{
			Student:           st,
			AttendancePercent: percent,
			Cohort:            Classify(percent),
		}
	}

	// Rank over a working copy sorted by percent descending, stable on
	// ties so equal scores keep their relative input order.
	working := make([]*models.EnrichedRecord, len(records))
	for i := range records {
		working[i] = &records[i]
	}
	sort.SliceStable(working, func(i, j int) bool {
		return working[i].AttendancePercent > working[j].AttendancePercent
	})
	rank := 1
	prev := -1
	for i, rec := range working {
		if rec.AttendancePercent != prev {
			rank = i + 1
			prev = rec.AttendancePercent
		}
		rec.Rank = rank
	}

	if allSerialed(records) {
		sort.SliceStable(records, func(i, j int) bool {
			return *records[i].Serial < *records[j].Serial
		})
	}
	return records
}

// Percent converts a present count to the rounded 0-100 percentage.
func Percent(presentCount int) int {
	return int(math.Round(float64(presentCount) * 100 / models.TermWeeks))
}

// Classify places a percentage into its cohort band. Bands are inclusive
// on the lower bound and exclusive on the upper, except the top band
// which includes 100.
func Classify(percent int) models.Cohort {
	switch {
	case percent < 50:
		return models.CohortCritical
	case percent < 70:
		return models.CohortAtRisk
	case percent < 90:
		return models.CohortSatisfactory
	default:
		return models.CohortExcellent
	}
}

// Distribution counts records per cohort band. Every band is present in
// the result, at zero when empty, so an empty roster never surprises a
// report.
func Distribution(records []models.EnrichedRecord) map[models.Cohort]int {
	dist := make(map[models.Cohort]int, len(models.Cohorts))
	for _, band := range models.Cohorts {
		dist[band] = 0
	}
	for _, rec := range records {
		dist[Classify(rec.AttendancePercent)]++
	}
	return dist
}

// Highlight holds the cohort-highlight extremes of a result set.
type Highlight struct {
	Top    []models.EnrichedRecord
	Bottom []models.EnrichedRecord
}

// TopBottom returns the best and worst n records by attendance
// percentage, ties broken by input order. n larger than the set returns
// everything.
func TopBottom(records []models.EnrichedRecord, n int) Highlight {
	if n < 0 {
		n = 0
	}
	if n > len(records) {
		n = len(records)
	}

	top := make([]models.EnrichedRecord, len(records))
	copy(top, records)
	sort.SliceStable(top, func(i, j int) bool {
		return top[i].AttendancePercent > top[j].AttendancePercent
	})

	bottom := make([]models.EnrichedRecord, len(records))
	copy(bottom, records)
	sort.SliceStable(bottom, func(i, j int) bool {
		return bottom[i].AttendancePercent < bottom[j].AttendancePercent
	})

	return Highlight{Top: top[:n], Bottom: bottom[:n]}
}

// Average returns the mean attendance percentage, 0 for an empty set.
func Average(records []models.EnrichedRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	sum := 0
	for _, rec := range records {
		sum += rec.AttendancePercent
	}
	return float64(sum) / float64(len(records))
}

func allSerialed(records []models.EnrichedRecord) bool {
	if len(records) == 0 {
		return false
	}
	for _, rec := range records {
		if rec.Serial == nil {
			return false
		}
	}
	return true
}
