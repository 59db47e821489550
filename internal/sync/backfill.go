package sync

import (
	"fmt"
	"time"

	"erp-sync-service/internal/entity"
)

// DateLayout is the ERP's date format for filters.
const DateLayout = "2006.01.02"

// Job is one sync request of a backfill or refresh run.
type Job struct {
	Kind   entity.Kind
	Filter entity.Filter
	// Chunk labels the job in summaries: "full" or "YYYY-MM".
	Chunk string
}

// MonthFilter covers the whole calendar month containing t.
func MonthFilter(t time.Time) entity.Filter {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	last := first.AddDate(0, 1, -1)
	return entity.Filter{
		StartDate: first.Format(DateLayout),
		EndDate:   last.Format(DateLayout),
	}
}

// PlanBackfill lists the jobs of a full load: one unfiltered job per snapshot
// entity, and one job per month from January of startYear through the month
// of now for dated entities.
func PlanBackfill(kinds []entity.Kind, startYear int, now time.Time) []Job {
	var jobs []Job
	for _, k := range kinds {
		if !k.Dated() {
			jobs = append(jobs, Job{Kind: k, Chunk: "full"})
			continue
		}
		for m := time.Date(startYear, time.January, 1, 0, 0, 0, 0, now.Location()); !m.After(now); m = m.AddDate(0, 1, 0) {
			jobs = append(jobs, Job{
				Kind:   k,
				Filter: MonthFilter(m),
				Chunk:  fmt.Sprintf("%d-%02d", m.Year(), int(m.Month())),
			})
		}
	}
	return jobs
}

// PlanRefresh lists the periodic refresh: inventory plus the current month
// of sales and movements.
func PlanRefresh(now time.Time) []Job {
	month := MonthFilter(now)
	chunk := fmt.Sprintf("%d-%02d", now.Year(), int(now.Month()))
	return []Job{
		{Kind: entity.Inventory, Chunk: "full"},
		{Kind: entity.Sales, Filter: month, Chunk: chunk},
		{Kind: entity.Movement, Filter: month, Chunk: chunk},
	}
}

// ChunkResult is the outcome of one job.
type ChunkResult struct {
	Chunk string `json:"chunk"`
	Outcome
}

// RunSummary aggregates a backfill or refresh run.
type RunSummary struct {
	Status       string        `json:"status"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   *time.Time    `json:"finished_at,omitempty"`
	TotalChunks  int           `json:"total_chunks"`
	TotalRecords int64         `json:"total_records"`
	Errors       int           `json:"errors"`
	Details      []ChunkResult `json:"details"`
}

func summarize(started time.Time, results []ChunkResult) RunSummary {
	s := RunSummary{
		Status:      "completed",
		StartedAt:   started,
		TotalChunks: len(results),
		Details:     results,
	}
	for _, r := range results {
		s.TotalRecords += r.Records
		if r.Failed() {
			s.Errors++
		}
	}
	return s
}
