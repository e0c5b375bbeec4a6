package aggregate

import (
	"github.com/aaronfeingold/invoice-track/internal/domain"
)

// BatchProgress is the derived view over one submission's jobs.
type BatchProgress struct {
	Progress    float64 `json:"progress"`
	AllComplete bool    `json:"all_complete"`
	Found       int     `json:"found"`
	Missing     int     `json:"missing"`
}

// ForBatch computes the arithmetic mean progress across the given job
// IDs and whether every one of them is terminal. IDs no longer tracked
// (cleared locally) are skipped from the mean and counted as missing;
// an empty or fully-missing set is never "all complete".
func ForBatch(records []domain.JobRecord, jobIDs []string) BatchProgress {
	byID := make(map[string]domain.JobRecord, len(records))
	for _, record := range records {
		byID[record.ID] = record
	}

	var result BatchProgress
	total := 0
	allTerminal := true
	for _, jobID := range jobIDs {
		record, ok := byID[jobID]
		if !ok {
			result.Missing++
			continue
		}
		result.Found++
		total += record.Progress
		if !record.Status.Terminal() {
			allTerminal = false
		}
	}

	if result.Found == 0 {
		return result
	}
	result.Progress = float64(total) / float64(result.Found)
	result.AllComplete = allTerminal
	return result
}

// StatusCounts tallies jobs by status for dashboard summary tiles.
func StatusCounts(records []domain.JobRecord) map[domain.JobStatus]int {
	counts := map[domain.JobStatus]int{
		domain.JobStatusPending:    0,
		domain.JobStatusProcessing: 0,
		domain.JobStatusCompleted:  0,
		domain.JobStatusFailed:     0,
	}
	for _, record := range records {
		counts[record.Status]++
	}
	return counts
}
