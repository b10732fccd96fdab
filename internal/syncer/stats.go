package syncer

import (
	"time"

	"github.com/taskdeck/taskdeck/internal/models"
)

// Stats are derived from the task collection and never mutated on their
// own: Total = Completed + Pending, and Overdue counts only pending tasks.
type Stats struct {
	Total     int
	Completed int
	Pending   int
	Overdue   int
}

func computeStats(tasks []models.Task, now time.Time) Stats {
	var stats Stats
	stats.Total = len(tasks)
	for _, t := range tasks {
		if t.IsComplete {
			stats.Completed++
			continue
		}
		stats.Pending++
		if t.Overdue(now) {
			stats.Overdue++
		}
	}
	return stats
}
