package directory

import (
	"math"

	"civicsync-admin/models"
)

// Stats summarizes the issue collection for the dashboard and reports.
type Stats struct {
	Total          int                        `json:"total"`
	ByStatus       map[models.IssueStatus]int `json:"byStatus"`
	ByCategory     map[string]int             `json:"byCategory"`
	ByPriority     map[models.Priority]int    `json:"byPriority"`
	Assigned       int                        `json:"assigned"`
	CompletionRate int                        `json:"completionRate"`
}

// Stats computes counts over the local issue list. CompletionRate is the rounded percentage
// of resolved issues.
func (d *IssueDirectory) Stats() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s := Stats{
		Total:      len(d.issues),
		ByStatus:   make(map[models.IssueStatus]int, len(models.Statuses)),
		ByCategory: make(map[string]int),
		ByPriority: make(map[models.Priority]int),
	}
	for _, status := range models.Statuses {
		s.ByStatus[status] = 0
	}

	for _, issue := range d.issues {
		s.ByStatus[issue.Status]++
		if issue.Category != "" {
			s.ByCategory[issue.Category]++
		}
		if issue.Priority != "" {
			s.ByPriority[issue.Priority]++
		}
		if issue.IsAssigned() {
			s.Assigned++
		}
	}

	if s.Total > 0 {
		s.CompletionRate = int(math.Round(float64(s.ByStatus[models.StatusResolved]) * 100 / float64(s.Total)))
	}

	return s
}
