package assignment

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"civicsync-admin/models"
)

func TestStateOf(t *testing.T) {
	tests := []struct {
		name   string
		issue  models.Issue
		worker models.Worker
		want   PairState
	}{
		{"both empty", models.Issue{ID: "I"}, models.Worker{ID: "W"}, Unclaimed},
		{"both point", models.Issue{ID: "I", AssignedTo: "W"}, models.Worker{ID: "W", AssignedIssueID: "I"}, Claimed},
		{"issue only", models.Issue{ID: "I", AssignedTo: "W"}, models.Worker{ID: "W"}, Inconsistent},
		{"worker only", models.Issue{ID: "I"}, models.Worker{ID: "W", AssignedIssueID: "I"}, Inconsistent},
		{"issue points back, worker elsewhere", models.Issue{ID: "I", AssignedTo: "W"}, models.Worker{ID: "W", AssignedIssueID: "J"}, Inconsistent},
		{"both elsewhere", models.Issue{ID: "I", AssignedTo: "V"}, models.Worker{ID: "W", AssignedIssueID: "J"}, Unrelated},
		{"worker elsewhere", models.Issue{ID: "I"}, models.Worker{ID: "W", AssignedIssueID: "J"}, Unrelated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StateOf(tt.issue, tt.worker))
		})
	}
}
