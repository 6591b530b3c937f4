package models

import "strings"

// Availability of a worker.
type Availability string

const (
	Available Availability = "Available"
	Busy      Availability = "Busy"
)

// AssignedTask is an entry of the legacy per-worker task list.
type AssignedTask struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

// Worker is a field worker decoded from workers/{id}
type Worker struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	Phone             string         `json:"phone"`
	Department        string         `json:"department"`
	Location          string         `json:"location,omitempty"`
	Pincode           string         `json:"pincode"`
	Availability      Availability   `json:"availability"`
	AssignedIssueID   string         `json:"assignedIssueId"`
	CurrentTask       string         `json:"currentTask,omitempty"`
	AssignedTasks     []AssignedTask `json:"assignedTasks,omitempty"`
	DepartmentPincode string         `json:"department_pincode,omitempty"`
}

// Stored field names of a worker record.
const (
	FieldAssignedIssueID   = "assignedIssueId"
	FieldDepartmentPincode = "department_pincode"
)

// IsAssigned reports whether the worker currently points at an issue.
func (w Worker) IsAssigned() bool {
	return w.AssignedIssueID != ""
}

// DecodeWorker builds a Worker from a raw store record. Availability is derived from the
// assignment pointer unless the record still carries a legacy availability value.
func DecodeWorker(id string, raw any) Worker {
	rec, _ := raw.(map[string]any)

	w := Worker{
		ID:                id,
		Name:              stringField(rec, "name"),
		Phone:             stringField(rec, "phone"),
		Department:        stringField(rec, "department"),
		Location:          stringField(rec, "location"),
		Pincode:           stringField(rec, "pincode"),
		AssignedIssueID:   stringField(rec, FieldAssignedIssueID),
		CurrentTask:       stringField(rec, "currentTask"),
		DepartmentPincode: stringField(rec, FieldDepartmentPincode),
	}

	switch Availability(strings.TrimSpace(stringField(rec, "availability"))) {
	case Available:
		w.Availability = Available
	case Busy:
		w.Availability = Busy
	default:
		if w.IsAssigned() {
			w.Availability = Busy
		} else {
			w.Availability = Available
		}
	}

	if tasks, ok := rec["assignedTasks"].([]any); ok {
		for _, t := range tasks {
			task, ok := t.(map[string]any)
			if !ok {
				continue
			}
			w.AssignedTasks = append(w.AssignedTasks, AssignedTask{
				ID:     stringField(task, "id"),
				Title:  stringField(task, "title"),
				Status: stringField(task, "status"),
			})
		}
	}

	return w
}

// WorkerRecord is the record written when a worker is registered.
func WorkerRecord(w Worker) map[string]any {
	rec := map[string]any{
		"name":                 w.Name,
		"phone":                w.Phone,
		"department":           w.Department,
		"pincode":              w.Pincode,
		"workerId":             w.ID,
		FieldDepartmentPincode: w.Department + "_" + w.Pincode,
		FieldAssignedIssueID:   w.AssignedIssueID,
	}
	if w.Location != "" {
		rec["location"] = w.Location
	}

	return rec
}
