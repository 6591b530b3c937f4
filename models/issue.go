package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"civicsync-admin/store"
)

// Priority enum
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Issue represents a civic issue reported by a citizen, decoded from complaints/{id}
type Issue struct {
	ID                       string      `json:"id"`
	Title                    string      `json:"title,omitempty"`
	Description              string      `json:"description"`
	Category                 string      `json:"category"`
	Subcategory              string      `json:"subcategory,omitempty"`
	Priority                 Priority    `json:"priority,omitempty"`
	Status                   IssueStatus `json:"status"`
	LegacyStatus             string      `json:"legacyStatus,omitempty"`
	Location                 string      `json:"location"`
	GPS                      string      `json:"gps,omitempty"`
	Coordinates              [2]float64  `json:"coordinates"`
	DateReported             *time.Time  `json:"dateReported,omitempty"`
	Deadline                 *time.Time  `json:"deadline,omitempty"`
	Photos                   []string    `json:"photos"`
	Audio                    []string    `json:"audio"`
	AssignedTo               string      `json:"assignedTo"`
	AssignedDate             *time.Time  `json:"assignedDate,omitempty"`
	PreviouslyAssignedWorker string      `json:"previouslyAssignedWorker,omitempty"`
}

// Stored field names of an issue record.
const (
	FieldStatus                   = "status"
	FieldAssignedTo               = "assignedTo"
	FieldAssignedDate             = "assignedDate"
	FieldPreviouslyAssignedWorker = "previouslyAssignedWorker"
)

// DisplayTitle returns the stored title, or the issue type derived from the id prefix.
func (i Issue) DisplayTitle() string {
	if strings.TrimSpace(i.Title) != "" {
		return i.Title
	}

	return IssueTypeFromID(i.ID)
}

// IsAssigned reports whether the issue currently points at a worker.
func (i Issue) IsAssigned() bool {
	return i.AssignedTo != ""
}

// DecodeIssue builds an Issue from a raw store record. It never fails: malformed or missing
// fields fall back to their zero value, GPS to (0,0) and unknown statuses to Pending.
func DecodeIssue(id string, raw any) Issue {
	rec, _ := raw.(map[string]any)

	issue := Issue{
		ID:                       id,
		Title:                    stringField(rec, "title"),
		Description:              stringField(rec, "description"),
		Category:                 stringField(rec, "category"),
		Subcategory:              stringField(rec, "subcategory"),
		Priority:                 parsePriority(stringField(rec, "priority")),
		Location:                 stringField(rec, "location"),
		GPS:                      stringField(rec, "gps"),
		Photos:                   FlattenMedia(rec["photos"]),
		Audio:                    FlattenMedia(rec["audio"]),
		AssignedTo:               stringField(rec, FieldAssignedTo),
		PreviouslyAssignedWorker: stringField(rec, FieldPreviouslyAssignedWorker),
	}
	issue.Coordinates = ParseGPS(issue.GPS)

	rawStatus := stringField(rec, FieldStatus)
	status, err := NormalizeStatus(rawStatus)
	if err != nil {
		status = StatusPending
	}
	issue.Status = status
	if rawStatus != "" && rawStatus != string(status) {
		issue.LegacyStatus = rawStatus
	}

	if t, ok := ParseTime(rec["dateReported"]); ok {
		issue.DateReported = &t
	}
	if t, ok := ParseTime(rec["deadline"]); ok {
		issue.Deadline = &t
	}
	if t, ok := ParseTime(rec[FieldAssignedDate]); ok {
		issue.AssignedDate = &t
	}

	return issue
}

func parsePriority(s string) Priority {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return p
	default:
		return ""
	}
}

// ParseGPS parses a "lat, lng" string. Anything that is not two numbers yields (0,0).
func ParseGPS(s string) [2]float64 {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return [2]float64{}
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return [2]float64{}
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return [2]float64{}
	}
	if !inRange(lat, 90) || !inRange(lng, 180) {
		return [2]float64{}
	}

	return [2]float64{lat, lng}
}

// inRange rejects NaN and infinities along with out-of-range degrees.
func inRange(deg, limit float64) bool {
	return !math.IsNaN(deg) && !math.IsInf(deg, 0) && deg >= -limit && deg <= limit
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"Mon Jan 02 2006 15:04:05 GMT-0700",
	"Mon Jan 02 2006",
	time.RFC1123Z,
	time.RFC1123,
}

// ParseTime accepts the date encodings found in stored records: ISO-8601 variants, plain
// dates, browser Date strings and epoch milliseconds (as a number or a numeric string).
func ParseTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case float64:
		return time.UnixMilli(int64(val)).UTC(), true
	case int64:
		return time.UnixMilli(val).UTC(), true
	case time.Time:
		return val, true
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return time.Time{}, false
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC(), true
		}
		// Browser Date strings end with a zone name in parentheses.
		if idx := strings.Index(s, " ("); idx > 0 {
			s = s[:idx]
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
	}

	return time.Time{}, false
}

// FlattenMedia turns a stored media field into an ordered list of URLs. Maps are ordered
// by key the way the store orders children; empty entries are dropped.
func FlattenMedia(v any) []string {
	out := []string{}
	switch val := v.(type) {
	case string:
		if strings.TrimSpace(val) != "" {
			out = append(out, val)
		}
	case []any:
		for _, item := range val {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
	case map[string]any:
		for _, k := range store.SortedKeys(val) {
			if s, ok := val[k].(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
	}

	return out
}

// DeadlineLabel renders the time left until deadline the way the issue list shows it.
func DeadlineLabel(deadline *time.Time, now time.Time) string {
	if deadline == nil {
		return "No deadline"
	}

	const day = 24 * time.Hour
	diff := deadline.Sub(now)
	days := int64(diff / day)
	if diff%day > 0 {
		days++
	}

	switch {
	case days < 0:
		return fmt.Sprintf("%d days overdue", -days)
	case days == 0:
		return "Due today"
	case days == 1:
		return "Due tomorrow"
	default:
		return fmt.Sprintf("%d days remaining", days)
	}
}

func stringField(rec map[string]any, key string) string {
	switch v := rec[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}
