package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownStatus is returned for status values outside the canonical and legacy vocabularies.
var ErrUnknownStatus = errors.New("unknown issue status")

// IssueStatus enum
type IssueStatus string

const (
	StatusPending    IssueStatus = "Pending"
	StatusAssigned   IssueStatus = "Assigned"
	StatusInProgress IssueStatus = "In Progress"
	StatusResolved   IssueStatus = "Resolved"
)

// Statuses lists the canonical statuses in lifecycle order.
var Statuses = []IssueStatus{StatusPending, StatusAssigned, StatusInProgress, StatusResolved}

// statusAliases maps lower-cased spellings onto canonical statuses. The lower-case names
// new/pending/completed/reverted/manual come from an earlier dashboard iteration.
var statusAliases = map[string]IssueStatus{
	"pending":     StatusPending,
	"new":         StatusPending,
	"reverted":    StatusPending,
	"manual":      StatusPending,
	"assigned":    StatusAssigned,
	"in progress": StatusInProgress,
	"in-progress": StatusInProgress,
	"in_progress": StatusInProgress,
	"resolved":    StatusResolved,
	"completed":   StatusResolved,
}

// NormalizeStatus maps s onto the canonical vocabulary.
func NormalizeStatus(s string) (IssueStatus, error) {
	if status, ok := statusAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return status, nil
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

// IsCanonical reports whether s is spelled exactly like a canonical status.
func IsCanonical(s string) bool {
	for _, status := range Statuses {
		if string(status) == s {
			return true
		}
	}

	return false
}
