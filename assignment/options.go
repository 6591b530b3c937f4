package assignment

import (
	"time"

	"civicsync-admin/directory"
	"civicsync-admin/logging"
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithIssueDirectory sets the local issue read model patched after a successful Assign.
//
// Parameters:
//   - issues: IssueDirectory to patch; nil disables local patching
//
// Returns:
//   - Option: Functional option for NewCoordinator
func WithIssueDirectory(issues *directory.IssueDirectory) Option {
	return func(c *Coordinator) {
		c.issues = issues
	}
}

// WithClock overrides the clock used for assignedDate.
//
// Example:
//
//	fixed := time.Date(2024, 1, 21, 9, 0, 0, 0, time.UTC)
//	c := assignment.NewCoordinator(s, assignment.WithClock(func() time.Time { return fixed }))
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets a logger.
func WithLogger(logger logging.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}
