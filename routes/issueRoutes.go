package routes

import (
	"github.com/gin-gonic/gin"
)

// IssueRoutes sets up the issue routes
func IssueRoutes(r *gin.Engine, h Handlers) {
	issue := r.Group("/api/issues", h.Authenticate)
	{
		issue.GET("", h.Issues.GetAllIssues)
		issue.GET("/stats", h.Issues.GetIssueStats)
		issue.GET("/:id", h.Issues.GetIssue)
		issue.PATCH("/:id/status", h.Issues.UpdateIssueStatus)
		issue.POST("/:id/assign", h.AssignLimit, h.Assignments.AssignIssue)
	}
}
