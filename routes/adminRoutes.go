package routes

import (
	"github.com/gin-gonic/gin"
)

// AssignmentRoutes sets up the pair-state and reconcile routes
func AssignmentRoutes(r *gin.Engine, h Handlers) {
	assignments := r.Group("/api/assignments", h.Authenticate)
	{
		assignments.GET("/state", h.Assignments.GetPairState)
		assignments.POST("/reconcile", h.AdminOnly, h.Assignments.Reconcile)
	}
}

// DepartmentHeadRoutes sets up the admin-only department head routes
func DepartmentHeadRoutes(r *gin.Engine, h Handlers) {
	heads := r.Group("/api/department-heads", h.Authenticate, h.AdminOnly)
	{
		heads.GET("", h.DepartmentHeads.GetDepartmentHeads)
		heads.POST("", h.DepartmentHeads.CreateDepartmentHead)
	}
}
