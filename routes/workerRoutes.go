package routes

import (
	"github.com/gin-gonic/gin"
)

// WorkerRoutes sets up the worker routes
func WorkerRoutes(r *gin.Engine, h Handlers) {
	worker := r.Group("/api/workers", h.Authenticate)
	{
		worker.GET("", h.Workers.GetWorkers)
		worker.POST("", h.Workers.CreateWorker)
		worker.GET("/:id", h.Workers.GetWorker)
		worker.POST("/:id/unassign", h.AssignLimit, h.Assignments.UnassignWorker)
	}
}
