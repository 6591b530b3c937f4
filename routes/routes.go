package routes

import (
	"net/http"

	"civicsync-admin/controllers"

	"github.com/gin-gonic/gin"
)

// Handlers bundles the controllers and middleware the route groups are built from.
type Handlers struct {
	Auth            *controllers.AuthController
	Issues          *controllers.IssueController
	Workers         *controllers.WorkerController
	Assignments     *controllers.AssignmentController
	DepartmentHeads *controllers.DepartmentHeadController

	// Authenticate verifies the session token.
	Authenticate gin.HandlerFunc
	// AdminOnly rejects non-admin sessions.
	AdminOnly gin.HandlerFunc
	// AssignLimit rate limits assignment changes.
	AssignLimit gin.HandlerFunc
}

// Register mounts every route group on r.
func Register(r *gin.Engine, h Handlers) {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	AuthRoutes(r, h)
	IssueRoutes(r, h)
	WorkerRoutes(r, h)
	AssignmentRoutes(r, h)
	DepartmentHeadRoutes(r, h)
}
