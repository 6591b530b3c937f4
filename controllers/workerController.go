package controllers

import (
	"net/http"

	"civicsync-admin/directory"

	"github.com/gin-gonic/gin"
)

// WorkerController serves the worker list, details and registration.
type WorkerController struct {
	workers *directory.WorkerDirectory
}

// NewWorkerController creates a WorkerController.
func NewWorkerController(workers *directory.WorkerDirectory) *WorkerController {
	return &WorkerController{workers: workers}
}

// GetWorkers lists workers. The directory is pulled from the store on first use and when
// refresh=true is passed.
func (wc *WorkerController) GetWorkers(c *gin.Context) {
	if c.Query("refresh") == "true" || wc.workers.Len() == 0 {
		ctx, cancel := requestContext(c)
		defer cancel()

		if err := wc.workers.Refresh(ctx); err != nil {
			respondError(c, err)
			return
		}
	}

	workers := wc.workers.Filtered(directory.WorkerFilter{
		Availability: c.Query("availability"),
		Location:     c.Query("location"),
		Department:   c.Query("department"),
	})

	c.JSON(http.StatusOK, gin.H{
		"workers":   workers,
		"total":     len(workers),
		"locations": wc.workers.Locations(),
	})
}

// GetWorker returns one worker, pulling the directory again when the id is not known yet.
func (wc *WorkerController) GetWorker(c *gin.Context) {
	id := c.Param("id")

	worker, ok := wc.workers.ByID(id)
	if !ok {
		ctx, cancel := requestContext(c)
		defer cancel()

		if err := wc.workers.Refresh(ctx); err != nil {
			respondError(c, err)
			return
		}
		worker, ok = wc.workers.ByID(id)
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Worker not found"})
		return
	}

	c.JSON(http.StatusOK, worker)
}

// CreateWorker registers a new worker profile.
func (wc *WorkerController) CreateWorker(c *gin.Context) {
	var form directory.WorkerForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	worker, err := wc.workers.RegisterWorker(ctx, form)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, worker)
}
