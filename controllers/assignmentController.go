package controllers

import (
	"errors"
	"net/http"

	"civicsync-admin/assignment"
	"civicsync-admin/logging"
	"civicsync-admin/store"

	"github.com/gin-gonic/gin"
)

// AssignmentController exposes assign, unassign, pair state and reconciliation.
type AssignmentController struct {
	coordinator *assignment.Coordinator
	reconciler  *assignment.Reconciler
	store       store.Store
	logger      logging.Logger
}

// NewAssignmentController creates an AssignmentController. The reconciler's policy is used
// unless a request names another one.
func NewAssignmentController(coordinator *assignment.Coordinator, reconciler *assignment.Reconciler, s store.Store, logger logging.Logger) *AssignmentController {
	if logger == nil {
		logger = logging.NewNop()
	}

	return &AssignmentController{coordinator: coordinator, reconciler: reconciler, store: s, logger: logger}
}

// AssignIssue assigns the issue in the path to the worker in the body.
func (ac *AssignmentController) AssignIssue(c *gin.Context) {
	var worker assignment.WorkerRef
	if err := c.ShouldBindJSON(&worker); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	result, err := ac.coordinator.Assign(ctx, c.Param("id"), worker)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// UnassignWorker releases the worker in the path from whatever it holds.
func (ac *AssignmentController) UnassignWorker(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	release, err := ac.coordinator.Unassign(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, release)
}

// GetPairState reports the derived state of an issue/worker pair.
func (ac *AssignmentController) GetPairState(c *gin.Context) {
	issueID, workerID := c.Query("issueId"), c.Query("workerId")
	if issueID == "" || workerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "issueId and workerId are required"})
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	state, err := ac.coordinator.Check(ctx, issueID, workerID)
	if errors.Is(err, assignment.ErrInconsistentAssignmentState) {
		c.JSON(http.StatusConflict, gin.H{
			"error": err.Error(),
			"kind":  assignment.KindInconsistent,
			"state": state,
		})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"issueId": issueID, "workerId": workerID, "state": state})
}

// Reconcile runs one reconcile pass. ?policy= overrides the configured policy.
func (ac *AssignmentController) Reconcile(c *gin.Context) {
	reconciler := ac.reconciler
	if raw := c.Query("policy"); raw != "" {
		policy, err := assignment.ParsePolicy(raw)
		if err != nil {
			respondError(c, err)
			return
		}
		reconciler = assignment.NewReconciler(ac.store, policy, ac.logger)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	report, err := reconciler.Run(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"report": report, "consistent": report.Consistent()})
}
