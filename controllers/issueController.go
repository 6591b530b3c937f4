package controllers

import (
	"net/http"
	"strconv"
	"time"

	"civicsync-admin/directory"
	"civicsync-admin/models"

	"github.com/gin-gonic/gin"
)

// IssueController serves the complaint list and status changes.
type IssueController struct {
	issues *directory.IssueDirectory
	now    func() time.Time
}

// NewIssueController creates an IssueController over the live issue directory.
func NewIssueController(issues *directory.IssueDirectory) *IssueController {
	return &IssueController{issues: issues, now: time.Now}
}

type issueView struct {
	models.Issue
	DisplayTitle  string `json:"displayTitle"`
	DeadlineLabel string `json:"deadlineLabel"`
}

func (ic *IssueController) view(issue models.Issue) issueView {
	return issueView{
		Issue:         issue,
		DisplayTitle:  issue.DisplayTitle(),
		DeadlineLabel: models.DeadlineLabel(issue.Deadline, ic.now()),
	}
}

// GetAllIssues lists issues with search, status and category filters and pagination.
func (ic *IssueController) GetAllIssues(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	issues, err := ic.issues.Search(directory.IssueFilter{
		Search:   c.Query("search"),
		Status:   c.Query("status"),
		Category: c.Query("category"),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	total := len(issues)
	start := min((page-1)*limit, total)
	end := min(start+limit, total)

	views := make([]issueView, 0, end-start)
	for _, issue := range issues[start:end] {
		views = append(views, ic.view(issue))
	}

	c.JSON(http.StatusOK, gin.H{
		"issues":      views,
		"totalIssues": total,
		"totalPages":  (total + limit - 1) / limit,
		"currentPage": page,
	})
}

// GetIssueStats returns the dashboard counters.
func (ic *IssueController) GetIssueStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"stats":      ic.issues.Stats(),
		"categories": ic.issues.Categories(),
	})
}

// GetIssue returns one issue from the live directory.
func (ic *IssueController) GetIssue(c *gin.Context) {
	issue, ok := ic.issues.ByID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Issue not found"})
		return
	}

	c.JSON(http.StatusOK, ic.view(issue))
}

// UpdateIssueStatus changes the status of an issue.
func (ic *IssueController) UpdateIssueStatus(c *gin.Context) {
	var input struct {
		Status string `json:"status" binding:"required"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	issue, err := ic.issues.UpdateStatus(ctx, c.Param("id"), input.Status)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, ic.view(issue))
}
