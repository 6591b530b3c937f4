package controllers

import (
	"net/http"

	"civicsync-admin/accounts"

	"github.com/gin-gonic/gin"
)

// DepartmentHeadController lets the admin manage department-head accounts.
type DepartmentHeadController struct {
	accounts *accounts.Service
}

// NewDepartmentHeadController creates a DepartmentHeadController.
func NewDepartmentHeadController(svc *accounts.Service) *DepartmentHeadController {
	return &DepartmentHeadController{accounts: svc}
}

// CreateDepartmentHead registers a department head.
func (dc *DepartmentHeadController) CreateDepartmentHead(c *gin.Context) {
	var input struct {
		Email      string `json:"email" binding:"required,email"`
		Password   string `json:"password" binding:"required,min=6"`
		Department string `json:"department" binding:"required"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	head, err := dc.accounts.CreateHead(ctx, input.Email, input.Password, input.Department)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, head)
}

// GetDepartmentHeads lists every department head.
func (dc *DepartmentHeadController) GetDepartmentHeads(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	heads, err := dc.accounts.Heads(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"departmentHeads": heads, "total": len(heads)})
}
