package controllers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"civicsync-admin/accounts"
	"civicsync-admin/assignment"
	"civicsync-admin/directory"
	"civicsync-admin/models"
	"civicsync-admin/store"

	"github.com/gin-gonic/gin"
)

// requestTimeout bounds every store round trip made by a handler.
const requestTimeout = 10 * time.Second

func requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), requestTimeout)
}

// respondError maps domain errors onto status codes and a {"error": ...} body.
func respondError(c *gin.Context, err error) {
	if kind, ok := assignment.KindOf(err); ok {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "kind": kind})
		return
	}

	switch {
	case errors.Is(err, models.ErrUnknownStatus),
		errors.Is(err, directory.ErrInvalidWorker),
		errors.Is(err, accounts.ErrInvalidAccount),
		errors.Is(err, assignment.ErrUnknownPolicy):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, accounts.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
	case errors.Is(err, store.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, accounts.ErrEmailTaken), errors.Is(err, store.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrStoreUnavailable), errors.Is(err, context.DeadlineExceeded):
		log.Println("Store unavailable:", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Store unavailable, please retry"})
	default:
		log.Println("Unhandled error:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong"})
	}
}
