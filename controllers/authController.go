package controllers

import (
	"log"
	"net/http"
	"time"

	"civicsync-admin/accounts"
	"civicsync-admin/middlewares"
	authUtils "civicsync-admin/utils"

	"github.com/gin-gonic/gin"
)

// AuthController handles admin and department-head sessions.
type AuthController struct {
	accounts   *accounts.Service
	secret     string
	ttl        time.Duration
	production bool
}

// NewAuthController creates an AuthController. Tokens are signed with secret and live for ttl.
func NewAuthController(svc *accounts.Service, secret string, ttl time.Duration, production bool) *AuthController {
	return &AuthController{accounts: svc, secret: secret, ttl: ttl, production: production}
}

// Login authenticates a user and sets the auth_token cookie.
func (a *AuthController) Login(c *gin.Context) {
	var input struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	principal, err := a.accounts.Login(ctx, input.Email, input.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	token, err := authUtils.GenerateAndSetToken(a.secret, a.ttl, authUtils.SessionClaims{
		UserID:     principal.ID,
		Email:      principal.Email,
		Role:       string(principal.Role),
		Department: principal.Department,
	})
	if err != nil {
		log.Println("Error generating token:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong"})
		return
	}

	cookie := &http.Cookie{
		Name:     middlewares.AuthCookie,
		Value:    token,
		MaxAge:   int(a.ttl.Seconds()),
		Path:     "/",
		Secure:   a.production, // false for HTTP (dev), true for HTTPS (prod)
		HttpOnly: true,
		SameSite: http.SameSiteNoneMode,
	}
	if !a.production {
		cookie.SameSite = http.SameSiteLaxMode
	}
	http.SetCookie(c.Writer, cookie)

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user":  principal,
	})
}

// Me returns the claims of the current session.
func (a *AuthController) Me(c *gin.Context) {
	c.JSON(http.StatusOK, accounts.Principal{
		ID:         c.GetString(middlewares.ContextUserID),
		Email:      c.GetString(middlewares.ContextEmail),
		Role:       accounts.Role(c.GetString(middlewares.ContextRole)),
		Department: c.GetString(middlewares.ContextDepartment),
	})
}

// Logout clears the auth_token cookie.
func (a *AuthController) Logout(c *gin.Context) {
	c.SetCookie(middlewares.AuthCookie, "", -1, "/", "", a.production, true)
	c.JSON(http.StatusOK, gin.H{
		"message": "Logged out successfully",
	})
}
