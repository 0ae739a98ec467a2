package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &AuthHandler{svc: svc}
	r.POST("/auth/login", h.Login)
	r.POST("/auth/register", h.Register)
	r.POST("/auth/logout", h.Logout)
}

// RegisterProtectedRoutes は認証必須グループに登録する。
// DELETE は更新系なので librarian ロールのみ通る。
func RegisterProtectedRoutes(r gin.IRoutes, svc *Service) {
	h := &AuthHandler{svc: svc}
	r.DELETE("/auth/accounts/:email", h.DeleteAccount)
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	token, sess, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "email or password is incorrect"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":   token,
		"role":    sess.Role,
		"user_id": sess.UserID,
		"message": "Login successful",
	})
}

type RegisterRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role" binding:"required"` // "librarian" | "student"
	Name     string `json:"name"`

	// student のみ
	StudentID string `json:"student_id,omitempty"`
	Contact   string `json:"contact,omitempty"`
	Year      int    `json:"year,omitempty"`
	DeptID    string `json:"dept_id,omitempty"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	var err error
	switch req.Role {
	case RoleLibrarian:
		err = h.svc.RegisterLibrarian(c.Request.Context(), req.Email, req.Password, req.Name)
	case RoleStudent:
		err = h.svc.RegisterStudent(c.Request.Context(), req.Password, StudentSignup{
			StudentID: req.StudentID,
			Name:      req.Name,
			Email:     req.Email,
			Contact:   req.Contact,
			Year:      req.Year,
			DeptID:    req.DeptID,
		})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "role must be librarian or student"})
		return
	}

	if err != nil {
		switch err {
		case ErrAlreadyExists:
			c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
		case ErrInvalidSignup:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signup details"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "register failed"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "registered"})
}

// DeleteAccount removes the login account. The profile row (students /
// librarians) stays; only the credential is revoked.
func (h *AuthHandler) DeleteAccount(c *gin.Context) {
	email := c.Param("email")
	if err := h.svc.DeleteAccount(c.Request.Context(), email); err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "account deleted"})
}

// Logout is stateless on the server side: the client discards the token.
// The endpoint exists so the SPA has an explicit sign-out call target.
func (h *AuthHandler) Logout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "signed out"})
}
