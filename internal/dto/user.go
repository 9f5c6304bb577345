package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/washpoint/carwash/internal/model"
)

type UserResponse struct {
	ID            uuid.UUID  `json:"id"`
	FirstName     string     `json:"first_name"`
	LastName      string     `json:"last_name"`
	Email         string     `json:"email"`
	Phone         string     `json:"phone,omitempty"`
	Role          string     `json:"role"`
	IsActive      bool       `json:"is_active"`
	EmailVerified bool       `json:"email_verified"`
	LastLogin     *time.Time `json:"last_login,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// NewUserResponse maps the credential aggregate onto the public shape.
// Hashes, token state and lockout counters never leave the service.
func NewUserResponse(u *model.User) UserResponse {
	return UserResponse{
		ID:            u.ID,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Email:         u.Email,
		Phone:         u.Phone,
		Role:          string(u.Role),
		IsActive:      u.IsActive,
		EmailVerified: u.EmailVerified,
		LastLogin:     u.LastLogin,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

type UpdateUserRequest struct {
	FirstName string `json:"first_name" binding:"omitempty,min=1,max=100"`
	LastName  string `json:"last_name" binding:"omitempty,min=1,max=100"`
	Phone     string `json:"phone" binding:"omitempty,min=10,max=20"`
}

type UpdateUserRoleRequest struct {
	Role string `json:"role" binding:"required,oneof=admin manager washer client"`
}

// UserFilter narrows GET /users
type UserFilter struct {
	Role string `form:"role" binding:"omitempty,oneof=admin manager washer client"`
}
