package authapi

import "time"

type registerRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Username string `json:"username" validate:"required,notblank,max=100"`
	Password string `json:"password" validate:"required"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
}

type refreshResponse struct {
	Access          string    `json:"access"`
	AccessExpiresAt time.Time `json:"access_expires_at"`
	Refresh         string    `json:"refresh,omitempty"`
}

type meResponse struct {
	Email    string `json:"email"`
	Username string `json:"username"`
}
