package types

import (
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var (
	hasDigit = regexp.MustCompile(`\d`)
	hasUpper = regexp.MustCompile(`[A-Z]`)
)

// NewValidator returns a validator with the project's custom tags registered.
// "password" requires at least one digit and one uppercase letter.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return hasDigit.MatchString(s) && hasUpper.MatchString(s)
	})
	return v
}

// RegisterRequest represents the request to create a new account.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,password"`
}

// LoginRequest represents the login request.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// BookmarkRequest toggles a bookmark on a stored record.
type BookmarkRequest struct {
	ID   uuid.UUID `json:"id" validate:"required"`
	Type string    `json:"type" validate:"required,oneof=bill order regulation proposed"`
}

// SummarizeRequest asks for a summary of a stored record or of free text.
type SummarizeRequest struct {
	RecordID *uuid.UUID `json:"record_id,omitempty" validate:"required_without=Prompt"`
	Type     string     `json:"type,omitempty" validate:"required_with=RecordID"`
	Prompt   string     `json:"prompt,omitempty" validate:"required_without=RecordID,max=20000"`
}

// User is a registered account.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Never serialize to JSON
	CreatedAt    time.Time `json:"created_at"`
	Bookmarks    Bookmarks `json:"bookmarks"`
}

// LoginResponse represents the login/register response with user data and authentication token.
type LoginResponse struct {
	User  *User  `json:"user"`
	Token string `json:"token"`
}

// Validate validates the RegisterRequest.
func (r *RegisterRequest) Validate() error {
	return NewValidator().Struct(r)
}

// Validate validates the LoginRequest.
func (r *LoginRequest) Validate() error {
	return NewValidator().Struct(r)
}
