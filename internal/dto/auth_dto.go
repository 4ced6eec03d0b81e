package dto

import "github.com/google/uuid"

type LoginRequest struct {
	LoginOrEmail string `json:"loginOrEmail"`
	Password     string `json:"password"`
}

type RegistrationRequest struct {
	Login    string `json:"login"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ConfirmationRequest struct {
	Code string `json:"code"`
}

type EmailRequest struct {
	Email string `json:"email"`
}

type NewPasswordRequest struct {
	NewPassword  string `json:"newPassword"`
	RecoveryCode string `json:"recoveryCode"`
}

// TokenPair carries both halves of an issued pair inside the service
// layer; only the access token ever appears in a response body.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"-"`
}

type AccessTokenResponse struct {
	AccessToken string `json:"accessToken"`
}

type MeResponse struct {
	Email  string    `json:"email"`
	Login  string    `json:"login"`
	UserID uuid.UUID `json:"userId"`
}

type ErrorResponse struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	DB        string `json:"db"`
	Redis     string `json:"redis"`
}
