package handler

import "parkspot/internal/auth/models"

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func toUserResponse(c models.Claims) userResponse {
	return userResponse{ID: c.UserID, Email: c.Email}
}

type messageResponse struct {
	Message string `json:"message"`
}

type loginResponse struct {
	Message string       `json:"message"`
	User    userResponse `json:"user"`
}

// loginFailureResponse keeps the legacy login error shape clients depend on.
type loginFailureResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

type signupResponse struct {
	Message              string `json:"message"`
	UserID               string `json:"userId"`
	Email                string `json:"email"`
	RequiresConfirmation bool   `json:"requiresConfirmation"`
}

type oauthResponse struct {
	URL string `json:"url"`
}

// meResponse renders {"user": null} when User is nil.
type meResponse struct {
	User *userResponse `json:"user"`
}
