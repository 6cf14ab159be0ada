package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/tudu/server/internal/auth"
	"github.com/tudu/server/internal/middleware"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService *auth.AuthService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *auth.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

type signupRequestOTPRequest struct {
	Email string `json:"email"`
}

type signupVerifyRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Mobile   string `json:"mobile"`
	Password string `json:"password"`
	OTP      string `json:"otp"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type forgotPasswordVerifyRequest struct {
	Email       string `json:"email"`
	OTP         string `json:"otp"`
	NewPassword string `json:"new_password"`
}

type deviceTokenRequest struct {
	DeviceToken string `json:"device_token"`
}

type sessionResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

type userResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// HandleSignupRequestOTP handles POST /auth/signup/request-otp
func (h *AuthHandler) HandleSignupRequestOTP(w http.ResponseWriter, r *http.Request) {
	var req signupRequestOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		respondWithError(w, http.StatusBadRequest, "email is required")
		return
	}

	if err := h.authService.RequestSignupOTP(r.Context(), req.Email); err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "otp_sent"})
}

// HandleSignupVerify handles POST /auth/signup/verify
func (h *AuthHandler) HandleSignupVerify(w http.ResponseWriter, r *http.Request) {
	var req signupVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.OTP = strings.TrimSpace(req.OTP)
	if req.Email == "" || req.OTP == "" || req.Name == "" || req.Password == "" {
		respondWithError(w, http.StatusBadRequest, "name, email, password and otp are required")
		return
	}

	user, token, err := h.authService.CompleteSignup(r.Context(), auth.SignupParams{
		Name:     req.Name,
		Email:    req.Email,
		Mobile:   req.Mobile,
		Password: req.Password,
	}, req.OTP)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, sessionResponse{
		Token: token,
		User:  userResponse{ID: user.ID.String(), Name: user.Name, Email: user.Email},
	})
}

// HandleLogin handles POST /auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		respondWithError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, token, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, sessionResponse{
		Token: token,
		User:  userResponse{ID: user.ID.String(), Name: user.Name, Email: user.Email},
	})
}

// HandleForgotPasswordRequestOTP handles POST /auth/forgot-password/request-otp
func (h *AuthHandler) HandleForgotPasswordRequestOTP(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		respondWithError(w, http.StatusBadRequest, "email is required")
		return
	}

	if err := h.authService.RequestPasswordResetOTP(r.Context(), req.Email); err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "otp_sent"})
}

// HandleForgotPasswordVerify handles POST /auth/forgot-password/verify
func (h *AuthHandler) HandleForgotPasswordVerify(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.OTP = strings.TrimSpace(req.OTP)
	if req.Email == "" || req.OTP == "" || req.NewPassword == "" {
		respondWithError(w, http.StatusBadRequest, "email, otp and new_password are required")
		return
	}

	if err := h.authService.CompletePasswordReset(r.Context(), req.Email, req.OTP, req.NewPassword); err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "password reset successful"})
}

// HandleRegisterDevice handles PUT /me/device-token (protected)
func (h *AuthHandler) HandleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok || user == nil {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req deviceTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.DeviceToken = strings.TrimSpace(req.DeviceToken)

	if err := h.authService.RegisterDevice(r.Context(), user.ID, req.DeviceToken); err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "device registered"})
}

// HandleMe handles GET /me (protected)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok || user == nil {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	respondWithJSON(w, http.StatusOK, userResponse{
		ID:    user.ID.String(),
		Name:  user.Name,
		Email: user.Email,
	})
}
