package handlers

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/tudu/server/pkg/errors"
)

func respondWithJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, map[string]string{"error": message})
}

// respondWithAppError maps typed domain outcomes onto HTTP statuses in one
// place; anything untyped is a 500 with a generic body.
func respondWithAppError(w http.ResponseWriter, err error) {
	var appErr *apperrors.AppError
	if !apperrors.As(err, &appErr) {
		respondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	status := http.StatusInternalServerError
	switch appErr.Code {
	case apperrors.CodeInvalidArgument, apperrors.CodeFailedPrecondition:
		status = http.StatusBadRequest
	case apperrors.CodeNotFound:
		status = http.StatusNotFound
	case apperrors.CodeAlreadyExists:
		status = http.StatusConflict
	case apperrors.CodeUnauthenticated:
		status = http.StatusUnauthorized
	case apperrors.CodeUnavailable:
		status = http.StatusBadGateway
	}
	respondWithError(w, status, appErr.Message)
}
