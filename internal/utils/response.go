package utils

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ms-boost/internal/apperror"
	"ms-boost/internal/logger"
)

type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func SuccessResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	}
}

func ErrorResponse(message, code string) APIResponse {
	return APIResponse{
		Success:   false,
		Message:   message,
		Error:     code,
		Timestamp: time.Now(),
	}
}

func WriteJSON(w http.ResponseWriter, log *logger.Logger, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		// Headers are gone at this point; nothing left to tell the client.
		log.Error("API", fmt.Sprintf("Error encoding response: %v", err))
	}
}

func WriteSuccess(w http.ResponseWriter, log *logger.Logger, status int, message string, data interface{}) {
	WriteJSON(w, log, status, SuccessResponse(message, data))
}

// WriteError maps err onto the error envelope. Internal detail only reaches the log.
func WriteError(w http.ResponseWriter, log *logger.Logger, category string, err error) {
	appErr := apperror.From(err)
	if appErr.StatusCode >= http.StatusInternalServerError {
		log.Error(category, appErr.Error())
	} else {
		log.Warn(category, appErr.Error())
	}
	WriteJSON(w, log, appErr.StatusCode, ErrorResponse(appErr.PublicError, appErr.Code))
}
