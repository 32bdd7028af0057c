package httputil

import (
	"encoding/json"
	"net/http"
)

// APIError is the JSON error envelope every endpoint returns on failure.
type APIError struct {
	Error APIErrorBody `json:"error"`
}

type APIErrorBody struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
	// Retryable is set on inference failures so the UI can offer a retry
	// for transient ones and suppress it for fatal ones.
	Retryable bool `json:"retryable,omitempty"`
}

func WriteError(w http.ResponseWriter, requestID string, statusCode int, errType, code, message string) {
	writeError(w, requestID, statusCode, errType, code, message, false)
}

func writeError(w http.ResponseWriter, requestID string, statusCode int, errType, code, message string, retryable bool) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIError{
		Error: APIErrorBody{
			Message:   message,
			Type:      errType,
			Code:      code,
			RequestID: requestID,
			Retryable: retryable,
		},
	})
}

func WriteAuthError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusUnauthorized, "authentication_error", "invalid_password", message)
}

func WriteBadRequestError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusBadRequest, "invalid_request_error", "invalid_request", message)
}

func WriteNotFoundError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusNotFound, "invalid_request_error", "model_not_found", message)
}

func WriteValidationError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusUnprocessableEntity, "invalid_request_error", "invalid_model_definition", message)
}

func WriteInternalError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusInternalServerError, "server_error", "internal_error", message)
}

// WriteInferenceError maps an upstream inference failure onto the envelope.
// Transient failures are 503 with the retryable flag; fatal ones are 502.
func WriteInferenceError(w http.ResponseWriter, requestID, message string, transient bool) {
	if transient {
		writeError(w, requestID, http.StatusServiceUnavailable, "inference_error", "inference_transient", message, true)
		return
	}
	writeError(w, requestID, http.StatusBadGateway, "inference_error", "inference_fatal", message, false)
}

func WriteFeatureDisabledError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusForbidden, "invalid_request_error", "feature_disabled", message)
}
