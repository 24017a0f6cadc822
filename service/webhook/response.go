package webhook

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the body of non webhook failures.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WriteError writes an error response
func WriteError(w http.ResponseWriter, statusCode int, err error) {
	response := ErrorResponse{Error: http.StatusText(statusCode)}
	if err != nil {
		response.Message = err.Error()
	}
	WriteJSON(w, response, statusCode)
}

// WriteJSON writes data as a JSON response.
func WriteJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}
