package rest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/worktrack/worktrack/internal/utils"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// WriteError writes an ErrorResponse body with the given status.
func WriteError(w http.ResponseWriter, status int, message string, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encodeErr := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   message,
		Details: details,
	})
	if encodeErr != nil {
		log.Errorf("failed to encode error response: %v", encodeErr)
	}
}

// WriteJSON encodes body as the response with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Errorf("failed to encode response: %v", err)
	}
}

// OptionalInt reads an integer query parameter. An absent parameter yields nil.
func OptionalInt(r *http.Request, name string) (*int, error) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return nil, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("'%s' must be an integer", name)
	}
	return &parsed, nil
}

// OptionalDate reads a YYYY-MM-DD query parameter. An absent parameter yields nil.
func OptionalDate(r *http.Request, name string) (*time.Time, error) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return nil, nil
	}
	parsed, err := utils.ParseDate(value)
	if err != nil {
		return nil, fmt.Errorf("'%s' must be a date in YYYY-MM-DD format", name)
	}
	return &parsed, nil
}

func RequiredInt(r *http.Request, name string) (int, error) {
	value, err := OptionalInt(r, name)
	if err != nil {
		return 0, err
	}
	if value == nil {
		return 0, fmt.Errorf("'%s' is required", name)
	}
	return *value, nil
}

func RequiredDate(r *http.Request, name string) (time.Time, error) {
	value, err := OptionalDate(r, name)
	if err != nil {
		return time.Time{}, err
	}
	if value == nil {
		return time.Time{}, fmt.Errorf("'%s' is required", name)
	}
	return *value, nil
}
