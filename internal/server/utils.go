package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"cmewatch/internal/models"
)

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes the JSON error envelope, mapping the error taxonomy
// to an HTTP status
func writeError(w http.ResponseWriter, err error) {
	class := models.ErrorClass(err)
	writeJSON(w, statusForClass(class), models.APIError{
		Error:   class,
		Message: err.Error(),
	})
}

func statusForClass(class string) int {
	switch class {
	case "SourceUnavailable":
		return http.StatusServiceUnavailable
	case "SourceDataCorrupt":
		return http.StatusBadGateway
	case "InsufficientBaseline", "InsufficientLabels":
		return http.StatusUnprocessableEntity
	case "InvalidConfig", "Cancelled":
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// parseDate accepts RFC3339 timestamps or plain dates
func parseDate(value string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts.UTC(), nil
	}
	if ts, err := time.Parse("2006-01-02", value); err == nil {
		return ts.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q, expected RFC3339 or YYYY-MM-DD", value)
}
