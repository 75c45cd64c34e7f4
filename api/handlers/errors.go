package handlers

import (
	"errors"
	"net/http"

	"github.com/tesipedia/tesipedia-api/config"
)

// apiError pairs a client-facing message with the http status it maps to
type apiError struct {
	status  int
	message string
}

func (e *apiError) Error() string { return e.message }

func errBadRequest(message string) error {
	return &apiError{status: http.StatusBadRequest, message: message}
}

func errUnauthorized(message string) error {
	return &apiError{status: http.StatusUnauthorized, message: message}
}

func errForbidden(message string) error {
	return &apiError{status: http.StatusForbidden, message: message}
}

func errNotFound(message string) error {
	return &apiError{status: http.StatusNotFound, message: message}
}

// writeError translates a chat pipeline error into the uniform error body.
// Unknown errors become a 500.
func writeError(w http.ResponseWriter, err error) {
	var ae *apiError
	if errors.As(err, &ae) {
		config.ErrorStatus(ae.message, ae.status, w, err)
		return
	}
	config.ErrorStatus("internal server error", http.StatusInternalServerError, w, err)
}
