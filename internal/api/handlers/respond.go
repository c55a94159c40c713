// Package handlers provides HTTP request handlers for the API endpoints.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/homestay-booking/backend/internal/api/middleware"
	"github.com/homestay-booking/backend/internal/websocket"
)

var validate = validator.New()

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decodeBody decodes and validates a JSON request body, writing the error
// response itself. It reports whether the handler should continue.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
		return false
	}

	if err := validate.Struct(dst); err != nil {
		middleware.WriteErrorWithDetails(w, http.StatusBadRequest, middleware.ErrValidation,
			"Request validation failed", validationDetails(err))
		return false
	}
	return true
}

func validationDetails(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"body": err.Error()}
	}

	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		msg := fe.Tag()
		if fe.Param() != "" {
			msg = fmt.Sprintf("%s=%s", fe.Tag(), fe.Param())
		}
		details[strings.ToLower(fe.Field())] = msg
	}
	return details
}

// dataChanged tells websocket clients to refetch, if a broadcaster is wired.
func dataChanged(events *websocket.EventBroadcaster, roomID string, entities ...string) {
	if events != nil {
		events.DataChanged(roomID, entities...)
	}
}
