package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/marcioholm/NorthWay-2.0-sub000/internal/service"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func readBodyJSON(r *http.Request, maxBytes int64, out any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

// writeServiceError maps service-layer error types onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var configErr *service.ConfigError
	var validationErr *service.ValidationError
	var authErr *service.AuthError
	var conflictErr *service.ConflictError
	var providerErr *service.ProviderError
	var transientErr *service.TransientError

	switch {
	case errors.As(err, &configErr), errors.As(err, &validationErr):
		status = http.StatusBadRequest
	case errors.As(err, &authErr):
		status = http.StatusForbidden
	case errors.As(err, &conflictErr):
		status = http.StatusConflict
	case errors.As(err, &providerErr):
		status = http.StatusBadGateway
	case errors.As(err, &transientErr):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, Fail(err.Error()))
}
