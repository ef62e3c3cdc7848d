package validators

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/bagflow-backend/pkg/errors"
)

func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be numeric").WithDetails(map[string]any{"field": key})
	}
	if value < min || value > max {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter out of range").WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return value, nil
}

// ParsePathUUID reads a chi URL parameter that must be a UUID.
func ParsePathUUID(r *http.Request, key string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, key))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "path parameter required").WithDetails(map[string]any{"field": key})
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "path parameter must be a uuid").WithDetails(map[string]any{"field": key})
	}
	return id, nil
}

// ParseQueryEnum returns the upper-cased value of key when parse accepts it,
// or ok=false when the parameter is absent.
func ParseQueryEnum[T any](r *http.Request, key string, parse func(string) (T, error)) (value T, ok bool, err error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return value, false, nil
	}
	value, err = parse(strings.ToUpper(raw))
	if err != nil {
		return value, false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid query parameter").WithDetails(map[string]any{"field": key})
	}
	return value, true, nil
}
