package controller

import (
	"encoding/json"
	"net/http"

	appErrors "github.com/pressroom/approvals-backend/internal/errors"
	"github.com/pressroom/approvals-backend/internal/tenancy"
)

// scopeFrom builds the tenant scope from the X-Org-ID header the
// upstream gateway injects.
func scopeFrom(r *http.Request) (tenancy.Scope, error) {
	return tenancy.NewScope(r.Header.Get("X-Org-ID"))
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// writeError maps the engine's error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case appErrors.IsValidation(err):
		code = http.StatusBadRequest
	case appErrors.IsNotFound(err):
		code = http.StatusNotFound
	case appErrors.IsPermission(err):
		code = http.StatusForbidden
	case appErrors.IsConflict(err):
		code = http.StatusConflict
	}
	http.Error(w, err.Error(), code)
}
