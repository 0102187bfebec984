package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// validate is the package-wide struct validator. A single instance is
// reused across requests per the library's own recommendation — it caches
// reflected struct metadata internally and is safe for concurrent use.
var validate = validator.New()

// writeJSON marshals v as the response body. The caller is responsible for
// setting the status code and content-type header beforehand.
func writeJSON(w http.ResponseWriter, v interface{}) {
	json.NewEncoder(w).Encode(v)
}

// routeParam reads a chi URL parameter.
func routeParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

// decodeJSON parses the request body into v.
func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// validateStruct runs struct-tag validation and renders the first failing
// field as a short, client-facing message.
func validateStruct(v interface{}) string {
	err := validate.Struct(v)
	if err == nil {
		return ""
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok || len(fieldErrs) == 0 {
		return "invalid request"
	}
	fe := fieldErrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "eq":
		return fmt.Sprintf("%s must be %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
