// Package handlers exposes the timeline engine over HTTP.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	"github.com/wonny/aegis/v13/timeline/internal/calendar"
	"github.com/wonny/aegis/v13/timeline/internal/contracts"
	"github.com/wonny/aegis/v13/timeline/pkg/logger"
)

var validate = validator.New()

func init() {
	// 에러 필드명은 JSON 이름으로
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error  string       `json:"error"`
	Fields []FieldError `json:"fields,omitempty"`
}

// FieldError names one failed request field
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}

// StatusFor maps engine errors to HTTP status codes
// ⭐ SSOT: 에러 → HTTP 상태 매핑은 여기서만
func StatusFor(err error) int {
	switch {
	case errors.Is(err, contracts.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, contracts.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, contracts.ErrDuplicateSnapshot),
		errors.Is(err, contracts.ErrConflict),
		errors.Is(err, contracts.ErrInvalidState):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondErr writes err with its mapped status; internals are logged, not leaked
func respondErr(w http.ResponseWriter, log *logger.Logger, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		log.WithError(err).Error("request failed")
		respondError(w, status, "internal server error")
		return
	}
	respondError(w, status, err.Error())
}

// decodeRequest binds the JSON body, applies defaults, and validates
func decodeRequest(r *http.Request, req interface{}) *ErrorResponse {
	if r.Body != nil && r.ContentLength != 0 {
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(req); err != nil {
			return &ErrorResponse{Error: fmt.Sprintf("invalid request body: %v", err)}
		}
	}

	if err := defaults.Set(req); err != nil {
		return &ErrorResponse{Error: err.Error()}
	}

	if err := validate.StructCtx(r.Context(), req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return &ErrorResponse{Error: err.Error()}
		}
		out := &ErrorResponse{Error: "validation failed"}
		for _, fe := range verrs {
			out.Fields = append(out.Fields, FieldError{
				Field:   fe.Field(),
				Code:    "ERR_" + strings.ToUpper(fe.Tag()),
				Message: fieldMessage(fe),
			})
		}
		return out
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	case "datetime":
		return fmt.Sprintf("%s must be a date (YYYY-MM-DD)", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}

func bindOrReject(w http.ResponseWriter, r *http.Request, req interface{}) bool {
	if verr := decodeRequest(r, req); verr != nil {
		respondJSON(w, http.StatusBadRequest, verr)
		return false
	}
	return true
}

// optionalDate parses a YYYY-MM-DD value; "" yields the zero time
func optionalDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return calendar.ParseDate(s)
}

// queryDate reads a date query parameter
func queryDate(r *http.Request, name string) (time.Time, error) {
	t, err := optionalDate(r.URL.Query().Get(name))
	if err != nil {
		return time.Time{}, contracts.Invalid(name, "expected YYYY-MM-DD, got %q", r.URL.Query().Get(name))
	}
	return t, nil
}
