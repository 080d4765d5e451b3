// ABOUTME: Shared HTTP helpers for JSON bodies, request validation and SSE framing
// ABOUTME: Error bodies are {"error": "..."}; internal details go to the log only

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// requestValidate is shared by all handlers; validator caches struct metadata.
var requestValidate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("digits", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		for _, r := range s {
			if r < '0' || r > '9' {
				return false
			}
		}
		return s != ""
	})
	return v
}

// errBadRequest marks body decoding problems.
var errBadRequest = errors.New("bad request")

// decodeRequest reads a JSON body into dst and validates it.
// Decoding problems wrap errBadRequest; rule violations are validator.ValidationErrors.
func decodeRequest(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is empty", errBadRequest)
		}
		return fmt.Errorf("%w: invalid JSON body", errBadRequest)
	}
	return requestValidate.Struct(dst)
}

// writeDecodeError maps a decodeRequest error to 400 or 422.
func (g *Gateway) writeDecodeError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, describeFieldError(fe))
		}
		g.sendJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":   "validation failed",
			"details": details,
		})
		return
	}
	msg := strings.TrimPrefix(err.Error(), errBadRequest.Error()+": ")
	g.sendJSONError(w, http.StatusBadRequest, msg)
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "eqfield":
		return field + " must match " + strings.ToLower(fe.Param())
	case "oneof":
		return field + " must be one of: " + fe.Param()
	case "digits":
		return field + " must contain only digits"
	case "email":
		return field + " must be a valid email address"
	case "min", "gte":
		return field + " must be at least " + fe.Param()
	case "max", "lte":
		return field + " must be at most " + fe.Param()
	case "len":
		return field + " must be exactly " + fe.Param() + " characters"
	case "datetime":
		return field + " must be a date in YYYY-MM-DD format"
	default:
		return field + " failed " + fe.Tag() + " validation"
	}
}

// sendJSON writes v with the given status.
func (g *Gateway) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.sendJSON(w, status, map[string]string{"error": message})
}

// pathID parses a numeric path value.
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	return id, err == nil && id > 0
}

// formatSSEEvent formats an SSE event as a string with the standard format:
// event: <eventType>\ndata: <data>\n\n
func formatSSEEvent(eventType, data string) string {
	return fmt.Sprintf("event: %s\ndata: %s\n\n", eventType, data)
}

// writeSSEEvent writes a single SSE event to the response writer.
func (g *Gateway) writeSSEEvent(w io.Writer, event string, data any) error {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		g.logger.Error("failed to marshal SSE data", "error", err)
		return err
	}
	_, err = io.WriteString(w, formatSSEEvent(event, string(dataJSON)))
	return err
}
