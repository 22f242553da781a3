package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"duka.app/internal/obs"
)

// envelope is the body shape of every /api/ response.
type envelope struct {
	Status  int    `json:"Status"`
	Message string `json:"Message"`
	Payload any    `json:"Payload"`
}

func writeEnvelope(w http.ResponseWriter, status int, message string, payload any) {
	writeJSON(w, status, envelope{
		Status:  status,
		Message: message,
		Payload: normalizePayload(payload),
	})
}

// normalizePayload keeps strings, objects and arrays. Anything else,
// including nil, becomes an empty array. Nil maps and slices are emitted
// empty rather than as null.
func normalizePayload(payload any) any {
	if payload == nil {
		return []any{}
	}
	v := reflect.ValueOf(payload)
	switch v.Kind() {
	case reflect.String, reflect.Struct, reflect.Array:
		return payload
	case reflect.Map:
		if v.IsNil() {
			return map[string]any{}
		}
		return payload
	case reflect.Slice:
		if v.IsNil() {
			return []any{}
		}
		return payload
	case reflect.Pointer:
		if v.IsNil() || v.Elem().Kind() != reflect.Struct {
			return []any{}
		}
		return payload
	default:
		return []any{}
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		obs.Warn("response_encode_failed", map[string]any{"error": err})
	}
}

// writeFailure answers with the envelope inside apiPrefix and with the
// plain error body elsewhere.
func writeFailure(w http.ResponseWriter, r *http.Request, code int, message, detail string) {
	if strings.HasPrefix(r.URL.Path, apiPrefix) {
		writeEnvelope(w, code, message, detail)
		return
	}
	writeError(w, r, code, detail)
}

// writeError is used outside apiPrefix where the envelope does not apply.
func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// allowMethods writes 405 in the envelope unless r uses one of methods.
func allowMethods(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	writeEnvelope(w, http.StatusMethodNotAllowed, "method not allowed", r.Method)
	return false
}

// missingFields lists the required keys that are absent or blank.
func missingFields(values map[string]string, required ...string) []string {
	var missing []string
	for _, key := range required {
		if strings.TrimSpace(values[key]) == "" {
			missing = append(missing, key)
		}
	}
	return missing
}
