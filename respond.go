package authkit

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/panyam/authkit/logging"
)

// maxBodyBytes bounds request bodies read by the auth handlers.
const maxBodyBytes = 1 << 20

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Named("http").Warn("failed to encode response", logging.Err(err))
	}
}

// WriteError reports err as {success:false, code, message}. Errors that are
// not AuthErrors are logged and hidden behind a generic 500.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	if ae, ok := AsAuthError(err); ok {
		if ae.Status >= http.StatusInternalServerError {
			logging.Named("http").Error("request failed",
				logging.Method(r.Method), logging.Path(r.URL.Path), logging.Err(err))
		}
		WriteJSON(w, ae.Status, map[string]any{
			"success": false,
			"code":    ae.Code,
			"message": ae.Message,
		})
		return
	}
	logging.Named("http").Error("unhandled error",
		logging.Method(r.Method), logging.Path(r.URL.Path), logging.Err(err))
	WriteJSON(w, http.StatusInternalServerError, map[string]any{
		"success": false,
		"message": "Internal server error",
	})
}

// readBody returns the string fields of a JSON or form encoded body.
func readBody(r *http.Request) (map[string]string, error) {
	out := map[string]string{}
	if r.Body == nil {
		return out, nil
	}
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") ||
		strings.HasPrefix(contentType, "multipart/form-data") {
		r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("error parsing form: %w", err)
		}
		for k := range r.PostForm {
			out[k] = r.PostForm.Get(k)
		}
		return out, nil
	}

	var data map[string]any
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(&data); err != nil {
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		return nil, fmt.Errorf("invalid post body: %w", err)
	}
	for k, v := range data {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out, nil
}
