// Package api exposes the speech services over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/loqalabs/loqa-speech/internal/fault"
)

const megabyte = 1 << 20

func writeJson(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	text := http.StatusText(code)

	if err != nil {
		text = err.Error()
	}

	writeJson(w, code, map[string]string{"error": text})
}

// writeFault reports err with the status its fault kind maps to. Nothing is
// written once the client is gone.
func writeFault(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	if r.Context().Err() != nil {
		logger.Info("client went away", slog.String("path", r.URL.Path))
		return
	}
	writeError(w, fault.HTTPStatus(err), err)
}

func requestID(r *http.Request) string {
	if id := middleware.GetReqID(r.Context()); id != "" {
		return id
	}
	return uuid.NewString()
}

// formValue returns the first non-empty value among names.
func formValue(r *http.Request, names ...string) string {
	for _, name := range names {
		if val := strings.TrimSpace(r.FormValue(name)); val != "" {
			return val
		}
	}
	return ""
}

// formFile reads the first upload present among names. A missing or empty
// upload yields nil data.
func formFile(r *http.Request, names ...string) ([]byte, string, error) {
	if r.MultipartForm == nil {
		return nil, "", nil
	}
	for _, name := range names {
		file, header, err := r.FormFile(name)
		if errors.Is(err, http.ErrMissingFile) {
			continue
		}
		if err != nil {
			return nil, "", err
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			return nil, "", err
		}
		if len(data) == 0 {
			continue
		}
		return data, header.Filename, nil
	}
	return nil, "", nil
}

func parseBool(raw string, fallback bool) (bool, error) {
	if raw == "" {
		return fallback, nil
	}
	return strconv.ParseBool(strings.ToLower(raw))
}

// parseForm accepts multipart and urlencoded bodies up to limit bytes.
func parseForm(w http.ResponseWriter, r *http.Request, limit int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	err := r.ParseMultipartForm(limit)
	if errors.Is(err, http.ErrNotMultipart) {
		return r.ParseForm()
	}
	return err
}

func formStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}
