package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/loqalabs/loqa-speech/internal/stt"
)

type TranscriptionHandler struct {
	svc       *stt.Service
	maxUpload int64
	logger    *slog.Logger
}

func NewTranscriptionHandler(svc *stt.Service, maxUploadMB int, logger *slog.Logger) *TranscriptionHandler {
	return &TranscriptionHandler{
		svc:       svc,
		maxUpload: int64(maxUploadMB) * megabyte,
		logger:    logger.With(slog.String("component", "stt-api")),
	}
}

func (h *TranscriptionHandler) Attach(r chi.Router) {
	r.Post("/transcribe", h.handleTranscribe)
}

func (h *TranscriptionHandler) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	returnSegments, err := parseBool(query.Get("return_segments"), true)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("return_segments must be a boolean"))
		return
	}
	segmentLangID, err := parseBool(query.Get("segment_langid"), true)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("segment_langid must be a boolean"))
		return
	}

	if err := parseForm(w, r, h.maxUpload); err != nil {
		writeError(w, formStatus(err), fmt.Errorf("invalid form: %w", err))
		return
	}
	data, filename, err := formFile(r, "audio")
	if err != nil {
		writeError(w, formStatus(err), fmt.Errorf("read audio upload: %w", err))
		return
	}

	res, err := h.svc.Transcribe(r.Context(), stt.Request{
		ID:             requestID(r),
		Audio:          stt.Audio{Data: data, Filename: filename},
		LangHint:       formValue(r, "lang_hint"),
		ReturnSegments: returnSegments,
		SegmentLangID:  segmentLangID,
	})
	if err != nil {
		writeFault(w, r, h.logger, err)
		return
	}
	writeJson(w, http.StatusOK, res)
}
