package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/loqalabs/loqa-speech/internal/tts"
	"github.com/loqalabs/loqa-speech/internal/voice"
)

type SpeechHandler struct {
	svc          *tts.Service
	maxUpload    int64
	useReference bool
	logger       *slog.Logger
}

// NewSpeechHandler serves svc. useReference is the default for requests
// that do not say whether the configured reference may be used.
func NewSpeechHandler(svc *tts.Service, maxUploadMB int, useReference bool, logger *slog.Logger) *SpeechHandler {
	return &SpeechHandler{
		svc:          svc,
		maxUpload:    int64(maxUploadMB) * megabyte,
		useReference: useReference,
		logger:       logger.With(slog.String("component", "tts-api")),
	}
}

func (h *SpeechHandler) Attach(r chi.Router) {
	r.Post("/speak", h.handleSpeak)

	r.Get("/models", h.handleModels)
	r.Get("/speakers", h.handleSpeakers)
	r.Get("/config", h.handleConfig)
}

func (h *SpeechHandler) handleSpeak(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(w, r, h.maxUpload); err != nil {
		writeError(w, formStatus(err), fmt.Errorf("invalid form: %w", err))
		return
	}

	req := tts.SpeakRequest{
		ID:            requestID(r),
		Text:          r.FormValue("text"),
		Language:      formValue(r, "language", "lang"),
		Speaker:       formValue(r, "speaker"),
		ReferencePath: formValue(r, "reference_path", "speaker_wav"),
		PromptText:    r.FormValue("prompt_text"),
		Speed:         1,
	}

	if raw := formValue(r, "speed"); raw != "" {
		speed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("speed must be a number: %q", raw))
			return
		}
		req.Speed = speed
	}

	useRef, err := parseBool(formValue(r, "use_reference", "use_speaker_wav"), h.useReference)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("use_reference must be a boolean"))
		return
	}
	req.UseReference = useRef

	data, filename, err := formFile(r, "reference_audio", "speaker_wav_file")
	if err != nil {
		writeError(w, formStatus(err), fmt.Errorf("read reference upload: %w", err))
		return
	}
	if data != nil {
		req.Upload = &voice.Upload{Filename: filename, Data: data}
	}

	speech, err := h.svc.Speak(r.Context(), req)
	if err != nil {
		writeFault(w, r, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", speech.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(speech.Audio)))
	w.Header().Set("X-Lang", speech.Language)
	w.Header().Set("X-Speaker", speech.Voice)
	w.Header().Set("X-Engine", speech.Engine)
	w.Header().Set("X-Speed-Applied", strconv.FormatBool(speech.SpeedApplied))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(speech.Audio); err != nil {
		h.logger.Warn("failed to write audio", slog.String("request_id", req.ID), slog.String("error", err.Error()))
	}
}

func (h *SpeechHandler) handleModels(w http.ResponseWriter, _ *http.Request) {
	engine := h.svc.Engine()
	writeJson(w, http.StatusOK, map[string]any{
		"engine":                engine.Name,
		"display_name":          engine.DisplayName,
		"backend":               h.svc.BackendMode(),
		"languages":             engine.Languages.Canonical,
		"default_language":      engine.Languages.Default,
		"sample_rate":           engine.SampleRate,
		"reference_sample_rate": engine.ReferenceSampleRate,
		"zero_shot":             engine.ZeroShot,
		"loaded":                h.svc.Ready(),
	})
}

func (h *SpeechHandler) handleSpeakers(w http.ResponseWriter, r *http.Request) {
	handle, err := h.svc.Handle(r.Context())
	if err != nil {
		writeFault(w, r, h.logger, err)
		return
	}
	writeJson(w, http.StatusOK, map[string]any{
		"speakers":        handle.BuiltInSpeakers(),
		"default_speaker": handle.DefaultSpeaker(),
	})
}

func (h *SpeechHandler) handleConfig(w http.ResponseWriter, _ *http.Request) {
	ref := h.svc.DefaultReference()
	exists := false
	if ref != "" {
		_, err := os.Stat(ref)
		exists = err == nil
	}
	writeJson(w, http.StatusOK, map[string]any{
		"default_reference":        ref,
		"default_reference_exists": exists,
		"use_reference":            h.useReference,
		"reference_sample_rate":    h.svc.Engine().ReferenceSampleRate,
		"max_upload_mb":            h.maxUpload / megabyte,
	})
}
