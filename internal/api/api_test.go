package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-speech/internal/audio"
	"github.com/loqalabs/loqa-speech/internal/stt"
	"github.com/loqalabs/loqa-speech/internal/tts"
	"github.com/loqalabs/loqa-speech/internal/voice"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func speechRouter(t *testing.T, engine tts.Engine, speakers []string, defaultRef string) http.Handler {
	t.Helper()
	logger := testLogger()
	loader := tts.NewLoader(engine, func(context.Context) (tts.Backend, error) {
		return tts.NewMockBackend(speakers, 24000), nil
	}, logger)
	svc := tts.NewService(tts.ServiceOptions{
		Engine:   engine,
		Backend:  "mock",
		Loader:   loader,
		Resolver: &voice.Resolver{DefaultReference: defaultRef, ScratchDir: t.TempDir(), Logger: logger},
	}, logger)
	r := chi.NewRouter()
	NewSpeechHandler(svc, 1, true, logger).Attach(r)
	return r
}

func postForm(h http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func postMultipart(t *testing.T, h http.Handler, path string, fields map[string]string, fileField, filename string, file []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileField != "" {
		fw, err := mw.CreateFormFile(fileField, filename)
		require.NoError(t, err)
		_, err = fw.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestSpeakNamedSpeakerHeaders(t *testing.T) {
	h := speechRouter(t, tts.XTTS, []string{"f1"}, "")
	rec := postForm(h, "/speak", url.Values{"text": {"Hola mundo."}, "lang": {"es-ES"}, "speed": {"1.5"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "audio/wav", rec.Header().Get("Content-Type"))
	require.Equal(t, "es", rec.Header().Get("X-Lang"))
	require.Equal(t, "name:f1", rec.Header().Get("X-Speaker"))
	require.Equal(t, "XTTS-v2", rec.Header().Get("X-Engine"))
	require.Equal(t, "true", rec.Header().Get("X-Speed-Applied"))

	w, err := audio.DecodeWAVBytes(rec.Body.Bytes())
	require.NoError(t, err)
	require.Equal(t, 24000, w.SampleRate)
	require.NotEmpty(t, w.Samples)
}

func TestSpeakUploadedReference(t *testing.T) {
	h := speechRouter(t, tts.CosyVoice, nil, "")
	ref, err := audio.EncodeWAV(audio.Waveform{Samples: make([]float32, 2205), SampleRate: 22050})
	require.NoError(t, err)

	rec := postMultipart(t, h, "/speak", map[string]string{"text": "你好", "language": "zh-TW", "speed": "1.2"}, "speaker_wav_file", "me.wav", ref)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "zh", rec.Header().Get("X-Lang"))
	require.Equal(t, "wav:me.wav", rec.Header().Get("X-Speaker"))
	require.Equal(t, "CosyVoice2", rec.Header().Get("X-Engine"))
	require.Equal(t, "false", rec.Header().Get("X-Speed-Applied"))
}

func TestSpeakErrors(t *testing.T) {
	h := speechRouter(t, tts.CosyVoice, nil, "")

	rec := postForm(h, "/speak", url.Values{"text": {"hello"}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotEmpty(t, errorBody(t, rec))

	rec = postForm(h, "/speak", url.Values{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postForm(h, "/speak", url.Values{"text": {"x"}, "speed": {"fast"}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, errorBody(t, rec), "speed")

	rec = postForm(h, "/speak", url.Values{"text": {"x"}, "use_speaker_wav": {"maybe"}})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postMultipart(t, h, "/speak", map[string]string{"text": "x"}, "reference_audio", "bad.wav", []byte("definitely not audio"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSpeakUploadTooLarge(t *testing.T) {
	h := speechRouter(t, tts.CosyVoice, nil, "")
	rec := postMultipart(t, h, "/speak", map[string]string{"text": "x"}, "reference_audio", "big.wav", make([]byte, 2*megabyte))
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestDiagnostics(t *testing.T) {
	dir := t.TempDir()
	ref := filepath.Join(dir, "default.wav")
	data, err := audio.EncodeWAV(audio.Silence(16000))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(ref, data, 0o644))
	h := speechRouter(t, tts.XTTS, []string{"f1", "m2"}, ref)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/models", nil))
	var models map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &models))
	require.Equal(t, "xtts", models["engine"])
	require.Equal(t, "mock", models["backend"])
	require.Equal(t, false, models["loaded"])

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/speakers", nil))
	require.JSONEq(t, `{"speakers":["f1","m2"],"default_speaker":"f1"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/config", nil))
	var cfg map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	require.Equal(t, ref, cfg["default_reference"])
	require.Equal(t, true, cfg["default_reference_exists"])
	require.EqualValues(t, 22050, cfg["reference_sample_rate"])
}

func transcriptionRouter(t *testing.T) http.Handler {
	t.Helper()
	g, err := stt.NewGuesser([]string{"es", "en", "pt", "fr", "it"})
	require.NoError(t, err)
	svc := stt.NewService(stt.ServiceOptions{Recognizer: stt.NewMockRecognizer(), Backend: "mock", Guesser: g, VADFilter: true}, testLogger())
	r := chi.NewRouter()
	NewTranscriptionHandler(svc, 1, testLogger()).Attach(r)
	return r
}

func TestTranscribe(t *testing.T) {
	h := transcriptionRouter(t)
	clip, err := audio.EncodeWAV(audio.Waveform{Samples: make([]float32, 32000), SampleRate: 16000})
	require.NoError(t, err)

	rec := postMultipart(t, h, "/transcribe", nil, "audio", "clip.wav", clip)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res stt.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Equal(t, "es", res.DetectedLang)
	require.InDelta(t, 2.0, res.Duration, 1e-6)
	require.Len(t, res.Segments, 2)
	require.Equal(t, "es", res.Segments[0].LangGuess[0].Lang)
	require.Equal(t, "en", res.Segments[1].LangGuess[0].Lang)

	rec = postMultipart(t, h, "/transcribe?return_segments=false", map[string]string{"lang_hint": "pt"}, "audio", "clip.wav", clip)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, rec.Body.String(), "segments")
	require.Contains(t, rec.Body.String(), `"detected_lang":"pt"`)

	rec = postMultipart(t, h, "/transcribe?segment_langid=false", nil, "audio", "clip.wav", clip)
	require.Contains(t, rec.Body.String(), `"lang_guess":[]`)
}

func TestTranscribeRequiresAudio(t *testing.T) {
	h := transcriptionRouter(t)
	rec := postMultipart(t, h, "/transcribe", map[string]string{"lang_hint": "es"}, "", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, errorBody(t, rec), "audio")

	rec = postMultipart(t, h, "/transcribe?return_segments=nah", nil, "audio", "a.wav", []byte{1})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
