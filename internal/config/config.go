package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind        string   `yaml:"bind"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type Config struct {
	ServiceName string          `yaml:"service_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	TTS         TTSConfig       `yaml:"tts"`
	STT         STTConfig       `yaml:"stt"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	EmbeddedHost   string   `yaml:"embedded_host"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

// TTSConfig configures the synthesis service. Engine selects the engine
// profile (xtts or cosyvoice), Mode the backend that hosts the model.
type TTSConfig struct {
	Engine           string   `yaml:"engine"`
	Mode             string   `yaml:"mode"`
	Command          string   `yaml:"command"`
	DefaultReference string   `yaml:"default_reference"`
	UseReference     bool     `yaml:"use_reference"`
	ScratchDir       string   `yaml:"scratch_dir"`
	FFmpegPath       string   `yaml:"ffmpeg_path"`
	MaxUploadMB      int      `yaml:"max_upload_mb"`
	MockSpeakers     []string `yaml:"mock_speakers"`
	MockSampleRate   int      `yaml:"mock_sample_rate"`
}

// STTConfig configures the transcription service.
type STTConfig struct {
	Mode             string   `yaml:"mode"`
	Command          string   `yaml:"command"`
	ModelPath        string   `yaml:"model_path"`
	Device           string   `yaml:"device"`
	ComputeType      string   `yaml:"compute_type"`
	VADFilter        bool     `yaml:"vad_filter"`
	SegmentLanguages []string `yaml:"segment_languages"`
	MaxUploadMB      int      `yaml:"max_upload_mb"`
}

func Default() Config {
	return Config{
		ServiceName: "loqa-speech",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind:        "0.0.0.0",
			Port:        8080,
			CORSOrigins: []string{"*"},
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Enabled:        false,
			EmbeddedHost:   "127.0.0.1",
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		TTS: TTSConfig{
			Engine:         "xtts",
			Mode:           "mock",
			UseReference:   true,
			MaxUploadMB:    25,
			MockSpeakers:   []string{"f1"},
			MockSampleRate: 24000,
		},
		STT: STTConfig{
			Mode:             "mock",
			ModelPath:        "large-v3",
			Device:           "cuda",
			ComputeType:      "float16",
			VADFilter:        true,
			SegmentLanguages: []string{"es", "en", "pt", "fr", "it", "zh"},
			MaxUploadMB:      100,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.ServiceName, "LOQA_SERVICE_NAME")
	overrideString(&cfg.Environment, "LOQA_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "LOQA_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "LOQA_HTTP_PORT")
	overrideStringSlice(&cfg.HTTP.CORSOrigins, "LOQA_HTTP_CORS_ORIGINS")
	overrideString(&cfg.Telemetry.LogLevel, "LOQA_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LOQA_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LOQA_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "LOQA_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Enabled, "LOQA_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "LOQA_BUS_EMBEDDED")
	overrideString(&cfg.Bus.EmbeddedHost, "LOQA_BUS_EMBEDDED_HOST")
	overrideInt(&cfg.Bus.Port, "LOQA_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "LOQA_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "LOQA_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LOQA_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LOQA_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "LOQA_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "LOQA_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.TTS.Engine, "LOQA_TTS_ENGINE")
	overrideString(&cfg.TTS.Mode, "LOQA_TTS_MODE")
	overrideString(&cfg.TTS.Command, "LOQA_TTS_COMMAND")
	// SPEAKER_WAV is the variable the first synthesis deployments used.
	overrideString(&cfg.TTS.DefaultReference, "SPEAKER_WAV")
	overrideString(&cfg.TTS.DefaultReference, "LOQA_TTS_DEFAULT_REFERENCE")
	overrideBool(&cfg.TTS.UseReference, "LOQA_TTS_USE_REFERENCE")
	overrideString(&cfg.TTS.ScratchDir, "LOQA_TTS_SCRATCH_DIR")
	overrideString(&cfg.TTS.FFmpegPath, "LOQA_TTS_FFMPEG_PATH")
	overrideInt(&cfg.TTS.MaxUploadMB, "LOQA_TTS_MAX_UPLOAD_MB")
	overrideStringSlice(&cfg.TTS.MockSpeakers, "LOQA_TTS_MOCK_SPEAKERS")
	overrideInt(&cfg.TTS.MockSampleRate, "LOQA_TTS_MOCK_SAMPLE_RATE")
	overrideString(&cfg.STT.Mode, "LOQA_STT_MODE")
	overrideString(&cfg.STT.Command, "LOQA_STT_COMMAND")
	overrideString(&cfg.STT.ModelPath, "LOQA_STT_MODEL_PATH")
	overrideString(&cfg.STT.Device, "LOQA_STT_DEVICE")
	overrideString(&cfg.STT.ComputeType, "LOQA_STT_COMPUTE_TYPE")
	overrideBool(&cfg.STT.VADFilter, "LOQA_STT_VAD_FILTER")
	overrideStringSlice(&cfg.STT.SegmentLanguages, "LOQA_STT_SEGMENT_LANGUAGES")
	overrideInt(&cfg.STT.MaxUploadMB, "LOQA_STT_MAX_UPLOAD_MB")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.ServiceName == "" {
		return errors.New("service_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Enabled && !cfg.Bus.Embedded && len(cfg.Bus.Servers) == 0 {
		return errors.New("bus.servers must not be empty when the bus is enabled")
	}
	if cfg.Bus.Embedded && (cfg.Bus.Port < -1 || cfg.Bus.Port > 65535) {
		return errors.New("bus.port must be -1 (random) or between 0 and 65535")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	switch cfg.TTS.Engine {
	case "xtts", "cosyvoice":
	default:
		return errors.New("tts.engine must be one of xtts|cosyvoice")
	}
	switch cfg.TTS.Mode {
	case "mock", "worker":
	default:
		return errors.New("tts.mode must be one of mock|worker")
	}
	if cfg.TTS.Mode == "worker" && cfg.TTS.Command == "" {
		return errors.New("tts.command must be set when mode=worker")
	}
	if cfg.TTS.Mode == "mock" && cfg.TTS.MockSampleRate <= 0 {
		return errors.New("tts.mock_sample_rate must be positive")
	}
	if cfg.TTS.MaxUploadMB <= 0 {
		return errors.New("tts.max_upload_mb must be positive")
	}
	switch cfg.STT.Mode {
	case "mock", "exec":
	default:
		return errors.New("stt.mode must be one of mock|exec")
	}
	if cfg.STT.Mode == "exec" && cfg.STT.Command == "" {
		return errors.New("stt.command must be set when mode=exec")
	}
	if cfg.STT.MaxUploadMB <= 0 {
		return errors.New("stt.max_upload_mb must be positive")
	}
	return nil
}
