package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"

	"github.com/loqalabs/loqa-speech/internal/config"
)

// execRecognizer runs an external transcription command once per request.
// The command loads the model itself, so calls are serialized to keep a
// single copy on the device.
type execRecognizer struct {
	cmd    []string
	cfg    config.STTConfig
	tmpDir string
	mu     sync.Mutex
}

func NewExecRecognizer(cfg config.STTConfig) (Recognizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse stt command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("stt command is empty")
	}
	return &execRecognizer{cmd: args, cfg: cfg, tmpDir: os.TempDir()}, nil
}

func (r *execRecognizer) Transcribe(ctx context.Context, in Audio, opts Options) (Transcript, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := os.CreateTemp(r.tmpDir, "loqa_stt_*"+uploadExt(in.Filename))
	if err != nil {
		return Transcript{}, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())
	if _, err := file.Write(in.Data); err != nil {
		file.Close()
		return Transcript{}, fmt.Errorf("write upload: %w", err)
	}
	if err := file.Close(); err != nil {
		return Transcript{}, fmt.Errorf("close upload: %w", err)
	}

	cmdArgs := append([]string{}, r.cmd[1:]...)
	cmdArgs = append(cmdArgs, "--audio", file.Name())
	if r.cfg.ModelPath != "" {
		cmdArgs = append(cmdArgs, "--model", r.cfg.ModelPath)
	}
	if r.cfg.Device != "" {
		cmdArgs = append(cmdArgs, "--device", r.cfg.Device)
	}
	if r.cfg.ComputeType != "" {
		cmdArgs = append(cmdArgs, "--compute-type", r.cfg.ComputeType)
	}
	if opts.LangHint != "" {
		cmdArgs = append(cmdArgs, "--language", opts.LangHint)
	}
	if opts.VADFilter {
		cmdArgs = append(cmdArgs, "--vad")
	}

	command := exec.CommandContext(ctx, r.cmd[0], cmdArgs...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return Transcript{}, fmt.Errorf("stt command failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	var resp Transcript
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return Transcript{}, fmt.Errorf("decode stt response: %w", err)
	}
	return resp, nil
}

func uploadExt(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" || len(ext) > 8 || strings.ContainsAny(ext, `/\`) {
		return ".bin"
	}
	return ext
}
