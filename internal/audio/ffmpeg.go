package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
)

const scratchPrefix = "loqa_ffmpeg_"

// Transcoder converts arbitrary audio containers to mono WAV by running
// ffmpeg. The zero value is disabled.
type Transcoder struct {
	Path   string
	TmpDir string
}

func (t *Transcoder) Enabled() bool { return t != nil && t.Path != "" }

func (t *Transcoder) tmpDir() string {
	if t.TmpDir == "" {
		return os.TempDir()
	}
	return t.TmpDir
}

// ToWAVPath transcodes inputPath to a mono 16-bit WAV at rate.
func (t *Transcoder) ToWAVPath(ctx context.Context, inputPath string, rate int) ([]byte, error) {
	if !t.Enabled() {
		return nil, errors.New("ffmpeg not configured")
	}
	outputPath := filepath.Join(t.tmpDir(), scratchPrefix+uuid.NewString()+".wav")
	defer os.Remove(outputPath)

	cmd := exec.CommandContext(ctx, t.Path, "-nostdin", "-y", "-loglevel", "error",
		"-i", inputPath, "-vn", "-ac", "1", "-ar", strconv.Itoa(rate), "-acodec", "pcm_s16le", "-f", "wav", outputPath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("run ffmpeg: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}

	output, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, fmt.Errorf("read ffmpeg output: %w", err)
	}
	return output, nil
}
