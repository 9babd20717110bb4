package tts

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattn/go-shellwords"
)

// workerRequest is one line written to the worker's stdin.
type workerRequest struct {
	ID                  string  `json:"id"`
	Op                  string  `json:"op"`
	Mode                string  `json:"mode,omitempty"`
	Text                string  `json:"text,omitempty"`
	Language            string  `json:"language,omitempty"`
	Speaker             string  `json:"speaker,omitempty"`
	ReferencePath       string  `json:"reference_path,omitempty"`
	ReferenceSampleRate int     `json:"reference_sample_rate,omitempty"`
	PromptText          string  `json:"prompt_text,omitempty"`
	Speed               float64 `json:"speed,omitempty"`
}

// workerMessage is one line read from the worker's stdout.
type workerMessage struct {
	ID         string   `json:"id"`
	Type       string   `json:"type"`
	Speakers   []string `json:"speakers,omitempty"`
	SampleRate int      `json:"sample_rate,omitempty"`
	PCM        string   `json:"pcm_f32le,omitempty"`
	Error      string   `json:"error,omitempty"`
}

const workerShutdownGrace = 5 * time.Second

var errWorkerExited = errors.New("tts worker exited")

// worker keeps one model process alive and multiplexes calls over its
// stdin and stdout by id.
type worker struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	logger *slog.Logger
	seq    atomic.Uint64

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]*workerCall
	exited  bool
	exitErr error
	done    chan struct{}
}

type workerCall struct {
	msgs chan workerMessage
	gone chan struct{}
}

// NewWorker starts the model worker described by command.
func NewWorker(command string, logger *slog.Logger) (Backend, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("tts command empty")
	}
	return startWorker(args, logger)
}

func startWorker(args []string, logger *slog.Logger) (*worker, error) {
	cmd := exec.Command(args[0], args[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start tts worker: %w", err)
	}

	w := &worker{
		cmd:     cmd,
		stdin:   stdin,
		logger:  logger.With(slog.String("component", "tts-worker"), slog.Int("pid", cmd.Process.Pid)),
		pending: make(map[string]*workerCall),
		done:    make(chan struct{}),
	}
	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		w.forwardStderr(stderr)
	}()
	go w.readLoop(stdout, stderrDone)
	w.logger.Info("tts worker started", slog.String("command", args[0]))
	return w, nil
}

func (w *worker) Describe(ctx context.Context) (Capabilities, error) {
	id := w.nextID("describe")
	call, err := w.send(workerRequest{ID: id, Op: "describe"})
	if err != nil {
		return Capabilities{}, err
	}
	defer w.forget(id)

	select {
	case msg, ok := <-call.msgs:
		if !ok {
			return Capabilities{}, w.exitError()
		}
		switch msg.Type {
		case "describe":
			return Capabilities{Speakers: msg.Speakers, SampleRate: msg.SampleRate}, nil
		case "error":
			return Capabilities{}, errors.New(msg.Error)
		default:
			return Capabilities{}, fmt.Errorf("unexpected describe reply %q", msg.Type)
		}
	case <-ctx.Done():
		return Capabilities{}, ctx.Err()
	}
}

func (w *worker) Synthesize(ctx context.Context, inv Invocation) (<-chan Chunk, <-chan error) {
	chunks := make(chan Chunk)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)

		id := w.nextID(inv.ID)
		call, err := w.send(workerRequest{
			ID:                  id,
			Op:                  "synthesize",
			Mode:                inv.Mode.String(),
			Text:                inv.Text,
			Language:            inv.Language,
			Speaker:             inv.Speaker,
			ReferencePath:       inv.ReferencePath,
			ReferenceSampleRate: inv.ReferenceSampleRate,
			PromptText:          inv.PromptText,
			Speed:               inv.Speed,
		})
		if err != nil {
			errs <- err
			return
		}
		defer w.forget(id)

		for {
			select {
			case msg, ok := <-call.msgs:
				if !ok {
					errs <- w.exitError()
					return
				}
				switch msg.Type {
				case "chunk":
					samples, err := decodeFloat32LE(msg.PCM)
					if err != nil {
						errs <- fmt.Errorf("decode chunk: %w", err)
						return
					}
					select {
					case chunks <- Chunk{Samples: samples, SampleRate: msg.SampleRate}:
					case <-ctx.Done():
						errs <- ctx.Err()
						return
					}
				case "done":
					return
				case "error":
					errs <- errors.New(msg.Error)
					return
				default:
					w.logger.Warn("ignoring unexpected worker message", slog.String("type", msg.Type), slog.String("id", id))
				}
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
	}()
	return chunks, errs
}

// Close ends the worker by closing its stdin, killing it if it does not
// exit within the grace period.
func (w *worker) Close() error {
	w.writeMu.Lock()
	err := w.stdin.Close()
	w.writeMu.Unlock()

	select {
	case <-w.done:
	case <-time.After(workerShutdownGrace):
		w.logger.Warn("tts worker did not exit, killing")
		_ = w.cmd.Process.Kill()
		<-w.done
	}
	return err
}

func (w *worker) nextID(prefix string) string {
	n := strconv.FormatUint(w.seq.Add(1), 10)
	if prefix == "" {
		return n
	}
	return prefix + "-" + n
}

func (w *worker) send(req workerRequest) (*workerCall, error) {
	line, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	line = append(line, '\n')

	call := &workerCall{msgs: make(chan workerMessage, 16), gone: make(chan struct{})}
	w.mu.Lock()
	if w.exited {
		w.mu.Unlock()
		return nil, w.exitError()
	}
	w.pending[req.ID] = call
	w.mu.Unlock()

	w.writeMu.Lock()
	_, err = w.stdin.Write(line)
	w.writeMu.Unlock()
	if err != nil {
		w.forget(req.ID)
		return nil, fmt.Errorf("write to tts worker: %w", err)
	}
	return call, nil
}

func (w *worker) forget(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if call, ok := w.pending[id]; ok {
		delete(w.pending, id)
		close(call.gone)
	}
}

// readLoop owns the process lifetime: when stdout ends it reaps the
// process and fails every pending call.
func (w *worker) readLoop(stdout io.Reader, stderrDone <-chan struct{}) {
	reader := bufio.NewReader(stdout)
	for {
		line, err := reader.ReadBytes('\n')
		if line = bytes.TrimSpace(line); len(line) > 0 {
			w.dispatch(line)
		}
		if err != nil {
			break
		}
	}

	<-stderrDone
	waitErr := w.cmd.Wait()
	w.mu.Lock()
	w.exited = true
	w.exitErr = errWorkerExited
	if waitErr != nil {
		w.exitErr = fmt.Errorf("%w: %v", errWorkerExited, waitErr)
	}
	for id, call := range w.pending {
		delete(w.pending, id)
		close(call.msgs)
	}
	w.mu.Unlock()
	close(w.done)
	w.logger.Warn("tts worker exited", slog.String("error", w.exitError().Error()))
}

func (w *worker) dispatch(line []byte) {
	var msg workerMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		w.logger.Warn("ignoring non-json worker output", slog.String("line", truncate(line, 200)))
		return
	}
	w.mu.Lock()
	call := w.pending[msg.ID]
	w.mu.Unlock()
	if call == nil {
		w.logger.Debug("dropping reply for finished call", slog.String("id", msg.ID), slog.String("type", msg.Type))
		return
	}
	select {
	case call.msgs <- msg:
	case <-call.gone:
	}
}

func (w *worker) forwardStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		if line := bytes.TrimSpace(scanner.Bytes()); len(line) > 0 {
			w.logger.Info("worker", slog.String("stderr", string(line)))
		}
	}
}

func (w *worker) exitError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.exitErr == nil {
		return errWorkerExited
	}
	return w.exitErr
}

func decodeFloat32LE(payload string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, err
	}
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("pcm payload of %d bytes is not float32 aligned", len(raw))
	}
	samples := make([]float32, len(raw)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return samples, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
