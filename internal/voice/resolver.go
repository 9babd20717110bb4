// Package voice decides which voice a synthesis request is spoken in.
package voice

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/loqalabs/loqa-speech/internal/audio"
	"github.com/loqalabs/loqa-speech/internal/fault"
)

const opResolve = "resolve voice"

// ErrNoVoice is wrapped by the input error returned when nothing resolves.
var ErrNoVoice = errors.New("no voice available: upload reference_audio, pass reference_path or configure a default reference")

// Kind tags a Resolved voice.
type Kind int

const (
	None Kind = iota
	BuiltIn
	Cloned
)

func (k Kind) String() string {
	switch k {
	case BuiltIn:
		return "builtin"
	case Cloned:
		return "cloned"
	default:
		return "none"
	}
}

// Resolved is the outcome of resolution.
type Resolved struct {
	Kind Kind
	// Speaker is set for BuiltIn.
	Speaker string
	// ReferencePath points at a mono 16-bit WAV at SampleRate, set for Cloned.
	ReferencePath string
	// Source is the base name of the file the reference came from.
	Source     string
	SampleRate int
}

// Descriptor names the voice path taken, e.g. "wav:ref.wav" or "name:f1".
func (r Resolved) Descriptor() string {
	switch r.Kind {
	case Cloned:
		return "wav:" + r.Source
	case BuiltIn:
		return "name:" + r.Speaker
	default:
		return "none"
	}
}

// Upload is reference audio sent with the request.
type Upload struct {
	Filename string
	Data     []byte
}

// Request carries the voice-related fields of a synthesis request.
type Request struct {
	// ID scopes scratch files to the request.
	ID            string
	Upload        *Upload
	ReferencePath string
	Speaker       string
	// UseReference gates the configured default reference only.
	UseReference bool
}

// Capabilities is what resolution needs to know about the loaded engine.
type Capabilities interface {
	BuiltInSpeakers() []string
	ReferenceSampleRate() int
}

// Resolver walks the voice sources in priority order: upload, explicit
// path, configured default, requested built-in speaker, first built-in.
type Resolver struct {
	DefaultReference string
	ScratchDir       string
	Loader           audio.Loader
	Logger           *slog.Logger
}

// Resolve picks the voice for req. A Cloned result lives in the returned
// lease, which the caller must release once synthesis finishes. Failures
// are input errors and carry no lease.
func (r *Resolver) Resolve(ctx context.Context, req Request, caps Capabilities) (Resolved, *Lease, error) {
	lease := &Lease{scratch: r.ScratchDir, id: req.ID}
	res, err := r.resolve(ctx, req, caps, lease)
	if err != nil {
		lease.Release()
		return Resolved{}, nil, err
	}
	if res.Kind == None {
		lease.Release()
		return Resolved{}, nil, fault.Input(opResolve, "%w", ErrNoVoice)
	}
	r.logger().Debug("voice resolved", slog.String("request_id", req.ID), slog.String("voice", res.Descriptor()))
	return res, lease, nil
}

func (r *Resolver) resolve(ctx context.Context, req Request, caps Capabilities, lease *Lease) (Resolved, error) {
	if req.Upload != nil && len(req.Upload.Data) > 0 {
		path, err := lease.write(uploadName(req.Upload.Filename), req.Upload.Data)
		if err != nil {
			return Resolved{}, fmt.Errorf("persist upload: %w", err)
		}
		source := filepath.Base(req.Upload.Filename)
		if req.Upload.Filename == "" {
			source = "upload"
		}
		return r.prepare(ctx, lease, path, source, caps)
	}

	if p := strings.TrimSpace(req.ReferencePath); p != "" {
		if exists(p) {
			return r.prepare(ctx, lease, p, filepath.Base(p), caps)
		}
		r.logger().Debug("reference path not found", slog.String("path", p))
	}

	if req.UseReference && r.DefaultReference != "" {
		if exists(r.DefaultReference) {
			return r.prepare(ctx, lease, r.DefaultReference, filepath.Base(r.DefaultReference), caps)
		}
		r.logger().Warn("default reference not found", slog.String("path", r.DefaultReference))
	}

	speakers := caps.BuiltInSpeakers()
	if req.Speaker != "" {
		if slices.Contains(speakers, req.Speaker) {
			return Resolved{Kind: BuiltIn, Speaker: req.Speaker}, nil
		}
		r.logger().Debug("requested speaker not available", slog.String("speaker", req.Speaker))
	}
	if len(speakers) > 0 {
		return Resolved{Kind: BuiltIn, Speaker: speakers[0]}, nil
	}
	return Resolved{Kind: None}, nil
}

// prepare loads src at the engine's reference rate and stores the result in
// the lease.
func (r *Resolver) prepare(ctx context.Context, lease *Lease, src, source string, caps Capabilities) (Resolved, error) {
	rate := caps.ReferenceSampleRate()
	w, err := r.Loader.Load(ctx, src, rate)
	if err != nil {
		return Resolved{}, fault.Input(opResolve, "unreadable reference audio %s: %v", source, err)
	}
	data, err := audio.EncodeWAV(w)
	if err != nil {
		return Resolved{}, fmt.Errorf("encode reference: %w", err)
	}
	path, err := lease.write("reference.wav", data)
	if err != nil {
		return Resolved{}, fmt.Errorf("store reference: %w", err)
	}
	return Resolved{Kind: Cloned, ReferencePath: path, Source: source, SampleRate: rate}, nil
}

func (r *Resolver) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

// exists reports whether path names something other than a directory.
// Stat failures other than absence count as present so that prepare
// surfaces them.
func exists(path string) bool {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false
	}
	return err != nil || !info.IsDir()
}

func uploadName(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" || len(ext) > 8 {
		ext = ".bin"
	}
	return "upload" + ext
}
