// Package audio holds the waveform type shared by the speech services and
// the codecs that move it in and out of WAV containers.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavFormatPCM        = 1
	wavFormatFloat      = 3
	wavFormatExtensible = 0xFFFE
)

// Waveform is mono float audio in [-1, 1].
type Waveform struct {
	Samples    []float32
	SampleRate int
}

// Silence is the shortest well-formed waveform: one zero sample.
func Silence(sampleRate int) Waveform {
	return Waveform{Samples: make([]float32, 1), SampleRate: sampleRate}
}

func (w Waveform) Duration() time.Duration {
	if w.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(w.Samples)) * time.Second / time.Duration(w.SampleRate)
}

// IsWAV reports whether data starts with a RIFF/WAVE header.
func IsWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

// DecodeWAV reads an integer PCM or 32-bit float WAV stream, including
// WAVE_FORMAT_EXTENSIBLE headers, and downmixes it to mono.
func DecodeWAV(r io.ReadSeeker) (Waveform, error) {
	format, err := sampleFormat(r)
	if err != nil {
		return Waveform{}, err
	}
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return Waveform{}, errors.New("not a valid wav file")
	}
	bitDepth := int(dec.BitDepth)
	switch {
	case format == wavFormatPCM && bitDepth >= 8 && bitDepth <= 32:
	case format == wavFormatFloat && bitDepth == 32:
	case format == wavFormatPCM || format == wavFormatFloat:
		return Waveform{}, fmt.Errorf("unsupported bit depth %d for wav format %d", bitDepth, format)
	default:
		return Waveform{}, fmt.Errorf("unsupported wav format %d", format)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Waveform{}, fmt.Errorf("read pcm: %w", err)
	}
	channels := int(dec.NumChans)
	if channels < 1 {
		return Waveform{}, errors.New("wav has no channels")
	}

	scale := float64(int64(1) << (bitDepth - 1))
	frames := len(buf.Data) / channels
	samples := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			raw := buf.Data[i*channels+c]
			switch {
			case format == wavFormatFloat:
				// The decoder hands back the raw 32-bit word.
				sum += float64(math.Float32frombits(uint32(int32(raw))))
			case bitDepth == 8:
				// 8-bit WAV is unsigned.
				sum += float64(raw-128) / scale
			default:
				sum += float64(raw) / scale
			}
		}
		samples[i] = float32(sum / float64(channels))
	}
	return Waveform{Samples: samples, SampleRate: int(dec.SampleRate)}, nil
}

// sampleFormat reads the fmt chunk and returns the sample encoding,
// resolving WAVE_FORMAT_EXTENSIBLE to the tag held in its sub-format GUID.
// r is rewound before returning.
func sampleFormat(r io.ReadSeeker) (uint16, error) {
	defer r.Seek(0, io.SeekStart)

	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil || string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return 0, errors.New("not a valid wav file")
	}
	for {
		var header [8]byte
		if _, err := io.ReadFull(r, header[:]); err != nil {
			return 0, errors.New("wav has no fmt chunk")
		}
		size := int64(binary.LittleEndian.Uint32(header[4:8]))
		if string(header[0:4]) != "fmt " {
			if _, err := r.Seek(size+size%2, io.SeekCurrent); err != nil {
				return 0, fmt.Errorf("skip wav chunk: %w", err)
			}
			continue
		}
		if size < 16 {
			return 0, fmt.Errorf("wav fmt chunk too short: %d bytes", size)
		}
		chunk := make([]byte, min(size, 40))
		if _, err := io.ReadFull(r, chunk); err != nil {
			return 0, fmt.Errorf("read wav fmt chunk: %w", err)
		}
		format := binary.LittleEndian.Uint16(chunk[0:2])
		if format != wavFormatExtensible {
			return format, nil
		}
		if len(chunk) < 26 {
			return 0, errors.New("extensible wav header has no sub-format")
		}
		return binary.LittleEndian.Uint16(chunk[24:26]), nil
	}
}

// EncodeWAV writes w as mono 16-bit PCM. Samples outside [-1, 1] are
// clipped.
func EncodeWAV(w Waveform) ([]byte, error) {
	if w.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", w.SampleRate)
	}
	if len(w.Samples) == 0 {
		return nil, errors.New("empty waveform")
	}
	data := make([]int, len(w.Samples))
	for i, s := range w.Samples {
		data[i] = toInt16(s)
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: w.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}

	out := &memFile{}
	enc := wav.NewEncoder(out, w.SampleRate, 16, 1, wavFormatPCM)
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close wav encoder: %w", err)
	}
	return out.buf, nil
}

func toInt16(s float32) int {
	if math.IsNaN(float64(s)) {
		return 0
	}
	v := math.Round(float64(s) * math.MaxInt16)
	return int(max(math.MinInt16, min(math.MaxInt16, v)))
}

// memFile is an in-memory io.WriteSeeker. The wav encoder seeks back to
// patch chunk sizes once the data length is known.
type memFile struct {
	buf []byte
	pos int
}

func (m *memFile) Write(p []byte) (int, error) {
	if end := m.pos + len(p); end > len(m.buf) {
		m.buf = append(m.buf, make([]byte, end-len(m.buf))...)
	}
	n := copy(m.buf[m.pos:], p)
	m.pos += n
	return n, nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(m.pos) + offset
	case io.SeekEnd:
		next = int64(len(m.buf)) + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if next < 0 {
		return 0, errors.New("negative seek position")
	}
	m.pos = int(next)
	return next, nil
}

// DecodeWAVBytes is DecodeWAV over an in-memory payload.
func DecodeWAVBytes(data []byte) (Waveform, error) {
	return DecodeWAV(bytes.NewReader(data))
}
