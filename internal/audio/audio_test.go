package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func sine(rate int, n int) Waveform {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/float64(rate)))
	}
	return Waveform{Samples: samples, SampleRate: rate}
}

func TestEncodeDecodeWAV(t *testing.T) {
	in := sine(24000, 2400)
	data, err := EncodeWAV(in)
	require.NoError(t, err)
	require.True(t, IsWAV(data))
	require.Len(t, data, 44+2*len(in.Samples))

	out, err := DecodeWAVBytes(data)
	require.NoError(t, err)
	require.Equal(t, 24000, out.SampleRate)
	require.Len(t, out.Samples, len(in.Samples))
	for i := range in.Samples {
		require.InDelta(t, in.Samples[i], out.Samples[i], 1e-3)
	}
}

func TestEncodeClipsAndRejectsEmpty(t *testing.T) {
	data, err := EncodeWAV(Waveform{Samples: []float32{2, -2, float32(math.NaN())}, SampleRate: 16000})
	require.NoError(t, err)
	out, err := DecodeWAVBytes(data)
	require.NoError(t, err)
	require.InDelta(t, 1.0, out.Samples[0], 1e-3)
	require.InDelta(t, -1.0, out.Samples[1], 1e-3)
	require.Zero(t, out.Samples[2])

	_, err = EncodeWAV(Waveform{SampleRate: 16000})
	require.Error(t, err)
	_, err = EncodeWAV(Waveform{Samples: []float32{0}})
	require.Error(t, err)
}

func TestSilenceEncodesToOneSample(t *testing.T) {
	data, err := EncodeWAV(Silence(22050))
	require.NoError(t, err)
	require.Len(t, data, 46)
}

func TestResample(t *testing.T) {
	in := sine(48000, 48000)
	out := Resample(in, 16000)
	require.Equal(t, 16000, out.SampleRate)
	require.Len(t, out.Samples, 16000)
	require.InDelta(t, in.Duration().Seconds(), out.Duration().Seconds(), 1e-3)

	same := Resample(in, 48000)
	require.Equal(t, len(in.Samples), len(same.Samples))

	up := Resample(Waveform{Samples: []float32{0, 1}, SampleRate: 1}, 4)
	require.Equal(t, []float32{0, 0.25, 0.5, 0.75, 1, 1, 1, 1}, up.Samples)
}

func TestConcat(t *testing.T) {
	w := Concat(24000, []float32{1, 2}, nil, []float32{3})
	require.Equal(t, []float32{1, 2, 3}, w.Samples)
	require.Equal(t, 125*time.Microsecond, w.Duration())
}

func TestLoaderResamplesReference(t *testing.T) {
	dir := t.TempDir()
	data, err := EncodeWAV(sine(44100, 44100))
	require.NoError(t, err)
	path := filepath.Join(dir, "ref.wav")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	w, err := Loader{}.Load(context.Background(), path, 16000)
	require.NoError(t, err)
	require.Equal(t, 16000, w.SampleRate)
	require.Len(t, w.Samples, 16000)
}

func TestLoaderRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ref.wav")
	require.NoError(t, os.WriteFile(path, []byte("definitely not audio"), 0o644))

	_, err := Loader{}.Load(context.Background(), path, 16000)
	require.Error(t, err)

	_, err = Loader{}.Load(context.Background(), filepath.Join(dir, "missing.wav"), 16000)
	require.Error(t, err)
}

// rawWAV assembles a WAV file by hand. A non-zero subFormat writes a
// WAVE_FORMAT_EXTENSIBLE header carrying it.
func rawWAV(format, subFormat uint16, channels, rate, bits int, frames [][]float64) []byte {
	var body []byte
	for _, frame := range frames {
		for _, v := range frame {
			switch {
			case format == wavFormatFloat || subFormat == wavFormatFloat:
				body = binary.LittleEndian.AppendUint32(body, math.Float32bits(float32(v)))
			case bits == 24:
				n := int32(v * (1<<23 - 1))
				body = append(body, byte(n), byte(n>>8), byte(n>>16))
			default:
				body = binary.LittleEndian.AppendUint16(body, uint16(int16(v*math.MaxInt16)))
			}
		}
	}

	blockAlign := channels * bits / 8
	fmtChunk := binary.LittleEndian.AppendUint16(nil, format)
	fmtChunk = binary.LittleEndian.AppendUint16(fmtChunk, uint16(channels))
	fmtChunk = binary.LittleEndian.AppendUint32(fmtChunk, uint32(rate))
	fmtChunk = binary.LittleEndian.AppendUint32(fmtChunk, uint32(rate*blockAlign))
	fmtChunk = binary.LittleEndian.AppendUint16(fmtChunk, uint16(blockAlign))
	fmtChunk = binary.LittleEndian.AppendUint16(fmtChunk, uint16(bits))
	if subFormat != 0 {
		fmtChunk = binary.LittleEndian.AppendUint16(fmtChunk, 22)
		fmtChunk = binary.LittleEndian.AppendUint16(fmtChunk, uint16(bits))
		fmtChunk = binary.LittleEndian.AppendUint32(fmtChunk, 0)
		fmtChunk = binary.LittleEndian.AppendUint16(fmtChunk, subFormat)
		// KSDATAFORMAT_SUBTYPE tail: 0000-0010-8000-00aa00389b71
		fmtChunk = append(fmtChunk, 0x00, 0x00, 0x00, 0x00, 0x10, 0x00, 0x80, 0x00, 0x00, 0xaa, 0x00, 0x38, 0x9b, 0x71)
	}

	out := []byte("RIFF")
	out = binary.LittleEndian.AppendUint32(out, uint32(4+8+len(fmtChunk)+8+len(body)))
	out = append(out, "WAVE"...)
	out = append(out, "fmt "...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(fmtChunk)))
	out = append(out, fmtChunk...)
	out = append(out, "data"...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(body)))
	return append(out, body...)
}

func monoFrames(values ...float64) [][]float64 {
	frames := make([][]float64, len(values))
	for i, v := range values {
		frames[i] = []float64{v}
	}
	return frames
}

func TestDecodeWAVFormats(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		want []float32
	}{
		{"float32", rawWAV(wavFormatFloat, 0, 1, 16000, 32, monoFrames(0.5, -0.25, 1)), []float32{0.5, -0.25, 1}},
		{"extensible pcm16", rawWAV(wavFormatExtensible, wavFormatPCM, 1, 16000, 16, monoFrames(0.5, -0.5)), []float32{0.5, -0.5}},
		{"extensible float32", rawWAV(wavFormatExtensible, wavFormatFloat, 1, 16000, 32, monoFrames(0.75)), []float32{0.75}},
		{"extensible pcm24 stereo", rawWAV(wavFormatExtensible, wavFormatPCM, 2, 16000, 24, [][]float64{{0.5, 0.25}, {-0.5, -0.25}}), []float32{0.375, -0.375}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, err := DecodeWAVBytes(tc.data)
			require.NoError(t, err)
			require.Equal(t, 16000, w.SampleRate)
			require.Len(t, w.Samples, len(tc.want))
			for i := range tc.want {
				require.InDelta(t, tc.want[i], w.Samples[i], 1e-3)
			}
		})
	}
}

func TestDecodeWAVRejectsUnknownFormats(t *testing.T) {
	// 6 is A-law.
	_, err := DecodeWAVBytes(rawWAV(6, 0, 1, 8000, 16, monoFrames(0.1)))
	require.ErrorContains(t, err, "unsupported wav format 6")

	_, err = DecodeWAVBytes(rawWAV(wavFormatExtensible, 6, 1, 8000, 16, monoFrames(0.1)))
	require.ErrorContains(t, err, "unsupported wav format 6")

	_, err = DecodeWAVBytes(rawWAV(wavFormatFloat, 0, 1, 8000, 16, monoFrames(0.1)))
	require.ErrorContains(t, err, "bit depth")
}

func TestLoaderTranscodesUndecodableWAV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alaw.wav")
	require.NoError(t, os.WriteFile(path, rawWAV(6, 0, 1, 8000, 16, monoFrames(0.1, 0.2)), 0o644))

	_, err := Loader{}.Load(context.Background(), path, 16000)
	require.ErrorContains(t, err, "unsupported wav format")

	// Stand-in for ffmpeg: copies a fixture to the last argument.
	fixture := filepath.Join(dir, "fixture.wav")
	data, err := EncodeWAV(sine(16000, 1600))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(fixture, data, 0o644))
	script := filepath.Join(dir, "ffmpeg")
	require.NoError(t, os.WriteFile(script, []byte(fmt.Sprintf("#!/bin/sh\nfor last; do :; done\ncp %q \"$last\"\n", fixture)), 0o755))

	w, err := Loader{Transcoder: &Transcoder{Path: script, TmpDir: dir}}.Load(context.Background(), path, 16000)
	require.NoError(t, err)
	require.Len(t, w.Samples, 1600)
}
