package voice

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-speech/internal/audio"
	"github.com/loqalabs/loqa-speech/internal/fault"
)

type caps struct {
	speakers []string
	rate     int
}

func (c caps) BuiltInSpeakers() []string { return c.speakers }
func (c caps) ReferenceSampleRate() int  { return c.rate }

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func wavBytes(t *testing.T, rate, n int) []byte {
	t.Helper()
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(0.3 * math.Sin(float64(i)/10))
	}
	data, err := audio.EncodeWAV(audio.Waveform{Samples: samples, SampleRate: rate})
	require.NoError(t, err)
	return data
}

func writeWAV(t *testing.T, dir, name string, rate, n int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, wavBytes(t, rate, n), 0o644))
	return path
}

func newResolver(t *testing.T, defaultRef string) *Resolver {
	return &Resolver{DefaultReference: defaultRef, ScratchDir: t.TempDir(), Logger: testLogger()}
}

func TestPriorityOrdering(t *testing.T) {
	dir := t.TempDir()
	explicit := writeWAV(t, dir, "explicit.wav", 24000, 2400)
	configured := writeWAV(t, dir, "configured.wav", 24000, 2400)
	engine := caps{speakers: []string{"f1", "m2"}, rate: 16000}
	r := newResolver(t, configured)
	ctx := context.Background()

	full := Request{
		ID:            "req-1",
		Upload:        &Upload{Filename: "mine.wav", Data: wavBytes(t, 44100, 4410)},
		ReferencePath: explicit,
		Speaker:       "m2",
		UseReference:  true,
	}

	steps := []struct {
		name string
		drop func(*Request)
		want string
	}{
		{"upload wins", func(*Request) {}, "wav:mine.wav"},
		{"explicit path next", func(r *Request) { r.Upload = nil }, "wav:explicit.wav"},
		{"configured default next", func(r *Request) { r.ReferencePath = "" }, "wav:configured.wav"},
		{"requested speaker next", func(r *Request) { r.UseReference = false }, "name:m2"},
		{"first built-in last", func(r *Request) { r.Speaker = "" }, "name:f1"},
	}
	req := full
	for _, step := range steps {
		step.drop(&req)
		res, lease, err := r.Resolve(ctx, req, engine)
		require.NoError(t, err, step.name)
		require.Equal(t, step.want, res.Descriptor(), step.name)
		require.NoError(t, lease.Release())
	}
}

func TestNamedSpeakerWhenNothingElse(t *testing.T) {
	r := newResolver(t, "")
	res, lease, err := r.Resolve(context.Background(), Request{UseReference: true}, caps{speakers: []string{"f1"}, rate: 22050})
	require.NoError(t, err)
	require.Equal(t, BuiltIn, res.Kind)
	require.Equal(t, "f1", res.Speaker)
	require.Empty(t, lease.Dir())
}

func TestUnknownSpeakerFallsBackToFirst(t *testing.T) {
	r := newResolver(t, "")
	res, _, err := r.Resolve(context.Background(), Request{Speaker: "nobody"}, caps{speakers: []string{"f1", "m2"}})
	require.NoError(t, err)
	require.Equal(t, "name:f1", res.Descriptor())
}

func TestNoVoiceIsInputError(t *testing.T) {
	r := newResolver(t, "/does/not/exist.wav")
	_, lease, err := r.Resolve(context.Background(), Request{ReferencePath: "/also/missing.wav", UseReference: true}, caps{rate: 16000})
	require.Error(t, err)
	require.True(t, fault.IsInput(err))
	require.ErrorIs(t, err, ErrNoVoice)
	require.Nil(t, lease)
}

func TestUndecodableReferenceIsInputError(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.wav")
	require.NoError(t, os.WriteFile(bad, []byte("RIFF....WAVEjunk"), 0o644))

	scratch := t.TempDir()
	r := &Resolver{ScratchDir: scratch, Logger: testLogger()}
	_, _, err := r.Resolve(context.Background(), Request{ReferencePath: bad}, caps{speakers: []string{"f1"}, rate: 16000})
	require.Error(t, err)
	require.True(t, fault.IsInput(err))

	entries, err := os.ReadDir(scratch)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestReferenceResampledIntoLease(t *testing.T) {
	scratch := t.TempDir()
	r := &Resolver{ScratchDir: scratch, Logger: testLogger()}
	res, lease, err := r.Resolve(context.Background(), Request{
		ID:     "abc/../123",
		Upload: &Upload{Filename: "../../voice.wav", Data: wavBytes(t, 48000, 48000)},
	}, caps{rate: 16000})
	require.NoError(t, err)
	require.Equal(t, Cloned, res.Kind)
	require.Equal(t, 16000, res.SampleRate)
	require.Equal(t, "wav:voice.wav", res.Descriptor())
	require.Equal(t, scratch, filepath.Dir(lease.Dir()))

	f, err := os.Open(res.ReferencePath)
	require.NoError(t, err)
	w, err := audio.DecodeWAV(f)
	f.Close()
	require.NoError(t, err)
	require.Equal(t, 16000, w.SampleRate)
	require.Len(t, w.Samples, 16000)

	require.NoError(t, lease.Release())
	_, err = os.Stat(res.ReferencePath)
	require.True(t, os.IsNotExist(err))
	require.NoError(t, lease.Release())
}

// floatWAV builds a mono WAV whose samples are stored as 32-bit floats,
// optionally wrapped in a WAVE_FORMAT_EXTENSIBLE header.
func floatWAV(t *testing.T, rate int, extensible bool, samples []float32) []byte {
	t.Helper()
	fmtChunk := new(bytes.Buffer)
	tag := uint16(3)
	if extensible {
		tag = 0xFFFE
	}
	for _, v := range []any{tag, uint16(1), uint32(rate), uint32(rate * 4), uint16(4), uint16(32)} {
		require.NoError(t, binary.Write(fmtChunk, binary.LittleEndian, v))
	}
	if extensible {
		for _, v := range []any{uint16(22), uint16(32), uint32(0), uint16(3)} {
			require.NoError(t, binary.Write(fmtChunk, binary.LittleEndian, v))
		}
		fmtChunk.Write([]byte{0x00, 0x00, 0x00, 0x00, 0x10, 0x00, 0x80, 0x00, 0x00, 0xaa, 0x00, 0x38, 0x9b, 0x71})
	}
	data := new(bytes.Buffer)
	require.NoError(t, binary.Write(data, binary.LittleEndian, samples))

	out := new(bytes.Buffer)
	out.WriteString("RIFF")
	require.NoError(t, binary.Write(out, binary.LittleEndian, uint32(4+8+fmtChunk.Len()+8+data.Len())))
	out.WriteString("WAVEfmt ")
	require.NoError(t, binary.Write(out, binary.LittleEndian, uint32(fmtChunk.Len())))
	out.Write(fmtChunk.Bytes())
	out.WriteString("data")
	require.NoError(t, binary.Write(out, binary.LittleEndian, uint32(data.Len())))
	out.Write(data.Bytes())
	return out.Bytes()
}

func TestFloatAndExtensibleReferencesResolve(t *testing.T) {
	dir := t.TempDir()
	samples := make([]float32, 2400)
	for i := range samples {
		samples[i] = float32(0.4 * math.Sin(float64(i)/8))
	}
	for name, extensible := range map[string]bool{"float.wav": false, "extensible.wav": true} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(path, floatWAV(t, 24000, extensible, samples), 0o644))

			r := newResolver(t, "")
			res, lease, err := r.Resolve(context.Background(), Request{ID: "ref", ReferencePath: path}, caps{rate: 16000})
			require.NoError(t, err)
			defer lease.Release()
			require.Equal(t, Cloned, res.Kind)
			require.Equal(t, "wav:"+name, res.Descriptor())

			f, err := os.Open(res.ReferencePath)
			require.NoError(t, err)
			w, err := audio.DecodeWAV(f)
			f.Close()
			require.NoError(t, err)
			require.Equal(t, 16000, w.SampleRate)
			require.Len(t, w.Samples, 1600)
		})
	}
}

func TestConcurrentUploadsDoNotCollide(t *testing.T) {
	scratch := t.TempDir()
	r := &Resolver{ScratchDir: scratch, Logger: testLogger()}
	engine := caps{rate: 16000}

	a, leaseA, err := r.Resolve(context.Background(), Request{ID: "same", Upload: &Upload{Filename: "a.wav", Data: wavBytes(t, 16000, 100)}}, engine)
	require.NoError(t, err)
	b, leaseB, err := r.Resolve(context.Background(), Request{ID: "same", Upload: &Upload{Filename: "b.wav", Data: wavBytes(t, 16000, 200)}}, engine)
	require.NoError(t, err)
	defer leaseA.Release()
	defer leaseB.Release()

	require.NotEqual(t, a.ReferencePath, b.ReferencePath)
}
