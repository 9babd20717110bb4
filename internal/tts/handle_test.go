package tts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-speech/internal/fault"
)

func TestConcurrentFirstUseLoadsOnce(t *testing.T) {
	release := make(chan struct{})
	backend := &fakeBackend{caps: Capabilities{Speakers: []string{"f1", "m2"}, SampleRate: 24000}}
	loader := NewLoader(XTTS, func(context.Context) (Backend, error) {
		<-release
		return backend, nil
	}, testLogger())

	var wg sync.WaitGroup
	handles := make([]*Handle, 16)
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := loader.Get(context.Background())
			if err == nil {
				handles[i] = h
			}
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	require.EqualValues(t, 1, loader.Loads())
	for _, h := range handles {
		require.Same(t, handles[0], h)
	}
	require.Equal(t, "f1", handles[0].DefaultSpeaker())
	require.Equal(t, []string{"f1", "m2"}, handles[0].BuiltInSpeakers())

	_, err := loader.Get(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, loader.Loads())
}

func TestFailedLoadIsRetried(t *testing.T) {
	attempts := 0
	loader := NewLoader(CosyVoice, func(context.Context) (Backend, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("model weights missing")
		}
		return &fakeBackend{}, nil
	}, testLogger())

	_, err := loader.Get(context.Background())
	require.Error(t, err)
	require.Equal(t, fault.KindInvocation, fault.KindOf(err))
	require.Nil(t, loader.Loaded())

	h, err := loader.Get(context.Background())
	require.NoError(t, err)
	require.NotNil(t, h)
	require.EqualValues(t, 2, loader.Loads())
}

func TestProbeFailureMeansNoSpeakers(t *testing.T) {
	backend := &fakeBackend{describeErr: errors.New("speaker_manager missing")}
	h := loadedHandle(XTTS, backend)
	require.Empty(t, h.BuiltInSpeakers())
	require.Empty(t, h.DefaultSpeaker())
	require.Equal(t, XTTS.SampleRate, h.SampleRate())
	require.Equal(t, 22050, h.ReferenceSampleRate())
}

func TestHandleSpeakersAreCopied(t *testing.T) {
	h := loadedHandle(XTTS, &fakeBackend{caps: Capabilities{Speakers: []string{"a"}}})
	got := h.BuiltInSpeakers()
	got[0] = "mutated"
	require.Equal(t, []string{"a"}, h.BuiltInSpeakers())
}

func TestGetHonoursCallerContext(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	loader := NewLoader(XTTS, func(context.Context) (Backend, error) {
		<-block
		return &fakeBackend{}, nil
	}, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := loader.Get(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEngineByName(t *testing.T) {
	e, err := EngineByName("cosyvoice")
	require.NoError(t, err)
	require.True(t, e.ZeroShot)
	require.Equal(t, 16000, e.ReferenceSampleRate)

	_, err = EngineByName("tacotron")
	require.Error(t, err)
}
