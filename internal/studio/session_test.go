package studio_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/book-expert/voice-studio/internal/config"
	"github.com/book-expert/voice-studio/internal/objectstore"
	"github.com/book-expert/voice-studio/internal/playback"
	"github.com/book-expert/voice-studio/internal/studio"
	"github.com/book-expert/voice-studio/internal/tts"
	"github.com/book-expert/voice-studio/internal/tts/audio"
	"github.com/book-expert/voice-studio/internal/voices"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errInferenceDown = errors.New("inference down")

// fakeGenerator returns a distinct audio payload per call. When gate is set
// each call blocks until it receives a value.
type fakeGenerator struct {
	calls   atomic.Int32
	gate    chan struct{}
	started chan struct{}
	err     error
	lastIn  atomic.Value
}

func (f *fakeGenerator) Generate(ctx context.Context, in tts.GenerateInput) (*tts.Result, error) {
	call := f.calls.Add(1)
	f.lastIn.Store(in)

	if f.started != nil {
		f.started <- struct{}{}
	}

	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	job := &tts.Job{ID: fmt.Sprintf("job-%d", call), Status: tts.StatusCompleted}

	if f.err != nil {
		job.Status = tts.StatusFailed

		return &tts.Result{Job: job}, f.err
	}

	return &tts.Result{
		Job: job,
		Audio: tts.Audio{
			Data:     []byte(fmt.Sprintf("audio-%d", call)),
			Format:   audio.FormatWAV,
			MIMEType: audio.MIMETypeWAV,
		},
	}, nil
}

func defaultSettings() tts.Settings {
	cfg := config.Config{}
	cfg.ApplyDefaults()

	return tts.SettingsFromConfig(cfg.Generation)
}

func newSession(t *testing.T, generator studio.Generator) (*studio.Session, *objectstore.MemoryStore) {
	t.Helper()

	store := objectstore.NewMemory()
	registry := playback.NewRegistry(store, nil)
	catalog := voices.NewCatalog(voices.DefaultPresets(), nil, time.Minute, nil)

	session := studio.NewSession(generator, registry, catalog, studio.State{
		VoiceID:  "Donal Trump",
		Settings: defaultSettings(),
	}, nil)

	return session, store
}

func TestSession_GenerateStoresAudio(t *testing.T) {
	t.Parallel()

	generator := &fakeGenerator{}
	session, store := newSession(t, generator)

	require.NoError(t, session.SetEmotion("excited"))

	state, err := session.Generate(context.Background(), "Hello")
	require.NoError(t, err)
	assert.False(t, state.Generating)
	assert.True(t, playback.IsBlob(state.AudioURL))
	assert.Equal(t, audio.MIMETypeWAV, state.MIMEType)
	assert.Equal(t, "job-1", state.Job.ID)
	assert.Empty(t, state.LastError)
	assert.Equal(t, 1, store.Len())

	in, ok := generator.lastIn.Load().(tts.GenerateInput)
	require.True(t, ok)
	assert.Equal(t, "excited", in.Emotion)
	assert.Equal(t, "Donal Trump", in.VoiceID)

	data, err := session.Audio(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("audio-1"), data)
}

func TestSession_NewResultRevokesPreviousURL(t *testing.T) {
	t.Parallel()

	session, store := newSession(t, &fakeGenerator{})

	first, err := session.Generate(context.Background(), "One")
	require.NoError(t, err)

	second, err := session.Generate(context.Background(), "Two")
	require.NoError(t, err)

	assert.NotEqual(t, first.AudioURL, second.AudioURL)
	assert.Equal(t, 1, store.Len())

	require.NoError(t, session.Close(context.Background()))
	assert.Zero(t, store.Len())
	assert.Empty(t, session.Snapshot().AudioURL)
}

func TestSession_RejectsOverlappingGeneration(t *testing.T) {
	t.Parallel()

	generator := &fakeGenerator{gate: make(chan struct{}), started: make(chan struct{}, 1)}
	session, _ := newSession(t, generator)

	done := make(chan error, 1)

	go func() {
		_, err := session.Generate(context.Background(), "First")
		done <- err
	}()

	<-generator.started
	assert.True(t, session.Snapshot().Generating)

	_, err := session.Generate(context.Background(), "Second")
	require.ErrorIs(t, err, studio.ErrGenerationInProgress)

	close(generator.gate)
	require.NoError(t, <-done)

	assert.Equal(t, int32(1), generator.calls.Load())
	assert.False(t, session.Snapshot().Generating)
}

func TestSession_FailureKeepsPreviousAudio(t *testing.T) {
	t.Parallel()

	generator := &fakeGenerator{}
	session, store := newSession(t, generator)

	first, err := session.Generate(context.Background(), "One")
	require.NoError(t, err)

	generator.err = errInferenceDown

	state, err := session.Generate(context.Background(), "Two")
	require.ErrorIs(t, err, errInferenceDown)
	assert.Equal(t, first.AudioURL, state.AudioURL)
	assert.Equal(t, tts.StatusFailed, state.Job.Status)
	assert.Contains(t, state.LastError, "inference down")
	assert.False(t, state.Generating)
	assert.Equal(t, 1, store.Len())
}

func TestSession_Selections(t *testing.T) {
	t.Parallel()

	session, _ := newSession(t, &fakeGenerator{})
	ctx := context.Background()

	require.NoError(t, session.SelectVoice(ctx, "Brian"))
	require.ErrorIs(t, session.SelectVoice(ctx, "nobody"), voices.ErrVoiceNotFound)
	require.ErrorIs(t, session.SelectVoice(ctx, ""), studio.ErrNoVoice)

	require.ErrorIs(t, session.SetEmotion("angry"), studio.ErrUnknownEmotion)
	require.NoError(t, session.SetEmotion(""))

	settings := defaultSettings()
	settings.Speed = 1.5
	require.NoError(t, session.UpdateSettings(settings))

	settings.Temperature = 0
	require.ErrorIs(t, session.UpdateSettings(settings), tts.ErrValidation)

	state := session.Snapshot()
	assert.Equal(t, "Brian", state.VoiceID)
	assert.Empty(t, state.Emotion)
	assert.InDelta(t, 1.5, state.Settings.Speed, 1e-9)
	assert.Len(t, session.Voices(ctx), len(voices.DefaultPresets()))
}

func TestSession_SnapshotIsACopy(t *testing.T) {
	t.Parallel()

	session, _ := newSession(t, &fakeGenerator{})

	_, err := session.Generate(context.Background(), "Hello")
	require.NoError(t, err)

	snapshot := session.Snapshot()
	snapshot.Job.ID = "mutated"
	snapshot.VoiceID = "mutated"

	fresh := session.Snapshot()
	assert.Equal(t, "job-1", fresh.Job.ID)
	assert.Equal(t, "Donal Trump", fresh.VoiceID)
}

func TestEmotions(t *testing.T) {
	t.Parallel()

	ids := make([]string, 0, len(studio.Emotions()))
	for _, emotion := range studio.Emotions() {
		ids = append(ids, emotion.ID)
	}

	assert.Equal(t, []string{"excited", "whisper", "sad", "laugh", "serious"}, ids)
}
