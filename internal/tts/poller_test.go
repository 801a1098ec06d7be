package tts_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/book-expert/voice-studio/internal/tts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPoller(t *testing.T, fake *fakeInference, maxAttempts int) *tts.Poller {
	t.Helper()

	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	client := tts.NewHTTPClient(server.URL, 5*time.Second, nil)

	return tts.NewPoller(client, time.Millisecond, maxAttempts, createTestLogger(t))
}

func TestPoller_Wait_CompletesAfterProgress(t *testing.T) {
	t.Parallel()

	fake := newFakeInference(t)
	fake.statuses = []map[string]any{
		statusBody("IN_QUEUE"),
		statusBody("IN_PROGRESS"),
		completedBody(map[string]any{"audio_base64": testAudioBase64}),
	}

	poller := newTestPoller(t, fake, 10)

	job, err := poller.Wait(context.Background(), &tts.Job{ID: testJobID, Status: tts.StatusQueued})
	require.NoError(t, err)
	assert.Equal(t, tts.StatusCompleted, job.Status)
	assert.Equal(t, 3, job.Attempts)

	_, statusCalls := fake.counts()
	assert.Equal(t, 3, statusCalls)
}

func TestPoller_Wait_TimesOutAfterExactlyMaxAttempts(t *testing.T) {
	t.Parallel()

	const maxAttempts = 4

	fake := newFakeInference(t)
	fake.statuses = []map[string]any{statusBody("IN_PROGRESS")}

	poller := newTestPoller(t, fake, maxAttempts)

	job, err := poller.Wait(context.Background(), &tts.Job{ID: testJobID, Status: tts.StatusQueued})
	require.ErrorIs(t, err, tts.ErrTimeout)
	assert.Equal(t, tts.StatusTimedOut, job.Status)
	assert.Equal(t, maxAttempts, job.Attempts)

	_, statusCalls := fake.counts()
	assert.Equal(t, maxAttempts, statusCalls)
}

func TestPoller_Wait_FailedJobCarriesServerMessage(t *testing.T) {
	t.Parallel()

	fake := newFakeInference(t)
	fake.statuses = []map[string]any{
		statusBody("IN_PROGRESS"),
		{"id": testJobID, "status": "FAILED", "error": "CUDA out of memory"},
	}

	poller := newTestPoller(t, fake, 10)

	job, err := poller.Wait(context.Background(), &tts.Job{ID: testJobID, Status: tts.StatusQueued})
	require.ErrorIs(t, err, tts.ErrJobFailed)
	assert.Contains(t, err.Error(), "CUDA out of memory")
	assert.Equal(t, tts.StatusFailed, job.Status)
}

func TestPoller_Wait_CancelledJob(t *testing.T) {
	t.Parallel()

	fake := newFakeInference(t)
	fake.statuses = []map[string]any{statusBody("CANCELLED")}

	poller := newTestPoller(t, fake, 10)

	_, err := poller.Wait(context.Background(), &tts.Job{ID: testJobID, Status: tts.StatusQueued})
	require.ErrorIs(t, err, tts.ErrJobCancelled)
}

func TestPoller_Wait_StatusFailureFailsFast(t *testing.T) {
	t.Parallel()

	fake := newFakeInference(t)
	fake.statusCode = http.StatusBadGateway

	poller := newTestPoller(t, fake, 10)

	_, err := poller.Wait(context.Background(), &tts.Job{ID: testJobID, Status: tts.StatusQueued})
	require.ErrorIs(t, err, tts.ErrNetwork)

	_, statusCalls := fake.counts()
	assert.Equal(t, 1, statusCalls)
}

func TestPoller_Wait_TerminalJobMakesNoCalls(t *testing.T) {
	t.Parallel()

	fake := newFakeInference(t)
	poller := newTestPoller(t, fake, 10)

	job, err := poller.Wait(context.Background(), &tts.Job{ID: testJobID, Status: tts.StatusCompleted})
	require.NoError(t, err)
	assert.Equal(t, tts.StatusCompleted, job.Status)

	_, statusCalls := fake.counts()
	assert.Zero(t, statusCalls)
}

func TestPoller_Wait_ContextCancellationAborts(t *testing.T) {
	t.Parallel()

	fake := newFakeInference(t)
	fake.statuses = []map[string]any{statusBody("IN_PROGRESS")}

	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	client := tts.NewHTTPClient(server.URL, 5*time.Second, nil)
	poller := tts.NewPoller(client, time.Hour, 10, nil)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)

	go func() {
		_, err := poller.Wait(ctx, &tts.Job{ID: testJobID, Status: tts.StatusQueued})
		done <- err
	}()

	require.Eventually(t, func() bool {
		_, statusCalls := fake.counts()

		return statusCalls == 1
	}, time.Second, 5*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after cancellation")
	}
}
