package tts_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/book-expert/voice-studio/internal/tts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler, tokens staticToken) *tts.HTTPClient {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	if tokens == "" {
		return tts.NewHTTPClient(server.URL+"/", 5*time.Second, nil)
	}

	return tts.NewHTTPClient(server.URL+"/", 5*time.Second, tokens)
}

func testRequest(t *testing.T, seed int) tts.GenerationRequest {
	t.Helper()

	settings := defaultSettings()
	settings.Seed = seed

	req, err := tts.BuildRequest(settings, "brian", "excited", "Hello there")
	require.NoError(t, err)

	return req
}

func TestHTTPClient_Submit_CreatesJob(t *testing.T) {
	t.Parallel()

	fake := newFakeInference(t)
	client := newTestClient(t, fake, testAPIKey)

	job, err := client.Submit(context.Background(), testRequest(t, 0), "wav")
	require.NoError(t, err)
	assert.Equal(t, testJobID, job.ID)
	assert.Equal(t, tts.StatusQueued, job.Status)

	input := fake.payloadInput()
	assert.Equal(t, "tts", input["task"])
	assert.Equal(t, "[excited] Hello there", input["text"])
	assert.Equal(t, "brian", input["reference_id"])
	assert.Equal(t, "wav", input["format"])
	assert.Contains(t, input, "seed")
	assert.Nil(t, input["seed"])
	assert.Equal(t, "Bearer "+testAPIKey, fake.authHeader(0))
}

func TestHTTPClient_Submit_SendsExplicitSeed(t *testing.T) {
	t.Parallel()

	fake := newFakeInference(t)
	client := newTestClient(t, fake, "")

	_, err := client.Submit(context.Background(), testRequest(t, 42), "wav")
	require.NoError(t, err)

	input := fake.payloadInput()
	assert.InDelta(t, 42, input["seed"], 0)
	assert.Empty(t, fake.authHeader(0))
}

func TestHTTPClient_Submit_SynchronousCompletion(t *testing.T) {
	t.Parallel()

	fake := newFakeInference(t)
	fake.submitResponse = completedBody(map[string]any{"audio_base64": testAudioBase64})
	client := newTestClient(t, fake, "")

	job, err := client.Submit(context.Background(), testRequest(t, 0), "wav")
	require.NoError(t, err)
	assert.Equal(t, tts.StatusCompleted, job.Status)
	assert.NotEmpty(t, job.Output)
}

func TestHTTPClient_Submit_MissingIDIsProtocolError(t *testing.T) {
	t.Parallel()

	fake := newFakeInference(t)
	fake.submitResponse = map[string]any{"status": "IN_QUEUE"}
	client := newTestClient(t, fake, "")

	_, err := client.Submit(context.Background(), testRequest(t, 0), "wav")
	require.ErrorIs(t, err, tts.ErrProtocol)
}

func TestHTTPClient_Submit_NetworkErrorKeepsBody(t *testing.T) {
	t.Parallel()

	fake := newFakeInference(t)
	fake.submitStatus = http.StatusUnauthorized
	fake.submitResponse = map[string]any{"error": "invalid api key"}
	client := newTestClient(t, fake, "")

	_, err := client.Submit(context.Background(), testRequest(t, 0), "wav")
	require.ErrorIs(t, err, tts.ErrNetwork)

	var netErr *tts.NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.Equal(t, http.StatusUnauthorized, netErr.StatusCode)
	assert.Equal(t, "invalid api key", netErr.Body)
}

func TestHTTPClient_Status_NormalizesState(t *testing.T) {
	t.Parallel()

	fake := newFakeInference(t)
	fake.statuses = []map[string]any{{"status": "IN_QUEUE"}}
	client := newTestClient(t, fake, "")

	job, err := client.Status(context.Background(), testJobID)
	require.NoError(t, err)
	assert.Equal(t, testJobID, job.ID)
	assert.Equal(t, tts.StatusQueued, job.Status)
}

func TestHTTPClient_Status_ErrorObject(t *testing.T) {
	t.Parallel()

	fake := newFakeInference(t)
	fake.statuses = []map[string]any{{"id": testJobID, "status": "FAILED", "error": map[string]any{"code": 7}}}
	client := newTestClient(t, fake, "")

	job, err := client.Status(context.Background(), testJobID)
	require.NoError(t, err)
	assert.Equal(t, tts.StatusFailed, job.Status)
	assert.JSONEq(t, `{"code":7}`, job.Error)
}

func TestHTTPClient_RunSync(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		assert.Equal(t, "/runsync", request.URL.Path)

		var body struct {
			Input struct {
				Task string `json:"task"`
			} `json:"input"`
		}

		assert.NoError(t, parseBody(request, &body))
		assert.Equal(t, "list_voices", body.Input.Task)

		writeJSON(responseWriter, http.StatusOK, map[string]any{"status": "COMPLETED", "output": map[string]any{"ok": true}})
	})

	client := newTestClient(t, handler, "")

	var out struct {
		Output struct {
			OK bool `json:"ok"`
		} `json:"output"`
	}

	err := client.RunSync(context.Background(), map[string]string{"task": "list_voices"}, &out)
	require.NoError(t, err)
	assert.True(t, out.Output.OK)
}

func TestHTTPClient_RunSync_MalformedResponse(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(responseWriter http.ResponseWriter, _ *http.Request) {
		_, _ = responseWriter.Write([]byte("<html>oops</html>"))
	})

	client := newTestClient(t, handler, "")

	var out map[string]any

	err := client.RunSync(context.Background(), map[string]string{"task": "list_voices"}, &out)
	require.ErrorIs(t, err, tts.ErrProtocol)
}

func TestHTTPClient_HealthCheck(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, newFakeInference(t), "")

	require.NoError(t, client.HealthCheck(context.Background()))
}

func TestHTTPClient_Download(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		if request.URL.Path == "/missing.wav" {
			http.NotFound(responseWriter, request)

			return
		}

		_, _ = responseWriter.Write([]byte("ABC"))
	})

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := tts.NewHTTPClient("http://unused.invalid", 5*time.Second, nil)

	data, err := client.Download(context.Background(), server.URL+"/a.wav")
	require.NoError(t, err)
	assert.Equal(t, []byte("ABC"), data)

	_, err = client.Download(context.Background(), server.URL+"/missing.wav")
	require.ErrorIs(t, err, tts.ErrNetwork)
}
