package tts_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-studio/internal/tts"
	"github.com/book-expert/voice-studio/internal/tts/audio"
	"github.com/stretchr/testify/require"
)

const (
	testAPIKey      = "test-api-key"
	testJobID       = "job-123"
	testAudioBase64 = "QUJD"
)

// staticToken satisfies core.TokenSource.
type staticToken string

func (s staticToken) Token(_ context.Context) (string, error) { return string(s), nil }

// fakeInference scripts the run/status endpoints of the inference service.
type fakeInference struct {
	t *testing.T

	mu sync.Mutex
	// submitResponse is returned by POST /run.
	submitResponse map[string]any
	submitStatus   int
	// statuses is consumed by GET /status/{id}; the last entry repeats.
	statuses    []map[string]any
	statusCode  int
	submits     int
	statusCalls int
	lastPayload map[string]any
	authHeaders []string
}

func newFakeInference(t *testing.T) *fakeInference {
	t.Helper()

	return &fakeInference{
		t:              t,
		submitResponse: map[string]any{"id": testJobID, "status": "IN_QUEUE"},
		submitStatus:   http.StatusOK,
		statusCode:     http.StatusOK,
	}
}

func statusBody(status string) map[string]any {
	return map[string]any{"id": testJobID, "status": status}
}

func completedBody(output map[string]any) map[string]any {
	return map[string]any{"id": testJobID, "status": "COMPLETED", "output": output}
}

func (f *fakeInference) ServeHTTP(responseWriter http.ResponseWriter, request *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.authHeaders = append(f.authHeaders, request.Header.Get("Authorization"))

	switch {
	case request.Method == http.MethodPost && request.URL.Path == "/run":
		f.submits++

		body, _ := io.ReadAll(request.Body)
		f.lastPayload = map[string]any{}
		_ = json.Unmarshal(body, &f.lastPayload)

		writeJSON(responseWriter, f.submitStatus, f.submitResponse)
	case request.Method == http.MethodGet && strings.HasPrefix(request.URL.Path, "/status/"):
		f.statusCalls++

		if f.statusCode != http.StatusOK {
			responseWriter.WriteHeader(f.statusCode)
			_, _ = responseWriter.Write([]byte("worker unavailable"))

			return
		}

		index := f.statusCalls - 1
		if index >= len(f.statuses) {
			index = len(f.statuses) - 1
		}

		writeJSON(responseWriter, http.StatusOK, f.statuses[index])
	case request.URL.Path == "/health":
		writeJSON(responseWriter, http.StatusOK, map[string]any{"workers": map[string]int{"idle": 1}})
	default:
		f.t.Errorf("Unexpected request: %s %s", request.Method, request.URL.Path)
		responseWriter.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeInference) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.submits, f.statusCalls
}

func (f *fakeInference) setSubmitResponse(body map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.submitResponse = body
}

func (f *fakeInference) authHeader(index int) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.authHeaders[index]
}

func (f *fakeInference) payloadInput() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()

	input, _ := f.lastPayload["input"].(map[string]any)

	return input
}

func writeJSON(responseWriter http.ResponseWriter, status int, body any) {
	responseWriter.Header().Set("Content-Type", "application/json")
	responseWriter.WriteHeader(status)
	_ = json.NewEncoder(responseWriter).Encode(body)
}

func createTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	lg, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = lg.Close() })

	return lg
}

func newTestEngine(t *testing.T, fake *fakeInference, maxAttempts int) (*tts.Engine, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	client := tts.NewHTTPClient(server.URL, 5*time.Second, nil)
	engine := tts.NewEngineWithClient(client, time.Millisecond, maxAttempts, audio.FormatWAV, createTestLogger(t))

	return engine, server
}

func parseBody(request *http.Request, dest any) error {
	return json.NewDecoder(request.Body).Decode(dest)
}
