package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wavHeader is "RIFF....WAVE" encoded as base64.
const wavHeader = "UklGRgAAAABXQVZF"

// TestParseFlags verifies that command-line flags are parsed correctly.
func TestParseFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		want appFlags
	}{
		{
			name: "text flag parsing",
			args: []string{"--text", "Hello, world!"},
			want: appFlags{text: "Hello, world!"},
		},
		{
			name: "generation options",
			args: []string{"--text", "Hi", "--voice", "alice", "--emotion", "whisper", "--seed", "42", "--output", "out.wav"},
			want: appFlags{text: "Hi", voice: "alice", emotion: "whisper", seed: 42, output: "out.wav"},
		},
		{
			name: "upload flags",
			args: []string{"--upload-name", "My Voice", "--upload-file", "ref.wav", "--upload-transcript", "hello"},
			want: appFlags{uploadName: "My Voice", uploadFile: "ref.wav", uploadTranscript: "hello"},
		},
		{
			name: "boolean actions",
			args: []string{"--health", "--list-voices", "--pay"},
			want: appFlags{health: true, listVoices: true, pay: true},
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			flags, err := parseFlags(testCase.args)
			require.NoError(t, err)
			assert.Equal(t, testCase.want, flags)
		})
	}
}

func TestParseFlagsRejectsUnknownFlag(t *testing.T) {
	t.Parallel()

	_, err := parseFlags([]string{"--bogus"})
	require.Error(t, err)
}

// TestArgumentValidation verifies the rules for required and conflicting
// arguments.
func TestArgumentValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    []string
		wantErr error
	}{
		{name: "success with text flag", args: []string{"--text", "some text"}},
		{name: "success with chunks flag", args: []string{"--chunks", "file.json"}},
		{name: "success with health flag", args: []string{"--health"}},
		{name: "success with list voices", args: []string{"--list-voices"}},
		{name: "success with pay", args: []string{"--pay"}},
		{
			name: "success with upload",
			args: []string{"--upload-name", "Mine", "--upload-file", "ref.wav"},
		},
		{
			name:    "error with both text and chunks",
			args:    []string{"--text", "some text", "--chunks", "file.json"},
			wantErr: ErrManyActions,
		},
		{
			name:    "error with text and pay",
			args:    []string{"--text", "some text", "--pay"},
			wantErr: ErrManyActions,
		},
		{name: "error with no flags", args: nil, wantErr: ErrNoAction},
		{
			name:    "error with non-audio upload",
			args:    []string{"--upload-name", "Mine", "--upload-file", "notes.txt"},
			wantErr: ErrUploadNoAudio,
		},
		{
			name:    "error with upload name only",
			args:    []string{"--upload-name", "Mine"},
			wantErr: ErrUploadNoFile,
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			flags, err := parseFlags(testCase.args)
			require.NoError(t, err)

			err = validateFlags(flags)
			if testCase.wantErr == nil {
				require.NoError(t, err)

				return
			}

			require.ErrorIs(t, err, testCase.wantErr)
		})
	}
}

// newInferenceServer answers health checks and completes every job
// synchronously with a small WAV payload.
func newInferenceServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"workers":{"idle":1}}`))
	})
	mux.HandleFunc("/run", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "job-1",
			"status": "COMPLETED",
			"output": map[string]string{"audio_base64": wavHeader},
		})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return server
}

func writeConfig(t *testing.T, baseURL string) (string, string) {
	t.Helper()

	dir := t.TempDir()
	outputDir := filepath.Join(dir, "out")
	configPath := filepath.Join(dir, "voice-studio.toml")

	content := fmt.Sprintf(`[inference]
base_url = %q

[paths]
base_logs_dir = %q
output_dir = %q
`, baseURL, filepath.Join(dir, "logs"), outputDir)

	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o600))

	return configPath, outputDir
}

func TestRunHealthCheck(t *testing.T) {
	t.Parallel()

	server := newInferenceServer(t)
	configPath, _ := writeConfig(t, server.URL)

	var out bytes.Buffer

	err := run(context.Background(), []string{"--config", configPath, "--health"}, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), msgServiceHealthy)
}

func TestRunGeneratesAudioFile(t *testing.T) {
	t.Parallel()

	server := newInferenceServer(t)
	configPath, outputDir := writeConfig(t, server.URL)

	var out bytes.Buffer

	err := run(context.Background(), []string{"--config", configPath, "--text", "Hello", "--emotion", "excited"}, &out)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(outputDir, "output.wav"))
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(data[:4]))
	assert.Contains(t, out.String(), "output.wav")
}

func TestRunRejectsUnknownEmotion(t *testing.T) {
	t.Parallel()

	server := newInferenceServer(t)
	configPath, _ := writeConfig(t, server.URL)

	err := run(context.Background(), []string{"--config", configPath, "--text", "Hello", "--emotion", "angry"}, &bytes.Buffer{})
	require.Error(t, err)
}

func TestRunPayRequiresSession(t *testing.T) {
	t.Parallel()

	server := newInferenceServer(t)
	configPath, _ := writeConfig(t, server.URL)

	err := run(context.Background(), []string{"--config", configPath, "--pay"}, &bytes.Buffer{})
	require.ErrorIs(t, err, ErrPayNoSession)
}
