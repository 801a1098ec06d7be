package tts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-studio/internal/config"
	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/tts/audio"
)

const (
	// File and directory permissions.
	filePermissions = 0o600
	dirPermissions  = 0o750

	outputFileFormat = "chunk_%04d%s"
	defaultWorkers   = 2
)

// Static errors.
var (
	ErrOutputPathEmpty = errors.New("output path cannot be empty")
	ErrNoChunksFound   = errors.New("no chunks found")
)

const (
	logFmtSubmitting      = "Submitting generation: voice=%q, %d characters"
	logFmtJobCreated      = "Job created: %s (%s). Polling..."
	logFmtJobSynchronous  = "Job %s completed synchronously"
	logFmtGenerated       = "Generated audio for job %s: %s, %d bytes"
	logFmtGeneratedRemote = "Generated audio for job %s at %s"
	logFmtChunkFailed     = "Failed to process chunk %d: %v"
	logFmtChunkProcessed  = "Processed chunk %d/%d"
)

// GenerateInput is what the user submits: current settings plus text.
type GenerateInput struct {
	Text     string
	VoiceID  string
	Emotion  string
	Settings Settings
}

// Result is a finished generation.
type Result struct {
	Request GenerationRequest
	Job     *Job
	Audio   Audio
}

// Engine runs the full generation pipeline against the inference service.
// It holds no per-generation state and is safe for concurrent use.
type Engine struct {
	client  *HTTPClient
	poller  *Poller
	format  audio.Format
	workers int
	log     *logger.Logger
}

// NewEngine builds an engine from configuration.
func NewEngine(cfg *config.Config, tokens core.TokenSource, log *logger.Logger) (*Engine, error) {
	format, err := audio.ParseFormat(cfg.Inference.AudioFormat)
	if err != nil {
		return nil, fmt.Errorf("invalid inference audio format: %w", err)
	}

	client := NewHTTPClient(cfg.Inference.BaseURL, cfg.Inference.Timeout(), tokens)

	return NewEngineWithClient(client, cfg.Inference.PollInterval(), cfg.Inference.MaxPollAttempts, format, log), nil
}

// NewEngineWithClient builds an engine around an existing client, primarily
// so tests can shorten the poll interval.
func NewEngineWithClient(
	client *HTTPClient,
	pollInterval time.Duration,
	maxAttempts int,
	format audio.Format,
	log *logger.Logger,
) *Engine {
	return &Engine{
		client:  client,
		poller:  NewPoller(client, pollInterval, maxAttempts, log),
		format:  format,
		workers: defaultWorkers,
		log:     log,
	}
}

// Client returns the underlying HTTP client.
func (e *Engine) Client() *HTTPClient {
	return e.client
}

// Format returns the audio format requested from the service.
func (e *Engine) Format() audio.Format {
	return e.format
}

// Generate validates the input, submits the job, polls it and decodes the
// result. Validation failures never reach the network.
func (e *Engine) Generate(ctx context.Context, in GenerateInput) (*Result, error) {
	req, err := BuildRequest(in.Settings, in.VoiceID, in.Emotion, in.Text)
	if err != nil {
		return nil, err
	}

	e.logf(logFmtSubmitting, req.VoiceID, len(req.Text))

	job, err := e.client.Submit(ctx, req, string(e.format))
	if err != nil {
		return nil, fmt.Errorf("failed to submit generation: %w", err)
	}

	if job.Status == StatusCompleted {
		e.logf(logFmtJobSynchronous, job.ID)
	} else {
		e.logf(logFmtJobCreated, job.ID, job.Status)
	}

	final, err := e.poller.Wait(ctx, job)
	if err != nil {
		return &Result{Request: req, Job: final}, err
	}

	decoded, err := Decode(final, e.format)
	if err != nil {
		return &Result{Request: req, Job: final}, err
	}

	if decoded.Remote() {
		e.logf(logFmtGeneratedRemote, final.ID, decoded.URL)
	} else {
		e.logf(logFmtGenerated, final.ID, decoded.MIMEType, len(decoded.Data))
	}

	return &Result{Request: req, Job: final, Audio: decoded}, nil
}

// AudioBytes returns the audio of a result, downloading it when the service
// returned a direct URL.
func (e *Engine) AudioBytes(ctx context.Context, result *Result) ([]byte, error) {
	if !result.Audio.Remote() {
		return result.Audio.Data, nil
	}

	data, err := e.client.Download(ctx, result.Audio.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch generated audio: %w", err)
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty download from %s", ErrDecode, result.Audio.URL)
	}

	return data, nil
}

// GenerateToFile generates speech and writes the audio to outputPath,
// creating parent directories as needed.
func (e *Engine) GenerateToFile(ctx context.Context, in GenerateInput, outputPath string) (*Result, error) {
	if outputPath == "" {
		return nil, ErrOutputPathEmpty
	}

	result, err := e.Generate(ctx, in)
	if err != nil {
		return result, err
	}

	data, err := e.AudioBytes(ctx, result)
	if err != nil {
		return result, err
	}

	dirErr := os.MkdirAll(filepath.Dir(outputPath), dirPermissions)
	if dirErr != nil {
		return result, fmt.Errorf("failed to create output directory: %w", dirErr)
	}

	writeErr := os.WriteFile(outputPath, data, filePermissions)
	if writeErr != nil {
		return result, fmt.Errorf("failed to write audio file: %w", writeErr)
	}

	return result, nil
}

// GenerateChunks reads a JSON array of texts and generates one file per
// entry in outputDir (chunk_0001.wav, chunk_0002.wav, ...). Chunks run in
// parallel on a small worker pool; a failing chunk does not stop the others
// and the last failure is returned.
func (e *Engine) GenerateChunks(ctx context.Context, template GenerateInput, chunksPath, outputDir string) error {
	chunks, err := readChunksFile(chunksPath)
	if err != nil {
		return fmt.Errorf("failed to read chunks: %w", err)
	}

	var (
		waitGroup sync.WaitGroup
		mutex     sync.Mutex
		lastError error
	)

	workerPool := make(chan struct{}, e.workers)

	for chunkIndex, chunk := range chunks {
		waitGroup.Add(1)

		go func(index int, text string) {
			defer waitGroup.Done()

			workerPool <- struct{}{}

			defer func() { <-workerPool }()

			in := template
			in.Text = text
			outputPath := filepath.Join(outputDir, fmt.Sprintf(outputFileFormat, index+1, e.format.Extension()))

			_, genErr := e.GenerateToFile(ctx, in, outputPath)
			if genErr != nil {
				mutex.Lock()
				lastError = fmt.Errorf("chunk %d failed: %w", index+1, genErr)
				mutex.Unlock()

				e.errorf(logFmtChunkFailed, index+1, genErr)

				return
			}

			e.logf(logFmtChunkProcessed, index+1, len(chunks))
		}(chunkIndex, chunk)
	}

	waitGroup.Wait()

	return lastError
}

func readChunksFile(chunksPath string) ([]string, error) {
	data, err := os.ReadFile(chunksPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var chunks []string

	err = parseJSON(data, &chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to parse chunks JSON: %w", err)
	}

	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoChunksFound, chunksPath)
	}

	return chunks, nil
}

func (e *Engine) logf(format string, args ...any) {
	if e.log != nil {
		e.log.Info(format, args...)
	}
}

func (e *Engine) errorf(format string, args ...any) {
	if e.log != nil {
		e.log.Error(format, args...)
	}
}
