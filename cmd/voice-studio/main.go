package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-studio/internal/auth"
	"github.com/book-expert/voice-studio/internal/config"
	"github.com/book-expert/voice-studio/internal/objectstore"
	"github.com/book-expert/voice-studio/internal/payment"
	"github.com/book-expert/voice-studio/internal/playback"
	"github.com/book-expert/voice-studio/internal/studio"
	"github.com/book-expert/voice-studio/internal/tts"
	"github.com/book-expert/voice-studio/internal/tts/ttsutils"
	"github.com/book-expert/voice-studio/internal/upload"
	"github.com/book-expert/voice-studio/internal/voices"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
)

// Flag names.
const (
	flagText             = "text"
	flagVoice            = "voice"
	flagEmotion          = "emotion"
	flagSeed             = "seed"
	flagOutput           = "output"
	flagChunks           = "chunks"
	flagConfig           = "config"
	flagHealth           = "health"
	flagListVoices       = "list-voices"
	flagUploadName       = "upload-name"
	flagUploadFile       = "upload-file"
	flagUploadTranscript = "upload-transcript"
	flagPay              = "pay"
)

// Flag descriptions.
const (
	flagTextDesc             = "Text to convert to speech"
	flagVoiceDesc            = "Voice id to generate with (see --list-voices)"
	flagEmotionDesc          = "Emotion style: excited, whisper, sad, laugh or serious"
	flagSeedDesc             = "Seed for reproducible output (0 = random)"
	flagOutputDesc           = "Output file path, or output directory with --chunks"
	flagChunksDesc           = "JSON file containing text chunks to process"
	flagConfigDesc           = "Path to a TOML config file (defaults to the central configurator)"
	flagHealthDesc           = "Check inference service health and exit"
	flagListVoicesDesc       = "List available voices and exit"
	flagUploadNameDesc       = "Name of a reference voice to upload"
	flagUploadFileDesc       = "Audio file of the reference voice to upload"
	flagUploadTranscriptDesc = "Transcript of the reference audio"
	flagPayDesc              = "Show the top-up QR code and wait for the payment"
)

// Messages.
const (
	errEitherTextOrChunks = "one of --text, --chunks, --health, --list-voices, --upload-name or --pay must be provided"
	errCannotSpecifyBoth  = "cannot specify more than one action"
	errUploadNeedsFile    = "--upload-name requires --upload-file"
	errUploadNotAudio     = "--upload-file must be an audio file"
	errPayNeedsSession    = "--pay requires a session token"
	errPayNeedsDatabase   = "--pay requires payment.database_dsn"
	msgServiceHealthy     = "Inference service is healthy"
	msgGenerated          = "Generated: %s (%s)\n"
	msgChunksGenerated    = "Generated audio files in: %s\n"
	msgVoiceUploaded      = "Uploaded voice %q as %s\n"
	msgScanQR             = "Scan to pay %d VND (memo %q):\n%s\nWaiting for payment...\n"
	msgPaymentConfirmed   = "Payment confirmed via %s: balance %d -> %d\n"
)

const (
	logFileName       = "voice-studio.log"
	defaultOutputFile = "output"
	filePermissions   = 0o600
)

// Static errors.
var (
	ErrNoAction      = errors.New(errEitherTextOrChunks)
	ErrManyActions   = errors.New(errCannotSpecifyBoth)
	ErrUploadNoFile  = errors.New(errUploadNeedsFile)
	ErrUploadNoAudio = errors.New(errUploadNotAudio)
	ErrPayNoSession  = errors.New(errPayNeedsSession)
	ErrPayNoDatabase = errors.New(errPayNeedsDatabase)
)

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	text             string
	voice            string
	emotion          string
	seed             int
	output           string
	chunks           string
	config           string
	health           bool
	listVoices       bool
	uploadName       string
	uploadFile       string
	uploadTranscript string
	pay              bool
}

// app bundles what every action needs.
type app struct {
	cfg    *config.Config
	log    *logger.Logger
	engine *tts.Engine
	out    io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx, os.Args[1:], os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// run is the application entry point, returning an error on failure.
func run(ctx context.Context, args []string, out io.Writer) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}

	err = validateFlags(flags)
	if err != nil {
		return err
	}

	// A missing .env file is fine; values may come from the environment.
	_ = godotenv.Load()

	cfg, log, err := setup(flags.config)
	if err != nil {
		return err
	}
	defer func() { _ = log.Close() }()

	engine, err := tts.NewEngine(cfg, auth.StaticToken(cfg.Inference.APIKey), log)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	application := &app{cfg: cfg, log: log, engine: engine, out: out}

	return application.dispatch(ctx, flags)
}

// parseFlags defines and parses command-line flags, returning them in a struct.
func parseFlags(args []string) (appFlags, error) {
	var flags appFlags

	flagSet := flag.NewFlagSet("voice-studio", flag.ContinueOnError)
	flagSet.StringVar(&flags.text, flagText, "", flagTextDesc)
	flagSet.StringVar(&flags.voice, flagVoice, "", flagVoiceDesc)
	flagSet.StringVar(&flags.emotion, flagEmotion, "", flagEmotionDesc)
	flagSet.IntVar(&flags.seed, flagSeed, 0, flagSeedDesc)
	flagSet.StringVar(&flags.output, flagOutput, "", flagOutputDesc)
	flagSet.StringVar(&flags.chunks, flagChunks, "", flagChunksDesc)
	flagSet.StringVar(&flags.config, flagConfig, "", flagConfigDesc)
	flagSet.BoolVar(&flags.health, flagHealth, false, flagHealthDesc)
	flagSet.BoolVar(&flags.listVoices, flagListVoices, false, flagListVoicesDesc)
	flagSet.StringVar(&flags.uploadName, flagUploadName, "", flagUploadNameDesc)
	flagSet.StringVar(&flags.uploadFile, flagUploadFile, "", flagUploadFileDesc)
	flagSet.StringVar(&flags.uploadTranscript, flagUploadTranscript, "", flagUploadTranscriptDesc)
	flagSet.BoolVar(&flags.pay, flagPay, false, flagPayDesc)

	err := flagSet.Parse(args)
	if err != nil {
		return appFlags{}, fmt.Errorf("failed to parse flags: %w", err)
	}

	return flags, nil
}

// validateFlags checks that exactly one action was requested.
func validateFlags(flags appFlags) error {
	actions := 0

	for _, requested := range []bool{
		flags.text != "",
		flags.chunks != "",
		flags.health,
		flags.listVoices,
		flags.uploadName != "",
		flags.pay,
	} {
		if requested {
			actions++
		}
	}

	switch {
	case actions == 0:
		return ErrNoAction
	case actions > 1:
		return ErrManyActions
	case flags.uploadName != "" && flags.uploadFile == "":
		return ErrUploadNoFile
	case flags.uploadName != "" && !ttsutils.IsValidAudioFile(flags.uploadFile):
		return ErrUploadNoAudio
	}

	return nil
}

// setup loads config and initializes the logger.
func setup(configPath string) (*config.Config, *logger.Logger, error) {
	bootstrapLog, err := logger.New(os.TempDir(), logFileName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	var cfg *config.Config

	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load(bootstrapLog)
	}

	if err != nil {
		_ = bootstrapLog.Close()

		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if cfg.Paths.BaseLogsDir == "" {
		return cfg, bootstrapLog, nil
	}

	_ = bootstrapLog.Close()

	err = ttsutils.EnsureDir(cfg.Paths.BaseLogsDir)
	if err != nil {
		return nil, nil, err
	}

	log, err := logger.New(cfg.Paths.BaseLogsDir, logFileName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, log, nil
}

func (a *app) dispatch(ctx context.Context, flags appFlags) error {
	switch {
	case flags.health:
		return a.healthCheck(ctx)
	case flags.listVoices:
		return a.listVoices(ctx)
	case flags.uploadName != "":
		return a.uploadVoice(ctx, flags)
	case flags.pay:
		return a.pay(ctx)
	case flags.chunks != "":
		return a.generateChunks(ctx, flags)
	default:
		return a.generate(ctx, flags)
	}
}

// healthCheck performs a service health check and prints the result.
func (a *app) healthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err := a.engine.Client().HealthCheck(ctx)
	if err != nil {
		a.log.Error("Health check failed: %v", err)

		return fmt.Errorf("inference service is not healthy: %w", err)
	}

	fmt.Fprintln(a.out, msgServiceHealthy)

	return nil
}

func (a *app) catalog() *voices.Catalog {
	return voices.NewCatalogFromClient(
		voices.PresetsFromConfig(a.cfg.Voices), a.engine.Client(), a.cfg.Voices.CacheTTL(), a.log,
	)
}

func (a *app) listVoices(ctx context.Context) error {
	for _, voice := range a.catalog().List(ctx) {
		fmt.Fprintf(a.out, "%-20s %-20s %s\n", voice.ID, voice.DisplayName, voice.Description)
	}

	return nil
}

func (a *app) uploadVoice(ctx context.Context, flags appFlags) error {
	data, err := os.ReadFile(flags.uploadFile)
	if err != nil {
		return fmt.Errorf("failed to read reference audio: %w", err)
	}

	uploader, err := upload.New(a.cfg.Upload, a.engine.Client(), a.sessionToken(), a.log)
	if err != nil {
		return fmt.Errorf("failed to create uploader: %w", err)
	}

	voiceID, err := uploader.Upload(ctx, flags.uploadName, flags.uploadTranscript, data)
	if err != nil {
		return fmt.Errorf("voice upload failed: %w", err)
	}

	fmt.Fprintf(a.out, msgVoiceUploaded, flags.uploadName, voiceID)

	return nil
}

// sessionToken returns the signed-in session token, or an empty token when no
// usable session is configured.
func (a *app) sessionToken() auth.StaticToken {
	parsed, err := auth.ParseSession(a.cfg.Auth.SessionToken)
	if err != nil {
		return ""
	}

	if parsed.Valid(time.Now()) != nil {
		a.log.Warn("Session of %s has expired; uploading without it", parsed.UserID)

		return ""
	}

	return auth.StaticToken(parsed.Raw)
}

func (a *app) pay(ctx context.Context) error {
	session, err := auth.ParseSession(a.cfg.Auth.SessionToken)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPayNoSession, err)
	}

	err = session.Valid(time.Now())
	if err != nil {
		return err
	}

	if a.cfg.Payment.DatabaseDSN == "" {
		return ErrPayNoDatabase
	}

	db, err := payment.OpenDatabase(a.cfg.Payment.DatabaseDSN)
	if err != nil {
		return err
	}

	store := payment.NewGormBalanceStore(db)

	var feed payment.Subscriber

	if a.cfg.NATS.URL != "" {
		natsConnection, connectErr := nats.Connect(a.cfg.NATS.URL)
		if connectErr != nil {
			a.log.Warn("Realtime balance feed unavailable: %v", connectErr)
		} else {
			defer natsConnection.Close()

			feed = payment.NewFeed(natsConnection, a.cfg.Payment.BalanceSubject, a.log)
		}
	}

	memo := payment.Memo(session.UserID, session.Email)
	fmt.Fprintf(a.out, msgScanQR, a.cfg.Payment.Amount, memo, payment.QRURL(a.cfg.Payment, memo))

	confirmer := payment.NewConfirmer(store, feed, a.cfg.Payment.PollInterval(), a.cfg.Payment.Timeout(), a.log)

	confirmation, err := confirmer.Await(ctx, session.UserID)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, msgPaymentConfirmed, confirmation.Source, confirmation.InitialBalance, confirmation.Balance)

	return nil
}

func (a *app) settings(flags appFlags) tts.Settings {
	settings := tts.SettingsFromConfig(a.cfg.Generation)
	if flags.seed != 0 {
		settings.Seed = flags.seed
	}

	return settings
}

func (a *app) voiceID(catalog *voices.Catalog, flags appFlags) string {
	if flags.voice != "" {
		return flags.voice
	}

	if a.cfg.Generation.DefaultVoice != "" {
		return a.cfg.Generation.DefaultVoice
	}

	presets := catalog.Presets()
	if len(presets) == 0 {
		return ""
	}

	return presets[0].ID
}

// generate converts a single text and writes the audio to disk.
func (a *app) generate(ctx context.Context, flags appFlags) error {
	catalog := a.catalog()
	registry := playback.NewRegistry(objectstore.NewMemory(), a.log)

	session := studio.NewSession(a.engine, registry, catalog, studio.State{
		VoiceID:  a.voiceID(catalog, flags),
		Settings: a.settings(flags),
	}, a.log)
	defer func() { _ = session.Close(context.WithoutCancel(ctx)) }()

	err := session.SetEmotion(flags.emotion)
	if err != nil {
		return err
	}

	state, err := session.Generate(ctx, flags.text)
	if err != nil {
		return fmt.Errorf("failed to process text: %w", err)
	}

	var data []byte

	if playback.IsBlob(state.AudioURL) {
		data, err = session.Audio(ctx)
	} else {
		data, err = a.engine.Client().Download(ctx, state.AudioURL)
	}

	if err != nil {
		return fmt.Errorf("failed to read generated audio: %w", err)
	}

	outputPath := flags.output
	if outputPath == "" {
		outputPath = filepath.Join(a.cfg.Paths.OutputDir, defaultOutputFile+a.engine.Format().Extension())
	}

	err = writeOutput(outputPath, data)
	if err != nil {
		return err
	}

	a.log.Info("Successfully generated speech: %s", outputPath)
	fmt.Fprintf(a.out, msgGenerated, outputPath, ttsutils.FormatFileSize(int64(len(data))))

	return nil
}

// generateChunks converts a file of text chunks.
func (a *app) generateChunks(ctx context.Context, flags appFlags) error {
	outputDir := flags.output
	if outputDir == "" {
		outputDir = a.cfg.Paths.OutputDir
	}

	catalog := voices.NewCatalog(voices.PresetsFromConfig(a.cfg.Voices), nil, 0, a.log)

	template := tts.GenerateInput{
		VoiceID:  a.voiceID(catalog, flags),
		Emotion:  flags.emotion,
		Settings: a.settings(flags),
	}

	err := a.engine.GenerateChunks(ctx, template, flags.chunks, outputDir)
	if err != nil {
		return fmt.Errorf("failed to process chunks: %w", err)
	}

	fmt.Fprintf(a.out, msgChunksGenerated, outputDir)

	return nil
}

func writeOutput(outputPath string, data []byte) error {
	err := ttsutils.EnsureDir(filepath.Dir(outputPath))
	if err != nil {
		return err
	}

	err = os.WriteFile(outputPath, data, filePermissions)
	if err != nil {
		return fmt.Errorf("failed to write audio file: %w", err)
	}

	return nil
}
