package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ultimatebot/ultimatebot/internal/api"
	"github.com/ultimatebot/ultimatebot/internal/chatbot"
	"github.com/ultimatebot/ultimatebot/internal/genai"
	"github.com/ultimatebot/ultimatebot/internal/knowledge"
	"github.com/ultimatebot/ultimatebot/internal/lockfile"
	"github.com/ultimatebot/ultimatebot/internal/messaging"
	"github.com/ultimatebot/ultimatebot/internal/scheduler"
	"github.com/ultimatebot/ultimatebot/internal/store"
	"github.com/ultimatebot/ultimatebot/internal/telegram"
	"github.com/ultimatebot/ultimatebot/internal/twiliowhatsapp"
	"github.com/ultimatebot/ultimatebot/internal/util"
	"github.com/ultimatebot/ultimatebot/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for UltimateBot state data
	DefaultStateDir = "/var/lib/ultimatebot"
	// DefaultAppDBFileName is the default SQLite transcript database filename
	DefaultAppDBFileName = "ultimatebot.db"
	// DefaultWhatsAppDBFileName is the default SQLite database filename for WhatsApp sessions
	DefaultWhatsAppDBFileName = "whatsmeow.db"
	// DefaultTranscriptMaxEntries caps the in-memory transcript; older entries are flushed to the store
	DefaultTranscriptMaxEntries = 1000
	// DefaultFlushSchedule is how often pending transcript entries are written to the store
	DefaultFlushSchedule = "@every 1m"
)

func main() {
	dotenvErr := godotenv.Load()
	initializeLogger(os.Getenv("LOG_LEVEL"))
	if dotenvErr != nil {
		slog.Debug("failed to load .env file", "error", dotenvErr)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := loadEnvironmentConfig()
	flags, err := parseCommandLineFlags(flag.CommandLine, os.Args[1:], config)
	if err != nil {
		slog.Error("Failed to parse flags", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping UltimateBot", "state_dir", flags.StateDir, "api_addr", flags.APIAddr)
	if err := run(ctx, flags); err != nil {
		var lockErr *lockfile.LockError
		if errors.As(err, &lockErr) {
			fmt.Fprintln(os.Stderr, lockErr.Error())
		}
		slog.Error("UltimateBot failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("UltimateBot exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir             string
	DatabaseURL          string
	TranscriptFile       string
	APIAddr              string
	AllowedOrigin        string
	OpenAIKey            string
	OpenAIModel          string
	OpenAIBaseURL        string
	LookupTimeout        time.Duration
	WikipediaEnabled     bool
	WikipediaURL         string
	KnowledgeDir         string
	PersonaFile          string
	TranscriptMaxEntries int
	FlushSchedule        string
	WhatsAppEnabled      bool
	WhatsAppDSN          string
	TwilioEnabled        bool
	TwilioWebhookURL     string
	TelegramToken        string
}

// Flags holds the resolved configuration after command line overrides.
type Flags struct {
	Config
	QROutput    string
	NumericCode bool
}

// initializeLogger sets up structured logging. Unknown or empty levels default to debug.
func initializeLogger(level string) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(level)}))
	slog.SetDefault(logger)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}

// loadEnvironmentConfig loads configuration from environment variables
func loadEnvironmentConfig() Config {
	config := Config{
		StateDir:             os.Getenv("ULTIMATEBOT_STATE_DIR"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		TranscriptFile:       os.Getenv("TRANSCRIPT_FILE"),
		APIAddr:              os.Getenv("API_ADDR"),
		AllowedOrigin:        os.Getenv("CORS_ALLOWED_ORIGIN"),
		OpenAIKey:            os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:          os.Getenv("OPENAI_MODEL"),
		OpenAIBaseURL:        os.Getenv("OPENAI_BASE_URL"),
		LookupTimeout:        util.ParseDurationEnv("LOOKUP_TIMEOUT", chatbot.DefaultLookupTimeout),
		WikipediaEnabled:     util.ParseBoolEnv("WIKIPEDIA_ENABLED", true),
		WikipediaURL:         os.Getenv("WIKIPEDIA_URL"),
		KnowledgeDir:         os.Getenv("KNOWLEDGE_DIR"),
		PersonaFile:          os.Getenv("PERSONA_FILE"),
		TranscriptMaxEntries: util.ParseIntEnv("TRANSCRIPT_MAX_ENTRIES", DefaultTranscriptMaxEntries),
		FlushSchedule:        os.Getenv("TRANSCRIPT_FLUSH_SCHEDULE"),
		WhatsAppEnabled:      util.ParseBoolEnv("WHATSAPP_ENABLED", false),
		WhatsAppDSN:          os.Getenv("WHATSAPP_DB_DSN"),
		TwilioEnabled:        os.Getenv("TWILIO_ACCOUNT_SID") != "" && os.Getenv("TWILIO_AUTH_TOKEN") != "",
		TwilioWebhookURL:     os.Getenv("TWILIO_WEBHOOK_URL"),
		TelegramToken:        os.Getenv("TELEGRAM_BOT_TOKEN"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No ULTIMATEBOT_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.FlushSchedule == "" {
		config.FlushSchedule = DefaultFlushSchedule
	}
	config.resolveDSNs()

	slog.Debug("environment variables loaded",
		"ULTIMATEBOT_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", os.Getenv("DATABASE_URL") != "",
		"TRANSCRIPT_FILE", config.TranscriptFile,
		"API_ADDR", config.APIAddr,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"LOOKUP_TIMEOUT", config.LookupTimeout,
		"WIKIPEDIA_ENABLED", config.WikipediaEnabled,
		"KNOWLEDGE_DIR", config.KnowledgeDir,
		"TRANSCRIPT_MAX_ENTRIES", config.TranscriptMaxEntries,
		"TRANSCRIPT_FLUSH_SCHEDULE", config.FlushSchedule,
		"WHATSAPP_ENABLED", config.WhatsAppEnabled,
		"TWILIO_ENABLED", config.TwilioEnabled,
		"TELEGRAM_ENABLED", config.TelegramToken != "")

	return config
}

// resolveDSNs fills in state-directory defaults. TRANSCRIPT_FILE takes precedence over
// DATABASE_URL for the transcript store.
func (c *Config) resolveDSNs() {
	if c.TranscriptFile != "" {
		c.DatabaseURL = c.TranscriptFile
	}
	if c.DatabaseURL == "" {
		c.DatabaseURL = filepath.Join(c.StateDir, DefaultAppDBFileName)
	}
	if c.WhatsAppDSN == "" {
		c.WhatsAppDSN = "file:" + filepath.Join(c.StateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
	}
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(fs *flag.FlagSet, args []string, config Config) (Flags, error) {
	flags := Flags{Config: config}
	envStateDir := config.StateDir
	envDSN := config.DatabaseURL
	envWhatsAppDSN := config.WhatsAppDSN

	fs.StringVar(&flags.StateDir, "state-dir", config.StateDir, "state directory for UltimateBot data (overrides $ULTIMATEBOT_STATE_DIR)")
	fs.StringVar(&flags.DatabaseURL, "db-dsn", config.DatabaseURL, "transcript store DSN: SQLite path, Postgres URL, redis:// URL or .json file (overrides $DATABASE_URL)")
	fs.StringVar(&flags.APIAddr, "api-addr", config.APIAddr, "API server address (overrides $API_ADDR)")
	fs.StringVar(&flags.OpenAIKey, "openai-api-key", config.OpenAIKey, "OpenAI API key enabling sentiment and entity analysis (overrides $OPENAI_API_KEY)")
	fs.StringVar(&flags.OpenAIModel, "openai-model", config.OpenAIModel, "OpenAI model for analysis (overrides $OPENAI_MODEL)")
	fs.DurationVar(&flags.LookupTimeout, "lookup-timeout", config.LookupTimeout, "timeout for a single knowledge lookup (overrides $LOOKUP_TIMEOUT)")
	fs.StringVar(&flags.KnowledgeDir, "knowledge-dir", config.KnowledgeDir, "directory of knowledge JSON files merged over the bundled ones (overrides $KNOWLEDGE_DIR)")
	fs.StringVar(&flags.PersonaFile, "persona", config.PersonaFile, "YAML persona file (overrides $PERSONA_FILE)")
	fs.IntVar(&flags.TranscriptMaxEntries, "max-entries", config.TranscriptMaxEntries, "in-memory transcript cap, 0 for unbounded (overrides $TRANSCRIPT_MAX_ENTRIES)")
	fs.StringVar(&flags.FlushSchedule, "flush-schedule", config.FlushSchedule, "cron schedule for transcript flushes, \"off\" to disable (overrides $TRANSCRIPT_FLUSH_SCHEDULE)")
	fs.BoolVar(&flags.WikipediaEnabled, "wikipedia", config.WikipediaEnabled, "fall back to Wikipedia for unknown queries (overrides $WIKIPEDIA_ENABLED)")
	fs.BoolVar(&flags.WhatsAppEnabled, "whatsapp", config.WhatsAppEnabled, "enable the WhatsApp channel (overrides $WHATSAPP_ENABLED)")
	fs.StringVar(&flags.QROutput, "qr-output", "", "path to write the WhatsApp login QR code")
	fs.BoolVar(&flags.NumericCode, "numeric-code", false, "print the raw WhatsApp login code instead of a QR code")

	if err := fs.Parse(args); err != nil {
		return flags, err
	}

	// Defaults derived from the state directory follow a -state-dir override.
	if flags.StateDir != envStateDir {
		if flags.DatabaseURL == envDSN && envDSN == filepath.Join(envStateDir, DefaultAppDBFileName) {
			flags.DatabaseURL = filepath.Join(flags.StateDir, DefaultAppDBFileName)
			slog.Debug("Updated transcript DSN based on state directory", "state_dir", flags.StateDir)
		}
		if flags.WhatsAppDSN == envWhatsAppDSN && envWhatsAppDSN == "file:"+filepath.Join(envStateDir, DefaultWhatsAppDBFileName)+"?_foreign_keys=on" {
			flags.WhatsAppDSN = "file:" + filepath.Join(flags.StateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
		}
	}

	slog.Debug("flags parsed",
		"stateDir", flags.StateDir,
		"dbDSN_type", store.DetectDSNType(flags.DatabaseURL),
		"apiAddr", flags.APIAddr,
		"lookupTimeout", flags.LookupTimeout,
		"maxEntries", flags.TranscriptMaxEntries,
		"whatsapp", flags.WhatsAppEnabled)
	return flags, nil
}

// ensureDirectoriesExist creates the state directory and the directory of a file-based store.
func ensureDirectoriesExist(flags Flags) error {
	dirs := []string{flags.StateDir}
	switch store.DetectDSNType(flags.DatabaseURL) {
	case store.DSNTypeSQLite, store.DSNTypeJSON:
		dirs = append(dirs, filepath.Dir(strings.TrimPrefix(flags.DatabaseURL, "file:")))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// run wires every module together and blocks until ctx is cancelled.
func run(ctx context.Context, flags Flags) error {
	if err := ensureDirectoriesExist(flags); err != nil {
		return err
	}
	lock, err := lockfile.AcquireLock(flags.StateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	st, err := store.Open(ctx, flags.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open transcript store: %w", err)
	}

	botOpts, err := buildBotOptions(flags, st)
	if err != nil {
		st.Close()
		return err
	}
	bot := chatbot.New(botOpts...)

	services, twilioService, err := buildServices(ctx, flags)
	if err != nil {
		st.Close()
		return err
	}

	sched, err := buildScheduler(flags, bot.Transcript())
	if err != nil {
		st.Close()
		return err
	}

	apiOpts := buildAPIOptions(flags)
	apiOpts = append(apiOpts,
		api.WithStore(st),
		api.WithRouter(messaging.NewChatRouter(bot, services...)),
		api.WithScheduler(sched),
	)
	if twilioService != nil {
		apiOpts = append(apiOpts, api.WithTwilioService(twilioService))
	}
	return api.NewServer(bot, apiOpts...).Run(ctx)
}

// buildScheduler starts the scheduler and registers the periodic transcript flush.
func buildScheduler(flags Flags, transcript scheduler.Flusher) (*scheduler.Scheduler, error) {
	sched := scheduler.NewScheduler()
	if flags.FlushSchedule == "" || strings.EqualFold(flags.FlushSchedule, "off") {
		slog.Debug("Periodic transcript flush disabled")
		return sched, nil
	}
	if err := sched.AddJob(flags.FlushSchedule, scheduler.FlushJob(transcript, scheduler.DefaultFlushTimeout)); err != nil {
		sched.Stop(context.Background())
		return nil, fmt.Errorf("invalid flush schedule %q: %w", flags.FlushSchedule, err)
	}
	return sched, nil
}

// buildLookup assembles the knowledge chain: bundled data, optional KNOWLEDGE_DIR overrides,
// then Wikipedia.
func buildLookup(flags Flags) (knowledge.Lookup, error) {
	base, err := knowledge.LoadEmbedded()
	if err != nil {
		return nil, err
	}
	if flags.KnowledgeDir != "" {
		if !knowledge.DirHasDatabases(flags.KnowledgeDir) {
			slog.Warn("Knowledge directory has no database files, using bundled data only", "dir", flags.KnowledgeDir)
		} else {
			extra, err := knowledge.LoadDir(flags.KnowledgeDir)
			if err != nil {
				return nil, fmt.Errorf("failed to load knowledge directory: %w", err)
			}
			base = base.Merge(extra)
		}
	}
	slog.Debug("Knowledge base loaded", "records", base.Len())

	if !flags.WikipediaEnabled {
		return base, nil
	}
	var wikiOpts []knowledge.WikipediaOption
	if flags.WikipediaURL != "" {
		wikiOpts = append(wikiOpts, knowledge.WithBaseURL(flags.WikipediaURL))
	}
	return knowledge.NewChain(base, knowledge.NewWikipedia(wikiOpts...)), nil
}

// buildBotOptions constructs chatbot configuration options
func buildBotOptions(flags Flags, sink chatbot.Sink) ([]chatbot.Option, error) {
	lookup, err := buildLookup(flags)
	if err != nil {
		return nil, err
	}
	opts := []chatbot.Option{
		chatbot.WithLookup(lookup),
		chatbot.WithLookupTimeout(flags.LookupTimeout),
		chatbot.WithTranscript(chatbot.NewTranscript(
			chatbot.WithMaxEntries(flags.TranscriptMaxEntries),
			chatbot.WithSink(sink),
		)),
	}

	if flags.PersonaFile != "" {
		persona, err := chatbot.LoadPersona(flags.PersonaFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load persona: %w", err)
		}
		opts = append(opts, chatbot.WithPersona(persona))
		slog.Info("Persona loaded", "name", persona.Name, "path", flags.PersonaFile)
	}

	if flags.OpenAIKey != "" {
		analyzer, err := genai.NewClient(buildGenAIOptions(flags)...)
		if err != nil {
			return nil, fmt.Errorf("failed to create analyzer: %w", err)
		}
		opts = append(opts, chatbot.WithAnalyzer(analyzer))
	} else {
		slog.Debug("No OpenAI API key, query turns will not be analyzed")
	}
	return opts, nil
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if flags.OpenAIKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(flags.OpenAIKey))
	}
	if flags.OpenAIModel != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(flags.OpenAIModel))
	}
	if flags.OpenAIBaseURL != "" {
		genaiOpts = append(genaiOpts, genai.WithBaseURL(flags.OpenAIBaseURL))
	}
	return genaiOpts
}

// buildWhatsAppOptions constructs WhatsApp configuration options
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	var waOpts []whatsapp.Option
	if flags.QROutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(flags.QROutput))
	}
	if flags.NumericCode {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	if flags.WhatsAppDSN != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(flags.WhatsAppDSN))
	}
	return waOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if flags.APIAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(flags.APIAddr))
	}
	if flags.AllowedOrigin != "" {
		apiOpts = append(apiOpts, api.WithAllowedOrigin(flags.AllowedOrigin))
	}
	return apiOpts
}

// buildServices connects every enabled messaging channel. The Twilio service is also
// returned on its own because its webhook is mounted on the API server.
func buildServices(ctx context.Context, flags Flags) ([]messaging.Service, *messaging.TwilioService, error) {
	var services []messaging.Service
	var twilioService *messaging.TwilioService

	if flags.WhatsAppEnabled {
		waClient, err := whatsapp.NewClient(ctx, buildWhatsAppOptions(flags)...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create WhatsApp client: %w", err)
		}
		services = append(services, messaging.NewWhatsAppService(waClient))
	}

	if flags.TwilioEnabled {
		client, err := twiliowhatsapp.NewClient()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Twilio client: %w", err)
		}
		validator := twiliowhatsapp.NewWebhookValidator(os.Getenv("TWILIO_AUTH_TOKEN"), flags.TwilioWebhookURL)
		twilioService = messaging.NewTwilioService(client, validator)
		services = append(services, twilioService)
	}

	if flags.TelegramToken != "" {
		client, err := telegram.NewClient(telegram.WithToken(flags.TelegramToken))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Telegram client: %w", err)
		}
		services = append(services, messaging.NewTelegramService(client))
	}

	names := make([]string, 0, len(services))
	for _, s := range services {
		names = append(names, s.Name())
	}
	slog.Info("Messaging channels configured", "channels", names)
	return services, twilioService, nil
}
