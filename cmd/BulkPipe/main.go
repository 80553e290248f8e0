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
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/BTreeMap/BulkPipe/internal/campaign"
	"github.com/BTreeMap/BulkPipe/internal/contacts"
	"github.com/BTreeMap/BulkPipe/internal/lockfile"
	"github.com/BTreeMap/BulkPipe/internal/message"
	"github.com/BTreeMap/BulkPipe/internal/messaging"
	"github.com/BTreeMap/BulkPipe/internal/models"
	"github.com/BTreeMap/BulkPipe/internal/prompt"
	"github.com/BTreeMap/BulkPipe/internal/scheduler"
	"github.com/BTreeMap/BulkPipe/internal/store"
	"github.com/BTreeMap/BulkPipe/internal/twiliowhatsapp"
	"github.com/BTreeMap/BulkPipe/internal/util"
	"github.com/BTreeMap/BulkPipe/internal/whatsapp"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for BulkPipe state data
	DefaultStateDir = "/var/lib/bulkpipe"
	// DefaultDBFileName is the default SQLite delivery ledger filename
	DefaultDBFileName = "bulkpipe.db"
	// DefaultWhatsAppDBFileName is the default SQLite whatsmeow session filename
	DefaultWhatsAppDBFileName = "whatsmeow.db"
	// DefaultSendTimeout bounds each transport and ledger call
	DefaultSendTimeout = 60 * time.Second
)

// Transport names accepted by -transport.
const (
	TransportWhatsApp = "whatsapp"
	TransportTwilio   = "twilio"
	TransportLog      = "log"
)

var errUnknownTransport = errors.New("unknown transport, expected whatsapp, twilio or log")

// logLevel is adjustable after flags are parsed.
var logLevel = new(slog.LevelVar)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping BulkPipe", "transport", flags.transport, "state_dir", flags.stateDir)
	if err := run(ctx, flags); err != nil {
		slog.Error("BulkPipe failed to run", "error", err)
		stop()
		os.Exit(1)
	}
	slog.Info("BulkPipe exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir     string
	LedgerDSN    string
	WhatsAppDSN  string
	Transport    string
	ContactsPath string
	PhoneColumn  string
	TemplatePath string
	BatchSize    string
	CycleMinutes string
	DelayPattern string
	SendTimeout  time.Duration
	MaxPerMinute int
	NoPrompt     bool
	LogLevel     string
}

// Flags holds command line flag values after defaults have been resolved.
type Flags struct {
	qrOutput     string
	numeric      bool
	stateDir     string
	ledgerDSN    string
	whatsappDSN  string
	transport    string
	contactsPath string
	phoneColumn  string
	templatePath string
	batchSize    string
	cycleMinutes string
	delayPattern string
	sendTimeout  time.Duration
	maxPerMinute int
	noPrompt     bool
	logLevel     string
}

// initializeLogger sets up structured logging; the level is applied once
// configuration has been read.
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
	if lvl := os.Getenv("BULKPIPE_LOG_LEVEL"); lvl != "" {
		setLogLevel(lvl)
	}
}

// setLogLevel applies a level name such as "debug" or "WARN".
func setLogLevel(name string) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		slog.Warn("Invalid log level, keeping current", "value", name, "level", logLevel.Level())
		return
	}
	logLevel.Set(level)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:     os.Getenv("BULKPIPE_STATE_DIR"),
		LedgerDSN:    os.Getenv("BULKPIPE_DB_DSN"),
		WhatsAppDSN:  os.Getenv("WHATSAPP_DB_DSN"),
		Transport:    os.Getenv("BULKPIPE_TRANSPORT"),
		ContactsPath: os.Getenv("BULKPIPE_CONTACTS"),
		PhoneColumn:  os.Getenv("BULKPIPE_PHONE_COLUMN"),
		TemplatePath: os.Getenv("BULKPIPE_TEMPLATE"),
		BatchSize:    os.Getenv("BULKPIPE_BATCH_SIZE"),
		CycleMinutes: os.Getenv("BULKPIPE_CYCLE_MINUTES"),
		DelayPattern: os.Getenv("BULKPIPE_DELAY_PATTERN"),
		SendTimeout:  util.ParseDurationEnv("BULKPIPE_SEND_TIMEOUT", DefaultSendTimeout),
		MaxPerMinute: util.ParseIntEnv("BULKPIPE_MAX_PER_MINUTE", 0),
		NoPrompt:     util.ParseBoolEnv("BULKPIPE_NO_PROMPT", false),
		LogLevel:     os.Getenv("BULKPIPE_LOG_LEVEL"),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No BULKPIPE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// Fall back to the shared database URL for the ledger
	if config.LedgerDSN == "" && os.Getenv("DATABASE_URL") != "" {
		config.LedgerDSN = os.Getenv("DATABASE_URL")
		slog.Debug("Using DATABASE_URL as BULKPIPE_DB_DSN", "dsn_set", true)
	}

	if config.Transport == "" {
		config.Transport = TransportWhatsApp
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}

	slog.Debug("environment variables loaded",
		"BULKPIPE_STATE_DIR", config.StateDir,
		"BULKPIPE_DB_DSN_SET", config.LedgerDSN != "",
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDSN != "",
		"BULKPIPE_TRANSPORT", config.Transport,
		"BULKPIPE_CONTACTS", config.ContactsPath,
		"BULKPIPE_TEMPLATE", config.TemplatePath,
		"BULKPIPE_SEND_TIMEOUT", config.SendTimeout,
		"BULKPIPE_MAX_PER_MINUTE", config.MaxPerMinute,
		"BULKPIPE_NO_PROMPT", config.NoPrompt)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	fs := flag.CommandLine
	qrOutput := fs.String("qr-output", "", "path to write login QR code")
	numeric := fs.Bool("numeric-code", false, "use numeric login code instead of QR code")
	stateDir := fs.String("state-dir", config.StateDir, "state directory for BulkPipe data (overrides $BULKPIPE_STATE_DIR)")
	ledgerDSN := fs.String("db-dsn", config.LedgerDSN, "delivery ledger DSN, SQLite path or Postgres URL (overrides $BULKPIPE_DB_DSN or $DATABASE_URL)")
	whatsappDSN := fs.String("whatsapp-db-dsn", config.WhatsAppDSN, "whatsmeow session store DSN (overrides $WHATSAPP_DB_DSN)")
	transport := fs.String("transport", config.Transport, "message transport: whatsapp, twilio or log (overrides $BULKPIPE_TRANSPORT)")
	contactsPath := fs.String("contacts", config.ContactsPath, "path to the contact list CSV (overrides $BULKPIPE_CONTACTS)")
	phoneColumn := fs.String("phone-column", config.PhoneColumn, "contact list column holding the phone number (overrides $BULKPIPE_PHONE_COLUMN)")
	templatePath := fs.String("template", config.TemplatePath, "path to the message template (overrides $BULKPIPE_TEMPLATE)")
	batchSize := fs.String("batch-size", config.BatchSize, "messages per cycle, 1 to 10000 (overrides $BULKPIPE_BATCH_SIZE)")
	cycleMinutes := fs.String("cycle-minutes", config.CycleMinutes, "minutes between cycles, 1 to 60 (overrides $BULKPIPE_CYCLE_MINUTES)")
	delayPattern := fs.String("delay-pattern", config.DelayPattern, "per-message delays in seconds, e.g. [1,2,3,2] (overrides $BULKPIPE_DELAY_PATTERN)")
	sendTimeout := fs.Duration("send-timeout", config.SendTimeout, "bound on each send and ledger call, 0 disables (overrides $BULKPIPE_SEND_TIMEOUT)")
	maxPerMinute := fs.Int("max-per-minute", config.MaxPerMinute, "hard cap on sends per minute, 0 disables (overrides $BULKPIPE_MAX_PER_MINUTE)")
	noPrompt := fs.Bool("no-prompt", config.NoPrompt, "fail instead of prompting for missing values (overrides $BULKPIPE_NO_PROMPT)")
	level := fs.String("log-level", config.LogLevel, "log level: debug, info, warn or error (overrides $BULKPIPE_LOG_LEVEL)")

	flag.Parse()

	flags := Flags{
		qrOutput:     *qrOutput,
		numeric:      *numeric,
		stateDir:     *stateDir,
		ledgerDSN:    *ledgerDSN,
		whatsappDSN:  *whatsappDSN,
		transport:    strings.ToLower(strings.TrimSpace(*transport)),
		contactsPath: *contactsPath,
		phoneColumn:  *phoneColumn,
		templatePath: *templatePath,
		batchSize:    *batchSize,
		cycleMinutes: *cycleMinutes,
		delayPattern: *delayPattern,
		sendTimeout:  *sendTimeout,
		maxPerMinute: *maxPerMinute,
		noPrompt:     *noPrompt,
		logLevel:     *level,
	}
	setLogLevel(flags.logLevel)
	resolveStorePaths(&flags)

	slog.Debug("flags parsed",
		"qrOutput", flags.qrOutput,
		"numeric", flags.numeric,
		"stateDir", flags.stateDir,
		"ledgerDSN_set", flags.ledgerDSN != "",
		"whatsappDSN_set", flags.whatsappDSN != "",
		"transport", flags.transport,
		"sendTimeout", flags.sendTimeout,
		"maxPerMinute", flags.maxPerMinute,
		"noPrompt", flags.noPrompt)

	return flags
}

// resolveStorePaths places unset SQLite databases in the state directory. A
// Postgres ledger also hosts the whatsmeow session unless one is given.
func resolveStorePaths(flags *Flags) {
	if flags.ledgerDSN == "" {
		flags.ledgerDSN = filepath.Join(flags.stateDir, DefaultDBFileName)
		slog.Debug("No ledger DSN provided, defaulting to SQLite", "sqlite_path", flags.ledgerDSN)
	}
	if flags.whatsappDSN == "" {
		if store.DetectDSNType(flags.ledgerDSN) == "postgres" {
			flags.whatsappDSN = flags.ledgerDSN
		} else {
			flags.whatsappDSN = filepath.Join(flags.stateDir, DefaultWhatsAppDBFileName)
		}
	}
}

// campaignInputs are the six values the operator supplies per run.
type campaignInputs struct {
	contactsPath string
	phoneColumn  string
	templatePath string
	batchSize    string
	cycleMinutes string
	delayPattern string
}

// collectInputs asks for every campaign input still missing. With prompting
// disabled, numeric inputs take their defaults and missing paths are errors.
func collectInputs(flags Flags, p *prompt.Prompter) (campaignInputs, error) {
	in := campaignInputs{
		contactsPath: flags.contactsPath,
		phoneColumn:  flags.phoneColumn,
		templatePath: flags.templatePath,
		batchSize:    flags.batchSize,
		cycleMinutes: flags.cycleMinutes,
		delayPattern: flags.delayPattern,
	}

	if flags.noPrompt || p == nil {
		if in.batchSize == "" {
			in.batchSize = strconv.Itoa(models.DefaultBatchSize)
		}
		if in.cycleMinutes == "" {
			in.cycleMinutes = strconv.Itoa(models.DefaultCycleIntervalMinutes)
		}
		if in.delayPattern == "" {
			in.delayPattern = models.DefaultDelayPattern
		}
		required := []struct {
			field string
			value string
			err   error
		}{
			{"contacts", in.contactsPath, models.ErrMissingPath},
			{"phone_column", in.phoneColumn, models.ErrMissingPhoneColumn},
			{"template", in.templatePath, models.ErrMissingPath},
		}
		for _, r := range required {
			if r.value == "" {
				return in, &models.ConfigError{Field: r.field, Err: r.err}
			}
		}
		return in, nil
	}

	questions := []struct {
		value    *string
		question string
		def      string
	}{
		{&in.contactsPath, "Insert the relative path to the contact list [.csv]", ""},
		{&in.phoneColumn, "Insert the column used for the phone number", ""},
		{&in.templatePath, "Insert the path to the message template", ""},
		{&in.batchSize, "Insert the quantity of messages to send for each roll [int: 1 -> 10000]", strconv.Itoa(models.DefaultBatchSize)},
		{&in.cycleMinutes, "Insert the time gap between each cycle [minute: 1 -> 60]", strconv.Itoa(models.DefaultCycleIntervalMinutes)},
		{&in.delayPattern, "Insert the sequence for messaging [second, second, second, ...]", models.DefaultDelayPattern},
	}
	for _, q := range questions {
		if err := p.Fill(q.value, q.question, q.def); err != nil {
			return in, fmt.Errorf("failed to read campaign input: %w", err)
		}
	}
	return in, nil
}

// run wires the campaign and blocks until it completes or ctx is cancelled.
func run(ctx context.Context, flags Flags) error {
	var p *prompt.Prompter
	if !flags.noPrompt {
		p = prompt.New(os.Stdin, os.Stdout)
	}
	in, err := collectInputs(flags, p)
	if err != nil {
		return err
	}

	cfg, err := models.ParseCampaignConfig(in.batchSize, in.cycleMinutes, in.delayPattern)
	if err != nil {
		return err
	}
	list, err := contacts.LoadFile(in.contactsPath, in.phoneColumn)
	if err != nil {
		return err
	}
	template, err := message.LoadTemplate(in.templatePath)
	if err != nil {
		return err
	}

	lock, err := lockfile.AcquireLock(flags.stateDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			slog.Warn("Failed to release state directory lock", "lock_path", lock.Path(), "error", err)
		}
	}()

	ledger, sender, closeTransport, err := buildTransport(ctx, flags)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeTransport(); err != nil {
			slog.Warn("Failed to close transport", "error", err)
		}
		if err := ledger.Close(); err != nil {
			slog.Warn("Failed to close ledger", "error", err)
		}
	}()

	sender = messaging.NewTimeoutSender(sender, flags.sendTimeout)
	if flags.maxPerMinute > 0 {
		sender = messaging.NewRateLimitedSender(sender, flags.maxPerMinute)
	}

	c, err := campaign.New(list, template, cfg, ledger, sender, campaign.WithLedgerTimeout(flags.sendTimeout))
	if err != nil {
		return err
	}

	err = c.Run(ctx, scheduler.NewCycleTimer(cfg.CycleIntervalMinutes))
	totals := c.Totals()
	progress := c.Progress()
	summary := []any{
		"state", c.State(),
		"batches_done", progress.CycleIndex,
		"batches_remaining", progress.Remaining(),
		"total_batches", progress.TotalBatches,
		"sent", totals.Sent,
		"skipped", totals.Skipped,
		"failed", totals.Failed,
	}
	if n, ok := ledgerRecordCount(ctx, ledger, flags.sendTimeout); ok {
		summary = append(summary, "ledger_records", n)
	}
	slog.Info("Campaign summary", summary...)
	if errors.Is(err, context.Canceled) {
		slog.Info("Campaign stopped before completion; rerun to resume")
		return nil
	}
	return err
}

// ledgerRecordCount counts delivery records when the ledger can list them.
// It runs even after ctx is cancelled, bounded by timeout when positive.
func ledgerRecordCount(ctx context.Context, ledger store.Ledger, timeout time.Duration) (int, bool) {
	lister, ok := ledger.(store.RecordLister)
	if !ok {
		return 0, false
	}
	ctx = context.WithoutCancel(ctx)
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	records, err := lister.Records(ctx)
	if err != nil {
		slog.Warn("Failed to count ledger records", "error", err)
		return 0, false
	}
	return len(records), true
}

// buildTransport opens the ledger and the sender for flags.transport. The
// returned close function releases the sender only.
func buildTransport(ctx context.Context, flags Flags) (store.Ledger, messaging.Sender, func() error, error) {
	noop := func() error { return nil }

	switch flags.transport {
	case TransportLog:
		slog.Info("Dry run: messages are logged, not sent, and the ledger is in memory")
		return store.NewInMemoryStore(), messaging.NewLogSender(), noop, nil

	case TransportTwilio:
		ledger, err := store.NewLedger(flags.ledgerDSN)
		if err != nil {
			return nil, nil, nil, err
		}
		client, err := twiliowhatsapp.NewClient(twiliowhatsapp.WithTimeout(flags.sendTimeout))
		if err != nil {
			ledger.Close()
			return nil, nil, nil, fmt.Errorf("failed to create Twilio client: %w", err)
		}
		return ledger, client, noop, nil

	case TransportWhatsApp:
		ledger, err := store.NewLedger(flags.ledgerDSN)
		if err != nil {
			return nil, nil, nil, err
		}
		client, err := whatsapp.NewClient(ctx, buildWhatsAppOptions(flags)...)
		if err != nil {
			ledger.Close()
			return nil, nil, nil, err
		}
		return ledger, client, client.Close, nil

	default:
		return nil, nil, nil, &models.ConfigError{Field: "transport", Value: flags.transport, Err: errUnknownTransport}
	}
}

// buildWhatsAppOptions constructs WhatsApp configuration options
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	waOpts := []whatsapp.Option{
		whatsapp.WithDBDSN(flags.whatsappDSN),
		whatsapp.WithLogLevel(strings.ToUpper(logLevel.Level().String())),
	}
	if flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(flags.qrOutput))
	}
	if flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	return waOpts
}
