// Package whatsapp wraps the Whatsmeow client as a BulkPipe transport.
//
// It handles session storage, QR or pairing-code login, and sending plain
// text messages to phone numbers.
package whatsapp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/BTreeMap/BulkPipe/internal/messaging"
	"github.com/BTreeMap/BulkPipe/internal/store"
	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// Constants for WhatsApp client configuration
const (
	// DefaultSQLitePath is the default path for the whatsmeow session database
	DefaultSQLitePath = "/var/lib/bulkpipe/whatsmeow.db"
	// JIDSuffix is the WhatsApp JID suffix for regular users
	JIDSuffix = "s.whatsapp.net"
)

// Opts holds configuration options for the WhatsApp client.
type Opts struct {
	DBDSN       string // whatsmeow session database connection string
	QRPath      string // path to write login QR code
	NumericCode bool   // print the raw login code instead of a QR code
	LogLevel    string // whatsmeow log level
}

// Option defines a configuration option for the WhatsApp client.
type Option func(*Opts)

// WithDBDSN sets the whatsmeow session database connection string.
func WithDBDSN(dsn string) Option {
	return func(o *Opts) {
		o.DBDSN = dsn
	}
}

// WithQRCodeOutput instructs the WhatsApp client to write the login QR code to the specified path.
func WithQRCodeOutput(path string) Option {
	return func(o *Opts) {
		o.QRPath = path
	}
}

// WithNumericCode prints the login code as text instead of a QR code.
func WithNumericCode() Option {
	return func(o *Opts) {
		o.NumericCode = true
	}
}

// WithLogLevel sets the whatsmeow logger level (DEBUG, INFO, WARN, ERROR).
func WithLogLevel(level string) Option {
	return func(o *Opts) {
		o.LogLevel = level
	}
}

// Client wraps the Whatsmeow client.
type Client struct {
	waClient *whatsmeow.Client
}

// Compile-time check that Client implements messaging.Sender.
var _ messaging.Sender = (*Client)(nil)

// sessionStore resolves the driver for dsn and, for SQLite, makes sure
// foreign keys are enabled as whatsmeow requires.
func sessionStore(dsn string) (driver, resolved string) {
	if dsn == "" {
		dsn = DefaultSQLitePath
	}
	if store.DetectDSNType(dsn) == "postgres" {
		return "postgres", dsn
	}
	if strings.Contains(dsn, "foreign_keys") {
		return "sqlite3", dsn
	}
	resolved = dsn
	if !strings.HasPrefix(resolved, "file:") {
		resolved = "file:" + resolved
	}
	sep := "?"
	if strings.Contains(resolved, "?") {
		sep = "&"
	}
	return "sqlite3", resolved + sep + "_foreign_keys=on"
}

// NewClient creates a connected WhatsApp client. When no session is stored
// yet, the login code is rendered to stdout (or the configured QR file) and
// NewClient blocks until the pairing flow ends.
func NewClient(ctx context.Context, opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "INFO"
	}
	slog.Debug("WhatsApp NewClient options set", "DBDSN_set", cfg.DBDSN != "", "QRPath_set", cfg.QRPath != "", "NumericCode", cfg.NumericCode)

	dbDriver, dbDSN := sessionStore(cfg.DBDSN)
	slog.Debug("WhatsApp NewClient initializing DB store", "driver", dbDriver)
	container, err := sqlstore.New(ctx, dbDriver, dbDSN, waLog.Stdout("Database", cfg.LogLevel, true))
	if err != nil {
		slog.Error("Failed to initialize WhatsApp DB store", "error", err)
		return nil, fmt.Errorf("failed to initialize WhatsApp database store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		slog.Error("Failed to get first device from store", "error", err)
		return nil, fmt.Errorf("failed to get device from WhatsApp store: %w", err)
	}

	waClient := whatsmeow.NewClient(deviceStore, waLog.Stdout("Client", cfg.LogLevel, true))

	if waClient.Store.ID == nil {
		paired := func() bool { return waClient.Store.ID != nil }
		if err := login(ctx, waClient, paired, cfg); err != nil {
			return nil, err
		}
	} else {
		slog.Debug("WhatsApp already logged in, connecting to server")
		if err := waClient.Connect(); err != nil {
			slog.Error("Failed to connect to WhatsApp server", "error", err)
			return nil, fmt.Errorf("failed to connect to WhatsApp server: %w", err)
		}
	}
	slog.Info("WhatsApp client connected successfully")
	return &Client{waClient: waClient}, nil
}

// pairingClient is the part of *whatsmeow.Client used while pairing.
type pairingClient interface {
	GetQRChannel(ctx context.Context) (<-chan whatsmeow.QRChannelItem, error)
	Connect() error
	Disconnect()
}

// login pairs a new device. Once connected, any failure disconnects again.
func login(ctx context.Context, waClient pairingClient, paired func() bool, cfg Opts) (err error) {
	slog.Info("WhatsApp login required; starting QR code flow")
	qrChan, err := waClient.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("failed to open WhatsApp QR channel: %w", err)
	}
	if err := waClient.Connect(); err != nil {
		slog.Error("Failed to connect to WhatsApp during login", "error", err)
		return fmt.Errorf("failed to connect to WhatsApp during login: %w", err)
	}
	defer func() {
		if err != nil {
			slog.Warn("WhatsApp login failed, disconnecting", "error", err)
			waClient.Disconnect()
		}
	}()

	writer := io.Writer(os.Stdout)
	if cfg.QRPath != "" {
		f, ferr := os.Create(cfg.QRPath)
		if ferr != nil {
			slog.Error("Failed to create QR file", "error", ferr)
			return fmt.Errorf("failed to create QR file: %w", ferr)
		}
		defer f.Close()
		writer = f
	}

	for evt := range qrChan {
		switch evt.Event {
		case "code":
			slog.Info("Scan the QR code with WhatsApp to log in")
			writeLoginCode(writer, evt.Code, cfg.NumericCode)
		case "success":
			slog.Info("WhatsApp login succeeded")
		default:
			slog.Warn("WhatsApp login event", "event", evt.Event)
		}
	}
	if !paired() {
		return fmt.Errorf("whatsapp login did not complete")
	}
	return nil
}

// writeLoginCode renders a login code as a terminal QR code or as raw text.
func writeLoginCode(w io.Writer, code string, numeric bool) {
	if numeric {
		fmt.Fprintln(w, code)
		return
	}
	qrterminal.GenerateHalfBlock(code, qrterminal.L, w)
}

// RecipientJID converts a canonical phone number to a user JID.
func RecipientJID(to string) types.JID {
	return types.NewJID(to, JIDSuffix)
}

// SendMessage sends a text message to the specified phone number.
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	if c.waClient == nil || c.waClient.Store == nil {
		return &messaging.TransportError{To: to, Err: fmt.Errorf("whatsapp client not initialized")}
	}
	if err := messaging.ValidateMessage(to, body); err != nil {
		return &messaging.TransportError{To: to, Err: err}
	}

	slog.Debug("Sending WhatsApp message", "to", to, "body_length", len(body))
	msg := &waE2E.Message{Conversation: &body}
	if _, err := c.waClient.SendMessage(ctx, RecipientJID(to), msg); err != nil {
		slog.Error("Failed to send WhatsApp message", "error", err, "to", to)
		return &messaging.TransportError{To: to, Err: err}
	}

	slog.Debug("WhatsApp message sent successfully", "to", to)
	return nil
}

// Close disconnects from WhatsApp.
func (c *Client) Close() error {
	if c.waClient != nil {
		slog.Info("Closing the WhatsApp connection")
		c.waClient.Disconnect()
	}
	return nil
}
