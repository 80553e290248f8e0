// Package twiliowhatsapp sends campaign messages through the Twilio WhatsApp API.
package twiliowhatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BTreeMap/BulkPipe/internal/messaging"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// whatsappPrefix marks a Twilio address as a WhatsApp channel address.
const whatsappPrefix = "whatsapp:"

// Opts holds configuration options for the Twilio WhatsApp client.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromWhats  string
	Timeout    time.Duration // HTTP timeout per REST call, 0 keeps the library default
}

// Option defines a configuration option for the Twilio WhatsApp client.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromWhats sets the sending WhatsApp number.
func WithFromWhats(from string) Option {
	return func(o *Opts) { o.FromWhats = from }
}

// WithTimeout bounds every Twilio REST call. CreateMessage takes no context,
// so this is the only way to stop a hung request.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// messageCreator is the part of the Twilio REST API the client uses.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// Client wraps Twilio REST API for WhatsApp
type Client struct {
	api       messageCreator
	fromWhats string // WhatsApp number in "whatsapp:+1234567890" format
	timeout   time.Duration
}

// Compile-time check that Client implements messaging.Sender.
var _ messaging.Sender = (*Client)(nil)

// NewClient creates a Twilio client. Missing options fall back to
// TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromWhats == "" {
		cfg.FromWhats = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("Twilio client config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromWhats_set", cfg.FromWhats != "",
		"Timeout", cfg.Timeout)

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromWhats == "" {
		return nil, fmt.Errorf("fromWhats number must be provided")
	}

	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	if cfg.Timeout > 0 {
		rest.SetTimeout(cfg.Timeout)
	}
	c := newClient(rest.Api, cfg.FromWhats)
	c.timeout = cfg.Timeout
	return c, nil
}

func newClient(api messageCreator, from string) *Client {
	return &Client{api: api, fromWhats: whatsappAddress(from)}
}

// whatsappAddress formats a phone number as a Twilio WhatsApp address.
func whatsappAddress(number string) string {
	n := strings.TrimSpace(number)
	if strings.HasPrefix(n, whatsappPrefix) {
		return n
	}
	if !strings.HasPrefix(n, "+") {
		n = "+" + n
	}
	return whatsappPrefix + n
}

// SendMessage sends a WhatsApp message using Twilio API. The REST call does
// not take a context, so ctx is only checked before sending; the client's
// HTTP timeout bounds the call itself.
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	if err := messaging.ValidateMessage(to, body); err != nil {
		return &messaging.TransportError{To: to, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return &messaging.TransportError{To: to, Err: err}
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(whatsappAddress(to))
	params.SetFrom(c.fromWhats)
	params.SetBody(body)

	resp, err := c.api.CreateMessage(params)
	if err != nil {
		slog.Error("Twilio SendMessage failed", "to", to, "error", err)
		return &messaging.TransportError{To: to, Err: err}
	}

	if resp != nil && resp.Sid != nil {
		slog.Debug("Twilio message sent", "to", to, "sid", *resp.Sid)
	} else {
		slog.Debug("Twilio message sent", "to", to)
	}
	return nil
}
