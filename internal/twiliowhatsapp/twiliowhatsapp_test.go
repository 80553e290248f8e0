package twiliowhatsapp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BTreeMap/BulkPipe/internal/messaging"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type fakeAPI struct {
	params []*twilioApi.CreateMessageParams
	err    error
}

func (f *fakeAPI) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	f.params = append(f.params, params)
	if f.err != nil {
		return nil, f.err
	}
	sid := "SM123"
	return &twilioApi.ApiV2010Message{Sid: &sid}, nil
}

func TestSendMessage(t *testing.T) {
	api := &fakeAPI{}
	c := newClient(api, "+15550001111")

	if err := c.SendMessage(context.Background(), "5511999990000", "Hello Test"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(api.params) != 1 {
		t.Fatalf("expected 1 message, got %d", len(api.params))
	}
	p := api.params[0]
	if *p.To != "whatsapp:+5511999990000" {
		t.Errorf("To = %q", *p.To)
	}
	if *p.From != "whatsapp:+15550001111" {
		t.Errorf("From = %q", *p.From)
	}
	if *p.Body != "Hello Test" {
		t.Errorf("Body = %q", *p.Body)
	}
}

func TestSendMessageFailure(t *testing.T) {
	api := &fakeAPI{err: errors.New("20003 authenticate")}
	c := newClient(api, "whatsapp:+15550001111")

	err := c.SendMessage(context.Background(), "5511999990000", "Hello")
	var transportErr *messaging.TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if transportErr.To != "5511999990000" {
		t.Errorf("TransportError.To = %q", transportErr.To)
	}
}

func TestSendMessageValidation(t *testing.T) {
	api := &fakeAPI{}
	c := newClient(api, "+15550001111")

	if err := c.SendMessage(context.Background(), "", "Hello"); !errors.Is(err, messaging.ErrEmptyRecipient) {
		t.Errorf("expected ErrEmptyRecipient, got %v", err)
	}
	if err := c.SendMessage(context.Background(), "1", ""); !errors.Is(err, messaging.ErrEmptyBody) {
		t.Errorf("expected ErrEmptyBody, got %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.SendMessage(ctx, "1", "Hello"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if len(api.params) != 0 {
		t.Errorf("expected no API calls, got %d", len(api.params))
	}
}

func TestWhatsappAddress(t *testing.T) {
	tests := map[string]string{
		"5511":            "whatsapp:+5511",
		"+5511":           "whatsapp:+5511",
		"whatsapp:+5511":  "whatsapp:+5511",
		"  +15550001111 ": "whatsapp:+15550001111",
	}
	for in, want := range tests {
		if got := whatsappAddress(in); got != want {
			t.Errorf("whatsappAddress(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewClientRequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")

	if _, err := NewClient(); err == nil {
		t.Error("expected error without credentials")
	}
	if _, err := NewClient(WithAccountSID("AC1"), WithAuthToken("tok")); err == nil {
		t.Error("expected error without from number")
	}
	c, err := NewClient(WithAccountSID("AC1"), WithAuthToken("tok"), WithFromWhats("+15550001111"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.fromWhats != "whatsapp:+15550001111" {
		t.Errorf("fromWhats = %q", c.fromWhats)
	}
}

func TestNewClientTimeout(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "AC1")
	t.Setenv("TWILIO_AUTH_TOKEN", "tok")
	t.Setenv("TWILIO_FROM_NUMBER", "+15550001111")

	c, err := NewClient(WithTimeout(5 * time.Second))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.timeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", c.timeout)
	}

	c, err = NewClient()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.timeout != 0 {
		t.Errorf("timeout = %v, want library default", c.timeout)
	}
}
