package worker

import (
	"context"
	"fmt"

	"l3v3l_server/config"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"gopkg.in/gomail.v2"
)

// Message is one rendered notification for one recipient address.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers a Message over one channel.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type mailDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailSender sends over SMTP.
type EmailSender struct {
	dialer mailDialer
	from   string
}

func NewEmailSender(cfg config.SMTPConfig) *EmailSender {
	return &EmailSender{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password),
		from:   cfg.From,
	}
}

func (s *EmailSender) Send(_ context.Context, msg Message) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)
	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}
	return nil
}

type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// SMSSender sends through the Twilio messages API.
type SMSSender struct {
	api  messageCreator
	from string
}

func NewSMSSender(cfg config.TwilioConfig) *SMSSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &SMSSender{api: client.Api, from: cfg.From}
}

func (s *SMSSender) Send(_ context.Context, msg Message) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(msg.To)
	params.SetFrom(s.from)
	params.SetBody(msg.Body)
	if _, err := s.api.CreateMessage(params); err != nil {
		return fmt.Errorf("twilio send failed: %w", err)
	}
	return nil
}
