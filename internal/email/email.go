// Package email sends the customer emails the hub's commands produce.
package email

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/ggmhub/hub/internal/logger"
)

// ErrNoRecipient is returned for messages without a usable address.
var ErrNoRecipient = errors.New("email has no recipient")

// Engine delivers a single message.
type Engine interface {
	Send(ctx context.Context, msg Message) error
}

type Recipient struct {
	Name  string
	Email string
}

type Message struct {
	To      []Recipient
	Subject string
	Text    string
	HTML    string // optional alternative part
	ReplyTo string
}

type SMTPConfig struct {
	Addr     string // host:port
	Username string
	Password string
	From     string
	FromName string
}

type sendFunc func(addr string, a sasl.Client, from string, to []string, r io.Reader) error

// SMTPEngine submits mail to a relay with SMTP AUTH PLAIN.
type SMTPEngine struct {
	cfg      SMTPConfig
	log      *logger.Logger
	sendMail sendFunc
	now      func() time.Time
}

func NewSMTPEngine(cfg SMTPConfig, log *logger.Logger) (*SMTPEngine, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("smtp address is required")
	}
	if _, err := mail.ParseAddress(cfg.From); err != nil {
		return nil, fmt.Errorf("invalid from address %q: %w", cfg.From, err)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &SMTPEngine{
		cfg:      cfg,
		log:      log.Component("email"),
		sendMail: smtp.SendMail,
		now:      time.Now,
	}, nil
}

func (e *SMTPEngine) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var to []string
	for _, r := range msg.To {
		if addr := strings.TrimSpace(r.Email); addr != "" {
			to = append(to, addr)
		}
	}
	if len(to) == 0 {
		return ErrNoRecipient
	}

	raw, err := e.build(msg)
	if err != nil {
		return err
	}

	var auth sasl.Client
	if e.cfg.Username != "" {
		auth = sasl.NewPlainClient("", e.cfg.Username, e.cfg.Password)
	}
	if err := e.sendMail(e.cfg.Addr, auth, e.cfg.From, to, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("send email to %s: %w", strings.Join(to, ", "), err)
	}

	e.log.InfoCtx(ctx, "email sent",
		logger.Field{Key: "recipients", Value: len(to)},
		logger.Field{Key: "subject", Value: msg.Subject})
	return nil
}

// build renders msg as RFC 5322. Messages with an HTML body become
// multipart/alternative.
func (e *SMTPEngine) build(msg Message) ([]byte, error) {
	var h mail.Header
	h.SetDate(e.now())
	h.SetSubject(msg.Subject)
	h.SetAddressList("From", []*mail.Address{{Name: e.cfg.FromName, Address: e.cfg.From}})

	to := make([]*mail.Address, 0, len(msg.To))
	for _, r := range msg.To {
		if r.Email != "" {
			to = append(to, &mail.Address{Name: r.Name, Address: r.Email})
		}
	}
	h.SetAddressList("To", to)
	if msg.ReplyTo != "" {
		h.SetAddressList("Reply-To", []*mail.Address{{Address: msg.ReplyTo}})
	}
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generate message id: %w", err)
	}

	var buf bytes.Buffer
	if msg.HTML == "" {
		h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
		w, err := mail.CreateSingleInlineWriter(&buf, h)
		if err != nil {
			return nil, fmt.Errorf("create message: %w", err)
		}
		if _, err := io.WriteString(w, msg.Text); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	mw, err := mail.CreateInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	for _, part := range []struct{ contentType, body string }{
		{"text/plain", msg.Text},
		{"text/html", msg.HTML},
	} {
		var ph mail.InlineHeader
		ph.SetContentType(part.contentType, map[string]string{"charset": "utf-8"})
		pw, err := mw.CreatePart(ph)
		if err != nil {
			return nil, fmt.Errorf("create %s part: %w", part.contentType, err)
		}
		if _, err := io.WriteString(pw, part.body); err != nil {
			return nil, err
		}
		if err := pw.Close(); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
