package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// DefaultVerifyTimeout bounds the pre-send connection probe.
const DefaultVerifyTimeout = 12 * time.Second

// DefaultSendTimeout bounds one delivery, attachments included.
const DefaultSendTimeout = 2 * time.Minute

// Security selects how the SMTP connection is protected.
type Security string

const (
	SecurityStartTLS Security = "starttls"
	SecurityTLS      Security = "tls"  // implicit TLS, usually port 465
	SecurityNone     Security = "none" // plaintext; tests and local relays only
)

// SMTP sends mail through an SMTP relay with PLAIN authentication.
type SMTP struct {
	host          string
	port          int
	username      string
	password      string
	security      Security
	verifyTimeout time.Duration
	sendTimeout   time.Duration
	tlsConfig     *tls.Config
	dialer        *net.Dialer
}

// SMTPOpts holds parameters for creating an SMTP sender.
type SMTPOpts struct {
	Host          string
	Port          int      // defaults to 587
	Username      string   // empty disables AUTH
	Password      string
	Security      Security // defaults to tls on port 465, starttls otherwise
	VerifyTimeout time.Duration
	SendTimeout   time.Duration // defaults to DefaultSendTimeout
	TLSConfig     *tls.Config   // defaults to verifying Host
}

// NewSMTP creates an SMTP sender.
func NewSMTP(opts SMTPOpts) (*SMTP, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("mailer: smtp: host is required")
	}
	port := opts.Port
	if port == 0 {
		port = 587
	}
	security := opts.Security
	if security == "" {
		security = SecurityStartTLS
		if port == 465 {
			security = SecurityTLS
		}
	}
	switch security {
	case SecurityStartTLS, SecurityTLS, SecurityNone:
	default:
		return nil, fmt.Errorf("mailer: smtp: unknown security %q", security)
	}
	timeout := opts.VerifyTimeout
	if timeout <= 0 {
		timeout = DefaultVerifyTimeout
	}
	sendTimeout := opts.SendTimeout
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}
	tlsConfig := opts.TLSConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{ServerName: opts.Host}
	}
	return &SMTP{
		host:          opts.Host,
		port:          port,
		username:      opts.Username,
		password:      opts.Password,
		security:      security,
		verifyTimeout: timeout,
		sendTimeout:   sendTimeout,
		tlsConfig:     tlsConfig,
		dialer:        &net.Dialer{},
	}, nil
}

// Name identifies the transport in logs and the delivery log.
func (s *SMTP) Name() string { return "smtp" }

// Verify connects, authenticates and quits. It is bounded by the verify
// timeout regardless of ctx.
func (s *SMTP) Verify(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.verifyTimeout)
	defer cancel()

	c, err := s.connect(ctx)
	if err != nil {
		return fmt.Errorf("mailer: smtp: verify: %w", err)
	}
	defer c.Close()
	if err := c.Quit(); err != nil {
		return fmt.Errorf("mailer: smtp: verify: %w", err)
	}
	return nil
}

// Send delivers msg in a single SMTP session bounded by the send timeout.
func (s *SMTP) Send(ctx context.Context, msg *Message) error {
	ctx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()

	raw, err := msg.Build()
	if err != nil {
		return err
	}
	from, err := envelopeAddrs([]string{msg.From})
	if err != nil {
		return err
	}
	to, err := envelopeAddrs(msg.To)
	if err != nil {
		return err
	}

	c, err := s.connect(ctx)
	if err != nil {
		return fmt.Errorf("mailer: smtp: send: %w", err)
	}
	defer c.Close()

	if err := c.SendMail(from[0], to, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("mailer: smtp: send: %w", err)
	}
	if err := c.Quit(); err != nil {
		return fmt.Errorf("mailer: smtp: quit: %w", err)
	}
	return nil
}

// connect dials, negotiates TLS and authenticates. The connection deadline
// follows ctx.
func (s *SMTP) connect(ctx context.Context) (*smtp.Client, error) {
	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	conn, err := s.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	var c *smtp.Client
	switch s.security {
	case SecurityTLS:
		c = smtp.NewClient(tls.Client(conn, s.tlsConfig))
	case SecurityStartTLS:
		c, err = smtp.NewClientStartTLS(conn, s.tlsConfig)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("starttls: %w", err)
		}
	default:
		c = smtp.NewClient(conn)
	}

	if s.username != "" {
		if err := c.Auth(sasl.NewPlainClient("", s.username, s.password)); err != nil {
			c.Close()
			return nil, fmt.Errorf("auth: %w", err)
		}
	}
	return c, nil
}
