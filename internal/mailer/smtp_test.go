package mailer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// --- In-process SMTP server ---

type received struct {
	from string
	to   []string
	data []byte
}

type backend struct {
	mu       sync.Mutex
	user     string
	pass     string
	messages []received
}

func (b *backend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	return &serverSession{be: b}, nil
}

type serverSession struct {
	be     *backend
	authed bool
	cur    received
}

func (s *serverSession) AuthMechanisms() []string { return []string{sasl.Plain} }

func (s *serverSession) Auth(mech string) (sasl.Server, error) {
	return sasl.NewPlainServer(func(identity, username, password string) error {
		if username != s.be.user || password != s.be.pass {
			return errors.New("invalid credentials")
		}
		s.authed = true
		return nil
	}), nil
}

func (s *serverSession) Mail(from string, opts *smtp.MailOptions) error {
	if !s.authed {
		return smtp.ErrAuthRequired
	}
	s.cur = received{from: from}
	return nil
}

func (s *serverSession) Rcpt(to string, opts *smtp.RcptOptions) error {
	s.cur.to = append(s.cur.to, to)
	return nil
}

func (s *serverSession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.cur.data = data
	s.be.mu.Lock()
	s.be.messages = append(s.be.messages, s.cur)
	s.be.mu.Unlock()
	return nil
}

func (s *serverSession) Reset()        { s.cur = received{} }
func (s *serverSession) Logout() error { return nil }

func startServer(t *testing.T) (*backend, string, int) {
	t.Helper()
	be := &backend{user: "bot", pass: "s3cret"}
	srv := smtp.NewServer(be)
	srv.Domain = "localhost"
	srv.AllowInsecureAuth = true
	srv.ReadTimeout = 5 * time.Second
	srv.WriteTimeout = 5 * time.Second

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go srv.Serve(l)
	t.Cleanup(func() { srv.Close() })

	addr := l.Addr().(*net.TCPAddr)
	return be, "127.0.0.1", addr.Port
}

func newPlainSMTP(t *testing.T, host string, port int, pass string) *SMTP {
	t.Helper()
	s, err := NewSMTP(SMTPOpts{
		Host:          host,
		Port:          port,
		Username:      "bot",
		Password:      pass,
		Security:      SecurityNone,
		VerifyTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewSMTP: %v", err)
	}
	return s
}

func TestNewSMTP_Defaults(t *testing.T) {
	if _, err := NewSMTP(SMTPOpts{}); err == nil {
		t.Fatal("expected error for missing host")
	}
	s, err := NewSMTP(SMTPOpts{Host: "smtp.example.com"})
	if err != nil {
		t.Fatal(err)
	}
	if s.port != 587 || s.security != SecurityStartTLS || s.verifyTimeout != DefaultVerifyTimeout {
		t.Errorf("defaults = port %d security %q timeout %v", s.port, s.security, s.verifyTimeout)
	}
	s, _ = NewSMTP(SMTPOpts{Host: "smtp.example.com", Port: 465})
	if s.security != SecurityTLS {
		t.Errorf("security on 465 = %q, want tls", s.security)
	}
	if _, err := NewSMTP(SMTPOpts{Host: "h", Security: "ssl3"}); err == nil {
		t.Fatal("expected error for unknown security")
	}
}

func TestSMTP_VerifyAndSend(t *testing.T) {
	be, host, port := startServer(t)
	s := newPlainSMTP(t, host, port, "s3cret")

	if err := s.Verify(context.Background()); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	msg := &Message{
		From:    "Courier <bot@example.com>",
		To:      []string{"a@x.com", "b@y.com"},
		Subject: "Q3 Update",
		Body:    "Hello",
	}
	if err := s.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}

	be.mu.Lock()
	defer be.mu.Unlock()
	if len(be.messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(be.messages))
	}
	got := be.messages[0]
	if got.from != "bot@example.com" {
		t.Errorf("from = %q", got.from)
	}
	if strings.Join(got.to, ",") != "a@x.com,b@y.com" {
		t.Errorf("to = %v", got.to)
	}
	if !bytes.Contains(got.data, []byte("Subject: Q3 Update")) {
		t.Errorf("data missing subject:\n%s", got.data)
	}
}

func TestSMTP_VerifyBadCredentials(t *testing.T) {
	_, host, port := startServer(t)
	s := newPlainSMTP(t, host, port, "wrong")
	if err := s.Verify(context.Background()); err == nil {
		t.Fatal("expected auth failure")
	}
}

func TestSMTP_VerifyUnreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	s := newPlainSMTP(t, "127.0.0.1", port, "x")
	if err := s.Verify(context.Background()); err == nil {
		t.Fatal("expected dial failure")
	}
}

func TestSMTP_VerifyTimeout(t *testing.T) {
	// A listener that accepts but never greets.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	go func() {
		for {
			c, err := l.Accept()
			if err != nil {
				return
			}
			defer c.Close()
		}
	}()

	s := newPlainSMTP(t, "127.0.0.1", l.Addr().(*net.TCPAddr).Port, "x")
	s.verifyTimeout = 100 * time.Millisecond

	start := time.Now()
	if err := s.Verify(context.Background()); err == nil {
		t.Fatal("expected timeout")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Verify took %v, want bounded by the verify timeout", elapsed)
	}
}

func TestSMTP_SendTimeout(t *testing.T) {
	// A relay that accepts the connection and then stalls.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	go func() {
		for {
			c, err := l.Accept()
			if err != nil {
				return
			}
			defer c.Close()
		}
	}()

	s := newPlainSMTP(t, "127.0.0.1", l.Addr().(*net.TCPAddr).Port, "x")
	s.sendTimeout = 100 * time.Millisecond

	msg := &Message{From: "ops@example.com", To: []string{"a@example.com"}, Subject: "s", Body: "b"}
	start := time.Now()
	if err := s.Send(context.Background(), msg); err == nil {
		t.Fatal("expected timeout")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Send took %v, want bounded by the send timeout", elapsed)
	}
}
