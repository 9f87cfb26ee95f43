package mailer

import (
	"context"
	"errors"
	"fmt"
	"log"
)

// ErrAllFailed is returned when every sender in a Chain failed.
var ErrAllFailed = errors.New("mailer: all transports failed")

// Sender delivers a message.
type Sender interface {
	Name() string
	Send(ctx context.Context, msg *Message) error
}

// Verifier is an optional interface for senders that can probe their
// connection before sending.
type Verifier interface {
	Verify(ctx context.Context) error
}

// Chain tries senders in order. A sender that implements Verifier is probed
// first and skipped when the probe fails.
type Chain struct {
	senders []Sender
}

// NewChain creates a Chain. At least one sender is required.
func NewChain(senders ...Sender) (*Chain, error) {
	var out []Sender
	for _, s := range senders {
		if s != nil {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("mailer: chain: at least one sender is required")
	}
	return &Chain{senders: out}, nil
}

// Names lists the senders in priority order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.senders))
	for i, s := range c.senders {
		names[i] = s.Name()
	}
	return names
}

// Send delivers msg with the first sender that succeeds and returns its name.
// When all fail the error wraps ErrAllFailed and every individual failure.
func (c *Chain) Send(ctx context.Context, msg *Message) (string, error) {
	if err := msg.Validate(); err != nil {
		return "", err
	}
	var errs []error
	for _, s := range c.senders {
		if v, ok := s.(Verifier); ok {
			if err := v.Verify(ctx); err != nil {
				log.Printf("mailer: %s verify failed, trying next transport: %v", s.Name(), err)
				errs = append(errs, err)
				continue
			}
		}
		if err := s.Send(ctx, msg); err != nil {
			log.Printf("mailer: %s send failed: %v", s.Name(), err)
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		log.Printf("mailer: sent %q to %d recipient(s) via %s", msg.Subject, len(msg.To), s.Name())
		return s.Name(), nil
	}
	return "", fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}
