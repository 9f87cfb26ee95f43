package telegraph

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
)

// Daemon is the main telegraph process. It connects to a chat platform via
// an Adapter, pumps inbound events through the access-controlled Router and
// runs periodic housekeeping on a cron schedule.
type Daemon struct {
	adapter   Adapter
	handler   Handler
	allow     []string
	refusal   string
	sweepCron string
	sweep     func()
	out       io.Writer
}

// DaemonOpts holds parameters for creating a new Daemon.
type DaemonOpts struct {
	Adapter   Adapter
	Handler   Handler
	Allow     []string  // allow-listed user IDs
	Refusal   string    // reply for everyone else; defaults to DefaultRefusal
	SweepCron string    // optional; 5-field cron for Sweep
	Sweep     func()    // optional; idle-session cleanup
	Out       io.Writer // defaults to os.Stdout
}

// NewDaemon creates a Daemon with the given options.
func NewDaemon(opts DaemonOpts) (*Daemon, error) {
	if opts.Adapter == nil {
		return nil, fmt.Errorf("telegraph: adapter is required")
	}
	if opts.Handler == nil {
		return nil, fmt.Errorf("telegraph: handler is required")
	}
	if len(opts.Allow) == 0 {
		return nil, fmt.Errorf("telegraph: allow-list is empty")
	}
	if opts.Sweep != nil && opts.SweepCron != "" {
		if err := ValidCron(opts.SweepCron); err != nil {
			return nil, err
		}
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	if opts.Sweep == nil || opts.SweepCron == "" {
		fmt.Fprintf(out, "telegraph: no sweep schedule configured; idle sessions are kept until restart\n")
	}
	return &Daemon{
		adapter:   opts.Adapter,
		handler:   opts.Handler,
		allow:     opts.Allow,
		refusal:   opts.Refusal,
		sweepCron: opts.SweepCron,
		sweep:     opts.Sweep,
		out:       out,
	}, nil
}

// Run starts the telegraph daemon. It connects the adapter, builds the
// Router, starts the sweep scheduler, and blocks until the context is
// cancelled or the adapter closes its inbound channel. On shutdown it waits
// for in-flight events and closes the adapter gracefully.
func (d *Daemon) Run(ctx context.Context) error {
	fmt.Fprintf(d.out, "Telegraph connecting...\n")
	if err := d.adapter.Connect(ctx); err != nil {
		return fmt.Errorf("telegraph: connect: %w", err)
	}

	// Extract bot user ID if the adapter supports it.
	var botUserID string
	if bui, ok := d.adapter.(BotUserIDer); ok {
		botUserID = bui.BotUserID()
	}

	router, err := NewRouter(RouterOpts{
		Handler:   d.handler,
		Adapter:   d.adapter,
		Allow:     d.allow,
		BotUserID: botUserID,
		Refusal:   d.refusal,
		Out:       d.out,
	})
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("telegraph: build router: %w", err)
	}

	inbound, err := d.adapter.Listen(ctx)
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("telegraph: listen: %w", err)
	}

	if d.sweep != nil && d.sweepCron != "" {
		sched, err := newScheduler(d.sweepCron, d.sweep)
		if err != nil {
			d.adapter.Close()
			return err
		}
		sched.Start()
		defer sched.Stop()
	}

	fmt.Fprintf(d.out, "Telegraph online\n")

	// Main event loop: pump inbound events until context is cancelled.
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(d.out, "Telegraph shutting down...\n")
			router.Wait()
			if err := d.adapter.Close(); err != nil {
				log.Printf("telegraph: close adapter: %v", err)
			}
			fmt.Fprintf(d.out, "Telegraph stopped\n")
			return nil

		case ev, ok := <-inbound:
			if !ok {
				// Adapter closed the channel.
				fmt.Fprintf(d.out, "Telegraph inbound channel closed\n")
				router.Wait()
				return nil
			}
			router.Handle(ctx, ev)
		}
	}
}
