// Package health serves liveness and read-only operational stats over HTTP.
package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/courier/internal/models"
)

// SessionCounter reports live conversations. *session.Store satisfies it.
type SessionCounter interface {
	Len() int
}

// DeliveryReader reads the delivery log. *db.DeliveryLog satisfies it.
type DeliveryReader interface {
	Recent(ctx context.Context, userID string, limit int) ([]models.Delivery, error)
	Counts(ctx context.Context) (map[string]int64, error)
}

// StartOpts holds configuration for the health server.
type StartOpts struct {
	Sessions   SessionCounter
	Deliveries DeliveryReader // optional; delivery routes answer 404 without it
	Platform   string
	Version    string
	Bind       string // defaults to 127.0.0.1
	Port       int
	Out        io.Writer
}

// Start launches the health server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Port <= 0 {
		return fmt.Errorf("health: port is required")
	}
	router, err := NewRouter(opts)
	if err != nil {
		return err
	}
	bind := opts.Bind
	if bind == "" {
		bind = "127.0.0.1"
	}
	addr := net.JoinHostPort(bind, strconv.Itoa(opts.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Health server listening on http://%s\n", addr)
	}

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("health: %w", err)
	}
	return nil
}

// NewRouter builds the gin engine without starting a listener.
func NewRouter(opts StartOpts) (*gin.Engine, error) {
	if opts.Sessions == nil {
		return nil, fmt.Errorf("health: sessions is required")
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	registerRoutes(router, opts)
	return router, nil
}
