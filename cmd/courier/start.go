package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/courier/internal/ai"
	"github.com/zulandar/courier/internal/config"
	"github.com/zulandar/courier/internal/db"
	"github.com/zulandar/courier/internal/flow"
	"github.com/zulandar/courier/internal/health"
	"github.com/zulandar/courier/internal/mailer"
	"github.com/zulandar/courier/internal/session"
	"github.com/zulandar/courier/internal/telegraph"
	discordadapter "github.com/zulandar/courier/internal/telegraph/discord"
	slackadapter "github.com/zulandar/courier/internal/telegraph/slack"
	telegramadapter "github.com/zulandar/courier/internal/telegraph/telegram"
)

func newStartCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the chat bot",
		Long:  "Connects to the configured chat platform and serves allow-listed operators until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to courier config file")
	return cmd
}

// loadConfig reads, validates and resolves secrets.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ResolveSecrets(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runStart(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	adapter, err := createAdapter(cfg)
	if err != nil {
		return err
	}
	generator, err := createGenerator(cfg)
	if err != nil {
		return err
	}
	for _, w := range cfg.Warnings() {
		log.Printf("courier: %s", w)
	}
	chain, err := createMailChain(cfg)
	if err != nil {
		return err
	}
	if chain != nil {
		fmt.Fprintf(out, "Mail transports: %v\n", chain.Names())
	}

	var deliveries *db.DeliveryLog
	if cfg.DatabaseEnabled() {
		deliveries, err = openDeliveryLog(cfg)
		if err != nil {
			return err
		}
	}

	store := session.NewStore()
	engineOpts := flow.EngineOpts{
		Store:     store,
		Adapter:   adapter,
		AI:        generator,
		From:      cfg.Mail.From,
		Footer:    cfg.Mail.Footer,
		Locale:    cfg.Locale,
		Templates: templates(cfg),
		MenuDelay: cfg.MenuDelay(),
		Out:       out,
	}
	if chain != nil {
		engineOpts.Mail = chain
	}
	if deliveries != nil {
		engineOpts.Deliveries = deliveries
	}
	engine, err := flow.NewEngine(engineOpts)
	if err != nil {
		return err
	}

	daemonOpts := telegraph.DaemonOpts{
		Adapter: adapter,
		Handler: engine,
		Allow:   cfg.Admins,
		Refusal: flow.Refusal(cfg.Locale),
		Out:     out,
	}
	if cfg.SweepEnabled() {
		ttl := cfg.IdleTTL()
		daemonOpts.SweepCron = cfg.Session.SweepCron
		daemonOpts.Sweep = func() { store.Sweep(ttl) }
	}
	daemon, err := telegraph.NewDaemon(daemonOpts)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle OS signals for graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if cfg.Health.Port > 0 {
		startHealth(ctx, cfg, store, deliveries, out)
	}

	return daemon.Run(ctx)
}

func startHealth(ctx context.Context, cfg *config.Config, store *session.Store, deliveries *db.DeliveryLog, out io.Writer) {
	opts := health.StartOpts{
		Sessions: store,
		Platform: cfg.Platform,
		Version:  Version,
		Bind:     cfg.Health.Bind,
		Port:     cfg.Health.Port,
		Out:      out,
	}
	if deliveries != nil {
		opts.Deliveries = deliveries
	}
	go func() {
		if err := health.Start(ctx, opts); err != nil {
			log.Printf("courier: health server: %v", err)
		}
	}()
}

// createAdapter builds a platform adapter from the config.
func createAdapter(cfg *config.Config) (telegraph.Adapter, error) {
	switch cfg.Platform {
	case "telegram":
		return telegramadapter.New(telegramadapter.AdapterOpts{BotToken: cfg.Telegram.BotToken})
	case "discord":
		return discordadapter.New(discordadapter.AdapterOpts{BotToken: cfg.Discord.BotToken})
	case "slack":
		return slackadapter.New(slackadapter.AdapterOpts{
			AppToken: cfg.Slack.AppToken,
			BotToken: cfg.Slack.BotToken,
		})
	default:
		return nil, fmt.Errorf("courier: unsupported platform %q", cfg.Platform)
	}
}

// createGenerator returns nil when AI drafting is not configured.
func createGenerator(cfg *config.Config) (ai.Generator, error) {
	g, err := ai.NewOpenAI(ai.OpenAIOpts{
		APIKey:    cfg.AI.APIKey,
		Model:     cfg.AI.Model,
		MaxTokens: cfg.AI.MaxTokens,
		BaseURL:   cfg.AI.BaseURL,
	})
	if errors.Is(err, ai.ErrDisabled) {
		log.Printf("courier: AI drafting disabled (no ai.api_key)")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return g, nil
}

// createMailChain orders the transports: SMTP first, Gmail as fallback. It
// returns nil when no transport is configured; sending is then disabled.
func createMailChain(cfg *config.Config) (*mailer.Chain, error) {
	if !cfg.MailEnabled() {
		return nil, nil
	}
	var senders []mailer.Sender
	if cfg.SMTPEnabled() {
		s := cfg.Mail.SMTP
		smtp, err := mailer.NewSMTP(mailer.SMTPOpts{
			Host:          s.Host,
			Port:          s.Port,
			Username:      s.Username,
			Password:      s.Password,
			Security:      mailer.Security(s.Security),
			VerifyTimeout: cfg.VerifyTimeout(),
		})
		if err != nil {
			return nil, err
		}
		senders = append(senders, smtp)
	}
	if cfg.GmailEnabled() {
		gmail, err := createGmail(cfg)
		if err != nil {
			return nil, err
		}
		senders = append(senders, gmail)
	}
	return mailer.NewChain(senders...)
}

func createGmail(cfg *config.Config) (*mailer.Gmail, error) {
	g := cfg.Mail.Gmail
	opts := mailer.GmailOpts{
		ClientID:     g.ClientID,
		ClientSecret: g.ClientSecret,
		RefreshToken: g.RefreshToken,
		Subject:      g.Subject,
	}
	if g.RefreshToken == "" && g.ServiceAccountFile != "" {
		data, err := os.ReadFile(g.ServiceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("courier: read service account: %w", err)
		}
		sa, err := mailer.ParseServiceAccount(data)
		if err != nil {
			return nil, err
		}
		opts.ServiceAccountEmail = sa.ClientEmail
		opts.PrivateKey = []byte(sa.PrivateKey)
		opts.TokenURL = sa.TokenURI
	}
	return mailer.NewGmail(opts)
}

func openDeliveryLog(cfg *config.Config) (*db.DeliveryLog, error) {
	gormDB, err := db.Open(cfg.Database.Driver, cfg.DSN())
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return nil, err
	}
	return db.NewDeliveryLog(gormDB)
}

func templates(cfg *config.Config) []flow.Template {
	out := make([]flow.Template, 0, len(cfg.Templates))
	for _, t := range cfg.Templates {
		out = append(out, flow.Template{Key: t.Key, Label: t.Label, Subject: t.Subject, Body: t.Body})
	}
	return out
}
