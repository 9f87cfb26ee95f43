package main

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/zulandar/courier/internal/config"
	"github.com/zulandar/courier/internal/mailer"
)

func newCheckConfigCmd() *cobra.Command {
	var (
		configPath string
		probe      bool
	)

	cmd := &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration",
		Long:  "Lists every missing or inconsistent setting and which optional features are enabled. With --probe the SMTP relay is contacted too.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheckConfig(cmd, configPath, probe)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to courier config file")
	cmd.Flags().BoolVar(&probe, "probe", false, "connect to the SMTP relay and authenticate")
	return cmd
}

type checkResult struct {
	name   string
	status string // "PASS", "FAIL", "WARN", "OFF"
	detail string
}

func runCheckConfig(cmd *cobra.Command, configPath string, probe bool) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Courier configuration check")
	fmt.Fprintln(out, "===========================")

	cfg, err := config.LoadUnchecked(configPath)
	if err != nil {
		printCheckResult(out, checkResult{"Config file", "FAIL", err.Error()})
		return fmt.Errorf("config check failed")
	}

	results := []checkResult{{"Config file", "PASS", configPath}}
	for _, p := range cfg.Problems() {
		results = append(results, checkResult{"Setting", "FAIL", p})
	}
	results = append(results, featureResults(cfg)...)
	if err := cfg.ResolveSecrets(); err != nil {
		results = append(results, checkResult{"Secrets", "FAIL", err.Error()})
	} else if probe && cfg.SMTPEnabled() {
		results = append(results, probeSMTP(cmd.Context(), cfg))
	}

	failed := 0
	for _, r := range results {
		printCheckResult(out, r)
		if r.status == "FAIL" {
			failed++
		}
	}
	if failed > 0 {
		fmt.Fprintf(out, "\n%d problem(s) found\n", failed)
		return fmt.Errorf("%d check(s) failed", failed)
	}
	fmt.Fprintln(out, "\nConfiguration OK")
	return nil
}

// featureResults reports the optional features and how they are configured.
func featureResults(cfg *config.Config) []checkResult {
	var out []checkResult
	if cfg.AIEnabled() {
		out = append(out, checkResult{"AI drafting", "PASS", cfg.AI.Model})
	} else {
		out = append(out, checkResult{"AI drafting", "OFF", "no ai.api_key; the AI option is hidden"})
	}
	if cfg.SMTPEnabled() {
		out = append(out, checkResult{"SMTP", "PASS", fmt.Sprintf("%s:%d", cfg.Mail.SMTP.Host, cfg.Mail.SMTP.Port)})
	} else {
		out = append(out, checkResult{"SMTP", "OFF", "no mail.smtp.host"})
	}
	if cfg.GmailEnabled() {
		out = append(out, checkResult{"Gmail API", "PASS", "fallback transport"})
	} else {
		out = append(out, checkResult{"Gmail API", "OFF", "no gmail credentials"})
	}
	if !cfg.MailEnabled() {
		out = append(out, checkResult{"Sending", "OFF", "no mail transport; the bot runs but cannot send"})
	}
	if cfg.DatabaseEnabled() {
		out = append(out, checkResult{"Delivery log", "PASS", cfg.Database.Driver})
	} else {
		out = append(out, checkResult{"Delivery log", "OFF", "no database.driver"})
	}
	if cfg.Mail.Footer == "" {
		out = append(out, checkResult{"Footer", "WARN", "mail.footer is empty; emails go out unsigned"})
	}
	return out
}

func probeSMTP(ctx context.Context, cfg *config.Config) checkResult {
	if ctx == nil {
		ctx = context.Background()
	}
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
		return checkResult{"SMTP probe", "FAIL", err.Error()}
	}
	if err := smtp.Verify(ctx); err != nil {
		return checkResult{"SMTP probe", "FAIL", err.Error()}
	}
	return checkResult{"SMTP probe", "PASS", "connected and authenticated"}
}

func printCheckResult(out io.Writer, r checkResult) {
	var tag *color.Color
	switch r.status {
	case "PASS":
		tag = color.New(color.FgGreen)
	case "FAIL":
		tag = color.New(color.FgRed)
	case "WARN":
		tag = color.New(color.FgYellow)
	default:
		tag = color.New(color.Faint)
	}
	tag.Fprintf(out, "[%s]", r.status)
	fmt.Fprintf(out, " %s: %s\n", r.name, r.detail)
}
