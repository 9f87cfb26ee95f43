package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/courier/internal/db"
)

func newDeliveriesCmd() *cobra.Command {
	var (
		configPath string
		limit      int
		user       string
	)

	cmd := &cobra.Command{
		Use:   "deliveries",
		Short: "List recent send attempts",
		Long:  "Prints the newest rows of the delivery log. Requires database.driver in the config.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeliveries(cmd, configPath, user, limit)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to courier config file")
	cmd.Flags().IntVarP(&limit, "limit", "n", db.DefaultListLimit, "number of rows to show")
	cmd.Flags().StringVar(&user, "user", "", "only show deliveries by this platform user ID")
	return cmd
}

func runDeliveries(cmd *cobra.Command, configPath, user string, limit int) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if !cfg.DatabaseEnabled() {
		return fmt.Errorf("deliveries: no database configured in %s (add database.driver)", configPath)
	}
	log, err := openDeliveryLog(cfg)
	if err != nil {
		return err
	}
	rows, err := log.Recent(cmd.Context(), user, limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(rows) == 0 {
		fmt.Fprintln(out, "No deliveries recorded.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tUSER\tSTATUS\tVIA\tTO\tFILES\tSUBJECT")
	for _, d := range rows {
		via := d.Transport
		if via == "" {
			via = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			d.CreatedAt.Local().Format("2006-01-02 15:04"), d.UserID, d.Status, via,
			d.Recipients, d.Attachments, truncate(d.Subject, 48))
	}
	return w.Flush()
}

// truncate shortens s to n runes, appending "..." when cut.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
