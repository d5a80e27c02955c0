package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/grovetools/pharmastock/cli"
	"github.com/grovetools/pharmastock/pkg/profiling"
	"github.com/spf13/cobra"
)

// NewDoctorCmd creates the `doctor` command.
func NewDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, API access and the hub connection",
	}
	flags := cli.AddConnectionFlags(cmd.Flags())
	timeout := cmd.Flags().Duration("timeout", 10*time.Second, "Timeout for each network check")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		report := cli.NewCheckReporter(cmd.OutOrStdout())

		b, err := connect(cmd, flags)
		report.Report("Configuration", err, "")
		if err != nil {
			report.Done()
			return fmt.Errorf("doctor found problems")
		}

		check := func(name string, fn func(ctx context.Context) (string, error)) {
			ctx, cancel := context.WithTimeout(cmd.Context(), *timeout)
			defer cancel()
			defer profiling.Start(name).Stop()
			detail, err := fn(ctx)
			report.Report(name, err, detail)
		}

		check("API reachable", func(ctx context.Context) (string, error) {
			return b.client.BaseURL(), b.client.Health(ctx)
		})
		check("Dashboard snapshot", func(ctx context.Context) (string, error) {
			stats, err := b.client.GetStats(ctx)
			return fmt.Sprintf("%d medicines", stats.TotalMedicines), err
		})
		check("Hub connection", func(ctx context.Context) (string, error) {
			ch, err := b.channel()
			if err != nil {
				return "", err
			}
			defer ch.Close()
			start := time.Now()
			if err := ch.Connect(ctx); err != nil {
				return "", err
			}
			return fmt.Sprintf("%s over %s in %s", ch.State(), b.cfg.Hub.Transport, time.Since(start).Round(time.Millisecond)), nil
		})

		if report.Done() > 0 {
			return fmt.Errorf("doctor found problems")
		}
		return nil
	}
	return cmd
}
