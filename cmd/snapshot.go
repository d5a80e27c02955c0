package cmd

import (
	"fmt"
	"strconv"

	"github.com/grovetools/pharmastock/cli"
	"github.com/grovetools/pharmastock/tui/components/table"
	"github.com/grovetools/pharmastock/tui/dashboard"
	"github.com/spf13/cobra"
)

// NewStatsCmd creates the `stats` command.
func NewStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show the dashboard statistics",
	}
	flags := cli.AddConnectionFlags(cmd.Flags())
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		b, err := connect(cmd, flags)
		if err != nil {
			return err
		}
		stats, err := b.client.GetStats(cmd.Context())
		if err != nil {
			return err
		}
		if cli.GetOptions(cmd).JSONOutput {
			return printJSON(cmd, stats)
		}
		fmt.Fprintln(cmd.OutOrStdout(), table.StatusTable([][]string{
			{"Medicines", strconv.Itoa(stats.TotalMedicines)},
			{"Inventory value", stats.TotalInventoryValue.StringFixed(2)},
			{"Critical alerts", strconv.Itoa(stats.CriticalAlerts)},
			{"Warning alerts", strconv.Itoa(stats.WarningAlerts)},
			{"Active batches", strconv.Itoa(stats.ActiveBatches)},
			{"Low stock items", strconv.Itoa(stats.LowStockItems)},
		}))
		return nil
	}
	return cmd
}

// NewAlertsCmd creates the `alerts` command.
func NewAlertsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Show critical and warning expiry alerts",
	}
	flags := cli.AddConnectionFlags(cmd.Flags())
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		b, err := connect(cmd, flags)
		if err != nil {
			return err
		}
		alerts, err := b.client.GetAlerts(cmd.Context())
		if err != nil {
			return err
		}
		if cli.GetOptions(cmd).JSONOutput {
			return printJSON(cmd, alerts)
		}
		fmt.Fprintln(cmd.OutOrStdout(), dashboard.RenderAlerts(alerts))
		return nil
	}
	return cmd
}

// NewMovementsCmd creates the `movements` command.
func NewMovementsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "movements",
		Short: "Show the most recent stock movements",
	}
	flags := cli.AddConnectionFlags(cmd.Flags())
	count := cmd.Flags().IntP("count", "n", 0, "Number of movements (default: dashboard.recent_movements)")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		b, err := connect(cmd, flags)
		if err != nil {
			return err
		}
		n := *count
		if n <= 0 {
			n = b.cfg.Dashboard.RecentMovements
		}
		movements, err := b.client.GetRecentMovements(cmd.Context(), n)
		if err != nil {
			return err
		}
		if cli.GetOptions(cmd).JSONOutput {
			return printJSON(cmd, movements)
		}
		fmt.Fprintln(cmd.OutOrStdout(), dashboard.RenderMovements(movements))
		return nil
	}
	return cmd
}

// NewValuationCmd creates the `valuation` command.
func NewValuationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "valuation",
		Short: "Show the total inventory valuation",
	}
	flags := cli.AddConnectionFlags(cmd.Flags())
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		b, err := connect(cmd, flags)
		if err != nil {
			return err
		}
		valuation, err := b.client.GetValuation(cmd.Context())
		if err != nil {
			return err
		}
		if cli.GetOptions(cmd).JSONOutput {
			return printJSON(cmd, valuation)
		}
		fmt.Fprintln(cmd.OutOrStdout(), table.StatusTable([][]string{
			{"Total value", valuation.TotalValue.StringFixed(2)},
			{"Total items", strconv.Itoa(valuation.TotalItems)},
			{"Active batches", strconv.Itoa(valuation.ActiveBatches)},
		}))
		return nil
	}
	return cmd
}

// NewLowStockCmd creates the `low-stock` command.
func NewLowStockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "low-stock",
		Short: "List medicines under their minimum stock level",
	}
	flags := cli.AddConnectionFlags(cmd.Flags())
	threshold := cmd.Flags().Int("threshold", -1, "Quantity threshold (default: dashboard.low_stock_threshold)")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		b, err := connect(cmd, flags)
		if err != nil {
			return err
		}
		limit := *threshold
		if limit < 0 {
			limit = b.cfg.Dashboard.LowStockThreshold
		}
		items, err := b.client.GetLowStock(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if cli.GetOptions(cmd).JSONOutput {
			return printJSON(cmd, items)
		}
		if len(items) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No low stock items")
			return nil
		}
		rows := make([][]string, 0, len(items))
		for _, item := range items {
			rows = append(rows, []string{
				item.MedicineCode,
				item.MedicineName,
				item.CategoryName,
				strconv.Itoa(item.TotalQuantity),
				strconv.Itoa(item.MinimumLevel),
			})
		}
		fmt.Fprintln(cmd.OutOrStdout(), table.SimpleTable([]string{"Code", "Medicine", "Category", "Qty", "Minimum"}, rows))
		return nil
	}
	return cmd
}
