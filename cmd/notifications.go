package cmd

import (
	"fmt"
	"strconv"

	"github.com/grovetools/pharmastock/cli"
	"github.com/grovetools/pharmastock/errors"
	"github.com/grovetools/pharmastock/pkg/live"
	"github.com/grovetools/pharmastock/tui/components/table"
	"github.com/grovetools/pharmastock/tui/dashboard"
	"github.com/spf13/cobra"
)

// NewNotificationsCmd creates the `notifications` command group.
func NewNotificationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"notif"},
		Short:   "List and manage your notifications",
	}
	flags := cli.AddConnectionFlags(cmd.PersistentFlags())

	cmd.AddCommand(newNotificationsListCmd(flags))
	cmd.AddCommand(newNotificationsReadCmd(flags))
	cmd.AddCommand(newNotificationsReadAllCmd(flags))
	cmd.AddCommand(newNotificationsDeleteCmd(flags))
	return cmd
}

func newNotificationsListCmd(flags *cli.ConnectionFlags) *cobra.Command {
	var unread bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notifications, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := connect(cmd, flags)
			if err != nil {
				return err
			}
			list := live.NewNotificationList(b.client, nil)
			defer list.Close()
			if err := list.Load(cmd.Context()); err != nil {
				return err
			}

			filter := live.FilterAll
			if unread {
				filter = live.FilterUnread
			}
			visible := list.Visible(filter)
			if cli.GetOptions(cmd).JSONOutput {
				return printJSON(cmd, visible)
			}
			if len(visible) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No notifications")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), table.SimpleTable(
				[]string{"", "When", "Type", "Title", "Message"},
				dashboard.NotificationRows(visible),
			))
			fmt.Fprintf(cmd.OutOrStdout(), "%d unread\n", list.UnreadCount())
			return nil
		},
	}
	cmd.Flags().BoolVarP(&unread, "unread", "u", false, "Only show unread notifications")
	return cmd
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("invalid notification id %q", arg))
	}
	return id, nil
}

func newNotificationsReadCmd(flags *cli.ConnectionFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "read <id>",
		Short: "Mark a notification as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			b, err := connect(cmd, flags)
			if err != nil {
				return err
			}
			if err := b.client.MarkAsRead(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Notification %d marked as read\n", id)
			return nil
		},
	}
}

func newNotificationsReadAllCmd(flags *cli.ConnectionFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "read-all",
		Short: "Mark every notification as read",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := connect(cmd, flags)
			if err != nil {
				return err
			}
			if err := b.client.MarkAllAsRead(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "All notifications marked as read")
			return nil
		},
	}
}

func newNotificationsDeleteCmd(flags *cli.ConnectionFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a notification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			b, err := connect(cmd, flags)
			if err != nil {
				return err
			}
			if err := b.client.DeleteNotification(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Notification %d deleted\n", id)
			return nil
		},
	}
}
