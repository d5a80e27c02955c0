package cmd

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/grovetools/pharmastock/cli"
	"github.com/grovetools/pharmastock/logging"
	"github.com/grovetools/pharmastock/pkg/paths"
	"github.com/grovetools/pharmastock/tui/components/logviewer"
	"github.com/hpcloud/tail"
	"github.com/spf13/cobra"
)

// NewLogsCmd creates the `logs` command.
func NewLogsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the pharmastock log files",
		Long: `Prints the log files written by pharmastock components (api, hub, live,
fakehub, ...) for one day, prefixed with the component name.

Examples:
  # Follow today's logs
  pharmastock logs -f

  # Only the hub connection, from a given day
  pharmastock logs -c hub --date 2026-10-16

  # Interactive viewer
  pharmastock logs --tui`,
		RunE: runLogsE,
	}

	cmd.Flags().BoolP("follow", "f", false, "Follow log output")
	cmd.Flags().BoolP("tui", "i", false, "Launch the interactive viewer")
	cmd.Flags().StringSliceP("component", "C", nil, "Only show these components (comma-separated)")
	cmd.Flags().String("date", "", "Day to show as YYYY-MM-DD (default: today)")
	return cmd
}

func runLogsE(cmd *cobra.Command, args []string) error {
	logger := cli.GetLogger(cmd)

	var logCfg logging.Config
	if cfg, err := cli.LoadConfig(cmd); err == nil {
		_ = cfg.UnmarshalExtension("logging", &logCfg)
	}

	day := time.Now()
	if date, _ := cmd.Flags().GetString("date"); date != "" {
		parsed, err := time.ParseInLocation("2006-01-02", date, time.Local)
		if err != nil {
			return fmt.Errorf("invalid --date %q: %w", date, err)
		}
		day = parsed
	}
	components, _ := cmd.Flags().GetStringSlice("component")

	files, err := findLogFiles(logCfg, paths.LogsDir(), day, components)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		logger.Info("No log files found")
		return nil
	}

	follow, _ := cmd.Flags().GetBool("follow")
	if tuiMode, _ := cmd.Flags().GetBool("tui"); tuiMode {
		return runLogsTUI(files)
	}
	return tailFiles(cmd, files, follow)
}

// findLogFiles maps component names to their log file for day. A configured
// file path holds every component and is returned under "all".
func findLogFiles(logCfg logging.Config, dir string, day time.Time, components []string) (map[string]string, error) {
	if logCfg.File.Path != "" {
		return map[string]string{"all": logging.LogFilePath("all", logCfg, day)}, nil
	}
	if dir == "" {
		return nil, nil
	}

	suffix := "-" + day.Format("2006-01-02") + ".log"
	matches, err := filepath.Glob(filepath.Join(dir, "*"+suffix))
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(components))
	for _, c := range components {
		wanted[c] = true
	}

	files := make(map[string]string)
	for _, path := range matches {
		component := strings.TrimSuffix(filepath.Base(path), suffix)
		if len(wanted) > 0 && !wanted[component] {
			continue
		}
		files[component] = path
	}
	return files, nil
}

// tailFiles prints every file, prefixed with its component. With follow it
// keeps printing new lines until interrupted.
func tailFiles(cmd *cobra.Command, files map[string]string, follow bool) error {
	names := make([]string, 0, len(files))
	for component := range files {
		names = append(names, component)
	}
	sort.Strings(names)

	type taggedLine struct {
		component string
		text      string
	}
	lines := make(chan taggedLine, 100)

	var tails []*tail.Tail
	var wg sync.WaitGroup
	for _, component := range names {
		t, err := tail.TailFile(files[component], tail.Config{
			Follow:    follow,
			ReOpen:    follow,
			MustExist: !follow,
			Logger:    stdlog.New(io.Discard, "", 0),
		})
		if err != nil {
			return fmt.Errorf("failed to open log for %s: %w", component, err)
		}
		tails = append(tails, t)

		wg.Add(1)
		go func(component string, t *tail.Tail) {
			defer wg.Done()
			for line := range t.Lines {
				lines <- taggedLine{component: component, text: line.Text}
			}
		}(component, t)
	}

	go func() {
		wg.Wait()
		close(lines)
	}()

	if follow {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(stop)
		go func() {
			<-stop
			for _, t := range tails {
				_ = t.Stop()
			}
		}()
	}

	out := cmd.OutOrStdout()
	for line := range lines {
		fmt.Fprintln(out, logviewer.FormatLine(line.component, line.text))
	}
	return nil
}
