package cli

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/grovetools/pharmastock/tui/theme"
)

// CheckReporter prints the outcome of a series of checks, e.g. for doctor.
type CheckReporter struct {
	mu     sync.Mutex
	out    io.Writer
	start  time.Time
	failed int
}

// NewCheckReporter creates a reporter writing to out.
func NewCheckReporter(out io.Writer) *CheckReporter {
	return &CheckReporter{out: out, start: time.Now()}
}

// Report prints one check result.
func (r *CheckReporter) Report(name string, err error, detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := theme.DefaultTheme
	if err != nil {
		r.failed++
		fmt.Fprintf(r.out, "%s %s: %s\n", t.Error.Render("[x]"), name, err)
		return
	}
	line := fmt.Sprintf("%s %s", t.Success.Render("[*]"), name)
	if detail != "" {
		line += t.Muted.Render(" (" + detail + ")")
	}
	fmt.Fprintln(r.out, line)
}

// Done prints the summary and returns the number of failed checks.
func (r *CheckReporter) Done() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	elapsed := time.Since(r.start).Round(time.Millisecond)
	if r.failed == 0 {
		fmt.Fprintf(r.out, "\nAll checks passed in %s\n", elapsed)
	} else {
		fmt.Fprintf(r.out, "\n%d check(s) failed in %s\n", r.failed, elapsed)
	}
	return r.failed
}
