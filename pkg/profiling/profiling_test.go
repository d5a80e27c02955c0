package profiling

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledProfilerRecordsNothing(t *testing.T) {
	p := &Profiler{}
	p.Start("load").Stop()

	var out bytes.Buffer
	p.Summarize(&out)
	assert.Empty(t, out.String())
}

func TestConcurrentSpansAggregate(t *testing.T) {
	p := &Profiler{}
	p.enable()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := p.Start("snapshot")
			time.Sleep(time.Millisecond)
			s.Stop()
			s.Stop()
		}()
	}
	wg.Wait()
	p.Start("connect").Stop()

	assert.Equal(t, 4, p.stats["snapshot"].count)

	var out bytes.Buffer
	p.Summarize(&out)
	assert.Contains(t, out.String(), "- snapshot (")
	assert.Contains(t, out.String(), "x4")
	assert.Less(t, bytes.Index(out.Bytes(), []byte("snapshot")), bytes.Index(out.Bytes(), []byte("connect")))
}

func TestCobraProfilerWritesProfiles(t *testing.T) {
	dir := t.TempDir()
	cpu := filepath.Join(dir, "cpu.prof")
	mem := filepath.Join(dir, "mem.prof")

	cmd := &cobra.Command{Use: "test", Run: func(*cobra.Command, []string) {}}
	NewCobraProfiler().Attach(cmd)
	var errOut bytes.Buffer
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"--cpu-profile", cpu, "--mem-profile", mem})
	require.NoError(t, cmd.Execute())

	for _, path := range []string{cpu, mem} {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.NotZero(t, info.Size())
	}
	assert.Contains(t, errOut.String(), "Heap profile written")
}
