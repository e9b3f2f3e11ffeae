//go:build unix

package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/cuongbtq/media-fetcher/internal/converter/convertertest"
	"github.com/cuongbtq/media-fetcher/internal/converter/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readPID waits for the stub to record the pid of its child
func readPID(t *testing.T, pidFile string) int {
	t.Helper()
	var pid int
	require.Eventually(t, func() bool {
		raw, err := os.ReadFile(pidFile)
		if err != nil {
			return false
		}
		pid, err = strconv.Atoi(strings.TrimSpace(string(raw)))
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	return pid
}

// exited reports whether pid is gone. An orphan killed after its parent died
// may linger as a zombie until init reaps it, which counts as gone.
func exited(pid int) bool {
	if errors.Is(syscall.Kill(pid, 0), syscall.ESRCH) {
		return true
	}
	raw, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return os.IsNotExist(err)
	}
	i := bytes.LastIndexByte(raw, ')')
	return i >= 0 && i+2 < len(raw) && (raw[i+2] == 'Z' || raw[i+2] == 'X')
}

func TestRun_CancelStopsChildProcesses(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "child.pid")
	stub := convertertest.Write(t, convertertest.SpawnsChild(pidFile))
	runner := NewRunner(Config{KillGrace: 5 * time.Second}, discardLogger())
	spec := jobSpec(t, domain.KindAudio)
	workDir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type runResult struct {
		err     error
		elapsed time.Duration
	}
	done := make(chan runResult, 1)
	go func() {
		start := time.Now()
		_, err := runner.Run(ctx, stub, spec, workDir)
		done <- runResult{err: err, elapsed: time.Since(start)}
	}()

	child := readPID(t, pidFile)
	cancel()

	var res runResult
	select {
	case res = <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	assert.ErrorIs(t, res.err, domain.ErrCanceled)
	// the child no longer holds stderr open, so Run does not sit out the kill grace
	assert.Less(t, res.elapsed, 3*time.Second)
	assert.Eventually(t, func() bool { return exited(child) }, 2*time.Second, 20*time.Millisecond,
		"child pid %d outlived the canceled job", child)
}

func TestRun_TimeoutStopsChildProcesses(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "child.pid")
	stub := convertertest.Write(t, convertertest.SpawnsChild(pidFile))

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	_, err := newTestRunner().Run(ctx, stub, jobSpec(t, domain.KindAudio), t.TempDir())

	require.ErrorIs(t, err, domain.ErrTimeout)
	child := readPID(t, pidFile)
	assert.Eventually(t, func() bool { return exited(child) }, 2*time.Second, 20*time.Millisecond)
}

func TestStart_TerminateStopsChildProcesses(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "child.pid")
	stub := convertertest.Write(t, convertertest.SpawnsChild(pidFile))

	stream, err := newTestRunner().Start(context.Background(), stub, jobSpec(t, domain.KindVideoStandard), t.TempDir())
	require.NoError(t, err)

	child := readPID(t, pidFile)
	stream.Terminate()

	_, err = stream.Wait()
	assert.ErrorIs(t, err, domain.ErrCanceled)
	assert.Eventually(t, func() bool { return exited(child) }, 2*time.Second, 20*time.Millisecond)
}
