package subprocess

import (
	"bufio"
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wagiedev/transactor-go/internal/config"
	"github.com/wagiedev/transactor-go/internal/errors"
)

func requireShell(t *testing.T) {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("Test requires a POSIX shell")
	}

	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func waitExited(t *testing.T, p *Process) {
	t.Helper()

	select {
	case <-p.Exited():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit")
	}
}

func TestProcess_StdioRoundTrip(t *testing.T) {
	requireShell(t)

	p := New(slog.Default(), "cat", nil, nil)
	require.NoError(t, p.Start(context.Background()))

	defer p.Close()

	_, err := io.WriteString(p.Stdin(), `{"op":"stop"}`+"\n")
	require.NoError(t, err)

	line, err := bufio.NewReader(p.Stdout()).ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, `{"op":"stop"}`+"\n", line)
}

// TestProcess_OutputSurvivesExit verifies frames written just before the
// child exits are still readable afterwards.
func TestProcess_OutputSurvivesExit(t *testing.T) {
	requireShell(t)

	p := New(slog.Default(), "sh", []string{"-c", `printf '{"op":"stop"}\n'`}, nil)
	require.NoError(t, p.Start(context.Background()))

	waitExited(t, p)
	require.NoError(t, p.Err())

	data, err := io.ReadAll(p.Stdout())
	require.NoError(t, err)
	require.Equal(t, `{"op":"stop"}`+"\n", string(data))

	require.NoError(t, p.Close())
}

func TestProcess_StderrCallbackAndBuffer(t *testing.T) {
	requireShell(t)

	var (
		mu    sync.Mutex
		lines []string
	)

	p := New(slog.Default(), "sh", []string{"-c", "echo first >&2; echo second >&2"}, &config.Options{
		Stderr: func(line string) {
			mu.Lock()
			defer mu.Unlock()

			lines = append(lines, line)
		},
	})
	require.NoError(t, p.Start(context.Background()))

	waitExited(t, p)

	mu.Lock()
	require.Equal(t, []string{"first", "second"}, lines)
	mu.Unlock()

	require.Equal(t, "first\nsecond", p.Stderr())
}

func TestProcess_AbnormalExitIsProcessError(t *testing.T) {
	requireShell(t)

	p := New(slog.Default(), "sh", []string{"-c", "echo broken >&2; exit 3"}, nil)
	require.NoError(t, p.Start(context.Background()))

	waitExited(t, p)

	procErr, ok := stderrors.AsType[*errors.ProcessError](p.Err())
	require.True(t, ok)
	require.Equal(t, 3, procErr.ExitCode)
	require.Equal(t, "broken", procErr.Stderr)

	// Close reports the failure that happened before it.
	require.ErrorIs(t, p.Close(), procErr)
}

func TestProcess_CloseKillsRunningProcess(t *testing.T) {
	requireShell(t)

	p := New(slog.Default(), "sleep", []string{"30"}, nil)
	require.NoError(t, p.Start(context.Background()))

	done := make(chan error, 1)

	go func() {
		done <- p.Close()
	}()

	select {
	case err := <-done:
		require.NoError(t, err, "a kill caused by Close is not a failure")
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}

	require.NoError(t, p.Close())
	require.NoError(t, p.Err())
}

func TestProcess_EnvAndCwd(t *testing.T) {
	requireShell(t)

	dir := t.TempDir()

	p := New(slog.Default(), "sh", []string{"-c", `printf '%s %s' "$PEER_NAME" "$(pwd)"`}, &config.Options{
		Cwd: dir,
		Env: map[string]string{"PEER_NAME": "child"},
	})
	require.NoError(t, p.Start(context.Background()))

	data, err := io.ReadAll(p.Stdout())
	require.NoError(t, err)

	fields := strings.SplitN(string(data), " ", 2)
	require.Len(t, fields, 2)
	require.Equal(t, "child", fields[0])
	require.Contains(t, fields[1], dir[strings.LastIndex(dir, "/")+1:])

	require.NoError(t, p.Close())
}

func TestProcess_StartMissingBinary(t *testing.T) {
	p := New(slog.Default(), "/nonexistent/peer-binary", nil, nil)

	err := p.Start(context.Background())

	transportErr, ok := stderrors.AsType[*errors.TransportError](err)
	require.True(t, ok)
	require.Equal(t, "spawn", transportErr.Op)

	require.NoError(t, p.Close(), "Close on a process that never started is a no-op")
}

func TestStderrBuffer_SizeLimit(t *testing.T) {
	requireShell(t)

	// 2000 lines of 1000 bytes overflow the 1MB cap.
	script := `i=0; line=$(printf '%1000s' x); while [ $i -lt 2000 ]; do echo "$line" >&2; i=$((i+1)); done`

	p := New(slog.Default(), "sh", []string{"-c", script}, nil)
	require.NoError(t, p.Start(context.Background()))

	waitExited(t, p)

	require.LessOrEqual(t, len(p.Stderr()), maxStderrBufferSize+1001)
	require.Greater(t, len(p.Stderr()), 0)
}
