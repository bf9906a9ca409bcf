package supervisor

import (
	"bufio"
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neematajs/neemata-go/internal/config"
	loggingpkg "github.com/neematajs/neemata-go/internal/logging"
)

// TestHelperProcess is not a real test: it is re-exec'd as the "worker
// binary" by tests below (the os/exec self-test pattern), gated by
// GO_WANT_HELPER_PROCESS so `go test` itself never runs its body as a test.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	stdin := bufio.NewReader(os.Stdin)
	if os.Getenv("HELPER_BEHAVIOR") == "crash_before_ready" {
		os.Exit(1)
	}
	_ = WriteMessage(os.Stdout, Message{Kind: MsgReady})

	switch os.Getenv("HELPER_BEHAVIOR") {
	case "echo_task":
		for {
			msg, err := ReadMessage(stdin)
			if err != nil {
				os.Exit(0)
			}
			switch msg.Kind {
			case MsgStop:
				os.Exit(0)
			case MsgExecuteInvoke:
				invoke, _ := decodeExecuteInvoke(msg.Payload)
				reply, _ := encodeExecuteResult(ExecuteResultPayload{
					CorrelationID: invoke.CorrelationID,
					Result:        invoke.Args,
				})
				_ = WriteMessage(os.Stdout, Message{Kind: MsgExecuteResult, Payload: reply})
			}
		}
	default:
		for {
			msg, err := ReadMessage(stdin)
			if err != nil || msg.Kind == MsgStop {
				os.Exit(0)
			}
		}
	}
}

func testLogger() loggingpkg.ServiceLogger {
	return loggingpkg.NewZerologServiceLogger(zerolog.Nop())
}

// helperEntrypoint returns a Supervisor wired to re-exec this test binary in
// TestHelperProcess mode, the standard way to exercise os/exec-based process
// management without shipping a separate worker binary.
func helperEntrypoint(t *testing.T, behavior string) string {
	t.Helper()
	self, err := os.Executable()
	require.NoError(t, err)
	os.Setenv("GO_WANT_HELPER_PROCESS", "1")
	os.Setenv("HELPER_BEHAVIOR", behavior)
	t.Cleanup(func() {
		os.Unsetenv("GO_WANT_HELPER_PROCESS")
		os.Unsetenv("HELPER_BEHAVIOR")
	})
	return self
}

func helperConfig() config.Config {
	cfg := config.Default()
	cfg.ApiWorkers = 0
	cfg.TaskWorkers = 2
	cfg.ShutdownTimeout = 2 * time.Second
	return cfg
}

func TestSupervisor_StartAwaitsReadyFromEveryWorker(t *testing.T) {
	entry := helperEntrypoint(t, "idle")
	s := New(helperConfig(), entry, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, s.Start(ctx))
	assert.Equal(t, 2, s.pool.Len())

	require.NoError(t, s.Stop(context.Background()))
}

func TestSupervisor_StartFailsWhenAWorkerNeverBecomesReady(t *testing.T) {
	entry := helperEntrypoint(t, "crash_before_ready")
	cfg := helperConfig()
	cfg.TaskWorkers = 1
	s := New(cfg, entry, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := s.Start(ctx)
	assert.Error(t, err)
}

func TestSupervisor_OffloadRoutesToTaskWorkerRoundRobin(t *testing.T) {
	entry := helperEntrypoint(t, "echo_task")
	cfg := helperConfig()
	cfg.TaskWorkers = 1
	s := New(cfg, entry, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, s.Start(ctx))
	defer s.Stop(context.Background())

	result, err := s.Offload(ctx, "corr-1", "math.echo", map[string]any{"n": float64(4)})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"n": float64(4)}, result)
}

func TestSupervisor_OffloadFailsWhenNoTaskWorkers(t *testing.T) {
	entry := helperEntrypoint(t, "idle")
	cfg := helperConfig()
	cfg.TaskWorkers = 0
	s := New(cfg, entry, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, s.Start(ctx))
	defer s.Stop(context.Background())

	_, err := s.Offload(ctx, "corr-1", "math.echo", nil)
	assert.Error(t, err)
}

type fakeNotifier struct {
	lost    []string
	crashes int
}

func (f *fakeNotifier) FailInflightForWorker(correlationIDs []string) {
	f.lost = append(f.lost, correlationIDs...)
}

func (f *fakeNotifier) WorkerCrashed() {
	f.crashes++
}

func TestSupervisor_CrashFailsInflightCorrelations(t *testing.T) {
	entry := helperEntrypoint(t, "idle")
	cfg := helperConfig()
	cfg.TaskWorkers = 1
	s := New(cfg, entry, testLogger())
	notifier := &fakeNotifier{}
	s.SetNotifier(notifier)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, s.Start(ctx))

	s.mu.Lock()
	var w *workerProc
	for _, proc := range s.workers {
		w = proc
	}
	s.mu.Unlock()
	require.NotNil(t, w)

	w.mu.Lock()
	w.routed["corr-lost"] = struct{}{}
	w.mu.Unlock()
	s.pendingMu.Lock()
	s.pending["corr-lost"] = make(chan ExecuteResultPayload, 1)
	s.pendingMu.Unlock()

	require.NoError(t, w.cmd.Process.Kill())
	<-w.exited
	time.Sleep(100 * time.Millisecond)

	assert.Contains(t, notifier.lost, "corr-lost")
	assert.Equal(t, 1, notifier.crashes)

	s.mu.Lock()
	s.exiting = true
	s.mu.Unlock()
}
