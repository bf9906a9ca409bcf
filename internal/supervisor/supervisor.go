package supervisor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/neematajs/neemata-go/internal/config"
	"github.com/neematajs/neemata-go/internal/jsoncodec"
	loggingpkg "github.com/neematajs/neemata-go/internal/logging"
	"github.com/neematajs/neemata-go/internal/worker"
)

var _ worker.Offloader = (*Supervisor)(nil)

// WorkerLostNotifier is the narrow surface a Supervisor needs from an API
// worker's Task Engine to fail in-flight offloaded calls when the task
// worker they were routed to crashes.
type WorkerLostNotifier interface {
	FailInflightForWorker(correlationIDs []string)
	WorkerCrashed()
}

// workerProc tracks one spawned worker process: its identity, its pipes,
// and the correlation ids currently routed to it (for task workers only).
type workerProc struct {
	id   string
	kind config.WorkerType

	mu          sync.Mutex
	cmd         *exec.Cmd
	stdinWriter io.WriteCloser
	reader      *bufio.Reader
	ready       chan struct{}
	exited      chan struct{}
	exiting     bool

	routed map[string]struct{}
}

// Supervisor spawns and supervises API and Task worker processes, speaking
// the worker message protocol with each over stdin/stdout pipes. Entrypoint
// is the path to the binary re-exec'd for each worker; the CLI collaborator
// resolves it from NEEMATA_ENTRY.
type Supervisor struct {
	cfg        config.Config
	entrypoint string
	logger     loggingpkg.ServiceLogger

	mu      sync.Mutex
	workers map[string]*workerProc
	pool    *Pool

	pending   map[string]chan ExecuteResultPayload
	pendingMu sync.Mutex

	notifier WorkerLostNotifier

	started bool
	exiting bool
}

// New constructs a Supervisor bound to cfg and entrypoint.
func New(cfg config.Config, entrypoint string, logger loggingpkg.ServiceLogger) *Supervisor {
	return &Supervisor{
		cfg:        cfg,
		entrypoint: entrypoint,
		logger:     logger,
		workers:    make(map[string]*workerProc),
		pool:       NewPool(),
		pending:    make(map[string]chan ExecuteResultPayload),
	}
}

// SetNotifier wires the API worker's Task Engine so a task worker crash
// fails the correlations that were routed to it with TaskWorkerLost. Only
// meaningful for an in-process API worker sharing this Supervisor.
func (s *Supervisor) SetNotifier(n WorkerLostNotifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifier = n
}

// Start forks ApiWorkers API workers and TaskWorkers task workers and
// blocks until every one of them has sent Ready, or returns an error if
// any worker process exits before doing so.
func (s *Supervisor) Start(ctx context.Context) error {
	var toSpawn []config.WorkerType
	for i := 0; i < s.cfg.ApiWorkers; i++ {
		toSpawn = append(toSpawn, config.WorkerAPI)
	}
	for i := 0; i < s.cfg.TaskWorkers; i++ {
		toSpawn = append(toSpawn, config.WorkerTask)
	}

	var g errgroup.Group
	for _, kind := range toSpawn {
		w, err := s.spawnWorker(ctx, kind, uuid.NewString())
		if err != nil {
			return fmt.Errorf("neemata: spawning worker: %w", err)
		}
		g.Go(func() error { return s.awaitReady(w) })
	}

	if err := g.Wait(); err != nil {
		s.stopStarted(ctx)
		return err
	}

	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	return nil
}

func (s *Supervisor) awaitReady(w *workerProc) error {
	select {
	case <-w.ready:
		return nil
	case <-w.exited:
		select {
		case <-w.ready:
			return nil
		default:
		}
		return fmt.Errorf("neemata: worker %q exited before becoming ready", w.id)
	case <-time.After(30 * time.Second):
		return fmt.Errorf("neemata: worker %q did not become ready", w.id)
	}
}

// stopStarted posts Stop to every worker spawned so far, used when startup
// fails partway through.
func (s *Supervisor) stopStarted(ctx context.Context) {
	s.mu.Lock()
	workers := make([]*workerProc, 0, len(s.workers))
	for _, w := range s.workers {
		workers = append(workers, w)
	}
	s.mu.Unlock()
	for _, w := range workers {
		_ = s.postStop(w)
	}
}

func (s *Supervisor) spawnWorker(ctx context.Context, kind config.WorkerType, id string) (*workerProc, error) {
	cmd := exec.CommandContext(ctx, s.entrypoint)
	cmd.Env = append(os.Environ(), "NEEMATA_WORKER_ID="+id, "NEEMATA_WORKER_KIND="+string(kind))
	cmd.Stderr = os.Stderr

	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	w := &workerProc{
		id:          id,
		kind:        kind,
		cmd:         cmd,
		stdinWriter: stdinPipe,
		reader:      bufio.NewReader(stdoutPipe),
		ready:       make(chan struct{}),
		exited:      make(chan struct{}),
		routed:      make(map[string]struct{}),
	}

	s.mu.Lock()
	s.workers[id] = w
	if kind == config.WorkerTask {
		s.pool.Add(id)
	}
	s.mu.Unlock()

	go s.readLoop(w)
	go s.watchExit(w)

	return w, nil
}

func (s *Supervisor) readLoop(w *workerProc) {
	for {
		msg, err := ReadMessage(w.reader)
		if err != nil {
			return
		}
		switch msg.Kind {
		case MsgReady:
			close(w.ready)
			if err := WriteMessage(w.stdinWriter, Message{Kind: MsgStart}); err != nil {
				s.logger.Error("failed to post Start", err, loggingpkg.LogFields{"worker": w.id})
			}
		case MsgExecuteResult:
			result, err := decodeExecuteResult(msg.Payload)
			if err != nil {
				s.logger.Error("malformed ExecuteResult", err, loggingpkg.LogFields{"worker": w.id})
				continue
			}
			s.deliverResult(w, result)
		}
	}
}

func (s *Supervisor) deliverResult(w *workerProc, result ExecuteResultPayload) {
	w.mu.Lock()
	delete(w.routed, result.CorrelationID)
	w.mu.Unlock()

	s.pendingMu.Lock()
	ch, ok := s.pending[result.CorrelationID]
	delete(s.pending, result.CorrelationID)
	s.pendingMu.Unlock()
	if ok {
		ch <- result
	}
}

func (s *Supervisor) watchExit(w *workerProc) {
	err := w.cmd.Wait()
	close(w.exited)

	w.mu.Lock()
	exiting := w.exiting
	w.mu.Unlock()

	if exiting {
		return
	}

	s.logger.Error("worker process crashed", err, loggingpkg.LogFields{"worker": w.id, "kind": string(w.kind)})

	s.mu.Lock()
	delete(s.workers, w.id)
	if w.kind == config.WorkerTask {
		s.pool.Remove(w.id)
	}
	notifier := s.notifier
	s.mu.Unlock()

	if notifier != nil {
		notifier.WorkerCrashed()
	}

	w.mu.Lock()
	lost := make([]string, 0, len(w.routed))
	for id := range w.routed {
		lost = append(lost, id)
	}
	w.mu.Unlock()

	if notifier != nil && len(lost) > 0 {
		notifier.FailInflightForWorker(lost)
	}
	for _, id := range lost {
		s.pendingMu.Lock()
		ch, ok := s.pending[id]
		delete(s.pending, id)
		s.pendingMu.Unlock()
		if ok {
			close(ch)
		}
	}

	s.mu.Lock()
	restarting := s.started && !s.exiting
	s.mu.Unlock()
	if !restarting {
		return
	}

	replacement, err := s.spawnWorker(context.Background(), w.kind, w.id)
	if err != nil {
		s.logger.Error("failed to respawn crashed worker", err, loggingpkg.LogFields{"worker": w.id})
		return
	}
	go func() {
		select {
		case <-replacement.ready:
		case <-time.After(30 * time.Second):
			s.logger.Error("replacement worker did not become ready", fmt.Errorf("timeout"), loggingpkg.LogFields{"worker": replacement.id})
		}
	}()
}

// Offload implements worker.Offloader: it routes taskName to the next task
// worker in round-robin order and blocks until that worker's ExecuteResult
// arrives, the context is cancelled, or the worker crashes mid-call.
func (s *Supervisor) Offload(ctx context.Context, correlationID, taskName string, args any) (any, error) {
	argsPayload, err := jsoncodec.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("neemata: encoding task args: %w", err)
	}

	s.mu.Lock()
	workerID, ok := s.pool.Next()
	var w *workerProc
	if ok {
		w = s.workers[workerID]
	}
	s.mu.Unlock()
	if !ok || w == nil {
		return nil, fmt.Errorf("neemata: no task workers available")
	}

	w.mu.Lock()
	w.routed[correlationID] = struct{}{}
	w.mu.Unlock()

	resultCh := make(chan ExecuteResultPayload, 1)
	s.pendingMu.Lock()
	s.pending[correlationID] = resultCh
	s.pendingMu.Unlock()

	payload, err := encodeExecuteInvoke(ExecuteInvokePayload{CorrelationID: correlationID, TaskName: taskName, Args: argsPayload})
	if err != nil {
		return nil, err
	}
	if err := WriteMessage(w.stdinWriter, Message{Kind: MsgExecuteInvoke, Payload: payload}); err != nil {
		return nil, fmt.Errorf("neemata: sending ExecuteInvoke: %w", err)
	}

	var deadline <-chan time.Time
	if s.cfg.TaskOffloadTimeout > 0 {
		timer := time.NewTimer(s.cfg.TaskOffloadTimeout)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case result, ok := <-resultCh:
		if !ok {
			return nil, fmt.Errorf("neemata: task worker lost mid-call")
		}
		if result.Error != "" {
			return nil, fmt.Errorf("%s", result.Error)
		}
		var out any
		if len(result.Result) > 0 {
			if err := jsoncodec.Unmarshal(result.Result, &out); err != nil {
				return nil, err
			}
		}
		return out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-deadline:
		s.pendingMu.Lock()
		delete(s.pending, correlationID)
		s.pendingMu.Unlock()
		return nil, worker.ErrOffloadTimeout
	}
}

// Stop posts Stop to every worker, waits up to ShutdownTimeout for all of
// them to exit, and force-kills every worker once that deadline passes.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.exiting = true
	workers := make([]*workerProc, 0, len(s.workers))
	for _, w := range s.workers {
		workers = append(workers, w)
	}
	s.mu.Unlock()

	for _, w := range workers {
		_ = s.postStop(w)
	}

	deadline := time.After(s.cfg.ShutdownTimeout)
	done := make(chan struct{})
	go func() {
		for _, w := range workers {
			<-w.exited
		}
		close(done)
	}()

	select {
	case <-done:
	case <-deadline:
		for _, w := range workers {
			_ = w.cmd.Process.Kill()
		}
		<-done
	}
	return nil
}

func (s *Supervisor) postStop(w *workerProc) error {
	w.mu.Lock()
	w.exiting = true
	w.mu.Unlock()
	return WriteMessage(w.stdinWriter, Message{Kind: MsgStop})
}
