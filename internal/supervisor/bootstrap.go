package supervisor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/neematajs/neemata-go/internal/jsoncodec"
	loggingpkg "github.com/neematajs/neemata-go/internal/logging"
	"github.com/neematajs/neemata-go/internal/worker"
)

// RunWorker is the child-process side of the worker message protocol: the
// host binary's main() calls this once NEEMATA_WORKER_ID/NEEMATA_WORKER_KIND
// are set in its environment (by a spawning Supervisor). It initializes and
// starts app, announces Ready over stdout, then reads Start (an
// acknowledgment with no local effect), Stop, and ExecuteInvoke frames from
// stdin until the connection closes or Stop is received. ExecuteInvoke is
// serviced as soon as it arrives, whether or not Start has been seen.
func RunWorker(ctx context.Context, app *worker.Application, logger loggingpkg.ServiceLogger) error {
	if err := app.Initialize(ctx); err != nil {
		return fmt.Errorf("neemata: worker failed to initialize: %w", err)
	}
	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("neemata: worker failed to start: %w", err)
	}

	stdout := os.Stdout
	stdin := bufio.NewReader(os.Stdin)

	if err := WriteMessage(stdout, Message{Kind: MsgReady}); err != nil {
		return fmt.Errorf("neemata: worker failed to announce ready: %w", err)
	}

	for {
		msg, err := ReadMessage(stdin)
		if err != nil {
			if err == io.EOF {
				return app.Stop(context.Background())
			}
			return fmt.Errorf("neemata: worker message loop: %w", err)
		}

		switch msg.Kind {
		case MsgStart:
			// Acknowledges the supervisor has admitted this worker into its
			// pool. No local action is required; the worker already services
			// ExecuteInvoke as soon as it arrives.
		case MsgStop:
			return app.Stop(context.Background())
		case MsgExecuteInvoke:
			go handleExecuteInvoke(ctx, app, logger, stdout, msg.Payload)
		}
	}
}

func handleExecuteInvoke(ctx context.Context, app *worker.Application, logger loggingpkg.ServiceLogger, stdout io.Writer, raw []byte) {
	invoke, err := decodeExecuteInvoke(raw)
	if err != nil {
		logger.Error("malformed ExecuteInvoke", err, loggingpkg.LogFields{})
		return
	}

	var args any
	if len(invoke.Args) > 0 {
		if err := jsoncodec.Unmarshal(invoke.Args, &args); err != nil {
			sendExecuteResult(logger, stdout, invoke.CorrelationID, nil, err)
			return
		}
	}

	result, err := app.Tasks().Execute(ctx, invoke.TaskName, args)
	sendExecuteResult(logger, stdout, invoke.CorrelationID, result, err)
}

func sendExecuteResult(logger loggingpkg.ServiceLogger, stdout io.Writer, correlationID string, result any, execErr error) {
	reply := ExecuteResultPayload{CorrelationID: correlationID}
	if execErr != nil {
		reply.Error = execErr.Error()
	} else if result != nil {
		encoded, err := jsoncodec.Marshal(result)
		if err != nil {
			reply.Error = err.Error()
		} else {
			reply.Result = encoded
		}
	}

	payload, err := encodeExecuteResult(reply)
	if err != nil {
		logger.Error("failed to encode ExecuteResult", err, loggingpkg.LogFields{"correlationId": correlationID})
		return
	}
	if err := WriteMessage(stdout, Message{Kind: MsgExecuteResult, Payload: payload}); err != nil {
		logger.Error("failed to write ExecuteResult", err, loggingpkg.LogFields{"correlationId": correlationID})
	}
}
