package neemata

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func TestConfigExportAliases(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.ApiWorkers != 1 {
		t.Fatalf("expected default api workers to be 1, got %d", cfg.ApiWorkers)
	}
	if err := ValidateConfig(&cfg); err != nil {
		t.Fatalf("expected default config to validate, got %v", err)
	}
}

func TestApplicationExportConstructsAndTerminates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Transports = nil
	logger := NewZerologServiceLogger(zerolog.Nop())

	app := NewApplication(cfg, WorkerAPI, logger)
	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error starting application: %v", err)
	}
	if err := app.Terminate(context.Background()); err != nil {
		t.Fatalf("unexpected error terminating application: %v", err)
	}
}

func TestModuleAndRegistryExports(t *testing.T) {
	mod := NewModule("math").Procedure(&Procedure{
		Name: "add",
		Handler: func(ctx context.Context, call *Call, input any) (any, error) {
			return input, nil
		},
	})
	registry := NewRegistry(NewZerologServiceLogger(zerolog.Nop()))
	registry.Register(mod)
}

func TestErrorKindExports(t *testing.T) {
	err := NewRuntimeError(NotFound, "missing widget")
	if _, ok := ErrorAs(err, NotFound); !ok {
		t.Fatalf("expected ErrorAs to match NotFound")
	}
}
