// Package config describes the tunables read by the Application and the
// Supervisor: worker pool sizes, dispatch and task-offload timeouts, stream
// flow-control settings, and the metrics/YAML loading surface consumed by
// the CLI collaborator.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// WorkerType distinguishes API workers (terminate transports, run procedures)
// from Task workers (execute offloaded tasks).
type WorkerType string

const (
	WorkerAPI  WorkerType = "api"
	WorkerTask WorkerType = "task"
)

// Config groups the settings required to build an Application and, on the
// entrypoint side, its Supervisor. Only a WorkerType + worker Options are
// needed to run a single worker in-process; ApiWorkers/TaskWorkers are only
// read by the Supervisor.
type Config struct {
	// ApiWorkers is the number of API worker processes the Supervisor spawns.
	ApiWorkers int `yaml:"apiWorkers"`
	// TaskWorkers is the number of Task worker processes the Supervisor spawns.
	TaskWorkers int `yaml:"taskWorkers"`

	// Transports lists the transport names an API worker should start. The
	// concrete transport implementations are external collaborators; this
	// is only the set of names the Application looks up in its transport
	// registry.
	Transports []string `yaml:"transports"`

	// ApiTimeout bounds every procedure call, unless a smaller per-procedure
	// or per-call timeout applies.
	ApiTimeout time.Duration `yaml:"apiTimeout"`

	// TasksTimeout bounds a locally executed task, unless a smaller
	// per-task override applies.
	TasksTimeout time.Duration `yaml:"tasksTimeout"`
	// TaskOffloadTimeout additionally bounds an offloaded task on the
	// supervisor side.
	TaskOffloadTimeout time.Duration `yaml:"taskOffloadTimeout"`

	// ShutdownTimeout bounds how long the Supervisor waits for a worker to
	// exit gracefully before forcibly terminating it.
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`

	// StreamWindow is the initial credit-based flow-control window, in
	// chunks, granted to a newly opened stream.
	StreamWindow int `yaml:"streamWindow"`
	// StreamChunkSize is the maximum negotiated DATA frame payload size.
	StreamChunkSize int `yaml:"streamChunkSize"`

	// MetricsEnabled exposes Prometheus counters/histograms for dispatch and
	// task execution.
	MetricsEnabled bool `yaml:"metricsEnabled"`
	// MetricsPort is the port a metrics endpoint is meant to listen on. It is
	// only validated as a port number; this module starts no HTTP server on
	// it.
	MetricsPort int `yaml:"metricsPort"`

	// TracingEnabled is loaded and carried but not read by the runtime:
	// dispatch and task execution always open spans through the global
	// OpenTelemetry tracer, whatever its value.
	TracingEnabled bool `yaml:"tracingEnabled"`
}

// Default returns the configuration used when the CLI collaborator supplies
// no overrides.
func Default() Config {
	return Config{
		ApiWorkers:         1,
		TaskWorkers:        0,
		ApiTimeout:         30 * time.Second,
		TasksTimeout:       60 * time.Second,
		TaskOffloadTimeout: 90 * time.Second,
		ShutdownTimeout:    10 * time.Second,
		StreamWindow:       16,
		StreamChunkSize:    64 * 1024,
	}
}

// Load reads a YAML manifest from path and merges it on top of Default().
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("neemata: reading config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("neemata: parsing config %q: %w", path, err)
	}
	return cfg, nil
}

// String renders the configuration for logging. There are no secrets in
// Config today, but the method is kept so call sites never print the struct
// directly and need to be revisited if a credential-bearing field is added.
func (c Config) String() string {
	type configAlias Config
	return fmt.Sprintf("%+v", configAlias(c))
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	var errs []error
	errs = append(errs, c.validateWorkers()...)
	errs = append(errs, c.validateTimeouts()...)
	errs = append(errs, c.validateStreams()...)
	errs = append(errs, c.validatePorts()...)
	return errors.Join(errs...)
}

func (c *Config) validateWorkers() []error {
	var errs []error
	if c.ApiWorkers < 0 {
		errs = append(errs, errors.New("apiWorkers cannot be negative"))
	}
	if c.TaskWorkers < 0 {
		errs = append(errs, errors.New("taskWorkers cannot be negative"))
	}
	if c.ApiWorkers == 0 && c.TaskWorkers == 0 {
		errs = append(errs, errors.New("at least one API or Task worker is required"))
	}
	return errs
}

func (c *Config) validateTimeouts() []error {
	var errs []error
	if c.ApiTimeout < 0 {
		errs = append(errs, errors.New("apiTimeout cannot be negative"))
	}
	if c.TasksTimeout < 0 {
		errs = append(errs, errors.New("tasksTimeout cannot be negative"))
	}
	if c.TaskOffloadTimeout < 0 {
		errs = append(errs, errors.New("taskOffloadTimeout cannot be negative"))
	}
	if c.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("shutdownTimeout cannot be negative"))
	}
	return errs
}

func (c *Config) validateStreams() []error {
	var errs []error
	if c.StreamWindow < 0 {
		errs = append(errs, errors.New("streamWindow cannot be negative"))
	}
	if c.StreamChunkSize < 0 {
		errs = append(errs, errors.New("streamChunkSize cannot be negative"))
	}
	return errs
}

func (c *Config) validatePorts() []error {
	var errs []error
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		errs = append(errs, fmt.Errorf("metricsPort: invalid port %d", c.MetricsPort))
	}
	return errs
}

// ValidateConfig is a convenience wrapper around (*Config).Validate that
// also rejects a nil Config.
func ValidateConfig(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	return c.Validate()
}
