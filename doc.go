// Package neemata is an application-server framework for RPC services with
// streaming, pub/sub events, and offloaded background tasks. An Application
// wires a dependency-injection Container, a Registry of Modules (procedures,
// tasks, and CLI commands), a HookEngine for lifecycle and call interception,
// and a SubscriptionManager for pub/sub, then serves one or more transports
// (Go channels for testing, with room for network transports built against
// the same transport.Transport interface).
//
// A minimal setup fills a Config, constructs an Application with New,
// registers Modules on its Registry, and calls Start; Application.Stop then
// runs the Stop hooks, terminates the Application (Terminate hooks in reverse
// bind order) and disposes the Container.
//
// # Workers
//
// Config.ApiWorkers and Config.TaskWorkers describe how many API-serving and
// task-executing worker processes the supervisor package forks. API workers
// run the registered Procedures and Subscriptions against connected clients;
// Task workers run registered Tasks offloaded to them by an API worker's Task
// Engine. A Task executes in the calling worker directly when that worker is
// itself a Task worker, when the Task sets LocalOnly, or when no Offloader is
// configured; otherwise it is routed through the Supervisor's worker message
// protocol.
//
// # Hooks
//
// HookEngine supports BeforeInitialize, AfterInitialize, BeforeStart,
// AfterStart, BeforeStop, AfterStop, BeforeTerminate, AfterTerminate,
// OnConnection, and OnDisconnection hook kinds. Hooks run in bind order,
// except BeforeTerminate and AfterTerminate, which run in reverse bind order
// so resources acquired first are released last.
//
// # Streaming and pub/sub
//
// A procedure's result is always encoded whole by the connection's Format;
// Streams are tracked per connection by streamRegistry, which windows their
// delivery with per-stream credit. SubscriptionManager fans published
// payloads out to subscribers registered against a channel name, optionally
// filtered.
package neemata
