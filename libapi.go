package neemata

import (
	configpkg "github.com/neematajs/neemata-go/internal/config"
	errspkg "github.com/neematajs/neemata-go/internal/errors"
	loggingpkg "github.com/neematajs/neemata-go/internal/logging"
	supervisorpkg "github.com/neematajs/neemata-go/internal/supervisor"
	runtimepkg "github.com/neematajs/neemata-go/internal/worker"
	transportpkg "github.com/neematajs/neemata-go/transport"
)

type (
	Config     = configpkg.Config
	WorkerType = configpkg.WorkerType

	Application = runtimepkg.Application
	State       = runtimepkg.State

	Container = runtimepkg.Container
	Scope     = runtimepkg.Scope
	Provider  = runtimepkg.Provider[any]

	Registry = runtimepkg.Registry
	Module   = runtimepkg.Module

	Schema      = runtimepkg.Schema
	Guard       = runtimepkg.Guard
	Handler     = runtimepkg.Handler
	Middleware  = runtimepkg.Middleware
	Procedure   = runtimepkg.Procedure
	TaskFunc    = runtimepkg.TaskFunc
	Task        = runtimepkg.Task
	CommandFunc = runtimepkg.CommandFunc

	HookEngine  = runtimepkg.HookEngine
	HookKind    = runtimepkg.HookKind
	HookFunc    = runtimepkg.HookFunc
	CallOptions = runtimepkg.CallOptions

	Call      = runtimepkg.Call
	Dispatcher = runtimepkg.Dispatcher
	TaskEngine = runtimepkg.TaskEngine
	Offloader  = runtimepkg.Offloader

	SubscriptionManager = runtimepkg.SubscriptionManager
	Filter              = runtimepkg.Filter

	Stream      = runtimepkg.Stream
	StreamMeta  = runtimepkg.StreamMeta
	StreamState = runtimepkg.StreamState

	Transport        = transportpkg.Transport
	TransportBuilder = transportpkg.Builder
	Frame            = transportpkg.Frame
	FrameKind        = transportpkg.FrameKind
	ConnectionID     = transportpkg.ConnectionID
	Connection       = transportpkg.Connection
	Host             = transportpkg.Host
	Capabilities     = transportpkg.Capabilities

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	ErrorKind    = errspkg.Kind
	RuntimeError = errspkg.RuntimeError
	FieldError   = errspkg.FieldError

	Supervisor          = supervisorpkg.Supervisor
	WorkerLostNotifier  = supervisorpkg.WorkerLostNotifier
	ExecuteInvokePayload = supervisorpkg.ExecuteInvokePayload
	ExecuteResultPayload = supervisorpkg.ExecuteResultPayload
)

const (
	WorkerAPI  = configpkg.WorkerAPI
	WorkerTask = configpkg.WorkerTask

	ScopeGlobal      = runtimepkg.ScopeGlobal
	ScopeConnection  = runtimepkg.ScopeConnection
	ScopeCall        = runtimepkg.ScopeCall

	FrameRPC              = transportpkg.FrameRPC
	FrameStreamOpen       = transportpkg.FrameStreamOpen
	FrameStreamData       = transportpkg.FrameStreamData
	FrameStreamEnd        = transportpkg.FrameStreamEnd
	FrameStreamAbort      = transportpkg.FrameStreamAbort
	FrameSubscriptionEvent = transportpkg.FrameSubscriptionEvent
	FrameError            = transportpkg.FrameError

	BeforeInitialize = runtimepkg.BeforeInitialize
	AfterInitialize  = runtimepkg.AfterInitialize
	BeforeStart      = runtimepkg.BeforeStart
	AfterStart       = runtimepkg.AfterStart
	BeforeStop       = runtimepkg.BeforeStop
	AfterStop        = runtimepkg.AfterStop
	BeforeTerminate  = runtimepkg.BeforeTerminate
	AfterTerminate   = runtimepkg.AfterTerminate
	OnConnection     = runtimepkg.OnConnection
	OnDisconnection  = runtimepkg.OnDisconnection

	NotFound       = errspkg.NotFound
	ValidationErr  = errspkg.ValidationErr
	InvalidPayload = errspkg.InvalidPayload
	Forbidden      = errspkg.Forbidden
	Timeout        = errspkg.Timeout
	TaskTimeout    = errspkg.TaskTimeout
	TaskWorkerLost = errspkg.TaskWorkerLost
	StreamAborted  = errspkg.StreamAborted
	InvalidState   = errspkg.InvalidState
	ScopeMismatch  = errspkg.ScopeMismatch
	DuplicateName  = errspkg.DuplicateName
	Internal       = errspkg.Internal
)

var (
	NewApplication = runtimepkg.New
	NewModule      = runtimepkg.NewModule
	NewRegistry    = runtimepkg.NewRegistry
	NewHookEngine  = runtimepkg.NewHookEngine
	NewRootContainer = runtimepkg.NewRootContainer

	DefaultConfig  = configpkg.Default
	LoadConfig     = configpkg.Load
	ValidateConfig = configpkg.ValidateConfig

	NewTransportRegistry = transportpkg.NewRegistry
	RegisterTransport    = transportpkg.Register
	BuildTransport       = transportpkg.Build
	GetCapabilities      = transportpkg.GetCapabilities

	NewSlogServiceLogger     = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger
	NewZerologServiceLogger  = loggingpkg.NewZerologServiceLogger

	NewRuntimeError         = errspkg.New
	WrapRuntimeError        = errspkg.Wrap
	ErrorAs                 = errspkg.As
	ClassifyError           = errspkg.Classify
	NewConfigValidationError = errspkg.NewConfigValidationError

	NewSupervisor = supervisorpkg.New
	RunWorker     = supervisorpkg.RunWorker
)
