package logging

import "github.com/rs/zerolog"

// NewZerologServiceLogger wraps a zerolog.Logger so it satisfies
// ServiceLogger. The supervisor process uses this: it runs before any
// Application exists, so it has no slog/watermill logger to adapt, and
// zerolog is the pack's own choice for that kind of process-level logging
// (artpar-apigate's config.Holder and web layer both log through it).
func NewZerologServiceLogger(logger zerolog.Logger) ServiceLogger {
	return &zerologServiceLogger{inner: logger}
}

type zerologServiceLogger struct {
	inner zerolog.Logger
}

func (z *zerologServiceLogger) With(fields LogFields) ServiceLogger {
	ctx := z.inner.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &zerologServiceLogger{inner: ctx.Logger()}
}

func (z *zerologServiceLogger) Debug(msg string, fields LogFields) {
	applyZerologFields(z.inner.Debug(), fields).Msg(msg)
}

func (z *zerologServiceLogger) Info(msg string, fields LogFields) {
	applyZerologFields(z.inner.Info(), fields).Msg(msg)
}

func (z *zerologServiceLogger) Error(msg string, err error, fields LogFields) {
	event := z.inner.Error()
	if err != nil {
		event = event.Err(err)
	}
	applyZerologFields(event, fields).Msg(msg)
}

func (z *zerologServiceLogger) Trace(msg string, fields LogFields) {
	applyZerologFields(z.inner.Trace(), fields).Msg(msg)
}

func applyZerologFields(event *zerolog.Event, fields LogFields) *zerolog.Event {
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	return event
}
