package log

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sitescan/sitescan/pkg/requestid"
)

// StructuredLogger is a named logger used by the service layer to trace
// operations. A tracer is built per operation and emits step/success/error
// events carrying the accumulated fields plus the request id taken from the
// context.
type StructuredLogger struct {
	logger *zap.SugaredLogger
}

func NewDebugLogger(name string) *StructuredLogger {
	return &StructuredLogger{logger: zap.S().Named(name)}
}

func (l *StructuredLogger) WithContext(ctx context.Context) *OperationBuilder {
	b := &OperationBuilder{logger: l.logger}
	if reqID := requestid.FromContext(ctx); reqID != "" {
		b.fields = append(b.fields, "request_id", reqID)
	}
	return b
}

type OperationBuilder struct {
	logger    *zap.SugaredLogger
	operation string
	fields    []any
}

func (b *OperationBuilder) Operation(name string) *OperationBuilder {
	b.operation = name
	return b
}

func (b *OperationBuilder) WithString(key, value string) *OperationBuilder {
	b.fields = append(b.fields, key, value)
	return b
}

func (b *OperationBuilder) WithInt(key string, value int) *OperationBuilder {
	b.fields = append(b.fields, key, value)
	return b
}

func (b *OperationBuilder) WithBool(key string, value bool) *OperationBuilder {
	b.fields = append(b.fields, key, value)
	return b
}

func (b *OperationBuilder) WithUUID(key string, value uuid.UUID) *OperationBuilder {
	b.fields = append(b.fields, key, value.String())
	return b
}

func (b *OperationBuilder) WithParam(key string, value any) *OperationBuilder {
	b.fields = append(b.fields, key, value)
	return b
}

func (b *OperationBuilder) Build() *Tracer {
	return &Tracer{
		logger:    b.logger.With(b.fields...).With("operation", b.operation),
		operation: b.operation,
	}
}

// Tracer emits events for one in-flight operation.
type Tracer struct {
	logger    *zap.SugaredLogger
	operation string
}

func (t *Tracer) Step(name string) *Event {
	return &Event{logger: t.logger, message: t.operation + ": " + name, level: levelDebug}
}

func (t *Tracer) Success() *Event {
	return &Event{logger: t.logger, message: t.operation + " succeeded", level: levelInfo}
}

func (t *Tracer) Error(err error) *Event {
	e := &Event{logger: t.logger, message: t.operation + " failed", level: levelError}
	e.fields = append(e.fields, "error", err)
	return e
}

type eventLevel int

const (
	levelDebug eventLevel = iota
	levelInfo
	levelError
)

type Event struct {
	logger  *zap.SugaredLogger
	message string
	level   eventLevel
	fields  []any
}

func (e *Event) WithString(key, value string) *Event {
	e.fields = append(e.fields, key, value)
	return e
}

func (e *Event) WithInt(key string, value int) *Event {
	e.fields = append(e.fields, key, value)
	return e
}

func (e *Event) WithBool(key string, value bool) *Event {
	e.fields = append(e.fields, key, value)
	return e
}

func (e *Event) WithUUID(key string, value uuid.UUID) *Event {
	e.fields = append(e.fields, key, value.String())
	return e
}

func (e *Event) WithParam(key string, value any) *Event {
	e.fields = append(e.fields, key, value)
	return e
}

func (e *Event) Log() {
	switch e.level {
	case levelError:
		e.logger.Errorw(e.message, e.fields...)
	case levelInfo:
		e.logger.Infow(e.message, e.fields...)
	default:
		e.logger.Debugw(e.message, e.fields...)
	}
}
