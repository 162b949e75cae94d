// Package notify carries user-facing toasts from the engine to the terminal UI.
package notify

import (
	"fmt"

	"go.uber.org/zap"
)

type Level string

const (
	Success Level = "success"
	Info    Level = "info"
	Warning Level = "warning"
	Error   Level = "error"
)

type Toast struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// Sink receives toasts.
type Sink interface {
	Notify(t Toast)
}

// Publisher pushes a typed event to connected UI clients.
type Publisher interface {
	Publish(eventType string, payload interface{})
}

type sink struct {
	pub Publisher
	log *zap.Logger
}

// NewSink logs every toast and forwards it to pub when pub is not nil.
func NewSink(pub Publisher, log *zap.Logger) Sink {
	if log == nil {
		log = zap.NewNop()
	}
	return &sink{pub: pub, log: log.Named("toast")}
}

func (s *sink) Notify(t Toast) {
	fields := []zap.Field{zap.String("level", string(t.Level)), zap.String("message", t.Message)}
	switch t.Level {
	case Error:
		s.log.Error("toast", fields...)
	case Warning:
		s.log.Warn("toast", fields...)
	default:
		s.log.Info("toast", fields...)
	}
	if s.pub != nil {
		s.pub.Publish("toast", t)
	}
}

func Successf(s Sink, format string, args ...interface{}) {
	s.Notify(Toast{Level: Success, Message: fmt.Sprintf(format, args...)})
}

func Infof(s Sink, format string, args ...interface{}) {
	s.Notify(Toast{Level: Info, Message: fmt.Sprintf(format, args...)})
}

func Warnf(s Sink, format string, args ...interface{}) {
	s.Notify(Toast{Level: Warning, Message: fmt.Sprintf(format, args...)})
}

func Errorf(s Sink, format string, args ...interface{}) {
	s.Notify(Toast{Level: Error, Message: fmt.Sprintf(format, args...)})
}

// Recorder keeps toasts in memory.
type Recorder struct {
	Toasts []Toast
}

func (r *Recorder) Notify(t Toast) { r.Toasts = append(r.Toasts, t) }

func (r *Recorder) Last() (Toast, bool) {
	if len(r.Toasts) == 0 {
		return Toast{}, false
	}
	return r.Toasts[len(r.Toasts)-1], true
}
