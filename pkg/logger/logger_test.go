package logger

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"go.uber.org/zap/zapcore"

	"go-pos-ws/config"
)

func TestLevelAndFallback(t *testing.T) {
	c := qt.New(t)

	log, err := NewZapLogger("production", config.LoggerConfig{Level: "warn", Encoding: "json"})
	c.Assert(err, qt.IsNil)
	c.Assert(log.Core().Enabled(zapcore.InfoLevel), qt.IsFalse)
	c.Assert(log.Core().Enabled(zapcore.WarnLevel), qt.IsTrue)

	log, err = NewZapLogger("development", config.LoggerConfig{Level: "loud"})
	c.Assert(err, qt.IsNil)
	c.Assert(log.Core().Enabled(zapcore.InfoLevel), qt.IsTrue)
	c.Assert(log.Core().Enabled(zapcore.DebugLevel), qt.IsFalse)
}

func TestUnknownEncodingFails(t *testing.T) {
	c := qt.New(t)
	_, err := NewZapLogger("production", config.LoggerConfig{Level: "info", Encoding: "yaml"})
	c.Assert(err, qt.IsNotNil)
}
